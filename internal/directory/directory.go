// Package directory holds the ordered set of formats currently on the
// clipboard.
//
// Each format appears at most once. Entries keep insertion order, which is
// the order enumeration reports them in. An entry is either Stored (bytes are
// present), Pending (the owner promised to render it on demand) or Synthesized
// (it will be derived from another member of its family on first read).
package directory

import (
	"fmt"
	"slices"

	"go.klb.dev/clipshare/internal/format"
)

// Origin says where an entry's bytes come from.
type Origin uint8

const (
	Stored Origin = iota
	Pending
	Synthesized
)

func (o Origin) String() string {
	switch o {
	case Stored:
		return "stored"
	case Pending:
		return "pending"
	case Synthesized:
		return "synthesized"
	default:
		return fmt.Sprintf("origin(%d)", uint8(o))
	}
}

// Entry is one format on the clipboard.
type Entry struct {
	ID     format.ID
	Origin Origin
	// From is the source format of a Synthesized entry.
	From format.ID
	Data []byte
}

// Available reports whether the entry can be read without the owner's help.
func (e Entry) Available() bool {
	return e.Origin == Stored || e.Origin == Synthesized
}

// Directory is an ordered format set. It is not safe for concurrent use; the
// arbiter serializes access.
type Directory struct {
	order   []format.ID
	entries map[format.ID]*Entry
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{entries: make(map[format.ID]*Entry)}
}

// Put inserts or replaces the entry for e.ID. A replaced entry keeps its
// position.
func (d *Directory) Put(e Entry) {
	if cur, ok := d.entries[e.ID]; ok {
		*cur = e
		return
	}
	d.order = append(d.order, e.ID)
	d.entries[e.ID] = &e
}

// Get returns the entry for f.
func (d *Directory) Get(f format.ID) (Entry, bool) {
	e, ok := d.entries[f]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Has reports whether f is present in any state.
func (d *Directory) Has(f format.ID) bool {
	_, ok := d.entries[f]
	return ok
}

// Available reports whether f is present and readable without a render.
func (d *Directory) Available(f format.ID) bool {
	e, ok := d.entries[f]
	return ok && e.Available()
}

// Store replaces the bytes of f and marks it Stored. It reports false when f
// is absent.
func (d *Directory) Store(f format.ID, data []byte) bool {
	e, ok := d.entries[f]
	if !ok {
		return false
	}
	e.Origin, e.From, e.Data = Stored, 0, data
	return true
}

// Remove deletes f.
func (d *Directory) Remove(f format.ID) {
	if _, ok := d.entries[f]; !ok {
		return
	}
	delete(d.entries, f)
	d.order = slices.DeleteFunc(d.order, func(id format.ID) bool { return id == f })
}

// Next returns the format following after in directory order; after == 0
// returns the first. It returns 0 at the end or when after is absent.
func (d *Directory) Next(after format.ID) format.ID {
	if after == 0 {
		if len(d.order) == 0 {
			return 0
		}
		return d.order[0]
	}
	i := slices.Index(d.order, after)
	if i < 0 || i+1 >= len(d.order) {
		return 0
	}
	return d.order[i+1]
}

// Len returns the number of entries.
func (d *Directory) Len() int { return len(d.order) }

// IDs returns the format ids in directory order.
func (d *Directory) IDs() []format.ID { return slices.Clone(d.order) }

// Entries returns copies of all entries in directory order.
func (d *Directory) Entries() []Entry {
	out := make([]Entry, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.entries[id])
	}
	return out
}

// Reset removes every entry.
func (d *Directory) Reset() {
	d.order = d.order[:0]
	clear(d.entries)
}
