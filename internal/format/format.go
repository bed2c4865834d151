// Package format defines clipboard format identifiers.
//
// Identifiers below Max are the well-known binary formats whose layouts the
// codec layer understands. Identifiers from CustomFirst upward are opaque,
// arbiter-assigned ids for registered formats; their names live with the
// arbiter, not here.
package format

import "fmt"

// ID identifies a clipboard format.
type ID uint32

// Well-known formats.
const (
	Text         ID = 1
	Bitmap       ID = 2
	MetafilePict ID = 3
	SYLK         ID = 4
	DIF          ID = 5
	TIFF         ID = 6
	OEMText      ID = 7
	DIB          ID = 8
	Palette      ID = 9
	PenData      ID = 10
	RIFF         ID = 11
	Wave         ID = 12
	UnicodeText  ID = 13
	EnhMetafile  ID = 14
	HDrop        ID = 15
	Locale       ID = 16
	DIBV5        ID = 17

	// Max bounds the reserved built-in range; it is not a format.
	Max ID = 18
)

// Display formats, rendered by the owner for viewers.
const (
	OwnerDisplay    ID = 0x0080
	DSPText         ID = 0x0081
	DSPBitmap       ID = 0x0082
	DSPMetafilePict ID = 0x0083
	DSPEnhMetafile  ID = 0x008e
)

// Ranges outside the built-in set.
const (
	PrivateFirst ID = 0x0200
	PrivateLast  ID = 0x02ff
	GDIObjFirst  ID = 0x0300
	GDIObjLast   ID = 0x03ff
	CustomFirst  ID = 0xc000
	CustomLast   ID = 0xffff
)

var names = map[ID]string{
	Text:            "CF_TEXT",
	Bitmap:          "CF_BITMAP",
	MetafilePict:    "CF_METAFILEPICT",
	SYLK:            "CF_SYLK",
	DIF:             "CF_DIF",
	TIFF:            "CF_TIFF",
	OEMText:         "CF_OEMTEXT",
	DIB:             "CF_DIB",
	Palette:         "CF_PALETTE",
	PenData:         "CF_PENDATA",
	RIFF:            "CF_RIFF",
	Wave:            "CF_WAVE",
	UnicodeText:     "CF_UNICODETEXT",
	EnhMetafile:     "CF_ENHMETAFILE",
	HDrop:           "CF_HDROP",
	Locale:          "CF_LOCALE",
	DIBV5:           "CF_DIBV5",
	OwnerDisplay:    "CF_OWNERDISPLAY",
	DSPText:         "CF_DSPTEXT",
	DSPBitmap:       "CF_DSPBITMAP",
	DSPMetafilePict: "CF_DSPMETAFILEPICT",
	DSPEnhMetafile:  "CF_DSPENHMETAFILE",
}

// byName is the reverse of names, built once.
var byName = func() map[string]ID {
	m := make(map[string]ID, len(names))
	for id, n := range names {
		m[n] = id
	}
	return m
}()

// Name returns the built-in name of id, or "" for ids without one.
func (id ID) Name() string { return names[id] }

// String formats id for logs: "000d CF_UNICODETEXT" or "c012".
func (id ID) String() string {
	if n, ok := names[id]; ok {
		return fmt.Sprintf("%04x %s", uint32(id), n)
	}
	return fmt.Sprintf("%04x", uint32(id))
}

// Lookup returns the built-in id with the given name ("CF_TEXT").
func Lookup(name string) (ID, bool) {
	id, ok := byName[name]
	return id, ok
}

// BuiltIn reports whether id is in the reserved well-known range.
func (id ID) BuiltIn() bool { return id > 0 && id < Max }

// Custom reports whether id is an arbiter-assigned registered format.
func (id ID) Custom() bool { return id >= CustomFirst && id <= CustomLast }

// Synthesizable reports whether id can be derived from another family member.
func (id ID) Synthesizable() bool {
	_, ok := FamilyOf(id)
	return ok
}
