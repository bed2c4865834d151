// Package gdi provides the graphics primitives the clipboard codecs and
// synthesis engine treat as opaque converters: metafile bit bridges and
// device-independent bitmap conversion.
//
// Metafiles is the collaborator interface; Memory is an in-process
// implementation that keeps metafile bits in a handle table. It understands
// enough of the EMF and WMF record layouts to bridge one into the other by
// embedding, which is what the clipboard needs to keep a metafile pair
// renderable from either side. It does not rasterize.
package gdi

import (
	"errors"
	"fmt"
	"sync"

	"go.klb.dev/clipshare/internal/object"
)

var (
	ErrBadHandle   = errors.New("gdi: invalid handle")
	ErrEmptyBits   = errors.New("gdi: empty metafile bits")
	ErrBadMetafile = errors.New("gdi: malformed metafile")
)

// Rect is a rectangle in 0.01 mm units, as in an EMF frame.
type Rect struct {
	Left, Top, Right, Bottom int32
}

// Width returns Right-Left.
func (r Rect) Width() int32 { return r.Right - r.Left }

// Height returns Bottom-Top.
func (r Rect) Height() int32 { return r.Bottom - r.Top }

// Metafiles bridges metafile handles and their flat bit streams.
type Metafiles interface {
	// MetaFileBits returns the classic metafile bits behind h.
	MetaFileBits(h object.Handle) ([]byte, error)
	// SetMetaFileBits creates a classic metafile from bits.
	SetMetaFileBits(bits []byte) (object.Handle, error)

	// EnhMetaFileBits returns the enhanced metafile bits behind h.
	EnhMetaFileBits(h object.EnhMetafile) ([]byte, error)
	// SetEnhMetaFileBits creates an enhanced metafile from bits.
	SetEnhMetaFileBits(bits []byte) (object.EnhMetafile, error)
	// EnhMetaFileFrame returns the picture frame recorded in the EMF header.
	EnhMetaFileFrame(h object.EnhMetafile) (Rect, error)

	// WinMetaFileBits converts an enhanced metafile to classic metafile bits
	// for the given mapping mode.
	WinMetaFileBits(h object.EnhMetafile, mapMode int32) ([]byte, error)
	// SetWinMetaFileBits converts classic metafile bits to an enhanced
	// metafile using pict for mapping mode and extent.
	SetWinMetaFileBits(bits []byte, pict *object.MetafilePict) (object.EnhMetafile, error)
}

// Memory is an in-process Metafiles implementation.
type Memory struct {
	mu   sync.Mutex
	next uint32
	wmf  map[object.Handle][]byte
	emf  map[object.EnhMetafile][]byte
}

// NewMemory returns an empty handle table.
func NewMemory() *Memory {
	return &Memory{
		wmf: make(map[object.Handle][]byte),
		emf: make(map[object.EnhMetafile][]byte),
	}
}

func (m *Memory) alloc() uint32 {
	m.next++
	return m.next
}

// MetaFileBits implements Metafiles.
func (m *Memory) MetaFileBits(h object.Handle) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bits, ok := m.wmf[h]
	if !ok {
		return nil, fmt.Errorf("%w: metafile %d", ErrBadHandle, h)
	}
	return clone(bits), nil
}

// SetMetaFileBits implements Metafiles.
func (m *Memory) SetMetaFileBits(bits []byte) (object.Handle, error) {
	if len(bits) == 0 {
		return 0, ErrEmptyBits
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h := object.Handle(m.alloc())
	m.wmf[h] = clone(bits)
	return h, nil
}

// EnhMetaFileBits implements Metafiles.
func (m *Memory) EnhMetaFileBits(h object.EnhMetafile) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bits, ok := m.emf[h]
	if !ok {
		return nil, fmt.Errorf("%w: enhmetafile %d", ErrBadHandle, h)
	}
	return clone(bits), nil
}

// SetEnhMetaFileBits implements Metafiles.
func (m *Memory) SetEnhMetaFileBits(bits []byte) (object.EnhMetafile, error) {
	if len(bits) == 0 {
		return 0, ErrEmptyBits
	}
	if _, err := parseEMFHeader(bits); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h := object.EnhMetafile(m.alloc())
	m.emf[h] = clone(bits)
	return h, nil
}

// EnhMetaFileFrame implements Metafiles.
func (m *Memory) EnhMetaFileFrame(h object.EnhMetafile) (Rect, error) {
	bits, err := m.EnhMetaFileBits(h)
	if err != nil {
		return Rect{}, err
	}
	hdr, err := parseEMFHeader(bits)
	if err != nil {
		return Rect{}, err
	}
	return hdr.frame, nil
}

// WinMetaFileBits implements Metafiles. The EMF is carried inside the WMF as
// a sequence of comment escapes so the reverse conversion is lossless.
func (m *Memory) WinMetaFileBits(h object.EnhMetafile, _ int32) ([]byte, error) {
	bits, err := m.EnhMetaFileBits(h)
	if err != nil {
		return nil, err
	}
	return embedEMF(bits), nil
}

// SetWinMetaFileBits implements Metafiles. A WMF produced by WinMetaFileBits
// yields the original EMF; any other WMF is wrapped in a new EMF whose frame
// is taken from pict.
func (m *Memory) SetWinMetaFileBits(bits []byte, pict *object.MetafilePict) (object.EnhMetafile, error) {
	if len(bits) == 0 {
		return 0, ErrEmptyBits
	}
	if emf, ok := extractEMF(bits); ok {
		return m.SetEnhMetaFileBits(emf)
	}
	frame := Rect{}
	if pict != nil && pict.XExt > 0 && pict.YExt > 0 {
		frame.Right, frame.Bottom = pict.XExt, pict.YExt
	}
	return m.SetEnhMetaFileBits(wrapWMF(bits, frame))
}

// Len returns the number of live handles, for diagnostics.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.wmf) + len(m.emf)
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
