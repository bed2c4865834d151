// Package codec converts live clipboard objects to the flat byte form held by
// the arbiter and back.
//
// Layouts are little-endian and fixed per format:
//
//	Bitmap        [ 28-byte header ][ abs(height) × stride pixel bits ]
//	Palette       [ version u16 | count u16 ][ count × RGBX ]
//	MetafilePict  [ mm | xExt | yExt | hMF ][ classic metafile bits ]
//	EnhMetafile   [ enhanced metafile bits ]
//	anything else [ raw buffer ]
//
// Received bytes are untrusted. Unmarshal validates every declared size
// against the byte count actually received and fails with MalformedData
// rather than building a truncated object.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"go.klb.dev/clipshare/internal/errs"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/gdi"
	"go.klb.dev/clipshare/internal/object"
)

var le = binary.LittleEndian

// Header sizes of the fixed-layout formats.
const (
	BitmapHeaderSize       = 28
	PaletteHeaderSize      = 4
	PaletteEntrySize       = 4
	MetafilePictHeaderSize = 16

	paletteVersion = 0x300
)

// Codec marshals and unmarshals clipboard objects. The zero value cannot
// handle metafile formats; use New.
type Codec struct {
	mf gdi.Metafiles
}

// New returns a Codec using mf for metafile bit conversion.
func New(mf gdi.Metafiles) *Codec {
	return &Codec{mf: mf}
}

// Marshal flattens obj for storage under format f.
func (c *Codec) Marshal(f format.ID, obj object.Object) ([]byte, error) {
	if obj == nil {
		return nil, errs.New("marshal", f, errs.KindInvalidObject, "nil object")
	}
	switch f {
	case format.Bitmap, format.DSPBitmap:
		bm, ok := obj.(*object.Bitmap)
		if !ok {
			return nil, mismatch("marshal", f, obj)
		}
		return marshalBitmap(f, bm)
	case format.Palette:
		pal, ok := obj.(*object.Palette)
		if !ok {
			return nil, mismatch("marshal", f, obj)
		}
		return marshalPalette(pal)
	case format.EnhMetafile, format.DSPEnhMetafile:
		h, ok := obj.(object.EnhMetafile)
		if !ok {
			return nil, mismatch("marshal", f, obj)
		}
		return c.marshalEnhMetafile(f, h)
	case format.MetafilePict, format.DSPMetafilePict:
		mf, ok := obj.(*object.MetafilePict)
		if !ok {
			return nil, mismatch("marshal", f, obj)
		}
		return c.marshalMetafilePict(f, mf)
	default:
		g, ok := obj.(object.Global)
		if !ok {
			return nil, mismatch("marshal", f, obj)
		}
		return marshalGlobal(f, g)
	}
}

// Unmarshal rebuilds the live object for format f from received bytes.
func (c *Codec) Unmarshal(f format.ID, data []byte) (object.Object, error) {
	var (
		obj object.Object
		err error
	)
	switch f {
	case format.Bitmap:
		obj, err = unmarshalBitmap(data)
	case format.DSPBitmap:
		// Display bitmaps are not rebuilt across processes; hand back
		// the raw bytes.
		obj = unmarshalGlobal(data)
	case format.Palette:
		obj, err = unmarshalPalette(data)
	case format.EnhMetafile, format.DSPEnhMetafile:
		obj, err = c.unmarshalEnhMetafile(f, data)
	case format.MetafilePict, format.DSPMetafilePict:
		obj, err = c.unmarshalMetafilePict(f, data)
	default:
		obj = unmarshalGlobal(data)
	}
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func mismatch(op string, f format.ID, obj object.Object) error {
	return errs.New(op, f, errs.KindInvalidObject, fmt.Sprintf("unexpected object %T", obj))
}

// ── generic buffers ────────────────────────────────────────────────────────

func marshalGlobal(f format.ID, g object.Global) ([]byte, error) {
	if len(g) == 0 {
		return nil, errs.New("marshal", f, errs.KindInvalidObject, "empty buffer")
	}
	if uint64(len(g)) > math.MaxUint32 {
		return nil, errs.New("marshal", f, errs.KindInvalidObject,
			fmt.Sprintf("%d bytes exceeds the wire size type", len(g)))
	}
	out := make([]byte, len(g))
	copy(out, g)
	return out, nil
}

func unmarshalGlobal(data []byte) object.Global {
	out := make(object.Global, len(data))
	copy(out, data)
	return out
}

// ── bitmaps ────────────────────────────────────────────────────────────────

func validDepth(bpp uint16) bool {
	switch bpp {
	case 1, 4, 8, 16, 24, 32:
		return true
	}
	return false
}

func marshalBitmap(f format.ID, bm *object.Bitmap) ([]byte, error) {
	if bm.Section {
		return nil, errs.New("marshal", f, errs.KindInvalidObject, "DIB section bitmaps cannot leave the process")
	}
	if !object.ValidSize(bm.Width, bm.Height) || !validDepth(bm.BitsPixel) {
		return nil, errs.New("marshal", f, errs.KindInvalidObject,
			fmt.Sprintf("bitmap %dx%d at %d bpp", bm.Width, bm.Height, bm.BitsPixel))
	}
	size := bm.BitsSize()
	if size < 0 || size > math.MaxUint32-BitmapHeaderSize {
		return nil, errs.New("marshal", f, errs.KindInvalidObject,
			fmt.Sprintf("bitmap %dx%d at %d bpp is too large", bm.Width, bm.Height, bm.BitsPixel))
	}
	if int64(len(bm.Bits)) < size {
		return nil, errs.New("marshal", f, errs.KindInvalidObject,
			fmt.Sprintf("pixel buffer has %d bytes, need %d", len(bm.Bits), size))
	}
	planes := bm.Planes
	if planes == 0 {
		planes = 1
	}

	out := make([]byte, BitmapHeaderSize+size)
	le.PutUint32(out[0:], uint32(bm.Type))
	le.PutUint32(out[4:], uint32(bm.Width))
	le.PutUint32(out[8:], uint32(bm.Height))
	le.PutUint32(out[12:], uint32(object.DDBStride(bm.Width, bm.BitsPixel)))
	le.PutUint16(out[16:], planes)
	le.PutUint16(out[18:], bm.BitsPixel)
	le.PutUint64(out[20:], 0) // bits pointer: never sent
	copy(out[BitmapHeaderSize:], bm.Bits[:size])
	return out, nil
}

func unmarshalBitmap(data []byte) (*object.Bitmap, error) {
	fail := func(detail string) error {
		return errs.New("unmarshal", format.Bitmap, errs.KindMalformedData, detail)
	}
	if len(data) < BitmapHeaderSize {
		return nil, fail(fmt.Sprintf("%d bytes, header needs %d", len(data), BitmapHeaderSize))
	}
	bm := &object.Bitmap{
		Type:       int32(le.Uint32(data[0:])),
		Width:      int32(le.Uint32(data[4:])),
		Height:     int32(le.Uint32(data[8:])),
		WidthBytes: int32(le.Uint32(data[12:])),
		Planes:     le.Uint16(data[16:]),
		BitsPixel:  le.Uint16(data[18:]),
	}
	if le.Uint64(data[20:]) != 0 {
		// A DIB section's buffer only exists in the process that created it.
		return nil, fail("external bits pointer set")
	}
	if !object.ValidSize(bm.Width, bm.Height) || !validDepth(bm.BitsPixel) {
		return nil, fail(fmt.Sprintf("bitmap %dx%d at %d bpp", bm.Width, bm.Height, bm.BitsPixel))
	}
	if bm.WidthBytes <= 0 || bm.WidthBytes != object.DDBStride(bm.Width, bm.BitsPixel) {
		return nil, fail(fmt.Sprintf("stride %d inconsistent with width %d at %d bpp", bm.WidthBytes, bm.Width, bm.BitsPixel))
	}
	need := int64(BitmapHeaderSize) + int64(bm.WidthBytes)*int64(object.AbsHeight(bm.Height))
	if need <= BitmapHeaderSize || int64(len(data)) < need {
		return nil, fail(fmt.Sprintf("%d bytes, need %d", len(data), need))
	}
	bm.Bits = make([]byte, need-BitmapHeaderSize)
	copy(bm.Bits, data[BitmapHeaderSize:need])
	return bm, nil
}

// ── palettes ───────────────────────────────────────────────────────────────

func marshalPalette(pal *object.Palette) ([]byte, error) {
	n := len(pal.Entries)
	if n == 0 || n > math.MaxUint16 {
		return nil, errs.New("marshal", format.Palette, errs.KindInvalidObject, fmt.Sprintf("%d palette entries", n))
	}
	out := make([]byte, PaletteHeaderSize+n*PaletteEntrySize)
	le.PutUint16(out[0:], paletteVersion)
	le.PutUint16(out[2:], uint16(n))
	for i, e := range pal.Entries {
		p := out[PaletteHeaderSize+i*PaletteEntrySize:]
		p[0], p[1], p[2], p[3] = e.Red, e.Green, e.Blue, e.Flags
	}
	return out, nil
}

func unmarshalPalette(data []byte) (*object.Palette, error) {
	if len(data) < PaletteHeaderSize {
		return nil, errs.New("unmarshal", format.Palette, errs.KindMalformedData,
			fmt.Sprintf("%d bytes, header needs %d", len(data), PaletteHeaderSize))
	}
	n := int(le.Uint16(data[2:]))
	if len(data) < PaletteHeaderSize+n*PaletteEntrySize {
		return nil, errs.New("unmarshal", format.Palette, errs.KindMalformedData,
			fmt.Sprintf("%d entries need %d bytes, have %d", n, PaletteHeaderSize+n*PaletteEntrySize, len(data)))
	}
	pal := &object.Palette{Entries: make([]object.PaletteEntry, n)}
	for i := range pal.Entries {
		p := data[PaletteHeaderSize+i*PaletteEntrySize:]
		pal.Entries[i] = object.PaletteEntry{Red: p[0], Green: p[1], Blue: p[2], Flags: p[3]}
	}
	return pal, nil
}

// ── metafiles ──────────────────────────────────────────────────────────────

func (c *Codec) metafiles(op string, f format.ID) (gdi.Metafiles, error) {
	if c == nil || c.mf == nil {
		return nil, errs.New(op, f, errs.KindNotAvailable, "no metafile bridge")
	}
	return c.mf, nil
}

func (c *Codec) marshalEnhMetafile(f format.ID, h object.EnhMetafile) ([]byte, error) {
	mf, err := c.metafiles("marshal", f)
	if err != nil {
		return nil, err
	}
	bits, err := mf.EnhMetaFileBits(h)
	if err != nil {
		return nil, errs.Wrap("marshal", f, errs.KindInvalidObject, err)
	}
	if len(bits) == 0 {
		return nil, errs.New("marshal", f, errs.KindInvalidObject, "empty enhanced metafile")
	}
	return bits, nil
}

func (c *Codec) unmarshalEnhMetafile(f format.ID, data []byte) (object.EnhMetafile, error) {
	mf, err := c.metafiles("unmarshal", f)
	if err != nil {
		return 0, err
	}
	h, err := mf.SetEnhMetaFileBits(data)
	if err != nil {
		return 0, errs.Wrap("unmarshal", f, errs.KindMalformedData, err)
	}
	return h, nil
}

func (c *Codec) marshalMetafilePict(f format.ID, pict *object.MetafilePict) ([]byte, error) {
	mf, err := c.metafiles("marshal", f)
	if err != nil {
		return nil, err
	}
	bits, err := mf.MetaFileBits(pict.HMF)
	if err != nil {
		return nil, errs.Wrap("marshal", f, errs.KindInvalidObject, err)
	}
	if len(bits) == 0 {
		return nil, errs.New("marshal", f, errs.KindInvalidObject, "empty metafile")
	}
	out := make([]byte, MetafilePictHeaderSize+len(bits))
	le.PutUint32(out[0:], uint32(pict.MapMode))
	le.PutUint32(out[4:], uint32(pict.XExt))
	le.PutUint32(out[8:], uint32(pict.YExt))
	le.PutUint32(out[12:], uint32(pict.HMF))
	copy(out[MetafilePictHeaderSize:], bits)
	return out, nil
}

func (c *Codec) unmarshalMetafilePict(f format.ID, data []byte) (*object.MetafilePict, error) {
	if len(data) <= MetafilePictHeaderSize {
		return nil, errs.New("unmarshal", f, errs.KindMalformedData,
			fmt.Sprintf("%d bytes, need more than the %d-byte header", len(data), MetafilePictHeaderSize))
	}
	mf, err := c.metafiles("unmarshal", f)
	if err != nil {
		return nil, err
	}
	hmf, err := mf.SetMetaFileBits(data[MetafilePictHeaderSize:])
	if err != nil {
		return nil, errs.Wrap("unmarshal", f, errs.KindMalformedData, err)
	}
	return &object.MetafilePict{
		MapMode: int32(le.Uint32(data[0:])),
		XExt:    int32(le.Uint32(data[4:])),
		YExt:    int32(le.Uint32(data[8:])),
		HMF:     hmf,
	}, nil
}
