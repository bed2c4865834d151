// Package object defines the live, in-process clipboard objects that the codec
// layer flattens for transfer and reconstructs from received bytes.
//
// Object is a closed sum type: Global for raw buffers and custom formats,
// *Bitmap, *Palette, *MetafilePict and EnhMetafile for the GDI-backed formats.
// Codecs dispatch on the concrete type, never on raw memory layout.
package object

import "math"

// Object is a live clipboard object. The set of implementations is closed.
type Object interface {
	isObject()
}

// Handle is an opaque reference to a GDI-owned resource (metafile, enhanced
// metafile). Zero is the null handle.
type Handle uint32

// Global is a plain memory buffer: text, custom formats, locale tags.
type Global []byte

// Bitmap is a device-dependent bitmap. Bits holds abs(Height) rows of
// WidthBytes bytes each, top row first.
type Bitmap struct {
	Type       int32
	Width      int32
	Height     int32
	WidthBytes int32
	Planes     uint16
	BitsPixel  uint16

	// Section marks a bitmap whose pixels live in an externally allocated
	// DIB section; those buffers are only valid in the owning process.
	Section bool

	Bits []byte
}

// PaletteEntry is one logical palette colour.
type PaletteEntry struct {
	Red   uint8
	Green uint8
	Blue  uint8
	Flags uint8
}

// Palette is a logical colour palette.
type Palette struct {
	Entries []PaletteEntry
}

// MetafilePict describes a classic metafile picture. HMF refers to the
// metafile bits held by the GDI bridge.
type MetafilePict struct {
	MapMode int32
	XExt    int32
	YExt    int32
	HMF     Handle
}

// EnhMetafile is a handle to an enhanced metafile held by the GDI bridge.
type EnhMetafile Handle

func (Global) isObject()        {}
func (*Bitmap) isObject()       {}
func (*Palette) isObject()      {}
func (*MetafilePict) isObject() {}
func (EnhMetafile) isObject()   {}

// Mapping modes used by metafile pictures.
const (
	MMText      int32 = 1
	MMIsotropic int32 = 7
	MMAniso     int32 = 8
)

// MaxWidth is the widest bitmap whose row, at 32 bits per pixel, still has
// a stride that fits in an int32.
const MaxWidth int32 = (math.MaxInt32 - 31) / 32

// ValidSize reports whether width and height describe a bitmap whose
// strides and row count are representable: width in (0, MaxWidth] and a
// non-zero height other than MinInt32.
func ValidSize(width, height int32) bool {
	return width > 0 && width <= MaxWidth && height != 0 && height != math.MinInt32
}

// DDBStride returns the row size of a device-dependent bitmap: rows are padded
// to a 2-byte boundary. The result is -1 when it does not fit in an int32.
func DDBStride(width int32, bitsPixel uint16) int32 {
	return stride(width, bitsPixel, 15, 1)
}

// DIBStride returns the row size of a device-independent bitmap: rows are
// padded to a 4-byte boundary. The result is -1 when it does not fit in an
// int32.
func DIBStride(width int32, bitCount uint16) int32 {
	return stride(width, bitCount, 31, 3)
}

func stride(width int32, bits uint16, round, mask int64) int32 {
	n := ((int64(width)*int64(bits) + round) >> 3) &^ mask
	if n < 0 || n > math.MaxInt32 {
		return -1
	}
	return int32(n)
}

// AbsHeight returns the row count of a top-down or bottom-up bitmap.
// MinInt32 has no positive counterpart and is reported as MaxInt32.
func AbsHeight(h int32) int32 {
	switch {
	case h == math.MinInt32:
		return math.MaxInt32
	case h < 0:
		return -h
	}
	return h
}

// BitsSize returns the byte length of the pixel buffer implied by the
// bitmap's width, depth and height, or -1 when the dimensions are invalid.
func (b *Bitmap) BitsSize() int64 {
	st := DDBStride(b.Width, b.BitsPixel)
	if st < 0 || !ValidSize(b.Width, b.Height) {
		return -1
	}
	return int64(AbsHeight(b.Height)) * int64(st)
}

// NewBitmap returns a bitmap with zeroed pixels and consistent stride. Invalid
// dimensions give a bitmap without pixels, which the codec refuses.
func NewBitmap(width, height int32, bitsPixel uint16) *Bitmap {
	bm := &Bitmap{
		Width:      width,
		Height:     height,
		WidthBytes: DDBStride(width, bitsPixel),
		Planes:     1,
		BitsPixel:  bitsPixel,
	}
	bm.Bits = make([]byte, max(bm.BitsSize(), 0))
	return bm
}
