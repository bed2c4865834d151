package gdi

import (
	"errors"
	"fmt"

	"go.klb.dev/clipshare/internal/object"
)

// DIB header sizes.
const (
	CoreHeaderSize = 12
	InfoHeaderSize = 40
	V5HeaderSize   = 124
)

// Compression values understood by the converters.
const (
	biRGB       = 0
	biBitfields = 3
)

const (
	lcsSRGB     = 0x73524742
	lcsGMImages = 4
)

var ErrBadDIB = errors.New("gdi: malformed DIB")

// DIBHeader is the subset of a BITMAPINFOHEADER the converters need.
type DIBHeader struct {
	Size        uint32
	Width       int32
	Height      int32
	Planes      uint16
	BitCount    uint16
	Compression uint32
	ClrUsed     uint32
}

// ParseDIBHeader decodes the header at the start of a packed DIB.
func ParseDIBHeader(dib []byte) (DIBHeader, error) {
	if len(dib) < 4 {
		return DIBHeader{}, fmt.Errorf("%w: %d bytes", ErrBadDIB, len(dib))
	}
	size := le.Uint32(dib)
	if size == CoreHeaderSize {
		if len(dib) < CoreHeaderSize {
			return DIBHeader{}, fmt.Errorf("%w: short core header", ErrBadDIB)
		}
		return DIBHeader{
			Size:     size,
			Width:    int32(le.Uint16(dib[4:])),
			Height:   int32(le.Uint16(dib[6:])),
			Planes:   le.Uint16(dib[8:]),
			BitCount: le.Uint16(dib[10:]),
		}, nil
	}
	if size < InfoHeaderSize || uint64(size) > uint64(len(dib)) {
		return DIBHeader{}, fmt.Errorf("%w: header size %d, have %d bytes", ErrBadDIB, size, len(dib))
	}
	return DIBHeader{
		Size:        size,
		Width:       int32(le.Uint32(dib[4:])),
		Height:      int32(le.Uint32(dib[8:])),
		Planes:      le.Uint16(dib[12:]),
		BitCount:    le.Uint16(dib[14:]),
		Compression: le.Uint32(dib[16:]),
		ClrUsed:     le.Uint32(dib[32:]),
	}, nil
}

// Colors returns the number of colour table entries following the header.
func (h DIBHeader) Colors() int {
	if h.Size == CoreHeaderSize {
		if h.BitCount <= 8 {
			return 1 << h.BitCount
		}
		return 0
	}
	colors := int(min(h.ClrUsed, 256))
	if colors == 0 && h.BitCount <= 8 {
		colors = 1 << h.BitCount
	}
	return colors
}

// InfoSize returns the size of the header plus bitfield masks and colour
// table, i.e. the offset of the pixel bits in a packed DIB.
func (h DIBHeader) InfoSize() int {
	if h.Size == CoreHeaderSize {
		return CoreHeaderSize + h.Colors()*3
	}
	size := int(h.Size)
	if h.Compression == biBitfields && h.Size == InfoHeaderSize {
		size += 12
	}
	return size + h.Colors()*4
}

func (h DIBHeader) validate() error {
	if !object.ValidSize(h.Width, h.Height) {
		return fmt.Errorf("%w: %dx%d", ErrBadDIB, h.Width, h.Height)
	}
	switch h.BitCount {
	case 1, 4, 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: unsupported depth %d", ErrBadDIB, h.BitCount)
	}
	switch h.Compression {
	case biRGB:
	case biBitfields:
		if h.BitCount != 16 && h.BitCount != 32 {
			return fmt.Errorf("%w: bitfields at depth %d", ErrBadDIB, h.BitCount)
		}
	default:
		return fmt.Errorf("%w: unsupported compression %d", ErrBadDIB, h.Compression)
	}
	return nil
}

// CreateDIBitmap builds a device-dependent bitmap from a packed DIB. The
// bitmap keeps the DIB's depth; its rows are stored top row first.
func CreateDIBitmap(dib []byte) (*object.Bitmap, error) {
	h, err := ParseDIBHeader(dib)
	if err != nil {
		return nil, err
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	rows := object.AbsHeight(h.Height)
	srcStride := int(object.DIBStride(h.Width, h.BitCount))
	if srcStride <= 0 {
		return nil, fmt.Errorf("%w: %d pixels at %d bpp", ErrBadDIB, h.Width, h.BitCount)
	}
	off := h.InfoSize()
	if need := int64(srcStride) * int64(rows); int64(len(dib)-off) < need {
		return nil, fmt.Errorf("%w: need %d bytes of bits, have %d", ErrBadDIB, need, len(dib)-off)
	}

	bm := object.NewBitmap(h.Width, rows, h.BitCount)
	dst := int(bm.WidthBytes)
	for y := range int(rows) {
		src := y
		if h.Height > 0 { // bottom-up
			src = int(rows) - 1 - y
		}
		copy(bm.Bits[y*dst:(y+1)*dst], dib[off+src*srcStride:])
	}
	return bm, nil
}

// GetDIBits renders bm as a bottom-up packed DIB with either a
// BITMAPINFOHEADER (InfoHeaderSize) or a BITMAPV5HEADER (V5HeaderSize).
// Palettized depths get a grey-ramp colour table.
func GetDIBits(bm *object.Bitmap, headerSize int) ([]byte, error) {
	if bm == nil || bm.Width <= 0 || bm.Height == 0 {
		return nil, fmt.Errorf("%w: empty bitmap", ErrBadDIB)
	}
	if headerSize != InfoHeaderSize && headerSize != V5HeaderSize {
		return nil, fmt.Errorf("%w: header size %d", ErrBadDIB, headerSize)
	}
	h := DIBHeader{
		Size:     uint32(headerSize),
		Width:    bm.Width,
		Height:   object.AbsHeight(bm.Height),
		Planes:   1,
		BitCount: bm.BitsPixel,
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	if size := bm.BitsSize(); size < 0 || int64(len(bm.Bits)) < size {
		return nil, fmt.Errorf("%w: bitmap has %d bytes of bits, need %d", ErrBadDIB, len(bm.Bits), bm.BitsSize())
	}

	rows := int(h.Height)
	dstStride := int(object.DIBStride(h.Width, h.BitCount))
	srcStride := int(object.DDBStride(bm.Width, bm.BitsPixel))
	off := h.InfoSize()
	out := make([]byte, off+dstStride*rows)

	le.PutUint32(out[0:], h.Size)
	le.PutUint32(out[4:], uint32(h.Width))
	le.PutUint32(out[8:], uint32(h.Height))
	le.PutUint16(out[12:], 1)
	le.PutUint16(out[14:], h.BitCount)
	le.PutUint32(out[16:], biRGB)
	le.PutUint32(out[20:], uint32(dstStride*rows))
	if headerSize == V5HeaderSize {
		le.PutUint32(out[56:], lcsSRGB)
		le.PutUint32(out[108:], lcsGMImages)
	}

	if n := h.Colors(); n > 0 {
		step := 255 / (n - 1)
		for i := range n {
			v := byte(i * step)
			p := int(h.Size) + i*4
			out[p], out[p+1], out[p+2] = v, v, v
		}
	}

	for y := range rows {
		dst := off + (rows-1-y)*dstStride
		copy(out[dst:dst+srcStride], bm.Bits[y*srcStride:(y+1)*srcStride])
	}
	return out, nil
}

// RewriteDIBHeader converts a packed DIB between header versions, keeping the
// bitfield masks, colour table and pixel bits. headerSize selects the target:
// InfoHeaderSize or V5HeaderSize.
func RewriteDIBHeader(dib []byte, headerSize int) ([]byte, error) {
	if headerSize != InfoHeaderSize && headerSize != V5HeaderSize {
		return nil, fmt.Errorf("%w: header size %d", ErrBadDIB, headerSize)
	}
	h, err := ParseDIBHeader(dib)
	if err != nil {
		return nil, err
	}
	if h.Size == CoreHeaderSize {
		return nil, fmt.Errorf("%w: core headers are not converted", ErrBadDIB)
	}
	srcInfo := h.InfoSize()
	if len(dib) <= srcInfo {
		return nil, fmt.Errorf("%w: no pixel bits after %d header bytes", ErrBadDIB, srcInfo)
	}
	bits := dib[srcInfo:]
	colors := h.Colors()

	// Masks follow a 40-byte header and sit inside a V5 header.
	var masks []byte
	if h.Compression == biBitfields {
		if h.Size == InfoHeaderSize {
			masks = dib[InfoHeaderSize : InfoHeaderSize+12]
		} else if h.Size >= 52 {
			masks = dib[40:52]
		}
	}

	dstHeader := headerSize
	if headerSize == InfoHeaderSize && masks != nil {
		dstHeader += 12
	}
	out := make([]byte, dstHeader+colors*4+len(bits))
	copy(out, dib[:min(InfoHeaderSize, int(h.Size))])
	le.PutUint32(out[0:], uint32(headerSize))
	if masks != nil {
		copy(out[InfoHeaderSize:], masks)
	}
	if headerSize == V5HeaderSize {
		if h.Size >= V5HeaderSize {
			copy(out[52:V5HeaderSize], dib[52:V5HeaderSize])
		} else {
			le.PutUint32(out[56:], lcsSRGB)
			le.PutUint32(out[108:], lcsGMImages)
		}
	}
	colorOff := srcInfo - colors*4
	copy(out[dstHeader:], dib[colorOff:srcInfo])
	copy(out[dstHeader+colors*4:], bits)
	return out, nil
}
