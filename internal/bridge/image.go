package bridge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image/png"

	"golang.org/x/image/bmp"

	"go.klb.dev/clipshare/internal/gdi"
	"go.klb.dev/clipshare/internal/object"
)

// fileHeaderSize is the BITMAPFILEHEADER that turns a packed DIB into a
// .bmp file.
const fileHeaderSize = 14

// pngToDIB converts a PNG image into a packed DIB.
func pngToDIB(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode bmp: %w", err)
	}
	if buf.Len() <= fileHeaderSize {
		return nil, fmt.Errorf("encode bmp: %d bytes", buf.Len())
	}
	return buf.Bytes()[fileHeaderSize:], nil
}

// dibToPNG converts a packed DIB into a PNG image.
func dibToPNG(dib []byte) ([]byte, error) {
	h, err := gdi.ParseDIBHeader(dib)
	if err != nil {
		return nil, err
	}
	stride := object.DIBStride(h.Width, h.BitCount)
	if !object.ValidSize(h.Width, h.Height) || stride <= 0 ||
		int64(len(dib)-h.InfoSize()) < int64(stride)*int64(object.AbsHeight(h.Height)) {
		return nil, fmt.Errorf("%w: %dx%d at %d bpp in %d bytes", gdi.ErrBadDIB, h.Width, h.Height, h.BitCount, len(dib))
	}
	file := make([]byte, fileHeaderSize+len(dib))
	file[0], file[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(file[2:], uint32(len(file)))
	binary.LittleEndian.PutUint32(file[10:], uint32(fileHeaderSize+h.InfoSize()))
	copy(file[fileHeaderSize:], dib)

	img, err := bmp.Decode(bytes.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("decode dib: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
