package gdi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipshare/internal/object"
)

func TestMetafileHandles(t *testing.T) {
	m := NewMemory()

	h, err := m.SetMetaFileBits([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	bits, err := m.MetaFileBits(h)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, bits)

	_, err = m.MetaFileBits(h + 100)
	assert.ErrorIs(t, err, ErrBadHandle)

	_, err = m.SetMetaFileBits(nil)
	assert.ErrorIs(t, err, ErrEmptyBits)
}

func TestEnhMetafileFrame(t *testing.T) {
	m := NewMemory()
	frame := Rect{Left: 0, Top: 0, Right: 2100, Bottom: 2970}

	h, err := m.SetEnhMetaFileBits(NewEnhMetaFileBits(frame, []byte("drawing")))
	require.NoError(t, err)

	got, err := m.EnhMetaFileFrame(h)
	require.NoError(t, err)
	assert.Equal(t, frame, got)
	assert.Equal(t, int32(2100), got.Width())
	assert.Equal(t, int32(2970), got.Height())
}

func TestSetEnhMetaFileBitsRejectsGarbage(t *testing.T) {
	m := NewMemory()
	_, err := m.SetEnhMetaFileBits(make([]byte, 100))
	assert.ErrorIs(t, err, ErrBadMetafile)
	assert.Zero(t, m.Len())
}

func TestWinMetaFileBridgeIsLossless(t *testing.T) {
	m := NewMemory()
	payload := make([]byte, 3*wmfChunk+17) // several comment chunks
	for i := range payload {
		payload[i] = byte(i)
	}
	emf := NewEnhMetaFileBits(Rect{Right: 100, Bottom: 50}, payload)
	h, err := m.SetEnhMetaFileBits(emf)
	require.NoError(t, err)

	wmf, err := m.WinMetaFileBits(h, object.MMIsotropic)
	require.NoError(t, err)
	assert.Zero(t, len(wmf)%2)

	back, err := m.SetWinMetaFileBits(wmf, &object.MetafilePict{MapMode: object.MMIsotropic})
	require.NoError(t, err)
	bits, err := m.EnhMetaFileBits(back)
	require.NoError(t, err)
	assert.Equal(t, emf, bits)
}

func TestSetWinMetaFileBitsWrapsForeignWMF(t *testing.T) {
	m := NewMemory()
	foreign := []byte{1, 0, 9, 0, 0, 3, 12, 0, 0, 0, 0, 0, 3, 0, 0, 0, 0, 0, 3, 0, 0, 0, 0, 0}

	h, err := m.SetWinMetaFileBits(foreign, &object.MetafilePict{MapMode: object.MMAniso, XExt: 640, YExt: 480})
	require.NoError(t, err)
	frame, err := m.EnhMetaFileFrame(h)
	require.NoError(t, err)
	assert.Equal(t, Rect{Right: 640, Bottom: 480}, frame)
}

func TestDIBRoundTrip(t *testing.T) {
	for _, bpp := range []uint16{1, 4, 8, 16, 24, 32} {
		bm := object.NewBitmap(7, 3, bpp)
		stride := int(bm.WidthBytes)
		used := (7*int(bpp) + 7) / 8
		for y := range 3 {
			for x := range used {
				bm.Bits[y*stride+x] = byte(y*31 + x + 1)
			}
		}

		for _, hdr := range []int{InfoHeaderSize, V5HeaderSize} {
			dib, err := GetDIBits(bm, hdr)
			require.NoError(t, err, "bpp %d", bpp)

			h, err := ParseDIBHeader(dib)
			require.NoError(t, err)
			assert.Equal(t, uint32(hdr), h.Size)
			assert.Equal(t, int32(3), h.Height)

			back, err := CreateDIBitmap(dib)
			require.NoError(t, err)
			assert.Equal(t, bm.Bits, back.Bits, "bpp %d header %d", bpp, hdr)
			assert.Equal(t, bm.WidthBytes, back.WidthBytes)
		}
	}
}

func TestCreateDIBitmapTopDown(t *testing.T) {
	bm := object.NewBitmap(2, 2, 8)
	copy(bm.Bits, []byte{1, 2, 3, 4})
	dib, err := GetDIBits(bm, InfoHeaderSize)
	require.NoError(t, err)

	// flip to a top-down DIB by negating the height and reversing rows
	off := 40 + 256*4
	le.PutUint32(dib[8:], uint32(0xfffffffe))
	row0 := append([]byte(nil), dib[off:off+4]...)
	copy(dib[off:off+4], dib[off+4:off+8])
	copy(dib[off+4:off+8], row0)

	back, err := CreateDIBitmap(dib)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, back.Bits)
}

func TestCreateDIBitmapRejectsShortBits(t *testing.T) {
	bm := object.NewBitmap(4, 4, 24)
	dib, err := GetDIBits(bm, InfoHeaderSize)
	require.NoError(t, err)

	_, err = CreateDIBitmap(dib[:len(dib)-1])
	assert.ErrorIs(t, err, ErrBadDIB)
}

func TestRewriteDIBHeader(t *testing.T) {
	bm := object.NewBitmap(3, 2, 8)
	copy(bm.Bits, []byte{9, 8, 7, 0, 6, 5, 4, 0})
	dib, err := GetDIBits(bm, InfoHeaderSize)
	require.NoError(t, err)

	v5, err := RewriteDIBHeader(dib, V5HeaderSize)
	require.NoError(t, err)
	h, err := ParseDIBHeader(v5)
	require.NoError(t, err)
	assert.Equal(t, uint32(V5HeaderSize), h.Size)
	assert.Equal(t, len(dib)-InfoHeaderSize+V5HeaderSize, len(v5))
	assert.Equal(t, dib[InfoHeaderSize:], v5[V5HeaderSize:])

	back, err := RewriteDIBHeader(v5, InfoHeaderSize)
	require.NoError(t, err)
	assert.Equal(t, dib, back)
}

func TestRewriteDIBHeaderNeedsBits(t *testing.T) {
	bm := object.NewBitmap(1, 1, 32)
	dib, err := GetDIBits(bm, InfoHeaderSize)
	require.NoError(t, err)

	_, err = RewriteDIBHeader(dib[:InfoHeaderSize], V5HeaderSize)
	assert.ErrorIs(t, err, ErrBadDIB)
}

func dibHeader(width, height int32, bpp uint16) []byte {
	dib := make([]byte, InfoHeaderSize+64)
	le.PutUint32(dib[0:], InfoHeaderSize)
	le.PutUint32(dib[4:], uint32(width))
	le.PutUint32(dib[8:], uint32(height))
	le.PutUint16(dib[12:], 1)
	le.PutUint16(dib[14:], bpp)
	return dib
}

func TestCreateDIBitmapRejectsHostileHeaders(t *testing.T) {
	tests := []struct {
		name   string
		width  int32
		height int32
		bpp    uint16
	}{
		{"width overflows stride", math.MaxInt32, 1, 32},
		{"width past limit", object.MaxWidth + 1, 1, 24},
		{"min height", 4, math.MinInt32, 32},
		{"huge height", 4, math.MaxInt32, 32},
		{"top-down huge height", 4, -math.MaxInt32, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bm, err := CreateDIBitmap(dibHeader(tt.width, tt.height, tt.bpp))
			assert.ErrorIs(t, err, ErrBadDIB)
			assert.Nil(t, bm)
		})
	}
}

func TestGetDIBitsRejectsInconsistentBitmap(t *testing.T) {
	_, err := GetDIBits(&object.Bitmap{Width: math.MaxInt32, Height: 1, BitsPixel: 32}, InfoHeaderSize)
	assert.ErrorIs(t, err, ErrBadDIB)
	_, err = GetDIBits(&object.Bitmap{Width: 2, Height: math.MinInt32, BitsPixel: 8}, InfoHeaderSize)
	assert.ErrorIs(t, err, ErrBadDIB)
}
