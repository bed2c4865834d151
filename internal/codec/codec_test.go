package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipshare/internal/errs"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/gdi"
	"go.klb.dev/clipshare/internal/object"
)

func newCodec() (*Codec, *gdi.Memory) {
	mf := gdi.NewMemory()
	return New(mf), mf
}

func TestGlobalRoundTrip(t *testing.T) {
	c, _ := newCodec()
	in := object.Global("hello\x00")

	data, err := c.Marshal(format.Text, in)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\x00"), data)

	out, err := c.Unmarshal(format.Text, data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// the result must not alias the input
	data[0] = 'j'
	assert.Equal(t, object.Global("hello\x00"), out)
}

func TestMarshalRejectsEmptyBuffer(t *testing.T) {
	c, _ := newCodec()
	_, err := c.Marshal(0xc001, object.Global(nil))
	assert.ErrorIs(t, err, errs.ErrInvalidObject)
}

func TestMarshalRejectsWrongObjectType(t *testing.T) {
	c, _ := newCodec()
	_, err := c.Marshal(format.Bitmap, object.Global("x"))
	assert.ErrorIs(t, err, errs.ErrInvalidObject)

	_, err = c.Marshal(format.Text, &object.Palette{})
	assert.ErrorIs(t, err, errs.ErrInvalidObject)

	_, err = c.Marshal(format.Text, nil)
	assert.ErrorIs(t, err, errs.ErrInvalidObject)
}

func TestBitmapRoundTrip(t *testing.T) {
	c, _ := newCodec()
	for _, bpp := range []uint16{1, 4, 8, 16, 24, 32} {
		bm := object.NewBitmap(5, -3, bpp)
		for i := range bm.Bits {
			bm.Bits[i] = byte(i*7 + 1)
		}

		data, err := c.Marshal(format.Bitmap, bm)
		require.NoError(t, err, "bpp %d", bpp)
		assert.Len(t, data, BitmapHeaderSize+int(bm.BitsSize()))

		out, err := c.Unmarshal(format.Bitmap, data)
		require.NoError(t, err)
		got := out.(*object.Bitmap)
		assert.Equal(t, bm.Width, got.Width)
		assert.Equal(t, bm.Height, got.Height)
		assert.Equal(t, bm.WidthBytes, got.WidthBytes)
		assert.Equal(t, bm.BitsPixel, got.BitsPixel)
		assert.Equal(t, bm.Bits, got.Bits)
	}
}

func TestMarshalBitmapRejectsSection(t *testing.T) {
	c, _ := newCodec()
	bm := object.NewBitmap(2, 2, 32)
	bm.Section = true
	_, err := c.Marshal(format.Bitmap, bm)
	assert.ErrorIs(t, err, errs.ErrInvalidObject)
}

func TestUnmarshalBitmapMalformed(t *testing.T) {
	c, _ := newCodec()
	good, err := c.Marshal(format.Bitmap, object.NewBitmap(4, 4, 24))
	require.NoError(t, err)

	cases := map[string]func([]byte) []byte{
		"short header": func(b []byte) []byte { return b[:BitmapHeaderSize-1] },
		"short bits":   func(b []byte) []byte { return b[:len(b)-1] },
		"bits pointer": func(b []byte) []byte { le.PutUint64(b[20:], 0xdeadbeef); return b },
		"stride":       func(b []byte) []byte { le.PutUint32(b[12:], 2); return b },
		"huge height":  func(b []byte) []byte { le.PutUint32(b[8:], 1<<30); return b },
		"zero width":   func(b []byte) []byte { le.PutUint32(b[4:], 0); return b },
		"depth":        func(b []byte) []byte { le.PutUint16(b[18:], 3); return b },

		"width overflow": func(b []byte) []byte {
			le.PutUint32(b[4:], math.MaxInt32)
			le.PutUint32(b[8:], 1)
			le.PutUint32(b[12:], 0xfffffffc) // -4, the wrapped 32-bit stride
			le.PutUint16(b[18:], 32)
			return b
		},
		"negative stride": func(b []byte) []byte {
			le.PutUint32(b[12:], 0xfffffff4)
			return b
		},
		"min height": func(b []byte) []byte {
			h := int32(math.MinInt32)
			le.PutUint32(b[8:], uint32(h))
			return b
		},
		"width past limit": func(b []byte) []byte {
			le.PutUint32(b[4:], uint32(object.MaxWidth+1))
			le.PutUint32(b[12:], uint32(object.DDBStride(object.MaxWidth+1, 24)))
			return b
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			data := mutate(append([]byte(nil), good...))
			obj, err := c.Unmarshal(format.Bitmap, data)
			assert.ErrorIs(t, err, errs.ErrMalformedData)
			assert.Nil(t, obj)
		})
	}
}

func TestMarshalBitmapRejectsHugeDimensions(t *testing.T) {
	c, _ := newCodec()
	for _, bm := range []*object.Bitmap{
		{Width: math.MaxInt32, Height: 1, BitsPixel: 32, Bits: make([]byte, 16)},
		{Width: 4, Height: math.MinInt32, BitsPixel: 8, Bits: make([]byte, 16)},
		{Width: object.MaxWidth, Height: math.MaxInt32, BitsPixel: 32},
	} {
		data, err := c.Marshal(format.Bitmap, bm)
		assert.ErrorIs(t, err, errs.ErrInvalidObject, "%dx%d", bm.Width, bm.Height)
		assert.Nil(t, data)
	}
}

func TestDSPBitmapIsNotRebuilt(t *testing.T) {
	c, _ := newCodec()
	data, err := c.Marshal(format.DSPBitmap, object.NewBitmap(1, 1, 8))
	require.NoError(t, err)

	out, err := c.Unmarshal(format.DSPBitmap, data)
	require.NoError(t, err)
	assert.Equal(t, object.Global(data), out)
}

func TestPaletteRoundTrip(t *testing.T) {
	c, _ := newCodec()
	pal := &object.Palette{Entries: []object.PaletteEntry{
		{Red: 255}, {Green: 255}, {Blue: 255, Flags: 1},
	}}
	data, err := c.Marshal(format.Palette, pal)
	require.NoError(t, err)
	assert.Len(t, data, PaletteHeaderSize+3*PaletteEntrySize)
	assert.Equal(t, uint16(0x300), le.Uint16(data))

	out, err := c.Unmarshal(format.Palette, data)
	require.NoError(t, err)
	assert.Equal(t, pal, out)
}

func TestPaletteMalformed(t *testing.T) {
	c, _ := newCodec()
	_, err := c.Marshal(format.Palette, &object.Palette{})
	assert.ErrorIs(t, err, errs.ErrInvalidObject)

	_, err = c.Unmarshal(format.Palette, []byte{0, 3})
	assert.ErrorIs(t, err, errs.ErrMalformedData)

	// header claims 4 entries, only 3 present
	data := []byte{0, 3, 4, 0, 1, 1, 1, 0, 2, 2, 2, 0, 3, 3, 3, 0}
	_, err = c.Unmarshal(format.Palette, data)
	assert.ErrorIs(t, err, errs.ErrMalformedData)

	// maximum count against a handful of entries
	data = []byte{0, 3, 0xff, 0xff, 1, 1, 1, 0, 2, 2, 2, 0}
	obj, err := c.Unmarshal(format.Palette, data)
	assert.ErrorIs(t, err, errs.ErrMalformedData)
	assert.Nil(t, obj)
}

func TestEnhMetafileRoundTrip(t *testing.T) {
	c, mf := newCodec()
	bits := gdi.NewEnhMetaFileBits(gdi.Rect{Right: 100, Bottom: 100}, []byte("pic"))
	h, err := mf.SetEnhMetaFileBits(bits)
	require.NoError(t, err)

	data, err := c.Marshal(format.EnhMetafile, h)
	require.NoError(t, err)
	assert.Equal(t, bits, data)

	out, err := c.Unmarshal(format.EnhMetafile, data)
	require.NoError(t, err)
	got, err := mf.EnhMetaFileBits(out.(object.EnhMetafile))
	require.NoError(t, err)
	assert.Equal(t, bits, got)

	_, err = c.Unmarshal(format.EnhMetafile, []byte("not an emf"))
	assert.ErrorIs(t, err, errs.ErrMalformedData)
}

func TestMetafilePictRoundTrip(t *testing.T) {
	c, mf := newCodec()
	hmf, err := mf.SetMetaFileBits([]byte{1, 0, 9, 0, 0, 3})
	require.NoError(t, err)
	pict := &object.MetafilePict{MapMode: object.MMAniso, XExt: 300, YExt: 200, HMF: hmf}

	data, err := c.Marshal(format.MetafilePict, pict)
	require.NoError(t, err)
	assert.Len(t, data, MetafilePictHeaderSize+6)

	out, err := c.Unmarshal(format.MetafilePict, data)
	require.NoError(t, err)
	got := out.(*object.MetafilePict)
	assert.Equal(t, pict.MapMode, got.MapMode)
	assert.Equal(t, pict.XExt, got.XExt)
	assert.Equal(t, pict.YExt, got.YExt)
	assert.NotEqual(t, hmf, got.HMF)

	bits, err := mf.MetaFileBits(got.HMF)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 9, 0, 0, 3}, bits)
}

func TestMetafilePictNeedsBitsAfterHeader(t *testing.T) {
	c, _ := newCodec()
	_, err := c.Unmarshal(format.MetafilePict, make([]byte, MetafilePictHeaderSize))
	assert.ErrorIs(t, err, errs.ErrMalformedData)
}

func TestMetafilesWithoutBridge(t *testing.T) {
	var c Codec
	_, err := c.Marshal(format.EnhMetafile, object.EnhMetafile(1))
	assert.ErrorIs(t, err, errs.ErrNotAvailable)

	out, err := c.Unmarshal(format.Text, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, object.Global("x"), out)
}
