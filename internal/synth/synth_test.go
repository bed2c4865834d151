package synth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipshare/internal/errs"
	"go.klb.dev/clipshare/internal/format"
	"go.klb.dev/clipshare/internal/gdi"
	"go.klb.dev/clipshare/internal/object"
	"go.klb.dev/clipshare/internal/textconv"
)

func set(ids ...format.ID) func(format.ID) bool {
	m := make(map[format.ID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return func(id format.ID) bool { return m[id] }
}

func TestPlanText(t *testing.T) {
	tests := []struct {
		name    string
		present []format.ID
		want    []Edge
	}{
		{
			name:    "wide wins",
			present: []format.ID{format.Text, format.UnicodeText},
			want:    []Edge{{format.OEMText, format.UnicodeText}},
		},
		{
			name:    "plain before locale-native",
			present: []format.ID{format.OEMText, format.Text},
			want:    []Edge{{format.UnicodeText, format.Text}},
		},
		{
			name:    "locale-native only",
			present: []format.ID{format.OEMText},
			want:    []Edge{{format.UnicodeText, format.OEMText}, {format.Text, format.OEMText}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edges, needLocale := Plan(set(tt.present...))
			assert.Equal(t, tt.want, edges)
			assert.True(t, needLocale)
		})
	}
}

func TestPlanSkipsFullAndEmptyFamilies(t *testing.T) {
	edges, needLocale := Plan(set(format.UnicodeText, format.Text, format.OEMText, format.HDrop))
	assert.Empty(t, edges)
	assert.False(t, needLocale)

	edges, needLocale = Plan(set(format.UnicodeText, format.Locale))
	assert.Len(t, edges, 2)
	assert.False(t, needLocale)
}

func TestPlanBitmapAndMetafile(t *testing.T) {
	edges, needLocale := Plan(set(format.DIBV5, format.EnhMetafile))
	assert.False(t, needLocale)
	assert.Equal(t, []Edge{
		{format.Bitmap, format.DIBV5},
		{format.DIB, format.DIBV5},
		{format.MetafilePict, format.EnhMetafile},
	}, edges)

	edges, _ = Plan(set(format.DIB, format.Bitmap, format.MetafilePict))
	assert.Equal(t, []Edge{
		{format.DIBV5, format.Bitmap},
		{format.EnhMetafile, format.MetafilePict},
	}, edges)
}

// Every non-empty, non-full subset of a family yields a plan that makes the
// whole family available.
func TestPlanFamilyCompleteness(t *testing.T) {
	for _, fam := range format.Families() {
		members := fam.Members()
		for mask := 1; mask < 1<<len(members)-1; mask++ {
			present := map[format.ID]bool{}
			for i, id := range members {
				if mask&(1<<i) != 0 {
					present[id] = true
				}
			}
			edges, _ := Plan(func(id format.ID) bool { return present[id] })
			for _, e := range edges {
				assert.True(t, present[e.From], "%s: source %s not present", fam, e.From)
				present[e.Target] = true
			}
			for _, id := range members {
				assert.True(t, present[id], "%s mask %b: %s missing", fam, mask, id)
			}
		}
	}
}

func TestRenderText(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()
	wide, err := textconv.EncodeWide("héllo")
	require.NoError(t, err)

	out, err := e.Render(ctx, format.Text, format.UnicodeText, object.Global(wide), 0x0409)
	require.NoError(t, err)
	assert.Equal(t, object.Global{'h', 0xe9, 'l', 'l', 'o', 0}, out)

	out, err = e.Render(ctx, format.OEMText, format.UnicodeText, object.Global(wide), 0x0409)
	require.NoError(t, err)
	assert.Equal(t, object.Global{'h', 0x82, 'l', 'l', 'o', 0}, out)

	out, err = e.Render(ctx, format.OEMText, format.Text, object.Global{'h', 0xe9, 0}, 0x0409)
	require.NoError(t, err)
	assert.Equal(t, object.Global{'h', 0x82, 0}, out)

	out, err = e.Render(ctx, format.UnicodeText, format.OEMText, object.Global{'h', 0x82, 0}, 0x0409)
	require.NoError(t, err)
	assert.Equal(t, object.Global{'h', 0, 0xe9, 0, 0, 0}, out)

	assert.Equal(t, uint64(4), e.Conversions())
}

func TestRenderTextUsesLocale(t *testing.T) {
	e := NewEngine(nil)
	wide, err := textconv.EncodeWide("да")
	require.NoError(t, err)

	out, err := e.Render(context.Background(), format.Text, format.UnicodeText, object.Global(wide), 0x0419)
	require.NoError(t, err)
	assert.Equal(t, object.Global{0xe4, 0xe0, 0}, out)

	out, err = e.Render(context.Background(), format.Text, format.UnicodeText, object.Global(wide), 0x0409)
	require.NoError(t, err)
	assert.Equal(t, object.Global{'?', '?', 0}, out)
}

func TestRenderBitmapFamily(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()
	bm := object.NewBitmap(3, 2, 24)
	for i := range bm.Bits {
		bm.Bits[i] = byte(i)
	}

	dib, err := e.Render(ctx, format.DIB, format.Bitmap, bm, 0)
	require.NoError(t, err)
	h, err := gdi.ParseDIBHeader(dib.(object.Global))
	require.NoError(t, err)
	assert.Equal(t, uint32(gdi.InfoHeaderSize), h.Size)

	v5, err := e.Render(ctx, format.DIBV5, format.DIB, dib, 0)
	require.NoError(t, err)
	h, err = gdi.ParseDIBHeader(v5.(object.Global))
	require.NoError(t, err)
	assert.Equal(t, uint32(gdi.V5HeaderSize), h.Size)

	back, err := e.Render(ctx, format.Bitmap, format.DIBV5, v5, 0)
	require.NoError(t, err)
	assert.Equal(t, bm.Bits, back.(*object.Bitmap).Bits)
}

func TestRenderMetafileFamily(t *testing.T) {
	mf := gdi.NewMemory()
	e := NewEngine(mf)
	ctx := context.Background()
	emf := gdi.NewEnhMetaFileBits(gdi.Rect{Right: 400, Bottom: 300}, []byte("shape"))
	h, err := mf.SetEnhMetaFileBits(emf)
	require.NoError(t, err)

	out, err := e.Render(ctx, format.MetafilePict, format.EnhMetafile, h, 0)
	require.NoError(t, err)
	pict := out.(*object.MetafilePict)
	assert.Equal(t, object.MMIsotropic, pict.MapMode)
	assert.Equal(t, int32(400), pict.XExt)
	assert.Equal(t, int32(300), pict.YExt)

	back, err := e.Render(ctx, format.EnhMetafile, format.MetafilePict, pict, 0)
	require.NoError(t, err)
	bits, err := mf.EnhMetaFileBits(back.(object.EnhMetafile))
	require.NoError(t, err)
	assert.Equal(t, emf, bits)
}

func TestRenderFailuresAreNotAvailable(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()

	_, err := e.Render(ctx, format.Text, format.DIB, object.Global("x"), 0)
	assert.ErrorIs(t, err, errs.ErrNotAvailable)

	_, err = e.Render(ctx, format.Bitmap, format.DIB, object.Global("garbage"), 0)
	assert.ErrorIs(t, err, errs.ErrNotAvailable)

	_, err = e.Render(ctx, format.MetafilePict, format.EnhMetafile, object.EnhMetafile(1), 0)
	assert.ErrorIs(t, err, errs.ErrNotAvailable)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.Render(cancelled, format.Text, format.UnicodeText, object.Global{'a', 0, 0, 0}, 0)
	assert.ErrorIs(t, err, errs.ErrNotAvailable)

	assert.Zero(t, e.Conversions())
}
