package textconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestEncodeCodePages(t *testing.T) {
	tests := []struct {
		cp   CodePage
		in   string
		want []byte
	}{
		{CP1252, "héllo", []byte{'h', 0xe9, 'l', 'l', 'o', 0}},
		{CP437, "héllo", []byte{'h', 0x82, 'l', 'l', 'o', 0}},
		{CP850, "héllo", []byte{'h', 0x82, 'l', 'l', 'o', 0}},
		{CP1251, "да", []byte{0xe4, 0xe0, 0}},
		{CP866, "да", []byte{0xa4, 0xa0, 0}},
		{CP1252, "a\x00b", []byte{'a', 0}},
	}
	for _, tt := range tests {
		got, err := Encode(tt.cp, tt.in)
		require.NoError(t, err, "%s %q", tt.cp, tt.in)
		assert.Equal(t, tt.want, got, "%s %q", tt.cp, tt.in)
	}
}

func TestEncodeReplacesUnrepresentable(t *testing.T) {
	got, err := Encode(CP1252, "a日b")
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', '?', 'b', 0}, got)
}

func TestDecodeStopsAtNUL(t *testing.T) {
	s, err := Decode(CP1252, []byte{'h', 0xe9, 0, 'x', 'x'})
	require.NoError(t, err)
	assert.Equal(t, "hé", s)
}

func TestUnknownCodePage(t *testing.T) {
	_, err := Encode(CodePage(1), "x")
	assert.ErrorIs(t, err, ErrUnknownCodePage)
	_, err = Decode(CodePage(1), []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownCodePage)
}

func TestWide(t *testing.T) {
	b, err := EncodeWide("hé")
	require.NoError(t, err)
	assert.Equal(t, []byte{'h', 0, 0xe9, 0, 0, 0}, b)

	s, err := DecodeWide(append(b, 'z', 0))
	require.NoError(t, err)
	assert.Equal(t, "hé", s)

	// odd trailing byte is ignored
	s, err = DecodeWide([]byte{'o', 0, 'k', 0, 1})
	require.NoError(t, err)
	assert.Equal(t, "ok", s)
}

func TestConvert(t *testing.T) {
	got, err := Convert(CP1252, CP437, []byte{'h', 0xe9, 0})
	require.NoError(t, err)
	assert.Equal(t, []byte{'h', 0x82, 0}, got)

	got, err = Convert(CP932, CP932, []byte{0x82, 0xa0})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x82, 0xa0, 0}, got)
}

func TestCodePages(t *testing.T) {
	ansi, oem := CodePages(0x0407)
	assert.Equal(t, CP1252, ansi)
	assert.Equal(t, CP850, oem)

	ansi, oem = CodePages(0x0419)
	assert.Equal(t, CP1251, ansi)
	assert.Equal(t, CP866, oem)

	ansi, oem = CodePages(0xdead)
	assert.Equal(t, CP1252, ansi)
	assert.Equal(t, CP437, oem)
	assert.False(t, Known(0xdead))

	for _, l := range locales {
		_, ok := l.ansi.Encoding()
		assert.True(t, ok, "lcid %04x ansi", l.lcid)
		_, ok = l.oem.Encoding()
		assert.True(t, ok, "lcid %04x oem", l.lcid)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want LCID
		ok   bool
	}{
		{"de_DE.UTF-8", 0x0407, true},
		{"ru_RU", 0x0419, true},
		{"ja-JP", 0x0411, true},
		{"en_US.UTF-8", 0x0409, true},
		{"C", DefaultLCID, false},
		{"", DefaultLCID, false},
		{"!!", DefaultLCID, false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.name)
		assert.Equal(t, tt.want, got, tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
	}
}

func TestSystemLCID(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_CTYPE", "")
	t.Setenv("LANG", "ru_RU.UTF-8")
	assert.Equal(t, LCID(0x0419), SystemLCID())

	t.Setenv("LC_ALL", "pl_PL")
	assert.Equal(t, LCID(0x0415), SystemLCID())
}

func TestLCIDTag(t *testing.T) {
	assert.Equal(t, language.Japanese, LCID(0x0411).Tag())
	assert.Equal(t, language.Und, LCID(0xdead).Tag())
	assert.Equal(t, LCID(0x0411), FromTag(language.Japanese))
}
