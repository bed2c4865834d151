// Package textconv converts clipboard text between the wide (UTF-16LE) form
// and the narrow code-page forms, and maps locale identifiers to the ANSI and
// OEM code pages used for the narrow formats.
//
// Narrow and wide buffers are NUL-terminated on output. On input everything
// from the first terminator on is ignored.
package textconv

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// ErrUnknownCodePage is returned for code pages without a converter.
var ErrUnknownCodePage = errors.New("textconv: unknown code page")

// CodePage is a Windows code page number.
type CodePage uint16

// Code pages with converters.
const (
	CP437  CodePage = 437
	CP850  CodePage = 850
	CP852  CodePage = 852
	CP862  CodePage = 862
	CP866  CodePage = 866
	CP874  CodePage = 874
	CP932  CodePage = 932
	CP936  CodePage = 936
	CP949  CodePage = 949
	CP950  CodePage = 950
	CP1250 CodePage = 1250
	CP1251 CodePage = 1251
	CP1252 CodePage = 1252
	CP1255 CodePage = 1255
	CP1258 CodePage = 1258
)

var encodings = map[CodePage]encoding.Encoding{
	CP437:  charmap.CodePage437,
	CP850:  charmap.CodePage850,
	CP852:  charmap.CodePage852,
	CP862:  charmap.CodePage862,
	CP866:  charmap.CodePage866,
	CP874:  charmap.Windows874,
	CP932:  japanese.ShiftJIS,
	CP936:  simplifiedchinese.GBK,
	CP949:  korean.EUCKR,
	CP950:  traditionalchinese.Big5,
	CP1250: charmap.Windows1250,
	CP1251: charmap.Windows1251,
	CP1252: charmap.Windows1252,
	CP1255: charmap.Windows1255,
	CP1258: charmap.Windows1258,
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Encoding returns the converter for cp.
func (cp CodePage) Encoding() (encoding.Encoding, bool) {
	e, ok := encodings[cp]
	return e, ok
}

func (cp CodePage) String() string { return fmt.Sprintf("cp%d", uint16(cp)) }

// Decode converts NUL-terminated narrow text in code page cp to a Go string.
func Decode(cp CodePage, b []byte) (string, error) {
	e, ok := cp.Encoding()
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownCodePage, cp)
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	out, err := e.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", cp, err)
	}
	return string(out), nil
}

// Encode converts s to NUL-terminated narrow text in code page cp. Runes the
// code page cannot represent become '?'.
func Encode(cp CodePage, s string) ([]byte, error) {
	e, ok := cp.Encoding()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodePage, cp)
	}
	s = cut(s)
	enc := e.NewEncoder()
	if out, err := enc.Bytes([]byte(s)); err == nil {
		return append(out, 0), nil
	}

	out := make([]byte, 0, len(s)+1)
	var buf [utf8.UTFMax]byte
	for _, r := range s {
		n := utf8.EncodeRune(buf[:], r)
		b, err := enc.Bytes(buf[:n])
		if err != nil || r == utf8.RuneError {
			out = append(out, '?')
			continue
		}
		out = append(out, b...)
	}
	return append(out, 0), nil
}

// DecodeWide converts NUL-terminated UTF-16LE text to a Go string.
func DecodeWide(b []byte) (string, error) {
	n := len(b) &^ 1
	for i := 0; i < n; i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			n = i
			break
		}
	}
	out, err := utf16le.NewDecoder().Bytes(b[:n])
	if err != nil {
		return "", fmt.Errorf("decode utf-16: %w", err)
	}
	return string(out), nil
}

// EncodeWide converts s to NUL-terminated UTF-16LE text.
func EncodeWide(s string) ([]byte, error) {
	out, err := utf16le.NewEncoder().Bytes([]byte(cut(s)))
	if err != nil {
		return nil, fmt.Errorf("encode utf-16: %w", err)
	}
	return append(out, 0, 0), nil
}

// Convert re-encodes narrow text from one code page to another, going
// through the wide form only when the pages differ.
func Convert(from, to CodePage, b []byte) ([]byte, error) {
	if from == to {
		if _, ok := from.Encoding(); !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownCodePage, from)
		}
		if i := bytes.IndexByte(b, 0); i >= 0 {
			b = b[:i]
		}
		return append(append(make([]byte, 0, len(b)+1), b...), 0), nil
	}
	s, err := Decode(from, b)
	if err != nil {
		return nil, err
	}
	return Encode(to, s)
}

func cut(s string) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return s[:i]
	}
	return s
}
