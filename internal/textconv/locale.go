package textconv

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

// LCID is a Windows locale identifier as stored in the Locale format.
type LCID uint32

// DefaultLCID is used when no better locale is known: en-US.
const DefaultLCID LCID = 0x0409

type localeInfo struct {
	tag  language.Tag
	lcid LCID
	ansi CodePage
	oem  CodePage
}

var locales = []localeInfo{
	{language.AmericanEnglish, 0x0409, CP1252, CP437},
	{language.BritishEnglish, 0x0809, CP1252, CP850},
	{language.German, 0x0407, CP1252, CP850},
	{language.French, 0x040c, CP1252, CP850},
	{language.Italian, 0x0410, CP1252, CP850},
	{language.EuropeanSpanish, 0x0c0a, CP1252, CP850},
	{language.BrazilianPortuguese, 0x0416, CP1252, CP850},
	{language.Dutch, 0x0413, CP1252, CP850},
	{language.Polish, 0x0415, CP1250, CP852},
	{language.Czech, 0x0405, CP1250, CP852},
	{language.Russian, 0x0419, CP1251, CP866},
	{language.Ukrainian, 0x0422, CP1251, CP866},
	{language.Hebrew, 0x040d, CP1255, CP862},
	{language.Thai, 0x041e, CP874, CP874},
	{language.Vietnamese, 0x042a, CP1258, CP1258},
	{language.Japanese, 0x0411, CP932, CP932},
	{language.SimplifiedChinese, 0x0804, CP936, CP936},
	{language.TraditionalChinese, 0x0404, CP950, CP950},
	{language.Korean, 0x0412, CP949, CP949},
}

var (
	byLCID  = make(map[LCID]localeInfo, len(locales))
	matcher language.Matcher
)

func init() {
	tags := make([]language.Tag, len(locales))
	for i, l := range locales {
		tags[i] = l.tag
		byLCID[l.lcid] = l
	}
	matcher = language.NewMatcher(tags)
}

// CodePages returns the ANSI and OEM code pages of lcid. Unknown locales get
// the en-US pages, 1252 and 437.
func CodePages(lcid LCID) (ansi, oem CodePage) {
	l, ok := byLCID[lcid]
	if !ok {
		l = byLCID[DefaultLCID]
	}
	return l.ansi, l.oem
}

// Known reports whether lcid is in the locale table.
func Known(lcid LCID) bool {
	_, ok := byLCID[lcid]
	return ok
}

// Tag returns the language tag of lcid.
func (l LCID) Tag() language.Tag {
	if info, ok := byLCID[l]; ok {
		return info.tag
	}
	return language.Und
}

// FromTag returns the closest known LCID for tag.
func FromTag(tag language.Tag) LCID {
	_, i, conf := matcher.Match(tag)
	if conf == language.No {
		return DefaultLCID
	}
	return locales[i].lcid
}

// Parse resolves a locale name to an LCID. It accepts BCP 47 tags ("de-DE")
// and POSIX locale names ("de_DE.UTF-8", "sr_RS@latin").
func Parse(name string) (LCID, bool) {
	if i := strings.IndexAny(name, ".@"); i >= 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "_", "-")
	if name == "" || name == "C" || name == "POSIX" {
		return DefaultLCID, false
	}
	tag, err := language.Parse(name)
	if err != nil {
		return DefaultLCID, false
	}
	_, i, conf := matcher.Match(tag)
	if conf == language.No {
		return DefaultLCID, false
	}
	return locales[i].lcid, true
}

// SystemLCID derives the process locale from LC_ALL, LC_CTYPE or LANG, in
// that order.
func SystemLCID() LCID {
	for _, v := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		if name := os.Getenv(v); name != "" {
			lcid, _ := Parse(name)
			return lcid
		}
	}
	return DefaultLCID
}
