package format

// Family is a group of formats considered mutually derivable.
type Family int

const (
	FamilyText Family = iota + 1
	FamilyBitmap
	FamilyMetafile
)

func (f Family) String() string {
	switch f {
	case FamilyText:
		return "text"
	case FamilyBitmap:
		return "bitmap"
	case FamilyMetafile:
		return "metafile"
	default:
		return "unknown"
	}
}

// Members returns the family's formats in source-preference order.
func (f Family) Members() []ID {
	switch f {
	case FamilyText:
		return []ID{UnicodeText, Text, OEMText}
	case FamilyBitmap:
		return []ID{Bitmap, DIB, DIBV5}
	case FamilyMetafile:
		return []ID{MetafilePict, EnhMetafile}
	default:
		return nil
	}
}

// Families lists every family in evaluation order.
func Families() []Family {
	return []Family{FamilyText, FamilyBitmap, FamilyMetafile}
}

// FamilyOf returns the family id belongs to.
func FamilyOf(id ID) (Family, bool) {
	switch id {
	case Text, OEMText, UnicodeText:
		return FamilyText, true
	case Bitmap, DIB, DIBV5:
		return FamilyBitmap, true
	case MetafilePict, EnhMetafile:
		return FamilyMetafile, true
	default:
		return 0, false
	}
}
