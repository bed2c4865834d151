// Package synth decides which clipboard formats can be derived from the ones
// a producer published, and renders them on demand.
//
// Planning is pure: given what is present it returns edges "target from
// source". Rendering happens later, the first time a reader asks for a
// target, and runs exactly one conversion.
package synth

import "go.klb.dev/clipshare/internal/format"

// Edge says Target can be rendered from From.
type Edge struct {
	Target format.ID
	From   format.ID
}

// Plan evaluates each family independently. A family contributes edges only
// when at least one member is present and at least one is missing; every
// missing member is derived from the family's preferred present member.
// needLocale is true when text will be synthesized and no Locale format is
// present yet.
func Plan(has func(format.ID) bool) (edges []Edge, needLocale bool) {
	for _, fam := range format.Families() {
		members := fam.Members()
		var source format.ID
		var missing []format.ID
		for _, id := range members {
			if has(id) {
				if source == 0 {
					source = id
				}
				continue
			}
			missing = append(missing, id)
		}
		if source == 0 || len(missing) == 0 {
			continue
		}
		if fam == format.FamilyText && !has(format.Locale) {
			needLocale = true
		}
		for _, id := range missing {
			edges = append(edges, Edge{Target: id, From: source})
		}
	}
	return edges, needLocale
}
