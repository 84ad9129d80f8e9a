package ranking

import (
	"fmt"
	"strings"

	"github.com/haski/recengine/pkg/skincare"
)

// Safety is the allergy filter verdict for one product. Allergens carry the
// score penalty; Notes are informational only.
type Safety struct {
	Allergens []string
	Notes     []string
}

// Flagged reports whether any allergen overlap was found.
func (s Safety) Flagged() bool {
	return len(s.Allergens) > 0
}

// Issues returns allergens followed by notes, nil when there are none.
func (s Safety) Issues() []string {
	if len(s.Allergens)+len(s.Notes) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.Allergens)+len(s.Notes))
	out = append(out, s.Allergens...)
	return append(out, s.Notes...)
}

// CheckSafety scans the product's ingredients, tags and avoid_for entries for
// the user's allergies. Matching is case-insensitive and substring-aware in
// both directions, so "nut" flags "nut oil" and "shea nut" flags "nut".
func CheckSafety(p skincare.Product, uc skincare.UserContext) Safety {
	var s Safety
	allergies := skincare.NormalizeTags(uc.Allergies)

	sources := []struct {
		label string
		items []string
	}{
		{"ingredient", p.Ingredients},
		{"tag", p.Tags},
		{"avoid_for", p.AvoidFor},
	}
	for _, allergy := range allergies {
		for _, src := range sources {
			if item, ok := overlap(allergy, src.items); ok {
				s.Allergens = append(s.Allergens, fmt.Sprintf("contains allergen %q (%s: %s)", allergy, src.label, item))
				break
			}
		}
	}

	avoid := skincare.NormalizeTags(p.AvoidFor)
	for _, cond := range skincare.NormalizeTags(uc.Conditions) {
		if contains(avoid, cond) {
			s.Notes = append(s.Notes, "not advised for "+cond)
		}
	}
	if st := skincare.NormalizeTag(string(uc.SkinType)); st != "" && contains(avoid, st) {
		s.Notes = append(s.Notes, "not advised for "+st+" skin")
	}
	return s
}

func overlap(allergy string, items []string) (string, bool) {
	for _, raw := range items {
		item := skincare.NormalizeTag(raw)
		if item == "" {
			continue
		}
		if strings.Contains(item, allergy) || strings.Contains(allergy, item) {
			return item, true
		}
	}
	return "", false
}

func contains(sorted []string, s string) bool {
	for _, v := range sorted {
		if v == s {
			return true
		}
	}
	return false
}
