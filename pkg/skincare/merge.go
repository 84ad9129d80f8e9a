package skincare

import (
	"sort"
	"strings"
)

// Merge builds a UserContext from classifier output and the user's profile.
// Any field the profile sets wins over the analysis.
func Merge(analysis Analysis, profile Profile) UserContext {
	uc := UserContext{
		SkinType:      analysis.SkinType,
		HairType:      analysis.HairType,
		Sensitivity:   profile.Sensitivity,
		Pregnant:      profile.Pregnant,
		Breastfeeding: profile.Breastfeeding,
		Conditions:    NormalizeTags(append(append([]string{}, analysis.Conditions...), profile.Conditions...)),
		Allergies:     NormalizeTags(profile.Allergies),
	}
	if profile.SkinType != "" {
		uc.SkinType = profile.SkinType
	}
	if profile.HairType != "" {
		uc.HairType = profile.HairType
	}
	uc.SkinType = SkinType(NormalizeTag(string(uc.SkinType)))
	uc.HairType = HairType(NormalizeTag(string(uc.HairType)))
	uc.Sensitivity = Sensitivity(NormalizeTag(string(uc.Sensitivity)))

	if profile.Age != nil {
		age := *profile.Age
		uc.Age = &age
	}
	if len(profile.Lifestyle) > 0 {
		uc.Lifestyle = make(map[string]bool, len(profile.Lifestyle))
		for k, v := range profile.Lifestyle {
			uc.Lifestyle[NormalizeTag(k)] = v
		}
	}
	return uc
}

// NormalizeTag lower-cases and trims a tag.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NormalizeTags returns the normalized, deduplicated, sorted tag set.
// Blank entries are dropped.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func containsTag(tags []string, tag string) bool {
	want := NormalizeTag(tag)
	for _, t := range tags {
		if NormalizeTag(t) == want {
			return true
		}
	}
	return false
}
