package rules

import (
	"fmt"

	"github.com/haski/recengine/pkg/skincare"
)

// Avoid-if tokens recognized in a rule's exclusion list.
const (
	AvoidNone            = "none"
	AvoidPregnancy       = "pregnancy"
	AvoidBreastfeeding   = "breastfeeding"
	AvoidVerySensitive   = "very_sensitive"
	AvoidActiveInfection = "active_infection"
)

var avoidTokens = map[string]struct{}{
	AvoidNone:            {},
	AvoidPregnancy:       {},
	AvoidBreastfeeding:   {},
	AvoidVerySensitive:   {},
	AvoidActiveInfection: {},
}

func buildAvoidList(raw []string) ([]string, error) {
	list := skincare.NormalizeTags(raw)
	for _, tok := range list {
		if _, ok := avoidTokens[tok]; !ok {
			return nil, fmt.Errorf("unknown token %q", tok)
		}
	}
	if len(list) > 1 && containsString(list, AvoidNone) {
		return nil, fmt.Errorf("%q cannot be combined with other tokens", AvoidNone)
	}
	if len(list) == 1 && list[0] == AvoidNone {
		return nil, nil
	}
	return list, nil
}

// IsContraindicated reports whether the user must not receive a rule with
// this exclusion list and these avoided ingredients.
func IsContraindicated(avoidIf, avoidIngredients []string, uc skincare.UserContext) bool {
	for _, tok := range avoidIf {
		switch skincare.NormalizeTag(tok) {
		case AvoidPregnancy:
			if uc.Pregnant {
				return true
			}
		case AvoidBreastfeeding:
			if uc.Breastfeeding {
				return true
			}
		case AvoidVerySensitive:
			if skincare.Sensitivity(skincare.NormalizeTag(string(uc.Sensitivity))) == skincare.SensitivityVerySensitive {
				return true
			}
		case AvoidActiveInfection:
			if flag, _ := uc.Flag(skincare.LifestyleActiveInfection); flag {
				return true
			}
		}
	}

	for _, ing := range avoidIngredients {
		if uc.HasAllergy(ing) {
			return true
		}
	}
	return false
}

// Contraindicated applies IsContraindicated to the rule's own lists.
func (r Rule) Contraindicated(uc skincare.UserContext) bool {
	return IsContraindicated(r.AvoidIf, r.AvoidIngredients, uc)
}

// Matches reports whether every condition of the rule holds for uc.
func (r Rule) Matches(uc skincare.UserContext) bool {
	return Evaluate(r.Conditions, uc)
}
