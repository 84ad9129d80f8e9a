package rules

import (
	"testing"

	"github.com/haski/recengine/pkg/skincare"
)

func intPtr(v int) *int { return &v }

func mustRule(t *testing.T, doc string) Rule {
	t.Helper()
	cat, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	return cat.Rules()[0]
}

func TestRuleMatches(t *testing.T) {
	rule := mustRule(t, `
rules:
  - id: test_rule
    priority: 1
    conditions:
      - {field: skin_type, equals: oily}
      - {field: conditions, contains: [acne]}
    actions: {product_tags: [salicylic_cleanser]}
`)

	uc := skincare.UserContext{
		SkinType:   skincare.SkinOily,
		Conditions: []string{"acne", "blackheads"},
	}
	if !rule.Matches(uc) {
		t.Error("expected rule to match")
	}

	uc.SkinType = skincare.SkinDry
	if rule.Matches(uc) {
		t.Error("expected rule not to match")
	}
}

func TestEvaluateEmptyClausesMatch(t *testing.T) {
	if !Evaluate(nil, skincare.UserContext{}) {
		t.Error("no clauses must trivially match")
	}
}

func TestClauseOperators(t *testing.T) {
	base := skincare.UserContext{
		SkinType:    skincare.SkinCombination,
		HairType:    skincare.HairCurly,
		Sensitivity: skincare.SensitivitySensitive,
		Conditions:  []string{"acne", "hyperpigmentation"},
		Allergies:   []string{"fragrance"},
		Age:         intPtr(34),
		Pregnant:    true,
		Lifestyle:   map[string]bool{"smoker": false},
	}

	tests := []struct {
		name   string
		clause string
		uc     skincare.UserContext
		want   bool
	}{
		{"equals hit", "{field: skin_type, equals: combination}", base, true},
		{"equals case-insensitive operand", "{field: skin_type, equals: Combination}", base, true},
		{"equals miss", "{field: skin_type, equals: oily}", base, false},
		{"equals absent field", "{field: skin_type, equals: oily}", skincare.UserContext{}, false},
		{"in hit", "{field: hair_type, in: [wavy, curly]}", base, true},
		{"in miss", "{field: hair_type, in: [straight]}", base, false},
		{"contains all present", "{field: conditions, contains: [acne, hyperpigmentation]}", base, true},
		{"contains subset", "{field: conditions, contains: [acne]}", base, true},
		{"contains missing one", "{field: conditions, contains: [acne, rosacea]}", base, false},
		{"contains empty user set", "{field: conditions, contains: [acne]}", skincare.UserContext{}, false},
		{"contains allergies", "{field: allergies, contains: [fragrance]}", base, true},
		{"range inside", "{field: age, range: [18, 40]}", base, true},
		{"range inclusive lower", "{field: age, range: [34, 40]}", base, true},
		{"range inclusive upper", "{field: age, range: [18, 34]}", base, true},
		{"range outside", "{field: age, range: [35, 60]}", base, false},
		{"range absent age", "{field: age, range: [0, 120]}", skincare.UserContext{}, false},
		{"age equals", "{field: age, equals: 34}", base, true},
		{"age in", "{field: age, in: [33, 35]}", base, false},
		{"bool equals true", "{field: pregnant, equals: true}", base, true},
		{"bool equals false", "{field: breastfeeding, equals: false}", base, true},
		{"lifestyle present", "{field: lifestyle.smoker, equals: false}", base, true},
		{"lifestyle absent", "{field: lifestyle.night_shift, equals: false}", base, false},
		{"sensitivity in", "{field: sensitivity, in: [sensitive, very_sensitive]}", base, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := mustRule(t, "rules:\n  - id: r\n    priority: 1\n    conditions: ["+tt.clause+"]\n    actions: {warnings: [w]}\n")
			if got := Evaluate(rule.Conditions, tt.uc); got != tt.want {
				t.Errorf("Evaluate(%s) = %v, want %v", tt.clause, got, tt.want)
			}
		})
	}
}

func TestLookupField(t *testing.T) {
	uc := skincare.UserContext{
		SkinType:  skincare.SkinOily,
		Age:       intPtr(20),
		Lifestyle: map[string]bool{"active_infection": true},
	}

	v, ok := lookup("skin_type", uc)
	if !ok || v.str != "oily" {
		t.Errorf("expected skin_type oily, got %+v, ok=%v", v, ok)
	}

	v, ok = lookup("age", uc)
	if !ok || v.num != 20 {
		t.Errorf("expected age 20, got %+v, ok=%v", v, ok)
	}

	v, ok = lookup("lifestyle.active_infection", uc)
	if !ok || v.str != "true" {
		t.Errorf("expected lifestyle flag true, got %+v, ok=%v", v, ok)
	}

	if _, ok = lookup("hair_type", uc); ok {
		t.Error("expected missing hair_type to return false")
	}
	if _, ok = lookup("mood", uc); ok {
		t.Error("expected unknown field to return false")
	}
}
