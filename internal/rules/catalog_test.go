package rules

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haski/recengine/internal/escalation"
)

func TestLoadShippedCatalog(t *testing.T) {
	cat, err := LoadFile(filepath.Join("..", "..", "configs", "rules", "catalog.yaml"))
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if cat.Version() != "2026.10" {
		t.Errorf("version = %q", cat.Version())
	}
	if cat.Len() != 7 {
		t.Errorf("rule count = %d, want 7", cat.Len())
	}

	prev := -1 << 31
	for _, r := range cat.Rules() {
		if r.Priority < prev {
			t.Fatalf("rules not sorted by priority: %d after %d", r.Priority, prev)
		}
		prev = r.Priority
	}
	if cat.Rules()[0].ID != "r006" {
		t.Errorf("first rule = %s, want r006 (priority 0)", cat.Rules()[0].ID)
	}

	r006, ok := cat.Rule("r006")
	if !ok {
		t.Fatal("r006 missing")
	}
	if r006.Actions.EscalationLevel() != escalation.Emergency {
		t.Errorf("r006 level = %v, want emergency", r006.Actions.EscalationLevel())
	}

	r001, _ := cat.Rule("r001")
	if len(r001.AvoidIf) != 0 {
		t.Errorf("avoid_if none should yield an empty list, got %v", r001.AvoidIf)
	}
	if len(r001.Actions.Routine) != 2 || r001.Actions.Routine[0].Step != "morning" {
		t.Errorf("routine steps must keep declaration order, got %+v", r001.Actions.Routine)
	}
}

func TestParseStableTies(t *testing.T) {
	doc := `
rules:
  - id: b
    priority: 5
    actions: {warnings: [w1]}
  - id: a
    priority: 5
    actions: {warnings: [w2]}
  - id: c
    priority: 1
    actions: {warnings: [w3]}
`
	cat, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	var ids []string
	for _, r := range cat.Rules() {
		ids = append(ids, r.ID)
	}
	if strings.Join(ids, ",") != "c,b,a" {
		t.Errorf("order = %v, want [c b a]", ids)
	}
	if cat.Version() == "" {
		t.Error("version should fall back to the checksum prefix")
	}
}

func TestParseJSONDocument(t *testing.T) {
	doc := `{"version":"j1","rules":[{"id":"r1","priority":1,"conditions":[{"field":"skin_type","equals":"oily"}],"actions":{"product_tags":["gel_cleanser"],"products":["P-1"]}}]}`
	cat, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	r := cat.Rules()[0]
	if r.Actions.Products[0].ExternalID != "P-1" || r.Actions.Products[0].Reason != "r1" {
		t.Errorf("bare product id should default the reason to the rule name, got %+v", r.Actions.Products[0])
	}
}

func TestParseConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"not yaml", "rules: [", "parse rules"},
		{"no rules", "version: x\nrules: []", "no rules"},
		{"missing id", "rules:\n  - priority: 1\n    actions: {warnings: [w]}", "id is required"},
		{"missing priority", "rules:\n  - id: r\n    actions: {warnings: [w]}", "priority is required"},
		{"missing actions", "rules:\n  - id: r\n    priority: 1", "actions are required"},
		{"empty actions", "rules:\n  - id: r\n    priority: 1\n    actions: {warnings: []}", "action bundle is empty"},
		{"duplicate id", "rules:\n  - id: r\n    priority: 1\n    actions: {warnings: [w]}\n  - id: r\n    priority: 2\n    actions: {warnings: [w]}", "duplicate rule id"},
		{"unknown field", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: mood, equals: happy}]\n    actions: {warnings: [w]}", "unknown field"},
		{"no operator", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: skin_type}]\n    actions: {warnings: [w]}", "exactly one of"},
		{"two operators", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: skin_type, equals: oily, in: [dry]}]\n    actions: {warnings: [w]}", "exactly one of"},
		{"range not a pair", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: age, range: [18]}]\n    actions: {warnings: [w]}", "[min, max]"},
		{"range scalar", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: age, range: 18}]\n    actions: {warnings: [w]}", "must be a list"},
		{"range inverted", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: age, range: [60, 18]}]\n    actions: {warnings: [w]}", "exceeds max"},
		{"range on enum", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: skin_type, range: [1, 2]}]\n    actions: {warnings: [w]}", "numeric field"},
		{"equals list", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: skin_type, equals: [oily]}]\n    actions: {warnings: [w]}", "must be a scalar"},
		{"equals on set", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: conditions, equals: acne}]\n    actions: {warnings: [w]}", "use contains"},
		{"contains on scalar", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: skin_type, contains: [oily]}]\n    actions: {warnings: [w]}", "set field"},
		{"unknown enum value", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: skin_type, equals: oilly}]\n    actions: {warnings: [w]}", "is not one of"},
		{"bad bool", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: pregnant, equals: maybe}]\n    actions: {warnings: [w]}", "not a boolean"},
		{"unknown avoid token", "rules:\n  - id: r\n    priority: 1\n    avoid_if: [teenager]\n    actions: {warnings: [w]}", "unknown token"},
		{"none mixed", "rules:\n  - id: r\n    priority: 1\n    avoid_if: [none, pregnancy]\n    actions: {warnings: [w]}", "cannot be combined"},
		{"bad severity", "rules:\n  - id: r\n    priority: 1\n    actions: {escalation: see a doctor, severity: severe}", "unknown escalation level"},
		{"routine list", "rules:\n  - id: r\n    priority: 1\n    actions: {routine: [a, b]}", "mapping of step to text"},
		{"empty document", "", "no rules"},
		{"misspelled avoid_if", "rules:\n  - id: r\n    priority: 1\n    avoidIf: [pregnancy]\n    actions: {warnings: [w]}", "avoidIf not found"},
		{"misspelled action key", "rules:\n  - id: r\n    priority: 1\n    actions: {warning: [w]}", "warning not found"},
		{"misspelled clause key", "rules:\n  - id: r\n    priority: 1\n    conditions: [{field: skin_type, equal: oily}]\n    actions: {warnings: [w]}", "equal not found"},
		{"misspelled product key", "rules:\n  - id: r\n    priority: 1\n    actions: {products: [{id: P-1, reasn: x}]}", "reasn not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if err == nil {
				t.Fatal("Parse() = nil, want error")
			}
			if !IsConfigError(err) {
				t.Fatalf("error %T is not a ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("error %T is not a ConfigError", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", err)
	}

	if _, err := LoadFile(""); !IsConfigError(err) {
		t.Errorf("empty path should be a ConfigError, got %v", err)
	}
}

func TestParseConditionOperands(t *testing.T) {
	doc := `
rules:
  - id: r001
    priority: 1
    conditions:
      - field: skin_type
        equals: oily
      - field: sensitivity
        in: [normal, low]
      - field: conditions
        contains: [acne]
      - field: age
        range: [18, 60]
    avoid_if: [pregnancy]
    actions:
      product_tags: [salicylic_cleanser]
`
	cat, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	r := cat.Rules()[0]
	if len(r.Conditions) != 4 {
		t.Fatalf("conditions = %+v, want 4", r.Conditions)
	}

	want := []struct {
		op     Operator
		values []string
	}{
		{OpEquals, []string{"oily"}},
		{OpIn, []string{"normal", "low"}},
		{OpContains, []string{"acne"}},
		{OpRange, nil},
	}
	for i, w := range want {
		c := r.Conditions[i]
		if c.Op != w.op {
			t.Errorf("condition %d op = %s, want %s", i, c.Op, w.op)
		}
		if w.values != nil && strings.Join(c.Values, ",") != strings.Join(w.values, ",") {
			t.Errorf("condition %d values = %v, want %v", i, c.Values, w.values)
		}
	}
	if rc := r.Conditions[3]; rc.Min != 18 || rc.Max != 60 {
		t.Errorf("range = [%v, %v], want [18, 60]", rc.Min, rc.Max)
	}
	if len(r.AvoidIf) != 1 || r.AvoidIf[0] != "pregnancy" {
		t.Errorf("avoid_if = %v, want [pregnancy]", r.AvoidIf)
	}
}
