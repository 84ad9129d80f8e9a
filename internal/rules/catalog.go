package rules

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haski/recengine/internal/escalation"
	"github.com/haski/recengine/pkg/skincare"
)

// Catalog is an immutable, priority-ordered set of rules. Build a new one to
// change anything.
type Catalog struct {
	version  string
	checksum string
	source   string
	loadedAt time.Time
	rules    []Rule
}

// Rule is one validated rule definition.
type Rule struct {
	ID               string
	Name             string
	Priority         int
	Conditions       []Clause
	AvoidIf          []string
	AvoidIngredients []string
	Actions          Actions
}

// Actions is the bundle a matched rule contributes to a recommendation.
type Actions struct {
	Products     []ProductAction
	ProductTags  []string
	Routine      []RoutineAction
	DietIncrease []string
	DietLimit    []string
	Warnings     []string
	Escalation   string
	// Severity is set when the rule declares its level explicitly.
	Severity *escalation.Level
}

type ProductAction struct {
	ExternalID string
	Reason     string
}

type RoutineAction struct {
	Step string
	Text string
}

// EscalationLevel is the rule's declared severity, or the keyword grade of its hint.
func (a Actions) EscalationLevel() escalation.Level {
	if a.Severity != nil {
		return *a.Severity
	}
	return escalation.Classify(a.Escalation)
}

func (a Actions) empty() bool {
	return len(a.Products) == 0 && len(a.ProductTags) == 0 && len(a.Routine) == 0 &&
		len(a.DietIncrease) == 0 && len(a.DietLimit) == 0 && len(a.Warnings) == 0 &&
		strings.TrimSpace(a.Escalation) == "" && a.Severity == nil
}

func (c *Catalog) Version() string { return c.version }
func (c *Catalog) Checksum() string { return c.checksum }
func (c *Catalog) Source() string { return c.source }
func (c *Catalog) LoadedAt() time.Time { return c.loadedAt }
func (c *Catalog) Len() int { return len(c.rules) }

// Rules returns the rules in evaluation order: ascending priority, ties in
// declaration order. The returned slice must not be modified.
func (c *Catalog) Rules() []Rule {
	return c.rules
}

// Rule looks a rule up by id.
func (c *Catalog) Rule(id string) (Rule, bool) {
	for _, r := range c.rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// LoadFile reads and validates a catalog document from disk.
func LoadFile(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &ConfigError{Source: path, Err: fmt.Errorf("catalog path is empty")}
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Err: fmt.Errorf("read rules: %w", err)}
	}
	return parse(payload, path)
}

// Parse validates a catalog document held in memory. YAML and JSON are both accepted.
func Parse(payload []byte) (*Catalog, error) {
	return parse(payload, "inline")
}

func parse(payload []byte, source string) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(payload))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Source: source, Err: fmt.Errorf("parse rules: %w", err)}
	}
	if len(doc.Rules) == 0 {
		return nil, &ConfigError{Source: source, Err: fmt.Errorf("catalog declares no rules")}
	}

	sum := sha256.Sum256(payload)
	cat := &Catalog{
		version:  strings.TrimSpace(doc.Version),
		checksum: hex.EncodeToString(sum[:]),
		source:   source,
		loadedAt: time.Now().UTC(),
		rules:    make([]Rule, 0, len(doc.Rules)),
	}
	if cat.version == "" {
		cat.version = cat.checksum[:12]
	}

	seen := make(map[string]struct{}, len(doc.Rules))
	for i, rd := range doc.Rules {
		rule, err := rd.build()
		if err != nil {
			err.Source = source
			if err.RuleID == "" {
				err.RuleID = fmt.Sprintf("#%d", i)
			}
			return nil, err
		}
		if _, dup := seen[rule.ID]; dup {
			return nil, &ConfigError{Source: source, RuleID: rule.ID, Err: fmt.Errorf("duplicate rule id")}
		}
		seen[rule.ID] = struct{}{}
		cat.rules = append(cat.rules, rule)
	}

	sort.SliceStable(cat.rules, func(i, j int) bool {
		return cat.rules[i].Priority < cat.rules[j].Priority
	})
	return cat, nil
}

type document struct {
	Version string    `yaml:"version"`
	Rules   []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	ID               string      `yaml:"id"`
	Name             string      `yaml:"name"`
	Priority         *int        `yaml:"priority"`
	Conditions       []clauseDoc `yaml:"conditions"`
	AvoidIf          stringList  `yaml:"avoid_if"`
	AvoidIngredients stringList  `yaml:"avoid_ingredients"`
	Actions          *actionsDoc `yaml:"actions"`
}

type actionsDoc struct {
	Products    []productDoc `yaml:"products"`
	ProductTags stringList   `yaml:"product_tags"`
	Routine     yaml.Node    `yaml:"routine"`
	Diet        struct {
		Increase stringList `yaml:"increase"`
		Limit    stringList `yaml:"limit"`
	} `yaml:"diet"`
	Warnings   stringList `yaml:"warnings"`
	Escalation string     `yaml:"escalation"`
	Severity   string     `yaml:"severity"`
}

// productDoc accepts either a bare external id or {id, reason}.
type productDoc struct {
	ID     string `yaml:"id"`
	Reason string `yaml:"reason"`
}

func (p *productDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.ID = node.Value
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: product must be an id or {id, reason}", node.Line)
	}
	// node.Decode does not inherit KnownFields from the outer decoder.
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "id":
			p.ID = val.Value
		case "reason":
			p.Reason = val.Value
		default:
			return fmt.Errorf("line %d: field %s not found in product", key.Line, key.Value)
		}
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: product %s must be a string", val.Line, key.Value)
		}
	}
	return nil
}

// stringList accepts a scalar or a sequence of scalars.
type stringList []string

func (s *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*s = nil
			return nil
		}
		*s = stringList{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(stringList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected a list of strings", item.Line)
			}
			out = append(out, item.Value)
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

func (rd ruleDoc) build() (Rule, *ConfigError) {
	id := strings.TrimSpace(rd.ID)
	if id == "" {
		return Rule{}, &ConfigError{Field: "id", Err: fmt.Errorf("rule id is required")}
	}
	fail := func(field string, err error) (Rule, *ConfigError) {
		return Rule{}, &ConfigError{RuleID: id, Field: field, Err: err}
	}

	if rd.Priority == nil {
		return fail("priority", fmt.Errorf("priority is required"))
	}

	rule := Rule{
		ID:       id,
		Name:     strings.TrimSpace(rd.Name),
		Priority: *rd.Priority,
	}
	if rule.Name == "" {
		rule.Name = id
	}

	for i, cd := range rd.Conditions {
		clause, err := cd.build()
		if err != nil {
			return fail(fmt.Sprintf("conditions[%d]", i), err)
		}
		rule.Conditions = append(rule.Conditions, clause)
	}

	avoid, err := buildAvoidList(rd.AvoidIf)
	if err != nil {
		return fail("avoid_if", err)
	}
	rule.AvoidIf = avoid
	rule.AvoidIngredients = skincare.NormalizeTags(rd.AvoidIngredients)

	if rd.Actions == nil {
		return fail("actions", fmt.Errorf("actions are required"))
	}
	actions, err := rd.Actions.build(rule.Name)
	if err != nil {
		return fail("actions", err)
	}
	if actions.empty() {
		return fail("actions", fmt.Errorf("action bundle is empty"))
	}
	rule.Actions = actions
	return rule, nil
}

func (ad *actionsDoc) build(ruleName string) (Actions, error) {
	var a Actions

	seenProducts := map[string]struct{}{}
	for i, p := range ad.Products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return Actions{}, fmt.Errorf("products[%d]: id is required", i)
		}
		if _, ok := seenProducts[id]; ok {
			continue
		}
		seenProducts[id] = struct{}{}
		reason := strings.TrimSpace(p.Reason)
		if reason == "" {
			reason = ruleName
		}
		a.Products = append(a.Products, ProductAction{ExternalID: id, Reason: reason})
	}

	a.ProductTags = dedupKeepOrder(ad.ProductTags, skincare.NormalizeTag)
	a.DietIncrease = dedupKeepOrder(ad.Diet.Increase, strings.TrimSpace)
	a.DietLimit = dedupKeepOrder(ad.Diet.Limit, strings.TrimSpace)
	a.Warnings = dedupKeepOrder(ad.Warnings, strings.TrimSpace)
	a.Escalation = strings.TrimSpace(ad.Escalation)

	if s := strings.TrimSpace(ad.Severity); s != "" {
		level, err := escalation.ParseLevel(s)
		if err != nil {
			return Actions{}, fmt.Errorf("severity: %w", err)
		}
		if level != escalation.None {
			a.Severity = &level
		}
	}

	routine, err := buildRoutine(&ad.Routine)
	if err != nil {
		return Actions{}, err
	}
	a.Routine = routine
	return a, nil
}

// buildRoutine keeps the step order as declared in the document.
func buildRoutine(node *yaml.Node) ([]RoutineAction, error) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("routine: line %d: expected a mapping of step to text", node.Line)
	}
	out := make([]RoutineAction, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("routine.%s: line %d: expected text", key.Value, val.Line)
		}
		step := skincare.NormalizeTag(key.Value)
		text := strings.TrimSpace(val.Value)
		if step == "" || text == "" {
			continue
		}
		out = append(out, RoutineAction{Step: step, Text: text})
	}
	return out, nil
}

func dedupKeepOrder(in []string, norm func(string) string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		n := norm(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
