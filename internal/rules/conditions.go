package rules

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/haski/recengine/pkg/skincare"
)

type Operator string

const (
	OpEquals   Operator = "equals"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
	OpRange    Operator = "range"
)

// Clause is one field/operator/operand triple. All clauses of a rule must match.
type Clause struct {
	Field  string
	Op     Operator
	Values []string
	Min    float64
	Max    float64

	numbers []float64
}

type fieldKind int

const (
	kindEnum fieldKind = iota
	kindBool
	kindNumber
	kindSet
)

const lifestylePrefix = "lifestyle."

var enumValues = map[string][]string{
	"skin_type":   {"oily", "dry", "combination", "normal", "sensitive"},
	"hair_type":   {"straight", "wavy", "curly", "coily"},
	"sensitivity": {"low", "normal", "sensitive", "very_sensitive"},
}

func kindOf(field string) (fieldKind, bool) {
	switch field {
	case "skin_type", "hair_type", "sensitivity":
		return kindEnum, true
	case "pregnant", "breastfeeding":
		return kindBool, true
	case "age":
		return kindNumber, true
	case "conditions", "allergies":
		return kindSet, true
	}
	if strings.HasPrefix(field, lifestylePrefix) && len(field) > len(lifestylePrefix) {
		return kindBool, true
	}
	return 0, false
}

// clauseDoc keeps operands as raw nodes; an absent key leaves Kind zero.
type clauseDoc struct {
	Field    string    `yaml:"field"`
	Equals   yaml.Node `yaml:"equals"`
	In       yaml.Node `yaml:"in"`
	Contains yaml.Node `yaml:"contains"`
	Range    yaml.Node `yaml:"range"`
}

func (cd clauseDoc) build() (Clause, error) {
	field := skincare.NormalizeTag(cd.Field)
	kind, ok := kindOf(field)
	if !ok {
		return Clause{}, fmt.Errorf("unknown field %q", cd.Field)
	}

	var (
		op      Operator
		operand *yaml.Node
		count   int
	)
	for _, cand := range []struct {
		op   Operator
		node *yaml.Node
	}{{OpEquals, &cd.Equals}, {OpIn, &cd.In}, {OpContains, &cd.Contains}, {OpRange, &cd.Range}} {
		if cand.node.Kind != 0 {
			op, operand = cand.op, cand.node
			count++
		}
	}
	if count != 1 {
		return Clause{}, fmt.Errorf("field %s: exactly one of equals, in, contains, range is required", field)
	}

	c := Clause{Field: field, Op: op}
	switch op {
	case OpEquals:
		if kind == kindSet {
			return Clause{}, fmt.Errorf("field %s: equals needs a scalar field, use contains", field)
		}
		if operand.Kind != yaml.ScalarNode {
			return Clause{}, fmt.Errorf("field %s: equals operand must be a scalar (line %d)", field, operand.Line)
		}
		if err := c.addScalar(kind, operand.Value); err != nil {
			return Clause{}, err
		}
	case OpIn:
		if kind == kindSet {
			return Clause{}, fmt.Errorf("field %s: in needs a scalar field, use contains", field)
		}
		items, err := scalarSeq(field, op, operand)
		if err != nil {
			return Clause{}, err
		}
		for _, item := range items {
			if err := c.addScalar(kind, item); err != nil {
				return Clause{}, err
			}
		}
	case OpContains:
		if kind != kindSet {
			return Clause{}, fmt.Errorf("field %s: contains needs a set field", field)
		}
		items, err := scalarSeq(field, op, operand)
		if err != nil {
			return Clause{}, err
		}
		c.Values = skincare.NormalizeTags(items)
		if len(c.Values) == 0 {
			return Clause{}, fmt.Errorf("field %s: contains operand is empty", field)
		}
	case OpRange:
		if kind != kindNumber {
			return Clause{}, fmt.Errorf("field %s: range needs a numeric field", field)
		}
		items, err := scalarSeq(field, op, operand)
		if err != nil {
			return Clause{}, err
		}
		if len(items) != 2 {
			return Clause{}, fmt.Errorf("field %s: range operand must be [min, max], got %d values", field, len(items))
		}
		lo, errLo := strconv.ParseFloat(items[0], 64)
		hi, errHi := strconv.ParseFloat(items[1], 64)
		if errLo != nil || errHi != nil {
			return Clause{}, fmt.Errorf("field %s: range bounds must be numbers", field)
		}
		if lo > hi {
			return Clause{}, fmt.Errorf("field %s: range min %v exceeds max %v", field, lo, hi)
		}
		c.Min, c.Max = lo, hi
	}
	return c, nil
}

func (c *Clause) addScalar(kind fieldKind, raw string) error {
	v := skincare.NormalizeTag(raw)
	switch kind {
	case kindEnum:
		if !containsString(enumValues[c.Field], v) {
			return fmt.Errorf("field %s: %q is not one of %v", c.Field, raw, enumValues[c.Field])
		}
	case kindBool:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("field %s: %q is not a boolean", c.Field, raw)
		}
		v = strconv.FormatBool(b)
	case kindNumber:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("field %s: %q is not a number", c.Field, raw)
		}
		c.numbers = append(c.numbers, n)
	}
	c.Values = append(c.Values, v)
	return nil
}

func scalarSeq(field string, op Operator, node *yaml.Node) ([]string, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("field %s: %s operand must be a list (line %d)", field, op, node.Line)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("field %s: %s operand is empty", field, op)
	}
	out := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("field %s: %s operand must hold scalars (line %d)", field, op, item.Line)
		}
		out = append(out, item.Value)
	}
	return out, nil
}

// Evaluate reports whether every clause matches. No clauses always match.
func Evaluate(clauses []Clause, uc skincare.UserContext) bool {
	for _, c := range clauses {
		if !c.Matches(uc) {
			return false
		}
	}
	return true
}

// Matches never matches on a field the context does not carry.
func (c Clause) Matches(uc skincare.UserContext) bool {
	v, ok := lookup(c.Field, uc)
	if !ok {
		return false
	}

	switch c.Op {
	case OpEquals, OpIn:
		for i := range c.Values {
			if c.scalarEquals(v, i) {
				return true
			}
		}
		return false
	case OpContains:
		for _, want := range c.Values {
			if !containsString(v.set, want) {
				return false
			}
		}
		return true
	case OpRange:
		return v.num >= c.Min && v.num <= c.Max
	default:
		return false
	}
}

func (c Clause) scalarEquals(v fieldValue, i int) bool {
	switch v.kind {
	case kindNumber:
		return i < len(c.numbers) && v.num == c.numbers[i]
	default:
		return v.str == c.Values[i]
	}
}

type fieldValue struct {
	kind fieldKind
	str  string
	num  float64
	set  []string
}

func lookup(field string, uc skincare.UserContext) (fieldValue, bool) {
	switch field {
	case "skin_type":
		return enumValue(string(uc.SkinType))
	case "hair_type":
		return enumValue(string(uc.HairType))
	case "sensitivity":
		return enumValue(string(uc.Sensitivity))
	case "age":
		if uc.Age == nil {
			return fieldValue{}, false
		}
		return fieldValue{kind: kindNumber, num: float64(*uc.Age)}, true
	case "pregnant":
		return boolValue(uc.Pregnant), true
	case "breastfeeding":
		return boolValue(uc.Breastfeeding), true
	case "conditions":
		return fieldValue{kind: kindSet, set: skincare.NormalizeTags(uc.Conditions)}, true
	case "allergies":
		return fieldValue{kind: kindSet, set: skincare.NormalizeTags(uc.Allergies)}, true
	}
	if strings.HasPrefix(field, lifestylePrefix) {
		flag, ok := uc.Flag(strings.TrimPrefix(field, lifestylePrefix))
		if !ok {
			return fieldValue{}, false
		}
		return boolValue(flag), true
	}
	return fieldValue{}, false
}

func enumValue(s string) (fieldValue, bool) {
	s = skincare.NormalizeTag(s)
	if s == "" {
		return fieldValue{}, false
	}
	return fieldValue{kind: kindEnum, str: s}, true
}

func boolValue(b bool) fieldValue {
	return fieldValue{kind: kindBool, str: strconv.FormatBool(b)}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
