package engine

import (
	"strings"

	"github.com/haski/recengine/internal/escalation"
	"github.com/haski/recengine/internal/rules"
)

// Diet action types.
const (
	DietIncrease = "increase"
	DietLimit    = "limit"
)

// RoutineSeparator joins routine text contributed by different rules for the same step.
const RoutineSeparator = " | "

type RoutineStep struct {
	Step        string   `json:"step"`
	Text        string   `json:"text"`
	SourceRules []string `json:"source_rules"`
}

type ProductRef struct {
	ExternalID  string   `json:"external_id"`
	Reason      string   `json:"reason"`
	SourceRules []string `json:"source_rules"`
}

type TagRef struct {
	Tag         string   `json:"tag"`
	SourceRules []string `json:"source_rules"`
}

type DietAdjustment struct {
	Action      string   `json:"action"`
	Items       []string `json:"items"`
	SourceRules []string `json:"source_rules"`
}

type Warning struct {
	Text        string   `json:"text"`
	SourceRules []string `json:"source_rules"`
}

// Recommendation is the merged output of every applied rule. Each collection
// is keyed: a second rule touching a key only extends that entry.
type Recommendation struct {
	Routine     []RoutineStep     `json:"routine"`
	Products    []ProductRef      `json:"products"`
	ProductTags []TagRef          `json:"product_tags"`
	Diet        []DietAdjustment  `json:"diet"`
	Warnings    []Warning         `json:"warnings"`
	Escalation  *escalation.State `json:"escalation,omitempty"`
}

// Empty reports whether no rule contributed anything.
func (r Recommendation) Empty() bool {
	return len(r.Routine) == 0 && len(r.Products) == 0 && len(r.ProductTags) == 0 &&
		len(r.Diet) == 0 && len(r.Warnings) == 0 && r.Escalation == nil
}

// TagSet returns the recommended product tags.
func (r Recommendation) TagSet() map[string]struct{} {
	out := make(map[string]struct{}, len(r.ProductTags))
	for _, t := range r.ProductTags {
		out[t.Tag] = struct{}{}
	}
	return out
}

// Product returns the reference for an external id, if any rule named it.
func (r Recommendation) Product(externalID string) (ProductRef, bool) {
	for _, p := range r.Products {
		if p.ExternalID == externalID {
			return p, true
		}
	}
	return ProductRef{}, false
}

// builder accumulates rule actions during one evaluation pass.
type builder struct {
	rec        Recommendation
	routineIdx map[string]int
	segments   map[string][]string
	productIdx map[string]int
	tagIdx     map[string]int
	dietIdx    map[string]int
	warningIdx map[string]int
	esc        escalation.State
}

func newBuilder() *builder {
	return &builder{
		routineIdx: map[string]int{},
		segments:   map[string][]string{},
		productIdx: map[string]int{},
		tagIdx:     map[string]int{},
		dietIdx:    map[string]int{},
		warningIdx: map[string]int{},
	}
}

func (b *builder) merge(rule rules.Rule) {
	a := rule.Actions
	id := rule.ID

	for _, step := range a.Routine {
		b.addRoutine(step.Step, step.Text, id)
	}
	for _, p := range a.Products {
		if i, ok := b.productIdx[p.ExternalID]; ok {
			b.rec.Products[i].SourceRules = addSource(b.rec.Products[i].SourceRules, id)
			continue
		}
		b.productIdx[p.ExternalID] = len(b.rec.Products)
		b.rec.Products = append(b.rec.Products, ProductRef{ExternalID: p.ExternalID, Reason: p.Reason, SourceRules: []string{id}})
	}
	for _, tag := range a.ProductTags {
		if i, ok := b.tagIdx[tag]; ok {
			b.rec.ProductTags[i].SourceRules = addSource(b.rec.ProductTags[i].SourceRules, id)
			continue
		}
		b.tagIdx[tag] = len(b.rec.ProductTags)
		b.rec.ProductTags = append(b.rec.ProductTags, TagRef{Tag: tag, SourceRules: []string{id}})
	}
	b.addDiet(DietIncrease, a.DietIncrease, id)
	b.addDiet(DietLimit, a.DietLimit, id)
	for _, text := range a.Warnings {
		if i, ok := b.warningIdx[text]; ok {
			b.rec.Warnings[i].SourceRules = addSource(b.rec.Warnings[i].SourceRules, id)
			continue
		}
		b.warningIdx[text] = len(b.rec.Warnings)
		b.rec.Warnings = append(b.rec.Warnings, Warning{Text: text, SourceRules: []string{id}})
	}

	b.esc.Fold(a.EscalationLevel(), a.Escalation, id)
}

func (b *builder) addRoutine(step, text, ruleID string) {
	i, ok := b.routineIdx[step]
	if !ok {
		b.routineIdx[step] = len(b.rec.Routine)
		b.segments[step] = []string{text}
		b.rec.Routine = append(b.rec.Routine, RoutineStep{Step: step, Text: text, SourceRules: []string{ruleID}})
		return
	}
	entry := &b.rec.Routine[i]
	entry.SourceRules = addSource(entry.SourceRules, ruleID)
	for _, seg := range b.segments[step] {
		if seg == text {
			return
		}
	}
	b.segments[step] = append(b.segments[step], text)
	entry.Text = strings.Join(b.segments[step], RoutineSeparator)
}

func (b *builder) addDiet(action string, items []string, ruleID string) {
	if len(items) == 0 {
		return
	}
	i, ok := b.dietIdx[action]
	if !ok {
		b.dietIdx[action] = len(b.rec.Diet)
		b.rec.Diet = append(b.rec.Diet, DietAdjustment{Action: action, SourceRules: []string{ruleID}})
		i = len(b.rec.Diet) - 1
	} else {
		b.rec.Diet[i].SourceRules = addSource(b.rec.Diet[i].SourceRules, ruleID)
	}
	entry := &b.rec.Diet[i]
	for _, item := range items {
		if !containsFold(entry.Items, item) {
			entry.Items = append(entry.Items, item)
		}
	}
}

func (b *builder) finish() Recommendation {
	rec := b.rec
	if rec.Routine == nil {
		rec.Routine = []RoutineStep{}
	}
	if rec.Products == nil {
		rec.Products = []ProductRef{}
	}
	if rec.ProductTags == nil {
		rec.ProductTags = []TagRef{}
	}
	if rec.Diet == nil {
		rec.Diet = []DietAdjustment{}
	}
	if rec.Warnings == nil {
		rec.Warnings = []Warning{}
	}
	rec.Escalation = b.esc.Finalize()
	return rec
}

func addSource(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
