// Package engine evaluates a rule catalog against one user context and
// merges every applicable rule into a single Recommendation.
package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/haski/recengine/internal/metrics"
	"github.com/haski/recengine/internal/rules"
	"github.com/haski/recengine/pkg/skincare"
)

// Result is the engine output for one request.
type Result struct {
	Recommendation Recommendation `json:"recommendation"`
	// AppliedRuleIDs lists merged rules in application order.
	AppliedRuleIDs []string `json:"applied_rule_ids"`
	// SkippedRuleIDs lists rules that matched but were contraindicated.
	SkippedRuleIDs []string `json:"skipped_rule_ids,omitempty"`
	CatalogVersion string   `json:"catalog_version"`
}

// Evaluate runs the catalog in priority order. It reads nothing but its
// arguments and never fails: an absent field simply does not match.
func Evaluate(cat *rules.Catalog, uc skincare.UserContext) Result {
	b := newBuilder()
	res := Result{
		AppliedRuleIDs: []string{},
		CatalogVersion: cat.Version(),
	}

	for _, rule := range cat.Rules() {
		if !rule.Matches(uc) {
			continue
		}
		if rule.Contraindicated(uc) {
			res.SkippedRuleIDs = append(res.SkippedRuleIDs, rule.ID)
			continue
		}
		b.merge(rule)
		res.AppliedRuleIDs = append(res.AppliedRuleIDs, rule.ID)
	}

	res.Recommendation = b.finish()
	return res
}

// Engine applies the current catalog snapshot of a store.
type Engine struct {
	store  *rules.Store
	logger zerolog.Logger
}

// New returns an engine reading snapshots from store.
func New(store *rules.Store, logger zerolog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Apply validates uc, then evaluates it. Invalid input yields a
// *skincare.ValidationError and no rule is evaluated.
func (e *Engine) Apply(uc skincare.UserContext) (*Result, error) {
	if err := uc.Validate(); err != nil {
		return nil, err
	}

	cat := e.store.Current()
	if cat == nil {
		return nil, &rules.ConfigError{Source: e.store.Path(), Err: errNoCatalog}
	}

	start := time.Now()
	res := Evaluate(cat, uc)
	metrics.EvaluationLatency.Observe(time.Since(start).Seconds())

	for _, id := range res.AppliedRuleIDs {
		metrics.RulesApplied.WithLabelValues(id).Inc()
	}
	for _, id := range res.SkippedRuleIDs {
		metrics.RulesContraindicated.WithLabelValues(id).Inc()
	}
	level := "none"
	if res.Recommendation.Escalation != nil {
		level = res.Recommendation.Escalation.Level.String()
	}
	metrics.Escalations.WithLabelValues(level).Inc()

	e.logger.Debug().
		Str("catalog_version", res.CatalogVersion).
		Strs("applied_rules", res.AppliedRuleIDs).
		Strs("skipped_rules", res.SkippedRuleIDs).
		Str("escalation", level).
		Dur("took", time.Since(start)).
		Msg("rules evaluated")

	return &res, nil
}

// Catalog returns the snapshot new requests are evaluated against.
func (e *Engine) Catalog() *rules.Catalog {
	return e.store.Current()
}
