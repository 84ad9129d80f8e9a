// Package ranking scores candidate products for a user and orders them.
package ranking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/haski/recengine/internal/engine"
	"github.com/haski/recengine/internal/feedback"
	"github.com/haski/recengine/internal/metrics"
	"github.com/haski/recengine/pkg/skincare"
)

// DefaultTopK is used when neither the call nor the ranker sets k.
const DefaultTopK = 5

const fallbackJustification = "recommended by the engine"

// RankedProduct is one scored candidate. It is built per call and never stored
// by this package.
type RankedProduct struct {
	Product        skincare.Product `json:"product"`
	Score          float64          `json:"score"`
	Rank           int              `json:"rank"`
	Justifications []string         `json:"justifications"`
	SafetyIssues   []string         `json:"safety_issues,omitempty"`
	Breakdown      Breakdown        `json:"breakdown"`
}

type Options struct {
	// StrictAllergyMode drops allergen-flagged products instead of penalizing them.
	StrictAllergyMode bool
	TopK              int
	Weights           *Weights
}

// Ranker holds ranking configuration. It keeps no per-call state and is safe
// for concurrent use.
type Ranker struct {
	strict  bool
	topK    int
	weights Weights
}

func New(opts Options) *Ranker {
	r := &Ranker{strict: opts.StrictAllergyMode, topK: opts.TopK, weights: DefaultWeights}
	if r.topK <= 0 {
		r.topK = DefaultTopK
	}
	if opts.Weights != nil {
		r.weights = *opts.Weights
	}
	return r
}

// Strict reports whether allergen-flagged products are excluded.
func (r *Ranker) Strict() bool {
	return r.strict
}

// Rank scores candidates and returns at most k of them, best first. Ties
// are broken by ascending product id. k <= 0 uses the configured default.
// signals may be nil.
func (r *Ranker) Rank(candidates []skincare.Product, uc skincare.UserContext, rec engine.Recommendation, signals map[string]feedback.Signal, k int) []RankedProduct {
	start := time.Now()
	defer func() { metrics.RankingLatency.Observe(time.Since(start).Seconds()) }()

	if k <= 0 {
		k = r.topK
	}
	mode := "soft"
	if r.strict {
		mode = "strict"
	}

	scored := make([]RankedProduct, 0, len(candidates))
	for _, p := range candidates {
		safety := CheckSafety(p, uc)
		if safety.Flagged() {
			metrics.AllergyFlags.WithLabelValues(mode).Inc()
			if r.strict {
				continue
			}
		}
		sig, ok := signals[p.ID]
		b := Breakdown{
			Dermatological: DermatologicalScore(p),
			Quality:        QualityScore(p),
			Feedback:       FeedbackScore(sig, ok),
			ConditionMatch: ConditionMatchScore(p, uc),
			Penalized:      safety.Flagged(),
		}
		scored = append(scored, RankedProduct{
			Product:      p,
			Score:        r.weights.Composite(b),
			SafetyIssues: safety.Issues(),
			Breakdown:    b,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Product.ID < scored[j].Product.ID
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	for i := range scored {
		scored[i].Rank = i + 1
		scored[i].Justifications = justify(scored[i].Product, uc, rec)
	}
	return scored
}

func justify(p skincare.Product, uc skincare.UserContext, rec engine.Recommendation) []string {
	var out []string
	if ref, ok := rec.Product(p.ID); ok && ref.Reason != "" {
		out = append(out, ref.Reason)
	}
	if p.DermSafe {
		out = append(out, "dermatologically tested")
	}
	matched := matchingConditions(skincare.NormalizeTags(p.RecommendedFor), skincare.NormalizeTags(uc.Conditions))
	if len(matched) > 0 {
		out = append(out, "recommended for: "+strings.Join(matched, ", "))
	}
	if p.AverageRating >= 4.0 {
		out = append(out, fmt.Sprintf("highly rated (%.1f stars)", p.AverageRating))
	}
	if p.ReviewCount >= 50 {
		out = append(out, fmt.Sprintf("popular choice (%d+ reviews)", p.ReviewCount))
	}
	if st := skincare.NormalizeTag(string(uc.SkinType)); st != "" && contains(skincare.NormalizeTags(p.Tags), st) {
		out = append(out, fmt.Sprintf("suitable for %s skin", st))
	}
	if len(out) == 0 {
		out = append(out, fallbackJustification)
	}
	return out
}

// SelectCandidates narrows the product catalog to products the
// recommendation references by id or by tag. When the recommendation
// references nothing, every product is a candidate. Catalog order is kept.
func SelectCandidates(rec engine.Recommendation, products []skincare.Product) []skincare.Product {
	tags := rec.TagSet()
	if len(rec.Products) == 0 && len(tags) == 0 {
		return products
	}
	out := make([]skincare.Product, 0, len(products))
	for _, p := range products {
		if _, ok := rec.Product(p.ID); ok {
			out = append(out, p)
			continue
		}
		for _, t := range p.Tags {
			if _, ok := tags[skincare.NormalizeTag(t)]; ok {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
