// Package feedback aggregates user feedback on stored recommendations.
// Everything here reads a caller-supplied snapshot and mutates nothing.
package feedback

import (
	"fmt"

	"github.com/haski/recengine/pkg/skincare"
)

// Stats summarizes a batch of feedback records.
type Stats struct {
	Count                int     `json:"count"`
	MeanHelpfulness      float64 `json:"mean_helpfulness"`
	MeanSatisfaction     float64 `json:"mean_satisfaction"`
	MeanCompletion       float64 `json:"mean_completion_pct"`
	WouldRecommendCount  int     `json:"would_recommend_count"`
	WouldRecommendRate   float64 `json:"would_recommend_rate"`
	AdverseReactionCount int     `json:"adverse_reaction_count"`
}

// Summarize computes means and counts over records. An empty batch yields zero stats.
func Summarize(records []skincare.FeedbackRecord) Stats {
	var s Stats
	if len(records) == 0 {
		return s
	}
	var helpful, satisfied, completion float64
	for _, r := range records {
		helpful += float64(r.Helpfulness)
		satisfied += float64(r.ProductSatisfaction)
		completion += r.RoutineCompletion
		if r.WouldRecommend {
			s.WouldRecommendCount++
		}
		if r.HasAdverseReaction() {
			s.AdverseReactionCount++
		}
	}
	n := float64(len(records))
	s.Count = len(records)
	s.MeanHelpfulness = helpful / n
	s.MeanSatisfaction = satisfied / n
	s.MeanCompletion = completion / n
	s.WouldRecommendRate = float64(s.WouldRecommendCount) / n
	return s
}

// Satisfaction levels derived from helpfulness.
const (
	SatisfactionHigh   = "high"
	SatisfactionMedium = "medium"
	SatisfactionLow    = "low"
)

// Routine adherence buckets.
const (
	AdherenceExcellent = "excellent"
	AdherenceGood      = "good"
	AdherenceFair      = "fair"
	AdherencePoor      = "poor"
)

// Product quality assessments derived from product satisfaction.
const (
	QualityHigh             = "high_quality"
	QualityAcceptable       = "acceptable"
	QualityNeedsImprovement = "needs_improvement"
)

// Escalation severities. These are follow-up flags for the care team and
// are unrelated to the rule engine's escalation levels.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// Escalation types.
const (
	EscalationAdverseReaction = "adverse_reaction"
	EscalationLowAdherence    = "low_adherence"
	EscalationLowHelpfulness  = "low_helpfulness"
)

type Escalation struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Insights is the interpretation of a single feedback record.
type Insights struct {
	Satisfaction   string       `json:"satisfaction"`
	Adherence      string       `json:"adherence"`
	ProductQuality string       `json:"product_quality"`
	Suggestions    []string     `json:"suggestions"`
	Escalations    []Escalation `json:"escalations"`
}

// RequiresAttention reports whether any high-severity escalation was raised.
func (in Insights) RequiresAttention() bool {
	for _, e := range in.Escalations {
		if e.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// ClassifyInsights grades one record and lists follow-ups.
func ClassifyInsights(r skincare.FeedbackRecord) Insights {
	in := Insights{
		Satisfaction:   satisfactionLevel(r.Helpfulness),
		Adherence:      adherenceLevel(r.RoutineCompletion),
		ProductQuality: qualityLevel(r.ProductSatisfaction),
		Suggestions:    []string{},
		Escalations:    []Escalation{},
	}

	switch in.Adherence {
	case AdherencePoor:
		in.Suggestions = append(in.Suggestions, "Simplify the routine to fewer steps")
		in.Escalations = append(in.Escalations, Escalation{
			Type:     EscalationLowAdherence,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("Routine completion at %.0f%%", r.RoutineCompletion),
		})
	case AdherenceFair:
		in.Suggestions = append(in.Suggestions, "Add reminders for the routine steps most often skipped")
	}

	if in.Satisfaction == SatisfactionLow {
		in.Suggestions = append(in.Suggestions, "Revisit the recommendation with the user's updated concerns")
		in.Escalations = append(in.Escalations, Escalation{
			Type:     EscalationLowHelpfulness,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("Helpfulness rated %d of 5", r.Helpfulness),
		})
	}

	if in.ProductQuality == QualityNeedsImprovement {
		in.Suggestions = append(in.Suggestions, "Consider alternative products in the same category")
	}

	if r.HasAdverseReaction() {
		in.Suggestions = append(in.Suggestions, "Stop the product and review ingredients against known sensitivities")
		in.Escalations = append(in.Escalations, Escalation{
			Type:     EscalationAdverseReaction,
			Severity: SeverityHigh,
			Message:  "Adverse reaction reported: " + r.AdverseReaction,
		})
	}
	return in
}

func satisfactionLevel(helpfulness int) string {
	switch {
	case helpfulness >= 4:
		return SatisfactionHigh
	case helpfulness == 3:
		return SatisfactionMedium
	default:
		return SatisfactionLow
	}
}

func adherenceLevel(pct float64) string {
	switch {
	case pct >= 80:
		return AdherenceExcellent
	case pct >= 60:
		return AdherenceGood
	case pct >= 40:
		return AdherenceFair
	default:
		return AdherencePoor
	}
}

func qualityLevel(satisfaction int) string {
	switch {
	case satisfaction >= 4:
		return QualityHigh
	case satisfaction == 3:
		return QualityAcceptable
	default:
		return QualityNeedsImprovement
	}
}

// HelpfulThreshold is the product satisfaction at or above which a record
// counts as helpful for ranking.
const HelpfulThreshold = 4

// Signal is the per-product feedback aggregate the ranker consumes.
type Signal struct {
	Count            int     `json:"count"`
	MeanSatisfaction float64 `json:"mean_satisfaction"`
	HelpfulRatio     float64 `json:"helpful_ratio"`
}

// ProductSignals groups records by product id. Records without a product are ignored.
func ProductSignals(records []skincare.FeedbackRecord) map[string]Signal {
	type acc struct {
		n, helpful int
		sum        float64
	}
	byProduct := map[string]*acc{}
	for _, r := range records {
		id := r.ProductID
		if id == "" {
			continue
		}
		a, ok := byProduct[id]
		if !ok {
			a = &acc{}
			byProduct[id] = a
		}
		a.n++
		a.sum += float64(r.ProductSatisfaction)
		if r.ProductSatisfaction >= HelpfulThreshold {
			a.helpful++
		}
	}

	out := make(map[string]Signal, len(byProduct))
	for id, a := range byProduct {
		out[id] = Signal{
			Count:            a.n,
			MeanSatisfaction: a.sum / float64(a.n),
			HelpfulRatio:     float64(a.helpful) / float64(a.n),
		}
	}
	return out
}
