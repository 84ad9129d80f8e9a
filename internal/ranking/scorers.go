package ranking

import (
	"math"

	"github.com/haski/recengine/internal/feedback"
	"github.com/haski/recengine/pkg/skincare"
)

// Weights of the composite score. They sum to one.
type Weights struct {
	Dermatological float64 `json:"dermatological"`
	Quality        float64 `json:"quality"`
	Feedback       float64 `json:"feedback"`
	ConditionMatch float64 `json:"condition_match"`
}

var DefaultWeights = Weights{
	Dermatological: 0.25,
	Quality:        0.30,
	Feedback:       0.20,
	ConditionMatch: 0.25,
}

// AllergyPenalty multiplies the composite score of allergen-flagged products.
const AllergyPenalty = 0.9

// reviewPlateau is the review count at which ratings are fully trusted.
const reviewPlateau = 50

// Breakdown holds the sub-scores behind one composite score.
type Breakdown struct {
	Dermatological float64 `json:"dermatological"`
	Quality        float64 `json:"quality"`
	Feedback       float64 `json:"feedback"`
	ConditionMatch float64 `json:"condition_match"`
	Penalized      bool    `json:"allergy_penalty"`
}

// Composite combines the sub-scores, clamps, then applies the allergy penalty.
func (w Weights) Composite(b Breakdown) float64 {
	score := clamp(b.Dermatological*w.Dermatological +
		b.Quality*w.Quality +
		b.Feedback*w.Feedback +
		b.ConditionMatch*w.ConditionMatch)
	if b.Penalized {
		score *= AllergyPenalty
	}
	return score
}

func DermatologicalScore(p skincare.Product) float64 {
	score := 40.0
	if p.DermSafe {
		score = 100
	}
	switch n := len(p.RecommendedFor); {
	case n >= 3:
		score += 20
	case n >= 1:
		score += 10
	}
	if len(p.AvoidFor) > 5 {
		score -= 20
	}
	return clamp(score)
}

// QualityScore scales the average rating by how many reviews back it.
// Confidence is full at reviewPlateau, so reviews past that point, and in
// particular past 100, add nothing.
func QualityScore(p skincare.Product) float64 {
	confidence := math.Min(1, float64(p.ReviewCount)/reviewPlateau)
	return clamp(p.AverageRating * 20 * confidence)
}

// FeedbackScore is neutral without feedback on record.
func FeedbackScore(sig feedback.Signal, ok bool) float64 {
	if !ok || sig.Count == 0 {
		return 50
	}
	return clamp(sig.MeanSatisfaction*20 + sig.HelpfulRatio*30)
}

func ConditionMatchScore(p skincare.Product, uc skincare.UserContext) float64 {
	conditions := skincare.NormalizeTags(uc.Conditions)
	if len(conditions) == 0 {
		return 50
	}
	recommended := skincare.NormalizeTags(p.RecommendedFor)
	if len(recommended) == 0 {
		return 40
	}
	matched := matchingConditions(recommended, conditions)
	if len(matched) == 0 {
		return 30
	}
	return clamp(60 + 40*float64(len(matched))/float64(len(conditions)))
}

func matchingConditions(recommended, conditions []string) []string {
	var out []string
	for _, c := range conditions {
		if contains(recommended, c) {
			out = append(out, c)
		}
	}
	return out
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
