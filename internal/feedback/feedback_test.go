package feedback

import (
	"math"
	"testing"

	"github.com/haski/recengine/pkg/skincare"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSummarize(t *testing.T) {
	records := []skincare.FeedbackRecord{
		{RecommendationID: "a", Helpfulness: 5, ProductSatisfaction: 4, RoutineCompletion: 90, WouldRecommend: true},
		{RecommendationID: "a", Helpfulness: 3, ProductSatisfaction: 2, RoutineCompletion: 50, AdverseReaction: "mild redness"},
		{RecommendationID: "a", Helpfulness: 1, ProductSatisfaction: 3, RoutineCompletion: 10, AdverseReaction: "   "},
		{RecommendationID: "a", Helpfulness: 3, ProductSatisfaction: 3, RoutineCompletion: 70, WouldRecommend: true},
	}

	s := Summarize(records)
	if s.Count != 4 {
		t.Fatalf("Count = %d, want 4", s.Count)
	}
	if !approx(s.MeanHelpfulness, 3) {
		t.Errorf("MeanHelpfulness = %v, want 3", s.MeanHelpfulness)
	}
	if !approx(s.MeanSatisfaction, 3) {
		t.Errorf("MeanSatisfaction = %v, want 3", s.MeanSatisfaction)
	}
	if !approx(s.MeanCompletion, 55) {
		t.Errorf("MeanCompletion = %v, want 55", s.MeanCompletion)
	}
	if s.WouldRecommendCount != 2 || !approx(s.WouldRecommendRate, 0.5) {
		t.Errorf("would recommend = %d / %v", s.WouldRecommendCount, s.WouldRecommendRate)
	}
	if s.AdverseReactionCount != 1 {
		t.Errorf("AdverseReactionCount = %d, want 1 (blank notes do not count)", s.AdverseReactionCount)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if s := Summarize(nil); s != (Stats{}) {
		t.Errorf("Summarize(nil) = %+v, want zero", s)
	}
}

func TestClassifyInsightsBuckets(t *testing.T) {
	tests := []struct {
		name         string
		helpfulness  int
		satisfaction int
		completion   float64
		wantSat      string
		wantAdh      string
		wantQuality  string
	}{
		{"top marks", 5, 5, 100, SatisfactionHigh, AdherenceExcellent, QualityHigh},
		{"boundaries high", 4, 4, 80, SatisfactionHigh, AdherenceExcellent, QualityHigh},
		{"middle", 3, 3, 60, SatisfactionMedium, AdherenceGood, QualityAcceptable},
		{"fair", 2, 2, 40, SatisfactionLow, AdherenceFair, QualityNeedsImprovement},
		{"poor", 1, 1, 39.9, SatisfactionLow, AdherencePoor, QualityNeedsImprovement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ClassifyInsights(skincare.FeedbackRecord{
				RecommendationID:    "r",
				Helpfulness:         tt.helpfulness,
				ProductSatisfaction: tt.satisfaction,
				RoutineCompletion:   tt.completion,
			})
			if in.Satisfaction != tt.wantSat {
				t.Errorf("Satisfaction = %s, want %s", in.Satisfaction, tt.wantSat)
			}
			if in.Adherence != tt.wantAdh {
				t.Errorf("Adherence = %s, want %s", in.Adherence, tt.wantAdh)
			}
			if in.ProductQuality != tt.wantQuality {
				t.Errorf("ProductQuality = %s, want %s", in.ProductQuality, tt.wantQuality)
			}
		})
	}
}

func TestClassifyInsightsEscalations(t *testing.T) {
	happy := ClassifyInsights(skincare.FeedbackRecord{Helpfulness: 5, ProductSatisfaction: 5, RoutineCompletion: 95})
	if len(happy.Escalations) != 0 || len(happy.Suggestions) != 0 {
		t.Errorf("happy path raised %+v", happy)
	}
	if happy.RequiresAttention() {
		t.Error("happy path should not require attention")
	}

	poor := ClassifyInsights(skincare.FeedbackRecord{Helpfulness: 1, ProductSatisfaction: 4, RoutineCompletion: 20})
	types := map[string]string{}
	for _, e := range poor.Escalations {
		types[e.Type] = e.Severity
	}
	if types[EscalationLowAdherence] != SeverityMedium || types[EscalationLowHelpfulness] != SeverityMedium {
		t.Errorf("escalations = %+v", poor.Escalations)
	}
	if poor.RequiresAttention() {
		t.Error("medium escalations should not require attention")
	}

	reaction := ClassifyInsights(skincare.FeedbackRecord{
		Helpfulness:         5,
		ProductSatisfaction: 5,
		RoutineCompletion:   100,
		AdverseReaction:     "burning sensation",
	})
	if len(reaction.Escalations) != 1 {
		t.Fatalf("escalations = %+v", reaction.Escalations)
	}
	e := reaction.Escalations[0]
	if e.Type != EscalationAdverseReaction || e.Severity != SeverityHigh {
		t.Errorf("escalation = %+v", e)
	}
	if !reaction.RequiresAttention() {
		t.Error("adverse reaction must require attention")
	}
}

func TestProductSignals(t *testing.T) {
	records := []skincare.FeedbackRecord{
		{ProductID: "P1", ProductSatisfaction: 5},
		{ProductID: "P1", ProductSatisfaction: 4},
		{ProductID: "P1", ProductSatisfaction: 2},
		{ProductID: "P2", ProductSatisfaction: 3},
		{ProductSatisfaction: 5},
	}

	signals := ProductSignals(records)
	if len(signals) != 2 {
		t.Fatalf("signals = %+v", signals)
	}
	p1 := signals["P1"]
	if p1.Count != 3 || !approx(p1.MeanSatisfaction, 11.0/3) || !approx(p1.HelpfulRatio, 2.0/3) {
		t.Errorf("P1 = %+v", p1)
	}
	p2 := signals["P2"]
	if p2.Count != 1 || p2.HelpfulRatio != 0 {
		t.Errorf("P2 = %+v", p2)
	}
}
