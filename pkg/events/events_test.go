package events

import (
	"testing"
)

func TestEscalationValid(t *testing.T) {
	base := func() Escalation {
		return Escalation{RecommendationID: "r", Source: SourceEngine, Severity: "urgent", TsUnixNs: 1}
	}

	tests := []struct {
		name   string
		mutate func(*Escalation)
		want   error
	}{
		{"valid", func(*Escalation) {}, nil},
		{"no recommendation", func(e *Escalation) { e.RecommendationID = "" }, ErrMissingRecommendationID},
		{"bad source", func(e *Escalation) { e.Source = "cron" }, ErrUnknownSource},
		{"no severity", func(e *Escalation) { e.Severity = "" }, ErrMissingSeverity},
		{"no timestamp", func(e *Escalation) { e.TsUnixNs = 0 }, ErrInvalidTimestamp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base()
			tt.mutate(&e)
			if err := e.Valid(); err != tt.want {
				t.Errorf("Valid() = %v, want %v", err, tt.want)
			}
		})
	}
}
