package storage

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// RecommendationRecord is one stored engine run. Payload holds the full
// response document; the other columns are for querying.
type RecommendationRecord struct {
	ID              string
	UserID          string
	CatalogVersion  string
	AppliedRuleIDs  []string
	EscalationLevel string
	Payload         json.RawMessage
	CreatedAt       time.Time
}

// EscalationEvent is a follow-up raised for a recommendation, either by the
// engine or by user feedback
type EscalationEvent struct {
	ID               int64
	RecommendationID string
	Kind             string // "engine", "adverse_reaction", "low_adherence", ...
	Severity         string
	Message          string
	CreatedAt        time.Time
}
