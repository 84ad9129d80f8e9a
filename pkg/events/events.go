// Package events defines the messages exchanged over NATS.
package events

import (
	"github.com/goccy/go-json"

	"github.com/haski/recengine/pkg/skincare"
)

type Source string

const (
	SourceEngine   Source = "engine"
	SourceFeedback Source = "feedback"
)

// Escalation is published whenever a recommendation or a feedback record
// calls for professional follow-up.
type Escalation struct {
	RecommendationID string   `json:"recommendation_id"`
	UserID           string   `json:"user_id,omitempty"`
	Source           Source   `json:"source"`
	Kind             string   `json:"kind"`
	Severity         string   `json:"severity"`
	Message          string   `json:"message"`
	RuleIDs          []string `json:"rule_ids,omitempty"`
	TsUnixNs         int64    `json:"ts_unix_ns"`
}

func (e *Escalation) Valid() error {
	if e.RecommendationID == "" {
		return ErrMissingRecommendationID
	}
	if e.Source != SourceEngine && e.Source != SourceFeedback {
		return ErrUnknownSource
	}
	if e.Severity == "" {
		return ErrMissingSeverity
	}
	if e.TsUnixNs <= 0 {
		return ErrInvalidTimestamp
	}
	return nil
}

var (
	ErrMissingRecommendationID = &validationError{"missing recommendation_id"}
	ErrUnknownSource           = &validationError{"unknown source"}
	ErrMissingSeverity         = &validationError{"missing severity"}
	ErrInvalidTimestamp        = &validationError{"invalid timestamp"}
)

type validationError struct {
	msg string
}

func (v *validationError) Error() string {
	return v.msg
}

// Reply error codes.
const (
	CodeInvalid     = "invalid_request"
	CodeNotFound    = "not_found"
	CodeUnavailable = "unavailable"
	CodeInternal    = "internal"
)

type ReplyError struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Fields  []skincare.FieldError `json:"fields,omitempty"`
}

// Reply is the envelope returned on request/reply subjects.
type Reply struct {
	OK     bool            `json:"ok"`
	Error  *ReplyError     `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// FeedbackAck acknowledges a feedback record received over NATS.
type FeedbackAck struct {
	RecommendationID  string `json:"recommendation_id"`
	Accepted          bool   `json:"accepted"`
	RequiresAttention bool   `json:"requires_attention"`
}
