// Package escalation grades how strongly a recommendation should send the
// user to a professional, and folds per-rule grades into one verdict.
package escalation

import (
	"fmt"
	"strings"
)

// Level is totally ordered: None < Warning < Caution < Urgent < Emergency.
type Level int

const (
	None Level = iota
	Warning
	Caution
	Urgent
	Emergency
)

// DefaultMessage is used when a non-none level was reached without any hint text.
const DefaultMessage = "Please consult a dermatologist or healthcare professional."

var levelNames = [...]string{"none", "warning", "caution", "urgent", "emergency"}

func (l Level) String() string {
	if l < None || l > Emergency {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLevel maps an explicit severity name to a Level.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return None, fmt.Errorf("unknown escalation level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

var emergencyTokens = []string{"emergency", "911"}

// Classify grades free-text hint by keyword priority. Empty text is None;
// any other text without a keyword is Caution.
func Classify(hint string) Level {
	text := strings.ToLower(strings.TrimSpace(hint))
	if text == "" {
		return None
	}
	for _, tok := range emergencyTokens {
		if strings.Contains(text, tok) {
			return Emergency
		}
	}
	if strings.Contains(text, "urgent") || strings.Contains(text, "immediately") {
		return Urgent
	}
	if strings.Contains(text, "warn") {
		return Warning
	}
	return Caution
}

// State is the running escalation verdict of one evaluation pass.
type State struct {
	Level       Level    `json:"level"`
	Message     string   `json:"message"`
	SourceRules []string `json:"source_rules"`
}

// Fold raises the state to level if higher, joins the contributors on a tie
// and ignores lower levels. The first message seen at the top level is kept,
// even when it is empty; Finalize supplies the default text.
func (s *State) Fold(level Level, message, ruleID string) {
	if level == None {
		return
	}
	switch {
	case level > s.Level:
		s.Level = level
		s.Message = message
		s.SourceRules = []string{ruleID}
	case level == s.Level:
		for _, id := range s.SourceRules {
			if id == ruleID {
				return
			}
		}
		s.SourceRules = append(s.SourceRules, ruleID)
	}
}

// Finalize returns nil when nothing escalated, otherwise a copy with a
// message guaranteed.
func (s *State) Finalize() *State {
	if s == nil || s.Level == None {
		return nil
	}
	out := &State{
		Level:       s.Level,
		Message:     s.Message,
		SourceRules: append([]string(nil), s.SourceRules...),
	}
	if strings.TrimSpace(out.Message) == "" {
		out.Message = DefaultMessage
	}
	return out
}
