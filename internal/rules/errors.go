package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError reports a catalog that cannot be used. The previous catalog,
// if any, stays in effect.
type ConfigError struct {
	Source string
	RuleID string
	Field  string
	Err    error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("rule catalog")
	if e.Source != "" {
		fmt.Fprintf(&b, " %s", e.Source)
	}
	if e.RuleID != "" {
		fmt.Fprintf(&b, ": rule %s", e.RuleID)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
