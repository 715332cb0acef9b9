package batch

import (
	"fmt"
	"strings"
)

// Policy decides how Add handles a value that already exists.
type Policy int

// Conflict policies.
const (
	PolicyError Policy = iota
	PolicyIgnore
	PolicyUpdate
)

// String returns the policy name used in configuration.
func (p Policy) String() string {
	switch p {
	case PolicyError:
		return "error"
	case PolicyIgnore:
		return "ignore"
	case PolicyUpdate:
		return "update"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses "error", "ignore" or "update".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "error", "":
		return PolicyError, nil
	case "ignore":
		return PolicyIgnore, nil
	case "update", "overwrite":
		return PolicyUpdate, nil
	default:
		return 0, fmt.Errorf("batch: unknown conflict policy %q", s)
	}
}
