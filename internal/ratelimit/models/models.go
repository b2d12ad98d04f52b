// Package models holds the rate limiting vocabulary: endpoint classes, the
// per-class limits, and the outcome of a check.
package models

import (
	"strings"
	"time"
)

// EndpointClass categorizes endpoints for differentiated limits.
type EndpointClass string

const (
	// ClassUpload covers document uploads, the most expensive operation:
	// content hashing, dedup lookup, and a ledger round trip.
	ClassUpload EndpointClass = "upload"
	// ClassMutation covers lifecycle transitions and administrative writes.
	ClassMutation EndpointClass = "mutation"
	// ClassRead covers list and get operations.
	ClassRead EndpointClass = "read"
)

// Valid reports whether the class is one of the supported values.
func (c EndpointClass) Valid() bool {
	switch c {
	case ClassUpload, ClassMutation, ClassRead:
		return true
	}
	return false
}

// Limit is the request budget for one class.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultLimits returns the per-class budgets applied when the limiter is not
// configured otherwise.
func DefaultLimits() map[EndpointClass]Limit {
	return map[EndpointClass]Limit{
		ClassUpload:   {Requests: 10, Window: time.Minute},
		ClassMutation: {Requests: 30, Window: time.Minute},
		ClassRead:     {Requests: 120, Window: time.Minute},
	}
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	// RetryAfter is whole seconds until the next request could pass. Only
	// set when the check was denied.
	RetryAfter int `json:"retryAfter,omitempty"`
}

// SanitizeKeySegment escapes the key delimiter in identifier segments so an
// identifier containing ':' cannot address an adjacent bucket.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}
