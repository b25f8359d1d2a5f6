// Package types provides common type definitions for the tax ledger system.
package types

import (
	"fmt"
	"strings"
	"time"
)

// EventKind represents the kind of asset movement a ledger event records
type EventKind string

const (
	// KindTrade represents a marketplace trade between two parties
	KindTrade EventKind = "trade"
	// KindMint represents a newly minted asset
	KindMint EventKind = "mint"
	// KindWithdraw represents an asset leaving custody
	KindWithdraw EventKind = "withdraw"
	// KindReward represents a reward or staking payout
	KindReward EventKind = "reward"
	// KindAcquisition represents a priced acquisition that feeds the cost basis
	KindAcquisition EventKind = "acquisition"
	// KindDisposal represents a priced disposal that realizes a gain or loss
	KindDisposal EventKind = "disposal"
)

// AllEventKinds lists every recognised event kind in a stable order
var AllEventKinds = []EventKind{
	KindTrade,
	KindMint,
	KindWithdraw,
	KindReward,
	KindAcquisition,
	KindDisposal,
}

// IsValid reports whether the kind is one of the recognised event kinds
func (k EventKind) IsValid() bool {
	for _, known := range AllEventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseEventKind parses a case-insensitive event kind
func ParseEventKind(s string) (EventKind, error) {
	kind := EventKind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.IsValid() {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return kind, nil
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// TimeWindow is an inclusive timestamp filter. A nil bound is unbounded on that side.
type TimeWindow struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls within the window, bounds included
func (w TimeWindow) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && t.After(*w.To) {
		return false
	}
	return true
}

// dateLayout is accepted alongside RFC 3339 for window bounds
const dateLayout = "2006-01-02"

// ParseTimeBound parses an RFC 3339 timestamp or a YYYY-MM-DD date (UTC midnight).
// An empty string yields a nil bound.
func ParseTimeBound(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid time bound %q (expected RFC 3339 or YYYY-MM-DD)", s)
	}
	return &t, nil
}
