package requests

import (
	"errors"
	"time"
)

// Request statuses
const (
	StatusPending  = "pending"  // created, waiting for operator details
	StatusOpen     = "open"     // details provided, waiting for a claimer
	StatusClaimed  = "claimed"
	StatusResolved = "resolved"
	StatusCanceled = "canceled"
)

// validTransitions defines which status transitions are allowed.
var validTransitions = map[string][]string{
	StatusPending: {StatusOpen, StatusCanceled},
	StatusOpen:    {StatusClaimed, StatusCanceled},
	StatusClaimed: {StatusResolved, StatusCanceled},
}

// IsValidTransition checks if a status transition is allowed.
func IsValidTransition(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status is a terminal state.
func IsTerminal(status string) bool {
	return status == StatusResolved || status == StatusCanceled
}

// ValidStatus reports whether s names a request status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusOpen, StatusClaimed, StatusResolved, StatusCanceled:
		return true
	}
	return false
}

// Operator action errors. Each maps to one user-facing rejection.
var (
	ErrNotFound          = errors.New("request not found")
	ErrAlreadyHasDetails = errors.New("details already provided")
	ErrEmptyReason       = errors.New("reason cannot be empty")
	ErrNeedsDetails      = errors.New("add details before claiming")
	ErrAlreadyClaimed    = errors.New("request already claimed or closed")
	ErrNotClaimed        = errors.New("request is not claimed")
	ErrNotClaimer        = errors.New("only the claimer can resolve this request")
)

// HelpRequest is one tracked request for assistance raised by a device.
type HelpRequest struct {
	ID              string    `json:"id"`
	DeviceID        int       `json:"device_id"`
	Status          string    `json:"status"`
	Color           string    `json:"color,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	ClaimedBy       string    `json:"claimed_by,omitempty"`
	PresentationRef string    `json:"presentation_ref,omitempty"`
	DeviceTimestamp string    `json:"device_timestamp,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// StatusLine is the short human description shown next to a request.
func (r HelpRequest) StatusLine() string {
	switch r.Status {
	case StatusPending:
		return "Waiting for details."
	case StatusOpen:
		return "Open (details provided)."
	case StatusClaimed:
		return "Claimed by " + r.ClaimedBy + "."
	case StatusResolved:
		return "Resolved by " + r.ClaimedBy + "."
	case StatusCanceled:
		return "Canceled by lighthouse."
	}
	return r.Status
}
