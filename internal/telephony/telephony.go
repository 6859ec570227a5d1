// Package telephony places the outbound carrier call used to change the
// delivery address of an already shipped order and waits for it to finish.
package telephony

import (
	"context"
	"strings"
	"time"
)

// CallStatus is the lifecycle state reported by the telephony provider.
type CallStatus string

const (
	StatusQueued     CallStatus = "queued"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in-progress"
	StatusCompleted  CallStatus = "completed"
	StatusFailed     CallStatus = "failed"
	StatusBusy       CallStatus = "busy"
	StatusNoAnswer   CallStatus = "no-answer"
	StatusCanceled   CallStatus = "canceled"
)

// ParseCallStatus normalises provider spellings ("in_progress", "No-Answer").
func ParseCallStatus(s string) CallStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	if s == "cancelled" {
		s = string(StatusCanceled)
	}
	return CallStatus(s)
}

// IsTerminal reports whether no further transition can happen.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled:
		return true
	}
	return false
}

// CallScript is what the outbound call says.
type CallScript struct {
	// Prompt instructs a conversational voice agent.
	Prompt string `json:"prompt"`
	// FirstMessage is the opening line.
	FirstMessage string `json:"first_message"`
	// Number is the E.164 number to dial.
	Number string `json:"number"`
	// Summary is a short spoken fallback for providers without an agent.
	Summary string `json:"-"`
}

// Service places calls and reports their status.
type Service interface {
	PlaceCall(ctx context.Context, script CallScript) (string, error)
	CallStatus(ctx context.Context, callID string) (CallStatus, error)
}

// CallSession tracks one placed call while it is being awaited. It is never persisted.
type CallSession struct {
	CallID    string
	Status    CallStatus
	StartedAt time.Time
}
