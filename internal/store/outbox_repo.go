package store

import (
	"context"
	"time"
)

// OutboxStatus is the delivery state of a queued notification.
type OutboxStatus string

const (
	OutboxStatusQueued   OutboxStatus = "queued"
	OutboxStatusSending  OutboxStatus = "sending"
	OutboxStatusSent     OutboxStatus = "sent"
	OutboxStatusFailed   OutboxStatus = "failed" // attempts exhausted
	OutboxStatusCanceled OutboxStatus = "canceled"
)

// Outbox kinds. OutboxSender routes each kind to its registered handler.
const (
	OutboxKindSupportEmail = "support_email" // mail.Message JSON
	OutboxKindChatReply    = "chat_reply"    // messaging.ChatReply JSON
)

// OutboxMessage is one queued notification.
type OutboxMessage struct {
	ID            string       `json:"id"`
	Recipient     string       `json:"recipient"`
	Kind          string       `json:"kind"`
	PayloadJSON   string       `json:"payloadJson"`
	Status        OutboxStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt *time.Time   `json:"nextAttemptAt,omitempty"`
	DedupeKey     string       `json:"dedupeKey,omitempty"`
	LockedAt      *time.Time   `json:"lockedAt,omitempty"`
	LastError     string       `json:"lastError,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// OutboxRepo queues notifications that failed inline (support emails, chat
// replies) so they survive restarts and are retried with backoff.
type OutboxRepo interface {
	// EnqueueOutboxMessage returns the ID of the pending message already
	// holding dedupeKey instead of queueing a second copy.
	EnqueueOutboxMessage(ctx context.Context, recipient, kind, payloadJSON, dedupeKey string) (string, error)
	// ClaimDueOutboxMessages moves up to limit due messages to sending.
	ClaimDueOutboxMessages(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error)
	MarkOutboxMessageSent(ctx context.Context, id string) error
	// FailOutboxMessage reschedules the message, or parks it as failed once
	// maxAttempts is reached.
	FailOutboxMessage(ctx context.Context, id string, errMsg string, nextAttemptAt time.Time, maxAttempts int) error
	// RequeueStaleSendingMessages returns messages claimed before
	// staleBefore by a process that died to the queue.
	RequeueStaleSendingMessages(ctx context.Context, staleBefore time.Time) (int, error)
}
