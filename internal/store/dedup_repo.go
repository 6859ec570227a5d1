// Package store provides the DedupRepo interface for at-most-once processing.
package store

import (
	"context"
	"time"
)

// Dedup scopes.
const (
	DedupScopeAddressUpdate = "address_update"
	DedupScopeInbound       = "inbound_message"
)

// DedupRecord represents one key in the dedup ledger.
type DedupRecord struct {
	Key         string     `json:"key"`
	Scope       string     `json:"scope"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo records keys so that an inbound message or a confirmed order
// mutation is acted on at most once.
type DedupRepo interface {
	// IsDuplicate reports whether key was recorded and marked processed.
	IsDuplicate(ctx context.Context, key string) (bool, error)

	// RecordKey inserts key. It returns false if the key was already recorded.
	RecordKey(ctx context.Context, key, scope string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for key.
	MarkProcessed(ctx context.Context, key string) error

	// ReleaseKey deletes an unprocessed key so the work can be retried.
	ReleaseKey(ctx context.Context, key string) error
}
