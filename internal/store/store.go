// Package store provides storage backends for ShopAssist.
//
// It persists support tickets and their message threads, the dedup ledger
// used to apply order mutations and inbound chat messages at most once, and
// the outbox used to retry outgoing notifications. Backends: in-memory,
// SQLite and PostgreSQL.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/BTreeMap/ShopAssist/internal/models"
)

// DefaultPageSize is the number of tickets returned per admin listing page.
const DefaultPageSize = 20

// ErrTicketNotFound is returned when an operation targets a missing ticket.
var ErrTicketNotFound = errors.New("ticket not found")

// TicketStore persists tickets and their message threads.
type TicketStore interface {
	// CreateTicket inserts t, filling ID, status and timestamps when empty.
	CreateTicket(ctx context.Context, t models.Ticket) (models.Ticket, error)
	// GetTicket returns nil, nil when the ticket does not exist.
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	// FindOpenTicket returns the newest open ticket for a channel contact, or nil.
	FindOpenTicket(ctx context.Context, channel models.Channel, contactID string) (*models.Ticket, error)
	// ListTickets returns one page (1-based) of tickets, newest first.
	ListTickets(ctx context.Context, page, pageSize int) (models.TicketPage, error)
	// AttachOrderIdentity sets order number, email and customer name only if
	// the ticket does not have both yet. It reports whether the row changed.
	AttachOrderIdentity(ctx context.Context, ticketID, orderNumber, email, customerName string) (bool, error)
	// SetTicketAdmin flags a ticket as taken over by a human agent.
	SetTicketAdmin(ctx context.Context, ticketID string, admin bool) error
	// AppendMessage stores m and bumps the ticket's updated_at.
	AppendMessage(ctx context.Context, m models.Message) (models.Message, error)
	// ListMessages returns the full thread ordered by timestamp.
	ListMessages(ctx context.Context, ticketID string) ([]models.Message, error)
	// LatestTurns returns up to n of the most recent messages as chat turns, oldest first.
	LatestTurns(ctx context.Context, ticketID string, n int) ([]models.ChatTurn, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	TicketStore
	DedupRepo
	OutboxRepo
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for everything else (treated as a file path).
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the backend selected by the DSN: PostgreSQL, SQLite, or an
// in-memory store when dsn is empty.
func New(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithPostgresDSN(dsn))
	}
	return NewSQLiteStore(WithSQLiteDSN(dsn))
}

func pageBounds(page, pageSize int) (int, int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize, pageSize
}
