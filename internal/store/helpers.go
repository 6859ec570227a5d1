package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/BTreeMap/ShopAssist/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rebindDollar rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const ticketColumns = `id, order_number, email, customer_name, status, admin, channel, contact_id, created_at, updated_at`

// scanTicket scans a Ticket from a row.
func scanTicket(row rowScanner) (models.Ticket, error) {
	var t models.Ticket
	var orderNumber, email, customerName, contactID sql.NullString
	var status, channel string
	err := row.Scan(&t.ID, &orderNumber, &email, &customerName, &status, &t.Admin, &channel, &contactID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.OrderNumber = orderNumber.String
	t.Email = email.String
	t.CustomerName = customerName.String
	t.ContactID = contactID.String
	t.Status = models.TicketStatus(status)
	t.Channel = models.Channel(channel)
	return t, nil
}

const messageColumns = `id, ticket_id, sender, body, sent_at`

// scanMessage scans a Message from a row.
func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	var sender string
	if err := row.Scan(&m.ID, &m.TicketID, &sender, &m.Text, &m.Timestamp); err != nil {
		return m, fmt.Errorf("scan message failed: %w", err)
	}
	m.Sender = models.Sender(sender)
	return m, nil
}

const outboxColumns = `id, recipient, kind, payload_json, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at`

// scanOutboxMessage scans an OutboxMessage from a row.
func scanOutboxMessage(row rowScanner) (OutboxMessage, error) {
	var m OutboxMessage
	var payloadJSON, dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.Recipient, &m.Kind, &payloadJSON, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.PayloadJSON = payloadJSON.String
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	if nextAttemptAt.Valid {
		m.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	return m, nil
}
