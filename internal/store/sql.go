package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/util"
)

// ErrDSNNotSet is returned when a SQL backend is created without a DSN.
var ErrDSNNotSet = errors.New("database DSN not set")

// pool is the subset of *sql.DB used to tune connection limits.
type pool interface {
	SetMaxOpenConns(n int)
	SetMaxIdleConns(n int)
	SetConnMaxLifetime(d time.Duration)
}

// openMigrated opens driver/dsn, applies tune, checks the connection and
// runs the embedded schema.
func openMigrated(driver, dsn, migrations string, tune func(pool)) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if tune != nil {
		tune(db)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s database: %w", driver, err)
	}
	if _, err := db.Exec(migrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run %s migrations: %w", driver, err)
	}
	slog.Debug("openMigrated: schema applied", "driver", driver)
	return db, nil
}

// sqlStore implements Store on top of database/sql. Queries are written with
// ? placeholders and rebound for PostgreSQL.
type sqlStore struct {
	db     *sql.DB
	driver string
	name   string
}

func (s *sqlStore) q(query string) string {
	if s.driver == "postgres" {
		return rebindDollar(query)
	}
	return query
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug(s.name + ".Close: closing database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error(s.name+".Close: failed to close database", "error", err)
	}
	return err
}

func (s *sqlStore) CreateTicket(ctx context.Context, t models.Ticket) (models.Ticket, error) {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TicketStatusOpen
	}
	if t.Channel == "" {
		t.Channel = models.ChannelWeb
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt

	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO tickets (`+ticketColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, nilIfEmpty(t.OrderNumber), nilIfEmpty(t.Email), nilIfEmpty(t.CustomerName), string(t.Status),
		t.Admin, string(t.Channel), nilIfEmpty(t.ContactID), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		slog.Error(s.name+".CreateTicket failed", "error", err, "ticketID", t.ID)
		return models.Ticket{}, fmt.Errorf("failed to insert ticket: %w", err)
	}
	slog.Debug(s.name+".CreateTicket succeeded", "ticketID", t.ID, "channel", t.Channel)
	return t, nil
}

func (s *sqlStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`), id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+".GetTicket failed", "error", err, "ticketID", id)
		return nil, fmt.Errorf("failed to get ticket %s: %w", id, err)
	}
	return &t, nil
}

func (s *sqlStore) FindOpenTicket(ctx context.Context, channel models.Channel, contactID string) (*models.Ticket, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+ticketColumns+` FROM tickets
		WHERE channel = ? AND contact_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1`),
		string(channel), contactID, string(models.TicketStatusOpen))
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+".FindOpenTicket failed", "error", err, "channel", channel)
		return nil, fmt.Errorf("failed to find open ticket: %w", err)
	}
	return &t, nil
}

func (s *sqlStore) ListTickets(ctx context.Context, page, pageSize int) (models.TicketPage, error) {
	offset, limit := pageBounds(page, pageSize)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&total); err != nil {
		slog.Error(s.name+".ListTickets count failed", "error", err)
		return models.TicketPage{}, fmt.Errorf("failed to count tickets: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+ticketColumns+` FROM tickets ORDER BY created_at DESC LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		slog.Error(s.name+".ListTickets query failed", "error", err)
		return models.TicketPage{}, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	tickets := []models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return models.TicketPage{}, fmt.Errorf("failed to scan ticket row: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return models.TicketPage{}, fmt.Errorf("failed to iterate ticket rows: %w", err)
	}
	return models.TicketPage{Tickets: tickets, HasMore: offset+limit < total, Total: total}, nil
}

func (s *sqlStore) AttachOrderIdentity(ctx context.Context, ticketID, orderNumber, email, customerName string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE tickets
		SET order_number = ?, email = ?, customer_name = COALESCE(?, customer_name), updated_at = ?
		WHERE id = ? AND (order_number IS NULL OR order_number = '' OR email IS NULL OR email = '')`),
		orderNumber, email, nilIfEmpty(customerName), time.Now().UTC(), ticketID)
	if err != nil {
		slog.Error(s.name+".AttachOrderIdentity failed", "error", err, "ticketID", ticketID)
		return false, fmt.Errorf("failed to attach order identity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attach order identity rows affected: %w", err)
	}
	slog.Debug(s.name+".AttachOrderIdentity", "ticketID", ticketID, "updated", n > 0)
	return n > 0, nil
}

func (s *sqlStore) SetTicketAdmin(ctx context.Context, ticketID string, admin bool) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE tickets SET admin = ?, updated_at = ? WHERE id = ?`), admin, time.Now().UTC(), ticketID)
	if err != nil {
		return fmt.Errorf("failed to update ticket admin flag: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func (s *sqlStore) AppendMessage(ctx context.Context, m models.Message) (models.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if err := m.Validate(); err != nil {
		return models.Message{}, err
	}

	res, err := s.db.ExecContext(ctx, s.q(`UPDATE tickets SET updated_at = ? WHERE id = ?`), m.Timestamp, m.TicketID)
	if err != nil {
		slog.Error(s.name+".AppendMessage touch ticket failed", "error", err, "ticketID", m.TicketID)
		return models.Message{}, fmt.Errorf("failed to touch ticket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Message{}, ErrTicketNotFound
	}

	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?)`),
		m.ID, m.TicketID, string(m.Sender), m.Text, m.Timestamp)
	if err != nil {
		slog.Error(s.name+".AppendMessage failed", "error", err, "ticketID", m.TicketID)
		return models.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	slog.Debug(s.name+".AppendMessage succeeded", "ticketID", m.TicketID, "sender", m.Sender)
	return m, nil
}

func (s *sqlStore) ListMessages(ctx context.Context, ticketID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+messageColumns+` FROM messages WHERE ticket_id = ? ORDER BY sent_at ASC`), ticketID)
	if err != nil {
		slog.Error(s.name+".ListMessages query failed", "error", err, "ticketID", ticketID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return msgs, nil
}

func (s *sqlStore) LatestTurns(ctx context.Context, ticketID string, n int) ([]models.ChatTurn, error) {
	if n <= 0 {
		msgs, err := s.ListMessages(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		return models.TurnsFromMessages(msgs, 0), nil
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+` FROM messages WHERE ticket_id = ? ORDER BY sent_at DESC LIMIT ?
		) AS recent ORDER BY sent_at ASC`), ticketID, n)
	if err != nil {
		slog.Error(s.name+".LatestTurns query failed", "error", err, "ticketID", ticketID)
		return nil, fmt.Errorf("failed to query latest messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return models.TurnsFromMessages(msgs, 0), nil
}

func (s *sqlStore) IsDuplicate(ctx context.Context, key string) (bool, error) {
	var processedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, s.q(`SELECT processed_at FROM dedup_keys WHERE dedup_key = ?`), key).Scan(&processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return processedAt.Valid, nil
}

func (s *sqlStore) RecordKey(ctx context.Context, key, scope string) (bool, error) {
	insert := `INSERT OR IGNORE INTO dedup_keys (dedup_key, scope, received_at) VALUES (?, ?, ?)`
	if s.driver == "postgres" {
		insert = `INSERT INTO dedup_keys (dedup_key, scope, received_at) VALUES (?, ?, ?) ON CONFLICT (dedup_key) DO NOTHING`
	}
	res, err := s.db.ExecContext(ctx, s.q(insert), key, scope, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record dedup key failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) MarkProcessed(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE dedup_keys SET processed_at = ? WHERE dedup_key = ?`), time.Now().UTC(), key)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *sqlStore) ReleaseKey(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM dedup_keys WHERE dedup_key = ? AND processed_at IS NULL`), key)
	if err != nil {
		return fmt.Errorf("release dedup key failed: %w", err)
	}
	return nil
}

func (s *sqlStore) EnqueueOutboxMessage(ctx context.Context, recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	id := util.GenerateRandomID("outbox_", 32)
	now := time.Now().UTC()

	if dedupeKey != "" {
		var existingID string
		err := s.db.QueryRowContext(ctx,
			s.q(`SELECT id FROM outbox_messages WHERE dedupe_key = ? AND status NOT IN ('sent', 'canceled', 'failed')`),
			dedupeKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug(s.name+".EnqueueOutboxMessage: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("outbox dedupe check failed: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO outbox_messages (id, recipient, kind, payload_json, status, attempts, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)`),
		id, recipient, kind, payloadJSON, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue outbox message failed: %w", err)
	}
	slog.Debug(s.name+".EnqueueOutboxMessage", "id", id, "recipient", recipient, "kind", kind)
	return id, nil
}

func (s *sqlStore) ClaimDueOutboxMessages(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	now = now.UTC()
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+outboxColumns+` FROM outbox_messages
		 WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`),
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}
	var candidates []OutboxMessage
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim outbox iteration failed: %w", err)
	}

	claimed := make([]OutboxMessage, 0, len(candidates))
	for _, m := range candidates {
		res, err := s.db.ExecContext(ctx,
			s.q(`UPDATE outbox_messages SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ? AND status = 'queued'`),
			now, now, m.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("mark outbox sending failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		lockedAt := now
		m.Status = OutboxStatusSending
		m.LockedAt = &lockedAt
		claimed = append(claimed, m)
	}
	return claimed, nil
}

func (s *sqlStore) MarkOutboxMessageSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark outbox sent failed: %w", err)
	}
	return nil
}

func (s *sqlStore) FailOutboxMessage(ctx context.Context, id string, errMsg string, nextAttemptAt time.Time, maxAttempts int) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`UPDATE outbox_messages
		 SET status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'queued' END,
		     attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ?
		 WHERE id = ?`),
		maxAttempts, errMsg, nextAttemptAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("fail outbox message failed: %w", err)
	}
	return nil
}

func (s *sqlStore) RequeueStaleSendingMessages(ctx context.Context, staleBefore time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		s.q(`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`),
		time.Now().UTC(), staleBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info(s.name+".RequeueStaleSendingMessages", "requeued", n)
	}
	return int(n), nil
}
