package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/util"
)

// InMemoryStore is a process-local Store used when no database DSN is set
// and in tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	tickets  map[string]*models.Ticket
	messages map[string][]models.Message
	dedup    map[string]*DedupRecord
	outbox   map[string]*OutboxMessage
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tickets:  make(map[string]*models.Ticket),
		messages: make(map[string][]models.Message),
		dedup:    make(map[string]*DedupRecord),
		outbox:   make(map[string]*OutboxMessage),
	}
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) CreateTicket(_ context.Context, t models.Ticket) (models.Ticket, error) {
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
		t.CreatedAt = time.Now().UTC()
	}
	t.UpdatedAt = t.CreatedAt

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := t
	s.tickets[t.ID] = &cp
	return t, nil
}

func (s *InMemoryStore) GetTicket(_ context.Context, id string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *InMemoryStore) FindOpenTicket(_ context.Context, channel models.Channel, contactID string) (*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Ticket
	for _, t := range s.tickets {
		if t.Channel != channel || t.ContactID != contactID || t.Status != models.TicketStatusOpen {
			continue
		}
		if found == nil || t.CreatedAt.After(found.CreatedAt) {
			found = t
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (s *InMemoryStore) ListTickets(_ context.Context, page, pageSize int) (models.TicketPage, error) {
	offset, limit := pageBounds(page, pageSize)

	s.mu.RLock()
	all := make([]models.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		all = append(all, *t)
	}
	s.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	tickets := []models.Ticket{}
	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		tickets = append(tickets, all[offset:end]...)
	}
	return models.TicketPage{Tickets: tickets, HasMore: offset+limit < total, Total: total}, nil
}

func (s *InMemoryStore) AttachOrderIdentity(_ context.Context, ticketID, orderNumber, email, customerName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok || t.HasOrderIdentity() {
		return false, nil
	}
	t.OrderNumber = orderNumber
	t.Email = email
	if customerName != "" {
		t.CustomerName = customerName
	}
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *InMemoryStore) SetTicketAdmin(_ context.Context, ticketID string, admin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return ErrTicketNotFound
	}
	t.Admin = admin
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) AppendMessage(_ context.Context, m models.Message) (models.Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if err := m.Validate(); err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[m.TicketID]
	if !ok {
		return models.Message{}, ErrTicketNotFound
	}
	t.UpdatedAt = m.Timestamp
	s.messages[m.TicketID] = append(s.messages[m.TicketID], m)
	return m, nil
}

func (s *InMemoryStore) ListMessages(_ context.Context, ticketID string) ([]models.Message, error) {
	s.mu.RLock()
	msgs := append([]models.Message{}, s.messages[ticketID]...)
	s.mu.RUnlock()
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	return msgs, nil
}

func (s *InMemoryStore) LatestTurns(ctx context.Context, ticketID string, n int) ([]models.ChatTurn, error) {
	msgs, err := s.ListMessages(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return models.TurnsFromMessages(msgs, n), nil
}

func (s *InMemoryStore) IsDuplicate(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.dedup[key]
	return ok && r.ProcessedAt != nil, nil
}

func (s *InMemoryStore) RecordKey(_ context.Context, key, scope string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[key]; ok {
		return false, nil
	}
	s.dedup[key] = &DedupRecord{Key: key, Scope: scope, ReceivedAt: time.Now().UTC()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.dedup[key]; ok {
		now := time.Now().UTC()
		r.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) ReleaseKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.dedup[key]; ok && r.ProcessedAt == nil {
		delete(s.dedup, key)
	}
	return nil
}

func (s *InMemoryStore) EnqueueOutboxMessage(_ context.Context, recipient, kind, payloadJSON, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, m := range s.outbox {
			if m.DedupeKey == dedupeKey && !isTerminalOutboxStatus(m.Status) {
				return m.ID, nil
			}
		}
	}
	now := time.Now().UTC()
	m := &OutboxMessage{
		ID:          util.GenerateRandomID("outbox_", 32),
		Recipient:   recipient,
		Kind:        kind,
		PayloadJSON: payloadJSON,
		Status:      OutboxStatusQueued,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.outbox[m.ID] = m
	return m.ID, nil
}

func (s *InMemoryStore) ClaimDueOutboxMessages(_ context.Context, now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*OutboxMessage
	for _, m := range s.outbox {
		if m.Status != OutboxStatusQueued {
			continue
		}
		if m.NextAttemptAt != nil && m.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, m)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]OutboxMessage, 0, len(due))
	for _, m := range due {
		lockedAt := now
		m.Status = OutboxStatusSending
		m.LockedAt = &lockedAt
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (s *InMemoryStore) MarkOutboxMessageSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.outbox[id]; ok {
		m.Status = OutboxStatusSent
		m.LockedAt = nil
		m.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *InMemoryStore) FailOutboxMessage(_ context.Context, id string, errMsg string, nextAttemptAt time.Time, maxAttempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[id]
	if !ok {
		return nil
	}
	m.Attempts++
	m.LastError = errMsg
	m.NextAttemptAt = &nextAttemptAt
	m.LockedAt = nil
	m.UpdatedAt = time.Now().UTC()
	m.Status = OutboxStatusQueued
	if maxAttempts > 0 && m.Attempts >= maxAttempts {
		m.Status = OutboxStatusFailed
	}
	return nil
}

func (s *InMemoryStore) RequeueStaleSendingMessages(_ context.Context, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.outbox {
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			m.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// OutboxMessages returns a snapshot of every outbox message, oldest first.
func (s *InMemoryStore) OutboxMessages() []OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func isTerminalOutboxStatus(s OutboxStatus) bool {
	switch s {
	case OutboxStatusSent, OutboxStatusCanceled, OutboxStatusFailed:
		return true
	}
	return false
}
