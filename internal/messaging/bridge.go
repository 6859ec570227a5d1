package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/ShopAssist/internal/lang"
	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/pipeline"
	"github.com/BTreeMap/ShopAssist/internal/store"
	"github.com/BTreeMap/ShopAssist/internal/util"
)

// DefaultTurnLimit is how many prior messages are passed as conversation context.
const DefaultTurnLimit = 10

// ChatHandler answers one chat message.
type ChatHandler interface {
	Handle(ctx context.Context, req pipeline.Request) (string, error)
}

// ChatReply is the outbox payload of a queued channel reply.
type ChatReply struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// BridgeOpts holds the optional collaborators of a ChatBridge.
type BridgeOpts struct {
	Dedup     store.DedupRepo
	Outbox    store.OutboxRepo
	TurnLimit int
	Language  models.Language
}

// BridgeOption configures a ChatBridge.
type BridgeOption func(*BridgeOpts)

// WithInboundDedup drops provider redeliveries of an already handled message.
func WithInboundDedup(d store.DedupRepo) BridgeOption {
	return func(o *BridgeOpts) { o.Dedup = d }
}

// WithReplyOutbox queues replies for the outbox sender instead of sending inline.
func WithReplyOutbox(ob store.OutboxRepo) BridgeOption {
	return func(o *BridgeOpts) { o.Outbox = ob }
}

// WithTurnLimit sets how many prior messages form the conversation context.
func WithTurnLimit(n int) BridgeOption {
	return func(o *BridgeOpts) { o.TurnLimit = n }
}

// WithFallbackLanguage sets the language of the error reply used when the
// pipeline fails before a language is known.
func WithFallbackLanguage(l models.Language) BridgeOption {
	return func(o *BridgeOpts) { o.Language = l }
}

// ChatBridge turns channel messages into ticket threads answered by the pipeline.
type ChatBridge struct {
	svc      Service
	chat     ChatHandler
	tickets  store.TicketStore
	dedup    store.DedupRepo  // optional
	outbox   store.OutboxRepo // optional
	turns    int
	language models.Language
	now      func() time.Time

	contacts sync.Map // contact -> *sync.Mutex
	wg       sync.WaitGroup
}

// NewChatBridge creates a bridge for svc.
func NewChatBridge(svc Service, chat ChatHandler, tickets store.TicketStore, opts ...BridgeOption) *ChatBridge {
	cfg := BridgeOpts{TurnLimit: DefaultTurnLimit, Language: models.LanguageSpanish}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewChatBridge: creating bridge", "dedup", cfg.Dedup != nil, "outbox", cfg.Outbox != nil, "turns", cfg.TurnLimit)
	return &ChatBridge{
		svc:      svc,
		chat:     chat,
		tickets:  tickets,
		dedup:    cfg.Dedup,
		outbox:   cfg.Outbox,
		turns:    cfg.TurnLimit,
		language: cfg.Language,
		now:      time.Now,
	}
}

// Run handles inbound messages until ctx is cancelled or the service
// channel closes. Messages from the same contact are handled in order.
func (b *ChatBridge) Run(ctx context.Context) {
	defer b.wg.Wait()
	msgs := b.svc.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				mu := b.contactLock(msg.From)
				mu.Lock()
				defer mu.Unlock()
				if err := b.HandleInbound(ctx, msg); err != nil {
					slog.Error("ChatBridge.Run: inbound message failed", "from", msg.From, "id", msg.ID, "error", err)
				}
			}()
		}
	}
}

func (b *ChatBridge) contactLock(contact string) *sync.Mutex {
	mu, _ := b.contacts.LoadOrStore(contact, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func inboundKey(id string) string {
	return "inbound:" + id
}

// HandleInbound stores msg on the contact's open ticket, answers it through
// the pipeline unless a human agent has taken the ticket over, and delivers
// the reply.
func (b *ChatBridge) HandleInbound(ctx context.Context, msg InboundMessage) (err error) {
	log := slog.With("from", msg.From, "id", msg.ID)

	if b.dedup != nil && msg.ID != "" {
		key := inboundKey(msg.ID)
		inserted, derr := b.dedup.RecordKey(ctx, key, store.DedupScopeInbound)
		if derr != nil {
			return fmt.Errorf("failed to record inbound message: %w", derr)
		}
		if !inserted {
			log.Info("ChatBridge.HandleInbound: duplicate delivery skipped")
			return nil
		}
		defer func() {
			if err != nil {
				if rerr := b.dedup.ReleaseKey(context.WithoutCancel(ctx), key); rerr != nil {
					log.Warn("ChatBridge.HandleInbound: failed to release dedup key", "error", rerr)
				}
				return
			}
			if merr := b.dedup.MarkProcessed(context.WithoutCancel(ctx), key); merr != nil {
				log.Warn("ChatBridge.HandleInbound: failed to mark processed", "error", merr)
			}
		}()
	}

	ticket, err := b.openTicket(ctx, msg.From)
	if err != nil {
		return err
	}
	turns, err := b.tickets.LatestTurns(ctx, ticket.ID, b.turns)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if _, err := b.tickets.AppendMessage(ctx, models.Message{TicketID: ticket.ID, Sender: models.SenderUser, Text: msg.Body, Timestamp: b.timestamp(msg)}); err != nil {
		return fmt.Errorf("failed to store inbound message: %w", err)
	}
	if ticket.Admin {
		log.Info("ChatBridge.HandleInbound: ticket handled by an agent, no automatic reply", "ticketId", ticket.ID)
		return nil
	}

	requestID := util.GenerateRequestID(b.now())
	reply, err := b.chat.Handle(ctx, pipeline.Request{
		Text:      msg.Body,
		Turns:     turns,
		Ticket:    &pipeline.TicketRef{ID: ticket.ID, OrderNumber: ticket.OrderNumber, Email: ticket.Email},
		RequestID: requestID,
	})
	if err != nil {
		log.Error("ChatBridge.HandleInbound: pipeline failed", "requestId", requestID, "error", err)
		reply = lang.GenericError.For(b.language)
	}

	if _, err := b.tickets.AppendMessage(ctx, models.Message{TicketID: ticket.ID, Sender: models.SenderBot, Text: reply, Timestamp: b.now().UTC()}); err != nil {
		log.Error("ChatBridge.HandleInbound: failed to store reply", "ticketId", ticket.ID, "error", err)
	}
	dedupeKey := ""
	if msg.ID != "" {
		dedupeKey = "chat_reply:" + msg.ID
	}
	return b.deliver(ctx, msg.From, reply, dedupeKey)
}

// RelayAdminMessage sends a support agent's message to the ticket's contact.
func (b *ChatBridge) RelayAdminMessage(ctx context.Context, ticket models.Ticket, text string) error {
	if ticket.ContactID == "" {
		return fmt.Errorf("ticket %s has no contact", ticket.ID)
	}
	return b.deliver(ctx, ticket.ContactID, text, "")
}

func (b *ChatBridge) openTicket(ctx context.Context, contact string) (models.Ticket, error) {
	existing, err := b.tickets.FindOpenTicket(ctx, models.ChannelWhatsApp, contact)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("failed to find ticket: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}
	created, err := b.tickets.CreateTicket(ctx, models.Ticket{Channel: models.ChannelWhatsApp, ContactID: contact})
	if err != nil {
		return models.Ticket{}, fmt.Errorf("failed to create ticket: %w", err)
	}
	slog.Info("ChatBridge.openTicket: ticket created", "ticketId", created.ID, "contact", contact)
	return created, nil
}

func (b *ChatBridge) timestamp(msg InboundMessage) time.Time {
	if msg.Time.IsZero() {
		return b.now().UTC()
	}
	return msg.Time.UTC()
}

// deliver queues the reply in the outbox when one is configured and sends
// it inline otherwise.
func (b *ChatBridge) deliver(ctx context.Context, to, body, dedupeKey string) error {
	if b.outbox == nil {
		return b.svc.SendMessage(ctx, to, body)
	}
	payload, err := json.Marshal(ChatReply{To: to, Body: body})
	if err != nil {
		return fmt.Errorf("failed to encode reply: %w", err)
	}
	if _, err := b.outbox.EnqueueOutboxMessage(ctx, to, store.OutboxKindChatReply, string(payload), dedupeKey); err != nil {
		return fmt.Errorf("failed to queue reply: %w", err)
	}
	return nil
}

// OutboxHandler sends queued chat replies through svc.
func OutboxHandler(svc Service) store.OutboxSendFunc {
	return func(ctx context.Context, ob store.OutboxMessage) error {
		var reply ChatReply
		if err := json.Unmarshal([]byte(ob.PayloadJSON), &reply); err != nil {
			return fmt.Errorf("failed to decode queued reply %s: %w", ob.ID, err)
		}
		if reply.To == "" {
			reply.To = ob.Recipient
		}
		return svc.SendMessage(ctx, reply.To, reply.Body)
	}
}
