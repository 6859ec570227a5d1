// Package pipeline runs one shopper message through classification, ticket
// identity resolution and intent dispatch, each phase under its own timeout.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ShopAssist/internal/dispatch"
	"github.com/BTreeMap/ShopAssist/internal/lang"
	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/telephony"
)

// Default phase timeouts.
const (
	DefaultClassificationTimeout = 30 * time.Second
	DefaultDispatchTimeout       = 30 * time.Second

	// DispatchWorkBudget bounds intent work that outlives the reply deadline.
	// A carrier call is awaited for up to telephony.WaitCeiling while the
	// order lock is held, so the work runs detached from the caller.
	DispatchWorkBudget = telephony.WaitCeiling + 30*time.Second
)

// Classifier turns raw text into an intent, parameters and a language.
type Classifier interface {
	Classify(ctx context.Context, text string, turns []models.ChatTurn) (models.ClassifiedMessage, error)
}

// Dispatcher produces the reply for a classified message.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) string
}

// OrderLookup resolves an order identity before it is attached to a ticket.
type OrderLookup interface {
	LookupOrder(ctx context.Context, number, email string) (models.OrderSnapshot, error)
}

// TicketStore attaches a resolved order identity to a ticket.
type TicketStore interface {
	AttachOrderIdentity(ctx context.Context, ticketID, orderNumber, email, customerName string) (bool, error)
}

// TicketRef is the ticket the message belongs to, as known by the caller.
type TicketRef struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber,omitempty"`
	Email       string `json:"email,omitempty"`
}

// HasOrderIdentity reports whether the ticket already carries order number and email.
func (t *TicketRef) HasOrderIdentity() bool {
	return t != nil && strings.TrimSpace(t.OrderNumber) != "" && strings.TrimSpace(t.Email) != ""
}

// Request is one inbound chat message.
type Request struct {
	Text      string
	Turns     []models.ChatTurn
	Ticket    *TicketRef
	RequestID string
}

// Opts holds configuration for a Pipeline.
type Opts struct {
	ClassificationTimeout time.Duration
	DispatchTimeout       time.Duration
	Orders                OrderLookup
	Tickets               TicketStore
}

// Option configures a Pipeline.
type Option func(*Opts)

// WithClassificationTimeout overrides the classification timeout.
func WithClassificationTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ClassificationTimeout = d }
}

// WithDispatchTimeout overrides the intent processing timeout.
func WithDispatchTimeout(d time.Duration) Option {
	return func(o *Opts) { o.DispatchTimeout = d }
}

// WithTicketIdentity enables attaching resolved order identities to tickets.
func WithTicketIdentity(orders OrderLookup, tickets TicketStore) Option {
	return func(o *Opts) {
		o.Orders = orders
		o.Tickets = tickets
	}
}

// Pipeline is the per-message control flow.
type Pipeline struct {
	classifier Classifier
	dispatcher Dispatcher
	orders     OrderLookup // optional
	tickets    TicketStore // optional

	classificationTimeout time.Duration
	dispatchTimeout       time.Duration
	workBudget            time.Duration
	after                 func(time.Duration) <-chan time.Time
}

// New creates a pipeline.
func New(classifier Classifier, dispatcher Dispatcher, opts ...Option) *Pipeline {
	cfg := Opts{ClassificationTimeout: DefaultClassificationTimeout, DispatchTimeout: DefaultDispatchTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pipeline{
		classifier:            classifier,
		dispatcher:            dispatcher,
		orders:                cfg.Orders,
		tickets:               cfg.Tickets,
		classificationTimeout: cfg.ClassificationTimeout,
		dispatchTimeout:       cfg.DispatchTimeout,
		workBudget:            DispatchWorkBudget,
		after:                 time.After,
	}
}

type classifyResult struct {
	msg models.ClassifiedMessage
	err error
}

// Handle classifies and answers req. Errors are always *APIError.
func (p *Pipeline) Handle(ctx context.Context, req Request) (string, error) {
	log := slog.With("requestId", req.RequestID)

	msg, err := p.classify(ctx, req)
	if err != nil {
		return "", err
	}
	log.Info("Pipeline.Handle: message classified", "intent", msg.Intent, "language", msg.Language)

	if reply, stop := p.resolveTicketIdentity(ctx, log, req.Ticket, msg); stop {
		return reply, nil
	}

	return p.dispatch(ctx, log, dispatch.Request{Message: msg, Text: req.Text, Turns: req.Turns})
}

func (p *Pipeline) classify(ctx context.Context, req Request) (models.ClassifiedMessage, error) {
	done := make(chan classifyResult, 1)
	go func() {
		msg, err := p.classifier.Classify(ctx, req.Text, req.Turns)
		done <- classifyResult{msg: msg, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			slog.Error("Pipeline.classify: classifier failed", "requestId", req.RequestID, "error", res.err)
			return models.ClassifiedMessage{}, Internal(res.err)
		}
		return res.msg, nil
	case <-p.after(p.classificationTimeout):
		slog.Warn("Pipeline.classify: timed out", "requestId", req.RequestID, "timeout", p.classificationTimeout)
		return models.ClassifiedMessage{}, ErrClassificationTimeout()
	case <-ctx.Done():
		return models.ClassifiedMessage{}, Internal(ctx.Err())
	}
}

// resolveTicketIdentity looks up and attaches the order identity carried by
// msg when the ticket has none yet. stop is true when the lookup failed and
// reply must be returned without dispatching.
func (p *Pipeline) resolveTicketIdentity(ctx context.Context, log *slog.Logger, ticket *TicketRef, msg models.ClassifiedMessage) (reply string, stop bool) {
	if p.orders == nil || p.tickets == nil || ticket == nil || ticket.ID == "" || ticket.HasOrderIdentity() {
		return "", false
	}
	id, ok := dispatch.ValidateOrderIdentity(msg.Parameters)
	if !ok {
		return "", false
	}

	snap, err := p.orders.LookupOrder(ctx, id.OrderNumber, id.Email)
	if err != nil {
		log.Error("Pipeline.resolveTicketIdentity: lookup failed", "ticketId", ticket.ID, "error", err)
		return lang.GenericError.For(msg.Language), true
	}
	if !snap.Success {
		log.Warn("Pipeline.resolveTicketIdentity: invalid credentials", "ticketId", ticket.ID, "code", snap.Error)
		return dispatch.CredentialMessage(snap.Error, msg.Language), true
	}
	if snap.Order == nil {
		return "", false
	}

	name := snap.Order.Customer.FullName()
	if name == "" {
		name = snap.Order.ShippingAddress.FullName()
	}
	orderNumber := snap.Order.Name
	if orderNumber == "" {
		orderNumber = models.NormalizeOrderNumber(id.OrderNumber)
	}
	changed, err := p.tickets.AttachOrderIdentity(ctx, ticket.ID, orderNumber, id.Email, name)
	if err != nil {
		log.Error("Pipeline.resolveTicketIdentity: attach failed", "ticketId", ticket.ID, "error", err)
		return "", false
	}
	if changed {
		log.Info("Pipeline.resolveTicketIdentity: order attached to ticket", "ticketId", ticket.ID, "order", orderNumber)
		ticket.OrderNumber = orderNumber
		ticket.Email = id.Email
	}
	return "", false
}

// dispatch waits up to dispatchTimeout for the reply. On timeout the work is
// abandoned, not cancelled: it keeps running on a context that ignores the
// caller's cancellation until workBudget elapses.
func (p *Pipeline) dispatch(ctx context.Context, log *slog.Logger, req dispatch.Request) (string, error) {
	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.workBudget)
	done := make(chan string, 1)
	go func() {
		defer cancel()
		done <- p.dispatcher.Dispatch(work, req)
	}()

	select {
	case reply := <-done:
		return reply, nil
	case <-p.after(p.dispatchTimeout):
		log.Warn("Pipeline.dispatch: timed out", "intent", req.Message.Intent, "timeout", p.dispatchTimeout)
		return "", ErrIntentProcessingTimeout()
	case <-ctx.Done():
		return "", Internal(ctx.Err())
	}
}
