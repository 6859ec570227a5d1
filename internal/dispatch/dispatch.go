// Package dispatch routes a classified shopper message to its intent handler
// and turns every outcome, including collaborator failures, into a reply
// string in the shopper's language.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/ShopAssist/internal/cache"
	"github.com/BTreeMap/ShopAssist/internal/genai"
	"github.com/BTreeMap/ShopAssist/internal/lang"
	"github.com/BTreeMap/ShopAssist/internal/lock"
	"github.com/BTreeMap/ShopAssist/internal/mail"
	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/store"
	"github.com/BTreeMap/ShopAssist/internal/telephony"
)

// Cache lifetimes.
const (
	OrderTrackingTTL   = 5 * time.Minute
	ReturnsExchangeTTL = cache.DefaultTTL
)

// Defaults for the notification and carrier targets.
const (
	DefaultSupportInbox = "hello@shamelesscollective.com"
	DefaultCarrierPhone = "+34608667749"
)

// OrderGateway reads and mutates orders in the storefront.
type OrderGateway interface {
	LookupOrder(ctx context.Context, number, email string) (models.OrderSnapshot, error)
	UpdateShippingAddress(ctx context.Context, orderID, formatted string, contact models.AddressContact) error
}

// CatalogGateway looks up products. FindProduct returns nil, nil when no
// product matches.
type CatalogGateway interface {
	FindProduct(ctx context.Context, name string) (*models.Product, error)
}

// CustomerGateway registers shoppers and issues discount codes.
type CustomerGateway interface {
	CreateCustomer(ctx context.Context, email string) (models.CustomerResult, error)
	CreatePromoCode(ctx context.Context) (string, error)
}

// Generator writes natural-language answers.
type Generator interface {
	Generate(ctx context.Context, req genai.GenerateRequest) (string, error)
	ConfirmAddress(ctx context.Context, params models.Parameters, text string, turns []models.ChatTurn, language models.Language) (string, error)
	ValidateAddress(ctx context.Context, text string) (models.AddressValidation, error)
}

// AddressCaller negotiates an address change for a shipped order by phone.
type AddressCaller interface {
	ChangeAddress(ctx context.Context, req telephony.CallRequest) telephony.CallOutcome
}

// Request is one message to dispatch.
type Request struct {
	Message models.ClassifiedMessage
	Text    string
	Turns   []models.ChatTurn
}

// Opts holds the optional collaborators of a Router.
type Opts struct {
	Cache        cache.Cache
	Caller       AddressCaller
	Mailer       mail.Mailer
	Locker       lock.Locker
	Dedup        store.DedupRepo
	Outbox       store.OutboxRepo
	SupportInbox string
	CarrierPhone string
}

// Option configures a Router.
type Option func(*Opts)

// WithCache sets the response cache. Defaults to an in-memory cache.
func WithCache(c cache.Cache) Option {
	return func(o *Opts) { o.Cache = c }
}

// WithCaller sets the outbound-call orchestrator used for shipped orders.
func WithCaller(c AddressCaller) Option {
	return func(o *Opts) { o.Caller = c }
}

// WithMailer sets the mailer for invoices and support notifications.
func WithMailer(m mail.Mailer) Option {
	return func(o *Opts) { o.Mailer = m }
}

// WithLocker sets the per-order mutation lock. Defaults to an in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(o *Opts) { o.Locker = l }
}

// WithDedup records confirmed address updates so a repeated confirmation
// does not mutate the order again.
func WithDedup(d store.DedupRepo) Option {
	return func(o *Opts) { o.Dedup = d }
}

// WithOutbox queues support notifications that could not be sent inline.
func WithOutbox(ob store.OutboxRepo) Option {
	return func(o *Opts) { o.Outbox = ob }
}

// WithSupportInbox sets the address notified about delivery issues.
func WithSupportInbox(addr string) Option {
	return func(o *Opts) { o.SupportInbox = addr }
}

// WithCarrierPhone sets the number dialled to change a shipped order's address.
func WithCarrierPhone(phone string) Option {
	return func(o *Opts) { o.CarrierPhone = phone }
}

// Router dispatches classified messages to intent handlers.
type Router struct {
	orders    OrderGateway
	catalog   CatalogGateway
	customers CustomerGateway
	gen       Generator

	cache        cache.Cache
	caller       AddressCaller // nil: shipped orders cannot be changed
	mailer       mail.Mailer
	locker       lock.Locker
	dedup        store.DedupRepo  // optional
	outbox       store.OutboxRepo // optional
	supportInbox string
	carrierPhone string
}

// NewRouter creates a router over the given gateways and generator.
func NewRouter(orders OrderGateway, catalog CatalogGateway, customers CustomerGateway, gen Generator, opts ...Option) *Router {
	cfg := Opts{SupportInbox: DefaultSupportInbox, CarrierPhone: DefaultCarrierPhone}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory()
	}
	if cfg.Mailer == nil {
		cfg.Mailer = mail.Disabled{}
	}
	if cfg.Locker == nil {
		cfg.Locker = lock.NewMemory()
	}
	slog.Debug("Router.NewRouter: created", "hasCaller", cfg.Caller != nil, "hasDedup", cfg.Dedup != nil, "hasOutbox", cfg.Outbox != nil)
	return &Router{
		orders:       orders,
		catalog:      catalog,
		customers:    customers,
		gen:          gen,
		cache:        cfg.Cache,
		caller:       cfg.Caller,
		mailer:       cfg.Mailer,
		locker:       cfg.Locker,
		dedup:        cfg.Dedup,
		outbox:       cfg.Outbox,
		supportInbox: cfg.SupportInbox,
		carrierPhone: cfg.CarrierPhone,
	}
}

// Dispatch returns the reply for req. It never fails: collaborator errors
// and panics become fallback text.
func (r *Router) Dispatch(ctx context.Context, req Request) (reply string) {
	msg := req.Message
	language := msg.Language

	defer func() {
		if p := recover(); p != nil {
			slog.Error("Router.Dispatch: handler panicked", "intent", msg.Intent, "panic", p)
			reply = lang.GenericError.For(language)
		}
	}()

	slog.Info("Router.Dispatch: handling intent", "intent", msg.Intent, "language", language)

	if msg.Intent.RequiresOrderIdentity() {
		if _, ok := ValidateOrderIdentity(msg.Parameters); !ok {
			slog.Debug("Router.Dispatch: missing order identity", "intent", msg.Intent)
			if msg.Intent == models.IntentOtherOrder {
				return lang.NeedOrderIdentityForQuery.For(language)
			}
			return lang.NeedOrderIdentity.For(language)
		}
	}

	switch msg.Intent {
	case models.IntentOrderTracking:
		return r.orderTracking(ctx, req)
	case models.IntentReturnsExchange:
		return r.returnsExchange(ctx, language)
	case models.IntentDeliveryIssue:
		return r.deliveryIssue(ctx, req)
	case models.IntentChangeDelivery:
		return r.changeDelivery(ctx, req)
	case models.IntentProductSizing:
		return r.productSizing(ctx, req)
	case models.IntentUpdateOrder:
		return r.withOrder(ctx, req, r.answerWithOrder)
	case models.IntentRestock:
		return r.restock(ctx, req)
	case models.IntentPromoCode:
		return r.promoCode(ctx, req)
	case models.IntentInvoiceRequest:
		return r.withOrder(ctx, req, r.invoiceRequest)
	case models.IntentOtherOrder:
		return r.withOrder(ctx, req, r.answerWithOrder)
	default:
		return r.answer(ctx, req, nil)
	}
}

// answer delegates to the generator; data may be nil.
func (r *Router) answer(ctx context.Context, req Request, data any) string {
	out, err := r.gen.Generate(ctx, r.generateRequest(req, data))
	if err != nil {
		return generationFailure(req.Message.Intent, req.Message.Language, err)
	}
	return out
}

func generationFailure(intent models.Intent, language models.Language, err error) string {
	slog.Error("Router: answer generation failed", "intent", intent, "error", err)
	return lang.HighDemand.For(language)
}
