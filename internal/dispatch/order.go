package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/ShopAssist/internal/cache"
	"github.com/BTreeMap/ShopAssist/internal/genai"
	"github.com/BTreeMap/ShopAssist/internal/invoice"
	"github.com/BTreeMap/ShopAssist/internal/lang"
	"github.com/BTreeMap/ShopAssist/internal/mail"
	"github.com/BTreeMap/ShopAssist/internal/models"
)

// orderHandler continues an order-scoped intent once the order is known.
type orderHandler func(ctx context.Context, req Request, snap models.OrderSnapshot) string

// lookupOrder fetches the order named by the request. When the returned
// reply is non-empty the lookup did not produce an order and the reply must
// be returned as is.
func (r *Router) lookupOrder(ctx context.Context, req Request) (models.OrderSnapshot, string) {
	language := req.Message.Language
	id, _ := ValidateOrderIdentity(req.Message.Parameters)

	snap, err := r.orders.LookupOrder(ctx, id.OrderNumber, id.Email)
	if err != nil {
		slog.Error("Router.lookupOrder: gateway failed", "intent", req.Message.Intent, "order", id.OrderNumber, "error", err)
		return models.OrderSnapshot{}, lang.GenericError.For(language)
	}
	if !snap.Success {
		slog.Warn("Router.lookupOrder: invalid credentials", "intent", req.Message.Intent, "order", id.OrderNumber, "code", snap.Error)
		return snap, CredentialMessage(snap.Error, language)
	}
	if snap.Order == nil {
		slog.Warn("Router.lookupOrder: order not found", "intent", req.Message.Intent, "order", id.OrderNumber)
		return snap, lang.OrderNotFound.For(language)
	}
	return snap, ""
}

func (r *Router) withOrder(ctx context.Context, req Request, next orderHandler) string {
	snap, reply := r.lookupOrder(ctx, req)
	if reply != "" {
		return reply
	}
	return next(ctx, req, snap)
}

func (r *Router) answerWithOrder(ctx context.Context, req Request, snap models.OrderSnapshot) string {
	return r.answer(ctx, req, snap)
}

// orderTrackingKey is the cache key of a tracking reply.
func orderTrackingKey(id models.OrderIdentity, language models.Language) string {
	return cache.Key(string(models.IntentOrderTracking), id.OrderNumber, id.Email, string(language))
}

func (r *Router) orderTracking(ctx context.Context, req Request) string {
	id, _ := ValidateOrderIdentity(req.Message.Parameters)
	key := orderTrackingKey(id, req.Message.Language)
	if cached, ok := r.cache.Get(ctx, key); ok {
		slog.Debug("Router.orderTracking: cache hit", "order", id.OrderNumber)
		return cached
	}

	snap, reply := r.lookupOrder(ctx, req)
	if reply != "" {
		return reply
	}
	out, err := r.gen.Generate(ctx, r.generateRequest(req, snap))
	if err != nil {
		return generationFailure(req.Message.Intent, req.Message.Language, err)
	}
	r.cache.Set(ctx, key, out, OrderTrackingTTL)
	return out
}

func (r *Router) deliveryIssue(ctx context.Context, req Request) string {
	snap, reply := r.lookupOrder(ctx, req)
	if reply != "" {
		return reply
	}
	id, _ := ValidateOrderIdentity(req.Message.Parameters)
	r.notifySupport(ctx, id, snap.Order)
	return r.answer(ctx, req, snap)
}

// notifySupport emails the support inbox about a delivery issue. Failures
// are logged and the message is queued for retry; the reply never waits on it.
func (r *Router) notifySupport(ctx context.Context, id models.OrderIdentity, order *models.Order) {
	msg := mail.Message{
		To:      []string{r.supportInbox},
		Subject: fmt.Sprintf("Incidencia de entrega %s", order.Name),
		Body: fmt.Sprintf("El cliente %s ha reportado un problema con la entrega del pedido %s (seguimiento: %s).",
			id.Email, order.Name, orDash(order.TrackingNumber())),
	}
	err := r.mailer.Send(ctx, msg)
	if err == nil {
		slog.Info("Router.deliveryIssue: support notified", "order", order.Name)
		return
	}
	slog.Error("Router.deliveryIssue: failed to notify support", "order", order.Name, "error", err)
	if r.outbox == nil {
		return
	}
	if _, qerr := mail.Enqueue(ctx, r.outbox, msg, "delivery_issue:"+order.Name); qerr != nil {
		slog.Error("Router.deliveryIssue: failed to queue notification", "order", order.Name, "error", qerr)
	}
}

func (r *Router) invoiceRequest(ctx context.Context, req Request, snap models.OrderSnapshot) string {
	language := req.Message.Language
	id, _ := ValidateOrderIdentity(req.Message.Parameters)
	if err := r.sendInvoice(ctx, id.Email, snap.Order, language); err != nil {
		slog.Error("Router.invoiceRequest: failed", "order", snap.Order.Name, "error", err)
		return lang.InvoiceFailed.For(language)
	}
	slog.Info("Router.invoiceRequest: invoice sent", "order", snap.Order.Name)
	return lang.InvoiceSent.For(language)
}

func (r *Router) sendInvoice(ctx context.Context, to string, order *models.Order, language models.Language) error {
	inv, err := invoice.FromOrder(order)
	if err != nil {
		return err
	}
	pdf, err := invoice.Render(inv)
	if err != nil {
		return err
	}
	return r.mailer.Send(ctx, mail.Message{
		To:      []string{to},
		Subject: lang.Pick("Factura "+inv.Number, "Invoice "+inv.Number, language),
		Body:    lang.Pick("Adjuntamos la factura de tu pedido.", "Please find your invoice attached.", language),
		Attachments: []mail.Attachment{{
			Filename:    inv.Filename(),
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	})
}

func (r *Router) generateRequest(req Request, data any) genai.GenerateRequest {
	return genai.GenerateRequest{
		Intent:     req.Message.Intent,
		Parameters: req.Message.Parameters,
		Data:       data,
		Message:    req.Text,
		Turns:      req.Turns,
		Language:   req.Message.Language,
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
