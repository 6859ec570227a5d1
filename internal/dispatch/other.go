package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/ShopAssist/internal/cache"
	"github.com/BTreeMap/ShopAssist/internal/lang"
	"github.com/BTreeMap/ShopAssist/internal/models"
)

func (r *Router) returnsExchange(ctx context.Context, language models.Language) string {
	key := cache.Key(string(models.IntentReturnsExchange), string(language))
	if cached, ok := r.cache.Get(ctx, key); ok {
		return cached
	}
	reply := lang.ReturnsExchange.For(language)
	r.cache.Set(ctx, key, reply, ReturnsExchangeTTL)
	return reply
}

func (r *Router) promoCode(ctx context.Context, req Request) string {
	language := req.Message.Language
	params, _ := req.Message.Parameters.(models.PromoCodeParams)
	email := strings.TrimSpace(params.Email)
	if email == "" {
		return lang.PromoCodeRequest.For(language)
	}

	customer, err := r.customers.CreateCustomer(ctx, email)
	if err != nil {
		slog.Error("Router.promoCode: failed to create customer", "error", err)
		return lang.PromoCodeFailed.For(language)
	}
	code, err := r.customers.CreatePromoCode(ctx)
	if err != nil {
		slog.Error("Router.promoCode: failed to create promo code", "customer", customer, "error", err)
		return lang.PromoCodeFailed.For(language)
	}

	slog.Info("Router.promoCode: promo code created", "customer", customer)
	if customer.AlreadyExists {
		return lang.PromoCodeExistingCustomer.Format(language, code)
	}
	return lang.PromoCodeNewCustomer.Format(language, code)
}
