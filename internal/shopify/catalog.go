package shopify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/util"
)

// Promo code settings.
const (
	PromoDiscountPercent = 20
	PromoValidity        = 15 * time.Minute
)

// FindProduct returns the first product whose title matches name, or nil
// when nothing matches.
func (c *Client) FindProduct(ctx context.Context, name string) (*models.Product, error) {
	q := url.Values{}
	q.Set("title", strings.TrimSpace(name))
	q.Set("limit", "5")
	body, _, err := c.do(ctx, "GET", "/products.json?"+q.Encode(), nil)
	if err != nil {
		slog.Error("Shopify.FindProduct: request failed", "product", name, "error", err)
		return nil, err
	}
	products := gjson.GetBytes(body, "products").Array()
	if len(products) == 0 {
		return nil, nil
	}
	return parseProduct(products[0]), nil
}

func parseProduct(r gjson.Result) *models.Product {
	p := &models.Product{
		ID:          r.Get("id").String(),
		Title:       r.Get("title").String(),
		Handle:      r.Get("handle").String(),
		ProductType: r.Get("product_type").String(),
		Variants:    []models.Variant{},
	}
	r.Get("variants").ForEach(func(_, v gjson.Result) bool {
		p.Variants = append(p.Variants, models.Variant{
			ID:                v.Get("id").String(),
			Title:             v.Get("title").String(),
			InventoryQuantity: int(v.Get("inventory_quantity").Int()),
		})
		return true
	})
	return p
}

// CreateCustomer registers email as a marketing-subscribed customer. An
// email that is already taken is reported through AlreadyExists, not as an error.
func (c *Client) CreateCustomer(ctx context.Context, email string) (models.CustomerResult, error) {
	payload := map[string]any{
		"customer": map[string]any{
			"email":             strings.TrimSpace(email),
			"verified_email":    true,
			"accepts_marketing": true,
			"tags":              "shopassist",
		},
	}
	body, status, err := c.do(ctx, "POST", "/customers.json", payload)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && status == http.StatusUnprocessableEntity && emailTaken(body) {
			slog.Info("Shopify.CreateCustomer: customer already exists")
			return models.CustomerResult{AlreadyExists: true}, nil
		}
		slog.Error("Shopify.CreateCustomer: request failed", "error", err)
		return models.CustomerResult{}, err
	}
	id := gjson.GetBytes(body, "customer.id").String()
	slog.Info("Shopify.CreateCustomer: customer created", "customerID", id)
	return models.CustomerResult{ID: id}, nil
}

func emailTaken(body []byte) bool {
	for _, msg := range gjson.GetBytes(body, "errors.email").Array() {
		if strings.Contains(strings.ToLower(msg.String()), "already been taken") {
			return true
		}
	}
	return false
}

// CreatePromoCode creates a single-use percentage price rule valid for
// PromoValidity and returns its discount code.
func (c *Client) CreatePromoCode(ctx context.Context) (string, error) {
	now := c.now().UTC()
	code := "SHAMELESS" + strings.ToUpper(util.GenerateRandomHex(6))
	rule := map[string]any{
		"price_rule": map[string]any{
			"title":              code,
			"target_type":        "line_item",
			"target_selection":   "all",
			"allocation_method":  "across",
			"value_type":         "percentage",
			"value":              fmt.Sprintf("-%d.0", PromoDiscountPercent),
			"customer_selection": "all",
			"usage_limit":        1,
			"once_per_customer":  true,
			"starts_at":          now.Format(time.RFC3339),
			"ends_at":            now.Add(PromoValidity).Format(time.RFC3339),
		},
	}
	body, _, err := c.do(ctx, "POST", "/price_rules.json", rule)
	if err != nil {
		slog.Error("Shopify.CreatePromoCode: price rule failed", "error", err)
		return "", err
	}
	ruleID := gjson.GetBytes(body, "price_rule.id").String()
	if ruleID == "" {
		return "", fmt.Errorf("price rule response missing id")
	}

	discount := map[string]any{"discount_code": map[string]any{"code": code}}
	body, _, err = c.do(ctx, "POST", "/price_rules/"+ruleID+"/discount_codes.json", discount)
	if err != nil {
		slog.Error("Shopify.CreatePromoCode: discount code failed", "priceRuleID", ruleID, "error", err)
		return "", err
	}
	if got := gjson.GetBytes(body, "discount_code.code").String(); got != "" {
		code = got
	}
	slog.Info("Shopify.CreatePromoCode: promo code created", "priceRuleID", ruleID)
	return code, nil
}
