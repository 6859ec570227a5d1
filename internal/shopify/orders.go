package shopify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/ShopAssist/internal/models"
)

// LookupOrder finds an order by its name and checks that email matches the
// order's email. Unknown orders and mismatched emails are typed failures,
// not errors.
func (c *Client) LookupOrder(ctx context.Context, number, email string) (models.OrderSnapshot, error) {
	name := models.NormalizeOrderNumber(number)
	q := url.Values{}
	q.Set("name", name)
	q.Set("status", "any")
	q.Set("limit", "1")

	body, _, err := c.do(ctx, "GET", "/orders.json?"+q.Encode(), nil)
	if err != nil {
		slog.Error("Shopify.LookupOrder: request failed", "order", name, "error", err)
		return models.OrderSnapshot{}, err
	}

	orders := gjson.GetBytes(body, "orders")
	if !orders.IsArray() {
		return models.OrderSnapshot{}, fmt.Errorf("unexpected orders payload")
	}
	if len(orders.Array()) == 0 {
		slog.Info("Shopify.LookupOrder: no order with that number", "order", name)
		return models.OrderFailure(models.OrderErrorInvalidOrderNumber), nil
	}

	raw := orders.Array()[0]
	orderEmail := raw.Get("email").String()
	if orderEmail == "" {
		orderEmail = raw.Get("customer.email").String()
	}
	if !strings.EqualFold(strings.TrimSpace(orderEmail), strings.TrimSpace(email)) {
		slog.Info("Shopify.LookupOrder: email does not match order", "order", name)
		return models.OrderFailure(models.OrderErrorEmailMismatch), nil
	}

	order := parseOrder(raw)
	slog.Debug("Shopify.LookupOrder: order found", "order", order.Name, "fulfillments", len(order.Fulfillments))
	return models.OrderFound(order), nil
}

func parseOrder(r gjson.Result) *models.Order {
	o := &models.Order{
		AdminGraphQLAPIID: r.Get("admin_graphql_api_id").String(),
		Name:              r.Get("name").String(),
		Email:             r.Get("email").String(),
		FinancialStatus:   r.Get("financial_status").String(),
		FulfillmentStatus: r.Get("fulfillment_status").String(),
		ShippingAddress:   parseAddress(r.Get("shipping_address")),
		BillingAddress:    parseAddress(r.Get("billing_address")),
		TotalPrice:        r.Get("total_price").String(),
		Currency:          r.Get("currency").String(),
		Customer: models.Customer{
			ID:        r.Get("customer.id").String(),
			FirstName: r.Get("customer.first_name").String(),
			LastName:  r.Get("customer.last_name").String(),
			Email:     r.Get("customer.email").String(),
		},
		Fulfillments: []models.Fulfillment{},
		LineItems:    []models.LineItem{},
	}
	if t, err := time.Parse(time.RFC3339, r.Get("created_at").String()); err == nil {
		o.CreatedAt = t
	}
	r.Get("fulfillments").ForEach(func(_, f gjson.Result) bool {
		o.Fulfillments = append(o.Fulfillments, models.Fulfillment{
			ID:              f.Get("id").String(),
			Status:          f.Get("status").String(),
			TrackingNumber:  f.Get("tracking_number").String(),
			TrackingCompany: f.Get("tracking_company").String(),
			TrackingURL:     f.Get("tracking_url").String(),
		})
		return true
	})
	r.Get("line_items").ForEach(func(_, li gjson.Result) bool {
		o.LineItems = append(o.LineItems, models.LineItem{
			Title:    li.Get("title").String(),
			Variant:  li.Get("variant_title").String(),
			Quantity: int(li.Get("quantity").Int()),
			Price:    li.Get("price").String(),
		})
		return true
	})
	return o
}

func parseAddress(r gjson.Result) models.Address {
	return models.Address{
		FirstName: r.Get("first_name").String(),
		LastName:  r.Get("last_name").String(),
		Name:      r.Get("name").String(),
		Company:   r.Get("company").String(),
		Address1:  r.Get("address1").String(),
		Address2:  r.Get("address2").String(),
		City:      r.Get("city").String(),
		Province:  r.Get("province").String(),
		Zip:       r.Get("zip").String(),
		Country:   r.Get("country").String(),
		Phone:     r.Get("phone").String(),
	}
}

const orderUpdateMutation = `mutation orderUpdate($input: OrderInput!) {
  orderUpdate(input: $input) {
    order { id }
    userErrors { field message }
  }
}`

// UpdateShippingAddress replaces the shipping address of an unshipped order.
// The formatted address goes into address1; the recipient contact is kept.
func (c *Client) UpdateShippingAddress(ctx context.Context, orderID, formatted string, contact models.AddressContact) error {
	payload := map[string]any{
		"query": orderUpdateMutation,
		"variables": map[string]any{
			"input": map[string]any{
				"id": orderID,
				"shippingAddress": map[string]any{
					"address1":  formatted,
					"firstName": contact.FirstName,
					"lastName":  contact.LastName,
					"phone":     contact.Phone,
				},
			},
		},
	}
	body, _, err := c.do(ctx, "POST", "/graphql.json", payload)
	if err != nil {
		slog.Error("Shopify.UpdateShippingAddress: request failed", "orderID", orderID, "error", err)
		return err
	}
	if errs := gjson.GetBytes(body, "errors"); errs.Exists() {
		return fmt.Errorf("shopify graphql error: %s", errs.Raw)
	}
	userErrors := gjson.GetBytes(body, "data.orderUpdate.userErrors")
	if n := len(userErrors.Array()); n > 0 {
		msgs := make([]string, 0, n)
		for _, ue := range userErrors.Array() {
			msgs = append(msgs, ue.Get("message").String())
		}
		slog.Warn("Shopify.UpdateShippingAddress: user errors", "orderID", orderID, "errors", msgs)
		return fmt.Errorf("%w: %s", ErrUserErrors, strings.Join(msgs, "; "))
	}
	slog.Info("Shopify.UpdateShippingAddress: address updated", "orderID", orderID)
	return nil
}
