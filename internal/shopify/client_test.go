package shopify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/BTreeMap/ShopAssist/internal/models"
)

const orderJSON = `{"orders":[{
  "admin_graphql_api_id":"gid://shopify/Order/1",
  "name":"#12345",
  "email":"Ana@Example.com",
  "created_at":"2025-02-01T10:00:00+01:00",
  "total_price":"59.90",
  "currency":"EUR",
  "shipping_address":{"first_name":"Ana","last_name":"Ruiz","address1":"Calle Mayor 1","city":"Madrid","zip":"28013","phone":"+34600111222"},
  "billing_address":{"first_name":"Ana","last_name":"Ruiz"},
  "fulfillments":[{"id":99,"status":"success","tracking_number":"TRK1","tracking_company":"SEUR"}],
  "line_items":[{"title":"Hoodie","variant_title":"M","quantity":2,"price":"29.95"}],
  "customer":{"id":7,"first_name":"Ana","last_name":"Ruiz","email":"ana@example.com"}
}]}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(WithBaseURL(srv.URL), WithAccessToken("tok"))
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresConfig(t *testing.T) {
	_, err := NewClient(WithShop("store"))
	assert.ErrorIs(t, err, ErrNotConfigured)

	c, err := NewClient(WithShop("store.myshopify.com"), WithAccessToken("tok"))
	require.NoError(t, err)
	assert.Equal(t, "https://store.myshopify.com/admin/api/"+DefaultAPIVersion, c.baseURL)
}

func TestLookupOrder_Found(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders.json", r.URL.Path)
		assert.Equal(t, "#12345", r.URL.Query().Get("name"))
		assert.Equal(t, "any", r.URL.Query().Get("status"))
		assert.Equal(t, "tok", r.Header.Get("X-Shopify-Access-Token"))
		io.WriteString(w, orderJSON)
	})

	snap, err := c.LookupOrder(context.Background(), "12345", "ana@example.com ")
	require.NoError(t, err)
	require.True(t, snap.Success)
	require.NotNil(t, snap.Order)
	o := snap.Order
	assert.Equal(t, "gid://shopify/Order/1", o.AdminGraphQLAPIID)
	assert.True(t, o.Shipped())
	assert.Equal(t, "TRK1", o.TrackingNumber())
	assert.Equal(t, "99", o.Fulfillments[0].ID)
	assert.Equal(t, 2, o.LineItems[0].Quantity)
	assert.Equal(t, "+34600111222", o.ShippingAddress.Phone)
	assert.Equal(t, "7", o.Customer.ID)
	assert.Equal(t, 2025, o.CreatedAt.Year())
}

func TestLookupOrder_EmailMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, orderJSON)
	})
	snap, err := c.LookupOrder(context.Background(), "#12345", "other@example.com")
	require.NoError(t, err)
	assert.False(t, snap.Success)
	assert.Equal(t, models.OrderErrorEmailMismatch, snap.Error)
	assert.Nil(t, snap.Order)
}

func TestLookupOrder_InvalidNumber(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"orders":[]}`)
	})
	snap, err := c.LookupOrder(context.Background(), "#1", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, models.OrderErrorInvalidOrderNumber, snap.Error)
}

func TestLookupOrder_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := c.LookupOrder(context.Background(), "#1", "a@b.com")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestUpdateShippingAddress(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graphql.json", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "gid://shopify/Order/1", gjson.GetBytes(body, "variables.input.id").String())
		assert.Equal(t, "Calle Luna 2, 28004 Madrid", gjson.GetBytes(body, "variables.input.shippingAddress.address1").String())
		assert.Equal(t, "Ana", gjson.GetBytes(body, "variables.input.shippingAddress.firstName").String())
		io.WriteString(w, `{"data":{"orderUpdate":{"order":{"id":"gid://shopify/Order/1"},"userErrors":[]}}}`)
	})
	err := c.UpdateShippingAddress(context.Background(), "gid://shopify/Order/1", "Calle Luna 2, 28004 Madrid", models.AddressContact{FirstName: "Ana"})
	assert.NoError(t, err)
}

func TestUpdateShippingAddress_UserErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"orderUpdate":{"order":null,"userErrors":[{"field":["shippingAddress"],"message":"Zip is invalid"}]}}}`)
	})
	err := c.UpdateShippingAddress(context.Background(), "gid", "x", models.AddressContact{})
	require.ErrorIs(t, err, ErrUserErrors)
	assert.Contains(t, err.Error(), "Zip is invalid")
}

func TestFindProduct(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("title") == "Basic Hoodie" {
			io.WriteString(w, `{"products":[{"id":5,"title":"Basic Hoodie","handle":"basic-hoodie","variants":[{"id":1,"title":"S","inventory_quantity":0},{"id":2,"title":"M","inventory_quantity":3}]}]}`)
			return
		}
		io.WriteString(w, `{"products":[]}`)
	})

	p, err := c.FindProduct(context.Background(), "Basic Hoodie")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "5", p.ID)
	assert.True(t, p.InStock())

	missing, err := c.FindProduct(context.Background(), "Nothing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateCustomer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]map[string]any
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			return
		}
		if body["customer"]["email"] == "taken@example.com" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			io.WriteString(w, `{"errors":{"email":["has already been taken"]}}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"customer":{"id":42}}`)
	})

	res, err := c.CreateCustomer(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.CustomerResult{ID: "42"}, res)

	res, err = c.CreateCustomer(context.Background(), "taken@example.com")
	require.NoError(t, err)
	assert.True(t, res.AlreadyExists)
}

func TestCreateCustomer_OtherValidationError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"errors":{"email":["is invalid"]}}`)
	})
	_, err := c.CreateCustomer(context.Background(), "nope")
	assert.Error(t, err)
}

func TestCreatePromoCode(t *testing.T) {
	fixed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	var ruleBody []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/price_rules.json":
			ruleBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"price_rule":{"id":777}}`)
		case "/price_rules/777/discount_codes.json":
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"discount_code":{"code":"SHAMELESSABC123"}}`)
		default:
			http.NotFound(w, r)
		}
	})
	c.now = func() time.Time { return fixed }

	code, err := c.CreatePromoCode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SHAMELESSABC123", code)
	assert.Equal(t, "-20.0", gjson.GetBytes(ruleBody, "price_rule.value").String())
	assert.Equal(t, "2025-05-01T12:15:00Z", gjson.GetBytes(ruleBody, "price_rule.ends_at").String())
}
