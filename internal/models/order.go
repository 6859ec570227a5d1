package models

import (
	"fmt"
	"strings"
	"time"
)

// OrderErrorCode is the typed failure returned by an order lookup.
type OrderErrorCode string

const (
	OrderErrorInvalidOrderNumber OrderErrorCode = "InvalidOrderNumber"
	OrderErrorEmailMismatch      OrderErrorCode = "EmailMismatch"
)

// Address is a postal address as stored on an order.
type Address struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Name      string `json:"name,omitempty"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address1,omitempty"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city,omitempty"`
	Province  string `json:"province,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Country   string `json:"country,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// FullName returns the recipient name, falling back to first + last.
func (a Address) FullName() string {
	if a.Name != "" {
		return a.Name
	}
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Contact returns the contact fields preserved across an address mutation.
func (a Address) Contact() AddressContact {
	return AddressContact{FirstName: a.FirstName, LastName: a.LastName, Phone: a.Phone}
}

// CityLine renders "city, province, zip" skipping empty parts.
func (a Address) CityLine() string {
	var parts []string
	for _, p := range []string{a.City, a.Province, a.Zip} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// AddressContact is the recipient data sent along with a new shipping address.
type AddressContact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// Fulfillment is a shipment attached to an order.
type Fulfillment struct {
	ID              string `json:"id,omitempty"`
	Status          string `json:"status,omitempty"`
	TrackingNumber  string `json:"tracking_number,omitempty"`
	TrackingCompany string `json:"tracking_company,omitempty"`
	TrackingURL     string `json:"tracking_url,omitempty"`
}

// LineItem is one purchased product line.
type LineItem struct {
	Title    string `json:"title"`
	Variant  string `json:"variant_title,omitempty"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// Customer is the shopper record linked to an order.
type Customer struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
}

// FullName returns "first last" trimmed.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Order is the order body returned by a successful lookup.
type Order struct {
	AdminGraphQLAPIID string        `json:"admin_graphql_api_id"`
	Name              string        `json:"name"`
	Email             string        `json:"email,omitempty"`
	FinancialStatus   string        `json:"financial_status,omitempty"`
	FulfillmentStatus string        `json:"fulfillment_status,omitempty"`
	ShippingAddress   Address       `json:"shipping_address"`
	BillingAddress    Address       `json:"billing_address"`
	Fulfillments      []Fulfillment `json:"fulfillments"`
	LineItems         []LineItem    `json:"line_items"`
	TotalPrice        string        `json:"total_price"`
	Currency          string        `json:"currency,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	Customer          Customer      `json:"customer"`
}

// Shipped reports whether at least one fulfillment exists.
func (o *Order) Shipped() bool {
	return o != nil && len(o.Fulfillments) > 0
}

// TrackingNumber returns the first fulfillment's tracking number, if any.
func (o *Order) TrackingNumber() string {
	if !o.Shipped() {
		return ""
	}
	return o.Fulfillments[0].TrackingNumber
}

// OrderSnapshot is the outcome of an order lookup. Success=false implies
// Order is nil; a non-nil Order implies Success.
type OrderSnapshot struct {
	Success bool           `json:"success"`
	Error   OrderErrorCode `json:"error,omitempty"`
	Order   *Order         `json:"order,omitempty"`
}

// OrderFailure builds a failed snapshot.
func OrderFailure(code OrderErrorCode) OrderSnapshot {
	return OrderSnapshot{Success: false, Error: code}
}

// OrderFound builds a successful snapshot.
func OrderFound(o *Order) OrderSnapshot {
	return OrderSnapshot{Success: true, Order: o}
}

// NormalizeOrderNumber returns the order name in "#12345" form.
func NormalizeOrderNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "#")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return "#" + s
}

// AddressValidation is the outcome of validating free-text address input.
type AddressValidation struct {
	FormattedAddress string `json:"formattedAddress,omitempty"`
}

// Valid reports whether a formatted address was produced.
func (v AddressValidation) Valid() bool {
	return strings.TrimSpace(v.FormattedAddress) != ""
}

// Variant is a purchasable option of a product.
type Variant struct {
	ID                string `json:"id,omitempty"`
	Title             string `json:"title"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

// Product is a catalog entry.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Handle      string    `json:"handle,omitempty"`
	ProductType string    `json:"product_type,omitempty"`
	Variants    []Variant `json:"variants"`
}

// InStock reports whether any variant has positive inventory.
func (p *Product) InStock() bool {
	if p == nil {
		return false
	}
	for _, v := range p.Variants {
		if v.InventoryQuantity > 0 {
			return true
		}
	}
	return false
}

// CustomerResult is the outcome of registering a shopper email.
type CustomerResult struct {
	ID            string `json:"id,omitempty"`
	AlreadyExists bool   `json:"already_exists"`
}

// String implements fmt.Stringer for log output.
func (r CustomerResult) String() string {
	return fmt.Sprintf("customer(id=%s, existing=%t)", r.ID, r.AlreadyExists)
}
