package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Parameters is the structured payload extracted by the classifier. Every
// intent family has its own concrete record; handlers type-switch on it
// instead of probing a loose field map.
type Parameters interface {
	ParamsIntent() Intent
}

// OrderIdentity is the (order number, email) pair that unlocks order data.
type OrderIdentity struct {
	OrderNumber string `json:"order_number,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Identity returns the receiver; embedding records expose it through promotion.
func (o OrderIdentity) Identity() OrderIdentity { return o }

// Complete reports whether both the order number and the email are present.
func (o OrderIdentity) Complete() bool {
	return strings.TrimSpace(o.OrderNumber) != "" && strings.TrimSpace(o.Email) != ""
}

type identityCarrier interface {
	Identity() OrderIdentity
}

// IdentityOf returns the order identity embedded in p, or the zero value.
func IdentityOf(p Parameters) OrderIdentity {
	if ic, ok := p.(identityCarrier); ok {
		return ic.Identity()
	}
	return OrderIdentity{}
}

type OrderTrackingParams struct {
	OrderIdentity
}

func (OrderTrackingParams) ParamsIntent() Intent { return IntentOrderTracking }

type DeliveryIssueParams struct {
	OrderIdentity
}

func (DeliveryIssueParams) ParamsIntent() Intent { return IntentDeliveryIssue }

// ChangeDeliveryParams drives the address change flow.
type ChangeDeliveryParams struct {
	OrderIdentity
	NewDeliveryInfo          string `json:"new_delivery_info,omitempty"`
	DeliveryAddressConfirmed bool   `json:"delivery_address_confirmed"`
}

func (ChangeDeliveryParams) ParamsIntent() Intent { return IntentChangeDelivery }

type UpdateOrderParams struct {
	OrderIdentity
	UpdateType string `json:"update_type,omitempty"`
}

func (UpdateOrderParams) ParamsIntent() Intent { return IntentUpdateOrder }

type InvoiceParams struct {
	OrderIdentity
}

func (InvoiceParams) ParamsIntent() Intent { return IntentInvoiceRequest }

type ReturnsExchangeParams struct {
	OrderIdentity
}

func (ReturnsExchangeParams) ParamsIntent() Intent { return IntentReturnsExchange }

// ProductSizingParams carries the body measurements used for a size recommendation.
type ProductSizingParams struct {
	ProductName string `json:"product_name,omitempty"`
	Height      string `json:"height,omitempty"`
	Fit         string `json:"fit,omitempty"`
	Weight      string `json:"weight,omitempty"`
	UsualSize   string `json:"usual_size,omitempty"`
}

func (ProductSizingParams) ParamsIntent() Intent { return IntentProductSizing }

type RestockParams struct {
	ProductName string `json:"product_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

func (RestockParams) ParamsIntent() Intent { return IntentRestock }

type PromoCodeParams struct {
	Email string `json:"email,omitempty"`
}

func (PromoCodeParams) ParamsIntent() Intent { return IntentPromoCode }

// GeneralParams is used for other-order, other-general and any intent outside
// the known taxonomy. Fields keeps every extracted value as text.
type GeneralParams struct {
	OrderIdentity
	Kind   Intent            `json:"-"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (g GeneralParams) ParamsIntent() Intent {
	if g.Kind == "" {
		return IntentOtherGeneral
	}
	return g.Kind
}

// looseString accepts JSON strings, numbers and booleans.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(strings.TrimSpace(v))
		return nil
	}
	*s = looseString(string(b))
	return nil
}

// looseBool accepts true/false as JSON booleans or as strings such as "yes".
type looseBool bool

func (v *looseBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = false
		return nil
	}
	var raw string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	} else {
		raw = string(b)
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "si", "sí":
		*v = true
	default:
		*v = false
	}
	return nil
}

type wireParameters struct {
	OrderNumber              looseString `json:"order_number"`
	Email                    looseString `json:"email"`
	NewDeliveryInfo          looseString `json:"new_delivery_info"`
	DeliveryAddressConfirmed looseBool   `json:"delivery_address_confirmed"`
	UpdateType               looseString `json:"update_type"`
	ProductName              looseString `json:"product_name"`
	Height                   looseString `json:"height"`
	Fit                      looseString `json:"fit"`
	Weight                   looseString `json:"weight"`
	UsualSize                looseString `json:"usual_size"`
}

// DecodeParameters builds the record for intent from the classifier's flat
// JSON object. An empty or null payload yields the zero record.
func DecodeParameters(intent Intent, raw json.RawMessage) (Parameters, error) {
	var w wireParameters
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("failed to decode %s parameters: %w", intent, err)
		}
	}
	id := OrderIdentity{OrderNumber: string(w.OrderNumber), Email: string(w.Email)}

	switch intent {
	case IntentOrderTracking:
		return OrderTrackingParams{OrderIdentity: id}, nil
	case IntentDeliveryIssue:
		return DeliveryIssueParams{OrderIdentity: id}, nil
	case IntentChangeDelivery:
		return ChangeDeliveryParams{
			OrderIdentity:            id,
			NewDeliveryInfo:          string(w.NewDeliveryInfo),
			DeliveryAddressConfirmed: bool(w.DeliveryAddressConfirmed),
		}, nil
	case IntentUpdateOrder:
		return UpdateOrderParams{OrderIdentity: id, UpdateType: string(w.UpdateType)}, nil
	case IntentInvoiceRequest:
		return InvoiceParams{OrderIdentity: id}, nil
	case IntentReturnsExchange:
		return ReturnsExchangeParams{OrderIdentity: id}, nil
	case IntentProductSizing:
		return ProductSizingParams{
			ProductName: string(w.ProductName),
			Height:      string(w.Height),
			Fit:         string(w.Fit),
			Weight:      string(w.Weight),
			UsualSize:   string(w.UsualSize),
		}, nil
	case IntentRestock:
		return RestockParams{ProductName: string(w.ProductName), Email: string(w.Email)}, nil
	case IntentPromoCode:
		return PromoCodeParams{Email: string(w.Email)}, nil
	}

	fields, err := flattenFields(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s parameters: %w", intent, err)
	}
	return GeneralParams{OrderIdentity: id, Kind: intent, Fields: fields}, nil
}

func flattenFields(raw json.RawMessage) (map[string]string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		var s looseString
		if err := s.UnmarshalJSON(v); err != nil {
			return nil, err
		}
		if s != "" {
			out[k] = string(s)
		}
	}
	return out, nil
}

// EncodeParameters renders p as the flat JSON object the generator expects.
func EncodeParameters(p Parameters) map[string]any {
	out := map[string]any{}
	if p == nil {
		return out
	}
	if g, ok := p.(GeneralParams); ok {
		for k, v := range g.Fields {
			out[k] = v
		}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return out
	}
	var flat map[string]any
	if err := json.Unmarshal(b, &flat); err != nil {
		return out
	}
	delete(flat, "fields")
	for k, v := range flat {
		out[k] = v
	}
	return out
}

// ParseHeightCM extracts a height in centimetres from free text such as
// "180", "180cm" or "1.80 m". It returns 0 when nothing usable is found.
func ParseHeightCM(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	var digits strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			digits.WriteRune(r)
			continue
		}
		if digits.Len() > 0 {
			break
		}
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(digits.String(), ",", "."), 64)
	if err != nil || f <= 0 {
		return 0
	}
	if f < 3 {
		f *= 100
	}
	return int(f + 0.5)
}
