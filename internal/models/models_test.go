package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeParameters_PerIntentRecords(t *testing.T) {
	tests := []struct {
		name   string
		intent Intent
		raw    string
		want   Parameters
	}{
		{
			name:   "order tracking",
			intent: IntentOrderTracking,
			raw:    `{"order_number":"#12345","email":"a@b.com"}`,
			want:   OrderTrackingParams{OrderIdentity{OrderNumber: "#12345", Email: "a@b.com"}},
		},
		{
			name:   "order number given as a number",
			intent: IntentDeliveryIssue,
			raw:    `{"order_number":12345,"email":"a@b.com"}`,
			want:   DeliveryIssueParams{OrderIdentity{OrderNumber: "12345", Email: "a@b.com"}},
		},
		{
			name:   "change delivery with string confirmation",
			intent: IntentChangeDelivery,
			raw:    `{"order_number":"#1","email":"x@y.z","new_delivery_info":"Calle Mayor 1","delivery_address_confirmed":"true"}`,
			want: ChangeDeliveryParams{
				OrderIdentity:            OrderIdentity{OrderNumber: "#1", Email: "x@y.z"},
				NewDeliveryInfo:          "Calle Mayor 1",
				DeliveryAddressConfirmed: true,
			},
		},
		{
			name:   "product sizing",
			intent: IntentProductSizing,
			raw:    `{"product_name":"Hoodie Black","height":180,"fit":"loose"}`,
			want:   ProductSizingParams{ProductName: "Hoodie Black", Height: "180", Fit: "loose"},
		},
		{
			name:   "restock",
			intent: IntentRestock,
			raw:    `{"product_name":"Polo","email":"a@b.com"}`,
			want:   RestockParams{ProductName: "Polo", Email: "a@b.com"},
		},
		{
			name:   "promo code without payload",
			intent: IntentPromoCode,
			raw:    `null`,
			want:   PromoCodeParams{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeParameters(tt.intent, json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.intent, got.ParamsIntent())
		})
	}
}

func TestDecodeParameters_GeneralKeepsFields(t *testing.T) {
	got, err := DecodeParameters(IntentOtherOrder, json.RawMessage(`{"order_number":"#9","email":"a@b.com","topic":"gift wrap","urgent":true}`))
	require.NoError(t, err)

	g, ok := got.(GeneralParams)
	require.True(t, ok)
	assert.Equal(t, IntentOtherOrder, g.ParamsIntent())
	assert.True(t, g.Complete())
	assert.Equal(t, "gift wrap", g.Fields["topic"])
	assert.Equal(t, "true", g.Fields["urgent"])
}

func TestDecodeParameters_UnknownIntentIsGeneral(t *testing.T) {
	got, err := DecodeParameters(Intent("weather"), nil)
	require.NoError(t, err)
	assert.Equal(t, Intent("weather"), got.ParamsIntent())
}

func TestDecodeParameters_InvalidJSON(t *testing.T) {
	_, err := DecodeParameters(IntentOrderTracking, json.RawMessage(`{"order_number":`))
	assert.Error(t, err)
}

func TestIdentityOf(t *testing.T) {
	assert.Equal(t, OrderIdentity{OrderNumber: "#1", Email: "e"}, IdentityOf(InvoiceParams{OrderIdentity{"#1", "e"}}))
	assert.Equal(t, OrderIdentity{}, IdentityOf(PromoCodeParams{Email: "e"}))
	assert.Equal(t, OrderIdentity{}, IdentityOf(nil))
	assert.False(t, OrderIdentity{OrderNumber: "#1", Email: "  "}.Complete())
}

func TestEncodeParameters_FlattensIdentity(t *testing.T) {
	out := EncodeParameters(ChangeDeliveryParams{
		OrderIdentity:   OrderIdentity{OrderNumber: "#1", Email: "a@b.com"},
		NewDeliveryInfo: "Gran Via 2",
	})
	assert.Equal(t, "#1", out["order_number"])
	assert.Equal(t, "a@b.com", out["email"])
	assert.Equal(t, "Gran Via 2", out["new_delivery_info"])
	assert.Equal(t, false, out["delivery_address_confirmed"])
}

func TestLanguage_IsSpanish(t *testing.T) {
	assert.True(t, LanguageSpanish.IsSpanish())
	assert.True(t, Language("spanish ").IsSpanish())
	assert.False(t, LanguageEnglish.IsSpanish())
	assert.False(t, Language("French").IsSpanish())
	assert.False(t, Language("").IsSpanish())
}

func TestIntent_RequiresOrderIdentity(t *testing.T) {
	gated := map[Intent]bool{
		IntentOrderTracking:  true,
		IntentDeliveryIssue:  true,
		IntentChangeDelivery: true,
		IntentUpdateOrder:    true,
		IntentInvoiceRequest: true,
		IntentOtherOrder:     true,
	}
	for _, i := range KnownIntents {
		assert.Equal(t, gated[i], i.RequiresOrderIdentity(), "intent %s", i)
	}
	assert.False(t, Intent("unknown").IsKnown())
}

func TestOrderShippedAndTracking(t *testing.T) {
	var nilOrder *Order
	assert.False(t, nilOrder.Shipped())

	o := &Order{}
	assert.False(t, o.Shipped())
	assert.Equal(t, "", o.TrackingNumber())

	o.Fulfillments = []Fulfillment{{TrackingNumber: "TRK1"}}
	assert.True(t, o.Shipped())
	assert.Equal(t, "TRK1", o.TrackingNumber())
}

func TestNormalizeOrderNumber(t *testing.T) {
	assert.Equal(t, "#12345", NormalizeOrderNumber("12345"))
	assert.Equal(t, "#12345", NormalizeOrderNumber(" #12345 "))
	assert.Equal(t, "#12345", NormalizeOrderNumber("##12345"))
	assert.Equal(t, "", NormalizeOrderNumber("#"))
}

func TestProductInStock(t *testing.T) {
	p := &Product{Variants: []Variant{{InventoryQuantity: 0}, {InventoryQuantity: -2}}}
	assert.False(t, p.InStock())
	p.Variants = append(p.Variants, Variant{InventoryQuantity: 1})
	assert.True(t, p.InStock())
}

func TestParseHeightCM(t *testing.T) {
	cases := map[string]int{
		"180":       180,
		"180cm":     180,
		"1.80 m":    180,
		"1,75":      175,
		"about 172": 172,
		"tall":      0,
		"":          0,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseHeightCM(in), "input %q", in)
	}
}

func TestMessageValidate(t *testing.T) {
	m := Message{TicketID: "t1", Sender: SenderUser, Text: "hola", Timestamp: time.Now()}
	assert.NoError(t, m.Validate())

	m.Text = "  "
	assert.ErrorIs(t, m.Validate(), ErrEmptyMessageText)

	m.Text = "hola"
	m.Sender = "robot"
	assert.ErrorIs(t, m.Validate(), ErrInvalidSender)

	m.TicketID = ""
	assert.ErrorIs(t, m.Validate(), ErrEmptyTicketID)
}

func TestTurnsFromMessages(t *testing.T) {
	msgs := []Message{
		{Sender: SenderUser, Text: "1"},
		{Sender: SenderBot, Text: "2"},
		{Sender: SenderAdmin, Text: "3"},
		{Sender: SenderUser, Text: "4"},
	}
	turns := TurnsFromMessages(msgs, 3)
	require.Len(t, turns, 3)
	assert.Equal(t, ChatTurn{Role: ChatRoleAssistant, Content: "2"}, turns[0])
	assert.Equal(t, ChatTurn{Role: ChatRoleAssistant, Content: "3"}, turns[1])
	assert.Equal(t, ChatTurn{Role: ChatRoleUser, Content: "4"}, turns[2])

	assert.Len(t, TurnsFromMessages(msgs, 0), 4)
}
