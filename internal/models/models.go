// Package models defines the core data structures for ShopAssist.
//
// It includes the intent taxonomy produced by the classifier, the per-intent
// parameter records, order and catalog snapshots returned by the store
// gateways, and the ticket/message thread persisted for every conversation.
package models

import (
	"errors"
	"strings"
	"time"
)

// Intent is the classified purpose of a shopper message.
type Intent string

const (
	IntentOrderTracking   Intent = "order_tracking"
	IntentReturnsExchange Intent = "returns_exchange"
	IntentDeliveryIssue   Intent = "delivery_issue"
	IntentChangeDelivery  Intent = "change_delivery"
	IntentProductSizing   Intent = "product_sizing"
	IntentUpdateOrder     Intent = "update_order"
	IntentRestock         Intent = "restock"
	IntentPromoCode       Intent = "promo_code"
	IntentInvoiceRequest  Intent = "invoice_request"
	IntentOtherOrder      Intent = "other-order"
	IntentOtherGeneral    Intent = "other-general"
)

// KnownIntents lists every intent the classifier is allowed to return.
var KnownIntents = []Intent{
	IntentOrderTracking,
	IntentReturnsExchange,
	IntentDeliveryIssue,
	IntentChangeDelivery,
	IntentProductSizing,
	IntentUpdateOrder,
	IntentRestock,
	IntentPromoCode,
	IntentInvoiceRequest,
	IntentOtherOrder,
	IntentOtherGeneral,
}

// IsKnown reports whether the intent is part of the supported taxonomy.
func (i Intent) IsKnown() bool {
	for _, k := range KnownIntents {
		if k == i {
			return true
		}
	}
	return false
}

// RequiresOrderIdentity reports whether the intent needs order number and
// email before any external call is made.
func (i Intent) RequiresOrderIdentity() bool {
	switch i {
	case IntentOrderTracking, IntentDeliveryIssue, IntentChangeDelivery,
		IntentUpdateOrder, IntentInvoiceRequest, IntentOtherOrder:
		return true
	default:
		return false
	}
}

// Language is the language tag detected by the classifier.
type Language string

const (
	LanguageSpanish Language = "Spanish"
	LanguageEnglish Language = "English"
)

// IsSpanish reports whether replies should be produced in Spanish.
// Any tag other than "Spanish" selects English.
func (l Language) IsSpanish() bool {
	return strings.EqualFold(strings.TrimSpace(string(l)), string(LanguageSpanish))
}

// ClassifiedMessage is the classifier's verdict for one inbound message.
type ClassifiedMessage struct {
	Intent     Intent     `json:"intent"`
	Parameters Parameters `json:"-"`
	Language   Language   `json:"language"`
}

// Identity returns the order identity carried by the message parameters, if any.
func (m ClassifiedMessage) Identity() OrderIdentity {
	return IdentityOf(m.Parameters)
}

// ChatRole identifies the author of a conversation turn as seen by the model.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatTurn is one prior message in the conversation.
type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// Sender identifies the author of a persisted ticket message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderBot   Sender = "bot"
	SenderAdmin Sender = "admin"
)

// IsValid reports whether s is a supported sender.
func (s Sender) IsValid() bool {
	switch s {
	case SenderUser, SenderBot, SenderAdmin:
		return true
	default:
		return false
	}
}

// Role maps a persisted sender onto the conversational role used for context.
func (s Sender) Role() ChatRole {
	if s == SenderUser {
		return ChatRoleUser
	}
	return ChatRoleAssistant
}

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// Channel identifies where a ticket's conversation takes place.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelWhatsApp Channel = "whatsapp"
)

// Ticket is a persisted conversation thread between a shopper and support.
type Ticket struct {
	ID           string       `json:"id"`
	OrderNumber  string       `json:"orderNumber,omitempty"`
	Email        string       `json:"email,omitempty"`
	CustomerName string       `json:"customerName,omitempty"`
	Status       TicketStatus `json:"status"`
	Admin        bool         `json:"admin"`
	Channel      Channel      `json:"channel"`
	ContactID    string       `json:"contactId,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// HasOrderIdentity reports whether order number and email are already attached.
func (t Ticket) HasOrderIdentity() bool {
	return t.OrderNumber != "" && t.Email != ""
}

// Message is one entry in a ticket's thread.
type Message struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticketId"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Validation errors for ticket and message input.
var (
	ErrEmptyMessageText = errors.New("message text cannot be empty")
	ErrInvalidSender    = errors.New("sender must be one of user, bot, admin")
	ErrEmptyTicketID    = errors.New("ticket id cannot be empty")
)

// Validate checks that a message is ready to be persisted.
func (m Message) Validate() error {
	if m.TicketID == "" {
		return ErrEmptyTicketID
	}
	if strings.TrimSpace(m.Text) == "" {
		return ErrEmptyMessageText
	}
	if !m.Sender.IsValid() {
		return ErrInvalidSender
	}
	return nil
}

// TurnsFromMessages converts a ticket thread into conversation turns,
// keeping at most limit of the most recent messages (limit <= 0 keeps all).
func TurnsFromMessages(msgs []Message, limit int) []ChatTurn {
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	turns := make([]ChatTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, ChatTurn{Role: m.Sender.Role(), Content: m.Text})
	}
	return turns
}

// TicketPage is one page of the admin ticket listing.
type TicketPage struct {
	Tickets []Ticket `json:"tickets"`
	HasMore bool     `json:"hasMore"`
	Total   int      `json:"total"`
}
