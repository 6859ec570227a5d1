// Package messaging connects chat channels other than the web widget to the
// ShopAssist pipeline.
package messaging

import (
	"context"
	"errors"
	"time"
)

// Channel buffering for inbound messages.
const (
	DefaultChannelBufferSize = 100
	DefaultChannelTimeout    = 1 * time.Second
)

// ErrServiceStopped is returned when sending after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// InboundMessage is a text a shopper sent on a chat channel.
type InboundMessage struct {
	ID   string // provider message ID, used for redelivery dedup
	From string // phone number, digits only
	Body string
	Time time.Time
}

// Service is a pluggable chat channel.
type Service interface {
	// SendMessage sends body to the phone number to.
	SendMessage(ctx context.Context, to string, body string) error
	// Start begins delivering inbound messages.
	Start(ctx context.Context) error
	// Stop stops background processing and closes Messages.
	Stop() error
	// Messages returns inbound shopper messages.
	Messages() <-chan InboundMessage
}

// inbox is the shared inbound channel with drop-on-full semantics.
type inbox struct {
	ch chan InboundMessage
}

func newInbox() inbox {
	return inbox{ch: make(chan InboundMessage, DefaultChannelBufferSize)}
}

// push forwards msg, giving up after DefaultChannelTimeout.
func (b inbox) push(msg InboundMessage) bool {
	select {
	case b.ch <- msg:
		return true
	case <-time.After(DefaultChannelTimeout):
		return false
	}
}
