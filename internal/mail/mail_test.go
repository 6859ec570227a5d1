package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/BTreeMap/ShopAssist/internal/store"
)

type captureSender struct {
	sent []*gomail.Msg
	err  error
}

func (c *captureSender) DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, messages...)
	return nil
}

// recordingMailer collects messages instead of sending them.
type recordingMailer struct {
	msgs []Message
	err  error
}

func (r *recordingMailer) Send(ctx context.Context, msg Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func TestNewSMTPMailer_Validation(t *testing.T) {
	_, err := NewSMTPMailer()
	assert.Error(t, err)
	_, err = NewSMTPMailer(WithSMTPServer("smtp.example.com", 587))
	assert.Error(t, err)
	m, err := NewSMTPMailer(WithSMTPServer("smtp.example.com", 587), WithSMTPAuth("u", "p"), WithFrom("shop@example.com"))
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestSMTPMailer_SendBuildsMessage(t *testing.T) {
	cs := &captureSender{}
	m := &SMTPMailer{client: cs, from: "shop@example.com"}

	err := m.Send(context.Background(), Message{
		To:          []string{"ana@example.com"},
		Subject:     "Factura #1001",
		Body:        "Adjuntamos tu factura.",
		Attachments: []Attachment{{Filename: "factura-1001.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.3")}},
	})
	require.NoError(t, err)
	require.Len(t, cs.sent, 1)

	rcpts, err := cs.sent[0].GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"ana@example.com"}, rcpts)
	assert.Equal(t, []string{"Factura #1001"}, cs.sent[0].GetGenHeader(gomail.HeaderSubject))
	assert.Len(t, cs.sent[0].GetAttachments(), 1)
}

func TestSMTPMailer_SendErrors(t *testing.T) {
	m := &SMTPMailer{client: &captureSender{err: errors.New("connection refused")}, from: "shop@example.com"}
	err := m.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "s"})
	assert.ErrorContains(t, err, "connection refused")

	err = m.Send(context.Background(), Message{Subject: "no recipients"})
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	err := Disabled{}.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "s"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestEnqueueAndOutboxHandler(t *testing.T) {
	ctx := context.Background()
	s := store.NewInMemoryStore()
	msg := Message{
		To:          []string{"support@example.com"},
		Subject:     "Incidencia pedido #1001",
		Body:        "El cliente reporta un problema.",
		Attachments: []Attachment{{Filename: "x.txt", Data: []byte{0x00, 0xff}}},
	}

	id, err := Enqueue(ctx, s, msg, "delivery_issue:#1001")
	require.NoError(t, err)
	again, err := Enqueue(ctx, s, msg, "delivery_issue:#1001")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	queued := s.OutboxMessages()
	require.Len(t, queued, 1)
	assert.Equal(t, store.OutboxKindSupportEmail, queued[0].Kind)
	assert.Equal(t, "support@example.com", queued[0].Recipient)

	rec := &recordingMailer{}
	require.NoError(t, OutboxHandler(rec)(ctx, queued[0]))
	require.Len(t, rec.msgs, 1)
	assert.Equal(t, msg, rec.msgs[0])
}

func TestOutboxHandler_BadPayload(t *testing.T) {
	err := OutboxHandler(&recordingMailer{})(context.Background(), store.OutboxMessage{ID: "o1", PayloadJSON: "{"})
	assert.Error(t, err)
}
