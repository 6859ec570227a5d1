package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/ShopAssist/internal/lang"
	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/pipeline"
	"github.com/BTreeMap/ShopAssist/internal/store"
	"github.com/BTreeMap/ShopAssist/internal/whatsapp"
)

type stubChat struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []pipeline.Request
}

func (c *stubChat) Handle(ctx context.Context, req pipeline.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	return c.reply, c.err
}

func (c *stubChat) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reqs)
}

func newBridge(t *testing.T, chat ChatHandler, opts ...BridgeOption) (*ChatBridge, *WhatsAppService, *fakeWhatsApp, *store.InMemoryStore) {
	t.Helper()
	client := &fakeWhatsApp{}
	svc := NewWhatsAppService(client)
	st := store.NewInMemoryStore()
	return NewChatBridge(svc, chat, st, opts...), svc, client, st
}

func whatsappInbound(id, body string) whatsapp.Inbound {
	return whatsapp.Inbound{ID: id, From: "34600111222", Body: body, Time: time.Now()}
}

func inbound(id, body string) InboundMessage {
	return InboundMessage{ID: id, From: "34600111222", Body: body, Time: time.Now()}
}

func TestChatBridge_NewContactGetsTicketAndReply(t *testing.T) {
	chat := &stubChat{reply: "¡Hola! ¿En qué puedo ayudarte?"}
	b, _, client, st := newBridge(t, chat)
	ctx := context.Background()

	require.NoError(t, b.HandleInbound(ctx, inbound("W1", "hola")))

	ticket, err := st.FindOpenTicket(ctx, models.ChannelWhatsApp, "34600111222")
	require.NoError(t, err)
	require.NotNil(t, ticket)

	msgs, err := st.ListMessages(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SenderUser, msgs[0].Sender)
	assert.Equal(t, "hola", msgs[0].Text)
	assert.Equal(t, models.SenderBot, msgs[1].Sender)

	require.Len(t, chat.reqs, 1)
	assert.Equal(t, ticket.ID, chat.reqs[0].Ticket.ID)
	assert.Empty(t, chat.reqs[0].Turns)
	assert.NotEmpty(t, chat.reqs[0].RequestID)
	assert.Equal(t, []sentMessage{{To: "34600111222", Body: "¡Hola! ¿En qué puedo ayudarte?"}}, client.Sent())
}

func TestChatBridge_ReusesTicketWithTurns(t *testing.T) {
	chat := &stubChat{reply: "ok"}
	b, _, _, st := newBridge(t, chat, WithTurnLimit(10))
	ctx := context.Background()

	require.NoError(t, b.HandleInbound(ctx, inbound("W1", "hola")))
	require.NoError(t, b.HandleInbound(ctx, inbound("W2", "¿dónde está mi pedido?")))

	page, err := st.ListTickets(ctx, 1, store.DefaultPageSize)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	require.Len(t, chat.reqs, 2)
	assert.Equal(t, chat.reqs[0].Ticket.ID, chat.reqs[1].Ticket.ID)
	assert.Equal(t, []models.ChatTurn{
		{Role: models.ChatRoleUser, Content: "hola"},
		{Role: models.ChatRoleAssistant, Content: "ok"},
	}, chat.reqs[1].Turns)
}

func TestChatBridge_DuplicateDeliverySkipped(t *testing.T) {
	chat := &stubChat{reply: "ok"}
	b, _, client, st := newBridge(t, chat, WithInboundDedup(store.NewInMemoryStore()))
	ctx := context.Background()

	require.NoError(t, b.HandleInbound(ctx, inbound("W1", "hola")))
	require.NoError(t, b.HandleInbound(ctx, inbound("W1", "hola")))

	assert.Equal(t, 1, chat.calls())
	assert.Len(t, client.Sent(), 1)
	ticket, err := st.FindOpenTicket(ctx, models.ChannelWhatsApp, "34600111222")
	require.NoError(t, err)
	msgs, err := st.ListMessages(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestChatBridge_FailedSendCanBeRedelivered(t *testing.T) {
	chat := &stubChat{reply: "ok"}
	dedup := store.NewInMemoryStore()
	b, _, client, _ := newBridge(t, chat, WithInboundDedup(dedup))
	ctx := context.Background()

	client.err = errors.New("websocket closed")
	assert.Error(t, b.HandleInbound(ctx, inbound("W1", "hola")))

	client.err = nil
	require.NoError(t, b.HandleInbound(ctx, inbound("W1", "hola")))
	assert.Equal(t, 2, chat.calls())
	assert.Len(t, client.Sent(), 1)

	dup, err := dedup.IsDuplicate(ctx, inboundKey("W1"))
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestChatBridge_PipelineErrorRepliesGenerically(t *testing.T) {
	chat := &stubChat{err: pipeline.ErrClassificationTimeout()}
	b, _, client, _ := newBridge(t, chat)

	require.NoError(t, b.HandleInbound(context.Background(), inbound("W1", "hola")))
	assert.Equal(t, []sentMessage{{To: "34600111222", Body: lang.GenericError.ES}}, client.Sent())
}

func TestChatBridge_AgentTicketNotAnswered(t *testing.T) {
	chat := &stubChat{reply: "ok"}
	b, _, client, st := newBridge(t, chat)
	ctx := context.Background()

	ticket, err := st.CreateTicket(ctx, models.Ticket{Channel: models.ChannelWhatsApp, ContactID: "34600111222", Admin: true})
	require.NoError(t, err)

	require.NoError(t, b.HandleInbound(ctx, inbound("W1", "¿hay alguien?")))
	assert.Zero(t, chat.calls())
	assert.Empty(t, client.Sent())

	msgs, err := st.ListMessages(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "¿hay alguien?", msgs[0].Text)
}

func TestChatBridge_RepliesThroughOutbox(t *testing.T) {
	chat := &stubChat{reply: "Tu pedido está en camino"}
	outbox := store.NewInMemoryStore()
	b, svc, client, _ := newBridge(t, chat, WithReplyOutbox(outbox))
	ctx := context.Background()

	require.NoError(t, b.HandleInbound(ctx, inbound("W1", "hola")))
	assert.Empty(t, client.Sent())

	queued := outbox.OutboxMessages()
	require.Len(t, queued, 1)
	assert.Equal(t, store.OutboxKindChatReply, queued[0].Kind)
	assert.Equal(t, "34600111222", queued[0].Recipient)
	assert.Equal(t, "chat_reply:W1", queued[0].DedupeKey)

	require.NoError(t, OutboxHandler(svc)(ctx, queued[0]))
	assert.Equal(t, []sentMessage{{To: "34600111222", Body: "Tu pedido está en camino"}}, client.Sent())

	assert.Error(t, OutboxHandler(svc)(ctx, store.OutboxMessage{ID: "x", PayloadJSON: "{"}))
}

func TestChatBridge_RelayAdminMessage(t *testing.T) {
	b, _, client, _ := newBridge(t, &stubChat{})
	ctx := context.Background()

	require.NoError(t, b.RelayAdminMessage(ctx, models.Ticket{ID: "t1", ContactID: "34600111222"}, "Te escribe Laura"))
	assert.Equal(t, []sentMessage{{To: "34600111222", Body: "Te escribe Laura"}}, client.Sent())
	assert.Error(t, b.RelayAdminMessage(ctx, models.Ticket{ID: "t2"}, "x"))
}

func TestChatBridge_Run(t *testing.T) {
	chat := &stubChat{reply: "ok"}
	b, svc, client, _ := newBridge(t, chat)
	require.NoError(t, svc.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	svc.deliver(whatsappInbound("W1", "hola"))
	svc.deliver(whatsappInbound("W2", "¿sigues ahí?"))
	assert.Eventually(t, func() bool { return len(client.Sent()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
