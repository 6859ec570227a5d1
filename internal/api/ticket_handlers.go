package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/pipeline"
	"github.com/BTreeMap/ShopAssist/internal/store"
)

// messageInput is a message as posted by the chat widget or the admin panel.
type messageInput struct {
	Sender    models.Sender `json:"sender"`
	Text      string        `json:"text"`
	Timestamp string        `json:"timestamp"`
}

// toMessage validates the input and converts it for ticketID. An empty
// timestamp is allowed only when allowNow is set.
func (in messageInput) toMessage(ticketID string, now time.Time, allowNow bool) (models.Message, error) {
	if !in.Sender.IsValid() {
		return models.Message{}, models.ErrInvalidSender
	}
	if strings.TrimSpace(in.Text) == "" {
		return models.Message{}, models.ErrEmptyMessageText
	}
	ts := now.UTC()
	if in.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, in.Timestamp)
		if err != nil {
			return models.Message{}, fmt.Errorf("timestamp must be RFC 3339: %w", err)
		}
		ts = parsed.UTC()
	} else if !allowNow {
		return models.Message{}, errors.New("timestamp is required")
	}
	return models.Message{TicketID: ticketID, Sender: in.Sender, Text: in.Text, Timestamp: ts}, nil
}

func invalidMessage(err error) *pipeline.APIError {
	return pipeline.NewAPIError(http.StatusBadRequest, pipeline.CodeInvalidMessage, "Invalid message data: "+err.Error())
}

func missingTicketID() *pipeline.APIError {
	return pipeline.NewAPIError(http.StatusBadRequest, pipeline.CodeMissingParameter, "Missing ticketId parameter")
}

func invalidJSON() *pipeline.APIError {
	return pipeline.NewAPIError(http.StatusBadRequest, pipeline.CodeInvalidJSON, "Invalid JSON in request body")
}

func ticketNotFound() *pipeline.APIError {
	return pipeline.NewAPIError(http.StatusNotFound, pipeline.CodeNotFound, "Ticket not found")
}

// createTicketHandler handles POST /api/tickets: a new ticket with its first message.
func (s *Server) createTicketHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		messageInput
		Status models.TicketStatus `json:"status"`
		Admin  bool                `json:"admin"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, r, invalidJSON())
		return
	}
	first, err := body.toMessage("pending", s.now(), false)
	if err != nil {
		writeError(w, r, invalidMessage(err))
		return
	}

	ctx := r.Context()
	ticket, err := s.tickets.CreateTicket(ctx, models.Ticket{Status: body.Status, Admin: body.Admin, Channel: models.ChannelWeb})
	if err != nil {
		slog.Error("Server.createTicketHandler: failed to create ticket", "requestId", requestIDFrom(ctx), "error", err)
		writeError(w, r, pipeline.Internal(err))
		return
	}
	first.TicketID = ticket.ID
	if _, err := s.tickets.AppendMessage(ctx, first); err != nil {
		slog.Error("Server.createTicketHandler: failed to store first message", "requestId", requestIDFrom(ctx), "ticketId", ticket.ID, "error", err)
		writeError(w, r, pipeline.Internal(err))
		return
	}
	slog.Info("Server.createTicketHandler: ticket created", "requestId", requestIDFrom(ctx), "ticketId", ticket.ID)
	writeSuccess(w, r, ticket)
}

// getTicketHandler handles GET /api/tickets?ticketId=.
func (s *Server) getTicketHandler(w http.ResponseWriter, r *http.Request) {
	ticketID := r.URL.Query().Get("ticketId")
	if ticketID == "" {
		writeError(w, r, missingTicketID())
		return
	}
	ticket, err := s.tickets.GetTicket(r.Context(), ticketID)
	if err != nil {
		slog.Error("Server.getTicketHandler: failed to load ticket", "ticketId", ticketID, "error", err)
		writeError(w, r, pipeline.Internal(err))
		return
	}
	if ticket == nil {
		writeError(w, r, ticketNotFound())
		return
	}
	writeSuccess(w, r, ticket)
}

// appendMessageHandler handles POST /api/messages {ticketId, message}.
func (s *Server) appendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TicketID string        `json:"ticketId"`
		Message  *messageInput `json:"message"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, r, invalidJSON())
		return
	}
	if body.TicketID == "" || body.Message == nil {
		writeError(w, r, pipeline.NewAPIError(http.StatusBadRequest, pipeline.CodeMissingParameter, "Missing ticketId or message"))
		return
	}
	msg, err := body.Message.toMessage(body.TicketID, s.now(), false)
	if err != nil {
		writeError(w, r, invalidMessage(err))
		return
	}
	stored, err := s.tickets.AppendMessage(r.Context(), msg)
	if err != nil {
		s.writeAppendError(w, r, body.TicketID, err)
		return
	}
	writeSuccess(w, r, stored)
}

func (s *Server) writeAppendError(w http.ResponseWriter, r *http.Request, ticketID string, err error) {
	if errors.Is(err, store.ErrTicketNotFound) {
		writeError(w, r, ticketNotFound())
		return
	}
	slog.Error("Server.writeAppendError: failed to add message", "requestId", requestIDFrom(r.Context()), "ticketId", ticketID, "error", err)
	writeError(w, r, pipeline.Internal(err))
}

// listMessagesHandler handles GET /api/messages?ticketId=.
func (s *Server) listMessagesHandler(w http.ResponseWriter, r *http.Request) {
	ticketID := r.URL.Query().Get("ticketId")
	if ticketID == "" {
		writeError(w, r, missingTicketID())
		return
	}
	msgs, err := s.tickets.ListMessages(r.Context(), ticketID)
	if err != nil {
		slog.Error("Server.listMessagesHandler: failed to list messages", "ticketId", ticketID, "error", err)
		writeError(w, r, pipeline.Internal(err))
		return
	}
	writeSuccess(w, r, map[string]interface{}{"messages": nonNil(msgs)})
}

// adminListTicketsHandler handles GET /api/admin/tickets?page=, newest first.
func (s *Server) adminListTicketsHandler(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}
	result, err := s.tickets.ListTickets(r.Context(), page, store.DefaultPageSize)
	if err != nil {
		slog.Error("Server.adminListTicketsHandler: failed to list tickets", "page", page, "error", err)
		writeError(w, r, pipeline.Internal(err))
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

// adminListMessagesHandler handles GET /api/admin/messages?ticketId=.
func (s *Server) adminListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	ticketID := r.URL.Query().Get("ticketId")
	if ticketID == "" {
		writeError(w, r, missingTicketID())
		return
	}
	msgs, err := s.tickets.ListMessages(r.Context(), ticketID)
	if err != nil {
		slog.Error("Server.adminListMessagesHandler: failed to list messages", "ticketId", ticketID, "error", err)
		writeError(w, r, pipeline.Internal(err))
		return
	}
	writeJSONResponse(w, http.StatusOK, nonNil(msgs))
}

// adminPostMessageHandler handles POST /api/admin/messages {sender, text, ticketId}.
// An admin message flags the ticket as taken over and, for tickets opened
// on another channel, is relayed to the shopper.
func (s *Server) adminPostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		messageInput
		TicketID string `json:"ticketId"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, r, invalidJSON())
		return
	}
	if body.TicketID == "" || body.Sender == "" || body.Text == "" {
		writeError(w, r, pipeline.NewAPIError(http.StatusBadRequest, pipeline.CodeMissingParameter, "Missing required fields"))
		return
	}
	msg, err := body.toMessage(body.TicketID, s.now(), true)
	if err != nil {
		writeError(w, r, invalidMessage(err))
		return
	}

	ctx := r.Context()
	stored, err := s.tickets.AppendMessage(ctx, msg)
	if err != nil {
		s.writeAppendError(w, r, body.TicketID, err)
		return
	}

	if msg.Sender == models.SenderAdmin {
		if err := s.tickets.SetTicketAdmin(ctx, body.TicketID, true); err != nil {
			slog.Warn("Server.adminPostMessageHandler: failed to flag ticket", "ticketId", body.TicketID, "error", err)
		}
		s.relayAdminMessage(r, body.TicketID, msg.Text)
	}
	writeJSONResponse(w, http.StatusOK, stored)
}

func (s *Server) relayAdminMessage(r *http.Request, ticketID, text string) {
	if s.relay == nil {
		return
	}
	ctx := r.Context()
	ticket, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil || ticket == nil || ticket.Channel == models.ChannelWeb {
		return
	}
	if err := s.relay.RelayAdminMessage(ctx, *ticket, text); err != nil {
		slog.Error("Server.relayAdminMessage: relay failed", "ticketId", ticketID, "channel", ticket.Channel, "error", err)
	}
}
