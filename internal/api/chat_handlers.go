package api

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/pipeline"
)

// chatHandler handles POST /api: one shopper message through the pipeline.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	log := slog.With("requestId", requestID)
	log.Info("Server.chatHandler: received message", "path", r.URL.Path)

	req, err := parseChatRequest(w, r)
	if err != nil {
		log.Warn("Server.chatHandler: invalid request", "error", err)
		writeError(w, r, err)
		return
	}
	req.RequestID = requestID

	reply, err := s.chat.Handle(r.Context(), req)
	if err != nil {
		apiErr := pipeline.AsAPIError(err)
		log.Error("Server.chatHandler: pipeline failed", "status", apiErr.Status, "code", apiErr.Code, "error", err)
		writeError(w, r, apiErr)
		return
	}
	writeSuccess(w, r, models.ChatData{Response: reply})
}

// parseChatRequest validates the POST /api body in order: content type,
// JSON syntax, message, context. currentTicket is optional and ignored when
// it is not an object.
func parseChatRequest(w http.ResponseWriter, r *http.Request) (pipeline.Request, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return pipeline.Request{}, pipeline.NewAPIError(http.StatusUnsupportedMediaType, pipeline.CodeInvalidContentType, "Content-Type must be application/json")
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || !gjson.ValidBytes(body) {
		return pipeline.Request{}, pipeline.NewAPIError(http.StatusBadRequest, pipeline.CodeInvalidJSON, "Invalid JSON in request body")
	}
	doc := gjson.ParseBytes(body)

	message := doc.Get("message")
	if message.Type != gjson.String || message.Str == "" {
		return pipeline.Request{}, pipeline.NewAPIError(http.StatusBadRequest, pipeline.CodeInvalidMessage, "Message must be a non-empty string")
	}

	turns, ok := parseContext(doc.Get("context"))
	if !ok {
		return pipeline.Request{}, pipeline.NewAPIError(http.StatusBadRequest, pipeline.CodeInvalidContext, "Invalid context format")
	}

	req := pipeline.Request{Text: message.Str, Turns: turns}
	if ct := doc.Get("currentTicket"); ct.IsObject() && ct.Get("id").String() != "" {
		req.Ticket = &pipeline.TicketRef{
			ID:          ct.Get("id").String(),
			OrderNumber: ct.Get("orderNumber").String(),
			Email:       ct.Get("email").String(),
		}
	}
	return req, nil
}

// parseContext accepts an absent or null context, or an array of objects
// whose role and content are both strings.
func parseContext(ctx gjson.Result) ([]models.ChatTurn, bool) {
	if !ctx.Exists() || ctx.Type == gjson.Null {
		return nil, true
	}
	if !ctx.IsArray() {
		return nil, false
	}
	items := ctx.Array()
	turns := make([]models.ChatTurn, 0, len(items))
	for _, item := range items {
		role, content := item.Get("role"), item.Get("content")
		if !item.IsObject() || role.Type != gjson.String || content.Type != gjson.String {
			return nil, false
		}
		turns = append(turns, models.ChatTurn{Role: models.ChatRole(role.Str), Content: content.Str})
	}
	return turns, true
}

// threadHandler handles GET /api?ticketId=.
func (s *Server) threadHandler(w http.ResponseWriter, r *http.Request) {
	ticketID := r.URL.Query().Get("ticketId")
	if ticketID == "" {
		writeError(w, r, pipeline.NewAPIError(http.StatusBadRequest, pipeline.CodeMissingParameter, "Missing ticketId parameter"))
		return
	}
	msgs, err := s.tickets.ListMessages(r.Context(), ticketID)
	if err != nil {
		slog.Error("Server.threadHandler: failed to list messages", "requestId", requestIDFrom(r.Context()), "ticketId", ticketID, "error", err)
		writeError(w, r, pipeline.Internal(err))
		return
	}
	writeSuccess(w, r, map[string]interface{}{"messages": nonNil(msgs)})
}

func nonNil(msgs []models.Message) []models.Message {
	if msgs == nil {
		return []models.Message{}
	}
	return msgs
}
