package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"weft/internal/retrieval"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type askRequest struct {
	ChatID         string   `json:"chat_id"`
	Question       string   `json:"question"`
	IntegrationIDs []string `json:"integration_ids,omitempty"`
}

// wsSink serializes concurrent writes onto one websocket connection.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(e)
}

// Stream is the websocket endpoint. Each inbound frame is one question; the
// answer streams back as token, citation and done frames. Closing the socket
// cancels whatever is in flight.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sink := &wsSink{conn: conn}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		var req askRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.WarnContext(ctx, "websocket read failed", "error", err)
			}
			return
		}
		if req.Question == "" {
			h.sendError(ctx, sink, "VALIDATION_ERROR", "question is required")
			continue
		}

		chatID := req.ChatID
		if chatID == "" {
			c, err := h.service.CreateChat(ctx, req.Question)
			if err != nil {
				slog.ErrorContext(ctx, "failed to create chat", "error", err)
				h.sendError(ctx, sink, "INTERNAL_ERROR", "could not create chat")
				continue
			}
			chatID = c.ID
			if err := sink.Send(Event{Type: "chat", Content: chatID}); err != nil {
				return
			}
		}

		if err := h.service.Ask(ctx, chatID, req.Question, req.IntegrationIDs, sink); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			slog.ErrorContext(ctx, "ask failed", "error", err, "chat_id", chatID)
			h.sendError(ctx, sink, "ASK_FAILED", askErrorMessage(err))
		}
	}
}

func (h *Handler) sendError(ctx context.Context, sink Sink, code, message string) {
	if err := sink.Send(Event{Type: "error", Content: code + ": " + message}); err != nil {
		slog.WarnContext(ctx, "failed to send error frame", "error", err)
	}
}

func askErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "chat not found"
	case errors.Is(err, retrieval.ErrUnavailable):
		return "search backends unavailable, try again later"
	default:
		return "could not answer, try again"
	}
}
