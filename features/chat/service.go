package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"weft/internal/retrieval"
)

// Event is one frame of the answer stream.
//
// Frame order for a single question: token* -> done/tokens -> citation* ->
// done/stream. The final done/stream only goes out after both messages are
// persisted, so a client that saw it can reload the chat and find everything.
type Event struct {
	Type     string            `json:"type"` // token | citation | done
	Content  string            `json:"content,omitempty"`
	Citation *retrieval.Source `json:"citation,omitempty"`
}

const (
	EventToken    = "token"
	EventCitation = "citation"
	EventDone     = "done"

	DoneTokens = "tokens"
	DoneStream = "stream"
)

// Sink receives stream events. A Send error means the client is gone and
// aborts the in-flight generation.
type Sink interface {
	Send(Event) error
}

type Retriever interface {
	Retrieve(ctx context.Context, history []retrieval.Turn, question string, integrationIDs []string) (*retrieval.Result, error)
}

type Answerer interface {
	StreamAnswer(ctx context.Context, contextBlock string, history []retrieval.Turn, question string, onToken func(token string) error) (string, error)
}

type HistoryCache interface {
	Append(ctx context.Context, m *Message) error
	Messages(ctx context.Context, chatID string) ([]Message, error)
	Prime(ctx context.Context, chatID string, messages []Message) error
	Drop(ctx context.Context, chatID string) error
}

type Service struct {
	repo       Repository
	cache      HistoryCache
	retriever  Retriever
	model      Answerer
	historyMax int
}

func NewService(repo Repository, cache HistoryCache, retriever Retriever, model Answerer, historyMax int) *Service {
	if historyMax <= 0 {
		historyMax = 20
	}
	return &Service{repo: repo, cache: cache, retriever: retriever, model: model, historyMax: historyMax}
}

// CreateChat opens a chat titled after its opening question.
func (s *Service) CreateChat(ctx context.Context, question string) (*Chat, error) {
	title := TitleFromQuestion(question)
	if title == "" {
		title = "New chat"
	}
	c := &Chat{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	c.UpdatedAt = c.CreatedAt
	if err := s.repo.CreateChat(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListChats returns chats ordered by recent activity. A positive days value
// restricts the list to chats touched within that window.
func (s *Service) ListChats(ctx context.Context, days int) ([]Chat, error) {
	var since *time.Time
	if days > 0 {
		t := time.Now().UTC().AddDate(0, 0, -days)
		since = &t
	}
	return s.repo.ListChats(ctx, since)
}

// Messages loads a chat's history cache-first, falling back to the database
// and re-priming the cache on a miss.
func (s *Service) Messages(ctx context.Context, chatID string) ([]Message, error) {
	if _, err := s.repo.GetChat(ctx, chatID); err != nil {
		return nil, err
	}

	cached, err := s.cache.Messages(ctx, chatID)
	if err != nil {
		slog.WarnContext(ctx, "chat cache read failed, falling back to database", "error", err, "chat_id", chatID)
	} else if len(cached) > 0 {
		return cached, nil
	}

	messages, err := s.repo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Prime(ctx, chatID, messages); err != nil {
		slog.WarnContext(ctx, "chat cache prime failed", "error", err, "chat_id", chatID)
	}
	return messages, nil
}

func (s *Service) DeleteChat(ctx context.Context, chatID string) error {
	if err := s.repo.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	if err := s.cache.Drop(ctx, chatID); err != nil {
		slog.WarnContext(ctx, "chat cache drop failed", "error", err, "chat_id", chatID)
	}
	return nil
}

// Ask answers one question over the chat's history, streaming frames into
// the sink. Retrieval failures surface as errors before any frame is sent;
// once tokens start flowing the only abort paths are context cancel and a
// dead sink.
func (s *Service) Ask(ctx context.Context, chatID, question string, integrationIDs []string, sink Sink) error {
	history, err := s.Messages(ctx, chatID)
	if err != nil {
		return err
	}
	if len(history) > s.historyMax {
		history = history[len(history)-s.historyMax:]
	}

	turns := make([]retrieval.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, retrieval.Turn{Role: m.Role, Content: m.Content})
	}

	res, err := s.retriever.Retrieve(ctx, turns, question, integrationIDs)
	if err != nil {
		return fmt.Errorf("retrieve context: %w", err)
	}

	asked := time.Now().UTC()
	answer, err := s.model.StreamAnswer(ctx, res.Prompt, turns, question, func(token string) error {
		return sink.Send(Event{Type: EventToken, Content: token})
	})
	if err != nil {
		return fmt.Errorf("stream answer: %w", err)
	}

	if err := sink.Send(Event{Type: EventDone, Content: DoneTokens}); err != nil {
		return err
	}

	citations := citedSources(answer, res.Sources)
	for i := range citations {
		if err := sink.Send(Event{Type: EventCitation, Citation: &citations[i]}); err != nil {
			return err
		}
	}

	userMsg := &Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      RoleUser,
		Content:   question,
		CreatedAt: asked,
	}
	assistantMsg := &Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      RoleAssistant,
		Content:   answer,
		Citations: citations,
		CreatedAt: time.Now().UTC(),
	}
	for _, m := range []*Message{userMsg, assistantMsg} {
		if err := s.repo.AppendMessage(ctx, m); err != nil {
			return fmt.Errorf("persist message: %w", err)
		}
		if err := s.cache.Append(ctx, m); err != nil {
			slog.WarnContext(ctx, "chat cache append failed", "error", err, "chat_id", chatID)
		}
	}

	return sink.Send(Event{Type: EventDone, Content: DoneStream})
}

// citedSources maps the answer's citation numbers back to retrieval sources,
// in first-use order. Numbers outside the source range are dropped.
func citedSources(answer string, sources []retrieval.Source) []retrieval.Source {
	var out []retrieval.Source
	for _, n := range ParseCitations(answer) {
		if n >= 1 && n <= len(sources) {
			out = append(out, sources[n-1])
		}
	}
	return out
}
