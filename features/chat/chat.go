package chat

import (
	"errors"
	"strings"
	"time"

	"weft/internal/retrieval"
)

var ErrNotFound = errors.New("chat not found")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID        string             `json:"id"`
	ChatID    string             `json:"chat_id"`
	Role      string             `json:"role"`
	Content   string             `json:"content"`
	Citations []retrieval.Source `json:"citations,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

const titleMax = 40

// TitleFromQuestion derives the chat title from its opening question,
// truncated with an ellipsis when it runs long. Truncation counts runes,
// never splitting a multibyte character.
func TitleFromQuestion(question string) string {
	title := strings.TrimSpace(strings.Join(strings.Fields(question), " "))
	if runes := []rune(title); len(runes) > titleMax {
		title = string(runes[:titleMax]) + "..."
	}
	return title
}
