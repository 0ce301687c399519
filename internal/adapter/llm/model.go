package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"weft/internal/config"
	"weft/internal/retrieval"
)

const (
	ProviderGoogleAI  = "googleai"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Model wraps a langchaingo chat model behind the two calls the chat
// pipeline needs: query rewriting and streamed answer generation.
type Model struct {
	llm       llms.Model
	modelName string
}

func NewModel(ctx context.Context, cfg *config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case ProviderGoogleAI:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY required for provider %s", cfg.LLMProvider)
		}
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.GeminiAPIKey),
			googleai.WithDefaultModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create googleai model: %w", err)
		}

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY required for provider %s", cfg.LLMProvider)
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY required for provider %s", cfg.LLMProvider)
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return &Model{llm: model, modelName: cfg.LLMModel}, nil
}

func (m *Model) ModelName() string {
	return m.modelName
}

// Rewrite condenses the conversation so far plus the new question into one
// standalone search query.
func (m *Model) Rewrite(ctx context.Context, history []retrieval.Turn, question string) (string, error) {
	var b strings.Builder
	for _, t := range history {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}

	systemPrompt := `Rewrite the user's latest question as a single standalone search query.
Resolve pronouns and references using the conversation. Output only the query, nothing else.`

	userPrompt := fmt.Sprintf("Conversation:\n%s\nLatest question: %s\n\nStandalone query:", b.String(), question)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	resp, err := m.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("rewrite query: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("rewrite query: no response choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

const answerSystemPrompt = `You are an assistant answering questions about the user's workspace content.
Answer ONLY from the numbered context entries. Cite every claim with the entry
number in the form ^n^ (for several entries: ^1,3^). If the context does not
contain the answer, say so plainly instead of guessing.`

// StreamAnswer generates the answer token by token, invoking onToken for each
// chunk as it arrives, and returns the full answer text. A context cancel
// aborts the generation mid-stream.
func (m *Model) StreamAnswer(ctx context.Context, contextBlock string, history []retrieval.Turn, question string, onToken func(token string) error) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, answerSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, contextBlock),
	}
	for _, t := range history {
		role := llms.ChatMessageTypeHuman
		if t.Role == "assistant" {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, t.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, question))

	var full strings.Builder
	resp, err := m.llm.GenerateContent(ctx, messages,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			full.Write(chunk)
			return onToken(string(chunk))
		}),
	)
	if err != nil {
		return full.String(), fmt.Errorf("generate answer: %w", err)
	}

	// Providers that ignore the streaming func still return the full text.
	if full.Len() == 0 && len(resp.Choices) > 0 {
		text := resp.Choices[0].Content
		if err := onToken(text); err != nil {
			return text, err
		}
		return text, nil
	}
	return full.String(), nil
}
