// ABOUTME: OpenAI-backed Responder using chat completions
// ABOUTME: Maps stored conversation history onto the chat completion message list

package bot

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/2389/parley/internal/store"
)

const defaultModel = openai.GPT4oMini

// historyWindow caps how many stored messages are replayed to the model
const historyWindow = 50

// OpenAIResponder generates replies with the OpenAI chat completions API
type OpenAIResponder struct {
	client       *openai.Client
	model        string
	systemPrompt string
	logger       *slog.Logger
}

// NewOpenAI creates an OpenAI responder. An empty model selects a default.
func NewOpenAI(apiKey, model, systemPrompt string) *OpenAIResponder {
	if model == "" {
		model = defaultModel
	}
	return &OpenAIResponder{
		client:       openai.NewClient(apiKey),
		model:        model,
		systemPrompt: systemPrompt,
		logger:       slog.Default().With("component", "bot", "provider", "openai"),
	}
}

func (r *OpenAIResponder) Name() string { return "openai" }

// Reply sends the conversation history plus the new prompt to the model and
// returns the completion text.
func (r *OpenAIResponder) Reply(ctx context.Context, history []*store.Message, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: buildMessages(r.systemPrompt, history, prompt),
	}

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	r.logger.Debug("generated reply",
		"model", r.model,
		"history_len", len(history),
		"completion_tokens", resp.Usage.CompletionTokens)

	return resp.Choices[0].Message.Content, nil
}

// buildMessages maps stored messages onto chat completion roles. Bot messages
// replay as assistant turns, user messages as user turns. Only the most
// recent historyWindow messages are included.
func buildMessages(systemPrompt string, history []*store.Message, prompt string) []openai.ChatCompletionMessage {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range history {
		role := openai.ChatMessageRoleUser
		if m.IsBot {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	return append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
}
