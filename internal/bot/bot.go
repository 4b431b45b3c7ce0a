// ABOUTME: Responder interface and factory for bot reply generation
// ABOUTME: Selects between the OpenAI-backed responder and the echo responder

package bot

import (
	"context"
	"fmt"

	"github.com/2389/parley/internal/store"
)

// Responder generates the bot's reply to a user message.
// history holds the conversation's prior messages in chronological order;
// prompt is the new user message being answered.
type Responder interface {
	Reply(ctx context.Context, history []*store.Message, prompt string) (string, error)
	// Name identifies the responder for logging
	Name() string
}

// Config selects and configures a responder
type Config struct {
	Provider     string // "openai" or "echo"
	APIKey       string
	Model        string
	SystemPrompt string
}

// New builds a Responder from config.
// An empty provider defaults to echo so the gateway works without credentials.
func New(cfg Config) (Responder, error) {
	switch cfg.Provider {
	case "", "echo":
		return NewEcho(), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai responder requires an API key")
		}
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.SystemPrompt), nil
	default:
		return nil, fmt.Errorf("unknown bot provider %q", cfg.Provider)
	}
}
