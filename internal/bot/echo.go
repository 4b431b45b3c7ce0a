// ABOUTME: Echo Responder for development and tests
// ABOUTME: Replies with the user's prompt, no external calls

package bot

import (
	"context"

	"github.com/2389/parley/internal/store"
)

// EchoResponder repeats the prompt back. Useful for local development and
// integration tests where no model credentials are available.
type EchoResponder struct{}

func NewEcho() *EchoResponder { return &EchoResponder{} }

func (r *EchoResponder) Name() string { return "echo" }

func (r *EchoResponder) Reply(_ context.Context, _ []*store.Message, prompt string) (string, error) {
	return "You said: " + prompt, nil
}
