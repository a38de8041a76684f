// Package llm abstracts the text-generation capability used for deck
// synthesis and repair.
package llm

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/deckforge/internal/config"
)

// Prompt is a single system/user message pair sent to the model.
type Prompt struct {
	System string
	User   string
}

// Client is the minimal completion interface the pipeline depends on.
// Implementations must honor context cancellation and deadlines.
type Client interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
	Model() string
}

// New builds a client from configuration. The API key and endpoint come from
// the injected config value; this package never reads the process environment.
func New(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		return newOpenAIClient(cfg)
	default:
		// Any OpenAI-compatible gateway works through the openai provider with
		// a base_url; other SDKs are not wired.
		return nil, fmt.Errorf("llm provider %q not supported (use provider: openai with base_url for compatible gateways)", cfg.Provider)
	}
}
