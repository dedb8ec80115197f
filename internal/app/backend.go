package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/voxchat/internal/config"
	"github.com/ent0n29/voxchat/internal/llm"
)

func newChatBackend(name string, cfg config.Config) (llm.Backend, error) {
	var (
		backend llm.Backend
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		backend, err = nonNil(llm.NewOpenAIBackend(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey))
	case "anthropic":
		backend, err = nonNil(llm.NewAnthropicBackend(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey))
	case "ollama":
		backend, err = nonNil(llm.NewOllamaBackend(cfg.OllamaBaseURL))
	case "mock":
		backend = llm.NewMockBackend()
	default:
		err = fmt.Errorf("invalid chat backend: %q (expected openai|anthropic|ollama|mock)", name)
	}
	return backend, err
}

// nonNil keeps a failed constructor from yielding a non-nil interface
// holding a nil pointer.
func nonNil[B llm.Backend](b B, err error) (llm.Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}

// resolveChatBackend builds the configured backend, wrapped with the
// fallback backend when one is configured. A fallback with its own model
// gets requests rewritten to that model.
func resolveChatBackend(cfg config.Config) (llm.Backend, string, error) {
	primary, err := newChatBackend(cfg.ChatBackend, cfg)
	if err != nil {
		return nil, "", fmt.Errorf("chat backend init failed: %w", err)
	}
	if strings.TrimSpace(cfg.FallbackBackend) == "" {
		return primary, primary.Name(), nil
	}
	fallback, err := newChatBackend(cfg.FallbackBackend, cfg)
	if err != nil {
		return nil, "", fmt.Errorf("fallback chat backend init failed: %w", err)
	}
	if model := strings.TrimSpace(cfg.FallbackModel); model != "" {
		fallback = modelOverride{Backend: fallback, model: model}
	}
	detail := fmt.Sprintf("%s (fallback %s)", primary.Name(), fallback.Name())
	return llm.NewFallbackBackend(primary, fallback), detail, nil
}

type modelOverride struct {
	llm.Backend
	model string
}

func (m modelOverride) Open(ctx context.Context, req llm.Request) (llm.DeltaStream, error) {
	req.Model = m.model
	return m.Backend.Open(ctx, req)
}
