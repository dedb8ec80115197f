package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ent0n29/voxchat/internal/conversation"
)

const anthropicDefaultMaxTokens = 1024

// AnthropicBackend streams replies from the Anthropic Messages API.
// Logit bias has no equivalent there and is ignored.
type AnthropicBackend struct {
	client *anthropic.Client
}

func NewAnthropicBackend(baseURL, apiKey string) (*AnthropicBackend, error) {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &AnthropicBackend{client: &client}, nil
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

func (b *AnthropicBackend) Open(ctx context.Context, req Request) (DeltaStream, error) {
	messages, system := toAnthropicMessages(req.Messages)
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if len(system) > 0 {
		params.System = system
	}

	stream := b.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}
	return &anthropicStream{stream: stream}, nil
}

type anthropicStream struct {
	stream sdkStream[anthropic.MessageStreamEventUnion]
	delta  string
}

func (s *anthropicStream) Next() bool {
	if !s.stream.Next() {
		return false
	}
	s.delta = ""
	if event, ok := s.stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent); ok {
		if text, ok := event.Delta.AsAny().(anthropic.TextDelta); ok {
			s.delta = text.Text
		}
	}
	return true
}

func (s *anthropicStream) Delta() string { return s.delta }

func (s *anthropicStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return fmt.Errorf("anthropic stream: %w", err)
	}
	return nil
}

func (s *anthropicStream) Close() error { return s.stream.Close() }

// toAnthropicMessages lifts system messages out of the history and merges
// consecutive turns of the same role, which the Messages API rejects.
func toAnthropicMessages(messages []conversation.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))
	var lastRole conversation.Role
	for _, msg := range messages {
		if msg.Role == conversation.RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: msg.Content.Text()})
			continue
		}
		blocks := anthropicBlocks(msg.Content)
		if len(blocks) == 0 {
			continue
		}
		if len(out) > 0 && msg.Role == lastRole {
			out[len(out)-1].Content = append(out[len(out)-1].Content, blocks...)
			continue
		}
		if msg.Role == conversation.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
		lastRole = msg.Role
	}
	return out, system
}

func anthropicBlocks(content conversation.Content) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(content.Parts))
	for _, p := range content.Parts {
		switch {
		case p.Type == conversation.PartText && p.Text != "":
			blocks = append(blocks, anthropic.NewTextBlock(p.Text))
		case p.Type == conversation.PartImageURL && p.ImageURL != nil:
			if mediaType, data, ok := dataURL(p.ImageURL.URL); ok {
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
			} else {
				blocks = append(blocks, anthropic.NewTextBlock(p.ImageURL.URL))
			}
		}
	}
	return blocks
}
