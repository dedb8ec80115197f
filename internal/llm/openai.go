package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ent0n29/voxchat/internal/conversation"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIBackend streams chat completions from the OpenAI API or any
// compatible endpoint.
type OpenAIBackend struct {
	client openai.Client
}

func NewOpenAIBackend(baseURL, apiKey string) (*OpenAIBackend, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &OpenAIBackend{client: client}, nil
}

func (b *OpenAIBackend) Name() string { return "openai" }

func (b *OpenAIBackend) Open(ctx context.Context, req Request) (DeltaStream, error) {
	params := openai.ChatCompletionNewParams{
		Messages:    toOpenAIMessages(req.Messages),
		Model:       openai.ChatModel(req.Model),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.LogitBias) > 0 {
		params.LogitBias = make(map[string]int64, len(req.LogitBias))
		for token, bias := range req.LogitBias {
			params.LogitBias[token] = int64(bias)
		}
	}

	stream := b.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("openai stream: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream sdkStream[openai.ChatCompletionChunk]
	delta  string
}

func (s *openAIStream) Next() bool {
	if !s.stream.Next() {
		return false
	}
	s.delta = ""
	if chunk := s.stream.Current(); len(chunk.Choices) > 0 {
		s.delta = chunk.Choices[0].Delta.Content
	}
	return true
}

func (s *openAIStream) Delta() string { return s.delta }

func (s *openAIStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}
	return nil
}

func (s *openAIStream) Close() error { return s.stream.Close() }

func toOpenAIMessages(messages []conversation.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		text := msg.Content.Text()
		switch msg.Role {
		case conversation.RoleSystem:
			out = append(out, openai.SystemMessage(text))
		case conversation.RoleAssistant:
			out = append(out, openai.AssistantMessage(text))
		default:
			if msg.Content.IsText() {
				out = append(out, openai.UserMessage(text))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Content.Parts))
			for _, p := range msg.Content.Parts {
				switch {
				case p.Type == conversation.PartText:
					parts = append(parts, openai.TextContentPart(p.Text))
				case p.Type == conversation.PartImageURL && p.ImageURL != nil:
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: p.ImageURL.URL}))
				}
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}
