package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/ent0n29/voxchat/internal/conversation"
	"github.com/ollama/ollama/api"
)

// OllamaBackend streams replies from a local Ollama server.
type OllamaBackend struct {
	client *api.Client
}

func NewOllamaBackend(baseURL string) (*OllamaBackend, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	return &OllamaBackend{client: api.NewClient(parsedURL, http.DefaultClient)}, nil
}

func (b *OllamaBackend) Name() string { return "ollama" }

// Open starts the request in the background. The client's callback API is
// turned into a pull stream; the callback blocks until the consumer takes
// each delta so nothing is buffered beyond one chunk.
func (b *OllamaBackend) Open(ctx context.Context, req Request) (DeltaStream, error) {
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   func(b bool) *bool { return &b }(true),
		Options:  options,
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &ollamaStream{
		deltas: make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(s.done)
		s.err = b.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			select {
			case s.deltas <- resp.Message.Content:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return s, nil
}

type ollamaStream struct {
	deltas    chan string
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once

	delta  string
	err    error
	closed bool
}

func (s *ollamaStream) Next() bool {
	if s.closed {
		return false
	}
	select {
	case d := <-s.deltas:
		s.delta = d
		return true
	case <-s.done:
		s.delta = ""
		return false
	}
}

func (s *ollamaStream) Delta() string { return s.delta }

func (s *ollamaStream) Err() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	if s.err != nil && !s.closed {
		return fmt.Errorf("ollama chat: %w", s.err)
	}
	return nil
}

func (s *ollamaStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		s.cancel()
		<-s.done
	})
	return nil
}

func toOllamaMessages(messages []conversation.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		m := api.Message{Role: string(msg.Role), Content: msg.Content.Text()}
		for _, p := range msg.Content.Parts {
			if p.Type != conversation.PartImageURL || p.ImageURL == nil {
				continue
			}
			if raw, ok := decodeDataURL(p.ImageURL.URL); ok {
				m.Images = append(m.Images, api.ImageData(raw))
			}
		}
		out = append(out, m)
	}
	return out
}
