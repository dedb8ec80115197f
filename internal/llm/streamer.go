package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/voxchat/internal/conversation"
	"github.com/ent0n29/voxchat/internal/observability"
)

// Committer records the assistant reply once a completion settles.
type Committer interface {
	Append(ctx context.Context, role conversation.Role, content conversation.Content) (conversation.Message, error)
}

// Params are the per-request generation settings.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
	LogitBias   map[string]int
	// MaxWords, when positive, asks for a reply of at most that many words.
	MaxWords int
}

type Streamer struct {
	backend   Backend
	committer Committer
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func NewStreamer(backend Backend, committer Committer, metrics *observability.Metrics, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		backend:   backend,
		committer: committer,
		metrics:   metrics,
		logger:    logger.With("component", "llm"),
	}
}

// Stream snapshots conv and opens a streamed reply. The returned Completion
// commits the assistant text to the committer exactly once.
func (s *Streamer) Stream(ctx context.Context, conv conversation.Conversation, p Params) (*Completion, error) {
	req := Request{
		Messages:    withWordLimit(conv.Messages, p.MaxWords),
		Model:       p.Model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		LogitBias:   p.LogitBias,
	}
	stream, err := s.backend.Open(ctx, req)
	if err != nil {
		s.metrics.CompletionFinished(s.backend.Name(), 0, err)
		return nil, fmt.Errorf("open completion: %w", err)
	}
	return &Completion{
		stream:    stream,
		backend:   s.backend.Name(),
		commitCtx: context.WithoutCancel(ctx),
		committer: s.committer,
		metrics:   s.metrics,
		logger:    s.logger,
		started:   time.Now(),
	}, nil
}

// Completion is one streamed assistant reply.
type Completion struct {
	stream    DeltaStream
	backend   string
	commitCtx context.Context
	committer Committer
	metrics   *observability.Metrics
	logger    *slog.Logger
	started   time.Time

	once sync.Once
	mu   sync.Mutex
	text strings.Builder
	err  error
	done bool
}

// Deltas yields the non-empty text deltas in arrival order. Breaking out of
// the loop does not settle the completion; a later Deltas or Wait call picks
// up where the previous one stopped.
func (c *Completion) Deltas() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			if c.finished() {
				return
			}
			if !c.stream.Next() {
				c.finish(c.stream.Err())
				return
			}
			delta := c.stream.Delta()
			if delta == "" {
				continue
			}
			c.mu.Lock()
			c.text.WriteString(delta)
			c.mu.Unlock()
			c.metrics.CompletionDelta()
			if !yield(delta) {
				return
			}
		}
	}
}

// Wait drains the remaining deltas and returns the stream error, if any.
func (c *Completion) Wait() error {
	for range c.Deltas() {
	}
	return c.Err()
}

// Close stops the stream and commits whatever text arrived so far.
func (c *Completion) Close() error {
	c.finish(nil)
	return nil
}

// Text is the reply accumulated so far.
func (c *Completion) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text.String()
}

func (c *Completion) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Completion) finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Completion) finish(err error) {
	c.once.Do(func() {
		_ = c.stream.Close()

		c.mu.Lock()
		c.done = true
		c.err = err
		text := c.text.String()
		c.mu.Unlock()

		c.metrics.CompletionFinished(c.backend, time.Since(c.started), err)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("completion stream failed", "backend", c.backend, "partial_chars", len(text), "error", err)
		}
		if text == "" || c.committer == nil {
			return
		}
		if _, cerr := c.committer.Append(c.commitCtx, conversation.RoleAssistant, conversation.TextContent(text)); cerr != nil {
			c.logger.Error("commit assistant reply", "error", cerr)
		}
	})
}

// withWordLimit appends the word limit to the last user message of a copy
// of messages. The stored history is left untouched.
func withWordLimit(messages []conversation.Message, maxWords int) []conversation.Message {
	out := append([]conversation.Message(nil), messages...)
	if maxWords <= 0 {
		return out
	}
	suffix := fmt.Sprintf(" (Limit your output to %d words or less if I have not already prompted you otherwise)", maxWords)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role != conversation.RoleUser {
			continue
		}
		parts := append([]conversation.Part(nil), out[i].Content.Parts...)
		for j := range parts {
			if parts[j].Type == conversation.PartText {
				parts[j].Text += suffix
				out[i].Content = conversation.Content{Parts: parts}
				return out
			}
		}
		parts = append(parts, conversation.Part{Type: conversation.PartText, Text: strings.TrimSpace(suffix)})
		out[i].Content = conversation.Content{Parts: parts}
		return out
	}
	return out
}
