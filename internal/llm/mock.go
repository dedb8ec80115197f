package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/ent0n29/voxchat/internal/conversation"
)

// MockBackend replays scripted replies word by word. With no script left it
// echoes the last user message.
type MockBackend struct {
	Replies []string
	// FailAfter, when positive, makes the stream fail after that many deltas.
	FailAfter int
	FailErr   error
	OpenErr   error

	mu       sync.Mutex
	requests []Request
}

func NewMockBackend(replies ...string) *MockBackend {
	return &MockBackend{Replies: replies}
}

func (b *MockBackend) Name() string { return "mock" }

// Requests returns the requests seen so far.
func (b *MockBackend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

func (b *MockBackend) Open(ctx context.Context, req Request) (DeltaStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	b.requests = append(b.requests, req)

	var reply string
	if len(b.Replies) > 0 {
		reply = b.Replies[0]
		b.Replies = b.Replies[1:]
	} else {
		reply = "You said: " + lastUserText(req.Messages)
	}
	return &mockStream{
		ctx:       ctx,
		deltas:    splitFragments(reply),
		failAfter: b.FailAfter,
		failErr:   b.FailErr,
	}, nil
}

type mockStream struct {
	ctx       context.Context
	deltas    []string
	pos       int
	failAfter int
	failErr   error
	err       error
	closed    bool
}

func (s *mockStream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	if s.failAfter > 0 && s.pos >= s.failAfter && s.failErr != nil {
		s.err = s.failErr
		return false
	}
	if s.pos >= len(s.deltas) {
		return false
	}
	s.pos++
	return true
}

func (s *mockStream) Delta() string {
	if s.pos == 0 {
		return ""
	}
	return s.deltas[s.pos-1]
}

func (s *mockStream) Err() error { return s.err }

func (s *mockStream) Close() error {
	s.closed = true
	return nil
}

// splitFragments cuts text the way token streams usually arrive: the first
// word bare, later words with their leading space.
func splitFragments(text string) []string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		out = append(out, w)
	}
	return out
}

func lastUserText(messages []conversation.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == conversation.RoleUser {
			return messages[i].Content.Text()
		}
	}
	return ""
}
