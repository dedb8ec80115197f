package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ent0n29/voxchat/internal/conversation"
	"github.com/stretchr/testify/require"
)

type recordingCommitter struct {
	mu      sync.Mutex
	commits []string
}

func (r *recordingCommitter) Append(_ context.Context, role conversation.Role, content conversation.Content) (conversation.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role != conversation.RoleAssistant {
		return conversation.Message{}, errors.New("unexpected role " + string(role))
	}
	r.commits = append(r.commits, content.Text())
	return conversation.Message{Role: role, Content: content}, nil
}

func (r *recordingCommitter) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commits...)
}

func testConversation(prompt string) conversation.Conversation {
	return conversation.Conversation{
		Name: "assistant",
		Messages: []conversation.Message{
			{Role: conversation.RoleUser, Content: conversation.TextContent("You are helpful.")},
			{Role: conversation.RoleUser, Content: conversation.TextContent(prompt)},
		},
	}
}

func TestStreamCommitsOnExhaustion(t *testing.T) {
	committer := &recordingCommitter{}
	s := NewStreamer(NewMockBackend("Hello there friend."), committer, nil, nil)

	c, err := s.Stream(context.Background(), testConversation("hi"), Params{Model: "m"})
	require.NoError(t, err)

	var got []string
	for d := range c.Deltas() {
		got = append(got, d)
	}
	require.Equal(t, []string{"Hello", " there", " friend."}, got)
	require.NoError(t, c.Err())
	require.Equal(t, []string{"Hello there friend."}, committer.all())

	// Settled completions never commit again.
	require.NoError(t, c.Close())
	require.NoError(t, c.Wait())
	require.Len(t, committer.all(), 1)
}

func TestStreamCommitsPartialOnError(t *testing.T) {
	boom := errors.New("upstream reset")
	backend := NewMockBackend("one two three four")
	backend.FailAfter = 2
	backend.FailErr = boom
	committer := &recordingCommitter{}
	s := NewStreamer(backend, committer, nil, nil)

	c, err := s.Stream(context.Background(), testConversation("count"), Params{})
	require.NoError(t, err)

	err = c.Wait()
	require.ErrorIs(t, err, boom)
	require.Equal(t, "one two", c.Text())
	require.Equal(t, []string{"one two"}, committer.all())
}

func TestStreamCommitsPartialOnClose(t *testing.T) {
	committer := &recordingCommitter{}
	s := NewStreamer(NewMockBackend("alpha beta gamma"), committer, nil, nil)

	c, err := s.Stream(context.Background(), testConversation("go"), Params{})
	require.NoError(t, err)

	for d := range c.Deltas() {
		require.Equal(t, "alpha", d)
		break
	}
	require.Empty(t, committer.all(), "breaking out of Deltas must not commit")

	require.NoError(t, c.Close())
	require.Equal(t, []string{"alpha"}, committer.all())

	var rest []string
	for d := range c.Deltas() {
		rest = append(rest, d)
	}
	require.Empty(t, rest)
}

func TestStreamWaitResumesAfterBreak(t *testing.T) {
	committer := &recordingCommitter{}
	s := NewStreamer(NewMockBackend("alpha beta gamma"), committer, nil, nil)

	c, err := s.Stream(context.Background(), testConversation("go"), Params{})
	require.NoError(t, err)
	for range c.Deltas() {
		break
	}
	require.NoError(t, c.Wait())
	require.Equal(t, []string{"alpha beta gamma"}, committer.all())
}

func TestStreamEmptyReplyNotCommitted(t *testing.T) {
	committer := &recordingCommitter{}
	s := NewStreamer(NewMockBackend(""), committer, nil, nil)

	c, err := s.Stream(context.Background(), testConversation("quiet"), Params{})
	require.NoError(t, err)
	require.NoError(t, c.Wait())
	require.Empty(t, committer.all())
}

func TestStreamCancelledContextCommitsPartial(t *testing.T) {
	committer := &recordingCommitter{}
	s := NewStreamer(NewMockBackend("first second third"), committer, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, err := s.Stream(ctx, testConversation("go"), Params{})
	require.NoError(t, err)

	for range c.Deltas() {
		cancel()
	}
	require.ErrorIs(t, c.Err(), context.Canceled)
	require.Equal(t, []string{"first"}, committer.all())
}

func TestStreamOpenError(t *testing.T) {
	backend := NewMockBackend()
	backend.OpenErr = errors.New("no route")
	s := NewStreamer(backend, &recordingCommitter{}, nil, nil)

	_, err := s.Stream(context.Background(), testConversation("hi"), Params{})
	require.Error(t, err)
}

func TestStreamRequestCarriesParams(t *testing.T) {
	backend := NewMockBackend("ok")
	s := NewStreamer(backend, nil, nil, nil)

	c, err := s.Stream(context.Background(), testConversation("hi"), Params{
		Model:       "gpt-4o",
		Temperature: 0.3,
		MaxTokens:   64,
		LogitBias:   map[string]int{"123": -100},
		MaxWords:    40,
	})
	require.NoError(t, err)
	require.NoError(t, c.Wait())

	reqs := backend.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	require.Equal(t, "gpt-4o", req.Model)
	require.Equal(t, 0.3, req.Temperature)
	require.Equal(t, 64, req.MaxTokens)
	require.Equal(t, -100, req.LogitBias["123"])
	last := req.Messages[len(req.Messages)-1].Content.Text()
	require.True(t, strings.HasPrefix(last, "hi (Limit your output to 40 words"), last)
}

func TestWithWordLimitLeavesHistoryAlone(t *testing.T) {
	conv := testConversation("hello")
	out := withWordLimit(conv.Messages, 10)
	require.Equal(t, "hello", conv.Messages[1].Content.Text())
	require.Contains(t, out[1].Content.Text(), "10 words")

	same := withWordLimit(conv.Messages, 0)
	require.Equal(t, "hello", same[1].Content.Text())
}

func TestMockEchoesLastUserMessage(t *testing.T) {
	committer := &recordingCommitter{}
	s := NewStreamer(NewMockBackend(), committer, nil, nil)

	c, err := s.Stream(context.Background(), testConversation("what time is it"), Params{})
	require.NoError(t, err)
	require.NoError(t, c.Wait())
	require.Equal(t, []string{"You said: what time is it"}, committer.all())
}
