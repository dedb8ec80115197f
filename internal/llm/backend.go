package llm

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/ent0n29/voxchat/internal/conversation"
)

// Request is what a completion backend needs for one streamed reply.
type Request struct {
	Messages    []conversation.Message
	Model       string
	Temperature float64
	MaxTokens   int
	LogitBias   map[string]int
}

// DeltaStream is a pull-based stream of text deltas. Delta may be empty for
// chunks that carry no text.
type DeltaStream interface {
	Next() bool
	Delta() string
	Err() error
	Close() error
}

// Backend opens streaming completions against one provider.
type Backend interface {
	Name() string
	Open(ctx context.Context, req Request) (DeltaStream, error)
}

// sdkStream matches the SSE stream types of the provider SDKs.
type sdkStream[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// dataURL splits a base64 data URL into media type and payload.
func dataURL(url string) (mediaType, payload string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return "", "", false
	}
	return strings.TrimSuffix(meta, ";base64"), data, true
}

func decodeDataURL(url string) ([]byte, bool) {
	_, payload, ok := dataURL(url)
	if !ok {
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	return raw, true
}
