package wakeword

import (
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/voxchat/internal/observability"
)

// PromptItem is one prompt waiting for the session loop.
type PromptItem struct {
	Text       string
	Source     string
	EnqueuedAt time.Time
}

// PromptQueue is an unbounded FIFO safe for many producers and one consumer.
type PromptQueue struct {
	mu      sync.Mutex
	items   []PromptItem
	metrics *observability.Metrics
}

func NewPromptQueue(metrics *observability.Metrics) *PromptQueue {
	return &PromptQueue{metrics: metrics}
}

// Push enqueues text tagged with its source. Blank text is dropped.
func (q *PromptQueue) Push(text, source string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	q.mu.Lock()
	q.items = append(q.items, PromptItem{Text: text, Source: source, EnqueuedAt: time.Now()})
	depth := len(q.items)
	q.mu.Unlock()

	q.metrics.PromptQueued(source, depth)
	return true
}

// TryPop returns the oldest prompt without blocking.
func (q *PromptQueue) TryPop() (PromptItem, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return PromptItem{}, false
	}
	item := q.items[0]
	q.items[0] = PromptItem{}
	q.items = q.items[1:]
	depth := len(q.items)
	q.mu.Unlock()

	q.metrics.QueueDepth(depth)
	return item, true
}

func (q *PromptQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
