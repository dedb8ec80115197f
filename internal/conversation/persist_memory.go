package conversation

import (
	"context"
	"sync"
)

// MemoryPersister keeps snapshots for the life of the process.
type MemoryPersister struct {
	mu        sync.RWMutex
	snapshots map[string]Conversation
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{snapshots: make(map[string]Conversation)}
}

func (p *MemoryPersister) SaveSnapshot(_ context.Context, key string, conv Conversation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots[key] = conv.clone()
	return nil
}

func (p *MemoryPersister) LoadSnapshot(_ context.Context, key string) (Conversation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conv, ok := p.snapshots[key]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return conv.clone(), nil
}

func (p *MemoryPersister) Close() error { return nil }
