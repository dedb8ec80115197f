package llm

import (
	"context"
	"fmt"
	"sync/atomic"
)

// FallbackBackend prefers the primary backend and switches to the fallback
// when the primary fails to open a stream. Once the fallback succeeds it stays
// active until it fails; then the primary is retried.
type FallbackBackend struct {
	primary        Backend
	fallback       Backend
	fallbackActive atomic.Bool
}

func NewFallbackBackend(primary, fallback Backend) *FallbackBackend {
	return &FallbackBackend{primary: primary, fallback: fallback}
}

func (b *FallbackBackend) Name() string {
	if b.fallbackActive.Load() {
		return b.fallback.Name()
	}
	return b.primary.Name()
}

func (b *FallbackBackend) Open(ctx context.Context, req Request) (DeltaStream, error) {
	if b.fallbackActive.Load() {
		stream, fbErr := b.fallback.Open(ctx, req)
		if fbErr == nil {
			return stream, nil
		}
		// Fallback failed after being active; try primary again.
		stream, prErr := b.primary.Open(ctx, req)
		if prErr == nil {
			b.fallbackActive.Store(false)
			return stream, nil
		}
		return nil, fmt.Errorf("%s fallback failed: %v; %s primary failed: %w", b.fallback.Name(), fbErr, b.primary.Name(), prErr)
	}

	stream, prErr := b.primary.Open(ctx, req)
	if prErr == nil {
		return stream, nil
	}
	stream, fbErr := b.fallback.Open(ctx, req)
	if fbErr != nil {
		return nil, fmt.Errorf("%s primary failed: %v; %s fallback failed: %w", b.primary.Name(), prErr, b.fallback.Name(), fbErr)
	}
	b.fallbackActive.Store(true)
	return stream, nil
}
