package voice

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/ent0n29/voxchat/internal/observability"
	"github.com/ent0n29/voxchat/internal/policy"
	"github.com/ent0n29/voxchat/internal/protocol"
	"golang.org/x/sync/errgroup"
)

// Listener feeds captured PCM frames to a speech-to-text session and turns
// its results into transcript events for the wake-word dispatcher.
type Listener struct {
	provider   STTProvider
	sampleRate int
	// drain bounds how long late results are awaited after capture ends.
	drain   time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewListener(provider STTProvider, sampleRate int, metrics *observability.Metrics, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		provider:   provider,
		sampleRate: sampleRate,
		drain:      2 * time.Second,
		metrics:    metrics,
		logger:     logger.With("component", "listener"),
	}
}

// Run blocks until frames is closed and pending results are drained, or ctx
// is done. out is closed on return.
func (l *Listener) Run(ctx context.Context, frames <-chan []byte, out chan<- protocol.TranscriptEvent) error {
	defer close(out)

	session, events, err := l.provider.StartSession(ctx)
	if err != nil {
		return fmt.Errorf("start transcription session: %w", err)
	}
	defer session.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case frame, ok := <-frames:
				if !ok {
					err := session.SendAudioChunk(gctx, "", l.sampleRate, true)
					time.AfterFunc(l.drain, func() { _ = session.Close() })
					return err
				}
				if err := session.SendAudioChunk(gctx, base64.StdEncoding.EncodeToString(frame), l.sampleRate, false); err != nil {
					return fmt.Errorf("send audio: %w", err)
				}
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				te, forward := l.translate(ev)
				if !forward {
					continue
				}
				select {
				case out <- te:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})
	return g.Wait()
}

func (l *Listener) translate(ev STTEvent) (protocol.TranscriptEvent, bool) {
	switch ev.Type {
	case STTEventPartial:
		return protocol.TranscriptEvent{
			Status:  protocol.TranscriptPartial,
			Payload: protocol.EncodeTranscript(protocol.TranscriptPartial, ev.Text),
		}, true
	case STTEventCommitted:
		l.logger.Debug("transcript committed", "text", policy.RedactPII(ev.Text))
		return protocol.TranscriptEvent{
			Status:  protocol.TranscriptFinal,
			Payload: protocol.EncodeTranscript(protocol.TranscriptFinal, ev.Text),
		}, true
	default:
		l.metrics.ProviderError("transcription", ev.Code)
		l.logger.Warn("transcription error", "code", ev.Code, "detail", ev.Detail, "retryable", ev.Retryable)
		return protocol.TranscriptEvent{}, false
	}
}
