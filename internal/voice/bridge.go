package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/voxchat/internal/observability"
	"github.com/ent0n29/voxchat/internal/reliability"
	"golang.org/x/sync/errgroup"
)

// ErrSynthesisUnavailable means no synthesis stream could be opened.
var ErrSynthesisUnavailable = errors.New("synthesis unavailable")

// Player consumes decoded audio frames, typically audio.Relay.
type Player interface {
	Play(ctx context.Context, frames iter.Seq[[]byte]) error
}

type BridgeConfig struct {
	BreakPhrases    []string
	ConnectTimeout  time.Duration
	ConnectAttempts int
	RetryBase       time.Duration
	// SanitizeMarkup strips markdown and emoji from chunks before synthesis.
	SanitizeMarkup bool
}

// BridgeResult describes one spoken utterance.
type BridgeResult struct {
	ChunksSent     int
	FramesReceived int
	BytesReceived  int
	Truncated      bool
	FirstAudio     time.Duration
}

// Bridge streams chunked model output through a synthesis socket into a
// Player. Outbound text and inbound audio progress on separate goroutines.
type Bridge struct {
	provider TTSProvider
	player   Player
	cfg      BridgeConfig
	metrics  *observability.Metrics
	logger   *slog.Logger
}

func NewBridge(provider TTSProvider, player Player, cfg BridgeConfig, metrics *observability.Metrics, logger *slog.Logger) *Bridge {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 1
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		provider: provider,
		player:   player,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.With("component", "bridge"),
	}
}

// Speak chunks fragments, sends each chunk for synthesis and plays the audio
// as it comes back. It stops consuming fragments once a break phrase is seen;
// the caller is expected to drain whatever remains.
func (b *Bridge) Speak(ctx context.Context, fragments iter.Seq[string], chunk ChunkFunc, voiceID string) (BridgeResult, error) {
	var res BridgeResult
	start := time.Now()

	stream, err := b.connect(ctx, voiceID)
	if err != nil {
		return res, err
	}
	defer stream.Close()

	g, gctx := errgroup.WithContext(ctx)
	// Cancellation closes the socket so a quiet server cannot hold the
	// reader or a blocked send.
	stop := context.AfterFunc(gctx, func() { _ = stream.Close() })
	defer stop()
	g.Go(func() error {
		return b.forward(gctx, stream, chunk(fragments), &res)
	})
	g.Go(func() error {
		err := b.player.Play(gctx, b.frames(gctx, stream, start, &res))
		// Unblock the socket reader if playback stopped early.
		_ = stream.Close()
		return err
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		err = nil
	}
	return res, err
}

func (b *Bridge) connect(ctx context.Context, voiceID string) (TTSStream, error) {
	var lastErr error
	for attempt := 0; attempt < b.cfg.ConnectAttempts; attempt++ {
		if attempt > 0 {
			wait := reliability.Backoff(attempt-1, b.cfg.RetryBase, 4*time.Second)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		cctx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
		stream, err := b.provider.StartStream(cctx, voiceID)
		cancel()
		if err == nil {
			return stream, nil
		}
		lastErr = err
		b.metrics.ProviderError("synthesis", "connect_"+reliability.Code(err))
		b.logger.Warn("synthesis connect failed", "attempt", attempt+1, "voice_id", voiceID, "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !reliability.Retryable(err) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrSynthesisUnavailable, lastErr)
}

// forward sends chunks until the sequence ends or a break phrase is found,
// then ends the utterance.
func (b *Bridge) forward(ctx context.Context, stream TTSStream, chunks iter.Seq[string], res *BridgeResult) error {
	cut := newPhraseCutter(b.cfg.BreakPhrases)
	for c := range chunks {
		if ctx.Err() != nil {
			return nil
		}
		text, stop := cut.Cut(c)
		if b.cfg.SanitizeMarkup {
			text = speakableChunk(text)
		}
		if text != "" {
			if err := stream.SendText(ctx, text); err != nil {
				b.logger.Warn("synthesis send failed", "error", err)
				return nil
			}
			res.ChunksSent++
			b.metrics.SynthesisChunk()
		}
		if stop {
			res.Truncated = true
			b.metrics.SynthesisTruncated()
			break
		}
	}
	if err := stream.CloseInput(ctx); err != nil {
		b.logger.Warn("synthesis end-of-utterance failed", "error", err)
	}
	return nil
}

// frames decodes inbound audio until the final marker, the connection
// closes or ctx is done. A closed connection ends the sequence without error.
func (b *Bridge) frames(ctx context.Context, stream TTSStream, start time.Time, res *BridgeResult) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		events := stream.Events()
		for {
			var ev TTSEvent
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				ev = e
			}
			switch ev.Type {
			case TTSEventAudio:
				audio, err := base64.StdEncoding.DecodeString(ev.AudioBase64)
				if err != nil {
					b.logger.Warn("dropping undecodable audio frame", "error", err)
					continue
				}
				if len(audio) == 0 {
					continue
				}
				if res.FramesReceived == 0 {
					res.FirstAudio = time.Since(start)
					b.metrics.ObserveFirstAudioLatency(res.FirstAudio)
				}
				res.FramesReceived++
				res.BytesReceived += len(audio)
				b.metrics.SynthesisFrame()
				if !yield(audio) {
					return
				}
			case TTSEventFinal:
				return
			case TTSEventError:
				b.metrics.ProviderError("synthesis", ev.Code)
				b.logger.Warn("synthesis error frame", "code", ev.Code, "detail", ev.Detail, "retryable", ev.Retryable)
			}
		}
	}
}

// phraseCutter finds break phrases in a stream of chunks, including phrases
// split across chunk boundaries.
type phraseCutter struct {
	phrases []string
	keep    int
	tail    string
}

func newPhraseCutter(phrases []string) *phraseCutter {
	c := &phraseCutter{}
	for _, p := range phrases {
		if p == "" {
			continue
		}
		c.phrases = append(c.phrases, p)
		if len(p)-1 > c.keep {
			c.keep = len(p) - 1
		}
	}
	return c
}

// Cut returns the part of chunk to forward and whether forwarding must stop.
// A phrase that started in an earlier chunk forwards nothing.
func (c *phraseCutter) Cut(chunk string) (string, bool) {
	if len(c.phrases) == 0 {
		return chunk, false
	}
	combined := c.tail + chunk
	at := -1
	for _, p := range c.phrases {
		if i := strings.Index(combined, p); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	if at >= 0 {
		if at < len(c.tail) {
			return "", true
		}
		return chunk[:at-len(c.tail)], true
	}
	if len(combined) > c.keep {
		combined = combined[len(combined)-c.keep:]
	}
	c.tail = combined
	return chunk, false
}
