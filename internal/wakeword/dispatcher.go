package wakeword

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/voxchat/internal/observability"
	"github.com/ent0n29/voxchat/internal/policy"
	"github.com/ent0n29/voxchat/internal/protocol"
)

const (
	defaultSilenceTimeout = 2 * time.Second
	defaultPollInterval   = 100 * time.Millisecond

	// SourceVoice tags prompts that came from the transcript stream.
	SourceVoice = "voice"
)

type Config struct {
	// Enabled turns on wake-word mode. When off, final transcripts collect in
	// a holding buffer that is flushed after SilenceTimeout without speech.
	Enabled bool
	// WakeWord is the initial active wake word.
	WakeWord string
	// OverrideWakeWord is always honored, whatever the active wake word is.
	OverrideWakeWord string
	SilenceTimeout   time.Duration
	PollInterval     time.Duration
}

// Dispatcher turns transcript events into prompts. All of its state lives on
// the Run goroutine; other goroutines talk to it only through channels.
type Dispatcher struct {
	cfg     Config
	events  <-chan protocol.TranscriptEvent
	wake    chan string
	queue   *PromptQueue
	metrics *observability.Metrics
	logger  *slog.Logger
	done    chan struct{}
}

func NewDispatcher(
	cfg Config,
	events <-chan protocol.TranscriptEvent,
	queue *PromptQueue,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Dispatcher {
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = defaultSilenceTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:     cfg,
		events:  events,
		wake:    make(chan string, 1),
		queue:   queue,
		metrics: metrics,
		logger:  logger.With("component", "wakeword"),
		done:    make(chan struct{}),
	}
}

// SetWakeWord replaces the active wake word. A value not yet picked up by
// the dispatcher is overwritten.
func (d *Dispatcher) SetWakeWord(word string) {
	for {
		select {
		case d.wake <- word:
			return
		default:
		}
		select {
		case <-d.wake:
		default:
		}
	}
}

// Run consumes events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.done)

	st := dispatchState{
		wakeWord:     normalizeWakeWord(d.cfg.WakeWord),
		override:     normalizeWakeWord(d.cfg.OverrideWakeWord),
		lastActivity: time.Now(),
	}
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	events := d.events
	for {
		select {
		case <-ctx.Done():
			return nil
		case word := <-d.wake:
			st.wakeWord = normalizeWakeWord(word)
			d.logger.Debug("wake word changed", "wake_word", st.wakeWord)
		case ev, ok := <-events:
			if !ok {
				events = nil
				break
			}
			// A wake word set before this event was sent applies to it.
			select {
			case word := <-d.wake:
				st.wakeWord = normalizeWakeWord(word)
			default:
			}
			d.handle(&st, ev)
		case <-ticker.C:
		}

		if st.holding != "" && time.Since(st.lastActivity) > d.cfg.SilenceTimeout {
			d.logger.Info("silence detected, dispatching held prompt", "chars", len(st.holding))
			d.queue.Push(st.holding, SourceVoice)
			st.holding = ""
		}
	}
}

// Wait blocks until Run has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

type dispatchState struct {
	wakeWord     string
	override     string
	holding      string
	lastActivity time.Time
}

func (d *Dispatcher) handle(st *dispatchState, ev protocol.TranscriptEvent) {
	text, err := protocol.ParseTranscript(ev.Status, ev.Payload)
	if err != nil {
		d.metrics.TranscriptDecodeError()
		d.logger.Warn("dropping transcript event", "status", ev.Status, "error", err)
		return
	}
	d.metrics.TranscriptEvent(string(ev.Status))

	switch ev.Status {
	case protocol.TranscriptPartial:
		if strings.TrimSpace(text) != "" {
			st.lastActivity = time.Now()
		}
	case protocol.TranscriptFinal:
		st.lastActivity = time.Now()
		d.logger.Debug("final transcript", "text", policy.RedactPII(text))
		if d.cfg.Enabled {
			prompt, ok := afterWakeWord(text, st.wakeWord)
			if !ok {
				prompt, ok = afterWakeWord(text, st.override)
			}
			if ok && prompt != "" {
				d.queue.Push(prompt, SourceVoice)
			}
			return
		}
		if text = strings.TrimSpace(text); text != "" {
			if st.holding != "" {
				st.holding += " "
			}
			st.holding += text
		}
	}
}

// afterWakeWord finds the first case-insensitive occurrence of word in text
// and returns the trimmed text following it. Matching walks runes of text
// itself, so the returned remainder keeps its original casing even when
// folding changes a rune's byte width.
func afterWakeWord(text, word string) (string, bool) {
	if word == "" {
		return "", false
	}
	for start := range text {
		if end, ok := foldPrefix(text[start:], word); ok {
			return strings.TrimSpace(text[start+end:]), true
		}
	}
	return "", false
}

// foldPrefix reports whether s starts with word under simple case folding,
// and the byte length of the matching prefix of s.
func foldPrefix(s, word string) (int, bool) {
	i := 0
	for _, wr := range word {
		if i >= len(s) {
			return 0, false
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != wr && !strings.EqualFold(string(r), string(wr)) {
			return 0, false
		}
		i += size
	}
	return i, true
}

func normalizeWakeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}
