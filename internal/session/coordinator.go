package session

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ent0n29/voxchat/internal/conversation"
	"github.com/ent0n29/voxchat/internal/llm"
	"github.com/ent0n29/voxchat/internal/observability"
	"github.com/ent0n29/voxchat/internal/policy"
	"github.com/ent0n29/voxchat/internal/voice"
	"github.com/ent0n29/voxchat/internal/wakeword"
	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	ModeText  Mode = "text"
	ModeVoice Mode = "voice"

	// SourceText tags prompts typed on the console.
	SourceText = "text"

	defaultPollInterval = 100 * time.Millisecond
)

// Speaker speaks a fragment stream. *voice.Bridge implements it.
type Speaker interface {
	Speak(ctx context.Context, fragments iter.Seq[string], chunk voice.ChunkFunc, voiceID string) (voice.BridgeResult, error)
}

// WakeWordSetter receives the persona name on every conversation switch.
type WakeWordSetter interface {
	SetWakeWord(word string)
}

// Task is a background producer run for the life of the loop.
type Task func(ctx context.Context) error

type Config struct {
	OutputMode          Mode
	PollInterval        time.Duration
	DefaultConversation string
	ImagesDir           string
	Completion          llm.Params
}

type Dependencies struct {
	Store    *conversation.Store
	Streamer *llm.Streamer
	Queue    *wakeword.PromptQueue
	// Speaker is required when OutputMode is voice.
	Speaker  Speaker
	WakeWord WakeWordSetter
	// Input, when set, is scanned line by line into the queue.
	Input   io.Reader
	Output  io.Writer
	Tasks   []Task
	Tracker *Tracker
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Coordinator runs the session loop: it pulls prompts off the queue and
// dispatches them one at a time. Only the loop goroutine mutates the
// conversation store.
type Coordinator struct {
	cfg     Config
	deps    Dependencies
	tracker *Tracker
	logger  *slog.Logger
}

func NewCoordinator(cfg Config, deps Dependencies) (*Coordinator, error) {
	if deps.Store == nil || deps.Streamer == nil || deps.Queue == nil {
		return nil, errors.New("session coordinator needs a store, a streamer and a queue")
	}
	if cfg.OutputMode == "" {
		cfg.OutputMode = ModeText
	}
	if cfg.OutputMode != ModeText && cfg.OutputMode != ModeVoice {
		return nil, fmt.Errorf("unsupported output mode %q", cfg.OutputMode)
	}
	if cfg.OutputMode == ModeVoice && deps.Speaker == nil {
		return nil, errors.New("voice output needs a speaker")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if strings.TrimSpace(cfg.DefaultConversation) == "" {
		cfg.DefaultConversation = "assistant"
	}
	if deps.Output == nil {
		deps.Output = io.Discard
	}
	if deps.Tracker == nil {
		deps.Tracker = NewTracker()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:     cfg,
		deps:    deps,
		tracker: deps.Tracker,
		logger:  logger.With("component", "session"),
	}, nil
}

// Run starts the background tasks, activates the default conversation and
// serves prompts until an exit command, ctx cancellation or a background
// failure. All background tasks are joined before it returns.
func (c *Coordinator) Run(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(bgCtx)
	for _, task := range c.deps.Tasks {
		g.Go(func() error { return task(gctx) })
	}
	if c.deps.Input != nil {
		lines := scanLines(gctx, c.deps.Input)
		g.Go(func() error { return c.pumpLines(gctx, lines) })
	}

	err := c.switchTo(ctx, c.cfg.DefaultConversation)
	if err == nil {
		c.loop(ctx, gctx)
	}

	cancel()
	c.tracker.Stop()
	if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) && err == nil {
		err = fmt.Errorf("background task: %w", werr)
	}
	return err
}

func (c *Coordinator) loop(ctx, background context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if item, ok := c.deps.Queue.TryPop(); ok {
			if exit := c.Handle(ctx, item.Text); exit {
				return
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-background.Done():
			return
		case <-ticker.C:
		}
	}
}

// Handle parses and dispatches one prompt. It reports whether the loop
// should stop.
func (c *Coordinator) Handle(ctx context.Context, line string) bool {
	cmd := ParseCommand(line)
	c.deps.Metrics.Command(cmd.Kind())

	switch cmd := cmd.(type) {
	case Exit:
		c.printf("Exiting...\n")
		return true
	case Empty:
	case Invalid:
		c.printf("%s\n", cmd.Reason)
	case Clear:
		c.printf("Resetting conversation with %s...\n", c.deps.Store.Current().Name)
		if err := c.deps.Store.Clear(ctx); err != nil {
			c.logger.Warn("clear conversation", "error", err)
		}
	case Undo:
		n, err := c.deps.Store.Undo(ctx)
		if err != nil {
			c.logger.Warn("undo", "error", err)
		}
		if n == 0 {
			c.printf("Nothing to undo.\n")
		} else {
			c.printf("Undid %d message(s).\n", n)
		}
	case Save:
		key, err := c.deps.Store.Save(ctx, cmd.Name)
		if err != nil {
			c.printf("Could not save conversation: %v\n", err)
			return false
		}
		c.printf("Saved conversation as %s.\n", key)
	case Load:
		key, err := c.deps.Store.Load(ctx, cmd.Name)
		if err != nil {
			c.printf("Could not load conversation: %v\n", err)
			return false
		}
		c.printf("Loaded conversation %s.\n", key)
	case SwitchConversation:
		if err := c.switchTo(ctx, cmd.Name); err != nil {
			c.printf("Could not switch conversation: %v\n", err)
		}
	case Chat:
		c.chat(ctx, cmd)
	default:
		c.logger.Error("unhandled command", "command", cmd.Kind())
	}
	return false
}

func (c *Coordinator) switchTo(ctx context.Context, name string) error {
	conv, resumed, err := c.deps.Store.Switch(ctx, name)
	if conv.Name == "" {
		return err
	}
	if err != nil {
		c.logger.Warn("autosave after switch", "conversation", conv.Name, "error", err)
	}
	if resumed {
		c.printf("Resuming conversation with %s...\n", conv.Name)
	} else {
		c.printf("Starting conversation with %s...\n", conv.Name)
	}
	c.tracker.SetConversation(conv.Name)
	if c.deps.WakeWord != nil {
		c.deps.WakeWord.SetWakeWord(conv.Name)
	}
	return nil
}

func (c *Coordinator) chat(ctx context.Context, cmd Chat) {
	content := conversation.TextContent(cmd.Text)
	if cmd.Image != nil {
		url := cmd.Image.URL
		if cmd.Image.File != "" {
			var err error
			if url, err = imageDataURL(filepath.Join(c.cfg.ImagesDir, cmd.Image.File)); err != nil {
				c.printf("Could not attach image: %v\n", err)
				return
			}
		}
		content = conversation.ImageContent(cmd.Text, url)
	}

	msg, err := c.deps.Store.Append(ctx, conversation.RoleUser, content)
	if msg.ID == "" {
		c.printf("Could not record prompt: %v\n", err)
		return
	}
	if err != nil {
		c.logger.Warn("autosave after prompt", "error", err)
	}
	c.logger.Info("prompt", "text", policy.RedactPII(cmd.Text))

	params := c.cfg.Completion
	if cmd.Temperature != nil {
		params.Temperature = *cmd.Temperature
	}

	turnID := c.tracker.StartTurn()
	started := time.Now()
	conv := c.deps.Store.Current()
	completion, err := c.deps.Streamer.Stream(ctx, conv, params)
	if err != nil {
		c.printf("Completion failed: %v\n", err)
		c.tracker.FinishTurn(turnID, false, err)
		return
	}
	defer completion.Close()

	var truncated bool
	switch c.cfg.OutputMode {
	case ModeVoice:
		res, err := c.deps.Speaker.Speak(ctx, completion.Deltas(), voice.ChunkText, conv.VoiceID)
		if err != nil {
			c.logger.Warn("speech synthesis failed", "turn_id", turnID, "error", err)
		}
		truncated = res.Truncated
		err = completion.Wait()
		c.printf("%s: %s\n", conv.Name, completion.Text())
		c.finishTurn(turnID, started, truncated, err)
	default:
		for chunk := range voice.ChunkText(completion.Deltas()) {
			c.printf("%s", chunk)
		}
		c.printf("\n")
		c.finishTurn(turnID, started, false, completion.Wait())
	}
}

func (c *Coordinator) finishTurn(turnID string, started time.Time, truncated bool, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		c.printf("Completion failed: %v\n", err)
	}
	c.deps.Metrics.ObserveStage("turn", time.Since(started))
	c.tracker.FinishTurn(turnID, truncated, err)
}

func (c *Coordinator) printf(format string, args ...any) {
	fmt.Fprintf(c.deps.Output, format, args...)
}

// pumpLines moves console lines into the queue. End of input is treated as
// an exit request queued behind everything already typed.
func (c *Coordinator) pumpLines(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				c.logger.Info("input closed")
				c.deps.Queue.Push("exit", SourceText)
				return nil
			}
			c.deps.Queue.Push(line, SourceText)
		}
	}
}

// scanLines reads r on its own goroutine. A blocked console read cannot be
// interrupted, so the goroutine is not joined; it exits on the next line
// once ctx is done.
func scanLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func imageDataURL(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw), nil
}
