package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ent0n29/voxchat/internal/audio"
	"github.com/ent0n29/voxchat/internal/config"
	"github.com/ent0n29/voxchat/internal/conversation"
	"github.com/ent0n29/voxchat/internal/httpapi"
	"github.com/ent0n29/voxchat/internal/llm"
	"github.com/ent0n29/voxchat/internal/observability"
	"github.com/ent0n29/voxchat/internal/protocol"
	"github.com/ent0n29/voxchat/internal/session"
	"github.com/ent0n29/voxchat/internal/voice"
	"github.com/ent0n29/voxchat/internal/wakeword"
	"github.com/prometheus/client_golang/prometheus"
)

type VoiceInfo struct {
	Provider string
	Detail   string
}

type BuildResult struct {
	Config      config.Config
	Coordinator *session.Coordinator
	API         *httpapi.Server
	Store       *conversation.Store
	Queue       *wakeword.PromptQueue
	Tracker     *session.Tracker
	Metrics     *observability.Metrics
	Voice       VoiceInfo
	Backend     string

	// Cleanup should be called on shutdown to release external resources (DB handles).
	Cleanup func() error
}

// IO carries the console streams used by text input and text output.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Build wires every component from cfg. reg may be nil to use the default
// Prometheus registry.
func Build(ctx context.Context, cfg config.Config, console IO, reg *prometheus.Registry, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace, reg)

	persister, err := conversation.NewPersister(ctx, cfg.PersistenceDriver, cfg.ConversationsDir, cfg.SQLitePath, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("conversation persistence init failed: %w", err)
	}

	backend, backendDetail, err := resolveChatBackend(cfg)
	if err != nil {
		_ = persister.Close()
		return nil, err
	}

	voiceSetup, err := resolveVoiceProviders(cfg)
	if err != nil {
		_ = persister.Close()
		return nil, err
	}
	cfg.VoiceProvider = voiceSetup.resolvedProvider

	store := conversation.NewStore(conversation.StoreConfig{
		Voices:         cfg.Voices,
		DefaultVoice:   cfg.DefaultVoice,
		ContextDir:     cfg.ContextDir,
		DefaultContext: cfg.DefaultContext,
		Autosave:       cfg.Autosave,
	}, persister, logger)
	queue := wakeword.NewPromptQueue(metrics)
	tracker := session.NewTracker()
	streamer := llm.NewStreamer(backend, store, metrics, logger)

	deps := session.Dependencies{
		Store:    store,
		Streamer: streamer,
		Queue:    queue,
		Output:   console.Stdout,
		Tracker:  tracker,
		Metrics:  metrics,
		Logger:   logger,
	}

	switch cfg.InputMode {
	case "voice":
		capture := audio.NewCapture(audio.CaptureConfig{
			Command:       cfg.CaptureCommand,
			SampleRate:    cfg.SampleRate,
			FrameDuration: cfg.FrameDuration,
			RecordPath:    cfg.RecordPath,
		}, logger)
		listener := voice.NewListener(voiceSetup.sttProvider, cfg.SampleRate, metrics, logger)
		frames := make(chan []byte, 64)
		transcripts := make(chan protocol.TranscriptEvent, 64)
		dispatcher := wakeword.NewDispatcher(wakeword.Config{
			Enabled:          cfg.UseWakeWord,
			WakeWord:         cfg.DefaultConversation,
			OverrideWakeWord: cfg.OverrideWakeWord,
			SilenceTimeout:   cfg.SilenceTimeout,
			PollInterval:     cfg.PollInterval,
		}, transcripts, queue, metrics, logger)
		deps.WakeWord = dispatcher
		deps.Tasks = append(deps.Tasks,
			func(ctx context.Context) error { return capture.Run(ctx, frames) },
			func(ctx context.Context) error { return listener.Run(ctx, frames, transcripts) },
			dispatcher.Run,
		)
	default:
		deps.Input = console.Stdin
	}

	if cfg.OutputMode == "voice" {
		relay := audio.NewRelay(cfg.PlayerCommand, logger)
		if err := relay.Check(); err != nil {
			_ = persister.Close()
			return nil, fmt.Errorf("voice output: %w", err)
		}
		deps.Speaker = voice.NewBridge(voiceSetup.ttsProvider, relay, voice.BridgeConfig{
			BreakPhrases:    cfg.BreakPhrases,
			ConnectTimeout:  cfg.SynthesisConnectTimeout,
			ConnectAttempts: cfg.SynthesisConnectAttempts,
			SanitizeMarkup:  cfg.SanitizeMarkup,
		}, metrics, logger)
	}

	var api *httpapi.Server
	if strings.TrimSpace(cfg.BindAddr) != "" {
		api = httpapi.New(httpapi.Options{
			Queue:        queue,
			Status:       tracker,
			Metrics:      metrics,
			Voices:       cfg.Voices,
			DefaultVoice: cfg.DefaultVoice,
			Ready:        readiness(persister),
			Logger:       logger,
		})
		deps.Tasks = append(deps.Tasks, func(ctx context.Context) error {
			return api.Run(ctx, cfg.BindAddr, cfg.ShutdownTimeout)
		})
	}

	coordinator, err := session.NewCoordinator(session.Config{
		OutputMode:          session.Mode(cfg.OutputMode),
		PollInterval:        cfg.PollInterval,
		DefaultConversation: cfg.DefaultConversation,
		ImagesDir:           cfg.ImagesDir,
		Completion: llm.Params{
			Model:       cfg.ChatModel,
			Temperature: cfg.ChatTemperature,
			MaxTokens:   cfg.MaxTokens,
			LogitBias:   cfg.LogitBias,
			MaxWords:    cfg.MaxWords,
		},
	}, deps)
	if err != nil {
		_ = persister.Close()
		return nil, err
	}

	cleanup := func() error {
		var errs []string
		if err := persister.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:      cfg,
		Coordinator: coordinator,
		API:         api,
		Store:       store,
		Queue:       queue,
		Tracker:     tracker,
		Metrics:     metrics,
		Voice: VoiceInfo{
			Provider: voiceSetup.resolvedProvider,
			Detail:   voiceSetup.detail,
		},
		Backend: backendDetail,
		Cleanup: cleanup,
	}, nil
}

// readiness reports the persister as ready unless it can be pinged and the
// ping fails.
func readiness(p conversation.Persister) func(ctx context.Context) error {
	pp, ok := p.(pinger)
	if !ok {
		return nil
	}
	return pp.Ping
}
