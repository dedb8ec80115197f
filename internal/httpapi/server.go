package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/voxchat/internal/observability"
	"github.com/ent0n29/voxchat/internal/protocol"
	"github.com/ent0n29/voxchat/internal/session"
)

const maxPromptBytes = 64 << 10

// PromptPusher accepts prompts for the session loop.
type PromptPusher interface {
	Push(text, source string) bool
	Len() int
}

// StatusSource reports the session loop state.
type StatusSource interface {
	Snapshot() session.Snapshot
}

type Options struct {
	Queue   PromptPusher
	Status  StatusSource
	Metrics *observability.Metrics
	// Voices is the persona catalog shown by /v1/voices.
	Voices       map[string]string
	DefaultVoice string
	// Ready, when set, is consulted by /readyz.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

// Server is the local control surface: health, metrics and prompt injection.
// It never touches conversation state; prompts only go onto the queue.
type Server struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{opts: opts, logger: logger.With("component", "httpapi")}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.opts.Metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/stages", s.handlePerfStages)
	r.Get("/v1/session", s.handleSession)
	r.Get("/v1/voices", s.handleListVoices)
	r.Post("/v1/prompts", s.handleCreatePrompt)
	return r
}

// Run serves on addr until ctx is done, then shuts down within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}
	<-errCh
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	body := map[string]any{"status": "ready"}
	if s.opts.Queue != nil {
		body["queued_prompts"] = s.opts.Queue.Len()
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handlePerfStages(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Metrics == nil || s.opts.Metrics.Stages == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.opts.Metrics.Stages.Snapshot())
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Status == nil {
		respondError(w, http.StatusNotFound, "not_found", "session status unavailable")
		return
	}
	respondJSON(w, http.StatusOK, s.opts.Status.Snapshot())
}

type voiceSummary struct {
	Name    string `json:"name"`
	VoiceID string `json:"voice_id"`
}

type listVoicesResponse struct {
	DefaultVoice string         `json:"default_voice"`
	Voices       []voiceSummary `json:"voices"`
}

func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	voices := make([]voiceSummary, 0, len(s.opts.Voices))
	for name, id := range s.opts.Voices {
		voices = append(voices, voiceSummary{Name: name, VoiceID: id})
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].Name < voices[j].Name })
	respondJSON(w, http.StatusOK, listVoicesResponse{DefaultVoice: s.opts.DefaultVoice, Voices: voices})
}

type promptAccepted struct {
	Status        string `json:"status"`
	Source        string `json:"source"`
	QueuedPrompts int    `json:"queued_prompts"`
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	if s.opts.Queue == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "prompt queue unavailable")
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPromptBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(raw) > maxPromptBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "too_large", "prompt body too large")
		return
	}
	req, err := protocol.ParsePromptRequest(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrEmptyPrompt) {
			respondError(w, http.StatusUnprocessableEntity, "empty_prompt", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	source := strings.ToLower(req.Source)
	s.opts.Queue.Push(req.Text, source)
	respondJSON(w, http.StatusAccepted, promptAccepted{
		Status:        "queued",
		Source:        source,
		QueuedPrompts: s.opts.Queue.Len(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
