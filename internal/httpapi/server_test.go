package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/voxchat/internal/observability"
	"github.com/ent0n29/voxchat/internal/session"
	"github.com/ent0n29/voxchat/internal/wakeword"
)

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *wakeword.PromptQueue) {
	t.Helper()
	queue := wakeword.NewPromptQueue(nil)
	if opts.Queue == nil {
		opts.Queue = queue
	}
	ts := httptest.NewServer(New(opts).Router())
	t.Cleanup(ts.Close)
	return ts, queue
}

func TestCreatePromptQueuesText(t *testing.T) {
	ts, queue := newTestServer(t, Options{})

	body, _ := json.Marshal(map[string]string{"text": "  what time is it  "})
	res, err := http.Post(ts.URL+"/v1/prompts", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create prompt request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}

	var accepted map[string]any
	if err := json.NewDecoder(res.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if accepted["source"] != "http" {
		t.Fatalf("source = %v, want http", accepted["source"])
	}

	item, ok := queue.TryPop()
	if !ok {
		t.Fatalf("prompt was not queued")
	}
	if item.Text != "what time is it" || item.Source != "http" {
		t.Fatalf("queued item = %+v", item)
	}
}

func TestCreatePromptRejectsBadBodies(t *testing.T) {
	ts, queue := newTestServer(t, Options{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty text", `{"text":"   "}`, http.StatusUnprocessableEntity},
		{"not json", `{text`, http.StatusBadRequest},
		{"too large", `{"text":"` + strings.Repeat("a", maxPromptBytes) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := http.Post(ts.URL+"/v1/prompts", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("request error = %v", err)
			}
			res.Body.Close()
			if res.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want)
			}
		})
	}
	if queue.Len() != 0 {
		t.Fatalf("rejected prompts must not be queued, got %d", queue.Len())
	}
}

func TestHealthReadyAndSession(t *testing.T) {
	tracker := session.NewTracker()
	tracker.SetConversation("nina")
	ready := errors.New("database down")
	ts, _ := newTestServer(t, Options{
		Status: tracker,
		Ready:  func(context.Context) error { return ready },
	})

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", res.StatusCode)
	}

	res, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}

	res, err = http.Get(ts.URL + "/v1/session")
	if err != nil {
		t.Fatalf("session error = %v", err)
	}
	defer res.Body.Close()
	var snap session.Snapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if snap.Conversation != "nina" || snap.Status != session.StatusIdle {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestListVoicesSorted(t *testing.T) {
	ts, _ := newTestServer(t, Options{
		Voices:       map[string]string{"nina": "n-id", "michael": "m-id"},
		DefaultVoice: "michael",
	})
	res, err := http.Get(ts.URL + "/v1/voices")
	if err != nil {
		t.Fatalf("voices error = %v", err)
	}
	defer res.Body.Close()
	var got listVoicesResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode voices: %v", err)
	}
	if got.DefaultVoice != "michael" || len(got.Voices) != 2 || got.Voices[0].Name != "michael" {
		t.Fatalf("voices = %+v", got)
	}
}

func TestMetricsAndStages(t *testing.T) {
	metrics := observability.NewMetrics("test_httpapi", prometheus.NewRegistry())
	metrics.Command("chat")
	metrics.ObserveStage("turn", 120*time.Millisecond)
	ts, _ := newTestServer(t, Options{Metrics: metrics})

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics error = %v", err)
	}
	raw, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if !strings.Contains(string(raw), "test_httpapi_commands_total") {
		t.Fatalf("metrics output missing commands counter:\n%s", raw)
	}

	res, err = http.Get(ts.URL + "/v1/perf/stages")
	if err != nil {
		t.Fatalf("stages error = %v", err)
	}
	defer res.Body.Close()
	var snap observability.StageSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode stages: %v", err)
	}
	if len(snap.Stages) == 0 {
		t.Fatalf("stages snapshot is empty")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error = %v", err)
	}
	srv := New(Options{Queue: wakeword.NewPromptQueue(nil)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln, time.Second) }()

	res, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("healthz error = %v", err)
	}
	res.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Serve() did not return after cancel")
	}
}
