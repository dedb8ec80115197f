package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the assistant. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	PromptsQueued        *prometheus.CounterVec
	Commands             *prometheus.CounterVec
	TranscriptEvents     *prometheus.CounterVec
	TranscriptDecodeErrs prometheus.Counter
	CompletionDeltas     prometheus.Counter
	CompletionErrors     *prometheus.CounterVec
	SynthesisChunks      prometheus.Counter
	SynthesisFrames      prometheus.Counter
	SynthesisTruncations prometheus.Counter
	ProviderErrors       *prometheus.CounterVec
	PromptQueueDepth     prometheus.Gauge
	FirstAudioLatency    prometheus.Histogram
	CompletionDuration   prometheus.Histogram

	Stages *StageWindow

	gatherer prometheus.Gatherer
}

// NewMetrics registers the instruments on reg. A nil reg uses the default
// Prometheus registry.
func NewMetrics(namespace string, reg *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	f := promauto.With(registerer)

	return &Metrics{
		PromptsQueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompts_queued_total",
			Help:      "Prompts pushed onto the prompt queue by source.",
		}, []string{"source"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Coordinator commands by kind.",
		}, []string{"command"}),
		TranscriptEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_events_total",
			Help:      "Transcript events consumed by the wake-word dispatcher.",
		}, []string{"status"}),
		TranscriptDecodeErrs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_decode_errors_total",
			Help:      "Transcript payloads that failed to decode.",
		}),
		CompletionDeltas: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_deltas_total",
			Help:      "Text deltas received from completion backends.",
		}),
		CompletionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_errors_total",
			Help:      "Completion stream failures by backend.",
		}, []string{"backend"}),
		SynthesisChunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_chunks_total",
			Help:      "Text chunks forwarded to the synthesis socket.",
		}),
		SynthesisFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_frames_total",
			Help:      "Audio frames received from the synthesis socket.",
		}),
		SynthesisTruncations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_truncations_total",
			Help:      "Utterances cut short by a break phrase.",
		}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		PromptQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prompt_queue_depth",
			Help:      "Prompts waiting for the coordinator.",
		}),
		FirstAudioLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from prompt dispatch to first synthesized audio frame in milliseconds.",
			Buckets:   []float64{200, 400, 700, 1000, 1500, 2500, 4000},
		}),
		CompletionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_ms",
			Help:      "Wall time of a completion stream in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000},
		}),
		Stages:   NewStageWindow(256),
		gatherer: gatherer,
	}
}

func (m *Metrics) PromptQueued(source string, depth int) {
	if m == nil {
		return
	}
	m.PromptsQueued.WithLabelValues(source).Inc()
	m.PromptQueueDepth.Set(float64(depth))
}

func (m *Metrics) QueueDepth(depth int) {
	if m == nil {
		return
	}
	m.PromptQueueDepth.Set(float64(depth))
}

func (m *Metrics) Command(kind string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(kind).Inc()
}

func (m *Metrics) TranscriptEvent(status string) {
	if m == nil {
		return
	}
	m.TranscriptEvents.WithLabelValues(status).Inc()
}

func (m *Metrics) TranscriptDecodeError() {
	if m == nil {
		return
	}
	m.TranscriptDecodeErrs.Inc()
}

func (m *Metrics) CompletionDelta() {
	if m == nil {
		return
	}
	m.CompletionDeltas.Inc()
}

func (m *Metrics) CompletionFinished(backend string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CompletionDuration.Observe(float64(d.Milliseconds()))
	m.Stages.Observe("completion_total", d)
	if err != nil {
		m.CompletionErrors.WithLabelValues(backend).Inc()
	}
}

func (m *Metrics) SynthesisChunk() {
	if m == nil {
		return
	}
	m.SynthesisChunks.Inc()
}

func (m *Metrics) SynthesisFrame() {
	if m == nil {
		return
	}
	m.SynthesisFrames.Inc()
}

func (m *Metrics) SynthesisTruncated() {
	if m == nil {
		return
	}
	m.SynthesisTruncations.Inc()
	m.Stages.Mark("break_phrase")
}

func (m *Metrics) ProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
	m.Stages.Mark(provider + "_error")
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
	m.Stages.Observe("prompt_to_first_audio", d)
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.Stages.Observe(stage, d)
}

// Handler serves the registry the instruments were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
