package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/voxchat/internal/protocol"
	"github.com/ent0n29/voxchat/internal/reliability"
	"github.com/gorilla/websocket"
)

type ElevenLabsConfig struct {
	APIKey       string
	WSBaseURL    string
	TTSModelID   string
	STTModelID   string
	OutputFormat string
	Settings     TTSSettings
}

// ElevenLabsProvider speaks the stream-input synthesis protocol and the
// realtime transcription protocol over websockets.
type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	dialer *websocket.Dialer
}

func NewElevenLabsProvider(cfg ElevenLabsConfig) *ElevenLabsProvider {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.TTSModelID) == "" {
		cfg.TTSModelID = "eleven_monolingual_v1"
	}
	if strings.TrimSpace(cfg.STTModelID) == "" {
		cfg.STTModelID = "scribe_v1"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	cfg.Settings.Stability = clampUnit(cfg.Settings.Stability)
	cfg.Settings.SimilarityBoost = clampUnit(cfg.Settings.SimilarityBoost)
	cfg.Settings.Style = clampUnit(cfg.Settings.Style)
	return &ElevenLabsProvider{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (p *ElevenLabsProvider) StartStream(ctx context.Context, voiceID string) (TTSStream, error) {
	if strings.TrimSpace(voiceID) == "" {
		return nil, errors.New("voice_id is required")
	}
	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model_id", p.cfg.TTSModelID)
	q.Set("output_format", p.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	conn, err := p.dial(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}

	s := &elevenTTSStream{conn: conn, events: make(chan TTSEvent, 64), done: make(chan struct{})}
	initFrame := protocol.SynthesisInit{
		Text: " ",
		VoiceSettings: &protocol.VoiceSettings{
			Stability:       p.cfg.Settings.Stability,
			SimilarityBoost: p.cfg.Settings.SimilarityBoost,
			Style:           p.cfg.Settings.Style,
			UseSpeakerBoost: p.cfg.Settings.UseSpeakerBoost,
		},
		APIKey: p.cfg.APIKey,
	}
	if err := s.writeJSON(initFrame); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send init frame: %w", err)
	}
	go s.readLoop()
	return s, nil
}

func (p *ElevenLabsProvider) StartSession(ctx context.Context) (STTSession, <-chan STTEvent, error) {
	u, err := url.Parse(strings.TrimRight(p.cfg.WSBaseURL, "/") + "/v1/speech-to-text/realtime")
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("model_id", p.cfg.STTModelID)
	q.Set("commit_strategy", "vad")
	u.RawQuery = q.Encode()

	conn, err := p.dial(ctx, u.String())
	if err != nil {
		return nil, nil, fmt.Errorf("dial stt websocket: %w", err)
	}

	s := &elevenSTTSession{conn: conn, events: make(chan STTEvent, 256), done: make(chan struct{})}
	go s.readLoop()
	return s, s.events, nil
}

func (p *ElevenLabsProvider) dial(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)
	conn, resp, err := p.dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			return nil, &DialError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, err
	}
	return conn, nil
}

// DialError is a rejected websocket handshake.
type DialError struct {
	StatusCode int
	Err        error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("handshake status %d: %v", e.StatusCode, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// Retryable reports whether redialing can help.
func (e *DialError) Retryable() bool { return reliability.IsRetryableHTTPStatus(e.StatusCode) }

func (e *DialError) HTTPStatus() int { return e.StatusCode }

type elevenTTSStream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan TTSEvent
	done      chan struct{}
}

func (s *elevenTTSStream) SendText(_ context.Context, text string) error {
	return s.writeJSON(protocol.SynthesisText{Text: text, TryTriggerGeneration: true})
}

func (s *elevenTTSStream) CloseInput(_ context.Context) error {
	return s.writeJSON(protocol.SynthesisText{})
}

func (s *elevenTTSStream) Events() <-chan TTSEvent { return s.events }

func (s *elevenTTSStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *elevenTTSStream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *elevenTTSStream) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var out protocol.SynthesisOutput
		if err := json.Unmarshal(data, &out); err != nil {
			continue
		}
		if out.Audio != "" && !s.emit(TTSEvent{Type: TTSEventAudio, AudioBase64: out.Audio}) {
			return
		}
		if out.Error != "" {
			ev := TTSEvent{
				Type:      TTSEventError,
				Code:      out.MessageType,
				Detail:    out.Error,
				Retryable: reliability.IsRetryableStreamError(out.MessageType),
			}
			if !s.emit(ev) {
				return
			}
		}
		if out.IsFinal {
			s.emit(TTSEvent{Type: TTSEventFinal})
			return
		}
	}
}

func (s *elevenTTSStream) emit(ev TTSEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

type elevenSTTSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan STTEvent
	done      chan struct{}
}

type sttInboundMessage struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
	Error       string `json:"error"`
}

func (s *elevenSTTSession) SendAudioChunk(_ context.Context, audioBase64 string, sampleRate int, commit bool) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	payload := map[string]any{
		"message_type":  "input_audio_chunk",
		"audio_base_64": audioBase64,
		"commit":        commit,
		"sample_rate":   sampleRate,
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *elevenSTTSession) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg sttInboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		var ev STTEvent
		switch msg.MessageType {
		case "partial_transcript":
			ev = STTEvent{Type: STTEventPartial, Text: msg.Text}
		case "committed_transcript", "committed_transcript_with_timestamps":
			ev = STTEvent{Type: STTEventCommitted, Text: msg.Text}
		case "", "session_started", "input_audio_chunk":
			continue
		default:
			ev = STTEvent{
				Type:      STTEventError,
				Code:      msg.MessageType,
				Detail:    msg.Error,
				Retryable: reliability.IsRetryableStreamError(msg.MessageType),
			}
		}
		ev.Timestamp = time.Now().UnixMilli()
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *elevenSTTSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
