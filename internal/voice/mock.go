package voice

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"
)

// MockProvider stands in for ElevenLabs when no API key is configured. Its
// synthesis "audio" is the UTF-8 text it was sent.
type MockProvider struct {
	// Transcript is what the mock recognizer commits.
	Transcript string
}

func NewMockProvider() *MockProvider { return &MockProvider{Transcript: "simulated voice input"} }

func (p *MockProvider) StartSession(_ context.Context) (STTSession, <-chan STTEvent, error) {
	events := make(chan STTEvent, 64)
	return &mockSTTSession{events: events, transcript: p.Transcript}, events, nil
}

func (p *MockProvider) StartStream(_ context.Context, _ string) (TTSStream, error) {
	return &mockTTSStream{events: make(chan TTSEvent, 128), done: make(chan struct{})}, nil
}

type mockSTTSession struct {
	mu         sync.Mutex
	events     chan STTEvent
	transcript string
	chunks     int
	closed     bool
}

func (s *mockSTTSession) SendAudioChunk(_ context.Context, audioBase64 string, _ int, commit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.chunks++
	now := time.Now().UnixMilli()
	if audioBase64 != "" {
		s.push(STTEvent{Type: STTEventPartial, Text: "...", Timestamp: now})
	}
	if commit || s.chunks%8 == 0 {
		s.push(STTEvent{Type: STTEventCommitted, Text: s.transcript, Timestamp: now})
	}
	return nil
}

func (s *mockSTTSession) push(ev STTEvent) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *mockSTTSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

type mockTTSStream struct {
	mu        sync.Mutex
	events    chan TTSEvent
	done      chan struct{}
	closeOnce sync.Once
	finished  bool
}

func (s *mockTTSStream) SendText(_ context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.send(TTSEvent{Type: TTSEventAudio, AudioBase64: base64.StdEncoding.EncodeToString([]byte(text))}, false)
}

func (s *mockTTSStream) CloseInput(_ context.Context) error {
	return s.send(TTSEvent{Type: TTSEventFinal}, true)
}

func (s *mockTTSStream) send(ev TTSEvent, last bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	select {
	case s.events <- ev:
	case <-s.done:
		return nil
	}
	if last {
		s.finished = true
		close(s.events)
	}
	return nil
}

func (s *mockTTSStream) Events() <-chan TTSEvent { return s.events }

func (s *mockTTSStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
