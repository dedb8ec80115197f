package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TranscriptStatus tags an event produced by the speech-to-text listener.
type TranscriptStatus string

const (
	TranscriptPartial TranscriptStatus = "partial"
	TranscriptFinal   TranscriptStatus = "final"
)

var (
	ErrUnsupportedStatus = errors.New("unsupported transcript status")
	ErrEmptyPrompt       = errors.New("prompt text is required")
)

// TranscriptEvent is what the speech-to-text listener emits: a JSON payload
// tagged with its status.
type TranscriptEvent struct {
	Status  TranscriptStatus
	Payload []byte
}

// WordTiming is one entry of the recognizer's per-word result list.
type WordTiming struct {
	Word  string  `json:"word,omitempty"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Conf  float64 `json:"conf,omitempty"`
}

// Transcript is the decoded payload of a transcript event. Final results carry
// Text, partial results carry Partial.
type Transcript struct {
	Text    string       `json:"text,omitempty"`
	Partial string       `json:"partial,omitempty"`
	Result  []WordTiming `json:"result,omitempty"`
}

// ParseTranscript decodes a listener payload for the given status and returns
// the recognized text.
func ParseTranscript(status TranscriptStatus, raw []byte) (string, error) {
	var t Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return "", fmt.Errorf("invalid transcript payload: %w", err)
	}
	switch status {
	case TranscriptFinal:
		return t.Text, nil
	case TranscriptPartial:
		return t.Partial, nil
	default:
		return "", ErrUnsupportedStatus
	}
}

// EncodeTranscript builds the payload ParseTranscript accepts.
func EncodeTranscript(status TranscriptStatus, text string) []byte {
	t := Transcript{Text: text}
	if status == TranscriptPartial {
		t = Transcript{Partial: text}
	}
	raw, _ := json.Marshal(t)
	return raw
}

// VoiceSettings is the voice-quality block of the synthesis init frame.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// SynthesisInit opens an utterance on the synthesis socket.
type SynthesisInit struct {
	Text          string         `json:"text"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
	APIKey        string         `json:"xi_api_key,omitempty"`
}

// SynthesisText carries one chunk of text. An empty Text ends the utterance.
type SynthesisText struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
}

// SynthesisOutput is an inbound frame from the synthesis socket.
type SynthesisOutput struct {
	Audio       string `json:"audio,omitempty"`
	IsFinal     bool   `json:"isFinal,omitempty"`
	Error       string `json:"error,omitempty"`
	MessageType string `json:"message_type,omitempty"`
}

// PromptRequest is the body of the HTTP prompt endpoint.
type PromptRequest struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

func ParsePromptRequest(raw []byte) (PromptRequest, error) {
	var req PromptRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return PromptRequest{}, fmt.Errorf("invalid prompt request: %w", err)
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return PromptRequest{}, ErrEmptyPrompt
	}
	if req.Source == "" {
		req.Source = "http"
	}
	return req, nil
}
