package voice

import "context"

type STTEventType string

const (
	STTEventPartial   STTEventType = "partial"
	STTEventCommitted STTEventType = "committed"
	STTEventError     STTEventType = "error"
)

type STTEvent struct {
	Type      STTEventType
	Text      string
	Code      string
	Detail    string
	Retryable bool
	Timestamp int64
}

// STTSession accepts base64 PCM16 audio for one listening session.
type STTSession interface {
	SendAudioChunk(ctx context.Context, audioBase64 string, sampleRate int, commit bool) error
	Close() error
}

type STTProvider interface {
	StartSession(ctx context.Context) (STTSession, <-chan STTEvent, error)
}

type TTSEventType string

const (
	TTSEventAudio TTSEventType = "audio"
	TTSEventFinal TTSEventType = "final"
	TTSEventError TTSEventType = "error"
)

// TTSEvent is one inbound synthesis frame. Audio stays base64 encoded until
// the bridge decodes it.
type TTSEvent struct {
	Type        TTSEventType
	AudioBase64 string
	Code        string
	Detail      string
	Retryable   bool
}

type TTSSettings struct {
	Stability       float64
	SimilarityBoost float64
	Style           float64
	UseSpeakerBoost bool
}

// TTSStream is one duplex synthesis utterance. SendText and CloseInput may be
// called concurrently with reads from Events. Events is closed when the
// connection ends.
type TTSStream interface {
	SendText(ctx context.Context, text string) error
	CloseInput(ctx context.Context) error
	Events() <-chan TTSEvent
	Close() error
}

type TTSProvider interface {
	StartStream(ctx context.Context, voiceID string) (TTSStream, error)
}
