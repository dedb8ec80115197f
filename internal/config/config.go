package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config contains all runtime settings for the voice assistant. Values come
// from built-in defaults, then an optional TOML file, then the environment.
type Config struct {
	BindAddr         string        `toml:"bind_addr"`
	ShutdownTimeout  time.Duration `toml:"shutdown_timeout"`
	MetricsNamespace string        `toml:"metrics_namespace"`
	LogLevel         string        `toml:"log_level"`

	InputMode    string        `toml:"input_mode"`
	OutputMode   string        `toml:"output_mode"`
	PollInterval time.Duration `toml:"poll_interval"`

	ChatBackend     string         `toml:"chat_backend"`
	FallbackBackend string         `toml:"fallback_backend"`
	ChatModel       string         `toml:"chat_model"`
	FallbackModel   string         `toml:"fallback_model"`
	ChatTemperature float64        `toml:"chat_temperature"`
	MaxTokens       int            `toml:"max_tokens"`
	MaxWords        int            `toml:"max_words"`
	LogitBias       map[string]int `toml:"logit_bias"`

	KeysDir          string `toml:"keys_dir"`
	OpenAIAPIKey     string `toml:"openai_api_key"`
	OpenAIBaseURL    string `toml:"openai_base_url"`
	AnthropicAPIKey  string `toml:"anthropic_api_key"`
	AnthropicBaseURL string `toml:"anthropic_base_url"`
	OllamaBaseURL    string `toml:"ollama_base_url"`

	VoiceProvider             string  `toml:"voice_provider"`
	ElevenLabsAPIKey          string  `toml:"elevenlabs_api_key"`
	ElevenLabsWSBaseURL       string  `toml:"elevenlabs_ws_base_url"`
	ElevenLabsTTSModel        string  `toml:"elevenlabs_tts_model"`
	ElevenLabsSTTModel        string  `toml:"elevenlabs_stt_model"`
	ElevenLabsTTSOutputFormat string  `toml:"elevenlabs_tts_output_format"`
	VoiceStability            float64 `toml:"voice_stability"`
	VoiceSimilarityBoost      float64 `toml:"voice_similarity_boost"`
	VoiceStyle                float64 `toml:"voice_style"`
	VoiceSpeakerBoost         bool    `toml:"voice_speaker_boost"`

	SynthesisConnectTimeout  time.Duration `toml:"synthesis_connect_timeout"`
	SynthesisConnectAttempts int           `toml:"synthesis_connect_attempts"`
	SanitizeMarkup           bool          `toml:"sanitize_markup"`
	BreakPhrases             []string      `toml:"break_phrases"`

	Voices              map[string]string `toml:"voices"`
	DefaultVoice        string            `toml:"default_voice"`
	DefaultConversation string            `toml:"default_conversation"`

	UseWakeWord      bool          `toml:"use_wake_word"`
	OverrideWakeWord string        `toml:"override_wake_word"`
	SilenceTimeout   time.Duration `toml:"silence_timeout"`

	PlayerCommand  []string      `toml:"player_command"`
	CaptureCommand []string      `toml:"capture_command"`
	SampleRate     int           `toml:"sample_rate"`
	FrameDuration  time.Duration `toml:"frame_duration"`
	RecordPath     string        `toml:"record_path"`

	ContextDir         string `toml:"context_dir"`
	DefaultContextFile string `toml:"default_context_file"`
	DefaultContext     string `toml:"default_context"`
	ImagesDir          string `toml:"images_dir"`

	PersistenceDriver string `toml:"persistence_driver"`
	ConversationsDir  string `toml:"conversations_dir"`
	SQLitePath        string `toml:"sqlite_path"`
	DatabaseURL       string `toml:"database_url"`
	Autosave          bool   `toml:"autosave"`
}

// DefaultVoices is the built-in persona catalog.
var DefaultVoices = map[string]string{
	"michael":  "d5p9QsIisbcRbI3NQ5FR",
	"samantha": "bjehOvr3TnhggNkXv7bp",
	"sally":    "09AoN6tYyW3VSTQqCo7C",
	"nina":     "P2GZl52xQmbWlMkeefio",
	"tiffany":  "x9leqCOAXOcmC5jtkq65",
	"ilya":     "CnV6BQOHeZCIv4McSXDH",
	"cheryl":   "wVZ5qbJFYF3snuC65nb4",
	"jennifer": "7NEwj4nuis0eiAI9AhKF",
}

// Default returns the built-in settings.
func Default() Config {
	voices := make(map[string]string, len(DefaultVoices))
	for k, v := range DefaultVoices {
		voices[k] = v
	}
	return Config{
		BindAddr:         "127.0.0.1:8080",
		ShutdownTimeout:  15 * time.Second,
		MetricsNamespace: "voxchat",
		LogLevel:         "info",

		InputMode:    "text",
		OutputMode:   "text",
		PollInterval: 100 * time.Millisecond,

		ChatBackend:     "openai",
		ChatModel:       "gpt-4o",
		ChatTemperature: 0.7,
		MaxTokens:       512,

		KeysDir:       "keys",
		OllamaBaseURL: "http://localhost:11434",

		VoiceProvider:             "elevenlabs",
		ElevenLabsWSBaseURL:       "wss://api.elevenlabs.io",
		ElevenLabsTTSModel:        "eleven_monolingual_v1",
		ElevenLabsSTTModel:        "scribe_v1",
		ElevenLabsTTSOutputFormat: "mp3_44100_128",
		VoiceStability:            0.4,
		VoiceSimilarityBoost:      0.9,
		VoiceStyle:                0.0,
		VoiceSpeakerBoost:         true,

		SynthesisConnectTimeout:  10 * time.Second,
		SynthesisConnectAttempts: 2,
		BreakPhrases:             []string{"TRANSCRIPT:"},

		Voices:              voices,
		DefaultVoice:        "michael",
		DefaultConversation: "assistant",

		UseWakeWord:    true,
		SilenceTimeout: 2 * time.Second,

		SampleRate:    16000,
		FrameDuration: 100 * time.Millisecond,

		ContextDir:         "context",
		DefaultContextFile: "default_context.txt",
		ImagesDir:          "images",

		ConversationsDir: "conversations",
		SQLitePath:       "voxchat.db",
		Autosave:         true,
	}
}

// Load applies the TOML file at path (when path is not empty) and then the
// environment on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.loadKeyFiles(); err != nil {
		return Config{}, err
	}
	if err := cfg.loadDefaultContext(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.InputMode = envOrDefault("CHAT_INPUT_MODE", cfg.InputMode)
	cfg.OutputMode = envOrDefault("CHAT_OUTPUT_MODE", cfg.OutputMode)
	cfg.ChatBackend = envOrDefault("CHAT_BACKEND", cfg.ChatBackend)
	cfg.FallbackBackend = envOrDefault("CHAT_FALLBACK_BACKEND", cfg.FallbackBackend)
	cfg.ChatModel = envOrDefault("CHAT_MODEL", cfg.ChatModel)
	cfg.FallbackModel = envOrDefault("CHAT_FALLBACK_MODEL", cfg.FallbackModel)
	cfg.KeysDir = envOrDefault("KEYS_DIR", cfg.KeysDir)
	cfg.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.AnthropicAPIKey = envOrDefault("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	cfg.AnthropicBaseURL = envOrDefault("ANTHROPIC_BASE_URL", cfg.AnthropicBaseURL)
	cfg.OllamaBaseURL = envOrDefault("OLLAMA_BASE_URL", cfg.OllamaBaseURL)
	cfg.VoiceProvider = envOrDefault("VOICE_PROVIDER", cfg.VoiceProvider)
	cfg.ElevenLabsAPIKey = envOrDefault("ELEVENLABS_API_KEY", cfg.ElevenLabsAPIKey)
	cfg.ElevenLabsWSBaseURL = envOrDefault("ELEVENLABS_WS_BASE_URL", cfg.ElevenLabsWSBaseURL)
	cfg.ElevenLabsTTSModel = envOrDefault("ELEVENLABS_TTS_MODEL_ID", cfg.ElevenLabsTTSModel)
	cfg.ElevenLabsSTTModel = envOrDefault("ELEVENLABS_STT_MODEL_ID", cfg.ElevenLabsSTTModel)
	cfg.ElevenLabsTTSOutputFormat = envOrDefault("ELEVENLABS_TTS_OUTPUT_FORMAT", cfg.ElevenLabsTTSOutputFormat)
	cfg.DefaultVoice = envOrDefault("DEFAULT_VOICE", cfg.DefaultVoice)
	cfg.DefaultConversation = envOrDefault("DEFAULT_CONVERSATION", cfg.DefaultConversation)
	cfg.OverrideWakeWord = envOrDefault("OVERRIDE_WAKE_WORD", cfg.OverrideWakeWord)
	cfg.RecordPath = envOrDefault("RECORD_PATH", cfg.RecordPath)
	cfg.ContextDir = envOrDefault("CONTEXT_DIR", cfg.ContextDir)
	cfg.ImagesDir = envOrDefault("IMAGES_DIR", cfg.ImagesDir)
	cfg.PersistenceDriver = envOrDefault("PERSISTENCE_DRIVER", cfg.PersistenceDriver)
	cfg.ConversationsDir = envOrDefault("CONVERSATIONS_DIR", cfg.ConversationsDir)
	cfg.SQLitePath = envOrDefault("SQLITE_PATH", cfg.SQLitePath)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	if v := stringsTrimSpace("PLAYER_COMMAND"); v != "" {
		cfg.PlayerCommand = strings.Fields(v)
	}
	if v := stringsTrimSpace("CAPTURE_COMMAND"); v != "" {
		cfg.CaptureCommand = strings.Fields(v)
	}
	if v := os.Getenv("BREAK_PHRASES"); v != "" {
		cfg.BreakPhrases = splitList(v)
	}

	var err error
	if cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return err
	}
	if cfg.PollInterval, err = durationFromEnv("POLL_INTERVAL", cfg.PollInterval); err != nil {
		return err
	}
	if cfg.SilenceTimeout, err = durationFromEnv("SILENCE_TIMEOUT", cfg.SilenceTimeout); err != nil {
		return err
	}
	if cfg.SynthesisConnectTimeout, err = durationFromEnv("SYNTHESIS_CONNECT_TIMEOUT", cfg.SynthesisConnectTimeout); err != nil {
		return err
	}
	if cfg.FrameDuration, err = durationFromEnv("CAPTURE_FRAME_DURATION", cfg.FrameDuration); err != nil {
		return err
	}
	if cfg.SynthesisConnectAttempts, err = intFromEnv("SYNTHESIS_CONNECT_ATTEMPTS", cfg.SynthesisConnectAttempts); err != nil {
		return err
	}
	if cfg.MaxTokens, err = intFromEnv("MAX_TOKENS", cfg.MaxTokens); err != nil {
		return err
	}
	if cfg.MaxWords, err = intFromEnv("MAX_WORDS", cfg.MaxWords); err != nil {
		return err
	}
	if cfg.SampleRate, err = intFromEnv("CAPTURE_SAMPLE_RATE", cfg.SampleRate); err != nil {
		return err
	}
	if cfg.ChatTemperature, err = floatFromEnv("CHAT_TEMPERATURE", cfg.ChatTemperature); err != nil {
		return err
	}
	if cfg.VoiceStability, err = floatFromEnv("VOICE_STABILITY", cfg.VoiceStability); err != nil {
		return err
	}
	if cfg.VoiceSimilarityBoost, err = floatFromEnv("VOICE_SIMILARITY_BOOST", cfg.VoiceSimilarityBoost); err != nil {
		return err
	}
	if cfg.VoiceStyle, err = floatFromEnv("VOICE_STYLE", cfg.VoiceStyle); err != nil {
		return err
	}
	if cfg.VoiceSpeakerBoost, err = boolFromEnv("VOICE_SPEAKER_BOOST", cfg.VoiceSpeakerBoost); err != nil {
		return err
	}
	if cfg.SanitizeMarkup, err = boolFromEnv("SANITIZE_MARKUP", cfg.SanitizeMarkup); err != nil {
		return err
	}
	if cfg.UseWakeWord, err = boolFromEnv("USE_WAKE_WORD", cfg.UseWakeWord); err != nil {
		return err
	}
	if cfg.Autosave, err = boolFromEnv("AUTOSAVE", cfg.Autosave); err != nil {
		return err
	}
	return nil
}

// loadKeyFiles fills API keys that are still empty from <keys_dir>/<name>.key.
func (c *Config) loadKeyFiles() error {
	if c.KeysDir == "" {
		return nil
	}
	for name, dst := range map[string]*string{
		"openai":     &c.OpenAIAPIKey,
		"anthropic":  &c.AnthropicAPIKey,
		"elevenlabs": &c.ElevenLabsAPIKey,
	} {
		if *dst != "" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(c.KeysDir, name+".key"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s key file: %w", name, err)
		}
		*dst = trimSpace(string(raw))
	}
	return nil
}

func (c *Config) loadDefaultContext() error {
	if c.DefaultContext != "" || c.DefaultContextFile == "" {
		return nil
	}
	raw, err := os.ReadFile(filepath.Join(c.ContextDir, c.DefaultContextFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read default context: %w", err)
	}
	c.DefaultContext = trimSpace(string(raw))
	return nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch c.InputMode {
	case "text", "voice":
	default:
		return fmt.Errorf("input_mode must be text or voice, got %q", c.InputMode)
	}
	switch c.OutputMode {
	case "text", "voice":
	default:
		return fmt.Errorf("output_mode must be text or voice, got %q", c.OutputMode)
	}
	if !validBackend(c.ChatBackend) {
		return fmt.Errorf("chat_backend must be openai, anthropic, ollama or mock, got %q", c.ChatBackend)
	}
	if c.FallbackBackend != "" && !validBackend(c.FallbackBackend) {
		return fmt.Errorf("fallback_backend must be openai, anthropic, ollama or mock, got %q", c.FallbackBackend)
	}
	if c.FallbackBackend == c.ChatBackend && c.FallbackBackend != "" {
		return fmt.Errorf("fallback_backend must differ from chat_backend")
	}
	switch c.VoiceProvider {
	case "elevenlabs", "mock":
	default:
		return fmt.Errorf("voice_provider must be elevenlabs or mock, got %q", c.VoiceProvider)
	}
	switch c.PersistenceDriver {
	case "", "memory", "file", "sqlite", "postgres":
	default:
		return fmt.Errorf("persistence_driver must be memory, file, sqlite or postgres, got %q", c.PersistenceDriver)
	}
	if c.ChatModel == "" && c.ChatBackend != "mock" {
		return fmt.Errorf("chat_model is required")
	}
	if c.ChatTemperature < 0 || c.ChatTemperature > 2 {
		return fmt.Errorf("chat_temperature must be between 0 and 2")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be >= 0")
	}
	if c.MaxWords < 0 {
		return fmt.Errorf("max_words must be >= 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.SilenceTimeout <= 0 {
		return fmt.Errorf("silence_timeout must be positive")
	}
	if c.SynthesisConnectTimeout <= 0 {
		return fmt.Errorf("synthesis_connect_timeout must be positive")
	}
	if c.SynthesisConnectAttempts <= 0 {
		return fmt.Errorf("synthesis_connect_attempts must be positive")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive")
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame_duration must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if c.DefaultConversation == "" {
		return fmt.Errorf("default_conversation is required")
	}
	if c.VoiceProvider == "elevenlabs" && (c.InputMode == "voice" || c.OutputMode == "voice") && c.ElevenLabsAPIKey == "" {
		return fmt.Errorf("ELEVENLABS_API_KEY is required for voice input or output")
	}
	return nil
}

func validBackend(name string) bool {
	switch name {
	case "openai", "anthropic", "ollama", "mock":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = trimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
