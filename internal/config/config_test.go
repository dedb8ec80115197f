package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("KEYS_DIR", t.TempDir())
	t.Setenv("CONTEXT_DIR", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InputMode != "text" || cfg.OutputMode != "text" {
		t.Fatalf("modes = %q/%q, want text/text", cfg.InputMode, cfg.OutputMode)
	}
	if cfg.DefaultConversation != "assistant" {
		t.Fatalf("DefaultConversation = %q, want %q", cfg.DefaultConversation, "assistant")
	}
	if got := cfg.Voices["michael"]; got != "d5p9QsIisbcRbI3NQ5FR" {
		t.Fatalf("Voices[michael] = %q", got)
	}
	if len(cfg.BreakPhrases) != 1 || cfg.BreakPhrases[0] != "TRANSCRIPT:" {
		t.Fatalf("BreakPhrases = %v", cfg.BreakPhrases)
	}
	if !cfg.UseWakeWord || !cfg.Autosave {
		t.Fatalf("UseWakeWord/Autosave should default to true")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("KEYS_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "voxchat.toml")
	body := `
chat_backend = "anthropic"
chat_model = "claude-sonnet-4-5"
chat_temperature = 0.2
silence_timeout = "3s"
break_phrases = ["STOP", "TRANSCRIPT:"]
player_command = ["ffplay", "-nodisp", "-"]

[voices]
robot = "robot-voice"

[logit_bias]
"50256" = -100
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("CHAT_TEMPERATURE", "0.9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChatBackend != "anthropic" || cfg.ChatModel != "claude-sonnet-4-5" {
		t.Fatalf("backend/model = %q/%q", cfg.ChatBackend, cfg.ChatModel)
	}
	if cfg.ChatTemperature != 0.9 {
		t.Fatalf("ChatTemperature = %v, want env override 0.9", cfg.ChatTemperature)
	}
	if cfg.SilenceTimeout != 3*time.Second {
		t.Fatalf("SilenceTimeout = %v, want 3s", cfg.SilenceTimeout)
	}
	if len(cfg.BreakPhrases) != 2 || cfg.BreakPhrases[0] != "STOP" {
		t.Fatalf("BreakPhrases = %v", cfg.BreakPhrases)
	}
	if len(cfg.PlayerCommand) != 3 || cfg.PlayerCommand[0] != "ffplay" {
		t.Fatalf("PlayerCommand = %v", cfg.PlayerCommand)
	}
	if cfg.Voices["robot"] != "robot-voice" || cfg.Voices["nina"] == "" {
		t.Fatalf("Voices should merge file entries into the catalog: %v", cfg.Voices)
	}
	if cfg.LogitBias["50256"] != -100 {
		t.Fatalf("LogitBias = %v", cfg.LogitBias)
	}
}

func TestLoadKeyFilesAndContext(t *testing.T) {
	setCoreEnvEmpty(t)
	keys := t.TempDir()
	contexts := t.TempDir()
	if err := os.WriteFile(filepath.Join(keys, "elevenlabs.key"), []byte("xi-secret\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(keys, "openai.key"), []byte("from-file"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(contexts, "default_context.txt"), []byte("  Be brief.  \n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("KEYS_DIR", keys)
	t.Setenv("CONTEXT_DIR", contexts)
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("CHAT_OUTPUT_MODE", "voice")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ElevenLabsAPIKey != "xi-secret" {
		t.Fatalf("ElevenLabsAPIKey = %q, want key file value", cfg.ElevenLabsAPIKey)
	}
	if cfg.OpenAIAPIKey != "from-env" {
		t.Fatalf("OpenAIAPIKey = %q, env must win over key file", cfg.OpenAIAPIKey)
	}
	if cfg.DefaultContext != "Be brief." {
		t.Fatalf("DefaultContext = %q", cfg.DefaultContext)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad input mode", map[string]string{"CHAT_INPUT_MODE": "telepathy"}},
		{"bad backend", map[string]string{"CHAT_BACKEND": "eliza"}},
		{"same fallback", map[string]string{"CHAT_BACKEND": "mock", "CHAT_FALLBACK_BACKEND": "mock"}},
		{"bad temperature", map[string]string{"CHAT_TEMPERATURE": "3"}},
		{"unparsable duration", map[string]string{"SILENCE_TIMEOUT": "soon"}},
		{"unparsable bool", map[string]string{"USE_WAKE_WORD": "maybe"}},
		{"voice without key", map[string]string{"CHAT_INPUT_MODE": "voice"}},
		{"bad persistence", map[string]string{"PERSISTENCE_DRIVER": "floppy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv("KEYS_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(""); err == nil {
				t.Fatalf("Load() error = nil, want validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	setCoreEnvEmpty(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("Load() error = nil for a missing file")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"LOG_LEVEL",
		"CHAT_INPUT_MODE",
		"CHAT_OUTPUT_MODE",
		"CHAT_BACKEND",
		"CHAT_FALLBACK_BACKEND",
		"CHAT_MODEL",
		"CHAT_FALLBACK_MODEL",
		"CHAT_TEMPERATURE",
		"MAX_TOKENS",
		"MAX_WORDS",
		"KEYS_DIR",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"ANTHROPIC_API_KEY",
		"ANTHROPIC_BASE_URL",
		"OLLAMA_BASE_URL",
		"VOICE_PROVIDER",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_WS_BASE_URL",
		"ELEVENLABS_TTS_MODEL_ID",
		"ELEVENLABS_STT_MODEL_ID",
		"ELEVENLABS_TTS_OUTPUT_FORMAT",
		"VOICE_STABILITY",
		"VOICE_SIMILARITY_BOOST",
		"VOICE_STYLE",
		"VOICE_SPEAKER_BOOST",
		"SYNTHESIS_CONNECT_TIMEOUT",
		"SYNTHESIS_CONNECT_ATTEMPTS",
		"SANITIZE_MARKUP",
		"BREAK_PHRASES",
		"DEFAULT_VOICE",
		"DEFAULT_CONVERSATION",
		"USE_WAKE_WORD",
		"OVERRIDE_WAKE_WORD",
		"SILENCE_TIMEOUT",
		"POLL_INTERVAL",
		"PLAYER_COMMAND",
		"CAPTURE_COMMAND",
		"CAPTURE_SAMPLE_RATE",
		"CAPTURE_FRAME_DURATION",
		"RECORD_PATH",
		"CONTEXT_DIR",
		"IMAGES_DIR",
		"PERSISTENCE_DRIVER",
		"CONVERSATIONS_DIR",
		"SQLITE_PATH",
		"DATABASE_URL",
		"AUTOSAVE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
