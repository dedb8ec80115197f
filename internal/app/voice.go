package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/voxchat/internal/config"
	"github.com/ent0n29/voxchat/internal/voice"
)

type voiceSetup struct {
	sttProvider      voice.STTProvider
	ttsProvider      voice.TTSProvider
	resolvedProvider string
	detail           string
}

func resolveVoiceProviders(cfg config.Config) (voiceSetup, error) {
	voiceMode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	if voiceMode == "" {
		voiceMode = "elevenlabs"
	}

	switch voiceMode {
	case "elevenlabs":
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
			if !usesVoice(cfg) {
				// Text in and text out never open a voice socket.
				return mockVoiceSetup("mock (text-only session)"), nil
			}
			return voiceSetup{}, fmt.Errorf("VOICE_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
		p := voice.NewElevenLabsProvider(voice.ElevenLabsConfig{
			APIKey:       cfg.ElevenLabsAPIKey,
			WSBaseURL:    cfg.ElevenLabsWSBaseURL,
			TTSModelID:   cfg.ElevenLabsTTSModel,
			STTModelID:   cfg.ElevenLabsSTTModel,
			OutputFormat: cfg.ElevenLabsTTSOutputFormat,
			Settings: voice.TTSSettings{
				Stability:       cfg.VoiceStability,
				SimilarityBoost: cfg.VoiceSimilarityBoost,
				Style:           cfg.VoiceStyle,
				UseSpeakerBoost: cfg.VoiceSpeakerBoost,
			},
		})
		return voiceSetup{
			sttProvider:      p,
			ttsProvider:      p,
			resolvedProvider: "elevenlabs",
			detail:           "elevenlabs realtime",
		}, nil
	case "mock":
		return mockVoiceSetup("mock"), nil
	default:
		return voiceSetup{}, fmt.Errorf("invalid VOICE_PROVIDER: %q (expected elevenlabs|mock)", cfg.VoiceProvider)
	}
}

func mockVoiceSetup(detail string) voiceSetup {
	p := voice.NewMockProvider()
	return voiceSetup{
		sttProvider:      p,
		ttsProvider:      p,
		resolvedProvider: "mock",
		detail:           detail,
	}
}

func usesVoice(cfg config.Config) bool {
	return cfg.InputMode == "voice" || cfg.OutputMode == "voice"
}
