package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, cfg StoreConfig) *Store {
	t.Helper()
	if cfg.Voices == nil {
		cfg.Voices = map[string]string{"michael": "voice-michael", "samantha": "voice-samantha"}
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = "michael"
	}
	if cfg.DefaultContext == "" {
		cfg.DefaultContext = "You are a helpful assistant."
	}
	s := NewStore(cfg, NewMemoryPersister(), nil)
	_, _, err := s.Switch(context.Background(), "assistant")
	require.NoError(t, err)
	return s
}

func roles(msgs []Message) []Role {
	out := make([]Role, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role)
	}
	return out
}

func TestSwitchSeedsContextAndFallsBackToDefaultVoice(t *testing.T) {
	s := newTestStore(t, StoreConfig{})

	conv := s.Current()
	require.Equal(t, "assistant", conv.Name)
	require.Equal(t, "voice-michael", conv.VoiceID)
	require.Equal(t, "You are a helpful assistant. Your name is assistant.", conv.Context)
	require.Len(t, conv.Messages, 1)
	require.Equal(t, RoleUser, conv.Messages[0].Role)
	require.Equal(t, conv.Context, conv.Messages[0].Content.Text())
}

func TestSwitchUsesContextFileAndNamedVoice(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "samantha_context.txt"), []byte("  You are Samantha.\n"), 0o644))
	s := newTestStore(t, StoreConfig{ContextDir: dir})

	conv, resumed, err := s.Switch(context.Background(), "samantha")
	require.NoError(t, err)
	require.False(t, resumed)
	require.Equal(t, "voice-samantha", conv.VoiceID)
	require.Equal(t, "You are Samantha.", conv.Context)
}

func TestSwitchResumesExistingConversation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, StoreConfig{})
	_, err := s.Append(ctx, RoleUser, TextContent("remember me"))
	require.NoError(t, err)

	_, _, err = s.Switch(ctx, "samantha")
	require.NoError(t, err)
	conv, resumed, err := s.Switch(ctx, "assistant")
	require.NoError(t, err)
	require.True(t, resumed)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, "remember me", conv.Messages[1].Content.Text())
}

func TestUndoNeverRemovesSeed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, StoreConfig{})
	for _, m := range []struct {
		role Role
		text string
	}{{RoleUser, "A"}, {RoleAssistant, "B"}, {RoleUser, "C"}} {
		_, err := s.Append(ctx, m.role, TextContent(m.text))
		require.NoError(t, err)
	}

	n, err := s.Undo(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []Role{RoleUser, RoleUser}, roles(s.Messages()))

	n, err = s.Undo(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, s.Messages(), 1)

	n, err = s.Undo(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, s.Messages(), 1)
}

func TestClearResetsToSeed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, StoreConfig{})
	_, err := s.Append(ctx, RoleUser, TextContent("hello"))
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx))
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, s.Current().Context, msgs[0].Content.Text())
}

func TestSaveAndLoadSnapshots(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, StoreConfig{})
	_, err := s.Append(ctx, RoleUser, TextContent("first"))
	require.NoError(t, err)

	key, err := s.Save(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "assistant", key)
	_, err = s.Save(ctx, "trip")
	require.NoError(t, err)

	_, err = s.Append(ctx, RoleAssistant, TextContent("second"))
	require.NoError(t, err)
	require.Len(t, s.Messages(), 3)

	_, err = s.Load(ctx, "trip")
	require.NoError(t, err)
	require.Len(t, s.Messages(), 2)

	_, err = s.Load(ctx, "missing")
	require.True(t, errors.Is(err, ErrNotFound), "Load() error = %v, want ErrNotFound", err)
	require.Len(t, s.Messages(), 2)
}

func TestAutosaveWritesMessagesSnapshot(t *testing.T) {
	ctx := context.Background()
	persister := NewMemoryPersister()
	s := NewStore(StoreConfig{DefaultVoice: "v", Autosave: true}, persister, nil)
	_, _, err := s.Switch(ctx, "nina")
	require.NoError(t, err)
	_, err = s.Append(ctx, RoleUser, TextContent("hi"))
	require.NoError(t, err)

	snap, err := persister.LoadSnapshot(ctx, "nina_messages")
	require.NoError(t, err)
	require.Len(t, snap.Messages, 2)
	require.Equal(t, "v", snap.VoiceID)
}

func TestContentJSONShape(t *testing.T) {
	plain, err := json.Marshal(TextContent("hi"))
	require.NoError(t, err)
	require.JSONEq(t, `"hi"`, string(plain))

	withImage, err := json.Marshal(ImageContent("what is this", "https://example.com/cat.jpg"))
	require.NoError(t, err)
	require.JSONEq(t, `[{"type":"text","text":"what is this"},{"type":"image_url","image_url":{"url":"https://example.com/cat.jpg"}}]`, string(withImage))

	var decoded Content
	require.NoError(t, json.Unmarshal(withImage, &decoded))
	require.False(t, decoded.IsText())
	require.Equal(t, "what is this", decoded.Text())
}
