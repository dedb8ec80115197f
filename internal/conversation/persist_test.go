package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func samplePersistedConversation() Conversation {
	return Conversation{
		Name:    "sally",
		VoiceID: "voice-sally",
		Context: "You are Sally.",
		Messages: []Message{
			{ID: "m1", Role: RoleUser, Content: TextContent("You are Sally.")},
			{ID: "m2", Role: RoleUser, Content: ImageContent("look", "data:image/jpeg;base64,AAAA")},
		},
	}
}

func TestPersisters(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		open func(t *testing.T) Persister
	}{
		{"memory", func(t *testing.T) Persister { return NewMemoryPersister() }},
		{"file", func(t *testing.T) Persister {
			p, err := NewFilePersister(t.TempDir())
			require.NoError(t, err)
			return p
		}},
		{"sqlite", func(t *testing.T) Persister {
			p, err := NewSQLitePersister(ctx, filepath.Join(t.TempDir(), "voxchat.db"))
			require.NoError(t, err)
			return p
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.open(t)
			defer p.Close()

			_, err := p.LoadSnapshot(ctx, "sally")
			require.True(t, errors.Is(err, ErrNotFound), "LoadSnapshot() error = %v, want ErrNotFound", err)

			require.NoError(t, p.SaveSnapshot(ctx, "sally", samplePersistedConversation()))
			updated := samplePersistedConversation()
			updated.Messages = updated.Messages[:1]
			require.NoError(t, p.SaveSnapshot(ctx, "sally", updated))

			got, err := p.LoadSnapshot(ctx, "sally")
			require.NoError(t, err)
			require.Equal(t, "voice-sally", got.VoiceID)
			require.Len(t, got.Messages, 1)
			require.Equal(t, "You are Sally.", got.Messages[0].Content.Text())
		})
	}
}

func TestFilePersisterRejectsPathNames(t *testing.T) {
	p, err := NewFilePersister(t.TempDir())
	require.NoError(t, err)
	require.Error(t, p.SaveSnapshot(context.Background(), "../escape", Conversation{}))
}

func TestNewPersisterSelectsDriver(t *testing.T) {
	ctx := context.Background()
	p, err := NewPersister(ctx, "", t.TempDir(), "", "")
	require.NoError(t, err)
	require.IsType(t, &FilePersister{}, p)

	_, err = NewPersister(ctx, "postgres", "", "", "")
	require.Error(t, err)

	_, err = NewPersister(ctx, "redis", "", "", "")
	require.Error(t, err)
}
