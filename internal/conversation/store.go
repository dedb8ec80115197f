package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type StoreConfig struct {
	// Voices maps persona names to synthesis voice IDs.
	Voices         map[string]string
	DefaultVoice   string
	ContextDir     string
	DefaultContext string
	// Autosave writes a "<name>_messages" snapshot after every change.
	Autosave bool
}

// Store owns every conversation of a session and the pointer to the active
// one. Conversations are kept in memory for the life of the process; the
// Persister only backs save, load and autosave.
type Store struct {
	mu            sync.Mutex
	cfg           StoreConfig
	persister     Persister
	conversations map[string]*Conversation
	current       *Conversation
	logger        *slog.Logger
}

func NewStore(cfg StoreConfig, persister Persister, logger *slog.Logger) *Store {
	if persister == nil {
		persister = NewMemoryPersister()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cfg:           cfg,
		persister:     persister,
		conversations: make(map[string]*Conversation),
		logger:        logger.With("component", "conversation"),
	}
}

// Current returns a copy of the active conversation.
func (s *Store) Current() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Conversation{}
	}
	return s.current.clone()
}

// Messages returns a copy of the active history.
func (s *Store) Messages() []Message {
	return s.Current().Messages
}

// Switch activates the named conversation, creating it with a fresh seed when
// it has not been used in this session. It reports whether it resumed.
func (s *Store) Switch(ctx context.Context, name string) (Conversation, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Conversation{}, false, errors.New("conversation name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[name]; ok {
		s.current = conv
		s.logger.Info("resuming conversation", "name", name)
		return conv.clone(), true, nil
	}

	conv := &Conversation{
		Name:    name,
		VoiceID: s.resolveVoice(name),
		Context: s.resolveContext(name),
	}
	conv.Messages = []Message{s.seed(conv.Context)}
	s.conversations[name] = conv
	s.current = conv
	s.logger.Info("starting conversation", "name", name, "voice_id", conv.VoiceID)
	return conv.clone(), false, s.autosaveLocked(ctx)
}

// Append adds a message to the active conversation.
func (s *Store) Append(ctx context.Context, role Role, content Content) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Message{}, errors.New("no active conversation")
	}
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.current.Messages = append(s.current.Messages, msg)
	return msg, s.autosaveLocked(ctx)
}

// Undo drops the last exchange, never the seed message. It returns how many
// messages were removed: two normally, one when only one follows the seed,
// zero on a fresh conversation.
func (s *Store) Undo(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0, nil
	}
	n := min(2, len(s.current.Messages)-1)
	if n <= 0 {
		return 0, nil
	}
	s.current.Messages = s.current.Messages[:len(s.current.Messages)-n]
	return n, s.autosaveLocked(ctx)
}

// Clear resets the active conversation to its seed message.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	s.current.Messages = []Message{s.seed(s.current.Context)}
	return s.autosaveLocked(ctx)
}

// Save snapshots the active conversation under name, or under the
// conversation's own name when name is empty.
func (s *Store) Save(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", errors.New("no active conversation")
	}
	key := s.snapshotKey(name)
	if err := s.persister.SaveSnapshot(ctx, key, s.current.clone()); err != nil {
		return "", fmt.Errorf("save %q: %w", key, err)
	}
	return key, nil
}

// Load replaces the active history with a saved snapshot. On failure the
// conversation is left unchanged.
func (s *Store) Load(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", errors.New("no active conversation")
	}
	key := s.snapshotKey(name)
	snap, err := s.persister.LoadSnapshot(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load %q: %w", key, err)
	}
	if len(snap.Messages) == 0 {
		return "", fmt.Errorf("load %q: snapshot has no messages", key)
	}
	s.current.Messages = snap.clone().Messages
	return key, s.autosaveLocked(ctx)
}

func (s *Store) snapshotKey(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return s.current.Name
}

func (s *Store) autosaveLocked(ctx context.Context) error {
	if !s.cfg.Autosave {
		return nil
	}
	key := s.current.Name + "_messages"
	if err := s.persister.SaveSnapshot(ctx, key, s.current.clone()); err != nil {
		return fmt.Errorf("autosave %q: %w", key, err)
	}
	return nil
}

func (s *Store) seed(text string) Message {
	return Message{ID: uuid.NewString(), Role: RoleUser, Content: TextContent(text), CreatedAt: time.Now().UTC()}
}

func (s *Store) resolveVoice(name string) string {
	if id, ok := s.cfg.Voices[strings.ToLower(name)]; ok {
		return id
	}
	fallback := s.cfg.Voices[strings.ToLower(s.cfg.DefaultVoice)]
	if fallback == "" {
		fallback = s.cfg.DefaultVoice
	}
	s.logger.Info("no voice for conversation, using default", "name", name, "voice_id", fallback)
	return fallback
}

func (s *Store) resolveContext(name string) string {
	if s.cfg.ContextDir != "" {
		raw, err := os.ReadFile(filepath.Join(s.cfg.ContextDir, name+"_context.txt"))
		if err == nil {
			return strings.TrimSpace(string(raw))
		}
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("read context file", "name", name, "error", err)
		}
	}
	return strings.TrimSpace(s.cfg.DefaultContext + " Your name is " + name + ".")
}
