package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusThinking Status = "thinking"
	StatusStopped  Status = "stopped"
)

// Snapshot is the externally visible state of the session loop. It never
// carries conversation content.
type Snapshot struct {
	Status         Status    `json:"status"`
	Conversation   string    `json:"conversation"`
	ActiveTurnID   string    `json:"active_turn_id,omitempty"`
	Turns          int       `json:"turns"`
	FailedTurns    int       `json:"failed_turns"`
	Truncations    int       `json:"truncations"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Tracker records turn bookkeeping written by the coordinator and read by
// the control surface.
type Tracker struct {
	mu    sync.RWMutex
	state Snapshot
}

func NewTracker() *Tracker {
	now := time.Now().UTC()
	return &Tracker{state: Snapshot{Status: StatusIdle, StartedAt: now, LastActivityAt: now}}
}

func (t *Tracker) SetConversation(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Conversation = name
	t.state.LastActivityAt = time.Now().UTC()
}

// StartTurn marks a chat turn in flight and returns its ID.
func (t *Tracker) StartTurn() string {
	id := uuid.NewString()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Status = StatusThinking
	t.state.ActiveTurnID = id
	t.state.LastActivityAt = time.Now().UTC()
	return id
}

func (t *Tracker) FinishTurn(turnID string, truncated bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.ActiveTurnID != turnID {
		return
	}
	t.state.Turns++
	if err != nil {
		t.state.FailedTurns++
	}
	if truncated {
		t.state.Truncations++
	}
	t.state.Status = StatusIdle
	t.state.ActiveTurnID = ""
	t.state.LastActivityAt = time.Now().UTC()
}

func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Status = StatusStopped
	t.state.ActiveTurnID = ""
	t.state.LastActivityAt = time.Now().UTC()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}
