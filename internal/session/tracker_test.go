package session

import (
	"errors"
	"testing"
)

func TestTrackerTurns(t *testing.T) {
	tr := NewTracker()
	tr.SetConversation("nina")

	id := tr.StartTurn()
	if id == "" {
		t.Fatalf("turn ID should not be empty")
	}
	if got := tr.Snapshot(); got.Status != StatusThinking || got.ActiveTurnID != id {
		t.Fatalf("unexpected snapshot during turn: %+v", got)
	}

	tr.FinishTurn("stale-id", false, nil)
	if got := tr.Snapshot().Turns; got != 0 {
		t.Fatalf("Turns = %d after stale finish, want 0", got)
	}

	tr.FinishTurn(id, true, errors.New("boom"))
	got := tr.Snapshot()
	if got.Status != StatusIdle || got.ActiveTurnID != "" {
		t.Fatalf("unexpected snapshot after turn: %+v", got)
	}
	if got.Turns != 1 || got.FailedTurns != 1 || got.Truncations != 1 {
		t.Fatalf("counters = %d/%d/%d, want 1/1/1", got.Turns, got.FailedTurns, got.Truncations)
	}
	if got.Conversation != "nina" {
		t.Fatalf("Conversation = %q, want %q", got.Conversation, "nina")
	}

	tr.Stop()
	if got := tr.Snapshot().Status; got != StatusStopped {
		t.Fatalf("Status = %q, want %q", got, StatusStopped)
	}
}
