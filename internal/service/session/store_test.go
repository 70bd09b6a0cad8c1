package session

import (
	"context"
	"testing"
	"time"

	"github.com/konfliktlab/konfliktsim/backend/internal/model/conversation"
)

func seedState() conversation.SessionState {
	st := conversation.SessionState{
		Mode:        conversation.ModeMediator,
		PersonaA:    conversation.AgentPersona{Name: "Lisa"},
		PersonaB:    conversation.AgentPersona{Name: "Thomas"},
		NextSpeaker: conversation.SpeakerAgentA,
	}
	st.Append(conversation.Message{Speaker: conversation.SpeakerSystem, Text: "[SZENARIO: Test]"})
	return st
}

func TestCreateAssignsIdentity(t *testing.T) {
	s := NewStore()

	created, err := s.Create(context.Background(), seedState())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected assigned id")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps, got %+v", created)
	}
	if s.Len() != 1 {
		t.Fatalf("expected one live session, got %d", s.Len())
	}
}

func TestCreateRequiresHumanRoleInParticipantMode(t *testing.T) {
	s := NewStore()

	st := seedState()
	st.Mode = conversation.ModeParticipant
	if _, err := s.Create(context.Background(), st); err != ErrHumanRoleRequired {
		t.Fatalf("expected ErrHumanRoleRequired, got %v", err)
	}

	st.HumanRole = conversation.SpeakerAgentB
	if _, err := s.Create(context.Background(), st); err != nil {
		t.Fatalf("create failed: %v", err)
	}
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	s := NewStore()
	created, _ := s.Create(context.Background(), seedState())

	first, err := s.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	first.Transcript[0].Text = "manipuliert"
	first.PersonaA.Name = "Nicht Lisa"

	second, _ := s.Get(context.Background(), created.ID)
	if second.Transcript[0].Text != "[SZENARIO: Test]" {
		t.Fatalf("live transcript must not alias snapshots, got %q", second.Transcript[0].Text)
	}
	if second.PersonaA.Name != "Lisa" {
		t.Fatalf("live persona must not alias snapshots, got %q", second.PersonaA.Name)
	}
}

func TestGetUnknownSession(t *testing.T) {
	s := NewStore()
	if _, err := s.Get(context.Background(), "missing"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMutateAppliesAndStamps(t *testing.T) {
	s := NewStore()
	created, _ := s.Create(context.Background(), seedState())

	before := created.UpdatedAt
	time.Sleep(time.Millisecond)

	updated, err := s.Mutate(context.Background(), created.ID, func(st *conversation.SessionState) error {
		st.Append(conversation.Message{Speaker: conversation.SpeakerAgentA, Text: "Hallo."})
		st.TurnCount++
		return nil
	})
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}
	if updated.TurnCount != 1 || len(updated.Transcript) != 2 {
		t.Fatalf("mutation not applied: %+v", updated)
	}
	if !updated.UpdatedAt.After(before) {
		t.Fatalf("updated_at must advance, got %v -> %v", before, updated.UpdatedAt)
	}

	live, _ := s.Get(context.Background(), created.ID)
	if live.TurnCount != 1 {
		t.Fatalf("mutation must hit the live state, got %+v", live)
	}
}

func TestMutateRollsNothingBackOnError(t *testing.T) {
	s := NewStore()
	created, _ := s.Create(context.Background(), seedState())

	wantErr := context.DeadlineExceeded
	if _, err := s.Mutate(context.Background(), created.ID, func(st *conversation.SessionState) error {
		return wantErr
	}); err != wantErr {
		t.Fatalf("expected fn error, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	s := NewStore()
	created, _ := s.Create(context.Background(), seedState())

	if err := s.Remove(context.Background(), created.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := s.Remove(context.Background(), created.ID); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
}

func TestInterruptLifecycle(t *testing.T) {
	s := NewStore()
	created, _ := s.Create(context.Background(), seedState())

	if s.Interrupted(created.ID) {
		t.Fatalf("fresh session must not be interrupted")
	}
	if s.Interrupt("missing") {
		t.Fatalf("interrupt on unknown session must report false")
	}

	if !s.Interrupt(created.ID) {
		t.Fatalf("interrupt rejected for live session")
	}
	if !s.Interrupted(created.ID) {
		t.Fatalf("interrupt flag not visible")
	}
	st, _ := s.Get(context.Background(), created.ID)
	if !st.StopRequested {
		t.Fatalf("interrupt must request the close-out evaluation")
	}

	s.ClearInterrupt(created.ID)
	if s.Interrupted(created.ID) {
		t.Fatalf("interrupt flag must clear")
	}
}

func TestBeginRunSerializesRuns(t *testing.T) {
	s := NewStore()
	created, _ := s.Create(context.Background(), seedState())

	release, err := s.BeginRun(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("begin run failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := s.BeginRun(context.Background(), created.ID)
		if err != nil {
			t.Errorf("second begin run failed: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		second()
	}()

	select {
	case <-acquired:
		t.Fatalf("second run must block until the first releases")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	release() // releasing twice is allowed

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second run never acquired the lock")
	}
}

func TestBeginRunUnknownSession(t *testing.T) {
	s := NewStore()
	if _, err := s.BeginRun(context.Background(), "missing"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	s := NewStore()
	stale, _ := s.Create(context.Background(), seedState())
	fresh, _ := s.Create(context.Background(), seedState())

	s.entries[stale.ID].lastTouch.Store(time.Now().Add(-time.Hour).UnixNano())

	if n := s.sweep(time.Now(), 30*time.Minute); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if _, err := s.Get(context.Background(), stale.ID); err != ErrSessionNotFound {
		t.Fatalf("stale session must be gone, got %v", err)
	}
	if _, err := s.Get(context.Background(), fresh.ID); err != nil {
		t.Fatalf("fresh session must survive, got %v", err)
	}
}

func TestSweepSkipsRunningSessions(t *testing.T) {
	s := NewStore()
	created, _ := s.Create(context.Background(), seedState())
	s.entries[created.ID].lastTouch.Store(time.Now().Add(-time.Hour).UnixNano())

	release, _ := s.BeginRun(context.Background(), created.ID)
	defer release()

	// BeginRun touched the session; age it again while the run holds the lock.
	s.entries[created.ID].lastTouch.Store(time.Now().Add(-time.Hour).UnixNano())

	if n := s.sweep(time.Now(), 30*time.Minute); n != 0 {
		t.Fatalf("running sessions must never be evicted, got %d", n)
	}
	if _, err := s.Get(context.Background(), created.ID); err != nil {
		t.Fatalf("session must survive the sweep, got %v", err)
	}
}
