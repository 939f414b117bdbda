package web

import (
	"fmt"
	"testing"
	"time"
)

func TestStateStore(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStateStore()
	s.now = func() time.Time { return now }

	s.Add("a")
	s.Add("b")

	if !s.Consume("a") {
		t.Error("Consume(a) = false, want true")
	}
	if s.Consume("a") {
		t.Error("second Consume(a) = true, want single use")
	}
	if s.Consume("") {
		t.Error("Consume(\"\") = true")
	}
	if s.Consume("never-issued") {
		t.Error("Consume(never-issued) = true")
	}

	now = now.Add(stateTTL)
	if s.Consume("b") {
		t.Error("Consume(b) after TTL = true, want expired")
	}
}

func TestStateStore_PrunesExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStateStore()
	s.now = func() time.Time { return now }

	for _, st := range []string{"a", "b", "c"} {
		s.Add(st)
	}
	now = now.Add(stateTTL + time.Second)
	s.Add("d")

	if got := s.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 after pruning", got)
	}
}

func TestStateStore_EvictsOldestBeyondCap(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStateStore()
	s.now = func() time.Time { return now }

	total := maxStates + 10
	for i := 0; i < total; i++ {
		s.Add(fmt.Sprintf("state-%d", i))
		now = now.Add(time.Second)
	}

	if got := s.Len(); got != maxStates {
		t.Fatalf("Len() = %d, want %d", got, maxStates)
	}
	if s.Consume("state-0") {
		t.Error("Consume(state-0) = true, want oldest evicted")
	}
	if !s.Consume(fmt.Sprintf("state-%d", total-1)) {
		t.Error("newest state was evicted")
	}
}
