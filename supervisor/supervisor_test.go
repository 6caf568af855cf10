package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMemoryAdvisoryThreshold(t *testing.T) {
	if got := MemoryAdvisory(5); got != "" {
		t.Fatalf("expected no advisory for n<=10, got %q", got)
	}
	if got := MemoryAdvisory(30); got == "" {
		t.Fatal("expected an advisory for n=30")
	}
}

// TestStartSpawnsAllChildren uses `yes` as a stand-in worker binary —
// it merely repeats whatever operands spawn() hands it (modelsDir,
// host, port) and runs until killed, which is all Start/Stop care
// about at the process-group level.
func TestStartSpawnsAllChildren(t *testing.T) {
	s := New(zerolog.Nop(), "yes", "unused", "unused", 8070, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(s.children))
	}

	s.Stop()

	for _, c := range s.children {
		select {
		case <-c.exited:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected child %d to have exited after Stop", c.id)
		}
	}
}

// TestWatchDetectsUnexpectedDeath uses `true` as the worker binary —
// it exits almost instantly regardless of the operands it receives,
// so Watch should observe the unexpected mass exit and return on its
// own, without the context ever being cancelled.
func TestWatchDetectsUnexpectedDeath(t *testing.T) {
	s := New(zerolog.Nop(), "true", "unused", "unused", 8070, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Watch(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("expected Watch to return once the short-lived child exited")
	}
}

func TestAllExitedFalseWhenNoChildren(t *testing.T) {
	s := New(zerolog.Nop(), "true", "unused", "unused", 8070, 0)
	if s.allExited() {
		t.Fatal("expected allExited to be false with zero children")
	}
}
