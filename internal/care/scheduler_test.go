package care

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/carewatch-core/internal/backend"
)

func TestNewScheduler_InvalidExpression(t *testing.T) {
	scope, _, _ := newTestScope()

	for _, expr := range []string{"", "every minute", "* * *", "@every nope"} {
		if _, err := NewScheduler(scope, expr); !errors.Is(err, ErrInvalidSchedule) {
			t.Errorf("NewScheduler(%q) error = %v, want ErrInvalidSchedule", expr, err)
		}
	}
}

func TestScheduler_RunsHydration(t *testing.T) {
	scope, _, cs := newTestScope(backend.Record{"person_id": "P1"})

	s, err := NewScheduler(scope, "@every 1s")
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrSchedulerRunning) {
		t.Errorf("second Start() error = %v, want ErrSchedulerRunning", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for scope.LastSyncedAt().IsZero() {
		if time.Now().After(deadline) {
			t.Fatal("scheduled hydration did not run")
		}
		time.Sleep(50 * time.Millisecond)
	}

	s.Stop()
	if s.Running() {
		t.Error("Running() = true after Stop")
	}
	if cs.requests() == 0 {
		t.Error("hydration issued no requests")
	}

	// Stop is idempotent.
	s.Stop()
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	scope, _, _ := newTestScope()
	s, err := NewScheduler(scope, "@hourly")
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.Stop()
	if s.Running() {
		t.Error("Running() = true")
	}
}
