package session

import (
	"context"
	"testing"
	"time"
)

func TestRegistryAddAndGet(t *testing.T) {
	r := NewRegistry(nil, nil)
	s := newTestSession(t, nil)

	if !r.Add(s) {
		t.Fatalf("first add failed")
	}
	if r.Add(s) {
		t.Errorf("duplicate add accepted")
	}
	if got, ok := r.Get("call_1"); !ok || got != s {
		t.Errorf("get = %v, %v", got, ok)
	}
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}
}

func TestRegistryPeekFallsBackToDurableStore(t *testing.T) {
	durable := newFakeDurable()
	r := NewRegistry(durable, nil)

	live := newTestSession(t, nil)
	r.Add(live)

	rec, err := r.Peek(context.Background(), "call_1", "biz_1")
	if err != nil || rec == nil {
		t.Fatalf("peek live: rec=%v err=%v", rec, err)
	}
	if rec.ID != "call_1" {
		t.Errorf("live peek id = %s", rec.ID)
	}

	// A session only present durably resolves through the store.
	other, err := New(Params{ID: "call_2", Business: testBusiness(), Durable: durable})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	other.SetStage(StageQuoting)
	waitForSaves(t, durable, 1)

	rec, err = r.Peek(context.Background(), "call_2", "biz_1")
	if err != nil || rec == nil {
		t.Fatalf("peek durable: rec=%v err=%v", rec, err)
	}

	rec, err = r.Peek(context.Background(), "call_unknown", "biz_1")
	if err != nil {
		t.Fatalf("peek unknown: %v", err)
	}
	if rec != nil {
		t.Errorf("unknown call resolved to %+v", rec)
	}
}

func waitForSaves(t *testing.T, durable *fakeDurable, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for durable.saveCount() < n && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if durable.saveCount() < n {
		t.Fatalf("durable saves = %d, want >= %d", durable.saveCount(), n)
	}
}

func TestRegistryScheduleRemoveHonorsGrace(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.RemovalGrace = 50 * time.Millisecond
	s := newTestSession(t, nil)
	r.Add(s)

	r.ScheduleRemove(s.ID())
	if _, ok := r.Get(s.ID()); !ok {
		t.Fatalf("session dropped before grace elapsed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.Count() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.Count() != 0 {
		t.Errorf("session not removed after grace")
	}
}

func TestRegistryDrainEndsLiveSessions(t *testing.T) {
	r := NewRegistry(nil, nil)
	s := newTestSession(t, nil)
	r.Add(s)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if s.Status() != StatusEnded {
		t.Errorf("session status = %s after drain, want ended", s.Status())
	}
	if r.Count() != 0 {
		t.Errorf("registry count = %d after drain, want 0", r.Count())
	}
}
