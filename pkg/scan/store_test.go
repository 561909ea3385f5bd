package scan

import (
	"context"
	"testing"
	"time"
)

func testRecord(id string) *SessionRecord {
	now := time.Now()
	return &SessionRecord{
		ID:           id,
		StartTime:    now,
		LastActivity: now,
		Active:       true,
		Timeout:      30 * time.Minute,
		MaxTurns:     100,
		Turns: []RecordedTurn{
			{Number: 1, Timestamp: now, Prompt: "hello", RiskScore: 0},
		},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if rec, err := s.Get(ctx, "missing"); rec != nil || err != nil {
		t.Fatalf("Get(missing) = %v, %v; want nil, nil", rec, err)
	}

	rec := testRecord("s-1")
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Get(ctx, "s-1")
	if err != nil || got == nil {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if got.ID != "s-1" || len(got.Turns) != 1 {
		t.Errorf("got record %+v", got)
	}

	if err := s.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := s.Get(ctx, "s-1"); got != nil {
		t.Error("record survived delete")
	}
}

func TestMemoryStoreRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if err := s.Save(ctx, nil); err == nil {
		t.Error("expected error for nil record")
	}
	if err := s.Save(ctx, &SessionRecord{}); err == nil {
		t.Error("expected error for empty session id")
	}
}

func TestMemoryStoreStaleRecordsInvisible(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithMaxAge(50 * time.Millisecond))
	defer s.Close()

	rec := testRecord("s-old")
	rec.LastActivity = time.Now().Add(-time.Second)
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, _ := s.Get(ctx, "s-old"); got != nil {
		t.Error("stale record should be invisible")
	}
}

func TestMemoryStoreCleanupLoop(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithMaxAge(20*time.Millisecond), WithCleanupInterval(10*time.Millisecond))
	defer s.Close()

	rec := testRecord("s-ttl")
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("cleanup loop never removed the expired record")
}

func TestMemoryStoreCloseIdempotent(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
