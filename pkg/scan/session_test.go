package scan

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/HoldfastAI/bastion/pkg/patterns"
)

func testCatalog(t *testing.T) *patterns.Catalog {
	t.Helper()
	catalog, err := patterns.NewCatalog()
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	return catalog
}

// fakeClock steps time manually.
type fakeClock struct {
	t time.Time
}

// The base is wall time so store-level staleness checks, which use the real
// clock, do not see fake-clock records as ancient.
func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now()}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func fakeScore(score float64) *ThreatScore {
	return &ThreatScore{Score: score, Level: RiskLevelForScore(score)}
}

func newTestTracker(t *testing.T, clock *fakeClock, timeout time.Duration, maxTurns int) *Tracker {
	t.Helper()
	tracker, err := NewTracker("s-1", testCatalog(t), timeout, maxTurns, WithClock(clock.now))
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}
	return tracker
}

func TestNewTrackerValidation(t *testing.T) {
	catalog := testCatalog(t)
	cases := []struct {
		name     string
		id       string
		timeout  time.Duration
		maxTurns int
	}{
		{"empty id", "", time.Minute, 10},
		{"zero timeout", "s", 0, 10},
		{"negative max turns", "s", time.Minute, -1},
	}
	for _, tc := range cases {
		if _, err := NewTracker(tc.id, catalog, tc.timeout, tc.maxTurns); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestCumulativeRiskRecencyWeighting(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(t, clock, time.Hour, 100)

	if _, err := tracker.AddTurn("a", "", fakeScore(10)); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if math.Abs(tracker.CumulativeRisk-10) > 1e-9 {
		t.Errorf("after turn 1: cumulative = %f, want 10", tracker.CumulativeRisk)
	}

	clock.advance(10 * time.Second)
	if _, err := tracker.AddTurn("b", "", fakeScore(20)); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	// (10*1 + 20*1.2) / (1 + 1.2)
	want := 34.0 / 2.2
	if math.Abs(tracker.CumulativeRisk-want) > 1e-9 {
		t.Errorf("after turn 2: cumulative = %f, want %f", tracker.CumulativeRisk, want)
	}
}

func TestEscalationDetection(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(t, clock, time.Hour, 100)

	for _, score := range []float64{10, 10, 60} {
		clock.advance(5 * time.Second)
		result, err := tracker.AddTurn("x", "", fakeScore(score))
		if err != nil {
			t.Fatalf("AddTurn: %v", err)
		}
		if score < 60 && result.EscalationDetected {
			t.Error("escalation flagged too early")
		}
	}
	if !tracker.EscalationDetected {
		t.Fatal("expected escalation: 60 > 10 * 1.5")
	}
	if len(tracker.PivotPoints) == 0 || tracker.PivotPoints[0] != 2 {
		t.Errorf("pivot points = %v, want [2]", tracker.PivotPoints)
	}
}

func TestEscalationFlagIsOneWay(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(t, clock, time.Hour, 100)

	for _, score := range []float64{10, 10, 60, 5, 5} {
		clock.advance(5 * time.Second)
		if _, err := tracker.AddTurn("x", "", fakeScore(score)); err != nil {
			t.Fatalf("AddTurn: %v", err)
		}
	}
	if !tracker.EscalationDetected {
		t.Error("escalation flag must persist after cooldown turns")
	}
}

func TestNoEscalationOnFlatScores(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(t, clock, time.Hour, 100)

	for _, score := range []float64{10, 10, 12} {
		clock.advance(5 * time.Second)
		if _, err := tracker.AddTurn("x", "", fakeScore(score)); err != nil {
			t.Fatalf("AddTurn: %v", err)
		}
	}
	if tracker.EscalationDetected {
		t.Error("12 is not an escalation over 10")
	}
}

func TestTurnCapacity(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(t, clock, time.Hour, 2)

	for i := 0; i < 2; i++ {
		clock.advance(time.Second * 3)
		if _, err := tracker.AddTurn("x", "", fakeScore(5)); err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
	}
	_, err := tracker.AddTurn("x", "", fakeScore(5))
	reason, ok := IsSessionRejected(err)
	if !ok || reason != ReasonCapacity {
		t.Fatalf("expected capacity rejection, got %v", err)
	}
}

func TestLazyTimeout(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(t, clock, 10*time.Minute, 100)

	if _, err := tracker.AddTurn("x", "", fakeScore(5)); err != nil {
		t.Fatalf("turn 1: %v", err)
	}

	clock.advance(11 * time.Minute)
	_, err := tracker.AddTurn("x", "", fakeScore(5))
	reason, ok := IsSessionRejected(err)
	if !ok || reason != ReasonTimedOut {
		t.Fatalf("expected timed_out rejection, got %v", err)
	}
	if tracker.Active {
		t.Error("timeout must flip the session inactive")
	}

	// subsequent turns report ended, not timed_out
	_, err = tracker.AddTurn("x", "", fakeScore(5))
	reason, ok = IsSessionRejected(err)
	if !ok || reason != ReasonEnded {
		t.Fatalf("expected ended rejection, got %v", err)
	}
}

func TestEndIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(t, clock, time.Hour, 100)

	if !tracker.End() {
		t.Fatal("first End should return true")
	}
	if tracker.End() {
		t.Fatal("second End should return false")
	}
	_, err := tracker.AddTurn("x", "", fakeScore(5))
	var se *SessionStateError
	if !errors.As(err, &se) || se.Reason != ReasonEnded {
		t.Fatalf("expected ended rejection, got %v", err)
	}
}

func TestAnalyzeIntervalsAndRapidFire(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(t, clock, time.Hour, 100)

	intervals := []time.Duration{0, 4 * time.Second, 1 * time.Second, 5 * time.Second}
	for i, d := range intervals {
		clock.advance(d)
		if _, err := tracker.AddTurn("x", "", fakeScore(float64(10+i))); err != nil {
			t.Fatalf("AddTurn: %v", err)
		}
	}

	a := tracker.Analyze()
	if !a.RapidFire {
		t.Error("1s interval should flag rapid fire")
	}
	wantAvg := (4.0 + 1.0 + 5.0) / 3.0
	if math.Abs(a.AvgTurnInterval-wantAvg) > 1e-9 {
		t.Errorf("avg interval = %f, want %f", a.AvgTurnInterval, wantAvg)
	}
	if a.HighestRiskTurn != 4 {
		t.Errorf("highest risk turn = %d, want 4", a.HighestRiskTurn)
	}
}

func TestAnalyzeEscalationBoost(t *testing.T) {
	clock := newFakeClock()

	flat := newTestTracker(t, clock, time.Hour, 100)
	escalated := newTestTracker(t, clock, time.Hour, 100)

	for _, s := range []float64{20, 20, 20} {
		clock.advance(5 * time.Second)
		if _, err := flat.AddTurn("x", "", fakeScore(s)); err != nil {
			t.Fatalf("flat AddTurn: %v", err)
		}
	}
	for _, s := range []float64{10, 12, 40} {
		clock.advance(5 * time.Second)
		if _, err := escalated.AddTurn("x", "", fakeScore(s)); err != nil {
			t.Fatalf("escalated AddTurn: %v", err)
		}
	}

	fa := flat.Analyze()
	ea := escalated.Analyze()
	if fa.EscalationDetected {
		t.Error("flat session should not escalate")
	}
	if !ea.EscalationDetected {
		t.Fatal("escalated session should be flagged")
	}
	if ea.FinalRisk <= ea.CumulativeRisk {
		t.Errorf("final risk %f should exceed cumulative %f after boost",
			ea.FinalRisk, ea.CumulativeRisk)
	}
}

func TestAccumulatedContextTrimming(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(t, clock, time.Hour, 1000)

	long := make([]byte, 900)
	for i := range long {
		long[i] = 'a'
	}
	for i := 0; i < 10; i++ {
		clock.advance(time.Second * 3)
		if _, err := tracker.AddTurn(string(long), "ok", fakeScore(1)); err != nil {
			t.Fatalf("AddTurn: %v", err)
		}
	}
	if len(tracker.AccumulatedContext) > maxAccumulatedContext+3 {
		t.Errorf("accumulated context length %d exceeds cap", len(tracker.AccumulatedContext))
	}
	if tracker.AccumulatedContext[:3] != "..." {
		t.Error("trimmed context should start with ellipsis")
	}
}
