package scan

import (
	"strconv"
	"time"

	"github.com/HoldfastAI/bastion/pkg/patterns"
)

// ============================================================================
// CONVERSATION TRACKER
// ============================================================================
// Per-session state machine. Turns are accepted only while the session is
// active, under capacity, and within the idle timeout; the timeout check is
// lazy and flips the session inactive on first access after expiry.

// Session sizing defaults.
const (
	DefaultTimeout  = 30 * time.Minute
	DefaultMaxTurns = 100

	// accumulated context keeps only the newest tail
	maxAccumulatedContext = 5000

	// recent window inspected for escalation
	escalationWindow = 3
	escalationRatio  = 1.5
)

// Final-risk boosts applied at analysis time.
const (
	chainBoost      = 1.5
	escalationBoost = 1.3
	erosionBoost    = 1.4
	erosionBoostMin = 50 // erosion score required for the boost
)

// Turn is one exchange in a session.
type Turn struct {
	Number    int          `json:"number"`
	Timestamp time.Time    `json:"timestamp"`
	Prompt    string       `json:"prompt"`
	Response  string       `json:"response,omitempty"`
	Score     *ThreatScore `json:"score"`
}

// Tracker holds one conversation's full detection state.
type Tracker struct {
	ID           string
	StartTime    time.Time
	LastActivity time.Time
	Active       bool
	EndedAt      time.Time

	Turns              []Turn
	CumulativeRisk     float64
	EscalationDetected bool
	PivotPoints        []int
	AccumulatedContext string

	timeout  time.Duration
	maxTurns int
	now      func() time.Time

	chains  *ChainDetector
	erosion *ErosionDetector
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock injects a time source. Production uses time.Now.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// WithChainOrder sets the stage-order policy for attack-chain matching.
func WithChainOrder(policy ChainOrderPolicy) TrackerOption {
	return func(t *Tracker) { t.chains.orderPol = policy }
}

// NewTracker starts a session. timeout and maxTurns must be positive.
func NewTracker(id string, catalog *patterns.Catalog, timeout time.Duration, maxTurns int, opts ...TrackerOption) (*Tracker, error) {
	if id == "" {
		return nil, &ValidationError{Field: "session_id", Reason: "empty"}
	}
	if timeout <= 0 {
		return nil, &ValidationError{Field: "timeout", Reason: "must be positive"}
	}
	if maxTurns <= 0 {
		return nil, &ValidationError{Field: "max_turns", Reason: "must be positive"}
	}

	t := &Tracker{
		ID:       id,
		Active:   true,
		timeout:  timeout,
		maxTurns: maxTurns,
		now:      time.Now,
		chains:   NewChainDetector(catalog),
		erosion:  NewErosionDetector(catalog),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.StartTime = t.now()
	t.LastActivity = t.StartTime
	return t, nil
}

// AddTurn records one exchange whose prompt has already been scored.
func (t *Tracker) AddTurn(prompt, response string, score *ThreatScore) (*TurnResult, error) {
	return t.addTurnAt(prompt, response, score, t.now())
}

// AddTurnAt records an exchange at an explicit timestamp. Used when
// replaying imported conversations; detection state converges to the same
// result as live tracking.
func (t *Tracker) AddTurnAt(prompt, response string, score *ThreatScore, at time.Time) (*TurnResult, error) {
	return t.addTurnAt(prompt, response, score, at)
}

func (t *Tracker) addTurnAt(prompt, response string, score *ThreatScore, at time.Time) (*TurnResult, error) {
	if !t.Active {
		return nil, &SessionStateError{SessionID: t.ID, Reason: ReasonEnded}
	}
	if len(t.Turns) >= t.maxTurns {
		return nil, &SessionStateError{SessionID: t.ID, Reason: ReasonCapacity}
	}
	if at.Sub(t.LastActivity) > t.timeout {
		t.Active = false
		t.EndedAt = at
		return nil, &SessionStateError{SessionID: t.ID, Reason: ReasonTimedOut}
	}
	if score == nil {
		return nil, &ValidationError{Field: "score", Reason: "nil"}
	}

	n := len(t.Turns) + 1
	turn := Turn{
		Number:    n,
		Timestamp: at,
		Prompt:    prompt,
		Response:  response,
		Score:     score,
	}
	t.Turns = append(t.Turns, turn)
	t.LastActivity = at

	// Recency-weighted cumulative risk: newer turns carry more weight.
	w := 1 + 0.1*float64(n)
	t.CumulativeRisk = (t.CumulativeRisk*float64(n-1) + score.Score*w) / (float64(n-1) + w)

	t.detectEscalation()
	t.appendContext(turn)

	normalized := Normalize(prompt)
	turnErosion, critical := t.erosion.ObserveTurn(n, normalized, score.Score)
	if critical {
		t.PivotPoints = appendUnique(t.PivotPoints, n)
	}

	newChains := t.chains.Observe(t.Turns, t.EscalationDetected)

	return &TurnResult{
		SessionID:          t.ID,
		TurnNumber:         n,
		Score:              score,
		CumulativeRisk:     t.CumulativeRisk,
		EscalationDetected: t.EscalationDetected,
		NewChains:          newChains,
		TurnErosion:        turnErosion,
		ErosionScore:       t.erosion.SessionScore(),
		CriticalPoint:      critical,
	}, nil
}

// detectEscalation compares the newest turn against the one before it within
// the recent window. The flag is one-way: once a session escalates it stays
// marked even if later turns cool down.
func (t *Tracker) detectEscalation() {
	n := len(t.Turns)
	if n <= 2 {
		return
	}
	recent := t.Turns
	if n > escalationWindow {
		recent = t.Turns[n-escalationWindow:]
	}
	last := recent[len(recent)-1].Score.Score
	prev := recent[len(recent)-2].Score.Score
	if last > prev*escalationRatio {
		t.EscalationDetected = true
		t.PivotPoints = appendUnique(t.PivotPoints, n-1)
	}
}

func (t *Tracker) appendContext(turn Turn) {
	label := "\n[Turn " + strconv.Itoa(turn.Number) + "] "
	t.AccumulatedContext += label + "User: " + turn.Prompt
	if turn.Response != "" {
		t.AccumulatedContext += label + "AI: " + turn.Response
	}
	if len(t.AccumulatedContext) > maxAccumulatedContext {
		t.AccumulatedContext = "..." + t.AccumulatedContext[len(t.AccumulatedContext)-maxAccumulatedContext:]
	}
}

// End deactivates the session. Returns false if it was already inactive.
func (t *Tracker) End() bool {
	if !t.Active {
		return false
	}
	t.Active = false
	t.EndedAt = t.now()
	return true
}

// Analyze produces the full session assessment. Safe to call on ended or
// timed-out sessions; calling it on an expired active session flips it
// inactive first.
func (t *Tracker) Analyze() *ConversationAnalysis {
	if t.Active && t.now().Sub(t.LastActivity) > t.timeout {
		t.Active = false
		t.EndedAt = t.now()
	}

	a := &ConversationAnalysis{
		SessionID:          t.ID,
		Active:             t.Active,
		TurnCount:          len(t.Turns),
		StartTime:          t.StartTime,
		LastActivity:       t.LastActivity,
		CumulativeRisk:     t.CumulativeRisk,
		EscalationDetected: t.EscalationDetected,
		PivotPoints:        t.PivotPoints,
		Chains:             t.chains.Detected(),
		Erosion:            t.erosion.Analysis(len(t.Turns)),
	}

	if len(t.Turns) > 1 {
		var total float64
		for i := 1; i < len(t.Turns); i++ {
			interval := t.Turns[i].Timestamp.Sub(t.Turns[i-1].Timestamp).Seconds()
			total += interval
			if interval < 2.0 {
				a.RapidFire = true
			}
		}
		a.AvgTurnInterval = total / float64(len(t.Turns)-1)
	}

	for _, turn := range t.Turns {
		if turn.Score.Score > a.HighestRiskScore {
			a.HighestRiskScore = turn.Score.Score
			a.HighestRiskTurn = turn.Number
		}
	}

	final := t.CumulativeRisk
	if len(a.Chains) > 0 {
		final *= chainBoost
	}
	if a.EscalationDetected {
		final *= escalationBoost
	}
	if a.Erosion != nil && a.Erosion.Score > erosionBoostMin {
		final *= erosionBoost
	}
	if final > 100 {
		final = 100
	}
	a.FinalRisk = final
	a.Level = RiskLevelForScore(final)

	return a
}

// TurnCount returns the number of recorded turns.
func (t *Tracker) TurnCount() int { return len(t.Turns) }

func appendUnique(s []int, v int) []int {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
