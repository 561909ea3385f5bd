package scan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/HoldfastAI/bastion/pkg/patterns"
)

// ============================================================================
// SESSION MANAGER
// ============================================================================
// The manager owns the session lifecycle: it scores incoming prompts, routes
// them into per-session trackers, and mirrors every mutation into the
// configured store. Sessions absent from local memory are rebuilt from their
// stored record by replaying recorded turns through the engine; scanning is
// deterministic, so the rebuilt tracker matches the original.

// managedSession serializes turn processing per session.
type managedSession struct {
	mu      sync.Mutex
	tracker *Tracker
}

// Manager exposes the session-level operations.
type Manager struct {
	engine *Engine
	store  SessionStore
	log    zerolog.Logger
	now    func() time.Time

	defaultTimeout  time.Duration
	defaultMaxTurns int
	chainOrder      ChainOrderPolicy

	mu    sync.Mutex
	local map[string]*managedSession
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStore sets the session store. Default is an in-memory store.
func WithStore(store SessionStore) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithManagerLogger attaches a logger.
func WithManagerLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithManagerClock injects a time source for the manager and its trackers.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithSessionDefaults sets the timeout and turn capacity used when
// StartSession receives zero values.
func WithSessionDefaults(timeout time.Duration, maxTurns int) ManagerOption {
	return func(m *Manager) {
		m.defaultTimeout = timeout
		m.defaultMaxTurns = maxTurns
	}
}

// WithManagerChainOrder sets the attack-chain stage-order policy for all
// sessions the manager starts.
func WithManagerChainOrder(policy ChainOrderPolicy) ManagerOption {
	return func(m *Manager) { m.chainOrder = policy }
}

// NewManager builds a session manager over engine.
func NewManager(engine *Engine, opts ...ManagerOption) (*Manager, error) {
	if engine == nil {
		return nil, &ValidationError{Field: "engine", Reason: "nil"}
	}
	m := &Manager{
		engine:          engine,
		log:             zerolog.Nop(),
		now:             time.Now,
		defaultTimeout:  DefaultTimeout,
		defaultMaxTurns: DefaultMaxTurns,
		local:           make(map[string]*managedSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	return m, nil
}

// StartSession creates a session and returns its ID. Zero timeout or
// maxTurns fall back to the manager defaults.
func (m *Manager) StartSession(ctx context.Context, timeout time.Duration, maxTurns int) (string, error) {
	if timeout == 0 {
		timeout = m.defaultTimeout
	}
	if maxTurns == 0 {
		maxTurns = m.defaultMaxTurns
	}

	id := uuid.NewString()
	tracker, err := NewTracker(id, m.engine.Catalog(), timeout, maxTurns,
		WithClock(m.now), WithChainOrder(m.chainOrder))
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.local[id] = &managedSession{tracker: tracker}
	m.mu.Unlock()

	if err := m.store.Save(ctx, snapshot(tracker)); err != nil {
		return "", err
	}

	m.log.Info().Str("session_id", id).
		Dur("timeout", timeout).Int("max_turns", maxTurns).
		Msg("session started")
	return id, nil
}

// AddTurn scores the prompt as user input and records the exchange.
func (m *Manager) AddTurn(ctx context.Context, id, prompt, response string) (*TurnResult, error) {
	ms, err := m.session(ctx, id)
	if err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	score := m.engine.Scan(prompt, patterns.ContextUserInput)
	result, err := ms.tracker.AddTurn(prompt, response, score)
	if err != nil {
		// a lazy timeout flips the tracker inactive; persist that
		if reason, ok := IsSessionRejected(err); ok && reason == ReasonTimedOut {
			if saveErr := m.store.Save(ctx, snapshot(ms.tracker)); saveErr != nil {
				m.log.Error().Err(saveErr).Str("session_id", id).Msg("persist timed-out session failed")
			}
		}
		return nil, err
	}

	if err := m.store.Save(ctx, snapshot(ms.tracker)); err != nil {
		return nil, err
	}

	m.log.Debug().Str("session_id", id).Int("turn", result.TurnNumber).
		Float64("score", score.Score).Float64("cumulative", result.CumulativeRisk).
		Msg("turn recorded")
	return result, nil
}

// AnalyzeSession returns the full assessment of a session.
func (m *Manager) AnalyzeSession(ctx context.Context, id string) (*ConversationAnalysis, error) {
	ms, err := m.session(ctx, id)
	if err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	wasActive := ms.tracker.Active
	analysis := ms.tracker.Analyze()
	if wasActive && !ms.tracker.Active {
		if err := m.store.Save(ctx, snapshot(ms.tracker)); err != nil {
			return nil, err
		}
	}
	return analysis, nil
}

// EndSession deactivates a session. Returns false if it was already
// inactive; a missing session is a NotFoundError.
func (m *Manager) EndSession(ctx context.Context, id string) (bool, error) {
	ms, err := m.session(ctx, id)
	if err != nil {
		return false, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	ended := ms.tracker.End()
	if ended {
		if err := m.store.Save(ctx, snapshot(ms.tracker)); err != nil {
			return false, err
		}
		m.log.Info().Str("session_id", id).Msg("session ended")
	}
	return ended, nil
}

// ActiveSessions returns the IDs of locally held active sessions.
func (m *Manager) ActiveSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for id, ms := range m.local {
		if ms.tracker.Active {
			ids = append(ids, id)
		}
	}
	return ids
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// session returns the local session, rebuilding it from the store when this
// node has never seen the ID.
func (m *Manager) session(ctx context.Context, id string) (*managedSession, error) {
	m.mu.Lock()
	if ms, ok := m.local[id]; ok {
		m.mu.Unlock()
		return ms, nil
	}
	m.mu.Unlock()

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &NotFoundError{SessionID: id}
	}

	tracker, err := m.rebuild(rec)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ms, ok := m.local[id]; ok {
		// lost the race to another goroutine; use theirs
		return ms, nil
	}
	ms := &managedSession{tracker: tracker}
	m.local[id] = ms
	m.log.Debug().Str("session_id", id).Int("turns", len(rec.Turns)).
		Msg("session rebuilt from store")
	return ms, nil
}

// rebuild replays a stored record into a fresh tracker.
func (m *Manager) rebuild(rec *SessionRecord) (*Tracker, error) {
	tracker, err := NewTracker(rec.ID, m.engine.Catalog(), rec.Timeout, rec.MaxTurns,
		WithClock(m.now), WithChainOrder(m.chainOrder))
	if err != nil {
		return nil, err
	}
	tracker.StartTime = rec.StartTime
	tracker.LastActivity = rec.StartTime

	for _, turn := range rec.Turns {
		score := m.engine.Scan(turn.Prompt, patterns.ContextUserInput)
		if _, err := tracker.AddTurnAt(turn.Prompt, turn.Response, score, turn.Timestamp); err != nil {
			return nil, err
		}
	}

	tracker.Active = rec.Active
	tracker.EndedAt = rec.EndedAt
	tracker.LastActivity = rec.LastActivity
	return tracker, nil
}

// snapshot captures a tracker as a storable record.
func snapshot(t *Tracker) *SessionRecord {
	rec := &SessionRecord{
		ID:           t.ID,
		StartTime:    t.StartTime,
		LastActivity: t.LastActivity,
		Active:       t.Active,
		EndedAt:      t.EndedAt,
		Timeout:      t.timeout,
		MaxTurns:     t.maxTurns,
		Turns:        make([]RecordedTurn, 0, len(t.Turns)),
	}
	for _, turn := range t.Turns {
		rec.Turns = append(rec.Turns, RecordedTurn{
			Number:    turn.Number,
			Timestamp: turn.Timestamp,
			Prompt:    turn.Prompt,
			Response:  turn.Response,
			RiskScore: turn.Score.Score,
		})
	}
	return rec
}
