package scan

import (
	"context"
	"sync"
	"time"
)

// ============================================================================
// SESSION STORE
// ============================================================================
// Stores hold serializable session records, not live trackers. Detection
// state is rebuilt deterministically by replaying recorded turns through the
// engine, so any node holding the record can resume a session.

// RecordedTurn is the persisted form of one turn.
type RecordedTurn struct {
	Number    int       `json:"number"`
	Timestamp time.Time `json:"timestamp"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response,omitempty"`
	RiskScore float64   `json:"risk_score"`
}

// SessionRecord is the persisted form of a session.
type SessionRecord struct {
	ID           string         `json:"id"`
	StartTime    time.Time      `json:"start_time"`
	LastActivity time.Time      `json:"last_activity"`
	Active       bool           `json:"active"`
	EndedAt      time.Time      `json:"ended_at,omitempty"`
	Timeout      time.Duration  `json:"timeout"`
	MaxTurns     int            `json:"max_turns"`
	Turns        []RecordedTurn `json:"turns"`
}

// SessionStore persists session records. Get returns (nil, nil) when the ID
// has no record; not found is not an error at this layer.
type SessionStore interface {
	Get(ctx context.Context, id string) (*SessionRecord, error)
	Save(ctx context.Context, rec *SessionRecord) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore is a thread-safe in-memory SessionStore with TTL cleanup.
// Suitable for single-node deployments; use RedisSessionStore or
// PostgresSessionStore when sessions must survive the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionRecord

	maxAge     time.Duration
	cleanupTTL time.Duration

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMaxAge sets how long idle records live before cleanup.
func WithMaxAge(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.maxAge = d }
}

// WithCleanupInterval sets how often the cleanup routine runs.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.cleanupTTL = d }
}

// NewMemoryStore creates the store and starts its cleanup goroutine.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		sessions:    make(map[string]*SessionRecord),
		maxAge:      1 * time.Hour,
		cleanupTTL:  5 * time.Minute,
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Get retrieves a record by ID. Returns nil, nil if not found or stale.
func (s *MemoryStore) Get(_ context.Context, id string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	// Stale records are invisible; actual removal happens in cleanupLoop.
	if time.Since(rec.LastActivity) > s.maxAge {
		return nil, nil
	}
	return rec, nil
}

// Save creates or replaces a record.
func (s *MemoryStore) Save(_ context.Context, rec *SessionRecord) error {
	if rec == nil {
		return &ValidationError{Field: "record", Reason: "nil"}
	}
	if rec.ID == "" {
		return &ValidationError{Field: "record", Reason: "empty session id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.ID] = rec
	return nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

// Len returns the number of stored records, stale ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, rec := range s.sessions {
		if now.Sub(rec.LastActivity) > s.maxAge {
			delete(s.sessions, id)
		}
	}
}

var _ SessionStore = (*MemoryStore)(nil)
