package neopaths

import (
	"context"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Dialer opens a new session against the graph database.
type Dialer func(ctx context.Context) (DBRunner, error)

// SessionManager owns the single live session shared by all searches.
//
// Queries run under a read lock; Reconnect takes the write lock, so a swap never
// happens while a query is in flight and no query ever sees a half-closed session.
// Each swap bumps a generation counter, which lets concurrent callers that observed
// the same failure collapse onto one reconnect.
type SessionManager struct {
	dial    Dialer
	logger  *zap.Logger
	metrics *Metrics

	mu     sync.RWMutex
	runner DBRunner
	gen    uint64
	closed bool
}

// NewSessionManager dials the initial session.
func NewSessionManager(ctx context.Context, dial Dialer, logger *zap.Logger, metrics *Metrics) (*SessionManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("opening graph session")
	runner, err := dial(ctx)
	if err != nil {
		return nil, classify("connect", err)
	}
	logger.Info("graph session established")
	return &SessionManager{dial: dial, logger: logger, metrics: metrics, runner: runner}, nil
}

// Generation returns the number of times the session has been replaced.
func (m *SessionManager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

// WithSession executes op against the current session. It returns the generation
// op ran against, which callers hand back to Reconnect when op failed with a
// reconnect-triggering error.
//
// Errors returned by the session's Run are classified into GraphErrors; errors op
// produces itself, such as decode failures, are returned as they are.
func (m *SessionManager) WithSession(ctx context.Context, op func(context.Context, DBRunner) error) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed || m.runner == nil {
		return m.gen, &GraphError{Op: "session", Kind: KindConnection, Err: ErrNoSession}
	}
	return m.gen, op(ctx, classifiedRunner{m.runner})
}

// classifiedRunner classifies the errors of the DBRunner it wraps.
type classifiedRunner struct {
	DBRunner
}

func (c classifiedRunner) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	res, err := c.DBRunner.Run(ctx, query, params)
	if err != nil {
		return nil, classify("run", err)
	}
	return res, nil
}

// Reconnect closes the session of generation observed and opens a new one. If the
// session has already moved past observed, another caller did the work and
// Reconnect returns immediately.
func (m *SessionManager) Reconnect(ctx context.Context, observed uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return &GraphError{Op: "reconnect", Kind: KindFatal, Err: ErrNoSession}
	}
	if m.gen != observed {
		return nil
	}

	if m.runner != nil {
		if err := m.runner.Close(ctx); err != nil {
			m.logger.Warn("closing stale graph session", zap.Error(err))
		}
	}
	m.runner = nil
	m.gen++
	m.metrics.reconnected()

	m.logger.Info("reconnecting graph session", zap.Uint64("generation", m.gen))
	runner, err := m.dial(ctx)
	if err != nil {
		m.logger.Error("graph reconnect failed", zap.Uint64("generation", m.gen), zap.Error(err))
		return classify("reconnect", err)
	}
	m.runner = runner
	return nil
}

// Close closes the live session. Subsequent operations fail with ErrNoSession.
func (m *SessionManager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.runner == nil {
		return nil
	}
	err := m.runner.Close(ctx)
	m.runner = nil
	return err
}
