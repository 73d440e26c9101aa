package neopaths

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/saulfrancisco-ruizacevedo/go-neopaths"

// Engine runs path searches against the graph. Every traversal goes through the
// SessionManager under the RetryPolicy.
type Engine struct {
	sessions   *SessionManager
	retry      RetryPolicy
	logger     *zap.Logger
	tracer     trace.Tracer
	metrics    *Metrics
	edgePrefix string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetryPolicy replaces DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records search metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracerProvider takes spans from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// WithEdgePrefix sets the prefix distinguishing edge identifiers from vertex
// identifiers in simple-search paths. Defaults to DefaultEdgePrefix.
func WithEdgePrefix(prefix string) Option {
	return func(e *Engine) {
		if prefix != "" {
			e.edgePrefix = prefix
		}
	}
}

func newEngine(opts []Option) *Engine {
	e := &Engine{
		retry:      DefaultRetryPolicy,
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
		edgePrefix: DefaultEdgePrefix,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewEngine creates an Engine over an existing SessionManager.
func NewEngine(sessions *SessionManager, opts ...Option) *Engine {
	e := newEngine(opts)
	e.sessions = sessions
	return e
}

// Connect dials the initial session and returns an Engine that owns it.
func Connect(ctx context.Context, dial Dialer, opts ...Option) (*Engine, error) {
	e := newEngine(opts)
	sessions, err := NewSessionManager(ctx, dial, e.logger, e.metrics)
	if err != nil {
		return nil, err
	}
	e.sessions = sessions
	return e, nil
}

// Sessions exposes the session manager, e.g. for health checks.
func (e *Engine) Sessions() *SessionManager { return e.sessions }

// Close closes the underlying session.
func (e *Engine) Close(ctx context.Context) error { return e.sessions.Close(ctx) }

// run executes fn against the live session under the retry policy, rebuilding the
// session before the next attempt when a failure calls for it.
func (e *Engine) run(ctx context.Context, op string, fn func(context.Context, DBRunner) error) error {
	var gen uint64
	return e.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		gen, err = e.sessions.WithSession(ctx, fn)
		return err
	}, RetryHooks{
		Reconnect: func(ctx context.Context) error {
			return e.sessions.Reconnect(ctx, gen)
		},
		OnRetry: func(attempt int, err error) {
			kind := KindOf(err)
			e.metrics.retried(kind)
			e.logger.Warn("retrying graph operation",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Stringer("kind", kind),
				zap.Error(err))
			trace.SpanFromContext(ctx).AddEvent("retry", trace.WithAttributes(
				attribute.String("op", op),
				attribute.Int("attempt", attempt),
				attribute.String("kind", kind.String())))
		},
	})
}

// observe opens a span for a search and returns the function that closes it and
// records the outcome.
func (e *Engine) observe(ctx context.Context, strategy string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "neopaths."+strategy, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		e.metrics.observeQuery(strategy, start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Error("search failed",
				zap.String("strategy", strategy),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
		} else {
			e.logger.Debug("search finished",
				zap.String("strategy", strategy),
				zap.Duration("elapsed", time.Since(start)))
		}
		span.End()
	}
}

// Ping runs a trivial query through the live session once, without retries. When
// the failure calls for a new session, the session is rebuilt before Ping returns
// the error, so the next call runs against a fresh one.
func (e *Engine) Ping(ctx context.Context) (err error) {
	ctx, done := e.observe(ctx, "ping")
	defer func() { done(err) }()
	gen, err := e.sessions.WithSession(ctx, func(ctx context.Context, r DBRunner) error {
		_, err := r.Run(ctx, pingQuery, nil)
		return err
	})
	if err != nil && KindOf(err).Reconnects() {
		if rerr := e.sessions.Reconnect(ctx, gen); rerr != nil {
			e.logger.Warn("reconnect after failed ping", zap.Error(rerr))
		}
	}
	return err
}
