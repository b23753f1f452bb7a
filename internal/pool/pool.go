// Package pool owns a bounded set of live PostgreSQL sessions and the
// borrow/return protocol around them. Sessions move idle → checked_out →
// idle, or → broken → removed when a release reports a dead connection; a
// background task replaces removed sessions up to the configured minimum and
// stops cleanly when the pool closes.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sebcbi1/postgres-mcp/internal/config"
	"github.com/sebcbi1/postgres-mcp/internal/logging"
	"github.com/sebcbi1/postgres-mcp/internal/retry"
	"github.com/sebcbi1/postgres-mcp/pkg/dberrors"
)

const defaultReplenishInterval = 30 * time.Second

// Options configures Open. Config is consumed for the lifetime of the pool;
// changing the active configuration means closing this pool and opening a
// new one.
type Options struct {
	Config config.ConnectionConfig

	// Dialer defaults to PgxDial. Tests inject fakes here.
	Dialer Dialer

	// CheckoutTimeout bounds how long Checkout blocks when the pool is at
	// max capacity with no idle session.
	CheckoutTimeout time.Duration

	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration

	// ReplenishInterval is the cadence of the background task that restores
	// the pool toward PoolMin after broken sessions were removed.
	ReplenishInterval time.Duration

	Logger *zap.Logger
}

// Pool hands out sessions under a checkout/release contract. All state
// transitions happen under one mutex so two concurrent checkouts can never
// receive the same session and size accounting never races.
type Pool struct {
	cfg               config.ConnectionConfig
	dial              Dialer
	checkoutTimeout   time.Duration
	connectTimeout    time.Duration
	replenishInterval time.Duration
	logger            *zap.Logger

	idle chan *Session

	mu       sync.Mutex
	total    int
	closed   bool
	sessions map[uuid.UUID]*Session

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open establishes a pool for cfg, validating that at least one connection
// succeeds before returning. The first connection is retried within a small
// fixed budget; failure surfaces as a ConnectivityError that never carries
// the plaintext credential.
func Open(ctx context.Context, opts Options) (*Pool, error) {
	if opts.Dialer == nil {
		opts.Dialer = PgxDial
	}
	if opts.CheckoutTimeout <= 0 {
		opts.CheckoutTimeout = 10 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReplenishInterval <= 0 {
		opts.ReplenishInterval = defaultReplenishInterval
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	cfg := opts.Config
	if cfg.PoolMin < 1 {
		cfg.PoolMin = 1
	}
	if cfg.PoolMax < cfg.PoolMin {
		cfg.PoolMax = cfg.PoolMin
	}

	p := &Pool{
		cfg:               cfg,
		dial:              opts.Dialer,
		checkoutTimeout:   opts.CheckoutTimeout,
		connectTimeout:    opts.ConnectTimeout,
		replenishInterval: opts.ReplenishInterval,
		logger:            opts.Logger,
		idle:              make(chan *Session, cfg.PoolMax),
		sessions:          make(map[uuid.UUID]*Session),
		stopCh:            make(chan struct{}),
	}

	// The pool is only viable if one connection can be established now.
	s, err := p.dialSession(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.adopt(s, StateIdle)
	p.mu.Unlock()
	p.idle <- s

	// Prefill toward the minimum; failures here are logged, not fatal, since
	// connectivity has already been proven.
	for i := 1; i < cfg.PoolMin; i++ {
		extra, err := p.dialSession(ctx)
		if err != nil {
			p.logger.Warn("pool prefill connection failed",
				zap.String("target", cfg.Addr()),
				zap.String("error", logging.SanitizeError(err)))
			break
		}
		p.mu.Lock()
		p.adopt(extra, StateIdle)
		p.mu.Unlock()
		p.idle <- extra
	}

	p.wg.Add(1)
	go p.maintain()

	p.logger.Info("connection pool opened",
		zap.String("target", cfg.Addr()),
		zap.Bool("read_only", cfg.ReadOnly),
		zap.Int("min", cfg.PoolMin),
		zap.Int("max", cfg.PoolMax))

	return p, nil
}

// Config returns the active configuration the pool was built from.
func (p *Pool) Config() config.ConnectionConfig {
	return p.cfg
}

// Checkout returns an idle session, growing the pool up to PoolMax when none
// is idle, and otherwise blocking until a session frees up, the checkout
// timeout elapses (ErrPoolExhausted), the context is canceled, or the pool
// closes (ErrPoolClosed). An idle session is assumed healthy; a broken one is
// detected and removed at release time.
func (p *Pool) Checkout(ctx context.Context) (*Session, error) {
	timer := time.NewTimer(p.checkoutTimeout)
	defer timer.Stop()

	for {
		select {
		case s := <-p.idle:
			if ok := p.markCheckedOut(s); ok {
				return s, nil
			}
			return nil, dberrors.ErrPoolClosed
		default:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, dberrors.ErrPoolClosed
		}
		if p.total < p.cfg.PoolMax {
			p.total++ // reserve the slot before dialing
			p.mu.Unlock()

			s, err := p.dialSession(ctx)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				return nil, err
			}
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				_ = s.conn.Close(context.Background())
				return nil, dberrors.ErrPoolClosed
			}
			p.sessions[s.ID] = s
			s.state = StateCheckedOut
			p.mu.Unlock()
			return s, nil
		}
		p.mu.Unlock()

		select {
		case s := <-p.idle:
			if ok := p.markCheckedOut(s); ok {
				return s, nil
			}
			return nil, dberrors.ErrPoolClosed
		case <-timer.C:
			return nil, dberrors.ErrPoolExhausted
		case <-p.stopCh:
			return nil, dberrors.ErrPoolClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns a session after use. execErr is the caller's statement
// error, if any: a failed statement does not condemn the session by itself,
// but it triggers a health check, and a session that fails the check is
// removed with a same-turn replacement attempt when the pool drops below
// PoolMin. Release must be called exactly once per checkout.
func (p *Pool) Release(ctx context.Context, s *Session, execErr error) {
	healthy := true
	if execErr != nil {
		healthy = s.conn.Ping(ctx) == nil
	}

	p.mu.Lock()
	if p.closed {
		p.removeLocked(s)
		p.mu.Unlock()
		_ = s.conn.Close(context.Background())
		return
	}

	if healthy {
		s.state = StateIdle
		p.mu.Unlock()
		select {
		case p.idle <- s:
		default:
			// Accounting guarantees capacity; this is unreachable, but a
			// session must never be silently dropped.
			p.destroy(s)
		}
		return
	}

	s.state = StateBroken
	p.removeLocked(s)
	below := p.total < p.cfg.PoolMin
	p.mu.Unlock()

	p.logger.Warn("broken session removed from pool",
		zap.String("session_id", s.ID.String()),
		zap.String("error", logging.SanitizeError(execErr)))

	_ = s.conn.Close(context.Background())

	if below {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.replenish(context.Background())
		}()
	}
}

// Close drains all sessions: idle ones are closed immediately, checked-out
// ones are waited for up to grace, then the remainder is forcibly closed.
// The background maintenance task is stopped before any teardown so no stray
// reconnect touches a pool that is going away.
func (p *Pool) Close(grace time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()

	deadline := time.Now().Add(grace)
	for {
		select {
		case s := <-p.idle:
			p.destroy(s)
			continue
		default:
		}

		p.mu.Lock()
		remaining := p.total
		p.mu.Unlock()
		if remaining == 0 {
			break
		}
		if time.Now().After(deadline) {
			p.forceClose()
			break
		}
		select {
		case s := <-p.idle:
			p.destroy(s)
		case <-time.After(20 * time.Millisecond):
		}
	}

	p.logger.Info("connection pool closed", zap.String("target", p.cfg.Addr()))
}

// Stats reports current pool accounting, primarily for tests and diagnostics.
type Stats struct {
	Total      int
	Idle       int
	CheckedOut int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	idle := len(p.idle)
	return Stats{Total: p.total, Idle: idle, CheckedOut: p.total - idle}
}

// ValidateConnection dials one session, pings it and closes it. Used to
// check a candidate URI before it becomes the active configuration.
func ValidateConnection(ctx context.Context, cfg config.ConnectionConfig, dial Dialer) error {
	if dial == nil {
		dial = PgxDial
	}
	conn, err := dial(ctx, cfg)
	if err != nil {
		return &dberrors.ConnectivityError{Addr: cfg.Addr(), Cause: logging.SanitizeError(err)}
	}
	defer conn.Close(ctx)
	if err := conn.Ping(ctx); err != nil {
		return &dberrors.ConnectivityError{Addr: cfg.Addr(), Cause: logging.SanitizeError(err)}
	}
	return nil
}

// dialSession opens one connection within the retry budget and wraps failure
// into a sanitized ConnectivityError.
func (p *Pool) dialSession(ctx context.Context) (*Session, error) {
	conn, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (Conn, error) {
		dialCtx, cancel := context.WithTimeout(ctx, p.connectTimeout)
		defer cancel()
		return p.dial(dialCtx, p.cfg)
	})
	if err != nil {
		return nil, &dberrors.ConnectivityError{
			Addr:  p.cfg.Addr(),
			Cause: logging.SanitizeError(err),
		}
	}
	return &Session{ID: uuid.New(), conn: conn}, nil
}

// adopt registers a freshly dialed session. Caller holds p.mu.
func (p *Pool) adopt(s *Session, state SessionState) {
	s.state = state
	p.sessions[s.ID] = s
	p.total++
}

// removeLocked drops a session from the accounting. Caller holds p.mu.
func (p *Pool) removeLocked(s *Session) {
	if s.state != StateRemoved {
		s.state = StateRemoved
		delete(p.sessions, s.ID)
		p.total--
	}
}

func (p *Pool) destroy(s *Session) {
	p.mu.Lock()
	p.removeLocked(s)
	p.mu.Unlock()
	_ = s.conn.Close(context.Background())
}

func (p *Pool) markCheckedOut(s *Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	s.state = StateCheckedOut
	return true
}

// forceClose closes every session still tracked, regardless of state.
func (p *Pool) forceClose() {
	p.mu.Lock()
	remaining := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		remaining = append(remaining, s)
	}
	p.mu.Unlock()
	for _, s := range remaining {
		p.destroy(s)
	}
}

// maintain restores the pool toward PoolMin on a periodic cadence and exits
// as soon as the pool starts closing.
func (p *Pool) maintain() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.replenishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.replenish(context.Background())
		}
	}
}

// replenish dials sessions until the pool is back at PoolMin, giving up on
// the first failure (the next cadence retries) and never touching a closed
// pool.
func (p *Pool) replenish(ctx context.Context) {
	for {
		p.mu.Lock()
		if p.closed || p.total >= p.cfg.PoolMin {
			p.mu.Unlock()
			return
		}
		p.total++
		p.mu.Unlock()

		s, err := p.dialSession(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			p.logger.Warn("pool replenish failed",
				zap.String("target", p.cfg.Addr()),
				zap.String("error", logging.SanitizeError(err)))
			return
		}

		p.mu.Lock()
		if p.closed {
			p.total--
			p.mu.Unlock()
			_ = s.conn.Close(context.Background())
			return
		}
		s.state = StateIdle
		p.sessions[s.ID] = s
		p.mu.Unlock()

		select {
		case p.idle <- s:
		default:
			p.destroy(s)
			return
		}
	}
}
