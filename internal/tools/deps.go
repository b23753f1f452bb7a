package tools

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sebcbi1/postgres-mcp/internal/config"
	"github.com/sebcbi1/postgres-mcp/internal/executor"
	"github.com/sebcbi1/postgres-mcp/internal/pool"
	"github.com/sebcbi1/postgres-mcp/pkg/dberrors"
)

// Deps owns the runtime state shared by all tool handlers: the loaded
// configuration plus a lazily opened pool and executor. The pool is opened
// on first use so the server can start (and the discovery tools can run)
// before any database is configured.
type Deps struct {
	mu     sync.Mutex
	cfg    *config.Config
	logger *zap.Logger

	pool *pool.Pool
	exec *executor.Executor
}

func NewDeps(cfg *config.Config, logger *zap.Logger) *Deps {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deps{cfg: cfg, logger: logger}
}

func (d *Deps) Config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *Deps) Logger() *zap.Logger {
	return d.logger
}

// Executor returns the shared executor, opening the pool on first call.
// Fails with ErrNoConfigurationFound when no database URI is configured yet.
func (d *Deps) Executor(ctx context.Context) (*executor.Executor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.exec != nil {
		return d.exec, nil
	}
	if d.cfg.DatabaseURL == "" {
		return nil, dberrors.ErrNoConfigurationFound
	}

	connCfg, err := config.ParseConnectionURI(d.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	connCfg.ReadOnly = d.cfg.ReadOnly
	connCfg.PoolMin = d.cfg.PoolMin
	connCfg.PoolMax = d.cfg.PoolMax

	p, err := pool.Open(ctx, pool.Options{
		Config:          connCfg,
		CheckoutTimeout: d.cfg.CheckoutTimeout,
		ConnectTimeout:  d.cfg.ConnectTimeout,
		Logger:          d.logger,
	})
	if err != nil {
		return nil, err
	}

	d.pool = p
	d.exec = executor.New(p, d.cfg.ReadOnly, d.cfg.QueryTimeout, d.logger)
	return d.exec, nil
}

// Reconfigure swaps the active database URI, closing any open pool so the
// next query opens against the new target. Called after setup or selection
// persists a new choice to the project .env.
func (d *Deps) Reconfigure(uri string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.pool
	grace := d.cfg.CloseGrace
	d.pool = nil
	d.exec = nil
	d.cfg.DatabaseURL = uri

	if old != nil {
		go old.Close(grace)
	}
}

// Close shuts down the pool if one was opened.
func (d *Deps) Close(grace time.Duration) {
	d.mu.Lock()
	p := d.pool
	d.pool = nil
	d.exec = nil
	d.mu.Unlock()

	if p != nil {
		p.Close(grace)
	}
}
