// Package executor is the coordinating entry point for statement execution:
// classify → policy check → pool checkout → execute → release → shape result.
// The session is released exactly once regardless of how execution ends; a
// leaked checkout would silently shrink pool capacity.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/sebcbi1/postgres-mcp/internal/classify"
	"github.com/sebcbi1/postgres-mcp/internal/logging"
	"github.com/sebcbi1/postgres-mcp/internal/pool"
	"github.com/sebcbi1/postgres-mcp/pkg/dberrors"
)

// SQLSTATE 25006: read_only_sql_transaction. Raised by the engine when the
// session-level read-only mode blocks a mutating statement that slipped past
// the classifier.
const sqlStateReadOnlyViolation = "25006"

// Executor sequences one statement through the safety policy and the pool.
type Executor struct {
	pool         *pool.Pool
	readOnly     bool
	queryTimeout time.Duration
	logger       *zap.Logger
}

// New builds an executor over an open pool. readOnly mirrors the active
// configuration's flag: when set, any statement not classified as a read is
// rejected before it reaches the database.
func New(p *pool.Pool, readOnly bool, queryTimeout time.Duration, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &Executor{pool: p, readOnly: readOnly, queryTimeout: queryTimeout, logger: logger}
}

// ReadOnly reports whether the read-only policy is active.
func (e *Executor) ReadOnly() bool {
	return e.readOnly
}

// Execute runs one statement and returns its rectangular result. Errors are
// always typed (UnsafeStatementError, EngineRejectedWriteError, PoolExhausted,
// ExecutionError, ...) and never carry credentials.
func (e *Executor) Execute(ctx context.Context, sql string, args ...any) (*pool.QueryResult, error) {
	cls := classify.Classify(sql)

	if e.readOnly && cls.Kind != classify.Read {
		e.logger.Warn("statement rejected by read-only policy",
			zap.String("classification", cls.Kind.String()),
			zap.String("keyword", cls.Keyword),
			zap.String("query", logging.SanitizeQuery(sql)))
		return nil, &dberrors.UnsafeStatementError{
			Keyword:        cls.Keyword,
			Classification: cls.Kind.String(),
		}
	}

	session, err := e.pool.Checkout(ctx)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	start := time.Now()
	result, execErr := session.Query(queryCtx, cls.Statement, args...)
	e.pool.Release(ctx, session, execErr)

	if execErr != nil {
		e.logger.Error("query execution failed",
			zap.String("query", logging.SanitizeQuery(sql)),
			zap.String("error", logging.SanitizeError(execErr)))
		return nil, wrapExecError(execErr)
	}

	e.logger.Info("query executed",
		zap.String("query", logging.SanitizeQuery(sql)),
		zap.Int("rows", len(result.Rows)),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// wrapExecError maps engine errors into the typed taxonomy. A read-only
// violation from the engine becomes EngineRejectedWriteError; everything else
// is an ExecutionError with the engine detail redacted.
func wrapExecError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.SQLState() == sqlStateReadOnlyViolation {
		return &dberrors.EngineRejectedWriteError{
			SQLState: pgErr.SQLState(),
			Message:  pgErr.Message,
		}
	}
	return &dberrors.ExecutionError{Detail: logging.SanitizeError(err)}
}
