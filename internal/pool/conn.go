package pool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sebcbi1/postgres-mcp/internal/config"
)

// QueryResult is the rectangular shape every statement produces: ordered
// column names and ordered rows of scalar values typed per column.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// Conn is one live database session as the pool sees it. The pgx adapter is
// the production implementation; tests inject fakes through a Dialer.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (*QueryResult, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens a new session for the given configuration. It must apply the
// session-level read-only mode before returning when cfg.ReadOnly is set.
type Dialer func(ctx context.Context, cfg config.ConnectionConfig) (Conn, error)

// PgxDial is the production Dialer. Read-only enforcement happens here, at
// the session level, so a classifier false-negative is still blocked by the
// engine itself.
func PgxDial(ctx context.Context, cfg config.ConnectionConfig) (Conn, error) {
	conn, err := pgx.Connect(ctx, cfg.ConnString())
	if err != nil {
		return nil, err
	}
	if cfg.ReadOnly {
		if _, err := conn.Exec(ctx, "SET default_transaction_read_only = on"); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("enable read-only session mode: %w", err)
		}
	}
	return &pgxConn{conn: conn}, nil
}

type pgxConn struct {
	conn *pgx.Conn
}

func (c *pgxConn) Query(ctx context.Context, sql string, args ...any) (*QueryResult, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = string(fd.Name)
	}

	result := &QueryResult{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *pgxConn) Ping(ctx context.Context) error {
	if c.conn.IsClosed() {
		return fmt.Errorf("connection is closed")
	}
	return c.conn.Ping(ctx)
}

func (c *pgxConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// normalizeValue keeps result cells as plain scalars: byte slices become
// strings so JSON marshaling does not base64-encode text columns.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
