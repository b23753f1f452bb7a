package pool

import (
	"context"

	"github.com/google/uuid"
)

// SessionState tracks where a session is in its lifecycle. Transitions:
// idle → checked_out (checkout), checked_out → idle (clean release),
// checked_out → broken → removed (release after failure), any → removed
// (pool close).
type SessionState int

const (
	StateIdle SessionState = iota
	StateCheckedOut
	StateBroken
	StateRemoved
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckedOut:
		return "checked_out"
	case StateBroken:
		return "broken"
	default:
		return "removed"
	}
}

// Session wraps one live database connection. It is owned exclusively by the
// pool: callers borrow it via Checkout, must not share it across concurrent
// requests, and must return it via Release within the same logical request.
type Session struct {
	ID uuid.UUID

	conn  Conn
	state SessionState // guarded by the pool mutex
}

// Query runs a statement on this session's connection. Only valid between
// Checkout and Release.
func (s *Session) Query(ctx context.Context, sql string, args ...any) (*QueryResult, error) {
	return s.conn.Query(ctx, sql, args...)
}

// State reports the session's current lifecycle state. Reads race with pool
// transitions by nature; use for diagnostics and tests only.
func (s *Session) State() SessionState {
	return s.state
}
