// Package dberrors defines the typed error taxonomy shared by the discovery,
// pool and execution layers. Callers match with errors.Is / errors.As; error
// text never carries plaintext credentials.
package dberrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNoConfigurationFound indicates discovery produced zero usable candidates.
	ErrNoConfigurationFound = errors.New("no database configuration found")

	// ErrPoolExhausted indicates a checkout timed out waiting for an idle session.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed indicates the pool was closed while the caller was waiting.
	ErrPoolClosed = errors.New("connection pool closed")

	// ErrInvalidConnectionURI indicates a candidate URI failed to parse into a
	// valid PostgreSQL connection locator.
	ErrInvalidConnectionURI = errors.New("invalid connection URI")
)

// DiscoveryParseError describes one file the scanner could not parse. It is
// absorbed at discovery level (logged, scan continues) and never surfaces to
// the caller unless zero candidates result.
type DiscoveryParseError struct {
	Path   string
	Format string
	Reason string
}

func (e *DiscoveryParseError) Error() string {
	return fmt.Sprintf("cannot parse %s as %s: %s", e.Path, e.Format, e.Reason)
}

// AmbiguousConfigurationError is returned when more than one distinct
// normalized URI survives deduplication and no selector was provided.
type AmbiguousConfigurationError struct {
	// Candidates holds redacted URIs for display, never plaintext credentials.
	Candidates []string
}

func (e *AmbiguousConfigurationError) Error() string {
	return fmt.Sprintf("ambiguous configuration: %d distinct database candidates require selection", len(e.Candidates))
}

// ConnectivityError wraps a failure to establish or re-establish a database
// connection after bounded retries. Cause is pre-sanitized by the pool.
type ConnectivityError struct {
	Addr  string // host:port/database, no credentials
	Cause string
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("cannot connect to %s: %s", e.Addr, e.Cause)
}

// UnsafeStatementError is returned by the execution façade when the classifier
// blocks a statement in read-only mode. The statement never reaches the
// database.
type UnsafeStatementError struct {
	Keyword        string // triggering keyword or pattern
	Classification string // "write" or "ambiguous"
}

func (e *UnsafeStatementError) Error() string {
	return fmt.Sprintf("statement rejected in read-only mode: %s operation %q is not allowed", e.Classification, e.Keyword)
}

// EngineRejectedWriteError is returned when the database engine itself blocked
// a mutating statement via the session read-only mode (SQLSTATE 25006). This
// is the defense-in-depth backstop behind the classifier.
type EngineRejectedWriteError struct {
	SQLState string
	Message  string
}

func (e *EngineRejectedWriteError) Error() string {
	return fmt.Sprintf("engine rejected write in read-only session (%s): %s", e.SQLState, e.Message)
}

// ExecutionError wraps any other statement failure. Detail is the engine
// message after credential redaction.
type ExecutionError struct {
	Detail string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %s", e.Detail)
}
