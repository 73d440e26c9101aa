package neopaths

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/go-neopaths/models"
)

// ErrNotFound is a sentinel error returned by lookups when no record
// matching the criteria is found in the database.
var ErrNotFound = errors.New("record not found")

// ErrInvalidRequest is returned when a search request fails validation.
var ErrInvalidRequest = models.ErrInvalidRequest

// ErrNoSession is returned when no live session is available, typically because
// the last reconnect attempt failed.
var ErrNoSession = errors.New("no live graph session")

// ErrorKind is the closed set of failure classes produced at the driver boundary.
// Retry and reconnect decisions dispatch on it, never on message text.
type ErrorKind int

const (
	// KindFatal is any failure outside the known transient vocabulary.
	KindFatal ErrorKind = iota
	// KindConnection means the transport is unusable: closed socket, I/O failure,
	// refused connection, server disconnect or a write routed to a read-only member.
	KindConnection
	// KindConflict is a transient server-side conflict (concurrent modification,
	// deadlock). The session is healthy and the operation can simply be retried.
	KindConflict
	// KindResourceExhausted means the server aborted the query on memory or size limits.
	KindResourceExhausted
	// KindCanceled means the caller's context ended.
	KindCanceled
)

// String returns a stable lowercase name, used in logs and metric labels.
func (k ErrorKind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindConnection:
		return "connection"
	case KindConflict:
		return "conflict"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Retriable reports whether an operation failing with this kind may be attempted again.
func (k ErrorKind) Retriable() bool {
	return k == KindConnection || k == KindConflict
}

// Reconnects reports whether the session must be rebuilt before the next attempt.
func (k ErrorKind) Reconnects() bool {
	return k == KindConnection
}

// GraphError is a classified failure of a graph operation.
type GraphError struct {
	// Op is the operation that failed (e.g. "run", "reconnect").
	Op string
	// Kind is the failure class.
	Kind ErrorKind
	// Err is the underlying driver or transport error.
	Err error
}

func (e *GraphError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("graph %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("graph %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *GraphError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first GraphError in err's chain, or KindFatal
// when err carries no classification.
func KindOf(err error) ErrorKind {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindFatal
}

// Known server-message vocabulary. It is consulted only by classify.
var (
	exhaustionMarkers = []string{
		"memory limitations",
		"MemoryPoolOutOfMemoryError",
		"OutOfMemoryError",
	}
	connectionMarkers = []string{
		"ReadOnlyViolationException",
		"Server disconnected",
		"Connection refused",
		"ForbiddenOnReadOnlyDatabase",
		"NotALeader",
	}
	conflictMarkers = []string{
		"ConcurrentModificationException",
		"DeadlockDetected",
		".TransientError.",
	}
)

// classify wraps err in a GraphError. It is the single place where driver and
// transport errors are translated into an ErrorKind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GraphError
	if errors.As(err, &ge) {
		return err
	}
	return &GraphError{Op: op, Kind: kindFor(err), Err: err}
}

func kindFor(err error) ErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}

	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		text := neoErr.Code + " " + neoErr.Msg
		switch {
		case containsAny(text, exhaustionMarkers):
			return KindResourceExhausted
		case containsAny(text, connectionMarkers):
			return KindConnection
		case containsAny(text, conflictMarkers):
			return KindConflict
		default:
			return KindFatal
		}
	}

	var connErr *neo4j.ConnectivityError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr),
		errors.As(err, &netErr),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, ErrNoSession):
		return KindConnection
	}

	// Errors that reach us without a driver type (e.g. wrapped by a proxy)
	// are matched against the same vocabulary.
	text := err.Error()
	switch {
	case containsAny(text, exhaustionMarkers):
		return KindResourceExhausted
	case containsAny(text, connectionMarkers):
		return KindConnection
	case containsAny(text, conflictMarkers):
		return KindConflict
	}
	return KindFatal
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Class tells the request-handling layer what kind of status to report.
type Class int

const (
	// ClassInternal is a failure of this process.
	ClassInternal Class = iota
	// ClassValidation is a malformed or incomplete request.
	ClassValidation
	// ClassNotFound is a lookup that matched nothing.
	ClassNotFound
	// ClassUpstream is a failure reported by, or on the way to, the graph database.
	ClassUpstream
)

// Classify maps an error returned by this package onto a Class.
func Classify(err error) Class {
	var ge *GraphError
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrInvalidRequest):
		return ClassValidation
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.As(err, &ge):
		return ClassUpstream
	default:
		return ClassInternal
	}
}

// ExhaustedMessage replaces the raw server text of resource-exhaustion failures.
const ExhaustedMessage = "OOM: the two vertices are too far apart for the available query memory, please check the input and submit again"

// UserMessage returns a human-readable description of err suitable for clients.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if KindOf(err) == KindResourceExhausted {
		return ExhaustedMessage
	}
	return err.Error()
}
