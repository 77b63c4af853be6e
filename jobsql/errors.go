package jobsql

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an *Error. Kinds are themselves errors so callers can
// match them with errors.Is(err, jobsql.ErrTimeout).
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	ErrSubmission           Kind = "job submission failed"
	ErrPoll                 Kind = "job status poll failed"
	ErrFetch                Kind = "result fetch failed"
	ErrAlreadyRunning       Kind = "statement already running"
	ErrTimeout              Kind = "query timed out"
	ErrCancelled            Kind = "query cancelled"
	ErrJobFailed            Kind = "job failed"
	ErrUnsupportedOperation Kind = "unsupported operation"
	ErrInvalidColumn        Kind = "invalid column index"
	ErrNoSuchColumn         Kind = "no such column"
	ErrCursorNotPositioned  Kind = "cursor not positioned on a row"
	ErrEmptyResult          Kind = "empty result"
	ErrClosedCursor         Kind = "cursor closed"
	ErrUnsupportedType      Kind = "unsupported column type"
	ErrMalformedValue       Kind = "malformed value"
	ErrStatementClosed      Kind = "statement closed"
	ErrConnClosed           Kind = "connection closed"
)

// Error is returned by every operation in this package. SQL and JobID are
// filled in whenever they are known so a failure can be matched against the
// remote service's own job logs.
type Error struct {
	Kind    Kind
	SQL     string
	JobID   string
	Timeout time.Duration // set for ErrTimeout
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Kind == ErrTimeout && e.Timeout > 0 {
		fmt.Fprintf(&b, " (timeout %s)", e.Timeout)
	}
	if e.JobID != "" {
		fmt.Fprintf(&b, " [job %s]", e.JobID)
	}
	if e.SQL != "" {
		fmt.Fprintf(&b, " [sql %q]", abbreviate(e.SQL, 200))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e. An empty result is a special
// case of a cursor that is not positioned on a row.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	if !ok {
		return false
	}
	if k == e.Kind {
		return true
	}
	return e.Kind == ErrEmptyResult && k == ErrCursorNotPositioned
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func abbreviate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
