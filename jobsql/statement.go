package jobsql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// cancelTimeout bounds the best-effort remote cancel issued when an
// execution ends early.
const cancelTimeout = 30 * time.Second

// StatementState is the position of a statement in its execution cycle.
type StatementState int

const (
	StatementIdle StatementState = iota
	StatementSubmitted
	StatementPolling
	StatementDone
	StatementFailed
	StatementCancelled
)

func (s StatementState) String() string {
	switch s {
	case StatementIdle:
		return "IDLE"
	case StatementSubmitted:
		return "SUBMITTED"
	case StatementPolling:
		return "POLLING"
	case StatementDone:
		return "DONE"
	case StatementFailed:
		return "FAILED"
	case StatementCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Statement runs one query at a time against a Service, hiding the job
// lifecycle behind a blocking Execute. Execute, Cancel and Close may be
// called from different goroutines.
type Statement struct {
	svc Service
	reg *Registry

	mu      sync.Mutex
	cfg     Config
	logger  *slog.Logger
	state   StatementState
	running bool
	sql     string
	job     *JobSession
	alive   bool
	wake    chan struct{}
	endPoll context.CancelFunc
	cursor  Cursor
	closed  bool
}

// execution is the per-Execute snapshot of the statement's settings.
type execution struct {
	sql      string
	cfg      Config
	wake     <-chan struct{}
	deadline time.Time
}

// NewStatement creates a statement bound to svc. reg may be nil for a
// statement that no connection tracks.
func NewStatement(svc Service, cfg Config, reg *Registry) (*Statement, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Statement{svc: svc, reg: reg, cfg: cfg, logger: cfg.Logger}, nil
}

// SetQueryTimeout sets the wall-clock limit for later executions.
func (s *Statement) SetQueryTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("query timeout must be positive, got %s", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.QueryTimeout = d
	return nil
}

// QueryTimeout returns the configured wall-clock limit.
func (s *Statement) QueryTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.QueryTimeout
}

// SetPollInterval sets the wait between status polls for later executions.
func (s *Statement) SetPollInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.PollInterval = d
	return nil
}

// SetResultMode selects the cursor variant later executions return.
func (s *Statement) SetResultMode(m ResultMode) error {
	if m != ForwardOnly && m != Scrollable {
		return fmt.Errorf("unknown result mode %d", m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ResultMode = m
	return nil
}

// State reports where the statement is in its execution cycle.
func (s *Statement) State() StatementState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Execute submits sql, waits for the job to finish and returns a cursor over
// its result. It fails with ErrAlreadyRunning if another Execute on the same
// statement has not returned yet. The cursor produced by a previous Execute
// is closed.
func (s *Statement) Execute(ctx context.Context, sql string) (Cursor, error) {
	ex, err := s.begin(sql)
	if err != nil {
		return nil, err
	}
	if err := s.reg.register(s); err != nil {
		s.finish(StatementFailed)
		return nil, &Error{Kind: ErrConnClosed, SQL: sql, Err: err}
	}
	defer s.reg.unregister(s)

	ex.deadline = time.Now().Add(ex.cfg.QueryTimeout)
	job, err := Submit(ctx, s.svc, ex.cfg.submitRequest(sql), s.logger)
	if err != nil {
		s.finish(StatementFailed)
		return nil, err
	}

	cur, err := s.run(ctx, ex, job)
	if err != nil {
		job.Release()
		s.finish(outcome(err))
		return nil, err
	}
	s.finish(StatementDone)
	return cur, nil
}

func (s *Statement) begin(sql string) (*execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &Error{Kind: ErrStatementClosed, SQL: sql}
	}
	if s.running {
		e := &Error{Kind: ErrAlreadyRunning, SQL: s.sql, Msg: fmt.Sprintf("cannot execute %q", abbreviate(sql, 200))}
		if s.job != nil {
			e.JobID = s.job.Handle().ID
		}
		return nil, e
	}
	if s.cursor != nil {
		_ = s.cursor.Close()
		s.cursor = nil
	}
	s.running = true
	s.sql = sql
	s.alive = true
	s.wake = make(chan struct{})
	s.setState(StatementSubmitted)
	return &execution{sql: sql, cfg: s.cfg, wake: s.wake}, nil
}

// finish records the terminal state of an execution and frees the slot.
func (s *Statement) finish(terminal StatementState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(terminal)
	s.running = false
	s.job = nil
	s.endPoll = nil
	s.setState(StatementIdle)
}

// setState must be called with s.mu held.
func (s *Statement) setState(to StatementState) {
	if s.state != to {
		s.logger.Debug("statement state", "from", s.state, "to", to)
	}
	s.state = to
}

// run attaches job to the statement and drives the poll loop to a result.
// Status polls run under a context bounded by the deadline and ended by
// Cancel, so a hung poll request cannot outlive either.
func (s *Statement) run(ctx context.Context, ex *execution, job *JobSession) (Cursor, error) {
	pollCtx, endPoll := context.WithDeadline(ctx, ex.deadline)
	defer endPoll()

	s.mu.Lock()
	s.job = job
	s.endPoll = endPoll
	if !s.alive {
		endPoll()
	}
	s.setState(StatementPolling)
	s.mu.Unlock()

	logger := s.logger.With("job_id", job.Handle().ID)
	for iteration := 1; ; iteration++ {
		st, err := retryTransient(MaxIOFailureRetries,
			func() error { return s.interrupted(ctx, ex) },
			func() (PollState, error) { return job.Poll(pollCtx) },
			func(failures int, err error) {
				logger.Warn("job poll failed, retrying", "attempt", failures, "error", err)
			})
		if err != nil {
			if ierr := s.interrupted(ctx, ex); ierr != nil {
				return nil, s.abort(ctx, job, ierr)
			}
			var e *Error
			if errors.As(err, &e) && e.Kind == ErrPoll {
				e.Msg = fmt.Sprintf("giving up after %d consecutive failures", MaxIOFailureRetries+1)
			}
			return nil, s.abort(ctx, job, err)
		}
		logger.Debug("job polled", "iteration", iteration, "state", st.State)

		switch st.State {
		case StateDone:
			return s.collect(ctx, ex, job)
		case StateFailed:
			return nil, s.abort(ctx, job, &Error{Kind: ErrJobFailed, SQL: ex.sql, JobID: job.Handle().ID, Err: st.Cause})
		}

		if err := s.interrupted(ctx, ex); err != nil {
			return nil, s.abort(ctx, job, err)
		}
		s.wait(ctx, ex)
		if err := s.interrupted(ctx, ex); err != nil {
			return nil, s.abort(ctx, job, err)
		}
	}
}

// wait blocks for the poll interval, returning early on Cancel, context
// cancellation or the deadline. Callers re-check why it returned.
func (s *Statement) wait(ctx context.Context, ex *execution) {
	timer := time.NewTimer(min(ex.cfg.PollInterval, time.Until(ex.deadline)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ex.wake:
	case <-ctx.Done():
	}
}

// interrupted reports whether the execution must stop: the statement was
// cancelled, ctx is done, or the deadline passed.
func (s *Statement) interrupted(ctx context.Context, ex *execution) error {
	s.mu.Lock()
	alive := s.alive
	jobID := ""
	if s.job != nil {
		jobID = s.job.Handle().ID
	}
	s.mu.Unlock()

	if !alive {
		return &Error{Kind: ErrCancelled, SQL: ex.sql, JobID: jobID}
	}
	if err := ctx.Err(); err != nil {
		return &Error{Kind: ErrCancelled, SQL: ex.sql, JobID: jobID, Err: err}
	}
	if !time.Now().Before(ex.deadline) {
		return &Error{Kind: ErrTimeout, SQL: ex.sql, JobID: jobID, Timeout: ex.cfg.QueryTimeout}
	}
	return nil
}

// collect fetches the first page of a finished job and builds the cursor.
func (s *Statement) collect(ctx context.Context, ex *execution, job *JobSession) (Cursor, error) {
	if err := s.interrupted(ctx, ex); err != nil && !errors.Is(err, ErrTimeout) {
		return nil, s.abort(ctx, job, err)
	}
	page, err := job.FetchFirstPage(ctx)
	if err != nil {
		return nil, err
	}
	cur, err := newCursor(ctx, ex.cfg.ResultMode, job, page, ex.cfg.Location)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.cursor = cur
	}
	s.mu.Unlock()
	if closed {
		_ = cur.Close()
		return nil, &Error{Kind: ErrStatementClosed, SQL: ex.sql, JobID: job.Handle().ID}
	}
	s.logger.Info("job completed", "job_id", job.Handle().ID, "mode", ex.cfg.ResultMode)
	return cur, nil
}

// abort cancels the remote job and returns cause. A failed cancel is only
// logged so it never masks cause.
func (s *Statement) abort(ctx context.Context, job *JobSession, cause error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	job.Cancel(cctx)
	s.logger.Warn("execution aborted", "job_id", job.Handle().ID, "error", cause)
	return cause
}

// Cancel stops the running execution, if any. It is safe to call from any
// goroutine, any number of times; the blocked Execute returns ErrCancelled.
func (s *Statement) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || !s.alive {
		return
	}
	s.alive = false
	close(s.wake)
	if s.endPoll != nil {
		s.endPoll()
	}
	s.logger.Info("statement cancel requested", "sql", abbreviate(s.sql, 200))
}

// Close cancels any running execution and closes the last cursor. The
// statement cannot be used afterwards.
func (s *Statement) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cur := s.cursor
	s.cursor = nil
	s.mu.Unlock()

	s.Cancel()
	if cur != nil {
		_ = cur.Close()
	}
	s.reg.unregister(s)
	return nil
}

func outcome(err error) StatementState {
	if errors.Is(err, ErrCancelled) {
		return StatementCancelled
	}
	return StatementFailed
}

// retryTransient calls fn until it succeeds. Each failure is retried in
// place; more than maxRetries consecutive failures return the last error.
// stop is consulted before every attempt and ends the loop with its error.
func retryTransient[T any](maxRetries int, stop func() error, fn func() (T, error), onRetry func(failures int, err error)) (T, error) {
	var zero T
	for failures := 0; ; {
		if err := stop(); err != nil {
			return zero, err
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		failures++
		if failures > maxRetries {
			return zero, err
		}
		onRetry(failures, err)
	}
}
