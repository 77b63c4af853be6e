package jobsql

import (
	"context"
	"log/slog"
	"sync"
)

// JobSession wraps a single submitted job. It is created by Submit and
// dropped once the statement that owns it reaches a terminal state.
type JobSession struct {
	svc    Service
	handle JobHandle
	sql    string
	logger *slog.Logger

	mu        sync.Mutex
	done      bool
	cancelled bool
	released  bool
}

// Submit sends req to svc. Either a job exists afterwards or an
// ErrSubmission error is returned; nothing is left behind on failure.
func Submit(ctx context.Context, svc Service, req SubmitRequest, logger *slog.Logger) (*JobSession, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h, err := svc.SubmitJob(ctx, req)
	if err != nil {
		return nil, &Error{Kind: ErrSubmission, SQL: req.SQL, Err: err}
	}
	logger.Info("job submitted", "job_id", h.ID, "location", h.Location)
	return &JobSession{
		svc:    svc,
		handle: h,
		sql:    req.SQL,
		logger: logger.With("job_id", h.ID),
	}, nil
}

// Handle returns the identity of the job.
func (j *JobSession) Handle() JobHandle { return j.handle }

// SQL returns the text the job was submitted with.
func (j *JobSession) SQL() string { return j.sql }

// Poll asks the service for the job's current state. Transport failures are
// ErrPoll; a job that failed remotely is returned as StateFailed.
func (j *JobSession) Poll(ctx context.Context) (PollState, error) {
	st, err := j.svc.PollJobStatus(ctx, j.handle)
	if err != nil {
		return PollState{}, j.err(ErrPoll, "", err)
	}
	if st.State == StateDone {
		j.mu.Lock()
		j.done = true
		j.mu.Unlock()
	}
	return st, nil
}

// FetchFirstPage returns the first result page. It is only valid after Poll
// has reported StateDone.
func (j *JobSession) FetchFirstPage(ctx context.Context) (*ResultPage, error) {
	j.mu.Lock()
	done := j.done
	j.mu.Unlock()
	if !done {
		return nil, j.err(ErrFetch, "job has not completed", nil)
	}
	return j.fetch(ctx, "")
}

// FetchNextPage resumes pagination at token.
func (j *JobSession) FetchNextPage(ctx context.Context, token string) (*ResultPage, error) {
	if token == "" {
		return nil, j.err(ErrFetch, "empty continuation token", nil)
	}
	return j.fetch(ctx, token)
}

func (j *JobSession) fetch(ctx context.Context, token string) (*ResultPage, error) {
	page, err := j.svc.FetchResultPage(ctx, j.handle, token)
	if err != nil {
		return nil, j.err(ErrFetch, "", err)
	}
	if page == nil {
		return nil, j.err(ErrFetch, "service returned no page", nil)
	}
	return page, nil
}

// Cancel asks the service to abort the job. Only the first call reaches the
// service; failures are logged and never returned.
func (j *JobSession) Cancel(ctx context.Context) {
	j.mu.Lock()
	if j.cancelled {
		j.mu.Unlock()
		return
	}
	j.cancelled = true
	j.mu.Unlock()

	if err := j.svc.CancelJob(ctx, j.handle); err != nil {
		j.logger.Warn("job cancel failed", "error", err)
		return
	}
	j.logger.Info("job cancelled")
}

// Release tells a Releaser service that the job's result is no longer
// needed. Only the first call reaches the service.
func (j *JobSession) Release() {
	r, ok := j.svc.(Releaser)
	if !ok {
		return
	}
	j.mu.Lock()
	if j.released {
		j.mu.Unlock()
		return
	}
	j.released = true
	j.mu.Unlock()
	r.ReleaseJob(j.handle)
}

func (j *JobSession) err(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, SQL: j.sql, JobID: j.handle.ID, Msg: msg, Err: cause}
}
