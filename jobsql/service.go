package jobsql

import "context"

// Service is the remote query service a statement drives. Implementations
// live in the snowapi and bqapi packages; every method is a single remote
// call and must honour ctx.
type Service interface {
	// SubmitJob starts an asynchronous query job and returns its handle.
	SubmitJob(ctx context.Context, req SubmitRequest) (JobHandle, error)
	// PollJobStatus reports the current state of a job. A job that failed
	// remotely is a successful poll with StateFailed.
	PollJobStatus(ctx context.Context, h JobHandle) (PollState, error)
	// FetchResultPage returns the page at token; an empty token is the first page.
	FetchResultPage(ctx context.Context, h JobHandle, token string) (*ResultPage, error)
	// CancelJob asks the service to abort the job.
	CancelJob(ctx context.Context, h JobHandle) error
}

// Releaser is implemented by services that keep client-side state per job.
// ReleaseJob is called once when the result of h will not be read any more.
type Releaser interface {
	ReleaseJob(h JobHandle)
}

// JobHandle identifies a remote job. It is issued by the service at
// submission time and never changes.
type JobHandle struct {
	ProjectID string
	ID        string
	Location  string
}

// DatasetRef names the default dataset unqualified table names resolve against.
type DatasetRef struct {
	ProjectID string
	DatasetID string
}

// SubmitRequest carries everything needed to start a query job.
type SubmitRequest struct {
	ProjectID      string
	SQL            string
	Dataset        *DatasetRef
	UseLegacySQL   bool
	MaxBytesBilled int64  // 0 means no limit
	EncryptionKey  string // KMS key name, empty for the service default
}

// JobState is the coarse state of a remote job.
type JobState int

const (
	StateRunning JobState = iota
	StateDone
	StateFailed
)

func (s JobState) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// PollState is the result of one status poll. Cause is set when State is
// StateFailed and describes the remote failure.
type PollState struct {
	State JobState
	Cause error
}

// Column is one entry of a result schema.
type Column struct {
	Name string
	Type string // declared type, see Decode
}

// ResultPage is one batch of rows. Each cell is nil for a remote NULL or the
// raw text of the value. An empty NextToken marks the last page.
type ResultPage struct {
	Columns   []Column
	Rows      [][]any
	NextToken string
}
