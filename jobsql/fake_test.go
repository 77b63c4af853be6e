package jobsql

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// fakeService is a scripted Service. pollFn receives the 1-based number of
// the poll call; pages maps continuation tokens to pages, "" being the first.
type fakeService struct {
	mu sync.Mutex

	submitErr error
	pollFn    func(call int) (PollState, error)
	pages     map[string]*ResultPage
	fetchErr  map[string]error
	cancelErr error

	submitted []SubmitRequest
	polls     int
	pollTimes []time.Time
	cancels   int
	released  int
	fetches   []string

	polled chan int
}

func newFakeService() *fakeService {
	return &fakeService{
		pages:    map[string]*ResultPage{},
		fetchErr: map[string]error{},
		polled:   make(chan int, 100),
	}
}

func (f *fakeService) SubmitJob(_ context.Context, req SubmitRequest) (JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return JobHandle{}, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return JobHandle{ProjectID: req.ProjectID, ID: fmt.Sprintf("job-%d", len(f.submitted)), Location: "US"}, nil
}

func (f *fakeService) PollJobStatus(_ context.Context, _ JobHandle) (PollState, error) {
	f.mu.Lock()
	f.polls++
	n := f.polls
	f.pollTimes = append(f.pollTimes, time.Now())
	fn := f.pollFn
	f.mu.Unlock()

	defer func() {
		select {
		case f.polled <- n:
		default:
		}
	}()
	if fn == nil {
		return PollState{State: StateDone}, nil
	}
	return fn(n)
}

func (f *fakeService) FetchResultPage(_ context.Context, _ JobHandle, token string) (*ResultPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, token)
	if err := f.fetchErr[token]; err != nil {
		return nil, err
	}
	p, ok := f.pages[token]
	if !ok {
		return nil, fmt.Errorf("unknown page token %q", token)
	}
	return p, nil
}

func (f *fakeService) CancelJob(_ context.Context, _ JobHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return f.cancelErr
}

func (f *fakeService) ReleaseJob(JobHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
}

func (f *fakeService) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func (f *fakeService) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

func (f *fakeService) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

// waitPolls blocks until at least n polls have completed.
func (f *fakeService) waitPolls(n int) {
	for got := range f.polled {
		if got >= n {
			return
		}
	}
}

func running(int) (PollState, error) { return PollState{State: StateRunning}, nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	return Config{
		ProjectID:    "proj",
		PollInterval: 5 * time.Millisecond,
		QueryTimeout: 10 * time.Second,
		Logger:       discardLogger(),
	}
}

func intPage(next string, values ...string) *ResultPage {
	p := &ResultPage{Columns: []Column{{Name: "n", Type: TypeInteger}}, NextToken: next}
	for _, v := range values {
		p.Rows = append(p.Rows, []any{v})
	}
	return p
}

func testSession(svc Service) *JobSession {
	return &JobSession{
		svc:    svc,
		handle: JobHandle{ProjectID: "proj", ID: "job-1"},
		sql:    "SELECT n FROM t",
		logger: discardLogger(),
		done:   true,
	}
}
