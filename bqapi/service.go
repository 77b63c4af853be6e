// Package bqapi runs jobsql statements as BigQuery query jobs through the
// BigQuery REST API.
package bqapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	bigquery "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/vjain20/gojobsql/jobsql"
)

var _ jobsql.Service = (*Service)(nil)

// Config configures the BigQuery backend.
type Config struct {
	ProjectID string
	// Location is the default job location, e.g. "US" or "europe-west1".
	Location string
	// CredentialsFile is a service account key file. Application default
	// credentials are used when empty.
	CredentialsFile string
	// Endpoint overrides the API base URL.
	Endpoint string
	// PageSize caps rows per result page; 0 lets the server decide.
	PageSize int64
}

// Service is a jobsql.Service backed by the BigQuery v2 jobs API.
type Service struct {
	api *bigquery.Service
	cfg Config
}

// NewService creates the API client. Extra options are appended after the
// ones derived from cfg.
func NewService(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Service, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project id is required")
	}

	var all []option.ClientOption
	if cfg.CredentialsFile != "" {
		all = append(all, option.WithAuthCredentialsFile(option.ServiceAccount, cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		all = append(all, option.WithEndpoint(cfg.Endpoint))
	}
	all = append(all, opts...)

	api, err := bigquery.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	return &Service{api: api, cfg: cfg}, nil
}

// SubmitJob inserts a query job with a client-generated job id.
func (s *Service) SubmitJob(ctx context.Context, req jobsql.SubmitRequest) (jobsql.JobHandle, error) {
	project := req.ProjectID
	if project == "" {
		project = s.cfg.ProjectID
	}

	useLegacy := req.UseLegacySQL
	query := &bigquery.JobConfigurationQuery{
		Query:              req.SQL,
		UseLegacySql:       &useLegacy,
		MaximumBytesBilled: req.MaxBytesBilled,
	}
	if req.Dataset != nil {
		ds := &bigquery.DatasetReference{ProjectId: req.Dataset.ProjectID, DatasetId: req.Dataset.DatasetID}
		if ds.ProjectId == "" {
			ds.ProjectId = project
		}
		query.DefaultDataset = ds
	}
	if req.EncryptionKey != "" {
		query.DestinationEncryptionConfiguration = &bigquery.EncryptionConfiguration{KmsKeyName: req.EncryptionKey}
	}

	job := &bigquery.Job{
		JobReference: &bigquery.JobReference{
			ProjectId: project,
			JobId:     "jobsql_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
			Location:  s.cfg.Location,
		},
		Configuration: &bigquery.JobConfiguration{Query: query},
	}

	inserted, err := s.api.Jobs.Insert(project, job).Context(ctx).Do()
	if err != nil {
		return jobsql.JobHandle{}, err
	}
	ref := inserted.JobReference
	if ref == nil {
		ref = job.JobReference
	}
	return jobsql.JobHandle{ProjectID: ref.ProjectId, ID: ref.JobId, Location: ref.Location}, nil
}

// PollJobStatus reads the job's status. A DONE job with an error result, or
// a job the API no longer knows, is reported as failed.
func (s *Service) PollJobStatus(ctx context.Context, h jobsql.JobHandle) (jobsql.PollState, error) {
	call := s.api.Jobs.Get(h.ProjectID, h.ID).Context(ctx)
	if h.Location != "" {
		call = call.Location(h.Location)
	}
	job, err := call.Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return jobsql.PollState{State: jobsql.StateFailed, Cause: apiErr}, nil
		}
		return jobsql.PollState{}, err
	}

	if job.Status == nil || job.Status.State != "DONE" {
		return jobsql.PollState{State: jobsql.StateRunning}, nil
	}
	if e := job.Status.ErrorResult; e != nil {
		return jobsql.PollState{State: jobsql.StateFailed, Cause: &JobError{Reason: e.Reason, Message: e.Message, Location: e.Location}}, nil
	}
	return jobsql.PollState{State: jobsql.StateDone}, nil
}

// FetchResultPage reads one page of a finished job's results.
func (s *Service) FetchResultPage(ctx context.Context, h jobsql.JobHandle, token string) (*jobsql.ResultPage, error) {
	call := s.api.Jobs.GetQueryResults(h.ProjectID, h.ID).Context(ctx)
	if h.Location != "" {
		call = call.Location(h.Location)
	}
	if token != "" {
		call = call.PageToken(token)
	}
	if s.cfg.PageSize > 0 {
		call = call.MaxResults(s.cfg.PageSize)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, err
	}
	if !resp.JobComplete {
		return nil, fmt.Errorf("job %s is not complete", h.ID)
	}

	page := &jobsql.ResultPage{NextToken: resp.PageToken}
	if resp.Schema != nil {
		for _, f := range resp.Schema.Fields {
			page.Columns = append(page.Columns, jobsql.Column{Name: f.Name, Type: columnType(f)})
		}
	}
	page.Rows = make([][]any, 0, len(resp.Rows))
	for i, r := range resp.Rows {
		if len(r.F) != len(page.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", i, len(r.F), len(page.Columns))
		}
		row := make([]any, len(r.F))
		for j, cell := range r.F {
			if row[j], err = cellValue(cell.V); err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, page.Columns[j].Name, err)
			}
		}
		page.Rows = append(page.Rows, row)
	}
	return page, nil
}

// CancelJob requests cancellation of a job.
func (s *Service) CancelJob(ctx context.Context, h jobsql.JobHandle) error {
	call := s.api.Jobs.Cancel(h.ProjectID, h.ID).Context(ctx)
	if h.Location != "" {
		call = call.Location(h.Location)
	}
	_, err := call.Do()
	return err
}

// JobError is the error result of a failed job.
type JobError struct {
	Reason   string
	Message  string
	Location string
}

func (e *JobError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("bigquery job failed: %s: %s (at %s)", e.Reason, e.Message, e.Location)
	}
	return fmt.Sprintf("bigquery job failed: %s: %s", e.Reason, e.Message)
}

// columnType flattens repeated and record fields to STRING; their cells are
// rendered as JSON.
func columnType(f *bigquery.TableFieldSchema) string {
	if f.Mode == "REPEATED" {
		return jobsql.TypeString
	}
	switch t := jobsql.CanonicalType(f.Type); t {
	case "RECORD", "STRUCT", "JSON":
		return jobsql.TypeString
	default:
		return t
	}
}

func cellValue(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}
