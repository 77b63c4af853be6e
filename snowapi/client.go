package snowapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vjain20/gojobsql/internal/auth"
	"github.com/vjain20/gojobsql/jobsql"
)

var (
	_ jobsql.Service  = (*Client)(nil)
	_ jobsql.Releaser = (*Client)(nil)
)

const statementsPath = "/api/v2/statements"

// Config holds config needed to initialize the client.
type Config struct {
	Account     string
	User        string
	Role        string
	Database    string
	Schema      string
	Warehouse   string
	PrivateKey  []byte // PEM (PKCS8)
	PublicKey   []byte // PEM
	Token       string // OAuth access token, used instead of key-pair auth when set
	ExpireAfter time.Duration
	HTTPTimeout time.Duration

	// BaseURL overrides https://<account>.snowflakecomputing.com.
	BaseURL string
	// StatementTimeout is the server-side limit sent with each statement; 0 uses the account default.
	StatementTimeout time.Duration
	// RequestsPerSecond throttles API calls; 0 disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// Client is a Snowflake SQL API client. It implements jobsql.Service:
// statements are submitted asynchronously, polled through their status URL,
// and their result partitions are served as pages.
type Client struct {
	baseURL    string
	httpClient *http.Client
	config     Config
	token      func() (string, error)
	tokenType  string
	limiter    *rate.Limiter

	mu      sync.Mutex
	results map[string]*result
}

// result caches what the first partition of a finished statement told us.
type result struct {
	rowType    []ColumnMeta
	partitions int
	first      *QueryResponse
}

// NewClient initializes the client with config and default timeout.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Account == "" || cfg.User == "" {
		return nil, fmt.Errorf("account and user are required")
	}

	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.snowflakecomputing.com", cfg.Account)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
		limiter:    rate.NewLimiter(rate.Inf, 0),
		results:    make(map[string]*result),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}

	if cfg.Token != "" {
		c.token = func() (string, error) { return cfg.Token, nil }
		c.tokenType = "OAUTH"
		return c, nil
	}
	src, err := auth.NewTokenSource(auth.TokenConfig{
		Account:     cfg.Account,
		User:        cfg.User,
		PrivateKey:  cfg.PrivateKey,
		PublicKey:   cfg.PublicKey,
		ExpireAfter: cfg.ExpireAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair: %w", err)
	}
	c.token = src.Token
	c.tokenType = "KEYPAIR_JWT"
	return c, nil
}

// SubmitJob submits a statement for asynchronous execution. A request's
// dataset maps to the database and schema the statement runs in.
func (c *Client) SubmitJob(ctx context.Context, req jobsql.SubmitRequest) (jobsql.JobHandle, error) {
	if req.UseLegacySQL {
		return jobsql.JobHandle{}, fmt.Errorf("legacy SQL dialect is not supported by the Snowflake SQL API")
	}
	if req.MaxBytesBilled != 0 || req.EncryptionKey != "" {
		return jobsql.JobHandle{}, fmt.Errorf("max bytes billed and encryption keys are not supported by the Snowflake SQL API")
	}

	body := QueryRequest{
		Statement: req.SQL,
		Timeout:   int(c.config.StatementTimeout / time.Second),
		Database:  c.config.Database,
		Schema:    c.config.Schema,
		Warehouse: c.config.Warehouse,
		Role:      c.config.Role,
		ResultSetMetaData: &ResultSetMetaConfig{
			Format: "jsonv2",
		},
	}
	if req.Dataset != nil {
		if req.Dataset.ProjectID != "" {
			body.Database = req.Dataset.ProjectID
		}
		body.Schema = req.Dataset.DatasetID
	}

	q := url.Values{}
	q.Set("async", "true")
	q.Set("nullable", "true")
	q.Set("requestId", uuid.NewString())

	var resp QueryResponse
	status, err := c.do(ctx, http.MethodPost, statementsPath+"?"+q.Encode(), body, &resp)
	if err != nil {
		return jobsql.JobHandle{}, err
	}
	if resp.StatementHandle == "" {
		return jobsql.JobHandle{}, fmt.Errorf("submit response carried no statement handle (code %s)", resp.Code)
	}
	if status == http.StatusOK {
		c.remember(resp.StatementHandle, &resp)
	}
	return jobsql.JobHandle{ID: resp.StatementHandle, Location: resp.StatementStatusURL}, nil
}

// PollJobStatus maps 202 to running, 200 to done and 422 to a failed statement.
func (c *Client) PollJobStatus(ctx context.Context, h jobsql.JobHandle) (jobsql.PollState, error) {
	if c.cached(h.ID) != nil {
		return jobsql.PollState{State: jobsql.StateDone}, nil
	}

	var resp QueryResponse
	status, err := c.do(ctx, http.MethodGet, statusPath(h.ID, 0), nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
			return jobsql.PollState{State: jobsql.StateFailed, Cause: apiErr}, nil
		}
		return jobsql.PollState{}, err
	}
	if status == http.StatusAccepted {
		return jobsql.PollState{State: jobsql.StateRunning}, nil
	}
	c.remember(h.ID, &resp)
	return jobsql.PollState{State: jobsql.StateDone}, nil
}

// FetchResultPage returns one result partition. Tokens are partition
// numbers; the empty token is partition 0.
func (c *Client) FetchResultPage(ctx context.Context, h jobsql.JobHandle, token string) (*jobsql.ResultPage, error) {
	partition := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid partition token %q", token)
		}
		partition = n
	}

	res := c.cached(h.ID)
	var resp *QueryResponse
	switch {
	case partition == 0 && res != nil && res.first != nil:
		resp = res.first
		c.mu.Lock()
		res.first = nil
		c.mu.Unlock()
	case partition > 0 && res == nil:
		return nil, fmt.Errorf("no result metadata for statement %s; fetch partition 0 first", h.ID)
	default:
		resp = &QueryResponse{}
		status, err := c.do(ctx, http.MethodGet, statusPath(h.ID, partition), nil, resp)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("statement %s has no results yet (status %d)", h.ID, status)
		}
		if partition == 0 {
			res = c.remember(h.ID, resp)
		}
	}

	if partition >= res.partitions {
		return nil, fmt.Errorf("partition %d out of range, statement %s has %d", partition, h.ID, res.partitions)
	}

	rows, err := normalizeRows(res.rowType, resp.Data)
	if err != nil {
		return nil, err
	}
	page := &jobsql.ResultPage{Columns: columns(res.rowType), Rows: rows}
	if partition+1 < res.partitions {
		page.NextToken = strconv.Itoa(partition + 1)
	} else {
		c.forget(h.ID)
	}
	return page, nil
}

// CancelJob cancels a running statement.
func (c *Client) CancelJob(ctx context.Context, h jobsql.JobHandle) error {
	defer c.forget(h.ID)
	_, err := c.do(ctx, http.MethodPost, statementsPath+"/"+url.PathEscape(h.ID)+"/cancel", nil, nil)
	return err
}

// ReleaseJob drops the cached result metadata of a statement whose
// remaining partitions will not be read.
func (c *Client) ReleaseJob(h jobsql.JobHandle) {
	c.forget(h.ID)
}

func statusPath(handle string, partition int) string {
	p := statementsPath + "/" + url.PathEscape(handle)
	if partition > 0 {
		p += "?partition=" + strconv.Itoa(partition)
	}
	return p
}

func (c *Client) remember(handle string, resp *QueryResponse) *result {
	res := &result{first: resp}
	if md := resp.ResultSetMetaData; md != nil {
		res.rowType = md.RowType
		res.partitions = len(md.PartitionInfo)
	}
	if res.partitions == 0 {
		res.partitions = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[handle] = res
	return res
}

func (c *Client) cached(handle string) *result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[handle]
}

func (c *Client) forget(handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.results, handle)
}

// do sends one API request. 200 and 202 responses are decoded into out;
// anything else is returned as an *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	// Create HTTP request
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	token, err := c.token()
	if err != nil {
		return 0, fmt.Errorf("failed to generate auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Snowflake-Authorization-Token-Type", c.tokenType)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// Send the request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// Handle error or partial responses
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
