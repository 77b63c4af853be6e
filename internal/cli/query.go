package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vjain20/gojobsql/jobsql"
)

type queryFlags struct {
	files        []string
	parallel     int
	maxRows      int
	backend      string
	project      string
	dataset      string
	timeout      time.Duration
	pollInterval time.Duration
	scrollable   bool
}

// source is one SQL text to run and the name it is reported under.
type source struct {
	label string
	sql   string
}

// queryResult is what gets printed for one source.
type queryResult struct {
	Source  string   `json:"source"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var f queryFlags

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run SQL and print the result",
		Long: `Run a statement given as an argument, or one statement per --file.
Files run concurrently, up to --parallel at a time; the first failure
cancels the rest.`,
		Example: `  jobsql query "SELECT CURRENT_TIMESTAMP()"
  jobsql query -p prod --file daily.sql --file weekly.sql`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := f.sources(args)
			if err != nil {
				return err
			}
			return runQueries(cmd, opts, f, sources)
		},
	}

	cmd.Flags().StringArrayVarP(&f.files, "file", "f", nil, "Read SQL from a file (repeatable)")
	cmd.Flags().IntVar(&f.parallel, "parallel", 4, "Maximum statements running at once")
	cmd.Flags().IntVar(&f.maxRows, "max-rows", 0, "Stop reading each result after this many rows (0 = all)")
	cmd.Flags().StringVar(&f.backend, "backend", "", "Backend override (snowflake, bigquery)")
	cmd.Flags().StringVar(&f.project, "project", "", "Project override")
	cmd.Flags().StringVar(&f.dataset, "dataset", "", "Default dataset, as dataset or project.dataset")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Query timeout (default 5m)")
	cmd.Flags().DurationVar(&f.pollInterval, "poll-interval", 0, "Job status poll interval (default 500ms)")
	cmd.Flags().BoolVar(&f.scrollable, "scrollable", false, "Materialize results with a scrollable cursor")
	return cmd
}

func (f queryFlags) sources(args []string) ([]source, error) {
	var out []source
	if len(args) > 0 {
		out = append(out, source{label: "args", sql: strings.Join(args, " ")})
	}
	for _, path := range f.files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		sql := strings.TrimSpace(string(data))
		if sql == "" {
			return nil, fmt.Errorf("%s is empty", path)
		}
		out = append(out, source{label: filepath.Base(path), sql: sql})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no SQL given: pass a statement or --file")
	}
	return out, nil
}

// config layers the sources of statement settings: flags over JOBSQL_*
// environment variables over the profile.
func (f queryFlags) config(cmd *cobra.Command, p Profile) (jobsql.Config, error) {
	cfg, err := p.statementConfig()
	if err != nil {
		return jobsql.Config{}, err
	}
	env, err := jobsql.LoadConfigFromEnv()
	if err != nil {
		return jobsql.Config{}, err
	}
	overlay(&cfg, env)

	flags := cmd.Flags()
	if flags.Changed("project") {
		cfg.ProjectID = f.project
	}
	if flags.Changed("dataset") {
		if cfg.Dataset, err = jobsql.ParseDatasetRef(f.dataset, cfg.ProjectID); err != nil {
			return jobsql.Config{}, err
		}
	}
	if flags.Changed("timeout") {
		cfg.QueryTimeout = f.timeout
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval = f.pollInterval
	}
	if f.scrollable {
		cfg.ResultMode = jobsql.Scrollable
	}
	return cfg, cfg.Validate()
}

func overlay(cfg *jobsql.Config, env jobsql.Config) {
	if env.ProjectID != "" {
		cfg.ProjectID = env.ProjectID
	}
	if env.Dataset != nil {
		cfg.Dataset = env.Dataset
	}
	if env.UseLegacySQL {
		cfg.UseLegacySQL = true
	}
	if env.MaxBytesBilled != 0 {
		cfg.MaxBytesBilled = env.MaxBytesBilled
	}
	if env.EncryptionKey != "" {
		cfg.EncryptionKey = env.EncryptionKey
	}
	if env.PollInterval != 0 {
		cfg.PollInterval = env.PollInterval
	}
	if env.QueryTimeout != 0 {
		cfg.QueryTimeout = env.QueryTimeout
	}
	if env.ResultMode != jobsql.ForwardOnly {
		cfg.ResultMode = env.ResultMode
	}
	if env.Location != nil {
		cfg.Location = env.Location
	}
}

func runQueries(cmd *cobra.Command, opts *rootOptions, f queryFlags, sources []source) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	profile := opts.active
	if cmd.Flags().Changed("backend") {
		profile.Backend = f.backend
	}
	if cmd.Flags().Changed("project") {
		profile.Project = f.project
	}
	cfg, err := f.config(cmd, profile)
	if err != nil {
		return err
	}
	cfg.Logger = opts.logger

	svc, err := opts.open(ctx, profile)
	if err != nil {
		return err
	}
	conn, err := jobsql.NewConn(svc, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	results := make([]*queryResult, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.parallel, 1))
	for i, src := range sources {
		g.Go(func() error {
			res, err := runQuery(gctx, conn, src, f.maxRows)
			if err != nil {
				return fmt.Errorf("%s: %w", src.label, err)
			}
			results[i] = res
			opts.logger.Info("query finished", "source", src.label, "rows", len(res.Rows))
			return nil
		})
	}
	err = g.Wait()

	var done []*queryResult
	for _, r := range results {
		if r != nil {
			done = append(done, r)
		}
	}
	if perr := printResults(cmd.OutOrStdout(), opts.output, done); perr != nil && err == nil {
		err = perr
	}
	return err
}

func runQuery(ctx context.Context, conn *jobsql.Conn, src source, maxRows int) (*queryResult, error) {
	stmt, err := conn.NewStatement()
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	cur, err := stmt.Execute(ctx, src.sql)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	cols := cur.Columns()
	res := &queryResult{Source: src.label, Columns: make([]string, len(cols)), Rows: [][]any{}}
	for i, c := range cols {
		res.Columns[i] = c.Name
	}
	for maxRows <= 0 || len(res.Rows) < maxRows {
		ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		row := make([]any, len(cols))
		for i := range cols {
			if row[i], err = cur.Get(i + 1); err != nil {
				return nil, err
			}
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}
