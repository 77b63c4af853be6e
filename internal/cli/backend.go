package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vjain20/gojobsql/bqapi"
	"github.com/vjain20/gojobsql/jobsql"
	"github.com/vjain20/gojobsql/snowapi"
)

func openService(ctx context.Context, p Profile) (jobsql.Service, error) {
	switch strings.ToLower(p.Backend) {
	case "", "snowflake":
		cfg := snowapi.Config{
			Account:           p.Account,
			User:              p.User,
			Role:              p.Role,
			Database:          p.Database,
			Schema:            p.Schema,
			Warehouse:         p.Warehouse,
			Token:             p.Token,
			BaseURL:           p.BaseURL,
			RequestsPerSecond: p.RequestsPerSec,
		}
		if cfg.Token == "" {
			if p.PrivateKeyFile == "" {
				return nil, fmt.Errorf("snowflake profile needs a token or a private-key-file")
			}
			key, err := os.ReadFile(p.PrivateKeyFile)
			if err != nil {
				return nil, fmt.Errorf("read private key: %w", err)
			}
			cfg.PrivateKey = key
		}
		return snowapi.NewClient(cfg)

	case "bigquery":
		return bqapi.NewService(ctx, bqapi.Config{
			ProjectID:       p.Project,
			Location:        p.Location,
			CredentialsFile: p.CredentialsFile,
			Endpoint:        p.Endpoint,
			PageSize:        p.PageSize,
		})

	default:
		return nil, fmt.Errorf("unknown backend %q: use 'snowflake' or 'bigquery'", p.Backend)
	}
}
