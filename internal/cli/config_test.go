package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vjain20/gojobsql/jobsql"
)

const testConfigYAML = `current-profile: sf
profiles:
  sf:
    backend: snowflake
    account: myorg-acct
    user: alice
    token: oauth
    warehouse: WH
    timeout-ms: 60000
  bq:
    backend: bigquery
    project: proj
    location: EU
    dataset: other.sales
    result-mode: scrollable
    timezone: Europe/Berlin
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestUserConfig_ActiveProfile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadUserConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	tests := []struct {
		name        string
		override    string
		wantBackend string
		wantErr     string
	}{
		{name: "uses current profile", wantBackend: "snowflake"},
		{name: "override to bq", override: "bq", wantBackend: "bigquery"},
		{name: "unknown override", override: "nope", wantErr: `profile "nope" not found`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := cfg.ActiveProfile(tt.override)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBackend, p.Backend)
		})
	}

	sf, _ := cfg.ActiveProfile("")
	assert.Equal(t, "myorg-acct", sf.Account)
	assert.Equal(t, int64(60000), sf.TimeoutMS)
}

func TestLoadUserConfig_Missing(t *testing.T) {
	t.Parallel()

	cfg, err := LoadUserConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Profiles)

	p, err := cfg.ActiveProfile("")
	require.NoError(t, err)
	assert.Equal(t, Profile{}, p)
}

func TestLoadUserConfig_Invalid(t *testing.T) {
	t.Parallel()

	_, err := LoadUserConfig(writeConfig(t, "profiles: [1, 2"))
	assert.ErrorContains(t, err, "parse config")
}

func TestProfile_StatementConfig(t *testing.T) {
	t.Parallel()

	cfg, err := LoadUserConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)
	bq, err := cfg.ActiveProfile("bq")
	require.NoError(t, err)

	sc, err := bq.statementConfig()
	require.NoError(t, err)
	assert.Equal(t, "proj", sc.ProjectID)
	assert.Equal(t, &jobsql.DatasetRef{ProjectID: "other", DatasetID: "sales"}, sc.Dataset)
	assert.Equal(t, jobsql.Scrollable, sc.ResultMode)
	assert.Equal(t, "Europe/Berlin", sc.Location.String())

	sf, _ := cfg.ActiveProfile("sf")
	sc, err = sf.statementConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, sc.QueryTimeout)

	_, err = Profile{ResultMode: "sideways"}.statementConfig()
	assert.Error(t, err)
	_, err = Profile{Timezone: "Mars/Olympus"}.statementConfig()
	assert.Error(t, err)
}

func TestOpenService(t *testing.T) {
	t.Parallel()

	svc, err := openService(t.Context(), Profile{Account: "acct", User: "alice", Token: "oauth"})
	require.NoError(t, err)
	assert.NotNil(t, svc)

	_, err = openService(t.Context(), Profile{Backend: "snowflake", Account: "acct", User: "alice"})
	assert.ErrorContains(t, err, "private-key-file")

	_, err = openService(t.Context(), Profile{Backend: "snowflake", Account: "acct", User: "alice", PrivateKeyFile: filepath.Join(t.TempDir(), "k.p8")})
	assert.ErrorContains(t, err, "read private key")

	_, err = openService(t.Context(), Profile{Backend: "bigquery"})
	assert.ErrorContains(t, err, "project id is required")

	_, err = openService(t.Context(), Profile{Backend: "redshift"})
	assert.ErrorContains(t, err, "unknown backend")
}
