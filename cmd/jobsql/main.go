// Command jobsql runs SQL against Snowflake or BigQuery as asynchronous jobs.
package main

import (
	"os"

	"github.com/vjain20/gojobsql/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
