// Package jobsql runs SQL against remote query services that execute
// queries as asynchronous jobs, and exposes the result through a blocking
// Execute and a row cursor.
//
// A Conn hands out Statements. Statement.Execute submits the query, polls
// the job until it finishes and returns a Cursor over the first result page;
// further pages are fetched as the cursor advances (ForwardOnly) or up front
// (Scrollable). Statement.Cancel and Conn.Close stop running executions from
// any goroutine and cancel the remote job.
//
//	conn, err := jobsql.NewConn(svc, jobsql.Config{ProjectID: "my-project"})
//	if err != nil {
//		// handle error
//	}
//	defer conn.Close()
//
//	stmt, _ := conn.NewStatement()
//	defer stmt.Close()
//	cur, err := stmt.Execute(ctx, "SELECT name, created FROM users")
//	if err != nil {
//		// handle error
//	}
//	for {
//		ok, err := cur.Next()
//		if err != nil || !ok {
//			break
//		}
//		name, _ := cur.Get(1)
//		fmt.Println(name)
//	}
//
// Service implementations for the Snowflake SQL API and BigQuery live in the
// snowapi and bqapi packages.
package jobsql
