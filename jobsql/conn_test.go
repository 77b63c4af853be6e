package jobsql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_CloseCancelsExecutingStatements(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.pollFn = running
	cfg := testConfig()
	cfg.PollInterval = time.Hour

	conn, err := NewConn(svc, cfg)
	require.NoError(t, err)

	const n = 3
	errc := make(chan error, n)
	for i := 0; i < n; i++ {
		stmt, err := conn.NewStatement()
		require.NoError(t, err)
		go func() {
			_, err := stmt.Execute(context.Background(), "SELECT slow()")
			errc <- err
		}()
	}
	require.Eventually(t, func() bool { return conn.Executing() == n }, 5*time.Second, time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Zero(t, conn.Executing())
	for i := 0; i < n; i++ {
		assert.ErrorIs(t, <-errc, ErrCancelled)
	}
	assert.Equal(t, n, svc.cancelCount())
	require.NoError(t, conn.Close())

	_, err = conn.NewStatement()
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestConn_ExecuteAfterCloseFails(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	conn, err := NewConn(svc, testConfig())
	require.NoError(t, err)
	stmt, err := conn.NewStatement()
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	_, err = stmt.Execute(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrConnClosed)
	assert.Zero(t, svc.submitCount())
	assert.Equal(t, StatementIdle, stmt.State())
}

func TestConn_StatementsInheritSettings(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.QueryTimeout = 42 * time.Second
	conn, err := NewConn(newFakeService(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	stmt, err := conn.NewStatement()
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, stmt.QueryTimeout())
}

func TestRegistry_MembershipOnlyDuringExecute(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.pages[""] = intPage("", "1")
	reg := NewRegistry()
	stmt, err := NewStatement(svc, testConfig(), reg)
	require.NoError(t, err)

	assert.Zero(t, reg.Len())
	_, err = stmt.Execute(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Zero(t, reg.Len())
	assert.Zero(t, reg.CancelAll())
}

func TestRegistry_CancelAllKeepsAcceptingWork(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	svc.pollFn = running
	cfg := testConfig()
	cfg.PollInterval = time.Hour
	reg := NewRegistry()
	stmt, err := NewStatement(svc, cfg, reg)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := stmt.Execute(context.Background(), "SELECT slow()")
		errc <- err
	}()
	svc.waitPolls(1)

	assert.Equal(t, 1, reg.CancelAll())
	assert.ErrorIs(t, <-errc, ErrCancelled)
	assert.Zero(t, reg.Len())

	svc.mu.Lock()
	svc.pollFn = nil
	svc.mu.Unlock()
	svc.pages[""] = intPage("")
	_, err = stmt.Execute(context.Background(), "SELECT 1")
	require.NoError(t, err)
}
