package jobsql

import (
	"log/slog"
	"sync"
)

// Conn is a logical connection to a remote query service. It hands out
// statements and cancels the ones still executing when it is closed.
type Conn struct {
	svc    Service
	cfg    Config
	logger *slog.Logger
	reg    *Registry

	mu     sync.Mutex
	closed bool
}

// NewConn validates cfg and returns a connection that runs queries on svc.
func NewConn(svc Service, cfg Config) (*Conn, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Conn{
		svc:    svc,
		cfg:    cfg,
		logger: cfg.Logger,
		reg:    NewRegistry(),
	}, nil
}

// NewStatement returns a statement that inherits the connection's settings.
func (c *Conn) NewStatement() (*Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &Error{Kind: ErrConnClosed}
	}
	return NewStatement(c.svc, c.cfg, c.reg)
}

// Executing returns the number of statements currently running a query.
func (c *Conn) Executing() int { return c.reg.Len() }

// Close cancels every executing statement. Later NewStatement and Execute
// calls fail with ErrConnClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if n := c.reg.Close(); n > 0 {
		c.logger.Info("connection closed, cancelled running statements", "count", n)
	}
	return nil
}
