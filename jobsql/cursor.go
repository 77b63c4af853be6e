package jobsql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ResultMode selects the cursor variant a statement produces.
type ResultMode int

const (
	// ForwardOnly buffers one page at a time and can only advance.
	ForwardOnly ResultMode = iota
	// Scrollable materializes every page and allows random access.
	Scrollable
)

func (m ResultMode) String() string {
	if m == Scrollable {
		return "scrollable"
	}
	return "forward-only"
}

// ParseResultMode accepts "forward-only" / "forward" and "scrollable" / "scroll".
func ParseResultMode(s string) (ResultMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "forward", "forward-only", "forward_only":
		return ForwardOnly, nil
	case "scroll", "scrollable":
		return Scrollable, nil
	}
	return ForwardOnly, fmt.Errorf("unknown result mode %q", s)
}

// Cursor gives row access to the result of a completed job. Positioning
// methods other than Next are only available in Scrollable mode; on a
// ForwardOnly cursor they fail with ErrUnsupportedOperation.
//
// Column indexes are 1-based. A NULL cell decodes to (nil, nil) and sets
// WasNull until the next Get.
type Cursor interface {
	Next() (bool, error)
	Previous() (bool, error)
	Absolute(n int) (bool, error)
	Relative(n int) (bool, error)
	First() (bool, error)
	Last() (bool, error)
	BeforeFirst() error
	AfterLast() error

	Get(col int) (any, error)
	WasNull() bool
	FindColumn(label string) (int, error)
	Columns() []Column
	// Row returns the 1-based number of the current row, or 0 when the
	// cursor is not on a row.
	Row() int
	Mode() ResultMode
	Close() error
}

var (
	_ Cursor = (*forwardCursor)(nil)
	_ Cursor = (*scrollCursor)(nil)
)

// newCursor builds the cursor variant for mode from the first page of job.
// The forward-only variant keeps ctx for fetching later pages.
func newCursor(ctx context.Context, mode ResultMode, job *JobSession, first *ResultPage, loc *time.Location) (Cursor, error) {
	if mode == Scrollable {
		return newScrollCursor(ctx, job, first, loc)
	}
	c := &forwardCursor{ctx: ctx, job: job, page: first, idx: -1}
	c.init(first.Columns, loc, job)
	return c, nil
}

type cursorBase struct {
	mu      sync.Mutex
	columns []Column
	loc     *time.Location
	sql     string
	jobID   string
	closed  bool
	wasNull bool
}

func (b *cursorBase) init(columns []Column, loc *time.Location, job *JobSession) {
	b.columns = columns
	b.loc = loc
	b.sql = job.SQL()
	b.jobID = job.Handle().ID
}

func (b *cursorBase) err(kind Kind, msg string) *Error {
	return &Error{Kind: kind, SQL: b.sql, JobID: b.jobID, Msg: msg}
}

func (b *cursorBase) checkOpen() error {
	if b.closed {
		return b.err(ErrClosedCursor, "")
	}
	return nil
}

func (b *cursorBase) checkColumn(col int) error {
	if col < 1 || col > len(b.columns) {
		return b.err(ErrInvalidColumn, fmt.Sprintf("column %d not in [1, %d]", col, len(b.columns)))
	}
	return nil
}

func (b *cursorBase) decode(row []any, col int) (any, error) {
	b.wasNull = false
	if col > len(row) {
		return nil, b.err(ErrMalformedValue, fmt.Sprintf("row has %d cells, column %d requested", len(row), col))
	}
	c := b.columns[col-1]
	var raw string
	switch v := row[col-1].(type) {
	case nil:
		b.wasNull = true
		return nil, nil
	case string:
		raw = v
	default:
		raw = fmt.Sprint(v)
	}
	v, err := Decode(c.Type, raw, b.loc)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			e.SQL, e.JobID = b.sql, b.jobID
			e.Msg = fmt.Sprintf("column %q: %s", c.Name, e.Msg)
		}
		return nil, err
	}
	return v, nil
}

func (b *cursorBase) WasNull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wasNull
}

func (b *cursorBase) Columns() []Column {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Column(nil), b.columns...)
}

func (b *cursorBase) FindColumn(label string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	for i, c := range b.columns {
		if c.Name == label {
			return i + 1, nil
		}
	}
	return 0, b.err(ErrNoSuchColumn, fmt.Sprintf("%q", label))
}

// forwardCursor holds a single page and fetches the next one when Next
// crosses a page boundary.
type forwardCursor struct {
	cursorBase
	ctx       context.Context
	job       *JobSession
	page      *ResultPage
	idx       int // index into page.Rows, -1 before the first row of the page
	row       int // rows delivered so far
	exhausted bool
}

func (c *forwardCursor) Mode() ResultMode { return ForwardOnly }

func (c *forwardCursor) Next() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if c.exhausted {
		return false, nil
	}
	if c.idx+1 < len(c.page.Rows) {
		c.idx++
		c.row++
		return true, nil
	}
	for c.page.NextToken != "" {
		next, err := c.job.FetchNextPage(c.ctx, c.page.NextToken)
		if err != nil {
			return false, err
		}
		c.page, c.idx = next, -1
		if len(next.Rows) > 0 {
			c.idx = 0
			c.row++
			return true, nil
		}
	}
	c.exhausted = true
	c.page = &ResultPage{}
	c.idx = -1
	return false, nil
}

func (c *forwardCursor) Get(col int) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wasNull = false
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := c.checkColumn(col); err != nil {
		return nil, err
	}
	if c.row == 0 && (c.exhausted || (len(c.page.Rows) == 0 && c.page.NextToken == "")) {
		return nil, c.err(ErrEmptyResult, "")
	}
	if c.exhausted || c.idx < 0 {
		return nil, c.err(ErrCursorNotPositioned, "")
	}
	return c.decode(c.page.Rows[c.idx], col)
}

func (c *forwardCursor) Row() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exhausted || c.idx < 0 {
		return 0
	}
	return c.row
}

func (c *forwardCursor) unsupported(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.err(ErrUnsupportedOperation, op+" on a forward-only cursor")
}

func (c *forwardCursor) Previous() (bool, error)    { return false, c.unsupported("Previous") }
func (c *forwardCursor) Absolute(int) (bool, error) { return false, c.unsupported("Absolute") }
func (c *forwardCursor) Relative(int) (bool, error) { return false, c.unsupported("Relative") }
func (c *forwardCursor) First() (bool, error)       { return false, c.unsupported("First") }
func (c *forwardCursor) Last() (bool, error)        { return false, c.unsupported("Last") }
func (c *forwardCursor) BeforeFirst() error         { return c.unsupported("BeforeFirst") }
func (c *forwardCursor) AfterLast() error           { return c.unsupported("AfterLast") }

func (c *forwardCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.page = &ResultPage{}
	if c.job != nil {
		c.job.Release()
		c.job = nil
	}
	return nil
}

// scrollCursor holds every row of the result. pos is -1 before the first
// row and len(rows) after the last.
type scrollCursor struct {
	cursorBase
	rows [][]any
	pos  int
}

func newScrollCursor(ctx context.Context, job *JobSession, first *ResultPage, loc *time.Location) (*scrollCursor, error) {
	defer job.Release()
	rows := append([][]any(nil), first.Rows...)
	for token := first.NextToken; token != ""; {
		page, err := job.FetchNextPage(ctx, token)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page.Rows...)
		token = page.NextToken
	}
	c := &scrollCursor{rows: rows, pos: -1}
	c.init(first.Columns, loc, job)
	return c, nil
}

func (c *scrollCursor) Mode() ResultMode { return Scrollable }

func (c *scrollCursor) onRow() bool { return c.pos >= 0 && c.pos < len(c.rows) }

// moveTo clamps p to the sentinels and reports whether the cursor is on a row.
func (c *scrollCursor) moveTo(p int) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	c.pos = max(-1, min(p, len(c.rows)))
	return c.onRow(), nil
}

func (c *scrollCursor) Next() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveTo(c.pos + 1)
}

func (c *scrollCursor) Previous() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveTo(c.pos - 1)
}

// Absolute moves to row n (1-based). Negative n counts back from the end,
// so -1 is the last row; 0 moves before the first row.
func (c *scrollCursor) Absolute(n int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case n > 0:
		return c.moveTo(n - 1)
	case n < 0:
		return c.moveTo(len(c.rows) + n)
	default:
		return c.moveTo(-1)
	}
}

func (c *scrollCursor) Relative(n int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveTo(c.pos + n)
}

func (c *scrollCursor) First() (bool, error) { return c.Absolute(1) }
func (c *scrollCursor) Last() (bool, error)  { return c.Absolute(-1) }

func (c *scrollCursor) BeforeFirst() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.moveTo(-1)
	return err
}

func (c *scrollCursor) AfterLast() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.moveTo(len(c.rows))
	return err
}

func (c *scrollCursor) Get(col int) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wasNull = false
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := c.checkColumn(col); err != nil {
		return nil, err
	}
	if len(c.rows) == 0 {
		return nil, c.err(ErrEmptyResult, "")
	}
	if !c.onRow() {
		return nil, c.err(ErrCursorNotPositioned, "")
	}
	return c.decode(c.rows[c.pos], col)
}

func (c *scrollCursor) Row() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.onRow() {
		return 0
	}
	return c.pos + 1
}

func (c *scrollCursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.rows = nil
	c.pos = -1
	return nil
}
