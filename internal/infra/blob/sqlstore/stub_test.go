package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// stubConn serves the STORAGE_NODE statements issued in the postgres dialect
// and records every normalized statement it receives.
type stubConn struct {
	mu       sync.Mutex
	Execs    []string
	rows     []stubRow
	FailPing bool
	FailDDL  bool
}

type stubRow struct {
	location string
	contents []byte
}

var stubSeq atomic.Int64

// newStubOpen returns an sqlOpen replacement backed by a fresh stub connection.
func newStubOpen() (func(string, string) (*sql.DB, error), *stubConn) {
	conn := &stubConn{}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	return func(string, string) (*sql.DB, error) { return sql.Open(name, "stub") }, conn
}

type stubDriver struct{ conn *stubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return stubTx{}, nil
}

func (c *stubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

func argBytes(v driver.Value) []byte {
	if v == nil {
		return nil
	}
	b := v.([]byte)
	return append([]byte{}, b...)
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	switch {
	case strings.HasPrefix(query, "CREATE TABLE"):
		if c.FailDDL {
			return nil, fmt.Errorf("ddl fail")
		}
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(query, "INSERT INTO STORAGE_NODE (LOCATION, CONTENTS) VALUES ($1, $2)"):
		c.rows = append(c.rows, stubRow{location: args[0].Value.(string), contents: argBytes(args[1].Value)})
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(query, "UPDATE STORAGE_NODE SET LOCATION = $1, CONTENTS = $2 WHERE LOCATION = $3"):
		var n int64
		for i := range c.rows {
			if c.rows[i].location == args[2].Value.(string) {
				c.rows[i] = stubRow{location: args[0].Value.(string), contents: argBytes(args[1].Value)}
				n++
			}
		}
		return driver.RowsAffected(n), nil
	case strings.HasPrefix(query, "DELETE FROM STORAGE_NODE WHERE LOCATION = $1"):
		kept := c.rows[:0]
		for _, r := range c.rows {
			if r.location != args[0].Value.(string) {
				kept = append(kept, r)
			}
		}
		c.rows = kept
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unexpected exec: %s", query)
}

func (c *stubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	switch {
	case strings.HasPrefix(query, "SELECT COUNT(*) FROM STORAGE_NODE WHERE LOCATION = $1"):
		var n int64
		for _, r := range c.rows {
			if r.location == args[0].Value.(string) {
				n++
			}
		}
		return &stubRows{cols: []string{"count"}, rows: [][]driver.Value{{n}}}, nil
	case strings.HasPrefix(query, "SELECT LOCATION, CONTENTS, CONTENTS IS NULL FROM STORAGE_NODE"):
		filter := strings.Contains(query, "WHERE LOCATION = $1")
		out := &stubRows{cols: []string{"location", "contents", "isnull"}}
		for _, r := range c.rows {
			if filter && r.location != args[0].Value.(string) {
				continue
			}
			var contents driver.Value
			if r.contents != nil {
				contents = append([]byte{}, r.contents...)
			}
			out.rows = append(out.rows, []driver.Value{r.location, contents, r.contents == nil})
			if filter {
				break
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected query: %s", query)
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func (c *stubConn) statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Execs...)
}
