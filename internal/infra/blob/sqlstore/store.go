// Package sqlstore keeps blobs in a single STORAGE_NODE table of an embedded
// SQLite database or a PostgreSQL server.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"go.uber.org/atomic"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"blobstore/internal/blob/core"
)

// Dialect selects the SQL engine.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const (
	defaultFile = "blobstore.db"
	defaultDSN  = "postgres://localhost/blobstore?sslmode=disable"
	memoryDSN   = ":memory:"
)

// Config holds construction parameters.
type Config struct {
	Dialect Dialect // default sqlite
	// Root is the sqlite directory. Empty selects an ephemeral in-memory database.
	Root string
	// File is the sqlite file name under Root (default blobstore.db).
	File string
	// DSN is the postgres connection URL (default postgres://localhost/blobstore).
	DSN      string
	Username string
	Password string
}

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store implements core.Store over one table without uniqueness constraints;
// callers keep locations unique. Every statement uses parameter binding.
type Store struct {
	db      *sql.DB
	dialect Dialect
	target  string // sqlite path or redacted postgres DSN
	closed  atomic.Bool
	q       queries
	log     *slog.Logger
}

// NewStore opens the database, verifies connectivity and ensures the table exists.
// Any failure is reported as KindInit.
func NewStore(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.Dialect == "" {
		cfg.Dialect = DialectSQLite
	}
	driverName, dsn, target, err := resolve(cfg)
	if err != nil {
		return nil, core.E(core.KindInit, "init", "resolve sql target", err)
	}
	log.Info("sql store init",
		slog.String("dialect", string(cfg.Dialect)),
		slog.String("target", target),
		slog.String("username", cfg.Username))

	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, core.E(core.KindInit, "init", "open "+string(cfg.Dialect), err)
	}
	// One long-lived connection; an in-memory sqlite database lives only as long as it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, core.E(core.KindInit, "init", "ping "+string(cfg.Dialect), err)
	}
	q := queriesFor(cfg.Dialect)
	if _, err := db.ExecContext(ctx, q.ddl); err != nil {
		_ = db.Close()
		return nil, core.E(core.KindInit, "init", "create STORAGE_NODE table", err)
	}
	return &Store{db: db, dialect: cfg.Dialect, target: target, q: q, log: log}, nil
}

func resolve(cfg Config) (driverName, dsn, target string, err error) {
	switch cfg.Dialect {
	case DialectSQLite:
		if cfg.Root == "" {
			return "sqlite", memoryDSN, memoryDSN, nil
		}
		file := cfg.File
		if file == "" {
			file = defaultFile
		}
		if err := os.MkdirAll(cfg.Root, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return "", "", "", fmt.Errorf("create dirs: %w", err)
		}
		path := filepath.Join(cfg.Root, file)
		return "sqlite", path, path, nil
	case DialectPostgres:
		dsn, err := postgresDSN(cfg)
		if err != nil {
			return "", "", "", err
		}
		return "pgx", dsn, redact(dsn), nil
	default:
		return "", "", "", fmt.Errorf("unknown sql dialect %q", cfg.Dialect)
	}
}

// postgresDSN applies Username/Password onto the configured DSN.
func postgresDSN(cfg Config) (string, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = defaultDSN
	}
	if cfg.Username == "" && cfg.Password == "" {
		return dsn, nil
	}
	if !strings.Contains(dsn, "://") {
		// keyword/value form
		if cfg.Username != "" {
			dsn += " user=" + quoteKV(cfg.Username)
		}
		if cfg.Password != "" {
			dsn += " password=" + quoteKV(cfg.Password)
		}
		return strings.TrimSpace(dsn), nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	user := cfg.Username
	if user == "" && u.User != nil {
		user = u.User.Username()
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(user, cfg.Password)
	} else {
		u.User = url.User(user)
	}
	return u.String(), nil
}

func quoteKV(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

func redact(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		return u.Redacted()
	}
	if i := strings.Index(dsn, "password="); i >= 0 {
		return dsn[:i] + "password=xxxxx"
	}
	return dsn
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverSQL }

// Dialect returns the configured engine.
func (s *Store) Dialect() Dialect { return s.dialect }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) ready(op string) error {
	if s.closed.Load() {
		return core.E(core.KindUnavailable, op, "sql connection is closed", nil)
	}
	return nil
}

// failure classifies a database error.
func failure(op string, err error) error {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.E(core.KindUnavailable, op, "sql connection unavailable", err)
	}
	return core.E(core.KindIO, op, "sql query failed", err)
}

// List selects every row.
func (s *Store) List(ctx context.Context) ([]core.Blob, error) {
	if err := s.ready("list"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.q.list)
	if err != nil {
		return nil, failure("list", err)
	}
	defer func() { _ = rows.Close() }()
	out := []core.Blob{}
	for rows.Next() {
		b, err := scanBlob(rows)
		if err != nil {
			return nil, failure("list", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, failure("list", err)
	}
	s.log.Debug("listed blobs", slog.Int("count", len(out)))
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlob(row scanner) (core.Blob, error) {
	var (
		location string
		contents []byte
		isNull   bool
	)
	if err := row.Scan(&location, &contents, &isNull); err != nil {
		return core.Blob{}, err
	}
	if isNull {
		return core.NewBlob(location, nil), nil
	}
	if contents == nil {
		contents = []byte{}
	}
	return core.NewBlob(location, contents), nil
}

// Get returns the first row whose location equals the joined path.
func (s *Store) Get(ctx context.Context, path core.Path) (core.Blob, error) {
	key, err := path.Key()
	if err != nil {
		return core.Blob{}, opErr(err, "get")
	}
	if err := s.ready("get"); err != nil {
		return core.Blob{}, err
	}
	b, err := scanBlob(s.db.QueryRowContext(ctx, s.q.get, key))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Blob{}, core.NotFound("get", key)
	}
	if err != nil {
		return core.Blob{}, failure("get", err)
	}
	return b, nil
}

// contentsArg binds absent contents as SQL NULL.
func contentsArg(b core.Blob) any {
	if b.Contents == nil {
		return nil
	}
	return b.Contents
}

// Create inserts a row unconditionally.
func (s *Store) Create(ctx context.Context, blob core.Blob, path core.Path) (core.Blob, error) {
	key, err := path.Key()
	if err != nil {
		return core.Blob{}, opErr(err, "create")
	}
	if err := s.ready("create"); err != nil {
		return core.Blob{}, err
	}
	if _, err := s.db.ExecContext(ctx, s.q.insert, key, contentsArg(blob)); err != nil {
		return core.Blob{}, failure("create", err)
	}
	s.log.Debug("inserted blob", slog.String("key", key), slog.Int("size", len(blob.Contents)))
	return core.NewBlob(key, blob.Contents), nil
}

// CreateIfAbsent checks and inserts inside one transaction.
func (s *Store) CreateIfAbsent(ctx context.Context, blob core.Blob, path core.Path) (core.Blob, error) {
	key, err := path.Key()
	if err != nil {
		return core.Blob{}, opErr(err, "create")
	}
	if err := s.ready("create"); err != nil {
		return core.Blob{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Blob{}, failure("create", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	var n int
	if err := tx.QueryRowContext(ctx, s.q.count, key).Scan(&n); err != nil {
		return core.Blob{}, failure("create", err)
	}
	if n > 0 {
		return core.Blob{}, core.E(core.KindConflict, "create", "blob "+key+" already exists", nil)
	}
	if _, err := tx.ExecContext(ctx, s.q.insert, key, contentsArg(blob)); err != nil {
		return core.Blob{}, failure("create", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Blob{}, failure("create", err)
	}
	committed = true
	return core.NewBlob(key, blob.Contents), nil
}

// Update overwrites contents of existing rows at the joined path. The same key is
// bound as new LOCATION and as predicate, so an update never renames.
func (s *Store) Update(ctx context.Context, blob core.Blob, path core.Path) (core.Blob, error) {
	key, err := path.Key()
	if err != nil {
		return core.Blob{}, opErr(err, "update")
	}
	if err := s.ready("update"); err != nil {
		return core.Blob{}, err
	}
	res, err := s.db.ExecContext(ctx, s.q.update, key, contentsArg(blob), key)
	if err != nil {
		return core.Blob{}, failure("update", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.Blob{}, core.NotFound("update", key)
	}
	return core.NewBlob(key, blob.Contents), nil
}

// Delete removes rows at a single-segment path.
func (s *Store) Delete(ctx context.Context, path core.Path) error {
	key, err := path.Single()
	if err != nil {
		return opErr(err, "delete")
	}
	if err := s.ready("delete"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.q.delete, key); err != nil {
		return failure("delete", err)
	}
	return nil
}

// Close closes the connection. Subsequent calls fail with KindUnavailable.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}

func opErr(err error, op string) error {
	var e *core.Error
	if errors.As(err, &e) && e.Op == "" {
		cp := *e
		cp.Op = op
		return &cp
	}
	return err
}

type queries struct {
	ddl, list, get, count, insert, update, delete string
}

func queriesFor(d Dialect) queries {
	contentsType := "BLOB"
	if d == DialectPostgres {
		contentsType = "BYTEA"
	}
	q := queries{
		ddl:    "CREATE TABLE IF NOT EXISTS STORAGE_NODE (LOCATION VARCHAR(1024), CONTENTS " + contentsType + ")",
		list:   "SELECT LOCATION, CONTENTS, CONTENTS IS NULL FROM STORAGE_NODE",
		get:    "SELECT LOCATION, CONTENTS, CONTENTS IS NULL FROM STORAGE_NODE WHERE LOCATION = ? LIMIT 1",
		count:  "SELECT COUNT(*) FROM STORAGE_NODE WHERE LOCATION = ?",
		insert: "INSERT INTO STORAGE_NODE (LOCATION, CONTENTS) VALUES (?, ?)",
		update: "UPDATE STORAGE_NODE SET LOCATION = ?, CONTENTS = ? WHERE LOCATION = ?",
		delete: "DELETE FROM STORAGE_NODE WHERE LOCATION = ?",
	}
	if d == DialectPostgres {
		q.list, q.get, q.count = rebind(q.list), rebind(q.get), rebind(q.count)
		q.insert, q.update, q.delete = rebind(q.insert), rebind(q.update), rebind(q.delete)
	}
	return q
}

// rebind rewrites ? placeholders as $1..$n.
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
