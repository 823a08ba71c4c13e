// Package catalog is the persistent record of hosts, directories, files,
// destinations and tasks, stored in SQLite.
//
// Every operation runs inside Catalog.InTx, which emulates reentrant
// transactions over the single connection the catalog holds. Operations that
// call other operations (state propagation, bulk resets, loader batches)
// therefore commit or roll back as one unit.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned (wrapped) when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

const timeLayout = "2006-01-02 15:04:05"

// Catalog is a handle on one catalog database. It is safe for concurrent use;
// outermost transactions are serialised.
type Catalog struct {
	db   *sql.DB
	conn *sql.Conn
	path string

	mu sync.Mutex
}

// Open opens (or creates) the catalog at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	// Raw BEGIN/COMMIT statements only make sense on one connection.
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("acquire catalog connection: %w", err)
	}

	c := &Catalog{db: db, conn: conn, path: path}
	if err := c.init(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (c *Catalog) init(ctx context.Context) error {
	return c.InTx(ctx, TxExclusive, func(ctx context.Context) error {
		for _, stmt := range schema {
			if _, err := c.conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}
		return nil
	})
}

// Close releases the connection and closes the database.
func (c *Catalog) Close() error {
	connErr := c.conn.Close()
	if err := c.db.Close(); err != nil {
		return err
	}
	return connErr
}

// Path returns the filesystem path of the catalog database.
func (c *Catalog) Path() string {
	return c.path
}

// CountAll returns the number of rows of the given kind.
func (c *Catalog) CountAll(ctx context.Context, kind Kind) (int64, error) {
	if !validKind(kind) {
		return 0, fmt.Errorf("unknown record kind %q", kind)
	}
	var n int64
	err := c.InTx(ctx, TxDeferred, func(ctx context.Context) error {
		return c.conn.QueryRowContext(ctx, "SELECT count(*) FROM "+string(kind)).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// Reset deletes every task and returns hosts, directories, files and
// destinations to idle. This is the recovery step after a worker died while
// holding a busy task.
func (c *Catalog) Reset(ctx context.Context) error {
	return c.InTx(ctx, TxExclusive, func(ctx context.Context) error {
		if _, err := c.conn.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
			return fmt.Errorf("delete tasks: %w", err)
		}
		stmts := []string{
			`UPDATE hosts SET copy_state = ?`,
			`UPDATE directories SET copy_state = ?`,
			`UPDATE files SET dest_id = NULL, copy_state = ?`,
			`UPDATE destinations SET copy_state = ?`,
		}
		for _, stmt := range stmts {
			if _, err := c.conn.ExecContext(ctx, stmt, Idle); err != nil {
				return fmt.Errorf("reset copy state: %w", err)
			}
		}
		return nil
	})
}

// ActivateAll sets the active state of every host, directory, file and
// destination.
func (c *Catalog) ActivateAll(ctx context.Context, state ActiveState) error {
	return c.InTx(ctx, TxExclusive, func(ctx context.Context) error {
		for _, kind := range []Kind{KindHost, KindDirectory, KindFile, KindDestination} {
			if _, err := c.conn.ExecContext(ctx,
				"UPDATE "+string(kind)+" SET active_state = ?", state); err != nil {
				return fmt.Errorf("activate %s: %w", kind, err)
			}
		}
		return nil
	})
}

func validKind(kind Kind) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(timeLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	return t.In(time.Local).Format(timeLayout)
}

// updateOne runs an UPDATE and reports ErrNotFound when no row matched.
func (c *Catalog) updateOne(ctx context.Context, what string, query string, args ...any) error {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
