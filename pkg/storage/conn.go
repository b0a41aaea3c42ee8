package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/cuemby/silo/pkg/config"
	"github.com/cuemby/silo/pkg/metrics"
	"github.com/cuemby/silo/pkg/siloerr"
)

// Conn is the connection manager (spec §4.2): it owns nothing persistent
// and acquires a scoped handle to a file per call, matching the
// teacher's Base.proceed/Base.respond discipline of connect, run,
// release on every exit path.
type Conn struct {
	cfg config.Config
}

// NewConn returns a connection manager bound to cfg's file path, busy
// timeout and isolation level.
func NewConn(cfg config.Config) *Conn {
	return &Conn{cfg: cfg}
}

func (c *Conn) dsn(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_txlock=%s",
		path,
		c.cfg.BusyTimeout.Milliseconds(),
		strings.ToLower(string(c.cfg.Isolation)),
	)
}

func (c *Conn) open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", c.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w: %v", path, siloerr.ErrIoFailure, err)
	}
	db.SetMaxOpenConns(1) // one writer per file, per spec §5's scheduling model
	return db, nil
}

// ParamRow is one row of bind parameters for ExecuteMany.
type ParamRow []any

// ExecuteMany opens path, runs template once per row in rows inside a
// single transaction begun in cfg's isolation mode (BEGIN IMMEDIATE by
// default), commits, and closes the handle on every exit path including
// error. rows is consumed lazily so a caller streaming a large batch
// never has to materialize it. container is used only to label a
// busy-timeout failure for silo_busy_timeouts_total; pass "" for
// operations not scoped to one container.
func (c *Conn) ExecuteMany(ctx context.Context, path, container, template string, rows func(yield func(ParamRow) bool)) error {
	db, err := c.open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classifyErr(container, template, err)
	}

	stmt, err := tx.PrepareContext(ctx, template)
	if err != nil {
		_ = tx.Rollback()
		return classifyErr(container, template, err)
	}
	defer stmt.Close()

	var execErr error
	rows(func(row ParamRow) bool {
		if _, execErr = stmt.ExecContext(ctx, row...); execErr != nil {
			return false
		}
		return true
	})
	if execErr != nil {
		_ = tx.Rollback()
		return classifyErr(container, template, execErr)
	}

	if err := tx.Commit(); err != nil {
		return classifyErr(container, template, err)
	}
	return nil
}

// StreamSelect opens path, runs a single parameterized read, and invokes
// scan once per result row in storage order. No commit is issued. The
// handle is released on every exit path.
func (c *Conn) StreamSelect(ctx context.Context, path, container, template string, args ParamRow, scan func(*sql.Rows) error) error {
	db, err := c.open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, template, args...)
	if err != nil {
		return classifyErr(container, template, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("storage: scan row: %w: %v", siloerr.ErrIoFailure, err)
		}
	}
	if err := rows.Err(); err != nil {
		return classifyErr(container, template, err)
	}
	return nil
}

// classifyErr distinguishes a busy-after-timeout failure (spec §4.2,
// §5, §7) from any other backend failure, and attaches the offending
// template for diagnostics. Parameter values themselves are not logged:
// secrets in payloads are the caller's concern, per spec §4.2.
func classifyErr(container, template string, err error) error {
	if err == nil {
		return nil
	}
	if isBusyErr(err) {
		metrics.BusyTimeoutsTotal.WithLabelValues(container).Inc()
		return fmt.Errorf("storage: %w: template=%q: %v", siloerr.ErrBusyTimeout, template, err)
	}
	return fmt.Errorf("storage: %w: template=%q: %v", siloerr.ErrIoFailure, template, err)
}

func isBusyErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "context deadline exceeded")
}
