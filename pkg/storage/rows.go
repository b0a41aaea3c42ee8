package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cuemby/silo/pkg/codec"
	"github.com/cuemby/silo/pkg/value"
)

// insertTemplate stamps tunix with the backend's own wall-clock function
// rather than a value computed in Go, so that concurrent writers never
// see the clock "rewind" relative to each other (spec §3).
const insertTemplate = `INSERT INTO %s VALUES (null, strftime('%%s','now'), ?, ?)`

// AnnotatedValue pairs a value with the free-form notes it is filed
// under, the unit insert/copy operate over.
type AnnotatedValue struct {
	Notes string
	Val   value.Value
}

// InsertBatch ensures container exists, then inserts every pair inside
// one transaction (spec §4.4). On any failure the whole batch rolls
// back.
func (c *Conn) InsertBatch(ctx context.Context, path, container string, pairs []AnnotatedValue, level codec.CompressionLevel) error {
	return c.InsertStream(ctx, path, container, func(yield func(AnnotatedValue) bool) {
		for _, p := range pairs {
			if !yield(p) {
				return
			}
		}
	}, level)
}

// InsertStream is InsertBatch's lazy counterpart: gen is consumed without
// ever materializing the full batch in memory (spec §4.4).
func (c *Conn) InsertStream(ctx context.Context, path, container string, gen func(yield func(AnnotatedValue) bool), level codec.CompressionLevel) error {
	if err := c.EnsureContainer(ctx, path, container); err != nil {
		return err
	}

	sql := fmt.Sprintf(insertTemplate, container)
	var encodeErr error
	err := c.ExecuteMany(ctx, path, container, sql, func(yield func(ParamRow) bool) {
		gen(func(av AnnotatedValue) bool {
			blob, err := codec.Encode(av.Val, level)
			if err != nil {
				encodeErr = fmt.Errorf("storage: encode row for %q: %w", container, err)
				return false
			}
			return yield(ParamRow{av.Notes, blob})
		})
	})
	if encodeErr != nil {
		return encodeErr
	}
	return err
}

// DeleteByPredicate deletes every row in container matching the
// parameterized WHERE fragment predicate. Zero matches is not an error
// (spec §4.4).
func (c *Conn) DeleteByPredicate(ctx context.Context, path, container, predicate string, args ParamRow) error {
	sql := fmt.Sprintf("DELETE FROM %s %s", container, predicate)
	return c.ExecuteMany(ctx, path, container, sql, func(yield func(ParamRow) bool) { yield(args) })
}

// DeleteByKid removes exactly zero or one row.
func (c *Conn) DeleteByKid(ctx context.Context, path, container string, kid int64) error {
	return c.DeleteByPredicate(ctx, path, container, "WHERE kid = ?", ParamRow{kid})
}

// MaxKid returns the largest kid present in container, or 0 if empty.
func (c *Conn) MaxKid(ctx context.Context, path, container string) (int64, error) {
	return c.aggregate(ctx, path, container, "MAX(kid)")
}

// MaxTunix returns the largest tunix present in container, or 0 if
// empty.
func (c *Conn) MaxTunix(ctx context.Context, path, container string) (int64, error) {
	return c.aggregate(ctx, path, container, "MAX(tunix)")
}

// Count returns the number of rows currently in container. Used by the
// farm's shard-row gauge rather than by the public operation surface.
func (c *Conn) Count(ctx context.Context, path, container string) (int64, error) {
	return c.aggregate(ctx, path, container, "COUNT(*)")
}

func (c *Conn) aggregate(ctx context.Context, path, container, expr string) (int64, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s", expr, container)
	var result int64
	err := c.StreamSelect(ctx, path, container, sql, nil, func(rows *sql.Rows) error {
		var n sql.NullInt64
		if err := rows.Scan(&n); err != nil {
			return err
		}
		if n.Valid {
			result = n.Int64
		}
		return nil
	})
	return result, err
}

// Vacuum requests whole-file compaction (spec §4.4, §4.6).
// VACUUM cannot run inside a transaction, so it bypasses ExecuteMany.
func (c *Conn) Vacuum(ctx context.Context, path string) error {
	db, err := c.open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		return classifyErr("", "VACUUM", err)
	}
	return nil
}
