package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuemby/silo/pkg/siloerr"
	"github.com/cuemby/silo/pkg/value"
)

// Dual is the caller-input union the retrieval aliases dispatch on: an
// integer offset or a comma-tag string (spec §4.5, §6's "dual" shape).
type Dual struct {
	isInt bool
	n     int64
	tags  string
}

// IntDual wraps a non-negative offset.
func IntDual(n int64) Dual { return Dual{isInt: true, n: n} }

// TagDual wraps a comma-tag expression.
func TagDual(tags string) Dual { return Dual{tags: tags} }

type offsetDirection int

const (
	newest offsetDirection = iota
	oldest
)

// singleOffsetWhere implements the "n-th newest/oldest" variant: exactly
// one row, anchored to MAX(kid) or MIN(kid) (spec §4.5).
func singleOffsetWhere(container string, n int64, dir offsetDirection) (string, []any) {
	anchor := "MAX(kid) - ?"
	if dir == oldest {
		anchor = "MIN(kid) + ?"
	}
	where := fmt.Sprintf("WHERE kid = (SELECT %s FROM %s)", anchor, container)
	return where, []any{n}
}

// diclastWhere implements the source's looser "last m rows" variant:
// kid > max_kid - m, yielding m rows when kids are contiguous and fewer
// once deletes have opened gaps (spec §9 open question; DESIGN.md keeps
// this behavior rather than an ORDER BY ... LIMIT m rewrite).
func diclastWhere(maxKid, m int64) (string, []any) {
	return "WHERE kid > ?", []any{maxKid - m}
}

func (c *Conn) selectWhere(ctx context.Context, path, container, where string, args []any, order string) ([]Row, error) {
	sql := fmt.Sprintf("SELECT kid, tunix, notes, pzblob FROM %s %s ORDER BY kid %s", container, where, order)
	var rows []Row
	err := c.StreamSelect(ctx, path, container, sql, args, func(r *sql.Rows) error {
		row, err := scanRow(container, r)
		if err != nil {
			if errors.Is(err, siloerr.ErrDecodeRefused) {
				return nil // skip the row, keep the rest of the result set
			}
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// dualRows resolves dual against container into its matching rows,
// dispatching on whether dual wraps an integer offset or a comma-tag
// string, per spec §4.5's "small dispatch layer".
func (c *Conn) dualRows(ctx context.Context, path, container string, d Dual, dir offsetDirection) ([]Row, error) {
	order := "ASC"
	if dir == newest {
		order = "DESC"
	}
	if !d.isInt {
		where, args := whereFromTags(d.tags, true)
		return c.selectWhere(ctx, path, container, where, args, order)
	}
	where, args := singleOffsetWhere(container, d.n, dir)
	return c.selectWhere(ctx, path, container, where, args, order)
}

func first(rows []Row) (Row, bool) {
	if len(rows) == 0 {
		return Row{}, false
	}
	return rows[0], true
}

// SelectLatest resolves dual against container and, for the single-row
// integer-offset case, returns the n-th newest row; for a tag expression
// it returns the newest matching row (spec §8 scenarios 1, 3, 4).
func (c *Conn) SelectLatest(ctx context.Context, path, container string, d Dual, pop bool) (value.Value, bool, error) {
	rows, err := c.dualRows(ctx, path, container, d, newest)
	if err != nil {
		return value.Null(), false, err
	}
	row, ok := first(rows)
	if !ok {
		return value.Null(), false, nil
	}
	if pop {
		if err := c.DeleteByKid(ctx, path, container, row.Kid); err != nil {
			return value.Null(), false, err
		}
	}
	return row.Val, true, nil
}

// SelectOldest mirrors SelectLatest, anchored to the oldest end.
func (c *Conn) SelectOldest(ctx context.Context, path, container string, d Dual, pop bool) (value.Value, bool, error) {
	rows, err := c.dualRows(ctx, path, container, d, oldest)
	if err != nil {
		return value.Null(), false, err
	}
	row, ok := first(rows)
	if !ok {
		return value.Null(), false, nil
	}
	if pop {
		if err := c.DeleteByKid(ctx, path, container, row.Kid); err != nil {
			return value.Null(), false, err
		}
	}
	return row.Val, true, nil
}

// ByKey returns the single row with the given kid, if present.
func (c *Conn) ByKey(ctx context.Context, path, container string, kid int64, pop bool) (value.Value, bool, error) {
	rows, err := c.selectWhere(ctx, path, container, "WHERE kid = ?", []any{kid}, "ASC")
	if err != nil {
		return value.Null(), false, err
	}
	row, ok := first(rows)
	if !ok {
		return value.Null(), false, nil
	}
	if pop {
		if err := c.DeleteByKid(ctx, path, container, kid); err != nil {
			return value.Null(), false, err
		}
	}
	return row.Val, true, nil
}

// Fifo is oldest-then-pop: the queue-draining alias (spec §6).
func (c *Conn) Fifo(ctx context.Context, path, container string) (value.Value, bool, error) {
	return c.SelectOldest(ctx, path, container, IntDual(0), true)
}

// ResultMap is the {kid: (tunix, notes, value)} shape select_map returns
// (spec §4.5, §6, §8 scenario 2).
type ResultMap map[int64]Row

// SelectMap resolves dual against container and returns every matching
// row keyed by kid. An integer dual uses the source's diclast(m)
// semantics (kid > max_kid - m) so a caller gets up to m rows rather
// than the single-row select_latest/select_oldest alias. If pop is set,
// the same predicate used to build the map is re-run as a single
// delete_predicate once the map is fully materialized (spec's
// dicsub/deletesub), not a per-kid delete: a row matching that
// predicate inserted between the select and the pop is swept up too,
// matching the source's single-query pop (spec §9 open question).
func (c *Conn) SelectMap(ctx context.Context, path, container string, d Dual, pop bool) (ResultMap, error) {
	var where string
	var args []any
	var err error
	if d.isInt {
		var maxKid int64
		maxKid, err = c.MaxKid(ctx, path, container)
		if err != nil {
			return nil, err
		}
		where, args = diclastWhere(maxKid, d.n)
	} else {
		where, args = whereFromTags(d.tags, true)
	}

	rows, err := c.selectWhere(ctx, path, container, where, args, "ASC")
	if err != nil {
		return nil, err
	}

	result := make(ResultMap, len(rows))
	for _, r := range rows {
		result[r.Kid] = r
	}
	if pop {
		if delErr := c.DeleteByPredicate(ctx, path, container, where, args); delErr != nil {
			return result, delErr
		}
	}
	return result, nil
}

// Delete removes rows matching dual: an integer dual deletes a single
// kid, a tag-string dual deletes every row whose notes match the
// comma-joined GLOB expression (spec §6 scenario 5, §6's
// delete(dual, container, wild) shape).
func (c *Conn) Delete(ctx context.Context, path, container string, d Dual, wild bool) error {
	if d.isInt {
		return c.DeleteByKid(ctx, path, container, d.n)
	}
	where, args := whereFromTags(d.tags, wild)
	return c.DeleteByPredicate(ctx, path, container, where, args)
}
