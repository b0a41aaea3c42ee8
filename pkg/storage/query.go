package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/silo/pkg/codec"
	"github.com/cuemby/silo/pkg/metrics"
	"github.com/cuemby/silo/pkg/siloerr"
	"github.com/cuemby/silo/pkg/value"
)

// Row is one decoded record returned by the query surface.
type Row struct {
	Kid   int64
	Tunix int64
	Notes string
	Val   value.Value
}

// splitTags splits a comma-separated tag expression into its individual
// terms. Whitespace inside a term is preserved and significant (spec
// §4.5): it is how a caller demands an exact word boundary against
// notes. Splitting "" yields a single empty term, matching the rule's
// empty-input special case.
func splitTags(commaTags string) []string {
	return strings.Split(commaTags, ",")
}

// glob renders one term as a GLOB pattern: wrapped in "*...*" when wild
// is true (so it matches anywhere in notes), passed through unwrapped
// when wild is false (so it must match notes exactly) (spec §4.5).
func glob(term string, wild bool) string {
	if !wild {
		return term
	}
	return "*" + term + "*"
}

// whereFromTags renders a comma-separated tag expression into a single
// AND-of-GLOBs WHERE fragment plus its bind args, so every comma-joined
// term must match independently (spec §4.5): "alpha,beta" selects rows
// whose notes match both patterns.
func whereFromTags(commaTags string, wild bool) (string, []any) {
	terms := splitTags(commaTags)
	clauses := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, t := range terms {
		clauses[i] = "notes GLOB ?"
		args[i] = glob(t, wild)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// Select runs a comma-tag query against container and returns every
// matching row in storage order (spec §4.5).
func (c *Conn) Select(ctx context.Context, path, container, commaTags string, wild bool) ([]Row, error) {
	where, args := whereFromTags(commaTags, wild)
	return c.selectWhere(ctx, path, container, where, args, "ASC")
}

// SelectPop runs Select's query, then deletes every matching kid after
// the result is fully materialized, giving queue/POP semantics (spec
// §4.5, §8 scenario 4). A row that vanished under a concurrent deleter
// before the delete reaches it is not an error (spec §4.5, §5).
func (c *Conn) SelectPop(ctx context.Context, path, container, commaTags string, wild bool) ([]Row, error) {
	rows, err := c.Select(ctx, path, container, commaTags, wild)
	if err != nil || len(rows) == 0 {
		return rows, err
	}
	for _, r := range rows {
		if delErr := c.DeleteByKid(ctx, path, container, r.Kid); delErr != nil {
			return rows, delErr
		}
	}
	return rows, nil
}

func scanRow(container string, r *sql.Rows) (Row, error) {
	var row Row
	var blob []byte
	if err := r.Scan(&row.Kid, &row.Tunix, &row.Notes, &blob); err != nil {
		return Row{}, err
	}
	v, err := codec.Decode(blob)
	if err != nil {
		if errors.Is(err, siloerr.ErrDecodeRefused) {
			metrics.DecodeRefusalsTotal.WithLabelValues(container).Inc()
		}
		return Row{}, fmt.Errorf("storage: decode kid %d: %w", row.Kid, err)
	}
	row.Val = v
	return row, nil
}
