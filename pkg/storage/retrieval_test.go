package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/cuemby/silo/pkg/config"
	"github.com/cuemby/silo/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSelectSkipsRowsWithRefusedDecode covers siloerr.ErrDecodeRefused's
// documented contract: one row with a corrupt envelope must not fail
// the whole query, only be absent from the result.
func TestSelectSkipsRowsWithRefusedDecode(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default(filepath.Join(t.TempDir(), "silo.sqlite"))
	w, err := Open(cfg)
	require.NoError(t, err)

	require.NoError(t, w.Insert(ctx, value.NewInt(1), "good", "box"))
	require.NoError(t, w.Insert(ctx, value.NewInt(2), "bad", "box"))

	db, err := sql.Open("sqlite", cfg.Path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.ExecContext(ctx, "UPDATE box SET pzblob = ? WHERE notes = ?", []byte{0xff, 0xff, 0xff}, "bad")
	require.NoError(t, err)

	rows, err := w.conn.Select(ctx, cfg.Path, "box", "", true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "good", rows[0].Notes)
}
