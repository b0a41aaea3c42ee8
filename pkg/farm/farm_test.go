package farm

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/cuemby/silo/pkg/codec"
	"github.com/cuemby/silo/pkg/config"
	"github.com/cuemby/silo/pkg/storage"
	"github.com/cuemby/silo/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFarm(t *testing.T) (*Farm, *storage.Conn, string) {
	t.Helper()
	dir := t.TempDir()
	farmDir := filepath.Join(dir, "barns")
	target := filepath.Join(dir, "target.sqlite")
	cfg := config.Default(target)
	conn := storage.NewConn(cfg)
	f := New(farmDir, 9, codec.DefaultCompressionLevel, conn)
	return f, conn, target
}

func TestFarmInsertLandsInNamedShard(t *testing.T) {
	ctx := context.Background()
	f, conn, _ := newTestFarm(t)

	require.NoError(t, f.FarmInsert(ctx, value.NewString("payload"), "tag", "objects", 3))

	rows, err := conn.Select(ctx, f.barnPath(3), "objects", "tag", false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "payload", rows[0].Val.String())

	// shard 4 was never written to, so it has no objects container at all.
	other, err := conn.Select(ctx, f.barnPath(4), "objects", "tag", false)
	assert.True(t, shardMissing(err))
	assert.Empty(t, other)
}

func TestReapMovesRowsAndDrainsShard(t *testing.T) {
	ctx := context.Background()
	f, conn, target := newTestFarm(t)

	require.NoError(t, f.FarmInsert(ctx, value.NewInt(1), "a", "objects", 2))
	require.NoError(t, f.FarmInsert(ctx, value.NewInt(2), "b", "objects", 2))

	require.NoError(t, f.Reap(ctx, "", "objects", "objects", target, true, 2))

	remaining, err := conn.Select(ctx, f.barnPath(2), "objects", "", true)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	landed, err := conn.Select(ctx, target, "objects", "", true)
	require.NoError(t, err)
	require.Len(t, landed, 2)
	assert.EqualValues(t, 1, landed[0].Val.Int())
	assert.EqualValues(t, 2, landed[1].Val.Int())
}

func TestReapToleratesMissingShard(t *testing.T) {
	ctx := context.Background()
	f, _, target := newTestFarm(t)

	err := f.Reap(ctx, "", "objects", "objects", target, true, 5)
	assert.NoError(t, err)
}

func TestHarvestConvergesOnExpectedBatchSize(t *testing.T) {
	ctx := context.Background()
	f, conn, target := newTestFarm(t)

	const shard = 0
	const batchSize = 10
	const trials = 2000

	// Every insert leaves at least one row in the shard, so an empty shard
	// right after Harvest means that call reaped.
	reaps := 0
	for i := 0; i < trials; i++ {
		require.NoError(t, f.FarmInsert(ctx, value.NewInt(int64(i)), "x", "objects", shard))
		require.NoError(t, f.Harvest(ctx, "", "objects", "objects", target, true, shard, batchSize))
		left, err := conn.Count(ctx, f.barnPath(shard), "objects")
		require.NoError(t, err)
		if left == 0 {
			reaps++
		}
	}

	expected := float64(trials) / float64(batchSize)
	assert.InDelta(t, expected, float64(reaps), expected*0.5)
}

func TestPlantRoundTripsAcrossShards(t *testing.T) {
	ctx := context.Background()
	f, conn, target := newTestFarm(t)

	const n = 500
	for i := 0; i < n; i++ {
		v := value.NewString("myobj")
		notes := fmt.Sprintf("plant-%d", i)
		require.NoError(t, f.Plant(ctx, v, notes, "objects", target, 9, 30))
	}
	require.NoError(t, f.Plant(ctx, value.NewString(ReapAllBarns), "", "objects", target, 9, 30))

	for shard := 0; shard < f.shards; shard++ {
		rows, err := conn.Select(ctx, f.barnPath(shard), "objects", "", true)
		require.NoError(t, err)
		assert.Empty(t, rows, "shard %d should be fully drained after reap_ALL_BARNS", shard)
	}

	count, err := conn.Count(ctx, target, "objects")
	require.NoError(t, err)
	assert.EqualValues(t, n, count)
}

func TestCleanAllShardsEmptiesEveryShardAtZeroFreshDays(t *testing.T) {
	ctx := context.Background()
	f, conn, _ := newTestFarm(t)

	require.NoError(t, f.FarmInsert(ctx, value.NewInt(1), "a", "objects", 0))
	require.NoError(t, f.FarmInsert(ctx, value.NewInt(2), "b", "objects", 7))

	require.NoError(t, f.CleanAllShards(ctx, "objects", 0))

	rows, err := conn.Select(ctx, f.barnPath(0), "objects", "", true)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = conn.Select(ctx, f.barnPath(7), "objects", "", true)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// shard 5 was never written to; CleanAllShards must not error on it.
}

func TestShardMissingClassifiesCommonDriverErrors(t *testing.T) {
	assert.True(t, shardMissing(fmt.Errorf("no such table: objects")))
	assert.True(t, shardMissing(fmt.Errorf("unable to open database file: %s", "x")))
	assert.False(t, shardMissing(nil))
	assert.False(t, shardMissing(fmt.Errorf("disk I/O error")))
}
