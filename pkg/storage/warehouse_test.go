package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cuemby/silo/pkg/config"
	"github.com/cuemby/silo/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWarehouse(t *testing.T) *Warehouse {
	t.Helper()
	cfg := config.Default(filepath.Join(t.TempDir(), "silo.sqlite"))
	w, err := Open(cfg)
	require.NoError(t, err)
	return w
}

// TestInsertionOrder covers spec §8's "insertion order" invariant.
func TestInsertionOrder(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)

	require.NoError(t, w.Insert(ctx, value.NewInt(1), "a", "box"))
	require.NoError(t, w.Insert(ctx, value.NewInt(2), "b", "box"))
	require.NoError(t, w.Insert(ctx, value.NewInt(3), "c", "box"))

	maxKid, err := w.conn.MaxKid(ctx, w.cfg.Path, "box")
	require.NoError(t, err)
	assert.EqualValues(t, 3, maxKid)

	v0, ok, err := w.SelectOldest(ctx, IntDual(0), "box", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, v0.Int())

	v1, ok, err := w.SelectOldest(ctx, IntDual(1), "box", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 2, v1.Int())

	v2, ok, err := w.SelectOldest(ctx, IntDual(2), "box", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 3, v2.Int())
}

// TestSeedScenario1 is spec §8 scenario 1.
func TestSeedScenario1(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)

	require.NoError(t, w.Insert(ctx, value.NewInt(911), "#plan agent007 #london", "goldfinger"))
	require.NoError(t, w.Insert(ctx, value.NewInt(411), "agent006 #paris #plan", "goldfinger"))

	v, ok, err := w.SelectLatest(ctx, TagDual("agent00[1-7],#plan"), "goldfinger", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 411, v.Int())
}

// TestSeedScenario2 is spec §8 scenario 2.
func TestSeedScenario2(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)

	require.NoError(t, w.Insert(ctx, value.NewInt(911), "#plan agent007 #london", "goldfinger"))
	require.NoError(t, w.Insert(ctx, value.NewInt(411), "agent006 #paris #plan", "goldfinger"))

	m, err := w.SelectMap(ctx, TagDual("agent00[1-7],#plan"), "goldfinger", false)
	require.NoError(t, err)
	require.Len(t, m, 2)

	row1, ok := m[1]
	require.True(t, ok)
	assert.Equal(t, "#plan agent007 #london", row1.Notes)
	assert.EqualValues(t, 911, row1.Val.Int())

	row2, ok := m[2]
	require.True(t, ok)
	assert.Equal(t, "agent006 #paris #plan", row2.Notes)
	assert.EqualValues(t, 411, row2.Val.Int())

	assert.LessOrEqual(t, row1.Tunix, row2.Tunix)
}

// TestSeedScenario3And4 is spec §8 scenarios 3 and 4.
func TestSeedScenario3And4(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)

	require.NoError(t, w.Insert(ctx, value.NewInt(911), "#plan agent007 #london", "goldfinger"))
	require.NoError(t, w.Insert(ctx, value.NewInt(411), "agent006 #paris #plan", "goldfinger"))

	v0, ok, err := w.SelectLatest(ctx, IntDual(0), "goldfinger", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 411, v0.Int())

	v1, ok, err := w.SelectLatest(ctx, IntDual(1), "goldfinger", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 911, v1.Int())

	popped, ok, err := w.SelectLatest(ctx, IntDual(0), "goldfinger", true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 411, popped.Int())

	maxKid, err := w.conn.MaxKid(ctx, w.cfg.Path, "goldfinger")
	require.NoError(t, err)
	assert.EqualValues(t, 1, maxKid)
}

// TestSeedScenario5 is spec §8 scenario 5.
func TestSeedScenario5(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)

	require.NoError(t, w.Insert(ctx, value.NewInt(911), "#plan agent007 #london", "goldfinger"))
	require.NoError(t, w.Insert(ctx, value.NewInt(411), "agent006 #paris #plan", "goldfinger"))

	require.NoError(t, w.Delete(ctx, TagDual("agent00?"), "goldfinger", true))

	m, err := w.SelectMap(ctx, IntDual(10), "goldfinger", false)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestPruneAnchorsToNewest(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)

	require.NoError(t, w.Insert(ctx, value.NewString("a"), "old", "box"))
	require.NoError(t, w.Insert(ctx, value.NewString("b"), "new", "box"))

	require.NoError(t, w.Prune(ctx, "box", 1))

	v, ok, err := w.SelectLatest(ctx, IntDual(0), "box", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", v.String())
}

func TestDropAbsentContainerIsNotError(t *testing.T) {
	w := newWarehouse(t)
	assert.NoError(t, w.Drop(context.Background(), "never_existed"))
}

func TestCopyRefusesSamePlace(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)
	require.NoError(t, w.Insert(ctx, value.NewInt(1), "x", "box"))

	err := w.Copy(ctx, TagDual(""), "box", w, "box", true)
	assert.ErrorContains(t, err, "illegal")
}

func TestCopyPreservesRelativeOrder(t *testing.T) {
	ctx := context.Background()
	src := newWarehouse(t)
	dst := newWarehouse(t)

	require.NoError(t, src.Insert(ctx, value.NewInt(1), "tag", "box"))
	require.NoError(t, src.Insert(ctx, value.NewInt(2), "tag", "box"))
	require.NoError(t, src.Insert(ctx, value.NewInt(3), "tag", "box"))

	require.NoError(t, src.Copy(ctx, TagDual("tag"), "box", dst, "box2", true))

	got, ok, err := dst.SelectOldest(ctx, IntDual(0), "box2", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, got.Int())

	got, ok, err = dst.SelectOldest(ctx, IntDual(2), "box2", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 3, got.Int())
}

func TestCopyIntDualCopiesLastNRows(t *testing.T) {
	ctx := context.Background()
	src := newWarehouse(t)
	dst := newWarehouse(t)

	require.NoError(t, src.Insert(ctx, value.NewInt(1), "tag", "box"))
	require.NoError(t, src.Insert(ctx, value.NewInt(2), "tag", "box"))
	require.NoError(t, src.Insert(ctx, value.NewInt(3), "tag", "box"))

	require.NoError(t, src.Copy(ctx, IntDual(2), "box", dst, "box2", true))

	rows, err := dst.conn.Select(ctx, dst.cfg.Path, "box2", "", true)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 2, rows[0].Val.Int())
	assert.EqualValues(t, 3, rows[1].Val.Int())
}

func TestInsertStreamConsumesLazily(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)

	err := w.InsertStream(ctx, "box", func(yield func(AnnotatedValue) bool) {
		for i := int64(0); i < 5; i++ {
			if !yield(AnnotatedValue{Notes: "n", Val: value.NewInt(i)}) {
				return
			}
		}
	})
	require.NoError(t, err)

	maxKid, err := w.conn.MaxKid(ctx, w.cfg.Path, "box")
	require.NoError(t, err)
	assert.EqualValues(t, 5, maxKid)
}

func TestFifoDrainsOldestFirst(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)

	require.NoError(t, w.Insert(ctx, value.NewInt(1), "a", "queue"))
	require.NoError(t, w.Insert(ctx, value.NewInt(2), "b", "queue"))

	v, ok, err := w.Fifo(ctx, "queue")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, v.Int())

	v, ok, err = w.Fifo(ctx, "queue")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 2, v.Int())

	_, ok, err = w.Fifo(ctx, "queue")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestByKey(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)
	require.NoError(t, w.Insert(ctx, value.NewString("x"), "n", "box"))

	v, ok, err := w.ByKey(ctx, 1, "box", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", v.String())

	_, ok, err = w.ByKey(ctx, 99, "box", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoundTripsComplexValue(t *testing.T) {
	ctx := context.Background()
	w := newWarehouse(t)

	v := value.NewMap(
		value.Pair{Key: value.NewString("k1"), Val: value.NewSeq(value.NewInt(1), value.NewInt(2))},
		value.Pair{Key: value.NewString("k2"), Val: value.NewSet(value.NewString("a"), value.NewString("a"), value.NewString("b"))},
	)
	require.NoError(t, w.Insert(ctx, v, "complex", "box"))

	got, ok, err := w.SelectLatest(ctx, IntDual(0), "box", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, value.Equal(v, got))
}

func TestCompressionLevelIsHonored(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default(filepath.Join(t.TempDir(), "silo.sqlite"))
	cfg.CompressionLevel = 1
	w, err := Open(cfg)
	require.NoError(t, err)

	require.NoError(t, w.Insert(ctx, value.NewString("hello"), "n", "box"))

	got, ok, err := w.SelectLatest(ctx, IntDual(0), "box", false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got.String())
}
