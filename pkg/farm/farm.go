package farm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cuemby/silo/pkg/codec"
	"github.com/cuemby/silo/pkg/log"
	"github.com/cuemby/silo/pkg/metrics"
	"github.com/cuemby/silo/pkg/storage"
	"github.com/cuemby/silo/pkg/value"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReapAllBarns is the sentinel recognized by Plant: it skips the insert
// and unconditionally reaps every shard into the target (spec §4.7).
const ReapAllBarns = "reap_ALL_BARNS"

// cleanAllProbability is the small, fixed chance that a Plant call also
// triggers CleanAllShards (spec §4.7: "on the order of 1e-5").
const cleanAllProbability = 1e-5

// Farm is a directory of N shard files, each a valid warehouse file in
// its own right, routed to and drained by the operations below.
type Farm struct {
	dir    string
	shards int
	level  codec.CompressionLevel
	conn   *storage.Conn
	logger zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Farm rooted at dir with the given shard count. conn is
// reused for every shard and target file touched by this Farm. The RNG
// is seeded once, when the Farm is built, not per call, so Bernoulli
// sampling holds its statistical properties across many inserts.
func New(dir string, shards int, level codec.CompressionLevel, conn *storage.Conn) *Farm {
	return &Farm{
		dir:    dir,
		shards: shards,
		level:  level,
		conn:   conn,
		logger: log.WithComponent("farm"),
		rnd:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func (f *Farm) barnPath(shard int) string {
	return filepath.Join(f.dir, fmt.Sprintf("barn%d.sqlite", shard))
}

func (f *Farm) randomShard() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rnd.IntN(f.shards)
}

func (f *Farm) chance(p float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rnd.Float64() < p
}

// FarmInsert files one row into barn<shard>.sqlite (spec §4.7), creating
// the farm directory first if it does not exist yet.
func (f *Farm) FarmInsert(ctx context.Context, v value.Value, notes, container string, shard int) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("farm: create %s: %w", f.dir, err)
	}
	return f.conn.InsertBatch(ctx, f.barnPath(shard), container, []storage.AnnotatedValue{{Notes: notes, Val: v}}, f.level)
}

// Reap copies every row matching commaTags from the shard's container
// into the target file's container, in ascending kid order, then
// deletes them from the shard (spec §4.7, §4.8). A shard file that does
// not yet exist is a common race under bursty first-writes; errors from
// either half are swallowed in that case, matching the teacher's
// background-worker pattern of logging and continuing rather than
// failing the caller for a condition the caller cannot act on.
func (f *Farm) Reap(ctx context.Context, commaTags, sourceContainer, targetContainer, targetFile string, wild bool, shard int) error {
	barn := f.barnPath(shard)
	rows, err := f.conn.Select(ctx, barn, sourceContainer, commaTags, wild)
	if err != nil {
		if shardMissing(err) {
			f.logger.Debug().Int("shard", shard).Msg("reap: shard file absent, skipping")
			return nil
		}
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	err = f.conn.InsertStream(ctx, targetFile, targetContainer, func(yield func(storage.AnnotatedValue) bool) {
		for _, r := range rows {
			if !yield(storage.AnnotatedValue{Notes: r.Notes, Val: r.Val}) {
				return
			}
		}
	}, f.level)
	if err != nil {
		if shardMissing(err) {
			return nil
		}
		return err
	}

	for _, r := range rows {
		if delErr := f.conn.DeleteByKid(ctx, barn, sourceContainer, r.Kid); delErr != nil && !shardMissing(delErr) {
			return delErr
		}
	}
	metrics.ReapsTotal.WithLabelValues(fmt.Sprintf("%d", shard)).Inc()
	return nil
}

// Harvest invokes Reap with probability 1/batchSize; otherwise it is a
// no-op. Over many inserts the expected movement batch is batchSize rows
// (spec §4.7, §8's "harvest expectation" invariant).
func (f *Farm) Harvest(ctx context.Context, commaTags, sourceContainer, targetContainer, targetFile string, wild bool, shard, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1
	}
	if !f.chance(1.0 / float64(batchSize)) {
		return nil
	}
	metrics.HarvestsTotal.WithLabelValues(fmt.Sprintf("%d", shard)).Inc()
	return f.Reap(ctx, commaTags, sourceContainer, targetContainer, targetFile, wild, shard)
}

// Plant is the published summary operation (spec §4.7): pick a uniformly
// random shard, insert into it, then harvest with an empty predicate (so
// every currently present row is a candidate for the move). The special
// value ReapAllBarns skips the insert and unconditionally reaps every
// shard into the target. cleanFreshDays is the retention window passed
// to the rare self-triggered CleanAllShards sweep (spec §9 open
// question: config.Config.CleanFreshDays, not a bare 0, so an ordinary
// Plant call can never empty every shard's container outright).
func (f *Farm) Plant(ctx context.Context, v value.Value, notes, container, targetFile string, batchSize int, cleanFreshDays float64) error {
	corrID := uuid.New().String()
	plantLog := f.logger.With().Str("corr_id", corrID).Logger()
	metrics.PlantsTotal.Inc()

	if v.Kind() == value.KString && v.String() == ReapAllBarns {
		plantLog.Debug().Msg("plant: reap_ALL_BARNS sentinel, draining every shard")
		return f.reapAll(ctx, container, container, targetFile)
	}

	shard := f.randomShard()
	plantLog.Debug().Int("shard", shard).Msg("plant: inserted")
	if err := f.FarmInsert(ctx, v, notes, container, shard); err != nil {
		return err
	}
	if err := f.Harvest(ctx, "", container, container, targetFile, true, shard, batchSize); err != nil {
		return err
	}

	if f.chance(cleanAllProbability) {
		if err := f.CleanAllShards(ctx, container, cleanFreshDays); err != nil {
			plantLog.Warn().Err(err).Msg("plant: clean_all_shards failed")
		}
	}
	return nil
}

// reapAll unconditionally reaps every shard into the target, independent
// of notes content (spec §4.7's ReapAllBarns sentinel).
func (f *Farm) reapAll(ctx context.Context, sourceContainer, targetContainer, targetFile string) error {
	for shard := 0; shard < f.shards; shard++ {
		if err := f.Reap(ctx, "", sourceContainer, targetContainer, targetFile, true, shard); err != nil {
			return err
		}
	}
	return nil
}

// CleanAllShards applies Clean to every shard's container (spec §4.7).
func (f *Farm) CleanAllShards(ctx context.Context, container string, freshDays float64) error {
	for shard := 0; shard < f.shards; shard++ {
		if err := f.conn.Clean(ctx, f.barnPath(shard), container, freshDays); err != nil && !shardMissing(err) {
			return err
		}
	}
	return nil
}

func shardMissing(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sub := range []string{"no such table", "unable to open database file", "does not exist"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
