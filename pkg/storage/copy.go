package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cuemby/silo/pkg/codec"
	"github.com/cuemby/silo/pkg/siloerr"
)

// Copy resolves dual against sourceFile/sourceContainer exactly as the
// retrieval aliases do (spec §6's copy(dual, ...) shape: an integer dual
// copies the last n rows via the source's copylast semantics, a tag dual
// copies every row matching the comma-tag expression), then streams the
// matches in ascending kid order into targetFile/targetContainer via
// InsertStream, so relative insertion order is preserved at the
// destination even though timestamps are fresh and kids are not carried
// over (spec §4.8). Refused outright when source and destination name
// the same file and container.
func (c *Conn) Copy(ctx context.Context, sourceFile, sourceContainer, targetFile, targetContainer string, d Dual, wild bool, level codec.CompressionLevel) error {
	if samePlace(sourceFile, targetFile) && sourceContainer == targetContainer {
		return fmt.Errorf("storage: copy %s/%s onto itself: %w", sourceFile, sourceContainer, siloerr.ErrIllegalCopy)
	}

	var rows []Row
	var err error
	if d.isInt {
		maxKid, mErr := c.MaxKid(ctx, sourceFile, sourceContainer)
		if mErr != nil {
			return mErr
		}
		where, args := diclastWhere(maxKid, d.n)
		rows, err = c.selectWhere(ctx, sourceFile, sourceContainer, where, args, "ASC")
	} else {
		where, args := whereFromTags(d.tags, wild)
		rows, err = c.selectWhere(ctx, sourceFile, sourceContainer, where, args, "ASC")
	}
	if err != nil {
		return err
	}

	return c.InsertStream(ctx, targetFile, targetContainer, func(yield func(AnnotatedValue) bool) {
		for _, r := range rows {
			if !yield(AnnotatedValue{Notes: r.Notes, Val: r.Val}) {
				return
			}
		}
	}, level)
}

func samePlace(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
