package storage

import "context"

// Prune deletes every row with tunix <= max_tunix(container) - floor(freshDays*86400).
// freshDays == 0 empties the container. Retention is anchored to the
// newest row in the container, not wall-clock (spec §4.6).
func (c *Conn) Prune(ctx context.Context, path, container string, freshDays float64) error {
	maxTunix, err := c.MaxTunix(ctx, path, container)
	if err != nil {
		return err
	}
	if maxTunix == 0 {
		return nil // empty container, nothing to anchor retention to
	}
	cutoff := maxTunix - int64(freshDays*86400)
	return c.DeleteByPredicate(ctx, path, container, "WHERE tunix <= ?", ParamRow{cutoff})
}

// Compact runs vacuum on the whole file (spec §4.6).
func (c *Conn) Compact(ctx context.Context, path string) error {
	return c.Vacuum(ctx, path)
}

// Clean composes Prune then Compact (spec §4.6).
func (c *Conn) Clean(ctx context.Context, path, container string, freshDays float64) error {
	if err := c.Prune(ctx, path, container, freshDays); err != nil {
		return err
	}
	return c.Compact(ctx, path)
}
