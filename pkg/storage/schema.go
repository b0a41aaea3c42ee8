package storage

import (
	"context"
	"fmt"
)

// createContainerTemplate holds the one fixed row shape every container uses (spec §3,
// §4.3, §6). Container names cannot be parameterized in SQL, so callers
// are responsible for never deriving a container name from externally
// reachable input (spec §3).
const createContainerTemplate = `CREATE TABLE IF NOT EXISTS %s (kid INTEGER PRIMARY KEY, tunix INTEGER, notes TEXT, pzblob BLOB)`
const dropContainerTemplate = `DROP TABLE IF EXISTS %s`

// EnsureContainer idempotently creates container if absent. Safe to call
// from concurrent writers: CREATE TABLE IF NOT EXISTS is itself atomic at
// the backend.
func (c *Conn) EnsureContainer(ctx context.Context, path, container string) error {
	sql := fmt.Sprintf(createContainerTemplate, container)
	return c.ExecuteMany(ctx, path, container, sql, func(yield func(ParamRow) bool) { yield(ParamRow{}) })
}

// DropContainer removes container and all its rows. Dropping an absent
// container is not an error in the public contract; any backend failure
// is reported as ErrSchemaDropFailed instead of the usual IoFailure
// classification, since callers are expected to treat a drop failure as
// non-fatal (spec §7).
func (c *Conn) DropContainer(ctx context.Context, path, container string) error {
	sql := fmt.Sprintf(dropContainerTemplate, container)
	err := c.ExecuteMany(ctx, path, container, sql, func(yield func(ParamRow) bool) { yield(ParamRow{}) })
	if err != nil {
		return wrapSchemaDropFailed(container, err)
	}
	return nil
}
