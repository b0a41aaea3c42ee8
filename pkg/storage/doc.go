/*
Package storage is the row store: a connection manager, schema manager,
insert/delete paths, the comma-tag query surface, the published
retrieval aliases, maintenance (prune/vacuum), cross-file copy, and the
Warehouse façade that ties them together under one container name.

Every operation opens its own *sql.DB against a SQLite file through
Conn, runs inside a single transaction where one is needed, and closes
the handle before returning — there is no connection pool and no
long-lived handle held across calls; each handle is limited to one open
connection, one writer per file.

	w, err := storage.Open(config.Default("warehouse.sqlite"))
	err = w.Insert(ctx, value.NewString("payload"), "tag1,tag2", "objects")
	v, ok, err := w.SelectLatest(ctx, storage.TagDual("tag1"), "objects", false)

Select and its aliases translate a comma-tag expression into an
AND-of-GLOB WHERE clause; SelectLatest/SelectOldest/ByKey/Fifo/SelectMap
each layer a different retrieval shape (single row, FIFO pop, full map)
on top of the same underlying scan. A row whose codec envelope is
unreadable is skipped rather than failing the whole query — see
siloerr.ErrDecodeRefused.

Prune and Clean anchor their retention window to the newest row already
present in the container, not wall-clock time, so a cold container never
ages itself out from under a caller who stops writing to it.
*/
package storage
