package storage

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/cuemby/silo/pkg/codec"
	"github.com/cuemby/silo/pkg/config"
	"github.com/cuemby/silo/pkg/value"
)

// Warehouse is the public entry point: one file, one configuration, with
// every operation in the public surface available as a method.
type Warehouse struct {
	conn *Conn
	cfg  config.Config
}

// Open returns a Warehouse bound to cfg. No file handle is held open
// between calls; cfg.Path is only touched when an operation runs.
func Open(cfg config.Config) (*Warehouse, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Warehouse{conn: NewConn(cfg), cfg: cfg}, nil
}

func (w *Warehouse) container(container string) string {
	if container == "" {
		return w.cfg.DefaultContainer
	}
	return container
}

// Insert files one row.
func (w *Warehouse) Insert(ctx context.Context, v value.Value, notes, container string) error {
	return w.InsertBatch(ctx, []AnnotatedValue{{Notes: notes, Val: v}}, container)
}

// InsertBatch files N rows in one transaction.
func (w *Warehouse) InsertBatch(ctx context.Context, pairs []AnnotatedValue, container string) error {
	return w.conn.InsertBatch(ctx, w.cfg.Path, w.container(container), pairs, codec.CompressionLevel(w.cfg.CompressionLevel))
}

// InsertStream lazily files N rows in one transaction.
func (w *Warehouse) InsertStream(ctx context.Context, container string, gen func(yield func(AnnotatedValue) bool)) error {
	return w.conn.InsertStream(ctx, w.cfg.Path, w.container(container), gen, codec.CompressionLevel(w.cfg.CompressionLevel))
}

// InsertFile reads path's bytes as a KBytes value and inserts it,
// defaulting notes to the file's base name when notes is empty
// (supplementing y_serial's InsertFile convenience, see SPEC_FULL.md).
func (w *Warehouse) InsertFile(ctx context.Context, path, notes, container string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if notes == "" {
		notes = filepath.Base(path)
	}
	return w.Insert(ctx, value.NewBytes(data), notes, container)
}

// InsertURL fetches url's body as a KBytes value and inserts it,
// defaulting notes to the URL itself when notes is empty (supplementing
// y_serial's InsertURL convenience, see SPEC_FULL.md).
func (w *Warehouse) InsertURL(ctx context.Context, url, notes, container string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if notes == "" {
		notes = url
	}
	return w.Insert(ctx, value.NewBytes(data), notes, container)
}

// SelectLatest, SelectOldest, ByKey, Fifo, SelectMap and Delete expose the
// retrieval aliases of the same name against this Warehouse's file.

func (w *Warehouse) SelectLatest(ctx context.Context, d Dual, container string, pop bool) (value.Value, bool, error) {
	return w.conn.SelectLatest(ctx, w.cfg.Path, w.container(container), d, pop)
}

func (w *Warehouse) SelectOldest(ctx context.Context, d Dual, container string, pop bool) (value.Value, bool, error) {
	return w.conn.SelectOldest(ctx, w.cfg.Path, w.container(container), d, pop)
}

func (w *Warehouse) ByKey(ctx context.Context, kid int64, container string, pop bool) (value.Value, bool, error) {
	return w.conn.ByKey(ctx, w.cfg.Path, w.container(container), kid, pop)
}

func (w *Warehouse) Fifo(ctx context.Context, container string) (value.Value, bool, error) {
	return w.conn.Fifo(ctx, w.cfg.Path, w.container(container))
}

func (w *Warehouse) SelectMap(ctx context.Context, d Dual, container string, pop bool) (ResultMap, error) {
	return w.conn.SelectMap(ctx, w.cfg.Path, w.container(container), d, pop)
}

func (w *Warehouse) Delete(ctx context.Context, d Dual, container string, wild bool) error {
	return w.conn.Delete(ctx, w.cfg.Path, w.container(container), d, wild)
}

// Drop removes container and all its rows.
func (w *Warehouse) Drop(ctx context.Context, container string) error {
	return w.conn.DropContainer(ctx, w.cfg.Path, w.container(container))
}

// Prune, Compact and Clean expose the maintenance operations of the same
// name against this Warehouse's file.

func (w *Warehouse) Prune(ctx context.Context, container string, freshDays float64) error {
	return w.conn.Prune(ctx, w.cfg.Path, w.container(container), freshDays)
}

func (w *Warehouse) Vacuum(ctx context.Context) error {
	return w.conn.Vacuum(ctx, w.cfg.Path)
}

func (w *Warehouse) Clean(ctx context.Context, container string, freshDays float64) error {
	return w.conn.Clean(ctx, w.cfg.Path, w.container(container), freshDays)
}

// Copy streams rows matching dual from this Warehouse's container into a
// target Warehouse's container.
func (w *Warehouse) Copy(ctx context.Context, d Dual, sourceContainer string, target *Warehouse, targetContainer string, wild bool) error {
	return w.conn.Copy(ctx, w.cfg.Path, w.container(sourceContainer), target.cfg.Path, target.container(targetContainer), d, wild, codec.CompressionLevel(w.cfg.CompressionLevel))
}
