package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/cuemby/silo/pkg/codec"
	"github.com/cuemby/silo/pkg/config"
	"github.com/cuemby/silo/pkg/farm"
	"github.com/cuemby/silo/pkg/storage"
	"github.com/cuemby/silo/pkg/value"
)

var (
	filePath   = flag.String("file", "", "Warehouse file path (required)")
	container  = flag.String("container", "", "Container name (defaults to the warehouse's configured default)")
	direction  = flag.String("direction", "drain", "drain (farm -> file) or disperse (file -> farm)")
	farmDir    = flag.String("farm-dir", "", "Farm shard directory (defaults to <file>.farm)")
	farmShards = flag.Int("farm-shards", 9, "Number of farm shards")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Path to back up the file before migration (default: <file>.backup)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Silo Migration Tool - single file <-> farm layout")
	log.Println("==================================================")

	if *filePath == "" {
		log.Fatal("--file is required")
	}
	if _, err := os.Stat(*filePath); os.IsNotExist(err) {
		log.Fatalf("Warehouse file not found at %s", *filePath)
	}

	cfg := config.Default(*filePath)
	if *farmDir != "" {
		cfg.FarmDir = *farmDir
	}
	if *farmShards > 0 {
		cfg.FarmShards = *farmShards
	}
	cont := *container
	if cont == "" {
		cont = cfg.DefaultContainer
	}

	log.Printf("File: %s", cfg.Path)
	log.Printf("Farm: %s (%d shards)", cfg.FarmDir, cfg.FarmShards)
	log.Printf("Container: %s", cont)
	log.Printf("Direction: %s", *direction)
	log.Printf("Dry run: %v", *dryRun)

	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = cfg.Path + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(cfg.Path, backupFile); err != nil {
			log.Fatalf("Failed to create backup: %v", err)
		}
		log.Println("backup created successfully")
	}

	conn := storage.NewConn(cfg)
	f := farm.New(cfg.FarmDir, cfg.FarmShards, codec.CompressionLevel(cfg.CompressionLevel), conn)

	var err error
	switch *direction {
	case "drain":
		err = drainFarm(context.Background(), f, conn, cfg, cont, *dryRun)
	case "disperse":
		err = disperseFile(context.Background(), f, conn, cfg, cont, *dryRun)
	default:
		log.Fatalf("--direction must be drain or disperse, got %q", *direction)
	}
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *dryRun {
		log.Println("\nDry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the migration.")
	} else {
		log.Println("\nMigration completed successfully.")
	}
}

// drainFarm moves every row currently sitting in the farm's shard files
// for container into cfg.Path, the same unconditional sweep Plant
// performs when called with farm.ReapAllBarns, but run once from the
// command line rather than woven into a live insert path.
func drainFarm(ctx context.Context, f *farm.Farm, conn *storage.Conn, cfg config.Config, container string, dryRun bool) error {
	if dryRun {
		for shard := 0; shard < cfg.FarmShards; shard++ {
			n, err := conn.Count(ctx, fmt.Sprintf("%s/barn%d.sqlite", cfg.FarmDir, shard), container)
			if err != nil {
				continue // shard file absent, nothing staged there
			}
			log.Printf("[DRY RUN] shard %d: would drain %d row(s) into %s", shard, n, cfg.Path)
		}
		return nil
	}
	return f.Plant(ctx, value.NewString(farm.ReapAllBarns), "", container, cfg.Path, cfg.HarvestBatchSize, cfg.CleanFreshDays)
}

// disperseFile is drainFarm's inverse: it reads every row currently in
// cfg.Path's container, deletes them from the target, and re-inserts
// them round-robin across the shards via FarmInsert, returning the container
// to a state future Plant calls will gradually re-consolidate.
func disperseFile(ctx context.Context, f *farm.Farm, conn *storage.Conn, cfg config.Config, container string, dryRun bool) error {
	rows, err := conn.Select(ctx, cfg.Path, container, "", true)
	if err != nil {
		return fmt.Errorf("select rows in %s: %w", container, err)
	}
	if len(rows) == 0 {
		log.Println("no rows found to disperse")
		return nil
	}
	if dryRun {
		log.Printf("[DRY RUN] would disperse %d row(s) from %s across %d shard(s)", len(rows), cfg.Path, cfg.FarmShards)
		return nil
	}

	for i, r := range rows {
		shard := i % cfg.FarmShards
		if err := f.FarmInsert(ctx, r.Val, r.Notes, container, shard); err != nil {
			return fmt.Errorf("insert kid %d into shard %d: %w", r.Kid, shard, err)
		}
		if err := conn.DeleteByKid(ctx, cfg.Path, container, r.Kid); err != nil {
			return fmt.Errorf("delete kid %d from %s: %w", r.Kid, cfg.Path, err)
		}
	}
	log.Printf("dispersed %d row(s) across %d shard(s)", len(rows), cfg.FarmShards)
	return nil
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
