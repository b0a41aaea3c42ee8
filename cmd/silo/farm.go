package main

import (
	"fmt"

	"github.com/cuemby/silo/pkg/codec"
	"github.com/cuemby/silo/pkg/config"
	"github.com/cuemby/silo/pkg/farm"
	"github.com/cuemby/silo/pkg/storage"
	"github.com/cuemby/silo/pkg/value"
	"github.com/spf13/cobra"
)

var farmCmd = &cobra.Command{
	Use:   "farm",
	Short: "Diffuse writes across a farm of shard files and drain them into the target",
}

// openFarm builds the Farm rooted at cfg's configured farm directory,
// sharing one Conn with the rest of the CLI so shard files and the
// target file see the same busy-timeout and isolation settings.
func openFarm(cfg config.Config) *farm.Farm {
	conn := storage.NewConn(cfg)
	return farm.New(cfg.FarmDir, cfg.FarmShards, codec.CompressionLevel(cfg.CompressionLevel), conn)
}

var farmPlantCmd = &cobra.Command{
	Use:   "plant",
	Short: "plant: insert into a random shard, then probabilistically reap it into the target",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := readValueFlag(cmd)
		if err != nil {
			return err
		}
		notes, _ := cmd.Flags().GetString("notes")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		container := containerFlag(cmd)
		if container == "" {
			container = cfg.DefaultContainer
		}

		f := openFarm(cfg)
		return f.Plant(cmd.Context(), v, notes, container, cfg.Path, cfg.HarvestBatchSize, cfg.CleanFreshDays)
	},
}

var farmReapAllCmd = &cobra.Command{
	Use:   "reap-all",
	Short: "plant reap_ALL_BARNS: unconditionally drain every shard into the target",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		container := containerFlag(cmd)
		if container == "" {
			container = cfg.DefaultContainer
		}

		f := openFarm(cfg)
		return f.Plant(cmd.Context(), value.NewString(farm.ReapAllBarns), "", container, cfg.Path, cfg.HarvestBatchSize, cfg.CleanFreshDays)
	},
}

var farmReapCmd = &cobra.Command{
	Use:   "reap SHARD",
	Short: "Manually reap one shard into the target, bypassing the Bernoulli coin flip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var shard int
		if _, err := fmt.Sscanf(args[0], "%d", &shard); err != nil {
			return fmt.Errorf("SHARD must be an integer: %w", err)
		}
		tags, _ := cmd.Flags().GetString("tags")
		wild, _ := cmd.Flags().GetBool("wild")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		container := containerFlag(cmd)
		if container == "" {
			container = cfg.DefaultContainer
		}

		f := openFarm(cfg)
		return f.Reap(cmd.Context(), tags, container, container, cfg.Path, wild, shard)
	},
}

var farmCleanAllCmd = &cobra.Command{
	Use:   "clean-all",
	Short: "clean_all_shards: prune every shard's container by --fresh-days",
	RunE: func(cmd *cobra.Command, args []string) error {
		freshDays, _ := cmd.Flags().GetFloat64("fresh-days")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		container := containerFlag(cmd)
		if container == "" {
			container = cfg.DefaultContainer
		}

		f := openFarm(cfg)
		return f.CleanAllShards(cmd.Context(), container, freshDays)
	},
}

func init() {
	farmPlantCmd.Flags().String("value", "", "JSON-encoded value to plant (required)")
	farmPlantCmd.Flags().String("notes", "", "Comma-separated tags to file this value under")

	farmReapCmd.Flags().String("tags", "", "Comma-separated tag pattern (empty matches every row)")
	farmReapCmd.Flags().Bool("wild", true, "Wrap each tag term in GLOB wildcards")

	farmCleanAllCmd.Flags().Float64("fresh-days", 0, "Retention window in days, anchored to each shard's newest row")

	farmCmd.AddCommand(farmPlantCmd, farmReapAllCmd, farmReapCmd, farmCleanAllCmd)
}
