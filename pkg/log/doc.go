/*
Package log provides structured logging for silo using zerolog.

The log package wraps zerolog to provide JSON or console-formatted
logging with component-specific child loggers, configurable severity
levels, and a handful of helpers for the common logging patterns used
across the storage and farm engines.

# Usage

Initializing the logger:

	import "github.com/cuemby/silo/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component and context loggers:

	storageLog := log.WithComponent("storage")
	storageLog.Info().Msg("container ensured")

	farmLog := log.WithComponent("farm").
		With().Str("file", path).Int("shard", shard).Logger()
	farmLog.Debug().Msg("harvest skipped this round")

Context helpers:

	log.WithFile(path)       // backing file path
	log.WithContainer(name)  // container name
	log.WithShard(n)         // farm shard index

# Design

A single package-level zerolog.Logger is initialized once via Init and
read from every other package without being passed explicitly, the same
pattern pkg/metrics follows for its package-level collectors and health
registry. Context
loggers attach one or two fields and are cheap enough to construct per
call; there is no logger pooling.
*/
package log
