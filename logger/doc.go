// Package logger provides structured logging capabilities.
//
// The logger package builds the zap logger shared by every forkbox
// component. Production mode emits JSON with ISO8601 timestamps; development
// mode emits colored console output. Both write to stderr so the stdio MCP
// transport keeps stdout to itself.
//
// Usage:
//
//	logger, err := logger.NewFromConfig(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger.Info("Fork created", zap.String("fork_id", id))
package logger
