// Package mcpserver exposes fork operations as Model Context Protocol tools.
//
// Tools address a fork either by fork_id or by user_id, never both. Argument
// problems and unknown forks are returned as tool errors prefixed with their
// kind (bad_request, not_found, upstream_failure, internal) so clients can
// tell them apart without parsing prose. A transaction that executes and
// fails is not a tool error: it is reported in the result with success=false.
//
// Usage:
//
//	server, err := mcpserver.New(cfg, logger, forkService)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or mount server.HTTPHandler()
package mcpserver
