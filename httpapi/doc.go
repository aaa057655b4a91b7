// Package httpapi serves forkbox over HTTP with gin.
//
// Routes:
//
//	GET  /health   liveness
//	GET  /metrics  Prometheus exposition of the injected registry
//	POST /rpc      Solana-style JSON-RPC against one fork (?fork_id= or ?user_id=)
//	ANY  /mcp      streamable HTTP MCP transport
//
// The facade always answers with HTTP 200 and reports failures as JSON-RPC
// error objects: -32001 for an unknown fork, -32002 for a transaction that
// executed and failed, and the standard codes otherwise.
package httpapi
