// Package main is the entry point for the forkbox server.
//
// forkbox keeps short-lived, per-user forks of a Solana-style ledger in
// memory. Each fork starts empty or stamped with a live network's current
// slot, can be seeded with accounts copied from that network, and executes
// signed transactions in isolation until its TTL lapses.
//
// The server speaks MCP over stdio or, with server.transport=http, serves MCP,
// a JSON-RPC facade, health and Prometheus metrics from one gin router.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
