// Package config provides application configuration management.
//
// The config package loads forkbox settings from config.yaml (searched in
// "." and "./config"), applies defaults and lets FORKBOX_ prefixed
// environment variables override any key, e.g. FORKBOX_NETWORK_ENDPOINT for
// network.endpoint. It covers the transport, logging, fork lifetime, the
// upstream network used for hydration and the execution engine.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Fork TTL: %s\n", cfg.GetTTL())
package config
