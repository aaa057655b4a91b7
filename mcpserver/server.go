package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/forkbox/apperr"
	"github.com/isdmx/forkbox/config"
	"github.com/isdmx/forkbox/sandbox"
	"github.com/isdmx/forkbox/service"
)

// Version is reported to MCP clients
const Version = "0.1.0"

// ForkService is the set of fork operations exposed as tools
type ForkService interface {
	Create(tenant string) (service.CreateResult, error)
	CreateWithSnapshot(ctx context.Context, req service.SnapshotRequest) (service.SnapshotResult, error)
	Info(sel sandbox.Selector) (sandbox.Info, error)
	List() []sandbox.Info
	Sweep() int
	Delete(sel sandbox.Selector) (bool, error)
	SetBalance(sel sandbox.Selector, address string, lamports uint64) (service.BalanceResult, error)
	AddBalance(sel sandbox.Selector, address string, lamports uint64) (service.BalanceResult, error)
	Balance(sel sandbox.Selector, address string) (service.BalanceResult, error)
	Account(sel sandbox.Selector, address string) (service.AccountResult, error)
	Submit(sel sandbox.Selector, raw []byte) (service.SubmitResult, error)
	Transfer(req service.TransferRequest) (service.SubmitResult, error)
	LoadAccount(ctx context.Context, sel sandbox.Selector, address, endpoint string) (service.LoadResult, error)
	LoadAccounts(ctx context.Context, sel sandbox.Selector, addresses []string, endpoint string) (service.LoadResult, error)
	LoadByOwner(ctx context.Context, sel sandbox.Selector, owner, endpoint string) (service.LoadResult, error)
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	forks     ForkService
	mcpServer *server.MCPServer
}

// New creates a new MCPServer with every fork tool registered
func New(cfg *config.Config, logger *zap.Logger, forks ForkService) (*MCPServer, error) {
	s := &MCPServer{
		config: cfg,
		logger: logger,
		forks:  forks,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.Int("registry.ttl_sec", cfg.Registry.TTLSec),
		zap.Int("registry.sweep_interval_sec", cfg.Registry.SweepIntervalSec),
		zap.String("network.endpoint", cfg.Network.Endpoint),
		zap.Float64("network.requests_per_second", cfg.Network.RequestsPerSecond),
		zap.Int("network.fetch_concurrency", cfg.Network.FetchConcurrency),
		zap.Uint64("engine.signature_fee_lamports", cfg.Engine.SignatureFeeLamports),
	)

	s.mcpServer = server.NewMCPServer("forkbox", Version, server.WithToolCapabilities(false))
	s.registerTools()

	return s, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// HTTPHandler returns the streamable HTTP transport for mounting on a router
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer, server.WithEndpointPath("/mcp"))
}

// GetMCPServer returns the underlying MCP server, for callers that dispatch
// protocol messages to it directly
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// jsonResult renders v as an indented JSON text result
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports err to the client as a tool error tagged with its kind
func (s *MCPServer) errorResult(tool string, err error) *mcp.CallToolResult {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		s.logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
	} else {
		s.logger.Info("tool rejected request",
			zap.String("tool", tool),
			zap.String("kind", kind.String()),
			zap.Error(err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
}
