package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/forkbox/apperr"
	"github.com/isdmx/forkbox/service"
)

var selectorProperties = map[string]any{
	"fork_id": map[string]any{
		"type":        "string",
		"description": "Fork id. Mutually exclusive with user_id",
	},
	"user_id": map[string]any{
		"type":        "string",
		"description": "User whose live fork to use. Mutually exclusive with fork_id",
	},
}

var endpointProperty = map[string]any{
	"type":        "string",
	"description": "Network RPC endpoint to hydrate from (defaults to the configured endpoint)",
}

// withSelector merges the fork selector into a tool's own properties
func withSelector(props map[string]any) map[string]any {
	merged := make(map[string]any, len(props)+len(selectorProperties))
	for k, v := range selectorProperties {
		merged[k] = v
	}
	for k, v := range props {
		merged[k] = v
	}
	return merged
}

func stringProperty(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func tool(name, description string, props map[string]any, required ...string) mcp.Tool {
	if props == nil {
		props = map[string]any{}
	}
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

// registerTools registers every fork tool
func (s *MCPServer) registerTools() {
	tools := []struct {
		tool    mcp.Tool
		handler server.ToolHandlerFunc
	}{
		{tool("create_fork", "Create an empty fork for a user, or return the user's live fork",
			map[string]any{"user_id": stringProperty("User id; generated when omitted")}),
			s.handleCreateFork},
		{tool("create_network_fork", "Create a fork stamped with the network's current slot and seeded with network accounts",
			map[string]any{
				"user_id":  stringProperty("User id; generated when omitted"),
				"endpoint": endpointProperty,
				"accounts": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Base58 addresses to copy into the fork",
				},
			}),
			s.handleCreateNetworkFork},
		{tool("fork_info", "Describe a fork", withSelector(nil)), s.handleForkInfo},
		{tool("list_forks", "List every fork", nil), s.handleListForks},
		{tool("delete_fork", "Delete a fork", withSelector(nil)), s.handleDeleteFork},
		{tool("sweep_forks", "Remove every expired fork now", nil), s.handleSweepForks},
		{tool("set_balance", "Set the exact lamport balance of an address",
			withSelector(map[string]any{
				"address":  stringProperty("Base58 address"),
				"lamports": map[string]any{"type": "number", "description": "New balance in lamports"},
			}), "address", "lamports"),
			s.handleSetBalance},
		{tool("airdrop", "Credit SOL or lamports to an address",
			withSelector(map[string]any{
				"address":  stringProperty("Base58 address"),
				"sol":      map[string]any{"type": "number", "description": "Amount in SOL"},
				"lamports": map[string]any{"type": "number", "description": "Amount in lamports"},
			}), "address"),
			s.handleAirdrop},
		{tool("get_balance", "Get the lamport balance of an address",
			withSelector(map[string]any{"address": stringProperty("Base58 address")}), "address"),
			s.handleGetBalance},
		{tool("get_account", "Get an account record",
			withSelector(map[string]any{"address": stringProperty("Base58 address")}), "address"),
			s.handleGetAccount},
		{tool("send_transaction", "Execute a signed transaction",
			withSelector(map[string]any{"transaction": stringProperty("Base64 encoded signed transaction")}), "transaction"),
			s.handleSendTransaction},
		{tool("transfer", "Transfer SOL between accounts, signing with the sender's private key",
			withSelector(map[string]any{
				"from":        stringProperty("Base58 sender address"),
				"to":          stringProperty("Base58 recipient address"),
				"amount_sol":  map[string]any{"type": "number", "description": "Amount in SOL"},
				"lamports":    map[string]any{"type": "number", "description": "Amount in lamports"},
				"private_key": stringProperty("Sender key as base58 or a JSON byte array"),
			}), "from", "to", "private_key"),
			s.handleTransfer},
		{tool("load_account", "Copy one account from the network into a fork",
			withSelector(map[string]any{"address": stringProperty("Base58 address"), "endpoint": endpointProperty}), "address"),
			s.handleLoadAccount},
		{tool("load_accounts", "Copy several accounts from the network into a fork",
			withSelector(map[string]any{
				"addresses": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Base58 addresses",
				},
				"endpoint": endpointProperty,
			}), "addresses"),
			s.handleLoadAccounts},
		{tool("load_owner_accounts", "Copy every token account held by an owner into a fork",
			withSelector(map[string]any{"owner": stringProperty("Base58 owner address"), "endpoint": endpointProperty}), "owner"),
			s.handleLoadOwnerAccounts},
	}

	for _, t := range tools {
		s.mcpServer.AddTool(t.tool, t.handler)
	}
}

func (s *MCPServer) handleCreateFork(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.forks.Create(request.GetString("user_id", ""))
	if err != nil {
		return s.errorResult("create_fork", err), nil
	}
	return jsonResult(res)
}

func (s *MCPServer) handleCreateNetworkFork(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.forks.CreateWithSnapshot(ctx, service.SnapshotRequest{
		Tenant:   request.GetString("user_id", ""),
		Endpoint: request.GetString("endpoint", ""),
		Accounts: request.GetStringSlice("accounts", nil),
	})
	if err != nil {
		return s.errorResult("create_network_fork", err), nil
	}
	return jsonResult(res)
}

func (s *MCPServer) handleForkInfo(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := s.forks.Info(selector(request))
	if err != nil {
		return s.errorResult("fork_info", err), nil
	}
	return jsonResult(info)
}

func (s *MCPServer) handleListForks(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	forks := s.forks.List()
	return jsonResult(map[string]any{"forks": forks, "count": len(forks)})
}

func (s *MCPServer) handleDeleteFork(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sel := selector(request)
	deleted, err := s.forks.Delete(sel)
	if err != nil {
		return s.errorResult("delete_fork", err), nil
	}
	return jsonResult(map[string]any{"deleted": deleted})
}

func (s *MCPServer) handleSweepForks(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	removed := s.forks.Sweep()
	s.logger.Info("manual sweep", zap.Int("removed", removed))
	return jsonResult(map[string]any{"removed": removed})
}

func (s *MCPServer) handleSetBalance(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, err := requireString(request, "address")
	if err != nil {
		return s.errorResult("set_balance", err), nil
	}
	lamports, ok, err := lamportsArg(request, "lamports")
	if err == nil && !ok {
		err = apperr.BadRequest("lamports is required")
	}
	if err != nil {
		return s.errorResult("set_balance", err), nil
	}
	res, err := s.forks.SetBalance(selector(request), address, lamports)
	if err != nil {
		return s.errorResult("set_balance", err), nil
	}
	return jsonResult(res)
}

func (s *MCPServer) handleAirdrop(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, err := requireString(request, "address")
	if err != nil {
		return s.errorResult("airdrop", err), nil
	}
	lamports, err := amountArg(request, "lamports", "sol")
	if err != nil {
		return s.errorResult("airdrop", err), nil
	}
	res, err := s.forks.AddBalance(selector(request), address, lamports)
	if err != nil {
		return s.errorResult("airdrop", err), nil
	}
	return jsonResult(res)
}

func (s *MCPServer) handleGetBalance(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, err := requireString(request, "address")
	if err != nil {
		return s.errorResult("get_balance", err), nil
	}
	res, err := s.forks.Balance(selector(request), address)
	if err != nil {
		return s.errorResult("get_balance", err), nil
	}
	return jsonResult(res)
}

func (s *MCPServer) handleGetAccount(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, err := requireString(request, "address")
	if err != nil {
		return s.errorResult("get_account", err), nil
	}
	res, err := s.forks.Account(selector(request), address)
	if err != nil {
		return s.errorResult("get_account", err), nil
	}
	return jsonResult(res)
}

func (s *MCPServer) handleSendTransaction(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := transactionArg(request)
	if err != nil {
		return s.errorResult("send_transaction", err), nil
	}
	res, err := s.forks.Submit(selector(request), raw)
	if err != nil {
		return s.errorResult("send_transaction", err), nil
	}
	return jsonResult(res)
}

func (s *MCPServer) handleTransfer(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := service.TransferRequest{Selector: selector(request)}
	var err error
	if req.From, err = requireString(request, "from"); err != nil {
		return s.errorResult("transfer", err), nil
	}
	if req.To, err = requireString(request, "to"); err != nil {
		return s.errorResult("transfer", err), nil
	}
	if req.PrivateKey, err = requireString(request, "private_key"); err != nil {
		return s.errorResult("transfer", err), nil
	}
	if req.Lamports, err = amountArg(request, "lamports", "amount_sol"); err != nil {
		return s.errorResult("transfer", err), nil
	}

	res, err := s.forks.Transfer(req)
	if err != nil {
		return s.errorResult("transfer", err), nil
	}
	return jsonResult(res)
}

func (s *MCPServer) handleLoadAccount(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address, err := requireString(request, "address")
	if err != nil {
		return s.errorResult("load_account", err), nil
	}
	res, err := s.forks.LoadAccount(ctx, selector(request), address, request.GetString("endpoint", ""))
	if err != nil {
		return s.errorResult("load_account", err), nil
	}
	return jsonResult(res)
}

func (s *MCPServer) handleLoadAccounts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addresses, err := request.RequireStringSlice("addresses")
	if err != nil {
		return s.errorResult("load_accounts", err), nil
	}
	res, err := s.forks.LoadAccounts(ctx, selector(request), addresses, request.GetString("endpoint", ""))
	if err != nil {
		return s.errorResult("load_accounts", err), nil
	}
	return jsonResult(res)
}

func (s *MCPServer) handleLoadOwnerAccounts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := requireString(request, "owner")
	if err != nil {
		return s.errorResult("load_owner_accounts", err), nil
	}
	res, err := s.forks.LoadByOwner(ctx, selector(request), owner, request.GetString("endpoint", ""))
	if err != nil {
		return s.errorResult("load_owner_accounts", err), nil
	}
	return jsonResult(res)
}
