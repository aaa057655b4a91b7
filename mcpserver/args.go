package mcpserver

import (
	"encoding/base64"
	"math"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/isdmx/forkbox/apperr"
	"github.com/isdmx/forkbox/ledger"
	"github.com/isdmx/forkbox/sandbox"
)

// selector reads the fork_id / user_id pair. Validation happens in the registry.
func selector(request mcp.CallToolRequest) sandbox.Selector {
	return sandbox.Selector{
		TenantID:  strings.TrimSpace(request.GetString("user_id", "")),
		SandboxID: strings.TrimSpace(request.GetString("fork_id", "")),
	}
}

func requireString(request mcp.CallToolRequest, key string) (string, error) {
	v, err := request.RequireString(key)
	if err != nil {
		return "", apperr.BadRequest("%v", err)
	}
	if strings.TrimSpace(v) == "" {
		return "", apperr.BadRequest("%s must not be empty", key)
	}
	return strings.TrimSpace(v), nil
}

// lamportsArg reads a non-negative integer lamport amount. Strings are
// accepted so amounts above 2^53 survive JSON number precision.
func lamportsArg(request mcp.CallToolRequest, key string) (uint64, bool, error) {
	raw, ok := request.GetArguments()[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= math.MaxUint64 {
			return 0, true, apperr.BadRequest("%s must be a non-negative integer, got %v", key, v)
		}
		return uint64(v), true, nil
	case int:
		if v < 0 {
			return 0, true, apperr.BadRequest("%s must be non-negative, got %d", key, v)
		}
		return uint64(v), true, nil
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, true, apperr.BadRequest("invalid %s: %v", key, err)
		}
		return n, true, nil
	default:
		return 0, true, apperr.BadRequest("%s must be a number", key)
	}
}

// solArg reads a non-negative SOL amount and converts it to lamports
func solArg(request mcp.CallToolRequest, key string) (uint64, bool, error) {
	if _, ok := request.GetArguments()[key]; !ok {
		return 0, false, nil
	}
	sol, err := request.RequireFloat(key)
	if err != nil {
		return 0, true, apperr.BadRequest("%v", err)
	}
	lamports := math.Round(sol * float64(ledger.LamportsPerSOL))
	if sol < 0 || math.IsNaN(sol) || lamports >= math.MaxUint64 {
		return 0, true, apperr.BadRequest("%s must be a non-negative amount, got %v", key, sol)
	}
	return uint64(lamports), true, nil
}

// amountArg reads exactly one of a lamports key and a SOL key
func amountArg(request mcp.CallToolRequest, lamportsKey, solKey string) (uint64, error) {
	lamports, hasLamports, err := lamportsArg(request, lamportsKey)
	if err != nil {
		return 0, err
	}
	fromSOL, hasSOL, err := solArg(request, solKey)
	if err != nil {
		return 0, err
	}
	switch {
	case hasLamports && hasSOL:
		return 0, apperr.BadRequest("%s and %s are mutually exclusive", lamportsKey, solKey)
	case hasLamports:
		return lamports, nil
	case hasSOL:
		return fromSOL, nil
	default:
		return 0, apperr.BadRequest("one of %s or %s is required", lamportsKey, solKey)
	}
}

// transactionArg decodes the base64 wire form of a transaction
func transactionArg(request mcp.CallToolRequest) ([]byte, error) {
	encoded, err := requireString(request, "transaction")
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperr.BadRequest("transaction must be base64: %v", err)
	}
	return raw, nil
}
