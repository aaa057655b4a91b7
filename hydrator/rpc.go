package hydrator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/isdmx/forkbox/ledger"
)

// DefaultCommitment is used when no commitment level is configured
const DefaultCommitment = "confirmed"

// RPCClient is a NetworkClient speaking JSON-RPC 2.0 over HTTP. Every call
// waits on a token-bucket limiter first.
type RPCClient struct {
	logger     *zap.Logger
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	commitment string
	nextID     atomic.Uint64
}

// RPCOption defines a functional option for RPCClient
type RPCOption func(*RPCClient)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) RPCOption {
	return func(r *RPCClient) {
		r.httpClient = c
	}
}

// WithTimeout sets the per-request timeout on this client's own copy of the
// HTTP client
func WithTimeout(d time.Duration) RPCOption {
	return func(r *RPCClient) {
		c := *r.httpClient
		c.Timeout = d
		r.httpClient = &c
	}
}

// WithRateLimit limits requests to rps per second with the given burst
func WithRateLimit(rps float64, burst int) RPCOption {
	return func(r *RPCClient) {
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCommitment sets the commitment level sent with every request
func WithCommitment(commitment string) RPCOption {
	return func(r *RPCClient) {
		r.commitment = commitment
	}
}

// NewRPCClient creates a client for endpoint
func NewRPCClient(logger *zap.Logger, endpoint string, opts ...RPCOption) *RPCClient {
	c := &RPCClient{
		logger:     logger,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 0),
		commitment: DefaultCommitment,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL the client talks to
func (c *RPCClient) Endpoint() string {
	return c.endpoint
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is an error object returned by the remote node
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcAccount struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
	Data       []string `json:"data"`
}

func (a *rpcAccount) toAccount() (ledger.Account, error) {
	owner, err := ledger.ParseAddress(a.Owner)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("invalid owner: %w", err)
	}
	var data []byte
	if len(a.Data) > 0 && a.Data[0] != "" {
		if len(a.Data) > 1 && a.Data[1] != "base64" {
			return ledger.Account{}, fmt.Errorf("unexpected data encoding %q", a.Data[1])
		}
		data, err = base64.StdEncoding.DecodeString(a.Data[0])
		if err != nil {
			return ledger.Account{}, fmt.Errorf("invalid account data: %w", err)
		}
	}
	return ledger.Account{
		Lamports:   a.Lamports,
		Owner:      owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
		Data:       data,
	}, nil
}

// GetAccountInfo fetches one account. It returns ErrAccountNotFound when the
// network has no account at addr.
func (c *RPCClient) GetAccountInfo(ctx context.Context, addr ledger.Address) (ledger.Account, error) {
	var result struct {
		Value *rpcAccount `json:"value"`
	}
	params := []any{
		addr.String(),
		map[string]any{"encoding": "base64", "commitment": c.commitment},
	}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return ledger.Account{}, err
	}
	if result.Value == nil {
		return ledger.Account{}, fmt.Errorf("%s: %w", addr, ErrAccountNotFound)
	}
	return result.Value.toAccount()
}

// GetProgramAccounts lists accounts owned by program that match every filter
func (c *RPCClient) GetProgramAccounts(ctx context.Context, program ledger.Address, filters ...MemcmpFilter) ([]KeyedAccount, error) {
	config := map[string]any{"encoding": "base64", "commitment": c.commitment}
	if len(filters) > 0 {
		encoded := make([]any, 0, len(filters))
		for _, f := range filters {
			encoded = append(encoded, map[string]any{
				"memcmp": map[string]any{"offset": f.Offset, "bytes": base58.Encode(f.Bytes)},
			})
		}
		config["filters"] = encoded
	}

	var result []struct {
		Pubkey  string     `json:"pubkey"`
		Account rpcAccount `json:"account"`
	}
	if err := c.call(ctx, "getProgramAccounts", []any{program.String(), config}, &result); err != nil {
		return nil, err
	}

	accounts := make([]KeyedAccount, 0, len(result))
	for _, item := range result {
		addr, err := ledger.ParseAddress(item.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("invalid pubkey in response: %w", err)
		}
		acct, err := item.Account.toAccount()
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", addr, err)
		}
		accounts = append(accounts, KeyedAccount{Address: addr, Account: acct})
	}
	return accounts, nil
}

// GetSlot returns the current slot
func (c *RPCClient) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := c.call(ctx, "getSlot", []any{map[string]any{"commitment": c.commitment}}, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// GetLatestBlockhash returns the most recent blockhash
func (c *RPCClient) GetLatestBlockhash(ctx context.Context) (ledger.Hash, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", []any{map[string]any{"commitment": c.commitment}}, &result); err != nil {
		return ledger.Hash{}, err
	}
	return ledger.ParseHash(result.Value.Blockhash)
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", method, err)
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", method, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("RPC call finished",
		zap.String("method", method),
		zap.String("endpoint", c.endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", method, err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("%s: %w", method, decoded.Error)
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", method, err)
	}
	return nil
}
