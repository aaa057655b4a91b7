package hydrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/forkbox/ledger"
)

type rpcHandler func(method string, params []json.RawMessage) (result any, rpcErr *RPCError)

func newRPCServer(t *testing.T, handle rpcHandler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req struct {
			JSONRPC string            `json:"jsonrpc"`
			ID      uint64            `json:"id"`
			Method  string            `json:"method"`
			Params  []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)

		result, rpcErr := handle(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRPCClientGetAccountInfo(t *testing.T) {
	owner := ledger.TokenProgramID
	present := ledger.Address{1}
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		require.Equal(t, "getAccountInfo", method)
		require.Len(t, params, 2)

		var cfg map[string]string
		require.NoError(t, json.Unmarshal(params[1], &cfg))
		assert.Equal(t, "base64", cfg["encoding"])
		assert.Equal(t, "finalized", cfg["commitment"])

		var addr string
		require.NoError(t, json.Unmarshal(params[0], &addr))
		if addr != present.String() {
			return map[string]any{"context": map[string]any{"slot": 1}, "value": nil}, nil
		}
		return map[string]any{
			"context": map[string]any{"slot": 1},
			"value": map[string]any{
				"lamports":   uint64(1_000_000),
				"owner":      owner.String(),
				"executable": false,
				"rentEpoch":  uint64(18446744073709551615),
				"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
			},
		}, nil
	})

	client := NewRPCClient(zaptest.NewLogger(t), srv.URL, WithCommitment("finalized"))

	acct, err := client.GetAccountInfo(context.Background(), present)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), acct.Lamports)
	assert.Equal(t, owner, acct.Owner)
	assert.Equal(t, uint64(18446744073709551615), acct.RentEpoch)
	assert.Equal(t, data, acct.Data)

	_, err = client.GetAccountInfo(context.Background(), ledger.Address{2})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRPCClientGetProgramAccounts(t *testing.T) {
	owner := ledger.Address{0xAA}
	holding := ledger.Address{5}

	srv := newRPCServer(t, func(method string, params []json.RawMessage) (any, *RPCError) {
		require.Equal(t, "getProgramAccounts", method)

		var program string
		require.NoError(t, json.Unmarshal(params[0], &program))
		assert.Equal(t, ledger.TokenProgramID.String(), program)

		var cfg struct {
			Filters []struct {
				Memcmp struct {
					Offset int    `json:"offset"`
					Bytes  string `json:"bytes"`
				} `json:"memcmp"`
			} `json:"filters"`
		}
		require.NoError(t, json.Unmarshal(params[1], &cfg))
		require.Len(t, cfg.Filters, 1)
		assert.Equal(t, 32, cfg.Filters[0].Memcmp.Offset)
		assert.Equal(t, owner.String(), cfg.Filters[0].Memcmp.Bytes)

		return []any{
			map[string]any{
				"pubkey": holding.String(),
				"account": map[string]any{
					"lamports": 2_039_280,
					"owner":    ledger.TokenProgramID.String(),
					"data":     []string{base64.StdEncoding.EncodeToString(make([]byte, 165)), "base64"},
				},
			},
		}, nil
	})

	client := NewRPCClient(zaptest.NewLogger(t), srv.URL)
	accounts, err := client.GetProgramAccounts(context.Background(), ledger.TokenProgramID, MemcmpFilter{Offset: 32, Bytes: owner[:]})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, holding, accounts[0].Address)
	assert.Len(t, accounts[0].Account.Data, 165)
}

func TestRPCClientSnapshotCalls(t *testing.T) {
	hash := ledger.Hash{0x11, 0x22}
	srv := newRPCServer(t, func(method string, _ []json.RawMessage) (any, *RPCError) {
		switch method {
		case "getSlot":
			return uint64(290_000_000), nil
		case "getLatestBlockhash":
			return map[string]any{
				"context": map[string]any{"slot": 290_000_000},
				"value":   map[string]any{"blockhash": hash.String(), "lastValidBlockHeight": 290_000_150},
			}, nil
		}
		return nil, &RPCError{Code: -32601, Message: "Method not found"}
	})

	client := NewRPCClient(zaptest.NewLogger(t), srv.URL)
	slot, err := client.GetSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(290_000_000), slot)

	got, err := client.GetLatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hash, got)
}

func TestRPCClientErrors(t *testing.T) {
	t.Run("RPCErrorObject", func(t *testing.T) {
		srv := newRPCServer(t, func(string, []json.RawMessage) (any, *RPCError) {
			return nil, &RPCError{Code: -32005, Message: "Node is behind"}
		})
		client := NewRPCClient(zaptest.NewLogger(t), srv.URL)

		_, err := client.GetSlot(context.Background())
		var rpcErr *RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, -32005, rpcErr.Code)
	})

	t.Run("HTTPStatus", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
		}))
		defer srv.Close()
		client := NewRPCClient(zaptest.NewLogger(t), srv.URL)

		_, err := client.GetSlot(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("Unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		client := NewRPCClient(zaptest.NewLogger(t), url, WithTimeout(time.Second))
		_, err := client.GetSlot(context.Background())
		assert.Error(t, err)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		client := NewRPCClient(zaptest.NewLogger(t), "http://127.0.0.1:1", WithRateLimit(1, 1))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := client.GetSlot(ctx)
		assert.Error(t, err)
	})
}

func TestRPCClientRateLimit(t *testing.T) {
	var calls atomic.Int64
	srv := newRPCServer(t, func(string, []json.RawMessage) (any, *RPCError) {
		calls.Add(1)
		return uint64(1), nil
	})

	client := NewRPCClient(zaptest.NewLogger(t), srv.URL, WithRateLimit(20, 1))
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.GetSlot(context.Background())
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int64(3), calls.Load())
}

func TestRPCClientTimeoutLeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: 7 * time.Second}

	client := NewRPCClient(zaptest.NewLogger(t), "http://127.0.0.1:0",
		WithHTTPClient(shared),
		WithTimeout(time.Second),
	)
	assert.Equal(t, 7*time.Second, shared.Timeout)
	assert.Equal(t, time.Second, client.httpClient.Timeout)
	assert.NotSame(t, shared, client.httpClient)
}
