package httpapi

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/forkbox/ledger"
	"github.com/isdmx/forkbox/sandbox"
	"github.com/isdmx/forkbox/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	svc    *service.Service
	reg    *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	registry := sandbox.NewRegistry(logger, sandbox.WithMetrics(sandbox.NewMetrics(reg)))
	svc := service.New(logger, registry, nil)
	return &fixture{
		router: NewRouter(logger, svc, reg, nil),
		svc:    svc,
		reg:    reg,
	}
}

type testResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (f *fixture) rpc(t *testing.T, query string, method string, params ...any) testResponse {
	t.Helper()
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)
	return f.post(t, query, body)
}

func (f *fixture) post(t *testing.T, query string, body []byte) testResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc?"+query, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp testResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create("alice")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "forkbox_sandboxes_active 1")
	assert.Contains(t, w.Body.String(), `forkbox_sandboxes_created_total{origin="empty"} 1`)
}

func TestRPCErrors(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create("alice")
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
		body  string
		code  int
	}{
		{"malformed body", "user_id=alice", `{"jsonrpc":`, CodeParseError},
		{"wrong version", "user_id=alice", `{"jsonrpc":"1.0","id":1,"method":"getSlot"}`, CodeInvalidRequest},
		{"unknown method", "user_id=alice", `{"jsonrpc":"2.0","id":1,"method":"getBlock"}`, CodeMethodNotFound},
		{"no selector", "", `{"jsonrpc":"2.0","id":1,"method":"getSlot"}`, CodeInvalidParams},
		{"both selectors", "user_id=alice&fork_id=x", `{"jsonrpc":"2.0","id":1,"method":"getSlot"}`, CodeInvalidParams},
		{"unknown tenant", "user_id=bob", `{"jsonrpc":"2.0","id":1,"method":"getSlot"}`, CodeForkNotFound},
		{"unknown fork", "fork_id=fork-x", `{"jsonrpc":"2.0","id":1,"method":"getSlot"}`, CodeForkNotFound},
		{"missing address", "user_id=alice", `{"jsonrpc":"2.0","id":1,"method":"getBalance","params":[]}`, CodeInvalidParams},
		{"bad address", "user_id=alice", `{"jsonrpc":"2.0","id":1,"method":"getBalance","params":["0OIl"]}`, CodeInvalidParams},
		{"bad transaction encoding", "user_id=alice", `{"jsonrpc":"2.0","id":1,"method":"sendTransaction","params":["%%%"]}`, CodeInvalidParams},
		{"unsupported encoding", "user_id=alice", `{"jsonrpc":"2.0","id":1,"method":"sendTransaction","params":["AA==",{"encoding":"hex"}]}`, CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.post(t, tt.query, []byte(tt.body))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Nil(t, resp.Result)
		})
	}
}

func TestRPCForkFreeMethods(t *testing.T) {
	f := newFixture(t)

	resp := f.rpc(t, "", "getHealth")
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `"ok"`, string(resp.Result))

	resp = f.rpc(t, "", "getVersion")
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"solana-core":"1.18.0","feature-set":0}`, string(resp.Result))
	assert.JSONEq(t, `1`, string(resp.ID))
}

func TestRPCQueries(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create("alice")
	require.NoError(t, err)
	addr := ledger.Address{5}.String()
	_, err = f.svc.AddBalance(sandbox.ByTenant("alice"), addr, 1234)
	require.NoError(t, err)

	resp := f.rpc(t, "fork_id="+created.ForkID, "getBalance", addr)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"context":{"slot":0},"value":1234}`, string(resp.Result))

	resp = f.rpc(t, "user_id=alice", "getAccountInfo", addr)
	require.Nil(t, resp.Error)
	var info struct {
		Value struct {
			Lamports uint64 `json:"lamports"`
			Owner    string `json:"owner"`
		} `json:"value"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &info))
	assert.Equal(t, uint64(1234), info.Value.Lamports)
	assert.Equal(t, ledger.SystemProgramID.String(), info.Value.Owner)

	resp = f.rpc(t, "user_id=alice", "getAccountInfo", ledger.Address{6}.String())
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"context":{"slot":0},"value":null}`, string(resp.Result))

	for _, method := range []string{"getSlot", "getBlockHeight", "getTransactionCount"} {
		resp = f.rpc(t, "user_id=alice", method)
		require.Nil(t, resp.Error, method)
		assert.JSONEq(t, `0`, string(resp.Result), method)
	}
}

// driftingForks reports a chain height that never matches the fork's reads
type driftingForks struct {
	*service.Service
}

func (d driftingForks) ChainState(sel sandbox.Selector) (service.ChainState, error) {
	state, err := d.Service.ChainState(sel)
	state.Height += 99
	return state, err
}

func TestRPCQueriesReportSlotOfTheirRead(t *testing.T) {
	logger := zaptest.NewLogger(t)
	svc := service.New(logger, sandbox.NewRegistry(logger), nil)
	router := NewRouter(logger, driftingForks{svc}, prometheus.NewRegistry(), nil)
	f := &fixture{router: router, svc: svc}

	_, err := svc.Create("alice")
	require.NoError(t, err)
	addr := ledger.Address{5}.String()
	_, err = svc.AddBalance(sandbox.ByTenant("alice"), addr, 10)
	require.NoError(t, err)

	resp := f.rpc(t, "user_id=alice", "getBalance", addr)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"context":{"slot":0},"value":10}`, string(resp.Result))

	resp = f.rpc(t, "user_id=alice", "getAccountInfo", ledger.Address{6}.String())
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"context":{"slot":0},"value":null}`, string(resp.Result))

	resp = f.rpc(t, "user_id=alice", "getSlot")
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `99`, string(resp.Result))
}

func TestRPCSendTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create("alice")
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	from := ledger.AddressFromPublicKey(pub)
	to := ledger.Address{7}
	_, err = f.svc.AddBalance(sandbox.ByTenant("alice"), from.String(), ledger.LamportsPerSOL)
	require.NoError(t, err)

	latest := func() ledger.Hash {
		resp := f.rpc(t, "user_id=alice", "getLatestBlockhash")
		require.Nil(t, resp.Error)
		var out struct {
			Context rpcContext `json:"context"`
			Value   struct {
				Blockhash            string `json:"blockhash"`
				LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
			} `json:"value"`
		}
		require.NoError(t, json.Unmarshal(resp.Result, &out))
		assert.Equal(t, out.Context.Slot+blockhashValidity, out.Value.LastValidBlockHeight)
		h, err := ledger.ParseHash(out.Value.Blockhash)
		require.NoError(t, err)
		return h
	}
	encode := func(lamports uint64) string {
		tx, err := ledger.SignTransaction(ledger.Message{
			Signers:         []ledger.Address{from},
			RecentBlockhash: latest(),
			Instructions:    []ledger.Instruction{ledger.TransferInstruction(from, to, lamports)},
		}, priv)
		require.NoError(t, err)
		raw, err := tx.Encode()
		require.NoError(t, err)
		return base64.StdEncoding.EncodeToString(raw)
	}

	resp := f.rpc(t, "user_id=alice", "sendTransaction", encode(1000), map[string]string{"encoding": "base64"})
	require.Nil(t, resp.Error)
	var sig string
	require.NoError(t, json.Unmarshal(resp.Result, &sig))
	assert.NotEmpty(t, sig)

	resp = f.rpc(t, "user_id=alice", "getBalance", to.String())
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"context":{"slot":1},"value":1000}`, string(resp.Result))

	resp = f.rpc(t, "user_id=alice", "sendTransaction", encode(10*ledger.LamportsPerSOL))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTransactionFailed, resp.Error.Code)

	resp = f.rpc(t, "user_id=alice", "getTransactionCount")
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `2`, string(resp.Result))
}

func TestServerStartStop(t *testing.T) {
	logger := zaptest.NewLogger(t)
	router := NewRouter(logger, nil, prometheus.NewRegistry(), nil)
	srv := NewServer(logger, "127.0.0.1:0", router)
	require.Nil(t, srv.Addr())

	require.NoError(t, srv.Start())
	addr := srv.Addr()
	require.NotNil(t, addr)

	resp, err := http.Get("http://" + addr.String() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}

func TestServerStartFailsOnBusyPort(t *testing.T) {
	logger := zaptest.NewLogger(t)
	first := NewServer(logger, "127.0.0.1:0", http.NotFoundHandler())
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Stop(context.Background()) })

	second := NewServer(logger, first.Addr().String(), http.NotFoundHandler())
	assert.Error(t, second.Start())
}
