package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/isdmx/forkbox/apperr"
	"github.com/isdmx/forkbox/sandbox"
	"github.com/isdmx/forkbox/service"
)

// JSON-RPC error codes returned by the facade
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
	CodeForkNotFound      = -32001
	CodeTransactionFailed = -32002
)

// blockhashValidity is how many heights a returned blockhash stays usable
const blockhashValidity = 150

// reportedVersion is the node version the facade claims to run
const reportedVersion = "1.18.0"

// ForkService is the subset of fork operations the facade serves
type ForkService interface {
	Balance(sel sandbox.Selector, address string) (service.BalanceResult, error)
	Account(sel sandbox.Selector, address string) (service.AccountResult, error)
	ChainState(sel sandbox.Selector) (service.ChainState, error)
	Submit(sel sandbox.Selector, raw []byte) (service.SubmitResult, error)
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return e.Message
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcContext struct {
	Slot uint64 `json:"slot"`
}

type contextValue struct {
	Context rpcContext `json:"context"`
	Value   any        `json:"value"`
}

type rpcMethod struct {
	// needsFork is false for methods answered without a fork
	needsFork bool
	call      func(f *facade, sel sandbox.Selector, params []json.RawMessage) (any, error)
}

var rpcMethods = map[string]rpcMethod{
	"getBalance":          {needsFork: true, call: (*facade).getBalance},
	"getAccountInfo":      {needsFork: true, call: (*facade).getAccountInfo},
	"getSlot":             {needsFork: true, call: (*facade).getHeight},
	"getBlockHeight":      {needsFork: true, call: (*facade).getHeight},
	"getLatestBlockhash":  {needsFork: true, call: (*facade).getLatestBlockhash},
	"getTransactionCount": {needsFork: true, call: (*facade).getTransactionCount},
	"sendTransaction":     {needsFork: true, call: (*facade).sendTransaction},
	"getHealth": {call: func(*facade, sandbox.Selector, []json.RawMessage) (any, error) {
		return "ok", nil
	}},
	"getVersion": {call: func(*facade, sandbox.Selector, []json.RawMessage) (any, error) {
		return map[string]any{"solana-core": reportedVersion, "feature-set": 0}, nil
	}},
}

// facade answers a subset of the Solana JSON-RPC API against one fork,
// chosen by the fork_id or user_id query parameter
type facade struct {
	logger *zap.Logger
	forks  ForkService
}

func (f *facade) handle(c *gin.Context) {
	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, errorResponse(nil, &rpcError{Code: CodeParseError, Message: "parse error: " + err.Error()}))
		return
	}
	if req.JSONRPC != "2.0" {
		c.JSON(http.StatusOK, errorResponse(req.ID, &rpcError{Code: CodeInvalidRequest, Message: "invalid JSON-RPC version"}))
		return
	}

	method, ok := rpcMethods[req.Method]
	if !ok {
		c.JSON(http.StatusOK, errorResponse(req.ID, &rpcError{Code: CodeMethodNotFound, Message: "method not supported: " + req.Method}))
		return
	}

	sel := sandbox.Selector{TenantID: c.Query("user_id"), SandboxID: c.Query("fork_id")}
	if method.needsFork {
		if err := sel.Validate(); err != nil {
			c.JSON(http.StatusOK, errorResponse(req.ID, f.toRPCError(req.Method, err)))
			return
		}
	}

	result, err := method.call(f, sel, req.Params)
	if err != nil {
		c.JSON(http.StatusOK, errorResponse(req.ID, f.toRPCError(req.Method, err)))
		return
	}
	c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func errorResponse(id json.RawMessage, err *rpcError) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: err}
}

// toRPCError maps service error kinds onto JSON-RPC codes
func (f *facade) toRPCError(method string, err error) *rpcError {
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return &rpcError{Code: CodeForkNotFound, Message: err.Error()}
	case apperr.KindBadRequest:
		return &rpcError{Code: CodeInvalidParams, Message: err.Error()}
	default:
		f.logger.Error("rpc method failed", zap.String("method", method), zap.Error(err))
		return &rpcError{Code: CodeInternal, Message: err.Error()}
	}
}

func invalidParams(msg string) *rpcError {
	return &rpcError{Code: CodeInvalidParams, Message: msg}
}

// stringParam reads params[i] as a string
func stringParam(params []json.RawMessage, i int, name string) (string, error) {
	if len(params) <= i {
		return "", invalidParams("missing " + name + " parameter")
	}
	var s string
	if err := json.Unmarshal(params[i], &s); err != nil {
		return "", invalidParams("invalid " + name + " parameter")
	}
	return s, nil
}

func (f *facade) getBalance(sel sandbox.Selector, params []json.RawMessage) (any, error) {
	address, err := stringParam(params, 0, "address")
	if err != nil {
		return nil, err
	}
	bal, err := f.forks.Balance(sel, address)
	if err != nil {
		return nil, err
	}
	return contextValue{Context: rpcContext{Slot: bal.Slot}, Value: bal.Lamports}, nil
}

func (f *facade) getAccountInfo(sel sandbox.Selector, params []json.RawMessage) (any, error) {
	address, err := stringParam(params, 0, "address")
	if err != nil {
		return nil, err
	}
	res, err := f.forks.Account(sel, address)
	if err != nil {
		return nil, err
	}

	out := contextValue{Context: rpcContext{Slot: res.Slot}}
	if res.Found {
		out.Value = map[string]any{
			"lamports":   res.Account.Lamports,
			"owner":      res.Account.Owner.String(),
			"executable": res.Account.Executable,
			"rentEpoch":  res.Account.RentEpoch,
			"space":      res.Account.DataLen,
			// account data is not served through the facade
			"data": []string{"", "base64"},
		}
	}
	return out, nil
}

func (f *facade) getHeight(sel sandbox.Selector, _ []json.RawMessage) (any, error) {
	state, err := f.forks.ChainState(sel)
	if err != nil {
		return nil, err
	}
	return state.Height, nil
}

func (f *facade) getTransactionCount(sel sandbox.Selector, _ []json.RawMessage) (any, error) {
	state, err := f.forks.ChainState(sel)
	if err != nil {
		return nil, err
	}
	return state.TransactionCount, nil
}

func (f *facade) getLatestBlockhash(sel sandbox.Selector, _ []json.RawMessage) (any, error) {
	state, err := f.forks.ChainState(sel)
	if err != nil {
		return nil, err
	}
	return contextValue{
		Context: rpcContext{Slot: state.Height},
		Value: map[string]any{
			"blockhash":            state.Blockhash,
			"lastValidBlockHeight": state.Height + blockhashValidity,
		},
	}, nil
}

type sendConfig struct {
	Encoding string `json:"encoding"`
}

func (f *facade) sendTransaction(sel sandbox.Selector, params []json.RawMessage) (any, error) {
	encoded, err := stringParam(params, 0, "transaction")
	if err != nil {
		return nil, err
	}
	cfg := sendConfig{Encoding: "base64"}
	if len(params) > 1 {
		if err := json.Unmarshal(params[1], &cfg); err != nil {
			return nil, invalidParams("invalid config parameter")
		}
	}

	var raw []byte
	switch cfg.Encoding {
	case "base64":
		raw, err = base64.StdEncoding.DecodeString(encoded)
	case "base58":
		raw, err = base58.Decode(encoded)
	default:
		return nil, invalidParams("unsupported encoding: " + cfg.Encoding)
	}
	if err != nil {
		return nil, invalidParams("transaction is not valid " + cfg.Encoding)
	}

	res, err := f.forks.Submit(sel, raw)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &rpcError{
			Code:    CodeTransactionFailed,
			Message: "transaction failed: " + res.Error,
			Data:    map[string]string{"signature": res.Signature},
		}
	}
	return res.Signature, nil
}
