package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	coreerrors "nhbmarket/core/errors"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
)

const (
	codeMarketInvalidParams  = -32031
	codeMarketNotFound       = -32032
	codeMarketForbidden      = -32033
	codeMarketConflict       = -32034
	codeMarketTransferFailed = -32035
)

// RPCRequest is a JSON-RPC 2.0 call. Methods take a single parameter object.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id,omitempty"`
}

// RPCResponse is the JSON-RPC 2.0 reply envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError carries the error code, a short message and optional details.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if e.Data != nil {
		return fmt.Sprintf("%s (%d): %v", e.Message, e.Code, e.Data)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, rpcErr *RPCError) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func invalidParams(format string, args ...interface{}) *RPCError {
	return &RPCError{Code: codeMarketInvalidParams, Message: "invalid_params", Data: fmt.Sprintf(format, args...)}
}

// decodeParams unmarshals the single parameter object of req into out. Methods
// without parameters pass a nil out.
func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if out == nil {
		if len(req.Params) > 1 {
			return invalidParams("at most one parameter object expected")
		}
		return nil
	}
	if len(req.Params) != 1 {
		return invalidParams("exactly one parameter object expected")
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return invalidParams("%v", err)
	}
	return nil
}

// marketError maps engine failures onto RPC codes by error kind.
func marketError(err error) *RPCError {
	if err == nil {
		return nil
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	code := coreerrors.CodeOf(err)
	switch coreerrors.KindOf(err) {
	case coreerrors.KindValidation:
		return &RPCError{Code: codeMarketInvalidParams, Message: code, Data: err.Error()}
	case coreerrors.KindState:
		return &RPCError{Code: codeMarketConflict, Message: code, Data: err.Error()}
	case coreerrors.KindAuthorization:
		return &RPCError{Code: codeMarketForbidden, Message: code, Data: err.Error()}
	case coreerrors.KindTransfer:
		return &RPCError{Code: codeMarketTransferFailed, Message: code, Data: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: "internal_error", Data: err.Error()}
	}
}

func httpStatus(rpcErr *RPCError) int {
	switch rpcErr.Code {
	case codeParseError, codeInvalidRequest, codeInvalidParams, codeMarketInvalidParams:
		return http.StatusBadRequest
	case codeMethodNotFound, codeMarketNotFound:
		return http.StatusNotFound
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeMarketForbidden:
		return http.StatusForbidden
	case codeMarketConflict:
		return http.StatusConflict
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeMarketTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func readRequest(w http.ResponseWriter, r *http.Request) (*RPCRequest, int, *RPCError) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()
	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		return nil, status, &RPCError{Code: codeInvalidRequest, Message: message, Data: err.Error()}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, http.StatusBadRequest, &RPCError{Code: codeInvalidRequest, Message: "request body required"}
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, http.StatusBadRequest, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()}
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		return req, http.StatusBadRequest, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC}
	}
	if req.Method == "" {
		return req, http.StatusBadRequest, &RPCError{Code: codeInvalidRequest, Message: "method required"}
	}
	return req, http.StatusOK, nil
}
