package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedCall struct {
	method      string
	params      map[string]interface{}
	requireAuth bool
}

func stubRPC(t *testing.T, result string, rpcErr *rpcError) *recordedCall {
	t.Helper()
	call := &recordedCall{}
	original := marketRPCCall
	marketRPCCall = func(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		call.method = method
		call.requireAuth = requireAuth
		if params != nil {
			call.params = params.(map[string]interface{})
		}
		return json.RawMessage(result), rpcErr, nil
	}
	t.Cleanup(func() { marketRPCCall = original })
	return call
}

const seller = "nhb1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq9uq0"

func TestListCommandBuildsParams(t *testing.T) {
	call := stubRPC(t, `{"ok":true}`, nil)
	var stdout, stderr bytes.Buffer
	code := run([]string{"list", "--collection", "nhbc1x", "--asset", "7", "--seller", seller, "--price", "1.5e3"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr.String())
	}
	if call.method != "market_list" || !call.requireAuth {
		t.Fatalf("unexpected call %+v", call)
	}
	want := map[string]interface{}{"collection": "nhbc1x", "assetId": "7", "seller": seller, "price": "1500"}
	for key, value := range want {
		if call.params[key] != value {
			t.Fatalf("param %s: expected %v, got %v", key, value, call.params[key])
		}
	}
	if _, ok := call.params["now"]; ok {
		t.Fatalf("now must be omitted when not supplied")
	}
	if strings.TrimSpace(stdout.String()) != `{"ok":true}` {
		t.Fatalf("unexpected stdout %q", stdout.String())
	}
}

func TestStartAuctionParsesDuration(t *testing.T) {
	call := stubRPC(t, `{"ok":true}`, nil)
	var stdout, stderr bytes.Buffer
	code := run([]string{"start-auction", "--collection", "c", "--asset", "1", "--seller", seller,
		"--starting-price", "100", "--duration", "48h", "--mode", "escrow_timeout", "--now", "10"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr.String())
	}
	if call.params["duration"] != int64(172800) {
		t.Fatalf("expected 172800 seconds, got %v", call.params["duration"])
	}
	if call.params["now"] != int64(10) || call.params["mode"] != "escrow_timeout" {
		t.Fatalf("unexpected params %+v", call.params)
	}
}

func TestQueryCommandsAreUnauthenticated(t *testing.T) {
	call := stubRPC(t, `{"percentage":2}`, nil)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"fee"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected success, got %d", code)
	}
	if call.method != "market_getFee" || call.requireAuth || call.params != nil {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestCommandValidation(t *testing.T) {
	stubRPC(t, `null`, nil)
	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown", args: []string{"trade"}, want: "Unknown command: trade"},
		{name: "missing seller", args: []string{"list", "--collection", "c", "--asset", "1", "--price", "1"}, want: "--seller is required"},
		{name: "negative price", args: []string{"list", "--collection", "c", "--asset", "1", "--seller", seller, "--price", "-1"}, want: "--price must not be negative"},
		{name: "fractional price", args: []string{"list", "--collection", "c", "--asset", "1", "--seller", seller, "--price", "1.5"}, want: "--price must be an integer"},
		{name: "bad duration", args: []string{"start-auction", "--collection", "c", "--asset", "1", "--seller", seller, "--starting-price", "1", "--duration", "soon"}, want: "invalid --duration duration"},
		{name: "positional", args: []string{"fee", "extra"}, want: "unexpected positional arguments"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tc.args, &stdout, &stderr); code != 1 {
				t.Fatalf("expected exit 1, got %d", code)
			}
			if !strings.Contains(stderr.String(), tc.want) {
				t.Fatalf("expected %q in stderr, got %q", tc.want, stderr.String())
			}
		})
	}
}

func TestRPCErrorIsReported(t *testing.T) {
	stubRPC(t, ``, &rpcError{Code: -32034, Message: "not_active"})
	var stdout, stderr bytes.Buffer
	if code := run([]string{"end-auction", "--collection", "c", "--asset", "1"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "RPC error -32034: not_active") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestCallMarketRPCSendsBearerToken(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
	}))
	defer ts.Close()

	originalEndpoint, originalToken := rpcEndpoint, rpcAuthToken
	rpcEndpoint, rpcAuthToken = ts.URL, "secret"
	defer func() { rpcEndpoint, rpcAuthToken = originalEndpoint, originalToken }()

	result, rpcErr, err := callMarketRPC("market_unlist", map[string]interface{}{"caller": seller}, true)
	if err != nil || rpcErr != nil {
		t.Fatalf("unexpected error %v %v", err, rpcErr)
	}
	if string(result) != `{"ok":true}` {
		t.Fatalf("unexpected result %s", result)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
	if gotBody["method"] != "market_unlist" || gotBody["jsonrpc"] != "2.0" {
		t.Fatalf("unexpected body %v", gotBody)
	}
}

func TestApplyGlobalFlags(t *testing.T) {
	original := rpcEndpoint
	defer func() { rpcEndpoint = original }()
	rest, err := applyGlobalFlags([]string{"--rpc", "http://example:1/rpc", "fee"})
	if err != nil || len(rest) != 1 || rest[0] != "fee" {
		t.Fatalf("unexpected result %v %v", rest, err)
	}
	if rpcEndpoint != "http://example:1/rpc" {
		t.Fatalf("expected endpoint override, got %s", rpcEndpoint)
	}
	if _, err := applyGlobalFlags([]string{"--rpc"}); err == nil {
		t.Fatalf("expected missing value error")
	}
}
