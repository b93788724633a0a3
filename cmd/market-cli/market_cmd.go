package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var marketRPCCall = callMarketRPC

type flagKind int

const (
	kindString flagKind = iota
	kindAmount
	kindInt
	kindUint
	kindDuration
)

type flagSpec struct {
	name     string
	param    string
	help     string
	kind     flagKind
	required bool
}

type command struct {
	name     string
	method   string
	summary  string
	mutating bool
	flags    []flagSpec
}

var (
	collectionFlag = flagSpec{name: "collection", param: "collection", help: "collection bech32 address (nhbc...)", required: true}
	assetFlag      = flagSpec{name: "asset", param: "assetId", help: "asset id (decimal or 0x hex)", required: true}
	nowFlag        = flagSpec{name: "now", param: "now", help: "logical time in unix seconds (default: server clock)", kind: kindInt}
)

func assetFlags(extra ...flagSpec) []flagSpec {
	return append([]flagSpec{collectionFlag, assetFlag}, extra...)
}

var commands = []command{
	{name: "list", method: "market_list", summary: "List an asset at a fixed price", mutating: true, flags: assetFlags(
		flagSpec{name: "seller", param: "seller", help: "seller address", required: true},
		flagSpec{name: "price", param: "price", help: "listing price (supports 100e18 shorthand)", kind: kindAmount, required: true},
		nowFlag,
	)},
	{name: "buy", method: "market_buy", summary: "Fund the escrow of a listing", mutating: true, flags: assetFlags(
		flagSpec{name: "buyer", param: "buyer", help: "buyer address", required: true},
		flagSpec{name: "value", param: "value", help: "payment attached to the purchase", kind: kindAmount, required: true},
		nowFlag,
	)},
	{name: "release", method: "market_releaseEscrow", summary: "Confirm receipt and settle a purchase", mutating: true, flags: assetFlags(
		flagSpec{name: "caller", param: "caller", help: "buyer address", required: true},
		nowFlag,
	)},
	{name: "change-price", method: "market_changePrice", summary: "Change the price of an unfunded listing", mutating: true, flags: assetFlags(
		flagSpec{name: "caller", param: "caller", help: "seller address", required: true},
		flagSpec{name: "price", param: "price", help: "new price", kind: kindAmount, required: true},
		nowFlag,
	)},
	{name: "unlist", method: "market_unlist", summary: "Withdraw a listing", mutating: true, flags: assetFlags(
		flagSpec{name: "caller", param: "caller", help: "seller address", required: true},
		nowFlag,
	)},
	{name: "start-auction", method: "market_startAuction", summary: "Start an auction", mutating: true, flags: assetFlags(
		flagSpec{name: "seller", param: "seller", help: "seller address", required: true},
		flagSpec{name: "starting-price", param: "startingPrice", help: "starting price", kind: kindAmount, required: true},
		flagSpec{name: "duration", param: "duration", help: "auction duration (seconds or Go duration such as 48h)", kind: kindDuration, required: true},
		flagSpec{name: "mode", param: "mode", help: "standard or escrow_timeout"},
		nowFlag,
	)},
	{name: "bid", method: "market_placeBid", summary: "Place a bid", mutating: true, flags: assetFlags(
		flagSpec{name: "bidder", param: "bidder", help: "bidder address", required: true},
		flagSpec{name: "value", param: "value", help: "bid amount", kind: kindAmount, required: true},
		nowFlag,
	)},
	{name: "end-auction", method: "market_endAuction", summary: "Settle an auction after its end time", mutating: true, flags: assetFlags(nowFlag)},
	{name: "reclaim", method: "market_releaseEscrowTimeout", summary: "Unwind an escrow-timeout auction", mutating: true, flags: assetFlags(nowFlag)},
	{name: "set-fee", method: "market_setFeePercentage", summary: "Change the protocol fee", mutating: true, flags: []flagSpec{
		{name: "caller", param: "caller", help: "fee authority address", required: true},
		{name: "percentage", param: "percentage", help: "fee percentage (0-99)", kind: kindUint, required: true},
		nowFlag,
	}},
	{name: "listing", method: "market_getListing", summary: "Show the listing of an asset", flags: assetFlags()},
	{name: "auction", method: "market_getAuction", summary: "Show the auction of an asset", flags: assetFlags()},
	{name: "escrow", method: "market_getEscrow", summary: "Show the escrow of an asset", flags: assetFlags()},
	{name: "fee", method: "market_getFee", summary: "Show the active fee"},
	{name: "events", method: "market_listEvents", summary: "List recorded events", flags: []flagSpec{
		{name: "type", param: "type", help: "event type filter"},
		{name: "collection", param: "collection", help: "collection filter"},
		{name: "asset", param: "assetId", help: "asset id filter"},
		{name: "after", param: "after", help: "return events after this sequence", kind: kindUint},
		{name: "limit", param: "limit", help: "maximum events to return", kind: kindInt},
	}},
	{name: "dev-register", method: "dev_registerAsset", summary: "Register an asset owner (dev mode)", mutating: true, flags: assetFlags(
		flagSpec{name: "owner", param: "owner", help: "owner address", required: true},
	)},
	{name: "dev-credit", method: "dev_credit", summary: "Mint balance to an address (dev mode)", mutating: true, flags: []flagSpec{
		{name: "address", param: "address", help: "account address", required: true},
		{name: "amount", param: "amount", help: "amount to credit", kind: kindAmount, required: true},
	}},
	{name: "balance", method: "dev_balance", summary: "Show an account balance (dev mode)", flags: []flagSpec{
		{name: "address", param: "address", help: "account address", required: true},
	}},
	{name: "owner", method: "dev_owner", summary: "Show the holder of an asset (dev mode)", flags: assetFlags()},
}

func findCommand(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

func runMarketCommand(args []string, stdout, stderr io.Writer) int {
	cmd, ok := findCommand(args[0])
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, marketUsage())
		return 1
	}
	params, err := parseCommandFlags(cmd, args[1:], stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return printError(stderr, err.Error())
	}
	var payload interface{}
	if len(params) > 0 {
		payload = params
	}
	result, rpcErr, err := marketRPCCall(cmd.method, payload, cmd.mutating)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func parseCommandFlags(cmd command, args []string, stderr io.Writer) (map[string]interface{}, error) {
	fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: market-cli %s [flags]\n\n%s\n\nFlags:\n", cmd.name, cmd.summary)
		fs.PrintDefaults()
	}
	values := make(map[string]*string, len(cmd.flags))
	for _, opt := range cmd.flags {
		values[opt.name] = fs.String(opt.name, "", opt.help)
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, err
		}
		return nil, fmt.Errorf("invalid flags for %s", cmd.name)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected positional arguments")
	}

	params := make(map[string]interface{})
	for _, opt := range cmd.flags {
		raw := strings.TrimSpace(*values[opt.name])
		if raw == "" {
			if opt.required {
				return nil, fmt.Errorf("--%s is required", opt.name)
			}
			continue
		}
		value, err := convertFlag(opt, raw)
		if err != nil {
			return nil, err
		}
		params[opt.param] = value
	}
	return params, nil
}

func convertFlag(opt flagSpec, raw string) (interface{}, error) {
	switch opt.kind {
	case kindAmount:
		return normalizeAmount(opt.name, raw)
	case kindInt:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("--%s must be an integer", opt.name)
		}
		return v, nil
	case kindUint:
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("--%s must be a non-negative integer", opt.name)
		}
		return v, nil
	case kindDuration:
		return parseDurationSeconds(opt.name, raw)
	default:
		return raw, nil
	}
}

// parseDurationSeconds accepts plain seconds or a Go duration string.
func parseDurationSeconds(name, raw string) (int64, error) {
	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("--%s must be positive", name)
		}
		return seconds, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s duration", name)
	}
	if dur < time.Second {
		return 0, fmt.Errorf("--%s must be at least one second", name)
	}
	return int64(dur / time.Second), nil
}

// normalizeAmount expands shorthand such as 1.5e3 into a base-10 integer string.
func normalizeAmount(name, value string) (string, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	var exponent int
	base := trimmed
	if idx := strings.IndexAny(trimmed, "eE"); idx != -1 {
		base = trimmed[:idx]
		expValue, err := strconv.ParseInt(strings.TrimSpace(trimmed[idx+1:]), 10, 32)
		if err != nil {
			return "", fmt.Errorf("invalid scientific notation in --%s", name)
		}
		exponent = int(expValue)
	}
	base = strings.TrimSpace(strings.TrimPrefix(base, "+"))
	if strings.HasPrefix(base, "-") {
		return "", fmt.Errorf("--%s must not be negative", name)
	}
	integerPart, fractionalPart, _ := strings.Cut(base, ".")
	digits := integerPart + fractionalPart
	if digits == "" || !isDigits(digits) {
		return "", fmt.Errorf("invalid --%s format", name)
	}
	digits = strings.TrimLeft(digits, "0")
	fracLen := len(fractionalPart)
	for fracLen > 0 && len(digits) > 0 && digits[len(digits)-1] == '0' {
		digits = digits[:len(digits)-1]
		fracLen--
	}
	totalExponent := exponent - fracLen
	if digits == "" {
		return "0", nil
	}
	if totalExponent < 0 {
		return "", fmt.Errorf("--%s must be an integer", name)
	}
	return digits + strings.Repeat("0", totalExponent), nil
}

func isDigits(value string) bool {
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if err == nil {
		return 0
	}
	if len(err.Data) > 0 {
		fmt.Fprintf(w, "RPC error %d: %s %s\n", err.Code, err.Message, string(err.Data))
		return 1
	}
	fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC call failed: %v\n", err)
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	if _, err := w.Write(result); err == nil {
		if result[len(result)-1] != '\n' {
			fmt.Fprintln(w)
		}
	}
}

func marketUsage() string {
	var b strings.Builder
	b.WriteString("Usage:\n  market-cli [--rpc URL] <command> [flags]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(&b, "  %-14s %s\n", cmd.name, cmd.summary)
	}
	b.WriteString("\nNHBMARKET_RPC_URL and NHBMARKET_RPC_TOKEN configure the endpoint and bearer token.")
	return b.String()
}

func callMarketRPC(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode RPC response: %w", err)
	}
	return rpcResp.Result, rpcResp.Error, nil
}
