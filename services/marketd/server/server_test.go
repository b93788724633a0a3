package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"nhbmarket/core/events"
	"nhbmarket/core/state"
	"nhbmarket/crypto"
	"nhbmarket/native/bank"
	"nhbmarket/native/market"
	"nhbmarket/services/marketd/storage"
	kvstore "nhbmarket/storage"
)

var (
	custodyAddr   = [20]byte{0xAA}
	treasuryAddr  = [20]byte{0xCC}
	authorityAddr = [20]byte{0xDD}
	sellerAddr    = [20]byte{0x01}
	buyerAddr     = [20]byte{0x02}
	collection    = [20]byte{0x10, 0x11}
)

type testEnv struct {
	srv   *Server
	http  *httptest.Server
	store *storage.Store
	hub   *Hub
	token string
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	engine, err := market.NewEngine(market.Params{
		Custody:              custodyAddr,
		Treasury:             treasuryAddr,
		FeeAuthority:         authorityAddr,
		DefaultFeePercentage: 2,
		EscrowDuration:       86400,
	})
	require.NoError(t, err)
	mgr := state.NewManager(kvstore.NewMemDB())
	ledger := bank.NewLedger(mgr)
	engine.SetState(mgr)
	engine.SetLedgers(ledger, ledger)

	dsn, err := storage.FileDSN(filepath.Join(t.TempDir(), "events.sqlite"))
	require.NoError(t, err)
	store, err := storage.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hub := NewHub()
	engine.SetEmitter(events.Multi{storage.NewSink(store, nil), hub, MetricsEmitter{}})

	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Unix(1_000, 0) }
	}
	cfg.DevMode = true
	srv, err := New(cfg, engine, ledger, store, hub, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, http: ts, store: store, hub: hub, token: cfg.BearerToken}
}

type rpcReply struct {
	status int
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (e *testEnv) call(t *testing.T, method string, params interface{}) rpcReply {
	t.Helper()
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.http.URL+"/rpc", bytes.NewReader(body))
	require.NoError(t, err)
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var reply rpcReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	reply.status = resp.StatusCode
	return reply
}

func (e *testEnv) mustCall(t *testing.T, method string, params interface{}, out interface{}) {
	t.Helper()
	reply := e.call(t, method, params)
	require.Nil(t, reply.Error, "%s failed: %v", method, reply.Error)
	if out != nil {
		require.NoError(t, json.Unmarshal(reply.Result, out))
	}
}

func actor(addr [20]byte) string { return crypto.FormatAddress(crypto.NHBPrefix, addr) }

func asset(id string) map[string]interface{} {
	return map[string]interface{}{
		"collection": crypto.FormatAddress(crypto.CollectionPrefix, collection),
		"assetId":    id,
	}
}

func with(base map[string]interface{}, kv ...interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(kv)/2)
	for k, v := range base {
		out[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i].(string)] = kv[i+1]
	}
	return out
}

func (e *testEnv) balance(t *testing.T, addr [20]byte) string {
	t.Helper()
	var out map[string]string
	e.mustCall(t, "dev_balance", map[string]interface{}{"address": actor(addr)}, &out)
	return out["balance"]
}

func TestListBuyReleaseOverRPC(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.mustCall(t, "dev_registerAsset", with(asset("7"), "owner", actor(sellerAddr)), nil)
	env.mustCall(t, "dev_credit", map[string]interface{}{"address": actor(buyerAddr), "amount": "500"}, nil)

	env.mustCall(t, "market_list", with(asset("7"), "seller", actor(sellerAddr), "price", "100"), nil)
	var listing listingJSON
	env.mustCall(t, "market_getListing", asset("7"), &listing)
	require.True(t, listing.Active)
	require.Equal(t, "100", listing.Price)
	require.Equal(t, int64(1_000), listing.ListedAt)

	env.mustCall(t, "market_buy", with(asset("7"), "buyer", actor(buyerAddr), "value", "100"), nil)
	require.Equal(t, "400", env.balance(t, buyerAddr))
	require.Equal(t, "100", env.balance(t, custodyAddr))

	env.mustCall(t, "market_releaseEscrow", with(asset("7"), "caller", actor(buyerAddr)), nil)
	require.Equal(t, "98", env.balance(t, sellerAddr))
	require.Equal(t, "2", env.balance(t, treasuryAddr))
	require.Equal(t, "0", env.balance(t, custodyAddr))

	var owner map[string]string
	env.mustCall(t, "dev_owner", asset("7"), &owner)
	require.Equal(t, actor(buyerAddr), owner["owner"])

	var esc escrowJSON
	env.mustCall(t, "market_getEscrow", asset("7"), &esc)
	require.Equal(t, "released", esc.Status)
	require.NotNil(t, esc.Fee)
	require.Equal(t, "2", *esc.Fee)

	var history []eventJSON
	env.mustCall(t, "market_listEvents", map[string]interface{}{"assetId": "7"}, &history)
	eventTypes := make([]string, 0, len(history))
	for _, evt := range history {
		eventTypes = append(eventTypes, evt.Type)
	}
	require.Equal(t, []string{"market.listed", "escrow.funded", "escrow.released", "market.sold"}, eventTypes)
}

func TestRejectedBuyRefundsDeposit(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.mustCall(t, "dev_registerAsset", with(asset("1"), "owner", actor(sellerAddr)), nil)
	env.mustCall(t, "dev_credit", map[string]interface{}{"address": actor(buyerAddr), "amount": "50"}, nil)
	env.mustCall(t, "dev_credit", map[string]interface{}{"address": actor(sellerAddr), "amount": "100"}, nil)
	env.mustCall(t, "market_list", with(asset("1"), "seller", actor(sellerAddr), "price", "100"), nil)

	reply := env.call(t, "market_buy", with(asset("1"), "buyer", actor(buyerAddr), "value", "40"))
	require.NotNil(t, reply.Error)
	require.Equal(t, codeMarketConflict, reply.Error.Code)
	require.Equal(t, "insufficient_payment", reply.Error.Message)
	require.Equal(t, http.StatusConflict, reply.status)
	require.Equal(t, "50", env.balance(t, buyerAddr))

	reply = env.call(t, "market_buy", with(asset("1"), "buyer", actor(sellerAddr), "value", "100"))
	require.NotNil(t, reply.Error)
	require.Equal(t, codeMarketForbidden, reply.Error.Code)

	reply = env.call(t, "market_buy", with(asset("1"), "buyer", actor(buyerAddr), "value", "100"))
	require.NotNil(t, reply.Error)
	require.Equal(t, codeMarketTransferFailed, reply.Error.Code)
}

func TestAuctionOverRPC(t *testing.T) {
	env := newTestEnv(t, Config{})
	bidder := [20]byte{0x03}
	env.mustCall(t, "dev_registerAsset", with(asset("9"), "owner", actor(sellerAddr)), nil)
	env.mustCall(t, "dev_credit", map[string]interface{}{"address": actor(bidder), "amount": "1000"}, nil)

	env.mustCall(t, "market_startAuction", with(asset("9"),
		"seller", actor(sellerAddr), "startingPrice", "100", "duration", 60, "mode", "standard", "now", 10), nil)
	reply := env.call(t, "market_startAuction", with(asset("9"),
		"seller", actor(sellerAddr), "startingPrice", "100", "duration", 60, "mode", "sealed", "now", 10))
	require.NotNil(t, reply.Error)
	require.Equal(t, codeMarketInvalidParams, reply.Error.Code)

	env.mustCall(t, "market_placeBid", with(asset("9"), "bidder", actor(bidder), "value", "150", "now", 20), nil)
	reply = env.call(t, "market_endAuction", with(asset("9"), "now", 30))
	require.NotNil(t, reply.Error)
	require.Equal(t, "auction_ongoing", reply.Error.Message)

	env.mustCall(t, "market_endAuction", with(asset("9"), "now", 70), nil)
	var auction auctionJSON
	env.mustCall(t, "market_getAuction", asset("9"), &auction)
	require.Equal(t, "ended", auction.Status)
	require.False(t, auction.Active)
	require.NotNil(t, auction.HighestBidder)
	require.Equal(t, actor(bidder), *auction.HighestBidder)
	require.Equal(t, "147", env.balance(t, sellerAddr))
	require.Equal(t, "850", env.balance(t, bidder))
}

func TestSetFeeAndQueries(t *testing.T) {
	env := newTestEnv(t, Config{})
	reply := env.call(t, "market_setFeePercentage", map[string]interface{}{"caller": actor(sellerAddr), "percentage": 5})
	require.NotNil(t, reply.Error)
	require.Equal(t, codeMarketForbidden, reply.Error.Code)

	env.mustCall(t, "market_setFeePercentage", map[string]interface{}{"caller": actor(authorityAddr), "percentage": 5}, nil)
	var fee map[string]interface{}
	env.mustCall(t, "market_getFee", nil, &fee)
	require.EqualValues(t, 5, fee["percentage"])
	require.Equal(t, actor(treasuryAddr), fee["treasury"])

	reply = env.call(t, "market_getListing", asset("404"))
	require.NotNil(t, reply.Error)
	require.Equal(t, codeMarketNotFound, reply.Error.Code)
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, Config{})

	reply := env.call(t, "market_nope", nil)
	require.Equal(t, codeMethodNotFound, reply.Error.Code)

	reply = env.call(t, "market_list", with(asset("1"), "seller", "nhb1invalid", "price", "1"))
	require.Equal(t, codeMarketInvalidParams, reply.Error.Code)

	reply = env.call(t, "market_list", with(asset("1"), "seller", actor(sellerAddr), "price", "-5"))
	require.Equal(t, codeMarketInvalidParams, reply.Error.Code)

	tooWide := new(big.Int).Lsh(big.NewInt(1), 256).String()
	reply = env.call(t, "market_list", with(asset("1"), "seller", actor(sellerAddr), "price", tooWide))
	require.Equal(t, codeMarketInvalidParams, reply.Error.Code)

	reply = env.call(t, "market_list", with(asset("1"), "seller", actor(sellerAddr), "price", "5", "extra", true))
	require.Equal(t, codeMarketInvalidParams, reply.Error.Code)

	resp, err := http.Post(env.http.URL+"/rpc", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerTokenGuardsMutations(t *testing.T) {
	env := newTestEnv(t, Config{BearerToken: "secret"})
	env.token = ""
	reply := env.call(t, "market_setFeePercentage", map[string]interface{}{"caller": actor(authorityAddr), "percentage": 5})
	require.NotNil(t, reply.Error)
	require.Equal(t, codeUnauthorized, reply.Error.Code)
	require.Equal(t, http.StatusUnauthorized, reply.status)

	env.mustCall(t, "market_getFee", nil, nil)

	env.token = "secret"
	env.mustCall(t, "market_setFeePercentage", map[string]interface{}{"caller": actor(authorityAddr), "percentage": 5}, nil)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Config{RateLimit: RateLimit{RequestsPerMinute: 1, Burst: 2}})
	env.mustCall(t, "market_getFee", nil, nil)
	env.mustCall(t, "market_getFee", nil, nil)
	reply := env.call(t, "market_getFee", nil)
	require.NotNil(t, reply.Error)
	require.Equal(t, codeRateLimited, reply.Error.Code)
	require.Equal(t, http.StatusTooManyRequests, reply.status)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.mustCall(t, "dev_registerAsset", with(asset("5"), "owner", actor(sellerAddr)), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/events?assetId=5"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return env.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	env.mustCall(t, "market_list", with(asset("5"), "seller", actor(sellerAddr), "price", "10"), nil)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg streamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, market.EventTypeListed, msg.Type)
	require.Equal(t, "5", msg.Attributes["assetId"])
}

func TestMarketErrorMapping(t *testing.T) {
	cases := map[error]int{
		market.ErrInvalidPrice:   codeMarketInvalidParams,
		market.ErrNotActive:      codeMarketConflict,
		market.ErrNotSeller:      codeMarketForbidden,
		market.ErrTransferFailed: codeMarketTransferFailed,
	}
	for err, want := range cases {
		if got := marketError(err).Code; got != want {
			t.Fatalf("%v: expected code %d, got %d", err, want, got)
		}
	}
	if got := marketError(context.Canceled).Code; got != codeServerError {
		t.Fatalf("expected unclassified errors to map to server error, got %d", got)
	}
}
