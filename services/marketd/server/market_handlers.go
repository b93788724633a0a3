package server

import (
	"context"
	"math/big"

	coreerrors "nhbmarket/core/errors"
	"nhbmarket/core/types"
	"nhbmarket/services/marketd/storage"
)

type listParams struct {
	assetParams
	Seller string `json:"seller"`
	Price  string `json:"price"`
	Now    *int64 `json:"now,omitempty"`
}

type buyParams struct {
	assetParams
	Buyer string `json:"buyer"`
	Value string `json:"value"`
	Now   *int64 `json:"now,omitempty"`
}

type callerParams struct {
	assetParams
	Caller string `json:"caller"`
	Now    *int64 `json:"now,omitempty"`
}

type changePriceParams struct {
	assetParams
	Caller string `json:"caller"`
	Price  string `json:"price"`
	Now    *int64 `json:"now,omitempty"`
}

type startAuctionParams struct {
	assetParams
	Seller        string `json:"seller"`
	StartingPrice string `json:"startingPrice"`
	Duration      int64  `json:"duration"`
	Mode          string `json:"mode,omitempty"`
	Now           *int64 `json:"now,omitempty"`
}

type bidParams struct {
	assetParams
	Bidder string `json:"bidder"`
	Value  string `json:"value"`
	Now    *int64 `json:"now,omitempty"`
}

type settleParams struct {
	assetParams
	Now *int64 `json:"now,omitempty"`
}

type setFeeParams struct {
	Caller     string `json:"caller"`
	Percentage uint32 `json:"percentage"`
	Now        *int64 `json:"now,omitempty"`
}

type listEventsParams struct {
	Type       string `json:"type,omitempty"`
	Collection string `json:"collection,omitempty"`
	AssetID    string `json:"assetId,omitempty"`
	After      uint64 `json:"after,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type eventJSON struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt int64             `json:"recordedAt"`
}

type okResult struct {
	OK bool `json:"ok"`
}

var okResponse = okResult{OK: true}

func (s *Server) resolveNow(now *int64) int64 {
	if now != nil {
		return *now
	}
	return s.now().Unix()
}

func (s *Server) handleList(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params listParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	seller, rpcErr := parseActor("seller", params.Seller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	price, rpcErr := parseAmount("price", params.Price)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.List(ctx, key, seller, price, s.resolveNow(params.Now)); err != nil {
		return nil, err
	}
	return okResponse, nil
}

// deposit moves attached value from payer into custody inside the command
// transaction, so a rejected command also undoes the payment.
func (s *Server) deposit(ctx context.Context, payer [20]byte, value *big.Int, apply func(ctx context.Context) error) error {
	return s.engine.Update(ctx, func(ctx context.Context) error {
		if err := s.ledger.Transfer(ctx, payer, s.engine.Params().Custody, value); err != nil {
			return coreerrors.Transfer("deposit", err)
		}
		return apply(ctx)
	})
}

func (s *Server) handleBuy(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params buyParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	buyer, rpcErr := parseActor("buyer", params.Buyer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, rpcErr := parseAmount("value", params.Value)
	if rpcErr != nil {
		return nil, rpcErr
	}
	now := s.resolveNow(params.Now)
	err := s.deposit(ctx, buyer, value, func(ctx context.Context) error {
		return s.engine.Buy(ctx, key, buyer, value, now)
	})
	if err != nil {
		return nil, err
	}
	return okResponse, nil
}

func (s *Server) handleReleaseEscrow(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params callerParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseActor("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.ReleaseEscrow(ctx, key, caller, s.resolveNow(params.Now)); err != nil {
		return nil, err
	}
	return okResponse, nil
}

func (s *Server) handleChangePrice(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params changePriceParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseActor("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	price, rpcErr := parseAmount("price", params.Price)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.ChangePrice(ctx, key, caller, price, s.resolveNow(params.Now)); err != nil {
		return nil, err
	}
	return okResponse, nil
}

func (s *Server) handleUnlist(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params callerParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseActor("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.Unlist(ctx, key, caller, s.resolveNow(params.Now)); err != nil {
		return nil, err
	}
	return okResponse, nil
}

func (s *Server) handleStartAuction(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params startAuctionParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	seller, rpcErr := parseActor("seller", params.Seller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	price, rpcErr := parseAmount("startingPrice", params.StartingPrice)
	if rpcErr != nil {
		return nil, rpcErr
	}
	mode, err := types.ParseAuctionMode(params.Mode)
	if err != nil {
		return nil, invalidParams("mode: %v", err)
	}
	if err := s.engine.StartAuction(ctx, key, seller, price, params.Duration, mode, s.resolveNow(params.Now)); err != nil {
		return nil, err
	}
	return okResponse, nil
}

func (s *Server) handlePlaceBid(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params bidParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	bidder, rpcErr := parseActor("bidder", params.Bidder)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, rpcErr := parseAmount("value", params.Value)
	if rpcErr != nil {
		return nil, rpcErr
	}
	now := s.resolveNow(params.Now)
	err := s.deposit(ctx, bidder, value, func(ctx context.Context) error {
		return s.engine.PlaceBid(ctx, key, bidder, value, now)
	})
	if err != nil {
		return nil, err
	}
	return okResponse, nil
}

func (s *Server) handleEndAuction(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params settleParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.EndAuction(ctx, key, s.resolveNow(params.Now)); err != nil {
		return nil, err
	}
	return okResponse, nil
}

func (s *Server) handleReleaseEscrowTimeout(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params settleParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.ReleaseEscrowTimeout(ctx, key, s.resolveNow(params.Now)); err != nil {
		return nil, err
	}
	return okResponse, nil
}

func (s *Server) handleSetFeePercentage(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params setFeeParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := parseActor("caller", params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.engine.SetFeePercentage(ctx, caller, params.Percentage, s.resolveNow(params.Now)); err != nil {
		return nil, err
	}
	return okResponse, nil
}

func (s *Server) handleGetListing(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params assetParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	listing, found, err := s.engine.Listing(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &RPCError{Code: codeMarketNotFound, Message: "not_found", Data: "listing not found"}
	}
	return listingResult(listing), nil
}

func (s *Server) handleGetAuction(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params assetParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	auction, found, err := s.engine.Auction(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &RPCError{Code: codeMarketNotFound, Message: "not_found", Data: "auction not found"}
	}
	return auctionResult(auction), nil
}

func (s *Server) handleGetEscrow(ctx context.Context, req *RPCRequest) (interface{}, error) {
	var params assetParams
	if err := decodeParams(req, &params); err != nil {
		return nil, err
	}
	key, rpcErr := params.key()
	if rpcErr != nil {
		return nil, rpcErr
	}
	esc, found, err := s.engine.Escrow(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &RPCError{Code: codeMarketNotFound, Message: "not_found", Data: "escrow not found"}
	}
	return escrowResult(esc), nil
}

func (s *Server) handleGetFee(ctx context.Context, req *RPCRequest) (interface{}, error) {
	if err := decodeParams(req, nil); err != nil {
		return nil, err
	}
	pct, err := s.engine.FeePercentage(ctx)
	if err != nil {
		return nil, err
	}
	params := s.engine.Params()
	return map[string]interface{}{
		"percentage": pct,
		"treasury":   formatActor(params.Treasury),
		"authority":  formatActor(params.FeeAuthority),
	}, nil
}

func (s *Server) handleListEvents(ctx context.Context, req *RPCRequest) (interface{}, error) {
	if s.events == nil {
		return nil, &RPCError{Code: codeServerError, Message: "event store unavailable"}
	}
	var params listEventsParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			return nil, err
		}
	}
	records, err := s.events.ListEvents(ctx, storage.Filter{
		Type:       params.Type,
		Collection: params.Collection,
		AssetID:    params.AssetID,
		After:      params.After,
		Limit:      params.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]eventJSON, 0, len(records))
	for _, record := range records {
		attrs, err := record.Decode()
		if err != nil {
			return nil, err
		}
		out = append(out, eventJSON{
			ID:         record.ID.String(),
			Sequence:   record.Sequence,
			Type:       record.Type,
			Attributes: attrs,
			RecordedAt: record.RecordedAt.Unix(),
		})
	}
	return out, nil
}
