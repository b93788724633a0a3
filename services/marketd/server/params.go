package server

import (
	"math/big"
	"strings"

	"nhbmarket/core/types"
	"nhbmarket/crypto"
	"nhbmarket/native/escrow"
	"nhbmarket/native/fees"
)

type assetParams struct {
	Collection string `json:"collection"`
	AssetID    string `json:"assetId"`
}

func (p assetParams) key() (types.AssetKey, *RPCError) {
	collection, err := crypto.ParseAddress(crypto.CollectionPrefix, strings.TrimSpace(p.Collection))
	if err != nil {
		return types.AssetKey{}, invalidParams("collection: %v", err)
	}
	id, err := types.ParseAssetID(p.AssetID)
	if err != nil {
		return types.AssetKey{}, invalidParams("assetId: %v", err)
	}
	return types.AssetKey{Collection: collection, AssetID: id}, nil
}

func parseActor(field, raw string) ([20]byte, *RPCError) {
	addr, err := crypto.ParseAddress(crypto.NHBPrefix, strings.TrimSpace(raw))
	if err != nil {
		return [20]byte{}, invalidParams("%s: %v", field, err)
	}
	return addr, nil
}

func parseAmount(field, raw string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, invalidParams("%s required", field)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, invalidParams("%s must be a base-10 integer", field)
	}
	if value.Sign() < 0 {
		return nil, invalidParams("%s must not be negative", field)
	}
	if value.BitLen() > fees.MaxAmountBits {
		return nil, invalidParams("%s exceeds %d bits", field, fees.MaxAmountBits)
	}
	return value, nil
}

type listingJSON struct {
	Collection string `json:"collection"`
	AssetID    string `json:"assetId"`
	Seller     string `json:"seller"`
	Price      string `json:"price"`
	Active     bool   `json:"active"`
	ListedAt   int64  `json:"listedAt"`
}

type auctionJSON struct {
	Collection    string  `json:"collection"`
	AssetID       string  `json:"assetId"`
	Seller        string  `json:"seller"`
	Mode          string  `json:"mode"`
	Status        string  `json:"status"`
	Active        bool    `json:"active"`
	StartingPrice string  `json:"startingPrice"`
	HighestBid    string  `json:"highestBid"`
	HighestBidder *string `json:"highestBidder,omitempty"`
	StartTime     int64   `json:"startTime"`
	EndTime       int64   `json:"endTime"`
	EscrowTimeout *int64  `json:"escrowTimeout,omitempty"`
}

type escrowJSON struct {
	Collection string  `json:"collection"`
	AssetID    string  `json:"assetId"`
	Buyer      string  `json:"buyer"`
	Amount     string  `json:"amount"`
	FundedAt   int64   `json:"fundedAt"`
	Status     string  `json:"status"`
	Payee      *string `json:"payee,omitempty"`
	Fee        *string `json:"fee,omitempty"`
}

func formatActor(addr [20]byte) string {
	return crypto.FormatAddress(crypto.NHBPrefix, addr)
}

func formatCollection(addr [20]byte) string {
	return crypto.FormatAddress(crypto.CollectionPrefix, addr)
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func listingResult(l *types.Listing) listingJSON {
	return listingJSON{
		Collection: formatCollection(l.Key.Collection),
		AssetID:    l.Key.AssetIDString(),
		Seller:     formatActor(l.Seller),
		Price:      formatAmount(l.Price),
		Active:     l.Active,
		ListedAt:   l.ListedAt,
	}
}

func auctionResult(a *types.Auction) auctionJSON {
	out := auctionJSON{
		Collection:    formatCollection(a.Key.Collection),
		AssetID:       a.Key.AssetIDString(),
		Seller:        formatActor(a.Seller),
		Mode:          a.Mode.String(),
		Status:        a.Status.String(),
		Active:        a.Active(),
		StartingPrice: formatAmount(a.StartingPrice),
		HighestBid:    formatAmount(a.HighestBid),
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
	}
	if a.HasBidder {
		bidder := formatActor(a.HighestBidder)
		out.HighestBidder = &bidder
	}
	if a.Mode == types.AuctionModeEscrowTimeout {
		timeout := a.EscrowTimeout
		out.EscrowTimeout = &timeout
	}
	return out
}

func escrowResult(e *escrow.Escrow) escrowJSON {
	out := escrowJSON{
		Collection: formatCollection(e.Key.Collection),
		AssetID:    e.Key.AssetIDString(),
		Buyer:      formatActor(e.Buyer),
		Amount:     formatAmount(e.Amount),
		FundedAt:   e.FundedAt,
		Status:     e.Status.String(),
	}
	if e.Status == escrow.EscrowReleased {
		payee := formatActor(e.Payee)
		fee := formatAmount(e.Fee)
		out.Payee = &payee
		out.Fee = &fee
	}
	return out
}
