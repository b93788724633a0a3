package market

import (
	"math/big"
	"strconv"

	"nhbmarket/core/types"
	"nhbmarket/crypto"
	"nhbmarket/native/fees"
)

const (
	EventTypeListed           = "market.listed"
	EventTypePriceChanged     = "market.price_changed"
	EventTypeUnlisted         = "market.unlisted"
	EventTypeSold             = "market.sold"
	EventTypeAuctionStarted   = "market.auction_started"
	EventTypeBidPlaced        = "market.bid_placed"
	EventTypeBidRefunded      = "market.bid_refunded"
	EventTypeAuctionEnded     = "market.auction_ended"
	EventTypeAuctionReclaimed = "market.auction_reclaimed"
	EventTypeFeeUpdated       = "market.fee_updated"
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

func actor(addr [20]byte) string {
	return crypto.FormatAddress(crypto.NHBPrefix, addr)
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func keyAttributes(key types.AssetKey) map[string]string {
	return map[string]string{
		"collection": crypto.FormatAddress(crypto.CollectionPrefix, key.Collection),
		"assetId":    key.AssetIDString(),
	}
}

func splitAttributes(attrs map[string]string, split fees.Split) {
	attrs["fee"] = amount(split.Fee)
	attrs["sellerAmount"] = amount(split.Net)
}

// NewListedEvent is emitted when an asset enters custody under a fixed price.
func NewListedEvent(l *types.Listing) *types.Event {
	attrs := keyAttributes(l.Key)
	attrs["seller"] = actor(l.Seller)
	attrs["price"] = amount(l.Price)
	return &types.Event{Type: EventTypeListed, Attributes: attrs}
}

// NewPriceChangedEvent is emitted when a seller updates a listing price.
func NewPriceChangedEvent(l *types.Listing, oldPrice *big.Int) *types.Event {
	attrs := keyAttributes(l.Key)
	attrs["seller"] = actor(l.Seller)
	attrs["oldPrice"] = amount(oldPrice)
	attrs["price"] = amount(l.Price)
	return &types.Event{Type: EventTypePriceChanged, Attributes: attrs}
}

// NewUnlistedEvent is emitted when a listing is withdrawn. refunded carries
// the escrow returned to a buyer, zero when the listing was unfunded.
func NewUnlistedEvent(l *types.Listing, refunded *big.Int) *types.Event {
	attrs := keyAttributes(l.Key)
	attrs["seller"] = actor(l.Seller)
	attrs["refunded"] = amount(refunded)
	return &types.Event{Type: EventTypeUnlisted, Attributes: attrs}
}

// NewSoldEvent is emitted when a buyer confirms a fixed-price purchase.
func NewSoldEvent(l *types.Listing, buyer [20]byte, split fees.Split) *types.Event {
	attrs := keyAttributes(l.Key)
	attrs["seller"] = actor(l.Seller)
	attrs["buyer"] = actor(buyer)
	attrs["price"] = amount(l.Price)
	attrs["amount"] = amount(split.Gross)
	splitAttributes(attrs, split)
	return &types.Event{Type: EventTypeSold, Attributes: attrs}
}

// NewAuctionStartedEvent is emitted when an asset enters custody for bidding.
func NewAuctionStartedEvent(a *types.Auction) *types.Event {
	attrs := keyAttributes(a.Key)
	attrs["seller"] = actor(a.Seller)
	attrs["mode"] = a.Mode.String()
	attrs["startingPrice"] = amount(a.StartingPrice)
	attrs["startTime"] = strconv.FormatInt(a.StartTime, 10)
	attrs["endTime"] = strconv.FormatInt(a.EndTime, 10)
	if a.Mode == types.AuctionModeEscrowTimeout {
		attrs["escrowTimeout"] = strconv.FormatInt(a.EscrowTimeout, 10)
	}
	return &types.Event{Type: EventTypeAuctionStarted, Attributes: attrs}
}

// NewBidPlacedEvent is emitted for every accepted bid.
func NewBidPlacedEvent(a *types.Auction) *types.Event {
	attrs := keyAttributes(a.Key)
	attrs["bidder"] = actor(a.HighestBidder)
	attrs["amount"] = amount(a.HighestBid)
	return &types.Event{Type: EventTypeBidPlaced, Attributes: attrs}
}

// NewBidRefundedEvent is emitted when an outbid bidder is repaid.
func NewBidRefundedEvent(key types.AssetKey, bidder [20]byte, refund *big.Int) *types.Event {
	attrs := keyAttributes(key)
	attrs["bidder"] = actor(bidder)
	attrs["amount"] = amount(refund)
	return &types.Event{Type: EventTypeBidRefunded, Attributes: attrs}
}

// NewAuctionEndedEvent is emitted when an auction is settled. Auctions without
// bids carry no winner and zero amounts.
func NewAuctionEndedEvent(a *types.Auction, split fees.Split) *types.Event {
	attrs := keyAttributes(a.Key)
	attrs["seller"] = actor(a.Seller)
	if a.HasBidder {
		attrs["winner"] = actor(a.HighestBidder)
		attrs["amount"] = amount(a.HighestBid)
	} else {
		attrs["amount"] = "0"
	}
	splitAttributes(attrs, split)
	return &types.Event{Type: EventTypeAuctionEnded, Attributes: attrs}
}

// NewAuctionReclaimedEvent is emitted when an escrow timeout unwinds an auction.
func NewAuctionReclaimedEvent(a *types.Auction) *types.Event {
	attrs := keyAttributes(a.Key)
	attrs["seller"] = actor(a.Seller)
	if a.HasBidder {
		attrs["bidder"] = actor(a.HighestBidder)
		attrs["refunded"] = amount(a.HighestBid)
	} else {
		attrs["refunded"] = "0"
	}
	return &types.Event{Type: EventTypeAuctionReclaimed, Attributes: attrs}
}

// NewFeeUpdatedEvent is emitted when the fee authority changes the percentage.
func NewFeeUpdatedEvent(authority [20]byte, oldPct, newPct uint32) *types.Event {
	return &types.Event{
		Type: EventTypeFeeUpdated,
		Attributes: map[string]string{
			"authority":     actor(authority),
			"oldPercentage": strconv.FormatUint(uint64(oldPct), 10),
			"percentage":    strconv.FormatUint(uint64(newPct), 10),
		},
	}
}
