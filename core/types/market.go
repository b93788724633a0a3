package types

import (
	"fmt"
	"math/big"
)

// Listing is a fixed-price offer for a single asset.
type Listing struct {
	Key      AssetKey
	Seller   [20]byte
	Price    *big.Int
	Active   bool
	ListedAt int64
}

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Price = cloneAmount(l.Price)
	return &clone
}

// AuctionMode selects how an auction may terminate.
type AuctionMode uint8

const (
	// AuctionModeStandard auctions terminate only through endAuction.
	AuctionModeStandard AuctionMode = iota
	// AuctionModeEscrowTimeout auctions may additionally be reclaimed once the
	// escrow timeout elapses.
	AuctionModeEscrowTimeout
)

func (m AuctionMode) String() string {
	switch m {
	case AuctionModeStandard:
		return "standard"
	case AuctionModeEscrowTimeout:
		return "escrow_timeout"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Valid reports whether the mode is supported.
func (m AuctionMode) Valid() bool {
	return m == AuctionModeStandard || m == AuctionModeEscrowTimeout
}

// ParseAuctionMode maps the textual mode used by APIs onto AuctionMode. The
// empty string selects the standard mode.
func ParseAuctionMode(s string) (AuctionMode, error) {
	switch s {
	case "", "standard":
		return AuctionModeStandard, nil
	case "escrow_timeout", "escrowTimeout":
		return AuctionModeEscrowTimeout, nil
	default:
		return 0, fmt.Errorf("unknown auction mode %q", s)
	}
}

// AuctionStatus tracks the lifecycle of an auction entry.
type AuctionStatus uint8

const (
	AuctionStatusActive AuctionStatus = iota + 1
	AuctionStatusEnded
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionStatusActive:
		return "active"
	case AuctionStatusEnded:
		return "ended"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Auction is a timed competitive offer for a single asset.
type Auction struct {
	Key           AssetKey
	Seller        [20]byte
	Mode          AuctionMode
	Status        AuctionStatus
	StartingPrice *big.Int
	HighestBid    *big.Int
	HighestBidder [20]byte
	HasBidder     bool
	StartTime     int64
	EndTime       int64
	// Zero unless Mode is AuctionModeEscrowTimeout.
	EscrowTimeout int64
}

// Active reports whether the auction still accepts bids or a terminal action.
func (a *Auction) Active() bool {
	return a != nil && a.Status == AuctionStatusActive
}

// Clone returns a deep copy of the auction.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	clone.StartingPrice = cloneAmount(a.StartingPrice)
	clone.HighestBid = cloneAmount(a.HighestBid)
	return &clone
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
