package state

import (
	"fmt"
	"math/big"

	"nhbmarket/core/types"
	"nhbmarket/native/escrow"
)

type storedListing struct {
	Collection [20]byte
	AssetID    [32]byte
	Seller     [20]byte
	Price      *big.Int
	Active     bool
	ListedAt   uint64
}

type storedAuction struct {
	Collection    [20]byte
	AssetID       [32]byte
	Seller        [20]byte
	Mode          uint8
	Status        uint8
	StartingPrice *big.Int
	HighestBid    *big.Int
	HighestBidder [20]byte
	HasBidder     bool
	StartTime     uint64
	EndTime       uint64
	EscrowTimeout uint64
}

type storedEscrow struct {
	Collection [20]byte
	AssetID    [32]byte
	Buyer      [20]byte
	Amount     *big.Int
	FundedAt   uint64
	Status     uint8
	Payee      [20]byte
	Fee        *big.Int
}

func toUnix(field string, v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("state: %s must be non-negative", field)
	}
	return uint64(v), nil
}

func fromUnix(field string, v uint64) (int64, error) {
	if v > uint64(1<<63-1) {
		return 0, fmt.Errorf("state: %s overflows int64", field)
	}
	return int64(v), nil
}

func nonNegative(field string, v *big.Int) (*big.Int, error) {
	if v == nil {
		return big.NewInt(0), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("state: %s must be non-negative", field)
	}
	return new(big.Int).Set(v), nil
}

// MarketListingPut stores a listing under its asset key.
func (m *Manager) MarketListingPut(l *types.Listing) error {
	if l == nil {
		return fmt.Errorf("state: nil listing")
	}
	price, err := nonNegative("listing price", l.Price)
	if err != nil {
		return err
	}
	listedAt, err := toUnix("listing time", l.ListedAt)
	if err != nil {
		return err
	}
	record := storedListing{
		Collection: l.Key.Collection,
		AssetID:    l.Key.AssetID,
		Seller:     l.Seller,
		Price:      price,
		Active:     l.Active,
		ListedAt:   listedAt,
	}
	return m.KVPut(MarketListingKey(l.Key), &record)
}

// MarketListingGet loads the listing for key.
func (m *Manager) MarketListingGet(key types.AssetKey) (*types.Listing, bool, error) {
	var record storedListing
	ok, err := m.KVGet(MarketListingKey(key), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	listedAt, err := fromUnix("listing time", record.ListedAt)
	if err != nil {
		return nil, false, err
	}
	return &types.Listing{
		Key:      types.AssetKey{Collection: record.Collection, AssetID: record.AssetID},
		Seller:   record.Seller,
		Price:    record.Price,
		Active:   record.Active,
		ListedAt: listedAt,
	}, true, nil
}

// MarketListingDelete removes the listing for key.
func (m *Manager) MarketListingDelete(key types.AssetKey) error {
	return m.KVDelete(MarketListingKey(key))
}

// MarketAuctionPut stores an auction under its asset key.
func (m *Manager) MarketAuctionPut(a *types.Auction) error {
	if a == nil {
		return fmt.Errorf("state: nil auction")
	}
	starting, err := nonNegative("starting price", a.StartingPrice)
	if err != nil {
		return err
	}
	highest, err := nonNegative("highest bid", a.HighestBid)
	if err != nil {
		return err
	}
	record := storedAuction{
		Collection:    a.Key.Collection,
		AssetID:       a.Key.AssetID,
		Seller:        a.Seller,
		Mode:          uint8(a.Mode),
		Status:        uint8(a.Status),
		StartingPrice: starting,
		HighestBid:    highest,
		HighestBidder: a.HighestBidder,
		HasBidder:     a.HasBidder,
	}
	if record.StartTime, err = toUnix("auction start", a.StartTime); err != nil {
		return err
	}
	if record.EndTime, err = toUnix("auction end", a.EndTime); err != nil {
		return err
	}
	if record.EscrowTimeout, err = toUnix("escrow timeout", a.EscrowTimeout); err != nil {
		return err
	}
	return m.KVPut(MarketAuctionKey(a.Key), &record)
}

// MarketAuctionGet loads the auction for key.
func (m *Manager) MarketAuctionGet(key types.AssetKey) (*types.Auction, bool, error) {
	var record storedAuction
	ok, err := m.KVGet(MarketAuctionKey(key), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	auction := &types.Auction{
		Key:           types.AssetKey{Collection: record.Collection, AssetID: record.AssetID},
		Seller:        record.Seller,
		Mode:          types.AuctionMode(record.Mode),
		Status:        types.AuctionStatus(record.Status),
		StartingPrice: record.StartingPrice,
		HighestBid:    record.HighestBid,
		HighestBidder: record.HighestBidder,
		HasBidder:     record.HasBidder,
	}
	if auction.StartTime, err = fromUnix("auction start", record.StartTime); err != nil {
		return nil, false, err
	}
	if auction.EndTime, err = fromUnix("auction end", record.EndTime); err != nil {
		return nil, false, err
	}
	if auction.EscrowTimeout, err = fromUnix("escrow timeout", record.EscrowTimeout); err != nil {
		return nil, false, err
	}
	return auction, true, nil
}

// MarketAuctionDelete removes the auction for key.
func (m *Manager) MarketAuctionDelete(key types.AssetKey) error {
	return m.KVDelete(MarketAuctionKey(key))
}

// EscrowPut stores an escrow entry. Implements the escrow vault state.
func (m *Manager) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	fundedAt, err := toUnix("escrow funding time", sanitized.FundedAt)
	if err != nil {
		return err
	}
	record := storedEscrow{
		Collection: sanitized.Key.Collection,
		AssetID:    sanitized.Key.AssetID,
		Buyer:      sanitized.Buyer,
		Amount:     sanitized.Amount,
		FundedAt:   fundedAt,
		Status:     uint8(sanitized.Status),
		Payee:      sanitized.Payee,
		Fee:        sanitized.Fee,
	}
	return m.KVPut(MarketEscrowKey(sanitized.Key), &record)
}

// EscrowGet loads the escrow entry for key.
func (m *Manager) EscrowGet(key types.AssetKey) (*escrow.Escrow, bool, error) {
	var record storedEscrow
	ok, err := m.KVGet(MarketEscrowKey(key), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	fundedAt, err := fromUnix("escrow funding time", record.FundedAt)
	if err != nil {
		return nil, false, err
	}
	esc, err := escrow.SanitizeEscrow(&escrow.Escrow{
		Key:      types.AssetKey{Collection: record.Collection, AssetID: record.AssetID},
		Buyer:    record.Buyer,
		Amount:   record.Amount,
		FundedAt: fundedAt,
		Status:   escrow.EscrowStatus(record.Status),
		Payee:    record.Payee,
		Fee:      record.Fee,
	})
	if err != nil {
		return nil, false, err
	}
	return esc, true, nil
}

// EscrowDelete removes the escrow entry for key.
func (m *Manager) EscrowDelete(key types.AssetKey) error {
	return m.KVDelete(MarketEscrowKey(key))
}

// MarketFeeGet returns the configured fee percentage. The boolean is false when
// no fee has been stored yet.
func (m *Manager) MarketFeeGet() (uint32, bool, error) {
	var pct uint32
	ok, err := m.KVGet(marketFeeKeyBytes, &pct)
	return pct, ok, err
}

// MarketFeePut stores the fee percentage.
func (m *Manager) MarketFeePut(pct uint32) error {
	return m.KVPut(marketFeeKeyBytes, pct)
}

// MarketClockGet returns the logical time of the last committed command.
func (m *Manager) MarketClockGet() (int64, bool, error) {
	var ts uint64
	ok, err := m.KVGet(marketClockKeyBytes, &ts)
	if err != nil || !ok {
		return 0, ok, err
	}
	now, err := fromUnix("market clock", ts)
	return now, err == nil, err
}

// MarketClockPut records the logical time of the current command.
func (m *Manager) MarketClockPut(now int64) error {
	ts, err := toUnix("market clock", now)
	if err != nil {
		return err
	}
	return m.KVPut(marketClockKeyBytes, ts)
}
