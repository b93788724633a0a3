package market

import (
	"context"
	"math"
	"math/big"

	"nhbmarket/core/types"
	"nhbmarket/native/fees"
)

func (e *Engine) activeAuction(key types.AssetKey) (*types.Auction, error) {
	auction, ok, err := e.state.MarketAuctionGet(key)
	if err != nil {
		return nil, err
	}
	if !ok || !auction.Active() {
		return nil, ErrNotActive
	}
	return auction, nil
}

// StartAuction moves the asset from seller into custody and opens bidding until
// now+duration. Escrow-timeout auctions must run longer than the configured
// escrow duration and become reclaimable at now+EscrowDuration.
func (e *Engine) StartAuction(ctx context.Context, key types.AssetKey, seller [20]byte, startingPrice *big.Int, duration int64, mode types.AuctionMode, now int64) error {
	if err := checkPrice(startingPrice); err != nil {
		return err
	}
	if !mode.Valid() {
		return ErrInvalidMode
	}
	if duration <= 0 || now > math.MaxInt64-duration {
		return ErrInvalidDuration
	}
	if mode == types.AuctionModeEscrowTimeout && duration <= e.params.EscrowDuration {
		return ErrInvalidDuration
	}
	return e.run(ctx, func(ctx context.Context) error {
		if err := e.tick(now); err != nil {
			return err
		}
		if err := e.ensureFree(key); err != nil {
			return err
		}
		auction := &types.Auction{
			Key:           key,
			Seller:        seller,
			Mode:          mode,
			Status:        types.AuctionStatusActive,
			StartingPrice: new(big.Int).Set(startingPrice),
			HighestBid:    new(big.Int).Set(startingPrice),
			StartTime:     now,
			EndTime:       now + duration,
		}
		if mode == types.AuctionModeEscrowTimeout {
			auction.EscrowTimeout = now + e.params.EscrowDuration
		}
		if err := e.state.MarketAuctionPut(auction); err != nil {
			return err
		}
		e.emit(NewAuctionStartedEvent(auction))
		return e.moveAsset(ctx, "auction custody", key, seller, e.params.Custody)
	})
}

// PlaceBid records value as the new highest bid. The bid is already held in
// custody; the previous highest bidder is refunded after the auction record
// points at the new bid.
func (e *Engine) PlaceBid(ctx context.Context, key types.AssetKey, bidder [20]byte, value *big.Int, now int64) error {
	if err := checkValue(value); err != nil {
		return err
	}
	return e.run(ctx, func(ctx context.Context) error {
		if err := e.tick(now); err != nil {
			return err
		}
		auction, err := e.activeAuction(key)
		if err != nil {
			return err
		}
		if now >= auction.EndTime {
			return ErrAuctionEnded
		}
		if bidder == auction.Seller {
			return ErrSelfDealing
		}
		if value == nil || value.Cmp(auction.HighestBid) <= 0 {
			return ErrBidTooLow
		}
		prevBidder, prevBid, hadBidder := auction.HighestBidder, auction.HighestBid, auction.HasBidder

		auction.HighestBidder = bidder
		auction.HighestBid = new(big.Int).Set(value)
		auction.HasBidder = true
		if err := e.state.MarketAuctionPut(auction); err != nil {
			return err
		}
		e.emit(NewBidPlacedEvent(auction))
		if !hadBidder {
			return nil
		}
		e.emit(NewBidRefundedEvent(key, prevBidder, prevBid))
		return e.pay(ctx, "bid refund", prevBidder, prevBid)
	})
}

// EndAuction settles an auction once its end time has passed. The winner
// receives the asset and the seller the highest bid less the protocol fee;
// without bids the asset returns to the seller.
func (e *Engine) EndAuction(ctx context.Context, key types.AssetKey, now int64) error {
	return e.run(ctx, func(ctx context.Context) error {
		if err := e.tick(now); err != nil {
			return err
		}
		auction, err := e.activeAuction(key)
		if err != nil {
			return err
		}
		if now < auction.EndTime {
			return ErrAuctionOngoing
		}
		split := fees.Split{Gross: new(big.Int), Fee: new(big.Int), Net: new(big.Int)}
		if auction.HasBidder {
			pct, err := e.feePercentage()
			if err != nil {
				return err
			}
			if split, err = fees.Compute(auction.HighestBid, pct); err != nil {
				return err
			}
		}
		auction.Status = types.AuctionStatusEnded
		if err := e.state.MarketAuctionPut(auction); err != nil {
			return err
		}
		e.emit(NewAuctionEndedEvent(auction, split))

		if !auction.HasBidder {
			return e.moveAsset(ctx, "auction return", key, e.params.Custody, auction.Seller)
		}
		if err := e.moveAsset(ctx, "auction settlement", key, e.params.Custody, auction.HighestBidder); err != nil {
			return err
		}
		if err := e.pay(ctx, "auction proceeds", auction.Seller, split.Net); err != nil {
			return err
		}
		return e.pay(ctx, "auction fee", e.params.Treasury, split.Fee)
	})
}

// ReleaseEscrowTimeout unwinds an escrow-timeout auction whose timeout has
// passed: the highest bidder is refunded in full, the asset returns to the
// seller and the auction entry is removed.
func (e *Engine) ReleaseEscrowTimeout(ctx context.Context, key types.AssetKey, now int64) error {
	return e.run(ctx, func(ctx context.Context) error {
		if err := e.tick(now); err != nil {
			return err
		}
		auction, err := e.activeAuction(key)
		if err != nil {
			return err
		}
		if auction.Mode != types.AuctionModeEscrowTimeout {
			return ErrEscrowTimeoutDisabled
		}
		if now < auction.EscrowTimeout {
			return ErrTimeoutNotReached
		}
		if err := e.state.MarketAuctionDelete(key); err != nil {
			return err
		}
		e.emit(NewAuctionReclaimedEvent(auction))
		if auction.HasBidder {
			if err := e.pay(ctx, "timeout refund", auction.HighestBidder, auction.HighestBid); err != nil {
				return err
			}
		}
		return e.moveAsset(ctx, "timeout return", key, e.params.Custody, auction.Seller)
	})
}
