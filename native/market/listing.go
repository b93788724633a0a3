package market

import (
	"context"
	"math/big"

	"nhbmarket/core/types"
	"nhbmarket/native/escrow"
	"nhbmarket/native/fees"
)

func checkPrice(price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	return checkValue(price)
}

// checkValue rejects amounts the fee arithmetic cannot settle.
func checkValue(value *big.Int) error {
	if value != nil && value.BitLen() > fees.MaxAmountBits {
		return ErrAmountTooLarge
	}
	return nil
}

func (e *Engine) activeListing(key types.AssetKey) (*types.Listing, error) {
	listing, ok, err := e.state.MarketListingGet(key)
	if err != nil {
		return nil, err
	}
	if !ok || !listing.Active {
		return nil, ErrNotActive
	}
	return listing, nil
}

// List places an asset under a fixed price. The asset moves from seller into
// custody.
func (e *Engine) List(ctx context.Context, key types.AssetKey, seller [20]byte, price *big.Int, now int64) error {
	if err := checkPrice(price); err != nil {
		return err
	}
	return e.run(ctx, func(ctx context.Context) error {
		if err := e.tick(now); err != nil {
			return err
		}
		if err := e.ensureFree(key); err != nil {
			return err
		}
		listing := &types.Listing{
			Key:      key,
			Seller:   seller,
			Price:    new(big.Int).Set(price),
			Active:   true,
			ListedAt: now,
		}
		if err := e.state.MarketListingPut(listing); err != nil {
			return err
		}
		e.emit(NewListedEvent(listing))
		return e.moveAsset(ctx, "list custody", key, seller, e.params.Custody)
	})
}

// ChangePrice updates the price of an unfunded listing.
func (e *Engine) ChangePrice(ctx context.Context, key types.AssetKey, caller [20]byte, newPrice *big.Int, now int64) error {
	if err := checkPrice(newPrice); err != nil {
		return err
	}
	return e.run(ctx, func(context.Context) error {
		if err := e.tick(now); err != nil {
			return err
		}
		listing, err := e.activeListing(key)
		if err != nil {
			return err
		}
		if caller != listing.Seller {
			return ErrNotSeller
		}
		status, err := e.vault.Status(key)
		if err != nil {
			return err
		}
		if status == escrow.EscrowFunded {
			return ErrAlreadyFunded
		}
		old := listing.Price
		listing.Price = new(big.Int).Set(newPrice)
		if err := e.state.MarketListingPut(listing); err != nil {
			return err
		}
		e.emit(NewPriceChangedEvent(listing, old))
		return nil
	})
}

// Unlist withdraws a listing and returns the asset to the seller. A funded
// escrow is refunded to its buyer first.
func (e *Engine) Unlist(ctx context.Context, key types.AssetKey, caller [20]byte, now int64) error {
	return e.run(ctx, func(ctx context.Context) error {
		if err := e.tick(now); err != nil {
			return err
		}
		listing, err := e.activeListing(key)
		if err != nil {
			return err
		}
		if caller != listing.Seller {
			return ErrNotSeller
		}
		if err := e.state.MarketListingDelete(key); err != nil {
			return err
		}
		esc, ok, err := e.vault.Get(key)
		if err != nil {
			return err
		}
		refunded := new(big.Int)
		if ok && esc.Status == escrow.EscrowFunded {
			refunded = esc.Amount
		}
		e.emit(NewUnlistedEvent(listing, refunded))
		if refunded.Sign() > 0 {
			if _, err := e.vault.Reclaim(ctx, key, esc.Buyer); err != nil {
				return err
			}
		}
		return e.moveAsset(ctx, "unlist custody", key, e.params.Custody, listing.Seller)
	})
}

// Buy funds the escrow of an active listing with value, which the host has
// already moved into custody. The listing stays active until ReleaseEscrow.
func (e *Engine) Buy(ctx context.Context, key types.AssetKey, buyer [20]byte, value *big.Int, now int64) error {
	if err := checkValue(value); err != nil {
		return err
	}
	return e.run(ctx, func(ctx context.Context) error {
		if err := e.tick(now); err != nil {
			return err
		}
		listing, err := e.activeListing(key)
		if err != nil {
			return err
		}
		if buyer == listing.Seller {
			return ErrSelfDealing
		}
		if value == nil || value.Cmp(listing.Price) < 0 {
			return ErrInsufficientPayment
		}
		return e.vault.Fund(ctx, key, buyer, value, now)
	})
}

// ReleaseEscrow is called by the buyer to confirm receipt. The escrow is paid
// out to the seller less the protocol fee and the asset moves to the buyer.
func (e *Engine) ReleaseEscrow(ctx context.Context, key types.AssetKey, caller [20]byte, now int64) error {
	return e.run(ctx, func(ctx context.Context) error {
		if err := e.tick(now); err != nil {
			return err
		}
		esc, ok, err := e.vault.Get(key)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFunded
		}
		switch esc.Status {
		case escrow.EscrowFunded:
		case escrow.EscrowReleased:
			return ErrAlreadyReleased
		default:
			return ErrNotFunded
		}
		if caller != esc.Buyer {
			return ErrNotAuthorized
		}
		listing, err := e.activeListing(key)
		if err != nil {
			return err
		}
		pct, err := e.feePercentage()
		if err != nil {
			return err
		}
		listing.Active = false
		if err := e.state.MarketListingPut(listing); err != nil {
			return err
		}
		split, err := e.vault.Release(ctx, key, caller, listing.Seller, pct)
		if err != nil {
			return err
		}
		e.emit(NewSoldEvent(listing, esc.Buyer, split))
		return e.moveAsset(ctx, "sale custody", key, e.params.Custody, esc.Buyer)
	})
}
