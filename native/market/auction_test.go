package market

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	coreerrors "nhbmarket/core/errors"
	"nhbmarket/core/types"
)

func TestAuctionEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := testKey(1)
	h.register(key, sellerAddr)
	h.credit(bidder1Addr, 1000)
	h.credit(bidder2Addr, 1000)

	require.NoError(t, h.engine.StartAuction(ctx, key, sellerAddr, big.NewInt(100), 1000, types.AuctionModeStandard, 0))
	require.Equal(t, custodyAddr, h.owner(key))

	h.deposit(bidder1Addr, 150)
	require.NoError(t, h.engine.PlaceBid(ctx, key, bidder1Addr, big.NewInt(150), 10))
	auction, ok, err := h.engine.Auction(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bidder1Addr, auction.HighestBidder)

	require.ErrorIs(t, h.engine.PlaceBid(ctx, key, bidder2Addr, big.NewInt(120), 20), ErrBidTooLow)

	h.deposit(bidder2Addr, 200)
	require.NoError(t, h.engine.PlaceBid(ctx, key, bidder2Addr, big.NewInt(200), 30))
	require.Equal(t, int64(1000), h.balance(bidder1Addr), "outbid bidder refunded 150")

	require.ErrorIs(t, h.engine.EndAuction(ctx, key, 999), ErrAuctionOngoing)
	require.NoError(t, h.engine.EndAuction(ctx, key, 1000))

	require.Equal(t, bidder2Addr, h.owner(key))
	require.Equal(t, int64(196), h.balance(sellerAddr))
	require.Equal(t, int64(4), h.balance(treasuryAddr))
	require.Equal(t, int64(800), h.balance(bidder2Addr))
	require.Equal(t, int64(0), h.balance(custodyAddr))

	auction, ok, err = h.engine.Auction(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.AuctionStatusEnded, auction.Status)
	require.ErrorIs(t, h.engine.EndAuction(ctx, key, 1001), ErrNotActive)
	require.ErrorIs(t, h.engine.PlaceBid(ctx, key, bidder1Addr, big.NewInt(500), 1001), ErrNotActive)

	ended := h.emitter.last(EventTypeAuctionEnded)
	require.Equal(t, "200", ended.Attributes["amount"])
	require.Equal(t, "4", ended.Attributes["fee"])
	require.Equal(t, "196", ended.Attributes["sellerAmount"])
	refund := h.emitter.last(EventTypeBidRefunded)
	require.Equal(t, "150", refund.Attributes["amount"])

	// The winner can put the asset back on the market.
	require.NoError(t, h.engine.List(ctx, key, bidder2Addr, big.NewInt(300), 1002))
	_, ok, err = h.engine.Auction(ctx, key)
	require.NoError(t, err)
	require.False(t, ok, "ended auction residue cleared on reuse")
}

func TestAuctionValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := testKey(1)
	h.register(key, sellerAddr)

	cases := []struct {
		name     string
		price    *big.Int
		duration int64
		mode     types.AuctionMode
		want     error
	}{
		{name: "zero price", price: big.NewInt(0), duration: 10, want: ErrInvalidPrice},
		{name: "zero duration", price: big.NewInt(1), duration: 0, want: ErrInvalidDuration},
		{name: "negative duration", price: big.NewInt(1), duration: -5, want: ErrInvalidDuration},
		{name: "unknown mode", price: big.NewInt(1), duration: 10, mode: types.AuctionMode(7), want: ErrInvalidMode},
		{name: "escrow timeout needs longer duration", price: big.NewInt(1), duration: 86400, mode: types.AuctionModeEscrowTimeout, want: ErrInvalidDuration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.engine.StartAuction(ctx, key, sellerAddr, tc.price, tc.duration, tc.mode, 0)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if owner := h.owner(key); owner != sellerAddr {
		t.Fatalf("rejected auctions must not move custody")
	}

	if err := h.engine.StartAuction(ctx, key, sellerAddr, big.NewInt(100), 100, types.AuctionModeStandard, 5); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.engine.PlaceBid(ctx, key, sellerAddr, big.NewInt(500), 6); !errors.Is(err, ErrSelfDealing) {
		t.Fatalf("expected ErrSelfDealing, got %v", err)
	}
	if err := h.engine.PlaceBid(ctx, key, bidder1Addr, big.NewInt(100), 6); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("bid equal to starting price must be rejected, got %v", err)
	}
	if err := h.engine.PlaceBid(ctx, key, bidder1Addr, big.NewInt(101), 105); !errors.Is(err, ErrAuctionEnded) {
		t.Fatalf("expected ErrAuctionEnded, got %v", err)
	}
	if err := h.engine.ReleaseEscrowTimeout(ctx, key, 200); !errors.Is(err, ErrEscrowTimeoutDisabled) {
		t.Fatalf("expected ErrEscrowTimeoutDisabled, got %v", err)
	}
}

func TestAuctionWithoutBidsReturnsAsset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := testKey(1)
	h.register(key, sellerAddr)

	if err := h.engine.StartAuction(ctx, key, sellerAddr, big.NewInt(100), 50, types.AuctionModeStandard, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.engine.EndAuction(ctx, key, 50); err != nil {
		t.Fatalf("end: %v", err)
	}
	if owner := h.owner(key); owner != sellerAddr {
		t.Fatalf("expected asset back with seller")
	}
	if bal := h.balance(treasuryAddr); bal != 0 {
		t.Fatalf("no fee without a sale, got %d", bal)
	}
	evt := h.emitter.last(EventTypeAuctionEnded)
	if _, ok := evt.Attributes["winner"]; ok {
		t.Fatalf("unexpected winner in %+v", evt.Attributes)
	}
}

func TestEscrowTimeoutScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := testKey(1)
	h.register(key, sellerAddr)
	h.credit(bidder1Addr, 1000)

	require.NoError(t, h.engine.StartAuction(ctx, key, sellerAddr, big.NewInt(100), 172800, types.AuctionModeEscrowTimeout, 0))
	auction, _, err := h.engine.Auction(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(86400), auction.EscrowTimeout)
	require.Equal(t, int64(172800), auction.EndTime)

	h.deposit(bidder1Addr, 150)
	require.NoError(t, h.engine.PlaceBid(ctx, key, bidder1Addr, big.NewInt(150), 10))

	require.ErrorIs(t, h.engine.ReleaseEscrowTimeout(ctx, key, 86399), ErrTimeoutNotReached)
	require.NoError(t, h.engine.ReleaseEscrowTimeout(ctx, key, 86400))

	require.Equal(t, int64(1000), h.balance(bidder1Addr), "highest bidder refunded in full")
	require.Equal(t, sellerAddr, h.owner(key))
	require.Equal(t, int64(0), h.balance(treasuryAddr))
	_, ok, err := h.engine.Auction(ctx, key)
	require.NoError(t, err)
	require.False(t, ok, "reclaimed auction is cleared")
	require.ErrorIs(t, h.engine.EndAuction(ctx, key, 172800), ErrNotActive)

	reclaimed := h.emitter.last(EventTypeAuctionReclaimed)
	require.Equal(t, "150", reclaimed.Attributes["refunded"])
}

func TestPlaceBidRefundFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := testKey(1)
	h.register(key, sellerAddr)
	h.credit(bidder1Addr, 1000)
	h.credit(bidder2Addr, 1000)
	require.NoError(t, h.engine.StartAuction(ctx, key, sellerAddr, big.NewInt(100), 1000, types.AuctionModeStandard, 0))
	h.deposit(bidder1Addr, 150)
	require.NoError(t, h.engine.PlaceBid(ctx, key, bidder1Addr, big.NewInt(150), 10))

	h.ledger.failValue = func(_, to [20]byte, _ *big.Int) error {
		if to == bidder1Addr {
			return errors.New("refund rejected")
		}
		return nil
	}
	h.deposit(bidder2Addr, 200)
	require.ErrorIs(t, h.engine.PlaceBid(ctx, key, bidder2Addr, big.NewInt(200), 20), ErrTransferFailed)
	h.ledger.failValue = nil

	auction, _, err := h.engine.Auction(ctx, key)
	require.NoError(t, err)
	require.Equal(t, bidder1Addr, auction.HighestBidder)
	require.Equal(t, int64(150), auction.HighestBid.Int64())
}

func TestReentrantBidObservesUpdatedHighestBid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := testKey(1)
	h.register(key, sellerAddr)
	h.credit(bidder1Addr, 1000)
	h.credit(bidder2Addr, 1000)
	require.NoError(t, h.engine.StartAuction(ctx, key, sellerAddr, big.NewInt(100), 1000, types.AuctionModeStandard, 0))
	h.deposit(bidder1Addr, 150)
	require.NoError(t, h.engine.PlaceBid(ctx, key, bidder1Addr, big.NewInt(150), 10))
	h.deposit(bidder2Addr, 200)

	var staleErr, freshErr error
	h.ledger.onValue = func(cbCtx context.Context, _, to [20]byte, _ *big.Int) {
		if to != bidder1Addr {
			return
		}
		// 180 would beat the stale highest bid of 150 but not the current 200.
		staleErr = h.engine.PlaceBid(cbCtx, key, bidder1Addr, big.NewInt(180), 20)
		if err := h.ledger.Ledger.Transfer(cbCtx, bidder1Addr, custodyAddr, big.NewInt(300)); err != nil {
			freshErr = err
			return
		}
		freshErr = h.engine.PlaceBid(cbCtx, key, bidder1Addr, big.NewInt(300), 20)
	}
	require.NoError(t, h.engine.PlaceBid(ctx, key, bidder2Addr, big.NewInt(200), 20))
	require.ErrorIs(t, staleErr, ErrBidTooLow)
	require.NoError(t, freshErr)

	auction, _, err := h.engine.Auction(ctx, key)
	require.NoError(t, err)
	require.Equal(t, bidder1Addr, auction.HighestBidder)
	require.Equal(t, int64(300), auction.HighestBid.Int64())
	require.Equal(t, int64(1000), h.balance(bidder2Addr), "bidder2 refunded by the nested bid")
	require.Equal(t, int64(700), h.balance(bidder1Addr))
	require.Equal(t, int64(300), h.balance(custodyAddr))
}

func TestBidSequenceProperty(t *testing.T) {
	bidders := [][20]byte{bidder1Addr, bidder2Addr, buyerAddr, strangerAddr}
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(rt)
		ctx := context.Background()
		key := testKey(1)
		h.register(key, sellerAddr)
		const funding = 1_000_000
		for _, b := range bidders {
			h.credit(b, funding)
		}
		if err := h.engine.StartAuction(ctx, key, sellerAddr, big.NewInt(1), 1000, types.AuctionModeStandard, 0); err != nil {
			rt.Fatalf("start: %v", err)
		}

		n := rapid.IntRange(1, 12).Draw(rt, "bids")
		current := int64(1)
		var last [20]byte
		for i := 0; i < n; i++ {
			current += rapid.Int64Range(1, 5000).Draw(rt, "increment")
			bidder := bidders[rapid.IntRange(0, len(bidders)-1).Draw(rt, "bidder")]
			h.deposit(bidder, current)
			if err := h.engine.PlaceBid(ctx, key, bidder, big.NewInt(current), int64(i+1)); err != nil {
				rt.Fatalf("bid %d: %v", i, err)
			}
			last = bidder
		}

		auction, _, err := h.engine.Auction(ctx, key)
		if err != nil {
			rt.Fatalf("auction: %v", err)
		}
		if auction.HighestBid.Int64() != current || auction.HighestBidder != last {
			rt.Fatalf("highest bid %s by %x, want %d by %x", auction.HighestBid, auction.HighestBidder, current, last)
		}
		for _, b := range bidders {
			want := int64(funding)
			if b == last {
				want -= current
			}
			if got := h.balance(b); got != want {
				rt.Fatalf("bidder %x balance %d, want %d", b, got, want)
			}
		}
		if got := h.balance(custodyAddr); got != current {
			rt.Fatalf("custody holds %d, want %d", got, current)
		}
	})
}

func TestAmountsWiderThan256BitsAreRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tooWide := new(big.Int).Lsh(big.NewInt(1), 256)

	listed := testKey(1)
	h.register(listed, sellerAddr)
	require.ErrorIs(t, h.engine.List(ctx, listed, sellerAddr, tooWide, 0), ErrAmountTooLarge)
	require.NoError(t, h.engine.List(ctx, listed, sellerAddr, big.NewInt(10), 0))
	require.ErrorIs(t, h.engine.ChangePrice(ctx, listed, sellerAddr, tooWide, 0), ErrAmountTooLarge)
	err := h.engine.Buy(ctx, listed, buyerAddr, tooWide, 0)
	require.ErrorIs(t, err, ErrAmountTooLarge)
	require.Equal(t, coreerrors.KindValidation, coreerrors.KindOf(err))
	_, funded, err := h.engine.Escrow(ctx, listed)
	require.NoError(t, err)
	require.False(t, funded)

	auctioned := testKey(2)
	h.register(auctioned, sellerAddr)
	require.ErrorIs(t, h.engine.StartAuction(ctx, auctioned, sellerAddr, tooWide, 1000, types.AuctionModeStandard, 0), ErrAmountTooLarge)
	require.NoError(t, h.engine.StartAuction(ctx, auctioned, sellerAddr, big.NewInt(100), 1000, types.AuctionModeStandard, 0))
	require.ErrorIs(t, h.engine.PlaceBid(ctx, auctioned, bidder1Addr, tooWide, 10), ErrAmountTooLarge)

	// The rejected bid leaves the auction settleable.
	require.NoError(t, h.engine.EndAuction(ctx, auctioned, 1000))
	require.Equal(t, sellerAddr, h.owner(auctioned))
}
