package market

import (
	coreerrors "nhbmarket/core/errors"
	"nhbmarket/native/escrow"
	"nhbmarket/native/fees"
)

var (
	ErrInvalidPrice    = coreerrors.New(coreerrors.KindValidation, "invalid_price", "market: price must be positive")
	ErrInvalidDuration = coreerrors.New(coreerrors.KindValidation, "invalid_duration", "market: invalid auction duration")
	ErrInvalidMode     = coreerrors.New(coreerrors.KindValidation, "invalid_mode", "market: unknown auction mode")
	ErrTimeRegression  = coreerrors.New(coreerrors.KindValidation, "time_regression", "market: logical time moved backwards")
	ErrAmountTooLarge  = coreerrors.New(coreerrors.KindValidation, "amount_too_large", "market: amount exceeds 256 bits")

	ErrAlreadyActive         = coreerrors.New(coreerrors.KindState, "already_active", "market: asset already has an active offer")
	ErrNotActive             = coreerrors.New(coreerrors.KindState, "not_active", "market: no active offer")
	ErrInsufficientPayment   = coreerrors.New(coreerrors.KindState, "insufficient_payment", "market: payment below price")
	ErrAuctionEnded          = coreerrors.New(coreerrors.KindState, "auction_ended", "market: auction has ended")
	ErrAuctionOngoing        = coreerrors.New(coreerrors.KindState, "auction_ongoing", "market: auction still running")
	ErrBidTooLow             = coreerrors.New(coreerrors.KindState, "bid_too_low", "market: bid must exceed highest bid")
	ErrTimeoutNotReached     = coreerrors.New(coreerrors.KindState, "timeout_not_reached", "market: escrow timeout not reached")
	ErrEscrowTimeoutDisabled = coreerrors.New(coreerrors.KindState, "escrow_timeout_disabled", "market: auction has no escrow timeout")
	ErrReentrant             = coreerrors.New(coreerrors.KindState, "reentrant_call", "market: ledger called back without the command context")
	ErrEngineBusy            = coreerrors.New(coreerrors.KindState, "engine_busy", "market: timed out waiting for the engine")

	ErrNotSeller   = coreerrors.New(coreerrors.KindAuthorization, "not_seller", "market: caller is not the seller")
	ErrSelfDealing = coreerrors.New(coreerrors.KindAuthorization, "self_dealing", "market: seller cannot buy or bid on own offer")
)

// Re-exported so callers can match every market rejection from one package.
var (
	ErrNotAuthorized     = escrow.ErrNotAuthorized
	ErrAlreadyFunded     = escrow.ErrAlreadyFunded
	ErrNotFunded         = escrow.ErrNotFunded
	ErrAlreadyReleased   = escrow.ErrAlreadyReleased
	ErrInvalidPercentage = fees.ErrInvalidPercentage
	ErrTransferFailed    = coreerrors.ErrTransferFailed
)
