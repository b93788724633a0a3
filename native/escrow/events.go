package escrow

import (
	"strconv"

	"nhbmarket/core/types"
	"nhbmarket/crypto"
)

const (
	EventTypeEscrowFunded    = "escrow.funded"
	EventTypeEscrowReleased  = "escrow.released"
	EventTypeEscrowReclaimed = "escrow.reclaimed"
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// NewFundedEvent returns the canonical event payload emitted when a buyer funds
// the escrow for a listed asset.
func NewFundedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowFunded, e) }

// NewReleasedEvent returns the canonical event payload for a release of escrow
// funds to the seller.
func NewReleasedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowReleased, e) }

// NewReclaimedEvent returns the canonical event payload for a full refund of
// the escrow to the buyer.
func NewReclaimedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowReclaimed, e) }

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeEscrow(e)
	if err != nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["collection"] = crypto.FormatAddress(crypto.CollectionPrefix, sanitized.Key.Collection)
	attrs["assetId"] = sanitized.Key.AssetIDString()
	attrs["buyer"] = crypto.FormatAddress(crypto.NHBPrefix, sanitized.Buyer)
	attrs["amount"] = sanitized.Amount.String()
	attrs["status"] = sanitized.Status.String()
	attrs["fundedAt"] = strconv.FormatInt(sanitized.FundedAt, 10)
	if sanitized.Status == EscrowReleased {
		attrs["payee"] = crypto.FormatAddress(crypto.NHBPrefix, sanitized.Payee)
		attrs["fee"] = sanitized.Fee.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
