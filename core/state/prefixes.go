package state

import "nhbmarket/core/types"

var (
	marketListingPrefix = []byte("market/listing/")
	marketAuctionPrefix = []byte("market/auction/")
	marketEscrowPrefix  = []byte("market/escrow/")
	marketFeeKeyBytes   = []byte("market/fee")
	marketClockKeyBytes = []byte("market/clock")
	bankBalancePrefix   = []byte("bank/balance/")
	bankOwnerPrefix     = []byte("bank/owner/")
)

func prefixed(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

// MarketListingKey returns the state key of the listing for an asset.
func MarketListingKey(key types.AssetKey) []byte {
	return prefixed(marketListingPrefix, key.Bytes())
}

// MarketAuctionKey returns the state key of the auction for an asset.
func MarketAuctionKey(key types.AssetKey) []byte {
	return prefixed(marketAuctionPrefix, key.Bytes())
}

// MarketEscrowKey returns the state key of the escrow for an asset.
func MarketEscrowKey(key types.AssetKey) []byte {
	return prefixed(marketEscrowPrefix, key.Bytes())
}

// BankBalanceKey returns the state key of an account balance.
func BankBalanceKey(addr [20]byte) []byte {
	return prefixed(bankBalancePrefix, addr[:])
}

// BankOwnerKey returns the state key of an asset's owner record.
func BankOwnerKey(key types.AssetKey) []byte {
	return prefixed(bankOwnerPrefix, key.Bytes())
}
