package types

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// AssetKey identifies a unique asset by the collection that issued it and the
// 256-bit asset identifier inside that collection. Every market table is keyed
// by AssetKey and keys never influence one another.
type AssetKey struct {
	Collection [20]byte
	AssetID    [32]byte
}

// NewAssetKey builds a key from a collection address and a numeric asset id.
func NewAssetKey(collection [20]byte, assetID *uint256.Int) AssetKey {
	key := AssetKey{Collection: collection}
	if assetID != nil {
		key.AssetID = assetID.Bytes32()
	}
	return key
}

// ParseAssetID parses a decimal (or 0x-prefixed hex) asset identifier.
func ParseAssetID(raw string) ([32]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return [32]byte{}, fmt.Errorf("asset id required")
	}
	var (
		id  *uint256.Int
		err error
	)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		id, err = uint256.FromHex(trimmed)
	} else {
		id, err = uint256.FromDecimal(trimmed)
	}
	if err != nil {
		return [32]byte{}, fmt.Errorf("invalid asset id %q: %w", raw, err)
	}
	return id.Bytes32(), nil
}

// AssetIDString renders the asset identifier as a decimal string.
func (k AssetKey) AssetIDString() string {
	return new(uint256.Int).SetBytes32(k.AssetID[:]).Dec()
}

// Bytes returns the canonical 52-byte encoding used for storage keys.
func (k AssetKey) Bytes() []byte {
	out := make([]byte, 0, len(k.Collection)+len(k.AssetID))
	out = append(out, k.Collection[:]...)
	return append(out, k.AssetID[:]...)
}

func (k AssetKey) String() string {
	return hex.EncodeToString(k.Collection[:]) + "/" + k.AssetIDString()
}
