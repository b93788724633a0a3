package state

import (
	"fmt"
	"math/big"

	"nhbmarket/core/types"
)

// BankBalance returns the balance stored for addr, zero when absent.
func (m *Manager) BankBalance(addr [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.KVGet(BankBalanceKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// BankSetBalance overwrites the balance of addr. A zero balance removes the
// record.
func (m *Manager) BankSetBalance(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return m.KVDelete(BankBalanceKey(addr))
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative balance")
	}
	return m.KVPut(BankBalanceKey(addr), amount)
}

// BankAssetOwner returns the holder of an asset.
func (m *Manager) BankAssetOwner(key types.AssetKey) ([20]byte, bool, error) {
	var owner [20]byte
	ok, err := m.KVGet(BankOwnerKey(key), &owner)
	return owner, ok, err
}

// BankSetAssetOwner records the holder of an asset.
func (m *Manager) BankSetAssetOwner(key types.AssetKey, owner [20]byte) error {
	return m.KVPut(BankOwnerKey(key), owner)
}
