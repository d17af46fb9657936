package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ============================================================
// Transaction Builders
// ============================================================

// NewLegacyTx creates a legacy transaction for testing
func NewLegacyTx(nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasPrice *big.Int) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     nil,
	})
}

// SignedLegacyTx creates a legacy transaction signed with TestPrivateKey1 on
// the given chain
func SignedLegacyTx(nonce uint64, to common.Address, value *big.Int, chainID *big.Int) (*types.Transaction, error) {
	tx := NewLegacyTx(nonce, to, value, 21000, TwentyGwei)
	return types.SignTx(tx, types.NewEIP155Signer(chainID), TestPrivateKey1)
}
