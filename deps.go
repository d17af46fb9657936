// deps.go defines minimal interfaces for external dependencies.
// The controller never talks to an RPC transport, a key store or a remote
// history API directly; everything network- or key-shaped is injected through
// these interfaces so it can be mocked in tests and swapped in production.
package txcontroller

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NodeClient is the minimal set of node queries the controller issues.
// It mirrors the logical JSON-RPC operations without prescribing a transport.
type NodeClient interface {
	// PendingNonceAt returns the pending transaction count for the address
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)

	// SuggestGasPrice returns the network's current gas price in wei
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// LatestBlockGasLimit returns the gas limit of the latest block
	LatestBlockGasLimit(ctx context.Context) (uint64, error)

	// CodeAt returns the deployed code at the address, empty for EOAs
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)

	// EstimateGas estimates the gas required to execute the call
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)

	// SendRawTransaction broadcasts a signed, serialized transaction and
	// returns its hash
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)

	// TransactionBlock returns the block number the transaction was included
	// in, or nil if the transaction is still pending or unknown
	TransactionBlock(ctx context.Context, hash common.Hash) (*big.Int, error)
}

// Signer converts an unsigned transaction into a signed, broadcast-ready one
// for the given sender. Key management is entirely behind this boundary.
type Signer interface {
	SignTransaction(ctx context.Context, tx *types.Transaction, from common.Address) (*types.Transaction, error)
}

// ChainProvider resolves the chain context the controller currently operates
// on. ChainID returns an error when no numeric chain id is resolvable.
type ChainProvider interface {
	ChainID() (uint64, error)
	NetworkID() string
	IsCustomNetwork() bool
}

// HistoryQuery scopes a remote transaction-history request.
type HistoryQuery struct {
	Address   common.Address
	FromBlock uint64
	// APIKey optionally overrides the source's configured credential
	APIKey string
}

// HistorySource is a block-explorer-style API returning the historical
// transactions of an address, split into native-asset transactions and token
// transfers.
type HistorySource interface {
	NativeTransactions(ctx context.Context, q HistoryQuery) ([]RemoteTx, error)
	TokenTransfers(ctx context.Context, q HistoryQuery) ([]RemoteTx, error)
}

// MethodRegistry looks up the decoded signature for a 4-byte call selector.
type MethodRegistry interface {
	LookupSelector(ctx context.Context, selector string) (MethodData, error)
}

// StateContainer publishes controller state to whoever persists or observes
// it. Replace must swap the full state and notify subscribers synchronously;
// subscribers are referenced by key so un/subscribe is idempotent. The state
// must round-trip through the container's configured serialization.
type StateContainer interface {
	State() State
	Replace(State)
	Subscribe(key string, fn func(State))
	Unsubscribe(key string)
}

// State is the persisted shape of the controller: the ordered transaction
// list plus the method-data cache.
type State struct {
	Transactions []*TxRecord           `json:"transactions"`
	MethodData   map[string]MethodData `json:"methodData,omitempty"`
}
