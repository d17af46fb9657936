package txcontroller

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/criptoarchi/txcontroller/testutil"
)

// ============================================================
// Mock NodeClient
// ============================================================

type mockNode struct {
	mu sync.Mutex

	pendingNonce    uint64
	pendingNonceErr error

	gasPrice    *big.Int
	gasPriceErr error

	blockGasLimit    uint64
	blockGasLimitErr error

	code     map[common.Address][]byte
	codeErr  error
	onCodeAt func()

	estimate      uint64
	estimateErr   error
	estimateCalls int

	sendErr error
	sent    [][]byte

	blocks   map[common.Hash]*big.Int
	blockErr error
}

func newMockNode() *mockNode {
	return &mockNode{
		pendingNonce:  0,
		gasPrice:      new(big.Int).Set(testutil.TwoGwei),
		blockGasLimit: 10_000_000,
		code:          make(map[common.Address][]byte),
		estimate:      50_000,
		blocks:        make(map[common.Hash]*big.Int),
	}
}

func (m *mockNode) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendingNonceErr != nil {
		return 0, m.pendingNonceErr
	}
	return m.pendingNonce, nil
}

func (m *mockNode) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gasPriceErr != nil {
		return nil, m.gasPriceErr
	}
	return new(big.Int).Set(m.gasPrice), nil
}

func (m *mockNode) LatestBlockGasLimit(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blockGasLimitErr != nil {
		return 0, m.blockGasLimitErr
	}
	return m.blockGasLimit, nil
}

func (m *mockNode) CodeAt(_ context.Context, addr common.Address) ([]byte, error) {
	m.mu.Lock()
	hook := m.onCodeAt
	err := m.codeErr
	code := m.code[addr]
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return code, nil
}

func (m *mockNode) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estimateCalls++
	if m.estimateErr != nil {
		return 0, m.estimateErr
	}
	return m.estimate, nil
}

func (m *mockNode) SendRawTransaction(_ context.Context, raw []byte) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return common.Hash{}, m.sendErr
	}
	m.sent = append(m.sent, append([]byte(nil), raw...))
	return crypto.Keccak256Hash(raw), nil
}

func (m *mockNode) TransactionBlock(_ context.Context, hash common.Hash) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blockErr != nil {
		return nil, m.blockErr
	}
	return m.blocks[hash], nil
}

func (m *mockNode) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockNode) markIncluded(hash common.Hash, block int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[hash] = big.NewInt(block)
}

// ============================================================
// Mock ChainProvider
// ============================================================

type mockChain struct {
	chainID    uint64
	chainIDErr error
	networkID  string
	custom     bool
}

func newMockChain() *mockChain {
	return &mockChain{chainID: 1, networkID: "1"}
}

func (m *mockChain) ChainID() (uint64, error) {
	if m.chainIDErr != nil {
		return 0, m.chainIDErr
	}
	return m.chainID, nil
}

func (m *mockChain) NetworkID() string     { return m.networkID }
func (m *mockChain) IsCustomNetwork() bool { return m.custom }

// ============================================================
// Signers
// ============================================================

// keySigner signs with the shared test key; the produced transactions are
// real and decode back through types.Transaction
type keySigner struct {
	chainID *big.Int
}

func newKeySigner(chainID uint64) *keySigner {
	return &keySigner{chainID: new(big.Int).SetUint64(chainID)}
}

func (s *keySigner) SignTransaction(_ context.Context, tx *types.Transaction, _ common.Address) (*types.Transaction, error) {
	return types.SignTx(tx, types.NewEIP155Signer(s.chainID), testutil.TestPrivateKey1)
}

// errSigner fails every signing request
type errSigner struct {
	err error
}

func (s *errSigner) SignTransaction(_ context.Context, _ *types.Transaction, _ common.Address) (*types.Transaction, error) {
	return nil, s.err
}

// ============================================================
// Mock HistorySource
// ============================================================

type mockHistory struct {
	mu sync.Mutex

	native    []RemoteTx
	nativeErr error

	tokens    []RemoteTx
	tokensErr error

	calls int
}

func (m *mockHistory) NativeTransactions(_ context.Context, _ HistoryQuery) ([]RemoteTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.nativeErr != nil {
		return nil, m.nativeErr
	}
	return m.native, nil
}

func (m *mockHistory) TokenTransfers(_ context.Context, _ HistoryQuery) ([]RemoteTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokensErr != nil {
		return nil, m.tokensErr
	}
	return m.tokens, nil
}

// ============================================================
// Mock MethodRegistry
// ============================================================

type mockRegistry struct {
	mu      sync.Mutex
	methods map[string]MethodData
	err     error
	calls   int
}

func (m *mockRegistry) LookupSelector(_ context.Context, selector string) (MethodData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return MethodData{}, m.err
	}
	data, ok := m.methods[selector]
	if !ok {
		return MethodData{}, fmt.Errorf("unknown selector %s", selector)
	}
	return data, nil
}

// ============================================================
// Helpers
// ============================================================

// newTestController wires a controller with a working node, mainnet chain
// and the test-key signer
func newTestController(opts ...Option) (*TxController, *mockNode, *mockChain) {
	node := newMockNode()
	chain := newMockChain()
	all := append([]Option{WithSigner(newKeySigner(chain.chainID))}, opts...)
	return New(node, chain, all...), node, chain
}

// transferDraft is a plain value transfer between the test addresses
func transferDraft() Draft {
	to := testutil.TestAddr2
	return Draft{
		From:  testutil.TestPrivateKey1Address,
		To:    &to,
		Value: (*hexutil.Big)(testutil.OneEth),
	}
}
