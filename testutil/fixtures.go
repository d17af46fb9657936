package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Deterministic addresses used as draft endpoints across tests. TestAddr1
// doubles as a generic sender, TestAddr2 as the usual destination and
// TestAddr3 as a third party (token contract, foreign sender).
var (
	TestAddr1 = common.HexToAddress("0x7d5f4e9a11b3c4470bd9ce2a29a1b6dbefe26a41")
	TestAddr2 = common.HexToAddress("0x9e2b6c11f3a8430aa12df4a8cb4f0e96cd81b0f3")
	TestAddr3 = common.HexToAddress("0xc4a5e7b20d1f49c89ab3f05647d2e3210d9bbf62")
)

// Signing key shared by tests that exercise the real pipeline. Transactions
// signed with it decode and recover to TestPrivateKey1Address.
var (
	// TestPrivateKeyHex is the raw scalar of the shared signing key
	TestPrivateKeyHex = "45a915e4d060149eb4365960e6a7a45f334393093061116b197e3240065ff2d8"
	// TestPrivateKey1 is the parsed ECDSA key
	TestPrivateKey1, _ = crypto.HexToECDSA(TestPrivateKeyHex)
	// TestPrivateKey1Address is the sender address the key controls
	TestPrivateKey1Address = crypto.PubkeyToAddress(TestPrivateKey1.PublicKey)
)

// Wei amounts for draft values and gas prices
var (
	// OneEth is 10^18 wei
	OneEth = big.NewInt(1_000_000_000_000_000_000)
	// TwoGwei is a typical suggested gas price
	TwoGwei = big.NewInt(2_000_000_000)
	// TwentyGwei is a typical caller-pinned gas price
	TwentyGwei = big.NewInt(20_000_000_000)
)
