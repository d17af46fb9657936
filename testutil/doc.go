// Package testutil provides shared fixtures and builders for txcontroller
// tests.
//
// # Important Note on Import Cycles
//
// Mock implementations of the controller's dependency interfaces (mockNode,
// mockChain, mockSigner, ...) live in the txcontroller package's own test
// files (testing_mocks_test.go) to avoid import cycles. This package only
// carries values and builders that don't depend on txcontroller types.
//
// # Test Fixtures
//
//   - TestAddr1, TestAddr2, TestAddr3: common test addresses
//   - TestPrivateKey1, TestPrivateKeyHex, TestPrivateKey1Address: a usable
//     signing key and its derived address
//   - OneEth, TwentyGwei, TwoGwei: common wei amounts
//
// # Builders
//
//   - NewLegacyTx: build a raw legacy transaction
//   - SignedLegacyTx: build and sign one with TestPrivateKey1
package testutil
