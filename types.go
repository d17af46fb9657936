package txcontroller

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/params"

	"github.com/criptoarchi/txcontroller/internal/lifecycle"
)

// Status of a transaction record, re-exported from the lifecycle package
type Status = lifecycle.Status

const (
	StatusUnapproved          = lifecycle.StatusUnapproved
	StatusApproved            = lifecycle.StatusApproved
	StatusSigned              = lifecycle.StatusSigned
	StatusSubmitted           = lifecycle.StatusSubmitted
	StatusConfirmed           = lifecycle.StatusConfirmed
	StatusRejected            = lifecycle.StatusRejected
	StatusCancelled           = lifecycle.StatusCancelled
	StatusFailed              = lifecycle.StatusFailed
	StatusCancelSubmitted     = lifecycle.StatusCancelSubmitted
	StatusAccelerateSubmitted = lifecycle.StatusAccelerateSubmitted
	StatusReceiving           = lifecycle.StatusReceiving
)

const (
	// DefaultPollInterval is how often submitted transactions are checked
	// for block inclusion
	DefaultPollInterval = 15 * time.Second

	// DefaultIdempotencyTTL is how long a draft idempotency key is remembered
	DefaultIdempotencyTTL = 10 * time.Minute

	// IntrinsicTxGas is the fixed cost of a plain value transfer
	IntrinsicTxGas = params.TxGas

	// ConfirmedThreshold is the confirmation count at which a reconciled
	// remote transaction is considered confirmed
	ConfirmedThreshold = 2
)

// Gas-price bump ratios, applied as floor(price*num/den)
const (
	cancelBumpNum  = 3
	cancelBumpDen  = 2 // x1.5 for cancellations
	speedUpBumpNum = 11
	speedUpBumpDen = 10 // x1.1 for speed-ups
)

// ChainContext scopes a record to the network it was created on. Legacy
// records may carry only a network id; the poller honours both keys.
type ChainContext struct {
	ChainID   string `json:"chainId,omitempty"`
	NetworkID string `json:"networkId,omitempty"`
}

// Draft holds the underlying transaction fields of a record. Gas, gas price
// and nonce stay nil until filled by estimation and approval.
type Draft struct {
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Nonce    *hexutil.Uint64 `json:"nonce,omitempty"`
	ChainID  *hexutil.Uint64 `json:"chainId,omitempty"`
}

// copy returns a value copy of the draft with no shared pointers
func (d Draft) copy() Draft {
	out := d
	if d.To != nil {
		to := *d.To
		out.To = &to
	}
	if d.Value != nil {
		out.Value = (*hexutil.Big)(new(big.Int).Set((*big.Int)(d.Value)))
	}
	if d.GasPrice != nil {
		out.GasPrice = (*hexutil.Big)(new(big.Int).Set((*big.Int)(d.GasPrice)))
	}
	if d.Data != nil {
		out.Data = append(hexutil.Bytes(nil), d.Data...)
	}
	if d.Gas != nil {
		g := *d.Gas
		out.Gas = &g
	}
	if d.Nonce != nil {
		n := *d.Nonce
		out.Nonce = &n
	}
	if d.ChainID != nil {
		c := *d.ChainID
		out.ChainID = &c
	}
	return out
}

// RecordError is the captured failure cause of a failed record.
// It is present exactly when the record status is failed.
type RecordError struct {
	Message string `json:"message"`
}

// TransferInfo is token-transfer metadata for records that represent a token
// movement rather than a native-asset transfer.
type TransferInfo struct {
	ContractAddress common.Address `json:"contractAddress"`
	Decimals        uint8          `json:"decimals"`
	Symbol          string         `json:"symbol"`
}

// TxRecord is the central entity of the controller: one tracked transaction
// across its whole lifecycle. Records are never mutated in place; every
// mutation replaces the record (and the containing list) wholesale.
type TxRecord struct {
	ID     string       `json:"id"`
	Status Status       `json:"status"`
	Chain  ChainContext `json:"chainContext"`
	Draft  Draft        `json:"draft"`

	// Provenance, set at creation and never mutated
	Time              int64  `json:"time"`
	Origin            string `json:"origin,omitempty"`
	DeviceConfirmedOn string `json:"deviceConfirmedOn,omitempty"`

	// Populated after broadcast / inclusion
	Hash          string `json:"hash,omitempty"`
	BlockNumber   string `json:"blockNumber,omitempty"`
	Confirmations uint64 `json:"confirmations,omitempty"`

	// RawSigned is the serialized signed transaction, set once at signing
	RawSigned string `json:"rawTransaction,omitempty"`

	// Err is set exactly when Status is failed
	Err *RecordError `json:"error,omitempty"`

	// TransferInfo is set for token-transfer records from reconciliation
	TransferInfo *TransferInfo `json:"transferInformation,omitempty"`

	// Smart-contract classification of the endpoints, filled lazily during
	// reconciliation
	ToSmartContract   *bool `json:"toSmartContract,omitempty"`
	FromSmartContract *bool `json:"fromSmartContract,omitempty"`
}

// copy returns a deep copy of the record so callers can mutate it without
// touching the published state
func (r *TxRecord) copy() *TxRecord {
	out := *r
	out.Draft = r.Draft.copy()
	if r.Err != nil {
		e := *r.Err
		out.Err = &e
	}
	if r.TransferInfo != nil {
		ti := *r.TransferInfo
		out.TransferInfo = &ti
	}
	if r.ToSmartContract != nil {
		b := *r.ToSmartContract
		out.ToSmartContract = &b
	}
	if r.FromSmartContract != nil {
		b := *r.FromSmartContract
		out.FromSmartContract = &b
	}
	return &out
}

// isTokenTransfer reports whether the record represents a token movement
func (r *TxRecord) isTokenTransfer() bool {
	return r.TransferInfo != nil
}

// RemoteTx is one entry of a block-explorer history feed, in the shape both
// the native-transaction and token-transfer lists share.
type RemoteTx struct {
	BlockNumber   uint64
	TimeStamp     int64
	Hash          common.Hash
	Nonce         uint64
	From          common.Address
	To            common.Address
	Value         *big.Int
	Gas           uint64
	GasPrice      *big.Int
	IsError       bool
	Confirmations uint64

	// Token-transfer fields, nil/zero for native transactions
	ContractAddress *common.Address
	TokenDecimals   uint8
	TokenSymbol     string
}

// MethodData is the decoded signature of a 4-byte call selector
type MethodData struct {
	Name   string   `json:"name"`
	Params []string `json:"params,omitempty"`
}
