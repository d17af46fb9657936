package txcontroller

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// BeforeSignHook runs after the draft is finalized and the raw transaction
// is built, immediately before signing. Returning an error aborts the
// approval pipeline and fails the record.
type BeforeSignHook func(rec *TxRecord, tx *types.Transaction) error

// AfterBroadcastHook runs once the signed transaction has been accepted by
// the node. Returning an error fails the record even though the transaction
// is already in flight, so hooks should only reject when the caller must
// not treat the submission as successful.
type AfterBroadcastHook func(rec *TxRecord, hash common.Hash) error
