package txcontroller

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
)

// Fee-bump operations: replace a pending transaction with one of the same
// nonce and a higher gas price, either to cancel it (zero-value self
// transfer) or to accelerate it (same payload, bumped fee).
//
// Both run outside the approval pipeline's lock: they reuse a nonce that was
// already assigned, so the nonce-reservation race the lock exists for cannot
// occur. Concurrent cancel+speed-up on the same record is serialized only by
// the store swap (last publish wins); callers that need stricter exclusion
// must provide it themselves.

// StopTransaction cancels a pending transaction by broadcasting a zero-value
// self-transfer with the original nonce and gasPrice x1.5. The original
// record is removed from the store; the returned replacement is inserted
// with a fresh id and status cancelSubmitted.
func (c *TxController) StopTransaction(ctx context.Context, id string) (*TxRecord, error) {
	return c.replaceTransaction(ctx, id, replaceCancel)
}

// SpeedUpTransaction rebroadcasts a pending transaction's payload with
// gasPrice x1.1 so it gets picked up faster. The original record is removed;
// the replacement is inserted with a fresh id and status
// accelerateSubmitted.
func (c *TxController) SpeedUpTransaction(ctx context.Context, id string) (*TxRecord, error) {
	return c.replaceTransaction(ctx, id, replaceSpeedUp)
}

type replaceKind int

const (
	replaceCancel replaceKind = iota
	replaceSpeedUp
)

func (c *TxController) replaceTransaction(ctx context.Context, id string, kind replaceKind) (*TxRecord, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}

	orig := c.TransactionByID(id)
	if orig == nil {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, id)
	}
	if orig.Draft.Nonce == nil || orig.Draft.GasPrice == nil {
		return nil, fmt.Errorf("%w: tx %s has no assigned nonce or gas price", ErrInvalidDraft, id)
	}

	origPrice := (*big.Int)(orig.Draft.GasPrice)
	draft := orig.Draft.copy()

	var bumped *big.Int
	var status Status
	switch kind {
	case replaceCancel:
		bumped = bumpGasPrice(origPrice, cancelBumpNum, cancelBumpDen)
		status = StatusCancelSubmitted
		// A cancellation is a zero-value transfer back to the sender with
		// no payload; only the nonce needs to collide with the original.
		from := draft.From
		draft.To = &from
		draft.Value = (*hexutil.Big)(new(big.Int))
		draft.Data = nil
		draft.Gas = hexUint64(IntrinsicTxGas)
	case replaceSpeedUp:
		bumped = bumpGasPrice(origPrice, speedUpBumpNum, speedUpBumpDen)
		status = StatusAccelerateSubmitted
	}
	draft.GasPrice = (*hexutil.Big)(bumped)

	signed, err := c.signer.SignTransaction(ctx, buildTransaction(draft), draft.From)
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, errors.Join(ErrSigningFailed, fmt.Errorf("couldn't serialize signed tx: %w", err))
	}
	hash, err := c.node.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, errors.Join(ErrBroadcastFailed, err)
	}

	replacement := &TxRecord{
		ID:        uuid.NewString(),
		Status:    status,
		Chain:     orig.Chain,
		Draft:     draft,
		Time:      time.Now().UnixMilli(),
		Origin:    orig.Origin,
		Hash:      hash.Hex(),
		RawSigned: hexutil.Encode(raw),
	}

	c.swapTx(orig.ID, replacement)

	// The original id is retired; terminal events let anyone awaiting the
	// original submission observe the replacement.
	c.hub.Emit(eventKey(orig.ID, EventFinished), replacement)
	if kind == replaceSpeedUp {
		c.hub.Emit(eventKey(orig.ID, EventSpeedUp), replacement)
	}

	logger.WithFields(logger.Fields{
		"orig_id":        orig.ID,
		"replacement_id": replacement.ID,
		"nonce":          uint64(*draft.Nonce),
		"old_gas_price":  origPrice.String(),
		"new_gas_price":  bumped.String(),
		"status":         string(status),
		"hash":           replacement.Hash,
	}).Info("fee-bump replacement broadcast")

	return replacement, nil
}

// signedReplacementTx is a convenience for tests and callers that need the
// decoded replacement transaction
func signedReplacementTx(rec *TxRecord) (*types.Transaction, error) {
	raw, err := hexutil.Decode(rec.RawSigned)
	if err != nil {
		return nil, err
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	return tx, nil
}
