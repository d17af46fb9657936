package txcontroller

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/criptoarchi/txcontroller/internal/lifecycle"
)

// ApproveTransaction runs the signing pipeline for an unapproved record:
// nonce assignment, chain-id stamping, signing and broadcast. The
// controller's lock is held for the whole span, so two concurrent approvals
// can never be assigned the same nonce.
//
// Every failure inside the pipeline moves the record to failed with the
// causing error attached and fires the finished event; the error is also
// returned to the immediate caller. Missing signer and unresolvable chain id
// are fatal preconditions, not retried.
func (c *TxController) ApproveTransaction(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.TransactionByID(id)
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrTxNotFound, id)
	}
	if rec.Status != StatusUnapproved {
		return fmt.Errorf("%w: %s -> %s (tx %s)", lifecycle.ErrIllegalTransition, rec.Status, StatusApproved, id)
	}

	if err := c.runPipeline(ctx, rec); err != nil {
		c.failTransaction(id, err)
		return err
	}
	return nil
}

// runPipeline executes the approval critical section. Callers hold c.mu and
// translate any returned error into a failed record.
func (c *TxController) runPipeline(ctx context.Context, rec *TxRecord) error {
	draft := rec.Draft.copy()

	// Assign a nonce if the draft doesn't carry one yet. The assigned value
	// is the node's pending count, raised past the highest nonce this
	// controller already handed out for the same sender and chain.
	chainID, chainErr := c.chain.ChainID()
	if draft.Nonce == nil {
		pending, err := c.node.PendingNonceAt(ctx, draft.From)
		if err != nil {
			return fmt.Errorf("couldn't get pending transaction count: %w", err)
		}
		nonce := c.reserveNonce(draft.From.Hex(), chainID, pending)
		draft.Nonce = hexUint64(nonce)
	}
	if chainErr == nil {
		draft.ChainID = hexUint64(chainID)
	}

	rec, err := c.updateDraft(rec.ID, StatusApproved, draft)
	if err != nil {
		return err
	}

	if c.signer == nil {
		return ErrNoSigner
	}
	if chainErr != nil {
		return ErrNoChainID
	}

	unsigned := buildTransaction(draft)

	if c.beforeSign != nil {
		if err := c.beforeSign(rec, unsigned); err != nil {
			return fmt.Errorf("before-sign hook: %w", err)
		}
	}

	signed, err := c.signer.SignTransaction(ctx, unsigned, draft.From)
	if err != nil {
		return errors.Join(ErrSigningFailed, err)
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return errors.Join(ErrSigningFailed, fmt.Errorf("couldn't serialize signed tx: %w", err))
	}

	rec = rec.copy()
	rec.RawSigned = hexutil.Encode(raw)
	if rec, err = c.updateRecord(rec, StatusSigned); err != nil {
		return err
	}

	hash, err := c.node.SendRawTransaction(ctx, raw)
	if err != nil {
		return errors.Join(ErrBroadcastFailed, err)
	}

	rec = rec.copy()
	rec.Hash = hash.Hex()
	if rec, err = c.updateRecord(rec, StatusSubmitted); err != nil {
		return err
	}

	if c.afterBroadcast != nil {
		if err := c.afterBroadcast(rec, hash); err != nil {
			return fmt.Errorf("after-broadcast hook: %w", err)
		}
	}

	logger.WithFields(logger.Fields{
		"tx_id": rec.ID,
		"from":  draft.From.Hex(),
		"nonce": uint64(*draft.Nonce),
		"hash":  rec.Hash,
	}).Info("transaction submitted")

	c.hub.Emit(eventKey(rec.ID, EventFinished), rec)
	return nil
}

// reserveNonce returns max(pending, last assigned + 1) for the sender and
// records the result as the new high-water mark
func (c *TxController) reserveNonce(sender string, chainID uint64, pending uint64) uint64 {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	key := fmt.Sprintf("%s/%d", sender, chainID)
	nonce := pending
	if last, ok := c.lastNonces[key]; ok && last+1 > nonce {
		nonce = last + 1
	}
	c.lastNonces[key] = nonce

	logger.WithFields(logger.Fields{
		"sender":   sender,
		"chain_id": chainID,
		"pending":  pending,
		"nonce":    nonce,
	}).Debug("reserveNonce: nonce assigned")
	return nonce
}

// buildTransaction turns a fully resolved draft into an unsigned transaction
func buildTransaction(draft Draft) *types.Transaction {
	var value *big.Int
	if draft.Value != nil {
		value = (*big.Int)(draft.Value)
	} else {
		value = new(big.Int)
	}
	var gasPrice *big.Int
	if draft.GasPrice != nil {
		gasPrice = (*big.Int)(draft.GasPrice)
	} else {
		gasPrice = new(big.Int)
	}
	var gas uint64
	if draft.Gas != nil {
		gas = uint64(*draft.Gas)
	}
	var nonce uint64
	if draft.Nonce != nil {
		nonce = uint64(*draft.Nonce)
	}

	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       draft.To,
		Value:    value,
		Data:     draft.Data,
	})
}

// updateDraft transitions the record and swaps in a new draft in one
// published update
func (c *TxController) updateDraft(id string, to Status, draft Draft) (*TxRecord, error) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	rec := c.lookupLocked(id)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, id)
	}
	if !lifecycle.Legal(rec.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s (tx %s)", lifecycle.ErrIllegalTransition, rec.Status, to, id)
	}
	next := rec.copy()
	next.Status = to
	next.Draft = draft.copy()
	c.replaceLocked(next)
	return next, nil
}

// updateRecord validates the transition for an already-copied record and
// publishes it
func (c *TxController) updateRecord(next *TxRecord, to Status) (*TxRecord, error) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	current := c.lookupLocked(next.ID)
	if current == nil {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, next.ID)
	}
	if !lifecycle.Legal(current.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s (tx %s)", lifecycle.ErrIllegalTransition, current.Status, to, next.ID)
	}
	next.Status = to
	c.replaceLocked(next)
	return next, nil
}
