package txcontroller

import (
	"context"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
)

// Confirmation poller: a self-rescheduling background task that advances
// submitted records to confirmed once the network reports block inclusion.
// Query failures within a tick are logged and swallowed so a transient RPC
// error never halts polling; the next tick is always scheduled.

// StartPolling begins the confirmation loop. The first tick fires after the
// configured interval. Calling StartPolling while already polling is a
// no-op.
func (c *TxController) StartPolling() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	if c.polling {
		return
	}
	c.polling = true
	c.scheduleLocked()
}

// StopPolling cancels the pending tick and stops the loop
func (c *TxController) StopPolling() {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()
	c.polling = false
	if c.pollTimer != nil {
		c.pollTimer.Stop()
		c.pollTimer = nil
	}
}

// SetPollInterval changes the polling interval; the new value takes effect
// on the next scheduling cycle
func (c *TxController) SetPollInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.pollMu.Lock()
	c.pollInterval = d
	c.pollMu.Unlock()
}

// scheduleLocked arms the next tick. Callers hold pollMu.
func (c *TxController) scheduleLocked() {
	interval := c.pollInterval
	c.pollTimer = time.AfterFunc(interval, func() {
		c.CheckSubmittedTransactions(context.Background())

		c.pollMu.Lock()
		defer c.pollMu.Unlock()
		if c.polling {
			c.scheduleLocked()
		}
	})
}

// CheckSubmittedTransactions performs one poll tick: every submitted record
// scoped to the currently active chain is looked up by hash, and records the
// network reports as included move to confirmed, firing their confirmed
// event. Errors are swallowed; they only delay convergence.
func (c *TxController) CheckSubmittedTransactions(ctx context.Context) {
	active := c.currentChainContext()

	for _, rec := range c.Transactions() {
		if rec.Status != StatusSubmitted || rec.Hash == "" {
			continue
		}
		if !chainMatches(rec.Chain, active.ChainID, active.NetworkID) {
			continue
		}

		block, err := c.node.TransactionBlock(ctx, common.HexToHash(rec.Hash))
		if err != nil {
			logger.WithFields(logger.Fields{
				"tx_id": rec.ID,
				"hash":  rec.Hash,
				"error": err,
			}).Debug("poll: transaction lookup failed, will retry next tick")
			continue
		}
		if block == nil {
			continue
		}

		confirmed, err := c.confirmTransaction(rec.ID, block.String())
		if err != nil {
			logger.WithFields(logger.Fields{
				"tx_id": rec.ID,
				"error": err,
			}).Debug("poll: record changed underneath, skipping")
			continue
		}

		logger.WithFields(logger.Fields{
			"tx_id": rec.ID,
			"hash":  rec.Hash,
			"block": block.String(),
		}).Info("transaction confirmed")
		c.hub.Emit(eventKey(rec.ID, EventConfirmed), confirmed)
	}
}

// confirmTransaction moves a submitted record to confirmed with its
// inclusion block recorded
func (c *TxController) confirmTransaction(id, blockNumber string) (*TxRecord, error) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	rec := c.lookupLocked(id)
	if rec == nil || rec.Status != StatusSubmitted {
		return nil, ErrTxNotFound
	}
	next := rec.copy()
	next.Status = StatusConfirmed
	next.BlockNumber = blockNumber
	c.replaceLocked(next)
	return next, nil
}

// chainMatches implements the dual-key chain check: a record belongs to the
// active chain when its chain id matches. Legacy records that never had a
// chain id stamped fall back to the network id.
func chainMatches(rec ChainContext, chainID, networkID string) bool {
	if rec.ChainID != "" {
		return chainID != "" && rec.ChainID == chainID
	}
	return rec.NetworkID == networkID
}
