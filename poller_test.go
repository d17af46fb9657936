package txcontroller

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/criptoarchi/txcontroller/testutil"
)

func TestCheckSubmittedTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("included transaction moves to confirmed", func(t *testing.T) {
		c, node, _ := newTestController()
		rec := submittedRecord(t, c)

		confirmed := c.ConfirmedEvents(rec.ID)
		node.markIncluded(common.HexToHash(rec.Hash), 16)

		c.CheckSubmittedTransactions(ctx)

		stored := c.TransactionByID(rec.ID)
		require.NotNil(t, stored)
		assert.Equal(t, StatusConfirmed, stored.Status)
		assert.Equal(t, "16", stored.BlockNumber)

		select {
		case got := <-confirmed:
			assert.Equal(t, rec.ID, got.ID)
		default:
			t.Fatal("expected a confirmed event")
		}
	})

	t.Run("pending transaction is left alone", func(t *testing.T) {
		c, _, _ := newTestController()
		rec := submittedRecord(t, c)

		c.CheckSubmittedTransactions(ctx)

		assert.Equal(t, StatusSubmitted, c.TransactionByID(rec.ID).Status)
	})

	t.Run("lookup errors are swallowed until the next tick", func(t *testing.T) {
		c, node, _ := newTestController()
		rec := submittedRecord(t, c)
		node.blockErr = assert.AnError

		c.CheckSubmittedTransactions(ctx)
		assert.Equal(t, StatusSubmitted, c.TransactionByID(rec.ID).Status)

		node.mu.Lock()
		node.blockErr = nil
		node.mu.Unlock()
		node.markIncluded(common.HexToHash(rec.Hash), 42)

		c.CheckSubmittedTransactions(ctx)
		assert.Equal(t, StatusConfirmed, c.TransactionByID(rec.ID).Status)
	})

	t.Run("records from other chains are skipped", func(t *testing.T) {
		c, node, _ := newTestController()

		hash := common.HexToHash("0xdeadbeef")
		foreign := &TxRecord{
			ID:     "foreign",
			Status: StatusSubmitted,
			Chain:  ChainContext{ChainID: "56", NetworkID: "56"},
			Draft:  Draft{From: testutil.TestAddr1},
			Hash:   hash.Hex(),
		}
		c.addTx(foreign)
		node.markIncluded(hash, 7)

		c.CheckSubmittedTransactions(ctx)

		assert.Equal(t, StatusSubmitted, c.TransactionByID("foreign").Status)
	})

	t.Run("legacy records match on network id alone", func(t *testing.T) {
		c, node, _ := newTestController()

		hash := common.HexToHash("0xabcd")
		legacy := &TxRecord{
			ID:     "legacy",
			Status: StatusSubmitted,
			Chain:  ChainContext{NetworkID: "1"},
			Draft:  Draft{From: testutil.TestAddr1},
			Hash:   hash.Hex(),
		}
		c.addTx(legacy)
		node.markIncluded(hash, 9)

		c.CheckSubmittedTransactions(ctx)

		assert.Equal(t, StatusConfirmed, c.TransactionByID("legacy").Status)
	})
}

func TestChainMatches(t *testing.T) {
	t.Run("chain id takes precedence when stamped", func(t *testing.T) {
		rec := ChainContext{ChainID: "1", NetworkID: "99"}
		assert.True(t, chainMatches(rec, "1", "1"))
		assert.False(t, chainMatches(rec, "56", "99"))
	})

	t.Run("network id is the fallback for legacy records", func(t *testing.T) {
		rec := ChainContext{NetworkID: "1"}
		assert.True(t, chainMatches(rec, "1", "1"))
		assert.False(t, chainMatches(rec, "1", "3"))
	})

	t.Run("stamped chain id never matches an empty active id", func(t *testing.T) {
		rec := ChainContext{ChainID: "1", NetworkID: "1"}
		assert.False(t, chainMatches(rec, "", "1"))
	})
}

func TestPollingLoop(t *testing.T) {
	c, node, _ := newTestController(WithPollInterval(10 * time.Millisecond))
	rec := submittedRecord(t, c)

	confirmed := c.ConfirmedEvents(rec.ID)
	node.markIncluded(common.HexToHash(rec.Hash), 100)

	c.StartPolling()
	defer c.StopPolling()

	select {
	case got := <-confirmed:
		assert.Equal(t, StatusConfirmed, got.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("poller never confirmed the transaction")
	}
}

func TestStartStopPolling(t *testing.T) {
	c, _, _ := newTestController(WithPollInterval(time.Hour))

	c.StartPolling()
	c.StartPolling() // idempotent
	c.StopPolling()
	c.StopPolling() // idempotent

	// Interval changes below the floor are ignored.
	c.SetPollInterval(0)
	c.SetPollInterval(-time.Second)
}
