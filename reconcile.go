package txcontroller

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// remoteTxNamespace seeds the deterministic ids of reconciled records: the
// same remote entry always maps to the same record id, which is what makes
// reconciliation idempotent.
var remoteTxNamespace = uuid.MustParse("9f4c2ab1-7e63-4dd0-bb26-81c3a1f0edaf")

// FetchAll reconciles the local store with the remote history of the given
// address: native-asset transactions and token transfers are fetched,
// normalized into local record shape, deduplicated, and merged against the
// corresponding local subsets. It returns the highest block number seen
// among transfers addressed to the queried address, which callers use to
// bound the next query.
//
// The store is republished only when the merge actually added or removed
// records. Remote failures trip the history circuit breaker; while it is
// open FetchAll fails fast with ErrHistoryUnavailable.
func (c *TxController) FetchAll(ctx context.Context, address common.Address, fromBlock uint64, apiKey string) (uint64, error) {
	if c.history == nil {
		return 0, fmt.Errorf("no history source configured")
	}
	if !c.historyBreaker.Allow() {
		return 0, ErrHistoryUnavailable
	}

	q := HistoryQuery{Address: address, FromBlock: fromBlock, APIKey: apiKey}

	var native, tokens []RemoteTx
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		native, err = c.history.NativeTransactions(gctx, q)
		return err
	})
	g.Go(func() error {
		var err error
		tokens, err = c.history.TokenTransfers(gctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		c.historyBreaker.RecordFailure()
		logger.WithFields(logger.Fields{
			"address": address.Hex(),
			"error":   err,
		}).Warn("FetchAll: history fetch failed")
		return 0, fmt.Errorf("couldn't fetch remote history: %w", err)
	}
	c.historyBreaker.RecordSuccess()

	chain := c.currentChainContext()
	remoteNative := c.normalizeRemoteList(native, address, chain, false)
	remoteTokens := c.normalizeRemoteList(tokens, address, chain, true)

	highest := highestIncomingBlock(address, native, tokens)

	// Classify endpoints before taking the store lock so code lookups never
	// block store mutations; the merge pass below reads only the cache.
	c.prewarmContractCache(ctx, remoteNative)
	c.prewarmContractCache(ctx, remoteTokens)
	c.prewarmContractCache(ctx, c.Transactions())

	c.storeMu.Lock()
	defer c.storeMu.Unlock()

	s := c.state.State()
	var localNative, localTokens, others []*TxRecord
	for _, rec := range s.Transactions {
		switch {
		case rec.isTokenTransfer():
			localTokens = append(localTokens, rec)
		case rec.Chain == chain || chainMatches(rec.Chain, chain.ChainID, chain.NetworkID):
			localNative = append(localNative, rec)
		default:
			others = append(others, rec)
		}
	}

	mergedNative, changedNative := mergeTransactionLists(localNative, remoteNative, remoteEntryMatches, remoteWinsPrecedence)
	mergedTokens, changedTokens := mergeTransactionLists(localTokens, remoteTokens, remoteEntryMatches, remoteWinsPrecedence)

	if !changedNative && !changedTokens {
		logger.WithFields(logger.Fields{
			"address":       address.Hex(),
			"highest_block": highest,
		}).Debug("FetchAll: store already consistent with remote history")
		return highest, nil
	}

	merged := make([]*TxRecord, 0, len(others)+len(mergedNative)+len(mergedTokens))
	merged = append(merged, others...)
	merged = append(merged, mergedNative...)
	merged = append(merged, mergedTokens...)

	c.annotateContractFlags(merged)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Time < merged[j].Time
	})

	s.Transactions = merged
	c.state.Replace(s)

	logger.WithFields(logger.Fields{
		"address":       address.Hex(),
		"records":       len(merged),
		"highest_block": highest,
	}).Info("FetchAll: store reconciled with remote history")
	return highest, nil
}

// normalizeRemoteList converts remote entries into local record shape,
// deduplicating by transaction hash (first occurrence wins)
func (c *TxController) normalizeRemoteList(entries []RemoteTx, address common.Address, chain ChainContext, token bool) []*TxRecord {
	seen := make(map[common.Hash]bool, len(entries))
	out := make([]*TxRecord, 0, len(entries))
	for _, e := range entries {
		if seen[e.Hash] {
			continue
		}
		seen[e.Hash] = true
		out = append(out, normalizeRemoteTx(e, address, chain, token))
	}
	return out
}

// normalizeRemoteTx maps one history entry onto the local record shape. The
// id is derived deterministically from the entry's hash and kind.
func normalizeRemoteTx(e RemoteTx, address common.Address, chain ChainContext, token bool) *TxRecord {
	kind := "native"
	if token {
		kind = "token"
	}
	id := uuid.NewSHA1(remoteTxNamespace, append(e.Hash.Bytes(), kind...)).String()

	to := e.To
	nonce := e.Nonce
	value := new(big.Int)
	if e.Value != nil {
		value.Set(e.Value)
	}
	gasPrice := new(big.Int)
	if e.GasPrice != nil {
		gasPrice.Set(e.GasPrice)
	}

	rec := &TxRecord{
		ID:     id,
		Chain:  chain,
		Time:   e.TimeStamp * 1000,
		Hash:   e.Hash.Hex(),
		Origin: "remote-history",
		Draft: Draft{
			From:     e.From,
			To:       &to,
			Value:    (*hexutil.Big)(value),
			Gas:      hexUint64(e.Gas),
			GasPrice: (*hexutil.Big)(gasPrice),
			Nonce:    hexUint64(nonce),
		},
		BlockNumber:   fmt.Sprintf("%d", e.BlockNumber),
		Confirmations: e.Confirmations,
	}

	switch {
	case e.IsError:
		rec.Status = StatusFailed
		rec.Err = &RecordError{Message: "transaction failed on-chain"}
	case e.Confirmations >= ConfirmedThreshold:
		rec.Status = StatusConfirmed
	case e.From == address:
		rec.Status = StatusSubmitted
	default:
		rec.Status = StatusReceiving
	}

	if token {
		info := &TransferInfo{
			Decimals: e.TokenDecimals,
			Symbol:   e.TokenSymbol,
		}
		if e.ContractAddress != nil {
			info.ContractAddress = *e.ContractAddress
		}
		rec.TransferInfo = info
	}
	return rec
}

// remoteEntryMatches pairs a local record with a remote one: same sender and
// nonce, or failing that, equal hashes
func remoteEntryMatches(local, remote *TxRecord) bool {
	if local.Draft.Nonce != nil && remote.Draft.Nonce != nil &&
		local.Draft.From == remote.Draft.From &&
		*local.Draft.Nonce == *remote.Draft.Nonce {
		return true
	}
	return local.Hash != "" && local.Hash == remote.Hash
}

// remoteWinsPrecedence decides which side of a matched pair survives: the
// remote entry wins only when it is confirmed and the local record is not
func remoteWinsPrecedence(local, remote *TxRecord) bool {
	return local.Status != StatusConfirmed && remote.Status == StatusConfirmed
}

// mergeTransactionLists merges remote entries into a local list. Matched
// pairs keep exactly one side per the precedence rule; unmatched remote
// entries are added. The reported change flag is true when any record was
// added or dropped.
func mergeTransactionLists(
	local, remote []*TxRecord,
	matches func(local, remote *TxRecord) bool,
	remoteWins func(local, remote *TxRecord) bool,
) ([]*TxRecord, bool) {
	dropRemote := make(map[int]bool)
	changed := false

	merged := make([]*TxRecord, 0, len(local)+len(remote))
	for _, l := range local {
		kept := l
		for i, r := range remote {
			if dropRemote[i] || !matches(l, r) {
				continue
			}
			if remoteWins(l, r) {
				kept = r
				changed = true
			}
			dropRemote[i] = true
			break
		}
		merged = append(merged, kept)
	}
	for i, r := range remote {
		if dropRemote[i] {
			continue
		}
		merged = append(merged, r)
		changed = true
	}
	return merged, changed
}

// highestIncomingBlock scans both raw remote lists for the highest block
// number among transfers addressed to the queried address
func highestIncomingBlock(address common.Address, lists ...[]RemoteTx) uint64 {
	var highest uint64
	for _, list := range lists {
		for _, e := range list {
			if e.To == address && e.BlockNumber > highest {
				highest = e.BlockNumber
			}
		}
	}
	return highest
}

// prewarmContractCache resolves the contract classification of every
// endpoint the records reference that isn't flagged yet. Lookup failures
// leave the cache cold for that address; a later run retries.
func (c *TxController) prewarmContractCache(ctx context.Context, records []*TxRecord) {
	for _, rec := range records {
		if rec.FromSmartContract == nil {
			_, _ = c.classifyAddress(ctx, rec.Draft.From)
		}
		if rec.ToSmartContract == nil && rec.Draft.To != nil {
			_, _ = c.classifyAddress(ctx, *rec.Draft.To)
		}
	}
}

// annotateContractFlags fills toSmartContract/fromSmartContract on records
// that don't carry them yet, from the cache alone. Callers hold storeMu, so
// no network lookups happen here; unresolved addresses stay unset for a
// later pass.
func (c *TxController) annotateContractFlags(records []*TxRecord) {
	for _, rec := range records {
		if rec.FromSmartContract == nil {
			if isContract, ok := c.cachedContractFlag(rec.Draft.From); ok {
				rec.FromSmartContract = &isContract
			}
		}
		if rec.ToSmartContract == nil && rec.Draft.To != nil {
			if isContract, ok := c.cachedContractFlag(*rec.Draft.To); ok {
				rec.ToSmartContract = &isContract
			}
		}
	}
}

// cachedContractFlag reports the cached classification for the address; the
// zero address always counts as a contract
func (c *TxController) cachedContractFlag(addr common.Address) (bool, bool) {
	if addr == (common.Address{}) {
		return true, true
	}
	c.contractMu.Lock()
	defer c.contractMu.Unlock()
	v, ok := c.contractCache[addr]
	return v, ok
}

// classifyAddress reports whether the address has deployed code, caching the
// answer once computed
func (c *TxController) classifyAddress(ctx context.Context, addr common.Address) (bool, error) {
	if addr == (common.Address{}) {
		return true, nil
	}

	c.contractMu.Lock()
	cached, ok := c.contractCache[addr]
	c.contractMu.Unlock()
	if ok {
		return cached, nil
	}

	code, err := c.node.CodeAt(ctx, addr)
	if err != nil {
		return false, err
	}
	isContract := len(code) > 0

	c.contractMu.Lock()
	c.contractCache[addr] = isContract
	c.contractMu.Unlock()
	return isContract, nil
}
