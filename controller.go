package txcontroller

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/criptoarchi/txcontroller/internal/breaker"
	"github.com/criptoarchi/txcontroller/internal/hub"
	"github.com/criptoarchi/txcontroller/internal/lifecycle"
	"github.com/criptoarchi/txcontroller/internal/obs"
)

// Event keys exposed by the controller. Per-record keys are formed as
// "<id>:<suffix>".
const (
	EventFinished  = "finished"
	EventConfirmed = "confirmed"
	EventSpeedUp   = "speedup"

	// EventUnapproved is broadcast on every new draft
	EventUnapproved = "unapprovedTransaction"
)

// TxController owns every tracked transaction from creation through
// broadcast, confirmation, replacement and reconciliation with remote chain
// history.
//
// One mutex (mu) serializes the approval/signing pipeline and method-data
// cache writes; it is held across the entire nonce-fetch-through-broadcast
// span so two concurrent approvals can never acquire the same nonce. The
// confirmation poller runs outside that lock: it only moves records from
// submitted to confirmed, a transition the pipeline never touches.
type TxController struct {
	// mu is the single cross-operation lock (pipeline + method cache)
	mu sync.Mutex

	// storeMu guards read-modify-replace cycles on the published state
	storeMu sync.Mutex

	node    NodeClient
	chain   ChainProvider
	signer  Signer
	history HistorySource
	methods MethodRegistry
	state   StateContainer

	hub            *hub.Hub[*TxRecord]
	historyBreaker *breaker.Breaker
	idem           *idemStore

	beforeSign     BeforeSignHook
	afterBroadcast AfterBroadcastHook

	// nonce high-water marks per "address/chainID", so nonces assigned in
	// one session stay strictly increasing even when the node's pending
	// count lags behind our own broadcasts
	nonceMu    sync.Mutex
	lastNonces map[string]uint64

	// contract-code classification cache used by reconciliation
	contractMu    sync.Mutex
	contractCache map[common.Address]bool

	// poller state
	pollMu       sync.Mutex
	pollInterval time.Duration
	pollTimer    *time.Timer
	polling      bool
}

// Option configures a TxController
type Option func(*TxController)

// WithSigner sets the signing capability. Without one, every approval fails
// with ErrNoSigner.
func WithSigner(s Signer) Option {
	return func(c *TxController) { c.signer = s }
}

// WithHistorySource sets the remote transaction-history source used by
// reconciliation
func WithHistorySource(h HistorySource) Option {
	return func(c *TxController) { c.history = h }
}

// WithMethodRegistry sets the selector-signature lookup service
func WithMethodRegistry(m MethodRegistry) Option {
	return func(c *TxController) { c.methods = m }
}

// WithStateContainer replaces the default in-memory state container
func WithStateContainer(s StateContainer) Option {
	return func(c *TxController) { c.state = s }
}

// WithPollInterval sets the confirmation-poll interval
func WithPollInterval(d time.Duration) Option {
	return func(c *TxController) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithIdempotencyTTL sets how long draft idempotency keys are remembered
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(c *TxController) { c.idem = newIdemStore(ttl) }
}

// WithBeforeSignHook sets a hook invoked inside the pipeline after the final
// transaction parameters are built and before signing
func WithBeforeSignHook(h BeforeSignHook) Option {
	return func(c *TxController) { c.beforeSign = h }
}

// WithAfterBroadcastHook sets a hook invoked inside the pipeline right after
// a successful broadcast
func WithAfterBroadcastHook(h AfterBroadcastHook) Option {
	return func(c *TxController) { c.afterBroadcast = h }
}

// WithHistoryBreaker tunes the circuit breaker guarding the history API
func WithHistoryBreaker(failureThreshold int, cooldown time.Duration) Option {
	return func(c *TxController) { c.historyBreaker = breaker.New(failureThreshold, cooldown) }
}

// New creates a controller bound to the given node and chain provider
func New(node NodeClient, chain ChainProvider, opts ...Option) *TxController {
	c := &TxController{
		node:           node,
		chain:          chain,
		hub:            hub.New[*TxRecord](),
		historyBreaker: breaker.New(0, 0),
		idem:           newIdemStore(DefaultIdempotencyTTL),
		lastNonces:     make(map[string]uint64),
		contractCache:  make(map[common.Address]bool),
		pollInterval:   DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.state == nil {
		c.state = obs.New(State{MethodData: map[string]MethodData{}})
	}
	return c
}

// SubscribeState registers a keyed listener on the published state;
// re-subscribing the same key replaces the listener
func (c *TxController) SubscribeState(key string, fn func(State)) {
	c.state.Subscribe(key, fn)
}

// UnsubscribeState removes a state listener; unknown keys are a no-op
func (c *TxController) UnsubscribeState(key string) {
	c.state.Unsubscribe(key)
}

// UnapprovedDrafts returns a channel receiving every new draft added to the
// controller. The channel is registered under subKey; re-using the key
// replaces the previous registration.
func (c *TxController) UnapprovedDrafts(subKey string, buffer int) <-chan *TxRecord {
	return c.hub.Subscribe(EventUnapproved, subKey, buffer)
}

// ConfirmedEvents returns a one-shot channel that receives the record when
// the transaction with the given id is confirmed
func (c *TxController) ConfirmedEvents(id string) <-chan *TxRecord {
	return c.hub.Once(eventKey(id, EventConfirmed))
}

// HistoryBreakerSnapshot exposes the history-API breaker state for
// diagnostics
func (c *TxController) HistoryBreakerSnapshot() breaker.Snapshot {
	return c.historyBreaker.Snapshot()
}

func eventKey(id, suffix string) string {
	return id + ":" + suffix
}

// currentChainContext captures the active chain context; the chain id is
// left empty when the provider cannot resolve one
func (c *TxController) currentChainContext() ChainContext {
	ctx := ChainContext{NetworkID: c.chain.NetworkID()}
	if id, err := c.chain.ChainID(); err == nil {
		ctx.ChainID = strconv.FormatUint(id, 10)
	}
	return ctx
}

// PendingResult is the caller's handle on the outcome of a submitted draft.
// It settles exactly once, from the record's terminal finished event.
type PendingResult struct {
	id string
	ch <-chan *TxRecord
}

// Wait blocks until the record reaches a terminal pipeline status or the
// context is done. A submitted record resolves with its transaction hash;
// rejection, cancellation and failure reject with the corresponding error.
func (r *PendingResult) Wait(ctx context.Context) (common.Hash, error) {
	select {
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	case rec := <-r.ch:
		switch rec.Status {
		case StatusSubmitted:
			return common.HexToHash(rec.Hash), nil
		case StatusRejected:
			return common.Hash{}, ErrUserRejected
		case StatusCancelled:
			return common.Hash{}, ErrUserCancelled
		case StatusFailed:
			msg := "transaction failed"
			if rec.Err != nil {
				msg = rec.Err.Message
			}
			return common.Hash{}, errors.New(msg)
		default:
			return common.Hash{}, fmt.Errorf("%w: tx %s finished as %q", ErrUnexpectedStatus, rec.ID, rec.Status)
		}
	}
}

// AddOptions carries optional metadata for AddTransaction
type AddOptions struct {
	// Origin records where the draft came from (dapp origin, API client, ...)
	Origin string

	// DeviceConfirmedOn records the confirming device, when known
	DeviceConfirmedOn string

	// IdempotencyKey makes the add idempotent: a second call with the same
	// key returns the originally created record
	IdempotencyKey string
}

// AddTransaction validates a draft, fills in missing gas fields, stores it
// as unapproved and broadcasts the unapprovedTransaction event. The returned
// PendingResult settles when an approval decision drives the record to a
// terminal status.
//
// A malformed draft is rejected synchronously before any network call. A gas
// estimation failure also surfaces synchronously: the draft never enters the
// store (the finished event still fires for anyone holding the result).
func (c *TxController) AddTransaction(ctx context.Context, draft Draft, opts AddOptions) (*TxRecord, *PendingResult, error) {
	if err := validateDraft(draft); err != nil {
		return nil, nil, err
	}

	if opts.IdempotencyKey != "" {
		if prior, ok := c.idem.lookup(opts.IdempotencyKey); ok {
			if rec := c.TransactionByID(prior); rec != nil {
				logger.WithFields(logger.Fields{
					"key":   opts.IdempotencyKey,
					"tx_id": rec.ID,
				}).Debug("AddTransaction: idempotency key hit, returning tracked draft")
				result := &PendingResult{id: rec.ID, ch: c.hub.Once(eventKey(rec.ID, EventFinished))}
				// The finished event of an already-settled record fired
				// before this listener existed; settle the result now.
				if pipelineSettled(rec.Status) {
					c.hub.Emit(eventKey(rec.ID, EventFinished), rec)
				}
				return rec, result, nil
			}
		}
	}

	rec := &TxRecord{
		ID:                uuid.NewString(),
		Status:            StatusUnapproved,
		Chain:             c.currentChainContext(),
		Draft:             draft.copy(),
		Time:              time.Now().UnixMilli(),
		Origin:            opts.Origin,
		DeviceConfirmedOn: opts.DeviceConfirmedOn,
	}

	// Register the one-shot listener before anything can possibly finish the
	// record, so the pending result always has exactly one settlement.
	result := &PendingResult{id: rec.ID, ch: c.hub.Once(eventKey(rec.ID, EventFinished))}

	gas, gasPrice, err := c.estimateDraftGas(ctx, rec.Draft)
	if err != nil {
		rec.Status = StatusFailed
		rec.Err = &RecordError{Message: err.Error()}
		c.hub.Emit(eventKey(rec.ID, EventFinished), rec)
		return nil, nil, errors.Join(ErrEstimateGasFailed, err)
	}
	g := gas
	rec.Draft.Gas = (*hexutil.Uint64)(&g)
	rec.Draft.GasPrice = (*hexutil.Big)(gasPrice)

	c.addTx(rec)
	if opts.IdempotencyKey != "" {
		c.idem.remember(opts.IdempotencyKey, rec.ID)
	}
	c.hub.Emit(EventUnapproved, rec)

	logger.WithFields(logger.Fields{
		"tx_id":     rec.ID,
		"from":      rec.Draft.From.Hex(),
		"origin":    rec.Origin,
		"gas":       gas,
		"gas_price": gasPrice.String(),
	}).Debug("AddTransaction: draft stored as unapproved")

	return rec, result, nil
}

// pipelineSettled reports whether the record's finished event has already
// fired: everything past the in-flight pipeline statuses has emitted it
func pipelineSettled(s Status) bool {
	switch s {
	case StatusUnapproved, StatusApproved, StatusSigned:
		return false
	}
	return true
}

// validateDraft rejects malformed drafts before any network interaction
func validateDraft(draft Draft) error {
	if draft.From == (common.Address{}) {
		return fmt.Errorf("%w: from address cannot be zero", ErrInvalidDraft)
	}
	if draft.To != nil && *draft.To == (common.Address{}) && len(draft.Data) == 0 {
		return fmt.Errorf("%w: transfer to the zero address", ErrInvalidDraft)
	}
	return nil
}

// RejectTransaction marks an unapproved draft as rejected by the user and
// fires its finished event. The record stays in the store with its terminal
// status.
func (c *TxController) RejectTransaction(id string) error {
	rec, err := c.transitionTx(id, StatusRejected, nil)
	if err != nil {
		return err
	}
	c.hub.Emit(eventKey(id, EventFinished), rec)
	return nil
}

// CancelTransaction withdraws a not-yet-broadcast draft: the record moves to
// cancelled, its finished event fires and it is removed from the store.
func (c *TxController) CancelTransaction(id string) error {
	rec, err := c.transitionTx(id, StatusCancelled, nil)
	if err != nil {
		return err
	}
	c.removeTx(id)
	c.hub.Emit(eventKey(id, EventFinished), rec)
	return nil
}

// transitionTx moves the record to the target status through the lifecycle
// graph and republishes the store. A non-nil recErr is attached for failed
// targets (and only for those; the lifecycle invariant keeps Err empty
// everywhere else).
func (c *TxController) transitionTx(id string, to Status, recErr error) (*TxRecord, error) {
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
	if to == StatusFailed {
		msg := "unknown error"
		if recErr != nil {
			msg = recErr.Error()
		}
		next.Err = &RecordError{Message: msg}
	} else {
		next.Err = nil
	}
	c.replaceLocked(next)
	return next, nil
}

// failTransaction is the universal pipeline recovery path: the record moves
// to failed with the causing error attached and the finished event fires
func (c *TxController) failTransaction(id string, cause error) *TxRecord {
	rec, err := c.transitionTx(id, StatusFailed, cause)
	if err != nil {
		// The record may already be terminal (e.g. raced with a wipe);
		// nothing more to do than log.
		logger.WithFields(logger.Fields{
			"tx_id": id,
			"cause": cause,
			"error": err,
		}).Warn("failTransaction: could not mark record failed")
		return nil
	}
	logger.WithFields(logger.Fields{
		"tx_id": id,
		"cause": cause,
	}).Debug("failTransaction: record failed")
	c.hub.Emit(eventKey(id, EventFinished), rec)
	return rec
}
