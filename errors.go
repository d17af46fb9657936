package txcontroller

import "fmt"

// Controller errors
var (
	// ErrInvalidDraft is returned synchronously for malformed drafts, before
	// any network call is made
	ErrInvalidDraft = fmt.Errorf("invalid transaction draft")

	// ErrNoSigner means no signing capability is configured. The message is
	// preserved verbatim; callers match on it across wallet frontends.
	ErrNoSigner = fmt.Errorf("No sign method defined.")

	// ErrNoChainID means no numeric chain id could be resolved for signing
	ErrNoChainID = fmt.Errorf("No chainId defined.")

	ErrEstimateGasFailed = fmt.Errorf("estimate gas failed")
	ErrSigningFailed     = fmt.Errorf("signing failed")
	ErrBroadcastFailed   = fmt.Errorf("broadcast failed")

	// ErrUserRejected and ErrUserCancelled are the user-decision outcomes of
	// a pending submission; they are terminal but not failures
	ErrUserRejected  = fmt.Errorf("user rejected the transaction")
	ErrUserCancelled = fmt.Errorf("user cancelled the transaction")

	ErrTxNotFound       = fmt.Errorf("transaction not found")
	ErrUnexpectedStatus = fmt.Errorf("transaction finished with unexpected status")

	// ErrHistoryUnavailable is returned when the history-API circuit
	// breaker is open
	ErrHistoryUnavailable = fmt.Errorf("history source temporarily unavailable")
)
