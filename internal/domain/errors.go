package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrWithdrawalNotFound  = errors.New("withdrawal not found")
	ErrDuplicateWithdrawal = errors.New("withdrawal already exists for this transaction hash")
)

type EligibilityReason string

const (
	EligibilityNotAllowed   EligibilityReason = "not_allowed"
	EligibilityRateLimited  EligibilityReason = "rate_limited"
	EligibilityBelowMinimum EligibilityReason = "below_minimum"
	EligibilityLockedFunds  EligibilityReason = "locked_funds"
)

// EligibilityError is user-correctable and surfaced verbatim to the caller.
type EligibilityError struct {
	Reason  EligibilityReason
	Message string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("withdrawal not allowed (%s): %s", e.Reason, e.Message)
}

type BroadcastErrorKind string

const (
	// BroadcastRejected means the network refused the transaction outright.
	// Not retryable.
	BroadcastRejected BroadcastErrorKind = "rejected_by_network"
	// BroadcastRelayUnavailable means the relay could not be reached. The
	// caller may retry the whole submission.
	BroadcastRelayUnavailable BroadcastErrorKind = "relay_unavailable"
)

type BroadcastError struct {
	Kind    BroadcastErrorKind
	Message string
	Err     error
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast failed (%s): %s", e.Kind, e.Message)
}

func (e *BroadcastError) Unwrap() error {
	return e.Err
}

func (e *BroadcastError) Retryable() bool {
	return e.Kind == BroadcastRelayUnavailable
}

type WaitErrorKind string

const (
	// WaitFailed means the transaction landed on chain but errored.
	WaitFailed WaitErrorKind = "failed"
	// WaitTimeout means the block-height expiry passed with no status. The
	// transaction may still land; reconciliation owns the final verdict.
	WaitTimeout WaitErrorKind = "timeout"
)

type WaitError struct {
	Kind     WaitErrorKind
	Reason   string
	Duration time.Duration
}

func (e *WaitError) Error() string {
	if e.Kind == WaitTimeout {
		return fmt.Sprintf("confirmation wait expired after %s", e.Duration)
	}
	return fmt.Sprintf("transaction failed on chain: %s", e.Reason)
}
