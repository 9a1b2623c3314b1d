package dao

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by an engine wraps exactly one of
// these, so callers can classify with errors.Is.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrAlreadyDone        = errors.New("already done")
	ErrExecutionReverted  = errors.New("execution reverted")
)

// Named failures shared across engines.
var (
	ErrBelowMinimum       = fmt.Errorf("%w: below minimum stake", ErrInvalidInput)
	ErrCapacityExceeded   = fmt.Errorf("%w: pool capacity exceeded", ErrInvariantViolation)
	ErrInsufficientWeight = fmt.Errorf("%w: voting weight below threshold", ErrInsufficientFunds)
	ErrAlreadyVoted       = fmt.Errorf("%w: already voted", ErrAlreadyDone)
	ErrZeroAmount         = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrZeroAddress        = fmt.Errorf("%w: zero address", ErrInvalidInput)
	ErrReentrant          = fmt.Errorf("%w: operation already in progress", ErrInvalidState)
)

// Result codes reported in TxOutcome.Code. Zero is success.
const (
	CodeOK uint32 = iota
	CodeInternal
	CodeUnauthorized
	CodeInvalidState
	CodeInvariantViolation
	CodeInsufficientFunds
	CodeInvalidInput
	CodeTransferFailed
	CodeAlreadyDone
	CodeExecutionReverted
	CodeDecode
)

var codeOrder = []struct {
	kind error
	code uint32
}{
	// ExecutionReverted wraps the dispatched failure, so it must be
	// matched before the kind of the cause.
	{ErrExecutionReverted, CodeExecutionReverted},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrInvalidState, CodeInvalidState},
	{ErrInvariantViolation, CodeInvariantViolation},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrTransferFailed, CodeTransferFailed},
	{ErrAlreadyDone, CodeAlreadyDone},
}

// ResultCode maps an error to its TxOutcome code.
func ResultCode(err error) uint32 {
	if err == nil {
		return CodeOK
	}
	for _, c := range codeOrder {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return CodeInternal
}

// HaltError signals that the application detected an irrecoverable
// inconsistency and requests an immediate chain halt.
//
// When the engine receives a HaltError from ExecuteBlock, it must
// stop consensus, log the error, and not proceed to Commit.
type HaltError struct {
	Reason string
	Height uint64
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("HALT at height %d: %s", e.Height, e.Reason)
}

// NewHaltError creates a new HaltError.
func NewHaltError(height uint64, reason string) *HaltError {
	return &HaltError{Height: height, Reason: reason}
}

// IsHalt checks whether an error is a HaltError and returns it.
func IsHalt(err error) (*HaltError, bool) {
	var h *HaltError
	if errors.As(err, &h) {
		return h, true
	}
	return nil, false
}
