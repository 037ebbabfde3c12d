package ledger

import (
	"errors"
	"fmt"
)

// Error is a runtime failure with a stable numeric code. Programs define
// their own coded errors; the ledger reports whichever code the failing
// instruction surfaced.
type Error struct {
	code uint32
	msg  string
}

func newError(code uint32, msg string) *Error { return &Error{code: code, msg: msg} }

func (e *Error) Error() string { return "ledger: " + e.msg }

// Code returns the numeric code recorded in receipts.
func (e *Error) Code() uint32 { return e.code }

// CodeGeneric is reported for failures that carry no code of their own.
const CodeGeneric uint32 = 1

var (
	ErrMissingSignature      = newError(2, "missing required signature")
	ErrDuplicateTransaction  = newError(3, "transaction already processed")
	ErrUnknownProgram        = newError(4, "unknown program")
	ErrCallDepth             = newError(5, "cross-program invocation depth exceeded")
	ErrReadonlyModified      = newError(6, "read-only account modified")
	ErrExternalDataModified  = newError(7, "account data modified by non-owner program")
	ErrExternalBalanceDebit  = newError(8, "account balance debited by non-owner program")
	ErrIllegalOwnerChange    = newError(9, "account owner changed illegally")
	ErrAccountDataSize       = newError(10, "account data size changed")
	ErrUnbalancedInstruction = newError(11, "instruction changed total balance")
	ErrPrivilegeEscalation   = newError(12, "cross-program invocation escalated privileges")
	ErrMissingAccount        = newError(13, "account not available to caller")
	ErrExecutableModified    = newError(14, "executable account modified")
	ErrNotEnoughAccounts     = newError(15, "not enough account keys")
	ErrInvalidSysvar         = newError(16, "invalid sysvar account")
	ErrProgramPaused         = newError(17, "program paused")
	ErrInvalidTransaction    = newError(18, "invalid transaction")
)

type coder interface {
	Code() uint32
}

// ErrorCode extracts the numeric code of err, or CodeGeneric when err does
// not carry one. A nil error has code zero.
func ErrorCode(err error) uint32 {
	if err == nil {
		return 0
	}
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeGeneric
}

// InstructionError reports which top-level instruction of a transaction
// failed. It unwraps to the program's own error.
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }
