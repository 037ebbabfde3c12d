package escrow

// Error is an escrow program failure. Codes start at 300 and are stable:
// clients match on them through receipts and RPC.
type Error struct {
	code uint32
	msg  string
}

func (e *Error) Error() string { return "escrow: " + e.msg }

func (e *Error) Code() uint32 { return e.code }

var (
	ErrUnauthorized       = &Error{code: 300, msg: "unauthorized"}
	ErrAlreadyInitialized = &Error{code: 301, msg: "escrow already initialized"}
	ErrAlreadyCompleted   = &Error{code: 302, msg: "escrow already completed"}
	ErrRecordMismatch     = &Error{code: 303, msg: "record mismatch"}
	ErrStorageInsolvent   = &Error{code: 304, msg: "escrow record not rent exempt"}
	ErrCorruptRecord      = &Error{code: 305, msg: "corrupt escrow record"}
	ErrInvalidInstruction = &Error{code: 306, msg: "invalid instruction"}
	ErrTransferFailed     = &Error{code: 307, msg: "token transfer failed"}
	ErrUninitialized      = &Error{code: 308, msg: "escrow not initialized"}
	ErrNotEnoughAccounts  = &Error{code: 309, msg: "not enough accounts"}
	ErrIncorrectProgramID = &Error{code: 310, msg: "incorrect program id"}
	ErrIllegalOwner       = &Error{code: 311, msg: "escrow record not owned by escrow program"}
	ErrZeroAmount         = &Error{code: 312, msg: "amount must be greater than zero"}
	ErrVaultInUse         = &Error{code: 313, msg: "vault already delegated"}
)
