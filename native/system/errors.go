package system

// Error is a system program failure. Codes start at 100.
type Error struct {
	code uint32
	msg  string
}

func (e *Error) Error() string { return "system: " + e.msg }

func (e *Error) Code() uint32 { return e.code }

var (
	ErrInvalidInstruction  = &Error{code: 100, msg: "invalid instruction"}
	ErrMissingSignature    = &Error{code: 101, msg: "missing required signature"}
	ErrAddressMismatch     = &Error{code: 102, msg: "account does not match derived address"}
	ErrAccountInUse        = &Error{code: 103, msg: "account already in use"}
	ErrInsufficientFunds   = &Error{code: 104, msg: "insufficient funds"}
	ErrSpaceTooLarge       = &Error{code: 105, msg: "requested space too large"}
	ErrInvalidAccountOwner = &Error{code: 106, msg: "account not owned by system program"}
	ErrBalanceOverflow     = &Error{code: 107, msg: "balance overflow"}
)
