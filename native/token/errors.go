package token

// Error is a token program failure. Codes start at 200.
type Error struct {
	code uint32
	msg  string
}

func (e *Error) Error() string { return "token: " + e.msg }

func (e *Error) Code() uint32 { return e.code }

var (
	ErrInvalidInstruction    = &Error{code: 200, msg: "invalid instruction"}
	ErrInvalidAccountData    = &Error{code: 201, msg: "invalid account data"}
	ErrUninitialized         = &Error{code: 202, msg: "account not initialized"}
	ErrAlreadyInUse          = &Error{code: 203, msg: "account already initialized"}
	ErrIllegalOwner          = &Error{code: 204, msg: "account not owned by token program"}
	ErrMintMismatch          = &Error{code: 205, msg: "mint mismatch"}
	ErrInsufficientFunds     = &Error{code: 206, msg: "insufficient funds"}
	ErrOverflow              = &Error{code: 207, msg: "amount overflow"}
	ErrOwnerMismatch         = &Error{code: 208, msg: "authority is not the account owner"}
	ErrMissingAuthority      = &Error{code: 209, msg: "missing transfer authority"}
	ErrInsufficientAllowance = &Error{code: 210, msg: "delegated amount exceeded"}
	ErrInvalidOwner          = &Error{code: 211, msg: "owner must not be empty"}
)
