package types

import "bytes"

// Account is the raw record stored under a Pubkey. Only the owning program
// may change Data or debit Balance; the ledger enforces this after every
// instruction.
type Account struct {
	Owner      Pubkey `json:"owner"`
	Balance    uint64 `json:"balance"`
	Data       []byte `json:"data"`
	Executable bool   `json:"executable"`
}

// NewEmptyAccount returns the implicit value of a handle that was never
// written: no balance, no data and owned by the system program.
func NewEmptyAccount() *Account {
	return &Account{Owner: SystemProgramID}
}

// Clone returns a deep copy so callers can mutate it freely.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Data != nil {
		clone.Data = append([]byte(nil), a.Data...)
	}
	return &clone
}

// IsEmpty reports whether the account is indistinguishable from a handle that
// was never written. Empty accounts are deleted on commit.
func (a *Account) IsEmpty() bool {
	if a == nil {
		return true
	}
	return a.Owner == SystemProgramID && a.Balance == 0 && len(a.Data) == 0 && !a.Executable
}

// Equal compares every field of two accounts.
func (a *Account) Equal(other *Account) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Owner == other.Owner &&
		a.Balance == other.Balance &&
		a.Executable == other.Executable &&
		bytes.Equal(a.Data, other.Data)
}
