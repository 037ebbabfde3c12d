package ledger

import (
	"context"

	"escrowchain/core/events"
	"escrowchain/core/types"
)

// Program is a native program the ledger dispatches instructions to. A
// program receives the accounts of its instruction in order and may mutate
// the records it owns. Returning an error aborts the whole transaction.
type Program interface {
	Process(ctx InvokeContext, accounts []*AccountInfo, data []byte) error
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(ctx InvokeContext, accounts []*AccountInfo, data []byte) error

func (f ProgramFunc) Process(ctx InvokeContext, accounts []*AccountInfo, data []byte) error {
	return f(ctx, accounts, data)
}

// InvokeContext is the per-instruction view a program has of the runtime.
type InvokeContext interface {
	// Context carries the deadline and tracing span of the transaction.
	Context() context.Context
	// ProgramID is the id of the program currently executing.
	ProgramID() types.Pubkey
	// Caller returns the invoking program for cross-program invocations.
	Caller() (types.Pubkey, bool)
	// Invoke runs ix as a cross-program invocation within the same
	// transaction. Every account it names must be available to the caller
	// with at least the requested privileges.
	Invoke(ix types.Instruction) error
	// Emit queues an event. Events are published only if the transaction
	// commits.
	Emit(evt events.Event)
}

// AccountInfo is one account as seen by an executing program. IsSigner is set
// only when the runtime verified a signature from Key for this call.
type AccountInfo struct {
	Key        types.Pubkey
	IsSigner   bool
	IsWritable bool
	Account    *types.Account
}

func (a *AccountInfo) Owner() types.Pubkey {
	if a == nil || a.Account == nil {
		return types.Pubkey{}
	}
	return a.Account.Owner
}

func (a *AccountInfo) Data() []byte {
	if a == nil || a.Account == nil {
		return nil
	}
	return a.Account.Data
}

func (a *AccountInfo) Balance() uint64 {
	if a == nil || a.Account == nil {
		return 0
	}
	return a.Account.Balance
}

// AccountIter hands out a program's accounts positionally.
type AccountIter struct {
	accounts []*AccountInfo
	pos      int
}

func NewAccountIter(accounts []*AccountInfo) *AccountIter {
	return &AccountIter{accounts: accounts}
}

// Next returns the next account or ErrNotEnoughAccounts.
func (it *AccountIter) Next() (*AccountInfo, error) {
	if it.pos >= len(it.accounts) {
		return nil, ErrNotEnoughAccounts
	}
	info := it.accounts[it.pos]
	it.pos++
	return info, nil
}
