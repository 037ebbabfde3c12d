package escrow

import (
	"fmt"

	"escrowchain/core/ledger"
	"escrowchain/core/types"
	"escrowchain/native/token"
)

// Gateway moves tokens between holdings on behalf of the escrow program.
// Every call is atomic; a failure is reported as ErrTransferFailed wrapping
// the token program's error.
type Gateway interface {
	Transfer(ctx ledger.InvokeContext, tokenProgram, source, destination, authority *ledger.AccountInfo, amount uint64) error
	Approve(ctx ledger.InvokeContext, tokenProgram, source, owner *ledger.AccountInfo, delegate types.Pubkey, amount uint64) error
	Revoke(ctx ledger.InvokeContext, tokenProgram, source, owner *ledger.AccountInfo) error
}

// TokenGateway issues cross-program invocations to the token program.
type TokenGateway struct{}

func (TokenGateway) Transfer(ctx ledger.InvokeContext, tokenProgram, source, destination, authority *ledger.AccountInfo, amount uint64) error {
	ix := token.NewTransferInstruction(source.Key, destination.Key, authority.Key, authority.IsSigner, amount)
	ix.ProgramID = tokenProgram.Key
	if err := ctx.Invoke(ix); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

func (TokenGateway) Approve(ctx ledger.InvokeContext, tokenProgram, source, owner *ledger.AccountInfo, delegate types.Pubkey, amount uint64) error {
	ix := token.NewApproveInstruction(source.Key, owner.Key, delegate, amount)
	ix.ProgramID = tokenProgram.Key
	if err := ctx.Invoke(ix); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

func (TokenGateway) Revoke(ctx ledger.InvokeContext, tokenProgram, source, owner *ledger.AccountInfo) error {
	ix := token.NewRevokeInstruction(source.Key, owner.Key)
	ix.ProgramID = tokenProgram.Key
	if err := ctx.Invoke(ix); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}
