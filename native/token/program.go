// Package token implements the asset-holder program: fungible token
// accounts that can be initialized, transferred and delegated.
package token

import (
	"fmt"
	"log/slog"

	"escrowchain/core/events"
	"escrowchain/core/ledger"
	"escrowchain/core/types"
)

// Name is the program name used for pausing and metrics.
const Name = "token"

// ProgramID is the id the token program is registered under.
var ProgramID = types.WellKnownID("program/token")

type Program struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Program {
	if logger == nil {
		logger = slog.Default()
	}
	return &Program{logger: logger}
}

func (p *Program) Process(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
	ix, err := Decode(data)
	if err != nil {
		return err
	}
	switch v := ix.(type) {
	case InitializeAccount:
		return p.initializeAccount(accounts, v)
	case Transfer:
		return p.transfer(ctx, accounts, v)
	case Approve:
		return p.approve(ctx, accounts, v)
	case Revoke:
		return p.revoke(ctx, accounts)
	}
	return ErrInvalidInstruction
}

func load(info *ledger.AccountInfo) (*Account, error) {
	if info.Owner() != ProgramID {
		return nil, fmt.Errorf("%w: %s", ErrIllegalOwner, info.Key)
	}
	acc, err := UnpackAccount(info.Data())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, info.Key)
	}
	if !acc.IsInitialized() {
		return nil, fmt.Errorf("%w: %s", ErrUninitialized, info.Key)
	}
	return acc, nil
}

func (p *Program) initializeAccount(accounts []*ledger.AccountInfo, ix InitializeAccount) error {
	target, err := ledger.NewAccountIter(accounts).Next()
	if err != nil {
		return err
	}
	if target.Owner() != ProgramID {
		return fmt.Errorf("%w: %s", ErrIllegalOwner, target.Key)
	}
	if ix.Owner.IsZero() {
		return ErrInvalidOwner
	}
	acc, err := UnpackAccount(target.Data())
	if err != nil {
		return err
	}
	if acc.IsInitialized() {
		return fmt.Errorf("%w: %s", ErrAlreadyInUse, target.Key)
	}
	acc = &Account{Mint: ix.Mint, Owner: ix.Owner}
	return acc.Pack(target.Account.Data)
}

// authorize checks that authority may move amount out of src and reports
// whether the move consumes delegated allowance. A delegate either signs or
// is a record owned by the program making the call, which lets a program
// spend on behalf of one specific record and no other.
func authorize(ctx ledger.InvokeContext, src *Account, authority *ledger.AccountInfo, amount uint64) (bool, error) {
	if authority.Key == src.Owner && authority.IsSigner {
		return false, nil
	}
	delegated := false
	if src.Delegate != nil && *src.Delegate == authority.Key {
		if authority.IsSigner {
			delegated = true
		} else if caller, ok := ctx.Caller(); ok && authority.Owner() == caller {
			delegated = true
		}
	}
	if !delegated {
		if authority.Key != src.Owner {
			return false, ErrOwnerMismatch
		}
		return false, ErrMissingAuthority
	}
	if src.DelegatedAmount < amount {
		return false, fmt.Errorf("%w: allowance %d, requested %d", ErrInsufficientAllowance, src.DelegatedAmount, amount)
	}
	return true, nil
}

func (p *Program) transfer(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, ix Transfer) error {
	iter := ledger.NewAccountIter(accounts)
	srcInfo, err := iter.Next()
	if err != nil {
		return err
	}
	dstInfo, err := iter.Next()
	if err != nil {
		return err
	}
	authority, err := iter.Next()
	if err != nil {
		return err
	}
	src, err := load(srcInfo)
	if err != nil {
		return err
	}
	dst, err := load(dstInfo)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("%w: %s != %s", ErrMintMismatch, src.Mint, dst.Mint)
	}
	delegated, err := authorize(ctx, src, authority, ix.Amount)
	if err != nil {
		return err
	}
	if src.Amount < ix.Amount {
		return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, src.Amount, ix.Amount)
	}
	if delegated {
		src.DelegatedAmount -= ix.Amount
		if src.DelegatedAmount == 0 {
			src.Delegate = nil
		}
	}
	if srcInfo.Key != dstInfo.Key {
		if dst.Amount > ^uint64(0)-ix.Amount {
			return ErrOverflow
		}
		src.Amount -= ix.Amount
		dst.Amount += ix.Amount
		if err := dst.Pack(dstInfo.Account.Data); err != nil {
			return err
		}
	}
	if err := src.Pack(srcInfo.Account.Data); err != nil {
		return err
	}
	p.logger.Debug("token: transfer",
		"from", srcInfo.Key.String(),
		"to", dstInfo.Key.String(),
		"amount", ix.Amount,
		"delegated", delegated)
	ctx.Emit(events.TokenTransfer{
		Mint:      src.Mint,
		From:      srcInfo.Key,
		To:        dstInfo.Key,
		Authority: authority.Key,
		Amount:    ix.Amount,
	})
	return nil
}

func (p *Program) approve(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, ix Approve) error {
	iter := ledger.NewAccountIter(accounts)
	srcInfo, err := iter.Next()
	if err != nil {
		return err
	}
	owner, err := iter.Next()
	if err != nil {
		return err
	}
	src, err := load(srcInfo)
	if err != nil {
		return err
	}
	if owner.Key != src.Owner {
		return ErrOwnerMismatch
	}
	if !owner.IsSigner {
		return ErrMissingAuthority
	}
	delegate := ix.Delegate
	src.Delegate = &delegate
	src.DelegatedAmount = ix.Amount
	if err := src.Pack(srcInfo.Account.Data); err != nil {
		return err
	}
	ctx.Emit(approvedEvent{account: srcInfo.Key, owner: owner.Key, delegate: delegate, amount: ix.Amount})
	return nil
}

func (p *Program) revoke(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo) error {
	iter := ledger.NewAccountIter(accounts)
	srcInfo, err := iter.Next()
	if err != nil {
		return err
	}
	owner, err := iter.Next()
	if err != nil {
		return err
	}
	src, err := load(srcInfo)
	if err != nil {
		return err
	}
	if owner.Key != src.Owner {
		return ErrOwnerMismatch
	}
	if !owner.IsSigner {
		return ErrMissingAuthority
	}
	src.Delegate = nil
	src.DelegatedAmount = 0
	if err := src.Pack(srcInfo.Account.Data); err != nil {
		return err
	}
	ctx.Emit(revokedEvent{account: srcInfo.Key, owner: owner.Key})
	return nil
}
