// Package escrow implements the escrow program. A maker locks a fixed
// amount of tokens in a vault which is later released exactly once, either
// to a taker (Complete) or back to the maker (Refund).
package escrow

import (
	"fmt"

	"escrowchain/core/ledger"
	"escrowchain/core/types"
	"escrowchain/native/token"
	"escrowchain/observability/metrics"
)

// Name is the program name used for pausing and metrics.
const Name = "escrow"

// ProgramID is the id the escrow program is registered under.
var ProgramID = types.WellKnownID("program/escrow")

// Processor is the escrow state machine. It is stateless between calls;
// everything it knows comes from the accounts of the instruction.
type Processor struct {
	gateway        Gateway
	tokenProgramID types.Pubkey
}

type Option func(*Processor)

// WithGateway replaces the token gateway.
func WithGateway(g Gateway) Option {
	return func(p *Processor) {
		if g != nil {
			p.gateway = g
		}
	}
}

// WithTokenProgram sets the only asset-holder program the escrow accepts.
func WithTokenProgram(id types.Pubkey) Option {
	return func(p *Processor) { p.tokenProgramID = id }
}

func NewProcessor(opts ...Option) *Processor {
	p := &Processor{gateway: TokenGateway{}, tokenProgramID: token.ProgramID}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process decodes data and runs the matching operation.
func (p *Processor) Process(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
	ix, err := Decode(data)
	if err != nil {
		metrics.Escrow().ObserveOperation("invalid", err)
		return err
	}
	var op string
	switch v := ix.(type) {
	case Initialize:
		op, err = "initialize", p.initialize(ctx, accounts, v)
	case Deposit:
		op, err = "deposit", p.deposit(ctx, accounts, v)
	case Complete:
		op, err = "complete", p.complete(ctx, accounts)
	case Refund:
		op, err = "refund", p.refund(ctx, accounts)
	default:
		op, err = "invalid", ErrInvalidInstruction
	}
	metrics.Escrow().ObserveOperation(op, err)
	return err
}

// nextAccounts pulls n positional accounts.
func nextAccounts(accounts []*ledger.AccountInfo, n int) ([]*ledger.AccountInfo, error) {
	if len(accounts) < n {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrNotEnoughAccounts, n, len(accounts))
	}
	return accounts[:n], nil
}

func (p *Processor) checkTokenProgram(info *ledger.AccountInfo) error {
	if info.Key != p.tokenProgramID {
		return fmt.Errorf("%w: asset-holder program %s", ErrIncorrectProgramID, info.Key)
	}
	return nil
}

func (p *Processor) holding(info *ledger.AccountInfo) (*token.Account, error) {
	if info.Owner() != p.tokenProgramID {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, token.ErrIllegalOwner)
	}
	holding, err := token.UnpackAccount(info.Data())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return holding, nil
}

// holdingOwner returns the owner of a token holding.
func (p *Processor) holdingOwner(info *ledger.AccountInfo) (types.Pubkey, error) {
	holding, err := p.holding(info)
	if err != nil {
		return types.Pubkey{}, err
	}
	return holding.Owner, nil
}

// delegatedTo reports whether the vault's live allowance belongs to record.
func delegatedTo(vault *token.Account, record types.Pubkey) bool {
	return vault.Delegate != nil && vault.DelegatedAmount > 0 && *vault.Delegate == record
}

func (p *Processor) initialize(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, ix Initialize) error {
	accs, err := nextAccounts(accounts, 5)
	if err != nil {
		return err
	}
	maker, vault, rentInfo, tokenProgram, record := accs[0], accs[1], accs[2], accs[3], accs[4]

	if err := p.checkTokenProgram(tokenProgram); err != nil {
		return err
	}
	rent, err := ledger.RentFromAccount(rentInfo)
	if err != nil {
		return fmt.Errorf("%w: rent context %s", ErrIncorrectProgramID, rentInfo.Key)
	}
	if !rent.IsExempt(record.Balance(), len(record.Data())) {
		return ErrStorageInsolvent
	}
	if err := requireSigner(maker); err != nil {
		return err
	}
	state, err := loadRecord(ctx.ProgramID(), record)
	if err != nil {
		return err
	}
	if state.IsInitialized {
		return ErrAlreadyInitialized
	}

	state = &Escrow{
		IsInitialized: true,
		Maker:         maker.Key,
		Vault:         vault.Key,
		Amount:        ix.Amount,
	}
	if err := storeRecord(record, state); err != nil {
		return err
	}
	ctx.Emit(NewInitializedEvent(record.Key, state))
	return nil
}

func (p *Processor) deposit(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, ix Deposit) error {
	accs, err := nextAccounts(accounts, 5)
	if err != nil {
		return err
	}
	maker, vault, tokenProgram, source, record := accs[0], accs[1], accs[2], accs[3], accs[4]

	if err := p.checkTokenProgram(tokenProgram); err != nil {
		return err
	}
	if err := requireSigner(maker); err != nil {
		return err
	}
	state, err := loadRecord(ctx.ProgramID(), record)
	if err != nil {
		return err
	}
	if !state.IsInitialized {
		return ErrUninitialized
	}
	if state.Settled() {
		return ErrAlreadyCompleted
	}
	if state.Maker != maker.Key || state.Vault != vault.Key {
		return ErrRecordMismatch
	}
	if ix.Amount != state.Amount {
		return fmt.Errorf("%w: deposit %d, escrow amount %d", ErrInvalidInstruction, ix.Amount, state.Amount)
	}
	held, err := p.holding(vault)
	if err != nil {
		return err
	}
	// One live allowance per vault: a second deposit, or a deposit for another
	// record on the same vault, would overwrite it.
	if held.Delegate != nil && held.DelegatedAmount > 0 {
		return fmt.Errorf("%w: delegated to %s", ErrVaultInUse, *held.Delegate)
	}

	if err := p.gateway.Transfer(ctx, tokenProgram, source, vault, maker, state.Amount); err != nil {
		return err
	}
	// The record, not the program, holds the allowance so that only this
	// escrow can release what it deposited.
	if err := p.gateway.Approve(ctx, tokenProgram, vault, maker, record.Key, state.Amount); err != nil {
		return err
	}
	metrics.Escrow().ObserveDeposit(state.Amount)
	ctx.Emit(NewDepositedEvent(record.Key, state, source.Key))
	return nil
}

func (p *Processor) complete(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo) error {
	accs, err := nextAccounts(accounts, 6)
	if err != nil {
		return err
	}
	taker, maker, vault, tokenProgram, record, destination := accs[0], accs[1], accs[2], accs[3], accs[4], accs[5]

	if err := p.checkTokenProgram(tokenProgram); err != nil {
		return err
	}
	state, err := loadRecord(ctx.ProgramID(), record)
	if err != nil {
		return err
	}
	if !state.IsInitialized {
		return ErrUninitialized
	}
	if state.Settled() {
		return ErrAlreadyCompleted
	}
	if err := requireSigner(taker); err != nil {
		return err
	}
	if taker.Key == state.Maker {
		return fmt.Errorf("%w: maker cannot complete its own escrow", ErrUnauthorized)
	}
	if state.Maker != maker.Key || state.Vault != vault.Key {
		return ErrRecordMismatch
	}
	owner, err := p.holdingOwner(destination)
	if err != nil {
		return err
	}
	if owner != taker.Key {
		return fmt.Errorf("%w: destination owned by %s", ErrRecordMismatch, owner)
	}

	takerKey := taker.Key
	state.Taker = &takerKey
	if err := storeRecord(record, state); err != nil {
		return err
	}
	if err := p.gateway.Transfer(ctx, tokenProgram, vault, destination, record, state.Amount); err != nil {
		return err
	}
	metrics.Escrow().ObserveRelease("taker", state.Amount)
	ctx.Emit(NewCompletedEvent(record.Key, state, destination.Key))
	return nil
}

func (p *Processor) refund(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo) error {
	accs, err := nextAccounts(accounts, 5)
	if err != nil {
		return err
	}
	maker, vault, tokenProgram, record, destination := accs[0], accs[1], accs[2], accs[3], accs[4]

	if err := p.checkTokenProgram(tokenProgram); err != nil {
		return err
	}
	state, err := loadRecord(ctx.ProgramID(), record)
	if err != nil {
		return err
	}
	if !state.IsInitialized {
		return ErrUninitialized
	}
	if state.Maker != maker.Key {
		return ErrRecordMismatch
	}
	if err := requireSigner(maker); err != nil {
		return err
	}
	if state.Settled() {
		return ErrAlreadyCompleted
	}
	if state.Vault != vault.Key {
		return ErrRecordMismatch
	}
	owner, err := p.holdingOwner(destination)
	if err != nil {
		return err
	}
	if owner != state.Maker {
		return fmt.Errorf("%w: destination owned by %s", ErrRecordMismatch, owner)
	}
	held, err := p.holding(vault)
	if err != nil {
		return err
	}

	makerKey := state.Maker
	state.Taker = &makerKey
	if err := storeRecord(record, state); err != nil {
		return err
	}
	if err := p.gateway.Transfer(ctx, tokenProgram, vault, destination, maker, state.Amount); err != nil {
		return err
	}
	if delegatedTo(held, record.Key) {
		if err := p.gateway.Revoke(ctx, tokenProgram, vault, maker); err != nil {
			return err
		}
	}
	metrics.Escrow().ObserveRelease("maker", state.Amount)
	ctx.Emit(NewRefundedEvent(record.Key, state, destination.Key))
	return nil
}
