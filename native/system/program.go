// Package system implements the program that owns every fresh handle. It
// moves native balance and allocates records for other programs.
package system

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"escrowchain/core/events"
	"escrowchain/core/ledger"
	"escrowchain/core/types"
	"escrowchain/crypto"
)

// Name is the program name used for pausing and metrics.
const Name = "system"

// ProgramID is the id the system program is registered under.
var ProgramID = types.SystemProgramID

const (
	// MaxSpace bounds the data size of a single allocated record.
	MaxSpace = 10 * 1024
	// MaxSeedLength bounds derivation seeds.
	MaxSeedLength = 32
)

const (
	opCreateAccount byte = iota
	opTransfer
)

// CreateAccount allocates a record of Space bytes at the handle derived from
// the payer, Seed and Owner, funds it with Balance and assigns it to Owner.
type CreateAccount struct {
	Balance uint64
	Space   uint64
	Owner   types.Pubkey
	Seed    string
}

// Transfer moves native balance between two system-owned records.
type Transfer struct {
	Amount uint64
}

func (c CreateAccount) encode() []byte {
	out := make([]byte, 0, 1+8+8+types.PubkeyLength+1+len(c.Seed))
	out = append(out, opCreateAccount)
	out = binary.LittleEndian.AppendUint64(out, c.Balance)
	out = binary.LittleEndian.AppendUint64(out, c.Space)
	out = append(out, c.Owner[:]...)
	out = append(out, byte(len(c.Seed)))
	return append(out, c.Seed...)
}

func (t Transfer) encode() []byte {
	out := []byte{opTransfer}
	return binary.LittleEndian.AppendUint64(out, t.Amount)
}

func decode(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, ErrInvalidInstruction
	}
	rest := data[1:]
	switch data[0] {
	case opCreateAccount:
		if len(rest) < 8+8+types.PubkeyLength+1 {
			return nil, ErrInvalidInstruction
		}
		var ix CreateAccount
		ix.Balance = binary.LittleEndian.Uint64(rest[0:8])
		ix.Space = binary.LittleEndian.Uint64(rest[8:16])
		copy(ix.Owner[:], rest[16:48])
		seedLen := int(rest[48])
		if seedLen > MaxSeedLength || len(rest) != 49+seedLen {
			return nil, ErrInvalidInstruction
		}
		ix.Seed = string(rest[49:])
		return ix, nil
	case opTransfer:
		if len(rest) != 8 {
			return nil, ErrInvalidInstruction
		}
		return Transfer{Amount: binary.LittleEndian.Uint64(rest)}, nil
	default:
		return nil, ErrInvalidInstruction
	}
}

// NewCreateAccountInstruction builds the instruction and returns the derived
// handle of the new record.
func NewCreateAccountInstruction(payer types.Pubkey, ix CreateAccount) (types.Instruction, types.Pubkey) {
	target := crypto.DeriveAddress(payer, ix.Seed, ix.Owner)
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(payer, true),
			types.NewAccountMeta(target, false),
		},
		Data: ix.encode(),
	}, target
}

func NewTransferInstruction(from, to types.Pubkey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(from, true),
			types.NewAccountMeta(to, false),
		},
		Data: Transfer{Amount: amount}.encode(),
	}
}

// Program is the ledger.Program implementation of the system program.
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
	decoded, err := decode(data)
	if err != nil {
		return err
	}
	switch ix := decoded.(type) {
	case CreateAccount:
		return p.createAccount(ctx, accounts, ix)
	case Transfer:
		return p.transfer(ctx, accounts, ix)
	}
	return ErrInvalidInstruction
}

func (p *Program) createAccount(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, ix CreateAccount) error {
	iter := ledger.NewAccountIter(accounts)
	payer, err := iter.Next()
	if err != nil {
		return err
	}
	target, err := iter.Next()
	if err != nil {
		return err
	}
	if !payer.IsSigner {
		return fmt.Errorf("%w: payer %s", ErrMissingSignature, payer.Key)
	}
	if ix.Space > MaxSpace {
		return fmt.Errorf("%w: %d bytes", ErrSpaceTooLarge, ix.Space)
	}
	if expected := crypto.DeriveAddress(payer.Key, ix.Seed, ix.Owner); expected != target.Key {
		return fmt.Errorf("%w: expected %s, got %s", ErrAddressMismatch, expected, target.Key)
	}
	if target.Owner() != ProgramID || len(target.Data()) != 0 {
		return fmt.Errorf("%w: %s", ErrAccountInUse, target.Key)
	}
	if payer.Owner() != ProgramID {
		return fmt.Errorf("%w: payer %s", ErrInvalidAccountOwner, payer.Key)
	}
	if payer.Account.Balance < ix.Balance {
		return fmt.Errorf("%w: payer has %d, needs %d", ErrInsufficientFunds, payer.Account.Balance, ix.Balance)
	}
	if target.Account.Balance > ^uint64(0)-ix.Balance {
		return ErrBalanceOverflow
	}
	payer.Account.Balance -= ix.Balance
	target.Account.Balance += ix.Balance
	target.Account.Data = make([]byte, ix.Space)
	target.Account.Owner = ix.Owner

	p.logger.Debug("system: account created",
		"account", target.Key.String(),
		"owner", ix.Owner.String(),
		"space", ix.Space)
	if ix.Balance > 0 {
		ctx.Emit(events.Transfer{From: payer.Key, To: target.Key, Amount: ix.Balance})
	}
	return nil
}

func (p *Program) transfer(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, ix Transfer) error {
	iter := ledger.NewAccountIter(accounts)
	from, err := iter.Next()
	if err != nil {
		return err
	}
	to, err := iter.Next()
	if err != nil {
		return err
	}
	if !from.IsSigner {
		return fmt.Errorf("%w: sender %s", ErrMissingSignature, from.Key)
	}
	if from.Owner() != ProgramID || len(from.Data()) != 0 {
		return fmt.Errorf("%w: sender %s", ErrInvalidAccountOwner, from.Key)
	}
	if from.Account.Balance < ix.Amount {
		return fmt.Errorf("%w: sender has %d, needs %d", ErrInsufficientFunds, from.Account.Balance, ix.Amount)
	}
	if from.Key == to.Key {
		return nil
	}
	if to.Account.Balance > ^uint64(0)-ix.Amount {
		return ErrBalanceOverflow
	}
	from.Account.Balance -= ix.Amount
	to.Account.Balance += ix.Amount
	ctx.Emit(events.Transfer{From: from.Key, To: to.Key, Amount: ix.Amount})
	return nil
}
