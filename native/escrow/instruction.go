package escrow

import (
	"encoding/binary"

	"escrowchain/core/types"
	"escrowchain/native/token"
)

const (
	opInitialize byte = iota
	opDeposit
	opComplete
	opRefund
)

// Instruction is one decoded escrow command. The concrete types below are
// the only implementations.
type Instruction interface {
	Opcode() byte
}

type Initialize struct {
	Amount uint64
}

type Deposit struct {
	Amount uint64
}

type Complete struct{}

type Refund struct{}

func (Initialize) Opcode() byte { return opInitialize }
func (Deposit) Opcode() byte { return opDeposit }
func (Complete) Opcode() byte { return opComplete }
func (Refund) Opcode() byte { return opRefund }

// Decode parses an instruction payload: an opcode byte followed, for
// Initialize and Deposit, by a little-endian u64 amount.
func Decode(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, ErrInvalidInstruction
	}
	rest := data[1:]
	switch data[0] {
	case opInitialize, opDeposit:
		if len(rest) != 8 {
			return nil, ErrInvalidInstruction
		}
		amount := binary.LittleEndian.Uint64(rest)
		if amount == 0 {
			return nil, ErrZeroAmount
		}
		if data[0] == opInitialize {
			return Initialize{Amount: amount}, nil
		}
		return Deposit{Amount: amount}, nil
	case opComplete, opRefund:
		if len(rest) != 0 {
			return nil, ErrInvalidInstruction
		}
		if data[0] == opComplete {
			return Complete{}, nil
		}
		return Refund{}, nil
	}
	return nil, ErrInvalidInstruction
}

// Encode returns the payload of ix.
func Encode(ix Instruction) []byte {
	out := []byte{ix.Opcode()}
	switch v := ix.(type) {
	case Initialize:
		out = binary.LittleEndian.AppendUint64(out, v.Amount)
	case Deposit:
		out = binary.LittleEndian.AppendUint64(out, v.Amount)
	}
	return out
}

func NewInitializeInstruction(maker, vault, record types.Pubkey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.NewReadonlyAccountMeta(maker, true),
			types.NewReadonlyAccountMeta(vault, false),
			types.NewReadonlyAccountMeta(types.RentSysvarID, false),
			types.NewReadonlyAccountMeta(token.ProgramID, false),
			types.NewAccountMeta(record, false),
		},
		Data: Encode(Initialize{Amount: amount}),
	}
}

func NewDepositInstruction(maker, vault, source, record types.Pubkey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.NewReadonlyAccountMeta(maker, true),
			types.NewAccountMeta(vault, false),
			types.NewReadonlyAccountMeta(token.ProgramID, false),
			types.NewAccountMeta(source, false),
			types.NewReadonlyAccountMeta(record, false),
		},
		Data: Encode(Deposit{Amount: amount}),
	}
}

func NewCompleteInstruction(taker, maker, vault, record, destination types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.NewReadonlyAccountMeta(taker, true),
			types.NewReadonlyAccountMeta(maker, false),
			types.NewAccountMeta(vault, false),
			types.NewReadonlyAccountMeta(token.ProgramID, false),
			types.NewAccountMeta(record, false),
			types.NewAccountMeta(destination, false),
		},
		Data: Encode(Complete{}),
	}
}

func NewRefundInstruction(maker, vault, record, destination types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.NewReadonlyAccountMeta(maker, true),
			types.NewAccountMeta(vault, false),
			types.NewReadonlyAccountMeta(token.ProgramID, false),
			types.NewAccountMeta(record, false),
			types.NewAccountMeta(destination, false),
		},
		Data: Encode(Refund{}),
	}
}
