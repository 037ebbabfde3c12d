package token

import (
	"encoding/binary"

	"escrowchain/core/types"
)

const (
	opInitializeAccount byte = iota
	opTransfer
	opApprove
	opRevoke
)

// Instruction is a decoded token program instruction.
type Instruction interface {
	isInstruction()
}

// InitializeAccount binds a freshly allocated record to a mint and owner.
type InitializeAccount struct {
	Mint  types.Pubkey
	Owner types.Pubkey
}

// Transfer moves Amount units from the source to the destination account.
type Transfer struct {
	Amount uint64
}

// Approve lets Delegate move up to Amount units out of the source account.
type Approve struct {
	Amount   uint64
	Delegate types.Pubkey
}

// Revoke clears any delegation on the source account.
type Revoke struct{}

func (InitializeAccount) isInstruction() {}
func (Transfer) isInstruction() {}
func (Approve) isInstruction() {}
func (Revoke) isInstruction() {}

// Encode returns the wire form of ix.
func Encode(ix Instruction) []byte {
	switch v := ix.(type) {
	case InitializeAccount:
		out := []byte{opInitializeAccount}
		out = append(out, v.Mint[:]...)
		return append(out, v.Owner[:]...)
	case Transfer:
		return binary.LittleEndian.AppendUint64([]byte{opTransfer}, v.Amount)
	case Approve:
		out := binary.LittleEndian.AppendUint64([]byte{opApprove}, v.Amount)
		return append(out, v.Delegate[:]...)
	case Revoke:
		return []byte{opRevoke}
	}
	return nil
}

// Decode parses instruction data. Trailing bytes are rejected.
func Decode(data []byte) (Instruction, error) {
	if len(data) == 0 {
		return nil, ErrInvalidInstruction
	}
	rest := data[1:]
	switch data[0] {
	case opInitializeAccount:
		if len(rest) != 64 {
			return nil, ErrInvalidInstruction
		}
		var ix InitializeAccount
		copy(ix.Mint[:], rest[0:32])
		copy(ix.Owner[:], rest[32:64])
		return ix, nil
	case opTransfer:
		if len(rest) != 8 {
			return nil, ErrInvalidInstruction
		}
		return Transfer{Amount: binary.LittleEndian.Uint64(rest)}, nil
	case opApprove:
		if len(rest) != 40 {
			return nil, ErrInvalidInstruction
		}
		ix := Approve{Amount: binary.LittleEndian.Uint64(rest[0:8])}
		copy(ix.Delegate[:], rest[8:40])
		return ix, nil
	case opRevoke:
		if len(rest) != 0 {
			return nil, ErrInvalidInstruction
		}
		return Revoke{}, nil
	}
	return nil, ErrInvalidInstruction
}

func NewInitializeAccountInstruction(account, mint, owner types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(account, false)},
		Data:      Encode(InitializeAccount{Mint: mint, Owner: owner}),
	}
}

// NewTransferInstruction builds a transfer. authoritySigner is false when
// the authority is a delegate record owned by the calling program.
func NewTransferInstruction(source, destination, authority types.Pubkey, authoritySigner bool, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(source, false),
			types.NewAccountMeta(destination, false),
			types.NewReadonlyAccountMeta(authority, authoritySigner),
		},
		Data: Encode(Transfer{Amount: amount}),
	}
}

func NewApproveInstruction(source, owner, delegate types.Pubkey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(source, false),
			types.NewReadonlyAccountMeta(owner, true),
		},
		Data: Encode(Approve{Amount: amount, Delegate: delegate}),
	}
}

func NewRevokeInstruction(source, owner types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(source, false),
			types.NewReadonlyAccountMeta(owner, true),
		},
		Data: Encode(Revoke{}),
	}
}
