package types

import "github.com/ethereum/go-ethereum/common/hexutil"

// AccountMeta names one record an instruction touches. Order is significant:
// programs read their accounts positionally.
type AccountMeta struct {
	Key        Pubkey `json:"key"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// NewAccountMeta returns a writable account reference.
func NewAccountMeta(key Pubkey, signer bool) AccountMeta {
	return AccountMeta{Key: key, IsSigner: signer, IsWritable: true}
}

// NewReadonlyAccountMeta returns a read-only account reference.
func NewReadonlyAccountMeta(key Pubkey, signer bool) AccountMeta {
	return AccountMeta{Key: key, IsSigner: signer}
}

// Instruction is a single program call carried by a transaction.
type Instruction struct {
	ProgramID Pubkey        `json:"programId"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      hexutil.Bytes `json:"data"`
}
