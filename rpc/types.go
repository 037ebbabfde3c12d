package rpc

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/escrow"
	"escrowchain/native/token"
)

type AccountResult struct {
	Address    string        `json:"address"`
	Key        types.Pubkey  `json:"key"`
	Exists     bool          `json:"exists"`
	Owner      types.Pubkey  `json:"owner"`
	Balance    uint64        `json:"balance"`
	Data       hexutil.Bytes `json:"data"`
	Executable bool          `json:"executable"`
}

func accountResult(key types.Pubkey, acc *types.Account, exists bool) AccountResult {
	if acc == nil {
		acc = types.NewEmptyAccount()
	}
	return AccountResult{
		Address:    crypto.NewAddress(crypto.IdentityPrefix, key).String(),
		Key:        key,
		Exists:     exists,
		Owner:      acc.Owner,
		Balance:    acc.Balance,
		Data:       acc.Data,
		Executable: acc.Executable,
	}
}

type EscrowResult struct {
	Record types.Pubkey  `json:"record"`
	Status string        `json:"status"`
	Maker  types.Pubkey  `json:"maker"`
	Taker  *types.Pubkey `json:"taker,omitempty"`
	Vault  types.Pubkey  `json:"vault"`
	Amount uint64        `json:"amount"`
}

func escrowResult(record types.Pubkey, e *escrow.Escrow) EscrowResult {
	return EscrowResult{
		Record: record,
		Status: e.Status().String(),
		Maker:  e.Maker,
		Taker:  e.Taker,
		Vault:  e.Vault,
		Amount: e.Amount,
	}
}

type TokenAccountResult struct {
	Key         types.Pubkey `json:"key"`
	Initialized bool         `json:"initialized"`
	token.Account
}
