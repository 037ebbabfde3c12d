package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"escrowchain/core/ledger"
	"escrowchain/core/types"
	"escrowchain/crypto"
)

// txNonce only has to make the hash unique; the ledger rejects replays by
// hash.
var txNonce = func() uint64 { return uint64(time.Now().UnixNano()) }

func buildTransaction(signers []*crypto.PrivateKey, ixs ...types.Instruction) (*types.Transaction, error) {
	tx := &types.Transaction{Nonce: txNonce(), Instructions: ixs}
	for _, key := range signers {
		if err := tx.Sign(key.PrivateKey); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

// fetchRent reads the node's rent parameters so new records can be funded
// to the exempt minimum.
func fetchRent() (ledger.Rent, error) {
	result, rpcErr, err := rpcCall("ledger_getAccount", []interface{}{types.RentSysvarID.String()}, false)
	if err != nil {
		return ledger.Rent{}, err
	}
	if rpcErr != nil {
		return ledger.Rent{}, fmt.Errorf("RPC error %d: %s", rpcErr.Code, rpcErr.Message)
	}
	var acc struct {
		Exists bool          `json:"exists"`
		Data   hexutil.Bytes `json:"data"`
	}
	if err := json.Unmarshal(result, &acc); err != nil {
		return ledger.Rent{}, fmt.Errorf("decode rent record: %w", err)
	}
	if !acc.Exists {
		return ledger.Rent{}, fmt.Errorf("node has no rent record; genesis not applied")
	}
	return ledger.UnpackRent(acc.Data)
}

func parseAmount(flagName, value string) (uint64, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return 0, fmt.Errorf("--%s is required", flagName)
	}
	amount, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("--%s must be an unsigned integer", flagName)
	}
	if amount == 0 {
		return 0, fmt.Errorf("--%s must be greater than zero", flagName)
	}
	return amount, nil
}

func parseIdentityFlag(flagName, value string) (types.Pubkey, error) {
	if strings.TrimSpace(value) == "" {
		return types.Pubkey{}, fmt.Errorf("--%s is required", flagName)
	}
	key, err := crypto.ParseIdentity(value)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return key, nil
}
