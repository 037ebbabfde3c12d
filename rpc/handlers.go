package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"escrowchain/core/ledger"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/escrow"
	"escrowchain/native/token"
)

func (s *Server) handleSendTransaction(r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if len(req.Params) != 1 {
		return nil, newRPCError(http.StatusBadRequest, codeInvalidParams, "transaction parameter required", nil)
	}
	var tx types.Transaction
	if err := json.Unmarshal(req.Params[0], &tx); err != nil {
		return nil, newRPCError(http.StatusBadRequest, codeInvalidParams, "invalid transaction format", err.Error())
	}

	receipt, err := s.ledger.Execute(r.Context(), &tx)
	if receipt != nil {
		// Execution failures are reported through the receipt.
		return receipt, nil
	}
	switch {
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return nil, newRPCError(http.StatusConflict, codeDuplicateTx, "transaction has already been submitted", err.Error())
	case errors.Is(err, ledger.ErrMissingSignature), errors.Is(err, ledger.ErrInvalidTransaction):
		return nil, newRPCError(http.StatusBadRequest, codeInvalidParams, "transaction rejected", err.Error())
	default:
		return nil, newRPCError(http.StatusInternalServerError, codeServerError, "failed to execute transaction", errString(err))
	}
}

func (s *Server) handleGetReceipt(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var raw string
	if rpcErr := singleParam(req, &raw); rpcErr != nil {
		return nil, rpcErr
	}
	decoded, err := hexutil.Decode(raw)
	if err != nil || len(decoded) != common.HashLength {
		return nil, newRPCError(http.StatusBadRequest, codeInvalidParams, "transaction hash must be 32 bytes of 0x-prefixed hex", raw)
	}
	hash := common.BytesToHash(decoded)
	receipt, ok, err := s.ledger.Receipt(hash)
	if err != nil {
		return nil, newRPCError(http.StatusInternalServerError, codeServerError, "failed to load receipt", err.Error())
	}
	if !ok {
		return nil, newRPCError(http.StatusNotFound, codeNotFound, "receipt not found", hash.Hex())
	}
	return receipt, nil
}

func (s *Server) handleGetAccount(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	key, rpcErr := keyParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	acc, exists, err := s.ledger.Account(key)
	if err != nil {
		return nil, newRPCError(http.StatusInternalServerError, codeServerError, "failed to load account", err.Error())
	}
	return accountResult(key, acc, exists), nil
}

func (s *Server) handleGetEscrow(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	key, rpcErr := keyParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	acc, rpcErr := s.ownedAccount(key, escrow.ProgramID, "escrow record")
	if rpcErr != nil {
		return nil, rpcErr
	}
	record, err := escrow.Unpack(acc.Data)
	if err != nil {
		return nil, newRPCError(http.StatusUnprocessableEntity, codeServerError, "escrow record is corrupt", err.Error())
	}
	return escrowResult(key, record), nil
}

func (s *Server) handleGetTokenAccount(_ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	key, rpcErr := keyParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	acc, rpcErr := s.ownedAccount(key, token.ProgramID, "token account")
	if rpcErr != nil {
		return nil, rpcErr
	}
	holding, err := token.UnpackAccount(acc.Data)
	if err != nil {
		return nil, newRPCError(http.StatusUnprocessableEntity, codeServerError, "token account is corrupt", err.Error())
	}
	return TokenAccountResult{Key: key, Initialized: holding.IsInitialized(), Account: *holding}, nil
}

// ownedAccount loads key and requires it to belong to owner.
func (s *Server) ownedAccount(key, owner types.Pubkey, what string) (*types.Account, *RPCError) {
	acc, exists, err := s.ledger.Account(key)
	if err != nil {
		return nil, newRPCError(http.StatusInternalServerError, codeServerError, "failed to load "+what, err.Error())
	}
	if !exists {
		return nil, newRPCError(http.StatusNotFound, codeNotFound, what+" not found", key.String())
	}
	if acc.Owner != owner {
		return nil, newRPCError(http.StatusBadRequest, codeInvalidParams, "account is not a "+what, acc.Owner.String())
	}
	return acc, nil
}

func singleParam(req *RPCRequest, dst interface{}) *RPCError {
	if len(req.Params) != 1 {
		return newRPCError(http.StatusBadRequest, codeInvalidParams, "exactly one parameter required", nil)
	}
	if err := json.Unmarshal(req.Params[0], dst); err != nil {
		return newRPCError(http.StatusBadRequest, codeInvalidParams, "invalid parameter", err.Error())
	}
	return nil
}

// keyParam accepts a bech32 address or a hex handle.
func keyParam(req *RPCRequest) (types.Pubkey, *RPCError) {
	var raw string
	if rpcErr := singleParam(req, &raw); rpcErr != nil {
		return types.Pubkey{}, rpcErr
	}
	key, err := crypto.ParseIdentity(raw)
	if err != nil {
		return types.Pubkey{}, newRPCError(http.StatusBadRequest, codeInvalidParams, "invalid address", err.Error())
	}
	return key, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
