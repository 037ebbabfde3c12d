package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"escrowchain/core/ledger"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/escrow"
	"escrowchain/native/system"
)

type fakeNode struct {
	t        *testing.T
	escrow   map[string]interface{}
	rent     ledger.Rent
	receipt  types.Receipt
	sent     []*types.Transaction
	requests []string
}

func (n *fakeNode) call(method string, params []interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	n.requests = append(n.requests, method)
	var result interface{}
	switch method {
	case "ledger_getAccount":
		require.Equal(n.t, types.RentSysvarID.String(), params[0])
		result = map[string]interface{}{"exists": true, "data": hexutil.Bytes(n.rent.Pack())}
	case "escrow_getEscrow":
		result = n.escrow
	case "ledger_sendTransaction":
		require.True(n.t, requireAuth)
		tx, ok := params[0].(*types.Transaction)
		require.True(n.t, ok)
		n.sent = append(n.sent, tx)
		result = n.receipt
	default:
		return nil, &rpcError{Code: -32601, Message: "unknown method"}, nil
	}
	encoded, err := json.Marshal(result)
	require.NoError(n.t, err)
	return encoded, nil, nil
}

func installFakeNode(t *testing.T) *fakeNode {
	t.Helper()
	node := &fakeNode{t: t, rent: ledger.DefaultRent, receipt: types.Receipt{Status: types.ReceiptSuccess}}
	original := rpcCall
	rpcCall = node.call
	t.Cleanup(func() { rpcCall = original })
	return node
}

func newKeystore(t *testing.T) (string, *crypto.PrivateKey) {
	t.Helper()
	t.Setenv(keystorePassEnv, "correct horse")
	path := filepath.Join(t.TempDir(), "key.json")
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"keygen", "--out", path, "--light"}, &stdout, &stderr), stderr.String())
	key, err := loadKey(path, "test")
	require.NoError(t, err)
	require.Contains(t, stdout.String(), key.PubKey().Address().String())
	return path, key
}

func signerSet(t *testing.T, tx *types.Transaction) map[types.Pubkey]bool {
	t.Helper()
	signers, err := tx.Signers()
	require.NoError(t, err)
	return signers
}

func TestUsageAndUnknownCommands(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 1, run(nil, &stdout, &stderr))
	require.Contains(t, stderr.String(), "Usage:")

	stderr.Reset()
	require.Equal(t, 1, run([]string{"escrow", "settle"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "Unknown escrow subcommand: settle")
}

func TestGlobalRPCFlag(t *testing.T) {
	original := rpcEndpoint
	defer func() { rpcEndpoint = original }()

	rest, err := applyGlobalFlags([]string{"--rpc", "http://node:9000", "escrow", "get"})
	require.NoError(t, err)
	require.Equal(t, []string{"escrow", "get"}, rest)
	require.Equal(t, "http://node:9000", rpcEndpoint)

	_, err = applyGlobalFlags([]string{"--rpc"})
	require.Error(t, err)
}

func TestKeygenRefusesOverwrite(t *testing.T) {
	path, _ := newKeystore(t)
	var stdout, stderr bytes.Buffer
	require.Equal(t, 1, run([]string{"keygen", "--out", path, "--light"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "refusing to overwrite")
}

func TestDeriveMatchesSystemProgram(t *testing.T) {
	base := types.WellKnownID("someone")
	var stdout, stderr bytes.Buffer
	code := run([]string{"derive", "--base", base.String(), "--seed", "trade-1", "--owner", "escrow"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Contains(t, stdout.String(), crypto.DeriveAddress(base, "trade-1", escrow.ProgramID).String())

	stderr.Reset()
	long := strings.Repeat("s", system.MaxSeedLength+1)
	require.Equal(t, 1, run([]string{"derive", "--base", base.String(), "--seed", long, "--owner", "escrow"}, &stdout, &stderr))
}

func TestEscrowInitBuildsAtomicTransaction(t *testing.T) {
	node := installFakeNode(t)
	path, maker := newKeystore(t)
	vault := types.WellKnownID("vault")
	source := types.WellKnownID("source")

	var stdout, stderr bytes.Buffer
	code := run([]string{"escrow", "init",
		"--key", path,
		"--vault", vault.String(),
		"--seed", "trade-1",
		"--amount", "1_000",
		"--deposit-from", source.String(),
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Len(t, node.sent, 1)

	tx := node.sent[0]
	require.Len(t, tx.Instructions, 3)
	makerID := maker.PubKey().Identity()
	require.True(t, signerSet(t, tx)[makerID])

	record := crypto.DeriveAddress(makerID, "trade-1", escrow.ProgramID)
	require.Equal(t, system.ProgramID, tx.Instructions[0].ProgramID)
	require.Equal(t, record, tx.Instructions[0].Accounts[1].Key)
	require.Equal(t, escrow.NewInitializeInstruction(makerID, vault, record, 1000), tx.Instructions[1])
	require.Equal(t, escrow.NewDepositInstruction(makerID, vault, source, record, 1000), tx.Instructions[2])
	require.Contains(t, stdout.String(), crypto.NewAddress(crypto.IdentityPrefix, record).String())
}

func TestEscrowCompleteUsesStoredMakerAndVault(t *testing.T) {
	node := installFakeNode(t)
	path, taker := newKeystore(t)
	maker := types.WellKnownID("maker")
	vault := types.WellKnownID("vault")
	record := types.WellKnownID("record")
	dest := types.WellKnownID("dest")
	node.escrow = map[string]interface{}{"status": "initialized", "maker": maker, "vault": vault, "amount": 10}

	var stdout, stderr bytes.Buffer
	code := run([]string{"escrow", "complete", "--key", path, "--record", record.String(), "--dest", dest.String()}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Len(t, node.sent, 1)
	takerID := taker.PubKey().Identity()
	require.Equal(t, []types.Instruction{escrow.NewCompleteInstruction(takerID, maker, vault, record, dest)}, node.sent[0].Instructions)
	require.True(t, signerSet(t, node.sent[0])[takerID])
}

func TestEscrowRefundFailedReceiptExitsNonZero(t *testing.T) {
	node := installFakeNode(t)
	path, _ := newKeystore(t)
	node.escrow = map[string]interface{}{"status": "completed", "maker": types.WellKnownID("maker"), "vault": types.WellKnownID("vault"), "amount": 10}
	node.receipt = types.Receipt{Status: types.ReceiptFailed, Code: 303, Error: "escrow: already completed"}

	var stdout, stderr bytes.Buffer
	code := run([]string{"escrow", "refund", "--key", path, "--record", types.WellKnownID("r").String(), "--dest", types.WellKnownID("d").String()}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "code 303")
}

func TestEscrowArgumentValidation(t *testing.T) {
	node := installFakeNode(t)
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"missing vault", []string{"escrow", "init", "--seed", "s", "--amount", "1"}, "--vault is required"},
		{"zero amount", []string{"escrow", "init", "--vault", types.WellKnownID("v").String(), "--seed", "s", "--amount", "0"}, "--amount must be greater than zero"},
		{"bad record", []string{"escrow", "complete", "--record", "zz", "--dest", types.WellKnownID("d").String()}, "--record"},
		{"positional", []string{"escrow", "get", "extra"}, "unexpected positional arguments"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			require.Equal(t, 1, run(tc.args, &stdout, &stderr))
			require.Contains(t, stderr.String(), tc.want)
		})
	}
	require.Empty(t, node.requests)
}
