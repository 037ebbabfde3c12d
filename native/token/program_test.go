package token_test

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"io"
	"log/slog"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"escrowchain/core/ledger"
	"escrowchain/core/types"
	"escrowchain/native/system"
	"escrowchain/native/token"
	"escrowchain/storage"
)

var mintA = types.WellKnownID("mint/a")

type tokenEnv struct {
	t      *testing.T
	ledger *ledger.Ledger
	nonce  uint64
}

func newTokenEnv(t *testing.T) *tokenEnv {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(storage.NewMemDB(), ledger.WithLogger(logger))
	require.NoError(t, l.RegisterProgram(system.Name, system.ProgramID, system.New(logger)))
	require.NoError(t, l.RegisterProgram(token.Name, token.ProgramID, token.New(logger)))
	return &tokenEnv{t: t, ledger: l}
}

func (e *tokenEnv) user() (*ecdsa.PrivateKey, types.Pubkey) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(e.t, err)
	return key, types.IdentityFromPublicKey(&key.PublicKey)
}

func (e *tokenEnv) holding(name string, mint, owner types.Pubkey, amount uint64) types.Pubkey {
	key := types.WellKnownID(name)
	data := make([]byte, token.AccountSize)
	require.NoError(e.t, (&token.Account{Mint: mint, Owner: owner, Amount: amount}).Pack(data))
	require.NoError(e.t, e.ledger.SetAccount(key, &types.Account{Owner: token.ProgramID, Data: data}))
	return key
}

func (e *tokenEnv) exec(key *ecdsa.PrivateKey, ixs ...types.Instruction) error {
	e.nonce++
	tx := &types.Transaction{Nonce: e.nonce, Instructions: ixs}
	require.NoError(e.t, tx.Sign(key))
	_, err := e.ledger.Execute(context.Background(), tx)
	return err
}

func (e *tokenEnv) load(key types.Pubkey) *token.Account {
	acc, ok, err := e.ledger.Account(key)
	require.NoError(e.t, err)
	require.True(e.t, ok)
	holding, err := token.UnpackAccount(acc.Data)
	require.NoError(e.t, err)
	return holding
}

func TestInitializeAccountAfterAllocation(t *testing.T) {
	e := newTokenEnv(t)
	key, owner := e.user()
	require.NoError(t, e.ledger.SetAccount(owner, &types.Account{Owner: types.SystemProgramID, Balance: 1000}))

	create, target := system.NewCreateAccountInstruction(owner, system.CreateAccount{
		Balance: 100,
		Space:   token.AccountSize,
		Owner:   token.ProgramID,
		Seed:    "holding",
	})
	require.NoError(t, e.exec(key, create, token.NewInitializeAccountInstruction(target, mintA, owner)))

	got := e.load(target)
	require.Equal(t, mintA, got.Mint)
	require.Equal(t, owner, got.Owner)
	require.Zero(t, got.Amount)

	err := e.exec(key, token.NewInitializeAccountInstruction(target, mintA, owner))
	require.ErrorIs(t, err, token.ErrAlreadyInUse)
}

func TestTransferByOwner(t *testing.T) {
	e := newTokenEnv(t)
	key, owner := e.user()
	src := e.holding("src", mintA, owner, 100)
	dst := e.holding("dst", mintA, types.WellKnownID("bob"), 0)

	require.NoError(t, e.exec(key, token.NewTransferInstruction(src, dst, owner, true, 40)))
	require.EqualValues(t, 60, e.load(src).Amount)
	require.EqualValues(t, 40, e.load(dst).Amount)

	err := e.exec(key, token.NewTransferInstruction(src, dst, owner, true, 61))
	require.ErrorIs(t, err, token.ErrInsufficientFunds)
}

func TestTransferRejectsMintMismatchAndStrangers(t *testing.T) {
	e := newTokenEnv(t)
	key, owner := e.user()
	src := e.holding("src", mintA, owner, 100)
	other := e.holding("other", types.WellKnownID("mint/b"), owner, 0)
	require.ErrorIs(t, e.exec(key, token.NewTransferInstruction(src, other, owner, true, 1)), token.ErrMintMismatch)

	strangerKey, stranger := e.user()
	dst := e.holding("dst", mintA, stranger, 0)
	require.ErrorIs(t, e.exec(strangerKey, token.NewTransferInstruction(src, dst, stranger, true, 1)), token.ErrOwnerMismatch)
	require.EqualValues(t, 100, e.load(src).Amount)
}

func TestTransferOverflow(t *testing.T) {
	e := newTokenEnv(t)
	key, owner := e.user()
	src := e.holding("src", mintA, owner, 10)
	dst := e.holding("dst", mintA, owner, ^uint64(0))
	require.ErrorIs(t, e.exec(key, token.NewTransferInstruction(src, dst, owner, true, 1)), token.ErrOverflow)
}

func TestDelegateSpendsAllowance(t *testing.T) {
	e := newTokenEnv(t)
	ownerKey, owner := e.user()
	delegateKey, delegate := e.user()
	src := e.holding("src", mintA, owner, 100)
	dst := e.holding("dst", mintA, delegate, 0)

	require.NoError(t, e.exec(ownerKey, token.NewApproveInstruction(src, owner, delegate, 30)))
	got := e.load(src)
	require.NotNil(t, got.Delegate)
	require.Equal(t, delegate, *got.Delegate)

	require.NoError(t, e.exec(delegateKey, token.NewTransferInstruction(src, dst, delegate, true, 20)))
	require.EqualValues(t, 10, e.load(src).DelegatedAmount)

	err := e.exec(delegateKey, token.NewTransferInstruction(src, dst, delegate, true, 11))
	require.ErrorIs(t, err, token.ErrInsufficientAllowance)

	require.NoError(t, e.exec(delegateKey, token.NewTransferInstruction(src, dst, delegate, true, 10)))
	got = e.load(src)
	require.Nil(t, got.Delegate)
	require.EqualValues(t, 70, got.Amount)
}

func TestUnsignedOwnerNeedsDelegatedCaller(t *testing.T) {
	e := newTokenEnv(t)
	key, owner := e.user()
	src := e.holding("src", mintA, owner, 100)
	dst := e.holding("dst", mintA, owner, 0)

	err := e.exec(key, token.NewTransferInstruction(src, dst, owner, false, 1))
	require.ErrorIs(t, err, token.ErrMissingAuthority)
}

var custodianID = types.WellKnownID("program/custodian")

// custodian moves tokens out of a holding with a record as the authority.
// Accounts: [source, destination, record, token program].
func custodian(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
	src, dst, record := accounts[0], accounts[1], accounts[2]
	return ctx.Invoke(token.NewTransferInstruction(src.Key, dst.Key, record.Key, false, binary.LittleEndian.Uint64(data)))
}

func custodianTransfer(src, dst, record types.Pubkey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: custodianID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(src, false),
			types.NewAccountMeta(dst, false),
			types.NewReadonlyAccountMeta(record, false),
			types.NewReadonlyAccountMeta(token.ProgramID, false),
		},
		Data: binary.LittleEndian.AppendUint64(nil, amount),
	}
}

func TestProgramSpendsOnlyThroughItsDelegateRecord(t *testing.T) {
	e := newTokenEnv(t)
	require.NoError(t, e.ledger.RegisterProgram("custodian", custodianID, ledger.ProgramFunc(custodian)))
	ownerKey, owner := e.user()
	src := e.holding("src", mintA, owner, 100)
	dst := e.holding("dst", mintA, owner, 0)

	recordA := types.WellKnownID("record/a")
	recordB := types.WellKnownID("record/b")
	foreign := types.WellKnownID("record/foreign")
	require.NoError(t, e.ledger.SetAccount(recordA, &types.Account{Owner: custodianID, Data: []byte{1}}))
	require.NoError(t, e.ledger.SetAccount(recordB, &types.Account{Owner: custodianID, Data: []byte{1}}))
	require.NoError(t, e.ledger.SetAccount(foreign, &types.Account{Owner: types.WellKnownID("program/other"), Data: []byte{1}}))

	// A delegate record owned by some other program gives the caller nothing.
	require.NoError(t, e.exec(ownerKey, token.NewApproveInstruction(src, owner, foreign, 40)))
	err := e.exec(ownerKey, custodianTransfer(src, dst, foreign, 40))
	require.ErrorIs(t, err, token.ErrOwnerMismatch)

	// A sibling record of the same program is not the delegate.
	require.NoError(t, e.exec(ownerKey, token.NewApproveInstruction(src, owner, recordA, 40)))
	err = e.exec(ownerKey, custodianTransfer(src, dst, recordB, 40))
	require.ErrorIs(t, err, token.ErrOwnerMismatch)
	require.EqualValues(t, 100, e.load(src).Amount)

	require.NoError(t, e.exec(ownerKey, custodianTransfer(src, dst, recordA, 40)))
	got := e.load(src)
	require.EqualValues(t, 60, got.Amount)
	require.Nil(t, got.Delegate)
	require.EqualValues(t, 40, e.load(dst).Amount)
}

func TestRevokeClearsDelegation(t *testing.T) {
	e := newTokenEnv(t)
	ownerKey, owner := e.user()
	delegateKey, delegate := e.user()
	src := e.holding("src", mintA, owner, 100)
	dst := e.holding("dst", mintA, delegate, 0)

	require.NoError(t, e.exec(ownerKey, token.NewApproveInstruction(src, owner, delegate, 30)))
	require.ErrorIs(t, e.exec(delegateKey, token.NewRevokeInstruction(src, delegate)), token.ErrOwnerMismatch)

	require.NoError(t, e.exec(ownerKey, token.NewRevokeInstruction(src, owner)))
	got := e.load(src)
	require.Nil(t, got.Delegate)
	require.Zero(t, got.DelegatedAmount)

	err := e.exec(delegateKey, token.NewTransferInstruction(src, dst, delegate, true, 1))
	require.ErrorIs(t, err, token.ErrOwnerMismatch)
}

func TestAccountCodec(t *testing.T) {
	delegate := types.WellKnownID("delegate")
	acc := &token.Account{Mint: mintA, Owner: types.WellKnownID("o"), Amount: 5, Delegate: &delegate, DelegatedAmount: 3}
	data := make([]byte, token.AccountSize)
	require.NoError(t, acc.Pack(data))
	got, err := token.UnpackAccount(data)
	require.NoError(t, err)
	require.Equal(t, acc, got)

	data[72] = 9
	_, err = token.UnpackAccount(data)
	require.ErrorIs(t, err, token.ErrInvalidAccountData)
	_, err = token.UnpackAccount(data[:10])
	require.ErrorIs(t, err, token.ErrInvalidAccountData)
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	data := append(token.Encode(token.Transfer{Amount: 1}), 0)
	_, err := token.Decode(data)
	require.ErrorIs(t, err, token.ErrInvalidInstruction)

	_, err = token.Decode(append(token.Encode(token.Revoke{}), 0))
	require.ErrorIs(t, err, token.ErrInvalidInstruction)
}
