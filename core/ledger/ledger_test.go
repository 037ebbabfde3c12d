package ledger_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"escrowchain/core/events"
	"escrowchain/core/ledger"
	"escrowchain/core/types"
	nativecommon "escrowchain/native/common"
	"escrowchain/storage"
)

var (
	writerID  = types.WellKnownID("program/writer")
	callerID  = types.WellKnownID("program/caller")
	thiefID   = types.WellKnownID("program/thief")
	counterID = types.WellKnownID("program/counter")
)

type testEvent struct{ name string }

func (e testEvent) EventType() string { return e.name }

// writer stores data[1:] into its first account. data[0] == 1 fails after
// writing.
func writer(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
	it := ledger.NewAccountIter(accounts)
	target, err := it.Next()
	if err != nil {
		return err
	}
	if target.Owner() == types.SystemProgramID && len(target.Data()) == 0 {
		return errors.New("writer: account not allocated")
	}
	copy(target.Account.Data, data[1:])
	ctx.Emit(testEvent{name: "writer.wrote"})
	if data[0] == 1 {
		return errors.New("writer: asked to fail")
	}
	return nil
}

// caller forwards its accounts to the writer program.
func caller(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
	metas := make([]types.AccountMeta, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Key == writerID {
			continue
		}
		metas = append(metas, types.AccountMeta{Key: acc.Key, IsSigner: acc.IsSigner || data[0] == 2, IsWritable: true})
	}
	err := ctx.Invoke(types.Instruction{ProgramID: writerID, Accounts: metas, Data: data[1:]})
	if data[0] == 3 {
		// swallow the failure; the runtime must still abort
		return nil
	}
	return err
}

// thief drains the balance of its first account into the second.
func thief(_ ledger.InvokeContext, accounts []*ledger.AccountInfo, _ []byte) error {
	accounts[1].Account.Balance += accounts[0].Account.Balance
	accounts[0].Account.Balance = 0
	return nil
}

// counter recurses into itself data[0] times.
func counter(ctx ledger.InvokeContext, accounts []*ledger.AccountInfo, data []byte) error {
	if data[0] == 0 {
		return nil
	}
	return ctx.Invoke(types.Instruction{
		ProgramID: counterID,
		Accounts:  []types.AccountMeta{types.NewReadonlyAccountMeta(counterID, false)},
		Data:      []byte{data[0] - 1},
	})
}

type env struct {
	t        *testing.T
	db       storage.Database
	ledger   *ledger.Ledger
	recorder *events.Recorder
	key      *ecdsa.PrivateKey
	user     types.Pubkey
	nonce    uint64
}

func newEnv(t *testing.T, opts ...ledger.Option) *env {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	db := storage.NewMemDB()
	recorder := &events.Recorder{}
	opts = append([]ledger.Option{
		ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		ledger.WithEmitter(recorder),
	}, opts...)
	l := ledger.New(db, opts...)
	require.NoError(t, l.RegisterProgram("writer", writerID, ledger.ProgramFunc(writer)))
	require.NoError(t, l.RegisterProgram("caller", callerID, ledger.ProgramFunc(caller)))
	require.NoError(t, l.RegisterProgram("thief", thiefID, ledger.ProgramFunc(thief)))
	require.NoError(t, l.RegisterProgram("counter", counterID, ledger.ProgramFunc(counter)))
	return &env{t: t, db: db, ledger: l, recorder: recorder, key: key, user: types.IdentityFromPublicKey(&key.PublicKey)}
}

func (e *env) seed(key types.Pubkey, acc *types.Account) {
	require.NoError(e.t, e.ledger.SetAccount(key, acc))
}

func (e *env) exec(ixs ...types.Instruction) (*types.Receipt, error) {
	e.nonce++
	tx := &types.Transaction{Nonce: e.nonce, Instructions: ixs}
	require.NoError(e.t, tx.Sign(e.key))
	return e.ledger.Execute(context.Background(), tx)
}

func (e *env) account(key types.Pubkey) *types.Account {
	acc, ok, err := e.ledger.Account(key)
	require.NoError(e.t, err)
	require.True(e.t, ok)
	return acc
}

func writeIx(target types.Pubkey, fail bool, payload ...byte) types.Instruction {
	flag := byte(0)
	if fail {
		flag = 1
	}
	return types.Instruction{
		ProgramID: writerID,
		Accounts:  []types.AccountMeta{types.NewAccountMeta(target, false)},
		Data:      append([]byte{flag}, payload...),
	}
}

func TestExecuteCommitsOwnedWrites(t *testing.T) {
	e := newEnv(t)
	record := types.WellKnownID("record")
	e.seed(record, &types.Account{Owner: writerID, Data: make([]byte, 4)})

	receipt, err := e.exec(writeIx(record, false, 1, 2, 3, 4))
	require.NoError(t, err)
	require.Equal(t, types.ReceiptSuccess, receipt.Status)
	require.Equal(t, []byte{1, 2, 3, 4}, e.account(record).Data)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, "writer.wrote", receipt.Events[0].Type)

	stored, ok, err := e.ledger.Receipt(receipt.TxHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, receipt.Status, stored.Status)
	require.Len(t, e.recorder.Events(), 1)
}

func TestExecuteIsAllOrNothing(t *testing.T) {
	e := newEnv(t)
	first := types.WellKnownID("first")
	second := types.WellKnownID("second")
	e.seed(first, &types.Account{Owner: writerID, Data: make([]byte, 2)})
	e.seed(second, &types.Account{Owner: writerID, Data: make([]byte, 2)})

	receipt, err := e.exec(writeIx(first, false, 9, 9), writeIx(second, true, 8, 8))
	require.Error(t, err)
	require.Equal(t, types.ReceiptFailed, receipt.Status)
	require.Equal(t, 1, receipt.Instruction)
	require.EqualValues(t, ledger.CodeGeneric, receipt.Code)
	require.Empty(t, receipt.Events)
	require.Equal(t, []byte{0, 0}, e.account(first).Data)
	require.Equal(t, []byte{0, 0}, e.account(second).Data)
	require.Empty(t, e.recorder.Events())
}

func TestExecuteRejectsForeignWrites(t *testing.T) {
	e := newEnv(t)
	record := types.WellKnownID("foreign")
	e.seed(record, &types.Account{Owner: thiefID, Data: make([]byte, 2)})

	_, err := e.exec(writeIx(record, false, 1, 1))
	require.ErrorIs(t, err, ledger.ErrExternalDataModified)
	require.Equal(t, []byte{0, 0}, e.account(record).Data)
}

func TestExecuteRejectsReadonlyWrites(t *testing.T) {
	e := newEnv(t)
	record := types.WellKnownID("readonly")
	e.seed(record, &types.Account{Owner: writerID, Data: make([]byte, 1)})

	ix := writeIx(record, false, 7)
	ix.Accounts[0].IsWritable = false
	_, err := e.exec(ix)
	require.ErrorIs(t, err, ledger.ErrReadonlyModified)
}

func TestExecuteRejectsExternalDebit(t *testing.T) {
	e := newEnv(t)
	victim := types.WellKnownID("victim")
	e.seed(victim, &types.Account{Owner: types.SystemProgramID, Balance: 100})

	_, err := e.exec(types.Instruction{
		ProgramID: thiefID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(victim, false),
			types.NewAccountMeta(e.user, true),
		},
	})
	require.ErrorIs(t, err, ledger.ErrExternalBalanceDebit)
	require.EqualValues(t, 100, e.account(victim).Balance)
}

func TestExecuteRejectsMissingSignature(t *testing.T) {
	e := newEnv(t)
	other := types.WellKnownID("other")
	ix := writeIx(other, false)
	ix.Accounts[0].IsSigner = true

	receipt, err := e.exec(ix)
	require.ErrorIs(t, err, ledger.ErrMissingSignature)
	require.Nil(t, receipt)
}

func TestExecuteRejectsReplay(t *testing.T) {
	e := newEnv(t)
	record := types.WellKnownID("replayed")
	e.seed(record, &types.Account{Owner: writerID, Data: make([]byte, 1)})

	tx := &types.Transaction{Nonce: 1, Instructions: []types.Instruction{writeIx(record, false, 5)}}
	require.NoError(t, tx.Sign(e.key))
	_, err := e.ledger.Execute(context.Background(), tx)
	require.NoError(t, err)

	_, err = e.ledger.Execute(context.Background(), tx)
	require.ErrorIs(t, err, ledger.ErrDuplicateTransaction)
}

func TestExecuteRejectsUnknownProgramAndEmptyTransactions(t *testing.T) {
	e := newEnv(t)
	_, err := e.exec(types.Instruction{ProgramID: types.WellKnownID("program/missing")})
	require.ErrorIs(t, err, ledger.ErrUnknownProgram)

	_, err = e.ledger.Execute(context.Background(), &types.Transaction{})
	require.ErrorIs(t, err, ledger.ErrInvalidTransaction)
}

func TestCrossProgramInvocation(t *testing.T) {
	e := newEnv(t)
	record := types.WellKnownID("cpi")
	e.seed(record, &types.Account{Owner: writerID, Data: make([]byte, 2)})

	ix := types.Instruction{
		ProgramID: callerID,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(record, false),
			types.NewReadonlyAccountMeta(writerID, false),
		},
	}

	ix.Data = []byte{0, 0, 4, 2}
	_, err := e.exec(ix)
	require.NoError(t, err)
	require.Equal(t, []byte{4, 2}, e.account(record).Data)

	// requesting a signature the caller never had is an escalation
	ix.Data = []byte{2, 0, 1, 1}
	_, err = e.exec(ix)
	require.ErrorIs(t, err, ledger.ErrPrivilegeEscalation)

	// a swallowed callee failure still aborts the transaction
	ix.Data = []byte{3, 1, 9, 9}
	_, err = e.exec(ix)
	require.Error(t, err)
	require.Equal(t, []byte{4, 2}, e.account(record).Data)

	// the callee must be reachable from the caller's accounts
	ix.Accounts = ix.Accounts[:1]
	ix.Data = []byte{0, 0, 1, 1}
	_, err = e.exec(ix)
	require.ErrorIs(t, err, ledger.ErrMissingAccount)
}

func TestInvokeDepthIsBounded(t *testing.T) {
	e := newEnv(t)
	ix := func(depth byte) types.Instruction {
		return types.Instruction{
			ProgramID: counterID,
			Accounts:  []types.AccountMeta{types.NewReadonlyAccountMeta(counterID, false)},
			Data:      []byte{depth},
		}
	}
	_, err := e.exec(ix(4))
	require.NoError(t, err)
	_, err = e.exec(ix(5))
	require.ErrorIs(t, err, ledger.ErrCallDepth)
}

func TestPausedProgramIsRejected(t *testing.T) {
	e := newEnv(t, ledger.WithPauses(nativecommon.NewStaticPauses([]string{"writer"})))
	record := types.WellKnownID("paused")
	e.seed(record, &types.Account{Owner: writerID, Data: make([]byte, 1)})

	receipt, err := e.exec(writeIx(record, false, 1))
	require.ErrorIs(t, err, ledger.ErrProgramPaused)
	require.EqualValues(t, ledger.ErrProgramPaused.Code(), receipt.Code)
}

func TestRegisterProgramRejectsDuplicates(t *testing.T) {
	e := newEnv(t)
	err := e.ledger.RegisterProgram("again", writerID, ledger.ProgramFunc(writer))
	require.Error(t, err)

	acc := e.account(writerID)
	require.True(t, acc.Executable)
	require.Equal(t, types.NativeLoaderID, acc.Owner)
}

func TestRentRecord(t *testing.T) {
	e := newEnv(t)
	_, err := e.ledger.Rent()
	require.ErrorIs(t, err, ledger.ErrInvalidSysvar)

	require.NoError(t, e.ledger.SetRent(ledger.DefaultRent))
	rent, err := e.ledger.Rent()
	require.NoError(t, err)
	require.Equal(t, ledger.DefaultRent, rent)
}
