package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"escrowchain/core/events"
	"escrowchain/core/types"
	nativecommon "escrowchain/native/common"
	"escrowchain/observability/metrics"
	"escrowchain/storage"
)

const maxInvokeDepth = 4

var (
	accountPrefix = []byte("acct:")
	receiptPrefix = []byte("rcpt:")
)

func accountKey(key types.Pubkey) []byte {
	return append(append([]byte(nil), accountPrefix...), key[:]...)
}

func receiptKey(hash common.Hash) []byte {
	return append(append([]byte(nil), receiptPrefix...), hash[:]...)
}

type registeredProgram struct {
	name    string
	program Program
}

// Ledger is the runtime every program executes in. It owns the record store,
// verifies signatures, dispatches instructions and commits each transaction
// atomically: either every change of every instruction is written in one
// batch or none is.
//
// Transactions are executed one at a time in submission order.
type Ledger struct {
	mu sync.Mutex
	db storage.Database

	progMu   sync.RWMutex
	programs map[types.Pubkey]registeredProgram

	pauses  nativecommon.PauseView
	emitter events.Emitter
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option customises a Ledger.
type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithEmitter publishes the events of committed transactions to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(l *Ledger) {
		if emitter != nil {
			l.emitter = emitter
		}
	}
}

// WithPauses blocks instructions for programs that pauses reports as paused.
func WithPauses(pauses nativecommon.PauseView) Option {
	return func(l *Ledger) { l.pauses = pauses }
}

func New(db storage.Database, opts ...Option) *Ledger {
	l := &Ledger{
		db:       db,
		programs: make(map[types.Pubkey]registeredProgram),
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("escrowchain/ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegisterProgram makes program executable under id. The name is used for
// pausing, metrics and logs.
func (l *Ledger) RegisterProgram(name string, id types.Pubkey, program Program) error {
	if program == nil {
		return fmt.Errorf("ledger: program %q is nil", name)
	}
	if id.IsZero() {
		return fmt.Errorf("ledger: program %q has empty id", name)
	}
	l.progMu.Lock()
	defer l.progMu.Unlock()
	if existing, ok := l.programs[id]; ok {
		return fmt.Errorf("ledger: program id %s already registered as %q", id, existing.name)
	}
	l.programs[id] = registeredProgram{name: name, program: program}
	return nil
}

func (l *Ledger) program(id types.Pubkey) (registeredProgram, bool) {
	l.progMu.RLock()
	defer l.progMu.RUnlock()
	reg, ok := l.programs[id]
	return reg, ok
}

// programAccount returns the synthetic executable record of a registered
// program. Program records are never persisted.
func (l *Ledger) programAccount(id types.Pubkey) (*types.Account, bool) {
	reg, ok := l.program(id)
	if !ok {
		return nil, false
	}
	return &types.Account{Owner: types.NativeLoaderID, Executable: true, Data: []byte(reg.name)}, true
}

func (l *Ledger) readAccount(key types.Pubkey) (*types.Account, bool, error) {
	raw, err := l.db.Get(accountKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	acc := new(types.Account)
	if err := rlp.DecodeBytes(raw, acc); err != nil {
		return nil, false, fmt.Errorf("ledger: decode account %s: %w", key, err)
	}
	return acc, true, nil
}

// Account returns the committed record stored under key.
func (l *Ledger) Account(key types.Pubkey) (*types.Account, bool, error) {
	if acc, ok := l.programAccount(key); ok {
		return acc, true, nil
	}
	return l.readAccount(key)
}

// SetAccount writes a record directly, bypassing program ownership checks.
// It exists for genesis and must not be used while serving transactions.
func (l *Ledger) SetAccount(key types.Pubkey, acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("ledger: nil account for %s", key)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if acc.IsEmpty() {
		return l.db.Delete(accountKey(key))
	}
	encoded, err := rlp.EncodeToBytes(acc)
	if err != nil {
		return err
	}
	return l.db.Put(accountKey(key), encoded)
}

// SetRent stores the rent-context record.
func (l *Ledger) SetRent(r Rent) error {
	return l.SetAccount(types.RentSysvarID, NewRentAccount(r))
}

// Rent returns the committed rent model.
func (l *Ledger) Rent() (Rent, error) {
	acc, ok, err := l.readAccount(types.RentSysvarID)
	if err != nil {
		return Rent{}, err
	}
	if !ok {
		return Rent{}, ErrInvalidSysvar
	}
	return UnpackRent(acc.Data)
}

// Receipt returns the stored outcome of the transaction with the given hash.
func (l *Ledger) Receipt(hash common.Hash) (*types.Receipt, bool, error) {
	raw, err := l.db.Get(receiptKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	receipt := new(types.Receipt)
	if err := json.Unmarshal(raw, receipt); err != nil {
		return nil, false, fmt.Errorf("ledger: decode receipt %s: %w", hash.Hex(), err)
	}
	return receipt, true, nil
}

// Execute verifies and runs tx. Transactions that cannot be executed at all
// (bad signatures, replays, no instructions) are rejected with an error and
// no receipt. Once execution starts a receipt is always stored; if an
// instruction fails its error is returned together with the failed receipt
// and no state change of the transaction is kept.
func (l *Ledger) Execute(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil || len(tx.Instructions) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTransaction, types.ErrNoInstructions)
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	signers, err := tx.Signers()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}
	for _, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if meta.IsSigner && !signers[meta.Key] {
				return nil, fmt.Errorf("%w: %s", ErrMissingSignature, meta.Key)
			}
		}
	}

	ctx, span := l.tracer.Start(ctx, "ledger.Execute", trace.WithAttributes(
		attribute.String("tx.hash", hash.Hex()),
		attribute.Int("tx.instructions", len(tx.Instructions)),
	))
	defer span.End()
	start := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	seen, err := l.db.Has(receiptKey(hash))
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransaction, hash.Hex())
	}

	exec := &execution{ctx: ctx, ledger: l, signers: signers, overlay: newOverlay(l)}
	receipt := &types.Receipt{TxHash: hash, Events: []types.Event{}}
	var execErr error
	for i, ix := range tx.Instructions {
		if err := exec.run(nil, ix); err != nil {
			execErr = &InstructionError{Index: i, Err: err}
			receipt.Instruction = i
			break
		}
	}

	batch := l.db.NewBatch()
	if execErr == nil {
		if err := exec.overlay.flush(batch); err != nil {
			return nil, fmt.Errorf("ledger: stage commit: %w", err)
		}
		receipt.Status = types.ReceiptSuccess
		receipt.Events = exec.payloads()
	} else {
		receipt.Status = types.ReceiptFailed
		receipt.Code = ErrorCode(execErr)
		receipt.Error = execErr.Error()
	}
	encoded, err := json.Marshal(receipt)
	if err != nil {
		return nil, err
	}
	batch.Put(receiptKey(hash), encoded)
	if err := batch.Write(); err != nil {
		return nil, fmt.Errorf("ledger: commit: %w", err)
	}

	metrics.Ledger().ObserveTransaction(receipt.Status.String(), time.Since(start))
	if execErr != nil {
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
		l.logger.Info("transaction failed",
			"hash", hash.Hex(),
			"instruction", receipt.Instruction,
			"code", receipt.Code,
			"error", execErr)
		return receipt, execErr
	}
	l.logger.Debug("transaction committed",
		"hash", hash.Hex(),
		"instructions", len(tx.Instructions),
		"events", len(receipt.Events))
	for _, evt := range exec.events {
		l.emitter.Emit(evt)
	}
	return receipt, nil
}

// overlay is the copy-on-write view of the record store used while a
// transaction executes.
type overlay struct {
	ledger    *Ledger
	accounts  map[types.Pubkey]*types.Account
	original  map[types.Pubkey]*types.Account
	synthetic map[types.Pubkey]bool
}

func newOverlay(l *Ledger) *overlay {
	return &overlay{
		ledger:    l,
		accounts:  make(map[types.Pubkey]*types.Account),
		original:  make(map[types.Pubkey]*types.Account),
		synthetic: make(map[types.Pubkey]bool),
	}
}

func (o *overlay) load(key types.Pubkey) (*types.Account, error) {
	if acc, ok := o.accounts[key]; ok {
		return acc, nil
	}
	if acc, ok := o.ledger.programAccount(key); ok {
		o.accounts[key] = acc
		o.synthetic[key] = true
		return acc, nil
	}
	stored, found, err := o.ledger.readAccount(key)
	if err != nil {
		return nil, err
	}
	if found {
		o.original[key] = stored.Clone()
	} else {
		stored = types.NewEmptyAccount()
	}
	o.accounts[key] = stored
	return stored, nil
}

func (o *overlay) flush(batch storage.Batch) error {
	keys := make([]types.Pubkey, 0, len(o.accounts))
	for key := range o.accounts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	for _, key := range keys {
		if o.synthetic[key] {
			continue
		}
		acc := o.accounts[key]
		orig := o.original[key]
		if orig == nil && acc.IsEmpty() {
			continue
		}
		if orig != nil && orig.Equal(acc) {
			continue
		}
		if acc.IsEmpty() {
			batch.Delete(accountKey(key))
			continue
		}
		encoded, err := rlp.EncodeToBytes(acc)
		if err != nil {
			return err
		}
		batch.Put(accountKey(key), encoded)
	}
	return nil
}

type preState struct {
	account  *types.Account
	writable bool
}

// frame is one program invocation: the top-level instruction or a
// cross-program call made from it.
type frame struct {
	programID types.Pubkey
	caller    *frame
	depth     int
	infos     []*AccountInfo
	pre       map[types.Pubkey]*preState
}

func (f *frame) privileges(key types.Pubkey) (signer, writable, ok bool) {
	for _, info := range f.infos {
		if info.Key != key {
			continue
		}
		ok = true
		signer = signer || info.IsSigner
		writable = writable || info.IsWritable
	}
	return signer, writable, ok
}

type execution struct {
	ctx     context.Context
	ledger  *Ledger
	signers map[types.Pubkey]bool
	overlay *overlay
	events  []events.Event
	// aborted latches the first failed cross-program invocation so a caller
	// cannot swallow it.
	aborted error
}

func (x *execution) run(caller *frame, ix types.Instruction) error {
	depth := 0
	if caller != nil {
		depth = caller.depth + 1
	}
	if depth > maxInvokeDepth {
		return ErrCallDepth
	}
	reg, ok := x.ledger.program(ix.ProgramID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProgram, ix.ProgramID)
	}
	if err := nativecommon.Guard(x.ledger.pauses, reg.name); err != nil {
		return fmt.Errorf("%w: %s", ErrProgramPaused, reg.name)
	}
	if caller != nil {
		if _, _, ok := caller.privileges(ix.ProgramID); !ok {
			return fmt.Errorf("%w: program %s", ErrMissingAccount, ix.ProgramID)
		}
	}

	f := &frame{programID: ix.ProgramID, caller: caller, depth: depth, pre: make(map[types.Pubkey]*preState)}
	for _, meta := range ix.Accounts {
		if caller == nil {
			if meta.IsSigner && !x.signers[meta.Key] {
				return fmt.Errorf("%w: %s", ErrMissingSignature, meta.Key)
			}
		} else {
			signer, writable, ok := caller.privileges(meta.Key)
			if !ok {
				return fmt.Errorf("%w: %s", ErrMissingAccount, meta.Key)
			}
			if (meta.IsSigner && !signer) || (meta.IsWritable && !writable) {
				return fmt.Errorf("%w: %s", ErrPrivilegeEscalation, meta.Key)
			}
		}
		acc, err := x.overlay.load(meta.Key)
		if err != nil {
			return err
		}
		f.infos = append(f.infos, &AccountInfo{
			Key:        meta.Key,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			Account:    acc,
		})
		if st, seen := f.pre[meta.Key]; seen {
			st.writable = st.writable || meta.IsWritable
			continue
		}
		f.pre[meta.Key] = &preState{account: acc.Clone(), writable: meta.IsWritable}
	}

	ictx := &invokeContext{exec: x, frame: f}
	err := reg.program.Process(ictx, f.infos, ix.Data)
	metrics.Ledger().ObserveInstruction(reg.name, err)
	if err != nil {
		return err
	}
	if x.aborted != nil {
		return x.aborted
	}
	return x.verify(f)
}

// verify checks that the program in f only made changes it is entitled to.
func (x *execution) verify(f *frame) error {
	preTotal, postTotal := new(big.Int), new(big.Int)
	for key, st := range f.pre {
		pre := st.account
		post := x.overlay.accounts[key]
		preTotal.Add(preTotal, new(big.Int).SetUint64(pre.Balance))
		postTotal.Add(postTotal, new(big.Int).SetUint64(post.Balance))
		if pre.Equal(post) {
			continue
		}
		if !st.writable {
			return fmt.Errorf("%w: %s", ErrReadonlyModified, key)
		}
		if pre.Executable || post.Executable {
			return fmt.Errorf("%w: %s", ErrExecutableModified, key)
		}
		allocating := f.programID == types.SystemProgramID &&
			pre.Owner == types.SystemProgramID && len(pre.Data) == 0
		if pre.Owner != post.Owner && !allocating {
			return fmt.Errorf("%w: %s", ErrIllegalOwnerChange, key)
		}
		if len(pre.Data) != len(post.Data) && !allocating {
			return fmt.Errorf("%w: %s", ErrAccountDataSize, key)
		}
		if !bytes.Equal(pre.Data, post.Data) && pre.Owner != f.programID {
			return fmt.Errorf("%w: %s", ErrExternalDataModified, key)
		}
		if post.Balance < pre.Balance && pre.Owner != f.programID {
			return fmt.Errorf("%w: %s", ErrExternalBalanceDebit, key)
		}
	}
	if preTotal.Cmp(postTotal) != 0 {
		return ErrUnbalancedInstruction
	}
	return nil
}

type payloadEvent interface {
	Event() *types.Event
}

func (x *execution) payloads() []types.Event {
	out := make([]types.Event, 0, len(x.events))
	for _, evt := range x.events {
		if p, ok := evt.(payloadEvent); ok && p.Event() != nil {
			out = append(out, *p.Event())
			continue
		}
		out = append(out, types.Event{Type: evt.EventType(), Attributes: map[string]string{}})
	}
	return out
}

type invokeContext struct {
	exec  *execution
	frame *frame
}

func (c *invokeContext) Context() context.Context { return c.exec.ctx }

func (c *invokeContext) ProgramID() types.Pubkey { return c.frame.programID }

func (c *invokeContext) Caller() (types.Pubkey, bool) {
	if c.frame.caller == nil {
		return types.Pubkey{}, false
	}
	return c.frame.caller.programID, true
}

func (c *invokeContext) Invoke(ix types.Instruction) error {
	if err := c.exec.run(c.frame, ix); err != nil {
		if c.exec.aborted == nil {
			c.exec.aborted = err
		}
		return err
	}
	// The callee verified its own changes; rebase the caller's snapshot so
	// they are not attributed to the caller.
	for _, meta := range ix.Accounts {
		if st, ok := c.frame.pre[meta.Key]; ok {
			st.account = c.exec.overlay.accounts[meta.Key].Clone()
		}
	}
	return nil
}

func (c *invokeContext) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	c.exec.events = append(c.exec.events, evt)
}
