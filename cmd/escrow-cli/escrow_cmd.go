package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/escrow"
	"escrowchain/native/system"
)

func runEscrowCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
	switch args[0] {
	case "init":
		return runEscrowInit(args[1:], stdout, stderr)
	case "deposit":
		return runEscrowDeposit(args[1:], stdout, stderr)
	case "complete":
		return runEscrowComplete(args[1:], stdout, stderr)
	case "refund":
		return runEscrowRefund(args[1:], stdout, stderr)
	case "get":
		return runEscrowGet(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown escrow subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
}

func escrowUsage() string {
	return strings.TrimSpace(`Usage:
  escrow-cli escrow <command> [flags]

Commands:
  init      Allocate and initialize an escrow record (optionally depositing)
  deposit   Move the escrowed amount into the vault
  complete  Release the vault to the taker
  refund    Return the vault to the maker
  get       Fetch an escrow record`)
}

func runEscrowInit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow init", stderr, "Usage: escrow-cli escrow init --key <maker keystore> --vault <account> --seed <seed> --amount <n> [--deposit-from <account>]")
	var keyPath, vault, seed, amountStr, depositFrom string
	fs.StringVar(&keyPath, "key", "", "keystore of the maker")
	fs.StringVar(&vault, "vault", "", "token account that will hold the escrowed amount")
	fs.StringVar(&seed, "seed", "", "derivation seed of the escrow record")
	fs.StringVar(&amountStr, "amount", "", "escrowed amount")
	fs.StringVar(&depositFrom, "deposit-from", "", "deposit from this token account in the same transaction")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	vaultKey, err := parseIdentityFlag("vault", vault)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := validateSeed(seed); err != nil {
		return printError(stderr, err.Error())
	}
	amount, err := parseAmount("amount", amountStr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	var source *types.Pubkey
	if strings.TrimSpace(depositFrom) != "" {
		key, err := parseIdentityFlag("deposit-from", depositFrom)
		if err != nil {
			return printError(stderr, err.Error())
		}
		source = &key
	}
	maker, err := loadKey(keyPath, "maker")
	if err != nil {
		return printError(stderr, err.Error())
	}
	makerID := maker.PubKey().Identity()

	rent, err := fetchRent()
	if err != nil {
		return printError(stderr, err.Error())
	}
	create, record := system.NewCreateAccountInstruction(makerID, system.CreateAccount{
		Balance: rent.MinimumBalance(escrow.RecordSize),
		Space:   escrow.RecordSize,
		Owner:   escrow.ProgramID,
		Seed:    seed,
	})
	ixs := []types.Instruction{create, escrow.NewInitializeInstruction(makerID, vaultKey, record, amount)}
	if source != nil {
		ixs = append(ixs, escrow.NewDepositInstruction(makerID, vaultKey, *source, record, amount))
	}
	tx, err := buildTransaction([]*crypto.PrivateKey{maker}, ixs...)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "Escrow record: %s\n", crypto.NewAddress(crypto.IdentityPrefix, record))
	return submit(tx, stdout, stderr)
}

func runEscrowDeposit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow deposit", stderr, "Usage: escrow-cli escrow deposit --key <maker keystore> --record <record> --source <account> --amount <n>")
	var keyPath, record, source, amountStr string
	fs.StringVar(&keyPath, "key", "", "keystore of the maker")
	fs.StringVar(&record, "record", "", "escrow record")
	fs.StringVar(&source, "source", "", "maker token account to draw from")
	fs.StringVar(&amountStr, "amount", "", "amount; must equal the escrowed amount")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	recordKey, err := parseIdentityFlag("record", record)
	if err != nil {
		return printError(stderr, err.Error())
	}
	sourceKey, err := parseIdentityFlag("source", source)
	if err != nil {
		return printError(stderr, err.Error())
	}
	amount, err := parseAmount("amount", amountStr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	state, err := fetchEscrow(recordKey)
	if err != nil {
		return printError(stderr, err.Error())
	}
	maker, err := loadKey(keyPath, "maker")
	if err != nil {
		return printError(stderr, err.Error())
	}
	ix := escrow.NewDepositInstruction(maker.PubKey().Identity(), state.Vault, sourceKey, recordKey, amount)
	tx, err := buildTransaction([]*crypto.PrivateKey{maker}, ix)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(tx, stdout, stderr)
}

func runEscrowComplete(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow complete", stderr, "Usage: escrow-cli escrow complete --key <taker keystore> --record <record> --dest <taker token account>")
	var keyPath, record, dest string
	fs.StringVar(&keyPath, "key", "", "keystore of the taker")
	fs.StringVar(&record, "record", "", "escrow record")
	fs.StringVar(&dest, "dest", "", "taker token account receiving the funds")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	recordKey, err := parseIdentityFlag("record", record)
	if err != nil {
		return printError(stderr, err.Error())
	}
	destKey, err := parseIdentityFlag("dest", dest)
	if err != nil {
		return printError(stderr, err.Error())
	}
	state, err := fetchEscrow(recordKey)
	if err != nil {
		return printError(stderr, err.Error())
	}
	taker, err := loadKey(keyPath, "taker")
	if err != nil {
		return printError(stderr, err.Error())
	}
	ix := escrow.NewCompleteInstruction(taker.PubKey().Identity(), state.Maker, state.Vault, recordKey, destKey)
	tx, err := buildTransaction([]*crypto.PrivateKey{taker}, ix)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(tx, stdout, stderr)
}

func runEscrowRefund(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow refund", stderr, "Usage: escrow-cli escrow refund --key <maker keystore> --record <record> --dest <maker token account>")
	var keyPath, record, dest string
	fs.StringVar(&keyPath, "key", "", "keystore of the maker")
	fs.StringVar(&record, "record", "", "escrow record")
	fs.StringVar(&dest, "dest", "", "maker token account receiving the refund")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	recordKey, err := parseIdentityFlag("record", record)
	if err != nil {
		return printError(stderr, err.Error())
	}
	destKey, err := parseIdentityFlag("dest", dest)
	if err != nil {
		return printError(stderr, err.Error())
	}
	state, err := fetchEscrow(recordKey)
	if err != nil {
		return printError(stderr, err.Error())
	}
	maker, err := loadKey(keyPath, "maker")
	if err != nil {
		return printError(stderr, err.Error())
	}
	ix := escrow.NewRefundInstruction(maker.PubKey().Identity(), state.Vault, recordKey, destKey)
	tx, err := buildTransaction([]*crypto.PrivateKey{maker}, ix)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(tx, stdout, stderr)
}

func runEscrowGet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow get", stderr, "Usage: escrow-cli escrow get --record <record>")
	var record string
	fs.StringVar(&record, "record", "", "escrow record")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if _, err := parseIdentityFlag("record", record); err != nil {
		return printError(stderr, err.Error())
	}
	return query("escrow_getEscrow", record, stdout, stderr)
}

type escrowView struct {
	Status string        `json:"status"`
	Maker  types.Pubkey  `json:"maker"`
	Taker  *types.Pubkey `json:"taker"`
	Vault  types.Pubkey  `json:"vault"`
	Amount uint64        `json:"amount"`
}

func fetchEscrow(record types.Pubkey) (*escrowView, error) {
	result, rpcErr, err := rpcCall("escrow_getEscrow", []interface{}{record.String()}, false)
	if err != nil {
		return nil, err
	}
	if rpcErr != nil {
		return nil, fmt.Errorf("RPC error %d: %s", rpcErr.Code, rpcErr.Message)
	}
	var view escrowView
	if err := json.Unmarshal(result, &view); err != nil {
		return nil, fmt.Errorf("decode escrow record: %w", err)
	}
	return &view, nil
}
