package main

import (
	"fmt"
	"io"
	"strings"

	"escrowchain/core/genesis"
	"escrowchain/crypto"
	"escrowchain/native/system"
	"escrowchain/native/token"
)

func runTokenCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, tokenUsage())
		return 1
	}
	switch args[0] {
	case "create-account":
		return runTokenCreateAccount(args[1:], stdout, stderr)
	case "transfer":
		return runTokenTransfer(args[1:], stdout, stderr)
	case "get":
		return runTokenGet(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown token subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, tokenUsage())
		return 1
	}
}

func tokenUsage() string {
	return strings.TrimSpace(`Usage:
  escrow-cli token <command> [flags]

Commands:
  create-account  Allocate and initialize a token account
  transfer        Move tokens between accounts
  get             Fetch a token account`)
}

func runTokenCreateAccount(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token create-account", stderr, "Usage: escrow-cli token create-account --key <keystore> --seed <seed> --mint <mint> [--owner <address>]")
	var keyPath, seed, mint, owner string
	fs.StringVar(&keyPath, "key", "", "keystore of the payer")
	fs.StringVar(&seed, "seed", "", "derivation seed of the new account")
	fs.StringVar(&mint, "mint", "", "mint as hex key or symbol")
	fs.StringVar(&owner, "owner", "", "token owner (defaults to the payer)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if err := validateSeed(seed); err != nil {
		return printError(stderr, err.Error())
	}
	mintKey, err := genesis.ParseMint(mint)
	if err != nil {
		return printError(stderr, fmt.Sprintf("--mint: %v", err))
	}
	payer, err := loadKey(keyPath, "payer")
	if err != nil {
		return printError(stderr, err.Error())
	}
	payerID := payer.PubKey().Identity()
	ownerID := payerID
	if strings.TrimSpace(owner) != "" {
		if ownerID, err = parseIdentityFlag("owner", owner); err != nil {
			return printError(stderr, err.Error())
		}
	}

	rent, err := fetchRent()
	if err != nil {
		return printError(stderr, err.Error())
	}
	create, holding := system.NewCreateAccountInstruction(payerID, system.CreateAccount{
		Balance: rent.MinimumBalance(token.AccountSize),
		Space:   token.AccountSize,
		Owner:   token.ProgramID,
		Seed:    seed,
	})
	tx, err := buildTransaction([]*crypto.PrivateKey{payer}, create, token.NewInitializeAccountInstruction(holding, mintKey, ownerID))
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "Token account: %s\n", crypto.NewAddress(crypto.IdentityPrefix, holding))
	return submit(tx, stdout, stderr)
}

func runTokenTransfer(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token transfer", stderr, "Usage: escrow-cli token transfer --key <keystore> --source <account> --dest <account> --amount <n>")
	var keyPath, source, dest, amountStr string
	fs.StringVar(&keyPath, "key", "", "keystore of the owner or delegate")
	fs.StringVar(&source, "source", "", "source token account")
	fs.StringVar(&dest, "dest", "", "destination token account")
	fs.StringVar(&amountStr, "amount", "", "amount to move")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	sourceKey, err := parseIdentityFlag("source", source)
	if err != nil {
		return printError(stderr, err.Error())
	}
	destKey, err := parseIdentityFlag("dest", dest)
	if err != nil {
		return printError(stderr, err.Error())
	}
	amount, err := parseAmount("amount", amountStr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	authority, err := loadKey(keyPath, "authority")
	if err != nil {
		return printError(stderr, err.Error())
	}
	ix := token.NewTransferInstruction(sourceKey, destKey, authority.PubKey().Identity(), true, amount)
	tx, err := buildTransaction([]*crypto.PrivateKey{authority}, ix)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(tx, stdout, stderr)
}

func runTokenGet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token get", stderr, "Usage: escrow-cli token get --account <account>")
	var account string
	fs.StringVar(&account, "account", "", "token account address")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if _, err := parseIdentityFlag("account", account); err != nil {
		return printError(stderr, err.Error())
	}
	return query("token_getAccount", account, stdout, stderr)
}
