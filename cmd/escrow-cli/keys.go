package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"escrowchain/cmd/internal/passphrase"
	"escrowchain/core/types"
	"escrowchain/crypto"
	"escrowchain/native/escrow"
	"escrowchain/native/system"
	"escrowchain/native/token"
)

const keystorePassEnv = "ESCROW_KEYSTORE_PASS"

func newFlagSet(name string, stderr io.Writer, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags parses args and rejects positional leftovers.
func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func loadKey(path, label string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--key is required")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("keystore %s not found. run escrow-cli keygen first", path)
		}
		return nil, err
	}
	pass, err := passphrase.NewSource(keystorePassEnv, label).Get()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr, "Usage: escrow-cli keygen --out <keystore.json> [--light]")
	var (
		out   string
		light bool
	)
	fs.StringVar(&out, "out", "", "path of the keystore file to write")
	fs.BoolVar(&light, "light", false, "use a cheap scrypt cost (development only)")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(out) == "" {
		return printError(stderr, "--out is required")
	}
	if _, err := os.Stat(out); err == nil {
		return printError(stderr, fmt.Sprintf("%s already exists; refusing to overwrite", out))
	}
	pass, err := passphrase.NewSource(keystorePassEnv, "new keystore").Get()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	params := crypto.StandardScrypt
	if light {
		params = crypto.LightScrypt
	}
	if err := crypto.SaveToKeystoreWithParams(out, key, pass, params); err != nil {
		return printError(stderr, fmt.Sprintf("failed to write keystore: %v", err))
	}
	fmt.Fprintf(stdout, "Keystore written to %s\n", out)
	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address())
	fmt.Fprintf(stdout, "Key:     %s\n", key.PubKey().Identity())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr, "Usage: escrow-cli address --key <keystore.json>")
	var keyPath string
	fs.StringVar(&keyPath, "key", "", "keystore file")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	key, err := loadKey(keyPath, "keystore")
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "Address: %s\n", key.PubKey().Address())
	fmt.Fprintf(stdout, "Key:     %s\n", key.PubKey().Identity())
	return 0
}

func runDerive(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("derive", stderr, "Usage: escrow-cli derive --base <address> --seed <seed> --owner <system|token|escrow|address>")
	var base, seed, owner string
	fs.StringVar(&base, "base", "", "identity the record is derived from")
	fs.StringVar(&seed, "seed", "", "derivation seed")
	fs.StringVar(&owner, "owner", "", "owner program")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	baseKey, err := crypto.ParseIdentity(base)
	if err != nil {
		return printError(stderr, fmt.Sprintf("--base: %v", err))
	}
	if err := validateSeed(seed); err != nil {
		return printError(stderr, err.Error())
	}
	ownerKey, err := parseProgram(owner)
	if err != nil {
		return printError(stderr, err.Error())
	}
	derived := crypto.DeriveAddress(baseKey, seed, ownerKey)
	fmt.Fprintf(stdout, "Address: %s\n", crypto.NewAddress(crypto.IdentityPrefix, derived))
	fmt.Fprintf(stdout, "Key:     %s\n", derived)
	return 0
}

func runAccount(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("account", stderr, "Usage: escrow-cli account --address <address>")
	var address string
	fs.StringVar(&address, "address", "", "record address or hex key")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if _, err := crypto.ParseIdentity(address); err != nil {
		return printError(stderr, fmt.Sprintf("--address: %v", err))
	}
	return query("ledger_getAccount", address, stdout, stderr)
}

func runReceipt(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("receipt", stderr, "Usage: escrow-cli receipt --hash <0x tx hash>")
	var hash string
	fs.StringVar(&hash, "hash", "", "transaction hash")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if !strings.HasPrefix(hash, "0x") || len(hash) != 66 {
		return printError(stderr, "--hash must be a 0x-prefixed 32 byte hash")
	}
	return query("ledger_getReceipt", hash, stdout, stderr)
}

// parseProgram resolves a program name or an explicit key.
func parseProgram(value string) (types.Pubkey, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case system.Name:
		return system.ProgramID, nil
	case token.Name:
		return token.ProgramID, nil
	case escrow.Name:
		return escrow.ProgramID, nil
	case "":
		return types.Pubkey{}, fmt.Errorf("--owner is required")
	}
	key, err := crypto.ParseIdentity(value)
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("--owner: %w", err)
	}
	return key, nil
}

func validateSeed(seed string) error {
	if seed == "" {
		return fmt.Errorf("--seed is required")
	}
	if len(seed) > system.MaxSeedLength {
		return fmt.Errorf("--seed must be at most %d bytes", system.MaxSeedLength)
	}
	return nil
}
