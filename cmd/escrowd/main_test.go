package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"escrowchain/config"
	"escrowchain/core/genesis"
	"escrowchain/core/ledger"
	"escrowchain/core/types"
	"escrowchain/native/escrow"
	"escrowchain/storage"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestResolveGenesisPathPrecedence(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key != genesisPathEnv {
			t.Fatalf("unexpected lookup key: %s", key)
		}
		return "env-path", true
	}
	if got := resolveGenesisPath(" cli-path ", "cfg-path", lookup); got != "cli-path" {
		t.Fatalf("cli flag must win, got %q", got)
	}
	if got := resolveGenesisPath("", "cfg-path", lookup); got != "env-path" {
		t.Fatalf("environment must override config, got %q", got)
	}
	blank := func(string) (string, bool) { return "  ", true }
	if got := resolveGenesisPath("", " cfg-path ", blank); got != "cfg-path" {
		t.Fatalf("config must be used when others are blank, got %q", got)
	}
	if got := resolveGenesisPath("", "", blank); got != "" {
		t.Fatalf("expected default genesis, got %q", got)
	}
}

func TestNewLedgerRegistersProgramsAndPauses(t *testing.T) {
	cfg := config.Default()
	cfg.PausedPrograms = []string{escrow.Name}
	l, err := newLedger(storage.NewMemDB(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("newLedger: %v", err)
	}
	acc, ok, err := l.Account(escrow.ProgramID)
	if err != nil || !ok {
		t.Fatalf("escrow program account missing: %v", err)
	}
	if !acc.Executable || acc.Owner != types.NativeLoaderID {
		t.Fatalf("unexpected program account %+v", acc)
	}
}

func TestBootstrapGenesisDefaultsAndIsIdempotent(t *testing.T) {
	l, err := newLedger(storage.NewMemDB(), config.Default(), discardLogger())
	if err != nil {
		t.Fatalf("newLedger: %v", err)
	}
	if err := bootstrapGenesis(l, "", config.DefaultNetworkName, discardLogger()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	rent, err := l.Rent()
	if err != nil {
		t.Fatalf("rent missing after genesis: %v", err)
	}
	if rent != ledger.DefaultRent {
		t.Fatalf("unexpected rent %+v", rent)
	}
	if err := bootstrapGenesis(l, "/does/not/exist.yaml", config.DefaultNetworkName, discardLogger()); err != nil {
		t.Fatalf("second start must ignore the genesis file: %v", err)
	}
	done, err := genesis.Initialized(l)
	if err != nil || !done {
		t.Fatalf("expected genesis initialized, got %v %v", done, err)
	}
}

func TestBootstrapGenesisRejectsNetworkMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte("network: other-net\ngenesisTime: \"2024-01-01T00:00:00Z\"\n"), 0o600); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	l, err := newLedger(storage.NewMemDB(), config.Default(), discardLogger())
	if err != nil {
		t.Fatalf("newLedger: %v", err)
	}
	if err := bootstrapGenesis(l, path, config.DefaultNetworkName, discardLogger()); err == nil {
		t.Fatal("expected network mismatch error")
	}
}
