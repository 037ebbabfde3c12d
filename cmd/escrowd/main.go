package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"escrowchain/config"
	"escrowchain/core/genesis"
	"escrowchain/core/ledger"
	"escrowchain/core/types"
	"escrowchain/native/common"
	"escrowchain/native/escrow"
	"escrowchain/native/system"
	"escrowchain/native/token"
	"escrowchain/observability/logging"
	"escrowchain/observability/metrics"
	telemetry "escrowchain/observability/otel"
	"escrowchain/rpc"
	"escrowchain/storage"
)

const (
	serviceName    = "escrowd"
	envVar         = "ESCROW_ENV"
	genesisPathEnv = "ESCROW_GENESIS"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides ESCROW_GENESIS and config GenesisFile)")
	flag.Parse()

	if err := run(*configFile, *genesisFlag); err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, genesisFlag string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	env := strings.TrimSpace(os.Getenv(envVar))
	logger := logging.Setup(serviceName, env, logging.Options{Level: level, File: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	l, err := newLedger(db, cfg, logger)
	if err != nil {
		return err
	}

	genesisPath := resolveGenesisPath(genesisFlag, cfg.GenesisFile, os.LookupEnv)
	if err := bootstrapGenesis(l, genesisPath, cfg.NetworkName, logger); err != nil {
		return err
	}

	server := rpc.NewServer(l, cfg.RPC, logger)
	logger.Info("node started",
		slog.String("network", cfg.NetworkName),
		slog.String("data_dir", cfg.DataDir),
		slog.Any("paused_programs", cfg.PausedPrograms))
	return server.Serve(ctx, cfg.RPCAddress)
}

// newLedger opens the ledger over db and registers the native programs.
func newLedger(db storage.Database, cfg *config.Config, logger *slog.Logger) (*ledger.Ledger, error) {
	l := ledger.New(db,
		ledger.WithLogger(logger),
		ledger.WithEmitter(metrics.Events()),
		ledger.WithPauses(common.NewStaticPauses(cfg.PausedPrograms)),
	)
	programs := []struct {
		name    string
		id      types.Pubkey
		program ledger.Program
	}{
		{system.Name, system.ProgramID, system.New(logger)},
		{token.Name, token.ProgramID, token.New(logger)},
		{escrow.Name, escrow.ProgramID, escrow.NewProcessor()},
	}
	for _, p := range programs {
		if err := l.RegisterProgram(p.name, p.id, p.program); err != nil {
			return nil, fmt.Errorf("register %s program: %w", p.name, err)
		}
	}
	return l, nil
}

// resolveGenesisPath picks the genesis file: flag, then environment, then
// config. An empty result means the default genesis.
func resolveGenesisPath(cliPath, cfgPath string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if value, ok := lookup(genesisPathEnv); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return strings.TrimSpace(cfgPath)
}

// bootstrapGenesis applies the genesis state on first start. Later starts
// keep the stored state and ignore the file.
func bootstrapGenesis(l *ledger.Ledger, path, network string, logger *slog.Logger) error {
	done, err := genesis.Initialized(l)
	if err != nil {
		return fmt.Errorf("inspect genesis state: %w", err)
	}
	if done {
		logger.Info("genesis already applied")
		return nil
	}

	spec := &genesis.GenesisSpec{Network: network}
	if path != "" {
		spec, err = genesis.LoadGenesisSpec(path)
		if err != nil {
			return err
		}
		if spec.Network != "" && spec.Network != network {
			return fmt.Errorf("genesis network %q does not match configured network %q", spec.Network, network)
		}
	}
	if err := genesis.Apply(spec, l); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	logger.Info("genesis applied",
		slog.String("path", path),
		slog.Int("alloc", len(spec.Alloc)),
		slog.Int("token_accounts", len(spec.TokenAccounts)))
	return nil
}
