package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edugrants/audit"
	"edugrants/config"
	"edugrants/core/state"
	"edugrants/gateway"
	"edugrants/native/grants"
	"edugrants/observability/logging"
	"edugrants/rpc"
	"edugrants/storage"
)

var genesisMarkerKey = []byte("grants/genesis")

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("EDUGRANTS_ENV"))
	logger := logging.Setup("edugrants", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	ledger := state.NewLedger(db)
	if err := ledger.Load(); err != nil {
		logger.Error("Failed to load ledger checkpoint", slog.Any("error", err))
		os.Exit(1)
	}
	if err := seedGenesis(db, ledger, cfg, logger); err != nil {
		logger.Error("Failed to seed genesis state", slog.Any("error", err))
		os.Exit(1)
	}

	journal, err := audit.NewStore(filepath.Join(cfg.DataDir, "events.db"), nil)
	if err != nil {
		logger.Error("Failed to open audit journal", slog.Any("error", err))
		os.Exit(1)
	}
	defer journal.Close()
	journal.SetLogger(logger)

	owner, err := cfg.OwnerAddress()
	if err != nil {
		logger.Error("Invalid owner address", slog.Any("error", err))
		os.Exit(1)
	}
	collector, err := cfg.FeeCollectorAddress()
	if err != nil {
		logger.Error("Invalid fee collector address", slog.Any("error", err))
		os.Exit(1)
	}

	engine := grants.NewEngine()
	engine.SetState(ledger)
	engine.SetEmitter(journal)
	engine.SetAuthorizer(grants.OwnerAuthorizer{Owner: owner})
	engine.SetFeeCollector(collector)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("starting metrics server", slog.String("addr", cfg.MetricsAddress))
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()

	go func() {
		logger.Info("starting read gateway", slog.String("addr", cfg.GatewayAddress))
		if err := http.ListenAndServe(cfg.GatewayAddress, gateway.New(engine, logger)); err != nil {
			logger.Error("gateway stopped", slog.Any("error", err))
		}
	}()

	server := rpc.NewServer(engine, ledger, journal, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// seedGenesis applies the configured allocations and initial fee exactly
// once, on the first boot of a fresh data directory.
func seedGenesis(db storage.Database, ledger *state.Ledger, cfg *config.Config, logger *slog.Logger) error {
	seeded, err := db.Has(genesisMarkerKey)
	if err != nil {
		return err
	}
	if seeded {
		return nil
	}
	for _, alloc := range cfg.Alloc {
		addr, balance, err := alloc.Entry()
		if err != nil {
			return err
		}
		if err := ledger.Credit(addr, balance); err != nil {
			return err
		}
	}
	if cfg.FeeBps > 0 {
		if err := ledger.FeeBpsPut(cfg.FeeBps); err != nil {
			return err
		}
	}
	if err := ledger.Commit(); err != nil {
		return err
	}
	if err := db.Put(genesisMarkerKey, []byte{0x01}); err != nil {
		return err
	}
	logger.Info("seeded genesis state",
		slog.Int("allocations", len(cfg.Alloc)),
		slog.Uint64("feeBps", uint64(cfg.FeeBps)))
	return nil
}
