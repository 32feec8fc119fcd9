package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"fieldtrust/cmd/internal/passphrase"
	"fieldtrust/config"
	"fieldtrust/credential"
	"fieldtrust/identity"
	"fieldtrust/ledger"
	"fieldtrust/observability/logging"
	"fieldtrust/registry"
	"fieldtrust/storage"

	fieldcrypto "fieldtrust/crypto"
)

const keystorePassEnv = "FIELDTRUST_KEYSTORE_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FIELDTRUST_ENV"))
	logger := logging.Setup("fieldtermd", env, "")

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger = logger.With(slog.String("terminal", cfg.TerminalID))

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		panic(fmt.Sprintf("Failed to open state database: %v", err))
	}
	defer db.Close()

	passSource := passphrase.NewSource(keystorePassEnv, "terminal keystore")
	key, err := loadTerminalKey(cfg, passSource.Get)
	if err != nil {
		// A terminal without keys can neither issue nor verify; no
		// degraded mode exists.
		logger.Error("Failed to load terminal key", slog.Any("error", err))
		os.Exit(1)
	}

	role := registry.Role(cfg.TerminalRole)
	reg := registry.New(db)
	record, err := reg.Enroll(cfg.TerminalID, role, key.PubKey().Bytes())
	if err != nil {
		logger.Error("Failed to enroll terminal", slog.Any("error", err))
		os.Exit(1)
	}

	queue, err := ledger.OpenQueue(cfg.ProofQueuePath)
	if err != nil {
		logger.Error("Failed to open proof queue", slog.Any("error", err))
		os.Exit(1)
	}
	defer queue.Close()

	unsynced, err := queue.Unsynced()
	if err != nil {
		logger.Error("Failed to scan proof queue", slog.Any("error", err))
		os.Exit(1)
	}

	// Mint the terminal's badge credential up front so the rendering surface
	// only has to display it.
	issuer := credential.NewIssuer(key)
	badge, err := issuer.Issue(map[string]interface{}{
		"type":       badgeType(role),
		"terminalId": cfg.TerminalID,
		"marketId":   cfg.MarketID,
	})
	if err != nil {
		logger.Error("Failed to issue badge credential", slog.Any("error", err))
		os.Exit(1)
	}

	// The recorder carries the identity gate consulted before high-value
	// collections. The deployment swaps AllowAll for the site's liveness
	// capability when one is present.
	recorder := ledger.NewRecorder()
	recorder.SetGate(identity.AllowAll{}, cfg.GateThresholdAmount)

	fingerprint := recorder.Fingerprint()
	logger.Info("Terminal ready",
		slog.String("market", cfg.MarketID),
		slog.String("role", string(role)),
		slog.String("address", record.Address),
		slog.String("fingerprint", fingerprint),
		slog.Int("unsynced_proofs", len(unsynced)),
		slog.Int("badge_bytes", len(badge)),
		slog.Duration("freshness_window", cfg.FreshnessWindow()),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("Shutting down", slog.String("signal", received.String()))
}

func badgeType(role registry.Role) string {
	if role == registry.RoleAgent {
		return "AGENT_BADGE"
	}
	return "STALL_BADGE"
}

// loadTerminalKey decrypts the configured keystore, generating and persisting
// a fresh key pair on first start.
func loadTerminalKey(cfg *config.Config, pass func() (string, error)) (*fieldcrypto.PrivateKey, error) {
	if _, err := os.Stat(cfg.KeystorePath); err == nil {
		secret, err := pass()
		if err != nil {
			return nil, err
		}
		return fieldcrypto.LoadFromKeystore(cfg.KeystorePath, secret)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	key, err := fieldcrypto.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate terminal key: %w", err)
	}
	secret, err := pass()
	if err != nil {
		return nil, err
	}
	if err := fieldcrypto.SaveToKeystore(cfg.KeystorePath, key, secret); err != nil {
		return nil, fmt.Errorf("persist terminal key: %w", err)
	}
	return key, nil
}
