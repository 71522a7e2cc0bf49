package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/yndnr/storyline-go/pkg/crypto/adaptive"
)

// Verify validates the configuration and creates the data directory.
func Verify(cfg *Config) error {
	if cfg.Story.ID == "" {
		return errors.New("story.id is required")
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyHistory(&cfg.History); err != nil {
		return err
	}
	if cfg.Session.Key == "" {
		return errors.New("session.key is required")
	}
	if err := verifySecurity(&cfg.Security); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case BackendBadger, BackendLegacy:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendBadger, BackendLegacy, cfg.Backend)
	}
	if cfg.DBName == "" {
		return errors.New("storage.db_name is required")
	}
	if cfg.GCInterval != "" {
		if _, err := time.ParseDuration(cfg.GCInterval); err != nil {
			return fmt.Errorf("storage.gc_interval: %w", err)
		}
	}
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	return nil
}

func verifyHistory(cfg *HistorySection) error {
	if cfg.MaxStates < 1 {
		return errors.New("history.max_states must be at least 1")
	}
	if cfg.MaxExpired < 0 {
		return errors.New("history.max_expired must not be negative")
	}
	return nil
}

func verifySecurity(cfg *SecuritySection) error {
	switch adaptive.CipherType(cfg.Cipher) {
	case "", adaptive.CipherAESGCM, adaptive.CipherChaCha20:
		return nil
	default:
		return fmt.Errorf("security.cipher: unknown cipher %q", cfg.Cipher)
	}
}

func verifyLog(cfg *LogSection) error {
	switch cfg.Level {
	case "debug", "info", "warn", "error", "off":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Level)
	}
	switch cfg.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
	return nil
}
