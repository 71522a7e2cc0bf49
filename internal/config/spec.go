package config

import (
	"time"

	"github.com/yndnr/storyline-go/internal/core/domain"
)

// Config is the root configuration for the storyline binary.
type Config struct {
	Story    StorySection    `koanf:"story"`
	Storage  StorageSection  `koanf:"storage"`
	History  HistorySection  `koanf:"history"`
	Session  SessionSection  `koanf:"session"`
	Saves    domain.Settings `koanf:"saves"`
	Security SecuritySection `koanf:"security"`
	Log      LogSection      `koanf:"log"`
	Metrics  MetricsSection  `koanf:"metrics"`
}

// StorySection identifies the story whose saves are managed.
type StorySection struct {
	ID string `koanf:"id"`

	// Seed seeds the PRNG of a new playthrough. Empty draws one.
	Seed string `koanf:"seed"`
}

// StorageSection configures where saves live.
type StorageSection struct {
	DataDir string `koanf:"data_dir"`

	// Backend selects the save database: "badger", or "legacy" to keep
	// saves in the legacy store only.
	Backend string `koanf:"backend"`

	// DBName is the save database name inside DataDir.
	DBName string `koanf:"db_name"`

	// GCInterval is the Badger value-log GC interval.
	GCInterval string `koanf:"gc_interval"`

	// LegacyQuota bounds the legacy store in bytes. <= 0 is unbounded.
	LegacyQuota int64 `koanf:"legacy_quota"`
}

// HistorySection bounds the in-memory history.
type HistorySection struct {
	MaxStates  int `koanf:"max_states"`
	MaxExpired int `koanf:"max_expired"`
}

// SessionSection configures the transient session snapshot.
type SessionSection struct {
	Key string `koanf:"key"`

	// Depth is the number of moments kept. < 0 keeps all, 0 disables.
	Depth int `koanf:"depth"`

	// Interval throttles snapshots taken on history changes.
	Interval time.Duration `koanf:"interval"`

	// Quota bounds the session store in bytes. <= 0 is unbounded.
	Quota int64 `koanf:"quota"`
}

// SecuritySection configures at-rest encryption of the file stores.
type SecuritySection struct {
	// EncryptionKey is a passphrase. Empty disables encryption.
	EncryptionKey string `koanf:"encryption_key"`

	// Cipher forces "aes-gcm" or "chacha20-poly1305". Empty selects by
	// hardware.
	Cipher string `koanf:"cipher"`
}

// LogSection configures logging.
type LogSection struct {
	// Level is debug, info, warn, error or off.
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsSection configures the Prometheus endpoint of long-running
// commands.
type MetricsSection struct {
	// Addr is the listen address. Empty disables the endpoint.
	Addr string `koanf:"addr"`
}
