package config

import (
	"time"

	"github.com/yndnr/storyline-go/internal/core/domain"
)

// Default configuration values.
const (
	DefaultStoryID = "storyline"

	DefaultDataDir    = "./storyline-data"
	DefaultBackend    = BackendBadger
	DefaultDBName     = "storyline"
	DefaultGCInterval = "10m"

	DefaultMaxStates  = 40
	DefaultMaxExpired = 1000

	DefaultSessionKey      = "storyline.session"
	DefaultSessionDepth    = -1
	DefaultSessionInterval = time.Second
	DefaultSessionQuota    = 5 << 20

	DefaultLogLevel  = "off"
	DefaultLogFormat = "text"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendLegacy = "legacy"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Story: StorySection{
			ID: DefaultStoryID,
		},
		Storage: StorageSection{
			DataDir:    DefaultDataDir,
			Backend:    DefaultBackend,
			DBName:     DefaultDBName,
			GCInterval: DefaultGCInterval,
		},
		History: HistorySection{
			MaxStates:  DefaultMaxStates,
			MaxExpired: DefaultMaxExpired,
		},
		Session: SessionSection{
			Key:      DefaultSessionKey,
			Depth:    DefaultSessionDepth,
			Interval: DefaultSessionInterval,
			Quota:    DefaultSessionQuota,
		},
		Saves: domain.DefaultSettings(),
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
