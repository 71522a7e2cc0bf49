package savestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/internal/storage/kvstore"
)

// SettingsKey is the key the settings are stored under.
const SettingsKey = "settings"

// SettingsStore persists domain.Settings in a key-value store.
type SettingsStore struct {
	kv       kvstore.Store
	defaults domain.Settings
}

// NewSettingsStore creates a settings store over kv. Fields missing from
// the stored record take their value from defaults.
func NewSettingsStore(kv kvstore.Store, defaults domain.Settings) *SettingsStore {
	return &SettingsStore{kv: kv, defaults: defaults}
}

// Load returns the stored settings, or the defaults when none are stored.
func (s *SettingsStore) Load(ctx context.Context) (domain.Settings, error) {
	out := s.defaults
	data, err := s.kv.Get(ctx, SettingsKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("savestore: load settings: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return s.defaults, domain.ErrPayloadInvalid.WithDetails(SettingsKey).WithCause(err)
	}
	return out, nil
}

// Save stores settings.
func (s *SettingsStore) Save(ctx context.Context, settings domain.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, SettingsKey, data); err != nil {
		return fmt.Errorf("savestore: save settings: %w", err)
	}
	return nil
}

// Reset removes the stored settings.
func (s *SettingsStore) Reset(ctx context.Context) error {
	return s.kv.Delete(ctx, SettingsKey)
}
