package domain

// Settings are the process-wide save preferences. They survive restarts
// and are independent of any save slot.
type Settings struct {
	WarnSave   bool `json:"warnSave" koanf:"warn_save"`
	WarnLoad   bool `json:"warnLoad" koanf:"warn_load"`
	WarnDelete bool `json:"warnDelete" koanf:"warn_delete"`

	// Active enables the transactional save backend. When false, saves go
	// to the legacy store.
	Active bool `json:"active" koanf:"active"`

	// UseDelta enables delta compression of saved histories.
	UseDelta bool `json:"useDelta" koanf:"use_delta"`

	// CompressAutosave applies UseDelta to slot 0 as well.
	CompressAutosave bool `json:"compressAutosave" koanf:"compress_autosave"`
}

// DefaultSettings returns the settings used when none are persisted.
func DefaultSettings() Settings {
	return Settings{
		WarnSave:   true,
		WarnLoad:   true,
		WarnDelete: true,
		Active:     true,
		UseDelta:   true,
	}
}

// Compress reports whether a save to slot should be delta-encoded.
func (s Settings) Compress(slot int) bool {
	if !s.UseDelta {
		return false
	}
	return slot != AutosaveSlot || s.CompressAutosave
}
