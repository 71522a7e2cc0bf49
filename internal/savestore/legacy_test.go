package savestore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/internal/core/history"
	"github.com/yndnr/storyline-go/internal/storage/kvstore"
	"github.com/yndnr/storyline-go/pkg/delta"
)

func TestLegacyKey(t *testing.T) {
	tests := []struct {
		slot int
		key  string
	}{
		{0, "save.auto"},
		{1, "save.slot.0"},
		{12, "save.slot.11"},
	}
	for _, tt := range tests {
		if got := LegacyKey(tt.slot); got != tt.key {
			t.Errorf("LegacyKey(%d) = %q, want %q", tt.slot, got, tt.key)
		}
		slot, ok := parseLegacyKey(tt.key)
		if !ok || slot != tt.slot {
			t.Errorf("parseLegacyKey(%q) = %d, %v; want %d", tt.key, slot, ok, tt.slot)
		}
	}
	for _, key := range []string{"saves", "save.slot.", "save.slot.x", "save.slot.-1", "settings"} {
		if _, ok := parseLegacyKey(key); ok {
			t.Errorf("parseLegacyKey(%q) accepted", key)
		}
	}
}

func seedLegacy(t *testing.T, kv kvstore.Store) {
	t.Helper()
	ctx := context.Background()

	compressed := snapshotOf("X", "Y", "Z")
	d, err := history.DeltaEncode(delta.New(), compressed.History)
	if err != nil {
		t.Fatal(err)
	}
	compressed.History, compressed.Delta = nil, d

	bundle := legacyBundle{
		Autosave: &legacySave{Title: "auto", Date: 10, State: snapshotOf("A")},
		Slots: []*legacySave{
			nil,
			{Title: "second", Date: 20, Metadata: domain.Metadata{SaveID: "svid-keep", SaveName: "mine"}, State: compressed},
		},
	}
	data, _ := json.Marshal(bundle)
	if err := kv.Set(ctx, LegacyKeySaves, data); err != nil {
		t.Fatal(err)
	}

	fifth, _ := json.Marshal(legacySave{ID: "other-story", Title: "fifth", Date: 30, State: snapshotOf("P", "Q")})
	if err := kv.Set(ctx, "save.slot.4", fifth); err != nil {
		t.Fatal(err)
	}
	if err := kv.Set(ctx, SettingsKey, []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
}

func TestMigrateLegacy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedLegacy(t, f.legacy)

	if err := f.store.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	n, err := f.store.MigrateLegacy(ctx)
	if err != nil {
		t.Fatalf("MigrateLegacy: %v", err)
	}
	if n != 3 {
		t.Fatalf("migrated %d slots, want 3", n)
	}

	details, err := f.store.GetDetails(ctx)
	if err != nil {
		t.Fatal(err)
	}
	bySlot := map[int]domain.Details{}
	for _, d := range details {
		bySlot[d.Slot] = d.Data
	}
	if len(bySlot) != 3 {
		t.Fatalf("details slots = %v, want 0, 2 and 5", bySlot)
	}
	if bySlot[2].Metadata.SaveID != "svid-keep" || bySlot[2].Metadata.SaveName != "mine" {
		t.Errorf("slot 2 metadata = %+v, want the legacy save id kept", bySlot[2].Metadata)
	}
	if !domain.IsSaveID(bySlot[0].Metadata.SaveID) {
		t.Errorf("slot 0 save id = %q, want a generated id", bySlot[0].Metadata.SaveID)
	}
	if bySlot[0].ID != "test-story" || bySlot[5].ID != "other-story" {
		t.Errorf("story ids = %q, %q", bySlot[0].ID, bySlot[5].ID)
	}

	rec, err := f.store.Get(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Data.Len() != 3 || rec.Data.SaveID != "svid-keep" {
		t.Errorf("slot 2 = %d moments, save id %q", rec.Data.Len(), rec.Data.SaveID)
	}

	for _, key := range []string{LegacyKeySaves, "save.slot.4"} {
		if _, err := f.legacy.Get(ctx, key); !errors.Is(err, kvstore.ErrNotFound) {
			t.Errorf("legacy key %q still present (err=%v)", key, err)
		}
	}
	if _, err := f.legacy.Get(ctx, SettingsKey); err != nil {
		t.Errorf("settings removed by migration: %v", err)
	}

	if n, err := f.store.MigrateLegacy(ctx); n != 0 || err != nil {
		t.Errorf("second MigrateLegacy = %d, %v; want 0, nil", n, err)
	}
}

func TestMigrateLegacy_OnlyOnSchemaCreation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.store.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.MigrateLegacy(ctx); err != nil {
		t.Fatal(err)
	}
	_ = f.store.Close()

	seedLegacy(t, f.legacy)
	reopened := New(Config{Opener: f.mem, Legacy: f.legacy, Settings: domain.DefaultSettings()})
	defer reopened.Close()
	if err := reopened.Open(ctx); err != nil {
		t.Fatal(err)
	}
	if n, err := reopened.MigrateLegacy(ctx); n != 0 || err != nil {
		t.Errorf("MigrateLegacy on existing schema = %d, %v; want 0, nil", n, err)
	}
	if _, err := f.legacy.Get(ctx, LegacyKeySaves); err != nil {
		t.Errorf("legacy data touched: %v", err)
	}
}

func TestMigrateLegacy_NeedsObjectStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.store.Open(ctx); err != nil {
		t.Fatal(err)
	}
	s := f.store.Settings()
	s.Active = false
	f.store.SetSettings(s)

	if _, err := f.store.MigrateLegacy(ctx); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("MigrateLegacy error = %v, want ErrBackendUnavailable", err)
	}

	s.Active = true
	f.store.SetSettings(s)
	if _, err := f.store.MigrateLegacy(ctx); err != nil {
		t.Errorf("MigrateLegacy after re-enabling: %v", err)
	}
}

func TestDegradedReadsLegacyLayouts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *Config) { c.Opener = nil })
	seedLegacy(t, f.legacy)

	all, err := f.store.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("GetAll = %d records, want 3", len(all))
	}

	rec, err := f.store.Get(ctx, 2)
	if err != nil || rec.Data.Len() != 3 {
		t.Fatalf("Get(2) = %+v, %v", rec, err)
	}

	mustOK(t, f.store.Delete(ctx, 2))
	if _, err := f.store.Get(ctx, 2); !errors.Is(err, domain.ErrSlotNotFound) {
		t.Errorf("Get(2) after Delete error = %v, want ErrSlotNotFound", err)
	}
	if _, err := f.store.Get(ctx, 0); err != nil {
		t.Errorf("autosave lost by Delete(2): %v", err)
	}

	mustOK(t, f.store.Clear(ctx))
	all, _ = f.store.GetAll(ctx)
	if len(all) != 0 {
		t.Errorf("GetAll after Clear = %d records", len(all))
	}
	if _, err := f.legacy.Get(ctx, SettingsKey); err != nil {
		t.Errorf("Clear removed settings: %v", err)
	}
}
