package savestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/internal/core/history"
	"github.com/yndnr/storyline-go/internal/storage/kvstore"
)

// Legacy key layouts. Layout A keeps every save under one key as
// {autosave, slots[]}; layout B keeps one key per slot. slots[i] and
// save.slot.<i> both hold user slot i+1.
const (
	LegacyKeySaves      = "saves"
	LegacyKeyAutosave   = "save.auto"
	LegacyKeySlotPrefix = "save.slot."
)

// legacySave is one save in either legacy layout.
type legacySave struct {
	ID       string           `json:"id"`
	Title    string           `json:"title"`
	Date     int64            `json:"date"`
	Metadata domain.Metadata  `json:"metadata"`
	State    *domain.Snapshot `json:"state"`
}

type legacyBundle struct {
	Autosave *legacySave   `json:"autosave"`
	Slots    []*legacySave `json:"slots"`
}

// LegacyKey returns the layout B key of slot.
func LegacyKey(slot int) string {
	if slot == domain.AutosaveSlot {
		return LegacyKeyAutosave
	}
	return LegacyKeySlotPrefix + strconv.Itoa(slot-1)
}

// parseLegacyKey maps a layout B key back to its slot.
func parseLegacyKey(key string) (int, bool) {
	if key == LegacyKeyAutosave {
		return domain.AutosaveSlot, true
	}
	rest, ok := strings.CutPrefix(key, LegacyKeySlotPrefix)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(rest)
	if err != nil || i < 0 {
		return 0, false
	}
	return i + 1, true
}

func newLegacySave(rec domain.SaveRecord, det domain.Details) legacySave {
	state := rec.Data
	return legacySave{
		ID:       det.ID,
		Title:    det.Title,
		Date:     det.Date,
		Metadata: det.Metadata,
		State:    &state,
	}
}

func (ls legacySave) records(slot int) (domain.SaveRecord, domain.DetailsRecord) {
	rec := domain.SaveRecord{Slot: slot}
	if ls.State != nil {
		rec.Data = *ls.State
	}
	det := domain.DetailsRecord{
		Slot: slot,
		Data: domain.Details{ID: ls.ID, Title: ls.Title, Date: ls.Date, Metadata: ls.Metadata},
	}
	return rec, det
}

func (s *Store) readBundle(ctx context.Context) (*legacyBundle, error) {
	data, err := s.legacy.Get(ctx, LegacyKeySaves)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("savestore: read legacy %q: %w", LegacyKeySaves, err)
	}
	var b legacyBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, domain.ErrPayloadInvalid.WithDetails("legacy " + LegacyKeySaves).WithCause(err)
	}
	return &b, nil
}

func (s *Store) readSlotKey(ctx context.Context, key string) (*legacySave, error) {
	data, err := s.legacy.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("savestore: read legacy %q: %w", key, err)
	}
	var ls legacySave
	if err := json.Unmarshal(data, &ls); err != nil {
		return nil, domain.ErrPayloadInvalid.WithDetails("legacy " + key).WithCause(err)
	}
	return &ls, nil
}

// readLegacy collects the saves of both layouts, layout B winning, and
// the keys they were read from.
func (s *Store) readLegacy(ctx context.Context) (map[int]legacySave, []string, error) {
	saves := make(map[int]legacySave)
	var keys []string

	bundle, err := s.readBundle(ctx)
	if err != nil {
		return nil, nil, err
	}
	if bundle != nil {
		keys = append(keys, LegacyKeySaves)
		if bundle.Autosave != nil {
			saves[domain.AutosaveSlot] = *bundle.Autosave
		}
		for i, ls := range bundle.Slots {
			if ls != nil {
				saves[i+1] = *ls
			}
		}
	}

	all, err := s.legacy.Keys(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("savestore: list legacy keys: %w", err)
	}
	slices.Sort(all)
	for _, key := range all {
		slot, ok := parseLegacyKey(key)
		if !ok {
			continue
		}
		ls, err := s.readSlotKey(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		if ls != nil {
			saves[slot] = *ls
			keys = append(keys, key)
		}
	}
	return saves, keys, nil
}

// legacyGet reads one slot from the legacy store.
func (s *Store) legacyGet(ctx context.Context, slot int) (*legacySave, error) {
	ls, err := s.readSlotKey(ctx, LegacyKey(slot))
	if err != nil || ls != nil {
		return ls, err
	}
	bundle, err := s.readBundle(ctx)
	if err != nil || bundle == nil {
		return nil, err
	}
	if slot == domain.AutosaveSlot {
		return bundle.Autosave, nil
	}
	if slot-1 < len(bundle.Slots) {
		return bundle.Slots[slot-1], nil
	}
	return nil, nil
}

func (s *Store) legacySet(ctx context.Context, rec domain.SaveRecord, det domain.DetailsRecord) error {
	data, err := json.Marshal(newLegacySave(rec, det.Data))
	if err != nil {
		return domain.ErrPayloadInvalid.WithCause(err)
	}
	if err := s.legacy.Set(ctx, LegacyKey(rec.Slot), data); err != nil {
		return fmt.Errorf("savestore: write legacy slot %d: %w", rec.Slot, err)
	}
	return nil
}

func (s *Store) legacyDelete(ctx context.Context, slot int) error {
	if err := s.legacy.Delete(ctx, LegacyKey(slot)); err != nil {
		return fmt.Errorf("savestore: delete legacy slot %d: %w", slot, err)
	}

	bundle, err := s.readBundle(ctx)
	if err != nil || bundle == nil {
		return err
	}
	switch {
	case slot == domain.AutosaveSlot && bundle.Autosave != nil:
		bundle.Autosave = nil
	case slot > 0 && slot-1 < len(bundle.Slots) && bundle.Slots[slot-1] != nil:
		bundle.Slots[slot-1] = nil
	default:
		return nil
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	return s.legacy.Set(ctx, LegacyKeySaves, data)
}

func (s *Store) legacyClear(ctx context.Context) error {
	_, keys, err := s.readLegacy(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.legacy.Delete(ctx, key); err != nil {
			return fmt.Errorf("savestore: delete legacy %q: %w", key, err)
		}
	}
	return nil
}

// MigrateLegacy copies legacy saves into the object store and removes the
// legacy keys. It runs once, after Open created the schema, and returns
// the number of migrated slots. Saves are written one after another
// through Set.
func (s *Store) MigrateLegacy(ctx context.Context) (int, error) {
	if !s.migrate.CompareAndSwap(true, false) {
		return 0, nil
	}
	if db, err := s.database(ctx); db == nil {
		s.migrate.Store(true)
		if err == nil {
			err = domain.ErrBackendUnavailable.WithDetails("migration needs the object store")
		}
		return 0, err
	}

	saves, keys, err := s.readLegacy(ctx)
	if err != nil {
		return 0, err
	}
	slots := make([]int, 0, len(saves))
	for slot := range saves {
		slots = append(slots, slot)
	}
	slices.Sort(slots)

	migrated := 0
	for _, slot := range slots {
		rec, det, err := s.reshape(slot, saves[slot])
		if err != nil {
			s.logger.Warn("savestore: skipping legacy slot", "slot", slot, "error", err)
			continue
		}
		if err := s.setWhenFree(ctx, slot, &rec.Data, &det.Data); err != nil {
			s.metrics.AddMigrated(migrated)
			return migrated, fmt.Errorf("savestore: migrate slot %d: %w", slot, err)
		}
		migrated++
	}
	s.metrics.AddMigrated(migrated)

	for _, key := range keys {
		if err := s.legacy.Delete(ctx, key); err != nil {
			s.logger.Warn("savestore: legacy key not removed", "key", key, "error", err)
		}
	}
	s.logger.Info("savestore: legacy saves migrated", "slots", migrated)
	return migrated, nil
}

// reshape turns a legacy save into a plain-history record pair with a
// save-session ID.
func (s *Store) reshape(slot int, ls legacySave) (domain.SaveRecord, domain.DetailsRecord, error) {
	if ls.State == nil {
		return domain.SaveRecord{}, domain.DetailsRecord{}, domain.ErrSnapshotNoHistory.WithDetails("legacy save has no state")
	}
	snap, err := ls.State.Clone()
	if err != nil {
		return domain.SaveRecord{}, domain.DetailsRecord{}, err
	}
	if snap.Compressed() {
		moments, err := history.DeltaDecode(s.differ, snap.Delta)
		if err != nil {
			return domain.SaveRecord{}, domain.DetailsRecord{}, err
		}
		snap.History, snap.Delta = moments, nil
	}
	if snap.History == nil {
		return domain.SaveRecord{}, domain.DetailsRecord{}, domain.ErrSnapshotNoHistory
	}

	saveID := ls.Metadata.SaveID
	if saveID == "" {
		saveID = snap.SaveID
	}
	if saveID == "" {
		if saveID, err = domain.GenerateSaveID(); err != nil {
			return domain.SaveRecord{}, domain.DetailsRecord{}, err
		}
	}
	snap.SaveID = saveID
	ls.Metadata.SaveID = saveID

	rec, det := ls.records(slot)
	rec.Data = *snap
	if det.Data.ID == "" {
		det.Data.ID = s.storyID
	}
	return rec, det, nil
}

// setWhenFree calls Set, waiting out lock contention.
func (s *Store) setWhenFree(ctx context.Context, slot int, snap *domain.Snapshot, det *domain.Details) error {
	for {
		status, err := s.Set(ctx, slot, snap, det).Wait(ctx)
		switch status {
		case StatusOK:
			return nil
		case StatusBusy:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		default:
			return err
		}
	}
}
