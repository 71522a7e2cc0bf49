package savestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/internal/storage/objstore"
)

// readDB returns the database reads should consult. In degraded mode it
// is the already-open database, if any, and the legacy store overlays it.
func (s *Store) readDB(ctx context.Context) (objstore.DB, error) {
	if s.Degraded() {
		return s.openDB(), nil
	}
	return s.database(ctx)
}

// readTable runs fn over a read-only view of table.
func readTable(db objstore.DB, table string, fn func(objstore.Table) error) error {
	tx, err := db.Transaction([]string{table}, objstore.ReadOnly)
	if err != nil {
		return err
	}
	defer tx.Abort()
	t, err := tx.Table(table)
	if err != nil {
		return err
	}
	return fn(t)
}

// Get returns the stored record of slot as written, possibly
// delta-encoded and quarantined. A missing slot yields an error matching
// domain.ErrSlotNotFound.
func (s *Store) Get(ctx context.Context, slot int) (*domain.SaveRecord, error) {
	start := time.Now()
	rec, err := s.get(ctx, slot)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	s.metrics.ObserveSaveOp("get", status, time.Since(start))
	return rec, err
}

func (s *Store) get(ctx context.Context, slot int) (*domain.SaveRecord, error) {
	if err := domain.ValidateSlot(slot); err != nil {
		return nil, err
	}
	if s.Degraded() {
		ls, err := s.legacyGet(ctx, slot)
		if err != nil {
			return nil, err
		}
		if ls != nil {
			rec, _ := ls.records(slot)
			return &rec, nil
		}
	}

	db, err := s.readDB(ctx)
	if err != nil {
		return nil, err
	}
	notFound := domain.ErrSlotNotFound.WithDetails(fmt.Sprintf("slot %d", slot))
	if db == nil {
		return nil, notFound
	}

	var rec domain.SaveRecord
	err = readTable(db, TableSaves, func(t objstore.Table) error {
		data, err := t.Get(slot)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &rec)
	})
	switch {
	case errors.Is(err, objstore.ErrNotFound):
		return nil, notFound
	case err != nil:
		return nil, domain.ErrTransactionFailed.WithDetails("get").WithCause(err)
	}
	return &rec, nil
}

// GetAll returns every stored record ordered by slot.
func (s *Store) GetAll(ctx context.Context) ([]domain.SaveRecord, error) {
	rows := make(map[int]domain.SaveRecord)

	db, err := s.readDB(ctx)
	if err != nil {
		return nil, err
	}
	if db != nil {
		err := readTable(db, TableSaves, func(t objstore.Table) error {
			entries, err := t.GetAll()
			if err != nil {
				return err
			}
			for _, e := range entries {
				var rec domain.SaveRecord
				if err := json.Unmarshal(e.Value, &rec); err != nil {
					return domain.ErrPayloadInvalid.WithDetails(fmt.Sprintf("slot %d", e.Key)).WithCause(err)
				}
				rows[e.Key] = rec
			}
			return nil
		})
		if err != nil {
			return nil, domain.ErrTransactionFailed.WithDetails("getAll").WithCause(err)
		}
	}

	if s.Degraded() {
		saves, _, err := s.readLegacy(ctx)
		if err != nil {
			return nil, err
		}
		for slot, ls := range saves {
			rows[slot], _ = ls.records(slot)
		}
	}
	return sortedRows(rows, func(r domain.SaveRecord) int { return r.Slot }), nil
}

// GetDetails returns every details record ordered by slot. The list is
// cached until the next mutation.
func (s *Store) GetDetails(ctx context.Context) ([]domain.DetailsRecord, error) {
	s.cacheMu.Lock()
	if s.cacheValid {
		out := slices.Clone(s.cache)
		s.cacheMu.Unlock()
		return out, nil
	}
	s.cacheMu.Unlock()

	v, err, _ := s.group.Do("details", func() (any, error) {
		s.cacheMu.Lock()
		gen := s.cacheGen
		s.cacheMu.Unlock()

		recs, err := s.fetchDetails(ctx)
		if err != nil {
			return nil, err
		}

		s.cacheMu.Lock()
		if s.cacheGen == gen {
			s.cache = recs
			s.cacheValid = true
		}
		s.cacheMu.Unlock()
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]domain.DetailsRecord)), nil
}

func (s *Store) fetchDetails(ctx context.Context) ([]domain.DetailsRecord, error) {
	rows := make(map[int]domain.DetailsRecord)

	db, err := s.readDB(ctx)
	if err != nil {
		return nil, err
	}
	if db != nil {
		err := readTable(db, TableDetails, func(t objstore.Table) error {
			entries, err := t.GetAll()
			if err != nil {
				return err
			}
			for _, e := range entries {
				var rec domain.DetailsRecord
				if err := json.Unmarshal(e.Value, &rec); err != nil {
					return domain.ErrPayloadInvalid.WithDetails(fmt.Sprintf("details slot %d", e.Key)).WithCause(err)
				}
				rows[e.Key] = rec
			}
			return nil
		})
		if err != nil {
			return nil, domain.ErrTransactionFailed.WithDetails("getDetails").WithCause(err)
		}
	}

	if s.Degraded() {
		saves, _, err := s.readLegacy(ctx)
		if err != nil {
			return nil, err
		}
		for slot, ls := range saves {
			_, rows[slot] = ls.records(slot)
		}
	}
	return sortedRows(rows, func(r domain.DetailsRecord) int { return r.Slot }), nil
}

func (s *Store) invalidate() {
	s.cacheMu.Lock()
	s.cacheGen++
	s.cache = nil
	s.cacheValid = false
	s.cacheMu.Unlock()
}

func sortedRows[T any](rows map[int]T, slot func(T) int) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b T) int { return slot(a) - slot(b) })
	return out
}
