package savestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/internal/core/history"
	"github.com/yndnr/storyline-go/internal/storage/objstore"
)

// Set writes payload and details to slot. details may be nil; missing
// fields are filled from the payload and the store configuration.
//
// The payload must carry a history, plain or delta-encoded. Non-data
// variables are quarantined and the history is delta-encoded when the
// settings ask for it. Both tables are replaced in one transaction.
func (s *Store) Set(ctx context.Context, slot int, payload *domain.Snapshot, details *domain.Details) *Future {
	if !s.acquire("set") {
		return resolvedFuture(StatusBusy, nil)
	}
	if err := domain.ValidateSlot(slot); err != nil {
		return s.reject("set", err)
	}
	if err := payload.ValidatePayload(); err != nil {
		return s.reject("set", err)
	}
	return s.run(ctx, "set", func(ctx context.Context) error {
		return s.set(ctx, slot, payload, details)
	})
}

// Delete removes slot from both tables.
func (s *Store) Delete(ctx context.Context, slot int) *Future {
	if !s.acquire("delete") {
		return resolvedFuture(StatusBusy, nil)
	}
	if err := domain.ValidateSlot(slot); err != nil {
		return s.reject("delete", err)
	}
	return s.run(ctx, "delete", func(ctx context.Context) error {
		return s.mutate(ctx, "delete", func(saves, details objstore.Table) error {
			if err := saves.Delete(slot); err != nil {
				return err
			}
			return details.Delete(slot)
		}, func(ctx context.Context) error {
			return s.legacyDelete(ctx, slot)
		})
	})
}

// Clear removes every slot. Callers are expected to confirm first.
func (s *Store) Clear(ctx context.Context) *Future {
	if !s.acquire("clear") {
		return resolvedFuture(StatusBusy, nil)
	}
	return s.run(ctx, "clear", func(ctx context.Context) error {
		return s.mutate(ctx, "clear", func(saves, details objstore.Table) error {
			if err := saves.Clear(); err != nil {
				return err
			}
			return details.Clear()
		}, s.legacyClear)
	})
}

func (s *Store) acquire(op string) bool {
	if s.locked.CompareAndSwap(false, true) {
		return true
	}
	s.logger.Debug("savestore: busy, rejecting", "op", op)
	s.metrics.IncLockContention(op)
	s.metrics.ObserveSaveOp(op, StatusBusy.String(), 0)
	return false
}

func (s *Store) reject(op string, err error) *Future {
	s.locked.Store(false)
	s.fail(op, err)
	s.metrics.ObserveSaveOp(op, StatusFailed.String(), 0)
	return resolvedFuture(StatusFailed, err)
}

// run executes fn in its own goroutine while holding the lock. The
// mutation is not cancelled with ctx once started.
func (s *Store) run(ctx context.Context, op string, fn func(context.Context) error) *Future {
	f := newFuture()
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = domain.ErrInternal.WithDetails(fmt.Sprintf("%s panicked: %v", op, r))
			}
			s.invalidate()
			s.locked.Store(false)

			status := StatusOK
			if err != nil {
				status = StatusFailed
				s.fail(op, err)
			}
			s.metrics.ObserveSaveOp(op, status.String(), time.Since(start))
			f.resolve(status, err)
		}()
		err = fn(ctx)
	}()
	return f
}

func (s *Store) set(ctx context.Context, slot int, payload *domain.Snapshot, details *domain.Details) error {
	snap, err := payload.Clone()
	if err != nil {
		return domain.ErrPayloadInvalid.WithCause(err)
	}

	moments := snap.History
	if snap.Compressed() {
		if moments, err = history.DeltaDecode(s.differ, snap.Delta); err != nil {
			return err
		}
	}
	for i := range moments {
		if err := s.registry.Sanitize(&moments[i]); err != nil {
			return err
		}
	}
	snap.History, snap.Delta = moments, nil
	if s.Settings().Compress(slot) {
		if snap.Delta, err = history.DeltaEncode(s.differ, moments); err != nil {
			return err
		}
		snap.History = nil
	}

	det := s.fillDetails(slot, snap, moments, details)
	rec := domain.SaveRecord{Slot: slot, Data: *snap}

	recData, err := json.Marshal(rec)
	if err != nil {
		return domain.ErrPayloadInvalid.WithDetails(fmt.Sprintf("slot %d", slot)).WithCause(err)
	}
	detData, err := json.Marshal(det)
	if err != nil {
		return domain.ErrPayloadInvalid.WithDetails(fmt.Sprintf("slot %d details", slot)).WithCause(err)
	}

	db, err := s.database(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return s.legacySet(ctx, rec, det)
	}
	return s.commit(db, "set", func(saves, details objstore.Table) error {
		if err := saves.Delete(slot); err != nil {
			return err
		}
		if err := saves.Add(slot, recData); err != nil {
			return err
		}
		if err := details.Delete(slot); err != nil {
			return err
		}
		return details.Add(slot, detData)
	})
}

func (s *Store) fillDetails(slot int, snap *domain.Snapshot, moments []domain.Moment, in *domain.Details) domain.DetailsRecord {
	var d domain.Details
	if in != nil {
		d = *in
	}
	if d.ID == "" {
		d.ID = s.storyID
	}
	if d.Title == "" && len(moments) > 0 {
		i := snap.IndexValue()
		if i < 0 || i >= len(moments) {
			i = len(moments) - 1
		}
		d.Title = moments[i].Title
	}
	if d.Date == 0 {
		d.Date = s.now().UnixMilli()
	}
	switch {
	case d.Metadata.SaveID == "":
		d.Metadata.SaveID = snap.SaveID
	case snap.SaveID == "":
		snap.SaveID = d.Metadata.SaveID
	}
	return domain.DetailsRecord{Slot: slot, Data: d}
}

// mutate applies write to the object store and legacy to the legacy
// store. In degraded mode both run when the object store is open, so rows
// written before the switch do not resurface.
func (s *Store) mutate(ctx context.Context, op string, write func(saves, details objstore.Table) error, legacy func(context.Context) error) error {
	if s.Degraded() {
		if err := legacy(ctx); err != nil {
			return err
		}
		if db := s.openDB(); db != nil {
			return s.commit(db, op, write)
		}
		return nil
	}

	db, err := s.database(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		return legacy(ctx)
	}
	return s.commit(db, op, write)
}

// commit runs write in one read-write transaction over both tables and
// waits for the backend to report the outcome. A failure switches the
// store to degraded mode.
func (s *Store) commit(db objstore.DB, op string, write func(saves, details objstore.Table) error) error {
	err := func() error {
		tx, err := db.Transaction([]string{TableSaves, TableDetails}, objstore.ReadWrite)
		if err != nil {
			return err
		}
		saves, err := tx.Table(TableSaves)
		if err != nil {
			tx.Abort()
			return err
		}
		details, err := tx.Table(TableDetails)
		if err != nil {
			tx.Abort()
			return err
		}
		if err := write(saves, details); err != nil {
			tx.Abort()
			return err
		}
		return tx.Commit().Wait(context.Background())
	}()
	if err != nil {
		s.setDegraded(true, op+" transaction failed")
		return domain.ErrTransactionFailed.WithDetails(op).WithCause(err)
	}
	return nil
}

func (s *Store) openDB() objstore.DB {
	s.openMu.Lock()
	defer s.openMu.Unlock()
	return s.db
}
