package savestore

import (
	"context"

	"github.com/yndnr/storyline-go/internal/core/domain"
	"github.com/yndnr/storyline-go/internal/core/history"
)

// LoadState restores slot into the configured machine. Quarantined values
// that cannot be rebuilt are logged and left as their string form.
func (s *Store) LoadState(ctx context.Context, slot int) error {
	if s.machine == nil {
		return domain.ErrMissingArgument.WithDetails("history machine")
	}
	rec, err := s.Get(ctx, slot)
	if err != nil {
		return err
	}

	snap := rec.Data
	moments := snap.History
	if snap.Compressed() {
		if moments, err = history.DeltaDecode(s.differ, snap.Delta); err != nil {
			s.fail("load", err)
			return err
		}
	}

	failures := 0
	for i := range moments {
		for _, err := range s.registry.Restore(&moments[i]) {
			failures++
			s.logger.Warn("savestore: quarantined value not restored",
				"slot", slot, "moment", i, "title", moments[i].Title, "error", err)
		}
	}
	s.metrics.AddQuarantineFailures(failures)

	snap.History, snap.Delta = moments, nil
	if err := s.machine.Unmarshal(&snap); err != nil {
		s.fail("load", err)
		return err
	}
	s.logger.Debug("savestore: state loaded", "slot", slot, "length", len(moments))
	return nil
}

// SaveState writes the machine's full history to slot. The live history
// is given a save-session ID first if it has none. An empty title uses
// the active moment's title.
func (s *Store) SaveState(ctx context.Context, slot int, title string, metadata domain.Metadata) *Future {
	if s.machine == nil {
		return resolvedFuture(StatusFailed, domain.ErrMissingArgument.WithDetails("history machine"))
	}
	saveID, err := s.machine.EnsureSaveID()
	if err != nil {
		return resolvedFuture(StatusFailed, err)
	}
	snap, err := s.machine.Marshal(-1, false)
	if err != nil {
		return resolvedFuture(StatusFailed, err)
	}

	if metadata.SaveID == "" {
		metadata.SaveID = saveID
	}
	return s.Set(ctx, slot, snap, &domain.Details{
		ID:       s.storyID,
		Title:    title,
		Date:     s.now().UnixMilli(),
		Metadata: metadata,
	})
}
