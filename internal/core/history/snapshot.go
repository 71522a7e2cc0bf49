package history

import (
	"github.com/yndnr/storyline-go/internal/core/domain"
)

// Marshal captures the history as a snapshot.
//
// depth bounds how many moments are kept around the present: a negative
// depth keeps everything and 0 disables snapshotting (nil, nil). Moments
// dropped by the window are added to the snapshot's expired list. With
// useDelta the retained moments are delta-encoded after windowing.
func (m *Machine) Marshal(depth int, useDelta bool) (*domain.Snapshot, error) {
	if depth == 0 {
		return nil, nil
	}

	m.mu.Lock()
	if len(m.moments) == 0 {
		m.mu.Unlock()
		return nil, domain.ErrHistoryEmpty
	}
	moments, err := domain.CloneMoments(m.moments)
	index := m.index
	expired := append([]string(nil), m.expired...)
	saveID := m.saveID
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	w := Reduce(moments, index, depth)
	expired = append(expired, w.Expired...)
	if m.maxExpired > 0 && len(expired) > m.maxExpired {
		expired = expired[len(expired)-m.maxExpired:]
	}

	snap := &domain.Snapshot{
		Index:  domain.IntPtr(w.Index),
		SaveID: saveID,
	}
	if len(expired) > 0 {
		snap.Expired = expired
	}
	if m.prng != nil {
		snap.Seed = domain.NumberSeed(m.prng.Seed())
	}

	if useDelta {
		snap.Delta, err = DeltaEncode(m.differ, w.Moments)
		if err != nil {
			return nil, err
		}
	} else {
		snap.History = w.Moments
	}
	return snap, nil
}

// Unmarshal replaces the history with the one carried by snap and
// activates its index as the present. Malformed snapshots are rejected
// without touching the machine.
func (m *Machine) Unmarshal(snap *domain.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	var (
		moments []domain.Moment
		err     error
	)
	if snap.Compressed() {
		moments, err = DeltaDecode(m.differ, snap.Delta)
	} else {
		moments, err = domain.CloneMoments(snap.History)
	}
	if err != nil {
		return err
	}

	if snap.Seed != nil && m.prng != nil {
		if err := m.prng.SetSeed(snap.Seed.Value()); err != nil {
			return domain.ErrSnapshotInvalid.WithDetails("seed").WithCause(err)
		}
	}

	index := *snap.Index
	m.mu.Lock()
	m.moments = moments
	m.index = index
	m.expired = append([]string(nil), snap.Expired...)
	if m.maxExpired > 0 && len(m.expired) > m.maxExpired {
		m.expired = m.expired[len(m.expired)-m.maxExpired:]
	}
	m.saveID = snap.SaveID
	if err := m.activateLocked(index); err != nil {
		m.mu.Unlock()
		return err
	}
	ev := Event{Kind: EventRestore, Index: index, Length: len(moments), Title: moments[index].Title}
	m.mu.Unlock()

	m.logger.Debug("history: restored", "length", ev.Length, "index", index, "compressed", snap.Compressed())
	m.notify(ev)
	return nil
}
