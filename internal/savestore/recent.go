package savestore

import (
	"github.com/yndnr/storyline-go/internal/core/domain"
)

// MostRecent picks the save a "continue" action should load.
//
// The latest save by date wins, except that an autosave belonging to a
// playthrough that also has a user save (same save-session ID) yields to
// the newest of those user saves.
func MostRecent(details []domain.DetailsRecord) (domain.DetailsRecord, bool) {
	if len(details) == 0 {
		return domain.DetailsRecord{}, false
	}

	latest := details[0]
	for _, d := range details[1:] {
		if d.Data.Date > latest.Data.Date || (d.Data.Date == latest.Data.Date && d.Slot < latest.Slot) {
			latest = d
		}
	}
	if latest.Slot != domain.AutosaveSlot || latest.Data.Metadata.SaveID == "" {
		return latest, true
	}

	var (
		best  domain.DetailsRecord
		found bool
	)
	for _, d := range details {
		if d.Slot == domain.AutosaveSlot || d.Data.Metadata.SaveID != latest.Data.Metadata.SaveID {
			continue
		}
		if !found || d.Data.Date > best.Data.Date {
			best, found = d, true
		}
	}
	if found {
		return best, true
	}
	return latest, true
}
