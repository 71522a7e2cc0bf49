package domain

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// AutosaveSlot is the slot reserved for the autosave.
	AutosaveSlot = 0

	// SaveIDPrefix is the prefix for save-session IDs.
	SaveIDPrefix = "svid-"
)

// Metadata is the free-form part of a details record. SaveID and SaveName
// are well known; any other key is kept in Extra and flattened on the wire.
type Metadata struct {
	SaveID   string
	SaveName string
	Extra    map[string]any
}

// MarshalJSON implements json.Marshaler.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.SaveID != "" {
		out["saveId"] = m.SaveID
	}
	if m.SaveName != "" {
		out["saveName"] = m.SaveName
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metadata{}
	for k, v := range raw {
		switch k {
		case "saveId":
			m.SaveID, _ = v.(string)
		case "saveName":
			m.SaveName, _ = v.(string)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return nil
}

// Details is the lightweight, fast-to-list counterpart of a save.
type Details struct {
	// ID identifies the story the save belongs to.
	ID string `json:"id"`

	// Title is the display title.
	Title string `json:"title"`

	// Date is the save timestamp (Unix milliseconds).
	Date int64 `json:"date"`

	Metadata Metadata `json:"metadata"`
}

// Time returns Date as a time.Time.
func (d Details) Time() time.Time {
	return time.UnixMilli(d.Date)
}

// SaveRecord is a row of the saves table.
type SaveRecord struct {
	Slot int      `json:"slot"`
	Data Snapshot `json:"data"`
}

// DetailsRecord is a row of the details table.
type DetailsRecord struct {
	Slot int     `json:"slot"`
	Data Details `json:"data"`
}

// ValidateSlot checks that slot addresses the autosave or a user slot.
// Negative slots are reserved.
func ValidateSlot(slot int) error {
	if slot < 0 {
		return ErrSlotInvalid.WithDetails(fmt.Sprintf("slot %d", slot))
	}
	return nil
}

// GenerateSaveID generates a new save-session ID using ULID.
// Format: svid-{ulid_lowercase}, 31 characters total.
func GenerateSaveID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternal.WithCause(err)
	}
	return SaveIDPrefix + strings.ToLower(id.String()), nil
}

// IsSaveID reports whether s has the shape of a generated save-session ID.
func IsSaveID(s string) bool {
	if !strings.HasPrefix(s, SaveIDPrefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(s[len(SaveIDPrefix):]))
	return err == nil
}
