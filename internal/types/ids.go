package types

import (
	"time"

	"github.com/google/uuid"
)

// RecordID identifies a row in the demo schema. UUIDv7 keeps inserts ordered.
type RecordID string

// RequestID correlates log lines for one API call.
type RequestID string

// NewRecordID generates a UUIDv7 record identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRecordID() RecordID {
	return RecordID(uuid.Must(uuid.NewV7()).String())
}

// NewRequestID generates a UUIDv7 request identifier.
func NewRequestID() RequestID {
	return RequestID(uuid.Must(uuid.NewV7()).String())
}

// ParseRecordID validates and converts a string to RecordID.
func ParseRecordID(s string) (RecordID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return RecordID(s), nil
}

// RecordIDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func RecordIDTime(id RecordID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
