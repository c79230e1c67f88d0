package session

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrProfileCorrupt is returned when a persisted profile cannot be decoded.
var ErrProfileCorrupt = errors.New("profile corrupt")

// EncodeProfile serializes a profile for persistence.
func EncodeProfile(p Profile) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeProfile parses a persisted profile. Trailing data after the JSON object
// is treated as corruption.
func DecodeProfile(raw string) (Profile, error) {
	var p Profile
	if strings.TrimSpace(raw) == "" {
		return p, ErrProfileCorrupt
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&p); err != nil {
		return Profile{}, errors.Join(ErrProfileCorrupt, err)
	}
	if dec.More() {
		return Profile{}, ErrProfileCorrupt
	}
	return p, nil
}
