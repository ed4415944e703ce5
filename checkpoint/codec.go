package checkpoint

import (
	stdjson "encoding/json"

	gjson "github.com/goccy/go-json"
)

// Marshal encodes v with goccy/go-json. All snapshot and state encoding goes
// through here so the codec can be swapped in one place.
func Marshal(v any) ([]byte, error) {
	return gjson.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return gjson.Unmarshal(data, v)
}

// RawMessage is kept compatible with encoding/json's RawMessage type.
type RawMessage = stdjson.RawMessage

func encodeSnapshot(snap *Snapshot) ([]byte, error) {
	return Marshal(snap)
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
