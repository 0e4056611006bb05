package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// record is the persisted shape of an entry: {"timestamp": <epoch seconds>, "data": <payload>}.
type record struct {
	Timestamp float64 `json:"timestamp"`
	Data      any     `json:"data"`
}

func encodeRecord(storedAt time.Time, payload any) ([]byte, error) {
	data, err := json.Marshal(record{
		Timestamp: float64(storedAt.UnixNano()) / float64(time.Second),
		Data:      payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache record: %w", err)
	}
	return data, nil
}

// decodeRecord extracts the payload of raw if it is well formed and fresh at now.
func decodeRecord(raw []byte, now time.Time) (json.RawMessage, bool) {
	if !gjson.ValidBytes(raw) {
		return nil, false
	}

	ts := gjson.GetBytes(raw, "timestamp")
	if ts.Type != gjson.Number {
		return nil, false
	}
	data := gjson.GetBytes(raw, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return nil, false
	}

	storedAt := time.Unix(0, int64(ts.Float()*float64(time.Second)))
	if now.Sub(storedAt) > TTL {
		return nil, false
	}

	return json.RawMessage(data.Raw), true
}
