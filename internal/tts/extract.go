package tts

import (
	"encoding/json"
	"fmt"
)

// extractAudioURL finds the audio location in an inference response. Two
// shapes are understood: a first output that is an object with a "url"
// field, and a first output that is a list of entries shaped like
// [name, ["url", ...], url].
func extractAudioURL(data []json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty data", ErrDecode)
	}
	first := data[0]

	var obj struct {
		URL *string `json:"url"`
	}
	if err := json.Unmarshal(first, &obj); err == nil {
		if obj.URL != nil && *obj.URL != "" {
			return *obj.URL, nil
		}
		return "", fmt.Errorf("%w: %s", ErrDecode, snippet(first))
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(first, &entries); err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecode, snippet(first))
	}
	for _, raw := range entries {
		var entry []json.RawMessage
		if json.Unmarshal(raw, &entry) != nil || len(entry) < 3 {
			continue
		}
		var tags []json.RawMessage
		if json.Unmarshal(entry[1], &tags) != nil || len(tags) == 0 {
			continue
		}
		var tag string
		if json.Unmarshal(tags[0], &tag) != nil || tag != "url" {
			continue
		}
		var u string
		if json.Unmarshal(entry[2], &u) == nil && u != "" {
			return u, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrDecode, snippet(first))
}

func snippet(raw json.RawMessage) string {
	const limit = 200
	if len(raw) > limit {
		return string(raw[:limit])
	}
	return string(raw)
}
