package tts

import (
	"strings"

	"github.com/dgnsrekt/bilivoice/internal/audio"
	"github.com/dgnsrekt/bilivoice/internal/queue"
)

// Priority orders tasks within both stages.
type Priority = queue.Priority

const (
	PriorityHigh   = queue.PriorityHigh
	PriorityNormal = queue.PriorityNormal
)

// ParsePriority maps "HIGH" (any case) to PriorityHigh and everything else to
// PriorityNormal.
func ParsePriority(s string) Priority {
	return queue.ParsePriority(s)
}

// PriorityForEventType maps a live-room event type to a priority. Paid
// events (super chats, gifts, guard purchases) are announced first.
func PriorityForEventType(eventType string) Priority {
	et := strings.ToUpper(strings.TrimSpace(eventType))
	if strings.Contains(et, "SUPER_CHAT") {
		return PriorityHigh
	}
	switch et {
	case "SEND_GIFT", "COMBO_SEND", "GUARD_BUY":
		return PriorityHigh
	}
	return PriorityNormal
}

// Task is one announcement travelling through the pipeline. Key and Room are
// optional correlation fields: an empty Key and a zero Room mean absent.
type Task struct {
	Text     string
	Priority Priority
	Key      string
	Room     int64
}

// Clip is a synthesized task waiting for playback.
type Clip struct {
	Audio *audio.Buffer
	Task  Task
}
