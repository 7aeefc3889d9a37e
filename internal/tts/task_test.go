package tts

import "testing"

func TestPriorityForEventType(t *testing.T) {
	tests := []struct {
		eventType string
		want      Priority
	}{
		{"SUPER_CHAT_MESSAGE", PriorityHigh},
		{"SUPER_CHAT_MESSAGE_JPN", PriorityHigh},
		{"SEND_GIFT", PriorityHigh},
		{"COMBO_SEND", PriorityHigh},
		{"GUARD_BUY", PriorityHigh},
		{"guard_buy", PriorityHigh},
		{"DANMU_MSG", PriorityNormal},
		{"INTERACT_WORD", PriorityNormal},
		{"", PriorityNormal},
	}
	for _, tt := range tests {
		if got := PriorityForEventType(tt.eventType); got != tt.want {
			t.Errorf("PriorityForEventType(%q) = %v, want %v", tt.eventType, got, tt.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for status, want := range map[Status]bool{
		StatusPending:   false,
		StatusPlaying:   false,
		StatusDone:      true,
		StatusCancelled: true,
	} {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, !want, want)
		}
	}
}
