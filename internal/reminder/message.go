package reminder

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies an arm-list message.
const MessageType = "SCHEDULE_REMINDERS"

// Message carries a complete arm-list to the background path. Each message
// replaces the previous list.
type Message struct {
	Type      string     `json:"type"`
	Reminders []Reminder `json:"reminders"`
}

func EncodeMessage(reminders []Reminder) ([]byte, error) {
	if reminders == nil {
		reminders = []Reminder{}
	}
	return json.Marshal(Message{Type: MessageType, Reminders: reminders})
}

// DecodeMessage parses an arm-list message. Messages of another type are
// rejected.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode reminder message: %w", err)
	}
	if m.Type != MessageType {
		return Message{}, fmt.Errorf("decode reminder message: unexpected type %q", m.Type)
	}
	return m, nil
}
