package collab

import (
	"encoding/json"

	"github.com/inamate/nestbox/internal/engine"
)

type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

const (
	// Inbound
	TypePointerDown     = "pointer.down"
	TypePointerMove     = "pointer.move"
	TypePointerUp       = "pointer.up"
	TypeGestureCancel   = "gesture.cancel"
	TypeModeSet         = "mode.set"
	TypeAddRandom       = "rects.addRandom"
	TypeDeleteSelection = "selection.delete"
	TypeDocSave         = "doc.save"

	// Outbound
	TypeWelcome  = "welcome"
	TypeDocSync  = "doc.sync"
	TypeDocSaved = "doc.saved"
	TypeError    = "error"
)

type PointerDownPayload struct {
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
	Offset *engine.Offset `json:"offset"`
}

type PointerMovePayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ModeSetPayload struct {
	Mode engine.Mode `json:"mode"`
}

type AddRandomPayload struct {
	Count int `json:"count"`
}

type WelcomePayload struct {
	SessionID string `json:"sessionId"`
	ClientID  string `json:"clientId"`
}

// SyncPayload is the editor state sent after every applied event.
type SyncPayload struct {
	engine.View
	Faults []string `json:"faults,omitempty"`
}

type SavedPayload struct {
	Version int `json:"version"`
}

type ErrorPayload struct {
	Reason string `json:"reason"`
}

func newMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: msgType, Payload: data}, nil
}
