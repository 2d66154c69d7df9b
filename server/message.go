package server

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// Message types exchanged over WebSocket.
const (
	// Client to server.
	MsgOpen     = "open"
	MsgStream   = "stream"
	MsgFinal    = "final"
	MsgFinalize = "finalize"
	MsgSave     = "save"
	MsgReject   = "reject"
	MsgScroll   = "scroll"
	MsgSnapshot = "snapshot"

	// Server to client.
	MsgDoc     = "doc"
	MsgAck     = "ack"
	MsgSaved   = "saved"
	MsgClosed  = "closed"
	MsgChanged = "changed"
	MsgError   = "error"
)

var validate = validator.New()

// EditPayload is one block edit inside a finalize message.
type EditPayload struct {
	BlockID string `json:"blockId" validate:"required"`
	Search  string `json:"search"`
	Content string `json:"content"`
}

// ClientMessage is a message from client to server.
type ClientMessage struct {
	Type    string        `json:"type" validate:"required,oneof=open stream final finalize save reject scroll snapshot"`
	BlockID string        `json:"blockId,omitempty"`
	Target  string        `json:"target,omitempty"`
	Search  string        `json:"search,omitempty"`
	Content string        `json:"content,omitempty"`
	Edits   []EditPayload `json:"edits,omitempty" validate:"omitempty,dive"`
	Enabled bool          `json:"enabled,omitempty"`
}

// Validate checks the message against its struct tags.
func (m *ClientMessage) Validate() error {
	return validate.Struct(m)
}

// BlockInfo describes one edit block in a doc message.
type BlockInfo struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Content string `json:"content"`
}

// ServerMessage is a message from server to client.
type ServerMessage struct {
	Type    string      `json:"type"`
	Target  string      `json:"target,omitempty"`
	Content string      `json:"content"`
	Blocks  []BlockInfo `json:"blocks,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Encode serializes a ServerMessage to JSON bytes.
func (m ServerMessage) Encode() []byte {
	b, _ := json.Marshal(m)
	return b
}
