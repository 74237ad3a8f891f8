// Package protocol defines the client->server messages of the sync channel
// and validates them against JSON schemas before dispatch, so a malformed
// frame produces an error reply rather than a panic in the hub.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Client message types.
const (
	TypeSyncRequest = "sync.request"
	TypeRoomJoin    = "room.join"
	TypeRoomLeave   = "room.leave"
)

// Room names (subscription scopes).
const (
	RoomWorld  = "world"  // default scope, auto-joined on connect
	RoomMarket = "market" // coalesced price batches
	RoomTrades = "trades" // offer/settlement events
)

// ClientMessage is an inbound frame from an observer.
type ClientMessage struct {
	Type string `json:"type"`
	Room string `json:"room,omitempty"`
}

const syncRequestSchema = `{
  "type": "object",
  "properties": {
    "type": { "const": "sync.request" }
  },
  "required": ["type"],
  "additionalProperties": false
}`

const roomSchema = `{
  "type": "object",
  "properties": {
    "type": { "enum": ["room.join", "room.leave"] },
    "room": { "enum": ["world", "market", "trades"] }
  },
  "required": ["type", "room"],
  "additionalProperties": false
}`

var schemas = map[string]*jsonschema.Schema{
	TypeSyncRequest: jsonschema.MustCompileString("sync_request.json", syncRequestSchema),
	TypeRoomJoin:    jsonschema.MustCompileString("room.json", roomSchema),
	TypeRoomLeave:   jsonschema.MustCompileString("room.json", roomSchema),
}

// Parse decodes and validates one inbound frame.
func Parse(data []byte) (ClientMessage, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}

	schema, ok := schemas[probe.Type]
	if !ok {
		return ClientMessage{}, fmt.Errorf("unknown client message type %q", probe.Type)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return ClientMessage{}, fmt.Errorf("invalid %s message: %w", probe.Type, err)
	}

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	return msg, nil
}

// Encode frames an outbound client message.
func Encode(msgType, room string) ([]byte, error) {
	return json.Marshal(ClientMessage{Type: msgType, Room: room})
}

// ValidRoom reports whether the name is a known subscription scope.
func ValidRoom(room string) bool {
	switch strings.TrimSpace(room) {
	case RoomWorld, RoomMarket, RoomTrades:
		return true
	}
	return false
}
