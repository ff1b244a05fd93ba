package realtime

import (
	"encoding/json"
	"fmt"
)

// Event names understood by the client. EventConnected is the legacy
// handshake sentinel some server versions emit instead of a namespace ack.
const (
	EventConnected = "connected"

	EventObjectCollected   = "object_collected"
	EventObjectUncollected = "object_uncollected"
	EventAllFindsReset     = "all_finds_reset"
	EventObjectCreated     = "object_created"
	EventObjectDeleted     = "object_deleted"
	EventNPCCreated        = "npc_created"
	EventNPCUpdated        = "npc_updated"
	EventNPCDeleted        = "npc_deleted"
	EventLocationInterval  = "location_update_interval_changed"
	EventGameModeChanged   = "game_mode_changed"
	EventAdminPing         = "admin_diagnostic_ping"

	EventClientPong     = "client_diagnostic_pong"
	EventRegisterDevice = "register_device"
)

type ObjectCollected struct {
	ObjectID string `json:"object_id"`
	FoundBy  string `json:"found_by"`
	FoundAt  string `json:"found_at"`
}

type ObjectUncollected struct {
	ObjectID string `json:"object_id"`
}

type AllFindsReset struct{}

type ObjectCreated struct {
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"-"`
}

type ObjectDeleted struct {
	ObjectID string `json:"object_id"`
}

type NPCCreated struct {
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"-"`
}

type NPCUpdated struct {
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"-"`
}

type NPCDeleted struct {
	NPCID string `json:"npc_id"`
}

type LocationUpdateInterval struct {
	IntervalSeconds float64 `json:"interval_seconds"`
}

type GameModeChanged struct {
	GameMode string `json:"game_mode"`
}

type AdminDiagnosticPing struct {
	PingID         string `json:"ping_id"`
	AdminSessionID string `json:"admin_session_id"`
}

type ClientDiagnosticPong struct {
	PingID          string `json:"ping_id"`
	ClientTimestamp string `json:"client_timestamp"`
	AdminSessionID  string `json:"admin_session_id"`
}

type RegisterDevice struct {
	DeviceUUID string `json:"device_uuid"`
}

// decodeEvent validates a payload against the catalog exactly once per
// frame; handlers receive the already-validated record. Unknown event names
// pass the raw payload through untouched.
func decodeEvent(name string, payload json.RawMessage) (any, error) {
	switch name {
	case EventObjectCollected:
		var ev ObjectCollected
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.ObjectID == "" || ev.FoundBy == "" || ev.FoundAt == "" {
			return nil, missingField(name, "object_id/found_by/found_at")
		}
		return ev, nil

	case EventObjectUncollected:
		var ev ObjectUncollected
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.ObjectID == "" {
			return nil, missingField(name, "object_id")
		}
		return ev, nil

	case EventAllFindsReset:
		return AllFindsReset{}, nil

	case EventObjectCreated:
		var ev ObjectCreated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.ID == "" {
			return nil, missingField(name, "id")
		}
		ev.Attributes = payload
		return ev, nil

	case EventObjectDeleted:
		var ev ObjectDeleted
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.ObjectID == "" {
			return nil, missingField(name, "object_id")
		}
		return ev, nil

	case EventNPCCreated:
		var ev NPCCreated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.ID == "" {
			return nil, missingField(name, "id")
		}
		ev.Attributes = payload
		return ev, nil

	case EventNPCUpdated:
		var ev NPCUpdated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.ID == "" {
			return nil, missingField(name, "id")
		}
		ev.Attributes = payload
		return ev, nil

	case EventNPCDeleted:
		var ev NPCDeleted
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.NPCID == "" {
			return nil, missingField(name, "npc_id")
		}
		return ev, nil

	case EventLocationInterval:
		var ev LocationUpdateInterval
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.IntervalSeconds <= 0 {
			return nil, missingField(name, "interval_seconds")
		}
		return ev, nil

	case EventGameModeChanged:
		var ev GameModeChanged
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.GameMode == "" {
			return nil, missingField(name, "game_mode")
		}
		return ev, nil

	case EventAdminPing:
		var ev AdminDiagnosticPing
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, err
		}
		if ev.PingID == "" || ev.AdminSessionID == "" {
			return nil, missingField(name, "ping_id/admin_session_id")
		}
		return ev, nil

	default:
		return payload, nil
	}
}

func missingField(event, fields string) error {
	return fmt.Errorf("event %q missing required field(s) %s", event, fields)
}
