package relay

import (
	"encoding/json"
	"fmt"

	"github.com/ekaya-inc/relayscout/pkg/models"
)

// Message labels for the relay WebSocket protocol (NIP-01).
const (
	TypeReq    = "REQ"
	TypeClose  = "CLOSE"
	TypeEvent  = "EVENT"
	TypeEOSE   = "EOSE"
	TypeNotice = "NOTICE"
	TypeClosed = "CLOSED"
	TypeOK     = "OK"
)

// KindMetadata is the event kind carrying profile metadata.
const KindMetadata = 0

// Filter selects events on a relay. Zero-valued fields are omitted from the wire.
type Filter struct {
	Kinds   []int    `json:"kinds,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// Event is a relay event. Signatures are carried but never verified.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// Record returns the minimum shape the discovery engine consumes.
func (e Event) Record() models.RawRecord {
	return models.RawRecord{
		ID:        e.ID,
		Actor:     e.PubKey,
		CreatedAt: e.CreatedAt,
		Content:   e.Content,
	}
}

// EventMessage is sent by a relay for every event matching a subscription.
type EventMessage struct {
	SubscriptionID string
	Event          Event
}

// EOSEMessage marks the end of a subscription's stored events.
type EOSEMessage struct {
	SubscriptionID string
}

// NoticeMessage is a human-readable message from the relay.
type NoticeMessage struct {
	Message string
}

// ClosedMessage is sent when the relay ends a subscription on its side.
type ClosedMessage struct {
	SubscriptionID string
	Message        string
}

// OKMessage acknowledges a published event. Subscribers only log it.
type OKMessage struct {
	EventID  string
	Accepted bool
	Message  string
}

// EncodeReq builds a REQ message opening subscriptionID with the given filter.
func EncodeReq(subscriptionID string, filter Filter) ([]byte, error) {
	data, err := json.Marshal([]any{TypeReq, subscriptionID, filter})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal REQ message: %w", err)
	}
	return data, nil
}

// EncodeClose builds a CLOSE message ending subscriptionID.
func EncodeClose(subscriptionID string) ([]byte, error) {
	data, err := json.Marshal([]any{TypeClose, subscriptionID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal CLOSE message: %w", err)
	}
	return data, nil
}

// ParseMessage decodes a relay-to-client message and returns the typed message.
func ParseMessage(data []byte) (any, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, fmt.Errorf("failed to parse message envelope: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return nil, fmt.Errorf("failed to parse message label: %w", err)
	}

	switch label {
	case TypeEvent:
		if len(parts) < 3 {
			return nil, fmt.Errorf("EVENT message has %d elements, want 3", len(parts))
		}
		var msg EventMessage
		if err := json.Unmarshal(parts[1], &msg.SubscriptionID); err != nil {
			return nil, fmt.Errorf("failed to parse EVENT subscription id: %w", err)
		}
		if err := json.Unmarshal(parts[2], &msg.Event); err != nil {
			return nil, fmt.Errorf("failed to parse EVENT payload: %w", err)
		}
		return &msg, nil

	case TypeEOSE:
		if len(parts) < 2 {
			return nil, fmt.Errorf("EOSE message has %d elements, want 2", len(parts))
		}
		var msg EOSEMessage
		if err := json.Unmarshal(parts[1], &msg.SubscriptionID); err != nil {
			return nil, fmt.Errorf("failed to parse EOSE subscription id: %w", err)
		}
		return &msg, nil

	case TypeNotice:
		var msg NoticeMessage
		if len(parts) > 1 {
			if err := json.Unmarshal(parts[1], &msg.Message); err != nil {
				return nil, fmt.Errorf("failed to parse NOTICE message: %w", err)
			}
		}
		return &msg, nil

	case TypeClosed:
		if len(parts) < 2 {
			return nil, fmt.Errorf("CLOSED message has %d elements, want at least 2", len(parts))
		}
		var msg ClosedMessage
		if err := json.Unmarshal(parts[1], &msg.SubscriptionID); err != nil {
			return nil, fmt.Errorf("failed to parse CLOSED subscription id: %w", err)
		}
		if len(parts) > 2 {
			if err := json.Unmarshal(parts[2], &msg.Message); err != nil {
				return nil, fmt.Errorf("failed to parse CLOSED reason: %w", err)
			}
		}
		return &msg, nil

	case TypeOK:
		if len(parts) < 3 {
			return nil, fmt.Errorf("OK message has %d elements, want at least 3", len(parts))
		}
		var msg OKMessage
		if err := json.Unmarshal(parts[1], &msg.EventID); err != nil {
			return nil, fmt.Errorf("failed to parse OK event id: %w", err)
		}
		if err := json.Unmarshal(parts[2], &msg.Accepted); err != nil {
			return nil, fmt.Errorf("failed to parse OK status: %w", err)
		}
		if len(parts) > 3 {
			_ = json.Unmarshal(parts[3], &msg.Message)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unknown message type: %q", label)
	}
}
