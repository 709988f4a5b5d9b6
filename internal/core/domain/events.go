package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EventType tags the variant of a real-time event on the wire.
type EventType string

const (
	EventTicketUpdate    EventType = "TicketUpdate"
	EventTypingIndicator EventType = "TypingIndicator"
	EventNewComment      EventType = "NewComment"
)

// ErrMalformedEvent is returned for frames that are not a well-formed event.
var ErrMalformedEvent = errors.New("malformed event")

// Event is the payload fanned out to every connected session. It is one of
// TicketUpdate, TypingIndicator or NewComment.
type Event interface {
	Type() EventType
	Ticket() uuid.UUID
}

// TicketUpdate announces a change to a ticket. Data is an opaque JSON value.
type TicketUpdate struct {
	TicketID uuid.UUID       `json:"ticket_id"`
	Data     json.RawMessage `json:"data"`
}

func (TicketUpdate) Type() EventType     { return EventTicketUpdate }
func (e TicketUpdate) Ticket() uuid.UUID { return e.TicketID }

// TypingIndicator signals that a user started or stopped typing on a ticket.
type TypingIndicator struct {
	TicketID uuid.UUID `json:"ticket_id"`
	UserID   uuid.UUID `json:"user_id"`
	IsTyping bool      `json:"is_typing"`
}

func (TypingIndicator) Type() EventType     { return EventTypingIndicator }
func (e TypingIndicator) Ticket() uuid.UUID { return e.TicketID }

// NewComment announces a comment added to a ticket.
type NewComment struct {
	TicketID uuid.UUID       `json:"ticket_id"`
	Comment  json.RawMessage `json:"comment"`
}

func (NewComment) Type() EventType     { return EventNewComment }
func (e NewComment) Ticket() uuid.UUID { return e.TicketID }

// NewTicketUpdate builds a TicketUpdate carrying data encoded as JSON.
func NewTicketUpdate(ticketID uuid.UUID, data any) (TicketUpdate, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return TicketUpdate{}, fmt.Errorf("marshal ticket update: %w", err)
	}
	return TicketUpdate{TicketID: ticketID, Data: raw}, nil
}

// NewCommentEvent builds a NewComment carrying comment encoded as JSON.
func NewCommentEvent(ticketID uuid.UUID, comment any) (NewComment, error) {
	raw, err := json.Marshal(comment)
	if err != nil {
		return NewComment{}, fmt.Errorf("marshal comment event: %w", err)
	}
	return NewComment{TicketID: ticketID, Comment: raw}, nil
}

// MarshalEvent encodes ev keyed by its variant name:
// {"TicketUpdate": {"ticket_id": "...", "data": ...}}.
func MarshalEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", ErrMalformedEvent)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.Type(), err)
	}
	return json.Marshal(map[EventType]json.RawMessage{ev.Type(): payload})
}

// UnmarshalEvent decodes a frame holding exactly one variant key. Unknown
// variants, missing payloads and a missing ticket id all yield ErrMalformedEvent.
func UnmarshalEvent(data []byte) (Event, error) {
	var frame map[EventType]json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if len(frame) != 1 {
		return nil, fmt.Errorf("%w: want one variant, got %d", ErrMalformedEvent, len(frame))
	}

	var (
		kind    EventType
		payload json.RawMessage
	)
	for k, v := range frame {
		kind, payload = k, v
	}
	if len(payload) == 0 || string(payload) == "null" {
		return nil, fmt.Errorf("%w: missing payload", ErrMalformedEvent)
	}

	var ev Event
	switch kind {
	case EventTicketUpdate:
		var p TicketUpdate
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev = p
	case EventTypingIndicator:
		var p TypingIndicator
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev = p
	case EventNewComment:
		var p NewComment
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev = p
	default:
		return nil, fmt.Errorf("%w: unknown variant %q", ErrMalformedEvent, kind)
	}

	if ev.Ticket() == uuid.Nil {
		return nil, fmt.Errorf("%w: ticket_id is required", ErrMalformedEvent)
	}
	return ev, nil
}
