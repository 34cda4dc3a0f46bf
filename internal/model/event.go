package model

import (
	"encoding/json"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"
)

// Platform identifies which messaging surface delivered an event.
type Platform string

const (
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformMessenger Platform = "messenger"
	// PlatformUnknown tags envelopes whose top-level object kind no
	// adapter claims.
	PlatformUnknown Platform = "unknown"
)

// EventKind discriminates what a single inbound leaf event carries.
type EventKind string

const (
	KindMessage EventKind = "message"
	KindStatus  EventKind = "status"
	KindIgnored EventKind = "ignored"
)

const (
	// TypeText marks a plain text message. Interactive button replies do
	// not use a generic tag: the button's reply ID itself becomes the
	// message type so downstream routing can switch on button IDs directly.
	TypeText    = "text"
	TypeUnknown = "unknown"
)

// NormalizedMessage is the platform-agnostic view of one inbound message.
// Built once per leaf event, handed to a handler, then discarded.
type NormalizedMessage struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	SenderID string `json:"sender_id"`
}

// NormalizedStatus is a delivery/read receipt. The payload passes through
// unmodified; only the recipient is lifted out for routing.
type NormalizedStatus struct {
	RecipientID string          `json:"recipient_id"`
	Payload     json.RawMessage `json:"payload"`
}

// InboundEvent is the tagged union produced by a platform parser: exactly
// one of Message or Status is set, matching Kind. BusinessID is the
// account-level identifier used to select outbound credentials.
type InboundEvent struct {
	Kind       EventKind          `json:"kind"`
	Platform   Platform           `json:"platform"`
	BusinessID string             `json:"business_id"`
	Message    *NormalizedMessage `json:"message,omitempty"`
	Status     *NormalizedStatus  `json:"status,omitempty"`
	ReceivedAt time.Time          `json:"received_at"`
}

// Ignored builds the explicit ignored-event outcome for envelope shapes
// the bridge does not understand. Ignored events are acknowledged and
// journaled like any other outcome, never raised as errors.
func Ignored(platform Platform, businessID string) InboundEvent {
	return InboundEvent{
		Kind:       KindIgnored,
		Platform:   platform,
		BusinessID: businessID,
		ReceivedAt: time.Now().UTC(),
	}
}

// Delivery is the journal record written for each processed inbound event.
type Delivery struct {
	ID          string          `json:"id"`
	Platform    Platform        `json:"platform"`
	BusinessID  string          `json:"business_id"`
	Kind        EventKind       `json:"kind"`
	MessageType string          `json:"message_type,omitempty"`
	SenderID    string          `json:"sender_id,omitempty"`
	MessageID   string          `json:"message_id,omitempty"`
	Text        string          `json:"text,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// ToCloudEvent converts an inbound event for the optional forwarder sink.
func (e InboundEvent) ToCloudEvent(id string) (event.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(id)
	ce.SetSource("msgport/" + string(e.Platform))
	switch e.Kind {
	case KindMessage:
		ce.SetType("com.msgport.message.received")
		if e.Message != nil {
			ce.SetSubject(e.Message.SenderID)
		}
	case KindStatus:
		ce.SetType("com.msgport.status.received")
		if e.Status != nil {
			ce.SetSubject(e.Status.RecipientID)
		}
	default:
		ce.SetType("com.msgport.envelope.ignored")
	}
	ce.SetTime(e.ReceivedAt)
	ce.SetExtension("businessid", e.BusinessID)
	if err := ce.SetData(cloudevents.ApplicationJSON, e); err != nil {
		return ce, err
	}
	return ce, nil
}
