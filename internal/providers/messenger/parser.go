package messenger

import (
	"encoding/json"
	"fmt"

	"msgport/internal/model"
	"msgport/internal/providers/shared"
)

// sentinelPageID is what the platform sends as the entry id on some page
// subscriptions; the real page id then lives on each event's recipient.
const sentinelPageID = "0"

// Payload shapes follow the Messenger platform webhook format: entry ->
// messaging, or entry -> changes whose values are lifted into the
// messaging shape before dispatch.
type webhookPayload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []messagingEvent `json:"messaging,omitempty"`
	Changes   []change         `json:"changes,omitempty"`
}

type messagingEvent struct {
	Sender    *party          `json:"sender,omitempty"`
	Recipient *party          `json:"recipient,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Message   *nestedMessage  `json:"message,omitempty"`
	Delivery  json.RawMessage `json:"delivery,omitempty"`
	Read      json.RawMessage `json:"read,omitempty"`
}

type party struct {
	ID string `json:"id"`
}

type nestedMessage struct {
	MID  string `json:"mid"`
	Text string `json:"text"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

// changeValue carries the fields lifted into a messagingEvent.
type changeValue struct {
	Sender    *party         `json:"sender,omitempty"`
	Recipient *party         `json:"recipient,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Message   *nestedMessage `json:"message,omitempty"`
}

type Parser struct{}

func (Parser) Parse(body []byte) ([]model.InboundEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding messenger payload: %w", err)
	}

	events := make([]model.InboundEvent, 0, 4)
	for _, e := range payload.Entry {
		items := e.Messaging
		for _, ch := range e.Changes {
			items = append(items, liftChange(ch))
		}
		for _, item := range items {
			events = append(events, normalizeItem(e.ID, item))
		}
	}
	return events, nil
}

// liftChange adapts a change into the self-contained messaging shape.
func liftChange(ch change) messagingEvent {
	return messagingEvent{
		Sender:    ch.Value.Sender,
		Recipient: ch.Value.Recipient,
		Timestamp: ch.Value.Timestamp,
		Message:   ch.Value.Message,
	}
}

func normalizeItem(entryID string, item messagingEvent) model.InboundEvent {
	businessID := resolveBusinessID(entryID, item)
	receivedAt := shared.ParseUnixOrNow(fmt.Sprintf("%d", item.Timestamp))

	if len(item.Delivery) > 0 || len(item.Read) > 0 {
		payload := item.Delivery
		if len(payload) == 0 {
			payload = item.Read
		}
		recipientID := ""
		if item.Sender != nil {
			recipientID = item.Sender.ID
		}
		return model.InboundEvent{
			Kind:       model.KindStatus,
			Platform:   model.PlatformMessenger,
			BusinessID: businessID,
			Status: &model.NormalizedStatus{
				RecipientID: recipientID,
				Payload:     payload,
			},
			ReceivedAt: receivedAt,
		}
	}

	if item.Message != nil {
		raw := shared.RawMessage{
			Message: &shared.RawNested{MID: item.Message.MID, Text: item.Message.Text},
		}
		if item.Sender != nil {
			raw.Sender = &shared.RawParty{ID: item.Sender.ID}
		}
		msg := shared.Normalize(raw)
		return model.InboundEvent{
			Kind:       model.KindMessage,
			Platform:   model.PlatformMessenger,
			BusinessID: businessID,
			Message:    &msg,
			ReceivedAt: receivedAt,
		}
	}

	return model.InboundEvent{
		Kind:       model.KindIgnored,
		Platform:   model.PlatformMessenger,
		BusinessID: businessID,
		ReceivedAt: receivedAt,
	}
}

// resolveBusinessID prefers the entry-level page id unless it is the "0"
// sentinel, in which case the event's recipient id is the page.
func resolveBusinessID(entryID string, item messagingEvent) string {
	if entryID != "" && entryID != sentinelPageID {
		return entryID
	}
	if item.Recipient != nil && item.Recipient.ID != "" {
		return item.Recipient.ID
	}
	return entryID
}
