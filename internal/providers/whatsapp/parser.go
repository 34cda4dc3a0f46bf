package whatsapp

import (
	"encoding/json"
	"fmt"

	"msgport/internal/model"
	"msgport/internal/providers/shared"
)

// Payload shapes follow the WhatsApp Cloud API webhook format:
// entry -> changes -> value{metadata, messages?, statuses?}.
type webhookPayload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         metadata          `json:"metadata"`
	Messages         []json.RawMessage `json:"messages,omitempty"`
	Statuses         []json.RawMessage `json:"statuses,omitempty"`
}

type metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

type Parser struct{}

// Parse walks entry -> changes -> value and emits one event per leaf
// message or status. The routing id is the value metadata's
// phone_number_id, never an individual event's fields.
func (Parser) Parse(body []byte) ([]model.InboundEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding whatsapp payload: %w", err)
	}

	events := make([]model.InboundEvent, 0, 4)
	for _, e := range payload.Entry {
		for _, ch := range e.Changes {
			businessID := shared.NonEmpty(ch.Value.Metadata.PhoneNumberID, e.ID)
			for _, rawStatus := range ch.Value.Statuses {
				events = append(events, statusEvent(businessID, rawStatus))
			}
			for _, rawMsg := range ch.Value.Messages {
				events = append(events, messageEvent(businessID, rawMsg))
			}
		}
	}
	return events, nil
}

func messageEvent(businessID string, raw json.RawMessage) model.InboundEvent {
	var envelope struct {
		Timestamp string `json:"timestamp"`
	}
	_ = json.Unmarshal(raw, &envelope)
	msg := shared.NormalizeJSON(raw)
	return model.InboundEvent{
		Kind:       model.KindMessage,
		Platform:   model.PlatformWhatsApp,
		BusinessID: businessID,
		Message:    &msg,
		ReceivedAt: shared.ParseUnixOrNow(envelope.Timestamp),
	}
}

func statusEvent(businessID string, raw json.RawMessage) model.InboundEvent {
	var st status
	_ = json.Unmarshal(raw, &st)
	return model.InboundEvent{
		Kind:       model.KindStatus,
		Platform:   model.PlatformWhatsApp,
		BusinessID: businessID,
		Status: &model.NormalizedStatus{
			RecipientID: st.RecipientID,
			Payload:     raw,
		},
		ReceivedAt: shared.ParseUnixOrNow(st.Timestamp),
	}
}
