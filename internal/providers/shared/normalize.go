package shared

import (
	"encoding/json"

	"msgport/internal/model"
)

// RawMessage is the superset of inbound message shapes seen across the
// WhatsApp Cloud API and Messenger payloads. Each platform parser
// unmarshals its leaf objects into this shape and hands them to Normalize.
type RawMessage struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Sender      *RawParty    `json:"sender,omitempty"`
	Text        *RawText     `json:"text,omitempty"`
	Message     *RawNested   `json:"message,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

type RawParty struct {
	ID string `json:"id"`
}

type RawText struct {
	Body string `json:"body"`
}

// RawNested is the Messenger shape where the text sits one level down.
type RawNested struct {
	MID  string `json:"mid"`
	Text string `json:"text"`
}

type Interactive struct {
	Type        string       `json:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Normalize maps one raw inbound message into the platform-agnostic
// record. Pure function of its input; it never fails. Resolution order,
// first match wins: interactive button reply (the reply ID becomes the
// type), direct text, nested message text, unknown.
func Normalize(raw RawMessage) model.NormalizedMessage {
	out := model.NormalizedMessage{
		ID:       raw.ID,
		SenderID: resolveSender(raw),
	}
	switch {
	case raw.Interactive != nil && raw.Interactive.ButtonReply != nil && raw.Interactive.ButtonReply.ID != "":
		out.Type = raw.Interactive.ButtonReply.ID
	case raw.Text != nil:
		out.Type = model.TypeText
		out.Text = raw.Text.Body
	case raw.Message != nil && raw.Message.Text != "":
		out.Type = model.TypeText
		out.Text = raw.Message.Text
		if out.ID == "" {
			out.ID = raw.Message.MID
		}
	default:
		out.Type = model.TypeUnknown
	}
	return out
}

// NormalizeJSON is Normalize over a raw JSON leaf object. Undecodable
// input degrades to the unknown type rather than failing.
func NormalizeJSON(data []byte) model.NormalizedMessage {
	var raw RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.NormalizedMessage{Type: model.TypeUnknown}
	}
	return Normalize(raw)
}

func resolveSender(raw RawMessage) string {
	if raw.From != "" {
		return raw.From
	}
	if raw.Sender != nil {
		return raw.Sender.ID
	}
	return ""
}
