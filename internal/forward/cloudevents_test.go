package forward

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"msgport/internal/model"
)

func TestForwardDeliversCloudEventToSink(t *testing.T) {
	type received struct {
		id      string
		ceType  string
		subject string
		body    []byte
	}
	got := make(chan received, 1)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{
			id:      r.Header.Get("Ce-Id"),
			ceType:  r.Header.Get("Ce-Type"),
			subject: r.Header.Get("Ce-Subject"),
			body:    body,
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	f, err := NewCloudEventsForwarder(sink.URL, logr.Discard())
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}

	ev := model.InboundEvent{
		Kind:       model.KindMessage,
		Platform:   model.PlatformWhatsApp,
		BusinessID: "pn-1",
		Message:    &model.NormalizedMessage{ID: "wamid.1", Type: model.TypeText, Text: "hi", SenderID: "1555"},
		ReceivedAt: time.Now().UTC(),
	}
	f.Forward(context.Background(), "delivery-1", ev)

	select {
	case r := <-got:
		if r.id != "delivery-1" {
			t.Fatalf("ce id got %q", r.id)
		}
		if r.ceType != "com.msgport.message.received" {
			t.Fatalf("ce type got %q", r.ceType)
		}
		if r.subject != "1555" {
			t.Fatalf("ce subject got %q", r.subject)
		}
		var data model.InboundEvent
		if err := json.Unmarshal(r.body, &data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
		if data.Message == nil || data.Message.Text != "hi" {
			t.Fatalf("data got %+v", data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("sink never received the event")
	}
}

func TestToCloudEventTypes(t *testing.T) {
	tests := []struct {
		name string
		ev   model.InboundEvent
		want string
	}{
		{"message", model.InboundEvent{Kind: model.KindMessage, Platform: model.PlatformWhatsApp}, "com.msgport.message.received"},
		{"status", model.InboundEvent{Kind: model.KindStatus, Platform: model.PlatformWhatsApp}, "com.msgport.status.received"},
		{"ignored", model.Ignored(model.PlatformUnknown, ""), "com.msgport.envelope.ignored"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce, err := tt.ev.ToCloudEvent("id-1")
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			if ce.Type() != tt.want {
				t.Fatalf("type got %q want %q", ce.Type(), tt.want)
			}
			if ce.Source() == "" {
				t.Fatal("expected a source")
			}
		})
	}
}
