package dispatch

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"msgport/internal/ingest"
	"msgport/internal/model"
	"msgport/internal/store"
)

// MessageHandler reacts to one normalized inbound message. Handlers run
// detached from the webhook request: their errors are logged, never
// surfaced to the already-acknowledged delivery.
type MessageHandler interface {
	HandleMessage(ctx context.Context, ev model.InboundEvent) error
}

// StatusHandler reacts to one delivery/read receipt.
type StatusHandler interface {
	HandleStatus(ctx context.Context, ev model.InboundEvent) error
}

// Forwarder mirrors normalized events to an optional external sink.
type Forwarder interface {
	Forward(ctx context.Context, deliveryID string, ev model.InboundEvent)
}

// EventObserver receives counters for processed events; satisfied by the
// observability package.
type EventObserver interface {
	ObserveEvent(platform, kind string)
	ObserveHandlerFailure(platform string)
}

// Outcome reports what happened to one leaf event of a webhook delivery.
// Ignored envelopes produce an outcome too, so callers and tests can
// assert on them instead of fishing for absent errors.
type Outcome struct {
	Event      model.InboundEvent
	DeliveryID string
	Handled    bool
}

type Dispatcher struct {
	registry  *ingest.Registry
	journal   store.Repository
	messages  MessageHandler
	statuses  StatusHandler
	forwarder Forwarder
	observer  EventObserver
	logger    logr.Logger

	// handlerTimeout bounds each detached handler invocation.
	handlerTimeout time.Duration
}

type Options struct {
	Registry       *ingest.Registry
	Journal        store.Repository
	Messages       MessageHandler
	Statuses       StatusHandler
	Forwarder      Forwarder
	Observer       EventObserver
	Logger         logr.Logger
	HandlerTimeout time.Duration
}

func New(opts Options) *Dispatcher {
	timeout := opts.HandlerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		registry:       opts.Registry,
		journal:        opts.Journal,
		messages:       opts.Messages,
		statuses:       opts.Statuses,
		forwarder:      opts.Forwarder,
		observer:       opts.Observer,
		logger:         opts.Logger,
		handlerTimeout: timeout,
	}
}

// Dispatch parses one webhook body and routes every leaf event. The
// returned outcomes cover journaling only; handler invocations are
// detached so the HTTP acknowledgment never waits on outbound calls.
// The only error is an undecodable envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) ([]Outcome, error) {
	events, err := d.registry.Parse(body)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(events))
	for _, ev := range events {
		outcome := Outcome{Event: ev, DeliveryID: uuid.NewString()}
		if d.observer != nil {
			d.observer.ObserveEvent(string(ev.Platform), string(ev.Kind))
		}
		d.journalEvent(ctx, outcome.DeliveryID, ev)
		if d.forwarder != nil {
			d.forwarder.Forward(ctx, outcome.DeliveryID, ev)
		}
		outcome.Handled = d.invokeHandler(ev)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (d *Dispatcher) invokeHandler(ev model.InboundEvent) bool {
	var handle func(context.Context, model.InboundEvent) error
	switch ev.Kind {
	case model.KindMessage:
		if d.messages != nil {
			handle = d.messages.HandleMessage
		}
	case model.KindStatus:
		if d.statuses != nil {
			handle = d.statuses.HandleStatus
		}
	}
	if handle == nil {
		return false
	}

	// Detached from the request context: the 200 acknowledgment does not
	// wait on outbound calls, and a provider disconnect must not cancel
	// an in-flight reply.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.handlerTimeout)
		defer cancel()
		if err := handle(ctx, ev); err != nil {
			if d.observer != nil {
				d.observer.ObserveHandlerFailure(string(ev.Platform))
			}
			d.logger.Error(err, "event handler failed",
				"platform", ev.Platform,
				"kind", ev.Kind,
				"business_id", ev.BusinessID,
			)
		}
	}()
	return true
}

func (d *Dispatcher) journalEvent(ctx context.Context, deliveryID string, ev model.InboundEvent) {
	if d.journal == nil {
		return
	}
	delivery := model.Delivery{
		ID:         deliveryID,
		Platform:   ev.Platform,
		BusinessID: ev.BusinessID,
		Kind:       ev.Kind,
		ReceivedAt: ev.ReceivedAt,
	}
	if ev.Message != nil {
		delivery.MessageType = ev.Message.Type
		delivery.SenderID = ev.Message.SenderID
		delivery.MessageID = ev.Message.ID
		delivery.Text = ev.Message.Text
	}
	if ev.Status != nil {
		delivery.SenderID = ev.Status.RecipientID
		delivery.Payload = ev.Status.Payload
	}
	if _, err := d.journal.RecordDelivery(ctx, delivery); err != nil {
		// Journal writes are best effort and never gate the webhook ack.
		d.logger.Error(err, "journal write failed", "delivery_id", deliveryID)
	}
}
