package forward

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/go-logr/logr"

	"msgport/internal/model"
)

// CloudEventsForwarder mirrors every normalized event to a CloudEvents
// HTTP sink. It is strictly best effort: sends are detached, failures
// are logged and dropped.
type CloudEventsForwarder struct {
	client  cloudevents.Client
	sinkURL string
	timeout time.Duration
	logger  logr.Logger
}

func NewCloudEventsForwarder(sinkURL string, logger logr.Logger) (*CloudEventsForwarder, error) {
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, err
	}
	return &CloudEventsForwarder{
		client:  client,
		sinkURL: sinkURL,
		timeout: 10 * time.Second,
		logger:  logger,
	}, nil
}

func (f *CloudEventsForwarder) Forward(_ context.Context, deliveryID string, ev model.InboundEvent) {
	ce, err := ev.ToCloudEvent(deliveryID)
	if err != nil {
		f.logger.Error(err, "cloudevent conversion failed", "delivery_id", deliveryID)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		ctx = cloudevents.ContextWithTarget(ctx, f.sinkURL)
		if result := f.client.Send(ctx, ce); cloudevents.IsUndelivered(result) {
			f.logger.Error(result, "cloudevent delivery failed",
				"delivery_id", deliveryID,
				"sink", f.sinkURL,
			)
		}
	}()
}
