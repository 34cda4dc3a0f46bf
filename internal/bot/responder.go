package bot

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"msgport/internal/model"
	"msgport/internal/outbound"
)

// Reply is one configured response rule. Either Text or TemplateName is
// set; template replies degrade to Text on platforms without templates.
type Reply struct {
	Text           string
	TemplateName   string
	TemplateLang   string
	TemplateParams []string
}

// Responder is the default message handler: it marks inbound messages as
// read and answers according to the configured rules. Button reply IDs
// arrive as the normalized message type, so routing is a map lookup.
type Responder struct {
	clients *outbound.Registry
	// byButton maps an interactive button reply ID to its response.
	byButton map[string]Reply
	// defaultReply answers plain text messages when set.
	defaultReply string
	logger       logr.Logger
}

type Options struct {
	Clients       *outbound.Registry
	ButtonReplies map[string]Reply
	DefaultReply  string
	Logger        logr.Logger
}

func NewResponder(opts Options) *Responder {
	replies := opts.ButtonReplies
	if replies == nil {
		replies = map[string]Reply{}
	}
	return &Responder{
		clients:      opts.Clients,
		byButton:     replies,
		defaultReply: opts.DefaultReply,
		logger:       opts.Logger,
	}
}

func (r *Responder) HandleMessage(ctx context.Context, ev model.InboundEvent) error {
	if ev.Message == nil {
		return nil
	}
	client, err := r.clients.Client(ev.BusinessID)
	if err != nil {
		return fmt.Errorf("resolving outbound client: %w", err)
	}

	r.markAsRead(ctx, client, ev)

	switch ev.Message.Type {
	case model.TypeText:
		if r.defaultReply == "" {
			return nil
		}
		return r.send(ctx, client, ev, Reply{Text: r.defaultReply})
	case model.TypeUnknown:
		return nil
	default:
		reply, ok := r.byButton[ev.Message.Type]
		if !ok {
			r.logger.V(1).Info("no reply configured for button",
				"button_id", ev.Message.Type,
				"business_id", ev.BusinessID,
			)
			return nil
		}
		return r.send(ctx, client, ev, reply)
	}
}

// HandleStatus records receipts; the bridge takes no action on them.
func (r *Responder) HandleStatus(_ context.Context, ev model.InboundEvent) error {
	if ev.Status != nil {
		r.logger.V(1).Info("status received",
			"platform", ev.Platform,
			"recipient_id", ev.Status.RecipientID,
		)
	}
	return nil
}

func (r *Responder) markAsRead(ctx context.Context, client outbound.Client, ev model.InboundEvent) {
	target := ev.Message.ID
	if client.Platform() == model.PlatformMessenger {
		target = ev.Message.SenderID
	}
	if target == "" {
		return
	}
	if err := client.MarkAsRead(ctx, target); err != nil {
		// Read receipts are cosmetic; a failure never blocks the reply.
		r.logger.Error(err, "mark as read failed",
			"platform", client.Platform(),
			"recipient_id", ev.Message.SenderID,
		)
	}
}

func (r *Responder) send(ctx context.Context, client outbound.Client, ev model.InboundEvent, reply Reply) error {
	recipient := ev.Message.SenderID
	if recipient == "" {
		// Undefined sender is valid normalizer output; there is simply
		// nobody to answer.
		return nil
	}
	if reply.TemplateName != "" && client.Platform() == model.PlatformWhatsApp {
		if err := client.SendTemplate(ctx, recipient, reply.TemplateName, reply.TemplateLang, reply.TemplateParams); err != nil {
			return fmt.Errorf("sending template to %s on %s: %w", recipient, client.Platform(), err)
		}
		return nil
	}
	text := reply.Text
	if text == "" {
		return nil
	}
	if err := client.SendText(ctx, recipient, text); err != nil {
		return fmt.Errorf("sending reply to %s on %s: %w", recipient, client.Platform(), err)
	}
	return nil
}
