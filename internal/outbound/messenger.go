package outbound

import (
	"context"
	"fmt"
	"net/http"

	"msgport/internal/model"
)

// MessengerClient sends page messages through the Graph API me/messages
// endpoint using a page access token.
type MessengerClient struct {
	api graphAPI
}

type MessengerOptions struct {
	APIBaseURL      string
	APIVersion      string
	PageAccessToken string
	HTTPClient      *http.Client
}

func NewMessengerClient(opts MessengerOptions) (*MessengerClient, error) {
	if opts.PageAccessToken == "" {
		return nil, fmt.Errorf("messenger page access token is required")
	}
	return &MessengerClient{
		api: newGraphAPI(opts.APIBaseURL, opts.APIVersion, opts.PageAccessToken, opts.HTTPClient),
	}, nil
}

func (c *MessengerClient) Platform() model.Platform { return model.PlatformMessenger }

func (c *MessengerClient) SendText(ctx context.Context, recipientID, text string) error {
	if recipientID == "" {
		return fmt.Errorf("recipient id is required")
	}
	if text == "" {
		return fmt.Errorf("message text is required")
	}
	return c.api.post(ctx, c.messagesEndpoint(), map[string]any{
		"recipient":      map[string]any{"id": recipientID},
		"messaging_type": "RESPONSE",
		"message":        map[string]any{"text": text},
	})
}

// MarkAsRead sends the mark_seen sender action for the conversation with
// the given PSID; Messenger has no per-message read receipt call.
func (c *MessengerClient) MarkAsRead(ctx context.Context, senderPSID string) error {
	if senderPSID == "" {
		return fmt.Errorf("sender psid is required")
	}
	return c.api.post(ctx, c.messagesEndpoint(), map[string]any{
		"recipient":     map[string]any{"id": senderPSID},
		"sender_action": "mark_seen",
	})
}

// SendTemplate is not part of the page messaging surface; configured
// template replies fall back to text on Messenger.
func (c *MessengerClient) SendTemplate(_ context.Context, _, _, _ string, _ []string) error {
	return fmt.Errorf("templates are not supported on messenger")
}

func (c *MessengerClient) messagesEndpoint() string {
	return fmt.Sprintf("%s/%s/me/messages", c.api.baseURL, c.api.version)
}
