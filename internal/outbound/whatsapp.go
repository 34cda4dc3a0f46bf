package outbound

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"msgport/internal/model"
)

// WhatsAppClient sends via the Cloud API messages endpoint of one phone
// number id.
type WhatsAppClient struct {
	api           graphAPI
	phoneNumberID string
}

type WhatsAppOptions struct {
	APIBaseURL    string
	APIVersion    string
	AccessToken   string
	PhoneNumberID string
	HTTPClient    *http.Client
}

func NewWhatsAppClient(opts WhatsAppOptions) (*WhatsAppClient, error) {
	if opts.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp access token is required")
	}
	if opts.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp phone number id is required")
	}
	return &WhatsAppClient{
		api:           newGraphAPI(opts.APIBaseURL, opts.APIVersion, opts.AccessToken, opts.HTTPClient),
		phoneNumberID: opts.PhoneNumberID,
	}, nil
}

func (c *WhatsAppClient) Platform() model.Platform { return model.PlatformWhatsApp }

func (c *WhatsAppClient) SendText(ctx context.Context, recipientID, text string) error {
	if recipientID == "" {
		return fmt.Errorf("recipient id is required")
	}
	if text == "" {
		return fmt.Errorf("message text is required")
	}
	return c.api.post(ctx, c.messagesEndpoint(), map[string]any{
		"messaging_product": "whatsapp",
		"to":                recipientID,
		"type":              "text",
		"text": map[string]any{
			"body":        text,
			"preview_url": false,
		},
	})
}

func (c *WhatsAppClient) MarkAsRead(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("message id is required")
	}
	return c.api.post(ctx, c.messagesEndpoint(), map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
}

func (c *WhatsAppClient) SendTemplate(ctx context.Context, recipientID, templateName, languageCode string, bodyParams []string) error {
	if recipientID == "" {
		return fmt.Errorf("recipient id is required")
	}
	if templateName == "" {
		return fmt.Errorf("template name is required")
	}
	if languageCode == "" {
		languageCode = "en_US"
	}
	template := map[string]any{
		"name":     templateName,
		"language": map[string]any{"code": languageCode},
	}
	if len(bodyParams) > 0 {
		params := make([]map[string]any, 0, len(bodyParams))
		for _, p := range bodyParams {
			params = append(params, map[string]any{"type": "text", "text": p})
		}
		template["components"] = []map[string]any{
			{"type": "body", "parameters": params},
		}
	}
	return c.api.post(ctx, c.messagesEndpoint(), map[string]any{
		"messaging_product": "whatsapp",
		"to":                recipientID,
		"type":              "template",
		"template":          template,
	})
}

func (c *WhatsAppClient) messagesEndpoint() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.api.baseURL, c.api.version, url.PathEscape(c.phoneNumberID))
}
