package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"msgport/internal/model"
)

const (
	defaultAPIBaseURL  = "https://graph.facebook.com"
	defaultAPIVersion  = "v22.0"
	defaultHTTPTimeout = 10 * time.Second
)

// Client sends outbound calls for one configured platform account.
// All operations are independently fallible; callers log failures and
// move on, they are never retried here.
type Client interface {
	Platform() model.Platform
	SendText(ctx context.Context, recipientID, text string) error
	// MarkAsRead acknowledges an inbound message. The target is the
	// message id on WhatsApp and the sender PSID on Messenger.
	MarkAsRead(ctx context.Context, target string) error
	SendTemplate(ctx context.Context, recipientID, templateName, languageCode string, bodyParams []string) error
}

// Registry is the explicit business-id to client map, built once at
// startup and passed by reference to handlers. Nothing resolves clients
// through ambient state.
type Registry struct {
	byBusiness map[string]Client
}

func NewClientRegistry() *Registry {
	return &Registry{byBusiness: map[string]Client{}}
}

func (r *Registry) Register(businessID string, client Client) {
	if r == nil || client == nil || strings.TrimSpace(businessID) == "" {
		return
	}
	if r.byBusiness == nil {
		r.byBusiness = map[string]Client{}
	}
	r.byBusiness[strings.TrimSpace(businessID)] = client
}

func (r *Registry) Client(businessID string) (Client, error) {
	if r == nil {
		return nil, fmt.Errorf("nil client registry")
	}
	c, ok := r.byBusiness[strings.TrimSpace(businessID)]
	if !ok {
		return nil, fmt.Errorf("no outbound client for business id %q", businessID)
	}
	return c, nil
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byBusiness)
}

// graphAPI holds the pieces shared by both platform clients.
type graphAPI struct {
	client      *http.Client
	baseURL     string
	version     string
	accessToken string
}

func newGraphAPI(baseURL, version, accessToken string, client *http.Client) graphAPI {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	version = strings.Trim(strings.TrimSpace(version), "/")
	if version == "" {
		version = defaultAPIVersion
	}
	return graphAPI{
		client:      client,
		baseURL:     baseURL,
		version:     version,
		accessToken: strings.TrimSpace(accessToken),
	}
}

func (g graphAPI) post(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("graph api call failed: status %d: %s", resp.StatusCode, msg)
	}
	return nil
}
