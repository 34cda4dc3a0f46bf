package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-logr/logr"

	"msgport/internal/dispatch"
	"msgport/internal/export"
	"msgport/internal/ingest"
	"msgport/internal/providers/messenger"
	"msgport/internal/providers/whatsapp"
	"msgport/internal/store"
)

type signatureCounter struct {
	n int64
}

func (c *signatureCounter) ObserveSignatureFailure() { atomic.AddInt64(&c.n, 1) }
func (c *signatureCounter) count() int64             { return atomic.LoadInt64(&c.n) }

func newTestServer(t *testing.T, webhook WebhookPolicy, auth AuthConfig) (http.Handler, store.Repository, *signatureCounter) {
	t.Helper()
	journal := store.NewMemoryRepository()
	reg := ingest.NewRegistry()
	reg.Register(whatsapp.NewAdapter())
	reg.Register(messenger.NewAdapter())
	dispatcher := dispatch.New(dispatch.Options{
		Registry: reg,
		Journal:  journal,
		Logger:   logr.Discard(),
	})
	sigs := &signatureCounter{}
	srv := NewServer(ServerOptions{
		Auth:       auth,
		Webhook:    webhook,
		Dispatcher: dispatcher,
		Journal:    journal,
		Exporter:   export.NewFilesystemExporter(t.TempDir()),
		Signatures: sigs,
		Logger:     logr.Discard(),
	})
	return srv.Routes(), journal, sigs
}

func validSig(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const waTextBody = `{
	"object":"whatsapp_business_account",
	"entry":[{
		"id":"waba-1",
		"changes":[{
			"field":"messages",
			"value":{
				"metadata":{"phone_number_id":"pn-1"},
				"messages":[{"from":"1555","id":"wamid.1","timestamp":"1700000000","text":{"body":"hi"}}]
			}
		}]
	}]
}`

func TestWebhookVerificationHandshake(t *testing.T) {
	h, _, _ := newTestServer(t, WebhookPolicy{VerifyToken: "expected-token", AppSecret: "sec"}, AuthConfig{})

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=expected-token&hub.challenge=challenge-123", nil)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Body.String() != "challenge-123" {
		t.Fatalf("body got %q want raw challenge", res.Body.String())
	}
}

func TestWebhookVerificationRejectsWithoutEchoingChallenge(t *testing.T) {
	h, _, _ := newTestServer(t, WebhookPolicy{VerifyToken: "expected-token", AppSecret: "sec"}, AuthConfig{})

	tests := []struct {
		name string
		url  string
	}{
		{"wrong token", "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=challenge-123"},
		{"wrong mode", "/webhook?hub.mode=unsubscribe&hub.verify_token=expected-token&hub.challenge=challenge-123"},
		{"missing token", "/webhook?hub.mode=subscribe&hub.challenge=challenge-123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			res := httptest.NewRecorder()
			h.ServeHTTP(res, req)
			if res.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d", res.Code)
			}
			if bytes.Contains(res.Body.Bytes(), []byte("challenge-123")) {
				t.Fatal("challenge must never be echoed on rejection")
			}
		})
	}
}

func TestWebhookDeliveryAcknowledgedAndJournaled(t *testing.T) {
	h, journal, _ := newTestServer(t, WebhookPolicy{VerifyToken: "tok", AppSecret: "sec"}, AuthConfig{})

	body := []byte(waTextBody)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", validSig("sec", body))
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", res.Code, res.Body.String())
	}
	if res.Body.String() != "EVENT_RECEIVED" {
		t.Fatalf("ack body got %q", res.Body.String())
	}

	result, err := journal.QueryDeliveries(req.Context(), store.DeliveryQuery{Platform: "whatsapp"})
	if err != nil {
		t.Fatalf("query journal: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].Text != "hi" {
		t.Fatalf("journal got %+v", result.Items)
	}
}

func TestWebhookUnknownObjectStillAcknowledged(t *testing.T) {
	h, journal, _ := newTestServer(t, WebhookPolicy{VerifyToken: "tok", AppSecret: "sec"}, AuthConfig{})

	body := []byte(`{"object":"some_future_product","entry":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", validSig("sec", body))
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusOK || res.Body.String() != "EVENT_RECEIVED" {
		t.Fatalf("got %d %q", res.Code, res.Body.String())
	}

	result, err := journal.QueryDeliveries(req.Context(), store.DeliveryQuery{Kind: "ignored"})
	if err != nil {
		t.Fatalf("query journal: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("ignored envelope not journaled: %+v", result.Items)
	}
}

func TestWebhookSignatureGate(t *testing.T) {
	h, _, sigs := newTestServer(t, WebhookPolicy{VerifyToken: "tok", AppSecret: "sec"}, AuthConfig{})
	body := []byte(waTextBody)

	// Wrong secret.
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", validSig("other", body))
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("mismatch expected 401, got %d", res.Code)
	}

	// Malformed header.
	req = httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "md5=abc")
	res = httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("malformed expected 401, got %d", res.Code)
	}

	// Missing header.
	req = httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	res = httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("missing header expected 401, got %d", res.Code)
	}

	if sigs.count() != 3 {
		t.Fatalf("signature failures counted %d want 3", sigs.count())
	}
}

func TestWebhookSecondarySecretAcceptedDuringRotation(t *testing.T) {
	h, _, _ := newTestServer(t, WebhookPolicy{VerifyToken: "tok", AppSecret: "new", SecondarySecret: "old"}, AuthConfig{})
	body := []byte(waTextBody)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", validSig("old", body))
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("secondary secret expected 200, got %d", res.Code)
	}
}

func TestWebhookAllowUnsignedMode(t *testing.T) {
	h, _, _ := newTestServer(t, WebhookPolicy{VerifyToken: "tok", AllowUnsigned: true}, AuthConfig{})
	body := []byte(waTextBody)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("unsigned delivery expected 200 in permissive mode, got %d", res.Code)
	}

	// A present but wrong signature is still rejected.
	req = httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", validSig("wrong", body))
	res = httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature expected 401 even in permissive mode, got %d", res.Code)
	}
}

func TestWebhookRejectsOversizedPayload(t *testing.T) {
	h, _, _ := newTestServer(t, WebhookPolicy{VerifyToken: "tok", AppSecret: "sec"}, AuthConfig{})

	big := bytes.Repeat([]byte("a"), int(maxWebhookBodyBytes)+1)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(big))
	req.Header.Set("X-Hub-Signature-256", validSig("sec", big))
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}

func TestExportFlow(t *testing.T) {
	h, _, _ := newTestServer(t, WebhookPolicy{VerifyToken: "tok", AppSecret: "sec"}, AuthConfig{})

	body := []byte(waTextBody)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", validSig("sec", body))
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("webhook: %d", res.Code)
	}

	payload := []byte(`{"format":"json","filter":{"platform":"whatsapp"}}`)
	req = httptest.NewRequest(http.MethodPost, "/v1/exports", bytes.NewReader(payload))
	res = httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusAccepted {
		t.Fatalf("export expected 202, got %d body=%s", res.Code, res.Body.String())
	}
	var job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Status != "completed" {
		t.Fatalf("job got %+v", job)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/exports/"+job.ID+"/download", nil)
	res = httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("download expected 200, got %d", res.Code)
	}
	var pack struct {
		SchemaVersion string `json:"schema_version"`
		Count         int    `json:"count"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &pack); err != nil {
		t.Fatalf("decode pack: %v", err)
	}
	if pack.SchemaVersion != "delivery-log/v1" || pack.Count != 1 {
		t.Fatalf("pack got %+v", pack)
	}
}

func TestDeliveriesListAndGet(t *testing.T) {
	h, _, _ := newTestServer(t, WebhookPolicy{VerifyToken: "tok", AppSecret: "sec"}, AuthConfig{})

	body := []byte(waTextBody)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", validSig("sec", body))
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("webhook: %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/deliveries?platform=whatsapp&kind=message", nil)
	res = httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("list expected 200, got %d", res.Code)
	}
	var list struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("items got %d", len(list.Items))
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/deliveries/"+list.Items[0].ID, nil)
	res = httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("get expected 200, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/deliveries/does-not-exist", nil)
	res = httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("missing id expected 404, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	res = httptest.NewRecorder()
	h.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("conversations expected 200, got %d", res.Code)
	}
}
