package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"msgport/internal/model"
)

func seedDelivery(t *testing.T, repo Repository, id string, platform model.Platform, business, sender string, kind model.EventKind, at time.Time) {
	t.Helper()
	d := model.Delivery{
		ID:         id,
		Platform:   platform,
		BusinessID: business,
		Kind:       kind,
		SenderID:   sender,
		ReceivedAt: at,
	}
	if kind == model.KindMessage {
		d.MessageType = model.TypeText
		d.Text = "hello from " + sender
	}
	if _, err := repo.RecordDelivery(context.Background(), d); err != nil {
		t.Fatalf("record %s: %v", id, err)
	}
}

func TestRecordAndGetDelivery(t *testing.T) {
	repo := NewMemoryRepository()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedDelivery(t, repo, "d1", model.PlatformWhatsApp, "pn-1", "1555", model.KindMessage, at)

	got, err := repo.GetDelivery(context.Background(), "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BusinessID != "pn-1" || got.MessageType != model.TypeText {
		t.Fatalf("got %+v", got)
	}

	if _, err := repo.GetDelivery(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id got %v want ErrNotFound", err)
	}
}

func TestRecordDeliveryValidation(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.RecordDelivery(context.Background(), model.Delivery{ID: "x"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("got %v want ErrInvalidInput", err)
	}
}

func TestQueryDeliveriesFilters(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedDelivery(t, repo, "d1", model.PlatformWhatsApp, "pn-1", "1555", model.KindMessage, base)
	seedDelivery(t, repo, "d2", model.PlatformWhatsApp, "pn-1", "1555", model.KindStatus, base.Add(time.Minute))
	seedDelivery(t, repo, "d3", model.PlatformMessenger, "page-1", "psid-1", model.KindMessage, base.Add(2*time.Minute))

	res, err := repo.QueryDeliveries(context.Background(), DeliveryQuery{Platform: "whatsapp"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("platform filter got %d items", len(res.Items))
	}

	res, err = repo.QueryDeliveries(context.Background(), DeliveryQuery{Kind: "message", SenderID: "psid-1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "d3" {
		t.Fatalf("kind+sender filter got %+v", res.Items)
	}

	res, err = repo.QueryDeliveries(context.Background(), DeliveryQuery{
		From: base.Add(30 * time.Second),
		To:   base.Add(90 * time.Second),
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "d2" {
		t.Fatalf("time window got %+v", res.Items)
	}
}

func TestQueryDeliveriesCursorPagination(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedDelivery(t, repo, fmt.Sprintf("d%d", i), model.PlatformWhatsApp, "pn-1", "1555", model.KindMessage, base.Add(time.Duration(i)*time.Second))
	}

	seen := map[string]bool{}
	cursor := ""
	pages := 0
	for {
		res, err := repo.QueryDeliveries(context.Background(), DeliveryQuery{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("page %d: %v", pages, err)
		}
		for _, item := range res.Items {
			if seen[item.ID] {
				t.Fatalf("item %s returned twice", item.ID)
			}
			seen[item.ID] = true
		}
		pages++
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	if len(seen) != 5 {
		t.Fatalf("walked %d items want 5", len(seen))
	}
	if pages != 3 {
		t.Fatalf("walked %d pages want 3", pages)
	}
}

func TestQueryDeliveriesInvalidCursor(t *testing.T) {
	repo := NewMemoryRepository()
	if _, err := repo.QueryDeliveries(context.Background(), DeliveryQuery{Cursor: "%%%"}); !errors.Is(err, ErrInvalidCursor) {
		t.Fatalf("got %v want ErrInvalidCursor", err)
	}
}

func TestListConversations(t *testing.T) {
	repo := NewMemoryRepository()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedDelivery(t, repo, "d1", model.PlatformWhatsApp, "pn-1", "1555", model.KindMessage, base)
	seedDelivery(t, repo, "d2", model.PlatformWhatsApp, "pn-1", "1555", model.KindMessage, base.Add(time.Hour))
	seedDelivery(t, repo, "d3", model.PlatformMessenger, "page-1", "psid-1", model.KindMessage, base)
	// Statuses never open a conversation.
	seedDelivery(t, repo, "d4", model.PlatformWhatsApp, "pn-1", "1556", model.KindStatus, base)

	convos, err := repo.ListConversations(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convos) != 2 {
		t.Fatalf("got %d conversations want 2", len(convos))
	}
	for _, c := range convos {
		if c.Platform == model.PlatformWhatsApp && !c.LastSeen.Equal(base.Add(time.Hour)) {
			t.Fatalf("whatsapp last_seen got %v", c.LastSeen)
		}
	}
}

func TestExportJobLifecycle(t *testing.T) {
	repo := NewMemoryRepository()
	job, err := repo.CreateExport(context.Background(), "", map[string]interface{}{"platform": "whatsapp"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.Status != "pending" || job.Format != "json" {
		t.Fatalf("job got %+v", job)
	}

	if err := repo.SetExportCompleted(context.Background(), job.ID, "/exports/x.json"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := repo.GetExport(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "completed" || got.ArtifactURI != "/exports/x.json" || got.CompletedAt == nil {
		t.Fatalf("got %+v", got)
	}

	if err := repo.SetExportFailed(context.Background(), "missing", "boom"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}
