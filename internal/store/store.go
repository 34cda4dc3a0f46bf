package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"msgport/internal/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidCursor = errors.New("invalid cursor")
)

// ConversationInfo is a distinct (platform, business, sender) triple
// observed across journaled message deliveries.
type ConversationInfo struct {
	Platform   model.Platform `json:"platform"`
	BusinessID string         `json:"business_id"`
	SenderID   string         `json:"sender_id"`
	LastSeen   time.Time      `json:"last_seen"`
}

type DeliveryQuery struct {
	Platform    string
	BusinessID  string
	Kind        string
	MessageType string
	SenderID    string
	From        time.Time
	To          time.Time
	Limit       int
	Cursor      string
}

type DeliveryResult struct {
	Items      []model.Delivery
	NextCursor string
}

// Repository is the best-effort delivery journal. Writes never gate the
// webhook acknowledgment; a failed write is logged and dropped.
type Repository interface {
	RecordDelivery(ctx context.Context, d model.Delivery) (time.Time, error)
	GetDelivery(ctx context.Context, id string) (model.Delivery, error)
	QueryDeliveries(ctx context.Context, q DeliveryQuery) (DeliveryResult, error)
	ListConversations(ctx context.Context) ([]ConversationInfo, error)
	CreateExport(ctx context.Context, format string, filter map[string]interface{}) (model.ExportJob, error)
	SetExportCompleted(ctx context.Context, id, artifactURI string) error
	SetExportFailed(ctx context.Context, id, message string) error
	GetExport(ctx context.Context, id string) (model.ExportJob, error)
}

type MemoryRepository struct {
	mu         sync.RWMutex
	deliveries map[string]model.Delivery
	exports    map[string]model.ExportJob
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		deliveries: make(map[string]model.Delivery),
		exports:    make(map[string]model.ExportJob),
	}
}

func (m *MemoryRepository) RecordDelivery(_ context.Context, d model.Delivery) (time.Time, error) {
	if err := validateDelivery(d); err != nil {
		return time.Time{}, err
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[d.ID] = d
	return d.ReceivedAt, nil
}

func (m *MemoryRepository) GetDelivery(_ context.Context, id string) (model.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deliveries[id]
	if !ok {
		return model.Delivery{}, ErrNotFound
	}
	return d, nil
}

func (m *MemoryRepository) QueryDeliveries(_ context.Context, q DeliveryQuery) (DeliveryResult, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
	cursorTS, cursorID, err := decodeCursor(q.Cursor)
	if err != nil {
		return DeliveryResult{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]model.Delivery, 0)
	for _, d := range m.deliveries {
		if !matchesQuery(d, q) {
			continue
		}
		if !cursorTS.IsZero() {
			if d.ReceivedAt.Before(cursorTS) || (d.ReceivedAt.Equal(cursorTS) && d.ID <= cursorID) {
				continue
			}
		}
		items = append(items, d)
	}

	sortDeliveries(items)
	result := DeliveryResult{}
	if len(items) > q.Limit {
		result.Items = items[:q.Limit]
		last := result.Items[len(result.Items)-1]
		result.NextCursor = encodeCursor(last.ReceivedAt, last.ID)
		return result, nil
	}
	result.Items = items
	return result, nil
}

func (m *MemoryRepository) ListConversations(_ context.Context) ([]ConversationInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := make(map[string]ConversationInfo)
	for _, d := range m.deliveries {
		if d.Kind != model.KindMessage || d.SenderID == "" {
			continue
		}
		key := string(d.Platform) + ":" + d.BusinessID + ":" + d.SenderID
		info, ok := latest[key]
		if !ok || d.ReceivedAt.After(info.LastSeen) {
			latest[key] = ConversationInfo{
				Platform:   d.Platform,
				BusinessID: d.BusinessID,
				SenderID:   d.SenderID,
				LastSeen:   d.ReceivedAt,
			}
		}
	}
	out := make([]ConversationInfo, 0, len(latest))
	for _, info := range latest {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		li := string(out[i].Platform) + ":" + out[i].BusinessID + ":" + out[i].SenderID
		lj := string(out[j].Platform) + ":" + out[j].BusinessID + ":" + out[j].SenderID
		return li < lj
	})
	return out, nil
}

func (m *MemoryRepository) CreateExport(_ context.Context, format string, filter map[string]interface{}) (model.ExportJob, error) {
	if format == "" {
		format = "json"
	}
	id := fmt.Sprintf("exp_%d", time.Now().UTC().UnixNano())
	job := model.ExportJob{
		ID:        id,
		Status:    "pending",
		Format:    format,
		Filter:    filter,
		CreatedAt: time.Now().UTC(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[id] = job
	return job, nil
}

func (m *MemoryRepository) SetExportCompleted(_ context.Context, id, artifactURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.exports[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	job.Status = "completed"
	job.ArtifactURI = artifactURI
	job.CompletedAt = &now
	m.exports[id] = job
	return nil
}

func (m *MemoryRepository) SetExportFailed(_ context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.exports[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	job.Status = "failed"
	job.Error = message
	job.CompletedAt = &now
	m.exports[id] = job
	return nil
}

func (m *MemoryRepository) GetExport(_ context.Context, id string) (model.ExportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.exports[id]
	if !ok {
		return model.ExportJob{}, ErrNotFound
	}
	return job, nil
}

func matchesQuery(d model.Delivery, q DeliveryQuery) bool {
	if q.Platform != "" && string(d.Platform) != q.Platform {
		return false
	}
	if q.BusinessID != "" && d.BusinessID != q.BusinessID {
		return false
	}
	if q.Kind != "" && string(d.Kind) != q.Kind {
		return false
	}
	if q.MessageType != "" && d.MessageType != q.MessageType {
		return false
	}
	if q.SenderID != "" && d.SenderID != q.SenderID {
		return false
	}
	if !q.From.IsZero() && d.ReceivedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && d.ReceivedAt.After(q.To) {
		return false
	}
	return true
}

func validateDelivery(d model.Delivery) error {
	if d.ID == "" || d.Platform == "" || d.Kind == "" {
		return ErrInvalidInput
	}
	return nil
}

func sortDeliveries(items []model.Delivery) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].ReceivedAt.Equal(items[j].ReceivedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].ReceivedAt.Before(items[j].ReceivedAt)
	})
}

type cursor struct {
	Timestamp string `json:"ts"`
	ID        string `json:"id"`
}

func encodeCursor(ts time.Time, id string) string {
	payload, _ := json.Marshal(cursor{Timestamp: ts.Format(time.RFC3339Nano), ID: id})
	return base64.StdEncoding.EncodeToString(payload)
}

func decodeCursor(in string) (time.Time, string, error) {
	if strings.TrimSpace(in) == "" {
		return time.Time{}, "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(in)
	if err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, c.Timestamp)
	if err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	return ts.UTC(), c.ID, nil
}
