package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"msgport/internal/model"
)

type SQLRepository struct {
	db      *sql.DB
	dialect string
}

func NewSQLRepository(db *sql.DB, dialect string) (*SQLRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("nil db")
	}
	d := strings.ToLower(strings.TrimSpace(dialect))
	if d == "" {
		return nil, fmt.Errorf("empty dialect")
	}
	if d != "postgres" && d != "sqlite" {
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	return &SQLRepository{db: db, dialect: d}, nil
}

func (s *SQLRepository) RecordDelivery(ctx context.Context, d model.Delivery) (time.Time, error) {
	if err := validateDelivery(d); err != nil {
		return time.Time{}, err
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now().UTC()
	}
	payload := []byte(d.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	query := `INSERT INTO deliveries (id, platform, business_id, kind, message_type, sender_id, message_id, text, payload, received_at) VALUES (` +
		s.ph(1) + `,` + s.ph(2) + `,` + s.ph(3) + `,` + s.ph(4) + `,` + s.ph(5) + `,` + s.ph(6) + `,` + s.ph(7) + `,` + s.ph(8) + `,` + s.ph(9) + `,` + s.ph(10) + `)`
	_, err := s.db.ExecContext(ctx, query,
		d.ID,
		string(d.Platform),
		d.BusinessID,
		string(d.Kind),
		nullable(d.MessageType),
		nullable(d.SenderID),
		nullable(d.MessageID),
		nullable(d.Text),
		string(payload),
		s.tsValue(d.ReceivedAt.UTC()),
	)
	if err != nil {
		return time.Time{}, err
	}
	return d.ReceivedAt, nil
}

func (s *SQLRepository) GetDelivery(ctx context.Context, id string) (model.Delivery, error) {
	query := deliverySelect + ` WHERE id = ` + s.ph(1)
	row := s.db.QueryRowContext(ctx, query, id)
	d, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return model.Delivery{}, ErrNotFound
	}
	if err != nil {
		return model.Delivery{}, err
	}
	return d, nil
}

func (s *SQLRepository) QueryDeliveries(ctx context.Context, q DeliveryQuery) (DeliveryResult, error) {
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

	params := make([]interface{}, 0, 12)
	add := func(v interface{}) string {
		params = append(params, v)
		return s.ph(len(params))
	}

	query := strings.Builder{}
	query.WriteString(deliverySelect + ` WHERE 1=1`)
	if q.Platform != "" {
		query.WriteString(` AND platform = ` + add(q.Platform))
	}
	if q.BusinessID != "" {
		query.WriteString(` AND business_id = ` + add(q.BusinessID))
	}
	if q.Kind != "" {
		query.WriteString(` AND kind = ` + add(q.Kind))
	}
	if q.MessageType != "" {
		query.WriteString(` AND message_type = ` + add(q.MessageType))
	}
	if q.SenderID != "" {
		query.WriteString(` AND sender_id = ` + add(q.SenderID))
	}
	if !q.From.IsZero() {
		query.WriteString(` AND received_at >= ` + add(s.tsValue(q.From.UTC())))
	}
	if !q.To.IsZero() {
		query.WriteString(` AND received_at <= ` + add(s.tsValue(q.To.UTC())))
	}
	if !cursorTS.IsZero() {
		query.WriteString(` AND (received_at > ` + add(s.tsValue(cursorTS)) + ` OR (received_at = ` + add(s.tsValue(cursorTS)) + ` AND id > ` + add(cursorID) + `))`)
	}
	query.WriteString(` ORDER BY received_at ASC, id ASC LIMIT ` + add(q.Limit+1))

	rows, err := s.db.QueryContext(ctx, query.String(), params...)
	if err != nil {
		return DeliveryResult{}, err
	}
	defer rows.Close()

	items := make([]model.Delivery, 0, q.Limit+1)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return DeliveryResult{}, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return DeliveryResult{}, err
	}

	res := DeliveryResult{}
	if len(items) > q.Limit {
		res.Items = items[:q.Limit]
		last := res.Items[len(res.Items)-1]
		res.NextCursor = encodeCursor(last.ReceivedAt, last.ID)
		return res, nil
	}
	res.Items = items
	return res, nil
}

func (s *SQLRepository) ListConversations(ctx context.Context) ([]ConversationInfo, error) {
	query := `SELECT platform, business_id, sender_id, MAX(received_at) FROM deliveries WHERE kind = 'message' AND sender_id IS NOT NULL GROUP BY platform, business_id, sender_id ORDER BY 1, 2, 3`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ConversationInfo, 0)
	for rows.Next() {
		var info ConversationInfo
		var platform string
		var lastRaw interface{}
		if err := rows.Scan(&platform, &info.BusinessID, &info.SenderID, &lastRaw); err != nil {
			return nil, err
		}
		info.Platform = model.Platform(platform)
		if t, err := parseTimeRaw(lastRaw); err == nil {
			info.LastSeen = t
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLRepository) CreateExport(ctx context.Context, format string, filter map[string]interface{}) (model.ExportJob, error) {
	if format == "" {
		format = "json"
	}
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return model.ExportJob{}, err
	}
	id := fmt.Sprintf("exp_%d", time.Now().UTC().UnixNano())
	query := `INSERT INTO exports (id, status, format, filter_json) VALUES (` + s.ph(1) + `,` + s.ph(2) + `,` + s.ph(3) + `,` + s.ph(4) + `)`
	if _, err := s.db.ExecContext(ctx, query, id, "pending", format, string(filterJSON)); err != nil {
		return model.ExportJob{}, err
	}
	return s.GetExport(ctx, id)
}

func (s *SQLRepository) SetExportCompleted(ctx context.Context, id, artifactURI string) error {
	query := `UPDATE exports SET status = ` + s.ph(1) + `, artifact_uri = ` + s.ph(2) + `, completed_at = ` + s.ph(3) + ` WHERE id = ` + s.ph(4)
	result, err := s.db.ExecContext(ctx, query, "completed", artifactURI, s.tsValue(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLRepository) SetExportFailed(ctx context.Context, id, message string) error {
	query := `UPDATE exports SET status = ` + s.ph(1) + `, error_message = ` + s.ph(2) + `, completed_at = ` + s.ph(3) + ` WHERE id = ` + s.ph(4)
	result, err := s.db.ExecContext(ctx, query, "failed", message, s.tsValue(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLRepository) GetExport(ctx context.Context, id string) (model.ExportJob, error) {
	query := `SELECT id, status, format, filter_json, artifact_uri, error_message, created_at, completed_at FROM exports WHERE id = ` + s.ph(1)
	row := s.db.QueryRowContext(ctx, query, id)
	var job model.ExportJob
	var filterRaw interface{}
	var artifactURI, errorMsg sql.NullString
	var createdRaw interface{}
	var completedRaw interface{}
	if err := row.Scan(&job.ID, &job.Status, &job.Format, &filterRaw, &artifactURI, &errorMsg, &createdRaw, &completedRaw); err != nil {
		if err == sql.ErrNoRows {
			return model.ExportJob{}, ErrNotFound
		}
		return model.ExportJob{}, err
	}
	job.ArtifactURI = artifactURI.String
	job.Error = errorMsg.String
	job.Filter = map[string]interface{}{}
	if b := bytesFrom(filterRaw); len(b) > 0 {
		if err := json.Unmarshal(b, &job.Filter); err != nil {
			return model.ExportJob{}, err
		}
	}
	createdAt, err := parseTimeRaw(createdRaw)
	if err != nil {
		return model.ExportJob{}, err
	}
	job.CreatedAt = createdAt
	if completedRaw != nil {
		if t, err := parseTimeRaw(completedRaw); err == nil && !t.IsZero() {
			job.CompletedAt = &t
		}
	}
	return job, nil
}

const deliverySelect = `SELECT id, platform, business_id, kind, message_type, sender_id, message_id, text, payload, received_at FROM deliveries`

func (s *SQLRepository) ph(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLRepository) tsValue(t time.Time) interface{} {
	if s.dialect == "sqlite" {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

func nullable(in string) interface{} {
	if strings.TrimSpace(in) == "" {
		return nil
	}
	return in
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDelivery(row rowScanner) (model.Delivery, error) {
	var d model.Delivery
	var platform, kind string
	var messageType, senderID, messageID, text sql.NullString
	var payloadRaw interface{}
	var receivedRaw interface{}

	err := row.Scan(
		&d.ID,
		&platform,
		&d.BusinessID,
		&kind,
		&messageType,
		&senderID,
		&messageID,
		&text,
		&payloadRaw,
		&receivedRaw,
	)
	if err != nil {
		return model.Delivery{}, err
	}
	d.Platform = model.Platform(platform)
	d.Kind = model.EventKind(kind)
	d.MessageType = messageType.String
	d.SenderID = senderID.String
	d.MessageID = messageID.String
	d.Text = text.String
	if b := bytesFrom(payloadRaw); len(b) > 0 && string(b) != "{}" {
		d.Payload = json.RawMessage(b)
	}
	receivedAt, err := parseTimeRaw(receivedRaw)
	if err != nil {
		return model.Delivery{}, err
	}
	d.ReceivedAt = receivedAt
	return d, nil
}

func bytesFrom(v interface{}) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	default:
		return nil
	}
}

func parseTimeRaw(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return parseTimeString(string(t))
	case string:
		return parseTimeString(t)
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time type %T", v)
	}
}

func parseTimeString(in string) (time.Time, error) {
	in = strings.TrimSpace(in)
	if in == "" {
		return time.Time{}, nil
	}
	formats := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999-07:00", "2006-01-02 15:04:05-07:00", "2006-01-02 15:04:05"}
	for _, f := range formats {
		if t, err := time.Parse(f, in); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time format: %s", in)
}
