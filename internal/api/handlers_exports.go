package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"msgport/internal/model"
	"msgport/internal/store"
)

func (s *Server) handleExports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil, false)
		return
	}
	if err := s.authorizeExport(r); err != nil {
		if errors.Is(err, errRateLimited) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error(), nil, true)
			return
		}
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil, false)
		return
	}
	var in struct {
		Format string                 `json:"format"`
		Filter map[string]interface{} `json:"filter"`
	}
	if err := decodeJSON(r.Body, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil, false)
		return
	}
	job, err := s.runExport(r.Context(), in.Format, in.Filter)
	if err != nil {
		handleStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) runExport(ctx context.Context, format string, filter map[string]interface{}) (model.ExportJob, error) {
	job, err := s.journal.CreateExport(ctx, format, filter)
	if err != nil {
		return model.ExportJob{}, err
	}
	items, err := s.exportItemsForJob(ctx, job.Filter)
	if err != nil {
		_ = s.journal.SetExportFailed(ctx, job.ID, err.Error())
		return model.ExportJob{}, err
	}
	path, err := s.exporter.CreateDeliveryLog(ctx, job.ID, items)
	if err != nil {
		_ = s.journal.SetExportFailed(ctx, job.ID, err.Error())
		return model.ExportJob{}, err
	}
	if err := s.journal.SetExportCompleted(ctx, job.ID, path); err != nil {
		return model.ExportJob{}, err
	}
	return s.journal.GetExport(ctx, job.ID)
}

func (s *Server) exportItemsForJob(ctx context.Context, filter map[string]interface{}) ([]model.Delivery, error) {
	q := store.DeliveryQuery{Limit: 500}
	if filter != nil {
		q.Platform, _ = filter["platform"].(string)
		q.BusinessID, _ = filter["business_id"].(string)
		q.Kind, _ = filter["kind"].(string)
		q.MessageType, _ = filter["message_type"].(string)
		q.SenderID, _ = filter["sender_id"].(string)
		if raw, _ := filter["from"].(string); raw != "" {
			from, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, err
			}
			q.From = from.UTC()
		}
		if raw, _ := filter["to"].(string); raw != "" {
			to, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, err
			}
			q.To = to.UTC()
		}
	}
	items := make([]model.Delivery, 0)
	for {
		res, err := s.journal.QueryDeliveries(ctx, q)
		if err != nil {
			return nil, err
		}
		items = append(items, res.Items...)
		if res.NextCursor == "" {
			return items, nil
		}
		q.Cursor = res.NextCursor
	}
}

func (s *Server) handleExportByID(w http.ResponseWriter, r *http.Request) {
	if err := s.authorizeExport(r); err != nil {
		if errors.Is(err, errRateLimited) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error(), nil, true)
			return
		}
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil, false)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/exports/")
	if strings.HasSuffix(path, "/download") {
		id := strings.TrimSuffix(path, "/download")
		id = strings.TrimSuffix(id, "/")
		s.handleExportDownload(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil, false)
		return
	}
	job, err := s.journal.GetExport(r.Context(), path)
	if err != nil {
		handleStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil, false)
		return
	}
	job, err := s.journal.GetExport(r.Context(), id)
	if err != nil {
		handleStoreErr(w, err)
		return
	}
	if job.ArtifactURI == "" {
		writeError(w, http.StatusConflict, "EXPORT_NOT_READY", "export artifact is not ready", nil, true)
		return
	}
	resolved, err := s.exporter.ArtifactPath(job.ArtifactURI)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil, true)
		return
	}
	b, err := os.ReadFile(resolved)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil, true)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
