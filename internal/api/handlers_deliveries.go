package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"msgport/internal/store"
)

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil, false)
		return
	}
	if err := s.authorizeRead(r); err != nil {
		if errors.Is(err, errRateLimited) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error(), nil, true)
			return
		}
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil, false)
		return
	}
	query := r.URL.Query()
	q := store.DeliveryQuery{
		Platform:    query.Get("platform"),
		BusinessID:  query.Get("business_id"),
		Kind:        query.Get("kind"),
		MessageType: query.Get("message_type"),
		SenderID:    query.Get("sender_id"),
		Cursor:      query.Get("cursor"),
	}
	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_FROM", "invalid from", nil, false)
			return
		}
		q.From = from.UTC()
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_TO", "invalid to", nil, false)
			return
		}
		q.To = to.UTC()
	}
	if limit := query.Get("limit"); limit != "" {
		fmt.Sscanf(limit, "%d", &q.Limit)
	}
	res, err := s.journal.QueryDeliveries(r.Context(), q)
	if err != nil {
		handleStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": res.Items,
		"page": map[string]interface{}{
			"limit":       q.Limit,
			"next_cursor": res.NextCursor,
		},
	})
}

func (s *Server) handleDeliveryByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil, false)
		return
	}
	if err := s.authorizeRead(r); err != nil {
		if errors.Is(err, errRateLimited) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error(), nil, true)
			return
		}
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil, false)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/deliveries/")
	d, err := s.journal.GetDelivery(r.Context(), id)
	if err != nil {
		handleStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil, false)
		return
	}
	if err := s.authorizeRead(r); err != nil {
		if errors.Is(err, errRateLimited) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error(), nil, true)
			return
		}
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil, false)
		return
	}
	items, err := s.journal.ListConversations(r.Context())
	if err != nil {
		handleStoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}
