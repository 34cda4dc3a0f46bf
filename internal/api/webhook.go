package api

import (
	"errors"
	"net/http"
	"time"

	"msgport/internal/providers/shared"
)

const signatureHeader = "X-Hub-Signature-256"

// ackBody is the acknowledgment the platform expects on every accepted
// delivery, regardless of what normalization made of the payload.
const ackBody = "EVENT_RECEIVED"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such route", nil, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "msgport",
		"status":  "ok",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "msgport",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleVerification(w, r)
	case http.MethodPost:
		s.handleDelivery(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil, false)
	}
}

// handleVerification answers the one-time subscription handshake. On any
// mismatch the challenge is never echoed back.
func (s *Server) handleVerification(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode != "subscribe" || token == "" || token != s.webhook.VerifyToken {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := readBodyLimited(w, r, maxWebhookBodyBytes)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body is too large", nil, false)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read body", nil, false)
		return
	}

	if err := s.verifySignature(body, r.Header.Get(signatureHeader)); err != nil {
		if s.signatures != nil {
			s.signatures.ObserveSignatureFailure()
		}
		writeError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", err.Error(), nil, false)
		return
	}

	// Past the signature gate the platform contract takes over: the
	// delivery is acknowledged no matter what normalization makes of
	// it, so the provider never enters a redelivery storm over our
	// internal outcomes.
	if _, err := s.dispatcher.Dispatch(r.Context(), body); err != nil {
		s.logger.Error(err, "webhook dispatch failed")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ackBody))
}

// verifySignature enforces the X-Hub-Signature-256 gate. A missing
// header is tolerated only when AllowUnsigned is set, which restores the
// permissive upstream behavior for local development.
func (s *Server) verifySignature(body []byte, header string) error {
	err := shared.VerifySHA256Signature(body, header, s.webhook.AppSecret, s.webhook.SecondarySecret)
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrMissingSignature) && s.webhook.AllowUnsigned {
		return nil
	}
	return err
}
