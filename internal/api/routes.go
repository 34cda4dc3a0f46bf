package api

import "net/http"

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/v1/deliveries", s.handleDeliveries)
	mux.HandleFunc("/v1/deliveries/", s.handleDeliveryByID)
	mux.HandleFunc("/v1/conversations", s.handleConversations)
	mux.HandleFunc("/v1/exports", s.handleExports)
	mux.HandleFunc("/v1/exports/", s.handleExportByID)
	return mux
}
