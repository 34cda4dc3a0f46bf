package api

import (
	"errors"
	"net/http"
	"strings"
)

var errRateLimited = errors.New("rate limited")

func (s *Server) authorizeRead(r *http.Request) error {
	if s.rateLimiter != nil && !s.rateLimiter.Allow(r, "read") {
		s.auditAuth(r, "deny", "rate_limit", "", nil, "read rate limit exceeded")
		return errRateLimited
	}
	if err := s.authorizeRoles(r, "reader", "exporter", "admin"); err != nil {
		s.auditAuth(r, "deny", "roles", "", nil, err.Error())
		return err
	}
	return s.authorizeReadToken(r)
}

func (s *Server) authorizeExport(r *http.Request) error {
	if s.rateLimiter != nil && !s.rateLimiter.Allow(r, "export") {
		s.auditAuth(r, "deny", "rate_limit", "", nil, "export rate limit exceeded")
		return errRateLimited
	}
	if err := s.authorizeRoles(r, "exporter", "admin"); err != nil {
		return err
	}
	return s.authorizeReadToken(r)
}

func (s *Server) authorizeReadToken(r *http.Request) error {
	token := strings.TrimSpace(s.auth.Read.Token)
	if token == "" {
		s.auditAuth(r, "allow", "none", "", nil, "")
		return nil
	}
	if !matchBearer(r.Header.Get("Authorization"), token) {
		s.auditAuth(r, "deny", "bearer", "", nil, "missing or invalid bearer token")
		return errors.New("missing or invalid bearer token")
	}
	s.auditAuth(r, "allow", "bearer", "static-token", nil, "")
	return nil
}

func (s *Server) authorizeRoles(r *http.Request, allowed ...string) error {
	source, subject, roles, enforced, err := s.resolveRoles(r)
	if err != nil {
		return err
	}
	if !enforced {
		return nil
	}
	roleSet := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		roleSet[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}
	for _, needed := range allowed {
		if _, ok := roleSet[strings.ToLower(strings.TrimSpace(needed))]; ok {
			s.auditAuth(r, "allow", source, subject, roles, "")
			return nil
		}
	}
	return errors.New("insufficient role")
}

func withAuthDefaults(in AuthConfig) AuthConfig {
	if strings.TrimSpace(in.JWT.RolesClaim) == "" {
		in.JWT.RolesClaim = "roles"
	}
	if in.Rate.ReadPerMinute <= 0 {
		in.Rate.ReadPerMinute = 600
	}
	if in.Rate.ExportPerMinute <= 0 {
		in.Rate.ExportPerMinute = 120
	}
	return in
}

func matchBearer(header, expected string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return false
	}
	return strings.TrimSpace(parts[1]) == expected
}
