package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

func (s *Server) resolveRoles(r *http.Request) (source, subject string, roles []string, enforced bool, err error) {
	if !s.auth.JWT.Enabled {
		return "", "", nil, false, nil
	}
	subject, roles, err = s.rolesFromJWT(r)
	if err != nil {
		return "jwt", "", nil, true, err
	}
	return "jwt", subject, roles, true, nil
}

func (s *Server) rolesFromJWT(r *http.Request) (string, []string, error) {
	raw := bearerToken(r.Header.Get("Authorization"))
	if raw == "" {
		return "", nil, errors.New("missing bearer token")
	}
	secret := strings.TrimSpace(s.auth.JWT.HS256Secret)
	if secret == "" {
		return "", nil, errors.New("hs256 secret not configured")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", nil, errors.New("invalid jwt token")
	}
	if !claims.VerifyIssuer(s.auth.JWT.Issuer, true) {
		return "", nil, errors.New("invalid jwt issuer")
	}
	if !claims.VerifyAudience(s.auth.JWT.Audience, true) {
		return "", nil, errors.New("invalid jwt audience")
	}
	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return "", nil, errors.New("jwt token expired")
	}

	roles := claimRoles(claims, s.auth.JWT.RolesClaim)
	if len(roles) == 0 {
		return "", nil, errors.New("missing jwt roles")
	}
	subject, _ := claims["sub"].(string)
	return strings.TrimSpace(subject), roles, nil
}

func bearerToken(header string) string {
	scheme, rest, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}

// claimRoles reads the configured claim as either a delimited string or a
// list, lowercasing and deduplicating entries.
func claimRoles(claims jwt.MapClaims, claimName string) []string {
	claimName = strings.TrimSpace(claimName)
	if claimName == "" {
		claimName = "roles"
	}

	var candidates []string
	switch vv := claims[claimName].(type) {
	case string:
		candidates = strings.FieldsFunc(vv, func(r rune) bool { return r == ',' || r == ' ' })
	case []string:
		candidates = vv
	case []interface{}:
		for _, item := range vv {
			if s, ok := item.(string); ok {
				candidates = append(candidates, s)
			}
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		role := strings.ToLower(strings.TrimSpace(c))
		if role == "" {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
