package api

import (
	"github.com/go-logr/logr"

	"msgport/internal/dispatch"
	"msgport/internal/export"
	"msgport/internal/store"
)

type AuthConfig struct {
	Read  BearerPolicy
	JWT   JWTPolicy
	Audit AuditPolicy
	Rate  RateLimitPolicy
}

type BearerPolicy struct {
	Token string
}

type JWTPolicy struct {
	Enabled     bool
	Issuer      string
	Audience    string
	RolesClaim  string
	HS256Secret string
}

type AuditPolicy struct {
	LogFile string
}

type RateLimitPolicy struct {
	Enabled         bool
	ReadPerMinute   int
	ExportPerMinute int
}

// WebhookPolicy carries the handshake token and signing secrets for the
// webhook endpoints.
type WebhookPolicy struct {
	VerifyToken     string
	AppSecret       string
	SecondarySecret string
	// AllowUnsigned lets deliveries without a signature header through,
	// matching the permissive upstream behavior. Off by default.
	AllowUnsigned bool
}

// SignatureObserver counts rejected deliveries; satisfied by the
// observability package.
type SignatureObserver interface {
	ObserveSignatureFailure()
}

type ServerOptions struct {
	Auth       AuthConfig
	Webhook    WebhookPolicy
	Dispatcher *dispatch.Dispatcher
	Journal    store.Repository
	Exporter   *export.FilesystemExporter
	Signatures SignatureObserver
	Logger     logr.Logger
}

type Server struct {
	auth        AuthConfig
	webhook     WebhookPolicy
	dispatcher  *dispatch.Dispatcher
	journal     store.Repository
	exporter    *export.FilesystemExporter
	signatures  SignatureObserver
	rateLimiter *authRateLimiter
	logger      logr.Logger
}

func NewServer(opts ServerOptions) *Server {
	auth := withAuthDefaults(opts.Auth)
	return &Server{
		auth:        auth,
		webhook:     opts.Webhook,
		dispatcher:  opts.Dispatcher,
		journal:     opts.Journal,
		exporter:    opts.Exporter,
		signatures:  opts.Signatures,
		rateLimiter: newAuthRateLimiter(auth.Rate),
		logger:      opts.Logger,
	}
}
