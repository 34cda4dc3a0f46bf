package bootstrap

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"msgport/internal/api"
	"msgport/internal/bot"
	"msgport/internal/config"
	"msgport/internal/dispatch"
	"msgport/internal/export"
	"msgport/internal/forward"
	"msgport/internal/ingest"
	"msgport/internal/migrate"
	"msgport/internal/observability"
	"msgport/internal/outbound"
	"msgport/internal/providers/messenger"
	"msgport/internal/providers/whatsapp"
	"msgport/internal/store"

	_ "github.com/jackc/pgx/v5/stdlib"

	_ "modernc.org/sqlite"
)

type Runtime struct {
	Handler http.Handler
	Cleanup func()
}

func NewRuntime(ctx context.Context, cfg config.Config, logger logr.Logger) (*Runtime, error) {
	journal, cleanup := buildJournal(ctx, cfg)

	registry := buildIngestRegistry(cfg)
	if err := registry.MustHaveAdapters(); err != nil {
		cleanup()
		return nil, err
	}

	clients, err := buildOutboundClients(cfg)
	if err != nil {
		cleanup()
		return nil, err
	}

	responder := bot.NewResponder(bot.Options{
		Clients:       clients,
		ButtonReplies: buildButtonReplies(cfg.Replies),
		DefaultReply:  cfg.Replies.Default,
		Logger:        logger.WithName("responder"),
	})

	var forwarder dispatch.Forwarder
	if cfg.Forward.SinkURL != "" {
		ceForwarder, err := forward.NewCloudEventsForwarder(cfg.Forward.SinkURL, logger.WithName("forwarder"))
		if err != nil {
			cleanup()
			return nil, err
		}
		forwarder = ceForwarder
	}

	events := observability.NewEventMetrics()
	dispatcher := dispatch.New(dispatch.Options{
		Registry:       registry,
		Journal:        journal,
		Messages:       responder,
		Statuses:       responder,
		Forwarder:      forwarder,
		Observer:       events,
		Logger:         logger.WithName("dispatch"),
		HandlerTimeout: cfg.Webhook.HandlerTimeout,
	})

	exporter := export.NewFilesystemExporter(cfg.ExportDir)
	server := api.NewServer(api.ServerOptions{
		Auth: api.AuthConfig{
			Read: api.BearerPolicy{Token: cfg.Auth.Read.Token},
			JWT: api.JWTPolicy{
				Enabled:     cfg.Auth.JWT.Enabled,
				Issuer:      cfg.Auth.JWT.Issuer,
				Audience:    cfg.Auth.JWT.Audience,
				RolesClaim:  cfg.Auth.JWT.RolesClaim,
				HS256Secret: cfg.Auth.JWT.HS256Secret,
			},
			Audit: api.AuditPolicy{LogFile: cfg.Auth.Audit.LogFile},
			Rate: api.RateLimitPolicy{
				Enabled:         cfg.Auth.RateLimit.Enabled,
				ReadPerMinute:   cfg.Auth.RateLimit.ReadPerMinute,
				ExportPerMinute: cfg.Auth.RateLimit.ExportPerMinute,
			},
		},
		Webhook: api.WebhookPolicy{
			VerifyToken:     cfg.Webhook.VerifyToken,
			AppSecret:       cfg.Webhook.AppSecret,
			SecondarySecret: cfg.Webhook.SecondarySecret,
			AllowUnsigned:   cfg.AllowUnsigned,
		},
		Dispatcher: dispatcher,
		Journal:    journal,
		Exporter:   exporter,
		Signatures: events,
		Logger:     logger.WithName("api"),
	})

	metrics := observability.NewHTTPMetrics()
	rootMux := http.NewServeMux()
	rootMux.Handle("/metrics", promhttp.Handler())
	rootMux.Handle("/", metrics.Wrap(server.Routes()))

	return &Runtime{
		Handler: rootMux,
		Cleanup: cleanup,
	}, nil
}

func buildIngestRegistry(cfg config.Config) *ingest.Registry {
	registry := ingest.NewRegistry()
	if cfg.WhatsApp.Enabled {
		registry.Register(whatsapp.NewAdapter())
	}
	if cfg.Messenger.Enabled {
		registry.Register(messenger.NewAdapter())
	}
	return registry
}

// buildOutboundClients registers one Graph API client per configured
// business id. WhatsApp routes by phone number id, Messenger by page id.
func buildOutboundClients(cfg config.Config) (*outbound.Registry, error) {
	registry := outbound.NewClientRegistry()
	if cfg.WhatsApp.Enabled {
		client, err := outbound.NewWhatsAppClient(outbound.WhatsAppOptions{
			APIBaseURL:    cfg.WhatsApp.APIBaseURL,
			APIVersion:    cfg.WhatsApp.APIVersion,
			AccessToken:   cfg.WhatsApp.AccessToken,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(cfg.WhatsApp.PhoneNumberID, client)
	}
	if cfg.Messenger.Enabled {
		client, err := outbound.NewMessengerClient(outbound.MessengerOptions{
			APIBaseURL:      cfg.Messenger.APIBaseURL,
			APIVersion:      cfg.Messenger.APIVersion,
			PageAccessToken: cfg.Messenger.PageAccessToken,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(cfg.Messenger.PageID, client)
	}
	return registry, nil
}

func buildButtonReplies(cfg config.RepliesConfig) map[string]bot.Reply {
	out := make(map[string]bot.Reply, len(cfg.Buttons))
	for id, reply := range cfg.Buttons {
		out[id] = bot.Reply{
			Text:           reply.Text,
			TemplateName:   reply.Template,
			TemplateLang:   reply.TemplateLang,
			TemplateParams: reply.TemplateParams,
		}
	}
	return out
}

func buildJournal(ctx context.Context, cfg config.Config) (store.Repository, func()) {
	if cfg.DBDriver == "" || cfg.DBDSN == "" {
		log.Printf("running with in-memory delivery journal")
		return store.NewMemoryRepository(), func() {}
	}

	db, err := sql.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Printf("db open failed (%v), falling back to in-memory journal", err)
		return store.NewMemoryRepository(), func() {}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Printf("db ping failed (%v), falling back to in-memory journal", err)
		_ = db.Close()
		return store.NewMemoryRepository(), func() {}
	}

	if cfg.DBMigrate {
		runner := migrate.NewRunner(os.DirFS("."))
		if err := runner.Apply(ctx, db, cfg.DBDialect); err != nil {
			log.Printf("migration apply failed (%v), falling back to in-memory journal", err)
			_ = db.Close()
			return store.NewMemoryRepository(), func() {}
		}
	}

	repo, err := store.NewSQLRepository(db, cfg.DBDialect)
	if err != nil {
		log.Printf("sql journal init failed (%v), falling back to in-memory journal", err)
		_ = db.Close()
		return store.NewMemoryRepository(), func() {}
	}
	log.Printf("running with SQL delivery journal: dialect=%s", cfg.DBDialect)
	return repo, func() { _ = db.Close() }
}
