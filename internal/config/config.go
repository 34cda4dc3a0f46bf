package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr          string `mapstructure:"addr"`
	ExportDir     string `mapstructure:"export_dir"`
	DevInsecure   bool   `mapstructure:"dev_insecure"`
	AllowUnsigned bool   `mapstructure:"allow_unsigned"`

	DBDriver  string `mapstructure:"db_driver"`
	DBDSN     string `mapstructure:"db_dsn"`
	DBDialect string `mapstructure:"db_dialect"`
	DBMigrate bool   `mapstructure:"db_migrate"`

	Webhook   WebhookConfig   `mapstructure:"webhook"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	Messenger MessengerConfig `mapstructure:"messenger"`
	Replies   RepliesConfig   `mapstructure:"replies"`
	Forward   ForwardConfig   `mapstructure:"forward"`
	Auth      AuthConfig      `mapstructure:"auth"`
	TLS       TLSConfig       `mapstructure:"tls"`
}

type WebhookConfig struct {
	// VerifyToken answers the GET subscription handshake.
	VerifyToken string `mapstructure:"verify_token"`
	// AppSecret signs POST deliveries; SecondarySecret covers rotation.
	AppSecret       string        `mapstructure:"app_secret"`
	SecondarySecret string        `mapstructure:"secondary_secret"`
	HandlerTimeout  time.Duration `mapstructure:"handler_timeout"`
}

type WhatsAppConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
	AccessToken   string `mapstructure:"access_token"`
	APIBaseURL    string `mapstructure:"api_base_url"`
	APIVersion    string `mapstructure:"api_version"`
}

type MessengerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	PageID          string `mapstructure:"page_id"`
	PageAccessToken string `mapstructure:"page_access_token"`
	APIBaseURL      string `mapstructure:"api_base_url"`
	APIVersion      string `mapstructure:"api_version"`
}

type RepliesConfig struct {
	// Default answers plain text messages when non-empty.
	Default string `mapstructure:"default"`
	// Buttons maps interactive button reply IDs to responses; typically
	// set through config.yaml rather than env vars.
	Buttons map[string]ButtonReply `mapstructure:"buttons"`
}

type ButtonReply struct {
	Text           string   `mapstructure:"text"`
	Template       string   `mapstructure:"template"`
	TemplateLang   string   `mapstructure:"template_lang"`
	TemplateParams []string `mapstructure:"template_params"`
}

type ForwardConfig struct {
	SinkURL string `mapstructure:"sink_url"`
}

type AuthConfig struct {
	Read      BearerAuth    `mapstructure:"read"`
	JWT       JWTAuth       `mapstructure:"jwt"`
	Audit     AuditAuth     `mapstructure:"audit"`
	RateLimit RateLimitAuth `mapstructure:"rate_limit"`
}

type BearerAuth struct {
	Token string `mapstructure:"token"`
}

type JWTAuth struct {
	Enabled     bool   `mapstructure:"enabled"`
	Issuer      string `mapstructure:"issuer"`
	Audience    string `mapstructure:"audience"`
	RolesClaim  string `mapstructure:"roles_claim"`
	HS256Secret string `mapstructure:"hs256_secret"`
}

type AuditAuth struct {
	LogFile string `mapstructure:"log_file"`
}

type RateLimitAuth struct {
	Enabled         bool `mapstructure:"enabled"`
	ReadPerMinute   int  `mapstructure:"read_per_min"`
	ExportPerMinute int  `mapstructure:"export_per_min"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

func LoadFromEnv() Config {
	v := viper.New()
	v.SetEnvPrefix("MSGPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("export_dir", "./var/exports")
	v.SetDefault("dev_insecure", false)
	v.SetDefault("allow_unsigned", false)
	v.SetDefault("db_migrate", true)
	v.SetDefault("webhook.handler_timeout", 30*time.Second)
	v.SetDefault("whatsapp.enabled", false)
	v.SetDefault("whatsapp.api_version", "v22.0")
	v.SetDefault("messenger.enabled", false)
	v.SetDefault("messenger.api_version", "v22.0")
	v.SetDefault("auth.jwt.enabled", false)
	v.SetDefault("auth.jwt.roles_claim", "roles")
	v.SetDefault("auth.rate_limit.enabled", false)
	v.SetDefault("auth.rate_limit.read_per_min", 600)
	v.SetDefault("auth.rate_limit.export_per_min", 120)
	v.SetDefault("tls.enabled", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/msgport/")

	_ = v.ReadInConfig() // ignore if not found

	// Nested struct env bindings viper cannot discover on its own.
	bindings := map[string]string{
		"webhook.verify_token":        "MSGPORT_VERIFY_TOKEN",
		"webhook.app_secret":          "MSGPORT_APP_SECRET",
		"webhook.secondary_secret":    "MSGPORT_SECONDARY_APP_SECRET",
		"whatsapp.enabled":            "MSGPORT_WHATSAPP_ENABLED",
		"whatsapp.phone_number_id":    "MSGPORT_WHATSAPP_PHONE_NUMBER_ID",
		"whatsapp.access_token":       "MSGPORT_WHATSAPP_ACCESS_TOKEN",
		"whatsapp.api_base_url":       "MSGPORT_WHATSAPP_API_BASE_URL",
		"messenger.enabled":           "MSGPORT_MESSENGER_ENABLED",
		"messenger.page_id":           "MSGPORT_MESSENGER_PAGE_ID",
		"messenger.page_access_token": "MSGPORT_MESSENGER_PAGE_ACCESS_TOKEN",
		"messenger.api_base_url":      "MSGPORT_MESSENGER_API_BASE_URL",
		"replies.default":             "MSGPORT_REPLIES_DEFAULT",
		"forward.sink_url":            "MSGPORT_FORWARD_SINK_URL",
		"auth.read.token":             "MSGPORT_READ_TOKEN",
		"auth.jwt.hs256_secret":       "MSGPORT_AUTH_JWT_HS256_SECRET",
		"auth.audit.log_file":         "MSGPORT_AUTH_AUDIT_LOG_FILE",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		fmt.Printf("Warning: failed to unmarshal config: %v\n", err)
	}
	if cfg.DBDialect == "" {
		cfg.DBDialect = cfg.DBDriver
	}
	return cfg
}

func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "MSGPORT_ADDR must not be empty")
	}
	if strings.TrimSpace(c.ExportDir) == "" {
		problems = append(problems, "MSGPORT_EXPORT_DIR must not be empty")
	}
	if strings.TrimSpace(c.Webhook.VerifyToken) == "" {
		problems = append(problems, "MSGPORT_VERIFY_TOKEN is required for the webhook handshake")
	}
	if strings.TrimSpace(c.Webhook.AppSecret) == "" && !c.AllowUnsigned {
		problems = append(problems, "MSGPORT_APP_SECRET is required; set MSGPORT_ALLOW_UNSIGNED=true only for local development")
	}
	if !c.WhatsApp.Enabled && !c.Messenger.Enabled {
		problems = append(problems, "at least one platform must be enabled; set MSGPORT_WHATSAPP_ENABLED or MSGPORT_MESSENGER_ENABLED")
	}
	if c.WhatsApp.Enabled {
		if strings.TrimSpace(c.WhatsApp.PhoneNumberID) == "" {
			problems = append(problems, "MSGPORT_WHATSAPP_PHONE_NUMBER_ID is required when MSGPORT_WHATSAPP_ENABLED=true")
		}
		if strings.TrimSpace(c.WhatsApp.AccessToken) == "" {
			problems = append(problems, "MSGPORT_WHATSAPP_ACCESS_TOKEN is required when MSGPORT_WHATSAPP_ENABLED=true")
		}
	}
	if c.Messenger.Enabled {
		if strings.TrimSpace(c.Messenger.PageID) == "" {
			problems = append(problems, "MSGPORT_MESSENGER_PAGE_ID is required when MSGPORT_MESSENGER_ENABLED=true")
		}
		if strings.TrimSpace(c.Messenger.PageAccessToken) == "" {
			problems = append(problems, "MSGPORT_MESSENGER_PAGE_ACCESS_TOKEN is required when MSGPORT_MESSENGER_ENABLED=true")
		}
	}
	if c.DBDriver != "" && c.DBDSN == "" {
		problems = append(problems, "MSGPORT_DB_DSN is required when MSGPORT_DB_DRIVER is set")
	}
	if c.DBDSN != "" && c.DBDriver == "" {
		problems = append(problems, "MSGPORT_DB_DRIVER is required when MSGPORT_DB_DSN is set")
	}
	if !c.DevInsecure {
		readAuthConfigured := strings.TrimSpace(c.Auth.Read.Token) != "" || c.Auth.JWT.Enabled
		if !readAuthConfigured {
			problems = append(problems, "read/export auth is not configured; set MSGPORT_READ_TOKEN or enable JWT, or explicitly set MSGPORT_DEV_INSECURE=true for local development only")
		}
	}
	if c.Auth.JWT.Enabled {
		if strings.TrimSpace(c.Auth.JWT.Issuer) == "" {
			problems = append(problems, "MSGPORT_AUTH_JWT_ISSUER is required when MSGPORT_AUTH_JWT_ENABLED=true")
		}
		if strings.TrimSpace(c.Auth.JWT.Audience) == "" {
			problems = append(problems, "MSGPORT_AUTH_JWT_AUDIENCE is required when MSGPORT_AUTH_JWT_ENABLED=true")
		}
		if strings.TrimSpace(c.Auth.JWT.HS256Secret) == "" {
			problems = append(problems, "MSGPORT_AUTH_JWT_HS256_SECRET is required when MSGPORT_AUTH_JWT_ENABLED=true")
		}
	}
	if c.TLS.Enabled && strings.TrimSpace(c.TLS.CertFile) == "" {
		problems = append(problems, "MSGPORT_TLS_CERT_FILE is required when MSGPORT_TLS_ENABLED=true")
	}
	if c.TLS.Enabled && strings.TrimSpace(c.TLS.KeyFile) == "" {
		problems = append(problems, "MSGPORT_TLS_KEY_FILE is required when MSGPORT_TLS_ENABLED=true")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

type StartupSummary struct {
	RepositoryMode  string
	Platforms       []string
	AllowUnsigned   bool
	SecondarySecret bool
	ForwardSink     bool
	JWTEnabled      bool
	TLSEnabled      bool
	AuthRateLimit   bool
	DevInsecure     bool
}

func (c Config) Summary() StartupSummary {
	mode := "memory"
	if c.DBDriver != "" && c.DBDSN != "" {
		mode = "sql:" + c.DBDialect
	}
	platforms := make([]string, 0, 2)
	if c.WhatsApp.Enabled {
		platforms = append(platforms, "whatsapp")
	}
	if c.Messenger.Enabled {
		platforms = append(platforms, "messenger")
	}
	return StartupSummary{
		RepositoryMode:  mode,
		Platforms:       platforms,
		AllowUnsigned:   c.AllowUnsigned,
		SecondarySecret: strings.TrimSpace(c.Webhook.SecondarySecret) != "",
		ForwardSink:     strings.TrimSpace(c.Forward.SinkURL) != "",
		JWTEnabled:      c.Auth.JWT.Enabled,
		TLSEnabled:      c.TLS.Enabled,
		AuthRateLimit:   c.Auth.RateLimit.Enabled,
		DevInsecure:     c.DevInsecure,
	}
}
