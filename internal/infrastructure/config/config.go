package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all agent configuration
type Config struct {
	App          AppConfig
	Server       ServerConfig
	Admin        AdminConfig
	Transport    TransportConfig
	Poll         PollConfig
	Store        StoreConfig
	Decision     DecisionConfig
	Notification NotificationConfig
	Redis        RedisConfig
	Journal      JournalConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Telemetry    TelemetryConfig
}

// AppConfig holds agent identity settings
type AppConfig struct {
	Name string `validate:"required"`
	Env  string `validate:"oneof=development testing production"`
}

// ServerConfig holds the addresses of both server channels and the bearer credential
type ServerConfig struct {
	SocketURL  string `validate:"required,url"` // ws:// or wss:// push channel
	APIBaseURL string `validate:"required,url"` // http(s) base for the poll fallback
	Token      string
}

// AdminConfig identifies the administrator in join_admin. Empty values fall
// back to the bearer token claims.
type AdminConfig struct {
	Usuario string
	Rol     string
}

// TransportConfig holds persistent-connection settings
type TransportConfig struct {
	ConnectTimeout        time.Duration `validate:"gt=0"`
	MaxReconnectAttempts  int           `validate:"gte=0"`
	ReconnectInitialDelay time.Duration `validate:"gt=0"`
	ReconnectMaxDelay     time.Duration `validate:"gt=0"`
	PongWait              time.Duration `validate:"gt=0"`
	WriteWait             time.Duration `validate:"gt=0"`
	MaxMessageBytes       int64         `validate:"gt=0"`
}

// PollConfig holds the HTTP fallback settings
type PollConfig struct {
	Interval time.Duration `validate:"gt=0"`
	Timeout  time.Duration `validate:"gt=0"`
}

// StoreConfig holds validation store settings
type StoreConfig struct {
	TombstoneTTL time.Duration `validate:"gt=0"`
}

// DecisionConfig holds approve/reject dispatch settings
type DecisionConfig struct {
	Timeout     time.Duration `validate:"gt=0"`
	LockBackend string        `validate:"oneof=memory redis"`
	LockTTL     time.Duration `validate:"gt=0"`
}

// NotificationConfig holds alerting settings
type NotificationConfig struct {
	BannerDuration   time.Duration `validate:"gt=0"`
	PanelExpandDelay time.Duration `validate:"gte=0"`
	DesktopEnabled   bool
	BellEnabled      bool
	Locale           string `validate:"required"`
}

// RedisConfig holds Redis connection settings for the shared decision lock
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JournalConfig holds decision journal storage settings
type JournalConfig struct {
	Enabled  bool
	Driver   string `validate:"oneof=sqlite postgres"`
	DSN      string
	LogLevel string

	// SlowThreshold marks journal statements slower than this as warnings
	SlowThreshold time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds the local control API settings
type HTTPConfig struct {
	Enabled      bool
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// TelemetryConfig holds OpenTelemetry metric export settings
type TelemetryConfig struct {
	Enabled           bool   // OTLP/gRPC export
	CollectorEndpoint string // e.g. "localhost:4317"
	Insecure          bool
	ServiceName       string
	ExportInterval    time.Duration
	PrometheusEnabled bool // serve /metrics on the local API
}

// Load loads configuration from config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with TSYNC_ prefix (e.g., TSYNC_SERVER_SOCKET_URL)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom builds the configuration from a prepared viper instance
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/transfer-sync")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("TSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Server: ServerConfig{
			SocketURL:  v.GetString("server.socket_url"),
			APIBaseURL: v.GetString("server.api_base_url"),
			Token:      v.GetString("server.token"),
		},
		Admin: AdminConfig{
			Usuario: v.GetString("admin.usuario"),
			Rol:     v.GetString("admin.rol"),
		},
		Transport: TransportConfig{
			ConnectTimeout:        v.GetDuration("transport.connect_timeout"),
			MaxReconnectAttempts:  v.GetInt("transport.max_reconnect_attempts"),
			ReconnectInitialDelay: v.GetDuration("transport.reconnect_initial_delay"),
			ReconnectMaxDelay:     v.GetDuration("transport.reconnect_max_delay"),
			PongWait:              v.GetDuration("transport.pong_wait"),
			WriteWait:             v.GetDuration("transport.write_wait"),
			MaxMessageBytes:       v.GetInt64("transport.max_message_bytes"),
		},
		Poll: PollConfig{
			Interval: v.GetDuration("poll.interval"),
			Timeout:  v.GetDuration("poll.timeout"),
		},
		Store: StoreConfig{
			TombstoneTTL: v.GetDuration("store.tombstone_ttl"),
		},
		Decision: DecisionConfig{
			Timeout:     v.GetDuration("decision.timeout"),
			LockBackend: v.GetString("decision.lock_backend"),
			LockTTL:     v.GetDuration("decision.lock_ttl"),
		},
		Notification: NotificationConfig{
			BannerDuration:   v.GetDuration("notification.banner_duration"),
			PanelExpandDelay: v.GetDuration("notification.panel_expand_delay"),
			DesktopEnabled:   v.GetBool("notification.desktop_enabled"),
			BellEnabled:      v.GetBool("notification.bell_enabled"),
			Locale:           v.GetString("notification.locale"),
		},
		Redis: RedisConfig{
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Journal: JournalConfig{
			Enabled:       v.GetBool("journal.enabled"),
			Driver:        v.GetString("journal.driver"),
			DSN:           v.GetString("journal.dsn"),
			LogLevel:      v.GetString("journal.log_level"),
			SlowThreshold: v.GetDuration("journal.slow_threshold"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			Enabled:      v.GetBool("http.enabled"),
			Addr:         v.GetString("http.addr"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ServiceName:       v.GetString("telemetry.service_name"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			PrometheusEnabled: v.GetBool("telemetry.prometheus_enabled"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "transfer-sync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Transport.ConnectTimeout == 0 {
		cfg.Transport.ConnectTimeout = 10 * time.Second
	}
	if cfg.Transport.MaxReconnectAttempts == 0 {
		cfg.Transport.MaxReconnectAttempts = 5
	}
	if cfg.Transport.ReconnectInitialDelay == 0 {
		cfg.Transport.ReconnectInitialDelay = time.Second
	}
	if cfg.Transport.ReconnectMaxDelay == 0 {
		cfg.Transport.ReconnectMaxDelay = 5 * time.Second
	}
	if cfg.Transport.PongWait == 0 {
		cfg.Transport.PongWait = 60 * time.Second
	}
	if cfg.Transport.WriteWait == 0 {
		cfg.Transport.WriteWait = 10 * time.Second
	}
	if cfg.Transport.MaxMessageBytes == 0 {
		cfg.Transport.MaxMessageBytes = 1 << 20
	}
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = 10 * time.Second
	}
	if cfg.Poll.Timeout == 0 {
		cfg.Poll.Timeout = 8 * time.Second
	}
	if cfg.Store.TombstoneTTL == 0 {
		cfg.Store.TombstoneTTL = 10 * time.Minute
	}
	if cfg.Decision.Timeout == 0 {
		cfg.Decision.Timeout = 15 * time.Second
	}
	if cfg.Decision.LockBackend == "" {
		cfg.Decision.LockBackend = "memory"
	}
	if cfg.Decision.LockTTL == 0 {
		// must cover the decision timeout
		cfg.Decision.LockTTL = 2 * cfg.Decision.Timeout
	}
	if cfg.Notification.BannerDuration == 0 {
		cfg.Notification.BannerDuration = 5 * time.Second
	}
	if cfg.Notification.PanelExpandDelay == 0 {
		cfg.Notification.PanelExpandDelay = 500 * time.Millisecond
	}
	if cfg.Notification.Locale == "" {
		cfg.Notification.Locale = "es-CL"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "transfer-sync:decision:"
	}
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = "sqlite"
	}
	if cfg.Journal.DSN == "" && cfg.Journal.Driver == "sqlite" {
		cfg.Journal.DSN = "transfer-sync-journal.db"
	}
	if cfg.Journal.LogLevel == "" {
		cfg.Journal.LogLevel = "warn"
	}
	if cfg.Journal.SlowThreshold <= 0 {
		cfg.Journal.SlowThreshold = 200 * time.Millisecond
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8765"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// covers a full decision wait
		cfg.HTTP.WriteTimeout = cfg.Decision.Timeout + 5*time.Second
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 30 * time.Second
	}
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// validate performs validation on the configuration
func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := checkScheme("server.socket_url", c.Server.SocketURL, "ws", "wss"); err != nil {
		return err
	}
	if err := checkScheme("server.api_base_url", c.Server.APIBaseURL, "http", "https"); err != nil {
		return err
	}
	if c.Transport.ReconnectMaxDelay < c.Transport.ReconnectInitialDelay {
		return fmt.Errorf("transport.reconnect_max_delay (%s) cannot be below transport.reconnect_initial_delay (%s)",
			c.Transport.ReconnectMaxDelay, c.Transport.ReconnectInitialDelay)
	}
	if c.Poll.Timeout > c.Poll.Interval {
		return fmt.Errorf("poll.timeout (%s) cannot exceed poll.interval (%s)", c.Poll.Timeout, c.Poll.Interval)
	}
	if c.Decision.LockTTL < c.Decision.Timeout {
		return fmt.Errorf("decision.lock_ttl (%s) must cover decision.timeout (%s)", c.Decision.LockTTL, c.Decision.Timeout)
	}
	if c.Journal.Enabled && c.Journal.Driver == "postgres" && c.Journal.DSN == "" {
		return fmt.Errorf("journal.dsn is required for the postgres driver")
	}

	if c.App.Env == "production" {
		if c.Server.Token == "" {
			return fmt.Errorf("server.token is required in production")
		}
		if strings.HasPrefix(c.Server.SocketURL, "ws://") {
			return fmt.Errorf("server.socket_url must use wss in production")
		}
		if strings.HasPrefix(c.Server.APIBaseURL, "http://") {
			return fmt.Errorf("server.api_base_url must use https in production")
		}
	}
	return nil
}

func checkScheme(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of %v, got %q", key, schemes, u.Scheme)
}
