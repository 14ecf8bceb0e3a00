package console

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/InvariantDynamics/blog-automation-console/sdk/go/blogclient"
)

const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
	TransportNATS      = "nats"
)

type Config struct {
	BaseURL       string        `yaml:"base_url"`
	GeneratePath  string        `yaml:"generate_path"`
	LogsPath      string        `yaml:"logs_path"`
	WebSocketPath string        `yaml:"websocket_path"`
	Transport     string        `yaml:"transport"`
	NATSURL       string        `yaml:"nats_url"`
	NATSSubject   string        `yaml:"nats_subject"`
	NATSToken     string        `yaml:"nats_token"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	Auth          AuthConfig    `yaml:"auth"`
	MetricsAddr   string        `yaml:"metrics_addr"`
	LogLevel      string        `yaml:"log_level"`
	LogPath       string        `yaml:"log_path"`
	Form          FormDefaults  `yaml:"form"`
}

type FormDefaults struct {
	SpreadsheetID     string `yaml:"spreadsheet_id"`
	WordPressURL      string `yaml:"wordpress_url"`
	WordPressUsername string `yaml:"wordpress_username"`
	NumImages         int    `yaml:"num_images"`
	ArticleLength     int    `yaml:"article_length"`
}

// Form builds a submission prefilled from the defaults. The config file never
// carries the WordPress password.
func (f FormDefaults) Form() blogclient.Form {
	form := blogclient.DefaultForm()
	form.SpreadsheetID = f.SpreadsheetID
	form.WordPressURL = f.WordPressURL
	form.WordPressUsername = f.WordPressUsername
	if f.NumImages > 0 {
		form.NumImages = f.NumImages
	}
	if f.ArticleLength > 0 {
		form.ArticleLength = f.ArticleLength
	}
	return form
}

func DefaultConfig() Config {
	form := blogclient.DefaultForm()
	return Config{
		BaseURL:       "http://localhost:5000",
		GeneratePath:  "/generate",
		LogsPath:      "/logs",
		WebSocketPath: DefaultWebSocketPath,
		Transport:     TransportSSE,
		NATSSubject:   DefaultNATSSubject,
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		Auth:          AuthConfig{Mode: AuthModeNone},
		LogLevel:      "info",
		Form: FormDefaults{
			NumImages:     form.NumImages,
			ArticleLength: form.ArticleLength,
		},
	}
}

// LoadConfig applies, in order, the defaults, the YAML file at path (or
// BLOGCONSOLE_CONFIG when path is empty) and BLOGCONSOLE_* overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv("BLOGCONSOLE_CONFIG"))
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ConfigFromEnv() (Config, error) {
	return LoadConfig("")
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base url is required")
	}
	switch c.Transport {
	case TransportSSE, TransportWebSocket:
	case TransportNATS:
		if strings.TrimSpace(c.NATSURL) == "" {
			return fmt.Errorf("BLOGCONSOLE_NATS_URL is required when transport is %q", TransportNATS)
		}
	default:
		return fmt.Errorf("unsupported transport %q", c.Transport)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	return c.Auth.Validate()
}

// Client builds the SDK client with auth and, when metrics is non-nil,
// instrumented round-trippers.
func (c Config) Client(metrics *Metrics) (*blogclient.Client, error) {
	opts := []blogclient.Option{blogclient.WithPaths(c.GeneratePath, c.LogsPath)}
	if metrics != nil {
		opts = append(opts,
			blogclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second, Transport: metrics.InstrumentRoundTripper(nil)}),
			blogclient.WithStreamHTTPClient(&http.Client{Transport: metrics.InstrumentRoundTripper(nil)}),
		)
	}
	editor, err := c.Auth.RequestEditor()
	if err != nil {
		return nil, err
	}
	if editor != nil {
		opts = append(opts, blogclient.WithRequestEditor(editor))
	}
	return blogclient.New(c.BaseURL, opts...), nil
}

func (c Config) NewTransport(client *blogclient.Client) (Transport, error) {
	switch c.Transport {
	case TransportWebSocket:
		return NewWebSocketTransport(client, c.WebSocketPath), nil
	case TransportNATS:
		return NewNATSTransport(NATSOptions{URL: c.NATSURL, Subject: c.NATSSubject, Token: c.NATSToken})
	default:
		return NewSSETransport(client), nil
	}
}

func applyEnv(cfg *Config) error {
	cfg.BaseURL = envOrDefault("BLOGCONSOLE_BASE_URL", cfg.BaseURL)
	cfg.GeneratePath = envOrDefault("BLOGCONSOLE_GENERATE_PATH", cfg.GeneratePath)
	cfg.LogsPath = envOrDefault("BLOGCONSOLE_LOGS_PATH", cfg.LogsPath)
	cfg.WebSocketPath = envOrDefault("BLOGCONSOLE_WS_PATH", cfg.WebSocketPath)
	cfg.Transport = strings.ToLower(envOrDefault("BLOGCONSOLE_TRANSPORT", cfg.Transport))
	cfg.NATSURL = envOrDefault("BLOGCONSOLE_NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = envOrDefault("BLOGCONSOLE_NATS_SUBJECT", cfg.NATSSubject)
	cfg.NATSToken = envOrDefault("BLOGCONSOLE_NATS_TOKEN", cfg.NATSToken)
	cfg.MetricsAddr = envOrDefault("BLOGCONSOLE_METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = envOrDefault("BLOGCONSOLE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogPath = envOrDefault("BLOGCONSOLE_LOG_PATH", cfg.LogPath)
	cfg.Form.SpreadsheetID = envOrDefault("BLOGCONSOLE_SPREADSHEET_ID", cfg.Form.SpreadsheetID)
	cfg.Form.WordPressURL = envOrDefault("BLOGCONSOLE_WORDPRESS_URL", cfg.Form.WordPressURL)
	cfg.Form.WordPressUsername = envOrDefault("BLOGCONSOLE_WORDPRESS_USERNAME", cfg.Form.WordPressUsername)

	var err error
	if cfg.MaxRetries, err = envInt("BLOGCONSOLE_MAX_RETRIES", cfg.MaxRetries); err != nil {
		return err
	}
	if cfg.RetryDelay, err = envDuration("BLOGCONSOLE_RETRY_DELAY", cfg.RetryDelay); err != nil {
		return err
	}

	mode := strings.ToLower(envOrDefault("BLOGCONSOLE_AUTH_MODE", string(cfg.Auth.Mode)))
	cfg.Auth.Mode = AuthMode(mode)
	cfg.Auth.Token = envOrDefault("BLOGCONSOLE_AUTH_TOKEN", cfg.Auth.Token)
	cfg.Auth.JWTSecret = envOrDefault("BLOGCONSOLE_JWT_HS256_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.Subject = envOrDefault("BLOGCONSOLE_JWT_SUBJECT", cfg.Auth.Subject)
	if envBool("BLOGCONSOLE_DISABLE_AUTH", false) {
		cfg.Auth = AuthConfig{Mode: AuthModeNone}
	}
	return nil
}

func envBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}
