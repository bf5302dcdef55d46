package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config captures the runtime configuration for the leaderboard service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	RateLimits    RateLimitConfig     `mapstructure:"rate_limits"`
	Validation    ValidationConfig    `mapstructure:"validation"`
	Leaderboard   LeaderboardConfig   `mapstructure:"leaderboard"`
	Reporting     ReportingConfig     `mapstructure:"reporting"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Review        ReviewConfig        `mapstructure:"review"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
	AllowedOrigins        []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MinConns        int32         `mapstructure:"min_conns"`
}

// RedisConfig is optional; without a URL rate limiting and response caching
// are disabled.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.URL) != "" }

type RateLimitConfig struct {
	SubmitPerIP   WindowLimit `mapstructure:"submit_per_ip"`
	SubmitPerUser WindowLimit `mapstructure:"submit_per_user"`
	ReadPerIP     WindowLimit `mapstructure:"read_per_ip"`
}

// WindowLimit allows Requests per Window. Zero requests disables the limit.
type WindowLimit struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type ValidationConfig struct {
	MaxDailyCost    float64 `mapstructure:"max_daily_cost"`
	MaxDailyTokens  int64   `mapstructure:"max_daily_tokens"`
	MinCostPerToken float64 `mapstructure:"min_cost_per_token"`
	MaxCostPerToken float64 `mapstructure:"max_cost_per_token"`
}

type LeaderboardConfig struct {
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
	ScanCap      int           `mapstructure:"scan_cap"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

type ReportingConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type AuthConfig struct {
	GitHub            GitHubOAuthConfig `mapstructure:"github"`
	Session           SessionConfig     `mapstructure:"session"`
	PostLoginRedirect string            `mapstructure:"post_login_redirect"`
	AdminLogins       []string          `mapstructure:"admin_logins"`
}

type GitHubOAuthConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RedirectURL  string        `mapstructure:"redirect_url"`
	Scopes       []string      `mapstructure:"scopes"`
	APIBaseURL   string        `mapstructure:"api_base_url"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
}

type SessionConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TTL          time.Duration `mapstructure:"ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

type ArchiveConfig struct {
	Enabled bool               `mapstructure:"enabled"`
	Storage string             `mapstructure:"storage"`
	Prefix  string             `mapstructure:"prefix"`
	S3      ArchiveS3Config    `mapstructure:"s3"`
	Local   ArchiveLocalConfig `mapstructure:"local"`
}

type ArchiveS3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type ArchiveLocalConfig struct {
	Directory string `mapstructure:"directory"`
}

type ReviewConfig struct {
	Webhooks []string      `mapstructure:"webhooks"`
	Webhook  WebhookConfig `mapstructure:"webhook"`
	SMTP     SMTPConfig    `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	From           string        `mapstructure:"from"`
	To             []string      `mapstructure:"to"`
	UseTLS         bool          `mapstructure:"use_tls"`
	SkipTLSVerify  bool          `mapstructure:"skip_tls_verify"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type WebhookConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type ObservabilityConfig struct {
	ServiceName   string `mapstructure:"service_name"`
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv("VIBERANK_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("viberank")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("VIBERANK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		timeStringToDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures required values are set and fills derived defaults.
func (c *Config) Validate() error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if c.Redis.PoolSize < 0 {
		return fmt.Errorf("redis.pool_size must be >= 0")
	}
	if c.Server.BodyLimitMB <= 0 {
		return fmt.Errorf("server.body_limit_mb must be > 0")
	}
	c.Server.AllowedOrigins = normalizeStringSlice(c.Server.AllowedOrigins)

	if err := c.RateLimits.validate(); err != nil {
		return err
	}
	if err := c.Validation.validate(); err != nil {
		return err
	}
	if err := c.Leaderboard.validate(); err != nil {
		return err
	}

	reportingTZ := strings.TrimSpace(c.Reporting.Timezone)
	if reportingTZ == "" {
		reportingTZ = "UTC"
	}
	if _, err := time.LoadLocation(reportingTZ); err != nil {
		return fmt.Errorf("invalid reporting.timezone: %w", err)
	}
	c.Reporting.Timezone = reportingTZ

	if err := c.Auth.validate(); err != nil {
		return err
	}
	if err := c.Archive.validate(); err != nil {
		return err
	}

	c.Review.Webhooks = normalizeStringSlice(c.Review.Webhooks)
	if c.Review.Webhook.Timeout <= 0 {
		c.Review.Webhook.Timeout = 5 * time.Second
	}
	if c.Review.Webhook.MaxRetries <= 0 {
		c.Review.Webhook.MaxRetries = 3
	}
	smtp := &c.Review.SMTP
	smtp.To = normalizeStringSlice(smtp.To)
	if strings.TrimSpace(smtp.Host) != "" {
		if smtp.Port <= 0 {
			smtp.Port = 587
		}
		if strings.TrimSpace(smtp.From) == "" {
			return fmt.Errorf("review.smtp.from must be provided when review.smtp.host is set")
		}
		if len(smtp.To) == 0 {
			return fmt.Errorf("review.smtp.to must list at least one recipient when review.smtp.host is set")
		}
		if smtp.ConnectTimeout <= 0 {
			smtp.ConnectTimeout = 5 * time.Second
		}
	}
	if strings.TrimSpace(c.Observability.ServiceName) == "" {
		c.Observability.ServiceName = "viberank"
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	d.Driver = strings.ToLower(strings.TrimSpace(d.Driver))
	switch d.Driver {
	case DriverPostgres:
		if d.URL == "" {
			return fmt.Errorf("missing required configuration: VIBERANK_DATABASE_URL")
		}
		if d.RunMigrations && d.MigrationsDir == "" {
			return fmt.Errorf("database.migrations_dir must be provided when run_migrations is true")
		}
		if d.MaxConns < 0 {
			return fmt.Errorf("database.max_conns must be >= 0")
		}
	case DriverSQLite:
		if strings.TrimSpace(d.SQLitePath) == "" {
			return fmt.Errorf("database.sqlite_path must be provided when driver is sqlite")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite")
	}
	return nil
}

func (r *RateLimitConfig) validate() error {
	for name, limit := range map[string]*WindowLimit{
		"submit_per_ip":   &r.SubmitPerIP,
		"submit_per_user": &r.SubmitPerUser,
		"read_per_ip":     &r.ReadPerIP,
	} {
		if limit.Requests < 0 {
			return fmt.Errorf("rate_limits.%s.requests must be >= 0", name)
		}
		if limit.Requests > 0 && limit.Window <= 0 {
			return fmt.Errorf("rate_limits.%s.window must be > 0", name)
		}
	}
	return nil
}

func (v *ValidationConfig) validate() error {
	if v.MaxDailyCost <= 0 {
		return fmt.Errorf("validation.max_daily_cost must be > 0")
	}
	if v.MaxDailyTokens <= 0 {
		return fmt.Errorf("validation.max_daily_tokens must be > 0")
	}
	if v.MinCostPerToken < 0 || v.MaxCostPerToken <= v.MinCostPerToken {
		return fmt.Errorf("validation cost-per-token band must satisfy 0 <= min < max")
	}
	return nil
}

func (l *LeaderboardConfig) validate() error {
	if l.DefaultLimit <= 0 {
		return fmt.Errorf("leaderboard.default_limit must be > 0")
	}
	if l.MaxLimit < l.DefaultLimit {
		return fmt.Errorf("leaderboard.max_limit cannot be below leaderboard.default_limit")
	}
	if l.ScanCap <= 0 {
		return fmt.Errorf("leaderboard.scan_cap must be > 0")
	}
	if l.CacheTTL < 0 {
		return fmt.Errorf("leaderboard.cache_ttl must be >= 0")
	}
	return nil
}

func (a *AuthConfig) validate() error {
	if a.Session.JWTSecret == "" {
		return fmt.Errorf("auth.session.jwt_secret must be provided")
	}
	if a.Session.TTL <= 0 {
		return fmt.Errorf("auth.session.ttl must be > 0")
	}
	if a.Session.CookieName == "" {
		return fmt.Errorf("auth.session.cookie_name must be provided")
	}
	a.AdminLogins = normalizeStringSlice(a.AdminLogins)

	if a.GitHub.Enabled {
		if a.GitHub.ClientID == "" {
			return fmt.Errorf("auth.github.client_id must be provided when GitHub login is enabled")
		}
		if a.GitHub.ClientSecret == "" {
			return fmt.Errorf("auth.github.client_secret must be provided when GitHub login is enabled")
		}
		if a.GitHub.RedirectURL == "" {
			return fmt.Errorf("auth.github.redirect_url must be provided when GitHub login is enabled")
		}
		if a.GitHub.HTTPTimeout <= 0 {
			return fmt.Errorf("auth.github.http_timeout must be > 0")
		}
	}
	if strings.TrimSpace(a.PostLoginRedirect) == "" {
		a.PostLoginRedirect = "/"
	}
	return nil
}

func (a *ArchiveConfig) validate() error {
	a.Storage = strings.ToLower(strings.TrimSpace(a.Storage))
	if a.Storage == "" {
		a.Storage = "local"
	}
	if !a.Enabled {
		return nil
	}
	switch a.Storage {
	case "local":
		if strings.TrimSpace(a.Local.Directory) == "" {
			return fmt.Errorf("archive.local.directory must be provided")
		}
	case "s3":
		if strings.TrimSpace(a.S3.Bucket) == "" {
			return fmt.Errorf("archive.s3.bucket must be provided")
		}
	default:
		return fmt.Errorf("archive.storage must be local or s3")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.body_limit_mb", 10)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.sqlite_path", "./data/viberank.db")
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("database.migrations_dir", "./migrations")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("rate_limits.submit_per_ip.requests", 10)
	v.SetDefault("rate_limits.submit_per_ip.window", "1m")
	v.SetDefault("rate_limits.submit_per_user.requests", 5)
	v.SetDefault("rate_limits.submit_per_user.window", "1m")
	v.SetDefault("rate_limits.read_per_ip.requests", 120)
	v.SetDefault("rate_limits.read_per_ip.window", "1m")

	v.SetDefault("validation.max_daily_cost", 5000.0)
	v.SetDefault("validation.max_daily_tokens", 250_000_000)
	v.SetDefault("validation.min_cost_per_token", 0.0000001)
	v.SetDefault("validation.max_cost_per_token", 0.1)

	v.SetDefault("leaderboard.default_limit", 50)
	v.SetDefault("leaderboard.max_limit", 200)
	v.SetDefault("leaderboard.scan_cap", 1000)
	v.SetDefault("leaderboard.cache_ttl", "30s")

	v.SetDefault("reporting.timezone", "UTC")

	v.SetDefault("auth.github.enabled", false)
	v.SetDefault("auth.github.client_id", "")
	v.SetDefault("auth.github.client_secret", "")
	v.SetDefault("auth.github.redirect_url", "")
	v.SetDefault("auth.github.scopes", []string{"read:user"})
	v.SetDefault("auth.github.api_base_url", "https://api.github.com")
	v.SetDefault("auth.github.http_timeout", "10s")
	v.SetDefault("auth.session.jwt_secret", "")
	v.SetDefault("auth.session.ttl", "720h")
	v.SetDefault("auth.session.cookie_name", "viberank_session")
	v.SetDefault("auth.session.cookie_secure", true)
	v.SetDefault("auth.post_login_redirect", "/")
	v.SetDefault("auth.admin_logins", []string{})

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.storage", "local")
	v.SetDefault("archive.prefix", "reports")
	v.SetDefault("archive.local.directory", "./data/archive")
	v.SetDefault("archive.s3.bucket", "")
	v.SetDefault("archive.s3.region", "")

	v.SetDefault("review.webhooks", []string{})
	v.SetDefault("review.webhook.timeout", "5s")
	v.SetDefault("review.webhook.max_retries", 3)
	v.SetDefault("review.smtp.port", 587)
	v.SetDefault("review.smtp.use_tls", true)
	v.SetDefault("review.smtp.connect_timeout", "5s")

	v.SetDefault("observability.service_name", "viberank")
	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "localhost:4317")
}

func normalizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	clean := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		return nil
	}
	return clean
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
