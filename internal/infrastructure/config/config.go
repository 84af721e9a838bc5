package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Federation FederationConfig
	Sequence   SequenceConfig
	Telemetry  TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string // file path or ":memory:" when Driver is sqlite
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address of the Redis server
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	Locales          []string // supported response locales, the first is the default
}

// Remote source modes of the federation
const (
	RemoteModeHTTP     = "http"
	RemoteModeDatabase = "database"
)

// FederationConfig configures replication of remote master data
type FederationConfig struct {
	RemoteMode      string         // http or database
	RemoteURL       string         // base URL of the remote query endpoint (http mode)
	RemoteDatabase  DatabaseConfig // remote database (database mode)
	ReadTimeout     time.Duration  // bound for value-help reads before falling back to the local cache
	InitialLoad     bool           // replicate referenced rows at startup
	RefreshInterval time.Duration  // repeat the initial load on this interval, zero disables
	MaxExpandDepth  int            // maximum composition depth fetched during replication
}

// Lock backends for key allocation
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// SequenceConfig configures key allocation
type SequenceConfig struct {
	LockBackend string        // memory or redis
	LockTTL     time.Duration // expiry of a distributed scope lock
	LockWait    time.Duration // maximum wait for a scope lock
	MaxRetries  int           // retries of a unit of work after a key collision
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with XTRAVELS_ prefix (e.g., XTRAVELS_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("XTRAVELS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: loadDatabase(v, "database"),
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			Locales:          v.GetStringSlice("http.locales"),
		},
		Federation: FederationConfig{
			RemoteMode:      v.GetString("federation.remote_mode"),
			RemoteURL:       v.GetString("federation.remote_url"),
			RemoteDatabase:  loadDatabase(v, "federation.remote_database"),
			ReadTimeout:     v.GetDuration("federation.read_timeout"),
			InitialLoad:     v.GetBool("federation.initial_load"),
			RefreshInterval: v.GetDuration("federation.refresh_interval"),
			MaxExpandDepth:  v.GetInt("federation.max_expand_depth"),
		},
		Sequence: SequenceConfig{
			LockBackend: v.GetString("sequence.lock_backend"),
			LockTTL:     v.GetDuration("sequence.lock_ttl"),
			LockWait:    v.GetDuration("sequence.lock_wait"),
			MaxRetries:  v.GetInt("sequence.max_retries"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}
	if !v.IsSet("federation.initial_load") {
		cfg.Federation.InitialLoad = true
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadDatabase(v *viper.Viper, prefix string) DatabaseConfig {
	return DatabaseConfig{
		Driver:          v.GetString(prefix + ".driver"),
		Host:            v.GetString(prefix + ".host"),
		Port:            v.GetInt(prefix + ".port"),
		User:            v.GetString(prefix + ".user"),
		Password:        v.GetString(prefix + ".password"),
		DBName:          v.GetString(prefix + ".dbname"),
		SSLMode:         v.GetString(prefix + ".sslmode"),
		SQLitePath:      v.GetString(prefix + ".sqlite_path"),
		MaxOpenConns:    v.GetInt(prefix + ".max_open_conns"),
		MaxIdleConns:    v.GetInt(prefix + ".max_idle_conns"),
		ConnMaxLifetime: v.GetInt(prefix + ".conn_max_lifetime"),
		ConnMaxIdleTime: v.GetInt(prefix + ".conn_max_idle_time"),
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "xtravels"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	applyDatabaseDefaults(&cfg.Database, "xtravels")
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Accept-Language", "X-Request-ID"}
	}
	if len(cfg.HTTP.Locales) == 0 {
		cfg.HTTP.Locales = []string{"en", "de", "fr"}
	}
	if cfg.Federation.RemoteMode == "" {
		cfg.Federation.RemoteMode = RemoteModeHTTP
	}
	if cfg.Federation.ReadTimeout == 0 {
		cfg.Federation.ReadTimeout = 10 * time.Second
	}
	if cfg.Federation.MaxExpandDepth == 0 {
		cfg.Federation.MaxExpandDepth = 8
	}
	if cfg.Federation.RemoteMode == RemoteModeDatabase {
		applyDatabaseDefaults(&cfg.Federation.RemoteDatabase, "flights")
	}
	if cfg.Sequence.LockBackend == "" {
		cfg.Sequence.LockBackend = LockBackendMemory
	}
	if cfg.Sequence.LockTTL == 0 {
		cfg.Sequence.LockTTL = 30 * time.Second
	}
	if cfg.Sequence.LockWait == 0 {
		cfg.Sequence.LockWait = 10 * time.Second
	}
	if cfg.Sequence.MaxRetries == 0 {
		cfg.Sequence.MaxRetries = 3
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "xtravels"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

func applyDatabaseDefaults(d *DatabaseConfig, dbName string) {
	if d.Driver == "" {
		d.Driver = DriverPostgres
	}
	if d.Host == "" {
		d.Host = "localhost"
	}
	if d.Port == 0 {
		d.Port = 5432
	}
	if d.User == "" {
		d.User = "postgres"
	}
	if d.DBName == "" {
		d.DBName = dbName
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.SQLitePath == "" {
		d.SQLitePath = dbName + ".db"
	}
	if d.MaxOpenConns == 0 {
		d.MaxOpenConns = 25
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = 5
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = 60
	}
	if d.ConnMaxIdleTime == 0 {
		d.ConnMaxIdleTime = 30
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if err := c.Database.validate("database"); err != nil {
		return err
	}

	switch c.Federation.RemoteMode {
	case RemoteModeHTTP:
		if c.Federation.RemoteURL != "" {
			if _, err := url.ParseRequestURI(c.Federation.RemoteURL); err != nil {
				return fmt.Errorf("federation.remote_url is invalid: %w", err)
			}
		}
	case RemoteModeDatabase:
		if err := c.Federation.RemoteDatabase.validate("federation.remote_database"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("federation.remote_mode must be %q or %q, got %q", RemoteModeHTTP, RemoteModeDatabase, c.Federation.RemoteMode)
	}
	if c.Federation.ReadTimeout < 0 {
		return fmt.Errorf("federation.read_timeout cannot be negative")
	}
	if c.Federation.RefreshInterval < 0 {
		return fmt.Errorf("federation.refresh_interval cannot be negative")
	}
	if c.Federation.MaxExpandDepth < 1 {
		return fmt.Errorf("federation.max_expand_depth must be positive")
	}

	switch c.Sequence.LockBackend {
	case LockBackendMemory, LockBackendRedis:
	default:
		return fmt.Errorf("sequence.lock_backend must be %q or %q, got %q", LockBackendMemory, LockBackendRedis, c.Sequence.LockBackend)
	}
	if c.Sequence.MaxRetries < 0 {
		return fmt.Errorf("sequence.max_retries cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Database.Driver == DriverPostgres && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.Driver == DriverPostgres && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

func (d *DatabaseConfig) validate(prefix string) error {
	switch d.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("%s.driver must be %q or %q, got %q", prefix, DriverPostgres, DriverSQLite, d.Driver)
	}
	if d.MaxOpenConns <= 0 {
		return fmt.Errorf("%s.max_open_conns must be positive", prefix)
	}
	if d.MaxIdleConns < 0 {
		return fmt.Errorf("%s.max_idle_conns cannot be negative", prefix)
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		return fmt.Errorf("%s.max_idle_conns (%d) cannot exceed %s.max_open_conns (%d)",
			prefix, d.MaxIdleConns, prefix, d.MaxOpenConns)
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.SQLitePath
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
