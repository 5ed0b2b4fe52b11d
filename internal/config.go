package internal

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Session       SessionConfig       `mapstructure:"session"`
	DataScope     DataScopeConfig     `mapstructure:"data_scope"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
	TrustedProxies    string        `mapstructure:"trusted_proxies"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret           string          `mapstructure:"jwt_secret" validate:"required,min=32"`
	AccessTokenDuration time.Duration   `mapstructure:"access_token_duration" validate:"required,min=1m"`
	BCryptCost          int             `mapstructure:"bcrypt_cost" validate:"required,min=10,max=15"`
	SuperuserRoleCode   string          `mapstructure:"superuser_role_code"`
	LoginRateLimit      RateLimitConfig `mapstructure:"login_rate_limit"`
}

type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// SessionConfig.LoginMode is the static override of the persisted auth.login.mode setting.
// An empty value defers to the database.
type SessionConfig struct {
	LoginMode        string        `mapstructure:"login_mode"`
	LastSeenThrottle time.Duration `mapstructure:"last_seen_throttle"`
}

type DataScopeConfig struct {
	DeptIndexTTL           time.Duration `mapstructure:"dept_index_ttl"`
	CustomIncludesChildren bool          `mapstructure:"custom_includes_children"`
}

type RealtimeConfig struct {
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	AllowedOrigins string        `mapstructure:"allowed_origins"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Env    string `mapstructure:"env"`
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

const (
	DefaultSuperuserRoleCode = "super"
	DefaultLastSeenThrottle  = 30 * time.Second
	DefaultDeptIndexTTL      = 30 * time.Second
	DefaultAccessTokenTTL    = 120 * time.Minute
)

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds the configuration for container deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", ""),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			OpenAPIPath:       getEnv("HTTP_OPENAPI_PATH", "./api/openapi.yml"),
			TrustedProxies:    getEnv("HTTP_TRUSTED_PROXIES", ""),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			JWTSecret:           getEnv("JWT_SECRET", ""),
			AccessTokenDuration: getEnvAsDuration("ACCESS_TOKEN_DURATION", DefaultAccessTokenTTL),
			BCryptCost:          getEnvAsInt("BCRYPT_COST", 12),
			SuperuserRoleCode:   getEnv("SUPERUSER_ROLE_CODE", DefaultSuperuserRoleCode),
			LoginRateLimit: RateLimitConfig{
				PerSecond: getEnvAsFloat("LOGIN_RATE_PER_SECOND", 1),
				Burst:     getEnvAsInt("LOGIN_RATE_BURST", 5),
			},
		},
		Session: SessionConfig{
			LoginMode:        getEnv("SESSION_LOGIN_MODE", ""),
			LastSeenThrottle: getEnvAsDuration("SESSION_LAST_SEEN_THROTTLE", DefaultLastSeenThrottle),
		},
		DataScope: DataScopeConfig{
			DeptIndexTTL:           getEnvAsDuration("DATA_SCOPE_DEPT_INDEX_TTL", DefaultDeptIndexTTL),
			CustomIncludesChildren: getEnvAsBool("DATA_SCOPE_CUSTOM_INCLUDES_CHILDREN", true),
		},
		Realtime: RealtimeConfig{
			WriteTimeout:   getEnvAsDuration("REALTIME_WRITE_TIMEOUT", 5*time.Second),
			ReadLimit:      int64(getEnvAsInt("REALTIME_READ_LIMIT", 4096)),
			AllowedOrigins: getEnv("REALTIME_ALLOWED_ORIGINS", "*"),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnvAsBool("METRICS_ENABLED", true),
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Env:    getEnv("APP_ENV", "production"),
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values that have a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Security.SuperuserRoleCode == "" {
		c.Security.SuperuserRoleCode = DefaultSuperuserRoleCode
	}
	if c.Security.AccessTokenDuration <= 0 {
		c.Security.AccessTokenDuration = DefaultAccessTokenTTL
	}
	if c.Session.LastSeenThrottle <= 0 {
		c.Session.LastSeenThrottle = DefaultLastSeenThrottle
	}
	if c.DataScope.DeptIndexTTL <= 0 {
		c.DataScope.DeptIndexTTL = DefaultDeptIndexTTL
	}
	if c.Realtime.WriteTimeout <= 0 {
		c.Realtime.WriteTimeout = 5 * time.Second
	}
	if c.Realtime.ReadLimit <= 0 {
		c.Realtime.ReadLimit = 4096
	}
	if c.Server.OpenAPIPath == "" {
		c.Server.OpenAPIPath = "./api/openapi.yml"
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Session.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("session config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if _, err := c.TrustedProxyNets(); err != nil {
		return err
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

// TrustedProxyNets parses trusted_proxies, a comma separated list of IPs or CIDRs.
// Forwarding headers are honoured only from these peers.
func (c *ServerConfig) TrustedProxyNets() ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range strings.Split(c.TrustedProxies, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %s", entry)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %s: %w", entry, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt secret must be at least 32 characters")
	}
	if c.BCryptCost != 0 && (c.BCryptCost < 10 || c.BCryptCost > 15) {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	if c.LoginRateLimit.PerSecond < 0 || c.LoginRateLimit.Burst < 0 {
		return errors.New("login_rate_limit values cannot be negative")
	}
	return nil
}

func (c *SessionConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.LoginMode)) {
	case "", "single", "multi":
		return nil
	default:
		return fmt.Errorf("login_mode must be single or multi, got %q", c.LoginMode)
	}
}
