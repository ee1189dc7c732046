package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Automation    AutomationConfig    `mapstructure:"automation"`
	Reconcile     ReconcileConfig     `mapstructure:"reconcile"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	SessionSecret   string        `mapstructure:"session_secret"`
	SessionDuration time.Duration `mapstructure:"session_duration"`
	BCryptCost      int           `mapstructure:"bcrypt_cost"`
}

// AutomationConfig holds everything needed to talk to the automation
// platform: the GraphQL endpoint, the process-wide master token (read-only
// after startup) and the embedded UI location used to build popup URLs.
type AutomationConfig struct {
	GraphQLURL     string        `mapstructure:"graphql_url"`
	MasterToken    string        `mapstructure:"master_token"`
	AppURL         string        `mapstructure:"app_url"`
	PartnerName    string        `mapstructure:"partner_name"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ReconcileConfig struct {
	// PruneRemoteOrphans enables the reverse reconciliation direction:
	// remote users with no matching directory record are deleted remotely.
	// Off by default; the forward direction (stale directory records) is
	// always on.
	PruneRemoteOrphans bool          `mapstructure:"prune_remote_orphans"`
	Interval           time.Duration `mapstructure:"interval"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds a Config from environment variables, used for
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			SessionSecret:   getEnv("SESSION_SECRET", ""),
			SessionDuration: getEnvAsDuration("SESSION_DURATION", 12*time.Hour),
			BCryptCost:      getEnvAsInt("BCRYPT_COST", 12),
		},
		Automation: AutomationConfig{
			GraphQLURL:     getEnv("AUTOMATION_GRAPHQL_URL", ""),
			MasterToken:    getEnv("AUTOMATION_MASTER_TOKEN", ""),
			AppURL:         getEnv("AUTOMATION_APP_URL", ""),
			PartnerName:    getEnv("AUTOMATION_PARTNER_NAME", ""),
			RequestTimeout: getEnvAsDuration("AUTOMATION_REQUEST_TIMEOUT", 10*time.Second),
		},
		Reconcile: ReconcileConfig{
			PruneRemoteOrphans: getEnv("RECONCILE_PRUNE_REMOTE_ORPHANS", "false") == "true",
			Interval:           getEnvAsDuration("RECONCILE_INTERVAL", 0),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

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

	if err := c.Automation.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("automation config: %v", err))
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
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
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
	if len(c.SessionSecret) < 32 {
		return errors.New("session secret must be at least 32 characters")
	}
	if c.SessionDuration <= 0 {
		return errors.New("session_duration must be positive")
	}
	if c.BCryptCost < 10 || c.BCryptCost > 15 {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	return nil
}

func (c *AutomationConfig) Validate() error {
	if c.GraphQLURL == "" {
		return errors.New("graphql_url is required")
	}
	if _, err := url.ParseRequestURI(c.GraphQLURL); err != nil {
		return fmt.Errorf("invalid graphql_url: %w", err)
	}
	if c.MasterToken == "" {
		return errors.New("master_token is required")
	}
	if c.AppURL == "" {
		return errors.New("app_url is required")
	}
	if c.PartnerName == "" {
		return errors.New("partner_name is required")
	}
	return nil
}
