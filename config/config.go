/*
config.go - Server configuration

PRECEDENCE (highest first):
  1. command-line flags
  2. process environment
  3. the .env file, if present
  4. defaults below

VARIABLES:
  PORT              HTTP port                          8080
  DB_DRIVER         sqlite | postgres                  sqlite
  DB_PATH           SQLite file, ":memory:" allowed    finance.db
  DATABASE_URL      PostgreSQL URL (postgres only)
  JWT_SECRET        HS256 signing key                  insecure dev key
  JWT_TTL           session lifetime                   24h
  ALLOW_ORIGINS     comma-separated CORS origins       *
  LOG_LEVEL         debug | info | warn | error        info
  LOG_PRETTY        console output instead of JSON     false
  ENABLE_SCENARIOS  mount the demo seeding endpoints   false
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	devJWTSecret = "dev-secret-change-me"
)

type Config struct {
	Port            int
	DBDriver        string
	DBPath          string
	DatabaseURL     string
	JWTSecret       string
	JWTTTL          time.Duration
	AllowOrigins    []string
	LogLevel        string
	LogPretty       bool
	EnableScenarios bool

	// InsecureSecret is set when JWT_SECRET was not provided.
	InsecureSecret bool
}

// Load reads envFile (skipped when it does not exist), the environment and
// then args, which are the command-line arguments without the program name.
func Load(envFile string, args []string) (*Config, error) {
	r := reader{file: map[string]string{}}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
		if vals != nil {
			r.file = vals
		}
	}

	cfg := &Config{
		Port:            r.atoi("PORT", 8080),
		DBDriver:        strings.ToLower(r.getenv("DB_DRIVER", DriverSQLite)),
		DBPath:          r.getenv("DB_PATH", "finance.db"),
		DatabaseURL:     r.getenv("DATABASE_URL", ""),
		JWTSecret:       r.getenv("JWT_SECRET", ""),
		JWTTTL:          r.atod("JWT_TTL", 24*time.Hour),
		AllowOrigins:    splitList(r.getenv("ALLOW_ORIGINS", "*")),
		LogLevel:        strings.ToLower(r.getenv("LOG_LEVEL", "info")),
		LogPretty:       r.atob("LOG_PRETTY", false),
		EnableScenarios: r.atob("ENABLE_SCENARIOS", false),
	}
	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}

	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	flags.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flags.StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "store driver: sqlite or postgres")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (\":memory:\" for in-memory)")
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL connection URL")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flags.BoolVar(&cfg.LogPretty, "log-pretty", cfg.LogPretty, "human-readable logs")
	flags.BoolVar(&cfg.EnableScenarios, "scenarios", cfg.EnableScenarios, "enable demo scenario endpoints")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = devJWTSecret
		cfg.InsecureSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for http.Server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// =============================================================================
// ENV READER
// =============================================================================

type reader struct {
	file map[string]string
	errs []error
}

func (r *reader) getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.file[key]); v != "" {
		return v
	}
	return def
}

func (r *reader) atoi(key string, def int) int {
	v := r.getenv(key, "")
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return i
}

func (r *reader) atob(key string, def bool) bool {
	v := r.getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (r *reader) atod(key string, def time.Duration) time.Duration {
	v := r.getenv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
