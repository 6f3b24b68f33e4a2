// Package config reads the service configuration from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverTables   = "tables"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the typed service configuration.
type Config struct {
	Debug bool

	StoreDriver             string
	StorageConnectionString string
	OrgsTable               string
	ProjectsTable           string
	TasksTable              string
	PatchQueue              string
	DatabaseURL             string
	SQLitePath              string

	RedisConnectionString string
	CacheTTL              time.Duration
	DedupeTTL             time.Duration

	PatchWorkers int
	PatchBuffer  int
	PatchTimeout time.Duration

	Auth0Domain   string
	Auth0Audience string
	Auth0TestMode bool
	TestJWTSecret string

	ListenAddr string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("STORE_DRIVER", DriverTables)
	v.SetDefault("ORGS_TABLE", "Organizations")
	v.SetDefault("PROJECTS_TABLE", "Projects")
	v.SetDefault("TASKS_TABLE", "Tasks")
	v.SetDefault("SQLITE_PATH", "taskboard.db")
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("DEDUPER_TTL", "24h")
	v.SetDefault("PATCH_WORKERS", "8")
	v.SetDefault("PATCH_BUFFER", "256")
	v.SetDefault("PATCH_TIMEOUT", "0")
	v.SetDefault("LISTEN_ADDR", ":8080")
	return v
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	v := newViper()
	var errs []error
	duration := func(key string) time.Duration {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("invalid %s: %q", key, v.GetString(key)))
		}
		return d
	}
	integer := func(key string) int {
		n, err := strconv.Atoi(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %q", key, v.GetString(key)))
		}
		return n
	}
	flag := func(key string) bool {
		b, err := strconv.ParseBool(v.GetString(key))
		return err == nil && b
	}

	cfg := Config{
		Debug:                   flag("DEBUG"),
		StoreDriver:             strings.ToLower(v.GetString("STORE_DRIVER")),
		StorageConnectionString: v.GetString("STORAGE_CONNECTION_STRING"),
		OrgsTable:               v.GetString("ORGS_TABLE"),
		ProjectsTable:           v.GetString("PROJECTS_TABLE"),
		TasksTable:              v.GetString("TASKS_TABLE"),
		PatchQueue:              v.GetString("PATCH_QUEUE"),
		DatabaseURL:             v.GetString("DATABASE_URL"),
		SQLitePath:              v.GetString("SQLITE_PATH"),
		RedisConnectionString:   v.GetString("REDIS_CONNECTION_STRING"),
		CacheTTL:                duration("CACHE_TTL"),
		DedupeTTL:               duration("DEDUPER_TTL"),
		PatchWorkers:            integer("PATCH_WORKERS"),
		PatchBuffer:             integer("PATCH_BUFFER"),
		PatchTimeout:            duration("PATCH_TIMEOUT"),
		Auth0Domain:             v.GetString("AUTH0_DOMAIN"),
		Auth0Audience:           v.GetString("AUTH0_AUDIENCE"),
		Auth0TestMode:           v.GetString("AUTH0_TEST_MODE") == "1" || flag("AUTH0_TEST_MODE"),
		TestJWTSecret:           v.GetString("TEST_JWT_SECRET"),
		ListenAddr:              v.GetString("LISTEN_ADDR"),
	}
	if port := v.GetString("FUNCTIONS_CUSTOMHANDLER_PORT"); port != "" {
		cfg.ListenAddr = ":" + port
	}
	if err := errors.Join(errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks that the settings needed by the selected backends are set.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverTables:
		if c.StorageConnectionString == "" || c.OrgsTable == "" || c.ProjectsTable == "" || c.TasksTable == "" {
			return errors.New("missing storage config")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("missing DATABASE_URL")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("missing SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.PatchQueue != "" && c.StorageConnectionString == "" {
		return errors.New("PATCH_QUEUE requires STORAGE_CONNECTION_STRING")
	}
	if c.PatchWorkers <= 0 {
		return errors.New("invalid PATCH_WORKERS: must be greater than zero")
	}
	if c.PatchBuffer < 0 {
		return errors.New("invalid PATCH_BUFFER: must not be negative")
	}
	if c.Auth0TestMode {
		if c.TestJWTSecret == "" {
			return errors.New("AUTH0_TEST_MODE requires TEST_JWT_SECRET")
		}
	} else if c.Auth0Domain == "" || c.Auth0Audience == "" {
		return errors.New("missing Auth0 config")
	}
	return nil
}

// RedisOptions parses REDIS_CONNECTION_STRING. Both redis:// URLs and the
// Azure form "host:port,password=...,ssl=True" are accepted. It returns nil
// when no Redis is configured.
func (c Config) RedisOptions() *redis.Options {
	conn := c.RedisConnectionString
	if conn == "" {
		return nil
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

// JWKSURL is the key set endpoint of the Auth0 tenant.
func (c Config) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Auth0Domain)
}

// Issuer is the expected token issuer.
func (c Config) Issuer() string {
	return "https://" + c.Auth0Domain + "/"
}
