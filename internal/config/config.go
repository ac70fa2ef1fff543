// Package config resolves the backend selection and connection settings from
// the environment, .env files and an optional .dbal.yaml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/readingbuddy/dbal/internal/debug"
	"github.com/readingbuddy/dbal/internal/pool"
)

// AppFs is the filesystem used for config and .env files.
var AppFs = afero.NewOsFs()

// Provider selects the backend kind.
type Provider string

const (
	ProviderSupabase Provider = "supabase"
	ProviderPostgres Provider = "postgres"
)

// Environment keys.
const (
	KeyProvider           = "DB_PROVIDER"
	KeyPostgresHost       = "POSTGRES_HOST"
	KeyPostgresPort       = "POSTGRES_PORT"
	KeyPostgresDB         = "POSTGRES_DB"
	KeyPostgresUser       = "POSTGRES_USER"
	KeyPostgresPassword   = "POSTGRES_PASSWORD"
	KeyPostgresSSL        = "POSTGRES_SSL"
	KeyPostgresDriver     = "POSTGRES_DRIVER"
	KeySupabaseURL        = "SUPABASE_URL"
	KeySupabaseAnonKey    = "SUPABASE_ANON_KEY"
	KeySupabaseService    = "SUPABASE_SERVICE_ROLE_KEY"
	KeyPoolMaxConns       = "POOL_MAX_CONNS"
	KeyPoolIdleTimeout    = "POOL_IDLE_TIMEOUT"
	KeyPoolConnectTimeout = "POOL_CONNECT_TIMEOUT"
	KeyDebug              = "DBAL_DEBUG"
	KeyTelemetry          = "DBAL_TELEMETRY"
)

const configName = ".dbal"

// Config is the resolved configuration. It is built once and passed to the
// backend selector.
type Config struct {
	Provider  Provider
	Postgres  PostgresConfig
	Supabase  SupabaseConfig
	Pool      PoolConfig
	Debug     bool
	Telemetry string

	// ConfigFile is the .dbal.yaml that was read, if any.
	ConfigFile string
}

// PostgresConfig holds direct connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSL      bool
	// Driver is the database/sql driver: "postgres" (lib/pq) or "pgx".
	Driver string
}

// SupabaseConfig holds the hosted project settings.
type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
}

// PoolConfig holds the pool limits.
type PoolConfig struct {
	MaxConns       int
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
}

// ParseProvider reports whether s names a known provider.
func ParseProvider(s string) (Provider, bool) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderSupabase, ProviderPostgres:
		return p, true
	}
	return "", false
}

// Load reads configuration from the working directory.
func Load() (*Config, error) {
	return LoadDir(".")
}

// LoadDir reads configuration with dir as the project directory. Precedence,
// highest first: .env.local, process environment, .env, .dbal.yaml, defaults.
func LoadDir(dir string) (*Config, error) {
	v := viper.New()
	v.SetFs(AppFs)

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", "dbal"))
	}
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	dotenv, err := readEnvFile(filepath.Join(dir, ".env"))
	if err != nil {
		return nil, err
	}
	for key, value := range dotenv {
		if os.Getenv(key) == "" {
			v.Set(key, value)
		}
	}

	local, err := readEnvFile(filepath.Join(dir, ".env.local"))
	if err != nil {
		return nil, err
	}
	for key, value := range local {
		v.Set(key, value)
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyProvider, string(ProviderSupabase))
	v.SetDefault(KeyPostgresHost, "localhost")
	v.SetDefault(KeyPostgresPort, 5432)
	v.SetDefault(KeyPostgresDB, "reading_buddy")
	v.SetDefault(KeyPostgresUser, "postgres")
	v.SetDefault(KeyPostgresSSL, false)
	v.SetDefault(KeyPostgresDriver, pool.DriverPQ)

	defaults := pool.DefaultConfig()
	v.SetDefault(KeyPoolMaxConns, defaults.MaxOpenConns)
	v.SetDefault(KeyPoolIdleTimeout, defaults.ConnMaxIdleTime)
	v.SetDefault(KeyPoolConnectTimeout, defaults.AcquireTimeout)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyTelemetry, "noop")
}

func fromViper(v *viper.Viper) (*Config, error) {
	raw := v.GetString(KeyProvider)
	provider, ok := ParseProvider(raw)
	if !ok {
		debug.Warn("Invalid DB_PROVIDER, falling back to supabase", "provider", raw)
		provider = ProviderSupabase
	}

	port, err := strconv.Atoi(v.GetString(KeyPostgresPort))
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", KeyPostgresPort, v.GetString(KeyPostgresPort), err)
	}

	driver := v.GetString(KeyPostgresDriver)
	if driver != pool.DriverPQ && driver != pool.DriverPGX {
		return nil, fmt.Errorf("invalid %s %q: want %q or %q", KeyPostgresDriver, driver, pool.DriverPQ, pool.DriverPGX)
	}

	maxConns := v.GetInt(KeyPoolMaxConns)
	if maxConns <= 0 {
		return nil, fmt.Errorf("invalid %s %q: must be positive", KeyPoolMaxConns, v.GetString(KeyPoolMaxConns))
	}

	return &Config{
		Provider: provider,
		Postgres: PostgresConfig{
			Host:     v.GetString(KeyPostgresHost),
			Port:     port,
			Database: v.GetString(KeyPostgresDB),
			User:     v.GetString(KeyPostgresUser),
			Password: v.GetString(KeyPostgresPassword),
			SSL:      v.GetBool(KeyPostgresSSL),
			Driver:   driver,
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(v.GetString(KeySupabaseURL), "/"),
			AnonKey:        v.GetString(KeySupabaseAnonKey),
			ServiceRoleKey: v.GetString(KeySupabaseService),
		},
		Pool: PoolConfig{
			MaxConns:       maxConns,
			IdleTimeout:    v.GetDuration(KeyPoolIdleTimeout),
			ConnectTimeout: v.GetDuration(KeyPoolConnectTimeout),
		},
		Debug:      v.GetBool(KeyDebug),
		Telemetry:  v.GetString(KeyTelemetry),
		ConfigFile: v.ConfigFileUsed(),
	}, nil
}

func readEnvFile(path string) (map[string]string, error) {
	data, err := afero.ReadFile(AppFs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	values, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return values, nil
}

// Validate checks that the selected provider has what it needs to connect.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderPostgres:
		if c.Postgres.Host == "" || c.Postgres.Database == "" {
			return fmt.Errorf("%s and %s are required for the postgres provider", KeyPostgresHost, KeyPostgresDB)
		}
	case ProviderSupabase:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			return fmt.Errorf("%s and %s are required for the supabase provider", KeySupabaseURL, KeySupabaseAnonKey)
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	return nil
}

// DSN returns a connection URL accepted by both lib/pq and pgx.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   "/" + p.Database,
	}
	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	} else if p.User != "" {
		u.User = url.User(p.User)
	}

	q := url.Values{}
	if p.SSL {
		q.Set("sslmode", "require")
	} else {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// PoolConfig converts the settings into a pool configuration.
func (c *Config) PoolConfig() pool.Config {
	pc := pool.DefaultConfig()
	pc.Driver = c.Postgres.Driver
	pc.DSN = c.Postgres.DSN()
	pc.MaxOpenConns = c.Pool.MaxConns
	pc.MaxIdleConns = c.Pool.MaxConns
	pc.ConnMaxIdleTime = c.Pool.IdleTimeout
	pc.AcquireTimeout = c.Pool.ConnectTimeout
	return pc
}

// Env returns the configuration as .env key/value pairs.
func (c *Config) Env() map[string]string {
	env := map[string]string{
		KeyProvider: string(c.Provider),
	}
	switch c.Provider {
	case ProviderPostgres:
		env[KeyPostgresHost] = c.Postgres.Host
		env[KeyPostgresPort] = strconv.Itoa(c.Postgres.Port)
		env[KeyPostgresDB] = c.Postgres.Database
		env[KeyPostgresUser] = c.Postgres.User
		env[KeyPostgresPassword] = c.Postgres.Password
		env[KeyPostgresSSL] = strconv.FormatBool(c.Postgres.SSL)
		if c.Postgres.Driver != "" {
			env[KeyPostgresDriver] = c.Postgres.Driver
		}
	case ProviderSupabase:
		env[KeySupabaseURL] = c.Supabase.URL
		env[KeySupabaseAnonKey] = c.Supabase.AnonKey
		if c.Supabase.ServiceRoleKey != "" {
			env[KeySupabaseService] = c.Supabase.ServiceRoleKey
		}
	}
	return env
}

// SaveEnv writes the configuration to path in .env format.
func SaveEnv(path string, c *Config) error {
	content, err := godotenv.Marshal(c.Env())
	if err != nil {
		return fmt.Errorf("failed to encode env file: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := AppFs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(AppFs, path, []byte(content+"\n"), 0o600)
}
