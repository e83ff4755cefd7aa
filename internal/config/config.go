// Package config loads and validates finder configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/cbcr-finder/internal/logging"
)

// ErrMissingCredentials is returned when search credentials are absent.
var ErrMissingCredentials = errors.New("missing search credentials")

var dateRestrictPattern = regexp.MustCompile(`^y[1-5]$`)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  logging.Config `mapstructure:"logging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Search   SearchConfig   `mapstructure:"search"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Finder   FinderConfig   `mapstructure:"finder"`
	Database DBConfig       `mapstructure:"database"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// StorageConfig selects the remote blob store and the root folder inside it.
type StorageConfig struct {
	Provider     string `mapstructure:"provider"`
	Root         string `mapstructure:"root"`
	LocalDir     string `mapstructure:"local_dir"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	DropboxToken string `mapstructure:"dropbox_token"`
}

// SearchConfig holds the Custom Search credentials.
type SearchConfig struct {
	APIKey         string `mapstructure:"api_key"`
	EngineID       string `mapstructure:"engine_id"`
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	// RPS caps search calls per second; zero disables the cap.
	RPS float64 `mapstructure:"rps"`
}

// FetchConfig controls payload downloads.
type FetchConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	RequirePDF     bool   `mapstructure:"require_pdf"`
	// HostRPS caps downloads per second from one host; zero disables the cap.
	HostRPS   float64 `mapstructure:"host_rps"`
	HostBurst int     `mapstructure:"host_burst"`
}

// FinderConfig carries run defaults; requests may override most of them.
type FinderConfig struct {
	Keywords        string   `mapstructure:"keywords"`
	DateRestrict    string   `mapstructure:"date_restrict"`
	Periods         []string `mapstructure:"periods"`
	RestrictByName  bool     `mapstructure:"restrict_by_name"`
	RelabelByDomain bool     `mapstructure:"relabel_by_domain"`
	RetryFailed     bool     `mapstructure:"retry_failed"`
	LedgerName      string   `mapstructure:"ledger_name"`
	BlacklistName   string   `mapstructure:"blacklist_name"`
}

// DBConfig enables the optional Postgres ledger mirror.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for fetched-document notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment. An empty
// path tries ./.env and tolerates its absence.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CBCR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.root", "CbCRs")
	v.SetDefault("storage.local_dir", "data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.dropbox_token", "")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.engine_id", "")
	v.SetDefault("search.endpoint", "")
	v.SetDefault("search.timeout_seconds", 60)
	v.SetDefault("search.rps", 1.5)
	v.SetDefault("fetch.timeout_seconds", 60)
	v.SetDefault("fetch.user_agent", "cbcr-finder/1.0")
	v.SetDefault("fetch.max_body_bytes", 0)
	v.SetDefault("fetch.require_pdf", false)
	v.SetDefault("fetch.host_rps", 1)
	v.SetDefault("fetch.host_burst", 2)
	v.SetDefault("finder.keywords", "tax country by country reporting GRI 207-4")
	v.SetDefault("finder.date_restrict", "y5")
	v.SetDefault("finder.periods", []string{strconv.Itoa(time.Now().Year() - 1)})
	v.SetDefault("finder.restrict_by_name", false)
	v.SetDefault("finder.relabel_by_domain", true)
	v.SetDefault("finder.retry_failed", false)
	v.SetDefault("finder.ledger_name", "metadata.csv")
	v.SetDefault("finder.blacklist_name", "blacklist.csv")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "ledger_rows")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
}

// bindLegacyEnv keeps the variable names used by earlier deployments working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"search.api_key":        {"CBCR_SEARCH_API_KEY", "CX_API_KEY"},
		"search.engine_id":      {"CBCR_SEARCH_ENGINE_ID", "GOOGLE_CX"},
		"storage.dropbox_token": {"CBCR_STORAGE_DROPBOX_TOKEN", "DROPBOX_ACCESS_TOKEN"},
		"server.port":           {"CBCR_SERVER_PORT", "PORT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Storage.Provider {
	case "memory":
	case "local":
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return fmt.Errorf("storage.local_dir must be set for the local provider")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
		}
	case "dropbox":
		if c.Storage.DropboxToken == "" {
			return fmt.Errorf("storage.dropbox_token must be set for the dropbox provider")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	if strings.Trim(c.Storage.Root, "/ ") == "" {
		return fmt.Errorf("storage.root must be set")
	}
	if c.Search.TimeoutSeconds <= 0 {
		return fmt.Errorf("search.timeout_seconds must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Search.RPS < 0 || c.Fetch.HostRPS < 0 || c.Fetch.HostBurst < 0 {
		return fmt.Errorf("search.rps, fetch.host_rps and fetch.host_burst must be >= 0")
	}
	if c.Fetch.MaxBodyBytes < 0 {
		return fmt.Errorf("fetch.max_body_bytes must be >= 0")
	}
	if c.Finder.DateRestrict != "" && !dateRestrictPattern.MatchString(c.Finder.DateRestrict) {
		return fmt.Errorf("finder.date_restrict must be one of y1..y5")
	}
	if c.Finder.LedgerName == "" || c.Finder.BlacklistName == "" {
		return fmt.Errorf("finder.ledger_name and finder.blacklist_name must be set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// ValidateSearch reports whether the search credentials needed by a run are present.
func (c Config) ValidateSearch() error {
	var missing []string
	if strings.TrimSpace(c.Search.APIKey) == "" {
		missing = append(missing, "search.api_key")
	}
	if strings.TrimSpace(c.Search.EngineID) == "" {
		missing = append(missing, "search.engine_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// SearchTimeout converts the search timeout into a duration.
func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutSeconds) * time.Second
}

// FetchTimeout converts the payload timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
