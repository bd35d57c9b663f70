package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sha1n/docfetcher/internal/parse"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Log format constants
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// EnvPrefix is the prefix of all environment variables
const EnvPrefix = "DOCFETCHER"

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// IndexSettings configuration for the indexes and the indexing worker
type IndexSettings struct {
	Dir             string   `mapstructure:"dir"`
	MaxFileSize     int64    `mapstructure:"max_file_size"`
	BatchSize       int      `mapstructure:"batch_size"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
}

// SearchSettings configuration for queries
type SearchSettings struct {
	MaxResults int `mapstructure:"max_results"`
}

// WatchSettings configuration for filesystem watching
type WatchSettings struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// LogSettings configuration for the default logger
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Settings application settings
type Settings struct {
	Transport string         `mapstructure:"transport"`
	Host      string         `mapstructure:"host"`
	Port      int            `mapstructure:"port"`
	Auth      AuthSettings   `mapstructure:"auth"`
	Index     IndexSettings  `mapstructure:"index"`
	Search    SearchSettings `mapstructure:"search"`
	Watch     WatchSettings  `mapstructure:"watch"`
	Log       LogSettings    `mapstructure:"log"`
}

// flagBindings maps settings keys to CLI flag names.
var flagBindings = map[string]string{
	"transport":              "transport",
	"host":                   "host",
	"port":                   "port",
	"auth.type":              "auth-type",
	"auth.basic.username":    "auth-basic-username",
	"auth.basic.password":    "auth-basic-password",
	"auth.api_keys":          "auth-api-keys",
	"index.dir":              "index-dir",
	"index.max_file_size":    "max-file-size",
	"index.batch_size":       "batch-size",
	"index.exclude_patterns": "exclude",
	"search.max_results":     "max-results",
	"watch.enabled":          "watch",
	"watch.debounce":         "watch-debounce",
	"log.level":              "log-level",
	"log.format":             "log-format",
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("auth.type", AuthTypeNone)

	v.SetDefault("index.dir", defaultIndexDir())
	v.SetDefault("index.max_file_size", int64(32*1024*1024)) // 32MB
	v.SetDefault("index.batch_size", 100)
	v.SetDefault("index.exclude_patterns", parse.DefaultExcludePatterns)
	v.SetDefault("search.max_results", 50)
	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce", time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", LogFormatText)

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars for nested config
	for key := range flagBindings {
		_ = v.BindEnv(key, envName(key))
	}

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		for key, name := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Comma-separated lists from env vars arrive as a single element
	settings.Auth.APIKeys = splitList(settings.Auth.APIKeys, os.Getenv(envName("auth.api_keys")))
	settings.Index.ExcludePatterns = splitList(settings.Index.ExcludePatterns, os.Getenv(envName("index.exclude_patterns")))

	settings.Index.Dir = expandHomeDir(settings.Index.Dir)
	settings.Log.Level = strings.ToLower(strings.TrimSpace(settings.Log.Level))
	settings.Log.Format = strings.ToLower(strings.TrimSpace(settings.Log.Format))

	return &settings, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// splitList splits a comma-separated env value, trims the elements and drops
// empty ones.
func splitList(values []string, env string) []string {
	if env != "" && (len(values) == 0 || (len(values) == 1 && strings.Contains(values[0], ","))) {
		values = strings.Split(env, ",")
	}
	var result []string
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" {
			result = append(result, s)
		}
	}
	return result
}

// defaultIndexDir returns the default index parent directory
func defaultIndexDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docfetcher"
	}
	return filepath.Join(home, ".docfetcher")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete auth config.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	hasBasicCreds := s.Auth.Basic.Username != "" || s.Auth.Basic.Password != ""
	hasAPIKeys := len(s.Auth.APIKeys) > 0

	switch s.Auth.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if s.Auth.Basic.Username == "" || s.Auth.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + s.Auth.Type)
	}

	if err := validateIndexSettings(s); err != nil {
		return err
	}
	return validateLogSettings(&s.Log)
}

// validateIndexSettings validates the indexing, search and watch configuration
func validateIndexSettings(s *Settings) error {
	if strings.TrimSpace(s.Index.Dir) == "" {
		return errors.New("index-dir cannot be empty")
	}
	if s.Index.MaxFileSize <= 0 {
		return errors.New("max-file-size must be positive")
	}
	if s.Index.BatchSize <= 0 {
		return errors.New("batch-size must be positive")
	}
	if s.Search.MaxResults <= 0 {
		return errors.New("max-results must be positive")
	}
	if s.Watch.Debounce <= 0 {
		return errors.New("watch-debounce must be positive")
	}
	return nil
}

func validateLogSettings(l *LogSettings) error {
	if _, err := ParseLevel(l.Level); err != nil {
		return err
	}
	switch l.Format {
	case LogFormatText, LogFormatJSON, "":
		return nil
	default:
		return fmt.Errorf("log-format must be '%s' or '%s', got: %s", LogFormatText, LogFormatJSON, l.Format)
	}
}
