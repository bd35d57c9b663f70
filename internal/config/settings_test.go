package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/sha1n/docfetcher/internal/parse"
	"github.com/spf13/pflag"
)

func validSettings() *Settings {
	return &Settings{
		Transport: "stdio",
		Auth:      AuthSettings{Type: AuthTypeNone},
		Index: IndexSettings{
			Dir:         "/tmp/indexes",
			MaxFileSize: 1024,
			BatchSize:   10,
		},
		Search: SearchSettings{MaxResults: 50},
		Watch:  WatchSettings{Enabled: true, Debounce: time.Second},
		Log:    LogSettings{Level: "info", Format: LogFormatText},
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	_ = os.Unsetenv("DOCFETCHER_PORT")
	_ = os.Unsetenv("DOCFETCHER_AUTH_TYPE")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", settings.Port)
	}
	if settings.Auth.Type != AuthTypeNone {
		t.Errorf("Expected default auth type '%s', got '%s'", AuthTypeNone, settings.Auth.Type)
	}
	if settings.Transport != "stdio" {
		t.Errorf("Expected default transport 'stdio', got '%s'", settings.Transport)
	}
	if settings.Host != "0.0.0.0" {
		t.Errorf("Expected default host '0.0.0.0', got '%s'", settings.Host)
	}
	if !strings.HasSuffix(settings.Index.Dir, ".docfetcher") {
		t.Errorf("Expected default index dir to end with .docfetcher, got '%s'", settings.Index.Dir)
	}
	if settings.Index.MaxFileSize != 32*1024*1024 {
		t.Errorf("Expected default max file size 32MB, got %d", settings.Index.MaxFileSize)
	}
	if settings.Index.BatchSize != 100 {
		t.Errorf("Expected default batch size 100, got %d", settings.Index.BatchSize)
	}
	if !slices.Equal(settings.Index.ExcludePatterns, parse.DefaultExcludePatterns) {
		t.Errorf("Expected default exclude patterns, got %v", settings.Index.ExcludePatterns)
	}
	if settings.Search.MaxResults != 50 {
		t.Errorf("Expected default max results 50, got %d", settings.Search.MaxResults)
	}
	if !settings.Watch.Enabled || settings.Watch.Debounce != time.Second {
		t.Errorf("Expected watching enabled with 1s debounce, got %+v", settings.Watch)
	}
	if settings.Log.Level != "info" || settings.Log.Format != LogFormatText {
		t.Errorf("Expected info/text logging, got %+v", settings.Log)
	}
}

func TestLoadSettings_EnvVars(t *testing.T) {
	t.Setenv("DOCFETCHER_PORT", "9090")
	t.Setenv("DOCFETCHER_AUTH_TYPE", "basic")
	t.Setenv("DOCFETCHER_AUTH_BASIC_USERNAME", "admin")
	t.Setenv("DOCFETCHER_INDEX_BATCH_SIZE", "25")
	t.Setenv("DOCFETCHER_WATCH_ENABLED", "false")
	t.Setenv("DOCFETCHER_WATCH_DEBOUNCE", "250ms")
	t.Setenv("DOCFETCHER_LOG_LEVEL", " DEBUG ")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", settings.Port)
	}
	if settings.Auth.Type != AuthTypeBasic {
		t.Errorf("Expected auth type '%s', got '%s'", AuthTypeBasic, settings.Auth.Type)
	}
	if settings.Auth.Basic.Username != "admin" {
		t.Errorf("Expected username 'admin', got '%s'", settings.Auth.Basic.Username)
	}
	if settings.Index.BatchSize != 25 {
		t.Errorf("Expected batch size 25, got %d", settings.Index.BatchSize)
	}
	if settings.Watch.Enabled {
		t.Error("Expected watching disabled")
	}
	if settings.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("Expected debounce 250ms, got %v", settings.Watch.Debounce)
	}
	if settings.Log.Level != "debug" {
		t.Errorf("Expected normalized log level 'debug', got '%s'", settings.Log.Level)
	}
}

func TestLoadSettings_ListEnvVars(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
		get   func(*Settings) []string
		want  []string
	}{
		{
			name:  "api keys",
			env:   "DOCFETCHER_AUTH_API_KEYS",
			value: "key1, key2,key3",
			get:   func(s *Settings) []string { return s.Auth.APIKeys },
			want:  []string{"key1", "key2", "key3"},
		},
		{
			name:  "single api key",
			env:   "DOCFETCHER_AUTH_API_KEYS",
			value: "singlekey",
			get:   func(s *Settings) []string { return s.Auth.APIKeys },
			want:  []string{"singlekey"},
		},
		{
			name:  "exclude patterns with empty elements",
			env:   "DOCFETCHER_INDEX_EXCLUDE_PATTERNS",
			value: "**/*.tmp, ,**/build/**,",
			get:   func(s *Settings) []string { return s.Index.ExcludePatterns },
			want:  []string{"**/*.tmp", "**/build/**"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)

			settings, err := LoadSettings()
			if err != nil {
				t.Fatalf("Failed to load settings: %v", err)
			}
			if got := tt.get(settings); !slices.Equal(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestLoadSettings_EnvFile(t *testing.T) {
	content := []byte("host=127.0.0.2\nport=7000")
	tmpEnv := ".env"
	if err := os.WriteFile(tmpEnv, content, 0644); err != nil {
		t.Fatalf("Failed to create .env file: %v", err)
	}
	defer func() { _ = os.Remove(tmpEnv) }()

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Host != "127.0.0.2" {
		t.Errorf("Expected host 127.0.0.2, got %s", settings.Host)
	}
	if settings.Port != 7000 {
		t.Errorf("Expected port 7000, got %d", settings.Port)
	}
}

func TestLoadSettings_InvalidConfig(t *testing.T) {
	t.Setenv("DOCFETCHER_PORT", "not-a-number")

	_, err := LoadSettings()
	if err == nil {
		t.Fatal("Expected error for invalid port type")
	}
}

func TestLoadSettings_IndexDirExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("No home directory")
	}
	t.Setenv("DOCFETCHER_INDEX_DIR", "~/indexes")

	settings, err := LoadSettings()
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if want := filepath.Join(home, "indexes"); settings.Index.Dir != want {
		t.Errorf("Expected index dir %s, got %s", want, settings.Index.Dir)
	}
}

func TestLoadSettingsWithFlags_CLIOverridesEnv(t *testing.T) {
	t.Setenv("DOCFETCHER_PORT", "9090")
	t.Setenv("DOCFETCHER_TRANSPORT", "sse")
	t.Setenv("DOCFETCHER_SEARCH_MAX_RESULTS", "20")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	flags.String("transport", "", "")
	flags.Int("max-results", 0, "")
	_ = flags.Set("port", "7777")
	_ = flags.Set("transport", "stdio")
	_ = flags.Set("max-results", "5")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Port != 7777 {
		t.Errorf("Expected CLI port 7777, got %d", settings.Port)
	}
	if settings.Transport != "stdio" {
		t.Errorf("Expected CLI transport 'stdio', got '%s'", settings.Transport)
	}
	if settings.Search.MaxResults != 5 {
		t.Errorf("Expected CLI max results 5, got %d", settings.Search.MaxResults)
	}
}

func TestLoadSettingsWithFlags_UnsetFlagsKeepDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("watch", false, "")
	flags.Int("batch-size", 0, "")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}
	if !settings.Watch.Enabled {
		t.Error("Expected default watch setting to survive an unset flag")
	}
	if settings.Index.BatchSize != 100 {
		t.Errorf("Expected default batch size 100, got %d", settings.Index.BatchSize)
	}
}

func TestLoadSettingsWithFlags_AllFlagTypes(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("transport", "", "")
	flags.String("host", "", "")
	flags.Int("port", 0, "")
	flags.String("auth-type", "", "")
	flags.String("auth-basic-username", "", "")
	flags.String("auth-basic-password", "", "")
	flags.StringSlice("auth-api-keys", nil, "")
	flags.String("index-dir", "", "")
	flags.Int64("max-file-size", 0, "")
	flags.StringSlice("exclude", nil, "")
	flags.Bool("watch", true, "")
	flags.Duration("watch-debounce", 0, "")
	flags.String("log-format", "", "")

	_ = flags.Set("transport", "sse")
	_ = flags.Set("host", "localhost")
	_ = flags.Set("port", "3000")
	_ = flags.Set("auth-type", "basic")
	_ = flags.Set("auth-basic-username", "testuser")
	_ = flags.Set("auth-basic-password", "testpass")
	_ = flags.Set("index-dir", "/data/indexes")
	_ = flags.Set("max-file-size", "2048")
	_ = flags.Set("exclude", "**/*.log,**/tmp/**")
	_ = flags.Set("watch", "false")
	_ = flags.Set("watch-debounce", "3s")
	_ = flags.Set("log-format", "JSON")

	settings, err := LoadSettingsWithFlags(flags)
	if err != nil {
		t.Fatalf("Failed to load settings: %v", err)
	}

	if settings.Transport != "sse" {
		t.Errorf("Expected transport 'sse', got '%s'", settings.Transport)
	}
	if settings.Host != "localhost" {
		t.Errorf("Expected host 'localhost', got '%s'", settings.Host)
	}
	if settings.Port != 3000 {
		t.Errorf("Expected port 3000, got %d", settings.Port)
	}
	if settings.Auth.Type != "basic" {
		t.Errorf("Expected auth type 'basic', got '%s'", settings.Auth.Type)
	}
	if settings.Auth.Basic.Username != "testuser" {
		t.Errorf("Expected username 'testuser', got '%s'", settings.Auth.Basic.Username)
	}
	if settings.Auth.Basic.Password != "testpass" {
		t.Errorf("Expected password 'testpass', got '%s'", settings.Auth.Basic.Password)
	}
	if settings.Index.Dir != "/data/indexes" {
		t.Errorf("Expected index dir '/data/indexes', got '%s'", settings.Index.Dir)
	}
	if settings.Index.MaxFileSize != 2048 {
		t.Errorf("Expected max file size 2048, got %d", settings.Index.MaxFileSize)
	}
	if want := []string{"**/*.log", "**/tmp/**"}; !slices.Equal(settings.Index.ExcludePatterns, want) {
		t.Errorf("Expected exclude patterns %v, got %v", want, settings.Index.ExcludePatterns)
	}
	if settings.Watch.Enabled {
		t.Error("Expected watching disabled")
	}
	if settings.Watch.Debounce != 3*time.Second {
		t.Errorf("Expected debounce 3s, got %v", settings.Watch.Debounce)
	}
	if settings.Log.Format != LogFormatJSON {
		t.Errorf("Expected log format json, got '%s'", settings.Log.Format)
	}
}

// --- ValidateSettings Tests ---

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Settings)
		wantErr string
	}{
		{name: "valid none", modify: func(s *Settings) {}},
		{name: "valid empty auth type", modify: func(s *Settings) { s.Auth.Type = "" }},
		{name: "valid sse", modify: func(s *Settings) { s.Transport = "sse" }},
		{
			name: "valid basic",
			modify: func(s *Settings) {
				s.Auth = AuthSettings{Type: AuthTypeBasic, Basic: BasicAuthSettings{Username: "admin", Password: "secret"}}
			},
		},
		{
			name:   "valid api key",
			modify: func(s *Settings) { s.Auth = AuthSettings{Type: AuthTypeAPIKey, APIKeys: []string{"k"}} },
		},
		{name: "valid warning level", modify: func(s *Settings) { s.Log.Level = "warning" }},
		{name: "invalid transport", modify: func(s *Settings) { s.Transport = "http" }, wantErr: "transport must be"},
		{
			name:    "none with credentials",
			modify:  func(s *Settings) { s.Auth.Basic.Username = "admin" },
			wantErr: "incompatible",
		},
		{
			name:    "none with api keys",
			modify:  func(s *Settings) { s.Auth.APIKeys = []string{"k"} },
			wantErr: "incompatible",
		},
		{
			name:    "basic missing password",
			modify:  func(s *Settings) { s.Auth = AuthSettings{Type: AuthTypeBasic, Basic: BasicAuthSettings{Username: "admin"}} },
			wantErr: "requires both",
		},
		{
			name: "basic with api keys",
			modify: func(s *Settings) {
				s.Auth = AuthSettings{Type: AuthTypeBasic, Basic: BasicAuthSettings{Username: "a", Password: "b"}, APIKeys: []string{"k"}}
			},
			wantErr: "mutually exclusive",
		},
		{
			name:    "api key missing keys",
			modify:  func(s *Settings) { s.Auth = AuthSettings{Type: AuthTypeAPIKey} },
			wantErr: "at least one",
		},
		{
			name: "api key with basic creds",
			modify: func(s *Settings) {
				s.Auth = AuthSettings{Type: AuthTypeAPIKey, APIKeys: []string{"k"}, Basic: BasicAuthSettings{Password: "p"}}
			},
			wantErr: "mutually exclusive",
		},
		{name: "unknown auth type", modify: func(s *Settings) { s.Auth.Type = "oauth" }, wantErr: "unknown auth-type"},
		{name: "empty index dir", modify: func(s *Settings) { s.Index.Dir = " " }, wantErr: "index-dir"},
		{name: "zero max file size", modify: func(s *Settings) { s.Index.MaxFileSize = 0 }, wantErr: "max-file-size"},
		{name: "negative batch size", modify: func(s *Settings) { s.Index.BatchSize = -1 }, wantErr: "batch-size"},
		{name: "zero max results", modify: func(s *Settings) { s.Search.MaxResults = 0 }, wantErr: "max-results"},
		{name: "zero debounce", modify: func(s *Settings) { s.Watch.Debounce = 0 }, wantErr: "watch-debounce"},
		{name: "unknown log level", modify: func(s *Settings) { s.Log.Level = "trace" }, wantErr: "log-level"},
		{name: "unknown log format", modify: func(s *Settings) { s.Log.Format = "xml" }, wantErr: "log-format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.modify(s)

			err := ValidateSettings(s)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestExpandHomeDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("No home directory")
	}

	tests := []struct {
		input string
		want  string
	}{
		{"~", home},
		{"~/indexes", filepath.Join(home, "indexes")},
		{"/abs/path", "/abs/path"},
		{"relative/path", "relative/path"},
		{"~user/path", "~user/path"},
	}

	for _, tt := range tests {
		if got := expandHomeDir(tt.input); got != tt.want {
			t.Errorf("expandHomeDir(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		env    string
		want   []string
	}{
		{name: "empty", want: nil},
		{name: "trims and drops empty", values: []string{" a ", "", "b"}, want: []string{"a", "b"}},
		{name: "env splits single joined value", values: []string{"a,b"}, env: "a,b", want: []string{"a", "b"}},
		{name: "env ignored for parsed values", values: []string{"x", "y"}, env: "a,b", want: []string{"x", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitList(tt.values, tt.env); !slices.Equal(got, tt.want) {
				t.Errorf("splitList() = %v, want %v", got, tt.want)
			}
		})
	}
}
