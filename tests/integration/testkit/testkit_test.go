package testkit

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

type fakeService struct {
	name     string
	props    map[string]any
	startErr error
	stopErr  error
	stops    *[]string
}

func (f *fakeService) Start() (map[string]any, error) {
	return f.props, f.startErr
}

func (f *fakeService) Stop() error {
	*f.stops = append(*f.stops, f.name)
	return f.stopErr
}

func (f *fakeService) GetName() string {
	return f.name
}

func TestTestEnv(t *testing.T) {
	t.Run("merges properties and stops in reverse order", func(t *testing.T) {
		var stops []string
		env := NewTestEnv(
			&fakeService{name: "index", props: map[string]any{"dir": "/tmp/x"}, stops: &stops},
			&fakeService{name: "server", props: map[string]any{"url": "http://localhost:1"}, stops: &stops},
		)

		props, err := env.Start()
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if props["dir"] != "/tmp/x" || props["url"] != "http://localhost:1" {
			t.Errorf("Unexpected properties: %v", props)
		}
		if err := env.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if !slices.Equal(stops, []string{"server", "index"}) {
			t.Errorf("Stop order = %v, want [server index]", stops)
		}
		if err := env.Stop(); err != nil || len(stops) != 2 {
			t.Errorf("Second Stop should do nothing, got %v %v", err, stops)
		}
	})

	t.Run("failed start stops started services", func(t *testing.T) {
		var stops []string
		env := NewTestEnv(
			&fakeService{name: "index", stops: &stops},
			&fakeService{name: "server", startErr: errors.New("port in use"), stops: &stops},
		)

		_, err := env.Start()
		if err == nil || !strings.Contains(err.Error(), "server: port in use") {
			t.Errorf("Expected server start error, got %v", err)
		}
		if !slices.Equal(stops, []string{"index"}) {
			t.Errorf("Stopped = %v, want [index]", stops)
		}
	})

	t.Run("stop errors are joined", func(t *testing.T) {
		var stops []string
		first := errors.New("first")
		second := errors.New("second")
		env := NewTestEnv(
			&fakeService{name: "a", stopErr: first, stops: &stops},
			&fakeService{name: "b", stopErr: second, stops: &stops},
		)
		if _, err := env.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		err := env.Stop()
		if !errors.Is(err, first) || !errors.Is(err, second) {
			t.Errorf("Expected both stop errors, got %v", err)
		}
	})
}

func TestNewTestFlags(t *testing.T) {
	tests := []struct {
		name      string
		opts      *FlagOptions
		transport string
		authType  string
		keys      []string
		indexDir  string
	}{
		{name: "defaults", transport: "sse", authType: "none"},
		{
			name:      "api keys",
			opts:      &FlagOptions{AuthType: "apikey", APIKeys: "key1,key2"},
			transport: "sse",
			authType:  "apikey",
			keys:      []string{"key1", "key2"},
		},
		{
			name:      "stdio transport and index dir",
			opts:      &FlagOptions{Transport: "stdio", IndexDir: "/tmp/docfetcher-test", Port: 9999},
			transport: "stdio",
			authType:  "none",
			indexDir:  "/tmp/docfetcher-test",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := NewTestFlags(t, tt.opts)

			if got, _ := flags.GetString("transport"); got != tt.transport {
				t.Errorf("transport = %s, want %s", got, tt.transport)
			}
			if got, _ := flags.GetString("auth-type"); got != tt.authType {
				t.Errorf("auth-type = %s, want %s", got, tt.authType)
			}
			if got, _ := flags.GetStringSlice("auth-api-keys"); len(tt.keys) > 0 && !slices.Equal(got, tt.keys) {
				t.Errorf("auth-api-keys = %v, want %v", got, tt.keys)
			}
			indexDir, _ := flags.GetString("index-dir")
			if tt.indexDir != "" && indexDir != tt.indexDir {
				t.Errorf("index-dir = %s, want %s", indexDir, tt.indexDir)
			}
			if indexDir == "" {
				t.Error("Expected an index dir")
			}
			port, _ := flags.GetInt("port")
			if tt.opts != nil && tt.opts.Port != 0 && port != tt.opts.Port {
				t.Errorf("port = %d, want %d", port, tt.opts.Port)
			}
			if port <= 0 {
				t.Errorf("Expected positive port, got %d", port)
			}
			if watch, _ := flags.GetBool("watch"); watch {
				t.Error("Expected watching to be disabled")
			}
		})
	}
}
