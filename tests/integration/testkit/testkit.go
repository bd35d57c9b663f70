package testkit

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sha1n/docfetcher/internal/app"
	"github.com/spf13/pflag"
)

// Service is a background process a test depends on
type Service interface {
	Start() (map[string]any, error)
	Stop() error
	GetName() string
}

// TestEnv starts services in order and stops them in reverse order
type TestEnv struct {
	services []Service
	started  int
}

// NewTestEnv creates an environment for the given services
func NewTestEnv(services ...Service) *TestEnv {
	return &TestEnv{services: services}
}

// Start starts every service and returns their merged properties. When a
// service fails, the services started before it are stopped.
func (e *TestEnv) Start() (map[string]any, error) {
	props := make(map[string]any)
	for _, s := range e.services {
		p, err := s.Start()
		if err != nil {
			return nil, errors.Join(fmt.Errorf("%s: %w", s.GetName(), err), e.Stop())
		}
		e.started++
		maps.Copy(props, p)
	}
	return props, nil
}

// Stop stops the started services, last started first
func (e *TestEnv) Stop() error {
	var errs []error
	for ; e.started > 0; e.started-- {
		s := e.services[e.started-1]
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.GetName(), err))
		}
	}
	return errors.Join(errs...)
}

// FlagOptions configures NewTestFlags
type FlagOptions struct {
	Port      int    // Uses free port if 0
	Transport string // Defaults to "sse"
	AuthType  string // Defaults to "none"
	APIKeys   string // Comma-separated, for AuthType "apikey"
	IndexDir  string // Uses a temp dir if empty
}

// NewTestFlags creates server flags for a quiet test instance listening on
// localhost, with watching disabled.
func NewTestFlags(t testing.TB, opts *FlagOptions) *pflag.FlagSet {
	t.Helper()

	o := FlagOptions{Transport: "sse", AuthType: "none"}
	if opts != nil {
		o.Port = opts.Port
		o.APIKeys = opts.APIKeys
		o.IndexDir = opts.IndexDir
		if opts.Transport != "" {
			o.Transport = opts.Transport
		}
		if opts.AuthType != "" {
			o.AuthType = opts.AuthType
		}
	}
	if o.Port == 0 {
		o.Port = freePort(t)
	}
	if o.IndexDir == "" {
		o.IndexDir = filepath.Join(t.TempDir(), "indexes")
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	app.RegisterFlags(flags)
	app.RegisterIndexFlags(flags)
	values := map[string]string{
		"host":      "localhost",
		"port":      strconv.Itoa(o.Port),
		"transport": o.Transport,
		"auth-type": o.AuthType,
		"index-dir": o.IndexDir,
		"watch":     "false",
		"log-level": "error",
	}
	if o.APIKeys != "" {
		values["auth-api-keys"] = o.APIKeys
	}
	for name, value := range values {
		if err := flags.Set(name, value); err != nil {
			t.Fatalf("Failed to set --%s: %v", name, err)
		}
	}
	return flags
}

func freePort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}
