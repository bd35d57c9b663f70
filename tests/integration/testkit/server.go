package testkit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sha1n/docfetcher/internal/app"
	"github.com/spf13/pflag"
)

// ServerService runs the docfetcher MCP server over HTTP in the background
type ServerService struct {
	flags  *pflag.FlagSet
	cancel context.CancelFunc
	done   chan error
}

// NewServerService creates a service for a server configured by flags
func NewServerService(flags *pflag.FlagSet) *ServerService {
	return &ServerService{flags: flags}
}

// GetName returns the service name
func (s *ServerService) GetName() string {
	return "docfetcher"
}

// Start runs the server and waits until /health answers. The returned
// properties hold the base URL under "url".
func (s *ServerService) Start() (map[string]any, error) {
	host, _ := s.flags.GetString("host")
	port, _ := s.flags.GetInt("port")
	url := fmt.Sprintf("http://%s:%d", host, port)

	params := app.DefaultRunParams()
	params.LogOutput = io.Discard

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() {
		s.done <- app.RunWithDeps(ctx, params, s.flags, "test")
	}()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-s.done:
			cancel()
			return nil, fmt.Errorf("server exited during startup: %w", err)
		default:
		}
		resp, err := http.Get(url + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return map[string]any{"url": url}, nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	_ = s.Stop()
	return nil, errors.New("server did not become healthy")
}

// Stop cancels the server and waits for it to exit
func (s *ServerService) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil
	select {
	case err := <-s.done:
		return err
	case <-time.After(app.ShutdownTimeout + 5*time.Second):
		return errors.New("server did not stop")
	}
}
