package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Runner is a blocking task that stops when its context ends, such as
// scheduler.Orchestrator.
type Runner interface {
	Run(ctx context.Context) error
}

// SchedulerService adapts a Runner to suture.Service.
type SchedulerService struct {
	runner Runner
	name   string
}

// NewSchedulerService wraps runner as the "scheduler" service.
func NewSchedulerService(runner Runner) *SchedulerService {
	return &SchedulerService{runner: runner, name: "scheduler"}
}

// Serve runs the scheduler. A return while ctx is still live is reported
// as a failure so suture restarts it.
func (s *SchedulerService) Serve(ctx context.Context) error {
	err := s.runner.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("scheduler stopped unexpectedly")
	}
	return fmt.Errorf("%s: %w", s.name, err)
}

func (s *SchedulerService) String() string { return s.name }

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs an HTTP server until ctx ends, then shuts it
// down gracefully within shutdownTimeout.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps server; a non-positive shutdownTimeout means 10s.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string { return "http-server" }
