package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wb-tariffs/logging"
)

// =============================================================================
// FAKES
// =============================================================================

// fakeRunner fails the first failures calls, then blocks until ctx ends.
type fakeRunner struct {
	calls    atomic.Int32
	failures int32
}

func (f *fakeRunner) Run(ctx context.Context) error {
	n := f.calls.Add(1)
	if n <= f.failures {
		return errors.New("boom")
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeHTTPServer struct {
	listenErr error
	stop      chan struct{}
	shutdowns atomic.Int32
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{stop: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.shutdowns.Add(1)
	close(f.stop)
	return nil
}

// =============================================================================
// TREE
// =============================================================================

func TestTreeConfig_Defaults(t *testing.T) {
	tree := NewTree(logging.NewSlogLogger("supervisor"), TreeConfig{FailureBackoff: time.Second})
	assert.Equal(t, 5.0, tree.config.FailureThreshold)
	assert.Equal(t, 30.0, tree.config.FailureDecay)
	assert.Equal(t, time.Second, tree.config.FailureBackoff)
	assert.Equal(t, 10*time.Second, tree.config.ShutdownTimeout)
}

func TestTree_RestartsFailedWorker(t *testing.T) {
	// GIVEN: A scheduler that fails twice before running normally
	tree := NewTree(logging.NewSlogLogger("supervisor"), TreeConfig{
		FailureBackoff:  10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	runner := &fakeRunner{failures: 2}
	tree.AddWorker(NewSchedulerService(runner))
	srv := newFakeHTTPServer()
	tree.AddAPIService(NewHTTPServerService(srv, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	// WHEN: The tree runs
	// THEN: suture restarts the scheduler until it stays up
	require.Eventually(t, func() bool { return runner.calls.Load() >= 3 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			assert.True(t, errors.Is(err, context.Canceled), "unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not shut down in time")
	}
	assert.Equal(t, int32(1), srv.shutdowns.Load())
}

// =============================================================================
// SERVICES
// =============================================================================

func TestSchedulerService_UnexpectedReturnIsFailure(t *testing.T) {
	svc := NewSchedulerService(&fakeRunner{failures: 1})
	err := svc.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler: boom")
	assert.Equal(t, "scheduler", svc.String())
}

func TestSchedulerService_CancelReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewSchedulerService(&fakeRunner{}).Serve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	srv := newFakeHTTPServer()
	srv.listenErr = errors.New("address already in use")

	err := NewHTTPServerService(srv, time.Second).Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.Equal(t, int32(0), srv.shutdowns.Load())
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	srv := newFakeHTTPServer()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewHTTPServerService(srv, time.Second).Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, int32(1), srv.shutdowns.Load())
}

func TestNewHTTPServerService_DefaultShutdownTimeout(t *testing.T) {
	svc := NewHTTPServerService(newFakeHTTPServer(), 0)
	assert.Equal(t, 10*time.Second, svc.shutdownTimeout)
	assert.Equal(t, "http-server", svc.String())

	svc = NewHTTPServerService(newFakeHTTPServer(), 3*time.Second)
	assert.Equal(t, 3*time.Second, svc.shutdownTimeout)
}
