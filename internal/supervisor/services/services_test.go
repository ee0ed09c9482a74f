// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/thejerf/suture/v4"
)

type mockHTTPServer struct {
	mu          sync.Mutex
	listenErr   error
	shutdownErr error
	stopped     chan struct{}
	shutdowns   int
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{stopped: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopped
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdowns++
	if m.shutdowns == 1 {
		close(m.stopped)
	}
	return m.shutdownErr
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	srv := newMockHTTPServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if srv.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", srv.shutdowns)
	}
}

func TestHTTPServerService_ListenError(t *testing.T) {
	srv := newMockHTTPServer()
	srv.listenErr = errors.New("address already in use")

	err := NewHTTPServerService(srv, time.Second).Serve(context.Background())
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Serve = %v, want wrapped listen error", err)
	}
}

func TestHTTPServerService_ServerClosedIsClean(t *testing.T) {
	srv := newMockHTTPServer()
	srv.listenErr = http.ErrServerClosed

	if err := NewHTTPServerService(srv, time.Second).Serve(context.Background()); err != nil {
		t.Errorf("Serve = %v, want nil", err)
	}
}

type mockEngine struct {
	ran atomic.Bool
}

func (m *mockEngine) RunWithContext(ctx context.Context) error {
	m.ran.Store(true)
	<-ctx.Done()
	return ctx.Err()
}

func TestDetectionService(t *testing.T) {
	engine := &mockEngine{}
	svc := NewDetectionService(engine)
	if svc.String() != "detection-engine" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve = %v", err)
	}
	if !engine.ran.Load() {
		t.Error("engine was not run")
	}
}

type countingConsumer struct {
	consumed atomic.Int32
}

func (c *countingConsumer) ConsumeAlerts(ctx context.Context, messages <-chan *message.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			c.consumed.Add(1)
			msg.Ack()
		}
	}
}

func TestAlertService_ClosedStreamIsNotRestarted(t *testing.T) {
	consumer := &countingConsumer{}
	messages := make(chan *message.Message, 2)
	messages <- message.NewMessage("a-1", []byte("{}"))
	messages <- message.NewMessage("a-2", []byte("{}"))
	close(messages)

	svc := NewAlertService(consumer, messages)
	if svc.String() != "alert-subscriber" {
		t.Errorf("String() = %q", svc.String())
	}
	if err := svc.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("Serve = %v, want ErrDoNotRestart", err)
	}
	if n := consumer.consumed.Load(); n != 2 {
		t.Errorf("consumed = %d, want 2", n)
	}
}

func TestAlertService_StopsOnCancel(t *testing.T) {
	svc := NewAlertService(&countingConsumer{}, make(chan *message.Message))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve = %v, want context.DeadlineExceeded", err)
	}
}

func TestMaintenanceService_RunsPeriodically(t *testing.T) {
	var rounds atomic.Int32
	svc := NewMaintenanceService("cache-eviction", 5*time.Millisecond, func(context.Context) (int, error) {
		if rounds.Add(1) == 2 {
			return 0, errors.New("backend unavailable")
		}
		return 1, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for rounds.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}
	if rounds.Load() < 3 {
		t.Errorf("rounds = %d, a failed round should not stop the service", rounds.Load())
	}
}

func TestNewMaintenanceService_DefaultInterval(t *testing.T) {
	svc := NewMaintenanceService("noop", 0, func(context.Context) (int, error) { return 0, nil })
	if svc.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", svc.interval)
	}
	if svc.String() != "noop" {
		t.Errorf("String() = %q", svc.String())
	}
}
