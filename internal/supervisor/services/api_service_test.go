// Fieldfm - Field-aware Factorization Machine Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldfm

package services

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

var (
	_ suture.Service = (*APIService)(nil)
	_ suture.Service = (*ReloadService)(nil)
	_ suture.Service = (*RetrainService)(nil)
)

// mockHTTPServer stands in for *http.Server.
type mockHTTPServer struct {
	listenErr   error
	block       bool
	shutdownErr error
	listens     atomic.Int32
	shutdowns   atomic.Int32
	closes      atomic.Int32
	started     chan struct{}
	stopCh      chan struct{}
	stopOnce    sync.Once
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{
		started: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.listens.Add(1)
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.listenErr != nil {
		return m.listenErr
	}
	if m.block {
		<-m.stopCh
		return http.ErrServerClosed
	}
	return nil
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	m.stop()
	return m.shutdownErr
}

func (m *mockHTTPServer) Close() error {
	m.closes.Add(1)
	m.stop()
	return nil
}

func (m *mockHTTPServer) stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// syncBuffer guards log output written from the service goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func serveAsync(ctx context.Context, svc suture.Service) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()
	return errCh
}

// cancelAfterStart cancels once server has started and returns Serve's result.
func cancelAfterStart(t *testing.T, server *mockHTTPServer, svc suture.Service) error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := serveAsync(ctx, svc)

	select {
	case <-server.started:
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}
	cancel()

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
		return nil
	}
}

func TestNewAPIService_Defaults(t *testing.T) {
	t.Parallel()

	for _, timeout := range []time.Duration{0, -time.Second} {
		svc := NewAPIService(newMockHTTPServer(), APIServiceConfig{DrainTimeout: timeout}, zerolog.Nop())
		if svc.config.DrainTimeout != 10*time.Second {
			t.Errorf("timeout %v: DrainTimeout = %v, want 10s", timeout, svc.config.DrainTimeout)
		}
	}
	svc := NewAPIService(newMockHTTPServer(), APIServiceConfig{DrainTimeout: time.Second}, zerolog.Nop())
	if svc.config.DrainTimeout != time.Second {
		t.Errorf("DrainTimeout = %v, want 1s", svc.config.DrainTimeout)
	}
	if got := svc.String(); got != "prediction-api" {
		t.Errorf("String() = %q, want prediction-api", got)
	}
}

func TestAPIService_Serve(t *testing.T) {
	t.Parallel()

	t.Run("graceful drain on cancel", func(t *testing.T) {
		t.Parallel()

		var logs syncBuffer
		server := newMockHTTPServer()
		server.block = true
		svc := NewAPIService(server, APIServiceConfig{Addr: "127.0.0.1:8080", DrainTimeout: time.Second}, zerolog.New(&logs))

		if err := cancelAfterStart(t, server, svc); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
		if server.listens.Load() != 1 || server.shutdowns.Load() != 1 || server.closes.Load() != 0 {
			t.Errorf("listens=%d shutdowns=%d closes=%d, want 1/1/0",
				server.listens.Load(), server.shutdowns.Load(), server.closes.Load())
		}
		out := logs.String()
		for _, want := range []string{`"service":"api"`, `"addr":"127.0.0.1:8080"`, "prediction api stopped", `"drained_in"`} {
			if !strings.Contains(out, want) {
				t.Errorf("logs missing %s:\n%s", want, out)
			}
		}
	})

	t.Run("listen failure", func(t *testing.T) {
		t.Parallel()

		bindErr := errors.New("bind: address already in use")
		server := newMockHTTPServer()
		server.listenErr = bindErr

		err := NewAPIService(server, APIServiceConfig{Addr: ":8080"}, zerolog.Nop()).Serve(context.Background())
		if !errors.Is(err, bindErr) {
			t.Errorf("Serve() error = %v, want %v", err, bindErr)
		}
		if err != nil && !strings.Contains(err.Error(), ":8080") {
			t.Errorf("Serve() error %q does not name the address", err)
		}
	})

	t.Run("drain failure", func(t *testing.T) {
		t.Parallel()

		shutdownErr := errors.New("listener close failed")
		server := newMockHTTPServer()
		server.block = true
		server.shutdownErr = shutdownErr

		err := cancelAfterStart(t, server, NewAPIService(server, APIServiceConfig{DrainTimeout: time.Second}, zerolog.Nop()))
		if !errors.Is(err, shutdownErr) {
			t.Errorf("Serve() error = %v, want %v", err, shutdownErr)
		}
		if server.closes.Load() != 0 {
			t.Errorf("closes = %d, want 0", server.closes.Load())
		}
	})

	t.Run("drain timeout closes connections", func(t *testing.T) {
		t.Parallel()

		var logs syncBuffer
		server := newMockHTTPServer()
		server.block = true
		server.shutdownErr = context.DeadlineExceeded

		err := cancelAfterStart(t, server, NewAPIService(server, APIServiceConfig{DrainTimeout: time.Second}, zerolog.New(&logs)))
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve() error = %v, want context.DeadlineExceeded", err)
		}
		if server.closes.Load() != 1 {
			t.Errorf("closes = %d, want 1", server.closes.Load())
		}
		if !strings.Contains(logs.String(), "closing connections") {
			t.Errorf("logs missing drain timeout warning:\n%s", logs.String())
		}
	})

	t.Run("real server", func(t *testing.T) {
		t.Parallel()

		srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler(), ReadHeaderTimeout: time.Second}
		ctx, cancel := context.WithCancel(context.Background())
		errCh := serveAsync(ctx, NewAPIService(srv, APIServiceConfig{Addr: srv.Addr, DrainTimeout: time.Second}, zerolog.Nop()))

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() error = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return after cancel")
		}
	})
}
