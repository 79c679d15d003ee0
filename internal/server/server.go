// Package server wires the two listeners together: the forwarding proxy and
// the notification endpoint, plus the file watcher feeding the broadcast
// hub. It owns the process lifecycle contract: exactly one ready notice
// after both listeners are bound, then exactly one closing and one close
// notice on shutdown, in that order.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/InsiderPie/http-reload-proxy/internal/config"
	"github.com/InsiderPie/http-reload-proxy/internal/hub"
	"github.com/InsiderPie/http-reload-proxy/internal/inject"
	"github.com/InsiderPie/http-reload-proxy/internal/logging"
	"github.com/InsiderPie/http-reload-proxy/internal/notify"
	"github.com/InsiderPie/http-reload-proxy/internal/proxy"
	"github.com/InsiderPie/http-reload-proxy/internal/watcher"
)

// Debounce window for grouping rapid file changes into one notification.
const watchDebounce = 100 * time.Millisecond

// Phase is a lifecycle transition the server announces exactly once.
type Phase string

const (
	PhaseReady   Phase = "ready"
	PhaseClosing Phase = "closing"
	PhaseClosed  Phase = "close"
)

// Server runs the reload proxy: both listeners, the watcher, and the hub.
type Server struct {
	cfg      *config.Config
	logger   logging.Logger
	hub      *hub.Hub
	watcher  *watcher.FileWatcher
	notifier func(Phase)

	proxyServer    *http.Server
	notifyServer   *http.Server
	proxyListener  net.Listener
	notifyListener net.Listener
	watchCancel    context.CancelFunc

	shutdownOnce sync.Once
	done         chan struct{}
}

// New assembles a server from validated configuration.
func New(cfg *config.Config, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	script := inject.NewScript(cfg.Notify.Port, cfg.Reload.DelayMS)
	broadcastHub := hub.New(logger)

	fileWatcher, err := watcher.NewFileWatcher(watchDebounce, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	forwarder := proxy.NewForwarder(
		cfg.Upstream.Host,
		cfg.Upstream.Port,
		cfg.Proxy.MaxRetries,
		time.Duration(cfg.Proxy.RetryDelayMS)*time.Millisecond,
		script,
		logger,
	)

	s := &Server{
		cfg:     cfg,
		logger:  logger.WithComponent("server"),
		hub:     broadcastHub,
		watcher: fileWatcher,
		done:    make(chan struct{}),
		proxyServer: &http.Server{
			Handler: forwarder,
		},
		notifyServer: &http.Server{
			Handler: notify.NewServer(broadcastHub, cfg.Notify.AllowedOrigin, logger).Handler(),
		},
	}
	s.notifier = s.logPhase
	return s, nil
}

// SetNotifier replaces the lifecycle notice sink. Must be called before
// Start.
func (s *Server) SetNotifier(fn func(Phase)) {
	if fn != nil {
		s.notifier = fn
	}
}

// logPhase is the default lifecycle notice sink.
func (s *Server) logPhase(phase Phase) {
	s.logger.Info(context.Background(), string(phase),
		"proxy_port", s.cfg.Proxy.Port, "notify_port", s.cfg.Notify.Port)
}

// Start binds both listeners, starts the watcher, and emits the ready
// notice. It returns once the server is accepting connections; a failure to
// bind either listener is returned without any notice having been emitted.
func (s *Server) Start(ctx context.Context) error {
	proxyListener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Proxy.Port))
	if err != nil {
		return fmt.Errorf("failed to bind proxy listener: %w", err)
	}

	notifyListener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Notify.Port))
	if err != nil {
		proxyListener.Close()
		return fmt.Errorf("failed to bind notification listener: %w", err)
	}

	if err := s.watcher.AddRecursive(s.cfg.Watch.Root); err != nil {
		proxyListener.Close()
		notifyListener.Close()
		return fmt.Errorf("failed to watch %s: %w", s.cfg.Watch.Root, err)
	}

	// Every change batch, of any kind, anywhere under the root, becomes one
	// notification token.
	s.watcher.AddHandler(func(events []watcher.ChangeEvent) {
		s.logger.Debug(context.Background(), "files changed", "count", len(events))
		s.hub.Publish("update")
	})

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel
	s.watcher.Start(watchCtx)

	s.proxyListener = proxyListener
	s.notifyListener = notifyListener

	go s.serve(s.proxyServer, proxyListener, "proxy")
	go s.serve(s.notifyServer, notifyListener, "notify")

	s.notifier(PhaseReady)
	return nil
}

func (s *Server) serve(srv *http.Server, listener net.Listener, name string) {
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error(context.Background(), err, "listener stopped unexpectedly", "listener", name)
	}
}

// ProxyAddr returns the bound address of the proxy listener. Valid after
// Start.
func (s *Server) ProxyAddr() string {
	if s.proxyListener == nil {
		return ""
	}
	return s.proxyListener.Addr().String()
}

// NotifyAddr returns the bound address of the notification listener. Valid
// after Start.
func (s *Server) NotifyAddr() string {
	if s.notifyListener == nil {
		return ""
	}
	return s.notifyListener.Addr().String()
}

// Hub exposes the broadcast hub so the CLI and tests can observe or publish
// events directly.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Shutdown stops accepting connections on both listeners, stops the
// watcher, and waits for both servers to finish closing. It is safe to call
// concurrently and repeatedly; the notices are emitted exactly once and
// every caller returns only after shutdown completed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		defer close(s.done)

		s.notifier(PhaseClosing)

		if s.watchCancel != nil {
			s.watchCancel()
		}
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn(ctx, err, "failed to stop watcher")
		}

		var wg sync.WaitGroup

		// Proxied requests drain gracefully.
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.proxyServer.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn(ctx, err, "proxy listener shutdown")
			}
		}()

		// Notification connections are open-ended push streams; waiting for
		// them to finish would wait forever, so they are abandoned.
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.notifyServer.Close(); err != nil {
				s.logger.Warn(ctx, err, "notification listener shutdown")
			}
		}()

		wg.Wait()

		s.notifier(PhaseClosed)
	})

	<-s.done
	return nil
}
