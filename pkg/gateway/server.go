package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"polybot/pkg/config"
	"polybot/pkg/dispatch"
	"polybot/pkg/update"
)

const (
	// AckBody is the fixed acknowledgement returned on both routes.
	AckBody = "Ok"

	secretTokenHeader   = "X-Telegram-Bot-Api-Secret-Token"
	shutdownTimeout     = 10 * time.Second
	defaultMaxBodyBytes = 1 << 20
)

// Dispatcher routes a parsed update to the active handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, event update.Event) dispatch.Outcome
}

// Server owns the HTTP contract with the Bot API: a liveness route and the
// webhook route, both answering 200 Ok no matter what happens downstream.
type Server struct {
	httpServer   *http.Server
	handler      http.Handler
	dispatcher   Dispatcher
	pathToken    []byte
	secretToken  []byte
	maxBodyBytes int64
	stats        *stats
	log          *slog.Logger
}

// NewServer wires routes and middleware. It refuses to build without a dispatcher
// or a webhook token so a misconfigured process never starts listening.
func NewServer(cfg *config.Config, dispatcher Dispatcher, log *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("gateway: %w", dispatch.ErrNoHandler)
	}
	pathToken := cfg.Telegram.PathToken()
	if pathToken == "" {
		return nil, errors.New("gateway: webhook token is required")
	}
	if log == nil {
		log = slog.Default()
	}
	maxBodyBytes := cfg.Server.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		dispatcher:   dispatcher,
		pathToken:    []byte(pathToken),
		secretToken:  []byte(strings.TrimSpace(cfg.Telegram.SecretToken)),
		maxBodyBytes: maxBodyBytes,
		stats:        &stats{startedAt: time.Now()},
		log:          log.With("component", "gateway.server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /{token}", s.handleWebhook)
	mux.HandleFunc("POST /{token}/{$}", s.handleWebhook)

	var handler http.Handler = mux
	handler = Logging(log)(handler)
	handler = RequestID(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       seconds(cfg.Server.ReadTimeoutSeconds),
		WriteTimeout:      seconds(cfg.Server.WriteTimeoutSeconds),
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Listen binds the configured address without serving yet.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}

	return listener, nil
}

// Serve accepts connections on listener until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.log.Info("Webhook server started", "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve webhook: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("Webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	acknowledge(w)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if subtle.ConstantTimeCompare([]byte(r.PathValue("token")), s.pathToken) != 1 {
		http.NotFound(w, r)
		return
	}

	s.process(w, r)
	acknowledge(w)
}

// process runs validation and dispatch. Every failure is logged and swallowed.
func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	log := s.log.With("request_id", GetRequestID(r.Context()))

	if len(s.secretToken) > 0 && !hmac.Equal([]byte(r.Header.Get(secretTokenHeader)), s.secretToken) {
		log.Warn("Dropping update with invalid secret token")
		s.stats.dropped.Add(1)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		log.Warn("Dropping unreadable update body", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			// The rest of the body is never read, so the connection cannot be reused.
			w.Header().Set("Connection", "close")
		}
		s.stats.dropped.Add(1)
		return
	}

	event, err := update.Parse(r.Header.Get("Content-Type"), body)
	if err != nil {
		log.Warn("Dropping malformed update", "error", err, "bytes", len(body))
		s.stats.dropped.Add(1)
		return
	}

	outcome := s.dispatcher.Dispatch(r.Context(), event)
	s.stats.record(outcome)
	log.Debug("Update processed", "update_id", event.UpdateID, "outcome", string(outcome))
}

func acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, AckBody)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}

	return time.Duration(n) * time.Second
}
