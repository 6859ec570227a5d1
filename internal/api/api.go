// Package api exposes the ShopAssist chat pipeline and the ticket/message
// persistence endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/ShopAssist/internal/models"
	"github.com/BTreeMap/ShopAssist/internal/pipeline"
	"github.com/BTreeMap/ShopAssist/internal/store"
)

// Defaults for the HTTP server.
const (
	DefaultAddr           = ":8080"
	DefaultRateLimitRPS   = 2
	DefaultRateLimitBurst = 10
	shutdownTimeout       = 10 * time.Second
	maxBodyBytes          = 1 << 20
)

// DefaultAllowedOrigins are the storefront origins allowed to call the API.
// The first entry is returned when the request origin is not listed.
var DefaultAllowedOrigins = []string{
	"https://shamelesscollective.com",
	"https://shameless-test.myshopify.com",
}

// ChatHandler answers one chat message. Errors are mapped with pipeline.AsAPIError.
type ChatHandler interface {
	Handle(ctx context.Context, req pipeline.Request) (string, error)
}

// AdminRelay delivers a support agent's message to the shopper's channel
// when the ticket did not start on the web widget.
type AdminRelay interface {
	RelayAdminMessage(ctx context.Context, ticket models.Ticket, text string) error
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	Relay          AdminRelay
	Webhooks       map[string]http.Handler
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAllowedOrigins replaces the CORS origin allow-list.
func WithAllowedOrigins(origins []string) Option {
	return func(o *Opts) { o.AllowedOrigins = origins }
}

// WithRateLimit sets the per-client token bucket for POST /api.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *Opts) {
		o.RateLimitRPS = rps
		o.RateLimitBurst = burst
	}
}

// WithAdminRelay forwards admin replies on non-web tickets to the shopper.
func WithAdminRelay(r AdminRelay) Option {
	return func(o *Opts) { o.Relay = r }
}

// WithWebhook mounts a provider callback at path, outside the CORS and rate
// limited /api tree.
func WithWebhook(path string, h http.Handler) Option {
	return func(o *Opts) {
		if o.Webhooks == nil {
			o.Webhooks = make(map[string]http.Handler)
		}
		o.Webhooks[path] = h
	}
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	chat     ChatHandler
	tickets  store.TicketStore
	relay    AdminRelay // optional
	webhooks map[string]http.Handler
	origins  []string
	limiter  *RateLimiter
	addr     string
	now      func() time.Time
}

// NewServer creates a Server.
func NewServer(chat ChatHandler, tickets store.TicketStore, opts ...Option) *Server {
	cfg := Opts{
		Addr:           DefaultAddr,
		AllowedOrigins: DefaultAllowedOrigins,
		RateLimitRPS:   DefaultRateLimitRPS,
		RateLimitBurst: DefaultRateLimitBurst,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = DefaultAllowedOrigins
	}
	slog.Debug("NewServer: creating API server", "addr", cfg.Addr, "origins", len(cfg.AllowedOrigins), "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	return &Server{
		chat:     chat,
		tickets:  tickets,
		relay:    cfg.Relay,
		webhooks: cfg.Webhooks,
		origins:  cfg.AllowedOrigins,
		limiter:  NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		addr:     cfg.Addr,
		now:      time.Now,
	}
}

// Routes builds the HTTP handler tree.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestIDMiddleware)

	r.Get("/health", s.healthHandler)
	for path, h := range s.webhooks {
		r.Method(http.MethodPost, path, h)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.corsMiddleware)

		r.With(s.limiter.Middleware).Post("/", s.chatHandler)
		r.Get("/", s.threadHandler)

		r.Post("/tickets", s.createTicketHandler)
		r.Get("/tickets", s.getTicketHandler)
		r.Post("/messages", s.appendMessageHandler)
		r.Get("/messages", s.listMessagesHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/tickets", s.adminListTicketsHandler)
			r.Get("/messages", s.adminListMessagesHandler)
			r.Post("/messages", s.adminPostMessageHandler)
		})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go s.limiter.Cleanup(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
