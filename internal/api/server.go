package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/internal/config"
	"github.com/jakechorley/shelter-shifts/pkg/auth"
	"github.com/jakechorley/shelter-shifts/pkg/cache"
	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/notify"
	"github.com/jakechorley/shelter-shifts/pkg/core/services"
	"github.com/jakechorley/shelter-shifts/pkg/db"
	"github.com/jakechorley/shelter-shifts/pkg/metrics"
)

// Deps are the collaborators the HTTP surface is built from.
// Cache, Sheets, Metrics and AllowedOrigins are optional.
type Deps struct {
	Config      *config.Config
	Store       db.Database
	Cache       cache.Cache
	Auth        *auth.Provider
	Calendar    *calendar.Calendar
	Notifier    *notify.Registry
	Assignments *services.AssignmentService
	Users       *services.UserService
	Sheets      services.AttendancePublisher
	Metrics     *metrics.Metrics
	Logger      *zap.Logger

	AllowedOrigins []string
}

// Server serves the shift scheduler over HTTP
type Server struct {
	cfg         *config.Config
	store       db.Database
	cache       cache.Cache
	auth        *auth.Provider
	calendar    *calendar.Calendar
	notifier    *notify.Registry
	assignments *services.AssignmentService
	users       *services.UserService
	sheets      services.AttendancePublisher
	metrics     *metrics.Metrics
	logger      *zap.Logger
	origins     []string

	startTime time.Time
	version   string

	// Now is the clock used for default calendar ranges
	Now func() time.Time
}

func NewServer(d Deps) *Server {
	version := os.Getenv("APP_VERSION")
	if version == "" {
		version = "unknown"
	}
	return &Server{
		cfg:         d.Config,
		store:       d.Store,
		cache:       d.Cache,
		auth:        d.Auth,
		calendar:    d.Calendar,
		notifier:    d.Notifier,
		assignments: d.Assignments,
		users:       d.Users,
		sheets:      d.Sheets,
		metrics:     d.Metrics,
		logger:      d.Logger,
		origins:     d.AllowedOrigins,
		startTime:   time.Now(),
		version:     version,
		Now:         time.Now,
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(pattern, h))
	}
	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return s.RequireRole([]model.Role{model.RoleAdmin}, h)
	}

	handle("GET /health", s.Health)
	handle("GET /health/ready", s.Ready)
	handle("GET /health/live", s.Live)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	handle("POST /login", s.login)
	handle("POST /logout", s.Authenticate(s.logout))
	handle("GET /me", s.Authenticate(s.me))
	handle("PATCH /me", s.Authenticate(s.updateMe))
	handle("GET /notice", s.Authenticate(s.currentNotice))
	handle("DELETE /notice/{id}", s.Authenticate(s.dismissNotice))

	handle("GET /calendar", s.Authenticate(s.viewCalendar))
	handle("POST /slots/{slot}/toggle", s.Authenticate(s.toggle))
	handle("POST /pending/{id}/confirm", s.Authenticate(s.confirm))
	handle("POST /pending/{id}/cancel", s.Authenticate(s.cancel))

	handle("POST /admin/slots/{slot}/assignments", admin(s.adminAssign))
	handle("DELETE /admin/slots/{slot}/assignments/{uid}", admin(s.adminUnassign))
	handle("GET /admin/history", admin(s.history))
	handle("POST /admin/history/export", admin(s.exportHistory))
	handle("GET /admin/users", admin(s.listUsers))
	handle("POST /admin/users", admin(s.createUser))
	handle("PUT /admin/users/{id}/password", admin(s.updatePassword))
	handle("PUT /admin/users/{id}/enabled", admin(s.setEnabled))
	handle("DELETE /admin/users/{id}", admin(s.deleteUser))

	if s.cfg != nil && s.cfg.IsTest() {
		handle("POST /test/reset", s.resetTestData)
	}

	if len(s.origins) > 0 {
		return CORS(s.origins, mux)
	}
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
