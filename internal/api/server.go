package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/swctools/swctools/internal/config"
	"github.com/swctools/swctools/internal/db"
	"github.com/swctools/swctools/internal/events"
	"github.com/swctools/swctools/internal/network"
	"github.com/swctools/swctools/internal/protocol"
	"github.com/swctools/swctools/internal/session"
	"github.com/swctools/swctools/internal/util"
)

// SnapshotArchive is the subset of db.Store used by the API.
type SnapshotArchive interface {
	SaveSnapshot(kind, subjectID, playerID string, payload any) (int64, error)
	ListSnapshots(kind string, limit int) ([]db.Snapshot, error)
}

// Server is the REST API server.
type Server struct {
	cfg      config.APIConfig
	runner   session.Runner
	archive  SnapshotArchive
	eventBus *events.EventBus
	version  string
	host     util.HostInfo
	started  time.Time

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server. archive may be nil, which disables
// the snapshot routes.
func NewServer(cfg config.APIConfig, runner session.Runner, archive SnapshotArchive, eventBus *events.EventBus, version string) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		runner:   runner,
		archive:  archive,
		eventBus: eventBus,
		version:  version,
		host:     util.GetHostInfo(),
		started:  time.Now(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves the API until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // calls may wait through re-authentication
		IdleTimeout:  120 * time.Second,
	}

	ln, err := network.ListenTCP(ctx, addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // must be false with "*"
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(s.cfg.RateLimitRPS).Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/status", s.handleStatus)
	}

	protected := router.Group("/api")
	protected.Use(RequireToken(s.cfg.AuthToken))
	{
		protected.GET("/player", s.handlePlayer)
		protected.GET("/buildings", s.handleBuildings)
		protected.GET("/neighbors/:id", s.handleVisitNeighbor)
		protected.GET("/squads", s.handleSearchSquads)
		protected.GET("/squads/:id", s.handleSquadDetails)
		protected.GET("/war/participant", s.handleWarParticipant)
		protected.POST("/layout", s.handleUpdateLayout)
		protected.POST("/war/layout", s.handleUpdateWarLayout)
		protected.POST("/session/refresh", s.handleRefresh)
		protected.GET("/snapshots", s.handleListSnapshots)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// respondError maps session errors to HTTP statuses: bootstrap failures are
// 503, server statuses and transport failures 502, timeouts 504.
func respondError(c *gin.Context, err error) {
	var (
		authErr   *session.AuthError
		statusErr *protocol.StatusError
	)
	switch {
	case errors.As(err, &authErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":       err.Error(),
			"step":        authErr.Step,
			"status":      int(authErr.Status),
			"status_name": authErr.Status.String(),
		})
	case errors.As(err, &statusErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":       err.Error(),
			"status":      int(statusErr.Status),
			"status_name": statusErr.Status.String(),
		})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
	log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("api call failed")
}

// call runs fn against the shared session and writes its result as JSON.
func (s *Server) call(c *gin.Context, fn func(ctx context.Context, sess *session.Session) (any, error)) {
	var out any
	err := s.runner.Do(func(sess *session.Session) error {
		var err error
		out, err = fn(c.Request.Context(), sess)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
