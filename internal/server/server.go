package server

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"cadence/internal/auth"
	"cadence/internal/config"
	"cadence/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// PlaylistStore is the playlist access layer used by the handlers
type PlaylistStore interface {
	ListPage(ctx context.Context, page, limit int) ([]models.Playlist, int, error)
	GetByID(ctx context.Context, id int) (*models.Playlist, error)
	ListByUser(ctx context.Context, userID int) ([]models.Playlist, error)
	RecommendedFor(ctx context.Context, userID int) ([]models.Playlist, error)
	FindByTitlePrefix(ctx context.Context, prefix string, limit int) ([]models.Playlist, error)
	Create(ctx context.Context, in models.PlaylistInput) (*models.Playlist, error)
	Update(ctx context.Context, id int, in models.PlaylistInput) (*models.Playlist, error)
	AddTrack(ctx context.Context, id, trackID int) (*models.Playlist, error)
	Delete(ctx context.Context, id int) (*models.Playlist, error)
}

// CoverStore keeps uploaded playlist covers
type CoverStore interface {
	Save(fh *multipart.FileHeader) (string, error)
	Remove(ref string) error
	RemoveAsync(ref string)
	Check() error
}

// CatalogStore covers tracks, likes and accounts
type CatalogStore interface {
	Ping(ctx context.Context) error
	CountTracks() (int, error)
	SearchTracks(ctx context.Context, query string) ([]models.Track, error)
	GetTrackByID(ctx context.Context, id int) (*models.Track, error)
	LikeTrack(ctx context.Context, userID, trackID int) error
	UnlikeTrack(ctx context.Context, userID, trackID int) error
	LikedTrackIDs(ctx context.Context, userID int) ([]int, error)
	DeleteUser(ctx context.Context, id int) error
}

// Authenticator registers users and issues and checks bearer tokens
type Authenticator interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, *models.User, error)
	ParseToken(token string) (*auth.Claims, error)
}

// Server is the playlist HTTP API
type Server struct {
	config    *config.Config
	logger    *logrus.Logger
	playlists PlaylistStore
	covers    CoverStore
	catalog   CatalogStore
	auth      Authenticator

	engine     *gin.Engine
	httpServer *http.Server
}

// New creates the server and registers all routes
func New(cfg *config.Config, logger *logrus.Logger, playlists PlaylistStore, covers CoverStore, catalog CatalogStore, authn Authenticator) *Server {
	s := &Server{
		config:    cfg,
		logger:    logger,
		playlists: playlists,
		covers:    covers,
		catalog:   catalog,
		auth:      authn,
	}

	s.engine = gin.New()
	s.engine.MaxMultipartMemory = cfg.MaxUploadBytes()
	s.engine.Use(s.panicRecovery())
	if cfg.Server.RequestLogging {
		s.engine.Use(s.requestLogger())
	}
	if cfg.Server.EnableCORS {
		s.engine.Use(corsMiddleware())
	}
	s.engine.Use(s.identityMiddleware())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.GetAddress(),
		Handler:      s.engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := s.engine

	r.GET("/health", s.handleHealthCheck)
	r.Static(s.config.Storage.PublicPrefix, s.config.Storage.CoversDir)

	authRoutes := r.Group("/auth", s.authRateLimit())
	{
		authRoutes.POST("/register", s.handleRegister)
		authRoutes.POST("/login", s.handleLogin)
	}

	r.DELETE("/users/me", s.requireCaller(), s.handleDeleteAccount)

	tracks := r.Group("/tracks")
	{
		tracks.GET("", s.handleSearchTracks)
		tracks.GET("/liked", s.requireCaller(), s.handleLikedTracks)
		tracks.GET("/:id", s.handleGetTrack)
		tracks.POST("/:id/like", s.requireCaller(), s.handleLikeTrack)
		tracks.DELETE("/:id/like", s.requireCaller(), s.handleUnlikeTrack)
	}

	playlists := r.Group("/playlists")
	{
		playlists.GET("", s.handleListPlaylists)
		playlists.GET("/recommended", s.requireCaller(), s.handleRecommendedPlaylists)
		playlists.GET("/user", s.requireCaller(), s.handleUserPlaylists)
		playlists.GET("/search", s.handleSearchPlaylists)
		playlists.GET("/:id", s.handleGetPlaylist)
		playlists.PUT("/addtrack/:id", s.handleAddTrack)
		playlists.POST("", s.requireCaller(), s.coverUploadMiddleware(), s.playlistFormValidation(), s.handleCreatePlaylist)
		playlists.PUT("/:id", s.requireCaller(), s.coverUploadMiddleware(), s.playlistFormValidation(), s.handleUpdatePlaylist)
		playlists.DELETE("/:id", s.requireCaller(), s.handleDeletePlaylist)
	}

	r.NoRoute(func(c *gin.Context) {
		respondFail(c, http.StatusNotFound, msgRouteNotFound, nil)
	})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves HTTP until Shutdown is called
func (s *Server) Start() error {
	s.logger.WithField("address", s.config.GetAddress()).Info("Cadence server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
