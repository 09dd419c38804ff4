package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"retro/internal/board"
	"retro/internal/config"
	"retro/internal/handler"
	"retro/internal/middleware"
	"retro/internal/presence"
	"retro/internal/pubsub"
	"retro/internal/repository"
	"retro/internal/session"
	"retro/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	Engine   *gin.Engine
	DB       *gorm.DB
	Config   *config.Config
	Log      *logrus.Logger
	Hub      *board.Hub
	Presence *presence.Registry
	Sessions *session.Manager

	redis *redis.Client
}

func Init(cfg *config.Config) (*Server, error) {
	log := logrus.New()
	log.SetLevel(cfg.LogLevel)

	if cfg.RunMigrations {
		if err := repository.Migrate(cfg.MigrationURL(), log); err != nil {
			return nil, fmt.Errorf("❌ failed to migrate DB: %w", err)
		}
	}

	// Setup GORM
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("❌ failed to connect to DB: %w", err)
	}
	log.Info("✅ Connected to database")

	var transport presence.Transport
	var rc *redis.Client
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("❌ failed to connect to Redis: %w", err)
		}
		transport = presence.NewRedisTransport(rc, cfg.RedisChannel, log)
		log.Info("✅ Connected to Redis")
	} else {
		log.Warn("⚠️  REDIS_ADDR not set, presence stays local to this node")
	}

	s := New(cfg, db, transport, log)
	s.redis = rc
	return s, nil
}

// New wires every component on top of an open database. transport may be
// nil for a single node.
func New(cfg *config.Config, db *gorm.DB, transport presence.Transport, log *logrus.Logger) *Server {
	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	boardRepo := repository.NewBoardRepository(db)
	boardShareRepo := repository.NewBoardShareRepository(db)

	validator := validation.New()
	updates := pubsub.NewBroker[board.Update]()

	hub := board.NewHub(board.HubConfig{
		Store:       boardRepo,
		Roles:       boardShareRepo,
		Validator:   validator,
		Publisher:   updates,
		HistorySize: cfg.HistorySize,
		Log:         log,
	})

	registry := presence.NewRegistry(presence.Config{
		NodeID:    cfg.NodeID,
		Transport: transport,
		Heartbeat: cfg.PresenceHeartbeat,
		Timeout:   cfg.PresenceTimeout,
		Log:       log,
	})

	sessions := session.NewManager(session.Config{
		Authorities: hub,
		Updates:     updates,
		Presence:    registry,
		Roles:       boardShareRepo,
		Users:       userRepo,
		Validator:   validator,
		HistorySize: cfg.HistorySize,
		Log:         log,
	})

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(handler.FromManager(sessions), userRepo, log)
	boardHandler := handler.NewBoardHandler(boardRepo, validator, log)

	// Setup Gin
	r := gin.Default()
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"node_id":  registry.NodeID(),
			"boards":   hub.Len(),
			"sessions": sessions.Len(),
		})
	})

	// Protected routes - require authentication
	authorized := r.Group("/")
	authorized.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	{
		authorized.POST("/boards", boardHandler.Create)

		// Live board sessions
		authorized.GET("/boards/:id/stream", sessionHandler.Stream)
		authorized.POST("/boards/:id/sessions/:conn/intents", sessionHandler.Intent)

		authorized.GET("/users/suggest", sessionHandler.SuggestUsers)
	}

	return &Server{
		Engine:   r,
		DB:       db,
		Config:   cfg,
		Log:      log,
		Hub:      hub,
		Presence: registry,
		Sessions: sessions,
	}
}

// Run serves until SIGINT or SIGTERM, then shuts everything down.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve runs the HTTP server and presence replication until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + s.Config.ServerPort,
		Handler: s.Engine,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Log.Infof("🚀 Server running on port %s", s.Config.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("❌ failed to listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.Presence.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.Log.Info("🛑 Shutting down server...")

		// Open streams only end once their sessions do
		s.Sessions.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("❌ server forced to shutdown: %w", err)
		}
		return nil
	})

	var result *multierror.Error
	if err := g.Wait(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	s.Log.Info("✅ Server exited properly")
	return nil
}

// Close stops the board authorities and releases external connections.
func (s *Server) Close() error {
	var result *multierror.Error
	s.Sessions.Close()
	s.Hub.Close()
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close redis: %w", err))
		}
	}
	if sqlDB, err := s.DB.DB(); err != nil {
		result = multierror.Append(result, fmt.Errorf("get sql db: %w", err))
	} else if err := sqlDB.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close db: %w", err))
	}
	return result.ErrorOrNil()
}
