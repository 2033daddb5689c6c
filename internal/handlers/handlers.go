package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"autocare/internal/config"
	"autocare/internal/events"
	"autocare/internal/metrics"
	"autocare/internal/middleware"
	"autocare/internal/models"
	"autocare/internal/queue"
	"autocare/internal/repository"
	"autocare/internal/service"
	"autocare/internal/storage"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Auth        *service.AuthService
	Profiles    *service.ProfileService
	Garage      *service.GarageService
	Diagnostics *service.DiagnosticsService
	Events      events.Subscriber
	Checks      map[string]HealthCheck
}

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	auth        *service.AuthService
	profiles    *service.ProfileService
	garage      *service.GarageService
	diagnostics *service.DiagnosticsService
	events      events.Subscriber
	checks      map[string]HealthCheck
	upgrader    websocket.Upgrader
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Dependencies) HandlerSet {
	return HandlerSet{
		log:         log,
		cfg:         cfg,
		auth:        deps.Auth,
		profiles:    deps.Profiles,
		garage:      deps.Garage,
		diagnostics: deps.Diagnostics,
		events:      deps.Events,
		checks:      deps.Checks,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Build wires the repositories and services onto the shared connections.
func Build(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, store *storage.ObjectStore, cfg *config.AppConfig) HandlerSet {
	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	vehicles := repository.NewVehicleRepository(db)
	bus := events.NewBus(cache, log)
	limiter := service.NewRedisLoginLimiter(cache, cfg.Security.LoginMaxAttempts, cfg.Security.LoginWindow)

	return NewHandlerSet(log, cfg, Dependencies{
		Auth:     service.NewAuthService(users, sessions, limiter, bus, cfg.Security, log),
		Profiles: service.NewProfileService(repository.NewProfileRepository(db), bus, log),
		Garage: service.NewGarageService(
			vehicles,
			repository.NewAppointmentRepository(db),
			repository.NewExpenseRepository(db),
			repository.NewServiceRepository(db),
			log,
		),
		Diagnostics: service.NewDiagnosticsService(
			repository.NewDiagnosticRepository(db),
			vehicles,
			store,
			queue.NewProducer(cache, cfg.Diagnostics.Stream),
			cfg,
			log,
		),
		Events: bus,
		Checks: map[string]HealthCheck{
			"database": db.Ping,
			"cache":    func(ctx context.Context) error { return cache.Ping(ctx).Err() },
		},
	})
}

func (h HandlerSet) Register(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.GET("/metrics", metrics.Handler())

	apiKey := middleware.APIKey(h.cfg.Security.AnonKey)
	authn := middleware.Auth(h.auth)

	auth := router.Group("/auth/v1", apiKey)
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/token", h.Token)

		protected := auth.Group("", authn)
		protected.POST("/logout", h.Logout)
		protected.GET("/user", h.User)
		protected.GET("/sessions", h.Sessions)
		protected.GET("/events", h.Events)
	}

	rest := router.Group("/rest/v1", apiKey, authn)
	{
		rest.GET("/profiles/:id", h.GetProfile)
		rest.POST("/profiles", h.InsertProfile)
		rest.PATCH("/profiles/:id", h.UpdateProfile)

		rest.GET("/vehicles", h.ListVehicles)
		rest.POST("/vehicles", h.InsertVehicle)

		rest.GET("/appointments", h.ListAppointments)
		rest.POST("/appointments", h.InsertAppointment)

		rest.GET("/expenses", h.ListExpenses)
		rest.POST("/expenses", h.InsertExpense)

		rest.GET("/services", h.ListServices)
		rest.PUT("/services", middleware.RequireRoles(models.UserRoleAdmin), h.UpsertServices)

		rest.POST("/diagnostics", h.SubmitDiagnostic)
		rest.GET("/diagnostics/:id", h.GetDiagnostic)
	}
}
