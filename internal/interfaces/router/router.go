package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	certsvc "certverify-backend/internal/application/certificates"
	healthsvc "certverify-backend/internal/application/health"
	pubsvc "certverify-backend/internal/application/publication"
	versvc "certverify-backend/internal/application/verification"
	"certverify-backend/internal/auth"
	"certverify-backend/internal/config"
	"certverify-backend/internal/domain"
	"certverify-backend/internal/infrastructure/cache"
	"certverify-backend/internal/infrastructure/database"
	"certverify-backend/internal/infrastructure/ledger"
	"certverify-backend/internal/infrastructure/store"
	certhandler "certverify-backend/internal/interfaces/handlers/certificates"
	healthhandler "certverify-backend/internal/interfaces/handlers/health"
	pubhandler "certverify-backend/internal/interfaces/handlers/publication"
	verhandler "certverify-backend/internal/interfaces/handlers/verification"
	"certverify-backend/internal/metrics"
	"certverify-backend/internal/middleware"
	"certverify-backend/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Deps are the opened backends the app is wired against. Rdb and Publisher are optional.
type Deps struct {
	DB        *gorm.DB
	Rdb       *redis.Client
	Publisher domain.LedgerPublisher
	Registry  *prometheus.Registry
}

// Resources owns the connections CreateApp opened.
type Resources struct {
	DB     *gorm.DB
	Rdb    *redis.Client
	ledger *ledger.FabricPublisher
}

func (r *Resources) Close() error {
	var errs []error
	if r.ledger != nil {
		errs = append(errs, r.ledger.Close())
	}
	if r.Rdb != nil {
		errs = append(errs, r.Rdb.Close())
	}
	if r.DB != nil {
		if sqlDB, err := r.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

// Open connects the database, Redis and (when enabled) the ledger gateway.
func Open(cfg *config.Config) (*Resources, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database url is not configured for env %q", cfg.Env)
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	res := &Resources{DB: db}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		res.Rdb = redis.NewClient(opt)
	}

	if cfg.Ledger.Enabled {
		l := cfg.Ledger
		pub, err := ledger.NewFabricPublisher(ledger.FabricConfig{
			PeerEndpoint: l.PeerEndpoint,
			GatewayPeer:  l.GatewayPeer,
			TLSCertPath:  l.TLSCertPath,
			CertPath:     l.CertPath,
			KeyPath:      l.KeyPath,
			MSPID:        l.MSPID,
			Channel:      l.Channel,
			Chaincode:    l.Chaincode,
			Function:     l.Function,
		})
		if err != nil {
			_ = res.Close()
			return nil, fmt.Errorf("connect ledger: %w", err)
		}
		res.ledger = pub
	}
	return res, nil
}

// CreateApp opens every backend from cfg and builds the Fiber app.
func CreateApp(cfg *config.Config) (*fiber.App, *Resources, error) {
	res, err := Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	deps := Deps{DB: res.DB, Rdb: res.Rdb, Registry: prometheus.NewRegistry()}
	if res.ledger != nil {
		deps.Publisher = res.ledger
	}
	deps.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return New(cfg, deps), res, nil
}

// New builds the Fiber app with all global middleware and route registration.
func New(cfg *config.Config, deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
		BodyLimit:               8 << 20,
	})

	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := metrics.New(reg)

	repo := store.NewGormStore(deps.DB)
	authSvc := &auth.Service{Principals: repo, AdminKey: cfg.AdminKey}

	var batches pubsvc.BatchStore = pubsvc.NewMemoryBatchStore()
	if deps.Rdb != nil {
		batches = cache.NewRedisBatchStore(deps.Rdb)
	}
	coordinator := &pubsvc.Coordinator{Certificates: repo, Batches: batches, Metrics: m, BatchTTL: cfg.BatchTTL}
	var relay *pubsvc.Relay
	if deps.Publisher != nil {
		relay = &pubsvc.Relay{Coordinator: coordinator, Publisher: deps.Publisher, Metrics: m}
	}

	certHandlers := &certhandler.Handlers{Service: &certsvc.Service{Certificates: repo, Principals: repo, Metrics: m}}
	verHandlers := &verhandler.Handlers{
		Engine:   &versvc.Engine{Certificates: repo, Audit: repo, Principals: repo, Metrics: m},
		Reporter: &versvc.Reporter{Certificates: repo, Audit: repo},
	}
	pubHandlers := &pubhandler.Handlers{Coordinator: coordinator, Relay: relay}
	healthHandlers := &healthhandler.Handlers{
		Service: &healthsvc.Service{
			DB:            healthsvc.GormPinger{DB: deps.DB},
			Rdb:           deps.Rdb,
			LedgerEnabled: deps.Publisher != nil,
			StartedAt:     time.Now(),
		},
		AdminKey: cfg.AdminKey,
	}

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())
	app.Use(middleware.HealthMarker(deps.Rdb))

	// --- Routes (no auth) ---
	app.Get("/health/json", healthHandlers.JSON)
	app.Get("/health/errors", healthHandlers.Errors)
	app.Get("/reset", healthHandlers.Reset)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := app.Group("/api/v1", middleware.Authenticate(authSvc))
	api.Post("/fingerprints", certHandlers.ComputeFingerprint)
	api.Get("/certificates/search/:rollNumber", certHandlers.SearchByRoll)
	api.Get("/certificates/fingerprint/:hash", certHandlers.ByFingerprint)
	api.Post("/verify", verHandlers.Verify)

	// --- Protected routes ---
	api.Get("/verify/stats", middleware.RequireAuth(), middleware.AuthorizePermission(constants.ViewVerifyStats), verHandlers.Stats)
	api.Get("/verify/history", middleware.RequireAuth(), middleware.AuthorizePermission(constants.ViewVerifyHistory), verHandlers.History)

	issue := []fiber.Handler{middleware.RequireAuth(), middleware.AuthorizePermission(constants.IssueCertificates)}
	api.Post("/certificates", append(issue, certHandlers.Create)...)
	api.Post("/certificates/bulk", append(issue, certHandlers.Bulk)...)
	api.Post("/certificates/upload", append(issue, certHandlers.Upload)...)
	api.Get("/certificates", append(issue, certHandlers.List)...)
	api.Patch("/certificates/:id/status", append(issue, certHandlers.SetStatus)...)

	pub := api.Group("/publication", middleware.RequireAuth(), middleware.AuthorizePermission(constants.PublishBatches))
	pub.Get("/prepare", pubHandlers.Prepare)
	pub.Get("/pending", pubHandlers.Pending)
	pub.Post("/stage", pubHandlers.Stage)
	pub.Post("/confirm", pubHandlers.Confirm)
	pub.Delete("/batches/:id", pubHandlers.Abandon)
	pub.Post("/publish", pubHandlers.Publish)

	log.Debug().Bool("redis", deps.Rdb != nil).Bool("ledger", deps.Publisher != nil).Msg("routes registered")
	return app
}

// Ping checks the database and Redis before the server starts listening.
func (r *Resources) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if r.Rdb != nil {
		if err := r.Rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}
