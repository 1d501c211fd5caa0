package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/tally/config"
	"github.com/Ramsey-B/tally/internal/repositories/activity"
	"github.com/Ramsey-B/tally/internal/repositories/memory"
	"github.com/Ramsey-B/tally/internal/repositories/reference"
	"github.com/Ramsey-B/tally/internal/repositories/resultentry"
	"github.com/Ramsey-B/tally/internal/repositories/resultsheet"
	"github.com/Ramsey-B/tally/internal/services/collation"
	"github.com/Ramsey-B/tally/internal/services/dashboard"
	"github.com/Ramsey-B/tally/pkg/database"
	"github.com/Ramsey-B/tally/pkg/health"
	"github.com/Ramsey-B/tally/pkg/kafka"
	"github.com/Ramsey-B/tally/pkg/middleware"
	"github.com/Ramsey-B/tally/pkg/redis"
	dashboardroutes "github.com/Ramsey-B/tally/pkg/routes/dashboard"
	sheetroutes "github.com/Ramsey-B/tally/pkg/routes/sheet"
	"github.com/Ramsey-B/tally/pkg/seed"
	"github.com/Ramsey-B/tally/pkg/startup"
	"github.com/Ramsey-B/tally/pkg/tracing"
	"github.com/Ramsey-B/tally/pkg/tracing/exporters"
)

const (
	depTracing  = "tracing"
	depStore    = "store"
	depSeed     = "seed"
	depRedis    = "redis"
	depKafka    = "kafka"
	depHandlers = "handlers"
)

// Version is reported by the health endpoint
var Version = "dev"

// Stores is the set of repositories the services run on
type Stores struct {
	Tx        collation.Transactor
	Sheets    resultsheet.ResultSheetRepository
	Entries   resultentry.ResultEntryRepository
	Activity  activity.ActivityRepository
	Reference reference.ReferenceRepository
}

func MemoryStores(store *memory.Store) Stores {
	return Stores{
		Tx:        store,
		Sheets:    store.Sheets(),
		Entries:   store.Entries(),
		Activity:  store.Activity(),
		Reference: store.Reference(),
	}
}

func PostgresStores(db database.DB, logger ectologger.Logger) Stores {
	return Stores{
		Tx:        db,
		Sheets:    resultsheet.NewRepository(db, logger),
		Entries:   resultentry.NewRepository(db, logger),
		Activity:  activity.NewRepository(db, logger),
		Reference: reference.NewRepository(db, logger),
	}
}

// App owns every long lived resource of the server. Resources are acquired in dependency
// order by Start and released in reverse by Stop.
type App struct {
	cfg     config.Config
	logger  ectologger.Logger
	startup *startup.Startup
	health  *health.Checker
	echo    *echo.Echo

	stores    Stores
	db        database.DB
	tracer    *tracing.Provider
	redis     *redis.Client
	cache     *redis.SnapshotCache
	publisher kafka.ActivityPublisher
}

func New(cfg config.Config, logger ectologger.Logger) *App {
	a := &App{
		cfg:       cfg,
		logger:    logger,
		startup:   startup.NewStartup(logger, cfg.StartupMaxAttempts),
		health:    health.NewChecker(Version),
		publisher: kafka.NoopPublisher{},
	}

	a.startup.AddDependency(startup.Func{Name: depTracing, OnStart: a.startTracing, OnStop: a.stopTracing})
	a.startup.AddDependency(startup.Func{Name: depStore, Requires: []string{depTracing}, OnStart: a.startStore, OnStop: a.stopStore})
	a.startup.AddDependency(startup.Func{Name: depSeed, Requires: []string{depStore}, OnStart: a.applySeed})
	a.startup.AddDependency(startup.Func{Name: depRedis, Requires: []string{depTracing}, OnStart: a.startRedis, OnStop: a.stopRedis})
	a.startup.AddDependency(startup.Func{Name: depKafka, Requires: []string{depTracing}, OnStart: a.startKafka, OnStop: a.stopKafka})
	a.startup.AddDependency(startup.Func{
		Name:     depHandlers,
		Requires: []string{depStore, depSeed, depRedis, depKafka},
		OnStart:  a.buildRouter,
	})

	return a
}

// Start acquires every dependency and builds the router
func (a *App) Start(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return err
	}
	a.health.SetReady(true)
	return nil
}

// Stop releases dependencies in reverse start order
func (a *App) Stop(ctx context.Context) error {
	a.health.SetReady(false)
	return a.startup.Stop(ctx)
}

// Handler is the HTTP entrypoint, available after Start
func (a *App) Handler() http.Handler {
	return a.echo
}

func (a *App) startTracing(ctx context.Context) error {
	var exporter sdktrace.SpanExporter = &exporters.DiscardExporter{}
	if a.cfg.TracingExporter == "otlp" {
		otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: a.cfg.TracingEndpoint,
			Protocol: a.cfg.TracingProtocol,
			Insecure: a.cfg.TracingInsecure,
		})
		if err != nil {
			return fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		exporter = otlp
	}
	a.tracer = tracing.Setup(a.cfg.AppName, a.cfg.Environment, exporter)
	return nil
}

func (a *App) stopTracing(ctx context.Context) error {
	if a.tracer == nil {
		return nil
	}
	return a.tracer.Shutdown(ctx)
}

func (a *App) startStore(ctx context.Context) error {
	if a.cfg.StoreDriver == config.StoreDriverMemory {
		a.logger.WithContext(ctx).Warn("using the in-memory store, data is lost on restart")
		a.stores = MemoryStores(memory.NewStore())
		return nil
	}

	db, err := database.Open(ctx, a.cfg.DatabaseURL(), a.cfg.DatabaseMaxOpenConns, a.logger)
	if err != nil {
		return err
	}
	if a.cfg.DatabaseMigrateOnStart {
		migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
			MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
			Version:             a.cfg.DatabaseMigrationVersion,
			Force:               a.cfg.DatabaseMigrationForce,
		})
		if err := migrations.Migrate(db.SQL(), a.cfg.DatabaseName); err != nil {
			_ = db.Close()
			return err
		}
	}

	a.db = db
	a.stores = PostgresStores(db, a.logger)
	a.health.AddCheck("database", health.PingFunc(db.PingContext), true)
	return nil
}

func (a *App) stopStore(_ context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *App) applySeed(ctx context.Context) error {
	if a.cfg.SeedFile == "" {
		return nil
	}
	ref, err := seed.LoadFile(a.cfg.SeedFile)
	if err != nil {
		return err
	}
	if err := seed.Apply(ctx, a.stores.Tx, a.stores.Reference, ref); err != nil {
		return err
	}
	a.logger.WithContext(ctx).WithFields(map[string]any{
		"file":             a.cfg.SeedFile,
		"polling_stations": len(ref.PollingStations),
		"candidates":       len(ref.Candidates),
	}).Info("Reference data loaded")
	return nil
}

func (a *App) startRedis(ctx context.Context) error {
	if a.cfg.RedisHost == "" {
		a.logger.WithContext(ctx).Info("REDIS_HOST is not set, dashboard cache disabled")
		return nil
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}

	a.redis = client
	a.cache = redis.NewSnapshotCache(client, a.cfg.DashboardCacheTTL(), "")
	a.health.AddCheck("redis", client, false)
	return nil
}

func (a *App) stopRedis(_ context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *App) startKafka(ctx context.Context) error {
	brokers := kafka.ParseBrokers(a.cfg.KafkaBrokers)
	if len(brokers) == 0 {
		a.logger.WithContext(ctx).Info("KAFKA_BROKERS is not set, activity events are not published")
		return nil
	}

	a.publisher = kafka.NewProducer(kafka.Config{
		Brokers:       brokers,
		ActivityTopic: a.cfg.KafkaActivityTopic,
		BatchSize:     a.cfg.KafkaBatchSize,
		BatchTimeout:  a.cfg.KafkaBatchTimeoutDuration(),
	}, a.logger)
	return nil
}

func (a *App) stopKafka(_ context.Context) error {
	return a.publisher.Close()
}

func (a *App) buildRouter(ctx context.Context) error {
	deps := collation.Dependencies{
		Tx:        a.stores.Tx,
		Sheets:    a.stores.Sheets,
		Entries:   a.stores.Entries,
		Activity:  a.stores.Activity,
		Reference: a.stores.Reference,
		Publisher: a.publisher,
		Logger:    a.logger,
	}
	if a.cache != nil {
		deps.Invalidator = a.cache
	}
	collationService := collation.NewService(deps)

	dashboardService := dashboard.NewService(dashboard.Dependencies{
		Sheets:           a.stores.Sheets,
		Entries:          a.stores.Entries,
		Activity:         a.stores.Activity,
		Reference:        a.stores.Reference,
		Cache:            a.cache,
		Logger:           a.logger,
		FeedDefaultLimit: a.cfg.ActivityFeedDefaultLimit,
		FeedMaxLimit:     a.cfg.ActivityFeedMaxLimit,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.AllowOrigins,
		AllowMethods: a.cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if a.cfg.AuthEnabled {
		verifier, err := middleware.NewVerifier(ctx, a.cfg.AuthIssuerURL, a.cfg.AuthClientID)
		if err != nil {
			return err
		}
		api.Use(middleware.Authentication(a.logger, verifier))
	} else {
		a.logger.WithContext(ctx).Warn("AUTH_ENABLED is false, the acting official is read from the X-User-ID header")
		api.Use(middleware.TestAuth())
	}

	sheetroutes.NewHandler(collationService).RegisterRoutes(api)
	dashboardroutes.NewHandler(dashboardService).RegisterRoutes(api)

	a.echo = e
	return nil
}
