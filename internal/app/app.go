// Package app composes the service: database, graph store, Kafka pipeline,
// tracing, and the HTTP server, started in dependency order.
package app

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/startup"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/internal/platform/tracing/exporters"
	"github.com/Ramsey-B/fern/internal/repositories/matchingrule"
	"github.com/Ramsey-B/fern/internal/repositories/reconrecord"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
	graphroutes "github.com/Ramsey-B/fern/pkg/routes/graph"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	reconroutes "github.com/Ramsey-B/fern/pkg/routes/reconciliation"
	recordroutes "github.com/Ramsey-B/fern/pkg/routes/record"
	ruleroutes "github.com/Ramsey-B/fern/pkg/routes/rule"
	tenantroutes "github.com/Ramsey-B/fern/pkg/routes/tenant"
	"github.com/Ramsey-B/fern/pkg/server"
)

// Version is set at build time via ldflags
var Version = "dev"

// App owns the service lifecycle
type App struct {
	cfg     config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	sqlDB       *sqlx.DB
	db          database.DB
	ruleRepo    *matchingrule.Repository
	recordRepo  *reconrecord.Repository
	graphClient *graph.Client
	recordGraph *graph.RecordGraph
	producer    *kafka.Producer
	emitter     *events.Emitter
	service     *reconciliation.Service
	consumer    *kafka.Consumer
	checker     *health.Checker
	server      *server.Server

	// middleware attached to the HTTP server, for auth wiring and request
	// decoration by the entrypoint
	extraMiddleware []echo.MiddlewareFunc
}

func New(cfg config.Config, logger ectologger.Logger, extraMiddleware ...echo.MiddlewareFunc) *App {
	a := &App{
		cfg:             cfg,
		logger:          logger,
		extraMiddleware: extraMiddleware,
	}

	s := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	if cfg.TracingEnabled {
		s.AddDependency(tracing.NewProvider(cfg.AppName, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		}))
	}
	s.AddDependency(&dbDependency{app: a})
	if cfg.GraphDBEnabled {
		s.AddDependency(&graphDependency{app: a})
	}
	s.AddDependency(&pipelineDependency{app: a})
	s.AddDependency(&serverDependency{app: a})
	a.startup = s

	return a
}

// Run starts every dependency and blocks until the context is cancelled,
// then stops them in reverse order.
func (a *App) Run(ctx context.Context) error {
	if err := a.startup.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.startup.Stop(stopCtx)
}

// Accessors for the entrypoint and tests.

func (a *App) DB() database.DB                           { return a.db }
func (a *App) RuleRepository() *matchingrule.Repository  { return a.ruleRepo }
func (a *App) RecordRepository() *reconrecord.Repository { return a.recordRepo }
func (a *App) Service() *reconciliation.Service          { return a.service }
func (a *App) Emitter() *events.Emitter                  { return a.emitter }
func (a *App) RecordGraph() *graph.RecordGraph           { return a.recordGraph }

type dbDependency struct {
	app *App
}

func (d *dbDependency) GetName() string     { return "database" }
func (d *dbDependency) DependsOn() []string { return nil }

func (d *dbDependency) Start(ctx context.Context) error {
	a := d.app
	cfg := a.cfg

	sqlDB, err := database.Connect(ctx, database.ConnectConfig{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		Username:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}
	a.sqlDB = sqlDB

	driver, err := postgres.WithInstance(sqlDB.DB, &postgres.Config{})
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return err
	}

	a.db = database.NewDatabaseInstance(sqlDB, a.logger)
	a.ruleRepo = matchingrule.NewRepository(a.db, a.logger)
	a.recordRepo = reconrecord.NewRepository(a.db, a.logger)
	return nil
}

func (d *dbDependency) Stop(ctx context.Context) error {
	if d.app.sqlDB == nil {
		return nil
	}
	return d.app.sqlDB.Close()
}

type graphDependency struct {
	app *App
}

func (d *graphDependency) GetName() string     { return "graph" }
func (d *graphDependency) DependsOn() []string { return nil }

func (d *graphDependency) Start(ctx context.Context) error {
	a := d.app

	client, err := graph.NewClient(graph.Config{
		Host:     a.cfg.GraphDBHost,
		Port:     a.cfg.GraphDBPort,
		Username: a.cfg.GraphDBUser,
		Password: a.cfg.GraphDBPassword,
		Database: a.cfg.GraphDBName,
	}, a.logger)
	if err != nil {
		return err
	}

	if err := client.VerifyConnectivity(ctx); err != nil {
		return err
	}

	a.graphClient = client
	a.recordGraph = graph.NewRecordGraph(client, a.logger)
	return nil
}

func (d *graphDependency) Stop(ctx context.Context) error {
	if d.app.graphClient == nil {
		return nil
	}
	return d.app.graphClient.Close(ctx)
}

// pipelineDependency wires the matching pipeline: producer, emitter,
// reconciliation service, and the batch consumer.
type pipelineDependency struct {
	app *App
}

func (d *pipelineDependency) GetName() string { return "pipeline" }

func (d *pipelineDependency) DependsOn() []string {
	deps := []string{"database"}
	if d.app.cfg.GraphDBEnabled {
		deps = append(deps, "graph")
	}
	return deps
}

func (d *pipelineDependency) Start(ctx context.Context) error {
	a := d.app
	cfg := a.cfg

	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, a.logger)
	a.emitter = events.NewEmitter(a.producer, a.logger)

	matcher := matching.NewMatcher(matching.WithWorkers(cfg.MatchWorkerCount))
	builder := reconciliation.NewBuilder(cfg.SourceSystemName, cfg.TargetSystemName)
	a.service = reconciliation.NewService(a.logger, matcher, builder, a.emitter)

	if !cfg.KafkaConsumerEnabled {
		return nil
	}

	proc := processor.NewProcessor(a.logger, a.ruleRepo, a.recordRepo, a.service, a.recordGraph)
	a.consumer = kafka.NewConsumer(cfg, a.logger, proc.HandleMessage)
	return a.consumer.Start(ctx)
}

func (d *pipelineDependency) Stop(ctx context.Context) error {
	a := d.app
	if a.consumer != nil {
		if err := a.consumer.Stop(); err != nil {
			a.logger.WithError(err).Warn("Failed to stop consumer")
		}
	}
	if a.producer != nil {
		return a.producer.Close()
	}
	return nil
}

type serverDependency struct {
	app *App
}

func (d *serverDependency) GetName() string { return "http" }

func (d *serverDependency) DependsOn() []string {
	return []string{"database", "pipeline"}
}

func (d *serverDependency) Start(ctx context.Context) error {
	a := d.app

	var pinger health.GraphPinger
	if a.graphClient != nil {
		pinger = a.graphClient
	}
	var consumerHealth health.ConsumerHealth
	if a.consumer != nil {
		consumerHealth = a.consumer
	}
	a.checker = health.NewChecker(a.sqlDB, pinger, consumerHealth, Version)

	handlers := server.Handlers{
		Rules:          ruleroutes.NewHandler(a.ruleRepo, a.emitter, a.logger),
		Reconciliation: reconroutes.NewHandler(a.service, a.ruleRepo, a.recordRepo),
		Records:        recordroutes.NewHandler(a.recordRepo, a.emitter),
		Tenant:         tenantroutes.NewHandler(a.db, a.logger),
		Health:         a.checker,
	}
	if a.recordGraph != nil {
		handlers.Graph = graphroutes.NewHandler(a.recordGraph)
	}

	a.server = server.New(a.cfg, a.logger, handlers, a.extraMiddleware...)

	go func() {
		if err := a.server.Start(); err != nil {
			a.logger.WithError(err).Error("HTTP server stopped")
		}
	}()

	a.checker.SetReady(true)
	return nil
}

func (d *serverDependency) Stop(ctx context.Context) error {
	a := d.app
	if a.server == nil {
		return nil
	}
	a.checker.SetReady(false)
	return a.server.Shutdown(ctx)
}
