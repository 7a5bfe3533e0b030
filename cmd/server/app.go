package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/cadence-api/internal/api"
	"github.com/phrazzld/cadence-api/internal/config"
	"github.com/phrazzld/cadence-api/internal/domain"
	"github.com/phrazzld/cadence-api/internal/events"
	"github.com/phrazzld/cadence-api/internal/generation"
	"github.com/phrazzld/cadence-api/internal/platform/gemini"
	"github.com/phrazzld/cadence-api/internal/platform/musicapi"
	"github.com/phrazzld/cadence-api/internal/platform/objectstore"
	"github.com/phrazzld/cadence-api/internal/platform/postgres"
	"github.com/phrazzld/cadence-api/internal/platform/tokencrypt"
	"github.com/phrazzld/cadence-api/internal/platform/youtube"
	"github.com/phrazzld/cadence-api/internal/realtime"
	"github.com/phrazzld/cadence-api/internal/service"
	"github.com/phrazzld/cadence-api/internal/service/auth"
	"github.com/phrazzld/cadence-api/internal/task"
	"github.com/redis/go-redis/v9"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *redis.Client

	// Auth
	jwtService  auth.JWTService
	stateSigner *auth.StateSigner
	stateLedger api.StateLedger

	// Services
	contents   *service.ContentService
	dispatcher *service.Dispatcher
	reconciler *service.Reconciler
	poller     *service.Poller
	thumbnails *service.ThumbnailService
	oauth      *service.OAuthManager

	// Realtime
	hub    *realtime.Hub
	broker *realtime.RedisBroker

	// Event system
	emitter *events.InMemoryEventEmitter

	// Task handling
	taskRunner *task.TaskRunner

	background sync.WaitGroup
}

// newApplication wires every dependency. Nothing starts running until Run.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	app.stateSigner, err = auth.NewStateSigner(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state signer: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	sealer, err := tokencrypt.New(cfg.Auth.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token encryption: %w", err)
	}
	uow := postgres.NewUnitOfWork(db, sealer, logger)

	provider, err := musicapi.NewClient(musicapi.Config{
		BaseURL:           cfg.Provider.BaseURL,
		APIKey:            cfg.Provider.APIKey,
		Model:             cfg.Provider.Model,
		MaxRetries:        cfg.Provider.MaxRetries,
		RetryDelay:        cfg.Provider.RetryDelay(),
		RequestTimeout:    cfg.Provider.RequestTimeout(),
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize music provider client: %w", err)
	}

	objects, err := objectstore.NewMinioStore(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare artwork bucket: %w", err)
	}

	// Realtime fan-out: the notifier publishes either straight to the local
	// hub or through redis, which relays to the hub of every instance.
	app.hub = realtime.NewHub(originChecker(cfg.Server.Origins()), logger)
	var publisher realtime.Publisher = app.hub
	if cfg.Redis.URL != "" {
		app.redis, err = realtime.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		app.broker = realtime.NewRedisBroker(app.redis, realtime.DefaultChannel, app.hub, logger)
		publisher = app.broker
		app.stateLedger = auth.NewRedisStateLedger(app.redis)
		logger.Info("realtime redis bridge enabled")
	} else {
		app.stateLedger = auth.NewMemoryStateLedger()
	}

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterChangeHandler(realtime.NewNotifier(publisher, logger))

	app.contents, err = service.NewContentService(uow, app.emitter, app.emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create content service: %w", err)
	}

	var dispatchOpts []service.DispatcherOption
	if cfg.LLM.GeminiAPIKey != "" {
		writer, err := gemini.NewWriter(ctx, cfg.LLM, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize prompt writer: %w", err)
		}
		dispatchOpts = append(dispatchOpts, service.WithPromptWriter(writer))
		logger.Info("prompt writer enabled", "model", cfg.LLM.ModelName)
	}

	app.dispatcher, err = service.NewDispatcher(
		uow,
		provider,
		service.NewQuotaGuard(domain.MaxTracksPerContent, logger),
		generation.AverageTrackPolicy(cfg.Provider.AverageTrackSeconds),
		app.emitter,
		service.DispatcherConfig{
			Model:       cfg.Provider.Model,
			CallbackURL: webhookURL(cfg.Provider),
		},
		logger,
		dispatchOpts...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	app.reconciler, err = service.NewReconciler(uow, app.emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler: %w", err)
	}

	app.poller, err = service.NewPoller(uow, provider, app.reconciler, service.PollerConfig{
		Interval:         cfg.Task.PollInterval(),
		MaxFetchFailures: cfg.Task.MaxFetchFailures,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create poller: %w", err)
	}

	app.thumbnails, err = service.NewThumbnailService(uow, objects, app.emitter, app.emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create thumbnail service: %w", err)
	}

	app.oauth, err = service.NewOAuthManager(uow.Repos().Credentials, youtube.NewClient(cfg.Youtube, logger), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth manager: %w", err)
	}

	app.taskRunner = task.NewTaskRunner(task.TaskRunnerConfig{
		WorkerCount: cfg.Task.WorkerCount,
		QueueSize:   cfg.Task.QueueSize,
		TaskTimeout: task.DefaultTaskRunnerConfig().TaskTimeout,
	}, logger)
	taskHandler := task.NewTaskFactoryEventHandler(app.taskRunner, logger)
	taskHandler.Register(events.TaskTypeThumbnailDerivative, task.NewThumbnailTaskFactory(app.thumbnails))
	taskHandler.Register(events.TaskTypeGenerationPoll, task.NewPollTaskFactory(app.poller))
	app.emitter.RegisterHandler(taskHandler)

	logger.Info("application initialized successfully")
	return app, nil
}

// Run starts background work and serves HTTP until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	bgCtx, cancelBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		cancelBackground()
		app.cleanup()
	}()

	// Unfinished thumbnail jobs are re-enqueued before the server accepts
	// new uploads.
	app.taskRunner.Start(bgCtx, app.thumbnails)

	app.goBackground(func() { app.poller.Run(bgCtx) })
	if app.broker != nil {
		app.goBackground(func() {
			if err := app.broker.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				app.logger.Error("realtime redis bridge stopped", "error", err)
			}
		})
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (app *application) goBackground(fn func()) {
	app.background.Add(1)
	go func() {
		defer app.background.Done()
		fn()
	}()
}

// cleanup handles graceful shutdown of application resources. Callers cancel
// background work first.
func (app *application) cleanup() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if app.taskRunner != nil {
		app.taskRunner.Stop(stopCtx)
	}
	app.background.Wait()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
}

// webhookURL appends the shared secret to the configured callback URL.
func webhookURL(cfg config.ProviderConfig) string {
	u, err := url.Parse(cfg.CallbackURL)
	if err != nil {
		return cfg.CallbackURL
	}
	q := u.Query()
	q.Set("token", cfg.WebhookSecret)
	u.RawQuery = q.Encode()
	return u.String()
}

// originChecker allows websocket upgrades from the listed origins. With no
// list the gorilla same-origin check applies.
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(origins, func(o string) bool {
			return strings.EqualFold(o, origin)
		})
	}
}
