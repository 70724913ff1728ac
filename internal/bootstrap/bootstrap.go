package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nreshetnikov/image-recognition-service/internal/config"
	"github.com/nreshetnikov/image-recognition-service/internal/core/ports"
	"github.com/nreshetnikov/image-recognition-service/internal/core/usecase"
	"github.com/nreshetnikov/image-recognition-service/internal/infrastructure/callback"
	"github.com/nreshetnikov/image-recognition-service/internal/infrastructure/fingerprint"
	"github.com/nreshetnikov/image-recognition-service/internal/infrastructure/queue/nats"
	"github.com/nreshetnikov/image-recognition-service/internal/infrastructure/recognition/visionapi"
	"github.com/nreshetnikov/image-recognition-service/internal/infrastructure/repository/postgres"
	"github.com/nreshetnikov/image-recognition-service/internal/infrastructure/resilience"
	"github.com/nreshetnikov/image-recognition-service/internal/infrastructure/storage/localfs"
)

// App wires the durable stores, the event bus and the use cases shared by
// the api, worker and dispatcher binaries.
type App struct {
	Config config.Config

	Bus   *nats.EventBus
	Tasks ports.TaskRepository
	Cache ports.ResultCache

	IntakeUC   ports.TaskIntake
	UploadUC   ports.BlobReceiver
	CallbackUC ports.CallbackDispatcher

	Storage  ports.ObjectStorage
	Provider ports.RecognitionProvider

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	tasks := postgres.NewTaskRepository(db)
	if err := tasks.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure tasks schema: %w", err)
	}
	cache := postgres.NewCacheRepository(db)
	if err := cache.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure cache schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	bus, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSStorageSubject, cfg.NATSTasksSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("init event bus: %w", err)
	}

	provider := visionapi.New(cfg.ProviderURL, cfg.ProviderTimeout())
	sender := callback.New(cfg.CallbackUserAgent)

	intakeUC := usecase.NewIntakeUseCase(tasks, cfg.MaxFileSizeBytes)
	uploadUC := usecase.NewUploadUseCase(tasks, storage, fingerprint.New(), bus)
	callbackUC := usecase.NewCallbackUseCase(tasks, sender, logger, cfg.CallbackTimeout())

	return &App{
		Config: cfg,

		Bus:   bus,
		Tasks: tasks,
		Cache: cache,

		IntakeUC:   intakeUC,
		UploadUC:   uploadUC,
		CallbackUC: callbackUC,

		Storage:  storage,
		Provider: provider,

		closeFn: func() {
			bus.Close()
			_ = db.Close()
		},
	}, nil
}

// NewRecognizeUseCase builds the orchestrator on top of the app's stores.
// The worker binary passes instrumented cache/provider decorators in.
func (a *App) NewRecognizeUseCase(cache ports.ResultCache, provider ports.RecognitionProvider, logger *slog.Logger) ports.RecognitionProcessor {
	return usecase.NewRecognizeUseCase(
		a.Tasks,
		cache,
		a.Storage,
		provider,
		a.Bus,
		logger,
		a.Config.MaxFileSizeBytes,
		a.Config.CacheLifetime(),
	)
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
