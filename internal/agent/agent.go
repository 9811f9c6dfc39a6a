package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mwantia/fabric/pkg/container"
	config "github.com/mwantia/manifest/internal/config/server"
	"github.com/mwantia/manifest/pkg/dataset"
	"github.com/mwantia/manifest/pkg/db/models"
	"github.com/mwantia/manifest/pkg/db/store"
	"github.com/mwantia/manifest/pkg/errdefs"
	"github.com/mwantia/manifest/pkg/log"
	"github.com/mwantia/manifest/pkg/reconcile"
	"github.com/mwantia/manifest/pkg/storage"
	"github.com/mwantia/manifest/pkg/tagging"
	"github.com/mwantia/manifest/pkg/tags"
)

// listenerRetry is the pause before a closed notification stream is
// subscribed again.
const listenerRetry = 5 * time.Second

type ManifestAgent struct {
	mutex sync.RWMutex
	wait  sync.WaitGroup

	cfg *config.BaseServerConfig
	sc  *container.ServiceContainer
	log log.LoggerService

	store      *store.SQLiteStore
	reconciler *reconcile.Reconciler
	metrics    *http.Server
}

func NewAgent(cfg *config.BaseServerConfig) *ManifestAgent {
	return &ManifestAgent{
		cfg: cfg,
		sc:  container.NewServiceContainer(),
		log: log.NewLoggerService("manifest", cfg.Log),
	}
}

func (a *ManifestAgent) setupServices(ctx context.Context) error {
	st, err := OpenStore(ctx, a.cfg.Metadata)
	if err != nil {
		return err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return fmt.Errorf("failed to migrate metadata store: %w", err)
	}
	a.store = st

	tagService := tags.NewService(st, a.log)
	if err := SeedTags(ctx, tagService, a.cfg.Tagging, false); err != nil {
		return fmt.Errorf("failed to seed tags: %w", err)
	}

	engine := tagging.NewEngine(st, a.log, taggingOptions(a.cfg.Tagging, a.log))
	a.reconciler = reconcile.New(st, a.log, reconcile.WithHooks(engine))

	errs := container.Errors{}

	a.log.Debug("Registering 'LoggerService'...")
	errs.Add(container.Register[log.LoggerServiceImpl](a.sc,
		container.With[log.LoggerService](),
		container.WithInstance(a.log)))

	a.log.Debug("Registering 'MetadataStore'...")
	errs.Add(container.Register[store.SQLiteStore](a.sc,
		container.With[store.MetadataStore](),
		container.WithInstance(st)))

	a.log.Debug("Registering catalog services...")
	errs.Add(container.Register[tags.Service](a.sc, container.WithInstance(tagService)))
	errs.Add(container.Register[tagging.Engine](a.sc, container.WithInstance(engine)))
	errs.Add(container.Register[dataset.Service](a.sc, container.WithInstance(dataset.NewService(st, a.log))))
	errs.Add(container.Register[reconcile.Reconciler](a.sc, container.WithInstance(a.reconciler)))

	return errs.Errors()
}

// setupInstances connects every configured MinIO instance, records it in
// the catalog and starts one listener per watched bucket.
func (a *ManifestAgent) setupInstances(ctx context.Context) error {
	for _, cfg := range a.cfg.Storage.Instances {
		objects, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Secure:    cfg.Secure,
		})
		if err != nil {
			return err
		}

		instance, err := a.upsertInstance(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to register instance '%s': %w", cfg.Name, err)
		}
		a.reconciler.Register(instance.ID, objects)

		for _, watch := range cfg.Watch {
			if watch.Sync {
				if _, err := a.reconciler.Sync(ctx, instance.ID, watch.Bucket, watch.Prefix); err != nil {
					a.log.Warn("Initial sync of %s/%s finished with errors: %v", watch.Bucket, watch.Prefix, err)
				}
			}

			a.wait.Add(1)
			go func(instanceID string, watch config.StorageWatchConfig) {
				defer a.wait.Done()

				a.log.Info("Listening on %s/%s (%s)", watch.Bucket, watch.Prefix, cfg.Name)
				if err := a.reconciler.Watch(ctx, instanceID, objects, watch.Bucket, watch.Prefix, listenerRetry); err != nil && !errors.Is(err, context.Canceled) {
					a.log.Error("Listener for %s/%s stopped: %v", watch.Bucket, watch.Prefix, err)
				}
			}(instance.ID, watch)
		}
	}
	return nil
}

func (a *ManifestAgent) upsertInstance(ctx context.Context, cfg config.StorageInstanceConfig) (*models.StorageInstance, error) {
	instance, err := a.store.GetStorageInstanceByName(ctx, cfg.Name)
	if errdefs.IsNotFound(err) {
		instance = &models.StorageInstance{
			Name:     cfg.Name,
			Endpoint: cfg.Endpoint,
			Secure:   cfg.Secure,
			OwnerID:  cfg.Owner,
		}
		return instance, a.store.CreateStorageInstance(ctx, instance)
	}
	if err != nil {
		return nil, err
	}

	instance.Endpoint = cfg.Endpoint
	instance.Secure = cfg.Secure
	instance.OwnerID = cfg.Owner
	return instance, a.store.UpdateStorageInstance(ctx, instance)
}

func (a *ManifestAgent) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.mutex.Lock()
	err := a.setupServices(ctx)
	if err == nil {
		err = a.setupInstances(ctx)
	}
	if err == nil && a.cfg.Metrics.Enabled {
		a.serveMetrics()
	}
	a.mutex.Unlock()

	if err != nil {
		cancel()
		a.wait.Wait()
		if a.store != nil {
			a.store.Close()
		}
		return err
	}

	a.log.Info("Agent started with %d storage instance(s)", len(a.cfg.Storage.Instances))
	<-ctx.Done()
	a.log.Info("Shutting down...")

	timeout, err := time.ParseDuration(a.cfg.ShutdownTimeout)
	if err != nil {
		// Set default of 60 seconds if error
		timeout = 60 * time.Second
	}

	shutdown, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	if err := a.stopMetrics(shutdown); err != nil {
		a.log.Warn("Failed to stop metrics server: %v", err)
	}
	if err := a.sc.Cleanup(shutdown); err != nil {
		return fmt.Errorf("failed to complete service container cleanup: %w", err)
	}

	a.wait.Wait()
	return a.store.Close()
}
