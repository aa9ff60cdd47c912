package di

import (
	"context"
	"fmt"

	"github.com/google/wire"
	"github.com/gorilla/mux"

	"goreels/internal/blob"
	"goreels/internal/config"
	"goreels/internal/dbmongo"
	"goreels/internal/dbmysql"
	"goreels/internal/engagement"
	"goreels/internal/feed"
	"goreels/internal/ledger"
	"goreels/internal/lock"
	"goreels/internal/logging"
	"goreels/internal/reconcile"
	"goreels/internal/reel"
	"goreels/internal/storage"
	"goreels/internal/store"
	"goreels/internal/store/memstore"
)

// App is the fully wired engine.
type App struct {
	Config   *config.Config
	Store    store.RecordStore
	Blobs    blob.Store
	Ledger   *ledger.Ledger
	Cascader *ledger.Cascader
	Recorder *engagement.Recorder
	Pipeline *reconcile.Pipeline
	Service  *feed.Service
	Handlers *feed.Handlers
}

// Router mounts the HTTP routes.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()
	a.Handlers.Register(r)
	return r
}

var EngineSet = wire.NewSet(
	ProvideRecordStore,
	ProvideBlobStore,
	ProvideLocker,
	ProvideCascader,
	ledger.New,
	ProvideRecorder,
	ProvideChecker,
	ProvidePipeline,
	ProvideService,
	ProvideHandlers,
	wire.Struct(new(App), "*"),
)

// ProvideConfig loads the environment and initializes logging from it.
func ProvideConfig() *config.Config {
	cfg := config.LoadConfig()
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	return cfg
}

func ProvideRecordStore(cfg *config.Config) (store.RecordStore, func(), error) {
	switch cfg.Store.Driver {
	case "memory":
		logging.Warn().Msg("using in-memory record store, data is not persisted")
		return memstore.New(), func() {}, nil
	case "mysql", "":
		db, err := dbmysql.NewMySQL(cfg)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return dbmysql.NewRepository(db), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.Store.Driver)
	}
}

func ProvideBlobStore(cfg *config.Config) (blob.Store, func(), error) {
	switch cfg.Blob.Driver {
	case "memory":
		logging.Warn().Msg("using in-memory blob store, media is not persisted")
		return blob.NewMemory(), func() {}, nil
	case "s3":
		client, err := storage.New(context.Background(), cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	case "gridfs", "":
		mc, err := dbmongo.NewMongoConnection(cfg)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() { _ = mc.Close(context.Background()) }
		return dbmongo.NewMediaStorage(mc), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown BLOB_DRIVER %q", cfg.Blob.Driver)
	}
}

func ProvideLocker(cfg *config.Config) (lock.Locker, func(), error) {
	switch cfg.Engine.LockDriver {
	case "redis":
		client, err := lock.ConnectRedis(cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return lock.NewRedis(client, cfg.Engine.LockTTL), func() { _ = client.Close() }, nil
	case "local", "":
		return lock.NewLocal(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown LOCK_DRIVER %q", cfg.Engine.LockDriver)
	}
}

func ProvideCascader(s store.RecordStore, cfg *config.Config) (*ledger.Cascader, func()) {
	c := ledger.NewCascader(s, cfg.Ledger.CascadeWorkers, cfg.Ledger.CascadeQueueSize)
	return c, c.Shutdown
}

func ProvideRecorder(s store.RecordStore, l lock.Locker, cfg *config.Config) *engagement.Recorder {
	return engagement.NewRecorder(s, l,
		engagement.WithScoring(reel.Scoring{
			Window:         cfg.Engine.ScoreWindow,
			Threshold:      cfg.Engine.TrendingThreshold,
			WindowComments: cfg.Engine.WindowComments,
		}),
		engagement.WithViewWindow(cfg.Engine.ViewDedupWindow),
		engagement.WithMaxRetries(cfg.Engine.MaxRetries),
	)
}

// ProvideChecker puts the breaker only on the reconciliation path; uploads
// and deletes talk to the blob store directly.
func ProvideChecker(b blob.Store, cfg *config.Config) *reconcile.Checker {
	breaker := blob.NewBreaker(b, "blob-"+cfg.Blob.Driver, cfg.Blob)
	return reconcile.NewChecker(breaker, cfg.Blob.CheckTimeout, cfg.Blob.CheckRPS, cfg.Blob.CheckBurst)
}

func ProvidePipeline(s store.RecordStore, l *ledger.Ledger, c *reconcile.Checker, cfg *config.Config) (*reconcile.Pipeline, func()) {
	p := reconcile.NewPipeline(s, l, c, cfg.Reconcile)
	return p, p.Shutdown
}

func ProvideService(s store.RecordStore, b blob.Store, l *ledger.Ledger, r *engagement.Recorder, p *reconcile.Pipeline) *feed.Service {
	return feed.NewService(s, b, l, r, p)
}

func ProvideHandlers(svc *feed.Service, p *reconcile.Pipeline, l *ledger.Ledger, s store.RecordStore, cfg *config.Config) *feed.Handlers {
	return feed.NewHandlers(svc, p, l, s, cfg.Server.MaxUploadMB)
}
