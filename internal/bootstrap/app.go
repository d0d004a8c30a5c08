package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yahyamohmuedpro99/csv-formater/internal/gemini"
	"github.com/yahyamohmuedpro99/csv-formater/internal/keys"
	"github.com/yahyamohmuedpro99/csv-formater/internal/listmonk"
	"github.com/yahyamohmuedpro99/csv-formater/internal/process"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/config"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/server"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/storage/db"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/storage/object"
	localstore "github.com/yahyamohmuedpro99/csv-formater/internal/shared/storage/object/local"
	s3store "github.com/yahyamohmuedpro99/csv-formater/internal/shared/storage/object/s3"
)

// App holds shared dependencies.
type App struct {
	Config   config.Config
	Router   *gin.Engine
	DB       *sql.DB
	Store    object.ObjectStore
	Rotator  *keys.Rotator
	Client   gemini.Client
	Listmonk *listmonk.Client

	ProcessHandler *process.Handler
	KeysHandler    *keys.Handler
}

// Build prepares shared dependencies and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}

	if err := buildServices(ctx, app); err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:         app.Config,
		ProcessHandler: app.ProcessHandler,
		KeysHandler:    app.KeysHandler,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using file-backed usage ledger: %v", err)
			return nil, nil
		}
		return nil, err
	}

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: migrations failed; using file-backed usage ledger: %v", err)
			sqlDB.Close()
			return nil, nil
		}
		return nil, err
	}

	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildServices(ctx context.Context, app *App) error {
	cfg := app.Config

	var ledgerStore keys.Store
	if app.DB != nil {
		ledgerStore = keys.NewPGStore(app.DB)
	} else {
		ledgerStore = keys.NewFileStore(cfg.KeyUsageFile)
	}

	if len(cfg.GeminiAPIKeys) > 0 {
		rotator, err := keys.NewRotator(ctx, cfg.GeminiAPIKeys, cfg.KeyQuota, ledgerStore)
		if err != nil {
			return err
		}
		app.Rotator = rotator

		client, err := gemini.NewClient(cfg.GeminiModel)
		if err != nil {
			return err
		}
		app.Client = client
	} else {
		log.Printf("bootstrap: GEMINI_API_KEYS empty; processing endpoint disabled")
	}

	if cfg.ListmonkURL != "" {
		lm, err := listmonk.New(cfg.ListmonkURL, cfg.ListmonkUsername, cfg.ListmonkToken, cfg.ListmonkListID)
		if err != nil {
			if isDevLike(cfg.Env) {
				log.Printf("bootstrap: listmonk misconfigured; push disabled: %v", err)
			} else {
				return err
			}
		} else {
			app.Listmonk = lm
		}
	}

	app.ProcessHandler = process.NewHandler(app.Rotator, app.Client, app.Store, app.Listmonk, cfg)
	app.KeysHandler = keys.NewHandler(app.Rotator)

	if app.ProcessHandler == nil || app.KeysHandler == nil {
		return errors.New("failed to initialize handlers")
	}

	return nil
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
