package initialize

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sitevault/backend/app/controllers"
	"sitevault/backend/app/export"
	"sitevault/backend/app/jobstore"
	"sitevault/backend/app/middleware"
	"sitevault/backend/app/services"
	"sitevault/backend/config"
	"sitevault/backend/global"
	"sitevault/backend/router"
)

type App struct {
	Cfg      *config.Config
	Router   http.Handler
	Export   *services.ExportService
	Manifest *services.ManifestService
	Files    *services.FileService
}

func Build(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	global.Config = cfg

	gdb, err := connectDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	global.Mdb = gdb

	global.Rdb = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	store := jobstore.New(global.Rdb, cfg.JobTTL)
	source := export.NewGormSource(gdb)
	engine := export.NewEngine(source, source.Dialect())

	exportSvc, err := services.NewExportService(engine, store, cfg.Export.Workspace, cfg.Export.Compress, cfg.Export.TimeBudget)
	if err != nil {
		return nil, err
	}
	workspaceAbs, _ := filepath.Abs(cfg.Export.Workspace)
	manifestSvc := services.NewManifestService(store, cfg.SiteRoot, workspaceAbs)
	fileSvc, err := services.NewFileService(cfg.SiteRoot)
	if err != nil {
		return nil, err
	}

	exportCtrl := controllers.NewExportController(exportSvc)
	manifestCtrl := controllers.NewManifestController(manifestSvc)
	fileCtrl := controllers.NewFileController(fileSvc)
	auth := &middleware.Auth{Key: cfg.AccessKey, KeyHash: cfg.AccessKeyHash}

	h := router.NewRouter(exportCtrl, manifestCtrl, fileCtrl, auth)
	h = middleware.Logging(h)

	return &App{
		Cfg:      cfg,
		Router:   h,
		Export:   exportSvc,
		Manifest: manifestSvc,
		Files:    fileSvc,
	}, nil
}

func connectDB(cfg config.DB) (*gorm.DB, error) {
	opts := &gorm.Config{Logger: gormlogger.Discard}
	switch cfg.Driver {
	case "sqlite":
		return gorm.Open(sqlite.Open(cfg.Path), opts)
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Pass, cfg.Host, cfg.Port, cfg.Name)
		return gorm.Open(mysql.Open(dsn), opts)
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}
