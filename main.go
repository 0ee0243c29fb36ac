package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"refcheck/config"
	"refcheck/providers/registry"
	"refcheck/services"
	"refcheck/storage"
)

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database
	db, err := storage.Open(cfg, logging)
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.", zap.String("driver", cfg.DBDriver))
	repo := storage.NewRepository(db)

	// Setup Sources
	sources := registry.Build(cfg, logging)
	if len(sources) == 0 {
		logging.Fatal("No valid sources enabled. Check ENABLED_SOURCES in .env")
	}

	// Setup Services
	a := &app{
		cfg:       cfg,
		repo:      repo,
		engine:    services.NewVerificationEngine(cfg, repo, sources, logging),
		formatter: services.NewCitationFormatter(cfg.IEEEMaxAuthors),
		log:       logging,
	}
	a.exporter = services.NewExportService(repo, a.formatter, logging)
	a.cards = services.NewCardService(repo, logging)
	a.importer = services.NewImportService(repo, services.NewPDFExtractor(services.NewTextNormalizer(logging)), nil, logging)

	pdfStore, err := storage.NewPDFStore(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	if pdfStore != nil {
		a.importer.PDFs = pdfStore
		logging.Info("PDF uploads go to S3", zap.String("bucket", cfg.S3Bucket))
	}

	router := newRouter(a)

	// Setup Cron
	reverifier := services.NewReverifier(cfg, repo, a.engine, logging)
	cronScheduler := cron.New()
	if _, err := cronScheduler.AddFunc(cfg.ReverifySchedule, func() {
		logging.Info("Running scheduled re-verification job...")
		count, err := reverifier.RunOnce(context.Background())
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
			return
		}
		logging.Info("Cron job completed", zap.Int("verified", count))
	}); err != nil {
		logging.Fatal("Invalid REVERIFY_SCHEDULE", zap.String("schedule", cfg.ReverifySchedule), zap.Error(err))
	}
	cronScheduler.Start()
	defer cronScheduler.Stop()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// newRouter baut die gin-Engine mit allen Routen.
func newRouter(a *app) *gin.Engine {
	router := gin.Default()
	router.Use(gin.Recovery())
	setupOpsRoutes(router, a)
	setupWorkRoutes(router, a)
	setupCardRoutes(router, a)
	setupExportRoutes(router, a)
	return router
}
