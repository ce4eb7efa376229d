package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/camden-git/annotationsys/config"
	"github.com/camden-git/annotationsys/database"
	"github.com/camden-git/annotationsys/editor"
	"github.com/camden-git/annotationsys/gateway"
	"github.com/camden-git/annotationsys/handlers"
	"github.com/camden-git/annotationsys/media"
	"github.com/camden-git/annotationsys/models"
	"github.com/camden-git/annotationsys/realtime"
	"github.com/camden-git/annotationsys/repository"
	"github.com/camden-git/annotationsys/store"
	"github.com/camden-git/annotationsys/tools"
	"github.com/camden-git/annotationsys/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Infof("No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err != nil {
		log.Warnf("Unknown log level '%s', keeping %s", cfg.LogLevel, log.GetLevel())
	} else {
		log.SetLevel(level)
	}

	storagePaths := []string{cfg.UploadsPath, cfg.ThumbnailsPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Debugf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("FATAL: Failed to get database handle: %v", err)
	}
	defer sqlDB.Close()

	mediaSubDirs := map[media.AssetType]string{
		media.AssetTypeOriginal:  cfg.UploadsSubDir,
		media.AssetTypeThumbnail: cfg.ThumbnailsSubDir,
	}
	mediaStore, err := media.NewLocalStorage(cfg.MediaStoragePath, mediaSubDirs)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize media store: %v", err)
	}
	mediaProcessor := media.NewProcessor(mediaStore)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	go hub.Run(ctx)

	imageRepo := repository.NewImageRepository(db)
	var session *editor.Session

	log.Infof("Initializing thumbnail worker pool (Workers: %d, Queue Size: %d, Max Size: %dpx)...",
		cfg.NumThumbnailWorkers, cfg.ThumbnailQueueSize, cfg.ThumbnailMaxSize)
	thumbGen := workers.NewThumbnailGenerator(mediaProcessor, imageRepo, cfg.ThumbnailMaxSize, cfg.ThumbnailQueueSize, cfg.NumThumbnailWorkers,
		workers.WithOnDone(func(job workers.ThumbnailJob, thumbPath string, taskErr error) {
			ev := realtime.Event{Type: realtime.EventThumbnail, ImageID: job.ImageID, Status: models.StatusDone}
			if taskErr != nil {
				ev.Status = models.StatusFailed
				ev.Error = taskErr.Error()
			}
			if img, err := imageRepo.GetByID(job.ImageID); err == nil && session != nil {
				session.UpdateImage(*img)
			}
			hub.Broadcast(ev)
		}))
	defer thumbGen.Stop()

	service := gateway.NewLocal(db, mediaStore, thumbGen, cfg.MaxUploadFiles, cfg.MaxUploadBytes())

	annotationStore := store.New(
		store.WithHistoryLimit(cfg.HistoryLimit),
		store.WithMachine(tools.NewMachine(tools.WithBrushSize(float64(cfg.DefaultBrushSize)))),
	)
	session = editor.NewSession(annotationStore, service,
		editor.WithTimeout(cfg.GatewayTimeout),
		editor.WithPublisher(hub),
	)
	if err := session.Refresh(ctx, nil); err != nil {
		log.Errorf("Initial image list load failed: %v", err)
	}

	pending, err := imageRepo.GetImagesRequiringThumbnails()
	if err != nil {
		log.Errorf("Failed to list images requiring thumbnails: %v", err)
	}
	for _, img := range pending {
		thumbGen.QueueJob(workers.ThumbnailJob{ImageID: img.ID, OriginalRelativePath: img.FilePath})
	}
	if len(pending) > 0 {
		log.Infof("Queued %d images for thumbnail generation", len(pending))
	}

	router, err := handlers.NewRouter(handlers.Deps{
		Cfg:       cfg,
		Service:   service,
		Session:   session,
		Hub:       hub,
		Processor: mediaProcessor,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to build router: %v", err)
	}

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 5 * time.Minute, // large multi-file uploads
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Infof("Server listening on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Graceful shutdown failed: %v", err)
	}
}
