package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"camera-fleet/pkg/archive"
	"camera-fleet/pkg/blob"
	"camera-fleet/pkg/config"
	"camera-fleet/pkg/database"
	"camera-fleet/pkg/handlers"
	"camera-fleet/pkg/health"
	"camera-fleet/pkg/jobs"
	"camera-fleet/pkg/models"
	"camera-fleet/pkg/resolver"
	"camera-fleet/pkg/scheduler"
	"camera-fleet/pkg/server"
	"camera-fleet/pkg/services/photo"
	"camera-fleet/pkg/services/video"
	"camera-fleet/pkg/stats"
	"camera-fleet/pkg/store"
	"camera-fleet/pkg/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	cfg := &config.AppConfig

	for _, dir := range []string{cfg.DataDir, cfg.VideoOutputDir, cfg.PhotoOutputDir, cfg.RequestListDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	database.InitDB()
	if err := database.EnsureAdmin(cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to create initial admin user: %v", err)
	}

	docs := store.New(database.GetDB())
	if cfg.SeedDir != "" {
		n, err := docs.ImportLegacy(ctx, cfg.SeedDir)
		if err != nil {
			log.Fatalf("Failed to import seed data from %s: %v", cfg.SeedDir, err)
		}
		log.Printf("Imported %d seed records from %s", n, cfg.SeedDir)
	}

	reader := archive.NewReader(cfg.ArchiveDir, cfg.ArchiveSubdir)
	policy := health.Policy{
		LowImagesThreshold: cfg.LowImagesThreshold,
		ShutterCountLimit:  float64(cfg.ShutterCountLimit),
		Location:           cfg.OperationalLocation(),
		SweepConcurrency:   cfg.HealthSweepConcurrency,
	}
	tags := resolver.New(docs, reader)
	reconciler := health.NewReconciler(docs, tags, reader, policy)
	requests := jobs.NewStore(database.GetDB(), tags, reader, cfg.RequestListDir)

	var blobs blob.Store = blob.NewLocalStore(cfg.BlobDir(), "/media/blobs")
	if cfg.S3Enabled() {
		s3Store, err := blob.NewS3Store(blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			BaseURL:   cfg.S3BaseURL,
		})
		if err != nil {
			log.Fatalf("Failed to initialise S3 storage: %v", err)
		}
		blobs = s3Store
		log.Printf("Publishing artifacts to bucket %s", cfg.S3Bucket)
	}

	renderer := &video.Renderer{
		Encoder:        video.NewFFmpegEncoder(cfg.FFmpegPath),
		OutputDir:      cfg.VideoOutputDir,
		BatchSize:      cfg.VideoBatchSize,
		TargetDuration: cfg.VideoTargetDuration,
		Codec:          cfg.VideoCodec,
		CRF:            cfg.GetCRFValue(),
		Threads:        video.DefaultThreads(),
		FontPath:       cfg.FontPath,
	}
	dispatcher := worker.NewDispatcher(requests, map[models.RequestType]worker.Processor{
		models.RequestVideo: &worker.VideoProcessor{Renderer: renderer, Blobs: blobs},
		models.RequestPhoto: &worker.PhotoProcessor{Archiver: photo.NewArchiver(cfg.PhotoOutputDir), Blobs: blobs},
	})

	// Requests left in starting were cut off by the last shutdown.
	n, err := requests.RecoverInterrupted(ctx)
	if err != nil {
		log.Fatalf("Failed to recover interrupted requests: %v", err)
	}
	if n > 0 {
		log.Printf("Marked %d interrupted requests as failed", n)
	}
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatcherDone)
	}()
	dispatcher.Notify()

	systemStats := stats.NewCache(cfg.MediaPath)
	systemStats.RunUpdater()

	sweeps, err := scheduler.New(ctx, reconciler, cfg.HealthSweepSchedule)
	if err != nil {
		log.Fatalf("Invalid HEALTH_SWEEP_SCHEDULE %q: %v", cfg.HealthSweepSchedule, err)
	}
	sweeps.Start()
	log.Printf("✅ Health sweep scheduled: %s", cfg.HealthSweepSchedule)

	h := handlers.New(reconciler, requests, reader, dispatcher, systemStats)
	h.LogoPath = cfg.LogoPath
	err = server.StartServer(ctx, server.SetupRouter(h))

	// Intake has stopped. Wait for background work before closing the database.
	stop()
	sweeps.Stop()
	<-dispatcherDone
	database.GetDB().Close()
	if err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Shutdown complete")
}
