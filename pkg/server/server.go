package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"camera-fleet/pkg/auth"
	"camera-fleet/pkg/config"
	"camera-fleet/pkg/handlers"
)

// SetupRouter wires every API route onto a new gin engine.
func SetupRouter(h *handlers.Handlers) *gin.Engine {
	r := gin.Default()

	r.POST("/api/login", auth.LoginHandler)
	r.GET("/api/health", h.HandleServiceHealth)

	// --- Authenticated Route Group ---
	authorized := r.Group("/")
	authorized.Use(auth.AuthMiddleware())
	{
		// Archive images and finished artifacts
		authorized.Static("/media/upload", config.AppConfig.ArchiveDir)
		authorized.Static("/media/videos", config.AppConfig.VideoOutputDir)
		authorized.Static("/media/photos", config.AppConfig.PhotoOutputDir)
		authorized.Static("/media/blobs", config.AppConfig.BlobDir())

		api := authorized.Group("/api")
		api.GET("/archive/:developerTag/:projectTag/:camera/health", h.HandleCameraHealth)
		api.POST("/archive/:developerTag/:projectTag/:camera/pictures", h.HandleCameraPictures)
		api.GET("/archive/:developerTag/:projectTag/:camera/preview", h.HandleCameraPreview)

		api.PUT("/cameras/:id/maintenance-status", h.HandleUpdateMaintenanceStatus)
		api.GET("/cameras/:id/status-history", h.HandleCameraStatusHistory)
		api.GET("/status-history", h.HandleStatusHistory)

		api.POST("/requests/video", h.HandleRequestVideo)
		api.POST("/requests/photo", h.HandleRequestPhoto)
		api.GET("/requests", h.HandleListRequests)
		api.GET("/requests/:id", h.HandleGetRequest)

		api.POST("/logout", auth.LogoutHandler)

		// --- Admin-Only Route Group ---
		admin := api.Group("/")
		admin.Use(auth.AdminOnlyMiddleware())
		admin.POST("/health/sweep", h.HandleSweep)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "NotFound", "message": "route not found"})
	})
	return r
}

// ShutdownTimeout bounds how long in-flight requests may run after a stop signal.
const ShutdownTimeout = 10 * time.Second

// StartServer serves r on the configured port until ctx is cancelled, then
// stops accepting connections and waits for in-flight requests.
func StartServer(ctx context.Context, r *gin.Engine) error {
	addr := ":" + config.AppConfig.Port
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	log.Printf("Gin server starting on %s...", addr)
	return serve(ctx, &http.Server{Handler: r}, ln)
}

func serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gin server stopped: %w", err)
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Println("Server exited gracefully")
	return nil
}
