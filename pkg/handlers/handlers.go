package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"camera-fleet/pkg/apperr"
	"camera-fleet/pkg/archive"
	"camera-fleet/pkg/health"
	"camera-fleet/pkg/jobs"
	"camera-fleet/pkg/models"
	"camera-fleet/pkg/stats"
)

// Dispatcher is the render worker as seen by the API.
type Dispatcher interface {
	Notify()
	Busy() bool
}

// Handlers serves the camera maintenance and render request API.
type Handlers struct {
	Reconciler *health.Reconciler
	Jobs       *jobs.Store
	Reader     *archive.Reader
	Dispatcher Dispatcher
	Stats      *stats.Cache
	// MediaURL is the public prefix the archive is served under.
	MediaURL string
	// LogoPath is the server-side logo used when a request asks for one.
	LogoPath string

	started time.Time
	now     func() time.Time
}

// New returns handlers over the given services.
func New(rec *health.Reconciler, js *jobs.Store, reader *archive.Reader, d Dispatcher, st *stats.Cache) *Handlers {
	return &Handlers{
		Reconciler: rec,
		Jobs:       js,
		Reader:     reader,
		Dispatcher: d,
		Stats:      st,
		MediaURL:   "/media/upload",
		started:    time.Now(),
		now:        time.Now,
	}
}

// respondError writes the JSON error body for err. Unclassified errors are
// logged and reported without detail.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == "" {
		log.Printf("Error handling %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal", "message": "Internal server error"})
		return
	}
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("Error handling %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": string(kind), "message": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": string(apperr.ValidationError), "message": err.Error()})
}

// HandleServiceHealth reports process, queue and host status.
func (h *Handlers) HandleServiceHealth(c *gin.Context) {
	resp := gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}
	if h.Dispatcher != nil {
		resp["workerBusy"] = h.Dispatcher.Busy()
	}
	if h.Jobs != nil {
		queued, err := h.Jobs.CountByStatus(c.Request.Context(), models.StatusQueued)
		if err != nil {
			log.Printf("Error counting queued requests: %v", err)
			resp["status"] = "degraded"
		}
		resp["queued"] = queued
	}
	if h.Stats != nil {
		resp["system"] = h.Stats.GetData()
	}
	c.JSON(http.StatusOK, resp)
}
