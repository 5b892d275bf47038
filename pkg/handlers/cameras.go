package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"camera-fleet/pkg/archive"
	"camera-fleet/pkg/auth"
	"camera-fleet/pkg/models"
)

func (h *Handlers) archivePath(c *gin.Context) string {
	return h.MediaURL + "/" + c.Param("developerTag") + "/" + c.Param("projectTag") + "/" + c.Param("camera") + "/"
}

// HandleCameraHealth checks one camera and reconciles its automatic flags.
func (h *Handlers) HandleCameraHealth(c *gin.Context) {
	rep, err := h.Reconciler.CheckCamera(c.Request.Context(), c.Param("developerTag"), c.Param("projectTag"), c.Param("camera"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// HandleCameraPictures returns the first and last images and the images of
// two days, date1 and date2 (YYYYMMDD), both optional.
func (h *Handlers) HandleCameraPictures(c *gin.Context) {
	var body struct {
		Date1 string `json:"date1" form:"date1"`
		Date2 string `json:"date2" form:"date2"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBind(&body); err != nil {
			badRequest(c, err)
			return
		}
	}

	images, err := h.Reader.ListImages(c.Param("developerTag"), c.Param("projectTag"), c.Param("camera"))
	if err != nil {
		respondError(c, err)
		return
	}
	set, err := archive.Pictures(images, body.Date1, body.Date2)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"firstPhoto":  set.FirstPhoto,
		"lastPhoto":   set.LastPhoto,
		"date1Photos": set.Date1Photos,
		"date2Photos": set.Date2Photos,
		"path":        h.archivePath(c),
	})
}

// HandleCameraPreview returns one midday image per week since the first image.
func (h *Handlers) HandleCameraPreview(c *gin.Context) {
	images, err := h.Reader.ListImages(c.Param("developerTag"), c.Param("projectTag"), c.Param("camera"))
	if err != nil {
		respondError(c, err)
		return
	}
	weekly, err := archive.WeeklyPreview(images, h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"weeklyImages": weekly, "path": h.archivePath(c)})
}

// HandleUpdateMaintenanceStatus applies manual flag values, e.g.
// {"photoDirty": true, "betterView": false}, on behalf of the caller.
func (h *Handlers) HandleUpdateMaintenanceStatus(c *gin.Context) {
	var body map[string]bool
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	values := make(map[models.StatusFlag]bool, len(body))
	for k, v := range body {
		values[models.StatusFlag(k)] = v
	}

	cam, changed, err := h.Reconciler.ToggleStatus(c.Request.Context(), c.Param("id"), values, auth.CurrentActor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"camera": cam, "changed": changed})
}

// HandleStatusHistory lists every status change, oldest first.
func (h *Handlers) HandleStatusHistory(c *gin.Context) {
	entries, err := h.Reconciler.History(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// HandleCameraStatusHistory lists the status changes of one camera.
func (h *Handlers) HandleCameraStatusHistory(c *gin.Context) {
	entries, err := h.Reconciler.HistoryForCamera(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// HandleSweep runs a health sweep over every camera and reports the totals.
func (h *Handlers) HandleSweep(c *gin.Context) {
	res, err := h.Reconciler.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
