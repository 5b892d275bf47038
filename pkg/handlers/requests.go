package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"camera-fleet/pkg/auth"
	"camera-fleet/pkg/models"
)

// renderRequestBody is the client payload for both request types.
type renderRequestBody struct {
	DeveloperTag string `json:"developerTag" binding:"required"`
	ProjectTag   string `json:"projectTag" binding:"required"`
	Camera       string `json:"camera" binding:"required"`
	StartDate    string `json:"startDate" binding:"required"`
	EndDate      string `json:"endDate" binding:"required"`
	StartHour    string `json:"startHour"`
	EndHour      string `json:"endHour"`
	FrameRate    int    `json:"frameRate"`
	Resolution   string `json:"resolution"`
	ShowDate     bool   `json:"showDate"`
	DateFormat   string `json:"dateFormat"`
	Caption      string `json:"caption"`
	Watermark    string `json:"watermark"`
	Logo         bool   `json:"logo"`
	LogoPosition string `json:"logoPosition"`
}

func (h *Handlers) enqueue(c *gin.Context, typ models.RequestType) {
	var body renderRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	req := models.RenderRequest{
		Type:         typ,
		DeveloperTag: body.DeveloperTag,
		ProjectTag:   body.ProjectTag,
		Camera:       body.Camera,
		StartDate:    body.StartDate,
		EndDate:      body.EndDate,
		StartHour:    body.StartHour,
		EndHour:      body.EndHour,
		RequestedBy:  auth.CurrentActor(c).Name,
	}
	if typ == models.RequestVideo {
		req.FrameRate = body.FrameRate
		req.Resolution = body.Resolution
		req.Overlay = models.OverlayOptions{
			ShowDate:     body.ShowDate,
			DateFormat:   body.DateFormat,
			Caption:      body.Caption,
			Watermark:    body.Watermark,
			LogoPosition: body.LogoPosition,
		}
		if body.Logo {
			req.Overlay.LogoPath = h.LogoPath
		}
	}

	saved, err := h.Jobs.Enqueue(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.Dispatcher != nil {
		h.Dispatcher.Notify()
	}
	c.JSON(http.StatusCreated, saved)
}

// HandleRequestVideo queues a timelapse video render.
func (h *Handlers) HandleRequestVideo(c *gin.Context) {
	h.enqueue(c, models.RequestVideo)
}

// HandleRequestPhoto queues a photo archive.
func (h *Handlers) HandleRequestPhoto(c *gin.Context) {
	h.enqueue(c, models.RequestPhoto)
}

// HandleListRequests lists render requests, optionally for one developerTag.
func (h *Handlers) HandleListRequests(c *gin.Context) {
	reqs, err := h.Jobs.List(c.Request.Context(), c.Query("developerTag"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// HandleGetRequest returns one render request.
func (h *Handlers) HandleGetRequest(c *gin.Context) {
	req, err := h.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
