package models

import "time"

// RequestType distinguishes the artifacts a render request produces.
type RequestType string

const (
	RequestVideo RequestType = "video"
	RequestPhoto RequestType = "photo"
)

// RequestStatus is a state in the render request lifecycle.
type RequestStatus string

const (
	StatusQueued   RequestStatus = "queued"
	StatusStarting RequestStatus = "starting"
	StatusReady    RequestStatus = "ready"
	StatusFailed   RequestStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to RequestStatus) bool {
	switch from {
	case StatusQueued:
		return to == StatusStarting
	case StatusStarting:
		return to == StatusReady || to == StatusFailed
	default:
		return false
	}
}

// OverlayOptions controls what is drawn over the rendered frames.
type OverlayOptions struct {
	ShowDate     bool   `json:"showDate"`
	DateFormat   string `json:"dateFormat,omitempty"`
	Caption      string `json:"caption,omitempty"`
	Watermark    string `json:"watermark,omitempty"`
	LogoPath     string `json:"logoPath,omitempty"`
	LogoPosition string `json:"logoPosition,omitempty"`
}

// HasText reports whether any text filter is requested.
func (o OverlayOptions) HasText() bool {
	return o.ShowDate || o.Caption != "" || o.Watermark != ""
}

// RenderResult is attached to a request when it reaches ready.
type RenderResult struct {
	OutputPath string  `json:"outputPath"`
	FileName   string  `json:"fileName"`
	URL        string  `json:"url,omitempty"`
	Size       int64   `json:"size"`
	Duration   float64 `json:"duration,omitempty"`
	FrameCount int     `json:"frameCount"`
	FrameRate  int     `json:"frameRate,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
}

// RenderRequest is one queued video or photo-zip job.
type RenderRequest struct {
	ID                 string         `json:"_id"`
	Type               RequestType    `json:"type"`
	DeveloperTag       string         `json:"developerTag"`
	ProjectTag         string         `json:"projectTag"`
	Camera             string         `json:"camera"`
	StartDate          string         `json:"startDate"`
	EndDate            string         `json:"endDate"`
	StartHour          string         `json:"startHour"`
	EndHour            string         `json:"endHour"`
	ListFile           string         `json:"listFile"`
	FilteredImageCount int            `json:"filteredImageCount"`
	FrameRate          int            `json:"frameRate,omitempty"`
	Resolution         string         `json:"resolution,omitempty"`
	Overlay            OverlayOptions `json:"overlay"`
	Status             RequestStatus  `json:"status"`
	Error              string         `json:"error,omitempty"`
	Result             *RenderResult  `json:"result,omitempty"`
	RequestedBy        string         `json:"requestedBy,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}
