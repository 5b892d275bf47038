package models

import (
	"time"
)

// User represents a user account in the database.
type User struct {
	ID          int64
	Username    string
	Email       string
	DisplayName string
	IsAdmin     bool
}

// Actor identifies who performed a status change.
type Actor struct {
	Name  string
	Email string
}

// SystemActor is recorded for changes made by automatic reconciliation.
var SystemActor = Actor{Name: "System"}

// Developer is the owning organisation of a set of projects.
type Developer struct {
	ID            string `json:"_id"`
	DeveloperTag  string `json:"developerTag"`
	DeveloperName string `json:"developerName,omitempty"`
}

// Project belongs to a developer through its _id.
type Project struct {
	ID          string `json:"_id"`
	ProjectTag  string `json:"projectTag"`
	ProjectName string `json:"projectName,omitempty"`
	Developer   string `json:"developer"`
}

// Camera is a camera record. Developer and Project hold the owning _id values.
type Camera struct {
	ID                string       `json:"_id"`
	Camera            string       `json:"camera"`
	Developer         string       `json:"developer"`
	Project           string       `json:"project"`
	MaintenanceStatus CameraStatus `json:"maintenanceStatus"`
}

// StatusHistoryEntry is one immutable audit record of a flag transition.
type StatusHistoryEntry struct {
	ID               string     `json:"_id"`
	CameraID         string     `json:"cameraId"`
	CameraName       string     `json:"cameraName"`
	DeveloperID      string     `json:"developerId"`
	ProjectID        string     `json:"projectId"`
	StatusType       StatusFlag `json:"statusType"`
	Action           string     `json:"action"`
	IsActive         bool       `json:"isActive"`
	PerformedBy      string     `json:"performedBy"`
	PerformedByEmail string     `json:"performedByEmail"`
	PerformedAt      time.Time  `json:"performedAt"`
}

// NewHistoryEntry builds the audit record for a flag that was flipped to value.
func NewHistoryEntry(cam *Camera, flag StatusFlag, value bool, actor Actor, at time.Time) StatusHistoryEntry {
	action := "off"
	if value {
		action = "on"
	}
	by := actor.Name
	if by == "" {
		by = "Unknown"
	}
	return StatusHistoryEntry{
		CameraID:         cam.ID,
		CameraName:       cam.Camera,
		DeveloperID:      cam.Developer,
		ProjectID:        cam.Project,
		StatusType:       flag,
		Action:           action,
		IsActive:         value,
		PerformedBy:      by,
		PerformedByEmail: actor.Email,
		PerformedAt:      at,
	}
}

// Ref is an embedded reference to another record.
type Ref struct {
	ID string `json:"_id"`
}

// Assignment describes where an inventory item is currently installed.
type Assignment struct {
	Developer    Ref      `json:"developer"`
	Project      Ref      `json:"project"`
	Camera       string   `json:"camera"`
	AssignedDate FlexTime `json:"assignedDate"`
}

// Device is the hardware description of an inventory item.
type Device struct {
	Type         string `json:"type"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Model        string `json:"model,omitempty"`
}

// InventoryItem is a piece of hardware that may be assigned to a camera.
type InventoryItem struct {
	ID                string      `json:"_id"`
	Device            Device      `json:"device"`
	Status            string      `json:"status"`
	ValidityDays      FlexNumber  `json:"validityDays"`
	EstimatedAge      FlexNumber  `json:"estimatedAge"`
	CurrentAssignment *Assignment `json:"currentAssignment,omitempty"`
	CreatedDate       FlexTime    `json:"createdDate"`
}

// DeviceType holds the nominal service life for a class of device.
type DeviceType struct {
	ID           string     `json:"_id"`
	Name         string     `json:"name"`
	ValidityDays FlexNumber `json:"validityDays"`
}

// MemoryRecord describes the memory card installed in a camera.
type MemoryRecord struct {
	ID              string     `json:"_id"`
	Developer       string     `json:"developer"`
	Project         string     `json:"project"`
	Camera          string     `json:"camera"`
	Status          string     `json:"status"`
	ShutterCount    FlexNumber `json:"shutterCount"`
	MemoryAvailable any        `json:"memoryAvailable,omitempty"`
}
