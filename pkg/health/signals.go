package health

import (
	"context"
	"math"
	"strings"
	"time"

	"camera-fleet/pkg/archive"
	"camera-fleet/pkg/models"
	"camera-fleet/pkg/resolver"
	"camera-fleet/pkg/store"
)

// WrongTimePrefix marks images taken by a camera whose clock reset to 2000.
const WrongTimePrefix = "2000"

// defaultValidityDays applies when neither the device type nor the item carries one.
const defaultValidityDays = 365

// Policy holds the thresholds the signals are computed against.
type Policy struct {
	LowImagesThreshold int
	ShutterCountLimit  float64
	Location           *time.Location
	SweepConcurrency   int
}

// Signals are the automatically derived flag values for one camera.
type Signals struct {
	LowImages     bool `json:"lowImages"`
	WrongTime     bool `json:"wrongTime"`
	ShutterExpiry bool `json:"shutterExpiry"`
	DeviceExpiry  bool `json:"deviceExpiry"`
}

// Value returns the signal for an automatic flag.
func (s Signals) Value(flag models.StatusFlag) bool {
	switch flag {
	case models.FlagLowImages:
		return s.LowImages
	case models.FlagWrongTime:
		return s.WrongTime
	case models.FlagShutterExpiry:
		return s.ShutterExpiry
	case models.FlagDeviceExpiry:
		return s.DeviceExpiry
	}
	return false
}

// DayKey formats the operational calendar day that is daysAgo before now.
func (p Policy) DayKey(now time.Time, daysAgo int) string {
	return now.In(p.location()).AddDate(0, 0, -daysAgo).Format("20060102")
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// ComputeSignals derives all automatic flags for target from its image list,
// its active memory record (nil when none) and its inventory records.
func (r *Reconciler) ComputeSignals(ctx context.Context, target *resolver.Target, images []string, mem *models.MemoryRecord, now time.Time) (Signals, error) {
	var s Signals

	yesterday := archive.FilterByDayWindow(images, r.policy.DayKey(now, 1))
	s.LowImages = len(yesterday) < r.policy.LowImagesThreshold
	s.WrongTime = hasWrongTime(images)

	if mem != nil && mem.ShutterCount.Valid {
		s.ShutterExpiry = mem.ShutterCount.Value > r.policy.ShutterCountLimit
	}

	expired, err := r.deviceExpired(ctx, target, now)
	if err != nil {
		return s, err
	}
	s.DeviceExpiry = expired
	return s, nil
}

func hasWrongTime(images []string) bool {
	for _, img := range images {
		if strings.HasPrefix(img, WrongTimePrefix) {
			return true
		}
	}
	return false
}

// activeMemory returns the first active memory record for the camera, or nil.
func (r *Reconciler) activeMemory(ctx context.Context, target *resolver.Target) (*models.MemoryRecord, error) {
	memories, err := store.ListAs[models.MemoryRecord](ctx, r.store, store.Memories)
	if err != nil {
		return nil, err
	}
	for i := range memories {
		m := &memories[i]
		if m.Developer == target.DeveloperTag() && m.Project == target.ProjectTag() &&
			m.Camera == target.CameraName() && m.Status == "active" {
			return m, nil
		}
	}
	return nil, nil
}

func (r *Reconciler) deviceExpired(ctx context.Context, target *resolver.Target, now time.Time) (bool, error) {
	items, err := store.ListAs[models.InventoryItem](ctx, r.store, store.Inventory)
	if err != nil {
		return false, err
	}
	deviceTypes, err := store.ListAs[models.DeviceType](ctx, r.store, store.DeviceTypes)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if !assignedTo(item, target) {
			continue
		}
		if ValidityLeft(item, deviceTypes, now) <= 0 {
			return true, nil
		}
	}
	return false, nil
}

func assignedTo(item models.InventoryItem, target *resolver.Target) bool {
	a := item.CurrentAssignment
	if a == nil || (item.Status != "" && item.Status != "assigned") {
		return false
	}
	if a.Developer.ID != target.Developer.ID || a.Project.ID != target.Project.ID {
		return false
	}
	return a.Camera == target.Camera.ID || a.Camera == target.CameraName()
}

// ValidityLeft returns the remaining service days of an inventory item.
// Age is the estimated age at install plus the days elapsed since the item was
// assigned, or since it was created when it has no assignment date.
func ValidityLeft(item models.InventoryItem, deviceTypes []models.DeviceType, now time.Time) float64 {
	total := float64(defaultValidityDays)
	if item.ValidityDays.Valid {
		total = item.ValidityDays.Value
	}
	for _, dt := range deviceTypes {
		if dt.Name != "" && dt.Name == item.Device.Type && dt.ValidityDays.Valid {
			total = dt.ValidityDays.Value
			break
		}
	}

	age := 0.0
	if item.EstimatedAge.Valid {
		age = item.EstimatedAge.Value
	}
	since := item.CreatedDate.Time
	if item.CurrentAssignment != nil && !item.CurrentAssignment.AssignedDate.IsZero() {
		since = item.CurrentAssignment.AssignedDate.Time
	}
	if !since.IsZero() && now.After(since) {
		age += math.Floor(now.Sub(since).Hours() / 24)
	}
	return total - age
}
