package health

import (
	"context"
	"fmt"
	"log"
	"time"

	"camera-fleet/pkg/apperr"
	"camera-fleet/pkg/archive"
	"camera-fleet/pkg/models"
	"camera-fleet/pkg/resolver"
	"camera-fleet/pkg/store"
)

// Reconciler derives camera health flags and writes them with audit history.
type Reconciler struct {
	store    *store.Store
	resolver *resolver.Resolver
	reader   *archive.Reader
	policy   Policy
	now      func() time.Time
}

// NewReconciler wires a Reconciler.
func NewReconciler(s *store.Store, res *resolver.Resolver, reader *archive.Reader, policy Policy) *Reconciler {
	return &Reconciler{store: s, resolver: res, reader: reader, policy: policy, now: time.Now}
}

// DayCount is the number of images taken on one operational day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Report is the outcome of one camera health check.
type Report struct {
	DeveloperTag      string              `json:"developerId"`
	ProjectTag        string              `json:"projectId"`
	CameraName        string              `json:"cameraId"`
	CameraID          string              `json:"camera_id"`
	FirstDay          DayCount            `json:"firstDay"`
	SecondDay         DayCount            `json:"secondDay"`
	ThirdDay          DayCount            `json:"thirdDay"`
	TotalImages       int                 `json:"totalImages"`
	HasMemoryAssigned bool                `json:"hasMemoryAssigned"`
	MemoryAvailable   any                 `json:"memoryAvailable"`
	Signals           Signals             `json:"signals"`
	Changed           []models.StatusFlag `json:"changed"`
	MaintenanceStatus models.CameraStatus `json:"maintenanceStatus"`
	Message           string              `json:"message,omitempty"`
}

// CheckCamera runs a health check for the camera addressed by tags and reconciles
// its automatic flags. A missing archive counts as a camera with no images.
func (r *Reconciler) CheckCamera(ctx context.Context, developerTag, projectTag, camera string) (*Report, error) {
	target, err := r.resolver.ByTags(ctx, developerTag, projectTag, camera)
	if err != nil {
		return nil, err
	}
	return r.checkTarget(ctx, target)
}

func (r *Reconciler) checkTarget(ctx context.Context, target *resolver.Target) (*Report, error) {
	now := r.now()
	rep := &Report{
		DeveloperTag: target.DeveloperTag(),
		ProjectTag:   target.ProjectTag(),
		CameraName:   target.CameraName(),
		CameraID:     target.Camera.ID,
		Changed:      []models.StatusFlag{},
	}

	images, err := r.reader.ListImages(target.DeveloperTag(), target.ProjectTag(), target.CameraName())
	if apperr.Is(err, apperr.ArchiveNotFound) {
		rep.Message = "No pictures found in camera directory"
		images = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to list images for %s: %w", target.CameraName(), err)
	}

	for i, dc := range []*DayCount{&rep.FirstDay, &rep.SecondDay, &rep.ThirdDay} {
		key := r.policy.DayKey(now, i+1)
		dc.Date = key[:4] + "-" + key[4:6] + "-" + key[6:]
		dc.Count = len(archive.FilterByDayWindow(images, key))
		rep.TotalImages += dc.Count
	}

	mem, err := r.activeMemory(ctx, target)
	if err != nil {
		return nil, err
	}
	if mem != nil {
		rep.HasMemoryAssigned = true
		rep.MemoryAvailable = mem.MemoryAvailable
	}

	rep.Signals, err = r.ComputeSignals(ctx, target, images, mem, now)
	if err != nil {
		return nil, err
	}
	rep.Changed, err = r.Reconcile(ctx, target.Camera.ID, rep.Signals)
	if err != nil {
		return nil, err
	}

	var cam models.Camera
	if err := r.store.Get(ctx, store.Cameras, target.Camera.ID, &cam); err != nil {
		return nil, err
	}
	rep.MaintenanceStatus = cam.MaintenanceStatus
	return rep, nil
}

// Reconcile writes the automatic flags of one camera. Each flag is compared and
// written in its own transaction against a freshly read camera, so a concurrent
// manual toggle of another flag is never overwritten. Unchanged flags produce
// no write and no history entry.
func (r *Reconciler) Reconcile(ctx context.Context, cameraID string, signals Signals) ([]models.StatusFlag, error) {
	changed := []models.StatusFlag{}
	for _, flag := range models.AutomaticFlags {
		ok, err := r.applyFlag(ctx, cameraID, flag, signals.Value(flag), models.SystemActor)
		if err != nil {
			return changed, err
		}
		if ok {
			changed = append(changed, flag)
		}
	}
	if len(changed) > 0 {
		log.Printf("Camera %s: reconciled %v", cameraID, changed)
	}
	return changed, nil
}

// ToggleStatus applies a user's explicit flag values. Only manual flags are
// accepted and at least one must be given.
func (r *Reconciler) ToggleStatus(ctx context.Context, cameraID string, values map[models.StatusFlag]bool, actor models.Actor) (*models.Camera, []models.StatusFlag, error) {
	if len(values) == 0 {
		return nil, nil, apperr.New(apperr.ValidationError, "at least one of %v must be provided", models.ManualFlags)
	}
	for flag := range values {
		if !flag.IsManual() {
			return nil, nil, apperr.New(apperr.ValidationError, "%q cannot be set manually", flag)
		}
	}

	var cam models.Camera
	if err := r.store.Get(ctx, store.Cameras, cameraID, &cam); err != nil {
		return nil, nil, err
	}

	changed := []models.StatusFlag{}
	for _, flag := range models.ManualFlags {
		value, ok := values[flag]
		if !ok {
			continue
		}
		did, err := r.applyFlag(ctx, cameraID, flag, value, actor)
		if err != nil {
			return nil, changed, err
		}
		if did {
			changed = append(changed, flag)
		}
	}

	if err := r.store.Get(ctx, store.Cameras, cameraID, &cam); err != nil {
		return nil, changed, err
	}
	return &cam, changed, nil
}

// applyFlag is the single read-modify-write path for every flag change.
func (r *Reconciler) applyFlag(ctx context.Context, cameraID string, flag models.StatusFlag, value bool, actor models.Actor) (bool, error) {
	changed := false
	err := r.store.InTx(ctx, func(tx *store.Tx) error {
		var cam models.Camera
		if err := tx.Get(ctx, store.Cameras, cameraID, &cam); err != nil {
			return err
		}
		now := r.now()
		if !cam.MaintenanceStatus.Apply(flag, value, actor, now) {
			return nil
		}
		if err := tx.Patch(ctx, store.Cameras, cameraID, map[string]any{"maintenanceStatus": cam.MaintenanceStatus}); err != nil {
			return err
		}
		entry := models.NewHistoryEntry(&cam, flag, value, actor, now)
		entry.ID = store.NewID()
		if err := tx.Insert(ctx, store.StatusHistory, entry.ID, entry); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update %s on camera %s: %w", flag, cameraID, err)
	}
	return changed, nil
}

// History returns every status history entry, oldest first.
func (r *Reconciler) History(ctx context.Context) ([]models.StatusHistoryEntry, error) {
	return store.ListAs[models.StatusHistoryEntry](ctx, r.store, store.StatusHistory)
}

// HistoryForCamera returns the status history of one camera, oldest first.
func (r *Reconciler) HistoryForCamera(ctx context.Context, cameraID string) ([]models.StatusHistoryEntry, error) {
	all, err := r.History(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.StatusHistoryEntry, 0)
	for _, e := range all {
		if e.CameraID == cameraID {
			out = append(out, e)
		}
	}
	return out, nil
}
