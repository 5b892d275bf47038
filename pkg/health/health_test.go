package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camera-fleet/pkg/apperr"
	"camera-fleet/pkg/archive"
	"camera-fleet/pkg/config"
	"camera-fleet/pkg/database"
	"camera-fleet/pkg/models"
	"camera-fleet/pkg/resolver"
	"camera-fleet/pkg/store"
)

// 14:00 on 2025-03-10 in the operational zone; yesterday is 20250309.
var fixedNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	rec    *Reconciler
	store  *store.Store
	reader *archive.Reader
	ctx    context.Context
}

func setupFixture(t *testing.T) *fixture {
	config.AppConfig.DataDir = t.TempDir()
	config.AppConfig.DatabasePath = filepath.Join(config.AppConfig.DataDir, "health.db")
	database.InitDB()
	t.Cleanup(func() { database.GetDB().Close() })

	s := store.New(database.GetDB())
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, store.Developers, "d1", models.Developer{DeveloperTag: "acme"}))
	require.NoError(t, s.Insert(ctx, store.Projects, "p1", models.Project{ProjectTag: "tower", Developer: "d1"}))
	require.NoError(t, s.Insert(ctx, store.Cameras, "c1", models.Camera{Camera: "cam1", Developer: "d1", Project: "p1"}))

	reader := archive.NewReader(filepath.Join(t.TempDir(), "upload"), "large")
	policy := Policy{
		LowImagesThreshold: 40,
		ShutterCountLimit:  10000,
		Location:           time.FixedZone("UTC+4", 4*3600),
		SweepConcurrency:   2,
	}
	rec := NewReconciler(s, resolver.New(s, reader), reader, policy)
	rec.now = func() time.Time { return fixedNow }
	return &fixture{rec: rec, store: s, reader: reader, ctx: ctx}
}

func (f *fixture) addImages(t *testing.T, camera, day string, n int) {
	t.Helper()
	dir := f.reader.CameraDir("acme", "tower", camera)
	require.NoError(t, os.MkdirAll(dir, 0755))
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s%02d%02d00.jpg", day, (i/60)%24, i%60)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
}

func (f *fixture) camera(t *testing.T, id string) models.Camera {
	t.Helper()
	var cam models.Camera
	require.NoError(t, f.store.Get(f.ctx, store.Cameras, id, &cam))
	return cam
}

func (f *fixture) history(t *testing.T) []models.StatusHistoryEntry {
	t.Helper()
	h, err := f.rec.History(f.ctx)
	require.NoError(t, err)
	return h
}

func TestLowImagesFlipsOnWithOneHistoryEntry(t *testing.T) {
	f := setupFixture(t)
	f.addImages(t, "cam1", "20250309", 25)
	f.addImages(t, "cam1", "20250308", 50)

	rep, err := f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)
	assert.Equal(t, DayCount{Date: "2025-03-09", Count: 25}, rep.FirstDay)
	assert.Equal(t, DayCount{Date: "2025-03-08", Count: 50}, rep.SecondDay)
	assert.Equal(t, 75, rep.TotalImages)
	assert.True(t, rep.Signals.LowImages)
	assert.Equal(t, []models.StatusFlag{models.FlagLowImages}, rep.Changed)

	cam := f.camera(t, "c1")
	st := cam.MaintenanceStatus[models.FlagLowImages]
	assert.True(t, st.Active)
	require.NotNil(t, st.MarkedAt)
	assert.True(t, fixedNow.Equal(*st.MarkedAt))
	assert.Equal(t, "System", st.MarkedBy)

	h := f.history(t)
	require.Len(t, h, 1)
	assert.Equal(t, models.FlagLowImages, h[0].StatusType)
	assert.Equal(t, "on", h[0].Action)
	assert.True(t, h[0].IsActive)
	assert.Equal(t, "System", h[0].PerformedBy)
	assert.Equal(t, "c1", h[0].CameraID)
	assert.Equal(t, "d1", h[0].DeveloperID)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := setupFixture(t)
	f.addImages(t, "cam1", "20250309", 10)

	_, err := f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)
	before := f.camera(t, "c1").MaintenanceStatus
	entries := len(f.history(t))

	f.rec.now = func() time.Time { return fixedNow.Add(time.Minute) }
	rep, err := f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)
	assert.Empty(t, rep.Changed)
	assert.Equal(t, before, f.camera(t, "c1").MaintenanceStatus)
	assert.Len(t, f.history(t), entries)
}

func TestThresholdBoundary(t *testing.T) {
	f := setupFixture(t)
	f.addImages(t, "cam1", "20250309", 40)

	rep, err := f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)
	assert.False(t, rep.Signals.LowImages)
	assert.Empty(t, f.history(t))
}

func TestMissingArchiveCountsAsEmpty(t *testing.T) {
	f := setupFixture(t)

	rep, err := f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)
	assert.Equal(t, "No pictures found in camera directory", rep.Message)
	assert.True(t, rep.Signals.LowImages)
	assert.Equal(t, 0, rep.TotalImages)
}

func TestWrongTime(t *testing.T) {
	f := setupFixture(t)
	f.addImages(t, "cam1", "20250309", 45)
	f.addImages(t, "cam1", "20000101", 1)

	rep, err := f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)
	assert.True(t, rep.Signals.WrongTime)
	assert.False(t, rep.Signals.LowImages)
	assert.Equal(t, []models.StatusFlag{models.FlagWrongTime}, rep.Changed)
}

func TestShutterExpiry(t *testing.T) {
	f := setupFixture(t)
	f.addImages(t, "cam1", "20250309", 45)
	require.NoError(t, f.store.Insert(f.ctx, store.Memories, "m0", map[string]any{
		"developer": "acme", "project": "tower", "camera": "cam1", "status": "removed", "shutterCount": 50000,
	}))
	require.NoError(t, f.store.Insert(f.ctx, store.Memories, "m1", map[string]any{
		"developer": "acme", "project": "tower", "camera": "cam1", "status": "active",
		"shutterCount": "10,000", "memoryAvailable": "12GB",
	}))

	rep, err := f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)
	assert.False(t, rep.Signals.ShutterExpiry)
	assert.True(t, rep.HasMemoryAssigned)
	assert.Equal(t, "12GB", rep.MemoryAvailable)

	require.NoError(t, f.store.Patch(f.ctx, store.Memories, "m1", map[string]any{"shutterCount": "10,001"}))
	rep, err = f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)
	assert.True(t, rep.Signals.ShutterExpiry)
	assert.Equal(t, []models.StatusFlag{models.FlagShutterExpiry}, rep.Changed)
}

func TestDeviceExpiryAddsAgeContributions(t *testing.T) {
	f := setupFixture(t)
	f.addImages(t, "cam1", "20250309", 45)
	require.NoError(t, f.store.Insert(f.ctx, store.DeviceTypes, "dt1", map[string]any{"name": "router", "validityDays": 100}))
	assigned := fixedNow.AddDate(0, 0, -60).Format(time.RFC3339)
	require.NoError(t, f.store.Insert(f.ctx, store.Inventory, "i1", map[string]any{
		"device":       map[string]any{"type": "router"},
		"status":       "assigned",
		"validityDays": 1000,
		"estimatedAge": 30,
		"currentAssignment": map[string]any{
			"developer": map[string]any{"_id": "d1"}, "project": map[string]any{"_id": "p1"},
			"camera": "cam1", "assignedDate": assigned,
		},
	}))

	// 100 - (30 + 60) = 10 days left.
	rep, err := f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)
	assert.False(t, rep.Signals.DeviceExpiry)

	require.NoError(t, f.store.Patch(f.ctx, store.Inventory, "i1", map[string]any{"estimatedAge": "40"}))
	rep, err = f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)
	assert.True(t, rep.Signals.DeviceExpiry)
}

func TestValidityLeft(t *testing.T) {
	created := models.FlexTime{Time: fixedNow.AddDate(0, 0, -10)}
	item := models.InventoryItem{
		Device:       models.Device{Type: "cam-body"},
		ValidityDays: models.FlexNumber{Value: 20, Valid: true},
		CreatedDate:  created,
	}
	assert.Equal(t, 10.0, ValidityLeft(item, nil, fixedNow))

	types := []models.DeviceType{{Name: "cam-body", ValidityDays: models.FlexNumber{Value: 5, Valid: true}}}
	assert.Equal(t, -5.0, ValidityLeft(item, types, fixedNow))

	item.ValidityDays = models.FlexNumber{}
	item.CreatedDate = models.FlexTime{}
	assert.Equal(t, 365.0, ValidityLeft(item, nil, fixedNow))
}

func TestToggleStatusValidation(t *testing.T) {
	f := setupFixture(t)
	alice := models.Actor{Name: "Alice", Email: "alice@example.com"}

	_, _, err := f.rec.ToggleStatus(f.ctx, "c1", map[models.StatusFlag]bool{}, alice)
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	_, _, err = f.rec.ToggleStatus(f.ctx, "c1", map[models.StatusFlag]bool{models.FlagShutterExpiry: true}, alice)
	assert.True(t, apperr.Is(err, apperr.ValidationError))

	_, _, err = f.rec.ToggleStatus(f.ctx, "missing", map[models.StatusFlag]bool{models.FlagPhotoDirty: true}, alice)
	assert.True(t, apperr.Is(err, apperr.NotFound))
	assert.Empty(t, f.history(t))
}

func TestToggleStatusRecordsActor(t *testing.T) {
	f := setupFixture(t)
	alice := models.Actor{Name: "Alice", Email: "alice@example.com"}

	cam, changed, err := f.rec.ToggleStatus(f.ctx, "c1", map[models.StatusFlag]bool{
		models.FlagPhotoDirty: true,
		models.FlagBetterView: false,
	}, alice)
	require.NoError(t, err)
	assert.Equal(t, []models.StatusFlag{models.FlagPhotoDirty}, changed)
	assert.True(t, cam.MaintenanceStatus.Active(models.FlagPhotoDirty))
	assert.Equal(t, "Alice", cam.MaintenanceStatus[models.FlagPhotoDirty].MarkedBy)

	h, err := f.rec.HistoryForCamera(f.ctx, "c1")
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, "Alice", h[0].PerformedBy)
	assert.Equal(t, "alice@example.com", h[0].PerformedByEmail)

	// A later automatic pass leaves the manual flag alone.
	f.addImages(t, "cam1", "20250309", 45)
	_, err = f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)
	assert.True(t, f.camera(t, "c1").MaintenanceStatus.Active(models.FlagPhotoDirty))
}

func TestManualAndAutomaticShareBookkeeping(t *testing.T) {
	f := setupFixture(t)
	alice := models.Actor{Name: "Alice"}

	f.addImages(t, "cam1", "20250309", 5)
	_, err := f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)
	first := *f.camera(t, "c1").MaintenanceStatus[models.FlagLowImages].MarkedAt

	f.rec.now = func() time.Time { return fixedNow.Add(time.Hour) }
	_, _, err = f.rec.ToggleStatus(f.ctx, "c1", map[models.StatusFlag]bool{models.FlagLowImages: false}, alice)
	require.NoError(t, err)

	f.rec.now = func() time.Time { return fixedNow.Add(2 * time.Hour) }
	_, err = f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)

	st := f.camera(t, "c1").MaintenanceStatus[models.FlagLowImages]
	assert.True(t, st.Active)
	assert.True(t, first.Equal(*st.MarkedAt))
	assert.Equal(t, "Alice", st.RemovedBy)
	assert.Len(t, f.history(t), 3)
}

func TestConcurrentToggleAndCheckKeepBothFlags(t *testing.T) {
	f := setupFixture(t)
	f.addImages(t, "cam1", "20250309", 5)
	alice := models.Actor{Name: "Alice"}

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := f.rec.ToggleStatus(f.ctx, "c1", map[models.StatusFlag]bool{models.FlagPhotoDirty: true}, alice)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.rec.CheckCamera(f.ctx, "acme", "tower", "cam1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	st := f.camera(t, "c1").MaintenanceStatus
	assert.True(t, st.Active(models.FlagPhotoDirty))
	assert.True(t, st.Active(models.FlagLowImages))
	assert.Equal(t, "Alice", st[models.FlagPhotoDirty].MarkedBy)

	perFlag := map[models.StatusFlag]int{}
	for _, e := range f.history(t) {
		perFlag[e.StatusType]++
	}
	assert.Equal(t, 1, perFlag[models.FlagLowImages])
	assert.Equal(t, 1, perFlag[models.FlagPhotoDirty])
}

func TestComputeSignalsUsesGivenMemory(t *testing.T) {
	f := setupFixture(t)
	target, err := f.rec.resolver.ByTags(f.ctx, "acme", "tower", "cam1")
	require.NoError(t, err)

	worn := &models.MemoryRecord{Status: "active", ShutterCount: models.FlexNumber{Value: 20000, Valid: true}}
	s, err := f.rec.ComputeSignals(f.ctx, target, nil, worn, fixedNow)
	require.NoError(t, err)
	assert.True(t, s.ShutterExpiry)
	assert.True(t, s.LowImages)

	s, err = f.rec.ComputeSignals(f.ctx, target, nil, nil, fixedNow)
	require.NoError(t, err)
	assert.False(t, s.ShutterExpiry)
}

func TestCheckCameraUnknownTags(t *testing.T) {
	f := setupFixture(t)
	_, err := f.rec.CheckCamera(f.ctx, "acme", "tower", "nope")
	assert.True(t, apperr.Is(err, apperr.LookupInconsistency))
}

func TestSweepIsolatesCameras(t *testing.T) {
	f := setupFixture(t)
	require.NoError(t, f.store.Insert(f.ctx, store.Cameras, "c2", models.Camera{Camera: "cam2", Developer: "d1", Project: "p1"}))
	require.NoError(t, f.store.Insert(f.ctx, store.Cameras, "c3", models.Camera{Camera: "orphan", Developer: "gone", Project: "p1"}))
	f.addImages(t, "cam1", "20250309", 45)

	res, err := f.rec.Sweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1, res.Changed)

	assert.False(t, f.camera(t, "c1").MaintenanceStatus.Active(models.FlagLowImages))
	assert.True(t, f.camera(t, "c2").MaintenanceStatus.Active(models.FlagLowImages))
}
