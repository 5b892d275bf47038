package health

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"camera-fleet/pkg/apperr"
	"camera-fleet/pkg/models"
	"camera-fleet/pkg/store"
)

// SweepResult summarises one pass over every camera.
type SweepResult struct {
	Checked  int           `json:"checked"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Changed  int           `json:"changed"`
	Duration time.Duration `json:"duration"`
}

// Sweep health-checks every camera. Cameras whose developer or project no longer
// resolves are logged and skipped, and a failure on one camera never stops the
// others. At most policy.SweepConcurrency cameras are checked at once.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var res SweepResult

	cameras, err := store.ListAs[models.Camera](ctx, r.store, store.Cameras)
	if err != nil {
		return res, err
	}

	limit := int64(r.policy.SweepConcurrency)
	if limit < 1 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, cam := range cameras {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Printf("Health sweep interrupted: %v", err)
			break
		}
		wg.Add(1)
		go func(cam models.Camera) {
			defer wg.Done()
			defer sem.Release(1)

			changed, err := r.sweepOne(ctx, cam)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case apperr.Is(err, apperr.LookupInconsistency):
				log.Printf("Health sweep: skipping camera %s: %v", cam.ID, err)
				res.Skipped++
			case err != nil:
				log.Printf("Health sweep: camera %s failed: %v", cam.ID, err)
				res.Failed++
			default:
				res.Checked++
				res.Changed += changed
			}
		}(cam)
	}
	wg.Wait()

	res.Duration = time.Since(start)
	log.Printf("Health sweep finished: %d checked, %d skipped, %d failed, %d flag changes in %s",
		res.Checked, res.Skipped, res.Failed, res.Changed, res.Duration)
	return res, ctx.Err()
}

func (r *Reconciler) sweepOne(ctx context.Context, cam models.Camera) (int, error) {
	target, err := r.resolver.ForCamera(ctx, cam)
	if err != nil {
		return 0, err
	}
	rep, err := r.checkTarget(ctx, target)
	if err != nil {
		return 0, err
	}
	return len(rep.Changed), nil
}
