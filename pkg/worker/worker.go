package worker

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"camera-fleet/pkg/apperr"
	"camera-fleet/pkg/jobs"
	"camera-fleet/pkg/models"
)

// DefaultPollInterval is how often an idle dispatcher re-checks the queue
// without being notified.
const DefaultPollInterval = 30 * time.Second

// Queue is the persistent request queue the dispatcher drains.
type Queue interface {
	NextQueued(ctx context.Context) (*models.RenderRequest, error)
	Transition(ctx context.Context, id string, to models.RequestStatus, opts ...jobs.TransitionOption) (*models.RenderRequest, error)
}

// Processor produces the artifact for one request.
type Processor interface {
	Process(ctx context.Context, req *models.RenderRequest) (*models.RenderResult, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, req *models.RenderRequest) (*models.RenderResult, error)

func (f ProcessorFunc) Process(ctx context.Context, req *models.RenderRequest) (*models.RenderResult, error) {
	return f(ctx, req)
}

// Dispatcher runs queued requests one at a time, oldest first. Only the
// goroutine in Run touches the queue on its behalf; Notify just wakes it.
type Dispatcher struct {
	queue        Queue
	processors   map[models.RequestType]Processor
	wake         chan struct{}
	busy         atomic.Bool
	PollInterval time.Duration
}

// NewDispatcher returns a dispatcher routing each request type to its processor.
func NewDispatcher(queue Queue, processors map[models.RequestType]Processor) *Dispatcher {
	return &Dispatcher{
		queue:        queue,
		processors:   processors,
		wake:         make(chan struct{}, 1),
		PollInterval: DefaultPollInterval,
	}
}

// Notify asks the dispatcher to drain the queue. Calls made while a wake-up
// is already pending are coalesced. It never blocks.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Busy reports whether a request is being processed.
func (d *Dispatcher) Busy() bool {
	return d.busy.Load()
}

// Run drains the queue whenever notified, until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Println("Starting render dispatcher...")
	interval := d.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Render dispatcher stopped")
			return
		case <-d.wake:
		case <-ticker.C:
		}
		d.drain(ctx)
	}
}

// drain processes queued requests until none remain. A failed request does
// not stop the drain, but a request that cannot be claimed does: the next
// wake-up or poll retries it.
func (d *Dispatcher) drain(ctx context.Context) {
	for ctx.Err() == nil {
		req, err := d.queue.NextQueued(ctx)
		if err != nil {
			log.Printf("Error getting next queued request: %v", err)
			return
		}
		if req == nil {
			return
		}
		if !d.runOne(ctx, req) {
			return
		}
	}
}

// runOne claims and processes req. It returns false when req could not be
// moved to starting.
func (d *Dispatcher) runOne(ctx context.Context, req *models.RenderRequest) bool {
	d.busy.Store(true)
	defer d.busy.Store(false)

	if _, err := d.queue.Transition(ctx, req.ID, models.StatusStarting); err != nil {
		log.Printf("Error starting request %s: %v", req.ID, err)
		return false
	}
	log.Printf("Processing %s request %s for %s/%s/%s", req.Type, req.ID, req.DeveloperTag, req.ProjectTag, req.Camera)

	var (
		res *models.RenderResult
		err error
	)
	proc, ok := d.processors[req.Type]
	if !ok {
		err = apperr.New(apperr.ValidationError, "no processor for request type %q", req.Type)
	} else {
		res, err = d.process(ctx, proc, req)
	}

	if err != nil {
		log.Printf("Error processing request %s: %v", req.ID, err)
		if _, terr := d.queue.Transition(context.WithoutCancel(ctx), req.ID, models.StatusFailed, jobs.WithError(err)); terr != nil {
			log.Printf("Error marking request %s failed: %v", req.ID, terr)
		}
		return true
	}
	if _, err := d.queue.Transition(context.WithoutCancel(ctx), req.ID, models.StatusReady, jobs.WithResult(res)); err != nil {
		log.Printf("Error marking request %s ready: %v", req.ID, err)
		return true
	}
	log.Printf("Request %s completed successfully", req.ID)
	return true
}

// process runs one processor, turning a panic into a failure so the
// dispatcher keeps serving the queue.
func (d *Dispatcher) process(ctx context.Context, proc Processor, req *models.RenderRequest) (res *models.RenderResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.New(apperr.EncodeFailure, "processor panic: %v", r)
		}
	}()
	return proc.Process(ctx, req)
}
