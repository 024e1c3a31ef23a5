// services/hal/internal/worker/measure_worker.go
package worker

import (
	"context"
	"errors"
	"time"

	"bme280-go/services/hal/internal/halcore"
	"bme280-go/services/hal/internal/util"

	logger "github.com/d2r2/go-logger"
)

var lg = logger.NewPackageLogger("worker", logger.InfoLevel)

// MeasureWorker owns one I²C bus: every Trigger and Collect for adaptors on
// that bus runs on its goroutine, one at a time.
type MeasureWorker struct {
	busID string
	cfg   halcore.WorkerConfig
	reqQ  chan halcore.MeasureReq
	sink  chan<- halcore.Result // fan-in sink owned by service

	done     <-chan struct{}
	stopped  chan struct{}
	pending  map[string]*collectItem
	want     map[string]bool
	collects []*collectItem
	timer    *time.Timer
}

type collectItem struct {
	id      string
	adaptor halcore.Adaptor
	due     time.Time
	retries int
}

func New(busID string, cfg halcore.WorkerConfig, sink chan<- halcore.Result) *MeasureWorker {
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = 100 * time.Millisecond
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = 250 * time.Millisecond
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 15 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 6
	}
	if cfg.InputQueueSize <= 0 {
		cfg.InputQueueSize = 16
	}
	return &MeasureWorker{
		busID:   busID,
		cfg:     cfg,
		reqQ:    make(chan halcore.MeasureReq, cfg.InputQueueSize),
		sink:    sink,
		pending: map[string]*collectItem{},
		want:    map[string]bool{},
		stopped: make(chan struct{}),
		timer:   time.NewTimer(time.Hour),
	}
}

// Submit queues a request without blocking; prio requests wait briefly for
// space. It reports whether the request was queued.
func (w *MeasureWorker) Submit(req halcore.MeasureReq) bool {
	select {
	case w.reqQ <- req:
		return true
	default:
	}
	if req.Prio {
		select {
		case w.reqQ <- req:
			return true
		case <-time.After(5 * time.Millisecond):
		}
	}
	lg.Debugf("%s: queue full, dropped request for %s", w.busID, req.ID)
	return false
}

func (w *MeasureWorker) Start(ctx context.Context) {
	if !w.timer.Stop() {
		util.DrainTimer(w.timer)
	}
	w.done = ctx.Done()
	go w.loop(ctx)
}

// Wait blocks until the loop started by Start has returned. Once it does, no
// adaptor call is in flight on the bus.
func (w *MeasureWorker) Wait() {
	<-w.stopped
}

func (w *MeasureWorker) loop(ctx context.Context) {
	defer close(w.stopped)
	for {
		if next := w.minDue(); next.IsZero() {
			util.ResetTimer(w.timer, time.Hour)
		} else {
			util.ResetTimer(w.timer, time.Until(next))
		}
		select {
		case <-ctx.Done():
			return
		case req := <-w.reqQ:
			if _, ok := w.pending[req.ID]; ok {
				if req.Prio {
					w.want[req.ID] = true
				}
				continue
			}
			w.trigger(ctx, &collectItem{id: req.ID, adaptor: req.Adaptor})
		case <-w.timer.C:
			w.collectDue(ctx, time.Now())
		}
	}
}

// trigger starts a cycle for it and schedules its collect.
func (w *MeasureWorker) trigger(ctx context.Context, it *collectItem) {
	tctx, cancel := context.WithTimeout(ctx, w.cfg.TriggerTimeout)
	after, err := it.adaptor.Trigger(tctx)
	cancel()
	if err != nil {
		w.emit(halcore.Result{ID: it.id, Err: err})
		return
	}
	it.retries = 0
	it.due = time.Now().Add(after)
	w.pending[it.id] = it
	w.collects = append(w.collects, it)
}

func (w *MeasureWorker) collectDue(ctx context.Context, now time.Time) {
	var keep, again []*collectItem
	for _, it := range w.collects {
		if now.Before(it.due) {
			keep = append(keep, it)
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, w.cfg.CollectTimeout)
		s, err := it.adaptor.Collect(cctx)
		cancel()
		switch {
		case err == nil:
			delete(w.pending, it.id)
			delete(w.want, it.id)
			w.emit(halcore.Result{ID: it.id, Sample: s})
		case errors.Is(err, halcore.ErrNotReady) && it.retries < w.cfg.MaxRetries:
			it.retries++
			it.due = now.Add(w.cfg.RetryBackoff)
			keep = append(keep, it)
		default:
			delete(w.pending, it.id)
			w.emit(halcore.Result{ID: it.id, Err: err})
			if w.want[it.id] {
				delete(w.want, it.id)
				again = append(again, it)
			}
		}
	}
	w.collects = keep
	// A read_now that arrived mid-cycle gets a fresh cycle.
	for _, it := range again {
		w.trigger(ctx, it)
	}
}

func (w *MeasureWorker) emit(r halcore.Result) {
	if r.Err != nil {
		lg.Debugf("%s: %s: %v", w.busID, r.ID, r.Err)
	}
	select {
	case w.sink <- r:
	case <-w.done:
	}
}

func (w *MeasureWorker) minDue() time.Time {
	var min time.Time
	for _, it := range w.collects {
		if min.IsZero() || it.due.Before(min) {
			min = it.due
		}
	}
	return min
}
