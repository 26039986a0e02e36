// Package tracking produces the simulated real-time position streams that
// drive the delivery-tracking and fleet-map views: one finite interpolation
// feed per OUT_FOR_DELIVERY order, and an independent jitter timer per
// driver for the live map.
package tracking

import (
	"context"
	"sync"
	"time"

	"delivro/internal/geo"
	"delivro/models"
)

// Point is one emitted feed position. Percent runs 0..100; at 100 the
// coordinate is exactly the destination.
type Point struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Percent int     `json:"percent"`
}

// StatusFunc reports the tracked order's current status. The feed calls it
// every tick and stops emitting the moment the order leaves
// OUT_FOR_DELIVERY.
type StatusFunc func(ctx context.Context) (models.OrderStatus, error)

// RelocateFunc moves the assigned driver to an interpolated position.
type RelocateFunc func(ctx context.Context, lat, lng float64) error

// Config parameterizes a feed. Zero values take the defaults: 100 steps at
// a 1-second tick.
type Config struct {
	Steps int
	Tick  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Steps <= 0 {
		c.Steps = 100
	}
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	return c
}

// Feed animates a driver from the store coordinate to the delivery
// coordinate. It is a lazy finite sequence: each tick yields the next
// interpolated point until 100% is reached or the order exits
// OUT_FOR_DELIVERY, whichever comes first. Stop cancels it at any time and
// releases the underlying timer deterministically.
type Feed struct {
	cfg      Config
	fromLat  float64
	fromLng  float64
	toLat    float64
	toLng    float64
	status   StatusFunc
	relocate RelocateFunc

	points   chan Point
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu        sync.Mutex
	latest    Point
	hasLatest bool
	completed bool
}

// StartFeed begins emission. The caller is responsible for only starting a
// feed for an order that is OUT_FOR_DELIVERY; the first tick re-checks and
// cancels otherwise. relocate may be nil.
func StartFeed(cfg Config, fromLat, fromLng, toLat, toLng float64, status StatusFunc, relocate RelocateFunc) *Feed {
	cfg = cfg.withDefaults()
	f := &Feed{
		cfg:      cfg,
		fromLat:  fromLat,
		fromLng:  fromLng,
		toLat:    toLat,
		toLng:    toLng,
		status:   status,
		relocate: relocate,
		// Buffered for the whole run so a slow consumer never stalls the
		// simulation.
		points: make(chan Point, cfg.Steps),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go f.run()
	return f
}

// Points is the stream of emitted positions. It is closed when the feed
// completes or is cancelled; no points follow closure.
func (f *Feed) Points() <-chan Point { return f.points }

// Done is closed once the feed has fully shut down.
func (f *Feed) Done() <-chan struct{} { return f.done }

// Stop cancels the feed. Safe to call more than once and after completion.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() { close(f.stop) })
}

// Latest returns the most recently emitted point, if any.
func (f *Feed) Latest() (Point, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.hasLatest
}

// Completed reports whether the feed ran to 100%. Only meaningful after
// Done is closed; false means the feed was cancelled.
func (f *Feed) Completed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *Feed) run() {
	defer close(f.done)
	defer close(f.points)
	ticker := time.NewTicker(f.cfg.Tick)
	defer ticker.Stop()

	ctx := context.Background()
	for step := 1; step <= f.cfg.Steps; step++ {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
		}
		if st, err := f.status(ctx); err != nil || st != models.OrderStatusOutForDelivery {
			// The order moved on (or away) underneath us: stop emission
			// immediately. This is cancellation, not completion.
			return
		}
		t := float64(step) / float64(f.cfg.Steps)
		lat, lng := geo.Interpolate(f.fromLat, f.fromLng, f.toLat, f.toLng, t)
		p := Point{Lat: lat, Lng: lng, Percent: int(t * 100)}

		f.mu.Lock()
		f.latest = p
		f.hasLatest = true
		if step == f.cfg.Steps {
			f.completed = true
		}
		f.mu.Unlock()

		if f.relocate != nil {
			_ = f.relocate(ctx, lat, lng)
		}
		select {
		case f.points <- p:
		case <-f.stop:
			return
		}
	}
}
