package tracking

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"delivro/models"
	"delivro/repository"
)

// JitterAmplitude is the maximum wobble per tick in degrees, matching the
// live fleet map's drift.
const JitterAmplitude = 0.001

// Jitter wobbles tracked drivers' positions on an independent periodic
// timer per driver, feeding the live fleet map. It only ever writes the
// position fields; BUSY drivers are skipped because their position belongs
// to the delivery feed while en route.
type Jitter struct {
	drivers repository.DriverRepositoryI
	tick    time.Duration

	mu    sync.Mutex
	rnd   *rand.Rand
	stops map[int64]chan struct{}
	wg    sync.WaitGroup
}

// NewJitter creates a fleet jitter with the given tick (default 3s).
func NewJitter(drivers repository.DriverRepositoryI, tick time.Duration) *Jitter {
	if tick <= 0 {
		tick = 3 * time.Second
	}
	return &Jitter{
		drivers: drivers,
		tick:    tick,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		stops:   make(map[int64]chan struct{}),
	}
}

// Track starts the wobble timer for one driver. Tracking an already
// tracked driver is a no-op.
func (j *Jitter) Track(driverID int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.stops[driverID]; ok {
		return
	}
	stop := make(chan struct{})
	j.stops[driverID] = stop
	j.wg.Add(1)
	go j.run(driverID, stop)
}

// Untrack stops the wobble timer for one driver.
func (j *Jitter) Untrack(driverID int64) {
	j.mu.Lock()
	stop, ok := j.stops[driverID]
	if ok {
		delete(j.stops, driverID)
	}
	j.mu.Unlock()
	if ok {
		close(stop)
	}
}

// Stop tears down all timers and waits for their goroutines to exit.
func (j *Jitter) Stop() {
	j.mu.Lock()
	for id, stop := range j.stops {
		close(stop)
		delete(j.stops, id)
	}
	j.mu.Unlock()
	j.wg.Wait()
}

func (j *Jitter) run(driverID int64, stop chan struct{}) {
	defer j.wg.Done()
	ticker := time.NewTicker(j.tick)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		d, err := j.drivers.GetByID(ctx, driverID)
		if err != nil || d == nil {
			continue
		}
		if d.Status == models.DriverStatusBusy {
			continue
		}
		dLat, dLng := j.delta(), j.delta()
		_ = j.drivers.UpdatePosition(ctx, driverID, d.Lat+dLat, d.Lng+dLng)
	}
}

func (j *Jitter) delta() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return (j.rnd.Float64() - 0.5) * JitterAmplitude
}
