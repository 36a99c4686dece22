package server

import (
	"sync"
	"time"

	"github.com/marmos91/driftfs/internal/logger"
)

// periodicJob reschedules itself after each run. The job body executes on
// the server's main loop via the post function, so jobs observe registry
// state without extra locking and a stopped job never fires again even
// if its timer already went off.
type periodicJob struct {
	name     string
	interval time.Duration
	run      func()
	post     func(func()) bool

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// startPeriodicJob schedules the first run interval from now.
func startPeriodicJob(name string, interval time.Duration, post func(func()) bool, run func()) *periodicJob {
	j := &periodicJob{
		name:     name,
		interval: interval,
		run:      run,
		post:     post,
	}
	j.arm()

	logger.Debug("scheduled periodic job", "job", j.name, "interval", interval)
	return j
}

func (j *periodicJob) arm() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopped {
		return
	}
	j.timer = time.AfterFunc(j.interval, j.fire)
}

// fire runs on the timer goroutine; the body is handed to the main loop.
func (j *periodicJob) fire() {
	posted := j.post(func() {
		j.mu.Lock()
		stopped := j.stopped
		j.mu.Unlock()
		if stopped {
			return
		}

		j.run()
		j.arm()
	})
	if !posted {
		logger.Debug("main loop gone, dropping periodic job", "job", j.name)
	}
}

// Stop prevents any further runs. A run already executing on the main
// loop finishes; the job will not rearm afterwards.
func (j *periodicJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopped = true
	if j.timer != nil {
		j.timer.Stop()
	}
}
