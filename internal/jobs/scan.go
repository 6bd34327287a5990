// Package jobs holds the background loops: the periodic scan that
// drives deliveries and the daily retention sweep.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// CycleRunner is what the scan loop drives once per tick.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// ScanJob ticks the coordinator. Each run gets its own deadline so a
// hung store call cannot overlap into the next tick.
type ScanJob struct {
	runner   CycleRunner
	interval time.Duration
	timeout  time.Duration
	done     chan struct{}
}

func NewScanJob(runner CycleRunner, interval, timeout time.Duration) *ScanJob {
	return &ScanJob{
		runner:   runner,
		interval: interval,
		timeout:  timeout,
		done:     make(chan struct{}),
	}
}

func (j *ScanJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("timeout", j.timeout).Msg("scan job started")
}

func (j *ScanJob) Stop() {
	close(j.done)
	log.Info().Msg("scan job stopped")
}

func (j *ScanJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.scan()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.scan()
		}
	}
}

func (j *ScanJob) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.runner.RunCycle(ctx); err != nil {
		// Store-wide failure. The cycle already counted it; rows are
		// untouched and the next tick retries from scratch.
		log.Error().Err(err).Msg("scan cycle aborted")
	}
}
