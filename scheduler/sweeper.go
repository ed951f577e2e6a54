package scheduler

import (
	"log"
	"time"

	"streetlegacy/combat"
)

// Sweeper periodically forfeits combat sessions that have gone idle past the
// round timeout. It runs independently of the request handlers; the combat
// service's per-session lease keeps the two paths from stepping on each other.
type Sweeper struct {
	service  *combat.Service
	interval time.Duration
	stop     chan struct{}
}

func NewSweeper(service *combat.Service) *Sweeper {
	interval := time.Duration(service.Tuning().SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start() {
	log.Printf("starting combat timeout sweeper (every %s)", s.interval)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				settled, err := s.service.SweepTimeouts(time.Now().UTC())
				if err != nil {
					log.Printf("sweeper: %v", err)
					continue
				}
				if settled > 0 {
					log.Printf("sweeper: forfeited %d idle sessions", settled)
				}
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop() {
	close(s.stop)
}
