package chunkedupload

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Janitor periodically reaps expired upload sessions using the same
// Start/Stop/loop shape as the gradient worker.
type Janitor struct {
	manager  *Manager
	interval time.Duration
	stopCh   chan struct{}
}

// NewJanitor builds a Janitor that sweeps manager every interval.
func NewJanitor(manager *Manager, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{manager: manager, interval: interval, stopCh: make(chan struct{})}
}

// Start begins the background sweep loop.
func (j *Janitor) Start() {
	log.Info().Msg("starting chunked upload janitor")
	go j.loop()
}

// Stop gracefully stops the sweep loop.
func (j *Janitor) Stop() {
	log.Info().Msg("stopping chunked upload janitor")
	close(j.stopCh)
}

func (j *Janitor) loop() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := j.manager.CleanupExpired(); n > 0 {
				log.Info().Int("count", n).Msg("reaped expired upload sessions")
			}
		case <-j.stopCh:
			return
		}
	}
}
