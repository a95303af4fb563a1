package services

import (
	"log"
	"time"
)

// SyncScheduler runs the sync service for all users at a fixed
// interval. Failed connections are retried implicitly on the next tick.
type SyncScheduler struct {
	syncService *SyncService
	interval    time.Duration
	stopChan    chan bool
}

func NewSyncScheduler(syncService *SyncService, interval time.Duration) *SyncScheduler {
	return &SyncScheduler{
		syncService: syncService,
		interval:    interval,
		stopChan:    make(chan bool),
	}
}

// Start the scheduler
func (s *SyncScheduler) Start() {
	log.Printf("Sync scheduler started (interval: %v)", s.interval)

	// Run immediately on startup to catch up after downtime
	go s.syncService.SyncAll()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.syncService.SyncAll()
		case <-s.stopChan:
			log.Println("Sync scheduler stopped")
			return
		}
	}
}

// Stop the scheduler
func (s *SyncScheduler) Stop() {
	s.stopChan <- true
}
