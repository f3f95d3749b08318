package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"taskplanner/internal/realtime"
)

// SchedulerService runs the server's periodic housekeeping on cron.
type SchedulerService struct {
	cron *cron.Cron
}

func NewSchedulerService(loc *time.Location) *SchedulerService {
	if loc == nil {
		loc = time.UTC
	}
	return &SchedulerService{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds()),
	}
}

// ScheduleInterval registers a job every given duration.
func (s *SchedulerService) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), job)
}

// Schedule registers a job under a six-field cron spec.
func (s *SchedulerService) Schedule(spec string, job func()) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, job)
}

// ScheduleHeartbeat pings every live connection each interval and drops the
// ones that stopped answering.
func (s *SchedulerService) ScheduleHeartbeat(hub *realtime.Hub, interval time.Duration) (cron.EntryID, error) {
	return s.ScheduleInterval(interval, func() {
		if closed := hub.Sweep(time.Now()); closed > 0 {
			stats := hub.Stats()
			log.Printf("heartbeat closed %d connections (%d live, %d rooms)", closed, stats.Connections, stats.Rooms)
		}
	})
}

// ScheduleAPIKeyPurge deletes revoked and expired API keys on spec.
func (s *SchedulerService) ScheduleAPIKeyPurge(keys *APIKeyService, spec string) (cron.EntryID, error) {
	return s.Schedule(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		purged, err := keys.Purge(ctx)
		if err != nil {
			log.Printf("purge api keys: %v", err)
			return
		}
		if purged > 0 {
			log.Printf("purged %d api keys", purged)
		}
	})
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
