package curation

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a full curation session on a cron schedule, independent of
// chat activity. It picks up student notes and stale topics the per-request
// trigger never sees.
type Scheduler struct {
	cron    *cron.Cron
	trigger *Trigger
}

func NewScheduler(trigger *Trigger, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		trigger: trigger,
	}

	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), trigger.timeout)
		defer cancel()
		if err := trigger.RunFullCuration(ctx); err != nil {
			slog.Warn("Scheduled curation failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	slog.Info("Curation scheduler started")
	s.cron.Start()
}

// Stop halts scheduling and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Curation scheduler stopped")
}
