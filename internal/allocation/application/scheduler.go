package application

import (
	"context"
	"log"
	"time"

	allocation "netgen-allocation/internal/allocation/domain"
)

// Scheduler triggers allocation jobs on schedule.
type Scheduler struct {
	runner   *Runner
	years    []int
	plantIDs []int
	dailyAt  string
	logger   *log.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(runner *Runner, schedule ScheduleConfig, logger *log.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		years:    schedule.Years,
		plantIDs: schedule.PlantIDs,
		dailyAt:  schedule.DailyAt,
		logger:   logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.runner == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.runOnce(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	return now.Hour() == hour && now.Minute() == minute
}

// runOnce allocates every configured year, or the previous calendar year
// when none is configured.
func (s *Scheduler) runOnce(ctx context.Context, now time.Time) {
	years := s.years
	if len(years) == 0 {
		years = []int{now.Year() - 1}
	}
	for _, year := range years {
		req := RunRequest{
			Scope:   allocation.Scope{Year: year, PlantIDs: s.plantIDs},
			JobDate: now,
		}
		if _, err := s.runner.Run(ctx, req); err != nil && s.logger != nil {
			s.logger.Printf("allocation schedule error: year=%d err=%v", year, err)
		}
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
