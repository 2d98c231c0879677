package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/contextforge/corpus/config"
)

// Scheduler re-indexes the configured roots on a cron schedule. A redis lock
// keeps concurrent replicas from crawling the same root at once.
type Scheduler struct {
	Indexer ingestService
	Cfg     config.SchedulerConfig
	Rdb     *redis.Client
	Logger  *log.Logger
	Stop    chan struct{}

	lastRun time.Time
}

func (s *Scheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	if !s.due(time.Now()) {
		return
	}
	ctx := context.Background()
	for _, root := range s.Cfg.Roots {
		if s.Rdb != nil {
			lockKey := "corpus:sched:lock:" + root
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
			if !ok {
				continue
			}
			defer s.Rdb.Del(ctx, lockKey)
		}
		summary, err := s.Indexer.IndexDirectory(ctx, root)
		if err != nil {
			s.Logger.Printf("scheduled index of %s failed: %v", root, err)
			continue
		}
		s.Logger.Printf("scheduled index of %s: %d indexed, %d unchanged, %d skipped",
			root, summary.Indexed, summary.Unchanged, summary.Skipped)
	}
	s.lastRun = time.Now()
}

// due reports whether the schedule has fired since the last run. Supports
// "@hourly", "@daily" and 5-field cron expressions.
func (s *Scheduler) due(now time.Time) bool {
	last := s.lastRun
	switch s.Cfg.Schedule {
	case "@daily":
		return last.IsZero() || now.Sub(last) >= 24*time.Hour
	case "@hourly":
		return last.IsZero() || now.Sub(last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(s.Cfg.Schedule)
		if err != nil {
			return last.IsZero() || now.Sub(last) >= 24*time.Hour
		}
		if last.IsZero() {
			return true
		}
		return !expr.Next(last).After(now)
	}
}
