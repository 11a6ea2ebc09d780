// Package scheduler runs the periodic batch tick.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"cropcal/entities"
	"cropcal/pkg/calendar/service"
)

type batchTicker interface {
	TickAll(ctx context.Context, asOf time.Time) (service.TickSummary, error)
}

type Scheduler struct {
	c       *cron.Cron
	expr    string
	svc     batchTicker
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New registers the daily tick under expr, a standard five-field cron
// expression evaluated in loc.
func New(expr string, loc *time.Location, svc batchTicker, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	s := &Scheduler{
		c:       cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		expr:    expr,
		svc:     svc,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
	if _, err := s.c.AddFunc(expr, s.run); err != nil {
		return nil, fmt.Errorf("cron expression %q: %w", expr, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.c.Start()
	s.logger.Info("[cron] started", "expr", s.expr)
}

// Stop waits for a running tick to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("[cron] stop timed out; tick still running")
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	asOf := s.now()
	sum, err := s.svc.TickAll(ctx, asOf)
	if err != nil {
		s.logger.Error("[cron] tick failed", "as_of", asOf.Format(entities.DateLayout), "error", err)
		return
	}
	s.logger.Info("[cron] tick done", "as_of", sum.AsOf.Format(entities.DateLayout), "visited", sum.Visited, "failed", sum.Failed)
}
