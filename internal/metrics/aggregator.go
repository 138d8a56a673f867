package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

// DayCounter counts attendance records for a day.
type DayCounter interface {
	CountByDay(ctx context.Context, day domain.Day) (int, error)
}

// Aggregator periodically refreshes gauges that are derived from storage.
type Aggregator struct {
	counter  DayCounter
	metrics  *Metrics
	logger   *slog.Logger
	interval time.Duration
	location *time.Location
	now      func() time.Time
}

func NewAggregator(counter DayCounter, m *Metrics, logger *slog.Logger, interval time.Duration, loc *time.Location) *Aggregator {
	if interval == 0 {
		interval = 1 * time.Minute
	}
	if loc == nil {
		loc = time.Local
	}

	return &Aggregator{
		counter:  counter,
		metrics:  m,
		logger:   logger.With("component", "metrics_aggregator"),
		interval: interval,
		location: loc,
		now:      time.Now,
	}
}

// Run refreshes once immediately and then on every tick until ctx is done.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("metrics aggregator started", "interval", a.interval)
	a.aggregate(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("metrics aggregator stopped")
			return
		case <-ticker.C:
			a.aggregate(ctx)
		}
	}
}

func (a *Aggregator) aggregate(ctx context.Context) {
	day := domain.DayOf(a.now().In(a.location))

	n, err := a.counter.CountByDay(ctx, day)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Error("failed to count attendance", "day", day, "error", err)
		}
		return
	}

	a.metrics.SetMarkedToday(n)
}
