package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes records older than the retention window on a cron
// schedule.
type Pruner struct {
	storage  Storage
	days     int
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewPruner builds a pruner keeping days of history and running on the
// given standard 5-field cron schedule.
func NewPruner(storage Storage, days int, schedule string, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		storage:  storage,
		days:     days,
		schedule: schedule,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules pruning. With days == 0 retention is unlimited and the
// scheduler never starts.
func (p *Pruner) Start() error {
	if p.days <= 0 {
		p.logger.Info("ledger retention unlimited, pruner not scheduled")
		return nil
	}

	if _, err := cron.ParseStandard(p.schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", p.schedule, err)
	}
	if _, err := p.cron.AddFunc(p.schedule, func() {
		if _, err := p.Prune(context.Background()); err != nil {
			p.logger.Error("ledger pruning failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("schedule retention pruning: %w", err)
	}

	p.cron.Start()
	p.logger.Info("ledger pruner scheduled",
		slog.String("schedule", p.schedule),
		slog.Int("retention_days", p.days))
	return nil
}

// Prune deletes everything older than the retention window once, returning
// the number of deleted records.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -p.days)
	deleted, err := p.storage.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("ledger pruned",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff))
	}
	return deleted, nil
}

// Stop halts the scheduler and waits for a running prune to finish.
func (p *Pruner) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}
