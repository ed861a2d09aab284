package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/cogcall/internal/metrics"
)

// RecordDeleter removes call records created before a cutoff.
type RecordDeleter interface {
	DeleteOlderThan(ctx context.Context, t time.Time) (int64, error)
}

// Pruner deletes call records older than the retention period.
type Pruner struct {
	retention time.Duration
	repo      RecordDeleter
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, repo RecordDeleter) *Pruner {
	return &Pruner{
		retention: retention,
		repo:      repo,
		now:       time.Now,
	}
}

// Interval is how often the pruner runs: a tenth of the retention,
// between one minute and one hour.
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, time.Hour)
	return max(interval, time.Minute)
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one retention pass and returns the number of deleted records.
func (p *Pruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)

	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to prune call records", "cutoff", cutoff, "error", err)
		return 0
	}
	if deleted > 0 {
		metrics.RecordsPruned.Add(float64(deleted))
		slog.Info("Pruned call records", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted
}
