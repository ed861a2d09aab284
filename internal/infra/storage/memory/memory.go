package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
	"github.com/vietddude/cogcall/internal/infra/storage"
)

// CallRecordRepo keeps call records in process memory.
type CallRecordRepo struct {
	mu      sync.RWMutex
	records []domain.CallRecord
	byID    map[string]int
}

func NewCallRecordRepo() *CallRecordRepo {
	return &CallRecordRepo{byID: make(map[string]int)}
}

func (r *CallRecordRepo) InsertBatch(ctx context.Context, records []domain.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		if i, ok := r.byID[rec.ID]; ok {
			r.records[i] = rec
			continue
		}
		r.byID[rec.ID] = len(r.records)
		r.records = append(r.records, rec)
	}
	return nil
}

func (r *CallRecordRepo) GetByID(ctx context.Context, id string) (*domain.CallRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec := r.records[i]
	return &rec, nil
}

func (r *CallRecordRepo) List(ctx context.Context, q storage.RecordQuery) ([]domain.CallRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	r.mu.RLock()
	var out []domain.CallRecord
	for _, rec := range r.records {
		if matches(rec, q) {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *CallRecordRepo) Summarize(ctx context.Context, q storage.RecordQuery) ([]domain.KindSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sums := make(map[domain.OperationKind]*domain.KindSummary)
	elapsed := make(map[domain.OperationKind]int64)
	for _, rec := range r.records {
		if !matches(rec, q) {
			continue
		}
		s, ok := sums[rec.Kind]
		if !ok {
			s = &domain.KindSummary{Kind: rec.Kind}
			sums[rec.Kind] = s
		}
		s.TotalRequests++
		if rec.Success {
			s.SuccessCount++
		} else {
			s.FailureCount++
		}
		s.TotalVolume += rec.Volume
		s.TotalCost += rec.Cost
		elapsed[rec.Kind] += rec.ElapsedMs
	}

	out := make([]domain.KindSummary, 0, len(sums))
	for kind, s := range sums {
		s.AvgElapsedMs = float64(elapsed[kind]) / float64(s.TotalRequests)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (r *CallRecordRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0]
	var deleted int64
	for _, rec := range r.records {
		if rec.CreatedAt.Before(t) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept

	r.byID = make(map[string]int, len(kept))
	for i, rec := range kept {
		r.byID[rec.ID] = i
	}
	return deleted, nil
}

func matches(rec domain.CallRecord, q storage.RecordQuery) bool {
	if !q.Since.IsZero() && rec.CreatedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !rec.CreatedAt.Before(q.Until) {
		return false
	}
	if q.Kind != "" && rec.Kind != q.Kind {
		return false
	}
	return true
}
