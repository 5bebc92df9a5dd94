package repository

import (
	"context"
	"sort"
	"sync"

	"remittance-engine/internal/domain"
)

// MemoryReviewRepository keeps review items in process. Used when MongoDB
// is disabled and in tests.
type MemoryReviewRepository struct {
	mu    sync.Mutex
	items []domain.SkippedItem
}

func NewMemoryReviewRepository() *MemoryReviewRepository {
	return &MemoryReviewRepository{}
}

func (r *MemoryReviewRepository) Record(_ context.Context, item domain.SkippedItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	return nil
}

func (r *MemoryReviewRepository) ListByRemittance(_ context.Context, remittanceID string, limit int) ([]domain.SkippedItem, error) {
	if limit <= 0 {
		limit = defaultReviewLimit
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.SkippedItem, 0)
	for _, item := range r.items {
		if item.RemittanceID == remittanceID {
			out = append(out, item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
