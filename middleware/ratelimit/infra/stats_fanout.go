package infra

import (
	"context"
	"errors"

	"parking-gateway/middleware/ratelimit/domain"
)

// FanoutStats grava o mesmo evento em vários StatsStore.
// Um store com erro não impede os demais; os erros são agregados.
type FanoutStats []domain.StatsStore

func NewFanoutStats(stores ...domain.StatsStore) FanoutStats {
	out := make(FanoutStats, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f FanoutStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range f {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
