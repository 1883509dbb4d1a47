package pricing

import (
	"context"
	"errors"

	"github.com/kaidolaptops/price-scraper/internal/models"
)

// Recorder receives finished batches, e.g. to persist or publish them.
type Recorder interface {
	Record(ctx context.Context, results []models.PriceResult) error
}

// Recorders fans a batch out to every recorder and joins their errors.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, results []models.PriceResult) error {
	var errs []error
	for _, r := range rs {
		if err := r.Record(ctx, results); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
