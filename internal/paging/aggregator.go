package paging

import (
	"context"

	"go.uber.org/zap"

	"github.com/advisorhub/retentionservice/internal/domain"
	"github.com/advisorhub/retentionservice/internal/log"
	"github.com/advisorhub/retentionservice/internal/metrics"
)

// DefaultPageSize matches the store's single-request row cap.
const DefaultPageSize = 1000

// PageFunc fetches one page of rows at the given offset. Implementations
// must order rows by a stable key (date then id) so that offsets are
// consistent between calls.
type PageFunc[T any] func(ctx context.Context, limit, offset int) ([]T, error)

// FetchAll walks fetch page by page from offset 0 and concatenates the
// results. It stops on the first short or empty page. If any page request
// fails the whole aggregation fails with an AGGREGATION_FAILED error; no
// partial result is returned.
func FetchAll[T any](ctx context.Context, collection string, pageSize int, fetch PageFunc[T]) ([]T, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var all []T
	offset := 0
	for {
		rows, err := fetch(ctx, pageSize, offset)
		if err != nil {
			metrics.AggregationFailures.WithLabelValues(collection).Inc()
			log.Error(ctx, "Page fetch failed, aborting aggregation",
				zap.String("collection", collection),
				zap.Int("offset", offset),
				zap.Error(err))
			return nil, domain.NewAggregationError(collection, err)
		}
		metrics.PagesFetched.WithLabelValues(collection).Inc()

		all = append(all, rows...)
		if len(rows) < pageSize {
			break
		}
		offset += pageSize
	}

	metrics.AggregationRows.WithLabelValues(collection).Observe(float64(len(all)))
	return all, nil
}
