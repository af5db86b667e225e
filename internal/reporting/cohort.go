package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/advisorhub/retentionservice/internal/domain"
	"github.com/advisorhub/retentionservice/internal/metrics"
	"github.com/advisorhub/retentionservice/internal/paging"
)

// FunnelCohortReport groups leads by the calendar month they were created
// and tracks downstream conversion and revenue retention by month offset
// since conversion. Offsets whose calendar month lies in the future are
// flagged isFuture and carry no percentage; they are never rendered as 0%.
func (r *Reporter) FunnelCohortReport(ctx context.Context, from, to time.Time) ([]domain.CohortBucket, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "FunnelCohortReport")
	defer span.End()
	defer metrics.ObserveReport("cohort", time.Now())

	from = domain.MonthStart(from)
	to = domain.MonthStart(to)
	if !from.Before(to) {
		return nil, domain.NewInvalidInputError("empty date range",
			fmt.Sprintf("from %s, to %s", domain.MonthKey(from), domain.MonthKey(to)))
	}

	leads, err := paging.FetchAll(ctx, "leads", r.cfg.PageSize,
		func(ctx context.Context, limit, offset int) ([]domain.Lead, error) {
			return r.store.Lead().ListByCreatedRange(ctx, from, to, limit, offset)
		})
	if err != nil {
		return nil, err
	}

	cohorts := make(map[string][]domain.Lead)
	for _, lead := range leads {
		key := domain.MonthKey(lead.CreatedAt)
		cohorts[key] = append(cohorts[key], lead)
	}

	nowMonth := domain.MonthStart(r.Now())
	maxOffset := r.cfg.TrailingMonths - 1

	var report []domain.CohortBucket
	for key, cohortLeads := range cohorts {
		bucket := domain.CohortBucket{
			CohortMonth: key,
			TotalLeads:  len(cohortLeads),
		}
		cohortMonth, _ := time.Parse("2006-01", key)

		// Revenue months per tracked lead, keyed by its conversion month
		type trackedLead struct {
			convMonth time.Time
			revMonths map[string]bool
		}
		var tracked []trackedLead

		for _, lead := range cohortLeads {
			if lead.Status != domain.LeadStatusConverted || lead.ConvertedAt == nil {
				continue
			}
			bucket.ConvertedLeads++
			if lead.ClientID == nil {
				continue
			}

			revenue, err := paging.FetchAll(ctx, "revenue", r.cfg.PageSize,
				func(ctx context.Context, limit, offset int) ([]domain.RevenueEvent, error) {
					return r.store.Revenue().ListByClient(ctx, *lead.ClientID, limit, offset)
				})
			if err != nil {
				return nil, err
			}
			if len(revenue) == 0 {
				continue
			}

			months := make(map[string]bool, len(revenue))
			for _, e := range revenue {
				months[domain.MonthKey(e.Date)] = true
			}
			tracked = append(tracked, trackedLead{
				convMonth: domain.MonthStart(*lead.ConvertedAt),
				revMonths: months,
			})
		}
		bucket.TrackedLeads = len(tracked)

		for k := 0; k <= maxOffset; k++ {
			cell := domain.RetentionCell{Offset: k}
			if domain.AddMonths(cohortMonth, k).After(nowMonth) {
				cell.IsFuture = true
			} else if len(tracked) > 0 {
				retainedCount := 0
				for _, t := range tracked {
					if t.revMonths[domain.MonthKey(domain.AddMonths(t.convMonth, k))] {
						retainedCount++
					}
				}
				cell.Percentage = 100 * float64(retainedCount) / float64(len(tracked))
			}
			bucket.Retention = append(bucket.Retention, cell)
		}

		if bucket.TotalLeads > 0 {
			bucket.FinalConversionRate = float64(bucket.ConvertedLeads) / float64(bucket.TotalLeads)
		}
		report = append(report, bucket)
	}

	sort.Slice(report, func(i, j int) bool { return report[i].CohortMonth < report[j].CohortMonth })
	return report, nil
}

// AverageRetention averages the non-future retention cells at each offset
// across cohorts. Future cells are excluded from the average, not counted
// as zero.
func AverageRetention(report []domain.CohortBucket, offset int) (float64, bool) {
	var sum float64
	var n int
	for _, bucket := range report {
		for _, cell := range bucket.Retention {
			if cell.Offset == offset && !cell.IsFuture {
				sum += cell.Percentage
				n++
			}
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
