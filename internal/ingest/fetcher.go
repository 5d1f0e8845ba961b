package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"github.com/mktgdata/similarweb-ingest/internal/similarweb"
)

// ProviderClient is the slice of the similarweb client the fetcher needs.
type ProviderClient interface {
	Visits(ctx context.Context, domain string, p similarweb.Params) (similarweb.VisitsResult, error)
	Engagement(ctx context.Context, domain string, p similarweb.Params) (similarweb.EngagementResult, error)
}

// Fetcher retrieves and normalizes one domain's traffic and engagement data.
type Fetcher struct {
	provider ProviderClient
	archive  Archiver
	clock    Clock
	logger   *zap.Logger
}

// NewFetcher constructs a Fetcher.
func NewFetcher(provider ProviderClient, archive Archiver, clock Clock, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		provider: provider,
		archive:  archive,
		clock:    clock,
		logger:   logger,
	}
}

// FetchDomain returns one Row per date bucket of the domain's visits series,
// with engagement attributes merged in by date where the provider returned
// them. A provider error on the visits series is fatal; a provider error on
// the engagement series degrades to null engagement fields.
func (f *Fetcher) FetchDomain(ctx context.Context, runID, domain string, p similarweb.Params) ([]Row, error) {
	visits, err := f.provider.Visits(ctx, domain, p)
	if err != nil {
		return nil, fmt.Errorf("fetch visits for %s: %w", domain, err)
	}
	f.archiveRaw(ctx, runID, domain, "visits.json", visits.Raw)

	engagement := f.fetchEngagement(ctx, runID, domain, p)

	now := f.clock.Now().UTC()
	rows := make([]Row, 0, len(visits.Points))
	for _, pt := range visits.Points {
		date, err := civil.ParseDate(pt.Date)
		if err != nil {
			return nil, fmt.Errorf("parse visits date %q for %s: %w", pt.Date, domain, err)
		}
		row := Row{
			Domain:     domain,
			Date:       date,
			Visits:     nullFloat(pt.Visits),
			Source:     Source,
			IngestedAt: now,
		}
		if e, ok := engagement[pt.Date]; ok {
			row.AvgVisitDuration = nullFloat(e.AvgVisitDuration)
			row.PagesPerVisit = nullFloat(e.PagesPerVisit)
			row.BounceRate = nullFloat(e.BounceRate)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// fetchEngagement tolerates provider-side failures: a non-2xx engagement
// response yields an empty map so the visits rows survive with null
// engagement fields. Transport and decode errors are also swallowed here
// since the engagement series is strictly additive.
func (f *Fetcher) fetchEngagement(ctx context.Context, runID, domain string, p similarweb.Params) map[string]similarweb.Engagement {
	res, err := f.provider.Engagement(ctx, domain, p)
	if err != nil {
		var apiErr *similarweb.APIError
		if errors.As(err, &apiErr) {
			f.logger.Debug("engagement series unavailable",
				zap.String("domain", domain),
				zap.Int("status", apiErr.StatusCode),
			)
		} else {
			f.logger.Warn("engagement fetch failed",
				zap.String("domain", domain),
				zap.Error(err),
			)
		}
		return nil
	}
	f.archiveRaw(ctx, runID, domain, "visits-duration.json", res.Raw)
	return res.ByDate
}

func (f *Fetcher) archiveRaw(ctx context.Context, runID, domain, name string, data []byte) {
	if f.archive == nil || len(data) == 0 {
		return
	}
	object := path.Join(runID, domain, name)
	if _, err := f.archive.Save(ctx, object, "application/json", data); err != nil {
		f.logger.Warn("archive raw payload failed",
			zap.String("object", object),
			zap.Error(err),
		)
	}
}
