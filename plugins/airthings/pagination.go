package airthings

import (
	"context"

	"github.com/rs/zerolog"
)

// PageFetcher returns one page of readings. Pages start at 1.
type PageFetcher func(ctx context.Context, page int) (SensorsPage, error)

// CollectPages fetches pages sequentially until the server reports no next
// page. Results are appended in page order. The walk is bounded by the
// totalPages of the first page, or by maxPages when the server does not
// report a total. Any page error discards everything collected so far.
func CollectPages(ctx context.Context, fetch PageFetcher, maxPages int, logger zerolog.Logger) ([]SensorsRecord, error) {
	if maxPages <= 0 {
		maxPages = 100
	}

	var (
		results []SensorsRecord
		bound   = maxPages
	)
	for page := 1; ; page++ {
		if ctx.Err() != nil {
			return nil, canceled(ctx)
		}

		current, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		results = append(results, current.Results...)

		if page == 1 && current.TotalPages > 0 {
			bound = current.TotalPages
		}
		if !current.HasNext {
			return results, nil
		}
		if page >= bound {
			logger.Warn().
				Int("page", page).
				Int("bound", bound).
				Msg("sensor pagination stopped at page bound while server still reports more pages")
			return results, nil
		}
	}
}

// AllSensors collects every sensors page for an account.
func (c *Client) AllSensors(ctx context.Context, accountID string, maxPages int) ([]SensorsRecord, error) {
	fetch := func(ctx context.Context, page int) (SensorsPage, error) {
		return c.SensorsPage(ctx, accountID, page)
	}
	return CollectPages(ctx, fetch, maxPages, c.logger.With().Str("account", accountID).Logger())
}
