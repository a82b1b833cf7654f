package hub

import (
	"context"
	"time"
)

// Result is one hit returned by a direct search, independent of whether
// the underlying hub speaks ADC or NMDC.
type Result struct {
	Nick        string
	VirtualPath string
	Size        int64
	TTH         string
	FreeSlots   int
}

// Searcher sends a query to a specific hub and reports results as they
// arrive on resultsCh until ctx is done; implemented by *Client.
type Searcher interface {
	Search(ctx context.Context, query string, tthOnly string, resultsCh chan<- Result) error
}

// DirectSearch issues one targeted search against hub and collects
// results for the given window.
func DirectSearch(ctx context.Context, s Searcher, query, tth string, window time.Duration) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	resultsCh := make(chan Result, 64)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Search(ctx, query, tth, resultsCh) }()

	var out []Result
	for {
		select {
		case r, ok := <-resultsCh:
			if !ok {
				return out, nil
			}
			out = append(out, r)
		case err := <-errCh:
			if err != nil {
				return out, err
			}
		case <-ctx.Done():
			return out, nil
		}
	}
}
