package tasks

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// BatchOpts contains configuration for batch publishing.
type BatchOpts struct {
	Workers   int     // Concurrent uploads (default: 2, max: 8)
	RateLimit float64 // Uploads started per second (default: 1)
}

// BatchResult summarizes a batch publish.
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Results   []*PublishResult // Same order as the requests
	Duration  time.Duration
}

// Err joins the errors of every failed item, or returns nil.
func (b *BatchResult) Err() error {
	var errs []error
	for _, r := range b.Results {
		if r != nil && r.Error != nil {
			errs = append(errs, r.Error)
		}
	}
	return errors.Join(errs...)
}

// PublishBatch publishes reqs with a bounded worker pool. Individual failures are reported in
// the result; the returned error is non-nil only when ctx ends before every item is processed.
func (p *Publisher) PublishBatch(
	ctx context.Context,
	progress chan<- ProgressUpdate,
	reqs []PublishRequest,
	opts BatchOpts,
) (*BatchResult, error) {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Workers > 8 {
		opts.Workers = 8
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1
	}

	start := time.Now()
	result := &BatchResult{Total: len(reqs), Results: make([]*PublishResult, len(reqs))}
	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	for i, req := range reqs {
		sendProgress(progress, queuedUpdate(req.Path, i+1, len(reqs)))
	}

	g := new(errgroup.Group)
	g.SetLimit(opts.Workers)

	var ctxErr error
	for i, req := range reqs {
		if err := limiter.Wait(ctx); err != nil {
			ctxErr = err
			break
		}
		g.Go(func() error {
			res, _ := p.Publish(ctx, progress, req)
			result.Results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range result.Results {
		if res == nil {
			result.Results[i] = &PublishResult{Request: reqs[i], Error: ctxErr}
			result.Failed++
			continue
		}
		if res.Succeeded() {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	result.Duration = time.Since(start)
	p.logger.Info("batch finished", "total", result.Total, "succeeded", result.Succeeded, "failed", result.Failed)
	return result, ctxErr
}
