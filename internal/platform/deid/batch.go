package deid

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ehr/hl7deid/internal/platform/hl7v2"
	"github.com/ehr/hl7deid/internal/platform/report"
)

// Result is the outcome for one message of a batch.
type Result struct {
	Index   int
	Message *hl7v2.Message
	Err     error
}

// Batch de-identifies msgs in parallel, one fresh engine per message.
// Results keep the input order. Per-message failures are carried in
// Result.Err; the returned error is only set when ctx is cancelled.
func Batch(ctx context.Context, msgs []*hl7v2.Message, items []*ConfigItem, provider GeneratorProvider, sink report.Sink, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]Result, len(msgs))
	if len(msgs) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(workers, len(msgs)))

	for i, msg := range msgs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			// index i is owned by this goroutine
			out, err := DeIdentify(msg, CloneItems(items), provider, sink)
			results[i] = Result{Index: i, Message: out, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
