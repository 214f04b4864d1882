package selector

import (
	"context"
	"sync"

	"github.com/maheshrc27/clipcast/internal/logging"
	"golang.org/x/sync/singleflight"
)

// LocalRefiller runs selections in-process. Concurrent triggers for the same
// platform share one run.
type LocalRefiller struct {
	sel   *Selector
	log   logging.Logger
	group singleflight.Group
	wg    sync.WaitGroup
}

func NewLocalRefiller(sel *Selector, log logging.Logger) *LocalRefiller {
	return &LocalRefiller{sel: sel, log: log}
}

func (r *LocalRefiller) TriggerRefill(ctx context.Context, platform string, want int) error {
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, err, shared := r.group.Do(platform, func() (any, error) {
			return r.sel.Select(ctx, platform, want)
		})
		if err != nil {
			r.log.Error().Err(err).Str("platform", platform).Msg("refill failed")
			return
		}
		if shared {
			r.log.Debug().Str("platform", platform).Msg("refill coalesced")
		}
	}()
	return nil
}

// Wait blocks until every triggered refill has finished.
func (r *LocalRefiller) Wait() {
	r.wg.Wait()
}
