package scanner

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/praetorian-inc/bgrep/pkg/enum"
	"github.com/praetorian-inc/bgrep/pkg/types"
)

// lookahead is how many sources per worker may be queued ahead of the one
// being reported.
const lookahead = 4

// matchBacklog is how many matches a source may queue while waiting for
// its turn to be reported. Its worker blocks once the queue is full.
const matchBacklog = 256

// job is one source in flight. The worker sends matches, sets result and
// skipped, then closes matches and done, in that order.
type job struct {
	src     enum.Source
	matches chan *types.Match
	ack     chan struct{} // releases a match carrying WriteContext
	result  types.SourceResult
	skipped bool
	done    chan struct{}
}

func newJob(src enum.Source) *job {
	return &job{
		src:     src,
		matches: make(chan *types.Match, matchBacklog),
		ack:     make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// runParallel scans up to c.jobs sources at once. Output is replayed in
// discovery order, so it is identical to a sequential run. The source
// being reported streams straight through; the ones behind it hold at most
// matchBacklog matches each.
func (c *Core) runParallel(ctx context.Context, e enum.Enumerator) error {
	g, gctx := errgroup.WithContext(ctx)
	scanCtx, cancelScans := context.WithCancel(gctx)
	defer cancelScans()

	order := make(chan *job, c.jobs*lookahead)
	work := make(chan *job)

	g.Go(func() error {
		defer close(order)
		defer close(work)
		return e.Enumerate(scanCtx, func(src enum.Source) error {
			j := newJob(src)
			select {
			case order <- j:
			case <-scanCtx.Done():
				return scanCtx.Err()
			}
			select {
			case work <- j:
				return nil
			case <-scanCtx.Done():
				j.skipped = true
				close(j.matches)
				close(j.done)
				return scanCtx.Err()
			}
		})
	})

	for i := 0; i < c.jobs; i++ {
		g.Go(func() error {
			for j := range work {
				j.result = c.scanSource(scanCtx, j.src, func(m *types.Match) error {
					return j.queue(scanCtx, m)
				})
				close(j.matches)
				close(j.done)
			}
			return nil
		})
	}

	var runErr error
	stopped := false
	for j := range order {
		if stopped {
			<-j.done
			continue
		}
		if err := c.deliver(scanCtx, j); err != nil {
			runErr = err
			stopped = true
			cancelScans()
			continue
		}
		if c.firstOnly() && j.result.Matched() {
			stopped = true
			cancelScans()
		}
	}

	waitErr := g.Wait()
	switch {
	case waitErr != nil && !errors.Is(waitErr, context.Canceled):
		return waitErr
	case runErr != nil:
		return runErr
	case stopped && ctx.Err() == nil:
		return nil
	}
	return waitErr
}

// queue hands m to the consumer. A match carrying WriteContext is only
// valid while the scan is paused on it, so queue waits until the consumer
// has reported it.
func (j *job) queue(ctx context.Context, m *types.Match) error {
	select {
	case j.matches <- m:
	case <-ctx.Done():
		return ctx.Err()
	}
	if m.WriteContext == nil {
		return nil
	}
	select {
	case <-j.ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver reports a job's matches as they arrive, then its result.
func (c *Core) deliver(ctx context.Context, j *job) error {
	for m := range j.matches {
		paused := m.WriteContext != nil
		err := c.emit(m)
		if paused {
			j.ack <- struct{}{}
		}
		if err != nil {
			var oe *outputError
			if errors.As(err, &oe) {
				return oe.err
			}
			return err
		}
	}
	<-j.done
	if j.skipped {
		return nil
	}
	return c.finish(ctx, j.result)
}
