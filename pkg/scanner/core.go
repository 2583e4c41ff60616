// Package scanner drives a pattern scan over enumerated sources and hands
// the results to a Sink and, optionally, a Store.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/praetorian-inc/bgrep/pkg/cursor"
	"github.com/praetorian-inc/bgrep/pkg/enum"
	"github.com/praetorian-inc/bgrep/pkg/matcher"
	"github.com/praetorian-inc/bgrep/pkg/pattern"
	"github.com/praetorian-inc/bgrep/pkg/store"
	"github.com/praetorian-inc/bgrep/pkg/types"
)

// errFirstMatch ends enumeration once a source matched in first-only mode.
var errFirstMatch = errors.New("first match found")

// Config for a scan run.
type Config struct {
	Pattern *pattern.Pattern
	Options matcher.Options

	// Sink receives matches and per-source results. Required.
	Sink Sink

	// Store additionally records matches and results when non-nil.
	Store store.Store

	// Jobs is the number of sources scanned at once (<= 1 = sequential).
	Jobs int

	Logger zerolog.Logger
}

// Core wraps the matcher, sink and store for scanning operations.
type Core struct {
	matcher *matcher.Matcher
	sink    Sink
	store   store.Store
	jobs    int
	logger  zerolog.Logger

	mu      sync.Mutex
	summary types.Summary
}

// NewCore validates cfg and builds the matcher.
func NewCore(cfg Config) (*Core, error) {
	if cfg.Sink == nil {
		return nil, errors.New("sink is required")
	}
	m, err := matcher.New(cfg.Pattern, cfg.Options)
	if err != nil {
		return nil, err
	}
	return &Core{
		matcher: m,
		sink:    cfg.Sink,
		store:   cfg.Store,
		jobs:    cfg.Jobs,
		logger:  cfg.Logger,
	}, nil
}

// Matcher returns the matcher used for every source.
func (c *Core) Matcher() *matcher.Matcher {
	return c.matcher
}

// EntryError logs and counts an entry that could not be enumerated. It is
// meant for enum.Config.OnError.
func (c *Core) EntryError(label string, err error) {
	c.logger.Error().Err(err).Str("source", label).Msg("skipping entry")
	c.mu.Lock()
	c.summary.Errors++
	c.mu.Unlock()
}

// Run scans every source e yields and returns the totals.
//
// Failures confined to one source are logged, counted and passed to the
// sink; the run continues. The returned error is reserved for enumeration
// failures, sink or store failures and cancellation.
func (c *Core) Run(ctx context.Context, e enum.Enumerator) (types.Summary, error) {
	c.mu.Lock()
	c.summary = types.Summary{}
	c.mu.Unlock()

	c.logger.Debug().
		Str("pattern", c.matcher.Pattern().String()).
		Int("jobs", c.jobs).
		Msg("starting scan")

	var err error
	if c.jobs > 1 {
		err = c.runParallel(ctx, e)
	} else {
		err = c.runSequential(ctx, e)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary, err
}

func (c *Core) runSequential(ctx context.Context, e enum.Enumerator) error {
	err := e.Enumerate(ctx, func(src enum.Source) error {
		res := c.scanSource(ctx, src, c.emit)
		if err := c.finish(ctx, res); err != nil {
			return err
		}
		if c.firstOnly() && res.Matched() {
			return errFirstMatch
		}
		return nil
	})
	if errors.Is(err, errFirstMatch) {
		return nil
	}
	return err
}

func (c *Core) firstOnly() bool {
	return c.matcher.Options().FirstOnly
}

// scanSource opens and scans one source, passing matches to emit.
func (c *Core) scanSource(ctx context.Context, src enum.Source, emit matcher.EmitFunc) types.SourceResult {
	res := types.SourceResult{Source: src.Label, Provenance: src.Provenance}

	rc, err := src.Open(ctx)
	if err != nil {
		res.Err = &SourceOpenError{Source: src.Label, Err: err}
		return res
	}
	defer rc.Close()

	c.logger.Debug().Str("source", src.Label).Int64("size", src.Size).Msg("scanning")

	warned := false
	res.Count, res.Err = c.matcher.Scan(ctx, src.Label, cursor.New(rc), func(m *types.Match) error {
		if m.ContextErr != nil && !warned {
			warned = true
			c.logger.Warn().Err(m.ContextErr).Str("source", src.Label).Msg("context unavailable")
		}
		return emit(m)
	})
	return res
}

// emit forwards one match to the store and sink.
func (c *Core) emit(m *types.Match) error {
	if c.store != nil {
		if err := c.store.AddMatch(m); err != nil {
			return &outputError{fmt.Errorf("storing match in %s: %w", m.Source, err)}
		}
	}
	if err := c.sink.Match(m); err != nil {
		return &outputError{err}
	}
	return nil
}

// finish records a per-source result. It returns an error only when the
// run has to stop.
func (c *Core) finish(ctx context.Context, res types.SourceResult) error {
	var oe *outputError
	if errors.As(res.Err, &oe) {
		return oe.err
	}
	if res.Err != nil && ctx.Err() != nil && errors.Is(res.Err, ctx.Err()) {
		return res.Err
	}

	if res.Err != nil {
		c.logger.Error().Err(res.Err).Str("source", res.Source).Msg("scan failed")
	}

	c.mu.Lock()
	c.summary.Add(res)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.AddScan(res); err != nil {
			return fmt.Errorf("recording scan of %s: %w", res.Source, err)
		}
	}
	return c.sink.Done(res)
}
