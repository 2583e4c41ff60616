package scanner

import (
	"fmt"
	"sync"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

// Sink receives scan output in discovery order. Calls are never concurrent.
type Sink interface {
	// Match is called for each match, unless counting.
	Match(m *types.Match) error

	// Done is called once per scanned source after its matches.
	Done(r types.SourceResult) error
}

// SourceOpenError is returned when a source cannot be opened.
type SourceOpenError struct {
	Source string
	Err    error
}

func (e *SourceOpenError) Error() string {
	return fmt.Sprintf("cannot open %s: %v", e.Source, e.Err)
}

func (e *SourceOpenError) Unwrap() error {
	return e.Err
}

// Collector is a Sink that keeps everything in memory.
type Collector struct {
	mu      sync.Mutex
	Matches []*types.Match
	Results []types.SourceResult
}

// Match implements Sink.
func (c *Collector) Match(m *types.Match) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Matches = append(c.Matches, m)
	return nil
}

// Done implements Sink.
func (c *Collector) Done(r types.SourceResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Results = append(c.Results, r)
	return nil
}

// outputError marks a failure writing results, which ends the run.
type outputError struct {
	err error
}

func (e *outputError) Error() string {
	return e.err.Error()
}

func (e *outputError) Unwrap() error {
	return e.err
}
