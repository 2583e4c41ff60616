package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/praetorian-inc/bgrep/pkg/config"
	"github.com/praetorian-inc/bgrep/pkg/matcher"
	"github.com/praetorian-inc/bgrep/pkg/sarif"
	"github.com/praetorian-inc/bgrep/pkg/scanner"
	"github.com/praetorian-inc/bgrep/pkg/types"
)

// outputSink is a scanner.Sink that may hold output until Close.
type outputSink interface {
	scanner.Sink
	Close() error
}

type sinkOptions struct {
	count   bool
	color   bool
	pattern string // shown in SARIF rule descriptions
}

func newSink(format string, out io.Writer, opts sinkOptions) (outputSink, error) {
	switch format {
	case config.FormatHuman, "":
		return newHumanSink(out, opts), nil
	case config.FormatJSON:
		return &jsonSink{enc: json.NewEncoder(out), count: opts.count}, nil
	case config.FormatSARIF:
		return &sarifSink{
			out:    out,
			count:  opts.count,
			report: sarif.NewReport(version, opts.pattern),
		}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

// colorEnabled resolves a --color mode for w. Auto enables colour only on a
// terminal with NO_COLOR unset.
func colorEnabled(mode string, w io.Writer) bool {
	switch mode {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// countable reports whether a per-source count should be shown for r:
// sources read to the end, or until a read failed part way.
func countable(r types.SourceResult) bool {
	if r.Err == nil {
		return true
	}
	var readErr *matcher.ReadError
	return errors.As(r.Err, &readErr) || errors.Is(r.Err, matcher.ErrContextRestore)
}

// styles holds the colour formatters of human output.
type styles struct {
	source *color.Color
	offset *color.Color
	escape *color.Color
}

func newStyles(enabled bool) *styles {
	s := &styles{
		source: color.New(color.FgMagenta),
		offset: color.New(color.FgGreen),
		escape: color.New(color.Faint),
	}
	for _, c := range []*color.Color{s.source, s.offset, s.escape} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

// humanSink prints "<source>: <offset>" lines, context lines and count
// lines.
type humanSink struct {
	out   io.Writer
	count bool
	s     *styles
}

func newHumanSink(out io.Writer, opts sinkOptions) *humanSink {
	return &humanSink{out: out, count: opts.count, s: newStyles(opts.color)}
}

func (h *humanSink) Match(m *types.Match) error {
	if _, err := fmt.Fprintf(h.out, "%s: %s\n", h.s.source.Sprint(m.Source), h.s.offset.Sprint(types.FormatOffset(m.Offset))); err != nil {
		return err
	}
	switch {
	case m.WriteContext != nil:
		// longer than one buffer: render it piece by piece
		if err := m.WriteContext(h.writeContext); err != nil {
			return err
		}
	case m.Context != nil:
		if err := h.writeContext(m.Context.Bytes()); err != nil {
			return err
		}
	default:
		return nil
	}
	_, err := fmt.Fprintln(h.out)
	return err
}

// writeContext renders one piece of a context line.
func (h *humanSink) writeContext(chunk []byte) error {
	var sb strings.Builder
	types.RenderTo(&sb, chunk, h.escape)
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func (h *humanSink) escape(s string) string {
	return h.s.escape.Sprint(s)
}

func (h *humanSink) Done(r types.SourceResult) error {
	if !h.count || !countable(r) {
		return nil
	}
	_, err := fmt.Fprintf(h.out, "%s count: %d\n", h.s.source.Sprint(r.Source), r.Count)
	return err
}

func (h *humanSink) Close() error {
	return nil
}

// jsonSink writes one JSON object per line.
type jsonSink struct {
	enc   *json.Encoder
	count bool
}

type jsonMatch struct {
	Type string `json:"type"`
	*types.Match
}

type jsonCount struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	Count  int    `json:"count"`
}

type jsonError struct {
	Type   string `json:"type"`
	Source string `json:"source"`
	Error  string `json:"error"`
}

func (j *jsonSink) Match(m *types.Match) error {
	return j.enc.Encode(jsonMatch{Type: "match", Match: m})
}

func (j *jsonSink) Done(r types.SourceResult) error {
	if j.count && countable(r) {
		if err := j.enc.Encode(jsonCount{Type: "count", Source: r.Source, Count: r.Count}); err != nil {
			return err
		}
	}
	if r.Err != nil {
		return j.enc.Encode(jsonError{Type: "error", Source: r.Source, Error: r.Err.Error()})
	}
	return nil
}

func (j *jsonSink) Close() error {
	return nil
}

// sarifSink collects a SARIF report and writes it on Close.
type sarifSink struct {
	out    io.Writer
	count  bool
	report *sarif.Report
}

func (s *sarifSink) Match(m *types.Match) error {
	s.report.AddResult(m)
	return nil
}

func (s *sarifSink) Done(r types.SourceResult) error {
	if s.count && countable(r) {
		s.report.AddCount(r.Source, r.Count)
	}
	if r.Err != nil {
		s.report.AddError(r.Source, r.Err)
	}
	return nil
}

func (s *sarifSink) Close() error {
	data, err := s.report.ToJSON()
	if err != nil {
		return fmt.Errorf("encoding SARIF: %w", err)
	}
	if _, err := s.out.Write(data); err != nil {
		return err
	}
	_, err = fmt.Fprintln(s.out)
	return err
}
