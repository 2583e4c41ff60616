// Package serve runs bgrep as a long-lived NDJSON server: one request per
// input line, one response per output line.
package serve

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/praetorian-inc/bgrep/pkg/matcher"
	"github.com/praetorian-inc/bgrep/pkg/pattern"
	"github.com/praetorian-inc/bgrep/pkg/types"
)

// Version is the server protocol version
const Version = "1.0.0"

// patternCacheSize bounds the number of compiled patterns kept between
// requests.
const patternCacheSize = 256

// Server manages the streaming scanner
type Server struct {
	encoder  *json.Encoder
	decoder  *json.Decoder
	patterns *lru.Cache[string, *pattern.Pattern]
	logger   zerolog.Logger
	ctx      context.Context
}

// NewServer creates a new streaming server
func NewServer(in io.Reader, out io.Writer, logger zerolog.Logger) *Server {
	// only fails for a non-positive size
	patterns, _ := lru.New[string, *pattern.Pattern](patternCacheSize)
	return &Server{
		encoder:  json.NewEncoder(out),
		decoder:  json.NewDecoder(bufio.NewReader(in)),
		patterns: patterns,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// Run starts the server main loop
func (s *Server) Run(ctx context.Context) error {
	s.ctx = ctx
	s.sendReady()

	reqChan := make(chan Request, 1)
	errChan := make(chan error, 1)

	go func() {
		for {
			var req Request
			if err := s.decoder.Decode(&req); err != nil {
				errChan <- err
				return
			}
			select {
			case reqChan <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Process requests until stdin closes or context cancels
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			// Drain any pending requests before handling EOF
			for {
				select {
				case req := <-reqChan:
					if s.processRequest(req) {
						return nil
					}
				default:
					if err == io.EOF {
						return nil
					}
					s.sendError("decode", err.Error())
					return nil
				}
			}
		case req := <-reqChan:
			if s.processRequest(req) {
				return nil
			}
		}
	}
}

// processRequest handles a single request and returns true if the server should exit
func (s *Server) processRequest(req Request) bool {
	s.logger.Debug().Str("type", req.Type).Msg("request")
	switch req.Type {
	case "scan":
		s.handleScan(req.Payload)
	case "scan_batch":
		s.handleScanBatch(req.Payload)
	case "close":
		return true
	default:
		s.sendError("unknown", "unknown request type: "+req.Type)
	}
	return false
}

func (s *Server) sendReady() {
	data, _ := json.Marshal(ReadyData{Version: Version})
	s.send(Response{
		Success: true,
		Type:    "ready",
		Data:    data,
	})
}

func (s *Server) handleScan(payload json.RawMessage) {
	var p ScanPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError("scan", err.Error())
		return
	}

	m, err := s.matcher(p.ScanOptions)
	if err != nil {
		s.sendError("scan", err.Error())
		return
	}

	result, err := s.scanItem(m, p.Item)
	if err != nil {
		s.sendError("scan", err.Error())
		return
	}

	data, _ := json.Marshal(result)
	s.send(Response{
		Success: true,
		Type:    "scan",
		Data:    data,
	})
}

// handleScanBatch scans every item with the same pattern. An item that
// fails carries its error; the batch as a whole still succeeds.
func (s *Server) handleScanBatch(payload json.RawMessage) {
	var p ScanBatchPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError("scan_batch", err.Error())
		return
	}

	m, err := s.matcher(p.ScanOptions)
	if err != nil {
		s.sendError("scan_batch", err.Error())
		return
	}

	batch := BatchScanResult{Results: make([]ScanResult, 0, len(p.Items))}
	for _, item := range p.Items {
		result, err := s.scanItem(m, item)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				s.sendError("scan_batch", err.Error())
				return
			}
			result.Error = err.Error()
		}
		batch.Results = append(batch.Results, result)
		batch.Total += result.Count
	}

	data, _ := json.Marshal(batch)
	s.send(Response{
		Success: true,
		Type:    "scan_batch",
		Data:    data,
	})
}

// matcher compiles (or reuses) the requested pattern.
func (s *Server) matcher(opts ScanOptions) (*matcher.Matcher, error) {
	p, ok := s.patterns.Get(opts.Pattern)
	if !ok {
		var err error
		p, err = pattern.Compile(opts.Pattern)
		if err != nil {
			return nil, err
		}
		s.patterns.Add(opts.Pattern, p)
	}

	mo := matcher.DefaultOptions()
	mo.FirstOnly = opts.FirstOnly
	mo.CountOnly = opts.Count
	mo.Skip = opts.Skip
	mo.Before = opts.Before
	mo.After = opts.After
	return matcher.New(p, mo)
}

func (s *Server) scanItem(m *matcher.Matcher, item Item) (ScanResult, error) {
	result := ScanResult{Source: item.Source, Matches: []*types.Match{}}

	var r io.Reader
	switch {
	case item.Path != "":
		if result.Source == "" {
			result.Source = item.Path
		}
		//nolint:gosec // G304: serving local paths is the point of the request
		f, err := os.Open(item.Path)
		if err != nil {
			return result, fmt.Errorf("cannot open %s: %w", item.Path, err)
		}
		defer f.Close()
		r = f
	default:
		r = bytes.NewReader(item.Content)
	}

	count, err := m.ScanReader(s.ctx, result.Source, r, func(match *types.Match) error {
		result.Matches = append(result.Matches, match)
		return nil
	})
	result.Count = count
	return result, err
}

func (s *Server) sendError(reqType, msg string) {
	s.send(Response{
		Success: false,
		Type:    reqType,
		Error:   msg,
	})
}

func (s *Server) send(resp Response) {
	if err := s.encoder.Encode(resp); err != nil {
		s.logger.Error().Err(err).Str("type", resp.Type).Msg("writing response")
	}
}
