//go:build wasm

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"syscall/js"

	"github.com/praetorian-inc/bgrep"
	"github.com/praetorian-inc/bgrep/pkg/serve"
)

var (
	scanners   = make(map[int]*bgrep.Scanner)
	scannersMu sync.RWMutex
	nextID     int
)

func errorResult(msg string) map[string]interface{} {
	return map[string]interface{}{"error": msg}
}

// newScanner compiles a pattern with its options.
// JS: BgrepNewScanner(optionsJSON) -> {handle} or {error}
//
// optionsJSON carries "pattern" plus the optional "first_only", "skip",
// "before" and "after" fields of a serve request.
func newScanner(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("optionsJSON argument required")
	}

	var opts serve.ScanOptions
	if err := json.Unmarshal([]byte(args[0].String()), &opts); err != nil {
		return errorResult("failed to parse options JSON: " + err.Error())
	}

	var scanOpts []bgrep.Option
	if opts.FirstOnly {
		scanOpts = append(scanOpts, bgrep.WithFirstOnly())
	}
	if opts.Skip > 0 {
		scanOpts = append(scanOpts, bgrep.WithSkip(opts.Skip))
	}
	if opts.Before > 0 || opts.After > 0 {
		scanOpts = append(scanOpts, bgrep.WithContext(opts.Before, opts.After))
	}

	s, err := bgrep.NewScanner(opts.Pattern, scanOpts...)
	if err != nil {
		return errorResult("failed to create scanner: " + err.Error())
	}

	scannersMu.Lock()
	id := nextID
	nextID++
	scanners[id] = s
	scannersMu.Unlock()

	return map[string]interface{}{"handle": id}
}

func lookup(handle int) (*bgrep.Scanner, bool) {
	scannersMu.RLock()
	defer scannersMu.RUnlock()
	s, ok := scanners[handle]
	return s, ok
}

// content reads a JS string or Uint8Array.
func content(v js.Value) []byte {
	if v.Type() == js.TypeObject {
		buf := make([]byte, v.Get("length").Int())
		js.CopyBytesToGo(buf, v)
		return buf
	}
	return []byte(v.String())
}

func scanItem(s *bgrep.Scanner, source string, data []byte) serve.ScanResult {
	result := serve.ScanResult{Source: source}
	matches, err := s.ScanReader(context.Background(), source, bytes.NewReader(data))
	result.Matches = matches
	result.Count = len(matches)
	if result.Matches == nil {
		result.Matches = []*bgrep.Match{}
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// scan scans a single string or Uint8Array.
// JS: BgrepScan(handle, content, source) -> JSON result or {error}
func scan(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("handle and content arguments required")
	}

	s, ok := lookup(args[0].Int())
	if !ok {
		return errorResult("invalid scanner handle")
	}

	source := ""
	if len(args) > 2 {
		source = args[2].String()
	}

	jsonBytes, err := json.Marshal(scanItem(s, source, content(args[1])))
	if err != nil {
		return errorResult("failed to marshal results: " + err.Error())
	}
	return string(jsonBytes)
}

// scanBatch scans several items. Item content is base64 encoded.
// JS: BgrepScanBatch(handle, itemsJSON) -> JSON results or {error}
func scanBatch(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("handle and itemsJSON arguments required")
	}

	s, ok := lookup(args[0].Int())
	if !ok {
		return errorResult("invalid scanner handle")
	}

	var items []serve.Item
	if err := json.Unmarshal([]byte(args[1].String()), &items); err != nil {
		return errorResult("failed to parse items JSON: " + err.Error())
	}

	batch := serve.BatchScanResult{Results: make([]serve.ScanResult, 0, len(items))}
	for _, item := range items {
		result := scanItem(s, item.Source, item.Content)
		batch.Results = append(batch.Results, result)
		batch.Total += result.Count
	}

	jsonBytes, err := json.Marshal(batch)
	if err != nil {
		return errorResult("failed to marshal results: " + err.Error())
	}
	return string(jsonBytes)
}

// closeScanner releases a scanner handle.
// JS: BgrepCloseScanner(handle)
func closeScanner(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("handle argument required")
	}

	handle := args[0].Int()

	scannersMu.Lock()
	_, ok := scanners[handle]
	delete(scanners, handle)
	scannersMu.Unlock()

	if !ok {
		return errorResult("invalid scanner handle")
	}
	return nil
}

// compile validates an expression and returns its canonical form.
// JS: BgrepCompile(expr) -> {pattern, length} or {error}
func compile(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("expression argument required")
	}
	p, err := bgrep.Compile(args[0].String())
	if err != nil {
		return errorResult(err.Error())
	}
	return map[string]interface{}{"pattern": p.String(), "length": p.Len()}
}
