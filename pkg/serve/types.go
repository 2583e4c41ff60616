package serve

import (
	"encoding/json"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

// Request represents an incoming NDJSON request
type Request struct {
	Type    string          `json:"type"` // "scan" | "scan_batch" | "close"
	Payload json.RawMessage `json:"payload"`
}

// ScanOptions are shared by scan and scan_batch requests.
type ScanOptions struct {
	Pattern   string `json:"pattern"`
	FirstOnly bool   `json:"first_only,omitempty"`
	Count     bool   `json:"count,omitempty"`
	Skip      uint64 `json:"skip,omitempty"`
	Before    uint64 `json:"before,omitempty"`
	After     uint64 `json:"after,omitempty"`
}

// Item is one input: inline content (base64 in JSON) or a local file.
type Item struct {
	Source  string `json:"source,omitempty"`
	Content []byte `json:"content,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ScanPayload is the payload for "scan" requests
type ScanPayload struct {
	ScanOptions
	Item
}

// ScanBatchPayload is the payload for "scan_batch" requests
type ScanBatchPayload struct {
	ScanOptions
	Items []Item `json:"items"`
}

// ScanResult is the result for one item.
type ScanResult struct {
	Source  string         `json:"source"`
	Count   int            `json:"count"`
	Matches []*types.Match `json:"matches"`
	Error   string         `json:"error,omitempty"`
}

// BatchScanResult is the result of a scan_batch request.
type BatchScanResult struct {
	Results []ScanResult `json:"results"`
	Total   int          `json:"total"`
}

// Response represents an outgoing NDJSON response
type Response struct {
	Success bool            `json:"success"`
	Type    string          `json:"type"` // "ready" | "scan" | "scan_batch" | "error"
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ReadyData is the data field for "ready" responses
type ReadyData struct {
	Version string `json:"version"`
}
