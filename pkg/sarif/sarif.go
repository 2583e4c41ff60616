// Package sarif renders scan results as a SARIF 2.1.0 log with byte-offset
// regions.
package sarif

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

// SARIF 2.1.0 constants
const (
	SchemaURI = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
	Version   = "2.1.0"
	ToolName  = "bgrep"
	RuleID    = "bgrep.pattern"
)

// Report is the top-level SARIF report structure
type Report struct {
	Schema  string `json:"$schema"`
	Version string `json:"version"`
	Runs    []Run  `json:"runs"`
}

// Run represents a single invocation of the tool
type Run struct {
	Tool        Tool         `json:"tool"`
	Invocations []Invocation `json:"invocations"`
	Results     []Result     `json:"results"`
}

// Tool describes the analysis tool
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver contains tool metadata
type Driver struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Rules   []Rule `json:"rules,omitempty"`
}

// Rule describes the searched pattern
type Rule struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	ShortDescription Message `json:"shortDescription"`
}

// Invocation records whether the run completed and what went wrong
type Invocation struct {
	ExecutionSuccessful bool           `json:"executionSuccessful"`
	Notifications       []Notification `json:"toolExecutionNotifications,omitempty"`
}

// Notification is a per-source error
type Notification struct {
	Level     string     `json:"level"`
	Message   Message    `json:"message"`
	Locations []Location `json:"locations,omitempty"`
}

// Result represents a single match or a per-source count
type Result struct {
	RuleID     string         `json:"ruleId"`
	Level      string         `json:"level"`
	Message    Message        `json:"message"`
	Locations  []Location     `json:"locations"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Message contains the result message
type Message struct {
	Text string `json:"text"`
}

// Location describes where a result was found
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation specifies the artifact and byte range
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           *Region          `json:"region,omitempty"`
	ContextRegion    *Region          `json:"contextRegion,omitempty"`
}

// ArtifactLocation identifies the source
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region specifies a byte range
type Region struct {
	ByteOffset uint64   `json:"byteOffset"`
	ByteLength int      `json:"byteLength"`
	Snippet    *Snippet `json:"snippet,omitempty"`
}

// Snippet holds region content, base64-encoded since it is arbitrary binary
type Snippet struct {
	Binary   string `json:"binary"`
	Rendered *Text  `json:"rendered,omitempty"`
}

// Text is plain rendered text
type Text struct {
	Text string `json:"text"`
}

// NewReport creates a report for one search pattern.
func NewReport(toolVersion, pattern string) *Report {
	return &Report{
		Schema:  SchemaURI,
		Version: Version,
		Runs: []Run{
			{
				Tool: Tool{
					Driver: Driver{
						Name:    ToolName,
						Version: toolVersion,
						Rules: []Rule{
							{
								ID:               RuleID,
								Name:             "pattern",
								ShortDescription: Message{Text: pattern},
							},
						},
					},
				},
				Invocations: []Invocation{{ExecutionSuccessful: true}},
				Results:     []Result{},
			},
		},
	}
}

// AddResult adds a match. When the match carries context, the matched
// bytes become the region snippet and the whole context the context region.
func (r *Report) AddResult(match *types.Match) {
	region := &Region{
		ByteOffset: match.Offset,
		ByteLength: match.Length,
	}

	var contextRegion *Region
	if c := match.Context; c != nil {
		if len(c.After) >= match.Length {
			matched := c.After[:match.Length]
			region.Snippet = &Snippet{Binary: base64.StdEncoding.EncodeToString(matched)}
		}
		all := c.Bytes()
		contextRegion = &Region{
			ByteOffset: c.Start,
			ByteLength: len(all),
			Snippet: &Snippet{
				Binary:   base64.StdEncoding.EncodeToString(all),
				Rendered: &Text{Text: c.Render()},
			},
		}
	}

	r.Runs[0].Results = append(r.Runs[0].Results, Result{
		RuleID:  RuleID,
		Level:   "note",
		Message: Message{Text: fmt.Sprintf("pattern found at offset 0x%x", match.Offset)},
		Locations: []Location{{
			PhysicalLocation: PhysicalLocation{
				ArtifactLocation: ArtifactLocation{URI: formatURI(match.Source)},
				Region:           region,
				ContextRegion:    contextRegion,
			},
		}},
	})
}

// AddCount adds a per-source match count (count mode).
func (r *Report) AddCount(source string, count int) {
	r.Runs[0].Results = append(r.Runs[0].Results, Result{
		RuleID:  RuleID,
		Level:   "note",
		Message: Message{Text: types.CountLine(source, count)},
		Locations: []Location{{
			PhysicalLocation: PhysicalLocation{
				ArtifactLocation: ArtifactLocation{URI: formatURI(source)},
			},
		}},
		Properties: map[string]any{"count": count},
	})
}

// AddError records a source that could not be scanned and marks the
// invocation unsuccessful.
func (r *Report) AddError(source string, err error) {
	inv := &r.Runs[0].Invocations[0]
	inv.ExecutionSuccessful = false
	n := Notification{
		Level:   "error",
		Message: Message{Text: err.Error()},
	}
	if source != "" {
		n.Locations = []Location{{
			PhysicalLocation: PhysicalLocation{
				ArtifactLocation: ArtifactLocation{URI: formatURI(source)},
			},
		}}
	}
	inv.Notifications = append(inv.Notifications, n)
}

// ToJSON serializes the report to JSON bytes
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// formatURI converts a source label to SARIF URI format.
// Absolute paths get file:// prefix; URLs and relative paths stay as-is.
func formatURI(label string) string {
	if strings.Contains(label, "://") {
		return label
	}
	if filepath.IsAbs(label) {
		path := filepath.ToSlash(label)
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return "file://" + path
	}
	return filepath.ToSlash(label)
}
