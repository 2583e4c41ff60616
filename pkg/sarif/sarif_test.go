package sarif

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

func TestNewReport(t *testing.T) {
	report := NewReport("1.2.3", `66 6f 6f`)

	assert.Equal(t, SchemaURI, report.Schema)
	assert.Equal(t, Version, report.Version)
	require.Len(t, report.Runs, 1)

	driver := report.Runs[0].Tool.Driver
	assert.Equal(t, ToolName, driver.Name)
	assert.Equal(t, "1.2.3", driver.Version)
	require.Len(t, driver.Rules, 1)
	assert.Equal(t, RuleID, driver.Rules[0].ID)
	assert.Equal(t, "66 6f 6f", driver.Rules[0].ShortDescription.Text)
	assert.True(t, report.Runs[0].Invocations[0].ExecutionSuccessful)
}

func TestAddResult(t *testing.T) {
	report := NewReport("dev", "ff ee ?? cc")
	report.AddResult(&types.Match{Source: "/path/to/core.bin", Offset: 0x100, Length: 4})

	require.Len(t, report.Runs[0].Results, 1)
	result := report.Runs[0].Results[0]
	assert.Equal(t, RuleID, result.RuleID)
	assert.Equal(t, "pattern found at offset 0x100", result.Message.Text)

	loc := result.Locations[0].PhysicalLocation
	assert.Equal(t, "file:///path/to/core.bin", loc.ArtifactLocation.URI)
	require.NotNil(t, loc.Region)
	assert.Equal(t, uint64(0x100), loc.Region.ByteOffset)
	assert.Equal(t, 4, loc.Region.ByteLength)
	assert.Nil(t, loc.Region.Snippet)
	assert.Nil(t, loc.ContextRegion)
}

func TestAddResult_WithContext(t *testing.T) {
	report := NewReport("dev", `"foo"`)
	report.AddResult(&types.Match{
		Source: "rel/a.bin",
		Offset: 10,
		Length: 3,
		Context: &types.Snippet{
			Start:  8,
			Before: types.HexBytes{0x00, 0x01},
			After:  types.HexBytes("foo!"),
		},
	})

	loc := report.Runs[0].Results[0].Locations[0].PhysicalLocation
	assert.Equal(t, "rel/a.bin", loc.ArtifactLocation.URI)

	require.NotNil(t, loc.Region.Snippet)
	matched, err := base64.StdEncoding.DecodeString(loc.Region.Snippet.Binary)
	require.NoError(t, err)
	assert.Equal(t, "foo", string(matched))

	require.NotNil(t, loc.ContextRegion)
	assert.Equal(t, uint64(8), loc.ContextRegion.ByteOffset)
	assert.Equal(t, 6, loc.ContextRegion.ByteLength)
	assert.Equal(t, `\x00\x01foo!`, loc.ContextRegion.Snippet.Rendered.Text)
}

func TestAddResult_TruncatedContext(t *testing.T) {
	report := NewReport("dev", `"foo"`)
	report.AddResult(&types.Match{
		Source:  "a.bin",
		Offset:  10,
		Length:  3,
		Context: &types.Snippet{Start: 8, Before: types.HexBytes("ab")},
	})

	loc := report.Runs[0].Results[0].Locations[0].PhysicalLocation
	assert.Nil(t, loc.Region.Snippet)
	assert.Equal(t, 2, loc.ContextRegion.ByteLength)
}

func TestAddCount(t *testing.T) {
	report := NewReport("dev", "41")
	report.AddCount("stdin", 7)

	result := report.Runs[0].Results[0]
	assert.Equal(t, "stdin count: 7", result.Message.Text)
	assert.Equal(t, 7, result.Properties["count"])
	assert.Nil(t, result.Locations[0].PhysicalLocation.Region)
}

func TestAddError(t *testing.T) {
	report := NewReport("dev", "41")
	report.AddError("/missing.bin", errors.New("no such file"))

	inv := report.Runs[0].Invocations[0]
	assert.False(t, inv.ExecutionSuccessful)
	require.Len(t, inv.Notifications, 1)
	assert.Equal(t, "error", inv.Notifications[0].Level)
	assert.Equal(t, "no such file", inv.Notifications[0].Message.Text)
	assert.Equal(t, "file:///missing.bin", inv.Notifications[0].Locations[0].PhysicalLocation.ArtifactLocation.URI)
}

func TestToJSON(t *testing.T) {
	report := NewReport("dev", "41")
	report.AddResult(&types.Match{Source: "/test/file.bin", Offset: 3, Length: 1})

	jsonBytes, err := report.ToJSON()
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(jsonBytes, &parsed))
	assert.Equal(t, SchemaURI, parsed["$schema"])
	assert.Equal(t, Version, parsed["version"])

	runs := parsed["runs"].([]any)
	results := runs[0].(map[string]any)["results"].([]any)
	region := results[0].(map[string]any)["locations"].([]any)[0].(map[string]any)["physicalLocation"].(map[string]any)["region"].(map[string]any)
	assert.Equal(t, float64(3), region["byteOffset"])
	assert.Equal(t, float64(1), region["byteLength"])
}

func TestFormatURI(t *testing.T) {
	assert.Equal(t, "file:///absolute/path/file.bin", formatURI("/absolute/path/file.bin"))
	assert.Equal(t, "relative/path/file.bin", formatURI("relative/path/file.bin"))
	assert.Equal(t, "https://acct.blob.core.windows.net/c/b", formatURI("https://acct.blob.core.windows.net/c/b"))
	assert.Equal(t, "stdin", formatURI("stdin"))
}
