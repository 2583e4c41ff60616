package enum

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

const listBlobsXML = `<?xml version="1.0" encoding="utf-8"?>
<EnumerationResults ServiceEndpoint="%[1]s/" ContainerName="dumps">
  <Blobs>
    <Blob>
      <Name>core.bin</Name>
      <Properties><Content-Length>9</Content-Length><BlobType>BlockBlob</BlobType></Properties>
    </Blob>
    <Blob>
      <Name>big.bin</Name>
      <Properties><Content-Length>4096</Content-Length><BlobType>BlockBlob</BlobType></Properties>
    </Blob>
  </Blobs>
  <NextMarker />
</EnumerationResults>`

// fakeContainer serves the two endpoints the enumerator uses.
func fakeContainer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/dumps" && r.URL.Query().Get("comp") == "list":
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprintf(w, listBlobsXML, srv.URL)
		case r.URL.Path == "/dumps/core.bin" && r.Method == http.MethodGet:
			w.Header().Set("Content-Length", "9")
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte("\x00CORE\x01\x02\x03\x04"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAzureEnumerator(t *testing.T) {
	srv := fakeContainer(t)

	e := NewAzureEnumerator(srv.URL+"/dumps?sv=2024&sig=secret", Config{MaxFileSize: 1024})
	sources := collectSources(t, e)
	require.Len(t, sources, 1, "big.bin exceeds the size limit")

	src := sources[0]
	assert.Equal(t, srv.URL+"/dumps/core.bin", src.Label)
	assert.NotContains(t, src.Label, "secret")
	assert.Equal(t, int64(9), src.Size)

	prov, ok := src.Provenance.(types.BlobProvenance)
	require.True(t, ok)
	assert.Equal(t, "dumps", prov.Container)
	assert.Equal(t, "core.bin", prov.Name)

	assert.Equal(t, "\x00CORE\x01\x02\x03\x04", readSource(t, src))
}

func TestAzureEnumerator_ListFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewAzureEnumerator(srv.URL+"/dumps", Config{}).Enumerate(context.Background(), func(Source) error { return nil })
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to list container dumps"))
}

func TestStripQuery(t *testing.T) {
	assert.Equal(t, "https://acct.blob.core.windows.net/c/b", stripQuery("https://acct.blob.core.windows.net/c/b?sig=x"))
	assert.Equal(t, "dumps", containerNameOf("https://acct.blob.core.windows.net/dumps/"))
}
