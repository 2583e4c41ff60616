package types

import (
	"fmt"
	"time"
)

// Provenance tracks where a scanned source came from.
type Provenance interface {
	Kind() string
	// Path returns displayable path (if applicable)
	Path() string
}

// FileProvenance for filesystem files.
type FileProvenance struct {
	FilePath string
}

// Kind returns "file".
func (f FileProvenance) Kind() string {
	return "file"
}

// Path returns the file path.
func (f FileProvenance) Path() string {
	return f.FilePath
}

// StdinProvenance for standard input.
type StdinProvenance struct{}

// Kind returns "stdin".
func (StdinProvenance) Kind() string {
	return "stdin"
}

// Path returns "stdin".
func (StdinProvenance) Path() string {
	return "stdin"
}

// ArchiveProvenance tracks a member of a zip or 7z archive.
type ArchiveProvenance struct {
	ArchivePath string // path to the archive file
	MemberPath  string // path within the archive
}

// Kind returns "archive".
func (a ArchiveProvenance) Kind() string {
	return "archive"
}

// Path returns the archive path with member path.
func (a ArchiveProvenance) Path() string {
	return fmt.Sprintf("%s!%s", a.ArchivePath, a.MemberPath)
}

// GitProvenance for git repository blobs.
type GitProvenance struct {
	RepoPath string
	Commit   *CommitMetadata // nil if not tracking commit info
	BlobPath string          // path within repo at commit
}

// Kind returns "git".
func (g GitProvenance) Kind() string {
	return "git"
}

// Path returns the blob path prefixed with the short commit id.
func (g GitProvenance) Path() string {
	if g.Commit == nil || len(g.Commit.CommitID) < 8 {
		return g.BlobPath
	}
	return g.Commit.CommitID[:8] + ":" + g.BlobPath
}

// CommitMetadata holds git commit information.
type CommitMetadata struct {
	CommitID        string
	AuthorName      string
	AuthorEmail     string
	AuthorTimestamp time.Time
	Message         string
}

// BlobProvenance for objects in remote blob storage.
type BlobProvenance struct {
	Container string
	Name      string
	URL       string // without query string
}

// Kind returns "blob".
func (b BlobProvenance) Kind() string {
	return "blob"
}

// Path returns the blob URL.
func (b BlobProvenance) Path() string {
	return b.URL
}

// RecordedProvenance is provenance read back from a datastore, where only
// the kind and display path survive.
type RecordedProvenance struct {
	SourceKind string
	SourcePath string
}

// Kind returns the recorded kind.
func (r RecordedProvenance) Kind() string {
	return r.SourceKind
}

// Path returns the recorded path.
func (r RecordedProvenance) Path() string {
	return r.SourcePath
}
