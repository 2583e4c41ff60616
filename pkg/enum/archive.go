package enum

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bodgit/sevenzip"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

// ArchiveEnumerator wraps another enumerator and replaces .zip and .7z
// files with their members. Members are decompressed on the fly and are
// therefore sequential sources. An archive that cannot be read is scanned
// as a plain file.
type ArchiveEnumerator struct {
	inner  Enumerator
	config Config
}

// NewArchiveEnumerator creates a new archive enumerator around inner.
func NewArchiveEnumerator(inner Enumerator, config Config) *ArchiveEnumerator {
	return &ArchiveEnumerator{inner: inner, config: config}
}

// Enumerate yields inner's sources, expanding archives.
func (e *ArchiveEnumerator) Enumerate(ctx context.Context, yield YieldFunc) error {
	return e.inner.Enumerate(ctx, func(src Source) error {
		fp, ok := src.Provenance.(types.FileProvenance)
		if !ok {
			return yield(src)
		}
		open := archiveOpener(fp.FilePath)
		if open == nil {
			return yield(src)
		}

		a := &archive{path: fp.FilePath, open: open}
		members, err := a.list()
		if err != nil {
			e.config.Logger.Warn().Err(err).Str("path", fp.FilePath).Msg("not a readable archive, scanning as a file")
			return yield(src)
		}
		for i, m := range members {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := yield(a.source(i, m)); err != nil {
				return err
			}
		}
		return nil
	})
}

// member describes one archive entry.
type member struct {
	name string
	size int64
}

// archiveReader is an open archive.
type archiveReader interface {
	members() []member
	openMember(i int) (io.ReadCloser, error)
	Close() error
}

// archiveOpener returns how to open path as an archive, or nil when the
// extension is not an archive one.
func archiveOpener(path string) func(string) (archiveReader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return openZip
	case ".7z":
		return open7z
	}
	return nil
}

// archive shares one open reader between the sources of its members. The
// reader is opened on first use and closed when the last user releases it;
// later users reopen it. Member indexes are stable across reopens.
type archive struct {
	path string
	open func(string) (archiveReader, error)

	mu     sync.Mutex
	refs   int
	reader archiveReader
}

func (a *archive) acquire() (archiveReader, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.refs == 0 {
		r, err := a.open(a.path)
		if err != nil {
			return nil, err
		}
		a.reader = r
	}
	a.refs++
	return a.reader, nil
}

func (a *archive) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refs--
	if a.refs == 0 {
		a.reader.Close()
		a.reader = nil
	}
}

// list returns the archive's file members.
func (a *archive) list() ([]member, error) {
	r, err := a.acquire()
	if err != nil {
		return nil, err
	}
	defer a.release()
	return r.members(), nil
}

func (a *archive) source(i int, m member) Source {
	prov := types.ArchiveProvenance{ArchivePath: a.path, MemberPath: m.name}
	return Source{
		Label:      prov.Path(),
		Provenance: prov,
		Size:       m.size,
		Open: func(context.Context) (io.ReadCloser, error) {
			r, err := a.acquire()
			if err != nil {
				return nil, err
			}
			rc, err := r.openMember(i)
			if err != nil {
				a.release()
				return nil, fmt.Errorf("opening %s: %w", prov.Path(), err)
			}
			return &memberReader{ReadCloser: rc, release: a.release}, nil
		},
	}
}

// memberReader releases the archive when the member is closed. It hides
// any Seek on the member so that cursors treat it as sequential.
type memberReader struct {
	io.ReadCloser
	release func()
	once    sync.Once
}

func (m *memberReader) Close() error {
	err := m.ReadCloser.Close()
	m.once.Do(m.release)
	return err
}

// zipArchive reads .zip files with archive/zip.
type zipArchive struct {
	rc    *zip.ReadCloser
	files []*zip.File
}

func openZip(path string) (archiveReader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip %s: %w", path, err)
	}
	z := &zipArchive{rc: rc}
	for _, f := range rc.File {
		if !f.FileInfo().IsDir() {
			z.files = append(z.files, f)
		}
	}
	return z, nil
}

func (z *zipArchive) members() []member {
	out := make([]member, len(z.files))
	for i, f := range z.files {
		out[i] = member{name: f.Name, size: int64(f.UncompressedSize64)}
	}
	return out
}

func (z *zipArchive) openMember(i int) (io.ReadCloser, error) {
	return z.files[i].Open()
}

func (z *zipArchive) Close() error {
	return z.rc.Close()
}

// sevenZipArchive reads .7z files with bodgit/sevenzip.
type sevenZipArchive struct {
	rc    *sevenzip.ReadCloser
	files []*sevenzip.File
}

func open7z(path string) (archiveReader, error) {
	rc, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open 7z %s: %w", path, err)
	}
	s := &sevenZipArchive{rc: rc}
	for _, f := range rc.File {
		if !f.FileInfo().IsDir() {
			s.files = append(s.files, f)
		}
	}
	return s, nil
}

func (s *sevenZipArchive) members() []member {
	out := make([]member, len(s.files))
	for i, f := range s.files {
		out[i] = member{name: f.Name, size: int64(f.UncompressedSize)}
	}
	return out
}

func (s *sevenZipArchive) openMember(i int) (io.ReadCloser, error) {
	return s.files[i].Open()
}

func (s *sevenZipArchive) Close() error {
	return s.rc.Close()
}
