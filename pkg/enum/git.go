package enum

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

// GitEnumerator enumerates the files of one revision of a git repository
// without checking it out.
type GitEnumerator struct {
	repoPath string
	config   Config
	// Revision to enumerate (defaults to HEAD).
	Revision string
}

// NewGitEnumerator creates a new git enumerator.
func NewGitEnumerator(repoPath string, config Config) *GitEnumerator {
	return &GitEnumerator{
		repoPath: repoPath,
		config:   config,
		Revision: "HEAD",
	}
}

// Enumerate yields one source per file in the revision's tree. Symlinks
// and submodules are skipped. Blob contents are streamed; reads from the
// repository are serialized because go-git object storage is not safe for
// concurrent use.
func (e *GitEnumerator) Enumerate(ctx context.Context, yield YieldFunc) error {
	repo, err := git.PlainOpen(e.repoPath)
	if err != nil {
		return fmt.Errorf("failed to open git repository %s: %w", e.repoPath, err)
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(e.Revision))
	if err != nil {
		return fmt.Errorf("failed to resolve ref %s: %w", e.Revision, err)
	}

	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return fmt.Errorf("failed to get commit: %w", err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("failed to get tree: %w", err)
	}

	meta := &types.CommitMetadata{
		CommitID:        commit.Hash.String(),
		AuthorName:      commit.Author.Name,
		AuthorEmail:     commit.Author.Email,
		AuthorTimestamp: commit.Author.When,
		Message:         commit.Message,
	}

	// The tree is listed up front so that iterating it never overlaps with
	// blob reads issued by concurrent scans.
	var files []*object.File
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.Mode != filemode.Regular && f.Mode != filemode.Executable && f.Mode != filemode.Deprecated {
			e.config.Logger.Debug().Str("path", f.Name).Str("mode", f.Mode.String()).Msg("skipping non-regular git entry")
			return nil
		}
		if e.config.MaxFileSize > 0 && f.Size > e.config.MaxFileSize {
			e.config.Logger.Debug().Str("path", f.Name).Int64("size", f.Size).Msg("skipping blob over size limit")
			return nil
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk tree: %w", err)
	}

	var mu sync.Mutex
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		prov := types.GitProvenance{
			RepoPath: e.repoPath,
			Commit:   meta,
			BlobPath: f.Name,
		}
		blob := f.Blob
		err := yield(Source{
			Label:      prov.Path(),
			Provenance: prov,
			Size:       f.Size,
			Open: func(context.Context) (io.ReadCloser, error) {
				mu.Lock()
				rc, err := blob.Reader()
				if err != nil {
					mu.Unlock()
					return nil, fmt.Errorf("failed to read blob %s: %w", blob.Hash, err)
				}
				return &lockedReader{ReadCloser: rc, unlock: mu.Unlock}, nil
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// lockedReader holds the repository lock until closed.
type lockedReader struct {
	io.ReadCloser
	unlock func()
	once   sync.Once
}

func (l *lockedReader) Close() error {
	err := l.ReadCloser.Close()
	l.once.Do(l.unlock)
	return err
}
