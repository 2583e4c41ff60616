package enum

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/praetorian-inc/bgrep/pkg/types"
)

// PathEnumerator enumerates explicitly named paths. Files are yielded as
// they are; directories are walked recursively in lexical order.
type PathEnumerator struct {
	paths  []string
	config Config
}

// NewPathEnumerator creates a new path enumerator.
func NewPathEnumerator(paths []string, config Config) *PathEnumerator {
	return &PathEnumerator{paths: paths, config: config}
}

// Enumerate yields one source per file. A path that cannot be examined is
// still yielded, with an Open that reports why, so the failure is reported
// in order.
func (e *PathEnumerator) Enumerate(ctx context.Context, yield YieldFunc) error {
	for _, path := range e.paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Stat follows symlinks: a named link to a file scans the file.
		info, err := os.Stat(path)
		if err != nil {
			if err := yield(failedSource(path, types.FileProvenance{FilePath: path}, err)); err != nil {
				return err
			}
			continue
		}

		if !info.IsDir() {
			// Named FIFOs and devices are read sequentially.
			if err := yield(fileSource(path, info)); err != nil {
				return err
			}
			continue
		}

		if err := e.walk(ctx, path, yield); err != nil {
			return err
		}
	}
	return nil
}

// walk yields the regular files under root.
func (e *PathEnumerator) walk(ctx context.Context, root string, yield YieldFunc) error {
	log := e.config.Logger

	var ignore *gitignore.GitIgnore
	if e.config.Gitignore {
		gitignorePath := filepath.Join(root, ".gitignore")
		if _, err := os.Stat(gitignorePath); err == nil {
			ignore, err = gitignore.CompileIgnoreFile(gitignorePath)
			if err != nil {
				e.config.report(gitignorePath, err)
			}
		}
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable directory: report and keep walking its siblings.
			e.config.report(path, err)
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if path == root {
			return nil
		}

		if !e.config.IncludeHidden && isHidden(d.Name()) {
			log.Debug().Str("path", path).Msg("skipping hidden entry")
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if ignore != nil {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if ignore.MatchesPath(rel) || (d.IsDir() && ignore.MatchesPath(rel+"/")) {
				log.Debug().Str("path", path).Msg("skipping gitignored entry")
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		if d.IsDir() {
			return nil
		}

		var info fs.FileInfo
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			if !e.config.FollowSymlinks {
				log.Debug().Str("path", path).Msg("skipping symlink")
				return nil
			}
			info, err = os.Stat(path)
			if err != nil {
				e.config.report(path, err)
				return nil
			}
		case d.Type().IsRegular():
			info, err = d.Info()
			if err != nil {
				e.config.report(path, err)
				return nil
			}
		default:
			log.Debug().Str("path", path).Str("mode", d.Type().String()).Msg("skipping non-regular file")
			return nil
		}

		if !info.Mode().IsRegular() {
			log.Debug().Str("path", path).Msg("skipping symlink to non-regular file")
			return nil
		}

		if e.config.MaxFileSize > 0 && info.Size() > e.config.MaxFileSize {
			log.Debug().Str("path", path).Int64("size", info.Size()).Msg("skipping file over size limit")
			return nil
		}

		return yield(fileSource(path, info))
	})
}

// fileSource opens path lazily.
func fileSource(path string, info fs.FileInfo) Source {
	size := int64(-1)
	if info.Mode().IsRegular() {
		size = info.Size()
	}
	return Source{
		Label:      path,
		Provenance: types.FileProvenance{FilePath: path},
		Size:       size,
		Open: func(context.Context) (io.ReadCloser, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}

// isHidden checks if a filename is hidden (starts with .).
// The special entries "." and ".." are NOT considered hidden.
func isHidden(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}
