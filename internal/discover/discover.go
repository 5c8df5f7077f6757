// Package discover enumerates candidate image files under a data directory.
package discover

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrDiscovery marks failures that prevent a complete listing of the data root.
var ErrDiscovery = errors.New("discovery failed")

// Error reports the root being scanned and the underlying failure.
type Error struct {
	Root string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("discover %s: %v", e.Root, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match with errors.Is(err, ErrDiscovery).
func (e *Error) Is(target error) bool {
	return target == ErrDiscovery
}

// Discover walks root recursively and returns regular files whose name ends
// with one of extensions. Matching is an exact, case-sensitive suffix
// comparison. A symlinked root is resolved; symlinks below it are not
// followed. Returned paths are under root as given. Results are in lexical
// walk order.
func Discover(root string, extensions []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &Error{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Root: root, Err: errors.New("not a directory")}
	}
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, &Error{Root: root, Err: err}
	}

	var files []string
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !matches(d.Name(), extensions) {
			return nil
		}
		rel, err := filepath.Rel(resolved, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.Join(root, rel))
		return nil
	})
	if err != nil {
		return nil, &Error{Root: root, Err: err}
	}
	return files, nil
}

func matches(name string, extensions []string) bool {
	for _, ext := range extensions {
		if ext != "" && strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
