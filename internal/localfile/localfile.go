// Package localfile resolves the files a DSL document refers to: secrets kept
// under .local directories and script files next to the DSL file.
package localfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// LocalDir is the directory name searched for secrets.
const LocalDir = ".local"

// Reader reads local files relative to a DSL directory and the calm home.
type Reader struct {
	fs   afero.Fs
	dir  string
	home string
}

// NewReader returns a reader on fs. dir is the DSL file directory, home the calm home directory.
func NewReader(fs afero.Fs, dir, home string) *Reader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Reader{fs: fs, dir: dir, home: home}
}

// DefaultHome returns $CALM_HOME, or ~/.calm.
func DefaultHome() string {
	if h := os.Getenv("CALM_HOME"); h != "" {
		return h
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".calm"
	}
	return filepath.Join(userHome, ".calm")
}

// ReadLocalFile returns the trimmed content of <dir>/.local/<name>, falling back
// to <home>/.local/<name>.
func (r *Reader) ReadLocalFile(name string) (string, error) {
	candidates := r.localCandidates(name)
	for _, p := range candidates {
		data, err := afero.ReadFile(r.fs, p)
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read local file %s: %w", p, err)
		}
	}
	return "", fmt.Errorf("local file %q not found (looked in %s)", name, strings.Join(candidates, ", "))
}

func (r *Reader) localCandidates(name string) []string {
	var paths []string
	if r.dir != "" {
		paths = append(paths, filepath.Join(r.dir, LocalDir, name))
	}
	if r.home != "" {
		paths = append(paths, filepath.Join(r.home, LocalDir, name))
	}
	return paths
}

// ReadFile returns the content of a file referenced by a DSL document.
// Relative paths resolve against the DSL directory.
func (r *Reader) ReadFile(name string) (string, error) {
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.dir, p)
	}
	data, err := afero.ReadFile(r.fs, p)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", p, err)
	}
	return string(data), nil
}
