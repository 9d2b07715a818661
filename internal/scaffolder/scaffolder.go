// Package scaffolder writes sample DSL projects and compiled payloads to disk.
package scaffolder

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/spf13/afero"
)

// Project kinds accepted by Init.
const (
	KindBlueprint = "bp"
	KindRunbook   = "runbook"
)

//go:embed all:templates
var templates embed.FS

var validName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Scaffolder writes files to a filesystem, or only reports them on a dry run.
type Scaffolder struct {
	fs     afero.Fs
	out    io.Writer
	dryRun bool
}

// New returns a Scaffolder writing to fs. Dry-run reports go to out.
func New(fs afero.Fs, out io.Writer, dryRun bool) *Scaffolder {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if out == nil {
		out = io.Discard
	}
	return &Scaffolder{fs: fs, out: out, dryRun: dryRun}
}

// InitOptions names the project Init creates.
type InitOptions struct {
	Kind    string
	Name    string
	Dir     string
	Project string
}

// Init creates <Dir>/<Name> with a sample DSL file, its scripts and the
// .local secrets they refer to. It returns the files written, in order.
func (s *Scaffolder) Init(opts InitOptions) ([]string, error) {
	if opts.Kind != KindBlueprint && opts.Kind != KindRunbook {
		return nil, fmt.Errorf("unknown project kind %q, expected %s or %s", opts.Kind, KindBlueprint, KindRunbook)
	}
	if !validName.MatchString(opts.Name) {
		return nil, fmt.Errorf("invalid name %q: use letters, digits, '-' and '_', starting with a letter", opts.Name)
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if err := validatePath(opts.Dir); err != nil {
		return nil, err
	}

	root := filepath.Join(opts.Dir, opts.Name)
	if exists, err := afero.Exists(s.fs, root); err != nil {
		return nil, fmt.Errorf("failed to check destination directory: %w", err)
	} else if exists {
		return nil, fmt.Errorf("destination directory already exists: %s", root)
	}

	files, err := render(opts)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		dest := filepath.Join(root, filepath.FromSlash(f.path))
		if err := s.writeFile(dest, f.data, f.perm); err != nil {
			return written, err
		}
		written = append(written, dest)
	}
	return written, nil
}

type file struct {
	path string
	data []byte
	perm fs.FileMode
}

// render executes the templates of a project kind.
func render(opts InitOptions) ([]file, error) {
	base := path.Join("templates", opts.Kind)
	var files []file
	err := fs.WalkDir(templates, base, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		raw, err := templates.ReadFile(p)
		if err != nil {
			return err
		}
		tmpl, err := template.New(d.Name()).Parse(string(raw))
		if err != nil {
			return fmt.Errorf("failed to parse template %s: %w", p, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, opts); err != nil {
			return fmt.Errorf("failed to render template %s: %w", p, err)
		}

		rel := strings.TrimSuffix(strings.TrimPrefix(p, base+"/"), ".tmpl")
		if rel == "gitignore" {
			rel = ".gitignore"
		}
		perm := fs.FileMode(0o644)
		switch {
		case strings.HasSuffix(rel, ".sh"):
			perm = 0o755
		case strings.HasPrefix(rel, ".local/"):
			perm = 0o600
		}
		files = append(files, file{path: rel, data: buf.Bytes(), perm: perm})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

// Compiled is one compiled document.
type Compiled struct {
	Kind    string
	Name    string
	Payload any
}

// FileName returns the file WriteCompiled stores the document in.
func (c Compiled) FileName() string {
	return strings.ToLower(c.Kind) + "_" + safeName(c.Name) + ".json"
}

// WriteCompiled writes every document as indented JSON under dir.
func (s *Scaffolder) WriteCompiled(dir string, docs []Compiled) ([]string, error) {
	if err := validatePath(dir); err != nil {
		return nil, err
	}
	written := make([]string, 0, len(docs))
	for _, doc := range docs {
		data, err := json.MarshalIndent(doc.Payload, "", "  ")
		if err != nil {
			return written, fmt.Errorf("failed to marshal %s %s: %w", doc.Kind, doc.Name, err)
		}
		dest := filepath.Join(dir, doc.FileName())
		if err := s.writeFile(dest, append(data, '\n'), 0o644); err != nil {
			return written, err
		}
		written = append(written, dest)
	}
	return written, nil
}

func (s *Scaffolder) writeFile(dest string, data []byte, perm fs.FileMode) error {
	if s.dryRun {
		fmt.Fprintf(s.out, "DRY RUN: Would create file: %s\n", dest)
		return nil
	}
	if err := s.fs.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}
	if err := afero.WriteFile(s.fs, dest, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

// validatePath ensures the path is safe and doesn't contain directory traversal sequences
func validatePath(p string) error {
	if strings.Contains(filepath.Clean(p), "..") {
		return fmt.Errorf("path contains directory traversal: %s", p)
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeName(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	if s == "" {
		return "unnamed"
	}
	return s
}
