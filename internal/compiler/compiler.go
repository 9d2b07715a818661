// Package compiler turns DSL documents into the JSON payloads accepted by the
// control plane: it allocates UUIDs, resolves names to local references and
// lays actions out as task graphs.
package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"calmdsl/pkg/payload"
)

// FileReader reads the files a document refers to.
type FileReader interface {
	// ReadLocalFile reads a secret from a .local directory.
	ReadLocalFile(name string) (string, error)
	// ReadFile reads a file relative to the DSL directory.
	ReadFile(name string) (string, error)
}

// Options configures a Compiler.
type Options struct {
	// Deterministic derives UUIDs from entity paths, so an unchanged document
	// compiles to identical output.
	Deterministic bool
	// Resolver resolves platform entities. Defaults to NameOnlyResolver.
	Resolver PlatformResolver
	// Files reads scripts and secrets. Required only when documents use
	// filename, secret_file or password_file.
	Files  FileReader
	Logger *slog.Logger
}

// Compiler compiles DSL documents to payloads.
type Compiler struct {
	opts     Options
	logger   *slog.Logger
	warnings []string
}

// New creates a Compiler.
func New(opts Options) *Compiler {
	if opts.Resolver == nil {
		opts.Resolver = NameOnlyResolver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{opts: opts, logger: logger}
}

// Warnings returns the warnings of every compile run so far.
func (c *Compiler) Warnings() []string {
	return append([]string(nil), c.warnings...)
}

// session holds the state of compiling one document.
type session struct {
	c    *Compiler
	ids  *idGenerator
	errs *multierror.Error
	doc  string

	services    *scope
	packages    *scope
	substrates  *scope
	creds       *scope
	deployments *scope
	endpoints   *scope

	// runbooks maps "<owner kind>/<owner>/<action>" to the runbook reference
	// allocated for the action.
	runbooks    map[string]payload.Reference
	actionNames map[string][]string
	// known holds the macro roots declared anywhere in the document.
	known map[string]bool

	defaultCred *payload.Reference
	// pkgServices maps package names to the services they install.
	pkgServices map[string][]string
}

func (c *Compiler) newSession(kind, name string) *session {
	return &session{
		c:           c,
		ids:         newIDGenerator(c.opts.Deterministic),
		errs:        &multierror.Error{ErrorFormat: errorFormat(kind, name)},
		doc:         kind + "/" + name,
		services:    newScope(payload.KindAppService),
		packages:    newScope(payload.KindAppPackage),
		substrates:  newScope(payload.KindAppSubstrate),
		creds:       newScope(payload.KindAppCredential),
		deployments: newScope(payload.KindAppDeployment),
		endpoints:   newScope(payload.KindAppEndpoint),
		runbooks:    make(map[string]payload.Reference),
		actionNames: make(map[string][]string),
		known:       make(map[string]bool),
		pkgServices: make(map[string][]string),
	}
}

func errorFormat(kind, name string) multierror.ErrorFormatFunc {
	return func(errs []error) string {
		lines := make([]string, 0, len(errs))
		for _, e := range errs {
			lines = append(lines, "  - "+e.Error())
		}
		return fmt.Sprintf("%d error(s) compiling %s %q:\n%s", len(errs), kind, name, strings.Join(lines, "\n"))
	}
}

// id returns the UUID of the entity at path, relative to the document.
func (s *session) id(parts ...string) string {
	path := s.doc
	for _, p := range parts {
		if p != "" {
			path += "/" + p
		}
	}
	return s.ids.get(path)
}

// fail records a compile error with a location prefix.
func (s *session) fail(loc string, err error) {
	if err == nil {
		return
	}
	if loc != "" {
		err = fmt.Errorf("%s: %w", loc, err)
	}
	s.errs = multierror.Append(s.errs, err)
}

func (s *session) failf(loc, format string, args ...any) {
	s.fail(loc, fmt.Errorf(format, args...))
}

func (s *session) warn(loc, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if loc != "" {
		msg = loc + ": " + msg
	}
	s.c.warnings = append(s.c.warnings, msg)
	s.c.logger.Warn(msg, "document", s.doc)
}

func (s *session) err() error {
	return s.errs.ErrorOrNil()
}

// platformRef resolves a platform entity. Entities missing from the cache
// become name-only references with a warning.
func (s *session) platformRef(loc string, q Query) *payload.Reference {
	if q.Name == "" {
		return nil
	}
	ref, err := s.c.opts.Resolver.Resolve(q)
	if errors.Is(err, ErrEntityNotFound) {
		s.warn(loc, "%s %q not found in the local cache, sending name only", q.Kind, q.Name)
		return &payload.Reference{Kind: q.Kind, Name: q.Name}
	}
	if err != nil {
		s.fail(loc, fmt.Errorf("resolve %s %q: %w", q.Kind, q.Name, err))
		return nil
	}
	return &ref
}

func (s *session) readFile(loc, name string) string {
	if s.c.opts.Files == nil {
		s.failf(loc, "cannot read %q: no file reader configured", name)
		return ""
	}
	data, err := s.c.opts.Files.ReadFile(name)
	if err != nil {
		s.fail(loc, err)
	}
	return data
}

func (s *session) readLocalFile(loc, name string) string {
	if s.c.opts.Files == nil {
		s.failf(loc, "cannot read local file %q: no file reader configured", name)
		return ""
	}
	data, err := s.c.opts.Files.ReadLocalFile(name)
	if err != nil {
		s.fail(loc, err)
	}
	return data
}

// checkMacros warns about macros whose root is neither declared nor builtin.
func (s *session) checkMacros(loc string, texts ...string) {
	for _, t := range texts {
		for _, expr := range macros(t) {
			root := macroRoot(expr)
			if root == "" || s.known[root] || isBuiltinRoot(root) {
				continue
			}
			s.warn(loc, "macro @@{%s}@@ does not name a known variable", expr)
		}
	}
}

func (s *session) declare(names ...string) {
	for _, n := range names {
		if n != "" {
			s.known[n] = true
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func locate(parts ...string) string {
	var out []string
	for i := 0; i+1 < len(parts); i += 2 {
		out = append(out, fmt.Sprintf("%s %q", parts[i], parts[i+1]))
	}
	return strings.Join(out, ": ")
}
