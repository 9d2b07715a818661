// Package lint checks the shell scripts of compiled blueprints and runbooks
// with shellcheck, run in a container.
package lint

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"calmdsl/pkg/runtime"
)

const (
	// DefaultImage is the shellcheck image used when none is configured.
	DefaultImage = "koalaman/shellcheck:stable"

	// WorkingDirectory is where scripts are mounted in the container.
	WorkingDirectory = "/mnt"
)

// ErrFindings is returned when shellcheck reports problems.
var ErrFindings = errors.New("shellcheck reported problems")

// Script is one shell script of a compiled entity.
type Script struct {
	// Path is the script location relative to the lint work directory,
	// built from the runbook and task names.
	Path    string
	Content string
}

// Result is the outcome of a lint run.
type Result struct {
	Scripts  []Script
	Findings []string
}

// Linter runs shellcheck through a container runtime.
type Linter struct {
	runtime runtime.ContainerRuntime
	image   string
}

// New creates a Linter. An empty image selects DefaultImage.
func New(rt runtime.ContainerRuntime, image string) *Linter {
	if image == "" {
		image = DefaultImage
	}
	return &Linter{runtime: rt, image: image}
}

// Lint extracts the shell scripts of payload, writes them into workDir and
// runs shellcheck on them. An empty workDir uses a temporary directory.
// Findings fail the run with ErrFindings; the result is returned either way.
func (l *Linter) Lint(ctx context.Context, payload any, workDir string) (*Result, error) {
	scripts, err := ExtractScripts(payload)
	if err != nil {
		return nil, err
	}
	result := &Result{Scripts: scripts}
	if len(scripts) == 0 {
		slog.Info("No shell scripts to lint")
		return result, nil
	}

	if workDir == "" {
		tmp, err := os.MkdirTemp("", "calm-lint-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create lint directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		workDir = tmp
	}
	absDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for lint directory: %w", err)
	}

	files := make([]string, 0, len(scripts))
	for _, s := range scripts {
		path := filepath.Join(absDir, s.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create script directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(s.Content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write script %s: %w", s.Path, err)
		}
		files = append(files, filepath.ToSlash(s.Path))
	}

	if err := l.runtime.PullImage(ctx, l.image); err != nil {
		return nil, fmt.Errorf("failed to pull shellcheck image: %w", err)
	}

	// SC1083 flags the braces of @@{macro}@@ placeholders, which the server
	// substitutes before the script runs.
	cmd := append([]string{"--shell=bash", "--format=gcc", "--exclude=SC1083"}, files...)
	findings, err := l.run(ctx, absDir, cmd)
	result.Findings = findings
	if err != nil {
		return result, err
	}
	slog.Info("Lint completed", "scripts", len(scripts), "findings", len(findings))
	return result, nil
}

func (l *Linter) run(ctx context.Context, dir string, cmd []string) ([]string, error) {
	reader, err := l.runtime.RunContainer(ctx, runtime.RunOptions{
		Image:            l.image,
		Command:          cmd,
		VolumeMounts:     map[string]string{dir: WorkingDirectory},
		WorkingDirectory: WorkingDirectory,
		ReadOnly:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run container: %w", err)
	}

	var findings []string
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		if line := cleanOutputLine(scanner.Text()); line != "" {
			findings = append(findings, line)
			slog.Debug("shellcheck", "line", line)
		}
	}
	if err := scanner.Err(); err != nil {
		reader.Close()
		return findings, fmt.Errorf("error reading container output: %w", err)
	}

	if err := reader.Close(); err != nil {
		var exitErr *runtime.ExitError
		if errors.As(err, &exitErr) {
			return findings, fmt.Errorf("%d findings: %w", len(findings), ErrFindings)
		}
		return findings, fmt.Errorf("shellcheck failed: %w", err)
	}
	return findings, nil
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// cleanOutputLine strips ANSI sequences and control characters from a line
// of container output.
func cleanOutputLine(line string) string {
	line = ansiRegex.ReplaceAllString(line, "")
	line = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, line)
	return strings.TrimSpace(line)
}

// ExtractScripts returns every bash script of a compiled payload: EXEC and
// SET_VARIABLE tasks with script type "sh", in a stable order.
func ExtractScripts(payload any) ([]Script, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	var scripts []Script
	seen := map[string]int{}
	walkRunbooks(tree, func(runbook string, task map[string]any) {
		attrs, _ := task["attrs"].(map[string]any)
		if attrs == nil || attrs["script_type"] != "sh" {
			return
		}
		content, _ := attrs["script"].(string)
		if strings.TrimSpace(content) == "" {
			return
		}
		name, _ := task["name"].(string)
		path := filepath.Join(safeName(runbook), safeName(name))
		seen[path]++
		if n := seen[path]; n > 1 {
			path = fmt.Sprintf("%s_%d", path, n)
		}
		scripts = append(scripts, Script{Path: path + ".sh", Content: content})
	})

	sort.SliceStable(scripts, func(i, j int) bool { return scripts[i].Path < scripts[j].Path })
	return scripts, nil
}

// walkRunbooks calls fn for every task of every runbook in node.
func walkRunbooks(node any, fn func(runbook string, task map[string]any)) {
	switch n := node.(type) {
	case map[string]any:
		if tasks, ok := n["task_definition_list"].([]any); ok {
			name, _ := n["name"].(string)
			for _, t := range tasks {
				if task, ok := t.(map[string]any); ok {
					fn(name, task)
				}
			}
		}
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkRunbooks(n[k], fn)
		}
	case []any:
		for _, v := range n {
			walkRunbooks(v, fn)
		}
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeName(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	if s == "" {
		return "unnamed"
	}
	return s
}
