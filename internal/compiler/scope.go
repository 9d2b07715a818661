package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"calmdsl/pkg/payload"
)

// RefError reports a name that does not resolve within its scope.
type RefError struct {
	Kind       string
	Name       string
	Suggestion string
}

func (e *RefError) Error() string {
	msg := fmt.Sprintf("unknown %s %q", strings.TrimPrefix(e.Kind, "app_"), e.Name)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}

// scope maps entity names of one kind to their local references.
type scope struct {
	kind  string
	refs  map[string]payload.Reference
	order []string
}

func newScope(kind string) *scope {
	return &scope{kind: kind, refs: make(map[string]payload.Reference)}
}

func (s *scope) add(name, id string) error {
	if _, ok := s.refs[name]; ok {
		return fmt.Errorf("duplicate %s name %q", strings.TrimPrefix(s.kind, "app_"), name)
	}
	s.refs[name] = payload.Reference{Kind: s.kind, Name: name, UUID: id}
	s.order = append(s.order, name)
	return nil
}

func (s *scope) has(name string) bool {
	_, ok := s.refs[name]
	return ok
}

func (s *scope) ref(name string) (payload.Reference, error) {
	if r, ok := s.refs[name]; ok {
		return r, nil
	}
	return payload.Reference{}, &RefError{Kind: s.kind, Name: name, Suggestion: suggest(name, s.order)}
}

func (s *scope) refList(names []string) ([]payload.Reference, error) {
	out := make([]payload.Reference, 0, len(names))
	for _, n := range names {
		r, err := s.ref(n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *scope) names() []string {
	return append([]string(nil), s.order...)
}

// suggest returns the candidate closest to name, or "" when nothing is close.
func suggest(name string, candidates []string) string {
	best, bestDist := "", -1
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	for _, c := range sorted {
		d := levenshtein.DistanceForStrings([]rune(strings.ToLower(name)), []rune(strings.ToLower(c)), levenshtein.DefaultOptions)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}

	limit := len(name) / 3
	if limit < 2 {
		limit = 2
	}
	if bestDist < 0 || bestDist > limit {
		return ""
	}
	return best
}
