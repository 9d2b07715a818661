package compiler

import (
	"regexp"
	"strings"
)

var macroPattern = regexp.MustCompile(`@@\{([^}]*)\}@@`)

// builtinRoots are macro roots the server always provides.
var builtinRoots = map[string]bool{
	"platform":   true,
	"address":    true,
	"name":       true,
	"id":         true,
	"uuid":       true,
	"app":        true,
	"vm":         true,
	"endpoint":   true,
	"substrate":  true,
	"service":    true,
	"deployment": true,
	"runbook":    true,
	"project":    true,
	"provider":   true,
	"ip":         true,
	"iteration":  true,
}

// macroRoot returns the leading identifier of a macro expression,
// e.g. "platform" for "platform.status.resources.nic_list[0]".
func macroRoot(expr string) string {
	expr = strings.TrimSpace(expr)
	if i := strings.IndexAny(expr, ".[( "); i >= 0 {
		expr = expr[:i]
	}
	return expr
}

// macros returns the expressions of every @@{...}@@ macro in s.
func macros(s string) []string {
	var out []string
	for _, m := range macroPattern.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

func isBuiltinRoot(root string) bool {
	return builtinRoots[root] || strings.HasPrefix(root, "calm_")
}
