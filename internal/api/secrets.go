package api

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// secretSet maps the name path of every secret in a document to its value.
// Paths use entity names for list elements, so they survive the server
// reordering lists or reassigning UUIDs.
type secretSet map[string]string

// toTree converts v into a generic JSON tree.
func toTree(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// isSecret reports whether obj is a secret holder: {value, attrs: {is_secret_modified: true}}.
func isSecret(obj map[string]any) bool {
	attrs, ok := obj["attrs"].(map[string]any)
	if !ok {
		return false
	}
	modified, _ := attrs["is_secret_modified"].(bool)
	_, hasValue := obj["value"].(string)
	return modified && hasValue
}

func elemKey(elem any, index int) string {
	if obj, ok := elem.(map[string]any); ok {
		if name, ok := obj["name"].(string); ok && name != "" {
			return name
		}
	}
	return strconv.Itoa(index)
}

// stripSecrets blanks every secret value in tree and returns what it removed.
func stripSecrets(tree map[string]any) secretSet {
	secrets := make(secretSet)
	walkObjects(tree, "", func(path string, obj map[string]any) {
		if !isSecret(obj) {
			return
		}
		secrets[path] = obj["value"].(string)
		obj["value"] = ""
		obj["attrs"].(map[string]any)["is_secret_modified"] = false
	})
	return secrets
}

// Redact returns v as a JSON tree with every secret value blanked, and the
// number of secrets removed.
func Redact(v any) (map[string]any, int, error) {
	tree, err := toTree(v)
	if err != nil {
		return nil, 0, fmt.Errorf("encode document: %w", err)
	}
	return tree, len(stripSecrets(tree)), nil
}

// fillSecrets puts secrets back into tree at their paths and returns how many
// were placed.
func fillSecrets(tree map[string]any, secrets secretSet) (int, error) {
	filled := make(map[string]bool)
	walkObjects(tree, "", func(path string, obj map[string]any) {
		value, ok := secrets[path]
		if !ok {
			return
		}
		attrs, ok := obj["attrs"].(map[string]any)
		if !ok {
			attrs = make(map[string]any)
			obj["attrs"] = attrs
		}
		obj["value"] = value
		attrs["is_secret_modified"] = true
		filled[path] = true
	})

	for path := range secrets {
		if !filled[path] {
			return len(filled), fmt.Errorf("secret %s not found in the uploaded entity", path)
		}
	}
	return len(filled), nil
}

func walkObjects(node any, path string, fn func(path string, obj map[string]any)) {
	switch n := node.(type) {
	case map[string]any:
		fn(path, n)
		for k, v := range n {
			walkObjects(v, path+"/"+k, fn)
		}
	case []any:
		for i, elem := range n {
			walkObjects(elem, path+"/"+elemKey(elem, i), fn)
		}
	}
}
