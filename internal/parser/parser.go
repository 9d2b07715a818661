package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"calmdsl/pkg/blueprint"
)

// ErrFileNotFound is returned when the DSL file does not exist.
var ErrFileNotFound = errors.New("DSL file not found")

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Parse reads and validates a DSL file, returning every document it contains.
func Parse(filePath string) (*blueprint.Bundle, error) {
	return ParseFS(afero.NewOsFs(), filePath)
}

// ParseFS is Parse on an arbitrary filesystem.
func ParseFS(fs afero.Fs, filePath string) (*blueprint.Bundle, error) {
	if _, err := fs.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filePath)
	}

	data, err := afero.ReadFile(fs, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read DSL file: %w", err)
	}

	bundle, err := ParseBytes(data)
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(filepath.Dir(filePath))
	if err != nil {
		dir = filepath.Dir(filePath)
	}
	bundle.Dir = dir
	return bundle, nil
}

// ParseBytes parses one or more YAML documents separated by "---".
func ParseBytes(data []byte) (*blueprint.Bundle, error) {
	bundle := &blueprint.Bundle{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	for idx := 0; ; idx++ {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read DSL file - malformed YAML: %w", err)
		}
		if len(node.Content) == 0 {
			continue
		}
		if err := decodeDocument(bundle, &node, idx); err != nil {
			return nil, err
		}
	}

	if bundle.Len() == 0 {
		return nil, fmt.Errorf("DSL file contains no documents")
	}
	return bundle, nil
}

// decodeDocument dispatches a single document on its kind.
func decodeDocument(bundle *blueprint.Bundle, node *yaml.Node, idx int) error {
	var head struct {
		Kind string `yaml:"kind"`
	}
	if err := node.Decode(&head); err != nil {
		return fmt.Errorf("document %d: failed to read kind: %w", idx, err)
	}

	// Node.Decode has no strict mode, so round-trip through a strict decoder.
	raw, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("document %d: %w", idx, err)
	}

	switch head.Kind {
	case blueprint.KindBlueprint:
		var bp blueprint.Blueprint
		if err := strictDecode(raw, &bp, idx); err != nil {
			return err
		}
		bundle.Blueprints = append(bundle.Blueprints, &bp)
	case blueprint.KindRunbook:
		var rb blueprint.Runbook
		if err := strictDecode(raw, &rb, idx); err != nil {
			return err
		}
		bundle.Runbooks = append(bundle.Runbooks, &rb)
	case blueprint.KindEndpoint:
		var ep blueprint.Endpoint
		if err := strictDecode(raw, &ep, idx); err != nil {
			return err
		}
		bundle.Endpoints = append(bundle.Endpoints, &ep)
	case blueprint.KindProject:
		var p blueprint.Project
		if err := strictDecode(raw, &p, idx); err != nil {
			return err
		}
		bundle.Projects = append(bundle.Projects, &p)
	case blueprint.KindEnvironment:
		var env blueprint.Environment
		if err := strictDecode(raw, &env, idx); err != nil {
			return err
		}
		bundle.Environments = append(bundle.Environments, &env)
	case "":
		return fmt.Errorf("document %d: validation error: field 'kind' is required but missing", idx)
	default:
		return fmt.Errorf("document %d: validation error: field 'kind' must be one of: %s %s %s %s %s (got '%s')",
			idx, blueprint.KindBlueprint, blueprint.KindRunbook, blueprint.KindEndpoint,
			blueprint.KindProject, blueprint.KindEnvironment, head.Kind)
	}
	return nil
}

func strictDecode(raw []byte, out any, idx int) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("document %d: failed to parse DSL file - malformed YAML: %w", idx, err)
	}

	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("document %d: %w", idx, formatValidationError(err))
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var errorMessages []string
		for _, e := range validationErrors {
			errorMessages = append(errorMessages, formatFieldError(e))
		}

		if len(errorMessages) == 1 {
			return fmt.Errorf("validation error: %s", errorMessages[0])
		}

		result := "validation errors:\n"
		for _, msg := range errorMessages {
			result += fmt.Sprintf("  - %s\n", msg)
		}
		return fmt.Errorf("%s", result)
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatFieldError formats a single validation error into a user-friendly message.
func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("field '%s' is required but missing", field)
	case "required_without":
		return fmt.Sprintf("field '%s' is required when '%s' is not set", field, e.Param())
	case "eq":
		return fmt.Sprintf("field '%s' must be '%s'", field, e.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", field)
	case "ip":
		return fmt.Sprintf("field '%s' must be a valid IP address", field)
	case "min":
		return fmt.Sprintf("field '%s' must contain at least %s item(s)", field, e.Param())
	case "gte":
		return fmt.Sprintf("field '%s' must be greater than or equal to %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("field '%s' must be less than or equal to %s", field, e.Param())
	default:
		return fmt.Sprintf("field '%s' failed validation (%s)", field, tag)
	}
}
