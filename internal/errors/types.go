package errors

import (
	"errors"
	"net/http"
)

var (
	ErrDSLNotFound      = errors.New("DSL file not found")
	ErrDSLParseFailed   = errors.New("DSL parsing failed")
	ErrCompileFailed    = errors.New("compilation failed")
	ErrAPIFailed        = errors.New("API request failed")
	ErrSCMFailed        = errors.New("SCM operation failed")
	ErrLintFailed       = errors.New("lint failed")
	ErrRuntimeFailed    = errors.New("runtime operation failed")
	ErrConfigInvalid    = errors.New("configuration invalid")
	ErrNetworkFailed    = errors.New("network operation failed")
	ErrFileSystemFailed = errors.New("filesystem operation failed")
)

var typeNames = map[error]string{
	ErrDSLNotFound:      "dsl_not_found",
	ErrDSLParseFailed:   "dsl_parse_failed",
	ErrCompileFailed:    "compile_failed",
	ErrAPIFailed:        "api_failed",
	ErrSCMFailed:        "scm_failed",
	ErrLintFailed:       "lint_failed",
	ErrRuntimeFailed:    "runtime_failed",
	ErrConfigInvalid:    "config_invalid",
	ErrNetworkFailed:    "network_failed",
	ErrFileSystemFailed: "filesystem_failed",
}

// CalmError carries what the user needs to act on a failure: where it
// happened, why, and what to try next.
type CalmError struct {
	Type        error
	Context     string
	Cause       string
	Suggestion  string
	OriginalErr error
}

func (e *CalmError) Error() string {
	if e.OriginalErr == nil {
		return e.Context
	}
	return e.OriginalErr.Error()
}

func (e *CalmError) Unwrap() error {
	return e.OriginalErr
}

// Is matches the error kind, so errors.Is(err, ErrCompileFailed) holds for
// any compile error regardless of its cause.
func (e *CalmError) Is(target error) bool {
	return e.Type != nil && e.Type == target
}

func New(errorType error, context, cause, suggestion string, originalErr error) *CalmError {
	return &CalmError{
		Type:        errorType,
		Context:     context,
		Cause:       cause,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

func NewDSLError(context, cause, suggestion string, originalErr error) *CalmError {
	return New(ErrDSLNotFound, context, cause, suggestion, originalErr)
}

func NewParseError(context, cause, suggestion string, originalErr error) *CalmError {
	return New(ErrDSLParseFailed, context, cause, suggestion, originalErr)
}

func NewCompileError(context, cause, suggestion string, originalErr error) *CalmError {
	return New(ErrCompileFailed, context, cause, suggestion, originalErr)
}

func NewAPIError(context, cause, suggestion string, originalErr error) *CalmError {
	return New(ErrAPIFailed, context, cause, suggestion, originalErr)
}

func NewSCMError(context, cause, suggestion string, originalErr error) *CalmError {
	return New(ErrSCMFailed, context, cause, suggestion, originalErr)
}

func NewLintError(context, cause, suggestion string, originalErr error) *CalmError {
	return New(ErrLintFailed, context, cause, suggestion, originalErr)
}

func NewRuntimeError(context, cause, suggestion string, originalErr error) *CalmError {
	return New(ErrRuntimeFailed, context, cause, suggestion, originalErr)
}

func NewConfigError(context, cause, suggestion string, originalErr error) *CalmError {
	return New(ErrConfigInvalid, context, cause, suggestion, originalErr)
}

func NewNetworkError(context, cause, suggestion string, originalErr error) *CalmError {
	return New(ErrNetworkFailed, context, cause, suggestion, originalErr)
}

func NewFileSystemError(context, cause, suggestion string, originalErr error) *CalmError {
	return New(ErrFileSystemFailed, context, cause, suggestion, originalErr)
}

// TypeName returns the stable name of an error kind used in log records.
func TypeName(errType error) string {
	if name, ok := typeNames[errType]; ok {
		return name
	}
	return "unknown"
}

// StatusSuggestion returns advice for an HTTP status returned by the server.
func StatusSuggestion(code int) string {
	switch {
	case code == http.StatusUnauthorized:
		return "Check the username and password with 'calm config show'"
	case code == http.StatusForbidden:
		return "Ask an administrator for a role that allows this operation in the project"
	case code == http.StatusNotFound:
		return "Check the name, or run 'calm update cache' if the entity was created recently"
	case code == http.StatusConflict:
		return "An entity with this name already exists; pass --force to replace it"
	case code == http.StatusUnprocessableEntity:
		return "The server rejected the payload; inspect it with 'calm compile' and fix the DSL"
	case code >= 500:
		return "The server failed; retry later or check its health"
	default:
		return ""
	}
}
