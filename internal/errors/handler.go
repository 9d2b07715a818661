package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/go-multierror"

	"calmdsl/internal/ui"
)

const (
	logFileName    = "calm.log"
	maxLogFiles    = 5
	maxLogFileSize = 10 * 1024 * 1024
)

// ErrorHandler reports errors to the user and records them in the log file.
type ErrorHandler struct {
	logger  *slog.Logger
	console *ui.Console
	logPath string
}

func NewErrorHandler() (*ErrorHandler, error) {
	logFile, err := openLogFile()
	if err != nil {
		return nil, err
	}
	return newHandler(logFile, ui.NewConsole(), logFile.Name()), nil
}

func newHandler(w io.Writer, console *ui.Console, logPath string) *ErrorHandler {
	return &ErrorHandler{
		logger:  slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})),
		console: console,
		logPath: logPath,
	}
}

// LogPath returns the file errors are logged to.
func (h *ErrorHandler) LogPath() string {
	return h.logPath
}

// logDir returns the OS-standard log directory, or CALM_LOG_DIR when set.
func logDir() (string, error) {
	if dir := os.Getenv("CALM_LOG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "Calm"), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		// XDG data directory
		return filepath.Join(home, ".local", "share", "calm", "logs"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Calm", "logs"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "Calm", "logs"), nil
	default:
		return filepath.Join(home, ".calm", "logs"), nil
	}
}

// ensureLogDir creates the log directory, falling back to the working
// directory when it is not writable. The bool reports the fallback.
func ensureLogDir() (string, bool, error) {
	dir, err := logDir()
	if err == nil {
		if err = os.MkdirAll(dir, 0o750); err == nil {
			if err = probeWritable(dir); err == nil {
				return dir, false, nil
			}
		}
	}

	cwd, cwdErr := os.Getwd()
	if cwdErr != nil {
		return "", true, fmt.Errorf("cannot determine current directory for fallback logging: %w", cwdErr)
	}
	fmt.Fprintf(os.Stderr, "Warning: cannot use log directory %q (%v). Logging to the current directory.\n", dir, err)
	return cwd, true, nil
}

func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		slog.Warn("Failed to close probe file", "path", name, "error", err)
	}
	return os.Remove(name)
}

// rotate shifts calm.log to calm.log.1, calm.log.1 to .2 and so on, dropping
// the oldest.
func rotate(path string) error {
	oldest := fmt.Sprintf("%s.%d", path, maxLogFiles)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove old log file", "path", oldest, "error", err)
	}
	for i := maxLogFiles - 1; i > 0; i-- {
		from := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		if err := os.Rename(from, fmt.Sprintf("%s.%d", path, i+1)); err != nil {
			slog.Warn("Failed to rotate log file", "path", from, "error", err)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Rename(path, path+".1")
}

// rotateIfLarge rotates path once it reaches maxLogFileSize.
func rotateIfLarge(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() < maxLogFileSize {
		return nil
	}
	return rotate(path)
}

func openLogFile() (*os.File, error) {
	dir, _, err := ensureLogDir()
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, logFileName)
	if err := rotateIfLarge(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to rotate log file: %v\n", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

// Handle prints err for the user and logs it. CalmErrors print their context,
// cause and suggestion; aggregated errors print one line per error.
func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	var calmErr *CalmError
	if errors.As(err, &calmErr) {
		h.logCalmError(calmErr)
		h.console.PrintError(h.console.FormatErrorMessage(calmErr.Context, calmErr.Cause, calmErr.Suggestion))
		return
	}

	h.logger.Error("Unhandled error occurred", "error", err.Error(), "type", "generic")
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			h.console.PrintError(e.Error())
		}
		return
	}
	h.console.PrintError(err.Error())
}

func (h *ErrorHandler) logCalmError(err *CalmError) {
	attrs := []slog.Attr{
		slog.String("error", err.Error()),
		slog.String("type", TypeName(err.Type)),
		slog.String("context", err.Context),
	}
	if err.Cause != "" {
		attrs = append(attrs, slog.String("cause", err.Cause))
	}
	if err.Suggestion != "" {
		attrs = append(attrs, slog.String("suggestion", err.Suggestion))
	}
	h.logger.LogAttrs(context.Background(), slog.LevelError, "Calm error occurred", attrs...)
}
