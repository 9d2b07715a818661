// Package errors defines the error kinds of the calm CLI and the handler that
// reports them.
package errors

import (
	"fmt"
	"os"
	"sync"
)

var (
	defaultHandler *ErrorHandler
	defaultErr     error
	once           sync.Once
)

// Default returns the process-wide handler, created on first use.
func Default() (*ErrorHandler, error) {
	once.Do(func() {
		defaultHandler, defaultErr = NewErrorHandler()
	})
	return defaultHandler, defaultErr
}

// HandleError reports err through the default handler, or prints it when
// the log file cannot be opened.
func HandleError(err error) {
	h, hErr := Default()
	if hErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return
	}
	h.Handle(err)
}

func resetDefaultHandler() {
	defaultHandler = nil
	defaultErr = nil
	once = sync.Once{}
}
