package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"sort"
	"time"
)

// Terminal states per kind of long-running operation.
var (
	runlogTerminal = stateSet("SUCCESS", "FAILURE", "ERROR", "ABORTED")
	ergonTerminal  = stateSet("SUCCEEDED", "FAILED", "ABORTED")
	appTerminal    = stateSet("RUNNING", "STOPPED", "ERROR", "DELETED")
	launchTerminal = stateSet("success", "failure")
)

func stateSet(states ...string) map[string]bool {
	m := make(map[string]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}

// ErrPollTimeout is returned when an operation does not finish in time.
var ErrPollTimeout = errors.New("timed out waiting for a terminal state")

// poll calls fetch every PollInterval until it returns a terminal state.
func (c *Client) poll(ctx context.Context, what string, terminal map[string]bool, fetch func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	last := ""
	for {
		state, err := fetch(ctx)
		if err != nil {
			return state, fmt.Errorf("poll %s: %w", what, err)
		}
		if state != last {
			c.logger.Info("State changed", "operation", what, "state", state)
			last = state
		}
		if terminal[state] {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return state, fmt.Errorf("poll %s: last state %q: %w", what, state, ErrPollTimeout)
		case <-ticker.C:
		}
	}
}

// multipartBody builds a multipart/form-data body with fields and one file.
func multipartBody(fields map[string]string, fileField, fileName string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, k := range sortedFieldNames(fields) {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func sortedFieldNames(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
