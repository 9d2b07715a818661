package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// MinVPCVersion is the first Calm release supporting VPC tunnels on endpoints
// and overlay subnets on projects.
const MinVPCVersion = "3.5.0"

// ErrUnsupportedVersion is returned when the server is too old for a feature.
var ErrUnsupportedVersion = errors.New("unsupported Calm version")

// Version reads the Calm version of the server.
type Version struct {
	conn *Connection

	mu     sync.Mutex
	cached *semver.Version
}

// Get returns the server's Calm version. The result is cached.
func (v *Version) Get(ctx context.Context) (*semver.Version, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cached != nil {
		return v.cached, nil
	}

	var out struct {
		Version string `json:"version"`
	}
	if err := v.conn.Do(ctx, http.MethodGet, "services/nucalm/version", nil, &out); err != nil {
		return nil, fmt.Errorf("get Calm version: %w", err)
	}
	parsed, err := semver.NewVersion(out.Version)
	if err != nil {
		return nil, fmt.Errorf("parse Calm version %q: %w", out.Version, err)
	}
	v.cached = parsed
	return parsed, nil
}

// Require fails with ErrUnsupportedVersion when the server runs a Calm
// version older than minimum.
func (v *Version) Require(ctx context.Context, minimum, feature string) error {
	current, err := v.Get(ctx)
	if err != nil {
		return err
	}
	return CheckVersion(current.String(), minimum, feature)
}

// CheckVersion compares a known server version against minimum.
func CheckVersion(current, minimum, feature string) error {
	constraint, err := semver.NewConstraint(">= " + minimum)
	if err != nil {
		return fmt.Errorf("invalid minimum version %q: %w", minimum, err)
	}
	cur, err := semver.NewVersion(current)
	if err != nil {
		return fmt.Errorf("parse Calm version %q: %w", current, err)
	}
	if !constraint.Check(cur) {
		return fmt.Errorf("%s needs Calm %s or newer, server runs %s: %w", feature, minimum, current, ErrUnsupportedVersion)
	}
	return nil
}
