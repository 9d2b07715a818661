package compiler

import (
	"errors"

	"calmdsl/pkg/payload"
)

// ErrEntityNotFound is returned by resolvers that know the platform but not the entity.
var ErrEntityNotFound = errors.New("entity not found")

// Query identifies a platform entity by name, optionally narrowed by its parents.
type Query struct {
	Kind    string
	Name    string
	Account string
	Cluster string
	VPC     string
}

// PlatformResolver turns names of platform entities (clusters, subnets, images,
// accounts...) into references carrying their UUIDs.
type PlatformResolver interface {
	Resolve(q Query) (payload.Reference, error)
}

// NameOnlyResolver emits references without UUIDs and leaves resolution to the server.
type NameOnlyResolver struct{}

// Resolve implements PlatformResolver.
func (NameOnlyResolver) Resolve(q Query) (payload.Reference, error) {
	return payload.Reference{Kind: q.Kind, Name: q.Name}, nil
}

// ResolverFunc adapts a function to PlatformResolver.
type ResolverFunc func(q Query) (payload.Reference, error)

// Resolve implements PlatformResolver.
func (f ResolverFunc) Resolve(q Query) (payload.Reference, error) {
	return f(q)
}
