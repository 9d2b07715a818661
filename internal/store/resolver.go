package store

import (
	"context"
	"fmt"

	"calmdsl/internal/compiler"
	"calmdsl/pkg/payload"
)

// Resolver resolves platform references from the cache.
type Resolver struct {
	store *Store
}

// NewResolver returns a compiler.PlatformResolver backed by s.
func NewResolver(s *Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve implements compiler.PlatformResolver. A name missing from the cache
// yields compiler.ErrEntityNotFound; several matches are an error asking for
// a narrower reference.
func (r *Resolver) Resolve(q compiler.Query) (payload.Reference, error) {
	found, err := r.store.Find(context.Background(), Filter{
		Kind:    q.Kind,
		Name:    q.Name,
		Account: q.Account,
		Cluster: q.Cluster,
		VPC:     q.VPC,
	})
	if err != nil {
		return payload.Reference{}, err
	}

	switch len(found) {
	case 0:
		return payload.Reference{}, fmt.Errorf("%s %q: %w", q.Kind, q.Name, compiler.ErrEntityNotFound)
	case 1:
		return payload.Reference{Kind: q.Kind, Name: found[0].Name, UUID: found[0].UUID}, nil
	default:
		return payload.Reference{}, fmt.Errorf("%d entities of kind %s are named %q, add a cluster or vpc to pick one",
			len(found), q.Kind, q.Name)
	}
}
