package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"calmdsl/pkg/payload"
)

const listPageSize = 250

// Entity is an entity as returned by the server.
type Entity struct {
	APIVersion string           `json:"api_version,omitempty"`
	Metadata   payload.Metadata `json:"metadata"`
	Spec       json.RawMessage  `json:"spec,omitempty"`
	Status     Status           `json:"status"`
}

// Status is the status block of an entity.
type Status struct {
	State       string          `json:"state"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	MessageList []Message       `json:"message_list,omitempty"`
	Resources   json.RawMessage `json:"resources,omitempty"`
}

// Message is a validation or error message attached to a status.
type Message struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

// ListParams filters and pages a list call.
type ListParams struct {
	Filter string `json:"filter,omitempty"`
	Length int    `json:"length,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ListResponse is one page of entities.
type ListResponse struct {
	Metadata struct {
		TotalMatches int `json:"total_matches"`
		Length       int `json:"length"`
		Offset       int `json:"offset"`
	} `json:"metadata"`
	Entities []Entity `json:"entities"`
}

// Resource is a CRUD handler for one entity collection, e.g. "blueprints".
type Resource struct {
	conn       *Connection
	collection string
}

func newResource(conn *Connection, collection string) *Resource {
	return &Resource{conn: conn, collection: collection}
}

// Collection returns the URL collection name of the resource.
func (r *Resource) Collection() string {
	return r.collection
}

func (r *Resource) path(parts ...string) string {
	p := r.collection
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// Create posts a new entity.
func (r *Resource) Create(ctx context.Context, body any) (*Entity, error) {
	var out Entity
	if err := r.conn.Do(ctx, http.MethodPost, r.path(), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Read fetches an entity by UUID.
func (r *Resource) Read(ctx context.Context, uuid string) (*Entity, error) {
	var out Entity
	if err := r.conn.Do(ctx, http.MethodGet, r.path(uuid), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadRaw fetches an entity by UUID as a generic JSON document.
func (r *Resource) ReadRaw(ctx context.Context, uuid string) (map[string]any, error) {
	var out map[string]any
	if err := r.conn.Do(ctx, http.MethodGet, r.path(uuid), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces an entity.
func (r *Resource) Update(ctx context.Context, uuid string, body any) (*Entity, error) {
	var out Entity
	if err := r.conn.Do(ctx, http.MethodPut, r.path(uuid), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes an entity.
func (r *Resource) Delete(ctx context.Context, uuid string) error {
	return r.conn.Do(ctx, http.MethodDelete, r.path(uuid), nil, nil)
}

// List returns one page of entities.
func (r *Resource) List(ctx context.Context, params ListParams) (*ListResponse, error) {
	if params.Length == 0 {
		params.Length = 20
	}
	var out ListResponse
	if err := r.conn.Do(ctx, http.MethodPost, r.path("list"), params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAll pages through every entity matching filter.
func (r *Resource) ListAll(ctx context.Context, filter string) ([]Entity, error) {
	var all []Entity
	for offset := 0; ; {
		page, err := r.List(ctx, ListParams{Filter: filter, Length: listPageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Entities...)
		offset += len(page.Entities)
		if len(page.Entities) == 0 || offset >= page.Metadata.TotalMatches {
			return all, nil
		}
	}
}

// ErrNotFound is returned when no entity has the requested name.
var ErrNotFound = errors.New("not found")

// GetUUIDByName returns the UUID of the entity with the given name. Deleted
// entities are ignored.
func (r *Resource) GetUUIDByName(ctx context.Context, name string) (string, error) {
	page, err := r.List(ctx, ListParams{Filter: "name==" + name, Length: listPageSize})
	if err != nil {
		return "", err
	}
	var found []string
	for _, e := range page.Entities {
		if e.Status.State == "DELETED" {
			continue
		}
		if e.Metadata.Name == name || e.Status.Name == name {
			found = append(found, e.Metadata.UUID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%s %q: %w", r.collection, name, ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%d %s named %q found", len(found), r.collection, name)
	}
}
