package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"calmdsl/internal/api"
	"calmdsl/pkg/payload"
)

// ErrExists is returned when a document is uploaded over an existing entity
// without replacing it.
var ErrExists = errors.New("entity already exists")

// secretUploader is implemented by the blueprint, runbook and endpoint handlers.
type secretUploader interface {
	UploadWithSecrets(ctx context.Context, name, description string, resources any, project *payload.Reference) (*api.Entity, error)
	GetUUIDByName(ctx context.Context, name string) (string, error)
	Delete(ctx context.Context, uuid string) error
}

// Uploader creates compiled documents on the server.
type Uploader struct {
	client *api.Client
	// project is the default project name.
	project string
	// replace allows overwriting entities that already exist.
	replace bool

	projects map[string]string
}

// NewUploader returns an uploader. Documents naming no project go to
// project; existing entities are replaced only when replace is set.
func NewUploader(client *api.Client, project string, replace bool) *Uploader {
	return &Uploader{client: client, project: project, replace: replace, projects: make(map[string]string)}
}

// Upload creates doc on the server and returns the created entity.
//
// Blueprints, runbooks and endpoints are replaced by deleting the old entity
// and uploading again, since import is the only way to submit secrets.
// Projects and environments are updated in place.
func (u *Uploader) Upload(ctx context.Context, doc Document) (*api.Entity, error) {
	if needsVPC(doc.Payload) {
		if err := u.client.Version.Require(ctx, api.MinVPCVersion, "VPC tunnels and overlay subnets"); err != nil {
			return nil, err
		}
	}

	switch doc.Kind {
	case payload.KindBlueprint:
		return u.uploadWithSecrets(ctx, u.client.Blueprints, doc)
	case payload.KindRunbook:
		return u.uploadWithSecrets(ctx, u.client.Runbooks, doc)
	case payload.KindEndpoint:
		return u.uploadWithSecrets(ctx, u.client.Endpoints, doc)
	case payload.KindProject:
		return u.createOrUpdate(ctx, u.client.Projects, doc)
	case payload.KindEnvironment:
		return u.createOrUpdate(ctx, u.client.Environments, doc)
	default:
		return nil, fmt.Errorf("cannot upload documents of kind %q", doc.Kind)
	}
}

func (u *Uploader) uploadWithSecrets(ctx context.Context, h secretUploader, doc Document) (*api.Entity, error) {
	existing, err := h.GetUUIDByName(ctx, doc.Name)
	replaced := false
	switch {
	case err == nil:
		if !u.replace {
			return nil, fmt.Errorf("%s %q: %w", doc.Kind, doc.Name, ErrExists)
		}
		slog.Info("Replacing existing entity", "kind", doc.Kind, "name", doc.Name, "uuid", existing)
		if err := h.Delete(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to delete %s %q: %w", doc.Kind, doc.Name, err)
		}
		replaced = true
	case !errors.Is(err, api.ErrNotFound):
		return nil, fmt.Errorf("failed to look up %s %q: %w", doc.Kind, doc.Name, err)
	}

	project, err := u.projectRef(ctx, doc.Metadata.ProjectReference)
	if err != nil {
		return nil, err
	}
	entity, err := h.UploadWithSecrets(ctx, doc.Name, doc.Description, doc.Resources, project)
	if err != nil && replaced {
		slog.Error("Replaced entity was deleted but its new version failed to upload", "kind", doc.Kind, "name", doc.Name, "uuid", existing)
		return nil, fmt.Errorf("%s %q (%s) was deleted for replacement but the new version failed to upload: %w", doc.Kind, doc.Name, existing, err)
	}
	return entity, err
}

func (u *Uploader) createOrUpdate(ctx context.Context, r *api.Resource, doc Document) (*api.Entity, error) {
	md := doc.Metadata
	if doc.Kind == payload.KindEnvironment {
		project, err := u.projectRef(ctx, md.ProjectReference)
		if err != nil {
			return nil, err
		}
		if project == nil {
			return nil, fmt.Errorf("environment %q needs a project", doc.Name)
		}
		md.ProjectReference = project
	}

	if doc.Kind == payload.KindProject {
		res, err := withoutPendingEnvironments(doc.Resources)
		if err != nil {
			return nil, fmt.Errorf("project %q: %w", doc.Name, err)
		}
		doc.Resources = res
	}

	existing, err := r.GetUUIDByName(ctx, doc.Name)
	if errors.Is(err, api.ErrNotFound) {
		return r.Create(ctx, u.body(md, doc))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s %q: %w", doc.Kind, doc.Name, err)
	}
	if !u.replace {
		return nil, fmt.Errorf("%s %q: %w", doc.Kind, doc.Name, ErrExists)
	}

	current, err := r.Read(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s %q: %w", doc.Kind, doc.Name, err)
	}
	md.UUID = existing
	md.SpecVersion = current.Metadata.SpecVersion
	slog.Info("Updating existing entity", "kind", doc.Kind, "name", doc.Name, "uuid", existing)
	return r.Update(ctx, existing, u.body(md, doc))
}

func (u *Uploader) body(md payload.Metadata, doc Document) api.Upload {
	return api.Upload{
		APIVersion: payload.APIVersion,
		Metadata:   md,
		Spec:       api.UploadSpec{Name: doc.Name, Description: doc.Description, Resources: doc.Resources},
	}
}

// LinkEnvironments attaches the environments a project document names but
// could not reference at compile time. It runs once the environments exist,
// looking each one up by name, and updates the project at its current spec
// version. It reports whether the project was updated.
func (u *Uploader) LinkEnvironments(ctx context.Context, doc Document, projectUUID string) (bool, error) {
	res, err := resourceTree(doc.Resources)
	if err != nil {
		return false, fmt.Errorf("project %q: %w", doc.Name, err)
	}
	refs := refList(res["environment_reference_list"])
	def, _ := res["default_environment_reference"].(map[string]any)
	if !hasPendingRef(refs) && (def == nil || refUUID(def) != "") {
		return false, nil
	}
	if projectUUID == "" {
		return false, fmt.Errorf("project %q was not uploaded", doc.Name)
	}

	envs := make(map[string]string)
	fill := func(ref map[string]any) error {
		if refUUID(ref) != "" {
			return nil
		}
		name, _ := ref["name"].(string)
		id, ok := envs[name]
		if !ok {
			var err error
			id, err = u.client.Environments.GetUUIDByName(ctx, name)
			if errors.Is(err, api.ErrNotFound) {
				return fmt.Errorf("environment %q of project %q not found", name, doc.Name)
			}
			if err != nil {
				return fmt.Errorf("failed to look up environment %q: %w", name, err)
			}
			envs[name] = id
		}
		ref["uuid"] = id
		return nil
	}
	for _, ref := range refs {
		if err := fill(ref); err != nil {
			return false, err
		}
	}
	if def != nil {
		if err := fill(def); err != nil {
			return false, err
		}
	}

	current, err := u.client.Projects.Read(ctx, projectUUID)
	if err != nil {
		return false, fmt.Errorf("failed to read project %q: %w", doc.Name, err)
	}
	md := doc.Metadata
	md.UUID = projectUUID
	md.SpecVersion = current.Metadata.SpecVersion
	doc.Resources = res
	slog.Info("Attaching environments to project", "project", doc.Name, "environments", len(refs))
	if _, err := u.client.Projects.Update(ctx, projectUUID, u.body(md, doc)); err != nil {
		return false, fmt.Errorf("failed to attach environments to project %q: %w", doc.Name, err)
	}
	return true, nil
}

// projectRef returns ref with its UUID filled in, or a reference to the
// default project when ref is nil. It returns nil when neither is set.
func (u *Uploader) projectRef(ctx context.Context, ref *payload.Reference) (*payload.Reference, error) {
	if ref == nil {
		if u.project == "" {
			return nil, nil
		}
		ref = &payload.Reference{Kind: payload.KindProject, Name: u.project}
	}
	if ref.UUID != "" {
		return ref, nil
	}

	id, ok := u.projects[ref.Name]
	if !ok {
		var err error
		id, err = u.client.Projects.GetUUIDByName(ctx, ref.Name)
		if errors.Is(err, api.ErrNotFound) {
			return nil, fmt.Errorf("project %q not found", ref.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up project %q: %w", ref.Name, err)
		}
		u.projects[ref.Name] = id
	}
	return &payload.Reference{Kind: payload.KindProject, Name: ref.Name, UUID: id}, nil
}

// withoutPendingEnvironments returns project resources without the
// environment references that carry no UUID yet.
func withoutPendingEnvironments(resources any) (map[string]any, error) {
	res, err := resourceTree(resources)
	if err != nil {
		return nil, err
	}
	kept := []any{}
	for _, ref := range refList(res["environment_reference_list"]) {
		if refUUID(ref) != "" {
			kept = append(kept, ref)
		}
	}
	if _, ok := res["environment_reference_list"]; ok {
		res["environment_reference_list"] = kept
	}
	if def, ok := res["default_environment_reference"].(map[string]any); ok && refUUID(def) == "" {
		delete(res, "default_environment_reference")
	}
	return res, nil
}

func resourceTree(resources any) (map[string]any, error) {
	data, err := json.Marshal(resources)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resources: %w", err)
	}
	res := make(map[string]any)
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to decode resources: %w", err)
	}
	if res == nil {
		res = make(map[string]any)
	}
	return res, nil
}

func refList(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if ref, ok := item.(map[string]any); ok {
			out = append(out, ref)
		}
	}
	return out
}

func refUUID(ref map[string]any) string {
	id, _ := ref["uuid"].(string)
	return id
}

func hasPendingRef(refs []map[string]any) bool {
	for _, ref := range refs {
		if refUUID(ref) == "" {
			return true
		}
	}
	return false
}

// needsVPC reports whether a compiled document refers to VPCs or tunnels.
func needsVPC(doc any) bool {
	data, err := json.Marshal(doc)
	if err != nil {
		return false
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return false
	}
	return hasVPCRef(tree)
}

func hasVPCRef(node any) bool {
	switch n := node.(type) {
	case map[string]any:
		for k, v := range n {
			switch k {
			case "vpc_reference", "tunnel_reference":
				if v != nil {
					return true
				}
			case "vpc_reference_list", "vpc_references":
				if list, ok := v.([]any); ok && len(list) > 0 {
					return true
				}
			}
			if hasVPCRef(v) {
				return true
			}
		}
	case []any:
		for _, v := range n {
			if hasVPCRef(v) {
				return true
			}
		}
	}
	return false
}
