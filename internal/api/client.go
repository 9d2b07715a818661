package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"calmdsl/pkg/payload"
)

// Client groups the resource handlers of the API.
type Client struct {
	conn   *Connection
	logger *slog.Logger

	// PollInterval and PollTimeout bound every Poll* call.
	PollInterval time.Duration
	PollTimeout  time.Duration

	Blueprints   *Blueprints
	Applications *Applications
	Runbooks     *Runbooks
	Endpoints    *Endpoints
	Projects     *Resource
	Environments *Resource
	Accounts     *Resource
	Tasks        *Tasks
	Version      *Version
}

// New creates a Client for the server described by cfg.
func New(cfg Config) (*Client, error) {
	conn, err := NewConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:         conn,
		logger:       conn.logger,
		PollInterval: 5 * time.Second,
		PollTimeout:  30 * time.Minute,
	}
	c.Blueprints = &Blueprints{uploader{Resource: newResource(conn, "blueprints"), client: c, kind: payload.KindBlueprint}}
	c.Applications = &Applications{Resource: newResource(conn, "apps"), client: c}
	c.Runbooks = &Runbooks{uploader{Resource: newResource(conn, "runbooks"), client: c, kind: payload.KindRunbook}}
	c.Endpoints = &Endpoints{uploader{Resource: newResource(conn, "endpoints"), client: c, kind: payload.KindEndpoint}}
	c.Projects = newResource(conn, "projects")
	c.Environments = newResource(conn, "environments")
	c.Accounts = newResource(conn, "accounts")
	c.Tasks = &Tasks{conn: conn, client: c}
	c.Version = &Version{conn: conn}
	return c, nil
}

// Resource returns a handler for any other collection, e.g. "subnets".
func (c *Client) Resource(collection string) *Resource {
	return newResource(c.conn, collection)
}

// Upload is the body of an import_json call.
type Upload struct {
	APIVersion string           `json:"api_version"`
	Metadata   payload.Metadata `json:"metadata"`
	Spec       UploadSpec       `json:"spec"`
}

// UploadSpec names the entity and carries its resources.
type UploadSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Resources   any    `json:"resources"`
}

// uploader implements the secret-preserving upload shared by blueprints,
// runbooks and endpoints.
type uploader struct {
	*Resource
	client *Client
	kind   string
}

// UploadWithSecrets creates an entity from compiled resources. Secret values
// are stripped before import, then written back into the created entity.
func (u uploader) UploadWithSecrets(ctx context.Context, name, description string, resources any, project *payload.Reference) (*Entity, error) {
	tree, err := toTree(resources)
	if err != nil {
		return nil, fmt.Errorf("encode %s resources: %w", u.kind, err)
	}
	secrets := stripSecrets(tree)

	body := Upload{
		APIVersion: payload.APIVersion,
		Metadata:   payload.Metadata{Kind: u.kind, Name: name, ProjectReference: project},
		Spec:       UploadSpec{Name: name, Description: description, Resources: tree},
	}
	var created Entity
	if err := u.conn.Do(ctx, http.MethodPost, u.path("import_json"), body, &created); err != nil {
		return nil, fmt.Errorf("upload %s %q: %w", u.kind, name, err)
	}
	id := created.Metadata.UUID
	u.client.logger.Info("Uploaded entity", "kind", u.kind, "name", name, "uuid", id, "secrets", len(secrets))
	if len(secrets) == 0 {
		return &created, nil
	}

	doc, err := u.ReadRaw(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read back %s %q: %w", u.kind, name, err)
	}
	spec, ok := doc["spec"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("read back %s %q: response has no spec", u.kind, name)
	}
	res, _ := spec["resources"].(map[string]any)
	if _, err := fillSecrets(res, secrets); err != nil {
		return nil, fmt.Errorf("restore secrets of %s %q: %w", u.kind, name, err)
	}
	delete(doc, "status")

	updated, err := u.Update(ctx, id, doc)
	if err != nil {
		return nil, fmt.Errorf("update secrets of %s %q: %w", u.kind, name, err)
	}
	return updated, nil
}

// Blueprints handles blueprints.
type Blueprints struct{ uploader }

// LaunchRequest is the state of a pending blueprint launch.
type LaunchRequest struct {
	Status struct {
		State           string    `json:"state"`
		ApplicationUUID string    `json:"application_uuid"`
		RequestID       string    `json:"request_id"`
		MessageList     []Message `json:"message_list,omitempty"`
	} `json:"status"`
}

// Launch deploys the blueprint as a new application and returns the launch
// request ID. profile defaults to the first profile of the blueprint.
func (b *Blueprints) Launch(ctx context.Context, uuid, appName, profile string) (string, error) {
	doc, err := b.ReadRaw(ctx, uuid)
	if err != nil {
		return "", err
	}
	spec, ok := doc["spec"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("blueprint %s has no spec", uuid)
	}
	res, _ := spec["resources"].(map[string]any)
	profiles, _ := res["app_profile_list"].([]any)

	var profileRef map[string]any
	for _, p := range profiles {
		obj, _ := p.(map[string]any)
		if obj == nil {
			continue
		}
		if profile == "" || obj["name"] == profile {
			profileRef = map[string]any{"kind": payload.KindAppProfile, "name": obj["name"], "uuid": obj["uuid"]}
			break
		}
	}
	if profileRef == nil {
		return "", fmt.Errorf("blueprint %s has no profile %q", uuid, profile)
	}

	spec["application_name"] = appName
	spec["app_profile_reference"] = profileRef
	body := map[string]any{
		"api_version": payload.APIVersion,
		"metadata":    doc["metadata"],
		"spec":        spec,
	}
	var out LaunchRequest
	if err := b.conn.Do(ctx, http.MethodPost, b.path(uuid, "simple_launch"), body, &out); err != nil {
		return "", fmt.Errorf("launch blueprint %s: %w", uuid, err)
	}
	return out.Status.RequestID, nil
}

// PollLaunch waits for a launch request to finish and returns the application UUID.
func (b *Blueprints) PollLaunch(ctx context.Context, uuid, requestID string) (string, error) {
	var appUUID string
	state, err := b.client.poll(ctx, "launch "+requestID, launchTerminal, func(ctx context.Context) (string, error) {
		var out LaunchRequest
		if err := b.conn.Do(ctx, http.MethodGet, b.path(uuid, "pending_launches", requestID), nil, &out); err != nil {
			return "", err
		}
		appUUID = out.Status.ApplicationUUID
		return out.Status.State, nil
	})
	if err != nil {
		return "", err
	}
	if state != "success" {
		return "", fmt.Errorf("launch %s ended in state %s", requestID, state)
	}
	return appUUID, nil
}

// Applications handles running applications.
type Applications struct {
	*Resource
	client *Client
}

// PollState waits until the application reaches a terminal state.
func (a *Applications) PollState(ctx context.Context, uuid string) (string, error) {
	return a.client.poll(ctx, "app "+uuid, appTerminal, func(ctx context.Context) (string, error) {
		e, err := a.Read(ctx, uuid)
		if err != nil {
			return "", err
		}
		return e.Status.State, nil
	})
}

// Runbooks handles runbooks.
type Runbooks struct{ uploader }

// RunArg is a runtime variable value passed to a runbook run.
type RunArg struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Run starts the runbook and returns the runlog UUID.
func (r *Runbooks) Run(ctx context.Context, uuid string, args []RunArg) (string, error) {
	if args == nil {
		args = []RunArg{}
	}
	body := map[string]any{
		"api_version": payload.APIVersion,
		"metadata":    payload.Metadata{Kind: payload.KindRunbook, UUID: uuid},
		"spec":        map[string]any{"args": args},
	}
	var out struct {
		Status struct {
			RunlogUUID string `json:"runlog_uuid"`
		} `json:"status"`
	}
	if err := r.conn.Do(ctx, http.MethodPost, r.path(uuid, "run"), body, &out); err != nil {
		return "", fmt.Errorf("run runbook %s: %w", uuid, err)
	}
	return out.Status.RunlogUUID, nil
}

// PollRunlog waits for a runbook run to reach a terminal state.
func (r *Runbooks) PollRunlog(ctx context.Context, runlogUUID string) (string, error) {
	return r.client.poll(ctx, "runlog "+runlogUUID, runlogTerminal, func(ctx context.Context) (string, error) {
		var out Entity
		if err := r.conn.Do(ctx, http.MethodGet, r.path("runlogs", runlogUUID), nil, &out); err != nil {
			return "", err
		}
		return out.Status.State, nil
	})
}

// Endpoints handles endpoints.
type Endpoints struct{ uploader }

// ExportFile downloads the endpoint encrypted with passphrase.
func (e *Endpoints) ExportFile(ctx context.Context, uuid, passphrase string) ([]byte, error) {
	var out []byte
	body := map[string]string{"passphrase": passphrase}
	if err := e.conn.Do(ctx, http.MethodPost, e.path(uuid, "export_file"), body, &out); err != nil {
		return nil, fmt.Errorf("export endpoint %s: %w", uuid, err)
	}
	return out, nil
}

// ImportFile uploads an exported endpoint under a new name.
func (e *Endpoints) ImportFile(ctx context.Context, data []byte, name, projectUUID, passphrase string) (*Entity, error) {
	body, contentType, err := multipartBody(map[string]string{
		"name":         name,
		"project_uuid": projectUUID,
		"passphrase":   passphrase,
	}, "file", name+".json", data)
	if err != nil {
		return nil, err
	}
	var out Entity
	if err := e.conn.send(ctx, http.MethodPost, e.path("import_file"), contentType, body, &out); err != nil {
		return nil, fmt.Errorf("import endpoint %q: %w", name, err)
	}
	return &out, nil
}

// Tasks polls ergon tasks, the platform's asynchronous operations.
type Tasks struct {
	conn   *Connection
	client *Client
}

// Poll waits for an ergon task to finish and returns its final status.
func (t *Tasks) Poll(ctx context.Context, uuid string) (string, error) {
	return t.client.poll(ctx, "task "+uuid, ergonTerminal, func(ctx context.Context) (string, error) {
		var out struct {
			Status string `json:"status"`
		}
		if err := t.conn.Do(ctx, http.MethodGet, "tasks/"+uuid, nil, &out); err != nil {
			return "", err
		}
		return out.Status, nil
	})
}
