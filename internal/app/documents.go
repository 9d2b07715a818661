package app

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/hashstructure/v2"

	"calmdsl/internal/compiler"
	"calmdsl/internal/scaffolder"
	"calmdsl/pkg/blueprint"
	"calmdsl/pkg/payload"
)

// Document is one compiled entity of a DSL file.
type Document struct {
	Kind        string
	Name        string
	Description string
	Metadata    payload.Metadata
	Resources   any
	// Payload is the complete compiled document.
	Payload any
}

// Key identifies the document within a run.
func (d Document) Key() string {
	return d.Kind + "/" + d.Name
}

// Compiled returns the document in the form the scaffolder writes.
func (d Document) Compiled() scaffolder.Compiled {
	return scaffolder.Compiled{Kind: d.Kind, Name: d.Name, Payload: d.Payload}
}

// CompileBundle compiles every document of bundle, in upload order: projects,
// environments, endpoints, runbooks, then blueprints. Errors of all documents
// are reported together.
func CompileBundle(c *compiler.Compiler, bundle *blueprint.Bundle) ([]Document, error) {
	var docs []Document
	errs := &multierror.Error{ErrorFormat: func(list []error) string {
		lines := make([]string, 0, len(list))
		for _, e := range list {
			lines = append(lines, e.Error())
		}
		return strings.Join(lines, "\n")
	}}

	for _, p := range bundle.Projects {
		out, err := c.CompileProject(p)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		docs = append(docs, Document{
			Kind: payload.KindProject, Name: out.Spec.Name, Description: out.Spec.Description,
			Metadata: out.Metadata, Resources: out.Spec.Resources, Payload: out,
		})
	}
	for _, env := range bundle.Environments {
		out, err := c.CompileEnvironment(env)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		docs = append(docs, Document{
			Kind: payload.KindEnvironment, Name: out.Spec.Name, Description: out.Spec.Description,
			Metadata: out.Metadata, Resources: out.Spec.Resources, Payload: out,
		})
	}
	for _, ep := range bundle.Endpoints {
		out, err := c.CompileEndpoint(ep)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		docs = append(docs, Document{
			Kind: payload.KindEndpoint, Name: out.Spec.Name, Description: out.Spec.Description,
			Metadata: out.Metadata, Resources: out.Spec.Resources, Payload: out,
		})
	}
	for _, rb := range bundle.Runbooks {
		out, err := c.CompileRunbook(rb, bundle.Endpoints)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		docs = append(docs, Document{
			Kind: payload.KindRunbook, Name: out.Spec.Name, Description: out.Spec.Description,
			Metadata: out.Metadata, Resources: out.Spec.Resources, Payload: out,
		})
	}
	for _, bp := range bundle.Blueprints {
		out, err := c.CompileBlueprint(bp)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		docs = append(docs, Document{
			Kind: payload.KindBlueprint, Name: out.Spec.Name, Description: out.Spec.Description,
			Metadata: out.Metadata, Resources: out.Spec.Resources, Payload: out,
		})
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return docs, nil
}

// payloadHash fingerprints the compiled documents of a run.
func payloadHash(docs []Document) (string, error) {
	payloads := make([]any, 0, len(docs))
	for _, d := range docs {
		payloads = append(payloads, d.Payload)
	}
	h, err := hashstructure.Hash(payloads, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("failed to hash compiled payload: %w", err)
	}
	return fmt.Sprintf("%016x", h), nil
}

// firstOfKind returns the first document of kind, or nil.
func firstOfKind(docs []Document, kind string) *Document {
	for i := range docs {
		if docs[i].Kind == kind {
			return &docs[i]
		}
	}
	return nil
}
