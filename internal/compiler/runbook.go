package compiler

import (
	"calmdsl/pkg/blueprint"
	"calmdsl/pkg/payload"
)

const (
	endpointDefaultRetryCount    = 1
	endpointDefaultRetryInterval = 10
	endpointDefaultTimeout       = 120
	endpointSSHPort              = 22
	endpointWinRMPort            = 5985
	endpointWinRMTLSPort         = 5986
)

// CompileRunbook compiles a runbook document. endpoints are the endpoint
// documents the runbook may refer to by name.
func (c *Compiler) CompileRunbook(rb *blueprint.Runbook, endpoints []*blueprint.Endpoint) (*payload.RunbookPayload, error) {
	s := c.newSession(payload.KindRunbook, rb.Metadata.Name)
	spec := rb.Spec
	loc := locate("runbook", rb.Metadata.Name)

	available := make(map[string]*blueprint.Endpoint, len(endpoints))
	var availableNames []string
	for _, ep := range endpoints {
		available[ep.Metadata.Name] = ep
		availableNames = append(availableNames, ep.Metadata.Name)
	}

	defs := []payload.EndpointDefinition{}
	for _, name := range spec.Endpoints {
		ep, ok := available[name]
		if !ok {
			s.fail(loc+": endpoints", &RefError{Kind: payload.KindAppEndpoint, Name: name, Suggestion: suggest(name, availableNames)})
			continue
		}
		id := s.id("endpoint", name)
		if err := s.endpoints.add(name, id); err != nil {
			s.fail(loc, err)
			continue
		}
		at := loc + ": " + locate("endpoint", name)
		res := s.compileEndpointResources(at, "endpoint/"+name, ep.Spec)
		defs = append(defs, payload.EndpointDefinition{
			UUID:            id,
			Name:            name,
			Description:     ep.Metadata.Description,
			Type:            res.Type,
			ValueType:       res.ValueType,
			Attrs:           res.Attrs,
			TunnelReference: res.TunnelReference,
		})
	}

	// Runbook credentials are only used when a task names them.
	s.registerCredentials(loc, "", spec.Credentials, "")
	s.defaultCred = nil
	creds := s.compileCredentials(loc, "", spec.Credentials)

	for _, v := range spec.Variables {
		s.declare(v.Name)
	}
	s.declareOutputs(spec.Tasks)
	vars := s.compileVariables(loc, "runbook", spec.Variables)

	var target *payload.Reference
	if spec.DefaultTarget != "" {
		ref, err := s.endpoints.ref(spec.DefaultTarget)
		if err != nil {
			s.fail(loc+": default_target", err)
		} else {
			target = &ref
		}
	}

	g := s.newGraph(loc, "runbook", target)
	g.resolveTarget = s.endpoints.ref
	runbook := g.runbook(s.id("runbook"), rb.Metadata.Name+"_runbook", spec.Tasks, vars)
	runbook.Description = rb.Metadata.Description

	if err := s.err(); err != nil {
		return nil, err
	}
	return &payload.RunbookPayload{
		APIVersion: payload.APIVersion,
		Metadata:   s.metadata(payload.KindRunbook, rb.Header),
		Spec: payload.RunbookSpec{
			Name:        rb.Metadata.Name,
			Description: rb.Metadata.Description,
			Resources: payload.RunbookResources{
				Runbook:                  runbook,
				EndpointDefinitionList:   defs,
				CredentialDefinitionList: creds,
				DefaultTargetReference:   target,
				ClientAttrs:              map[string]any{},
			},
		},
	}, nil
}

// CompileEndpoint compiles a standalone endpoint document.
func (c *Compiler) CompileEndpoint(ep *blueprint.Endpoint) (*payload.EndpointPayload, error) {
	s := c.newSession(payload.KindEndpoint, ep.Metadata.Name)
	loc := locate("endpoint", ep.Metadata.Name)

	res := s.compileEndpointResources(loc, "", ep.Spec)
	if err := s.err(); err != nil {
		return nil, err
	}
	return &payload.EndpointPayload{
		APIVersion: payload.APIVersion,
		Metadata:   s.metadata(payload.KindEndpoint, ep.Header),
		Spec: payload.EndpointSpec{
			Name:        ep.Metadata.Name,
			Description: ep.Metadata.Description,
			Resources:   res,
		},
	}, nil
}

func (s *session) compileEndpointResources(loc, path string, spec blueprint.EndpointSpec) payload.EndpointResources {
	valueType := spec.ValueType
	if valueType == "" {
		valueType = "IP"
	}
	attrs := payload.EndpointAttrs{
		TLSVerify:         spec.Verify,
		RetryCount:        spec.RetryCount,
		RetryInterval:     spec.RetryInterval,
		ConnectionTimeout: spec.ConnectionTimeout,
	}
	if attrs.RetryCount == 0 {
		attrs.RetryCount = endpointDefaultRetryCount
	}
	if attrs.RetryInterval == 0 {
		attrs.RetryInterval = endpointDefaultRetryInterval
	}
	if attrs.ConnectionTimeout == 0 {
		attrs.ConnectionTimeout = endpointDefaultTimeout
	}

	switch spec.Type {
	case blueprint.EndpointHTTP:
		if len(spec.URLs) == 0 {
			s.failf(loc, "HTTP endpoints need at least one url")
		}
		if len(spec.Values) > 0 || len(spec.Credentials) > 0 {
			s.failf(loc, "HTTP endpoints take urls and auth, not values or credentials")
		}
		attrs.URLs = spec.URLs
		attrs.Authentication = &payload.HTTPAuth{Type: "none"}
		if a := spec.Auth; a != nil {
			password := a.Password
			if a.PasswordFile != "" {
				password = s.readLocalFile(loc+": auth", a.PasswordFile)
			}
			attrs.Authentication = &payload.HTTPAuth{
				Type:     "basic",
				Username: a.Username,
				Password: &payload.Secret{Value: password, Attrs: payload.SecretAttr{IsSecretModified: true}},
			}
		}
	case blueprint.EndpointLinux, blueprint.EndpointWindows:
		if len(spec.Values) == 0 {
			s.failf(loc, "%s endpoints need at least one value", spec.Type)
		}
		if len(spec.URLs) > 0 || spec.Auth != nil {
			s.failf(loc, "%s endpoints take values and credentials, not urls or auth", spec.Type)
		}
		attrs.Values = spec.Values
		attrs.Port = spec.Port
		if spec.Type == blueprint.EndpointLinux {
			if spec.ConnectionProtocol != "" {
				s.failf(loc, "connection_protocol only applies to Windows endpoints")
			}
			if attrs.Port == 0 {
				attrs.Port = endpointSSHPort
			}
		} else {
			attrs.ConnectionProtocol = spec.ConnectionProtocol
			if attrs.ConnectionProtocol == "" {
				attrs.ConnectionProtocol = "http"
			}
			if attrs.Port == 0 {
				attrs.Port = endpointWinRMPort
				if attrs.ConnectionProtocol == "https" {
					attrs.Port = endpointWinRMTLSPort
				}
			}
		}
		attrs.CredentialDefinitionList, attrs.LoginCredentialReference = s.endpointCredentials(loc, path, spec)
	default:
		s.failf(loc, "unsupported endpoint type %q", spec.Type)
	}

	res := payload.EndpointResources{
		Type:      spec.Type,
		ValueType: valueType,
		Attrs:     attrs,
	}
	if spec.Tunnel != "" {
		res.TunnelReference = s.platformRef(loc+": tunnel", Query{Kind: payload.KindTunnel, Name: spec.Tunnel})
	}
	return res
}

// endpointCredentials compiles the credentials of an endpoint. They live in
// their own scope; the login credential is the named one or the only one.
func (s *session) endpointCredentials(loc, path string, spec blueprint.EndpointSpec) ([]payload.Credential, *payload.Reference) {
	local := newScope(payload.KindAppCredential)
	for _, cr := range spec.Credentials {
		s.fail(loc, local.add(cr.Name, s.id(path, "credential", cr.Name)))
	}
	creds := s.compileCredentials(loc, path, spec.Credentials)

	name := spec.Cred
	if name == "" {
		if len(spec.Credentials) != 1 {
			s.failf(loc, "endpoint needs a cred when it does not have exactly one credential")
			return creds, nil
		}
		name = spec.Credentials[0].Name
	}
	ref, err := local.ref(name)
	if err != nil {
		s.fail(loc+": cred", err)
		return creds, nil
	}
	return creds, &ref
}
