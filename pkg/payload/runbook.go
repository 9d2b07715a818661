package payload

// RunbookPayload is the document submitted to create or update a runbook.
type RunbookPayload struct {
	APIVersion string      `json:"api_version"`
	Metadata   Metadata    `json:"metadata"`
	Spec       RunbookSpec `json:"spec"`
}

// RunbookSpec wraps the runbook resources.
type RunbookSpec struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Resources   RunbookResources `json:"resources"`
}

// RunbookResources holds the task graph and its endpoints.
type RunbookResources struct {
	Runbook                  Runbook              `json:"runbook"`
	EndpointDefinitionList   []EndpointDefinition `json:"endpoint_definition_list"`
	CredentialDefinitionList []Credential         `json:"credential_definition_list"`
	DefaultTargetReference   *Reference           `json:"default_target_reference,omitempty"`
	ClientAttrs              map[string]any       `json:"client_attrs"`
}

// EndpointDefinition is an endpoint embedded in a runbook.
type EndpointDefinition struct {
	UUID            string        `json:"uuid"`
	Name            string        `json:"name"`
	Description     string        `json:"description"`
	Type            string        `json:"type"`
	ValueType       string        `json:"value_type"`
	Attrs           EndpointAttrs `json:"attrs"`
	TunnelReference *Reference    `json:"tunnel_reference,omitempty"`
}

// EndpointPayload is the document submitted to create or update an endpoint.
type EndpointPayload struct {
	APIVersion string       `json:"api_version"`
	Metadata   Metadata     `json:"metadata"`
	Spec       EndpointSpec `json:"spec"`
}

// EndpointSpec wraps the endpoint resources.
type EndpointSpec struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Resources   EndpointResources `json:"resources"`
}

// EndpointResources describes the endpoint itself.
type EndpointResources struct {
	Type            string        `json:"type"`
	ValueType       string        `json:"value_type"`
	Attrs           EndpointAttrs `json:"attrs"`
	TunnelReference *Reference    `json:"tunnel_reference,omitempty"`
}

// EndpointAttrs are the type-specific endpoint attributes.
type EndpointAttrs struct {
	URLs                     []string     `json:"urls,omitempty"`
	Values                   []string     `json:"values,omitempty"`
	Port                     int          `json:"port,omitempty"`
	ConnectionProtocol       string       `json:"connection_protocol,omitempty"`
	CredentialDefinitionList []Credential `json:"credential_definition_list,omitempty"`
	LoginCredentialReference *Reference   `json:"login_credential_reference,omitempty"`
	TLSVerify                bool         `json:"tls_verify"`
	RetryCount               int          `json:"retry_count"`
	RetryInterval            int          `json:"retry_interval"`
	ConnectionTimeout        int          `json:"connection_timeout"`
	Authentication           *HTTPAuth    `json:"authentication,omitempty"`
}
