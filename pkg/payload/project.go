package payload

// Quota resource types.
const (
	QuotaVCPUs   = "VCPUS"
	QuotaStorage = "STORAGE"
	QuotaMemory  = "MEMORY"
)

// ProjectPayload is the document submitted to create or update a project.
type ProjectPayload struct {
	APIVersion string      `json:"api_version"`
	Metadata   Metadata    `json:"metadata"`
	Spec       ProjectSpec `json:"spec"`
}

// ProjectSpec wraps the project resources.
type ProjectSpec struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Resources   ProjectResources `json:"resources"`
}

// ProjectResources lists everything a project grants.
type ProjectResources struct {
	AccountReferenceList           []Reference     `json:"account_reference_list"`
	SubnetReferenceList            []Reference     `json:"subnet_reference_list"`
	ExternalNetworkList            []Reference     `json:"external_network_list"`
	ClusterReferenceList           []Reference     `json:"cluster_reference_list"`
	VPCReferenceList               []Reference     `json:"vpc_reference_list"`
	UserReferenceList              []Reference     `json:"user_reference_list"`
	ExternalUserGroupReferenceList []Reference     `json:"external_user_group_reference_list"`
	EnvironmentReferenceList       []Reference     `json:"environment_reference_list"`
	DefaultEnvironmentReference    *Reference      `json:"default_environment_reference,omitempty"`
	ResourceDomain                 *ResourceDomain `json:"resource_domain,omitempty"`
}

// ResourceDomain carries project quotas.
type ResourceDomain struct {
	Resources []QuotaResource `json:"resources"`
}

// QuotaResource is a single quota limit.
type QuotaResource struct {
	ResourceType string `json:"resource_type"`
	Limit        int64  `json:"limit"`
}

// EnvironmentPayload is the document submitted to create an environment.
type EnvironmentPayload struct {
	APIVersion string          `json:"api_version"`
	Metadata   Metadata        `json:"metadata"`
	Spec       EnvironmentSpec `json:"spec"`
}

// EnvironmentSpec wraps the environment resources.
type EnvironmentSpec struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Resources   EnvironmentResources `json:"resources"`
}

// EnvironmentResources holds default substrates, credentials and infra.
type EnvironmentResources struct {
	SubstrateDefinitionList  []Substrate      `json:"substrate_definition_list"`
	CredentialDefinitionList []Credential     `json:"credential_definition_list"`
	InfraInclusionList       []InfraInclusion `json:"infra_inclusion_list"`
}

// InfraInclusion lists the infrastructure an environment may use from an account.
type InfraInclusion struct {
	Type                   string      `json:"type"`
	AccountReference       Reference   `json:"account_reference"`
	SubnetReferences       []Reference `json:"subnet_references"`
	ClusterReferences      []Reference `json:"cluster_references"`
	VPCReferences          []Reference `json:"vpc_references"`
	DefaultSubnetReference *Reference  `json:"default_subnet_reference,omitempty"`
}
