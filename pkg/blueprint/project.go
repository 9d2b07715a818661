package blueprint

// Provider types accepted in projects and environments.
const (
	ProviderNutanix = "nutanix_pc"
	ProviderAWSAcct = "aws"
	ProviderAzAcct  = "azure"
	ProviderGCPAcct = "gcp"
	ProviderVMAcct  = "vmware"
	ProviderK8s     = "k8s"
)

// Project scopes accounts, users and quotas.
type Project struct {
	Header `yaml:",inline"`
	Spec   ProjectSpec `yaml:"spec" validate:"required"`
}

// ProjectSpec lists the infrastructure and people a project grants access to.
type ProjectSpec struct {
	Providers          []Provider `yaml:"providers,omitempty" validate:"dive"`
	Users              []string   `yaml:"users,omitempty"`
	Groups             []string   `yaml:"groups,omitempty"`
	Environments       []string   `yaml:"environments,omitempty"`
	DefaultEnvironment string     `yaml:"default_environment,omitempty"`
	Quotas             *Quotas    `yaml:"quotas,omitempty"`
}

// Provider is an account plus the infrastructure allowed from it.
type Provider struct {
	Type     string      `yaml:"type" validate:"required,oneof=nutanix_pc aws azure gcp vmware k8s"`
	Account  string      `yaml:"account" validate:"required"`
	Subnets  []SubnetRef `yaml:"subnets,omitempty" validate:"dive"`
	Clusters []string    `yaml:"clusters,omitempty"`
	VPCs     []string    `yaml:"vpcs,omitempty"`
}

// SubnetRef names a VLAN subnet (with cluster) or an overlay subnet (with VPC).
type SubnetRef struct {
	Name    string `yaml:"name" validate:"required"`
	Cluster string `yaml:"cluster,omitempty" validate:"required_without=VPC"`
	VPC     string `yaml:"vpc,omitempty" validate:"required_without=Cluster"`
}

// Overlay reports whether the subnet lives in a VPC.
func (s SubnetRef) Overlay() bool {
	return s.VPC != ""
}

// Quotas limit the resources a project can consume. Storage and memory are in GiB.
type Quotas struct {
	VCPUs   int `yaml:"vcpus,omitempty" validate:"gte=0"`
	Storage int `yaml:"storage,omitempty" validate:"gte=0"`
	Memory  int `yaml:"memory,omitempty" validate:"gte=0"`
}

// Environment carries default substrates and credentials for a project.
type Environment struct {
	Header `yaml:",inline"`
	Spec   EnvironmentSpec `yaml:"spec" validate:"required"`
}

// EnvironmentSpec lists the environment's entities.
type EnvironmentSpec struct {
	Substrates  []Substrate  `yaml:"substrates,omitempty" validate:"dive"`
	Credentials []Credential `yaml:"credentials,omitempty" validate:"dive"`
	Providers   []Provider   `yaml:"providers,omitempty" validate:"dive"`
}
