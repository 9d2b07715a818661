package blueprint

// Document kinds understood by the parser.
const (
	KindBlueprint   = "Blueprint"
	KindRunbook     = "Runbook"
	KindEndpoint    = "Endpoint"
	KindProject     = "Project"
	KindEnvironment = "Environment"
)

// Header is shared by every DSL document.
type Header struct {
	APIVersion string   `yaml:"apiVersion" validate:"required"`
	Kind       string   `yaml:"kind" validate:"required,oneof=Blueprint Runbook Endpoint Project Environment"`
	Metadata   Metadata `yaml:"metadata" validate:"required"`
}

// Metadata contains entity-level metadata.
type Metadata struct {
	Name        string            `yaml:"name" validate:"required"`
	Description string            `yaml:"description,omitempty"`
	Project     string            `yaml:"project,omitempty"`
	Categories  map[string]string `yaml:"categories,omitempty"`
}

// Bundle holds every document parsed from a single DSL file.
type Bundle struct {
	// Dir is the directory of the DSL file; local files and scripts resolve against it.
	Dir          string
	Blueprints   []*Blueprint
	Runbooks     []*Runbook
	Endpoints    []*Endpoint
	Projects     []*Project
	Environments []*Environment
}

// Len returns the number of documents in the bundle.
func (b *Bundle) Len() int {
	return len(b.Blueprints) + len(b.Runbooks) + len(b.Endpoints) + len(b.Projects) + len(b.Environments)
}

// Endpoint returns the endpoint document with the given name.
func (b *Bundle) Endpoint(name string) *Endpoint {
	for _, ep := range b.Endpoints {
		if ep.Metadata.Name == name {
			return ep
		}
	}
	return nil
}

// Environment returns the environment document with the given name.
func (b *Bundle) Environment(name string) *Environment {
	for _, env := range b.Environments {
		if env.Metadata.Name == name {
			return env
		}
	}
	return nil
}

// Blueprint is the root object describing a multi-tier application.
type Blueprint struct {
	Header `yaml:",inline"`
	Spec   BlueprintSpec `yaml:"spec" validate:"required"`
}

// BlueprintSpec lists the entities that make up the application.
type BlueprintSpec struct {
	Credentials       []Credential `yaml:"credentials,omitempty" validate:"dive"`
	DefaultCredential string       `yaml:"default_credential,omitempty"`
	Services          []Service    `yaml:"services" validate:"required,min=1,dive"`
	Packages          []Package    `yaml:"packages,omitempty" validate:"dive"`
	Substrates        []Substrate  `yaml:"substrates" validate:"required,min=1,dive"`
	Profiles          []Profile    `yaml:"profiles" validate:"required,min=1,dive"`
}

// Service is a logical tier of the application.
type Service struct {
	Name        string     `yaml:"name" validate:"required"`
	Description string     `yaml:"description,omitempty"`
	DependsOn   []string   `yaml:"depends_on,omitempty"`
	Variables   []Variable `yaml:"variables,omitempty" validate:"dive"`
	Actions     []Action   `yaml:"actions,omitempty" validate:"dive"`
}

// Package installs one or more services, or describes a disk image.
type Package struct {
	Name        string     `yaml:"name" validate:"required"`
	Description string     `yaml:"description,omitempty"`
	Type        string     `yaml:"type,omitempty" validate:"omitempty,oneof=CUSTOM DEB SUBSTRATE_IMAGE"`
	Services    []string   `yaml:"services,omitempty"`
	Image       *DiskImage `yaml:"image,omitempty"`
	Variables   []Variable `yaml:"variables,omitempty" validate:"dive"`
	Actions     []Action   `yaml:"actions,omitempty" validate:"dive"`
}

// DiskImage describes the source of a SUBSTRATE_IMAGE package.
type DiskImage struct {
	Source       string `yaml:"source" validate:"required"`
	ImageType    string `yaml:"image_type,omitempty" validate:"omitempty,oneof=DISK_IMAGE ISO_IMAGE"`
	Architecture string `yaml:"architecture,omitempty"`
	Product      string `yaml:"product,omitempty"`
	Version      string `yaml:"version,omitempty"`
}

// Deployment places packages on a substrate.
type Deployment struct {
	Name            string   `yaml:"name" validate:"required"`
	Description     string   `yaml:"description,omitempty"`
	MinReplicas     int      `yaml:"min_replicas,omitempty" validate:"gte=0"`
	MaxReplicas     int      `yaml:"max_replicas,omitempty" validate:"gte=0"`
	DefaultReplicas int      `yaml:"default_replicas,omitempty" validate:"gte=0"`
	Packages        []string `yaml:"packages" validate:"required,min=1"`
	Substrate       string   `yaml:"substrate" validate:"required"`
	DependsOn       []string `yaml:"depends_on,omitempty"`
}

// Profile is a deployable flavour of the blueprint.
type Profile struct {
	Name        string       `yaml:"name" validate:"required"`
	Description string       `yaml:"description,omitempty"`
	Deployments []Deployment `yaml:"deployments" validate:"required,min=1,dive"`
	Variables   []Variable   `yaml:"variables,omitempty" validate:"dive"`
	Actions     []Action     `yaml:"actions,omitempty" validate:"dive"`
}

// Credential is a username plus a password or private key.
type Credential struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description,omitempty"`
	Username    string `yaml:"username" validate:"required"`
	Type        string `yaml:"type,omitempty" validate:"omitempty,oneof=PASSWORD KEY"`
	Secret      string `yaml:"secret,omitempty"`
	SecretFile  string `yaml:"secret_file,omitempty"`
	Default     bool   `yaml:"default,omitempty"`
}

// Variable is a named value available to tasks through macros.
type Variable struct {
	Name        string           `yaml:"name" validate:"required"`
	Value       string           `yaml:"value,omitempty"`
	Type        string           `yaml:"type,omitempty" validate:"omitempty,oneof=LOCAL SECRET"`
	ValType     string           `yaml:"val_type,omitempty" validate:"omitempty,oneof=STRING INT DATE TIME DATE_TIME MULTILINE_STRING"`
	Label       string           `yaml:"label,omitempty"`
	Description string           `yaml:"description,omitempty"`
	Mandatory   bool             `yaml:"mandatory,omitempty"`
	Hidden      bool             `yaml:"hidden,omitempty"`
	Runtime     bool             `yaml:"runtime,omitempty"`
	SecretFile  string           `yaml:"secret_file,omitempty"`
	Regex       *VariableRegex   `yaml:"regex,omitempty"`
	Options     *VariableOptions `yaml:"options,omitempty"`
}

// VariableRegex constrains the value of a variable.
type VariableRegex struct {
	Value    string `yaml:"value" validate:"required"`
	Validate bool   `yaml:"validate,omitempty"`
}

// VariableOptions restricts a variable to a list of choices.
type VariableOptions struct {
	Type    string   `yaml:"type,omitempty" validate:"omitempty,oneof=PREDEFINED"`
	Choices []string `yaml:"choices" validate:"required,min=1"`
}

// Action is a named, ordered set of steps attached to an entity.
type Action struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description,omitempty"`
	Tasks       []Step `yaml:"tasks,omitempty" validate:"dive"`
}
