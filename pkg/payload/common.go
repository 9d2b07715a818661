// Package payload defines the JSON documents accepted by the control plane API.
package payload

// APIVersion is the schema version stamped on every document.
const APIVersion = "3.0"

// Reference kinds used for cross references inside and outside a document.
const (
	KindApp         = "app"
	KindBlueprint   = "blueprint"
	KindRunbook     = "runbook"
	KindEndpoint    = "endpoint"
	KindProject     = "project"
	KindEnvironment = "environment"
	KindAccount     = "account"
	KindCluster     = "cluster"
	KindSubnet      = "subnet"
	KindVPC         = "vpc"
	KindImage       = "image"
	KindUser        = "user"
	KindUserGroup   = "user_group"
	KindTunnel      = "tunnel"

	KindAppService    = "app_service"
	KindAppPackage    = "app_package"
	KindAppSubstrate  = "app_substrate"
	KindAppCredential = "app_credential"
	KindAppTask       = "app_task"
	KindAppRunbook    = "app_runbook"
	KindAppEndpoint   = "app_endpoint"
	KindAppProfile    = "app_profile"
	KindAppAction     = "app_action"
	KindAppDeployment = "app_blueprint_deployment"
)

// Reference points at another entity by kind, name and UUID.
type Reference struct {
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`
	UUID string `json:"uuid,omitempty"`
}

// Metadata is the metadata block of a top-level document.
type Metadata struct {
	Kind             string            `json:"kind"`
	Name             string            `json:"name"`
	UUID             string            `json:"uuid,omitempty"`
	SpecVersion      *int              `json:"spec_version,omitempty"`
	ProjectReference *Reference        `json:"project_reference,omitempty"`
	Categories       map[string]string `json:"categories,omitempty"`
}

// Secret carries a secret value; the server only stores it when IsSecretModified is set.
type Secret struct {
	Value string     `json:"value"`
	Attrs SecretAttr `json:"attrs"`
}

// SecretAttr flags secret values the server must persist.
type SecretAttr struct {
	IsSecretModified bool `json:"is_secret_modified"`
}

// Variable is a compiled variable definition.
type Variable struct {
	UUID        string      `json:"uuid"`
	Name        string      `json:"name"`
	Value       string      `json:"value"`
	Label       string      `json:"label"`
	Description string      `json:"description"`
	Type        string      `json:"type"`
	ValType     string      `json:"val_type"`
	DataType    string      `json:"data_type"`
	IsMandatory bool        `json:"is_mandatory"`
	IsHidden    bool        `json:"is_hidden"`
	Editables   *Editables  `json:"editables,omitempty"`
	Attrs       *SecretAttr `json:"attrs,omitempty"`
	Regex       *Regex      `json:"regex,omitempty"`
	Options     *VarOptions `json:"options,omitempty"`
}

// Editables marks fields that may be changed at launch time.
type Editables struct {
	Value bool `json:"value"`
}

// Regex is a validation pattern for a variable.
type Regex struct {
	Value          string `json:"value"`
	ShouldValidate bool   `json:"should_validate"`
}

// VarOptions lists the allowed values of a variable.
type VarOptions struct {
	Type    string   `json:"type"`
	Choices []string `json:"choices"`
}

// Credential is a compiled credential definition.
type Credential struct {
	UUID        string  `json:"uuid"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Username    string  `json:"username"`
	CredClass   string  `json:"cred_class"`
	Secret      *Secret `json:"secret"`
}
