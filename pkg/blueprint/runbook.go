package blueprint

// Endpoint types.
const (
	EndpointHTTP    = "HTTP"
	EndpointLinux   = "Linux"
	EndpointWindows = "Windows"
)

// Runbook is a standalone sequence of automation tasks.
type Runbook struct {
	Header `yaml:",inline"`
	Spec   RunbookSpec `yaml:"spec" validate:"required"`
}

// RunbookSpec lists the runbook's tasks and the endpoints they run against.
type RunbookSpec struct {
	Variables     []Variable   `yaml:"variables,omitempty" validate:"dive"`
	Credentials   []Credential `yaml:"credentials,omitempty" validate:"dive"`
	Endpoints     []string     `yaml:"endpoints,omitempty"`
	DefaultTarget string       `yaml:"default_target,omitempty"`
	Tasks         []Step       `yaml:"tasks" validate:"required,min=1,dive"`
}

// Endpoint is a named target that runbook tasks execute against.
type Endpoint struct {
	Header `yaml:",inline"`
	Spec   EndpointSpec `yaml:"spec" validate:"required"`
}

// EndpointSpec describes the hosts or URLs of an endpoint.
type EndpointSpec struct {
	Type               string       `yaml:"type" validate:"required,oneof=HTTP Linux Windows"`
	ValueType          string       `yaml:"value_type,omitempty" validate:"omitempty,oneof=IP VM"`
	Values             []string     `yaml:"values,omitempty"`
	URLs               []string     `yaml:"urls,omitempty"`
	Port               int          `yaml:"port,omitempty" validate:"gte=0,lte=65535"`
	ConnectionProtocol string       `yaml:"connection_protocol,omitempty" validate:"omitempty,oneof=http https"`
	Cred               string       `yaml:"cred,omitempty"`
	Credentials        []Credential `yaml:"credentials,omitempty" validate:"dive"`
	Verify             bool         `yaml:"verify,omitempty"`
	Auth               *BasicAuth   `yaml:"auth,omitempty"`
	RetryCount         int          `yaml:"retry_count,omitempty" validate:"gte=0"`
	RetryInterval      int          `yaml:"retry_interval,omitempty" validate:"gte=0"`
	ConnectionTimeout  int          `yaml:"connection_timeout,omitempty" validate:"gte=0"`
	Tunnel             string       `yaml:"tunnel,omitempty"`
}
