package payload

// BlueprintPayload is the document submitted to create or update a blueprint.
type BlueprintPayload struct {
	APIVersion string        `json:"api_version"`
	Metadata   Metadata      `json:"metadata"`
	Spec       BlueprintSpec `json:"spec"`
}

// BlueprintSpec wraps the blueprint resources.
type BlueprintSpec struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Resources   BlueprintResources `json:"resources"`
}

// BlueprintResources is the compiled entity tree of a blueprint.
type BlueprintResources struct {
	Type                            string         `json:"type"`
	ServiceDefinitionList           []Service      `json:"service_definition_list"`
	PackageDefinitionList           []Package      `json:"package_definition_list"`
	SubstrateDefinitionList         []Substrate    `json:"substrate_definition_list"`
	CredentialDefinitionList        []Credential   `json:"credential_definition_list"`
	AppProfileList                  []Profile      `json:"app_profile_list"`
	DefaultCredentialLocalReference *Reference     `json:"default_credential_local_reference,omitempty"`
	ClientAttrs                     map[string]any `json:"client_attrs"`
}

// Service is a compiled service definition.
type Service struct {
	UUID          string         `json:"uuid"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Singleton     bool           `json:"singleton"`
	Tier          string         `json:"tier"`
	PortList      []any          `json:"port_list"`
	DependsOnList []Reference    `json:"depends_on_list"`
	VariableList  []Variable     `json:"variable_list"`
	ActionList    []Action       `json:"action_list"`
	ContainerSpec map[string]any `json:"container_spec"`
}

// Package is a compiled package definition.
type Package struct {
	UUID                      string         `json:"uuid"`
	Name                      string         `json:"name"`
	Description               string         `json:"description"`
	Type                      string         `json:"type"`
	Options                   PackageOptions `json:"options"`
	ServiceLocalReferenceList []Reference    `json:"service_local_reference_list"`
	VariableList              []Variable     `json:"variable_list"`
	ActionList                []Action       `json:"action_list"`
}

// PackageOptions carries install/uninstall runbooks or disk image details.
type PackageOptions struct {
	InstallRunbook   *Runbook        `json:"install_runbook,omitempty"`
	UninstallRunbook *Runbook        `json:"uninstall_runbook,omitempty"`
	Name             string          `json:"name,omitempty"`
	Description      string          `json:"description,omitempty"`
	Resources        *ImageResources `json:"resources,omitempty"`
}

// ImageResources describes a disk image package.
type ImageResources struct {
	ImageType    string        `json:"image_type"`
	SourceURI    string        `json:"source_uri"`
	Architecture string        `json:"architecture,omitempty"`
	Version      *ImageVersion `json:"version,omitempty"`
}

// ImageVersion labels an image.
type ImageVersion struct {
	ProductName    string `json:"product_name"`
	ProductVersion string `json:"product_version"`
}

// Substrate is a compiled substrate definition. CreateSpec is *AhvVMSpec for AHV.
type Substrate struct {
	UUID           string          `json:"uuid"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Type           string          `json:"type"`
	OSType         string          `json:"os_type"`
	CreateSpec     any             `json:"create_spec"`
	ReadinessProbe *ReadinessProbe `json:"readiness_probe,omitempty"`
	VariableList   []Variable      `json:"variable_list"`
	ActionList     []Action        `json:"action_list"`
}

// ReadinessProbe is a compiled readiness probe.
type ReadinessProbe struct {
	ConnectionType                string     `json:"connection_type"`
	ConnectionPort                int        `json:"connection_port"`
	Address                       string     `json:"address"`
	DisableReadinessProbe         bool       `json:"disable_readiness_probe"`
	DelaySecs                     string     `json:"delay_secs"`
	Retries                       string     `json:"retries"`
	LoginCredentialLocalReference *Reference `json:"login_credential_local_reference,omitempty"`
}

// AhvVMSpec is the create_spec of an AHV VM substrate.
type AhvVMSpec struct {
	Name             string            `json:"name"`
	Categories       map[string]string `json:"categories,omitempty"`
	ClusterReference *Reference        `json:"cluster_reference,omitempty"`
	Resources        AhvVMResources    `json:"resources"`
}

// AhvVMResources sizes the VM.
type AhvVMResources struct {
	NumSockets         int                 `json:"num_sockets"`
	NumVcpusPerSocket  int                 `json:"num_vcpus_per_socket"`
	MemorySizeMib      int                 `json:"memory_size_mib"`
	DiskList           []AhvDisk           `json:"disk_list"`
	NicList            []AhvNic            `json:"nic_list"`
	GuestCustomization *GuestCustomization `json:"guest_customization,omitempty"`
	SerialPortList     []SerialPort        `json:"serial_port_list"`
	BootConfig         *BootConfig         `json:"boot_config,omitempty"`
}

// DiskAddress locates a disk on its adapter.
type DiskAddress struct {
	AdapterType string `json:"adapter_type"`
	DeviceIndex int    `json:"device_index"`
}

// DeviceProperties describes the kind of disk device.
type DeviceProperties struct {
	DeviceType  string      `json:"device_type"`
	DiskAddress DiskAddress `json:"disk_address"`
}

// AhvDisk is a compiled VM disk.
type AhvDisk struct {
	DeviceProperties    DeviceProperties `json:"device_properties"`
	DataSourceReference *Reference       `json:"data_source_reference,omitempty"`
	DiskSizeMib         int              `json:"disk_size_mib"`
}

// AhvNic is a compiled VM network interface.
type AhvNic struct {
	NicType                string       `json:"nic_type"`
	NetworkFunctionNicType string       `json:"network_function_nic_type"`
	SubnetReference        Reference    `json:"subnet_reference"`
	VPCReference           *Reference   `json:"vpc_reference,omitempty"`
	IPEndpointList         []IPEndpoint `json:"ip_endpoint_list"`
}

// IPEndpoint is a static IP assignment.
type IPEndpoint struct {
	IP   string `json:"ip"`
	Type string `json:"type"`
}

// GuestCustomization is compiled cloud-init or sysprep data.
type GuestCustomization struct {
	CloudInit *CloudInitData `json:"cloud_init,omitempty"`
	Sysprep   *SysprepData   `json:"sysprep,omitempty"`
}

// CloudInitData holds cloud-init user data.
type CloudInitData struct {
	UserData string `json:"user_data"`
}

// SysprepData holds the sysprep unattend XML.
type SysprepData struct {
	InstallType string `json:"install_type"`
	UnattendXML string `json:"unattend_xml"`
}

// SerialPort is a VM serial port.
type SerialPort struct {
	Index       int  `json:"index"`
	IsConnected bool `json:"is_connected"`
}

// BootConfig selects the boot disk and firmware.
type BootConfig struct {
	BootDevice BootDevice `json:"boot_device"`
	BootType   string     `json:"boot_type"`
}

// BootDevice points at the boot disk.
type BootDevice struct {
	DiskAddress DiskAddress `json:"disk_address"`
}

// Profile is a compiled application profile.
type Profile struct {
	UUID                 string       `json:"uuid"`
	Name                 string       `json:"name"`
	Description          string       `json:"description"`
	DeploymentCreateList []Deployment `json:"deployment_create_list"`
	VariableList         []Variable   `json:"variable_list"`
	ActionList           []Action     `json:"action_list"`
}

// Deployment is a compiled deployment.
type Deployment struct {
	UUID                      string      `json:"uuid"`
	Name                      string      `json:"name"`
	Description               string      `json:"description"`
	Type                      string      `json:"type"`
	MinReplicas               string      `json:"min_replicas"`
	MaxReplicas               string      `json:"max_replicas"`
	DefaultReplicas           string      `json:"default_replicas"`
	PackageLocalReferenceList []Reference `json:"package_local_reference_list"`
	SubstrateLocalReference   Reference   `json:"substrate_local_reference"`
	DependsOnList             []Reference `json:"depends_on_list"`
}
