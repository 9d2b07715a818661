package blueprint

// Provider types for substrates.
const (
	ProviderAHV      = "AHV_VM"
	ProviderExisting = "EXISTING_VM"
	ProviderAWS      = "AWS_VM"
	ProviderAzure    = "AZURE_VM"
	ProviderGCP      = "GCP_VM"
	ProviderVMware   = "VMWARE_VM"
)

// Substrate is the infrastructure backing a deployment.
type Substrate struct {
	Name           string          `yaml:"name" validate:"required"`
	Description    string          `yaml:"description,omitempty"`
	ProviderType   string          `yaml:"provider_type,omitempty" validate:"omitempty,oneof=AHV_VM EXISTING_VM AWS_VM AZURE_VM GCP_VM VMWARE_VM"`
	OSType         string          `yaml:"os_type,omitempty" validate:"omitempty,oneof=Linux Windows"`
	ProviderSpec   *AhvVM          `yaml:"provider_spec,omitempty"`
	CreateSpec     map[string]any  `yaml:"create_spec,omitempty"`
	ReadinessProbe *ReadinessProbe `yaml:"readiness_probe,omitempty"`
	Variables      []Variable      `yaml:"variables,omitempty" validate:"dive"`
	Actions        []Action        `yaml:"actions,omitempty" validate:"dive"`
}

// AhvVM is the provider spec of an AHV virtual machine.
type AhvVM struct {
	Name       string            `yaml:"name,omitempty"`
	Cluster    string            `yaml:"cluster,omitempty"`
	Categories map[string]string `yaml:"categories,omitempty"`
	Resources  AhvResources      `yaml:"resources" validate:"required"`
}

// AhvResources sizes the VM and lists its devices.
type AhvResources struct {
	Memory             int                 `yaml:"memory" validate:"gte=1"`
	VCPUs              int                 `yaml:"vcpus" validate:"gte=1"`
	CoresPerVCPU       int                 `yaml:"cores_per_vcpu,omitempty" validate:"gte=0"`
	BootType           string              `yaml:"boot_type,omitempty" validate:"omitempty,oneof=LEGACY UEFI SECURE_BOOT"`
	Disks              []AhvDisk           `yaml:"disks,omitempty" validate:"dive"`
	Nics               []AhvNic            `yaml:"nics,omitempty" validate:"dive"`
	GuestCustomization *GuestCustomization `yaml:"guest_customization,omitempty"`
	SerialPorts        map[int]bool        `yaml:"serial_ports,omitempty"`
}

// AhvDisk is a disk or CD-ROM attached to the VM.
type AhvDisk struct {
	DeviceType string `yaml:"device_type,omitempty" validate:"omitempty,oneof=DISK CDROM"`
	Bus        string `yaml:"bus,omitempty" validate:"omitempty,oneof=SCSI IDE PCI SATA"`
	Image      string `yaml:"image,omitempty"`
	Package    string `yaml:"package,omitempty"`
	Size       int    `yaml:"size,omitempty" validate:"gte=0"`
	Bootable   bool   `yaml:"bootable,omitempty"`
}

// AhvNic attaches the VM to a VLAN or overlay subnet.
type AhvNic struct {
	Subnet  string `yaml:"subnet" validate:"required"`
	Cluster string `yaml:"cluster,omitempty"`
	VPC     string `yaml:"vpc,omitempty"`
	IP      string `yaml:"ip,omitempty" validate:"omitempty,ip"`
}

// GuestCustomization configures cloud-init or sysprep.
type GuestCustomization struct {
	CloudInit *CloudInit `yaml:"cloud_init,omitempty"`
	Sysprep   *Sysprep   `yaml:"sysprep,omitempty"`
}

// CloudInit user data, given inline, as a file or as a config map.
type CloudInit struct {
	UserData string         `yaml:"user_data,omitempty"`
	Filename string         `yaml:"filename,omitempty"`
	Config   map[string]any `yaml:"config,omitempty"`
}

// Sysprep unattend XML for Windows guests.
type Sysprep struct {
	InstallType string `yaml:"install_type,omitempty" validate:"omitempty,oneof=FRESH PREPARED"`
	UnattendXML string `yaml:"unattend_xml,omitempty"`
	Filename    string `yaml:"filename,omitempty"`
}

// ReadinessProbe tells the control plane how to decide the VM is reachable.
type ReadinessProbe struct {
	ConnectionType string `yaml:"connection_type,omitempty" validate:"omitempty,oneof=SSH POWERSHELL"`
	ConnectionPort int    `yaml:"connection_port,omitempty" validate:"gte=0,lte=65535"`
	Address        string `yaml:"address,omitempty"`
	Disabled       bool   `yaml:"disabled,omitempty"`
	DelaySecs      int    `yaml:"delay_secs,omitempty" validate:"gte=0"`
	Retries        int    `yaml:"retries,omitempty" validate:"gte=0"`
	Credential     string `yaml:"credential,omitempty"`
}
