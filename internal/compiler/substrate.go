package compiler

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"calmdsl/pkg/blueprint"
	"calmdsl/pkg/payload"
)

const (
	defaultVMName    = "vm-@@{calm_array_index}@@-@@{calm_time}@@"
	defaultAddress   = "@@{platform.status.resources.nic_list[0].ip_endpoint_list[0].ip}@@"
	defaultProbeWait = 60
	defaultRetries   = 5
)

var substrateActions = map[string]string{
	"__pre_create__":  "pre_action_create",
	"__post_delete__": "post_action_delete",
}

// compileSubstrate compiles a substrate. path is the UUID path of the
// substrate, e.g. "substrate/WebVM".
func (s *session) compileSubstrate(loc, path string, sub blueprint.Substrate) payload.Substrate {
	at := loc + ": " + locate("substrate", sub.Name)

	provider := sub.ProviderType
	if provider == "" {
		provider = blueprint.ProviderAHV
	}
	osType := sub.OSType
	if osType == "" {
		osType = "Linux"
	}

	out := payload.Substrate{
		UUID:         s.id(path),
		Name:         sub.Name,
		Description:  sub.Description,
		Type:         provider,
		OSType:       osType,
		VariableList: s.compileVariables(at, path, sub.Variables),
		ActionList:   []payload.Action{},
	}

	switch provider {
	case blueprint.ProviderAHV:
		if sub.ProviderSpec == nil {
			s.failf(at, "AHV_VM substrates need a provider_spec")
			out.CreateSpec = map[string]any{}
		} else {
			out.CreateSpec = s.compileAhvVM(at, sub.ProviderSpec)
		}
	default:
		spec := sub.CreateSpec
		if spec == nil {
			spec = map[string]any{}
		}
		out.CreateSpec = spec
	}

	out.ReadinessProbe = s.compileProbe(at, osType, sub.ReadinessProbe)

	target, _ := s.substrates.ref(sub.Name)
	for _, a := range sub.Actions {
		name, ok := substrateActions[a.Name]
		if !ok {
			s.failf(at, "substrates only support the __pre_create__ and __post_delete__ actions, got %q", a.Name)
			continue
		}
		out.ActionList = append(out.ActionList, s.compileAction(at, path, a, name, "fragment", &target, ""))
	}
	return out
}

func (s *session) compileProbe(loc, osType string, p *blueprint.ReadinessProbe) *payload.ReadinessProbe {
	probe := &payload.ReadinessProbe{
		ConnectionType:                "SSH",
		ConnectionPort:                22,
		Address:                       defaultAddress,
		DelaySecs:                     fmt.Sprint(defaultProbeWait),
		Retries:                       fmt.Sprint(defaultRetries),
		LoginCredentialLocalReference: s.defaultCred,
	}
	if osType == "Windows" {
		probe.ConnectionType = "POWERSHELL"
		probe.ConnectionPort = 5985
	}
	if p == nil {
		return probe
	}

	if p.ConnectionType != "" {
		probe.ConnectionType = p.ConnectionType
	}
	if p.ConnectionPort != 0 {
		probe.ConnectionPort = p.ConnectionPort
	}
	if p.Address != "" {
		probe.Address = p.Address
	}
	if p.DelaySecs != 0 {
		probe.DelaySecs = fmt.Sprint(p.DelaySecs)
	}
	if p.Retries != 0 {
		probe.Retries = fmt.Sprint(p.Retries)
	}
	probe.DisableReadinessProbe = p.Disabled
	probe.LoginCredentialLocalReference = s.credRef(loc+": readiness_probe", p.Credential)
	s.checkMacros(loc+": readiness_probe", probe.Address)
	return probe
}

func (s *session) compileAhvVM(loc string, vm *blueprint.AhvVM) *payload.AhvVMSpec {
	res := vm.Resources
	cores := res.CoresPerVCPU
	if cores == 0 {
		cores = 1
	}

	name := vm.Name
	if name == "" {
		name = defaultVMName
	}

	spec := &payload.AhvVMSpec{
		Name:       name,
		Categories: vm.Categories,
		Resources: payload.AhvVMResources{
			NumSockets:        res.VCPUs,
			NumVcpusPerSocket: cores,
			MemorySizeMib:     res.Memory * 1024,
			DiskList:          []payload.AhvDisk{},
			NicList:           []payload.AhvNic{},
			SerialPortList:    []payload.SerialPort{},
		},
	}
	s.checkMacros(loc, name)

	if vm.Cluster != "" {
		spec.ClusterReference = s.platformRef(loc, Query{Kind: payload.KindCluster, Name: vm.Cluster})
	}

	var boot *payload.DiskAddress
	indexes := make(map[string]int)
	for i, d := range res.Disks {
		at := fmt.Sprintf("%s: disk %d", loc, i)
		disk := s.compileDisk(at, d, indexes)
		if d.Bootable && boot == nil {
			addr := disk.DeviceProperties.DiskAddress
			boot = &addr
		}
		spec.Resources.DiskList = append(spec.Resources.DiskList, disk)
	}
	if boot == nil && len(spec.Resources.DiskList) > 0 {
		addr := spec.Resources.DiskList[0].DeviceProperties.DiskAddress
		boot = &addr
	}
	if boot != nil {
		bootType := res.BootType
		if bootType == "" {
			bootType = "LEGACY"
		}
		spec.Resources.BootConfig = &payload.BootConfig{
			BootDevice: payload.BootDevice{DiskAddress: *boot},
			BootType:   bootType,
		}
	}

	for i, n := range res.Nics {
		at := fmt.Sprintf("%s: nic %d", loc, i)
		spec.Resources.NicList = append(spec.Resources.NicList, s.compileNic(at, n))
	}

	if gc := res.GuestCustomization; gc != nil {
		spec.Resources.GuestCustomization = s.compileGuestCustomization(loc, gc)
	}

	ports := make([]int, 0, len(res.SerialPorts))
	for idx := range res.SerialPorts {
		ports = append(ports, idx)
	}
	sort.Ints(ports)
	for _, idx := range ports {
		spec.Resources.SerialPortList = append(spec.Resources.SerialPortList, payload.SerialPort{
			Index:       idx,
			IsConnected: res.SerialPorts[idx],
		})
	}

	return spec
}

func (s *session) compileDisk(loc string, d blueprint.AhvDisk, indexes map[string]int) payload.AhvDisk {
	deviceType := d.DeviceType
	if deviceType == "" {
		deviceType = "DISK"
	}
	bus := d.Bus
	if bus == "" {
		bus = "SCSI"
		if deviceType == "CDROM" {
			bus = "IDE"
		}
	}

	disk := payload.AhvDisk{
		DeviceProperties: payload.DeviceProperties{
			DeviceType:  deviceType,
			DiskAddress: payload.DiskAddress{AdapterType: bus, DeviceIndex: indexes[bus]},
		},
		DiskSizeMib: d.Size * 1024,
	}
	indexes[bus]++

	switch {
	case d.Image != "" && d.Package != "":
		s.failf(loc, "image and package are mutually exclusive")
	case d.Image != "":
		disk.DataSourceReference = s.platformRef(loc, Query{Kind: payload.KindImage, Name: d.Image})
	case d.Package != "":
		ref, err := s.packages.ref(d.Package)
		if err != nil {
			s.fail(loc, err)
			break
		}
		disk.DataSourceReference = &ref
	case deviceType == "DISK" && d.Size == 0:
		s.failf(loc, "disk needs an image, a package or a size")
	}
	return disk
}

func (s *session) compileNic(loc string, n blueprint.AhvNic) payload.AhvNic {
	nic := payload.AhvNic{
		NicType:                "NORMAL_NIC",
		NetworkFunctionNicType: "INGRESS",
		IPEndpointList:         []payload.IPEndpoint{},
	}
	if ref := s.platformRef(loc, Query{Kind: payload.KindSubnet, Name: n.Subnet, Cluster: n.Cluster, VPC: n.VPC}); ref != nil {
		nic.SubnetReference = *ref
	}
	if n.VPC != "" {
		nic.VPCReference = s.platformRef(loc, Query{Kind: payload.KindVPC, Name: n.VPC})
	}
	if n.IP != "" {
		nic.IPEndpointList = append(nic.IPEndpointList, payload.IPEndpoint{IP: n.IP, Type: "ASSIGNED"})
	}
	return nic
}

func (s *session) compileGuestCustomization(loc string, gc *blueprint.GuestCustomization) *payload.GuestCustomization {
	out := &payload.GuestCustomization{}
	if gc.CloudInit != nil && gc.Sysprep != nil {
		s.failf(loc, "cloud_init and sysprep are mutually exclusive")
	}

	if ci := gc.CloudInit; ci != nil {
		at := loc + ": cloud_init"
		var userData string
		set := 0
		if ci.UserData != "" {
			userData = ci.UserData
			set++
		}
		if ci.Filename != "" {
			userData = s.readFile(at, ci.Filename)
			set++
		}
		if ci.Config != nil {
			data, err := yaml.Marshal(ci.Config)
			if err != nil {
				s.fail(at, err)
			}
			userData = "#cloud-config\n" + string(data)
			set++
		}
		if set != 1 {
			s.failf(at, "exactly one of user_data, filename or config is required")
		}
		s.checkMacros(at, userData)
		out.CloudInit = &payload.CloudInitData{UserData: userData}
	}

	if sp := gc.Sysprep; sp != nil {
		at := loc + ": sysprep"
		installType := sp.InstallType
		if installType == "" {
			installType = "PREPARED"
		}
		xml := sp.UnattendXML
		switch {
		case sp.UnattendXML != "" && sp.Filename != "":
			s.failf(at, "unattend_xml and filename are mutually exclusive")
		case sp.Filename != "":
			xml = s.readFile(at, sp.Filename)
		case sp.UnattendXML == "":
			s.failf(at, "needs unattend_xml or a filename")
		}
		s.checkMacros(at, xml)
		out.Sysprep = &payload.SysprepData{InstallType: installType, UnattendXML: xml}
	}
	return out
}
