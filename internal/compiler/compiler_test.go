package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calmdsl/pkg/blueprint"
	"calmdsl/pkg/payload"
)

type memFiles struct {
	local map[string]string
	files map[string]string
}

func (m memFiles) ReadLocalFile(name string) (string, error) {
	if v, ok := m.local[name]; ok {
		return v, nil
	}
	return "", fmt.Errorf("local file %q not found", name)
}

func (m memFiles) ReadFile(name string) (string, error) {
	if v, ok := m.files[name]; ok {
		return v, nil
	}
	return "", fmt.Errorf("file %q not found", name)
}

func header(kind, name string) blueprint.Header {
	return blueprint.Header{APIVersion: "v1", Kind: kind, Metadata: blueprint.Metadata{Name: name}}
}

func exec(name, script string) blueprint.Step {
	return blueprint.Step{Task: blueprint.Task{Name: name, Script: script}}
}

func sampleBlueprint() *blueprint.Blueprint {
	return &blueprint.Blueprint{
		Header: header(blueprint.KindBlueprint, "Web"),
		Spec: blueprint.BlueprintSpec{
			Credentials: []blueprint.Credential{
				{Name: "root", Username: "centos", Secret: "nutanix/4u", Default: true},
			},
			Services: []blueprint.Service{{
				Name:      "App",
				Variables: []blueprint.Variable{{Name: "port", Value: "80"}},
				Actions: []blueprint.Action{
					{Name: "__create__", Tasks: []blueprint.Step{exec("install", "echo @@{port}@@")}},
					{Name: "Hello", Tasks: []blueprint.Step{exec("greet", "echo hello")}},
				},
			}},
			Packages: []blueprint.Package{{
				Name:     "AppPkg",
				Services: []string{"App"},
				Actions: []blueprint.Action{
					{Name: "__install__", Tasks: []blueprint.Step{exec("yum", "yum install -y nginx")}},
				},
			}},
			Substrates: []blueprint.Substrate{{
				Name: "AppVM",
				ProviderSpec: &blueprint.AhvVM{
					Cluster: "cluster-a",
					Resources: blueprint.AhvResources{
						Memory: 2,
						VCPUs:  2,
						Disks:  []blueprint.AhvDisk{{Image: "centos-7", Bootable: true}},
						Nics:   []blueprint.AhvNic{{Subnet: "vlan.0", Cluster: "cluster-a"}},
					},
				},
			}},
			Profiles: []blueprint.Profile{{
				Name:        "Default",
				Deployments: []blueprint.Deployment{{Name: "AppDep", Packages: []string{"AppPkg"}, Substrate: "AppVM"}},
			}},
		},
	}
}

func taskNames(tasks []payload.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Name)
	}
	return out
}

func edgeNames(t *testing.T, task payload.Task) []string {
	t.Helper()
	attrs, ok := task.Attrs.(payload.DAGAttrs)
	require.True(t, ok, "task %s is not a DAG", task.Name)
	out := make([]string, 0, len(attrs.Edges))
	for _, e := range attrs.Edges {
		out = append(out, e.FromTaskReference.Name+"->"+e.ToTaskReference.Name)
	}
	return out
}

func TestCompileBlueprint(t *testing.T) {
	c := New(Options{Deterministic: true})
	out, err := c.CompileBlueprint(sampleBlueprint())
	require.NoError(t, err)

	assert.Equal(t, payload.APIVersion, out.APIVersion)
	assert.Equal(t, payload.KindBlueprint, out.Metadata.Kind)
	res := out.Spec.Resources
	assert.Equal(t, "USER", res.Type)

	require.Len(t, res.ServiceDefinitionList, 1)
	svc := res.ServiceDefinitionList[0]
	var actions []string
	for _, a := range svc.ActionList {
		actions = append(actions, a.Name+"/"+a.Type)
	}
	assert.Equal(t, []string{
		"action_create/system",
		"action_start/system",
		"action_stop/system",
		"action_delete/system",
		"action_restart/system",
		"Hello/user",
	}, actions)

	create := svc.ActionList[0]
	assert.True(t, create.Critical)
	assert.Equal(t, "service_App_create_runbook", create.Runbook.Name)
	require.Len(t, create.Runbook.TaskDefinitionList, 2)
	dag := create.Runbook.TaskDefinitionList[0]
	assert.Equal(t, payload.TaskTypeDAG, dag.Type)
	assert.Equal(t, taskRef(dag), create.Runbook.MainTaskLocalReference)

	install := create.Runbook.TaskDefinitionList[1]
	assert.Equal(t, payload.TaskTypeExec, install.Type)
	require.NotNil(t, install.TargetAnyLocalReference)
	assert.Equal(t, payload.Reference{Kind: payload.KindAppService, Name: "App", UUID: svc.UUID}, *install.TargetAnyLocalReference)
	execAttrs := install.Attrs.(payload.ExecAttrs)
	assert.Equal(t, "sh", execAttrs.ScriptType)
	assert.Equal(t, res.DefaultCredentialLocalReference, execAttrs.LoginCredentialLocalReference)

	// Missing system actions are emitted with an empty DAG.
	start := svc.ActionList[1]
	require.Len(t, start.Runbook.TaskDefinitionList, 1)
	assert.Empty(t, start.Runbook.TaskDefinitionList[0].ChildTasksLocalReferenceList)

	require.Len(t, res.PackageDefinitionList, 1)
	pkg := res.PackageDefinitionList[0]
	assert.Equal(t, "CUSTOM", pkg.Type)
	require.NotNil(t, pkg.Options.InstallRunbook)
	require.NotNil(t, pkg.Options.UninstallRunbook)
	assert.Equal(t, []string{"package_AppPkg_install_runbook_dag", "yum"}, taskNames(pkg.Options.InstallRunbook.TaskDefinitionList))
	assert.Equal(t, []payload.Reference{{Kind: payload.KindAppService, Name: "App", UUID: svc.UUID}}, pkg.ServiceLocalReferenceList)

	require.NotNil(t, res.DefaultCredentialLocalReference)
	assert.Equal(t, "root", res.DefaultCredentialLocalReference.Name)
	require.Len(t, res.CredentialDefinitionList, 1)
	assert.Equal(t, "nutanix/4u", res.CredentialDefinitionList[0].Secret.Value)
	assert.True(t, res.CredentialDefinitionList[0].Secret.Attrs.IsSecretModified)

	require.Len(t, res.AppProfileList, 1)
	require.Len(t, res.AppProfileList[0].DeploymentCreateList, 1)
	dep := res.AppProfileList[0].DeploymentCreateList[0]
	assert.Equal(t, "1", dep.MinReplicas)
	assert.Equal(t, "1", dep.MaxReplicas)
	assert.Equal(t, "1", dep.DefaultReplicas)
	assert.Equal(t, res.SubstrateDefinitionList[0].UUID, dep.SubstrateLocalReference.UUID)
	assert.Equal(t, pkg.UUID, dep.PackageLocalReferenceList[0].UUID)

	assert.Empty(t, c.Warnings())
}

func TestCompileBlueprint_Deterministic(t *testing.T) {
	first, err := New(Options{Deterministic: true}).CompileBlueprint(sampleBlueprint())
	require.NoError(t, err)
	second, err := New(Options{Deterministic: true}).CompileBlueprint(sampleBlueprint())
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("deterministic compiles differ (-first +second):\n%s", diff)
	}

	random, err := New(Options{}).CompileBlueprint(sampleBlueprint())
	require.NoError(t, err)
	assert.NotEqual(t, first.Metadata.UUID, random.Metadata.UUID)
}

func TestCompileBlueprint_UUIDsAreUnique(t *testing.T) {
	out, err := New(Options{}).CompileBlueprint(sampleBlueprint())
	require.NoError(t, err)

	seen := make(map[string]string)
	check := func(name, id string) {
		require.NotEmpty(t, id, name)
		if prev, ok := seen[id]; ok {
			t.Errorf("UUID %s shared by %s and %s", id, prev, name)
		}
		seen[id] = name
	}
	res := out.Spec.Resources
	for _, svc := range res.ServiceDefinitionList {
		check("service "+svc.Name, svc.UUID)
		for _, a := range svc.ActionList {
			check("action "+a.Name, a.UUID)
			check("runbook "+a.Runbook.Name, a.Runbook.UUID)
			for _, task := range a.Runbook.TaskDefinitionList {
				check("task "+task.Name, task.UUID)
			}
		}
	}
	for _, sub := range res.SubstrateDefinitionList {
		check("substrate "+sub.Name, sub.UUID)
	}
}

func TestCompileBlueprint_RefErrors(t *testing.T) {
	bp := sampleBlueprint()
	bp.Spec.Packages[0].Services = []string{"Ap"}
	bp.Spec.Profiles[0].Deployments[0].Substrate = "AppVm"

	out, err := New(Options{}).CompileBlueprint(bp)
	require.Error(t, err)
	assert.Nil(t, out)

	msg := err.Error()
	assert.Contains(t, msg, `2 error(s) compiling blueprint "Web"`)
	assert.Contains(t, msg, `unknown service "Ap" (did you mean "App"?)`)
	assert.Contains(t, msg, `unknown substrate "AppVm" (did you mean "AppVM"?)`)
}

func TestCompileBlueprint_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(bp *blueprint.Blueprint)
		errMsg string
	}{
		{
			name: "two default credentials",
			mutate: func(bp *blueprint.Blueprint) {
				bp.Spec.Credentials = append(bp.Spec.Credentials,
					blueprint.Credential{Name: "admin", Username: "admin", Secret: "x", Default: true})
			},
			errMsg: "only one default credential is allowed",
		},
		{
			name: "replica bounds",
			mutate: func(bp *blueprint.Blueprint) {
				bp.Spec.Profiles[0].Deployments[0].MinReplicas = 3
				bp.Spec.Profiles[0].Deployments[0].MaxReplicas = 2
			},
			errMsg: "replicas must satisfy min (3) <= default (3) <= max (2)",
		},
		{
			name: "duplicate service",
			mutate: func(bp *blueprint.Blueprint) {
				bp.Spec.Services = append(bp.Spec.Services, blueprint.Service{Name: "App"})
			},
			errMsg: `duplicate service name "App"`,
		},
		{
			name: "duplicate task name",
			mutate: func(bp *blueprint.Blueprint) {
				bp.Spec.Services[0].Actions[1].Tasks = append(bp.Spec.Services[0].Actions[1].Tasks, exec("greet", "echo again"))
			},
			errMsg: `duplicate task name "greet"`,
		},
		{
			name: "unknown system action",
			mutate: func(bp *blueprint.Blueprint) {
				bp.Spec.Services[0].Actions = append(bp.Spec.Services[0].Actions, blueprint.Action{Name: "__scale__"})
			},
			errMsg: `unknown service system action "__scale__"`,
		},
		{
			name: "script and filename",
			mutate: func(bp *blueprint.Blueprint) {
				bp.Spec.Services[0].Actions[1].Tasks[0].Filename = "scripts/greet.sh"
			},
			errMsg: "script and filename are mutually exclusive",
		},
		{
			name: "option value outside choices",
			mutate: func(bp *blueprint.Blueprint) {
				bp.Spec.Services[0].Variables[0].Options = &blueprint.VariableOptions{Choices: []string{"8080", "8443"}}
			},
			errMsg: `value "80" is not one of the choices`,
		},
		{
			name: "package without services",
			mutate: func(bp *blueprint.Blueprint) {
				bp.Spec.Packages[0].Services = nil
			},
			errMsg: "package must install at least one service",
		},
		{
			name: "disk image without image",
			mutate: func(bp *blueprint.Blueprint) {
				bp.Spec.Packages = append(bp.Spec.Packages, blueprint.Package{Name: "Img", Type: "SUBSTRATE_IMAGE"})
			},
			errMsg: "disk image packages need an image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := sampleBlueprint()
			tt.mutate(bp)
			_, err := New(Options{}).CompileBlueprint(bp)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestCompileBlueprint_SecretFiles(t *testing.T) {
	bp := sampleBlueprint()
	bp.Spec.Credentials[0].Secret = ""
	bp.Spec.Credentials[0].SecretFile = "root_password"
	bp.Spec.Services[0].Actions[1].Tasks[0] = blueprint.Step{Task: blueprint.Task{Name: "greet", Filename: "scripts/greet.sh"}}

	_, err := New(Options{}).CompileBlueprint(bp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file reader configured")

	files := memFiles{
		local: map[string]string{"root_password": "s3cret"},
		files: map[string]string{"scripts/greet.sh": "echo from file"},
	}
	out, err := New(Options{Files: files}).CompileBlueprint(bp)
	require.NoError(t, err)

	res := out.Spec.Resources
	assert.Equal(t, "s3cret", res.CredentialDefinitionList[0].Secret.Value)
	hello := res.ServiceDefinitionList[0].ActionList[5]
	require.Equal(t, "Hello", hello.Name)
	assert.Equal(t, "echo from file", hello.Runbook.TaskDefinitionList[1].Attrs.(payload.ExecAttrs).Script)
}

func TestCompileBlueprint_CallTask(t *testing.T) {
	bp := sampleBlueprint()
	svc := &bp.Spec.Services[0]
	// Calls may refer to actions declared later in the document.
	svc.Actions = append([]blueprint.Action{{
		Name:  "Wave",
		Tasks: []blueprint.Step{{Task: blueprint.Task{Name: "call_hello", Call: &blueprint.CallTask{Action: "Hello"}}}},
	}}, svc.Actions...)

	out, err := New(Options{}).CompileBlueprint(bp)
	require.NoError(t, err)

	compiled := out.Spec.Resources.ServiceDefinitionList[0]
	var wave, hello payload.Action
	for _, a := range compiled.ActionList {
		switch a.Name {
		case "Wave":
			wave = a
		case "Hello":
			hello = a
		}
	}
	call := wave.Runbook.TaskDefinitionList[1]
	assert.Equal(t, payload.TaskTypeCallRunbook, call.Type)
	assert.Equal(t, hello.Runbook.UUID, call.Attrs.(payload.CallRunbookAttrs).RunbookReference.UUID)
	assert.Equal(t, compiled.UUID, call.TargetAnyLocalReference.UUID)

	svc.Actions[0].Tasks[0].Call.Action = "Helo"
	_, err = New(Options{}).CompileBlueprint(bp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown action "Helo" (did you mean "Hello"?)`)
}

func TestCompileBlueprint_MacroWarnings(t *testing.T) {
	bp := sampleBlueprint()
	bp.Spec.Services[0].Actions[1].Tasks[0].Script = "echo @@{port}@@ @@{calm_time}@@ @@{address}@@ @@{undeclared}@@"

	c := New(Options{})
	_, err := c.CompileBlueprint(bp)
	require.NoError(t, err)

	warnings := c.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "@@{undeclared}@@")
}

func TestCompileBlueprint_UninstalledServiceWarning(t *testing.T) {
	bp := sampleBlueprint()
	bp.Spec.Services = append(bp.Spec.Services, blueprint.Service{Name: "Orphan"})

	c := New(Options{})
	_, err := c.CompileBlueprint(bp)
	require.NoError(t, err)
	require.Len(t, c.Warnings(), 1)
	assert.Equal(t, `service "Orphan": not installed by any package`, c.Warnings()[0])
}

func TestCompileAhvVM(t *testing.T) {
	resolver := ResolverFunc(func(q Query) (payload.Reference, error) {
		return payload.Reference{Kind: q.Kind, Name: q.Name, UUID: q.Kind + "-" + q.Name}, nil
	})
	bp := sampleBlueprint()
	bp.Spec.Substrates[0].ProviderSpec.Resources = blueprint.AhvResources{
		Memory:       4,
		VCPUs:        2,
		CoresPerVCPU: 2,
		Disks: []blueprint.AhvDisk{
			{DeviceType: "CDROM"},
			{Image: "centos-7"},
			{Size: 10, Bootable: true},
		},
		Nics: []blueprint.AhvNic{
			{Subnet: "vlan.0", Cluster: "cluster-a", IP: "10.0.0.5"},
			{Subnet: "overlay", VPC: "vpc-a"},
		},
		GuestCustomization: &blueprint.GuestCustomization{
			CloudInit: &blueprint.CloudInit{Config: map[string]any{"hostname": "web"}},
		},
		SerialPorts: map[int]bool{1: true, 0: false},
	}

	out, err := New(Options{Resolver: resolver}).CompileBlueprint(bp)
	require.NoError(t, err)

	sub := out.Spec.Resources.SubstrateDefinitionList[0]
	assert.Equal(t, "AHV_VM", sub.Type)
	assert.Equal(t, "Linux", sub.OSType)
	spec, ok := sub.CreateSpec.(*payload.AhvVMSpec)
	require.True(t, ok)

	assert.Equal(t, defaultVMName, spec.Name)
	assert.Equal(t, "cluster-cluster-a", spec.ClusterReference.UUID)
	assert.Equal(t, 4096, spec.Resources.MemorySizeMib)
	assert.Equal(t, 2, spec.Resources.NumSockets)
	assert.Equal(t, 2, spec.Resources.NumVcpusPerSocket)

	want := []payload.AhvDisk{
		{
			DeviceProperties: payload.DeviceProperties{DeviceType: "CDROM", DiskAddress: payload.DiskAddress{AdapterType: "IDE", DeviceIndex: 0}},
		},
		{
			DeviceProperties:    payload.DeviceProperties{DeviceType: "DISK", DiskAddress: payload.DiskAddress{AdapterType: "SCSI", DeviceIndex: 0}},
			DataSourceReference: &payload.Reference{Kind: payload.KindImage, Name: "centos-7", UUID: "image-centos-7"},
		},
		{
			DeviceProperties: payload.DeviceProperties{DeviceType: "DISK", DiskAddress: payload.DiskAddress{AdapterType: "SCSI", DeviceIndex: 1}},
			DiskSizeMib:      10240,
		},
	}
	if diff := cmp.Diff(want, spec.Resources.DiskList); diff != "" {
		t.Errorf("disk list mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, spec.Resources.BootConfig)
	assert.Equal(t, payload.DiskAddress{AdapterType: "SCSI", DeviceIndex: 1}, spec.Resources.BootConfig.BootDevice.DiskAddress)
	assert.Equal(t, "LEGACY", spec.Resources.BootConfig.BootType)

	require.Len(t, spec.Resources.NicList, 2)
	assert.Equal(t, []payload.IPEndpoint{{IP: "10.0.0.5", Type: "ASSIGNED"}}, spec.Resources.NicList[0].IPEndpointList)
	assert.Nil(t, spec.Resources.NicList[0].VPCReference)
	require.NotNil(t, spec.Resources.NicList[1].VPCReference)
	assert.Equal(t, "vpc-vpc-a", spec.Resources.NicList[1].VPCReference.UUID)

	require.NotNil(t, spec.Resources.GuestCustomization)
	assert.Equal(t, "#cloud-config\nhostname: web\n", spec.Resources.GuestCustomization.CloudInit.UserData)
	assert.Equal(t, []payload.SerialPort{{Index: 0, IsConnected: false}, {Index: 1, IsConnected: true}}, spec.Resources.SerialPortList)

	require.NotNil(t, sub.ReadinessProbe)
	assert.Equal(t, "SSH", sub.ReadinessProbe.ConnectionType)
	assert.Equal(t, 22, sub.ReadinessProbe.ConnectionPort)
	assert.Equal(t, "60", sub.ReadinessProbe.DelaySecs)
	assert.Equal(t, "root", sub.ReadinessProbe.LoginCredentialLocalReference.Name)
}

func TestPlatformRef_NotFound(t *testing.T) {
	resolver := ResolverFunc(func(q Query) (payload.Reference, error) {
		return payload.Reference{}, ErrEntityNotFound
	})
	c := New(Options{Resolver: resolver})
	out, err := c.CompileBlueprint(sampleBlueprint())
	require.NoError(t, err)

	spec := out.Spec.Resources.SubstrateDefinitionList[0].CreateSpec.(*payload.AhvVMSpec)
	assert.Equal(t, &payload.Reference{Kind: payload.KindCluster, Name: "cluster-a"}, spec.ClusterReference)
	assert.Len(t, c.Warnings(), 3)
	for _, w := range c.Warnings() {
		assert.Contains(t, w, "not found in the local cache")
	}
}

func TestCompileRunbook_Edges(t *testing.T) {
	rb := &blueprint.Runbook{
		Header: header(blueprint.KindRunbook, "Hello"),
		Spec: blueprint.RunbookSpec{
			Tasks: []blueprint.Step{
				exec("A", "echo a"),
				{Parallel: []blueprint.Branch{
					{Tasks: []blueprint.Step{exec("B", "echo b"), exec("C", "echo c")}},
					{Tasks: []blueprint.Step{exec("D", "echo d")}},
				}},
				exec("E", "echo e"),
			},
		},
	}

	out, err := New(Options{}).CompileRunbook(rb, nil)
	require.NoError(t, err)

	runbook := out.Spec.Resources.Runbook
	assert.Equal(t, "Hello_runbook", runbook.Name)
	assert.Equal(t, []string{"Hello_runbook_dag", "A", "B", "C", "D", "E"}, taskNames(runbook.TaskDefinitionList))

	dag := runbook.TaskDefinitionList[0]
	assert.Len(t, dag.ChildTasksLocalReferenceList, 5)
	assert.ElementsMatch(t, []string{"A->B", "A->D", "B->C", "C->E", "D->E"}, edgeNames(t, dag))
}

func TestCompileRunbook_DecisionAndLoop(t *testing.T) {
	rb := &blueprint.Runbook{
		Header: header(blueprint.KindRunbook, "Branchy"),
		Spec: blueprint.RunbookSpec{
			Tasks: []blueprint.Step{
				{Task: blueprint.Task{
					Name:   "check",
					Script: "exit 0",
					Decision: &blueprint.DecisionTask{
						Success: []blueprint.Step{exec("yes", "echo yes")},
						Failure: []blueprint.Step{exec("no", "echo no")},
					},
				}},
				{Task: blueprint.Task{
					Name: "repeat",
					Loop: &blueprint.LoopTask{Iterations: "3", Tasks: []blueprint.Step{exec("body", "echo @@{iteration}@@")}},
				}},
			},
		},
	}

	out, err := New(Options{}).CompileRunbook(rb, nil)
	require.NoError(t, err)

	tasks := out.Spec.Resources.Runbook.TaskDefinitionList
	assert.Equal(t, []string{
		"Branchy_runbook_dag",
		"check", "check_success", "check_success_dag", "yes", "check_failure", "check_failure_dag", "no",
		"repeat", "repeat_loop", "repeat_loop_dag", "body",
	}, taskNames(tasks))

	assert.Equal(t, []string{"check->repeat"}, edgeNames(t, tasks[0]))

	check := tasks[1]
	assert.Equal(t, payload.TaskTypeDecision, check.Type)
	attrs := check.Attrs.(payload.DecisionAttrs)
	assert.Equal(t, "check_success", attrs.SuccessChildReference.Name)
	assert.Equal(t, "check_failure", attrs.FailureChildReference.Name)
	assert.Equal(t, payload.TaskTypeMeta, tasks[2].Type)
	assert.Equal(t, "check_success_dag", tasks[2].ChildTasksLocalReferenceList[0].Name)

	loop := tasks[8]
	assert.Equal(t, payload.TaskTypeWhileLoop, loop.Type)
	assert.Equal(t, payload.WhileLoopAttrs{Iterations: "3", LoopVariable: "iteration", ExitConditionType: "dont_care"}, loop.Attrs)
	assert.Equal(t, []payload.Reference{taskRef(tasks[9])}, loop.ChildTasksLocalReferenceList)
}

func TestCompileRunbook_Endpoints(t *testing.T) {
	ep := &blueprint.Endpoint{
		Header: header(blueprint.KindEndpoint, "linux-hosts"),
		Spec: blueprint.EndpointSpec{
			Type:        blueprint.EndpointLinux,
			Values:      []string{"10.0.0.1"},
			Credentials: []blueprint.Credential{{Name: "ssh", Username: "root", Secret: "pw"}},
		},
	}
	rb := &blueprint.Runbook{
		Header: header(blueprint.KindRunbook, "Ping"),
		Spec: blueprint.RunbookSpec{
			Endpoints:     []string{"linux-hosts"},
			DefaultTarget: "linux-hosts",
			Variables:     []blueprint.Variable{{Name: "count", Value: "3", Runtime: true}},
			Tasks: []blueprint.Step{
				exec("ping", "ping -c @@{count}@@ localhost"),
				{Task: blueprint.Task{Name: "api", HTTP: &blueprint.HTTPTask{
					URL:           "https://example.com/health",
					StatusMapping: map[int]bool{500: false, 200: true},
				}}},
			},
		},
	}

	c := New(Options{})
	out, err := c.CompileRunbook(rb, []*blueprint.Endpoint{ep})
	require.NoError(t, err)
	assert.Empty(t, c.Warnings())

	res := out.Spec.Resources
	require.Len(t, res.EndpointDefinitionList, 1)
	def := res.EndpointDefinitionList[0]
	assert.Equal(t, 22, def.Attrs.Port)
	assert.Equal(t, "IP", def.ValueType)
	require.NotNil(t, def.Attrs.LoginCredentialReference)
	assert.Equal(t, "ssh", def.Attrs.LoginCredentialReference.Name)

	require.NotNil(t, res.DefaultTargetReference)
	assert.Equal(t, def.UUID, res.DefaultTargetReference.UUID)
	ping := res.Runbook.TaskDefinitionList[1]
	assert.Equal(t, def.UUID, ping.TargetAnyLocalReference.UUID)
	assert.Nil(t, ping.Attrs.(payload.ExecAttrs).LoginCredentialLocalReference)

	vars := res.Runbook.VariableList
	require.Len(t, vars, 1)
	require.NotNil(t, vars[0].Editables)
	assert.True(t, vars[0].Editables.Value)

	http := res.Runbook.TaskDefinitionList[2].Attrs.(payload.HTTPAttrs)
	assert.Equal(t, "GET", http.Method)
	assert.Equal(t, 120, http.ConnectionTimeout)
	assert.Equal(t, []payload.ResponseParam{{Status: "SUCCESS", Code: 200}, {Status: "FAILURE", Code: 500}}, http.ExpectedResponseParams)

	rb.Spec.Endpoints = []string{"linux-host"}
	_, err = New(Options{}).CompileRunbook(rb, []*blueprint.Endpoint{ep})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown endpoint "linux-host" (did you mean "linux-hosts"?)`)
}

func TestCompileEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		spec   blueprint.EndpointSpec
		check  func(t *testing.T, attrs payload.EndpointAttrs)
		errMsg string
	}{
		{
			name: "windows https",
			spec: blueprint.EndpointSpec{
				Type:               blueprint.EndpointWindows,
				Values:             []string{"10.0.0.2"},
				ConnectionProtocol: "https",
				Cred:               "admin",
				Credentials: []blueprint.Credential{
					{Name: "admin", Username: "Administrator", Secret: "pw"},
					{Name: "other", Username: "other", Secret: "pw"},
				},
			},
			check: func(t *testing.T, attrs payload.EndpointAttrs) {
				assert.Equal(t, 5986, attrs.Port)
				assert.Equal(t, "admin", attrs.LoginCredentialReference.Name)
				assert.Len(t, attrs.CredentialDefinitionList, 2)
			},
		},
		{
			name: "http with basic auth",
			spec: blueprint.EndpointSpec{
				Type: blueprint.EndpointHTTP,
				URLs: []string{"https://example.com"},
				Auth: &blueprint.BasicAuth{Username: "u", Password: "p"},
			},
			check: func(t *testing.T, attrs payload.EndpointAttrs) {
				assert.Equal(t, "basic", attrs.Authentication.Type)
				assert.Equal(t, 1, attrs.RetryCount)
				assert.Equal(t, 10, attrs.RetryInterval)
			},
		},
		{
			name:   "http without urls",
			spec:   blueprint.EndpointSpec{Type: blueprint.EndpointHTTP},
			errMsg: "HTTP endpoints need at least one url",
		},
		{
			name: "linux without login credential",
			spec: blueprint.EndpointSpec{
				Type:   blueprint.EndpointLinux,
				Values: []string{"10.0.0.1"},
			},
			errMsg: "endpoint needs a cred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := &blueprint.Endpoint{Header: header(blueprint.KindEndpoint, "ep"), Spec: tt.spec}
			out, err := New(Options{}).CompileEndpoint(ep)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, payload.KindEndpoint, out.Metadata.Kind)
			tt.check(t, out.Spec.Resources.Attrs)
		})
	}
}

func TestCompileProject(t *testing.T) {
	p := &blueprint.Project{
		Header: header(blueprint.KindProject, "dev"),
		Spec: blueprint.ProjectSpec{
			Providers: []blueprint.Provider{
				{
					Type:     blueprint.ProviderNutanix,
					Account:  "NTNX_LOCAL_AZ",
					Clusters: []string{"cluster-a"},
					VPCs:     []string{"vpc-a"},
					Subnets: []blueprint.SubnetRef{
						{Name: "vlan.0", Cluster: "cluster-a"},
						{Name: "overlay", VPC: "vpc-a"},
						{Name: "overlay-b", VPC: "vpc-b"},
					},
				},
				{Type: blueprint.ProviderAWSAcct, Account: "aws-main"},
			},
			Users:              []string{"alice@example.com"},
			Groups:             []string{"cn=ops"},
			Environments:       []string{"env-a", "env-b"},
			DefaultEnvironment: "env-b",
			Quotas:             &blueprint.Quotas{VCPUs: 4, Storage: 10, Memory: 2},
		},
	}

	out, err := New(Options{}).CompileProject(p)
	require.NoError(t, err)
	res := out.Spec.Resources

	names := func(refs []payload.Reference) []string {
		var out []string
		for _, r := range refs {
			out = append(out, r.Name)
		}
		return out
	}
	assert.Equal(t, []string{"NTNX_LOCAL_AZ", "aws-main"}, names(res.AccountReferenceList))
	assert.Equal(t, []string{"vlan.0"}, names(res.SubnetReferenceList))
	assert.Equal(t, []string{"overlay", "overlay-b"}, names(res.ExternalNetworkList))
	assert.Equal(t, []string{"vpc-a", "vpc-b"}, names(res.VPCReferenceList))
	assert.Equal(t, []string{"cluster-a"}, names(res.ClusterReferenceList))
	assert.Equal(t, []string{"alice@example.com"}, names(res.UserReferenceList))
	assert.Equal(t, []string{"cn=ops"}, names(res.ExternalUserGroupReferenceList))
	require.NotNil(t, res.DefaultEnvironmentReference)
	assert.Equal(t, "env-b", res.DefaultEnvironmentReference.Name)

	want := &payload.ResourceDomain{Resources: []payload.QuotaResource{
		{ResourceType: payload.QuotaVCPUs, Limit: 4},
		{ResourceType: payload.QuotaStorage, Limit: 10 * 1024 * 1024 * 1024},
		{ResourceType: payload.QuotaMemory, Limit: 2 * 1024 * 1024 * 1024},
	}}
	if diff := cmp.Diff(want, res.ResourceDomain); diff != "" {
		t.Errorf("quota mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileProject_Errors(t *testing.T) {
	p := &blueprint.Project{
		Header: header(blueprint.KindProject, "dev"),
		Spec: blueprint.ProjectSpec{
			Providers: []blueprint.Provider{
				{Type: blueprint.ProviderAWSAcct, Account: "aws-main", Clusters: []string{"c"}},
			},
			Environments:       []string{"env-a"},
			DefaultEnvironment: "env-x",
		},
	}

	_, err := New(Options{}).CompileProject(p)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "only nutanix_pc providers take subnets, clusters or vpcs")
	assert.Contains(t, msg, `unknown environment "env-x"`)
	assert.True(t, strings.HasPrefix(msg, `2 error(s) compiling project "dev"`))
}

func TestCompileEnvironment(t *testing.T) {
	env := &blueprint.Environment{
		Header: header(blueprint.KindEnvironment, "env-a"),
		Spec: blueprint.EnvironmentSpec{
			Credentials: []blueprint.Credential{{Name: "root", Username: "centos", Secret: "pw"}},
			Substrates: []blueprint.Substrate{{
				Name:   "WinVM",
				OSType: "Windows",
				ProviderSpec: &blueprint.AhvVM{Resources: blueprint.AhvResources{
					Memory: 4, VCPUs: 2,
					Disks: []blueprint.AhvDisk{{Image: "win2019"}},
				}},
			}},
			Providers: []blueprint.Provider{{
				Type:    blueprint.ProviderNutanix,
				Account: "NTNX_LOCAL_AZ",
				Subnets: []blueprint.SubnetRef{{Name: "vlan.0", Cluster: "cluster-a"}, {Name: "vlan.1", Cluster: "cluster-a"}},
			}},
		},
	}

	out, err := New(Options{}).CompileEnvironment(env)
	require.NoError(t, err)
	res := out.Spec.Resources

	require.Len(t, res.SubstrateDefinitionList, 1)
	sub := res.SubstrateDefinitionList[0]
	assert.Equal(t, "POWERSHELL", sub.ReadinessProbe.ConnectionType)
	assert.Equal(t, 5985, sub.ReadinessProbe.ConnectionPort)
	assert.Equal(t, "root", sub.ReadinessProbe.LoginCredentialLocalReference.Name)

	require.Len(t, res.InfraInclusionList, 1)
	inc := res.InfraInclusionList[0]
	assert.Equal(t, "nutanix_pc", inc.Type)
	assert.Len(t, inc.SubnetReferences, 2)
	require.NotNil(t, inc.DefaultSubnetReference)
	assert.Equal(t, "vlan.0", inc.DefaultSubnetReference.Name)
}

func TestSuggest(t *testing.T) {
	candidates := []string{"WebService", "DBService", "LoadBalancer"}
	assert.Equal(t, "WebService", suggest("webservice", candidates))
	assert.Equal(t, "DBService", suggest("DbServce", candidates))
	assert.Equal(t, "", suggest("Cache", candidates))
	assert.Equal(t, "", suggest("anything", nil))
}

func TestMacroRoot(t *testing.T) {
	tests := map[string]string{
		"port":                                  "port",
		" platform.status.resources.nic_list[0]": "platform",
		"calm_array_index":                      "calm_array_index",
		"items[0]":                              "items",
	}
	for in, want := range tests {
		assert.Equal(t, want, macroRoot(in), in)
	}
	assert.Equal(t, []string{"a", "b.c"}, macros("x @@{a}@@ y @@{b.c}@@"))
}

func TestCompileRunbook_ParallelBareTasks(t *testing.T) {
	single := func(name string) blueprint.Branch {
		return blueprint.Branch{Tasks: []blueprint.Step{exec(name, "date")}}
	}
	rb := &blueprint.Runbook{
		Header: header(blueprint.KindRunbook, "Dates"),
		Spec: blueprint.RunbookSpec{
			Tasks: []blueprint.Step{
				exec("Task21", "date"),
				{Parallel: []blueprint.Branch{single("Task22a"), single("Task22b")}},
				exec("Task23", "date"),
			},
		},
	}

	out, err := New(Options{}).CompileRunbook(rb, nil)
	require.NoError(t, err)

	runbook := out.Spec.Resources.Runbook
	assert.Equal(t, []string{"Dates_runbook_dag", "Task21", "Task22a", "Task22b", "Task23"}, taskNames(runbook.TaskDefinitionList))
	assert.ElementsMatch(t, []string{
		"Task21->Task22a", "Task21->Task22b",
		"Task22a->Task23", "Task22b->Task23",
	}, edgeNames(t, runbook.TaskDefinitionList[0]))
}

func TestCompileBlueprint_SubstrateActions(t *testing.T) {
	bp := sampleBlueprint()
	escript := func(name, script string) blueprint.Step {
		return blueprint.Step{Task: blueprint.Task{Name: name, ScriptType: blueprint.ScriptEscript, Script: script}}
	}
	bp.Spec.Substrates[0].Actions = []blueprint.Action{
		{Name: "__pre_create__", Tasks: []blueprint.Step{escript("PreTask", "print 'before'")}},
		{Name: "__post_delete__", Tasks: []blueprint.Step{escript("PostTask", "print 'after'")}},
	}

	out, err := New(Options{Deterministic: true}).CompileBlueprint(bp)
	require.NoError(t, err)

	sub := out.Spec.Resources.SubstrateDefinitionList[0]
	want := payload.Reference{Kind: payload.KindAppSubstrate, Name: "AppVM", UUID: sub.UUID}
	require.Len(t, sub.ActionList, 2)
	for i, name := range []string{"pre_action_create", "post_action_delete"} {
		action := sub.ActionList[i]
		assert.Equal(t, name, action.Name)
		assert.Equal(t, "fragment", action.Type)
		assert.False(t, action.Critical)

		tasks := action.Runbook.TaskDefinitionList
		require.Len(t, tasks, 2)
		for _, task := range tasks {
			require.NotNil(t, task.TargetAnyLocalReference, "task %s has no target", task.Name)
			assert.Equal(t, want, *task.TargetAnyLocalReference)
		}
	}
}

func TestCompileBlueprint_UnknownSubstrateAction(t *testing.T) {
	bp := sampleBlueprint()
	bp.Spec.Substrates[0].Actions = []blueprint.Action{
		{Name: "__create__", Tasks: []blueprint.Step{exec("x", "echo x")}},
	}

	_, err := New(Options{}).CompileBlueprint(bp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "substrates only support the __pre_create__ and __post_delete__ actions")
}
