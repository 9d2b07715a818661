package compiler

import (
	"sort"
	"strconv"

	"calmdsl/pkg/blueprint"
	"calmdsl/pkg/payload"
)

// serviceSystemActions are emitted for every service, in this order.
var serviceSystemActions = []struct {
	dsl  string
	name string
}{
	{"__create__", "action_create"},
	{"__start__", "action_start"},
	{"__stop__", "action_stop"},
	{"__delete__", "action_delete"},
	{"__restart__", "action_restart"},
}

const (
	packageCustom         = "CUSTOM"
	packageSubstrateImage = "SUBSTRATE_IMAGE"
)

// CompileBlueprint compiles a blueprint document.
func (c *Compiler) CompileBlueprint(bp *blueprint.Blueprint) (*payload.BlueprintPayload, error) {
	s := c.newSession(payload.KindBlueprint, bp.Metadata.Name)
	spec := bp.Spec
	loc := locate("blueprint", bp.Metadata.Name)

	s.registerBlueprint(loc, spec)

	res := payload.BlueprintResources{
		Type:                            "USER",
		ServiceDefinitionList:           []payload.Service{},
		PackageDefinitionList:           []payload.Package{},
		SubstrateDefinitionList:         []payload.Substrate{},
		CredentialDefinitionList:        s.compileCredentials(loc, "", spec.Credentials),
		AppProfileList:                  []payload.Profile{},
		DefaultCredentialLocalReference: s.defaultCred,
		ClientAttrs:                     map[string]any{},
	}
	for _, svc := range spec.Services {
		res.ServiceDefinitionList = append(res.ServiceDefinitionList, s.compileService(loc, svc))
	}
	for _, pkg := range spec.Packages {
		res.PackageDefinitionList = append(res.PackageDefinitionList, s.compilePackage(loc, pkg))
	}
	for _, sub := range spec.Substrates {
		res.SubstrateDefinitionList = append(res.SubstrateDefinitionList, s.compileSubstrate(loc, "substrate/"+sub.Name, sub))
	}
	for _, p := range spec.Profiles {
		res.AppProfileList = append(res.AppProfileList, s.compileProfile(loc, p))
	}
	s.checkCoverage(spec)

	if err := s.err(); err != nil {
		return nil, err
	}
	return &payload.BlueprintPayload{
		APIVersion: payload.APIVersion,
		Metadata:   s.metadata(payload.KindBlueprint, bp.Header),
		Spec: payload.BlueprintSpec{
			Name:        bp.Metadata.Name,
			Description: bp.Metadata.Description,
			Resources:   res,
		},
	}, nil
}

// registerBlueprint allocates every entity of the blueprint before any body is
// compiled, so references may point forward.
func (s *session) registerBlueprint(loc string, spec blueprint.BlueprintSpec) {
	s.registerCredentials(loc, "", spec.Credentials, spec.DefaultCredential)

	for _, svc := range spec.Services {
		s.fail(loc, s.services.add(svc.Name, s.id("service", svc.Name)))
		s.declare(svc.Name)
		s.declareVariables(svc.Variables)
		s.registerActions("service/"+svc.Name, withSystemActions(svc.Actions))
	}
	for _, pkg := range spec.Packages {
		s.fail(loc, s.packages.add(pkg.Name, s.id("package", pkg.Name)))
		s.pkgServices[pkg.Name] = pkg.Services
		s.declare(pkg.Name)
		s.declareVariables(pkg.Variables)
		s.registerActions("package/"+pkg.Name, pkg.Actions)
	}
	for _, sub := range spec.Substrates {
		s.fail(loc, s.substrates.add(sub.Name, s.id("substrate", sub.Name)))
		s.declare(sub.Name)
		s.declareVariables(sub.Variables)
		s.registerActions("substrate/"+sub.Name, sub.Actions)
	}

	profiles := make(map[string]bool)
	for _, p := range spec.Profiles {
		if profiles[p.Name] {
			s.failf(loc, "duplicate profile name %q", p.Name)
		}
		profiles[p.Name] = true
		s.declareVariables(p.Variables)
		s.registerActions("profile/"+p.Name, p.Actions)
		for _, d := range p.Deployments {
			s.fail(loc, s.deployments.add(d.Name, s.id("deployment", d.Name)))
		}
	}
}

func (s *session) declareVariables(vars []blueprint.Variable) {
	for _, v := range vars {
		s.declare(v.Name)
	}
}

// withSystemActions appends empty service system actions the author left out.
func withSystemActions(actions []blueprint.Action) []blueprint.Action {
	have := make(map[string]bool)
	for _, a := range actions {
		have[a.Name] = true
	}
	out := append([]blueprint.Action(nil), actions...)
	for _, sys := range serviceSystemActions {
		if !have[sys.dsl] {
			out = append(out, blueprint.Action{Name: sys.dsl})
		}
	}
	return out
}

func (s *session) compileService(loc string, svc blueprint.Service) payload.Service {
	at := loc + ": " + locate("service", svc.Name)
	owner := "service/" + svc.Name
	self, _ := s.services.ref(svc.Name)

	deps, err := s.services.refList(svc.DependsOn)
	if err != nil {
		s.fail(at+": depends_on", err)
		deps = []payload.Reference{}
	}
	for _, d := range svc.DependsOn {
		if d == svc.Name {
			s.failf(at, "service cannot depend on itself")
		}
	}

	out := payload.Service{
		UUID:          self.UUID,
		Name:          svc.Name,
		Description:   svc.Description,
		PortList:      []any{},
		DependsOnList: deps,
		VariableList:  s.compileVariables(at, owner, svc.Variables),
		ActionList:    []payload.Action{},
		ContainerSpec: map[string]any{},
	}

	actions := make(map[string]blueprint.Action)
	for _, a := range withSystemActions(svc.Actions) {
		actions[a.Name] = a
	}
	known := make(map[string]bool)
	for _, sys := range serviceSystemActions {
		known[sys.dsl] = true
		out.ActionList = append(out.ActionList,
			s.compileAction(at, owner, actions[sys.dsl], sys.name, payload.ActionSystem, &self, svc.Name))
	}
	for _, a := range svc.Actions {
		switch {
		case known[a.Name]:
		case isSystemAction(a.Name):
			s.failf(at, "unknown service system action %q", a.Name)
		default:
			out.ActionList = append(out.ActionList,
				s.compileAction(at, owner, a, a.Name, payload.ActionUser, &self, svc.Name))
		}
	}
	return out
}

func (s *session) compilePackage(loc string, pkg blueprint.Package) payload.Package {
	at := loc + ": " + locate("package", pkg.Name)
	owner := "package/" + pkg.Name
	self, _ := s.packages.ref(pkg.Name)

	pkgType := pkg.Type
	if pkgType == "" {
		pkgType = packageCustom
	}

	out := payload.Package{
		UUID:                      self.UUID,
		Name:                      pkg.Name,
		Description:               pkg.Description,
		Type:                      pkgType,
		ServiceLocalReferenceList: []payload.Reference{},
		VariableList:              s.compileVariables(at, owner, pkg.Variables),
		ActionList:                []payload.Action{},
	}

	if pkgType == packageSubstrateImage {
		if len(pkg.Services) > 0 || len(pkg.Actions) > 0 {
			s.failf(at, "disk image packages take no services or actions")
		}
		if pkg.Image == nil {
			s.failf(at, "disk image packages need an image")
			return out
		}
		img := &payload.ImageResources{
			ImageType:    pkg.Image.ImageType,
			SourceURI:    pkg.Image.Source,
			Architecture: pkg.Image.Architecture,
		}
		if img.ImageType == "" {
			img.ImageType = "DISK_IMAGE"
		}
		if img.Architecture == "" {
			img.Architecture = "X86_64"
		}
		if pkg.Image.Product != "" || pkg.Image.Version != "" {
			img.Version = &payload.ImageVersion{ProductName: pkg.Image.Product, ProductVersion: pkg.Image.Version}
		}
		out.Options = payload.PackageOptions{Name: pkg.Name, Description: pkg.Description, Resources: img}
		return out
	}

	if pkg.Image != nil {
		s.failf(at, "only %s packages take an image", packageSubstrateImage)
	}
	svcs, err := s.services.refList(pkg.Services)
	if err != nil {
		s.fail(at+": services", err)
		svcs = []payload.Reference{}
	}
	if len(pkg.Services) == 0 {
		s.failf(at, "package must install at least one service")
	}
	out.ServiceLocalReferenceList = svcs

	var target *payload.Reference
	var service string
	if len(svcs) > 0 {
		target = &svcs[0]
		service = svcs[0].Name
	}

	install := blueprint.Action{Name: "__install__"}
	uninstall := blueprint.Action{Name: "__uninstall__"}
	for _, a := range pkg.Actions {
		switch a.Name {
		case "__install__":
			install = a
		case "__uninstall__":
			uninstall = a
		default:
			if isSystemAction(a.Name) {
				s.failf(at, "packages only support the __install__ and __uninstall__ system actions, got %q", a.Name)
				continue
			}
			out.ActionList = append(out.ActionList, s.compileAction(at, owner, a, a.Name, payload.ActionUser, target, service))
		}
	}

	installRB := s.actionRunbook(at, owner, install, target, service)
	uninstallRB := s.actionRunbook(at, owner, uninstall, target, service)
	out.Options = payload.PackageOptions{InstallRunbook: &installRB, UninstallRunbook: &uninstallRB}
	return out
}

func (s *session) compileProfile(loc string, p blueprint.Profile) payload.Profile {
	at := loc + ": " + locate("profile", p.Name)
	owner := "profile/" + p.Name

	out := payload.Profile{
		UUID:                 s.id(owner),
		Name:                 p.Name,
		Description:          p.Description,
		DeploymentCreateList: []payload.Deployment{},
		VariableList:         s.compileVariables(at, owner, p.Variables),
		ActionList:           []payload.Action{},
	}

	var target *payload.Reference
	var service string
	for _, d := range p.Deployments {
		out.DeploymentCreateList = append(out.DeploymentCreateList, s.compileDeployment(at, d))
		if target != nil {
			continue
		}
		for _, pkg := range d.Packages {
			if svcs := s.pkgServices[pkg]; len(svcs) > 0 {
				if ref, err := s.services.ref(svcs[0]); err == nil {
					target, service = &ref, svcs[0]
					break
				}
			}
		}
	}

	for _, a := range p.Actions {
		if isSystemAction(a.Name) {
			s.failf(at, "profiles do not support system action %q", a.Name)
			continue
		}
		out.ActionList = append(out.ActionList, s.compileAction(at, owner, a, a.Name, payload.ActionUser, target, service))
	}
	return out
}

func (s *session) compileDeployment(loc string, d blueprint.Deployment) payload.Deployment {
	at := loc + ": " + locate("deployment", d.Name)
	self, _ := s.deployments.ref(d.Name)

	minR := d.MinReplicas
	if minR == 0 {
		minR = 1
	}
	maxR := d.MaxReplicas
	if maxR == 0 {
		maxR = minR
	}
	defR := d.DefaultReplicas
	if defR == 0 {
		defR = minR
	}
	if minR > defR || defR > maxR {
		s.failf(at, "replicas must satisfy min (%d) <= default (%d) <= max (%d)", minR, defR, maxR)
	}

	out := payload.Deployment{
		UUID:            self.UUID,
		Name:            d.Name,
		Description:     d.Description,
		Type:            "GREENFIELD",
		MinReplicas:     strconv.Itoa(minR),
		MaxReplicas:     strconv.Itoa(maxR),
		DefaultReplicas: strconv.Itoa(defR),
		DependsOnList:   []payload.Reference{},
	}

	pkgs, err := s.packages.refList(d.Packages)
	if err != nil {
		s.fail(at+": packages", err)
		pkgs = []payload.Reference{}
	}
	out.PackageLocalReferenceList = pkgs

	sub, err := s.substrates.ref(d.Substrate)
	if err != nil {
		s.fail(at+": substrate", err)
	}
	out.SubstrateLocalReference = sub

	if deps, err := s.deployments.refList(d.DependsOn); err != nil {
		s.fail(at+": depends_on", err)
	} else {
		out.DependsOnList = deps
	}
	return out
}

// checkCoverage warns about entities no deployment uses.
func (s *session) checkCoverage(spec blueprint.BlueprintSpec) {
	installed := make(map[string]bool)
	for _, svcs := range s.pkgServices {
		for _, svc := range svcs {
			installed[svc] = true
		}
	}
	usedPkgs := make(map[string]bool)
	for _, p := range spec.Profiles {
		for _, d := range p.Deployments {
			for _, pkg := range d.Packages {
				usedPkgs[pkg] = true
			}
		}
	}

	var missing []string
	for _, svc := range spec.Services {
		if !installed[svc.Name] {
			missing = append(missing, svc.Name)
		}
	}
	sort.Strings(missing)
	for _, name := range missing {
		s.warn(locate("service", name), "not installed by any package")
	}
	for _, pkg := range spec.Packages {
		if !usedPkgs[pkg.Name] && pkg.Type != packageSubstrateImage {
			s.warn(locate("package", pkg.Name), "not used by any deployment")
		}
	}
}

// metadata builds the metadata block of a top-level document.
func (s *session) metadata(kind string, h blueprint.Header) payload.Metadata {
	md := payload.Metadata{
		Kind:       kind,
		Name:       h.Metadata.Name,
		UUID:       s.id(),
		Categories: h.Metadata.Categories,
	}
	if h.Metadata.Project != "" {
		md.ProjectReference = s.platformRef("metadata", Query{Kind: payload.KindProject, Name: h.Metadata.Project})
	}
	return md
}
