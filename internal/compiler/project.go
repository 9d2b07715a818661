package compiler

import (
	"fmt"

	"calmdsl/pkg/blueprint"
	"calmdsl/pkg/payload"
)

const gib = int64(1024 * 1024 * 1024)

// infra is the resolved infrastructure of one provider entry.
type infra struct {
	account  payload.Reference
	subnets  []payload.Reference
	overlays []payload.Reference
	clusters []payload.Reference
	vpcs     []payload.Reference
}

func (s *session) compileProvider(loc string, p blueprint.Provider) infra {
	at := fmt.Sprintf("%s: provider %s/%s", loc, p.Type, p.Account)
	out := infra{
		account:  payload.Reference{Kind: payload.KindAccount, Name: p.Account},
		subnets:  []payload.Reference{},
		overlays: []payload.Reference{},
		clusters: []payload.Reference{},
		vpcs:     []payload.Reference{},
	}
	if ref := s.platformRef(at, Query{Kind: payload.KindAccount, Name: p.Account}); ref != nil {
		out.account = *ref
	}

	if p.Type != blueprint.ProviderNutanix {
		if len(p.Subnets) > 0 || len(p.Clusters) > 0 || len(p.VPCs) > 0 {
			s.failf(at, "only %s providers take subnets, clusters or vpcs", blueprint.ProviderNutanix)
		}
		return out
	}

	vpcSeen := make(map[string]bool)
	addVPC := func(name string) {
		if vpcSeen[name] {
			return
		}
		vpcSeen[name] = true
		if ref := s.platformRef(at, Query{Kind: payload.KindVPC, Name: name, Account: p.Account}); ref != nil {
			out.vpcs = append(out.vpcs, *ref)
		}
	}

	for _, c := range p.Clusters {
		if ref := s.platformRef(at, Query{Kind: payload.KindCluster, Name: c, Account: p.Account}); ref != nil {
			out.clusters = append(out.clusters, *ref)
		}
	}
	for _, v := range p.VPCs {
		addVPC(v)
	}
	for _, sn := range p.Subnets {
		ref := s.platformRef(at, Query{Kind: payload.KindSubnet, Name: sn.Name, Account: p.Account, Cluster: sn.Cluster, VPC: sn.VPC})
		if ref == nil {
			continue
		}
		if sn.Overlay() {
			out.overlays = append(out.overlays, *ref)
			addVPC(sn.VPC)
		} else {
			out.subnets = append(out.subnets, *ref)
		}
	}
	return out
}

// CompileProject compiles a project document.
func (c *Compiler) CompileProject(p *blueprint.Project) (*payload.ProjectPayload, error) {
	s := c.newSession(payload.KindProject, p.Metadata.Name)
	spec := p.Spec
	loc := locate("project", p.Metadata.Name)

	res := payload.ProjectResources{
		AccountReferenceList:           []payload.Reference{},
		SubnetReferenceList:            []payload.Reference{},
		ExternalNetworkList:            []payload.Reference{},
		ClusterReferenceList:           []payload.Reference{},
		VPCReferenceList:               []payload.Reference{},
		UserReferenceList:              []payload.Reference{},
		ExternalUserGroupReferenceList: []payload.Reference{},
		EnvironmentReferenceList:       []payload.Reference{},
	}

	accounts := make(map[string]bool)
	for _, prov := range spec.Providers {
		if accounts[prov.Account] {
			s.failf(loc, "account %q is listed more than once", prov.Account)
			continue
		}
		accounts[prov.Account] = true

		in := s.compileProvider(loc, prov)
		res.AccountReferenceList = append(res.AccountReferenceList, in.account)
		res.SubnetReferenceList = append(res.SubnetReferenceList, in.subnets...)
		res.ExternalNetworkList = append(res.ExternalNetworkList, in.overlays...)
		res.ClusterReferenceList = append(res.ClusterReferenceList, in.clusters...)
		res.VPCReferenceList = append(res.VPCReferenceList, in.vpcs...)
	}

	for _, u := range spec.Users {
		if ref := s.platformRef(loc+": users", Query{Kind: payload.KindUser, Name: u}); ref != nil {
			res.UserReferenceList = append(res.UserReferenceList, *ref)
		}
	}
	for _, g := range spec.Groups {
		if ref := s.platformRef(loc+": groups", Query{Kind: payload.KindUserGroup, Name: g}); ref != nil {
			res.ExternalUserGroupReferenceList = append(res.ExternalUserGroupReferenceList, *ref)
		}
	}

	envs := newScope(payload.KindEnvironment)
	for _, name := range spec.Environments {
		ref := payload.Reference{Kind: payload.KindEnvironment, Name: name}
		if r := s.platformRef(loc+": environments", Query{Kind: payload.KindEnvironment, Name: name}); r != nil {
			ref = *r
		}
		if err := envs.add(name, ref.UUID); err != nil {
			s.fail(loc, err)
			continue
		}
		res.EnvironmentReferenceList = append(res.EnvironmentReferenceList, ref)
	}
	switch {
	case spec.DefaultEnvironment != "":
		if !envs.has(spec.DefaultEnvironment) {
			s.fail(loc+": default_environment", &RefError{
				Kind:       payload.KindEnvironment,
				Name:       spec.DefaultEnvironment,
				Suggestion: suggest(spec.DefaultEnvironment, envs.names()),
			})
			break
		}
		for i := range res.EnvironmentReferenceList {
			if res.EnvironmentReferenceList[i].Name == spec.DefaultEnvironment {
				res.DefaultEnvironmentReference = &res.EnvironmentReferenceList[i]
			}
		}
	case len(res.EnvironmentReferenceList) > 0:
		res.DefaultEnvironmentReference = &res.EnvironmentReferenceList[0]
	}

	res.ResourceDomain = compileQuotas(spec.Quotas)

	if err := s.err(); err != nil {
		return nil, err
	}
	return &payload.ProjectPayload{
		APIVersion: payload.APIVersion,
		Metadata:   payload.Metadata{Kind: payload.KindProject, Name: p.Metadata.Name, UUID: s.id()},
		Spec: payload.ProjectSpec{
			Name:        p.Metadata.Name,
			Description: p.Metadata.Description,
			Resources:   res,
		},
	}, nil
}

func compileQuotas(q *blueprint.Quotas) *payload.ResourceDomain {
	if q == nil {
		return nil
	}
	var out []payload.QuotaResource
	if q.VCPUs > 0 {
		out = append(out, payload.QuotaResource{ResourceType: payload.QuotaVCPUs, Limit: int64(q.VCPUs)})
	}
	if q.Storage > 0 {
		out = append(out, payload.QuotaResource{ResourceType: payload.QuotaStorage, Limit: int64(q.Storage) * gib})
	}
	if q.Memory > 0 {
		out = append(out, payload.QuotaResource{ResourceType: payload.QuotaMemory, Limit: int64(q.Memory) * gib})
	}
	if len(out) == 0 {
		return nil
	}
	return &payload.ResourceDomain{Resources: out}
}

// CompileEnvironment compiles an environment document. The project the
// environment belongs to comes from its metadata.
func (c *Compiler) CompileEnvironment(env *blueprint.Environment) (*payload.EnvironmentPayload, error) {
	s := c.newSession(payload.KindEnvironment, env.Metadata.Name)
	spec := env.Spec
	loc := locate("environment", env.Metadata.Name)

	s.registerCredentials(loc, "", spec.Credentials, "")
	for _, sub := range spec.Substrates {
		s.fail(loc, s.substrates.add(sub.Name, s.id("substrate", sub.Name)))
		s.declare(sub.Name)
		s.declareVariables(sub.Variables)
		s.registerActions("substrate/"+sub.Name, sub.Actions)
	}

	res := payload.EnvironmentResources{
		SubstrateDefinitionList:  []payload.Substrate{},
		CredentialDefinitionList: s.compileCredentials(loc, "", spec.Credentials),
		InfraInclusionList:       []payload.InfraInclusion{},
	}
	for _, sub := range spec.Substrates {
		res.SubstrateDefinitionList = append(res.SubstrateDefinitionList, s.compileSubstrate(loc, "substrate/"+sub.Name, sub))
	}
	for _, prov := range spec.Providers {
		in := s.compileProvider(loc, prov)
		inc := payload.InfraInclusion{
			Type:              prov.Type,
			AccountReference:  in.account,
			SubnetReferences:  append(in.subnets, in.overlays...),
			ClusterReferences: in.clusters,
			VPCReferences:     in.vpcs,
		}
		if len(inc.SubnetReferences) > 0 {
			def := inc.SubnetReferences[0]
			inc.DefaultSubnetReference = &def
		}
		res.InfraInclusionList = append(res.InfraInclusionList, inc)
	}

	if err := s.err(); err != nil {
		return nil, err
	}
	return &payload.EnvironmentPayload{
		APIVersion: payload.APIVersion,
		Metadata:   s.metadata(payload.KindEnvironment, env.Header),
		Spec: payload.EnvironmentSpec{
			Name:        env.Metadata.Name,
			Description: env.Metadata.Description,
			Resources:   res,
		},
	}, nil
}
