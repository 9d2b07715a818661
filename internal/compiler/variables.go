package compiler

import (
	"slices"

	"calmdsl/pkg/blueprint"
	"calmdsl/pkg/payload"
)

const (
	varTypeLocal  = "LOCAL"
	varTypeSecret = "SECRET"

	credTypePassword = "PASSWORD"
	credClassStatic  = "static"
)

// compileVariables compiles the variables of one entity. path identifies the
// owner for UUID allocation.
func (s *session) compileVariables(loc, path string, vars []blueprint.Variable) []payload.Variable {
	out := make([]payload.Variable, 0, len(vars))
	seen := make(map[string]bool)

	for _, v := range vars {
		at := loc + ": " + locate("variable", v.Name)
		if seen[v.Name] {
			s.failf(at, "duplicate variable name")
			continue
		}
		seen[v.Name] = true

		pv := payload.Variable{
			UUID:        s.id(path, "variable", v.Name),
			Name:        v.Name,
			Value:       v.Value,
			Label:       v.Label,
			Description: v.Description,
			Type:        v.Type,
			ValType:     v.ValType,
			DataType:    "BASE",
			IsMandatory: v.Mandatory,
			IsHidden:    v.Hidden,
		}
		if pv.Type == "" {
			pv.Type = varTypeLocal
		}
		if pv.ValType == "" {
			pv.ValType = "STRING"
		}

		if v.SecretFile != "" {
			if v.Value != "" {
				s.failf(at, "value and secret_file are mutually exclusive")
			}
			pv.Value = s.readLocalFile(at, v.SecretFile)
		}
		if pv.Type == varTypeSecret {
			pv.Attrs = &payload.SecretAttr{IsSecretModified: true}
		}
		if v.Runtime {
			pv.Editables = &payload.Editables{Value: true}
		}
		if v.Regex != nil {
			pv.Regex = &payload.Regex{Value: v.Regex.Value, ShouldValidate: v.Regex.Validate}
		}
		if v.Options != nil {
			optType := v.Options.Type
			if optType == "" {
				optType = "PREDEFINED"
			}
			if v.Value != "" && !slices.Contains(v.Options.Choices, v.Value) {
				s.failf(at, "value %q is not one of the choices %v", v.Value, v.Options.Choices)
			}
			pv.Options = &payload.VarOptions{Type: optType, Choices: v.Options.Choices}
		}

		if pv.Type != varTypeSecret {
			s.checkMacros(at, pv.Value)
		}
		out = append(out, pv)
	}
	return out
}

// registerCredentials allocates credential UUIDs and picks the default one.
func (s *session) registerCredentials(loc, path string, creds []blueprint.Credential, defaultName string) {
	var defaults []string
	for _, cr := range creds {
		if err := s.creds.add(cr.Name, s.id(path, "credential", cr.Name)); err != nil {
			s.fail(loc, err)
			continue
		}
		if cr.Default {
			defaults = append(defaults, cr.Name)
		}
	}

	switch {
	case defaultName != "":
		if len(defaults) > 0 && !slices.Equal(defaults, []string{defaultName}) {
			s.failf(loc, "default_credential %q conflicts with credentials marked default %v", defaultName, defaults)
			return
		}
		ref, err := s.creds.ref(defaultName)
		if err != nil {
			s.fail(loc+": default_credential", err)
			return
		}
		s.defaultCred = &ref
	case len(defaults) > 1:
		s.failf(loc, "only one default credential is allowed, got %v", defaults)
	case len(defaults) == 1:
		ref, _ := s.creds.ref(defaults[0])
		s.defaultCred = &ref
	case len(creds) > 0:
		ref, _ := s.creds.ref(creds[0].Name)
		s.defaultCred = &ref
	}
}

func (s *session) compileCredentials(loc, path string, creds []blueprint.Credential) []payload.Credential {
	out := make([]payload.Credential, 0, len(creds))
	for _, cr := range creds {
		at := loc + ": " + locate("credential", cr.Name)

		secret := cr.Secret
		switch {
		case cr.Secret != "" && cr.SecretFile != "":
			s.failf(at, "secret and secret_file are mutually exclusive")
		case cr.SecretFile != "":
			secret = s.readLocalFile(at, cr.SecretFile)
		case cr.Secret == "":
			s.failf(at, "needs a secret or a secret_file")
		}

		credType := cr.Type
		if credType == "" {
			credType = credTypePassword
		}
		out = append(out, payload.Credential{
			UUID:        s.id(path, "credential", cr.Name),
			Name:        cr.Name,
			Description: cr.Description,
			Type:        credType,
			Username:    cr.Username,
			CredClass:   credClassStatic,
			Secret:      &payload.Secret{Value: secret, Attrs: payload.SecretAttr{IsSecretModified: true}},
		})
	}
	return out
}

// credRef resolves a credential name, falling back to the default credential.
func (s *session) credRef(loc, name string) *payload.Reference {
	if name == "" {
		return s.defaultCred
	}
	ref, err := s.creds.ref(name)
	if err != nil {
		s.fail(loc, err)
		return nil
	}
	return &ref
}
