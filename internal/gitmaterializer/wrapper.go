package gitmaterializer

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type wrapperRole struct {
	Role string         `yaml:"role"`
	Vars map[string]any `yaml:"vars,omitempty"`
}

type wrapperPlay struct {
	Name        string        `yaml:"name"`
	Hosts       string        `yaml:"hosts"`
	GatherFacts bool          `yaml:"gather_facts"`
	Roles       []wrapperRole `yaml:"roles"`
}

// WrapperPlaybook synthesizes the single-play YAML document that runs fqcn
// against all hosts, per SPEC_FULL §4.B. Produced through a structured
// encoder rather than string templating so the document the Ansible tool
// loads back is guaranteed well-formed.
func WrapperPlaybook(fqcn string, roleVars map[string]any) (string, error) {
	role := wrapperRole{Role: fqcn}
	if len(roleVars) > 0 {
		role.Vars = roleVars
	}

	plays := []wrapperPlay{{
		Name:        fmt.Sprintf("Run role %s", fqcn),
		Hosts:       "all",
		GatherFacts: true,
		Roles:       []wrapperRole{role},
	}}

	out, err := yaml.Marshal(plays)
	if err != nil {
		return "", fmt.Errorf("gitmaterializer: failed to synthesize wrapper playbook: %w", err)
	}
	return string(out), nil
}
