package authz

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/nimasrn/school-treasury/internal/model"
	"gopkg.in/yaml.v3"
)

// DefaultPolicy is used when no policy file is configured.
const DefaultPolicy = `
roles:
  admin: ["*"]
  treasurer:
    - treasury.view
    - treasury.record
    - treasury.reverse
    - treasury.open
    - treasury.transfer
    - treasury.reconcile
  cashier:
    - treasury.view
    - treasury.record
    - treasury.open
  auditor:
    - treasury.view
    - treasury.reconcile
`

// PolicyConfig is the YAML shape of a role policy.
type PolicyConfig struct {
	Roles map[string][]string `yaml:"roles"`
}

// Policy grants actions to roles. Identity is resolved upstream; the policy
// only sees the role the caller presents.
type Policy struct {
	roles map[string]map[model.Action]struct{}
}

func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

func ParsePolicy(data []byte) (*Policy, error) {
	var config PolicyConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(config.Roles) == 0 {
		return nil, fmt.Errorf("policy defines no roles")
	}

	known := make(map[model.Action]struct{}, len(model.AllActions)+1)
	for _, a := range model.AllActions {
		known[a] = struct{}{}
	}
	known[model.ActionAllWildcard] = struct{}{}

	p := &Policy{roles: make(map[string]map[model.Action]struct{}, len(config.Roles))}
	for role, actions := range config.Roles {
		granted := make(map[model.Action]struct{}, len(actions))
		for _, a := range actions {
			action := model.Action(strings.TrimSpace(a))
			if _, ok := known[action]; !ok {
				return nil, fmt.Errorf("role %q grants unknown action %q", role, a)
			}
			granted[action] = struct{}{}
		}
		p.roles[strings.ToLower(role)] = granted
	}
	return p, nil
}

func (p *Policy) Authorize(_ context.Context, actor model.Actor, action model.Action) error {
	if actor.ID == "" {
		return fmt.Errorf("%w: missing actor identity", model.ErrForbidden)
	}
	granted, ok := p.roles[strings.ToLower(actor.Role)]
	if !ok {
		return fmt.Errorf("%w: unknown role %q", model.ErrForbidden, actor.Role)
	}
	if _, ok := granted[model.ActionAllWildcard]; ok {
		return nil
	}
	if _, ok := granted[action]; ok {
		return nil
	}
	return fmt.Errorf("%w: role %q may not %s", model.ErrForbidden, actor.Role, action)
}
