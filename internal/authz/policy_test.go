package authz

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nimasrn/school-treasury/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p, err := ParsePolicy([]byte(DefaultPolicy))
	require.NoError(t, err)
	ctx := context.Background()

	cases := []struct {
		role    string
		action  model.Action
		allowed bool
	}{
		{"admin", model.ActionConfigure, true},
		{"treasurer", model.ActionReverse, true},
		{"treasurer", model.ActionConfigure, false},
		{"cashier", model.ActionRecord, true},
		{"cashier", model.ActionTransfer, false},
		{"Auditor", model.ActionReconcile, true},
		{"auditor", model.ActionRecord, false},
		{"janitor", model.ActionView, false},
	}
	for _, tc := range cases {
		err := p.Authorize(ctx, model.Actor{ID: "u-1", Role: tc.role}, tc.action)
		if tc.allowed {
			assert.NoError(t, err, "%s %s", tc.role, tc.action)
		} else {
			assert.ErrorIs(t, err, model.ErrForbidden, "%s %s", tc.role, tc.action)
		}
	}
}

func TestPolicy_RejectsAnonymousActor(t *testing.T) {
	p, err := ParsePolicy([]byte(DefaultPolicy))
	require.NoError(t, err)

	err = p.Authorize(context.Background(), model.Actor{Role: "admin"}, model.ActionView)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestParsePolicy_Errors(t *testing.T) {
	_, err := ParsePolicy([]byte("roles: [unclosed"))
	assert.Error(t, err)

	_, err = ParsePolicy([]byte("roles: {}"))
	assert.Error(t, err)

	_, err = ParsePolicy([]byte("roles:\n  clerk: [treasury.delete]\n"))
	assert.ErrorContains(t, err, "treasury.delete")
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  bursar: [treasury.view, treasury.open]\n"), 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.NoError(t, p.Authorize(context.Background(), model.Actor{ID: "b", Role: "bursar"}, model.ActionOpen))

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
