package policy_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremy-wang-lin/ansible-runner-service/internal/config"
	"github.com/jeremy-wang-lin/ansible-runner-service/internal/policy"
)

func testPolicy(t *testing.T) *policy.Policy {
	t.Helper()
	p, err := policy.Load([]config.GitProviderConfig{
		{Type: "azure", Host: "dev.azure.com", Orgs: []string{"xxxit"}, CredentialEnv: "TEST_AZURE_PAT"},
		{Type: "gitlab", Host: "gitlab.company.com", Orgs: []string{"team"}, CredentialEnv: "TEST_GITLAB_TOKEN"},
	})
	require.NoError(t, err)
	return p
}

func TestPolicy_Resolve(t *testing.T) {
	p := testPolicy(t)

	t.Run("matches configured host and org", func(t *testing.T) {
		prov, err := p.Resolve("https://dev.azure.com/xxxit/p/_git/r")
		require.NoError(t, err)
		assert.Equal(t, policy.ProviderAzure, prov.Type)
		assert.Equal(t, "pat", prov.Username())
	})

	t.Run("rejects non-https scheme", func(t *testing.T) {
		_, err := p.Resolve("http://dev.azure.com/xxxit/p/_git/r")
		assert.ErrorIs(t, err, policy.ErrSchemeNotHTTPS)
	})

	t.Run("rejects unconfigured host", func(t *testing.T) {
		_, err := p.Resolve("https://github.com/x/y.git")
		assert.ErrorIs(t, err, policy.ErrHostNotConfigured)
	})

	t.Run("rejects disallowed org", func(t *testing.T) {
		_, err := p.Resolve("https://dev.azure.com/otherorg/p/_git/r")
		assert.ErrorIs(t, err, policy.ErrOrgNotAllowed)
	})

	t.Run("gitlab username placeholder", func(t *testing.T) {
		prov, err := p.Resolve("https://gitlab.company.com/team/col.git")
		require.NoError(t, err)
		assert.Equal(t, "oauth2", prov.Username())
	})
}

func TestProvider_Credential(t *testing.T) {
	p := testPolicy(t)
	prov, err := p.Resolve("https://dev.azure.com/xxxit/p/_git/r")
	require.NoError(t, err)

	t.Run("missing credential", func(t *testing.T) {
		os.Unsetenv("TEST_AZURE_PAT")
		_, err := prov.Credential()
		assert.ErrorIs(t, err, policy.ErrCredentialMissing)
	})

	t.Run("present credential", func(t *testing.T) {
		t.Setenv("TEST_AZURE_PAT", "super-secret")
		v, err := prov.Credential()
		require.NoError(t, err)
		assert.Equal(t, "super-secret", v)
	})
}

func TestIsPolicyError(t *testing.T) {
	p := testPolicy(t)
	_, err := p.Resolve("https://github.com/x/y.git")
	assert.True(t, policy.IsPolicyError(err))
	assert.False(t, policy.IsPolicyError(nil))
}
