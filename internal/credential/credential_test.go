package credential_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisp-pm/wisp/internal/credential"
)

func TestStoreCredentials(t *testing.T) {
	s := credential.Store{Username: "registry", Token: "deadbeef"}
	user, pass, err := s.Credentials("https://example.com/index.git")
	require.NoError(t, err)
	assert.Equal(t, "registry", user)
	assert.Equal(t, "deadbeef", pass)
}

func TestAuthMethodReturnsBasicAuth(t *testing.T) {
	s := credential.Store{Username: "registry", Token: "deadbeef"}
	auth, err := credential.AuthMethod(s, "https://example.com/index.git")
	require.NoError(t, err)
	require.NotNil(t, auth)
	assert.Equal(t, "registry", auth.Username)
	assert.Equal(t, "deadbeef", auth.Password)
}

func TestAuthMethodNilForEmptyCredentials(t *testing.T) {
	s := credential.Store{}
	auth, err := credential.AuthMethod(s, "https://example.com/index.git")
	require.NoError(t, err)
	assert.Nil(t, auth)
}

type errorProvider struct{}

func (errorProvider) Credentials(string) (string, string, error) {
	return "", "", assert.AnError
}

func TestAuthMethodPropagatesError(t *testing.T) {
	_, err := credential.AuthMethod(errorProvider{}, "https://example.com/index.git")
	assert.Error(t, err)
}
