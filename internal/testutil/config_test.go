package testutil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "")
	t.Setenv("TEST_DB_PORT", "")
	t.Setenv("TEST_DB_USER", "")
	t.Setenv("TEST_DB_PASSWORD", "")
	t.Setenv("TEST_DB_NAME", "")

	cfg := DefaultTestDBConfig()
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "55432", cfg.Port)
	assert.Equal(t, "gatekeeper", cfg.User)
	assert.Equal(t, "gatekeeper", cfg.DBName)
}

func TestDefaultTestDBConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "db")
	t.Setenv("TEST_DB_PORT", "5432")
	t.Setenv("TEST_DB_USER", "ci")
	t.Setenv("TEST_DB_PASSWORD", "p@ss word")
	t.Setenv("TEST_DB_NAME", "auth")
	t.Setenv("DB_SSL_MODE", "")

	cfg := DefaultTestDBConfig()
	u, err := url.Parse(cfg.DSN())
	require.NoError(t, err)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/auth", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestEnvBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", "y"} {
		t.Setenv("TESTUTIL_FLAG", v)
		assert.True(t, envBool("TESTUTIL_FLAG"), v)
	}
	t.Setenv("TESTUTIL_FLAG", "no")
	assert.False(t, envBool("TESTUTIL_FLAG"))
}

func TestCredentialBuilder(t *testing.T) {
	cred := NewCredential("alice").WithPassword("s3cret").WithGroups("admins").Build()
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, []string{"admins"}, cred.Groups)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte("s3cret")))
}
