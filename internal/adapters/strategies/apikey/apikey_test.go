package apikey

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

func runWithHeaders(t *testing.T, s *Strategy, headers map[string]string) domainauth.Outcome {
	t.Helper()
	r := httptest.NewRequest("GET", "/api/whoami", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	outcome, err := s.Definition().New(ports.StrategyRequest{HTTP: r}).Run(context.Background())
	require.NoError(t, err)
	return outcome
}

func TestNew_Validation(t *testing.T) {
	_, err := New([]Key{{Key: "", Identity: domainauth.Identity{UserID: "svc"}}})
	require.Error(t, err)

	_, err = New([]Key{{Key: "k"}})
	require.Error(t, err)
}

func TestStrategy_Run(t *testing.T) {
	s, err := New([]Key{
		{Key: "key-one", Identity: domainauth.Identity{UserID: "svc-one", Groups: []string{"users"}}},
		{Key: "key-two", Identity: domainauth.Identity{UserID: "svc-two"}},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"no credentials", nil, ""},
		{"bearer match", map[string]string{"Authorization": "Bearer key-two"}, "svc-two"},
		{"header match", map[string]string{Header: "key-one"}, "svc-one"},
		{"unknown key", map[string]string{"Authorization": "Bearer nope"}, ""},
		{"blank bearer", map[string]string{"Authorization": "Bearer"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := runWithHeaders(t, s, tt.headers)
			if tt.want == "" {
				assert.True(t, outcome.IsFailure())
				return
			}
			id, ok := outcome.Identity()
			require.True(t, ok)
			assert.Equal(t, tt.want, id.UserID)
		})
	}
}

func TestStrategy_ReturnsCopies(t *testing.T) {
	s, err := New([]Key{{Key: "k", Identity: domainauth.Identity{UserID: "svc", Groups: []string{"users"}}}})
	require.NoError(t, err)

	first, _ := runWithHeaders(t, s, map[string]string{Header: "k"}).Identity()
	first.Groups[0] = "admins"

	second, _ := runWithHeaders(t, s, map[string]string{Header: "k"}).Identity()
	assert.Equal(t, []string{"users"}, second.Groups)
}

func TestDefinition(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	def := s.Definition()
	assert.Equal(t, Name, def.Name)
	assert.False(t, def.Abstract)
	assert.True(t, def.Stateless)
}
