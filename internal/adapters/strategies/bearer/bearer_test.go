package bearer

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/target/mmk-gatekeeper/internal/ports"
)

func TestDefinitionIsAbstract(t *testing.T) {
	def := Definition()
	assert.Equal(t, Name, def.Name)
	assert.True(t, def.Abstract)
	assert.Nil(t, def.New)
}

func TestToken(t *testing.T) {
	tests := []struct {
		name      string
		headers   map[string]string
		alt       string
		wantToken string
		wantOK    bool
	}{
		{"none", nil, "", "", false},
		{"bearer", map[string]string{"Authorization": "Bearer abc"}, "", "abc", true},
		{"case insensitive scheme", map[string]string{"Authorization": "bearer  abc "}, "", "abc", true},
		{"blank bearer", map[string]string{"Authorization": "Bearer "}, "", "", true},
		{"basic is ignored", map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}, "", "", false},
		{"alt header", map[string]string{"X-API-Key": "k1"}, "X-API-Key", "k1", true},
		{"authorization wins", map[string]string{"Authorization": "Bearer a", "X-API-Key": "b"}, "X-API-Key", "a", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			token, ok := Token(ports.StrategyRequest{HTTP: r}, tt.alt)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}
