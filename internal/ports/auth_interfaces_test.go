package ports_test

import (
	"testing"

	"github.com/target/mmk-gatekeeper/internal/mocks"
	fakes "github.com/target/mmk-gatekeeper/internal/mocks/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

// This test only verifies that the doubles conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.AuthProvider = (*fakes.MockAuthProvider)(nil)
	var _ ports.SessionStore = (*fakes.MemorySessionStore)(nil)
	var _ ports.SessionState = (*fakes.MemorySessionState)(nil)
	var _ ports.CredentialStore = (*fakes.MemoryCredentialStore)(nil)
	var _ ports.FlowStateStore = (*fakes.MemoryFlowStore)(nil)

	var _ ports.Strategy = (*mocks.MockStrategy)(nil)
	var _ ports.SessionState = (*mocks.MockSessionState)(nil)
	var _ ports.Responder = (*mocks.MockResponder)(nil)
	var _ ports.SessionStore = (*mocks.MockSessionStore)(nil)
	var _ ports.CredentialStore = (*mocks.MockCredentialStore)(nil)
	var _ ports.FlowStateStore = (*mocks.MockFlowStateStore)(nil)
}

func TestStrategyRequestAccessors(t *testing.T) {
	var empty ports.StrategyRequest
	if empty.Param("url") != "" || empty.Header("Authorization") != "" {
		t.Fatal("zero request should yield empty values")
	}
}
