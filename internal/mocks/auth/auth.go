package auth

// Package auth contains hand-written in-memory fakes for the auth ports.
// Use them where a gomock expectation list would be noisier than real behaviour.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

var (
	_ ports.AuthProvider       = (*MockAuthProvider)(nil)
	_ ports.SessionStore       = (*MemorySessionStore)(nil)
	_ ports.RequestScopedState = (*MemorySessionState)(nil)
	_ ports.CredentialStore    = (*MemoryCredentialStore)(nil)
	_ ports.FlowStateStore     = (*MemoryFlowStore)(nil)
)

// MockAuthProvider simulates an IdP with deterministic state and nonce values.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	AuthURL     string
	DefaultUser domainauth.Identity

	mu        sync.Mutex
	callCount int
	Exchanges []ports.ExchangeInput
}

// NewMockAuthProvider creates a MockAuthProvider with a default user in the "users" group.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL: "https://mock-idp/auth",
		DefaultUser: domainauth.Identity{
			UserID:    "mock-user-1",
			FirstName: "Mock",
			LastName:  "User",
			Email:     "mock.user@example.com",
			Groups:    []string{"users"},
		},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	state := fmt.Sprintf("state-%d", n)
	return authURL + "?state=" + state, state, fmt.Sprintf("nonce-%d", n), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	m.mu.Lock()
	m.Exchanges = append(m.Exchanges, in)
	m.mu.Unlock()

	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	user := m.DefaultUser
	user.ExpiresAt = time.Now().Add(time.Hour)
	return user, nil
}

// MemorySessionStore is an in-memory SessionStore honouring ExpiresAt.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session)}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// MemorySessionState is a bare identity cell for chain tests. SetErr makes SetUser and
// SetRequestUser fail.
type MemorySessionState struct {
	mu           sync.Mutex
	user         *domainauth.Identity
	SetErr       error
	SetCalls     int
	RequestCalls int
}

// NewMemorySessionState returns an anonymous session, or one already holding user.
func NewMemorySessionState(user *domainauth.Identity) *MemorySessionState {
	s := &MemorySessionState{}
	if user != nil {
		u := *user
		s.user = &u
	}
	return s
}

func (s *MemorySessionState) User(context.Context) (*domainauth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil, nil
	}
	u := *s.user
	return &u, nil
}

func (s *MemorySessionState) SetUser(_ context.Context, id domainauth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetCalls++
	if s.SetErr != nil {
		return s.SetErr
	}
	s.user = &id
	return nil
}

func (s *MemorySessionState) SetRequestUser(_ context.Context, id domainauth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RequestCalls++
	if s.SetErr != nil {
		return s.SetErr
	}
	s.user = &id
	return nil
}

// MemoryCredentialStore keeps credentials keyed by username.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	creds map[string]domainauth.Credential
}

// NewMemoryCredentialStore seeds a store with creds.
func NewMemoryCredentialStore(creds ...domainauth.Credential) *MemoryCredentialStore {
	s := &MemoryCredentialStore{creds: make(map[string]domainauth.Credential, len(creds))}
	for _, c := range creds {
		s.creds[c.Username] = c
	}
	return s
}

func (s *MemoryCredentialStore) Lookup(_ context.Context, username string) (domainauth.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[username]
	if !ok {
		return domainauth.Credential{}, domainauth.ErrCredentialNotFound
	}
	return c, nil
}

func (s *MemoryCredentialStore) Create(_ context.Context, cred domainauth.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.creds[cred.Username]; exists {
		return fmt.Errorf("credential %q already exists", cred.Username)
	}
	s.creds[cred.Username] = cred
	return nil
}

// MemoryFlowStore is an in-memory FlowStateStore. TTLs are recorded but not enforced.
type MemoryFlowStore struct {
	mu     sync.Mutex
	values map[string][]byte
	TTLs   map[string]time.Duration
}

// NewMemoryFlowStore creates an empty store.
func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{values: map[string][]byte{}, TTLs: map[string]time.Duration{}}
}

func (s *MemoryFlowStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	s.TTLs[key] = ttl
	return nil
}

func (s *MemoryFlowStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryFlowStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	delete(s.values, key)
	return ok, nil
}
