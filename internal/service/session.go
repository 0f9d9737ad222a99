package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/target/mmk-gatekeeper/internal/domain/auth"
	"github.com/target/mmk-gatekeeper/internal/observability/metrics"
	"github.com/target/mmk-gatekeeper/internal/observability/statsd"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

// DefaultSessionTTL bounds how long a cached identity lives when neither config nor the
// identity itself sets an expiry.
const DefaultSessionTTL = 8 * time.Hour

var errSessionExpired = errors.New("session expired")

// SessionServiceOptions groups dependencies for SessionService.
type SessionServiceOptions struct {
	Store   ports.SessionStore
	TTL     time.Duration
	Metrics statsd.Sink
	Logger  *slog.Logger
	Now     func() time.Time // optional; defaults to time.Now
}

// SessionService loads and persists the per-session identity cell.
type SessionService struct {
	store   ports.SessionStore
	ttl     time.Duration
	metrics statsd.Sink
	logger  *slog.Logger
	now     func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(opts SessionServiceOptions) (*SessionService, error) {
	if opts.Store == nil {
		return nil, errors.New("session store is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		store:   opts.Store,
		ttl:     ttl,
		metrics: opts.Metrics,
		logger:  logger.With("component", "sessions"),
		now:     now,
	}, nil
}

// Load returns the session for id. Unknown, expired, or empty ids produce a fresh
// anonymous session that is only persisted once an identity is cached in it.
func (s *SessionService) Load(ctx context.Context, id string) (*SessionHandle, error) {
	if id != "" {
		sess, err := s.GetSession(ctx, id)
		switch {
		case err == nil:
			return &SessionHandle{svc: s, sess: *sess, saved: true}, nil
		case errors.Is(err, domainauth.ErrSessionNotFound), errors.Is(err, errSessionExpired):
			s.logger.DebugContext(ctx, "session not found, starting a new one")
		default:
			return nil, err
		}
	}

	now := s.now()
	return &SessionHandle{
		svc:   s,
		isNew: true,
		sess: domainauth.Session{
			ID:        uuid.NewString(),
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		},
	}, nil
}

// GetSession retrieves a session by ID, deleting it when it has expired.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if s.now().After(sess.ExpiresAt) {
		if deleteErr := s.store.Delete(ctx, sessionID); deleteErr != nil {
			return nil, errors.Join(errSessionExpired, fmt.Errorf("delete session: %w", deleteErr))
		}
		return nil, errSessionExpired
	}

	return &sess, nil
}

// Logout removes a session. An empty id is a no-op.
func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	metrics.EmitSessionEvent(s.metrics, "logout")
	return nil
}

// expiryFor picks the earlier of the configured TTL and the identity's own expiry.
func (s *SessionService) expiryFor(id domainauth.Identity) time.Time {
	exp := s.now().Add(s.ttl)
	if !id.ExpiresAt.IsZero() && id.ExpiresAt.Before(exp) {
		exp = id.ExpiresAt
	}
	return exp
}

// SessionHandle is the ports.SessionState for a single session. It is bound to one
// request but guards its fields in case a handler fans out.
type SessionHandle struct {
	svc   *SessionService
	mu    sync.Mutex
	sess  domainauth.Session
	isNew bool
	saved bool
}

var _ ports.RequestScopedState = (*SessionHandle)(nil)

// ID returns the session identifier to put in the session cookie.
func (h *SessionHandle) ID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sess.ID
}

// IsNew reports whether the session was created for this request.
func (h *SessionHandle) IsNew() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isNew
}

// Persisted reports whether the session exists in the store, either because it was
// loaded from it or because an identity was saved during this request.
func (h *SessionHandle) Persisted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.saved
}

// Session returns a copy of the underlying record.
func (h *SessionHandle) Session() domainauth.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess := h.sess
	if sess.User != nil {
		u := *sess.User
		sess.User = &u
	}
	return sess
}

func (h *SessionHandle) User(_ context.Context) (*domainauth.Identity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess.User == nil || h.sess.User.IsZero() {
		return nil, nil
	}
	u := *h.sess.User
	return &u, nil
}

// SetUser caches id and persists the session.
func (h *SessionHandle) SetUser(ctx context.Context, id domainauth.Identity) error {
	if id.IsZero() {
		return errors.New("identity has no user ID")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.sess
	next.User = &id
	next.ExpiresAt = h.svc.expiryFor(id)
	if err := h.svc.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	h.sess = next
	h.saved = true

	if h.isNew {
		metrics.EmitSessionEvent(h.svc.metrics, "created")
	}
	return nil
}

// SetRequestUser caches id for this request only. Nothing is written to the store, so
// a caller that presents its credential on every request leaves no session behind.
func (h *SessionHandle) SetRequestUser(_ context.Context, id domainauth.Identity) error {
	if id.IsZero() {
		return errors.New("identity has no user ID")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.sess.User = &id
	return nil
}
