// Package session tracks who is signed in to the storefront and keeps that
// answer consistent with the identity provider and the backend user record.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/medimart/storefront/internal/storefront/identity"
	"github.com/medimart/storefront/internal/storefront/kvstore"
	"github.com/medimart/storefront/internal/storefront/notify"
	"github.com/medimart/storefront/pkg/enums"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/types"
	"golang.org/x/sync/singleflight"
)

const defaultRestoreTimeout = 2 * time.Second

var (
	ErrNoSession      = errors.New("session: not signed in")
	ErrInvalidSession = errors.New("session: identity id and a non-guest role are required")
	ErrSignInFailed   = errors.New("session: sign-in did not produce a session")
	errAlreadyStarted = errors.New("session: restore already ran")
)

// Provider is the identity provider as the manager sees it.
type Provider interface {
	Subscribe() (<-chan *identity.Principal, func())
	Token(ctx context.Context, forceRefresh bool) (identity.Token, error)
	SignOut(ctx context.Context) error
}

// UserSyncer resolves the backend user for an identity.
type UserSyncer interface {
	EnsureBackendUser(ctx context.Context, identityID, token string, defaultRole enums.Role) (*types.User, error)
}

// Session is the signed-in user. BearerToken may be stale; use
// Manager.Token before sensitive calls.
type Session struct {
	IdentityID  string     `json:"identityId"`
	BackendID   string     `json:"backendId"`
	Role        enums.Role `json:"role"`
	DisplayName string     `json:"displayName"`
	Email       string     `json:"email"`
	PhotoURL    string     `json:"photoUrl,omitempty"`
	BearerToken string     `json:"-"`
	TokenExpiry time.Time  `json:"tokenExpiry"`
}

func (s *Session) key() string {
	if s == nil {
		return ""
	}
	return s.IdentityID + "|" + s.BackendID + "|" + s.Role.String()
}

// Event is published on every session change. Generation advances whenever
// the (identity, backend id, role) triple changes.
type Event struct {
	Session    *Session
	Generation uint64
}

type Options struct {
	RestoreTimeout time.Duration
	DefaultRole    enums.Role
}

type Manager struct {
	provider Provider
	syncer   UserSyncer
	store    kvstore.Store
	logg     *logger.Logger
	opts     Options

	// opMu serializes principal handling with manual sign-in/out.
	opMu sync.Mutex

	mu         sync.RWMutex
	current    *Session
	generation uint64
	lastKey    string
	lastErr    error
	preferred  map[string]enums.Role

	hub    *notify.Hub[Event]
	tokens singleflight.Group

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(provider Provider, syncer UserSyncer, store kvstore.Store, logg *logger.Logger, opts Options) *Manager {
	if logg == nil {
		logg = logger.Nop()
	}
	if opts.RestoreTimeout <= 0 {
		opts.RestoreTimeout = defaultRestoreTimeout
	}
	if !opts.DefaultRole.SelfAssignable() {
		opts.DefaultRole = enums.RoleUser
	}
	m := &Manager{
		provider:  provider,
		syncer:    syncer,
		store:     store,
		logg:      logg,
		opts:      opts,
		preferred: make(map[string]enums.Role),
		hub:       notify.NewHub[Event](),
	}
	m.hub.Publish(Event{})
	return m
}

// Restore reloads the persisted session and starts following the identity
// provider. It returns once the first principal notification was handled or
// the restore timeout elapsed.
func (m *Manager) Restore(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return errAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	snapshot := m.loadSnapshot(ctx)
	if snapshot != nil {
		m.set(snapshot)
		m.logg.Debug(m.logg.WithIdentityID(ctx, snapshot.IdentityID), "restored session snapshot")
	}

	principals, unsubscribe := m.provider.Subscribe()
	first := make(chan struct{})
	go m.loop(loopCtx, snapshot, principals, unsubscribe, first)

	timer := time.NewTimer(m.opts.RestoreTimeout)
	defer timer.Stop()
	select {
	case <-first:
	case <-timer.C:
		m.logg.Warn(ctx, "identity provider did not report within the restore window; continuing")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (m *Manager) loop(ctx context.Context, snapshot *Session, principals <-chan *identity.Principal, unsubscribe func(), first chan struct{}) {
	defer close(m.done)
	defer unsubscribe()

	var once sync.Once
	handled := func() { once.Do(func() { close(first) }) }

	// A principal that is already known makes separate snapshot hydration
	// redundant.
	select {
	case p, ok := <-principals:
		if !ok {
			handled()
			return
		}
		_ = m.OnIdentityChanged(ctx, p)
		handled()
	default:
		if snapshot != nil {
			m.hydrateSnapshot(ctx, snapshot)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-principals:
			if !ok {
				handled()
				return
			}
			_ = m.OnIdentityChanged(ctx, p)
			handled()
		}
	}
}

// OnIdentityChanged reconciles the session with a provider notification;
// nil means signed out.
func (m *Manager) OnIdentityChanged(ctx context.Context, p *identity.Principal) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if p == nil {
		m.clear(ctx, false)
		return nil
	}
	return m.establish(ctx, profile{
		identityID:  p.ID,
		email:       p.Email,
		displayName: p.DisplayName,
		photoURL:    p.PhotoURL,
	})
}

// SignInManually installs a session without going through the provider.
func (m *Manager) SignInManually(ctx context.Context, s Session) error {
	s.IdentityID = strings.TrimSpace(s.IdentityID)
	if s.IdentityID == "" || !s.Role.IsValid() || s.Role == enums.RoleGuest {
		return ErrInvalidSession
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.set(&s)
	m.persist(ctx, &s)
	return nil
}

// SignOut signs out at the provider and clears local session state. The
// cart is left alone.
func (m *Manager) SignOut(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	err := m.provider.SignOut(ctx)
	m.clear(ctx, false)
	if err != nil {
		return fmt.Errorf("session: provider sign-out: %w", err)
	}
	return nil
}

// PreferRole makes the next backend record created for email use role.
// Sign-up uses it to carry the chosen role through user sync.
func (m *Manager) PreferRole(email string, role enums.Role) {
	if !role.SelfAssignable() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferred[strings.ToLower(strings.TrimSpace(email))] = role
}

// Token returns a fresh bearer token for the current principal, falling
// back to the persisted one when the provider has no principal. Concurrent
// callers share one refresh; each caller's ctx only bounds its own wait.
func (m *Manager) Token(ctx context.Context) (string, error) {
	ch := m.tokens.DoChan("token", func() (any, error) {
		ctx := context.WithoutCancel(ctx)
		tok, err := m.provider.Token(ctx, false)
		if err == nil {
			m.mu.Lock()
			if m.current != nil {
				m.current.BearerToken = tok.Value
				m.current.TokenExpiry = tok.ExpiresAt
			}
			m.mu.Unlock()
			m.persistToken(ctx, tok.Value)
			return tok.Value, nil
		}
		if errors.Is(err, identity.ErrNoPrincipal) {
			m.mu.RLock()
			defer m.mu.RUnlock()
			if m.current != nil && m.current.BearerToken != "" {
				return m.current.BearerToken, nil
			}
			return "", ErrNoSession
		}
		return "", err
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// AwaitSignIn waits until a session for identityID is established or a
// sign-out newer than generation since is published.
func (m *Manager) AwaitSignIn(ctx context.Context, identityID string, since uint64) (Session, error) {
	events, cancel := m.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return Session{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return Session{}, ErrSignInFailed
			}
			if ev.Session != nil && ev.Session.IdentityID == identityID && ev.Session.BackendID != "" {
				return *ev.Session, nil
			}
			if ev.Session == nil && ev.Generation > since {
				if err := m.LastError(); err != nil {
					return Session{}, fmt.Errorf("%w: %w", ErrSignInFailed, err)
				}
				return Session{}, ErrSignInFailed
			}
		}
	}
}

func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// Role is guest exactly when there is no session.
func (m *Manager) Role() enums.Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return enums.RoleGuest
	}
	return m.current.Role
}

func (m *Manager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// LastError is the most recent user-sync failure that forced a sign-out.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Subscribe delivers the current state immediately, then every change.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.hub.Subscribe()
}

// Close stops following the provider and releases subscribers.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	m.hub.Close()
}

type profile struct {
	identityID  string
	email       string
	displayName string
	photoURL    string
}

func (m *Manager) hydrateSnapshot(ctx context.Context, snapshot *Session) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	_ = m.establish(ctx, profile{
		identityID:  snapshot.IdentityID,
		email:       snapshot.Email,
		displayName: snapshot.DisplayName,
		photoURL:    snapshot.PhotoURL,
	})
}

// establish must be called with opMu held.
func (m *Manager) establish(ctx context.Context, p profile) error {
	ctx = m.logg.WithIdentityID(ctx, p.identityID)

	token, err := m.tokenFor(ctx, p.identityID)
	if err != nil {
		return m.failClosed(ctx, err)
	}

	user, err := m.syncer.EnsureBackendUser(ctx, p.identityID, token.Value, m.roleFor(p.email))
	if err != nil {
		return m.failClosed(ctx, err)
	}
	role, err := enums.ParseRole(user.Role)
	if err != nil || role == enums.RoleGuest {
		return m.failClosed(ctx, fmt.Errorf("session: backend returned unusable role %q", user.Role))
	}

	s := &Session{
		IdentityID:  p.identityID,
		BackendID:   user.ID,
		Role:        role,
		DisplayName: firstNonEmpty(user.Username, p.displayName, p.email),
		Email:       firstNonEmpty(user.Email, p.email),
		PhotoURL:    firstNonEmpty(user.PhotoURL, p.photoURL),
		BearerToken: token.Value,
		TokenExpiry: token.ExpiresAt,
	}
	m.set(s)
	m.persist(ctx, s)
	m.logg.Debug(m.logg.WithUserID(ctx, s.BackendID), "session established")
	return nil
}

func (m *Manager) tokenFor(ctx context.Context, identityID string) (identity.Token, error) {
	tok, err := m.provider.Token(ctx, false)
	if err == nil {
		m.persistToken(ctx, tok.Value)
		m.mu.Lock()
		if m.current != nil && m.current.IdentityID == identityID {
			m.current.BearerToken = tok.Value
			m.current.TokenExpiry = tok.ExpiresAt
		}
		m.mu.Unlock()
		return tok, nil
	}
	if !errors.Is(err, identity.ErrNoPrincipal) {
		return identity.Token{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current != nil && m.current.IdentityID == identityID && m.current.BearerToken != "" {
		return identity.Token{Value: m.current.BearerToken, ExpiresAt: m.current.TokenExpiry}, nil
	}
	return identity.Token{}, err
}

func (m *Manager) roleFor(email string) enums.Role {
	key := strings.ToLower(strings.TrimSpace(email))
	m.mu.Lock()
	defer m.mu.Unlock()
	if role, ok := m.preferred[key]; ok {
		delete(m.preferred, key)
		return role
	}
	return m.opts.DefaultRole
}

// failClosed signs out everywhere after a sync failure. Cancellation is not
// a sync failure and leaves the session untouched.
func (m *Manager) failClosed(ctx context.Context, cause error) error {
	if ctx.Err() != nil {
		return cause
	}
	m.logg.Error(ctx, "backend user sync failed; signing out", cause)
	m.mu.Lock()
	m.lastErr = cause
	m.mu.Unlock()
	if err := m.provider.SignOut(ctx); err != nil {
		m.logg.Warn(ctx, "provider sign-out after sync failure: "+err.Error())
	}
	m.clear(ctx, true)
	return cause
}

func (m *Manager) set(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key := s.key(); key != m.lastKey {
		m.generation++
		m.lastKey = key
	}
	m.current = s
	m.lastErr = nil
	copied := *s
	m.hub.Publish(Event{Session: &copied, Generation: m.generation})
}

// clear drops the session. force publishes a fresh generation even when
// already signed out, so waiters observe the failure.
func (m *Manager) clear(ctx context.Context, force bool) {
	m.mu.Lock()
	changed := m.current != nil || m.lastKey != ""
	if changed || force {
		m.current = nil
		m.lastKey = ""
		m.generation++
		m.hub.Publish(Event{Generation: m.generation})
	}
	m.mu.Unlock()

	if err := m.store.Delete(ctx, kvstore.KeySession, kvstore.KeyAccessToken); err != nil {
		m.logg.Error(ctx, "failed to clear persisted session", err)
	}
}

func (m *Manager) loadSnapshot(ctx context.Context) *Session {
	raw, ok, err := m.store.Get(ctx, kvstore.KeySession)
	if err != nil {
		m.logg.Error(ctx, "failed to read session snapshot", err)
		return nil
	}
	if !ok {
		return nil
	}
	token, ok, err := m.store.Get(ctx, kvstore.KeyAccessToken)
	if err != nil || !ok || len(token) == 0 {
		return nil
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil || s.IdentityID == "" || !s.Role.IsValid() || s.Role == enums.RoleGuest {
		m.logg.Warn(ctx, "discarding unreadable session snapshot")
		return nil
	}
	s.BearerToken = string(token)
	return &s
}

func (m *Manager) persist(ctx context.Context, s *Session) {
	raw, err := json.Marshal(s)
	if err != nil {
		m.logg.Error(ctx, "failed to encode session snapshot", err)
		return
	}
	if err := m.store.Set(ctx, kvstore.KeySession, raw); err != nil {
		m.logg.Error(ctx, "failed to persist session snapshot", err)
	}
	m.persistToken(ctx, s.BearerToken)
}

func (m *Manager) persistToken(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := m.store.Set(ctx, kvstore.KeyAccessToken, []byte(token)); err != nil {
		m.logg.Error(ctx, "failed to persist access token", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
