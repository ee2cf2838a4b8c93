// Package identity is the storefront's client for the MediMart identity
// service. It owns the credentials of the signed-in principal and
// broadcasts principal presence changes.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/medimart/storefront/internal/storefront/kvstore"
	"github.com/medimart/storefront/internal/storefront/notify"
	"github.com/medimart/storefront/internal/storefront/transport"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
	"github.com/medimart/storefront/pkg/logger"
	"github.com/medimart/storefront/pkg/types"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNoPrincipal         = errors.New("identity: no signed-in principal")
	ErrSessionExpired      = errors.New("identity: session expired, sign in again")
	ErrProviderUnsupported = errors.New("identity: federated sign-in is not supported by this client")
)

// Principal is the signed-in account as the identity service sees it.
type Principal = types.Principal

// Token is a bearer identity token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type credentials struct {
	IDToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Principal    Principal `json:"principal"`
}

// SignUpInput is the password sign-up form.
type SignUpInput struct {
	Email       string
	Password    string
	DisplayName string
	PhotoURL    string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRefreshSkew sets how long before expiry a token is refreshed.
func WithRefreshSkew(skew time.Duration) Option {
	return func(c *Client) {
		if skew >= 0 {
			c.skew = skew
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client talks to /identity/v1 and persists credentials in a kvstore.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      kvstore.Store
	logg       *logger.Logger
	skew       time.Duration
	now        func() time.Time

	mu    sync.Mutex
	creds *credentials
	hub   *notify.Hub[*Principal]
	sf    singleflight.Group
}

func New(baseURL string, store kvstore.Store, logg *logger.Logger, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("identity: base url is required")
	}
	if store == nil {
		return nil, errors.New("identity: store is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: transport.DefaultTimeout},
		store:      store,
		logg:       logg,
		skew:       time.Minute,
		now:        time.Now,
		hub:        notify.NewHub[*Principal](),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Init loads persisted credentials and emits the initial principal
// notification (nil when nobody is signed in).
func (c *Client) Init(ctx context.Context) error {
	raw, ok, err := c.store.Get(ctx, kvstore.KeyCredentials)
	if err != nil {
		c.hub.Publish(nil)
		return err
	}

	var creds *credentials
	if ok {
		var stored credentials
		if err := json.Unmarshal(raw, &stored); err != nil || stored.Principal.ID == "" {
			c.logg.Warn(ctx, "discarding unreadable identity credentials")
			_ = c.store.Delete(ctx, kvstore.KeyCredentials)
		} else {
			creds = &stored
		}
	}

	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
	c.publish(creds)
	return nil
}

func (c *Client) SignUp(ctx context.Context, in SignUpInput) (*Principal, error) {
	req := types.SignUpRequest{
		Email:       strings.TrimSpace(in.Email),
		Password:    in.Password,
		DisplayName: strings.TrimSpace(in.DisplayName),
		PhotoURL:    strings.TrimSpace(in.PhotoURL),
	}
	return c.authenticate(ctx, "signup", req)
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Principal, error) {
	req := types.LoginRequest{Email: strings.TrimSpace(email), Password: password}
	return c.authenticate(ctx, "login", req)
}

// SignInWithProvider is the federated popup flow, which a terminal client
// cannot host.
func (c *Client) SignInWithProvider(context.Context, string) (*Principal, error) {
	return nil, ErrProviderUnsupported
}

// Token returns a valid identity token, refreshing it when it is within the
// refresh skew of expiry or when forceRefresh is set.
func (c *Client) Token(ctx context.Context, forceRefresh bool) (Token, error) {
	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()
	if creds == nil {
		return Token{}, ErrNoPrincipal
	}
	if !forceRefresh && c.now().Add(c.skew).Before(creds.ExpiresAt) {
		return Token{Value: creds.IDToken, ExpiresAt: creds.ExpiresAt}, nil
	}

	v, err, _ := c.sf.Do("refresh", func() (any, error) {
		return c.refresh(ctx, creds)
	})
	if err != nil {
		return Token{}, err
	}
	return v.(Token), nil
}

// Current returns the signed-in principal, if any.
func (c *Client) Current() *Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return nil
	}
	p := c.creds.Principal
	return &p
}

// Subscribe reports principal presence changes; nil means signed out.
func (c *Client) Subscribe() (<-chan *Principal, func()) {
	return c.hub.Subscribe()
}

// SignOut revokes the server session (best effort) and forgets local
// credentials.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	creds := c.creds
	c.creds = nil
	c.mu.Unlock()

	var remoteErr error
	if creds != nil {
		remoteErr = transport.Do(ctx, c.httpClient, transport.Request{
			Method: http.MethodPost,
			URL:    transport.JoinURL(c.baseURL, "logout"),
			Token:  creds.IDToken,
		}, nil)
		if remoteErr != nil && !transport.IsUnauthorized(remoteErr) {
			c.logg.Warn(c.logg.WithIdentityID(ctx, creds.Principal.ID), "remote sign-out failed: "+remoteErr.Error())
		} else {
			remoteErr = nil
		}
	}

	if err := c.store.Delete(ctx, kvstore.KeyCredentials); err != nil {
		c.logg.Error(ctx, "failed to clear identity credentials", err)
	}
	c.publish(nil)
	return remoteErr
}

// Close releases subscribers.
func (c *Client) Close() {
	c.hub.Close()
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*Principal, error) {
	var resp types.TokenResponse
	err := transport.Do(ctx, c.httpClient, transport.Request{
		Method: http.MethodPost,
		URL:    transport.JoinURL(c.baseURL, path),
		Body:   body,
	}, &resp)
	if err != nil {
		return nil, err
	}
	creds := &credentials{
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
		Principal:    resp.Principal,
	}
	if creds.Principal.ID == "" || creds.IDToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "identity service returned no principal")
	}
	if err := c.save(ctx, creds); err != nil {
		return nil, err
	}
	p := creds.Principal
	return &p, nil
}

func (c *Client) refresh(ctx context.Context, creds *credentials) (Token, error) {
	var resp types.TokenResponse
	err := transport.Do(ctx, c.httpClient, transport.Request{
		Method: http.MethodPost,
		URL:    transport.JoinURL(c.baseURL, "refresh"),
		Token:  creds.IDToken,
		Body:   types.RefreshRequest{RefreshToken: creds.RefreshToken},
	}, &resp)
	if err != nil {
		if transport.IsUnauthorized(err) {
			c.mu.Lock()
			if c.creds == creds {
				c.creds = nil
			}
			c.mu.Unlock()
			_ = c.store.Delete(ctx, kvstore.KeyCredentials)
			c.publish(nil)
			return Token{}, ErrSessionExpired
		}
		return Token{}, err
	}

	next := &credentials{
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
		Principal:    creds.Principal,
	}
	if resp.Principal.ID != "" {
		next.Principal = resp.Principal
	}

	c.mu.Lock()
	stale := c.creds != creds
	if !stale {
		c.creds = next
	}
	c.mu.Unlock()
	if stale {
		return Token{}, ErrNoPrincipal
	}
	if err := c.persist(ctx, next); err != nil {
		c.logg.Error(ctx, "failed to persist refreshed credentials", err)
	}
	return Token{Value: next.IDToken, ExpiresAt: next.ExpiresAt}, nil
}

func (c *Client) save(ctx context.Context, creds *credentials) error {
	if err := c.persist(ctx, creds); err != nil {
		return err
	}
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
	c.publish(creds)
	return nil
}

func (c *Client) persist(ctx context.Context, creds *credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, kvstore.KeyCredentials, raw)
}

func (c *Client) publish(creds *credentials) {
	if creds == nil {
		c.hub.Publish(nil)
		return
	}
	p := creds.Principal
	c.hub.Publish(&p)
}
