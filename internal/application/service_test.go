package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bubblehq/bubble-backend/internal/application"
	"github.com/bubblehq/bubble-backend/internal/domain"
	"github.com/bubblehq/bubble-backend/internal/ports"
)

func TestRegisterLoginRefreshLogout(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	registerRes, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "user@example.com",
		Password: "SecurePass123",
	}, "idem-1")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if registerRes.UserID == uuid.Nil {
		t.Fatalf("register returned empty user id")
	}

	loginRes, err := f.service.Login(ctx, application.LoginRequest{
		Email:      "user@example.com",
		Password:   "SecurePass123",
		IPAddress:  "127.0.0.1",
		UserAgent:  "unit-test",
		DeviceName: "test",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if loginRes.AccessToken == "" || loginRes.RefreshToken == "" {
		t.Fatalf("login must return an access and refresh token")
	}

	refreshRes, err := f.service.Refresh(ctx, loginRes.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if refreshRes.AccessToken == "" || refreshRes.RefreshToken == "" {
		t.Fatalf("refresh must return a new token pair")
	}

	claims, err := f.service.ValidateToken(ctx, loginRes.AccessToken)
	if err != nil {
		t.Fatalf("validate token failed: %v", err)
	}
	if err := f.service.LogoutCurrentSession(ctx, claims); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := f.service.ValidateToken(ctx, loginRes.AccessToken); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Fatalf("expected revoked session after logout, got %v", err)
	}
	if _, err := f.service.Refresh(ctx, loginRes.RefreshToken); !errors.Is(err, domain.ErrSessionRevoked) {
		t.Fatalf("expected revoked session on refresh after logout, got %v", err)
	}
}

func TestRegisterIdempotencyReplayAndConflict(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	req := application.RegisterRequest{Email: "idem@example.com", Password: "SecurePass123"}
	first, err := f.service.Register(ctx, req, "idem-key")
	if err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	replay, err := f.service.Register(ctx, req, "idem-key")
	if err != nil {
		t.Fatalf("idempotent replay failed: %v", err)
	}
	if replay.UserID != first.UserID {
		t.Fatalf("replay must return the original user id, got %s and %s", first.UserID, replay.UserID)
	}

	different := application.RegisterRequest{Email: "other@example.com", Password: "SecurePass123"}
	if _, err := f.service.Register(ctx, different, "idem-key"); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict for reused key with new payload, got %v", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.service.Register(context.Background(), application.RegisterRequest{
		Email:    "weak@example.com",
		Password: "short",
	}, "")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for weak password, got %v", err)
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "locked@example.com",
		Password: "SecurePass123",
	}, ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := f.service.Login(ctx, application.LoginRequest{
			Email:    "locked@example.com",
			Password: "WrongPass999",
		}); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i, err)
		}
	}
	// Third failure crosses the threshold.
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "locked@example.com",
		Password: "WrongPass999",
	}); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected lockout at threshold, got %v", err)
	}
	// Even the correct password is refused while locked.
	if _, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "locked@example.com",
		Password: "SecurePass123",
	}); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected lockout with correct password, got %v", err)
	}
}

func TestMagicLinkRequestAndSingleUseVerify(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "magic@example.com",
		Password: "SecurePass123",
	}, ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := f.service.RequestMagicLink(ctx, application.MagicLinkRequest{
		Email:     "magic@example.com",
		IPAddress: "10.0.0.1",
		UserAgent: "unit-test",
	}); err != nil {
		t.Fatalf("request magic link failed: %v", err)
	}

	rawToken := f.publisher.lastTokenFor(t, "notification.magic_link")
	if link := f.magicLinks.byHash(rawToken); link != nil {
		t.Fatalf("raw token must never be stored; only its hash")
	}

	loginRes, err := f.service.VerifyMagicLink(ctx, application.MagicLinkVerifyRequest{
		Token:     rawToken,
		IPAddress: "10.0.0.1",
		UserAgent: "unit-test",
	})
	if err != nil {
		t.Fatalf("verify magic link failed: %v", err)
	}
	if loginRes.AccessToken == "" {
		t.Fatalf("expected a session after magic link verification")
	}

	if _, err := f.service.VerifyMagicLink(ctx, application.MagicLinkVerifyRequest{
		Token:     rawToken,
		IPAddress: "10.0.0.1",
		UserAgent: "unit-test",
	}); !errors.Is(err, domain.ErrTokenConsumed) {
		t.Fatalf("expected single-use token rejection, got %v", err)
	}
}

func TestMagicLinkUnknownEmailIsSilent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.service.RequestMagicLink(context.Background(), application.MagicLinkRequest{
		Email: "nobody@example.com",
	}); err != nil {
		t.Fatalf("unknown email must not be distinguishable, got %v", err)
	}
	if f.publisher.count("notification.magic_link") != 0 {
		t.Fatalf("no notification may be published for unknown accounts")
	}
}

func TestMagicLinkStrictBindingRejectsMismatch(t *testing.T) {
	t.Parallel()

	f := newFixtureWithConfig(func(cfg *application.Config) {
		cfg.MagicLinkStrictBinding = true
	})
	ctx := context.Background()

	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "strict@example.com",
		Password: "SecurePass123",
	}, ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := f.service.RequestMagicLink(ctx, application.MagicLinkRequest{
		Email:     "strict@example.com",
		IPAddress: "10.0.0.1",
		UserAgent: "agent-a",
	}); err != nil {
		t.Fatalf("request magic link failed: %v", err)
	}
	rawToken := f.publisher.lastTokenFor(t, "notification.magic_link")

	if _, err := f.service.VerifyMagicLink(ctx, application.MagicLinkVerifyRequest{
		Token:     rawToken,
		IPAddress: "192.168.1.50",
		UserAgent: "agent-a",
	}); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected strict binding rejection on IP mismatch, got %v", err)
	}
}

func TestMagicLinkSoftBindingAllowsMismatch(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "soft@example.com",
		Password: "SecurePass123",
	}, ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := f.service.RequestMagicLink(ctx, application.MagicLinkRequest{
		Email:     "soft@example.com",
		IPAddress: "10.0.0.1",
		UserAgent: "agent-a",
	}); err != nil {
		t.Fatalf("request magic link failed: %v", err)
	}
	rawToken := f.publisher.lastTokenFor(t, "notification.magic_link")

	if _, err := f.service.VerifyMagicLink(ctx, application.MagicLinkVerifyRequest{
		Token:     rawToken,
		IPAddress: "192.168.1.50",
		UserAgent: "agent-b",
	}); err != nil {
		t.Fatalf("soft binding must allow a mismatched client, got %v", err)
	}
}

func TestFederatedLoginProvisionsNewUser(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.federated.identities["id-token-1"] = ports.FederatedIdentity{
		Provider:      "google",
		Subject:       "sub-1",
		Email:         "federated@example.com",
		EmailVerified: true,
	}

	res, err := f.service.FederatedLogin(ctx, application.FederatedLoginRequest{
		Provider: "google",
		IDToken:  "id-token-1",
	})
	if err != nil {
		t.Fatalf("federated login failed: %v", err)
	}
	if res.AccessToken == "" {
		t.Fatalf("expected session tokens from federated login")
	}

	user, err := f.users.GetByEmail(ctx, "federated@example.com")
	if err != nil {
		t.Fatalf("expected provisioned user: %v", err)
	}
	if user.PasswordHash != "" {
		t.Fatalf("federated accounts must be passwordless")
	}
	if !user.EmailVerified {
		t.Fatalf("expected email verification inherited from provider claim")
	}

	// Second login reuses the account.
	again, err := f.service.FederatedLogin(ctx, application.FederatedLoginRequest{
		Provider: "google",
		IDToken:  "id-token-1",
	})
	if err != nil {
		t.Fatalf("second federated login failed: %v", err)
	}
	if again.SessionID == res.SessionID {
		t.Fatalf("each login must create its own session")
	}
}

func TestFederatedLoginPropagatesProviderErrors(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.federated.errs["down-token"] = domain.ErrProviderUnavailable
	f.federated.errs["bad-kid-token"] = domain.ErrSigningKeyUnknown
	f.federated.errs["forged-token"] = domain.ErrFederatedTokenInvalid

	cases := []struct {
		token string
		want  error
	}{
		{"down-token", domain.ErrProviderUnavailable},
		{"bad-kid-token", domain.ErrSigningKeyUnknown},
		{"forged-token", domain.ErrFederatedTokenInvalid},
	}
	for _, tc := range cases {
		if _, err := f.service.FederatedLogin(ctx, application.FederatedLoginRequest{
			Provider: "google",
			IDToken:  tc.token,
		}); !errors.Is(err, tc.want) {
			t.Fatalf("token %s: expected %v, got %v", tc.token, tc.want, err)
		}
	}
}

func TestPasswordResetFlow(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if _, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "reset@example.com",
		Password: "SecurePass123",
	}, ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := f.service.RequestPasswordReset(ctx, "reset@example.com"); err != nil {
		t.Fatalf("request reset failed: %v", err)
	}
	rawToken := f.publisher.lastTokenFor(t, "notification.password_reset")

	if err := f.service.ResetPassword(ctx, application.PasswordResetRequest{
		Token:       rawToken,
		NewPassword: "BrandNewPass456",
	}); err != nil {
		t.Fatalf("reset password failed: %v", err)
	}

	if _, err := f.service.Login(ctx, application.LoginRequest{
		Email:    "reset@example.com",
		Password: "BrandNewPass456",
	}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}

	// The token is single use.
	if err := f.service.ResetPassword(ctx, application.PasswordResetRequest{
		Token:       rawToken,
		NewPassword: "AnotherPass789",
	}); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected consumed reset token rejection, got %v", err)
	}
}

func TestRevokeSessionRequiresOwnership(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	for _, email := range []string{"owner@example.com", "intruder@example.com"} {
		if _, err := f.service.Register(ctx, application.RegisterRequest{
			Email:    email,
			Password: "SecurePass123",
		}, ""); err != nil {
			t.Fatalf("register %s failed: %v", email, err)
		}
	}

	ownerLogin, err := f.service.Login(ctx, application.LoginRequest{Email: "owner@example.com", Password: "SecurePass123"})
	if err != nil {
		t.Fatalf("owner login failed: %v", err)
	}
	intruderLogin, err := f.service.Login(ctx, application.LoginRequest{Email: "intruder@example.com", Password: "SecurePass123"})
	if err != nil {
		t.Fatalf("intruder login failed: %v", err)
	}

	intruderClaims, err := f.service.ValidateToken(ctx, intruderLogin.AccessToken)
	if err != nil {
		t.Fatalf("intruder validate failed: %v", err)
	}
	if err := f.service.RevokeSessionByID(ctx, intruderClaims, ownerLogin.SessionID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden when revoking another user's session, got %v", err)
	}
}

// fixture wires the service against in-memory fakes.

type fixture struct {
	service    *application.Service
	users      *fakeUsers
	apiKeys    *fakeAPIKeys
	magicLinks *fakeMagicLinks
	replay     *fakeReplay
	audit      *fakeAudit
	publisher  *fakePublisher
	federated  *fakeFederated
}

func newFixture() *fixture {
	return newFixtureWithConfig(nil)
}

func newFixtureWithConfig(mutate func(cfg *application.Config)) *fixture {
	return newFixtureWithClock(mutate, nil)
}

func newFixtureWithClock(mutate func(cfg *application.Config), now func() time.Time) *fixture {
	cfg := application.Config{
		DefaultRole:          "USER",
		TokenTTL:             time.Hour,
		RefreshTTL:           30 * 24 * time.Hour,
		SessionTTL:           30 * 24 * time.Hour,
		SessionAbsoluteTTL:   90 * 24 * time.Hour,
		SignatureWindow:      5 * time.Minute,
		MagicLinkTTL:         15 * time.Minute,
		FailedLoginThreshold: 3,
		LockoutWindow:        15 * time.Minute,
		LockoutDuration:      30 * time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	users := &fakeUsers{byEmail: map[string]domain.User{}, byID: map[uuid.UUID]domain.User{}}
	apiKeys := &fakeAPIKeys{byKeyID: map[string]domain.APIKey{}}
	apiKeys.byKeyID["key-1"] = domain.APIKey{
		ID:             uuid.New(),
		KeyID:          "key-1",
		Name:           "test app",
		SecretMaterial: "topsecret",
	}
	apiKeys.byKeyID["key-off"] = domain.APIKey{
		ID:             uuid.New(),
		KeyID:          "key-off",
		Name:           "disabled app",
		SecretMaterial: "deadsecret",
		Disabled:       true,
	}

	magicLinks := &fakeMagicLinks{links: map[string]domain.MagicLink{}}
	replay := &fakeReplay{seen: map[string]bool{}}
	audit := &fakeAudit{}
	publisher := &fakePublisher{}
	federated := &fakeFederated{identities: map[string]ports.FederatedIdentity{}, errs: map[string]error{}}

	routes := application.NewRouteClassifier([]application.RouteRule{
		{Method: "*", Prefix: "/healthz", Class: application.RoutePublic},
		{Method: "POST", Prefix: "/auth/v1/login", Class: application.RouteSigned},
		{Method: "GET", Prefix: "/auth/v1/sessions", Class: application.RouteBearer},
	})

	svc := application.NewService(application.Dependencies{
		Config:        cfg,
		Routes:        routes,
		Users:         users,
		APIKeys:       apiKeys,
		Sessions:      &fakeSessions{byID: map[uuid.UUID]domain.Session{}},
		MagicLinks:    magicLinks,
		Recovery:      &fakeRecovery{tokens: map[string]resetToken{}},
		LoginAttempts: &fakeLoginAttempts{},
		Audit:         audit,
		Outbox:        &fakeOutbox{},
		Idempotency:   &fakeIdempotency{records: map[string]ports.IdempotencyRecord{}},
		Replay:        replay,
		Revocations:   &fakeRevocations{revoked: map[string]bool{}},
		Lockouts:      &fakeLockouts{failures: map[string]int{}, locked: map[string]bool{}},
		Federated:     federated,
		Hasher:        &fakeHasher{},
		Signer:        newFakeSigner(),
		Publisher:     publisher,
		Now:           now,
	})

	return &fixture{
		service:    svc,
		users:      users,
		apiKeys:    apiKeys,
		magicLinks: magicLinks,
		replay:     replay,
		audit:      audit,
		publisher:  publisher,
		federated:  federated,
	}
}

func epochNow() string {
	return strconv.FormatInt(time.Now().UTC().Unix(), 10)
}

type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]domain.User
	byID    map[uuid.UUID]domain.User
	events  []ports.OutboxEvent
}

func (f *fakeUsers) CreateWithOutboxTx(_ context.Context, params ports.CreateUserTxParams, event ports.OutboxEvent) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[params.Email]; ok {
		return domain.User{}, domain.ErrConflict
	}
	u := domain.User{
		UserID:        uuid.New(),
		Email:         params.Email,
		PasswordHash:  params.PasswordHash,
		RoleName:      params.RoleName,
		EmailVerified: params.EmailVerified,
		IsActive:      true,
		CreatedAt:     params.RegisteredAtUTC,
		UpdatedAt:     params.RegisteredAtUTC,
	}
	f.byEmail[u.Email] = u
	f.byID[u.UserID] = u
	f.events = append(f.events, event)
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, userID uuid.UUID) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) RecordLogin(_ context.Context, userID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.LastLoginAt = &at
	u.LoginCount++
	f.byID[userID] = u
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = at
	f.byID[userID] = u
	f.byEmail[u.Email] = u
	return nil
}

type fakeAPIKeys struct {
	mu        sync.Mutex
	byKeyID   map[string]domain.APIKey
	lookupErr error
	calls     int
}

func (f *fakeAPIKeys) GetByKeyID(_ context.Context, keyID string) (domain.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.lookupErr != nil {
		return domain.APIKey{}, f.lookupErr
	}
	key, ok := f.byKeyID[keyID]
	if !ok {
		return domain.APIKey{}, domain.ErrNotFound
	}
	return key, nil
}

type fakeSessions struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Session
}

func (f *fakeSessions) Create(_ context.Context, params ports.SessionCreateParams) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := domain.Session{
		SessionID:      uuid.New(),
		UserID:         params.UserID,
		DeviceName:     params.DeviceName,
		IPAddress:      params.IPAddress,
		UserAgent:      params.UserAgent,
		CreatedAt:      params.LastActivityAt,
		LastActivityAt: params.LastActivityAt,
		ExpiresAt:      params.ExpiresAt,
	}
	f.byID[s.SessionID] = s
	return s, nil
}

func (f *fakeSessions) GetByID(_ context.Context, sessionID uuid.UUID) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessions) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for _, s := range f.byID {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) TouchActivity(_ context.Context, sessionID uuid.UUID, touchedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.byID[sessionID]
	s.LastActivityAt = touchedAt
	f.byID[sessionID] = s
	return nil
}

func (f *fakeSessions) RevokeByID(_ context.Context, sessionID uuid.UUID, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	s.RevokedAt = &revokedAt
	f.byID[sessionID] = s
	return nil
}

func (f *fakeSessions) RevokeAllByUser(_ context.Context, userID uuid.UUID, revokedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, s := range f.byID {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &revokedAt
			f.byID[k] = s
		}
	}
	return nil
}

type fakeMagicLinks struct {
	mu    sync.Mutex
	links map[string]domain.MagicLink
}

func (f *fakeMagicLinks) Create(_ context.Context, link domain.MagicLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[link.TokenHash] = link
	return nil
}

func (f *fakeMagicLinks) Consume(_ context.Context, tokenHash string, usedAt time.Time) (domain.MagicLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.links[tokenHash]
	if !ok {
		return domain.MagicLink{}, domain.ErrNotFound
	}
	if link.UsedAt != nil {
		return domain.MagicLink{}, domain.ErrTokenConsumed
	}
	if !link.ExpiresAt.After(usedAt) {
		return domain.MagicLink{}, domain.ErrTokenExpired
	}
	link.UsedAt = &usedAt
	f.links[tokenHash] = link
	return link, nil
}

// byHash reports whether the raw token itself was stored as a key, which must
// never happen.
func (f *fakeMagicLinks) byHash(rawToken string) *domain.MagicLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	if link, ok := f.links[rawToken]; ok {
		return &link
	}
	return nil
}

type resetToken struct {
	userID    uuid.UUID
	expiresAt time.Time
	used      bool
}

type fakeRecovery struct {
	mu     sync.Mutex
	tokens map[string]resetToken
}

func (f *fakeRecovery) CreatePasswordResetToken(_ context.Context, userID uuid.UUID, tokenHash string, _, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[tokenHash] = resetToken{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeRecovery) ConsumePasswordResetToken(_ context.Context, tokenHash string, usedAt time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.tokens[tokenHash]
	if !ok || tok.used || !tok.expiresAt.After(usedAt) {
		return uuid.Nil, domain.ErrNotFound
	}
	tok.used = true
	f.tokens[tokenHash] = tok
	return tok.userID, nil
}

type fakeLoginAttempts struct {
	mu       sync.Mutex
	attempts []domain.LoginAttempt
}

func (f *fakeLoginAttempts) Insert(_ context.Context, attempt domain.LoginAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	attempt.ID = int64(len(f.attempts) + 1)
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeLoginAttempts) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int, since *time.Time, status string) ([]domain.LoginAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.LoginAttempt
	for _, a := range f.attempts {
		if a.UserID == nil || *a.UserID != userID {
			continue
		}
		if since != nil && a.AttemptAt.Before(*since) {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []domain.SignatureAuditEvent
}

func (f *fakeAudit) Insert(_ context.Context, event domain.SignatureAuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) last(t *testing.T) domain.SignatureAuditEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		t.Fatalf("expected at least one audit event")
	}
	return f.events[len(f.events)-1]
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}
func (f *fakeOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (f *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (f *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

type fakeIdempotency struct {
	mu      sync.Mutex
	records map[string]ports.IdempotencyRecord
}

func (f *fakeIdempotency) Get(_ context.Context, key string) (*ports.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	cp := v
	return &cp, nil
}

func (f *fakeIdempotency) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.records[key]; ok && existing.RequestHash != requestHash {
		return domain.ErrConflict
	}
	if _, ok := f.records[key]; ok {
		return nil
	}
	f.records[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      "PENDING",
		ExpiresAt:   expiresAt,
	}
	return nil
}

func (f *fakeIdempotency) Complete(_ context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.records[key]
	v.Status = "COMPLETED"
	v.ResponseCode = responseCode
	v.ResponseBody = responseBody
	v.UpdatedAt = at
	f.records[key] = v
	return nil
}

type fakeReplay struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (f *fakeReplay) CheckAndMark(_ context.Context, keyID, nonce string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	k := keyID + ":" + nonce
	if f.seen[k] {
		return false, nil
	}
	f.seen[k] = true
	return true, nil
}

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (f *fakeRevocations) Revoke(_ context.Context, sessionID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[sessionID] = true
	return nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[sessionID], nil
}

type fakeLockouts struct {
	mu       sync.Mutex
	failures map[string]int
	locked   map[string]bool
}

func (f *fakeLockouts) RegisterFailure(_ context.Context, email string, _, _ time.Duration, threshold int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[email]++
	if f.failures[email] >= threshold {
		f.locked[email] = true
		return true, nil
	}
	return false, nil
}

func (f *fakeLockouts) ClearFailures(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, email)
	delete(f.locked, email)
	return nil
}

func (f *fakeLockouts) IsLocked(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked[email], nil
}

type fakeFederated struct {
	mu         sync.Mutex
	identities map[string]ports.FederatedIdentity
	errs       map[string]error
}

func (f *fakeFederated) Verify(_ context.Context, provider, rawIDToken string) (ports.FederatedIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[rawIDToken]; ok {
		return ports.FederatedIdentity{}, err
	}
	identity, ok := f.identities[rawIDToken]
	if !ok {
		return ports.FederatedIdentity{}, domain.ErrFederatedTokenInvalid
	}
	identity.Provider = provider
	return identity, nil
}

type fakeHasher struct{}

func (f *fakeHasher) Hash(password string) (string, error) { return "hash:" + password, nil }

func (f *fakeHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("hash mismatch")
	}
	return nil
}

type fakeSigner struct {
	mu      sync.Mutex
	access  map[string]ports.AuthClaims
	refresh map[string]ports.AuthClaims
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{access: map[string]ports.AuthClaims{}, refresh: map[string]ports.AuthClaims{}}
}

func (f *fakeSigner) IssueAccessToken(claims ports.AuthClaims, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "access-" + uuid.NewString()
	f.access[token] = claims
	return token, nil
}

func (f *fakeSigner) IssueRefreshToken(claims ports.AuthClaims, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "refresh-" + uuid.NewString()
	f.refresh[token] = claims
	return token, nil
}

func (f *fakeSigner) VerifyAccessToken(token string) (ports.AuthClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.access[token]
	if !ok {
		return ports.AuthClaims{}, domain.ErrTokenInvalid
	}
	return claims, nil
}

func (f *fakeSigner) VerifyRefreshToken(token string) (ports.AuthClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.refresh[token]
	if !ok {
		return ports.AuthClaims{}, domain.ErrTokenInvalid
	}
	return claims, nil
}

func (f *fakeSigner) PublicJWKs() []map[string]string {
	return []map[string]string{{"kid": "test-key", "kty": "RSA"}}
}

type publishedEvent struct {
	eventType    string
	partitionKey string
	payload      []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakePublisher) Publish(_ context.Context, eventType, partitionKey string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{eventType: eventType, partitionKey: partitionKey, payload: payload})
	return nil
}

func (f *fakePublisher) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

// lastTokenFor extracts the raw token from the most recent notification
// payload of the given type.
func (f *fakePublisher) lastTokenFor(t *testing.T, eventType string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].eventType != eventType {
			continue
		}
		var payload struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(f.events[i].payload, &payload); err != nil {
			t.Fatalf("decode %s payload: %v", eventType, err)
		}
		if payload.Token == "" {
			t.Fatalf("expected raw token in %s payload", eventType)
		}
		return payload.Token
	}
	t.Fatalf("no %s event published", eventType)
	return ""
}
