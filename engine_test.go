package authcore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/delivery"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/memstore"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine *Engine
	users  *memstore.UserStore
	tokens *memstore.TokenStore
	codes  *memstore.CodeStore
	sent   *delivery.Recorder
	clock  *testClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "authcore-test"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.BcryptCost = 4
	cfg.Verification.SendOnRegister = false
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		users:  memstore.NewUserStore(),
		tokens: memstore.NewTokenStore(),
		codes:  memstore.NewCodeStore(),
		sent:   &delivery.Recorder{},
		clock:  &testClock{now: time.Unix(1_700_000_000, 0)},
	}

	engine, err := New().
		WithConfig(cfg).
		WithUserStore(env.users).
		WithTokenStore(env.tokens).
		WithCodeStore(env.codes).
		WithEmailSender(env.sent).
		WithSMSSender(env.sent).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) lastCode(t *testing.T) string {
	t.Helper()
	job, ok := env.sent.Last()
	if !ok {
		t.Fatal("expected a delivered job")
	}
	return job.Code
}

func (env *testEnv) register(t *testing.T, id Identifier) AuthUser {
	t.Helper()
	auth, err := env.engine.Register(context.Background(), id, "correct-horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return auth
}

func TestRefreshRotationScenario(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Tokens.RevokeFamilyOnReuse = false })
	ctx := context.Background()
	auth := env.register(t, EmailIdentifier("a@x.com"))

	issued, err := env.engine.Issue(ctx, auth.User.ID, false)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	r1 := issued.RefreshToken

	second, err := env.engine.Refresh(ctx, r1)
	if err != nil {
		t.Fatalf("Refresh(R1): %v", err)
	}
	r2 := second.RefreshToken
	if r2 == r1 {
		t.Fatal("expected R2 != R1")
	}

	if _, err := env.engine.Refresh(ctx, r1); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh(R1) again: expected ErrInvalidRefreshToken, got %v", err)
	}

	third, err := env.engine.Refresh(ctx, r2)
	if err != nil {
		t.Fatalf("Refresh(R2): %v", err)
	}
	if third.RefreshToken == r1 || third.RefreshToken == r2 {
		t.Fatal("R3 must be new")
	}
	if third.TokenType != "Bearer" || third.ExpiresIn != int64((15*time.Minute)/time.Second) {
		t.Fatalf("unexpected token envelope: %+v", third)
	}
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	auth := env.register(t, EmailIdentifier("a@x.com"))

	b, err := env.engine.Refresh(ctx, auth.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh(A): %v", err)
	}
	if _, err := env.engine.Refresh(ctx, auth.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("reuse of A: got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, b.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("B must be revoked with its family, got %v", err)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.engine.Refresh(context.Background(), "never-issued"); !errors.Is(err, ErrRefreshTokenNotFound) {
		t.Fatalf("expected ErrRefreshTokenNotFound, got %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	auth := env.register(t, EmailIdentifier("a@x.com"))

	env.clock.Advance(31 * 24 * time.Hour)
	if _, err := env.engine.Refresh(context.Background(), auth.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected expired token rejection, got %v", err)
	}
}

func TestConcurrentRefreshHasSingleWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	auth := env.register(t, EmailIdentifier("a@x.com"))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.engine.Refresh(context.Background(), auth.RefreshToken); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected one winner, got %d", winners)
	}
}

type failingLookupUsers struct {
	*memstore.UserStore
	fail atomic.Bool
}

func (u *failingLookupUsers) FindByID(ctx context.Context, userID string) (store.UserRecord, error) {
	if u.fail.Load() {
		return store.UserRecord{}, errors.New("connection reset")
	}
	return u.UserStore.FindByID(ctx, userID)
}

func TestRefreshUserLookupFailureKeepsToken(t *testing.T) {
	users := &failingLookupUsers{UserStore: memstore.NewUserStore()}
	engine, err := New().
		WithConfig(testConfig()).
		WithUserStore(users).
		WithTokenStore(memstore.NewTokenStore()).
		WithCodeStore(memstore.NewCodeStore()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	ctx := context.Background()

	auth, err := engine.Register(ctx, EmailIdentifier("a@x.com"), "correct-horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	users.fail.Store(true)
	if _, err := engine.Refresh(ctx, auth.RefreshToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	users.fail.Store(false)
	next, err := engine.Refresh(ctx, auth.RefreshToken)
	if err != nil {
		t.Fatalf("refresh after recovery: %v", err)
	}
	if next.User.ID != auth.User.ID || next.RefreshToken == auth.RefreshToken {
		t.Fatalf("unexpected rotation result: %+v", next)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.engine.Logout(ctx, "nobody"); err != nil {
		t.Fatalf("Logout with no tokens: %v", err)
	}

	auth := env.register(t, EmailIdentifier("a@x.com"))
	if err := env.engine.Logout(ctx, auth.User.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if err := env.engine.Logout(ctx, auth.User.ID); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, auth.RefreshToken); err == nil {
		t.Fatal("refresh after logout must fail")
	}
}

func TestRevokeSingleRefreshToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	auth := env.register(t, EmailIdentifier("a@x.com"))
	other, err := env.engine.Issue(ctx, auth.User.ID, false)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := env.engine.RevokeRefreshToken(ctx, auth.RefreshToken); err != nil {
		t.Fatalf("RevokeRefreshToken: %v", err)
	}
	if err := env.engine.RevokeRefreshToken(ctx, "unknown"); err != nil {
		t.Fatalf("unknown token must be ignored: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, other.RefreshToken); err != nil {
		t.Fatalf("other device must stay signed in: %v", err)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, UsernameIdentifier("alice"))

	auth, err := env.engine.Login(ctx, UsernameIdentifier("alice"), "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := env.engine.ValidateAccess(ctx, auth.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.Subject != auth.User.ID || claims.Issuer != "authcore-test" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := env.engine.Login(ctx, UsernameIdentifier("alice"), "wrong-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := env.engine.Login(ctx, UsernameIdentifier("bob"), "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v", err)
	}
	if _, err := env.engine.ValidateAccess(ctx, auth.AccessToken+"x"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("tampered token: got %v", err)
	}
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	legacy, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	hash, err := legacy.Hash("correct-horse")
	if err != nil {
		t.Fatalf("bcrypt hash: %v", err)
	}
	user, err := env.users.Create(ctx, UsernameIdentifier("legacy"), store.PasswordCredential(hash))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := env.engine.Login(ctx, UsernameIdentifier("legacy"), "correct-horse"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	stored, err := env.users.FindByID(ctx, user.UserID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Fatalf("expected hash upgraded to argon2id, got %q", stored.PasswordHash)
	}
	if _, err := env.engine.Login(ctx, UsernameIdentifier("legacy"), "correct-horse"); err != nil {
		t.Fatalf("Login after upgrade: %v", err)
	}
}

func TestAccessTokenExpires(t *testing.T) {
	env := newTestEnv(t, nil)
	auth := env.register(t, UsernameIdentifier("alice"))

	env.clock.Advance(16 * time.Minute)
	if _, err := env.engine.ValidateAccess(context.Background(), auth.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired access token, got %v", err)
	}
}

func TestRegisterRejectsDuplicatesAndWeakPasswords(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.register(t, EmailIdentifier("a@x.com"))

	if _, err := env.engine.Register(ctx, EmailIdentifier("A@X.com"), "correct-horse"); !errors.Is(err, ErrDuplicateIdentifier) {
		t.Fatalf("expected ErrDuplicateIdentifier, got %v", err)
	}
	if _, err := env.engine.Register(ctx, EmailIdentifier("b@x.com"), "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if _, err := env.engine.Register(ctx, FederatedIdentifier("google", "1"), "correct-horse"); !errors.Is(err, ErrUnsupportedIdentifier) {
		t.Fatalf("expected ErrUnsupportedIdentifier, got %v", err)
	}
}

func TestPasswordLengthFollowsAlgorithm(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("p", 100)

	argon := newTestEnv(t, nil)
	if _, err := argon.engine.Register(ctx, EmailIdentifier("a@x.com"), long); err != nil {
		t.Fatalf("argon2id must accept a 100-byte password: %v", err)
	}
	if _, err := argon.engine.Login(ctx, EmailIdentifier("a@x.com"), long); err != nil {
		t.Fatalf("Login with long password: %v", err)
	}

	bcryptEnv := newTestEnv(t, func(c *Config) { c.Password.Algorithm = "bcrypt" })
	if _, err := bcryptEnv.engine.Register(ctx, EmailIdentifier("a@x.com"), long); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("bcrypt: expected ErrPasswordPolicy, got %v", err)
	}

	capped := newTestEnv(t, func(c *Config) {
		c.Password.MinBytes = 10
		c.Password.MaxBytes = 20
	})
	if _, err := capped.engine.Register(ctx, EmailIdentifier("a@x.com"), "123456789"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("below MinBytes: expected ErrPasswordPolicy, got %v", err)
	}
	if _, err := capped.engine.Register(ctx, EmailIdentifier("a@x.com"), strings.Repeat("p", 21)); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("above MaxBytes: expected ErrPasswordPolicy, got %v", err)
	}
	capped.register(t, EmailIdentifier("a@x.com"))

	if err := capped.engine.RequestPasswordReset(ctx, EmailIdentifier("a@x.com")); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	err := capped.engine.ConfirmPasswordReset(ctx, EmailIdentifier("a@x.com"), capped.lastCode(t), strings.Repeat("p", 21))
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("reset above MaxBytes: expected ErrPasswordPolicy, got %v", err)
	}
}

func TestRegisterSwallowsDeliveryFailure(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Verification.SendOnRegister = true
		c.Metrics.Enabled = true
	})
	env.sent.Err = errors.New("smtp down")

	auth, err := env.engine.Register(context.Background(), EmailIdentifier("a@x.com"), "correct-horse")
	if err != nil {
		t.Fatalf("Register must not surface delivery failure: %v", err)
	}
	if auth.AccessToken == "" {
		t.Fatal("expected tokens")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricDeliverySuppressed]; got != 1 {
		t.Fatalf("expected suppressed delivery count 1, got %d", got)
	}
}

func TestRegisterSendsVerificationCode(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Verification.SendOnRegister = true })
	auth := env.register(t, EmailIdentifier("a@x.com"))

	job, ok := env.sent.Last()
	if !ok || job.Purpose != delivery.PurposeVerification || job.To != "a@x.com" {
		t.Fatalf("expected verification email, got %+v", job)
	}
	if err := env.engine.VerifyEmailCode(context.Background(), auth.User.ID, job.Code); err != nil {
		t.Fatalf("VerifyEmailCode: %v", err)
	}
}

func TestEmailResendScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	auth := env.register(t, EmailIdentifier("a@x.com"))
	userID := auth.User.ID

	if err := env.engine.SendEmailCode(ctx, userID); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	c1 := env.lastCode(t)

	if err := env.engine.ResendEmailCode(ctx, userID); err != nil {
		t.Fatalf("ResendEmailCode: %v", err)
	}
	c2 := env.lastCode(t)
	if c1 == c2 {
		t.Skip("random codes collided")
	}

	if err := env.engine.VerifyEmailCode(ctx, userID, c1); !errors.Is(err, ErrInvalidCode) && !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("c1 must be rejected, got %v", err)
	}
	if err := env.engine.VerifyEmailCode(ctx, userID, c2); err != nil {
		t.Fatalf("c2 must verify: %v", err)
	}

	user, err := env.users.FindByID(ctx, userID)
	if err != nil || !user.EmailVerified {
		t.Fatalf("email must be verified: %+v %v", user, err)
	}

	if err := env.engine.VerifyEmailCode(ctx, userID, c2); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("c2 replay must fail, got %v", err)
	}
	if err := env.engine.SendEmailCode(ctx, userID); !errors.Is(err, ErrEmailAlreadyVerified) {
		t.Fatalf("expected ErrEmailAlreadyVerified, got %v", err)
	}
}

func TestVerificationAttemptExhaustion(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	auth := env.register(t, EmailIdentifier("a@x.com"))

	if err := env.engine.SendEmailCode(ctx, auth.User.ID); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	code := env.lastCode(t)
	wrong := strings.Repeat("0", len(code))
	if wrong == code {
		wrong = strings.Repeat("1", len(code))
	}

	for i := 0; i < 3; i++ {
		if err := env.engine.VerifyEmailCode(ctx, auth.User.ID, wrong); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i+1, err)
		}
	}
	if err := env.engine.VerifyEmailCode(ctx, auth.User.ID, code); !errors.Is(err, ErrMaxAttemptsExceeded) {
		t.Fatalf("fourth attempt: expected ErrMaxAttemptsExceeded, got %v", err)
	}
}

func TestVerificationCodeExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	auth := env.register(t, EmailIdentifier("a@x.com"))

	if err := env.engine.SendEmailCode(ctx, auth.User.ID); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	code := env.lastCode(t)

	env.clock.Advance(15*time.Minute + time.Second)
	if err := env.engine.VerifyEmailCode(ctx, auth.User.ID, code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestSendCodePreconditions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	auth := env.register(t, EmailIdentifier("a@x.com"))

	if err := env.engine.SendPhoneCode(ctx, auth.User.ID); !errors.Is(err, ErrPhoneNotSet) {
		t.Fatalf("expected ErrPhoneNotSet, got %v", err)
	}
	if err := env.engine.SendVerificationCode(ctx, auth.User.ID, IdentifierUsername); err != nil {
		t.Fatalf("username verification must be a no-op, got %v", err)
	}
	if err := env.engine.SendEmailCode(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	users := memstore.NewUserStore()
	bare, err := New().
		WithConfig(testConfig()).
		WithUserStore(users).
		WithTokenStore(memstore.NewTokenStore()).
		WithCodeStore(memstore.NewCodeStore()).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer bare.Close()

	user, _ := users.CreateWithEmail(ctx, "b@x.com", false)
	if err := bare.SendEmailCode(ctx, user.UserID); !errors.Is(err, ErrEmailDeliveryNotConfigured) {
		t.Fatalf("expected ErrEmailDeliveryNotConfigured, got %v", err)
	}
	if err := bare.SendPhoneCode(ctx, user.UserID); !errors.Is(err, ErrPhoneDeliveryNotConfigured) {
		t.Fatalf("expected ErrPhoneDeliveryNotConfigured, got %v", err)
	}
}

func TestPhoneVerification(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	auth := env.register(t, PhoneIdentifier("+15550001"))

	if err := env.engine.SendPhoneCode(ctx, auth.User.ID); err != nil {
		t.Fatalf("SendPhoneCode: %v", err)
	}
	job, _ := env.sent.Last()
	if job.Medium != delivery.MediumSMS {
		t.Fatalf("expected SMS delivery, got %v", job.Medium)
	}
	if err := env.engine.VerifyPhoneCode(ctx, auth.User.ID, job.Code); err != nil {
		t.Fatalf("VerifyPhoneCode: %v", err)
	}
	user, _ := env.users.FindByID(ctx, auth.User.ID)
	if !user.PhoneVerified {
		t.Fatal("phone must be verified")
	}
}

func magicToken(t *testing.T, sent *delivery.Recorder) string {
	t.Helper()
	job, ok := sent.Last()
	if !ok || job.Purpose != delivery.PurposeMagicLink {
		t.Fatalf("expected magic link job, got %+v", job)
	}
	u, err := url.Parse(job.Link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query().Get("token")
}

func enableMagicLink(c *Config) {
	c.MagicLink.Enabled = true
	c.MagicLink.BaseURL = "https://app.example.com/auth/magic"
}

func TestMagicLinkSignIn(t *testing.T) {
	env := newTestEnv(t, enableMagicLink)
	ctx := context.Background()
	auth := env.register(t, EmailIdentifier("a@x.com"))

	challenge, err := env.engine.RequestEmailMagicLink(ctx, "A@x.com")
	if err != nil {
		t.Fatalf("RequestEmailMagicLink: %v", err)
	}
	if challenge.SessionToken != "" {
		t.Fatal("no session token expected without browser binding")
	}

	job, _ := env.sent.Last()
	if !strings.HasPrefix(job.Link, "https://app.example.com/auth/magic?token=") {
		t.Fatalf("unexpected link %q", job.Link)
	}

	signedIn, err := env.engine.VerifyEmailMagicLink(ctx, magicToken(t, env.sent), "")
	if err != nil {
		t.Fatalf("VerifyEmailMagicLink: %v", err)
	}
	if signedIn.User.ID != auth.User.ID || !signedIn.User.EmailVerified {
		t.Fatalf("unexpected user %+v", signedIn.User)
	}

	if _, err := env.engine.VerifyEmailMagicLink(ctx, magicToken(t, env.sent), ""); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("link replay must fail, got %v", err)
	}
}

func TestMagicLinkUnknownEmail(t *testing.T) {
	env := newTestEnv(t, enableMagicLink)
	if _, err := env.engine.RequestEmailMagicLink(context.Background(), "nobody@x.com"); !errors.Is(err, ErrMagicLinkEmailNotFound) {
		t.Fatalf("expected ErrMagicLinkEmailNotFound, got %v", err)
	}
}

func TestMagicLinkAutoCreate(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		enableMagicLink(c)
		c.MagicLink.AutoCreateUser = true
	})
	ctx := context.Background()

	if _, err := env.engine.RequestEmailMagicLink(ctx, "new@x.com"); err != nil {
		t.Fatalf("RequestEmailMagicLink: %v", err)
	}
	auth, err := env.engine.VerifyEmailMagicLink(ctx, magicToken(t, env.sent), "")
	if err != nil {
		t.Fatalf("VerifyEmailMagicLink: %v", err)
	}
	if auth.User.Email != "new@x.com" || !auth.User.EmailVerified {
		t.Fatalf("expected verified new user, got %+v", auth.User)
	}
}

func TestMagicLinkSameBrowser(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		enableMagicLink(c)
		c.MagicLink.RequireSameBrowser = true
	})
	ctx := context.Background()
	env.register(t, EmailIdentifier("a@x.com"))

	challenge, err := env.engine.RequestEmailMagicLink(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("RequestEmailMagicLink: %v", err)
	}
	if challenge.SessionToken == "" {
		t.Fatal("expected session token")
	}
	if _, err := env.engine.VerifyEmailMagicLink(ctx, magicToken(t, env.sent), "other-browser"); !errors.Is(err, ErrMagicLinkDifferentBrowser) {
		t.Fatalf("expected ErrMagicLinkDifferentBrowser, got %v", err)
	}

	challenge, err = env.engine.RequestEmailMagicLink(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("RequestEmailMagicLink: %v", err)
	}
	if _, err := env.engine.VerifyEmailMagicLink(ctx, magicToken(t, env.sent), challenge.SessionToken); err != nil {
		t.Fatalf("same browser must succeed: %v", err)
	}
}

func TestMagicLinkMismatchChargesAttempts(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		enableMagicLink(c)
		c.MagicLink.RequireSameBrowser = true
		c.MagicLink.MaxAttempts = 2
	})
	ctx := context.Background()
	env.register(t, EmailIdentifier("a@x.com"))

	challenge, err := env.engine.RequestEmailMagicLink(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("RequestEmailMagicLink: %v", err)
	}
	token := magicToken(t, env.sent)
	if _, err := env.engine.VerifyEmailMagicLink(ctx, token, "other-browser"); !errors.Is(err, ErrMagicLinkDifferentBrowser) {
		t.Fatalf("expected ErrMagicLinkDifferentBrowser, got %v", err)
	}
	if _, err := env.engine.VerifyEmailMagicLink(ctx, token, challenge.SessionToken); err != nil {
		t.Fatalf("link must survive a single mismatch: %v", err)
	}

	challenge, err = env.engine.RequestEmailMagicLink(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("RequestEmailMagicLink: %v", err)
	}
	token = magicToken(t, env.sent)
	for i := 0; i < 2; i++ {
		if _, err := env.engine.VerifyEmailMagicLink(ctx, token, "other-browser"); !errors.Is(err, ErrMagicLinkDifferentBrowser) {
			t.Fatalf("attempt %d: expected ErrMagicLinkDifferentBrowser, got %v", i, err)
		}
	}
	if _, err := env.engine.VerifyEmailMagicLink(ctx, token, challenge.SessionToken); !errors.Is(err, ErrMaxAttemptsExceeded) {
		t.Fatalf("expected ErrMaxAttemptsExceeded, got %v", err)
	}
}

func TestMagicLinkClearsPendingEmailCode(t *testing.T) {
	env := newTestEnv(t, enableMagicLink)
	ctx := context.Background()
	auth := env.register(t, EmailIdentifier("a@x.com"))

	if err := env.engine.SendEmailCode(ctx, auth.User.ID); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	if _, err := env.engine.RequestEmailMagicLink(ctx, "a@x.com"); err != nil {
		t.Fatalf("RequestEmailMagicLink: %v", err)
	}
	if _, err := env.engine.VerifyEmailMagicLink(ctx, magicToken(t, env.sent), ""); err != nil {
		t.Fatalf("VerifyEmailMagicLink: %v", err)
	}

	if _, err := env.codes.IncrementFailedAttempts(ctx, store.CodeEmailVerification, "a@x.com"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("pending email code must be invalidated, got %v", err)
	}
}

func TestMagicLinkDisabled(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.engine.RequestEmailMagicLink(context.Background(), "a@x.com"); !errors.Is(err, ErrMagicLinkDisabled) {
		t.Fatalf("expected ErrMagicLinkDisabled, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	auth := env.register(t, EmailIdentifier("a@x.com"))
	id := EmailIdentifier("a@x.com")

	if err := env.engine.RequestPasswordReset(ctx, id); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	code := env.lastCode(t)

	if err := env.engine.ConfirmPasswordReset(ctx, id, code, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := env.engine.ConfirmPasswordReset(ctx, id, code, "battery-staple"); err != nil {
		t.Fatalf("ConfirmPasswordReset: %v", err)
	}

	if _, err := env.engine.Login(ctx, id, "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must fail, got %v", err)
	}
	if _, err := env.engine.Login(ctx, id, "battery-staple"); err != nil {
		t.Fatalf("new password must work: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, auth.RefreshToken); err == nil {
		t.Fatal("sessions must be revoked after reset")
	}
	if err := env.engine.ConfirmPasswordReset(ctx, id, code, "another-pass"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("reset code replay must fail, got %v", err)
	}
}

func TestPasswordResetPreconditions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.engine.RequestPasswordReset(ctx, EmailIdentifier("nobody@x.com")); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := env.engine.RequestPasswordReset(ctx, UsernameIdentifier("alice")); !errors.Is(err, ErrUnsupportedIdentifier) {
		t.Fatalf("expected ErrUnsupportedIdentifier, got %v", err)
	}
}

func TestPasswordResetCodesDoNotCrossKinds(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	auth := env.register(t, EmailIdentifier("a@x.com"))

	if err := env.engine.SendEmailCode(ctx, auth.User.ID); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}
	verifyCode := env.lastCode(t)

	if err := env.engine.RequestPasswordReset(ctx, EmailIdentifier("a@x.com")); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if err := env.engine.VerifyEmailCode(ctx, auth.User.ID, verifyCode); err != nil {
		t.Fatalf("verification code must survive reset request: %v", err)
	}
}

func TestAuditEventsReachSink(t *testing.T) {
	sink := NewChannelSink(16)
	cfg := testConfig()
	cfg.Audit.Enabled = true

	engine, err := New().
		WithConfig(cfg).
		WithUserStore(memstore.NewUserStore()).
		WithTokenStore(memstore.NewTokenStore()).
		WithCodeStore(memstore.NewCodeStore()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	if _, err := engine.Register(ctx, UsernameIdentifier("alice"), "correct-horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	engine.Close()

	select {
	case event := <-sink.Events():
		if event.EventType != auditEventRegistration || event.IP != "203.0.113.7" || !event.Success {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("expected audit event")
	}
}

func TestBuildRequiresStores(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected missing user store error")
	}
	if _, err := New().WithConfig(testConfig()).WithUserStore(memstore.NewUserStore()).Build(); err == nil {
		t.Fatal("expected missing token store error")
	}

	cfg := testConfig()
	cfg.Verification.Async = true
	_, err := New().WithConfig(cfg).
		WithUserStore(memstore.NewUserStore()).
		WithTokenStore(memstore.NewTokenStore()).
		WithCodeStore(memstore.NewCodeStore()).
		Build()
	if err == nil {
		t.Fatal("expected async without queue to fail")
	}
}

func TestAsyncDeliveryEnqueues(t *testing.T) {
	cfg := testConfig()
	cfg.Verification.Async = true
	cfg.Verification.MaxRetries = 4
	queue := &delivery.Recorder{}
	users := memstore.NewUserStore()

	engine, err := New().WithConfig(cfg).
		WithUserStore(users).
		WithTokenStore(memstore.NewTokenStore()).
		WithCodeStore(memstore.NewCodeStore()).
		WithEmailSender(queue).
		WithQueue(queue).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	user, _ := users.CreateWithEmail(ctx, "a@x.com", false)
	if err := engine.SendEmailCode(ctx, user.UserID); err != nil {
		t.Fatalf("SendEmailCode: %v", err)
	}

	queued := queue.Queued()
	if len(queued) != 1 || queued[0].Kind != delivery.JobKind || queued[0].MaxRetries != 4 {
		t.Fatalf("unexpected queue contents %+v", queued)
	}
	job, err := delivery.Decode(queued[0].Payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := engine.VerifyEmailCode(ctx, user.UserID, job.Code); err != nil {
		t.Fatalf("queued code must verify: %v", err)
	}
}
