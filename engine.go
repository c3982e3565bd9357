package authgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authgate/csrf"
	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/internal/audit"
	internalflows "github.com/MrEthical07/authgate/internal/flows"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/internal/stores"
	"github.com/MrEthical07/authgate/notify"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/session"
)

// Engine runs every authentication operation. Build one with [New] and share
// it; all methods are safe for concurrent use.
type Engine struct {
	config     Config
	logger     *slog.Logger
	identities identity.Store
	hasher     password.Hasher
	dummyHash  string
	tokens     jwtTokens

	sessionStore  *session.Store
	csrfStore     *csrf.Store
	registrations *stores.RegistrationStore
	resets        *stores.PasswordResetStore
	identityCache *stores.IdentityCache
	limiter       *rate.Limiter

	mailer    *notify.Dispatcher
	templates notify.Templates
	audit     *audit.Dispatcher
	metrics   *Metrics

	flows internalflows.Service
}

func (e *Engine) initFlows() {
	e.flows = internalflows.New(internalflows.Deps{
		Login:         e.loginFlowDeps(),
		Authenticate:  e.authenticateFlowDeps(),
		Refresh:       e.refreshFlowDeps(),
		Logout:        e.logoutFlowDeps(),
		Registration:  e.registrationFlowDeps(),
		PasswordReset: e.passwordResetFlowDeps(),
	})
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// Close drains the mail and audit queues. The Redis client and identity
// store belong to the caller and stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.mailer != nil {
		e.mailer.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Ping checks that the ephemeral store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.sessionStore.Ping(ctx); err != nil {
		return backendError(err)
	}
	return nil
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MailDropped reports emails discarded because the delivery queue was full.
func (e *Engine) MailDropped() uint64 {
	if e == nil || e.mailer == nil {
		return 0
	}
	return e.mailer.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, args ...any) {
	e.logger.Warn(msg, args...)
}

// allowFunc returns the attempt gate for scope, or nil when limiting is off.
func (e *Engine) allowFunc(scope string, policy RatePolicy) func(context.Context, string) (bool, time.Duration, error) {
	p := rate.Policy{Limit: policy.Limit, Window: policy.Window}
	if e.limiter == nil || !p.Enabled() {
		return nil
	}
	return func(ctx context.Context, key string) (bool, time.Duration, error) {
		d, err := e.limiter.Allow(ctx, scope, key, p)
		if err != nil {
			return false, 0, err
		}
		return d.Allowed, d.RetryAfter, nil
	}
}

// resetFunc clears a scope's window for one key, or is nil when limiting is off.
func (e *Engine) resetFunc(scope string) func(context.Context, string) error {
	if e.limiter == nil {
		return nil
	}
	return func(ctx context.Context, key string) error {
		return e.limiter.Reset(ctx, scope, key)
	}
}

/*
====================================
LOGIN
====================================
*/

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	return internalflows.LoginDeps{
		AllowAttempt:       e.allowFunc("login", e.config.RateLimit.Login),
		FindByEmail:        e.identities.GetByEmail,
		VerifyPassword:     e.hasher.Verify,
		DummyHash:          e.dummyHash,
		CreateSession:      e.sessionStore.Create,
		IssueCSRF:          e.csrfStore.Issue,
		RevokeSession:      e.revokeSession,
		ResetAttempts:      e.resetFunc("login"),
		NeedsRehash:        e.needsRehash,
		HashPassword:       e.hasher.Hash,
		UpdatePasswordHash: e.identities.UpdatePasswordHash,
		Warn:               e.warn,
	}
}

func (e *Engine) revokeSession(ctx context.Context, identityID string) error {
	_, err := e.sessionStore.Revoke(ctx, identityID)
	return err
}

// needsRehash reports whether hash should be replaced with one made under the
// current hasher settings.
func (e *Engine) needsRehash(hash string) bool {
	up, ok := e.hasher.(password.Upgrader)
	if !ok {
		return false
	}
	weak, err := up.NeedsUpgrade(hash)
	return err == nil && weak
}

// Login checks email and password and opens a session, superseding any
// session the identity already had. The client IP from [WithClientIP] keys
// the login rate limit.
//
// Unknown emails and wrong passwords both return [ErrInvalidCredentials].
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if err := Validate(loginInput{Email: email, Password: pass}); err != nil {
		return nil, err
	}

	res := e.flows.Login(ctx, email, pass, clientIPFromContext(ctx))
	switch res.Failure {
	case internalflows.LoginFailureNone:
	case internalflows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		e.emitRateLimit(ctx, "login", res.RetryAfter)
		return nil, &RateLimitError{Scope: "login", RetryAfter: res.RetryAfter}
	case internalflows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		userID := ""
		if res.Identity != nil {
			userID = res.Identity.ID
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, userID, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	default:
		e.metricInc(MetricLoginFailure)
		err := backendError(res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", err, nil)
		return nil, err
	}

	issued := res.Session
	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	if issued.Superseded != "" {
		e.metricInc(MetricSessionSuperseded)
		e.emitAudit(ctx, auditEventSessionSuperseded, true, res.Identity.ID, issued.Superseded, nil, func() map[string]string {
			return map[string]string{"replaced_by": issued.Metadata.SessionID}
		})
	}
	e.metricInc(MetricCSRFIssued)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.Identity.ID, issued.Metadata.SessionID, nil, nil)

	return &LoginResult{
		Identity:     res.Identity.Sanitized(),
		Session:      sessionInfo(issued.Metadata),
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		CSRFToken:    res.CSRFToken,
		Superseded:   issued.Superseded,
	}, nil
}

/*
====================================
AUTHENTICATE
====================================
*/

func (e *Engine) authenticateFlowDeps() internalflows.AuthenticateDeps {
	deps := internalflows.AuthenticateDeps{
		VerifyAccess: e.tokens.VerifyAccess,
		IsLive:       e.sessionStore.IsLive,
		LoadIdentity: e.identities.GetByID,
		Warn:         e.warn,
	}
	if e.identityCache != nil {
		deps.CachedIdentity = func(ctx context.Context, identityID string) (*identity.Public, error) {
			cached, err := e.identityCache.Get(ctx, identityID)
			if err != nil || cached == nil {
				return nil, err
			}
			return &identity.Public{
				ID:        cached.ID,
				Username:  cached.Username,
				Email:     cached.Email,
				Role:      cached.Role,
				CreatedAt: cached.CreatedAt,
			}, nil
		}
		deps.CacheIdentity = func(ctx context.Context, ident *identity.Public) error {
			return e.identityCache.Set(ctx, &stores.CachedIdentity{
				ID:        ident.ID,
				Username:  ident.Username,
				Email:     ident.Email,
				Role:      ident.Role,
				CreatedAt: ident.CreatedAt,
			})
		}
	}
	return deps
}

// Authenticate resolves an access token into the caller. It fails with
// [ErrUnauthenticated] for a missing, forged or expired token and with
// [ErrSessionSuperseded] when a newer login replaced the token's session.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := e.flows.Authenticate(ctx, accessToken)
	e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))

	switch res.Failure {
	case internalflows.AuthenticateFailureNone:
	case internalflows.AuthenticateFailureUnauthenticated:
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrUnauthenticated
	case internalflows.AuthenticateFailureSuperseded:
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrSessionSuperseded
	default:
		e.metricInc(MetricAuthenticateFailure)
		return nil, backendError(res.Err)
	}

	e.metricInc(MetricAuthenticateSuccess)
	if e.identityCache != nil {
		if res.CacheHit {
			e.metricInc(MetricIdentityCacheHit)
		} else {
			e.metricInc(MetricIdentityCacheMiss)
		}
	}

	return &Principal{
		Identity:  *res.Identity,
		SessionID: res.SessionID,
	}, nil
}

// Me returns the principal's identity together with its session record.
func (e *Engine) Me(ctx context.Context, p *Principal) (*MeResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if p == nil || p.SessionID == "" {
		return nil, ErrUnauthenticated
	}

	meta, err := e.sessionStore.Touch(ctx, p.SessionID)
	if err != nil {
		return nil, backendError(err)
	}
	if meta == nil || meta.IdentityID != p.Identity.ID {
		return nil, ErrUnauthenticated
	}

	return &MeResult{
		Identity: p.Identity,
		Session:  sessionInfo(meta),
	}, nil
}

/*
====================================
LOGOUT
====================================
*/

func (e *Engine) logoutFlowDeps() internalflows.LogoutDeps {
	deps := internalflows.LogoutDeps{
		RevokeSession: e.sessionStore.Revoke,
		RevokeCSRF:    e.csrfStore.Revoke,
		Warn:          e.warn,
	}
	if e.identityCache != nil {
		deps.InvalidateCache = e.identityCache.Invalidate
	}
	return deps
}

// Logout revokes the identity's session, refresh token and CSRF token and
// drops its cached identity. Logging out twice is not an error.
func (e *Engine) Logout(ctx context.Context, identityID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if identityID == "" {
		return ErrUnauthenticated
	}

	res := e.flows.Logout(ctx, identityID)
	if res.Err != nil {
		err := backendError(res.Err)
		e.emitAudit(ctx, auditEventLogout, false, identityID, res.SessionID, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, identityID, res.SessionID, nil, nil)
	return nil
}

// VerifyCSRF checks the presented double-submit token for identityID. With
// relaxed set, an identity holding no stored token passes; logout uses this
// so an expired CSRF token never traps a user in a session.
func (e *Engine) VerifyCSRF(ctx context.Context, identityID, presented string, relaxed bool) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	mode := csrf.ModeStrict
	if relaxed {
		mode = csrf.ModeLogout
	}

	err := e.csrfStore.Verify(ctx, identityID, presented, mode)
	if err == nil {
		return nil
	}
	if errors.Is(err, csrf.ErrMissing) || errors.Is(err, csrf.ErrInvalid) {
		e.metricInc(MetricCSRFRejected)
		e.emitAudit(ctx, auditEventCSRFRejected, false, identityID, "", err, nil)
		return err
	}
	return backendError(err)
}

// wrapf is fmt.Errorf for messages that add context without a new sentinel.
func wrapf(err error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{err}, args...)...)
}

// AllowRequest counts one request from key (usually the client IP) against
// the global window and returns a *RateLimitError once it is exhausted.
func (e *Engine) AllowRequest(ctx context.Context, key string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	allow := e.allowFunc("global", e.config.RateLimit.Global)
	if allow == nil {
		return nil
	}

	ok, retryAfter, err := allow(ctx, key)
	if err != nil {
		return backendError(err)
	}
	if !ok {
		e.emitRateLimit(ctx, "global", retryAfter)
		return &RateLimitError{Scope: "global", RetryAfter: retryAfter}
	}
	return nil
}
