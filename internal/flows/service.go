package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Authenticate.VerifyAccess != nil && s.deps.Login.CreateSession != nil
}

func (s Service) Login(ctx context.Context, email, password, clientIP string) LoginResult {
	return RunLogin(ctx, email, password, clientIP, s.deps.Login)
}

func (s Service) Authenticate(ctx context.Context, accessToken string) AuthenticateResult {
	return RunAuthenticate(ctx, accessToken, s.deps.Authenticate)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, identityID string) LogoutResult {
	return RunLogout(ctx, identityID, s.deps.Logout)
}

func (s Service) Register(ctx context.Context, req RegisterRequest) RegisterResult {
	return RunRegister(ctx, req, s.deps.Registration)
}

func (s Service) VerifyRegistration(ctx context.Context, token string) VerifyResult {
	return RunVerifyRegistration(ctx, token, s.deps.Registration)
}

func (s Service) ForgotPassword(ctx context.Context, email string) ForgotResult {
	return RunForgotPassword(ctx, email, s.deps.PasswordReset)
}

func (s Service) ResetPassword(ctx context.Context, token, newPassword string) ResetResult {
	return RunResetPassword(ctx, token, newPassword, s.deps.PasswordReset)
}
