package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/mail"
	"github.com/spec-kit/account-service/internal/session"
	"github.com/spec-kit/account-service/internal/store"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

// User-visible messages.
const (
	MsgRegistrationInvalid = "Invalid form sent."
	MsgAccountExists       = "An account with this email already exists."
	MsgCheckEmail          = "Please check your email to complete the registration."
	MsgEmailFailed         = "Email could not be sent. Please try again later."
	MsgActivated           = "Your account has been activated successfully."
	MsgActivationInvalid   = "Your activation link is invalid or expired."
	MsgLoginInvalid        = "Failed to login."
	MsgInvalidCredentials  = "Invalid email or password."
	MsgResendSent          = "If an account is waiting for activation, a new email is on its way."
)

const (
	activationSubject  = "Activate your account"
	activationTemplate = "emails/account_activation.txt"
)

var (
	// ErrInvalidActivation is the single outcome of every failed activation.
	ErrInvalidActivation = apperrors.NewTokenError(MsgActivationInvalid)
	// ErrInvalidCredentials is the single outcome of every failed login.
	ErrInvalidCredentials = apperrors.NewUnauthorized(MsgInvalidCredentials)

	errInactiveAccount = errors.New("inactive account")
)

// TemplateRenderer renders named templates to strings.
type TemplateRenderer interface {
	RenderString(name string, data map[string]any) (string, error)
}

// AccountDependencies encapsulates collaborators for the account service.
type AccountDependencies struct {
	Users      store.UserStore
	Sessions   session.Store
	Tokens     *auth.ActivationTokens
	SessionJWT *auth.TokenManager
	Mailer     mail.Transport
	Renderer   TemplateRenderer
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// AuthResult is returned by flows that start a session.
type AuthResult struct {
	User    *domain.User
	Session *domain.Session
	Token   string
}

// AccountService coordinates registration, activation, login and logout.
type AccountService struct {
	users      store.UserStore
	sessions   session.Store
	tokens     *auth.ActivationTokens
	sessionJWT *auth.TokenManager
	mailer     mail.Transport
	renderer   TemplateRenderer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewAccountService builds the service.
func NewAccountService(deps AccountDependencies) *AccountService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher(logger)
	}
	return &AccountService{
		users:      deps.Users,
		sessions:   deps.Sessions,
		tokens:     deps.Tokens,
		sessionJWT: deps.SessionJWT,
		mailer:     deps.Mailer,
		renderer:   deps.Renderer,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Register creates an inactive account and emails its activation link.
//
// When the email cannot be sent the account is kept and a transport error is
// returned together with the created user.
func (s *AccountService) Register(ctx context.Context, in RegistrationInput, site domain.Site) (*domain.User, error) {
	if err := in.Validate(); err != nil {
		return nil, validationError(MsgRegistrationInvalid, err)
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperrors.NewConflict(MsgAccountExists, nil)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	user, err := s.users.Create(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, apperrors.NewConflict(MsgAccountExists, nil)
		}
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("account created", zap.String("user_id", user.ID))
	s.publish(ctx, events.EventUserRegistered, user.ID, nil)

	if err := s.sendActivation(ctx, user, site, false); err != nil {
		return user, err
	}
	return user, nil
}

// ResendActivation emails a fresh activation link to an inactive account.
// Unknown and already active addresses are ignored so callers cannot probe
// for accounts.
func (s *AccountService) ResendActivation(ctx context.Context, in ResendInput, site domain.Site) error {
	if err := in.Validate(); err != nil {
		return validationError(MsgRegistrationInvalid, err)
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if user.IsActive {
		return nil
	}
	return s.sendActivation(ctx, user, site, true)
}

// Activate checks an activation link and, when valid, activates the account
// and signs the user in.
func (s *AccountService) Activate(ctx context.Context, encodedUID, token string) (*AuthResult, error) {
	id, err := auth.DecodeUID(encodedUID)
	if err != nil {
		return nil, ErrInvalidActivation
	}

	user, err := s.users.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidActivation
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	if !s.tokens.Verify(user, token) {
		return nil, ErrInvalidActivation
	}

	user.IsActive = true
	result, err := s.startSession(ctx, user, "")
	if err != nil {
		return nil, err
	}
	s.logger.Info("account activated", zap.String("user_id", user.ID))
	s.publish(ctx, events.EventUserActivated, user.ID, nil)
	return result, nil
}

// Login checks credentials through the user store and starts a new session.
// Unknown accounts, wrong passwords and inactive accounts share one error.
// currentSessionID, when set, is revoked so a login never reuses a session.
func (s *AccountService) Login(ctx context.Context, in LoginInput, currentSessionID string) (*AuthResult, error) {
	if err := in.Validate(); err != nil {
		return nil, validationError(MsgLoginInvalid, err)
	}

	user, err := s.users.Authenticate(ctx, in.Email, in.Password)
	switch {
	case errors.Is(err, store.ErrInvalidCredentials):
		return nil, s.loginFailed(ctx, "", err)
	case err != nil:
		return nil, apperrors.NewInternalError(err)
	case !user.CanAuthenticate():
		return nil, s.loginFailed(ctx, user.ID, errInactiveAccount)
	}

	result, err := s.startSession(ctx, user, currentSessionID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventUserLoggedIn, user.ID, nil)
	return result, nil
}

// Logout ends the given session.
func (s *AccountService) Logout(ctx context.Context, sess *domain.Session) error {
	if sess == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.EventUserLoggedOut, sess.UserID, nil)
	return nil
}

// ActivationPath is the route path for an activation link.
func ActivationPath(uid, token string) string {
	return "/accounts/account-activation/" + uid + "/" + token + "/"
}

func (s *AccountService) sendActivation(ctx context.Context, user *domain.User, site domain.Site, resend bool) error {
	uid := auth.EncodeUID(user.ID)
	token := s.tokens.Issue(user)
	body, err := s.renderer.RenderString(activationTemplate, map[string]any{
		"user":           user,
		"domain":         site.Domain,
		"protocol":       site.Scheme,
		"uid":            uid,
		"token":          token,
		"activation_url": site.URL(ActivationPath(uid, token)),
	})
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("render activation email: %w", err))
	}

	err = s.mailer.Send(ctx, mail.Message{
		Subject: activationSubject,
		Body:    body,
		To:      []string{user.Email},
	})
	if err != nil {
		s.logger.Error("activation email failed", zap.String("user_id", user.ID), zap.Error(err))
		s.publish(ctx, events.EventActivationEmailError, user.ID, events.ActivationEmailPayload{Resend: resend, Error: err.Error()})
		return apperrors.NewTransportError(MsgEmailFailed, err)
	}
	s.publish(ctx, events.EventActivationEmailSent, user.ID, events.ActivationEmailPayload{Resend: resend})
	return nil
}

// startSession stamps the login time, persists the user and opens a session.
func (s *AccountService) startSession(ctx context.Context, user *domain.User, previousSessionID string) (*AuthResult, error) {
	now := s.now().UTC().Truncate(time.Second)
	user.LastLogin = &now
	if err := s.users.Save(ctx, user); err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("save user: %w", err))
	}

	if previousSessionID != "" {
		if err := s.sessions.Delete(ctx, previousSessionID); err != nil {
			s.logger.Warn("revoke previous session", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	sess, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("create session: %w", err))
	}
	token, err := s.sessionJWT.GenerateToken(sess)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("sign session: %w", err))
	}
	return &AuthResult{User: user, Session: sess, Token: token}, nil
}

func (s *AccountService) loginFailed(ctx context.Context, userID string, cause error) error {
	reason := "invalid_credentials"
	switch {
	case errors.Is(cause, store.ErrUnknownAccount):
		reason = "unknown_account"
	case errors.Is(cause, store.ErrWrongPassword):
		reason = "wrong_password"
	case errors.Is(cause, errInactiveAccount):
		reason = "inactive_account"
	}
	s.publish(ctx, events.EventUserLoginFailed, userID, events.LoginFailedPayload{Reason: reason})
	return apperrors.NewAuthError(MsgInvalidCredentials, cause)
}

func (s *AccountService) publish(ctx context.Context, t events.EventType, userID string, payload interface{}) {
	_ = s.dispatcher.Publish(ctx, events.NewEvent(t, userID, payload))
}
