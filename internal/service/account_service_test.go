package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/mail"
	"github.com/spec-kit/account-service/internal/render"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/session"
	"github.com/spec-kit/account-service/internal/store"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

type MockTransport struct {
	mock.Mock
	mu   sync.Mutex
	sent []mail.Message
}

func (m *MockTransport) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return m.Called(ctx, msg).Error(0)
}

func (m *MockTransport) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

type fixture struct {
	svc      *AccountService
	users    store.UserStore
	sessions *session.MemoryStore
	mailer   *MockTransport
	tokens   *auth.ActivationTokens
	events   []events.Event
	mu       sync.Mutex
}

var testSite = domain.Site{Scheme: "http", Domain: "testserver"}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users, err := store.NewUserStore(repository.NewMemoryUserRepository(), bcrypt.MinCost)
	require.NoError(t, err)
	renderer, err := render.New()
	require.NoError(t, err)

	f := &fixture{
		users:    users,
		sessions: session.NewMemoryStore(time.Hour),
		mailer:   &MockTransport{},
		tokens:   auth.NewActivationTokens("activation-secret", 3),
	}

	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	for _, et := range []events.EventType{
		events.EventUserRegistered, events.EventActivationEmailSent, events.EventActivationEmailError,
		events.EventUserActivated, events.EventUserLoggedIn, events.EventUserLoginFailed, events.EventUserLoggedOut,
	} {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			f.mu.Lock()
			f.events = append(f.events, e)
			f.mu.Unlock()
			return nil
		})
	}

	f.svc = NewAccountService(AccountDependencies{
		Users:      users,
		Sessions:   f.sessions,
		Tokens:     f.tokens,
		SessionJWT: auth.NewTokenManager("jwt-secret"),
		Mailer:     f.mailer,
		Renderer:   renderer,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	})
	return f
}

func (f *fixture) eventTypes() []events.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

func validRegistration(email string) RegistrationInput {
	return RegistrationInput{Email: email, Password: "s3cret-pass", PasswordConfirmation: "s3cret-pass"}
}

// activationLink extracts uid and token from the last email sent.
func activationLink(t *testing.T, m *MockTransport) (uid, token string) {
	t.Helper()
	sent := m.Sent()
	require.NotEmpty(t, sent)
	body := sent[len(sent)-1].Body
	const marker = "/accounts/account-activation/"
	i := strings.Index(body, marker)
	require.GreaterOrEqual(t, i, 0, body)
	rest := body[i+len(marker):]
	parts := strings.SplitN(rest, "/", 3)
	require.Len(t, parts, 3)
	return parts[0], parts[1]
}

func (f *fixture) registerAndActivate(t *testing.T, email string) *AuthResult {
	t.Helper()
	_, err := f.svc.Register(context.Background(), validRegistration(email), testSite)
	require.NoError(t, err)
	uid, token := activationLink(t, f.mailer)
	res, err := f.svc.Activate(context.Background(), uid, token)
	require.NoError(t, err)
	return res
}

func TestRegisterCreatesInactiveUserAndSendsOneEmail(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	user, err := f.svc.Register(context.Background(), validRegistration("Real@X.com"), testSite)
	require.NoError(t, err)

	assert.False(t, user.IsActive)
	assert.Equal(t, "real@x.com", user.Email)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Activate your account", sent[0].Subject)
	assert.Equal(t, []string{"real@x.com"}, sent[0].To)
	assert.Contains(t, sent[0].Body, "http://testserver/accounts/account-activation/"+auth.EncodeUID(user.ID)+"/")

	stored, err := f.users.GetByEmail(context.Background(), "real@x.com")
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, []events.EventType{events.EventUserRegistered, events.EventActivationEmailSent}, f.eventTypes())
	f.mailer.AssertExpectations(t)
}

func TestRegisterValidation(t *testing.T) {
	cases := map[string]struct {
		in    RegistrationInput
		field string
	}{
		"malformed email":     {RegistrationInput{Email: "not-an-email", Password: "s3cret-pass", PasswordConfirmation: "s3cret-pass"}, "email"},
		"missing email":       {RegistrationInput{Password: "s3cret-pass", PasswordConfirmation: "s3cret-pass"}, "email"},
		"mismatched password": {RegistrationInput{Email: "a@x.com", Password: "s3cret-pass", PasswordConfirmation: "other-pass"}, "password_confirmation"},
		"short password":      {RegistrationInput{Email: "a@x.com", Password: "short", PasswordConfirmation: "short"}, "password"},
		"numeric password":    {RegistrationInput{Email: "a@x.com", Password: "1234567890", PasswordConfirmation: "1234567890"}, "password"},
		"password is email":   {RegistrationInput{Email: "longname@x.com", Password: "longname", PasswordConfirmation: "longname"}, "password"},
		"password over bcrypt limit": {
			RegistrationInput{Email: "a@x.com", Password: strings.Repeat("a", 80), PasswordConfirmation: strings.Repeat("a", 80)},
			"password",
		},
		"multibyte password over bcrypt limit": {
			RegistrationInput{Email: "a@x.com", Password: strings.Repeat("é", 40), PasswordConfirmation: strings.Repeat("é", 40)},
			"password",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Register(context.Background(), tc.in, testSite)
			require.Error(t, err)

			de := apperrors.ToDomainError(err)
			assert.Equal(t, apperrors.CodeValidation, de.Code)
			assert.Contains(t, de.Details, tc.field)
			assert.Empty(t, f.mailer.Sent())
			f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Register(context.Background(), validRegistration("real@x.com"), testSite)
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), validRegistration("REAL@x.com"), testSite)
	require.Error(t, err)
	de := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeConflict, de.Code)
	assert.Equal(t, MsgAccountExists, de.Message)
	assert.Len(t, f.mailer.Sent(), 1)
}

func TestRegisterConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), validRegistration("race@x.com"), testSite)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperrors.CodeConflict, apperrors.ToDomainError(err).Code)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.mailer.Sent(), 1)
}

func TestRegisterTransportFailureKeepsUser(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()

	user, err := f.svc.Register(context.Background(), validRegistration("real@x.com"), testSite)
	require.Error(t, err)
	require.NotNil(t, user)

	de := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeEmailDelivery, de.Code)
	assert.Equal(t, http.StatusBadGateway, de.HTTPStatus)
	assert.NotContains(t, de.Message, "connection refused")

	stored, err := f.users.GetByEmail(context.Background(), "real@x.com")
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Contains(t, f.eventTypes(), events.EventActivationEmailError)
}

func TestActivateSetsActiveAndStartsSession(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Register(context.Background(), validRegistration("real@x.com"), testSite)
	require.NoError(t, err)
	uid, token := activationLink(t, f.mailer)

	res, err := f.svc.Activate(context.Background(), uid, token)
	require.NoError(t, err)
	assert.True(t, res.User.IsActive)
	require.NotNil(t, res.User.LastLogin)
	assert.NotEmpty(t, res.Token)

	_, err = f.sessions.Get(context.Background(), res.Session.ID)
	require.NoError(t, err)

	stored, err := f.users.GetByEmail(context.Background(), "real@x.com")
	require.NoError(t, err)
	assert.True(t, stored.IsActive)

	_, err = f.svc.Activate(context.Background(), uid, token)
	assert.ErrorIs(t, err, ErrInvalidActivation, "token must not be reusable")
}

func TestActivateFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	user, err := f.svc.Register(context.Background(), validRegistration("real@x.com"), testSite)
	require.NoError(t, err)
	uid, token := activationLink(t, f.mailer)

	cases := map[string][2]string{
		"malformed uid": {"%%%", token},
		"non-uuid uid":  {auth.EncodeUID("42"), token},
		"unknown user":  {auth.EncodeUID("00000000-0000-4000-8000-000000000000"), token},
		"wrong token":   {uid, "abc-def"},
		"empty token":   {uid, ""},
		"other's token": {auth.EncodeUID(user.ID), f.tokens.Issue(&domain.User{ID: "someone-else"})},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Activate(context.Background(), in[0], in[1])
			require.Error(t, err)
			de := apperrors.ToDomainError(err)
			assert.Equal(t, apperrors.CodeInvalidToken, de.Code)
			assert.Equal(t, MsgActivationInvalid, de.Message)
		})
	}

	stored, err := f.users.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestLoginInactiveAccountFails(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Register(context.Background(), validRegistration("real@x.com"), testSite)
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), LoginInput{Email: "real@x.com", Password: "s3cret-pass"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, MsgInvalidCredentials, apperrors.ToDomainError(err).Message)
	assert.Equal(t, 0, f.sessions.Len())
}

func TestLoginFailsUniformly(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	f.registerAndActivate(t, "real@x.com")

	_, unknownErr := f.svc.Login(context.Background(), LoginInput{Email: "nouser@x.com", Password: "x"}, "")
	_, wrongErr := f.svc.Login(context.Background(), LoginInput{Email: "real@x.com", Password: "wrong"}, "")

	for _, err := range []error{unknownErr, wrongErr} {
		require.Error(t, err)
		de := apperrors.ToDomainError(err)
		assert.Equal(t, apperrors.CodeUnauthorized, de.Code)
		assert.Equal(t, MsgInvalidCredentials, de.Message)
	}
}

func TestLoginSuccessRotatesSessionAndInvalidatesOldTokens(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	activated := f.registerAndActivate(t, "real@x.com")

	user, err := f.users.GetByEmail(context.Background(), "real@x.com")
	require.NoError(t, err)
	staleToken := f.tokens.Issue(user)

	time.Sleep(1100 * time.Millisecond)
	res, err := f.svc.Login(context.Background(), LoginInput{Email: "real@x.com", Password: "s3cret-pass"}, activated.Session.ID)
	require.NoError(t, err)
	assert.NotEqual(t, activated.Session.ID, res.Session.ID)

	_, err = f.sessions.Get(context.Background(), activated.Session.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	assert.False(t, f.tokens.Verify(res.User, staleToken), "last login is part of the token fingerprint")
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), LoginInput{}, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.ToDomainError(err).Code)

	_, err = f.svc.Login(context.Background(), LoginInput{Email: "a@x.com", Password: strings.Repeat("a", 73)}, "")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.ToDomainError(err).Code)
}

func TestLogoutDeletesSession(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	res := f.registerAndActivate(t, "real@x.com")

	require.NoError(t, f.svc.Logout(context.Background(), res.Session))
	_, err := f.sessions.Get(context.Background(), res.Session.ID)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Contains(t, f.eventTypes(), events.EventUserLoggedOut)

	assert.Error(t, f.svc.Logout(context.Background(), nil))
}

func TestResendActivation(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Register(context.Background(), validRegistration("pending@x.com"), testSite)
	require.NoError(t, err)
	f.registerAndActivate(t, "active@x.com")
	before := len(f.mailer.Sent())

	require.NoError(t, f.svc.ResendActivation(context.Background(), ResendInput{Email: "nouser@x.com"}, testSite))
	require.NoError(t, f.svc.ResendActivation(context.Background(), ResendInput{Email: "active@x.com"}, testSite))
	assert.Len(t, f.mailer.Sent(), before)

	require.NoError(t, f.svc.ResendActivation(context.Background(), ResendInput{Email: "pending@x.com"}, testSite))
	sent := f.mailer.Sent()
	require.Len(t, sent, before+1)
	assert.Equal(t, []string{"pending@x.com"}, sent[len(sent)-1].To)

	uid, token := activationLink(t, f.mailer)
	res, err := f.svc.Activate(context.Background(), uid, token)
	require.NoError(t, err)
	assert.Equal(t, "pending@x.com", res.User.Email)
}

func TestResendActivationValidation(t *testing.T) {
	f := newFixture(t)
	err := f.svc.ResendActivation(context.Background(), ResendInput{Email: "nope"}, testSite)
	assert.Equal(t, apperrors.CodeValidation, apperrors.ToDomainError(err).Code)
}
