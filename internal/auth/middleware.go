package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/session"
	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	User    *domain.User
	Session *domain.Session
}

// UserLoader loads users by id.
type UserLoader interface {
	Get(ctx context.Context, id string) (*domain.User, error)
}

// SessionMiddleware resolves the session token on a request into a Principal.
type SessionMiddleware struct {
	tokens     *TokenManager
	sessions   session.Store
	users      UserLoader
	cookieName string
}

// NewSessionMiddleware constructs middleware.
func NewSessionMiddleware(tokens *TokenManager, sessions session.Store, users UserLoader, cookieName string) *SessionMiddleware {
	return &SessionMiddleware{tokens: tokens, sessions: sessions, users: users, cookieName: cookieName}
}

// Load attaches the principal when the request carries a live session and
// lets anonymous requests through untouched.
func (m *SessionMiddleware) Load(c *fiber.Ctx) error {
	principal, err := m.resolve(c)
	if err != nil {
		return err
	}
	if principal != nil {
		c.Locals(principalKey, principal)
	}
	return c.Next()
}

// Require rejects anonymous requests with onMissing. A nil onMissing answers
// with UNAUTHORIZED.
func (m *SessionMiddleware) Require(onMissing fiber.Handler) fiber.Handler {
	if onMissing == nil {
		onMissing = func(*fiber.Ctx) error {
			return apperrors.NewUnauthorized("authentication required")
		}
	}
	return func(c *fiber.Ctx) error {
		principal, err := m.resolve(c)
		if err != nil {
			return err
		}
		if principal == nil {
			return onMissing(c)
		}
		c.Locals(principalKey, principal)
		return c.Next()
	}
}

// resolve returns nil without error when the request is anonymous. Only
// storage failures are reported as errors.
func (m *SessionMiddleware) resolve(c *fiber.Ctx) (*Principal, error) {
	if p, ok := PrincipalFromContext(c); ok {
		return p, nil
	}

	raw := m.rawToken(c)
	if raw == "" {
		return nil, nil
	}
	claims, err := m.tokens.ParseToken(raw)
	if err != nil {
		return nil, nil
	}

	ctx := c.UserContext()
	sess, err := m.sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if sess.UserID != claims.Subject {
		return nil, nil
	}

	user, err := m.users.Get(ctx, sess.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if !user.CanAuthenticate() {
		return nil, nil
	}
	return &Principal{User: user, Session: sess}, nil
}

// rawToken prefers a bearer header over the session cookie.
func (m *SessionMiddleware) rawToken(c *fiber.Ctx) string {
	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Cookies(m.cookieName)
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
