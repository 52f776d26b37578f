package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

const activationPurpose = "account-service/account-activation"

// bucketEpoch is day zero for token time buckets.
var bucketEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// ActivationTokens issues and checks account activation tokens.
//
// A token is "<day bucket base36>-<signature>". The signature covers the user
// id, the bucket and a fingerprint of mutable user state (active flag, last
// login, password hash, email), so activating or logging in invalidates every
// token issued before.
type ActivationTokens struct {
	secrets [][]byte
	maxAge  int64
	now     func() time.Time
}

// ActivationOption customizes ActivationTokens.
type ActivationOption func(*ActivationTokens)

// WithActivationClock injects a clock (useful for tests).
func WithActivationClock(now func() time.Time) ActivationOption {
	return func(t *ActivationTokens) {
		if now != nil {
			t.now = now
		}
	}
}

// WithFallbackSecrets accepts tokens signed with previous secrets.
func WithFallbackSecrets(secrets ...string) ActivationOption {
	return func(t *ActivationTokens) {
		for _, s := range secrets {
			if s != "" {
				t.secrets = append(t.secrets, []byte(s))
			}
		}
	}
}

// NewActivationTokens builds a generator signing with secret. Tokens older
// than ttlDays whole days fail verification.
func NewActivationTokens(secret string, ttlDays int, opts ...ActivationOption) *ActivationTokens {
	if ttlDays <= 0 {
		ttlDays = 3
	}
	t := &ActivationTokens{
		secrets: [][]byte{[]byte(secret)},
		maxAge:  int64(ttlDays),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Issue returns a token bound to the current state of user.
func (t *ActivationTokens) Issue(user *domain.User) string {
	bucket := t.bucket(t.now())
	return t.token(t.secrets[0], user, bucket)
}

// Verify reports whether token was issued for user in its current state and
// is still within the validity window.
func (t *ActivationTokens) Verify(user *domain.User, token string) bool {
	if user == nil || token == "" {
		return false
	}
	rawBucket, _, ok := strings.Cut(token, "-")
	if !ok {
		return false
	}
	bucket, err := strconv.ParseInt(rawBucket, 36, 64)
	if err != nil || bucket < 0 {
		return false
	}

	matched := false
	for _, secret := range t.secrets {
		if hmac.Equal([]byte(token), []byte(t.token(secret, user, bucket))) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	age := t.bucket(t.now()) - bucket
	return age >= 0 && age <= t.maxAge
}

func (t *ActivationTokens) bucket(at time.Time) int64 {
	return int64(at.UTC().Sub(bucketEpoch) / (24 * time.Hour))
}

func (t *ActivationTokens) token(secret []byte, user *domain.User, bucket int64) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(activationPurpose))
	mac.Write([]byte{0})
	mac.Write([]byte(fingerprint(user)))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(bucket, 10)))
	return strconv.FormatInt(bucket, 36) + "-" + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// fingerprint serializes the user state a token is bound to.
func fingerprint(user *domain.User) string {
	lastLogin := ""
	if user.LastLogin != nil {
		lastLogin = strconv.FormatInt(user.LastLogin.UTC().Unix(), 10)
	}
	return strings.Join([]string{
		user.ID,
		strconv.FormatBool(user.IsActive),
		lastLogin,
		user.PasswordHash,
		user.Email,
	}, "\x1f")
}
