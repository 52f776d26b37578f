package domain

import "time"

// Session is a server-side record of an authenticated user.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its lifetime at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Site identifies where emailed links should point.
type Site struct {
	Scheme string
	Domain string
}

// URL joins the site origin with path.
func (s Site) URL(path string) string {
	scheme := s.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + s.Domain + path
}
