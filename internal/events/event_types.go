package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered       EventType = "user_registered"
	EventActivationEmailSent  EventType = "activation_email_sent"
	EventActivationEmailError EventType = "activation_email_failed"
	EventUserActivated        EventType = "user_activated"
	EventUserLoggedIn         EventType = "user_logged_in"
	EventUserLoginFailed      EventType = "user_login_failed"
	EventUserLoggedOut        EventType = "user_logged_out"
)

// Event represents an account lifecycle event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewEvent stamps an event with an id and the current time.
func NewEvent(eventType EventType, userID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// ActivationEmailPayload describes an activation email attempt.
type ActivationEmailPayload struct {
	Resend bool   `json:"resend"`
	Error  string `json:"error,omitempty"`
}

// LoginFailedPayload records why a login was refused. It never leaves the server.
type LoginFailedPayload struct {
	Reason string `json:"reason"`
}
