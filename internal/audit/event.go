package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType classifies an audit event.
type EventType string

// Event types.
const (
	EventAuthenticationSuccess EventType = "AUTHENTICATION_SUCCESS"
	EventAuthenticationFailure EventType = "AUTHENTICATION_FAILURE"
	EventAuthenticationError   EventType = "AUTHENTICATION_ERROR"
	EventAuthorizationFailure  EventType = "AUTHORIZATION_FAILURE"
	EventDataSanitization      EventType = "DATA_SANITIZATION"
	EventJWTRevoked            EventType = "JWT_TOKEN_REVOKED"
)

// Actions.
const (
	ActionAuthenticate    = "AUTHENTICATE"
	ActionJWTAuthenticate = "JWT_AUTHENTICATE"
	ActionAuthorize       = "AUTHORIZE"
	ActionSanitize        = "SANITIZE"
	ActionJWTRevoke       = "JWT_REVOKE"
)

// Event is an immutable security audit record.
type Event struct {
	ID             string                 `json:"eventId"`
	Type           EventType              `json:"eventType"`
	UserID         string                 `json:"userId,omitempty"`
	ClientIP       string                 `json:"clientIp"`
	UserAgent      string                 `json:"userAgent,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Resource       string                 `json:"resource,omitempty"`
	Action         string                 `json:"action"`
	Success        bool                   `json:"success"`
	FailureReason  string                 `json:"failureReason,omitempty"`
	AdditionalData map[string]interface{} `json:"additionalData,omitempty"`
}

// IsJWT reports whether the event concerns the signed token scheme.
func (e Event) IsJWT() bool {
	return strings.Contains(string(e.Type), "JWT") || strings.Contains(e.Action, "JWT")
}

// NewEventID returns a random event identifier.
func NewEventID() string {
	return uuid.New().String()
}

// SanitizationEvent builds the event emitted by the data sanitization
// collaborator for one sanitized payload.
func SanitizationEvent(userID, clientIP, resource string, rulesApplied int) Event {
	return Event{
		Type:     EventDataSanitization,
		UserID:   userID,
		ClientIP: clientIP,
		Resource: resource,
		Action:   ActionSanitize,
		Success:  true,
		AdditionalData: map[string]interface{}{
			"rulesApplied": rulesApplied,
		},
	}
}
