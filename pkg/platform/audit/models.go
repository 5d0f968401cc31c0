package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers identity lifecycle events with regulatory weight.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers authentication failures and step-up abuse.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Phone numbers in
// Subject are masked by the emitter.
type Event struct {
	ID        uuid.UUID     `json:"id"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	ClientID  uuid.UUID     `json:"clientId"`
	Subject   string        `json:"subject,omitempty"`
	Action    string        `json:"action"`
	Decision  string        `json:"decision,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	IP        string        `json:"ip,omitempty"`
	RequestID string        `json:"requestId,omitempty"`
}

type AuditEvent string

const (
	EventRegistrationCompleted  AuditEvent = "registration_completed"
	EventAuthorizationSucceeded AuditEvent = "authorization_succeeded"
	EventAuthorizationFailed    AuditEvent = "authorization_failed"
	EventOTPIssued              AuditEvent = "otp_issued"
	EventOTPVerified            AuditEvent = "otp_verified"
	EventOTPRejected            AuditEvent = "otp_rejected"
	EventOTPExhausted           AuditEvent = "otp_exhausted"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRegistrationCompleted:  CategoryCompliance,
	EventAuthorizationFailed:    CategorySecurity,
	EventOTPRejected:            CategorySecurity,
	EventOTPExhausted:           CategorySecurity,
	EventAuthorizationSucceeded: CategoryOperations,
	EventOTPIssued:              CategoryOperations,
	EventOTPVerified:            CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// NewEvent stamps an event with an id, its category and the given time.
func NewEvent(action AuditEvent, now time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Category:  action.Category(),
		Timestamp: now,
		Action:    string(action),
	}
}

// Store persists or forwards events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
