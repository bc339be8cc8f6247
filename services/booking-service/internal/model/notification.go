package model

import "time"

type NotificationType string

const (
	NotificationBookingCreated   NotificationType = "booking_created"
	NotificationBookingUpdated   NotificationType = "booking_updated"
	NotificationBookingCancelled NotificationType = "booking_cancelled"
	NotificationWorkflowError    NotificationType = "workflow_error"
)

// Notification is a tenant-side event record. A non-empty DedupeKey makes the
// insert idempotent per tenant.
type Notification struct {
	ID         string           `json:"id"`
	TenantID   string           `json:"tenant_id"`
	Type       NotificationType `json:"type"`
	ResourceID string           `json:"resource_id,omitempty"`
	Message    string           `json:"message"`
	Read       bool             `json:"read"`
	DedupeKey  string           `json:"-"`
	CreatedAt  time.Time        `json:"created_at"`
}
