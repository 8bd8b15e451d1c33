package model

import "time"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Appointment rows are never deleted; cancellation is a status change.
type Appointment struct {
	ID           string
	BusinessID   string
	CustomerID   string
	EmployeeID   string
	ServiceID    string
	StartAt      time.Time
	EndAt        time.Time
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CustomerName string // populated by list queries only
}

type Customer struct {
	ID         string
	BusinessID string
	Email      string
	FullName   string
	Phone      string
	UserID     string
	CreatedAt  time.Time
}

type Service struct {
	ID              string
	BusinessID      string
	Name            string
	DurationMinutes int
	BufferMinutes   int
	Active          bool
}

type Employee struct {
	ID         string
	BusinessID string
	Name       string
	Active     bool
	ProfileID  string
}

type Membership struct {
	BusinessID string
	ProfileID  string
	Role       string
}

type SyncDedupRecord struct {
	BusinessID     string
	IdempotencyKey string
	ActionType     string
	CreatedAt      time.Time
}

type ClaimToken struct {
	AppointmentID string
	BusinessID    string
	TokenHash     []byte
	ExpiresAt     time.Time
	ConsumedAt    *time.Time
}
