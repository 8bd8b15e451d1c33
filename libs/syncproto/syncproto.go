// Package syncproto defines the push/pull wire format shared by the booking
// service and the reception client.
package syncproto

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionCancel = "CANCEL"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	DefaultPullDays = 14
	MaxPullDays     = 90
)

// Action is one queued client mutation. Payload holds a CreatePayload,
// UpdatePayload or CancelPayload depending on Type.
type Action struct {
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func NewAction(kind string, payload any, key string) (Action, error) {
	switch kind {
	case ActionCreate, ActionUpdate, ActionCancel:
	default:
		return Action{}, fmt.Errorf("unknown action type %q", kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Action{}, err
	}
	return Action{Type: kind, Payload: raw, IdempotencyKey: key}, nil
}

type CreatePayload struct {
	ID            string    `json:"id,omitempty"`
	EmployeeID    string    `json:"employee_id"`
	ServiceID     string    `json:"service_id"`
	CustomerID    string    `json:"customer_id,omitempty"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	Status        string    `json:"status,omitempty"`
}

// UpdatePayload carries only the fields being changed.
type UpdatePayload struct {
	ID         string     `json:"id"`
	EmployeeID *string    `json:"employee_id,omitempty"`
	ServiceID  *string    `json:"service_id,omitempty"`
	StartAt    *time.Time `json:"start_at,omitempty"`
	EndAt      *time.Time `json:"end_at,omitempty"`
	Status     *string    `json:"status,omitempty"`
}

type CancelPayload struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

type Interval struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

type PushRequest struct {
	Actions []Action `json:"actions"`
}

type Conflict struct {
	IdempotencyKey   string    `json:"idempotency_key"`
	Reason           string    `json:"reason"`
	ServerSuggestion *Interval `json:"server_suggestion,omitempty"`
}

type PushResponse struct {
	OK        bool       `json:"ok"`
	Applied   int        `json:"applied"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

type PullRequest struct {
	Days int `json:"days"`
}

// Appointment is the offline projection returned by pull.
type Appointment struct {
	ID           string    `json:"id"`
	BusinessID   string    `json:"business_id"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name,omitempty"`
	EmployeeID   string    `json:"employee_id"`
	ServiceID    string    `json:"service_id"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PullResponse struct {
	OK           bool          `json:"ok"`
	Appointments []Appointment `json:"appointments"`
	Days         int           `json:"days"`
}

// ClampDays applies the pull window default and upper bound.
func ClampDays(days int) int {
	if days <= 0 {
		return DefaultPullDays
	}
	if days > MaxPullDays {
		return MaxPullDays
	}
	return days
}
