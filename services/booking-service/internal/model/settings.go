package model

import (
	"time"

	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/availability"
)

type Settings struct {
	BusinessID           string
	Timezone             string
	LeadTimeMinutes      int
	MaxDaysAhead         int
	SlotIntervalMinutes  int
	AllowAdminAsProvider bool
	LegacyHours          availability.WeeklyHours
}

// DefaultSettings applies when a business has no settings row yet.
func DefaultSettings(businessID string) Settings {
	return Settings{
		BusinessID:          businessID,
		Timezone:            "UTC",
		MaxDaysAhead:        60,
		SlotIntervalMinutes: availability.DefaultSlotInterval,
	}
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (s Settings) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
