package main

import (
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/storage"
)

const (
	demoBusinessID = "00000000-0000-4000-8000-000000000001"
	demoServiceID  = "00000000-0000-4000-8000-000000000002"
	demoEmployeeID = "00000000-0000-4000-8000-000000000003"
)

// seedDemo loads one business open Mon-Fri 09:00-17:00 with a single
// employee and a 30 minute service into the in-memory store.
func seedDemo(mem *storage.Memory, logger *slog.Logger) {
	mem.PutSettings(model.DefaultSettings(demoBusinessID))
	mem.PutService(model.Service{ID: demoServiceID, BusinessID: demoBusinessID, Name: "Consultation", DurationMinutes: 30, Active: true})
	mem.PutEmployee(model.Employee{ID: demoEmployeeID, BusinessID: demoBusinessID, Name: "Demo Staff", Active: true})
	mem.PutOffering(demoEmployeeID, demoServiceID)
	for wd := time.Monday; wd <= time.Friday; wd++ {
		mem.PutBusinessHours(demoBusinessID, availability.BusinessHours{DayOfWeek: wd, Mode: availability.ModeOpen, Start: 9 * 60, End: 17 * 60})
		mem.PutEmployeeSchedule(availability.EmployeeSchedule{
			EmployeeID: demoEmployeeID,
			Weekday:    wd,
			Start:      9 * 60,
			End:        17 * 60,
			Breaks:     []availability.MinuteRange{{Start: 12 * 60, End: 13 * 60}},
		})
	}
	logger.Info("demo data seeded", "business_id", demoBusinessID, "employee_id", demoEmployeeID, "service_id", demoServiceID)
}
