package availability

import (
	"time"

	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/conflict"
)

const DefaultSlotInterval = 30

// Request describes one employee/day slot query. Durations are in minutes;
// Existing holds the employee's non-cancelled appointments.
type Request struct {
	Date         Date
	Location     *time.Location
	Hours        HoursSource
	Schedules    []EmployeeSchedule
	Duration     int
	Buffer       int
	Existing     []conflict.Interval
	LeadTime     time.Duration
	SlotInterval int
	Now          time.Time
}

// Slots returns every start on req.Date where an appointment of
// Duration+Buffer fits inside an open window, starts no earlier than
// Now+LeadTime and does not overlap an existing appointment.
func Slots(req Request) []time.Time {
	need := req.Duration + req.Buffer
	if need <= 0 {
		return nil
	}
	step := req.SlotInterval
	if step <= 0 {
		step = DefaultSlotInterval
	}
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}
	earliest := req.Now.Add(req.LeadTime)

	var slots []time.Time
	for _, w := range Windows(req.Hours, req.Schedules, req.Date) {
		for m := w.Start; m+need <= w.End; m += step {
			start := req.Date.At(m, loc)
			end := req.Date.At(m+need, loc)
			if start.Before(earliest) {
				continue
			}
			if _, busy := conflict.FirstOverlap(conflict.Interval{Start: start, End: end}, req.Existing); busy {
				continue
			}
			if n := len(slots); n > 0 && !start.After(slots[n-1]) {
				continue
			}
			slots = append(slots, start)
		}
	}
	return slots
}

// NextAvailable finds the first slot starting at or after notBefore, looking
// from req.Date through the following days-1 days. The returned interval
// spans Duration+Buffer.
func NextAvailable(req Request, notBefore time.Time, days int) (conflict.Interval, bool) {
	if days <= 0 {
		days = 1
	}
	need := time.Duration(req.Duration+req.Buffer) * time.Minute
	first := req.Date
	for i := 0; i < days; i++ {
		req.Date = first.AddDays(i)
		for _, s := range Slots(req) {
			if s.Before(notBefore) {
				continue
			}
			return conflict.Interval{Start: s, End: s.Add(need)}, true
		}
	}
	return conflict.Interval{}, false
}
