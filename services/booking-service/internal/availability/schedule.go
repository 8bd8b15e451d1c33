package availability

import "time"

type EmployeeSchedule struct {
	EmployeeID string
	Weekday    time.Weekday
	Start      int
	End        int
	Breaks     []MinuteRange
}

// Windows returns the bookable windows for one employee on d: the business
// intervals intersected with the employee's shifts, with breaks removed.
func Windows(src HoursSource, schedules []EmployeeSchedule, d Date) []MinuteRange {
	business := ResolveEffectiveIntervals(src, d)
	if len(business) == 0 {
		return nil
	}

	var out []MinuteRange
	wd := d.Weekday()
	for _, sch := range schedules {
		if sch.Weekday != wd {
			continue
		}
		shift := MinuteRange{Start: sch.Start, End: sch.End}
		if shift.Empty() {
			continue
		}
		for _, b := range business {
			w := MinuteRange{Start: max(b.Start, shift.Start), End: min(b.End, shift.End)}
			if w.Empty() {
				continue
			}
			out = append(out, subtract(w, sch.Breaks)...)
		}
	}
	return mergeRanges(out)
}
