package availability

import (
	"sort"
	"strings"
	"time"
)

type Mode string

const (
	ModeOpen      Mode = "open"
	ModeClosed    Mode = "closed"
	ModeOnRequest Mode = "on_request"
)

// MinuteRange is [Start, End) in minutes since local midnight.
type MinuteRange struct {
	Start int
	End   int
}

func (r MinuteRange) Empty() bool { return r.End <= r.Start }

type BusinessHours struct {
	DayOfWeek time.Weekday
	Mode      Mode
	Start     int
	End       int
}

// DateOverride replaces the weekly hours for one date. Start/End are only
// meaningful in ModeOpen; an open override without times keeps the weekly hours.
type DateOverride struct {
	Date  Date
	Mode  Mode
	Start *int
	End   *int
}

// HoursSource is either WeeklyHours or StructuredHours.
type HoursSource interface {
	intervals(d Date) []MinuteRange
}

// LegacyDay is one entry of the older per-business JSON hours map.
type LegacyDay struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed"`
}

// WeeklyHours is the legacy map keyed by lowercase English weekday name.
type WeeklyHours map[string]LegacyDay

func (w WeeklyHours) intervals(d Date) []MinuteRange {
	day, ok := w[strings.ToLower(d.Weekday().String())]
	if !ok || day.Closed {
		return nil
	}
	start, err := ParseClock(day.Open)
	if err != nil {
		return nil
	}
	end, err := ParseClock(day.Close)
	if err != nil {
		return nil
	}
	r := MinuteRange{Start: start, End: end}
	if r.Empty() {
		return nil
	}
	return []MinuteRange{r}
}

type StructuredHours struct {
	Entries   []BusinessHours
	Overrides []DateOverride
}

func (s StructuredHours) intervals(d Date) []MinuteRange {
	for _, o := range s.Overrides {
		if o.Date != d {
			continue
		}
		if o.Mode != ModeOpen {
			return nil
		}
		if o.Start != nil && o.End != nil {
			r := MinuteRange{Start: *o.Start, End: *o.End}
			if r.Empty() {
				return nil
			}
			return []MinuteRange{r}
		}
		break
	}

	var out []MinuteRange
	wd := d.Weekday()
	for _, e := range s.Entries {
		if e.DayOfWeek != wd || e.Mode != ModeOpen {
			continue
		}
		r := MinuteRange{Start: e.Start, End: e.End}
		if !r.Empty() {
			out = append(out, r)
		}
	}
	return mergeRanges(out)
}

// ResolveEffectiveIntervals returns the bookable opening intervals for d,
// whichever representation src uses. A nil source yields nothing.
func ResolveEffectiveIntervals(src HoursSource, d Date) []MinuteRange {
	if src == nil {
		return nil
	}
	return src.intervals(d)
}

func mergeRanges(in []MinuteRange) []MinuteRange {
	if len(in) < 2 {
		return in
	}
	sorted := append([]MinuteRange(nil), in...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	merged := make([]MinuteRange, 0, len(sorted))
	merged = append(merged, sorted[0])
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		if cur.Start > last.End {
			merged = append(merged, cur)
			continue
		}
		if cur.End > last.End {
			last.End = cur.End
		}
	}
	return merged
}

// subtract removes blocks from base, returning the remaining pieces in order.
func subtract(base MinuteRange, blocks []MinuteRange) []MinuteRange {
	if base.Empty() {
		return nil
	}
	var clipped []MinuteRange
	for _, b := range blocks {
		s, e := max(b.Start, base.Start), min(b.End, base.End)
		if e > s {
			clipped = append(clipped, MinuteRange{Start: s, End: e})
		}
	}
	if len(clipped) == 0 {
		return []MinuteRange{base}
	}

	var out []MinuteRange
	cursor := base.Start
	for _, m := range mergeRanges(clipped) {
		if m.Start > cursor {
			out = append(out, MinuteRange{Start: cursor, End: m.Start})
		}
		if m.End > cursor {
			cursor = m.End
		}
	}
	if base.End > cursor {
		out = append(out, MinuteRange{Start: cursor, End: base.End})
	}
	return out
}
