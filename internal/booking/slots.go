package booking

import "time"

// AvailableSlots returns every grid point from workStart (inclusive) to
// workEnd (exclusive) stepped by interval, excluding booked points and points
// before now. The result is chronological and a pure function of its inputs.
func AvailableSlots(booked []time.Time, workStart, workEnd time.Time, interval time.Duration, now time.Time) []time.Time {
	if interval <= 0 || !workEnd.After(workStart) {
		return nil
	}

	taken := make(map[int64]struct{}, len(booked))
	for _, b := range booked {
		taken[b.Unix()] = struct{}{}
	}

	var slots []time.Time
	for t := workStart; t.Before(workEnd); t = t.Add(interval) {
		if t.Before(now) {
			continue
		}
		if _, ok := taken[t.Unix()]; ok {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}
