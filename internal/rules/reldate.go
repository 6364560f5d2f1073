// internal/rules/reldate.go
package rules

import (
	"fmt"
	"time"

	"github.com/solatis/sieve/internal/types"
)

/*
 * Relative date windows.
 *
 * Windows are half-open [Start, End) and aligned to midnight in the
 * application timezone. Day arithmetic goes through time.Date so windows
 * crossing a DST transition still start and end at local midnight.
 *
 *   today      [today, tomorrow)
 *   this_week  [Monday, next Monday)   ISO weeks
 *   in_past N  [today-N, today)
 *   in_next N  [tomorrow, tomorrow+N)
 */

// Window is a half-open time interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// RelativeWindow resolves a relative-date operator against now in loc.
// days is only read by in_past and in_next.
func RelativeWindow(op string, now time.Time, loc *time.Location, days int) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	today := midnight(now.In(loc))

	switch op {
	case "today":
		return Window{Start: today, End: addDays(today, 1)}, nil
	case "this_week":
		// time.Weekday has Sunday = 0; ISO weeks start on Monday.
		offset := (int(today.Weekday()) + 6) % 7
		monday := addDays(today, -offset)
		return Window{Start: monday, End: addDays(monday, 7)}, nil
	case "in_past", "in_next":
		if days < 1 || days > types.MaxRelativeDays {
			return Window{}, fmt.Errorf("day count %d outside 1..%d", days, types.MaxRelativeDays)
		}
		if op == "in_past" {
			return Window{Start: addDays(today, -days), End: today}, nil
		}
		tomorrow := addDays(today, 1)
		return Window{Start: tomorrow, End: addDays(tomorrow, days)}, nil
	default:
		return Window{}, fmt.Errorf("%q is not a relative date operator", op)
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func addDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, t.Location())
}
