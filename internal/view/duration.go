package view

import (
	"fmt"
	"strconv"
)

// UnknownDuration is rendered for an absent or negative duration.
const UnknownDuration = "—"

// ElapsedLabel renders a duration in milliseconds with units chosen by
// magnitude:
//
//	850       -> "850 ms"
//	4250      -> "4.25 s"
//	12500     -> "12.5 s"
//	65000     -> "1 min 5.0 s"
//	150000    -> "2 min 30 s"
//	5400000   -> "1 h 30 min"
//
// Values are rounded half up at the shown precision; a value that rounds up
// to the next unit is rendered in that unit ("10.0 s", not "10.00 s").
func ElapsedLabel(ms *int64) string {
	if ms == nil || *ms < 0 {
		return UnknownDuration
	}
	d := *ms

	if d < 1000 {
		return fmt.Sprintf("%d ms", d)
	}
	if d < 10_000 {
		if hundredths := (d + 5) / 10; hundredths < 1000 {
			return fmt.Sprintf("%d.%02d s", hundredths/100, hundredths%100)
		}
	}
	if d < 60_000 {
		if tenths := (d + 50) / 100; tenths < 600 {
			return fmt.Sprintf("%d.%d s", tenths/10, tenths%10)
		}
		// rounds up to a full minute
		d = 60_000
	}

	minutes := d / 60_000
	rem := d % 60_000

	var seconds string
	if rem < 10_000 {
		if tenths := (rem + 50) / 100; tenths < 100 {
			seconds = fmt.Sprintf("%d.%d", tenths/10, tenths%10)
		}
	}
	if seconds == "" {
		// 9.95 s and up round to whole seconds like any other remainder
		s := (rem + 500) / 1000
		if s == 60 {
			minutes++
			s = 0
		}
		seconds = strconv.FormatInt(s, 10)
	}
	if minutes < 60 {
		return fmt.Sprintf("%d min %s s", minutes, seconds)
	}

	return fmt.Sprintf("%d h %d min", minutes/60, minutes%60)
}
