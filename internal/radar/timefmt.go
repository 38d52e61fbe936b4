package radar

import (
	"fmt"
	"time"
)

// DisplayLayout is the absolute timestamp layout used past one hour.
const DisplayLayout = "2006-01-02 15:04:05"

// FormatDeviceTime renders a device timestamp relative to now: "just
// now" under a minute, "N min ago" under an hour, else an absolute time
// in loc. Empty input gives "-"; unparseable input is returned as is.
func FormatDeviceTime(value string, now time.Time, loc *time.Location) string {
	if value == "" {
		return "-"
	}
	t, ok := parseTime(value)
	if !ok {
		return value
	}
	if loc == nil {
		loc = time.UTC
	}

	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d min ago", int(diff/time.Minute))
	default:
		return t.In(loc).Format(DisplayLayout)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	DisplayLayout,
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
