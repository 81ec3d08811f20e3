package clips

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

var timeUnits = map[string]time.Duration{
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": day, "day": day, "days": day,
	"w": 7 * day, "week": 7 * day, "weeks": 7 * day,
	"month": 30 * day, "months": 30 * day,
	"y": 365 * day, "year": 365 * day, "years": 365 * day,
}

// ParseTimeFrame reads a look-back window such as "1 week", "3 days", "week"
// or a Go duration like "36h".
func ParseTimeFrame(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("time frame is empty")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("time frame must be positive, got %q", s)
		}
		return d, nil
	}

	fields := strings.Fields(s)
	count, unit := 1, ""
	switch len(fields) {
	case 1:
		unit = fields[0]
	case 2:
		n, err := strconv.Atoi(fields[0])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid time frame count in %q", s)
		}
		count, unit = n, fields[1]
	default:
		return 0, fmt.Errorf("invalid time frame %q", s)
	}

	base, ok := timeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("unknown time frame unit %q", unit)
	}
	if int64(count) > math.MaxInt64/int64(base) {
		return 0, fmt.Errorf("time frame %q is too long", s)
	}
	return time.Duration(count) * base, nil
}
