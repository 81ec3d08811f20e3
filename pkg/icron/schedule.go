package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// GetTriggerInfo reports the previous and next activation of a standard
// five-field cron expression (descriptors such as @daily are accepted)
// relative to refTime. Last stays zero when there was no activation in the
// preceding year.
func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	nextTime := schedule.Next(refTime)

	var prevTime time.Time
	for i := 1; i <= 366*24; i++ {
		candidate := schedule.Next(refTime.Add(-time.Duration(i) * time.Hour))
		if candidate.After(refTime) {
			continue
		}
		// walk forward to the latest activation not after refTime
		for {
			following := schedule.Next(candidate)
			if following.After(refTime) {
				break
			}
			candidate = following
		}
		prevTime = candidate
		break
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       nextTime,
		Last:       prevTime,
	}

	if !prevTime.IsZero() {
		info.TimeSinceLast = refTime.Sub(prevTime)
	}

	info.TimeUntilNext = nextTime.Sub(refTime)

	return info, nil
}
