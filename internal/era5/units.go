package era5

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// timeUnits is a parsed CF time "units" attribute such as
// "hours since 1900-01-01 00:00:00.0".
type timeUnits struct {
	step  time.Duration
	epoch time.Time
}

func parseTimeUnits(units string) (timeUnits, error) {
	unit, since, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return timeUnits{}, fmt.Errorf("unsupported time units %q", units)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "days", "day", "d":
		step = 24 * time.Hour
	case "hours", "hour", "h":
		step = time.Hour
	case "minutes", "minute", "min":
		step = time.Minute
	case "seconds", "second", "s":
		step = time.Second
	default:
		return timeUnits{}, fmt.Errorf("unsupported time unit %q in %q", unit, units)
	}
	epoch, err := dateparse.ParseIn(strings.TrimSpace(since), time.UTC)
	if err != nil {
		return timeUnits{}, fmt.Errorf("cannot parse reference time of %q: %w", units, err)
	}
	return timeUnits{step: step, epoch: epoch}, nil
}

// unixMilli converts an offset expressed in these units to unix milliseconds.
func (u timeUnits) unixMilli(offset float64) int64 {
	return u.epoch.UnixMilli() + int64(offset*float64(u.step/time.Millisecond))
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
