package monitor

import "time"

// parseISOZ parses the substrate's two timestamp shapes: the
// microsecond-precision form clock.IsoZ produces, and the plain-seconds
// RFC3339 form an envelope's created_at or an older ack may carry.
func parseISOZ(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05.000000Z", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
