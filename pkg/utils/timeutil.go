package utils

import "time"

// LocalTime converts a unix timestamp in seconds to local time.
func LocalTime(unixSeconds int64) time.Time {
	return time.Unix(unixSeconds, 0).Local()
}

// FormatUnix renders a unix timestamp as local "2006-01-02 15:04:05".
func FormatUnix(unixSeconds int64) string {
	return LocalTime(unixSeconds).Format(time.DateTime)
}

// SecondsSince returns whole seconds elapsed between unixSeconds and now.
// Timestamps in the future give 0.
func SecondsSince(unixSeconds int64, now time.Time) int64 {
	d := now.Unix() - unixSeconds
	if d < 0 {
		return 0
	}
	return d
}
