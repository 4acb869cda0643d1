// Package timeutil formats journal timestamps and playback positions.
//
// Journal timestamps are Unix nanoseconds (int64); playback time indices
// are plain integers bounded by a 3D region's [start, end].
package timeutil

import (
	"fmt"
	"time"
)

// FromNano converts a Unix nanosecond timestamp to time.Time.
func FromNano(ns int64) time.Time {
	return time.Unix(0, ns)
}

// Clock formats a journal timestamp as "15:04:05.000".
func Clock(ns int64) string {
	return FromNano(ns).Format("15:04:05.000")
}

// Stamp formats a journal timestamp with its date.
func Stamp(ns int64) string {
	return FromNano(ns).Format("2006-01-02 15:04:05")
}

// Latency formats a millisecond latency: "450ms", "1.2s", "2m 15.3s".
func Latency(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	s := float64(ms) / 1000
	if s < 60 {
		return fmt.Sprintf("%.1fs", s)
	}
	m := int(s / 60)
	return fmt.Sprintf("%dm %.1fs", m, s-float64(m*60))
}

// Ago describes how long ago a journal timestamp was, relative to now.
func Ago(ns int64, now time.Time) string {
	d := now.Sub(FromNano(ns))
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

// Position renders a playback position such as "t=3 [0..5]".
func Position(t, start, end int) string {
	return fmt.Sprintf("t=%d [%d..%d]", t, start, end)
}

// Speed renders a playback speed such as "2x" or "0.25x".
func Speed(s float64) string {
	return fmt.Sprintf("%gx", s)
}
