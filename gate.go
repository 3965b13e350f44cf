package main

import (
	"fmt"
	"math"
	"time"
)

//////////////////////////////////////////////////////////////
// WAKING HOURS
//////////////////////////////////////////////////////////////

// WakingHours is the local time-of-day window in which moderation runs.
// End is exclusive. Start > End wraps across midnight, Start == End is never active.
type WakingHours struct {
	Start  int
	End    int
	Offset float64 // hours from UTC
}

func (w WakingHours) Validate() error {
	if w.Start < 0 || w.Start >= 24 {
		return fmt.Errorf("WAKE_HOUR_START must be in [0,24), got %d", w.Start)
	}
	if w.End < 0 || w.End >= 24 {
		return fmt.Errorf("WAKE_HOUR_END must be in [0,24), got %d", w.End)
	}
	return nil
}

// LocalHour returns the fractional hour of day in [0,24) at the configured offset.
func (w WakingHours) LocalHour(now time.Time) float64 {
	now = now.UTC()
	utc := float64(now.Hour()) + float64(now.Minute())/60 + float64(now.Second())/3600
	return normalizeHour(utc + w.Offset)
}

func normalizeHour(h float64) float64 {
	h = math.Mod(h, 24)
	if h < 0 {
		h += 24
	}
	return h
}

// ActiveAt reports whether a local hour falls inside the window.
func (w WakingHours) ActiveAt(localHour float64) bool {
	isAfterStart := localHour >= float64(w.Start)
	isBeforeEnd := localHour < float64(w.End)

	if w.Start > w.End {
		return isAfterStart || isBeforeEnd
	}
	return isAfterStart && isBeforeEnd
}

func (w WakingHours) IsActive(now time.Time) bool {
	return w.ActiveAt(w.LocalHour(now))
}

func (w WakingHours) String() string {
	return fmt.Sprintf("%02d:00-%02d:00 (UTC%+g)", w.Start, w.End, w.Offset)
}
