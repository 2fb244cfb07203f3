package utils

import (
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// Session describes a weekday trading window in a timezone. The close
// runs past the cash close so post-market chain updates keep flowing.
type Session struct {
	Loc       *time.Location
	OpenHour  int
	OpenMin   int
	CloseHour int
	CloseMin  int
}

// DefaultSession returns the NSE analysis window, 09:00 to 18:40 IST.
func DefaultSession() Session {
	return Session{
		Loc:       IndiaLocation,
		OpenHour:  9,
		OpenMin:   0,
		CloseHour: 18,
		CloseMin:  40,
	}
}

// IsOpen reports whether t falls inside the session window.
func (s Session) IsOpen(t time.Time) bool {
	local := t.In(s.Loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	open := s.OpenHour*60 + s.OpenMin
	close := s.CloseHour*60 + s.CloseMin
	return minutes >= open && minutes < close
}

// OpenAt returns the session open on t's day.
func (s Session) OpenAt(t time.Time) time.Time {
	local := t.In(s.Loc)
	return time.Date(local.Year(), local.Month(), local.Day(), s.OpenHour, s.OpenMin, 0, 0, s.Loc)
}

// CloseAt returns the session close on t's day.
func (s Session) CloseAt(t time.Time) time.Time {
	local := t.In(s.Loc)
	return time.Date(local.Year(), local.Month(), local.Day(), s.CloseHour, s.CloseMin, 0, 0, s.Loc)
}

// NextOpen returns the next session open at or after t.
func (s Session) NextOpen(t time.Time) time.Time {
	next := s.OpenAt(t)
	if !t.In(s.Loc).Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// TimeUntilClose returns the duration from t until today's close.
func (s Session) TimeUntilClose(t time.Time) time.Duration {
	return s.CloseAt(t).Sub(t)
}
