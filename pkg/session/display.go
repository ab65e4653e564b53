package session

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // label zone must resolve without system zoneinfo

	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/pkg/timing"
)

const (
	StartingNow = "Starting now"
	NoSession   = "No session"
	labelZone   = "Europe/Amsterdam"
)

var labelLocation = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation(labelZone)
	if err != nil {
		return time.UTC
	}
	return loc
})

// Countdown renders the time until next starts as "<d>d <h>h <m>m"
func Countdown(next *model.Session, now time.Time) string {
	if next == nil {
		return timing.Placeholder
	}
	diff := next.DateStart.Sub(now)
	if diff <= 0 {
		return StartingNow
	}
	days := int(diff / (24 * time.Hour))
	hours := int(diff/time.Hour) % 24
	minutes := int(diff/time.Minute) % 60
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}

// SessionLabel renders "<country> • <name> • <dd Mon HH:MM>" with the start
// time in the paddock's reference zone.
func SessionLabel(s *model.Session) string {
	if s == nil {
		return NoSession
	}
	return fmt.Sprintf("%s • %s • %s",
		s.CountryName, s.SessionName,
		s.DateStart.In(labelLocation()).Format("02 Jan 15:04"))
}
