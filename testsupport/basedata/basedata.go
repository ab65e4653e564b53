// Package basedata provides fixtures for tests that need a realistic session
package basedata

import (
	"time"

	"github.com/mpapenbr/timing-service-go/pkg/model"
)

func TestTime() time.Time {
	t, _ := time.Parse(time.RFC3339, "2024-04-28T11:10:12Z")
	return t
}

func SampleSession() *model.Session {
	start := TestTime()
	return &model.Session{
		SessionKey:       9507,
		MeetingKey:       1233,
		SessionName:      "Race",
		SessionType:      "Race",
		DateStart:        start,
		DateEnd:          start.Add(2 * time.Hour),
		GmtOffset:        "08:00:00",
		CountryName:      "China",
		CountryCode:      "CHN",
		CircuitKey:       49,
		CircuitShortName: "Shanghai",
		Year:             start.Year(),
	}
}

func SampleDrivers() []model.Driver {
	return []model.Driver{
		{SessionKey: 9507, DriverNumber: 1, NameAcronym: "VER", BroadcastName: "M VERSTAPPEN",
			TeamName: "Red Bull Racing", TeamColour: "3671C6"},
		{SessionKey: 9507, DriverNumber: 4, NameAcronym: "NOR", BroadcastName: "L NORRIS",
			TeamName: "McLaren", TeamColour: "FF8000"},
		{SessionKey: 9507, DriverNumber: 11, NameAcronym: "PER", BroadcastName: "S PEREZ",
			TeamName: "Red Bull Racing", TeamColour: "3671C6"},
	}
}

// SampleReplayData returns a two lap history of the sample session
func SampleReplayData() *model.ReplayData {
	start := TestTime()
	dur := func(v float64) *float64 { return &v }
	lap := func(driver, n int, d float64) model.LapRecord {
		return model.LapRecord{
			SessionKey: 9507, DriverNumber: driver, LapNumber: n,
			LapDuration: dur(d), DurationSector1: dur(d / 3), DurationSector2: dur(d / 3),
			DurationSector3: dur(d / 3),
			DateStart:       start.Add(time.Duration(n-1) * 100 * time.Second),
		}
	}
	pos := func(driver, p int, offset time.Duration) model.PositionRecord {
		return model.PositionRecord{
			SessionKey: 9507, MeetingKey: 1233, DriverNumber: driver, Position: p,
			Date: start.Add(offset),
		}
	}
	return &model.ReplayData{
		Session: SampleSession(),
		Streams: model.Streams{
			Drivers: SampleDrivers(),
			Laps: []model.LapRecord{
				lap(1, 1, 101.5), lap(4, 1, 102.0), lap(11, 1, 102.7),
				lap(1, 2, 98.25), lap(4, 2, 98.0), lap(11, 2, 99.1),
			},
			Positions: []model.PositionRecord{
				pos(1, 1, 0), pos(4, 2, 0), pos(11, 3, 0),
				pos(4, 1, 150*time.Second), pos(1, 2, 150*time.Second),
			},
			Stints: []model.StintRecord{
				{SessionKey: 9507, DriverNumber: 1, StintNumber: 1, Compound: "MEDIUM", LapStart: 1, LapEnd: 2},
				{SessionKey: 9507, DriverNumber: 4, StintNumber: 1, Compound: "MEDIUM", LapStart: 1, LapEnd: 2},
				{SessionKey: 9507, DriverNumber: 11, StintNumber: 1, Compound: "HARD", LapStart: 1, LapEnd: 1},
				{SessionKey: 9507, DriverNumber: 11, StintNumber: 2, Compound: "SOFT", LapStart: 2, LapEnd: 2},
			},
			PitStops: []model.PitStopRecord{
				{SessionKey: 9507, DriverNumber: 11, LapNumber: 1, PitDuration: dur(23.1),
					Date: start.Add(95 * time.Second)},
			},
			RaceControl: []model.RaceControlMessage{
				{SessionKey: 9507, MeetingKey: 1233, Date: start, Category: "Flag",
					Message: "GREEN LIGHT - PIT EXIT OPEN"},
			},
		},
	}
}
