package model

import "time"

// the records in this file mirror the collections of the upstream timing
// provider. Numeric values that may not be recorded yet are pointers.

//nolint:tagliatelle // upstream field names
type (
	Driver struct {
		SessionKey    int    `json:"session_key"`
		DriverNumber  int    `json:"driver_number"`
		BroadcastName string `json:"broadcast_name"`
		FullName      string `json:"full_name"`
		NameAcronym   string `json:"name_acronym"`
		TeamName      string `json:"team_name"`
		TeamColour    string `json:"team_colour"`
		FirstName     string `json:"first_name"`
		LastName      string `json:"last_name"`
		HeadshotURL   string `json:"headshot_url,omitempty"`
		CountryCode   string `json:"country_code"`
	}

	LapRecord struct {
		SessionKey      int       `json:"session_key"`
		DriverNumber    int       `json:"driver_number"`
		LapNumber       int       `json:"lap_number"`
		LapDuration     *float64  `json:"lap_duration"`
		DurationSector1 *float64  `json:"duration_sector_1"`
		DurationSector2 *float64  `json:"duration_sector_2"`
		DurationSector3 *float64  `json:"duration_sector_3"`
		IsPitOutLap     bool      `json:"is_pit_out_lap"`
		StSpeed         *float64  `json:"st_speed"`
		DateStart       time.Time `json:"date_start"`
	}

	// PositionRecord is the only record with a reliable wall clock timestamp.
	// It carries no lap number.
	PositionRecord struct {
		SessionKey   int       `json:"session_key"`
		MeetingKey   int       `json:"meeting_key"`
		DriverNumber int       `json:"driver_number"`
		Position     int       `json:"position"`
		Date         time.Time `json:"date"`
	}

	StintRecord struct {
		SessionKey     int    `json:"session_key"`
		DriverNumber   int    `json:"driver_number"`
		StintNumber    int    `json:"stint_number"`
		Compound       string `json:"compound"`
		TyreAgeAtStart int    `json:"tyre_age_at_start"`
		LapStart       int    `json:"lap_start"`
		LapEnd         int    `json:"lap_end"`
	}

	PitStopRecord struct {
		SessionKey   int       `json:"session_key"`
		DriverNumber int       `json:"driver_number"`
		LapNumber    int       `json:"lap_number"`
		PitDuration  *float64  `json:"pit_duration"`
		Date         time.Time `json:"date"`
	}

	RaceControlMessage struct {
		MeetingKey      int       `json:"meeting_key"`
		SessionKey      int       `json:"session_key"`
		Date            time.Time `json:"date"`
		DriverNumber    *int      `json:"driver_number"`
		LapNumber       *int      `json:"lap_number"`
		Category        string    `json:"category"`
		Flag            *string   `json:"flag"`
		Scope           *string   `json:"scope"`
		Sector          *int      `json:"sector"`
		QualifyingPhase *int      `json:"qualifying_phase"`
		Message         string    `json:"message"`
	}
)
