package model

import "time"

type SessionType string

const (
	SessionTypePractice   SessionType = "Practice"
	SessionTypeQualifying SessionType = "Qualifying"
	SessionTypeRace       SessionType = "Race"
)

// SessionNameRace is the session_name of a grand prix race (a sprint shares the
// session type "Race" but is named "Sprint")
const SessionNameRace = "Race"

// Session is one timed segment of a race weekend as published by the provider.
// Sessions of one weekend share the MeetingKey.
//
//nolint:tagliatelle // upstream field names
type Session struct {
	SessionKey       int       `json:"session_key"`
	SessionName      string    `json:"session_name"`
	SessionType      string    `json:"session_type"`
	DateStart        time.Time `json:"date_start"`
	DateEnd          time.Time `json:"date_end"`
	GmtOffset        string    `json:"gmt_offset"`
	CountryName      string    `json:"country_name"`
	CountryCode      string    `json:"country_code"`
	CircuitKey       int       `json:"circuit_key"`
	CircuitShortName string    `json:"circuit_short_name"`
	Year             int       `json:"year"`
	MeetingKey       int       `json:"meeting_key"`
}

// IsLive reports whether now lies within the session bounds (inclusive)
func (s *Session) IsLive(now time.Time) bool {
	return !now.Before(s.DateStart) && !now.After(s.DateEnd)
}

// IsCompleted reports whether the session has ended at now
func (s *Session) IsCompleted(now time.Time) bool {
	return !s.DateEnd.IsZero() && !s.DateEnd.After(now)
}

func (s *Session) IsRace() bool {
	return s.SessionType == string(SessionTypeRace) && s.SessionName == SessionNameRace
}
