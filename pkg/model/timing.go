package model

import "time"

type Mode string

const (
	ModeLive   Mode = "live"
	ModeReplay Mode = "replay"
)

// Streams holds the raw collections of one session
type Streams struct {
	Drivers     []Driver             `json:"drivers"`
	Laps        []LapRecord          `json:"laps"`
	Positions   []PositionRecord     `json:"positions"`
	Stints      []StintRecord        `json:"stints"`
	PitStops    []PitStopRecord      `json:"pitStops"`
	RaceControl []RaceControlMessage `json:"raceControl"`
}

// ReplayData is the unbounded history of one session. It is retrieved once per
// session selection and then windowed by lap cursor.
type ReplayData struct {
	Session *Session `json:"session,omitempty"`
	Streams
}

// TimingRow is the fused display state of one driver. Rows are rebuilt on every
// fusion pass.
type TimingRow struct {
	DriverNumber  int    `json:"driverNumber"`
	Code          string `json:"code"`
	BroadcastName string `json:"broadcastName"`
	TeamName      string `json:"teamName"`
	TeamColor     string `json:"teamColor"`
	Position      int    `json:"position"`
	Interval      string `json:"interval"`
	GapToLeader   string `json:"gapToLeader"`
	LastLap       string `json:"lastLap"`
	Sector1       string `json:"sector1"`
	Sector2       string `json:"sector2"`
	Sector3       string `json:"sector3"`
	PitStops      int    `json:"pitStops"`
	Tyre          string `json:"tyre"`
}

type TimingSnapshot struct {
	Rows        []TimingRow          `json:"rows"`
	RaceControl []RaceControlMessage `json:"raceControl"`
	UpdatedAt   time.Time            `json:"updatedAt"`
	SessionType string               `json:"sessionType"`
}

type TimingBootstrap struct {
	Mode            Mode            `json:"mode"`
	LiveSession     *Session        `json:"liveSession"`
	ReplaySession   *Session        `json:"replaySession"`
	SelectedSession *Session        `json:"selectedSession"`
	WeekendSessions []Session       `json:"weekendSessions"`
	NextSession     *Session        `json:"nextSession"`
	Snapshot        *TimingSnapshot `json:"snapshot"`
	ReplayData      *ReplayData     `json:"replayData,omitempty"`
	Error           string          `json:"error,omitempty"`
}
