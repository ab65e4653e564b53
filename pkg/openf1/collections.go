package openf1

import (
	"context"
	"net/url"
	"slices"
	"strconv"

	"github.com/mpapenbr/timing-service-go/pkg/model"
)

// SessionQuery filters the sessions collection. Zero values are not sent.
type SessionQuery struct {
	Year        int
	SessionKey  int
	MeetingKey  int
	SessionType string
}

func (q SessionQuery) values() url.Values {
	ret := url.Values{}
	if q.Year != 0 {
		ret.Set("year", strconv.Itoa(q.Year))
	}
	if q.SessionKey != 0 {
		ret.Set("session_key", strconv.Itoa(q.SessionKey))
	}
	if q.MeetingKey != 0 {
		ret.Set("meeting_key", strconv.Itoa(q.MeetingKey))
	}
	if q.SessionType != "" {
		ret.Set("session_type", q.SessionType)
	}
	return ret
}

// Sessions returns the sessions matching q. Results are served from the
// session cache if enabled.
func (c *Client) Sessions(ctx context.Context, q SessionQuery) ([]model.Session, error) {
	if c.sessionCache == nil {
		return fetch[model.Session](ctx, c, endpointSessions, q.values())
	}
	ret, err := c.sessionCache.Get(ctx, q)
	if err != nil {
		return nil, err
	}
	return slices.Clone(*ret), nil
}

func (c *Client) loadSessions(ctx context.Context, q SessionQuery) (*[]model.Session, error) {
	ret, err := fetch[model.Session](ctx, c, endpointSessions, q.values())
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// SessionByKey returns ErrNotFound if the provider does not know the key
func (c *Client) SessionByKey(ctx context.Context, sessionKey int) (*model.Session, error) {
	sessions, err := c.Sessions(ctx, SessionQuery{SessionKey: sessionKey})
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, ErrNotFound
	}
	return &sessions[0], nil
}

func (c *Client) Drivers(ctx context.Context, sessionKey int) ([]model.Driver, error) {
	return fetch[model.Driver](ctx, c, endpointDrivers, sessionParam(sessionKey))
}

// Laps returns the laps of a session. An optional driver number restricts the
// result to that driver.
//
//nolint:whitespace // editor/linter issue
func (c *Client) Laps(
	ctx context.Context,
	sessionKey int,
	driverNumber ...int,
) ([]model.LapRecord, error) {
	params := sessionParam(sessionKey)
	if len(driverNumber) > 0 && driverNumber[0] != 0 {
		params.Set("driver_number", strconv.Itoa(driverNumber[0]))
	}
	return fetch[model.LapRecord](ctx, c, endpointLaps, params)
}

func (c *Client) Positions(ctx context.Context, sessionKey int) ([]model.PositionRecord, error) {
	return fetch[model.PositionRecord](ctx, c, endpointPosition, sessionParam(sessionKey))
}

func (c *Client) Stints(ctx context.Context, sessionKey int) ([]model.StintRecord, error) {
	return fetch[model.StintRecord](ctx, c, endpointStints, sessionParam(sessionKey))
}

func (c *Client) PitStops(ctx context.Context, sessionKey int) ([]model.PitStopRecord, error) {
	return fetch[model.PitStopRecord](ctx, c, endpointPit, sessionParam(sessionKey))
}

//nolint:whitespace // editor/linter issue
func (c *Client) RaceControl(
	ctx context.Context,
	sessionKey int,
) ([]model.RaceControlMessage, error) {
	return fetch[model.RaceControlMessage](ctx, c, endpointRaceControl, sessionParam(sessionKey))
}

