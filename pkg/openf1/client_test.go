package openf1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/timing-service-go/pkg/model"
)

const sessionsJSON = `[
 {"session_key":9158,"session_name":"Race","session_type":"Race",
  "date_start":"2023-09-17T12:00:00+00:00","date_end":"2023-09-17T14:00:00+00:00",
  "gmt_offset":"08:00:00","country_name":"Singapore","country_code":"SGP",
  "circuit_key":61,"circuit_short_name":"Singapore","year":2023,"meeting_key":1219}
]`

const lapsJSON = `[
 {"session_key":9158,"driver_number":1,"lap_number":1,"lap_duration":null,
  "duration_sector_1":null,"duration_sector_2":38.241,"duration_sector_3":30.1,
  "is_pit_out_lap":false,"st_speed":298,"date_start":null},
 {"session_key":9158,"driver_number":1,"lap_number":2,"lap_duration":92.345,
  "duration_sector_1":24.004,"duration_sector_2":38.241,"duration_sector_3":30.1,
  "is_pit_out_lap":false,"st_speed":301,"date_start":"2023-09-17T12:05:01.123000+00:00"}
]`

const positionsJSON = `[
 {"session_key":9158,"meeting_key":1219,"driver_number":1,"position":2,"date":"2023-09-17T12:01:00+00:00"},
 {"session_key":9158,"meeting_key":1219,"driver_number":55,"position":1,"date":"2023-09-17T12:01:00+00:00"},
 {"session_key":9158,"meeting_key":1219,"driver_number":1,"position":1,"date":"2023-09-17T12:30:00+00:00"},
 {"session_key":9158,"meeting_key":1219,"driver_number":55,"position":2,"date":"2023-09-17T12:30:00+00:00"}
]`

type upstream struct {
	calls  map[string]*atomic.Int32
	server *httptest.Server
}

func newUpstream(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, call int32)) *upstream {
	t.Helper()
	u := &upstream{calls: map[string]*atomic.Int32{}}
	for _, p := range []string{
		endpointSessions, endpointDrivers, endpointLaps, endpointPosition,
		endpointStints, endpointPit, endpointRaceControl,
	} {
		u.calls[p] = &atomic.Int32{}
	}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := u.calls[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		handler(w, r, c.Add(1))
	}))
	t.Cleanup(u.server.Close)
	return u
}

func (u *upstream) client(opts ...Option) *Client {
	return New(append([]Option{
		WithBaseURL(u.server.URL),
		WithHTTPClient(u.server.Client()),
		WithTimeout(time.Second),
	}, opts...)...)
}

func TestClient_Decode(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		switch r.URL.Path {
		case endpointSessions:
			assert.Equal(t, "2023", r.URL.Query().Get("year"))
			assert.Equal(t, "Race", r.URL.Query().Get("session_type"))
			_, _ = w.Write([]byte(sessionsJSON))
		case endpointLaps:
			assert.Equal(t, "9158", r.URL.Query().Get("session_key"))
			assert.Equal(t, "1", r.URL.Query().Get("driver_number"))
			_, _ = w.Write([]byte(lapsJSON))
		case endpointPosition:
			_, _ = w.Write([]byte(positionsJSON))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	})
	c := u.client()
	ctx := context.Background()

	sessions, err := c.Sessions(ctx, SessionQuery{Year: 2023, SessionType: "Race"})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 9158, sessions[0].SessionKey)
	assert.Equal(t, 1219, sessions[0].MeetingKey)
	assert.Equal(t, time.Date(2023, 9, 17, 14, 0, 0, 0, time.UTC), sessions[0].DateEnd.UTC())

	laps, err := c.Laps(ctx, 9158, 1)
	require.NoError(t, err)
	require.Len(t, laps, 2)
	assert.Nil(t, laps[0].LapDuration)
	assert.True(t, laps[0].DateStart.IsZero())
	require.NotNil(t, laps[1].LapDuration)
	assert.InDelta(t, 92.345, *laps[1].LapDuration, 1e-9)

	positions, err := c.Positions(ctx, 9158)
	require.NoError(t, err)
	require.Len(t, positions, 4)
	assert.Equal(t, []int{2, 1, 1, 2}, lo.Map(positions,
		func(p model.PositionRecord, _ int) int { return p.Position }))
	assert.Equal(t, time.Date(2023, 9, 17, 12, 30, 0, 0, time.UTC), positions[3].Date.UTC())

	rc, err := c.RaceControl(ctx, 9158)
	require.NoError(t, err)
	assert.Empty(t, rc)
}

func TestClient_StatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantErr   bool
		wantCalls int32
		wantEmpty bool
	}{
		{"ok", []int{http.StatusOK}, false, 1, false},
		{"retry then ok", []int{http.StatusBadGateway, http.StatusTooManyRequests, http.StatusOK}, false, 3, false},
		{"retries exhausted", []int{500, 500, 500, 500, 500}, true, 3, false},
		{"permanent", []int{http.StatusBadRequest, http.StatusOK}, true, 1, false},
		{"not found is empty", []int{http.StatusNotFound}, false, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request, call int32) {
				w.WriteHeader(tt.statuses[call-1])
				_, _ = w.Write([]byte(`[{"driver_number":1,"stint_number":1,"compound":"SOFT"}]`))
			})
			c := u.client(WithRetries(2))
			stints, err := c.Stints(context.Background(), 9158)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantEmpty, len(stints) == 0)
			}
			assert.Equal(t, tt.wantCalls, u.calls[endpointStints].Load())
		})
	}
}

func TestClient_StatusErrorTransient(t *testing.T) {
	var se *StatusError
	u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := u.client(WithRetries(0)).Drivers(context.Background(), 1)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.False(t, se.Transient())
}

func TestClient_SessionCache(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
		_, _ = w.Write([]byte(sessionsJSON))
	})
	c := u.client(WithSessionCache(time.Minute))
	ctx := context.Background()
	for range 3 {
		s, err := c.SessionByKey(ctx, 9158)
		require.NoError(t, err)
		assert.Equal(t, "Singapore", s.CountryName)
	}
	assert.Equal(t, int32(1), u.calls[endpointSessions].Load())

	_, err := c.Sessions(ctx, SessionQuery{MeetingKey: 1219})
	require.NoError(t, err)
	assert.Equal(t, int32(2), u.calls[endpointSessions].Load())
}

func TestClient_SessionByKeyNotFound(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, _ *http.Request, _ int32) {
		_, _ = w.Write([]byte(`[]`))
	})
	_, err := u.client().SessionByKey(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Timeout(t *testing.T) {
	u := newUpstream(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte(`[]`))
	})
	c := u.client(WithTimeout(50*time.Millisecond), WithRetries(1))
	start := time.Now()
	_, err := c.PitStops(context.Background(), 9158)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(2), u.calls[endpointPit].Load())
}
