package timing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/pkg/openf1"
	"github.com/mpapenbr/timing-service-go/pkg/utils/broadcast"
	"github.com/mpapenbr/timing-service-go/testsupport/basedata"
)

type fakeService struct {
	err       error
	preferred int
	key, lap  int
}

//nolint:whitespace // editor/linter issue
func (f *fakeService) Bootstrap(
	_ context.Context, preferredKey int,
) (*model.TimingBootstrap, error) {
	f.preferred = preferredKey
	if f.err != nil {
		return nil, f.err
	}
	sess := basedata.SampleSession()
	return &model.TimingBootstrap{
		Mode:            model.ModeReplay,
		ReplaySession:   sess,
		SelectedSession: sess,
		Snapshot:        &model.TimingSnapshot{Rows: []model.TimingRow{}, SessionType: "Race"},
	}, nil
}

//nolint:whitespace // editor/linter issue
func (f *fakeService) ReplaySnapshot(
	_ context.Context, sessionKey, lap int,
) (*model.TimingSnapshot, error) {
	f.key, f.lap = sessionKey, lap
	if f.err != nil {
		return nil, f.err
	}
	if sessionKey != 9507 {
		return nil, openf1.ErrNotFound
	}
	return &model.TimingSnapshot{Rows: []model.TimingRow{{DriverNumber: 4}}}, nil
}

func newTestServer(t *testing.T, svc Service, opts ...Option) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(svc, opts...).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test code
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	ret := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &ret))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	return resp.StatusCode, ret
}

func TestBootstrap(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		wantPreferred int
	}{
		{"no key", "", 0},
		{"key", "?sessionKey=9507", 9507},
		{"invalid key", "?sessionKey=abc", 0},
		{"zero key", "?sessionKey=0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			srv := newTestServer(t, svc)
			code, body := get(t, srv.URL+PathBootstrap+tt.query)
			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, tt.wantPreferred, svc.preferred)
			assert.Equal(t, "replay", body["mode"])
			assert.Equal(t, []any{}, body["weekendSessions"])
			assert.Nil(t, body["liveSession"])
			assert.NotContains(t, body, "error")
		})
	}
}

func TestBootstrapFailure(t *testing.T) {
	srv := newTestServer(t, &fakeService{err: context.Canceled})
	code, body := get(t, srv.URL+PathBootstrap)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, map[string]any{
		"mode":            "replay",
		"liveSession":     nil,
		"replaySession":   nil,
		"selectedSession": nil,
		"weekendSessions": []any{},
		"nextSession":     nil,
		"snapshot":        nil,
		"error":           "Failed to fetch timing data",
	}, body)
}

func TestReplay(t *testing.T) {
	tests := []struct {
		name     string
		svcErr   error
		query    string
		wantCode int
		wantLap  int
	}{
		{"ok", nil, "?sessionKey=9507&lap=12", http.StatusOK, 12},
		{"without lap", nil, "?sessionKey=9507", http.StatusOK, 0},
		{"missing key", nil, "?lap=3", http.StatusBadRequest, 0},
		{"unknown session", nil, "?sessionKey=1&lap=3", http.StatusNotFound, 3},
		{"failure", errors.New("boom"), "?sessionKey=9507&lap=3", http.StatusInternalServerError, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{err: tt.svcErr}
			srv := newTestServer(t, svc)
			code, body := get(t, srv.URL+PathReplay+tt.query)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantLap, svc.lap)
			if tt.wantCode == http.StatusOK {
				assert.Len(t, body["rows"], 1)
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestLiveStream(t *testing.T) {
	live := broadcast.NewServer[*model.TimingBootstrap]("test")
	defer live.Close()
	srv := newTestServer(t, &fakeService{}, WithLive(live))

	sess := basedata.SampleSession()
	live.Publish(&model.TimingBootstrap{Mode: model.ModeLive, SelectedSession: sess})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + PathLive
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	read := func() *model.TimingBootstrap {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		ret := &model.TimingBootstrap{}
		require.NoError(t, conn.ReadJSON(ret))
		return ret
	}
	first := read()
	assert.Equal(t, model.ModeLive, first.Mode)
	assert.Equal(t, 9507, first.SelectedSession.SessionKey)
	assert.NotNil(t, first.WeekendSessions)

	live.Publish(&model.TimingBootstrap{Mode: model.ModeReplay})
	assert.Equal(t, model.ModeReplay, read().Mode)
}

func TestLiveStreamDisabled(t *testing.T) {
	srv := newTestServer(t, &fakeService{})
	resp, err := http.Get(srv.URL + PathLive) //nolint:noctx // test code
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
