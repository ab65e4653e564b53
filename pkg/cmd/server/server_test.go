package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/pkg/poller"
	"github.com/mpapenbr/timing-service-go/pkg/utils/broadcast"
	"github.com/mpapenbr/timing-service-go/testsupport/basedata"
)

type stubService struct{}

//nolint:whitespace // editor/linter issue
func (stubService) Bootstrap(
	context.Context, int,
) (*model.TimingBootstrap, error) {
	return &model.TimingBootstrap{Mode: model.ModeReplay}, nil
}

//nolint:whitespace // editor/linter issue
func (stubService) ReplaySnapshot(
	context.Context, int, int,
) (*model.TimingSnapshot, error) {
	return &model.TimingSnapshot{}, nil
}

type recordingPublisher struct {
	got []*model.TimingBootstrap
	err error
}

//nolint:whitespace // editor/linter issue
func (r *recordingPublisher) Publish(
	_ context.Context, b *model.TimingBootstrap,
) error {
	r.got = append(r.got, b)
	return r.err
}

func healthStatus(t *testing.T, srv *httptest.Server, service string) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/grpc.health.v1.Health/Check",
		"application/json",
		strings.NewReader(`{"service":"`+service+`"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Status
}

func TestSinkUpdatesHealth(t *testing.T) {
	live := broadcast.NewServer[*model.TimingBootstrap]("test")
	defer live.Close()
	checker := newHealthChecker()
	srv := httptest.NewServer(newHandler(stubService{}, live, checker))
	defer srv.Close()

	assert.Equal(t, "NOT_SERVING", healthStatus(t, srv, timingServiceName))

	pub := &recordingPublisher{err: errors.New("nats down")}
	sink := newSink(context.Background(), live, pub, checker)
	b := &model.TimingBootstrap{
		Mode:            model.ModeReplay,
		SelectedSession: basedata.SampleSession(),
	}
	sink(&poller.Result{BuildID: uuid.New(), Generation: 1, Bootstrap: b})

	assert.Equal(t, "SERVING", healthStatus(t, srv, timingServiceName))
	latest, ok := live.Latest()
	require.True(t, ok)
	assert.Same(t, b, latest)
	assert.Len(t, pub.got, 1, "publish errors are logged only")
}

func TestSinkWithoutPublisher(t *testing.T) {
	live := broadcast.NewServer[*model.TimingBootstrap]("test")
	defer live.Close()
	sink := newSink(context.Background(), live, nil, newHealthChecker())
	sink(&poller.Result{Bootstrap: &model.TimingBootstrap{Mode: model.ModeLive}})
	latest, ok := live.Latest()
	require.True(t, ok)
	assert.Equal(t, model.ModeLive, latest.Mode)
}

func TestHandlerRoutes(t *testing.T) {
	live := broadcast.NewServer[*model.TimingBootstrap]("test")
	defer live.Close()
	srv := httptest.NewServer(newHandler(stubService{}, live, newHealthChecker()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/timing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/timing", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://board.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://board.example.com",
		resp.Header.Get("Access-Control-Allow-Origin"))

	assert.Equal(t, "SERVING", healthStatus(t, srv, ""), "overall status")
}
