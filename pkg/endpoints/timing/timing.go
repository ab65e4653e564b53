// Package timing provides the HTTP interface of the timing service.
package timing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/model"
	"github.com/mpapenbr/timing-service-go/pkg/openf1"
	"github.com/mpapenbr/timing-service-go/pkg/utils/broadcast"
)

const (
	PathBootstrap = "/api/timing"
	PathReplay    = "/api/timing/replay"
	PathLive      = "/api/timing/live"

	fallbackError = "Failed to fetch timing data"
)

type Service interface {
	Bootstrap(ctx context.Context, preferredKey int) (*model.TimingBootstrap, error)
	ReplaySnapshot(ctx context.Context, sessionKey, lap int) (*model.TimingSnapshot, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

type (
	Option  func(*Handler)
	Handler struct {
		svc          Service
		live         broadcast.Server[*model.TimingBootstrap]
		upgrader     websocket.Upgrader
		writeTimeout time.Duration
		pingInterval time.Duration
		l            *log.Logger
	}
)

// WithLive enables the websocket stream fed by live
func WithLive(live broadcast.Server[*model.TimingBootstrap]) Option {
	return func(h *Handler) {
		h.live = live
	}
}

func WithWriteTimeout(arg time.Duration) Option {
	return func(h *Handler) {
		h.writeTimeout = arg
	}
}

func WithPingInterval(arg time.Duration) Option {
	return func(h *Handler) {
		h.pingInterval = arg
	}
}

func WithLogger(arg *log.Logger) Option {
	return func(h *Handler) {
		h.l = arg
	}
}

func NewHandler(svc Service, opts ...Option) *Handler {
	ret := &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		writeTimeout: 10 * time.Second,
		pingInterval: 30 * time.Second,
		l:            log.Default().Named("endpoints.timing"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Register adds the timing routes to mux
func (h *Handler) Register(mux *http.ServeMux) {
	route := func(pattern, operation string, f http.HandlerFunc) {
		mux.Handle("GET "+pattern, otelhttp.NewHandler(f, operation))
	}
	route(PathBootstrap, "timing.bootstrap", h.bootstrap)
	route(PathReplay, "timing.replay", h.replay)
	if h.live != nil {
		// no otelhttp here, the span would last as long as the connection
		mux.HandleFunc("GET "+PathLive, h.stream)
	}
}

// fallback is the payload sent when the bootstrap cannot be assembled
func fallback() *model.TimingBootstrap {
	return &model.TimingBootstrap{
		Mode:            model.ModeReplay,
		WeekendSessions: []model.Session{},
		Error:           fallbackError,
	}
}

func (h *Handler) bootstrap(w http.ResponseWriter, r *http.Request) {
	key, _ := positiveParam(r, "sessionKey")
	res, err := h.svc.Bootstrap(r.Context(), key)
	if err != nil {
		h.l.Error("timing bootstrap failed", log.Int("sessionKey", key), log.ErrorField(err))
		h.writeJSON(w, http.StatusInternalServerError, fallback())
		return
	}
	h.writeJSON(w, http.StatusOK, normalize(res))
}

func (h *Handler) replay(w http.ResponseWriter, r *http.Request) {
	key, ok := positiveParam(r, "sessionKey")
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sessionKey required"})
		return
	}
	lap, _ := positiveParam(r, "lap")
	res, err := h.svc.ReplaySnapshot(r.Context(), key, lap)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, res)
	case errors.Is(err, openf1.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
	default:
		h.l.Error("replay snapshot failed",
			log.Int("sessionKey", key), log.Int("lap", lap), log.ErrorField(err))
		h.writeJSON(w, http.StatusInternalServerError,
			errorResponse{Error: fallbackError})
	}
}

//nolint:funlen // by design
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", log.ErrorField(err))
		return
	}
	defer conn.Close()
	l := h.l.With(log.String("clientId", uuid.NewString()),
		log.String("remote", r.RemoteAddr))
	l.Debug("websocket client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// the reader only detects a closed connection, incoming messages are ignored
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ch := h.live.Subscribe()
	defer h.live.CancelSubscription(ch)
	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Debug("websocket client disconnected")
			return
		case <-ping.C:
			deadline := time.Now().Add(h.writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				l.Debug("ping failed", log.ErrorField(err))
				return
			}
		case msg, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(h.writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(normalize(msg)); err != nil {
				l.Debug("write failed", log.ErrorField(err))
				return
			}
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.l.Debug("could not write response", log.ErrorField(err))
	}
}

// normalize returns a copy with empty collections instead of nil
func normalize(b *model.TimingBootstrap) *model.TimingBootstrap {
	if b == nil {
		return fallback()
	}
	ret := *b
	if ret.WeekendSessions == nil {
		ret.WeekendSessions = []model.Session{}
	}
	return &ret
}

// positiveParam returns the query parameter as int if it is a positive number
func positiveParam(r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
