package server

import (
	"net/http"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"
	"connectrpc.com/otelconnect"

	"github.com/mpapenbr/timing-service-go/log"
)

// timingServiceName is reported NOT_SERVING until the first poll pass was
// accepted
const timingServiceName = "tsm.timing"

// registerHealthServices adds the grpc health and reflection handlers to mux
//
//nolint:whitespace // editor/linter issue
func registerHealthServices(
	mux *http.ServeMux,
	checker *grpchealth.StaticChecker,
) {
	myOtel, err := otelconnect.NewInterceptor()
	if err != nil {
		log.Warn("could not create otel interceptor", log.ErrorField(err))
	}
	var handlerOpts []connect.HandlerOption
	if myOtel != nil {
		handlerOpts = append(handlerOpts, connect.WithInterceptors(myOtel))
	}
	mux.Handle(grpchealth.NewHandler(checker, handlerOpts...))

	reflector := grpcreflect.NewStaticReflector(grpchealth.HealthV1ServiceName)
	mux.Handle(grpcreflect.NewHandlerV1(reflector))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector))
}

func newHealthChecker() *grpchealth.StaticChecker {
	ret := grpchealth.NewStaticChecker(timingServiceName)
	ret.SetStatus(timingServiceName, grpchealth.StatusNotServing)
	return ret
}
