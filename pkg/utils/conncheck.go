package utils

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/mpapenbr/timing-service-go/log"
)

// default ports by url scheme
var defaultPorts = map[string]string{
	"postgres":   "5432",
	"postgresql": "5432",
	"pgx":        "5432",
	"nats":       "4222",
	"tls":        "4222",
	"http":       "80",
	"https":      "443",
}

// WaitForTCP dials addr until it succeeds, the timeout expires or ctx is done
func WaitForTCP(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	log.Debug("wait for tcp connection",
		log.String("addr", addr),
		log.Duration("timeout", timeout))
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			log.Debug("tcp connection successful",
				log.String("addr", addr),
				log.Duration("duration", time.Since(start)))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s could not be reached after %v", addr, timeout)
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// ExtractAddr returns host:port of a service url. The port defaults by
// scheme. An empty string is returned if the url cannot be parsed.
func ExtractAddr(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		if port = defaultPorts[u.Scheme]; port == "" {
			return ""
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// ExtractFromDBURL returns host:port of a postgres url
func ExtractFromDBURL(raw string) string {
	return ExtractAddr(raw)
}
