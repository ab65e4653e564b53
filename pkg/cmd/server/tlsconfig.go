package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/config"
	"github.com/mpapenbr/timing-service-go/pkg/utils/certs/traefik"
)

var errNoCertificate = errors.New("no certificate configured")

// certSource names the files a server certificate is read from. A traefik
// store takes precedence over a plain key pair.
type certSource struct {
	certFile      string
	keyFile       string
	caFile        string
	traefikFile   string
	traefikDomain string
}

func certSourceFromConfig() certSource {
	return certSource{
		certFile:      config.TLSCertFile,
		keyFile:       config.TLSKeyFile,
		caFile:        config.TLSCAFile,
		traefikFile:   config.TraefikCerts,
		traefikDomain: config.TraefikCertDomain,
	}
}

func (s certSource) configured() bool {
	return (s.traefikFile != "" && s.traefikDomain != "") ||
		(s.certFile != "" && s.keyFile != "")
}

func (s certSource) watched() []string {
	ret := []string{}
	for _, f := range []string{s.certFile, s.keyFile, s.traefikFile} {
		if f != "" {
			ret = append(ret, f)
		}
	}
	return ret
}

func (s certSource) load() (*tls.Certificate, error) {
	if s.traefikFile != "" && s.traefikDomain != "" {
		cert, err := traefik.LoadCertificate(s.traefikFile, s.traefikDomain)
		if err != nil {
			return nil, err
		}
		return &cert, nil
	}
	if s.certFile != "" && s.keyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
		if err != nil {
			return nil, err
		}
		return &cert, nil
	}
	return nil, errNoCertificate
}

// certs serves the current certificate and replaces it whenever one of the
// source files changes
type certs struct {
	src  certSource
	log  *log.Logger
	mu   sync.RWMutex
	cert *tls.Certificate
}

// newTLSConfig loads the initial certificate and starts watching the source
// files until ctx is done
func newTLSConfig(ctx context.Context, src certSource) (*tls.Config, error) {
	c := &certs{
		src: src,
		log: log.GetFromContext(ctx).Named("certs"),
	}
	if err := c.reload(); err != nil {
		return nil, err
	}
	ret := &tls.Config{
		GetCertificate: c.getCertificate,
		MinVersion:     tls.VersionTLS13,
	}
	if src.caFile != "" {
		c.log.Info("Loading ca cert", log.String("file", src.caFile))
		caCert, err := os.ReadFile(src.caFile)
		if err != nil {
			return nil, fmt.Errorf("read TLS root CA: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caCert); !ok {
			return nil, errors.New("no certificate found in TLS root CA")
		}
		ret.ClientCAs = pool
		ret.ClientAuth = tls.VerifyClientCertIfGiven
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	for _, f := range src.watched() {
		if err := watcher.Add(f); err != nil {
			c.log.Error("could not watch file", log.String("file", f), log.ErrorField(err))
		}
	}
	go c.watch(ctx, watcher)
	return ret, nil
}

func (c *certs) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cert, nil
}

func (c *certs) reload() error {
	cert, err := c.src.load()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cert = cert
	return nil
}

func (c *certs) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			c.log.Debug("context done, stopping cert reload")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Chmod) &&
				!event.Has(fsnotify.Create) {

				continue
			}
			c.log.Info("cert file changed, reloading cert", log.String("file", event.Name))
			// a failed reload keeps the previous certificate
			if err := c.reload(); err != nil {
				c.log.Error("could not reload cert", log.ErrorField(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			c.log.Error("watcher error", log.ErrorField(err))
		}
	}
}
