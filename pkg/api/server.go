package api

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psaab/netcli/pkg/audit"
	"github.com/psaab/netcli/pkg/commit"
	"github.com/psaab/netcli/pkg/configstore"
	"github.com/psaab/netcli/pkg/logging"
	"github.com/psaab/netcli/pkg/schema"
)

// Config wires the API server.
type Config struct {
	Addr     string
	TLSAddr  string      // HTTPS listen address (empty = no HTTPS)
	TLS      bool        // enable HTTPS with a generated certificate
	TLSDir   string      // where the generated cert/key persist
	Auth     *AuthConfig // nil = no authentication
	Store    *configstore.Store
	Engine   *commit.Engine
	Schemas  *schema.Set
	Registry schema.Lookup
	Events   *logging.EventBuffer
	Archive  *audit.Store // nil = commit archive endpoints unavailable
	Hostname string
	Version  string
}

// Server is the HTTP admin server. It shares the daemon's single
// candidate with the local console: a remote session that enters
// configuration mode holds the same lock.
type Server struct {
	httpServer  *http.Server
	httpsServer *http.Server
	store       *configstore.Store
	engine      *commit.Engine
	opMatch     atomic.Pointer[schema.Matcher]
	cfgMatch    atomic.Pointer[schema.Matcher]
	events      *logging.EventBuffer
	archive     *audit.Store
	hostname    string
	version     string
	startTime   time.Time
}

// NewServer builds the server and its route table.
func NewServer(cfg Config) *Server {
	s := &Server{
		store:     cfg.Store,
		engine:    cfg.Engine,
		events:    cfg.Events,
		archive:   cfg.Archive,
		hostname:  cfg.Hostname,
		version:   cfg.Version,
		startTime: time.Now(),
	}
	if cfg.Schemas != nil {
		s.SetSchemas(cfg.Schemas, cfg.Registry)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Daemon gauges live on a private registry; the commit pipeline
	// registers its counters on the default one, so serve both.
	registry := prometheus.NewRegistry()
	registry.MustRegister(newCollector(s))
	mux.Handle("GET /metrics", promhttp.HandlerFor(
		prometheus.Gatherers{registry, prometheus.DefaultGatherer},
		promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/v1/status", s.statusHandler)

	mux.HandleFunc("GET /api/v1/config/show", s.configShowHandler)
	mux.HandleFunc("GET /api/v1/config/show-set", s.configShowSetHandler)
	mux.HandleFunc("GET /api/v1/config/compare", s.configCompareHandler)
	mux.HandleFunc("GET /api/v1/config/export", s.configExportHandler)
	mux.HandleFunc("GET /api/v1/config/history", s.configHistoryHandler)
	mux.HandleFunc("GET /api/v1/config/status", s.configStatusHandler)

	mux.HandleFunc("POST /api/v1/config/enter", s.configEnterHandler)
	mux.HandleFunc("POST /api/v1/config/exit", s.configExitHandler)
	mux.HandleFunc("POST /api/v1/config/set", s.configSetHandler)
	mux.HandleFunc("POST /api/v1/config/delete", s.configDeleteHandler)
	mux.HandleFunc("POST /api/v1/config/commit", s.configCommitHandler)
	mux.HandleFunc("POST /api/v1/config/commit-check", s.configCommitCheckHandler)
	mux.HandleFunc("POST /api/v1/config/commit-confirmed", s.configCommitConfirmedHandler)
	mux.HandleFunc("POST /api/v1/config/confirm", s.configConfirmHandler)
	mux.HandleFunc("POST /api/v1/config/discard", s.configDiscardHandler)
	mux.HandleFunc("POST /api/v1/config/rollback", s.configRollbackHandler)
	mux.HandleFunc("POST /api/v1/config/save", s.configSaveHandler)

	mux.HandleFunc("POST /api/v1/complete", s.completeHandler)

	mux.HandleFunc("GET /api/v1/events", s.eventsHandler)
	mux.HandleFunc("GET /api/v1/events/stream", s.eventStreamHandler)
	mux.HandleFunc("GET /api/v1/commits", s.commitsHandler)

	var handler http.Handler = mux
	if cfg.Auth != nil {
		handler = authMiddleware(*cfg.Auth, handler)
	}
	handler = instrument(registry, handler)

	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}

	if cfg.TLS && cfg.TLSAddr != "" {
		tlsCert, err := loadOrGenerateCert(cfg.TLSDir, cfg.Hostname)
		if err != nil {
			slog.Warn("TLS certificate unavailable, HTTPS disabled", "err", err)
		} else {
			s.httpsServer = &http.Server{
				Addr:    cfg.TLSAddr,
				Handler: handler,
				TLSConfig: &tls.Config{
					Certificates: []tls.Certificate{tlsCert},
					MinVersion:   tls.VersionTLS12,
				},
			}
		}
	}

	return s
}

// SetSchemas swaps the command trees behind the completion endpoint.
// Safe to call while requests are in flight.
func (s *Server) SetSchemas(set *schema.Set, reg schema.Lookup) {
	s.opMatch.Store(schema.NewMatcher(set.Operational, reg))
	s.cfgMatch.Store(schema.NewMatcher(set.Commands, reg))
}

// Run starts the HTTP (and optionally HTTPS) server and blocks until
// ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if s.httpsServer != nil {
		go func() {
			slog.Info("HTTPS API listening", "addr", s.httpsServer.Addr)
			if err := s.httpsServer.ListenAndServeTLS("", ""); err != http.ErrServerClosed {
				errCh <- err
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.httpsServer != nil {
		s.httpsServer.Shutdown(shutdownCtx)
	}
	return s.httpServer.Shutdown(shutdownCtx)
}

const defaultTLSDir = "/etc/netcli/tls"

// loadOrGenerateCert loads the persisted TLS key pair from dir, or
// generates a self-signed ECDSA P-256 certificate and writes it there
// so it survives restarts.
func loadOrGenerateCert(dir, hostname string) (tls.Certificate, error) {
	if dir == "" {
		dir = defaultTLSDir
	}
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	if cert, err := tls.LoadX509KeyPair(certPath, keyPath); err == nil {
		return cert, nil
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	if hostname == "" {
		hostname = "netcli"
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: hostname, Organization: []string{"netcli"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{hostname, "localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.MkdirAll(dir, 0700); err == nil {
		os.WriteFile(certPath, certPEM, 0644)
		os.WriteFile(keyPath, keyPEM, 0600)
	}

	return tls.X509KeyPair(certPEM, keyPEM)
}
