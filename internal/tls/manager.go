package tls

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"sync"

	"golang.org/x/crypto/acme/autocert"

	"otc-service/internal/config"
	"otc-service/internal/util"
)

// TLSManager picks a certificate source: ACME via autocert, configured files, or (outside
// production) a self-signed development certificate.
type TLSManager struct {
	server     config.ServerConfig
	production bool
	autoCert   *autocert.Manager

	fileOnce sync.Once
	fileCert *tls.Certificate
	fileErr  error

	devOnce sync.Once
	devCert *tls.Certificate
	devErr  error
}

func NewTLSManager(cfg *config.Config) *TLSManager {
	m := &TLSManager{
		server:     cfg.Server,
		production: cfg.IsProduction(),
	}
	if cfg.Server.AutoCert && cfg.Server.EnableTLS {
		m.setupAutoCert()
	}
	return m
}

func (m *TLSManager) setupAutoCert() {
	if err := os.MkdirAll(m.server.AutoCertDir, 0700); err != nil {
		util.Warn("Could not create autocert directory", util.ErrorField(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.server.Domain),
		Cache:      autocert.DirCache(m.server.AutoCertDir),
		Email:      m.server.Email,
	}

	util.Info("AutoCert configured",
		util.String("domain", m.server.Domain),
		util.String("cache_dir", m.server.AutoCertDir))
}

func (m *TLSManager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		cert, err := m.autoCert.GetCertificate(hello)
		if err == nil {
			return cert, nil
		}
		util.Warn("AutoCert lookup failed", util.String("server_name", hello.ServerName), util.ErrorField(err))
	}

	if m.server.CertFile != "" && m.server.KeyFile != "" {
		m.fileOnce.Do(func() {
			cert, err := tls.LoadX509KeyPair(m.server.CertFile, m.server.KeyFile)
			m.fileCert, m.fileErr = &cert, err
		})
		if m.fileErr == nil {
			return m.fileCert, nil
		}
		util.Warn("Configured certificate unusable", util.ErrorField(m.fileErr))
	}

	if m.production {
		return nil, fmt.Errorf("no certificate available for %q", hello.ServerName)
	}
	return m.selfSignedCert()
}

func (m *TLSManager) selfSignedCert() (*tls.Certificate, error) {
	m.devOnce.Do(func() {
		hosts := []string{m.server.Domain, "localhost", "127.0.0.1", "::1"}
		cert, err := NewDevCertGenerator(m.server.AutoCertDir).GenerateCert(hosts)
		if err != nil {
			m.devErr = fmt.Errorf("failed to generate self-signed certificate: %w", err)
			return
		}
		m.devCert = &cert
	})
	return m.devCert, m.devErr
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
}

// HTTPHandler serves ACME http-01 challenges and hands everything else to fallback.
func (m *TLSManager) HTTPHandler(fallback http.Handler) http.Handler {
	if m.autoCert == nil {
		return fallback
	}
	return m.autoCert.HTTPHandler(fallback)
}
