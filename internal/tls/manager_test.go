package tls

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-service/internal/config"
)

func TestDevCertGeneratorReusesValidCert(t *testing.T) {
	dir := t.TempDir()
	gen := NewDevCertGenerator(dir)

	first, err := gen.GenerateCert([]string{"localhost", "127.0.0.1"})
	require.NoError(t, err)
	assert.True(t, gen.isCertificateValid(filepath.Join(dir, "dev-cert.pem")))

	leaf, err := x509.ParseCertificate(first.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost"}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)

	second, err := gen.GenerateCert([]string{"localhost"})
	require.NoError(t, err)
	assert.Equal(t, first.Certificate[0], second.Certificate[0])
}

func TestIsCertificateValidMissingFile(t *testing.T) {
	gen := NewDevCertGenerator(t.TempDir())
	assert.False(t, gen.isCertificateValid(filepath.Join(t.TempDir(), "nope.pem")))
}

func TestGetCertificateSelfSignedOutsideProduction(t *testing.T) {
	cfg := &config.Config{Environment: config.EnvDevelopment}
	cfg.Server.Domain = "localhost"
	cfg.Server.AutoCertDir = t.TempDir()
	m := NewTLSManager(cfg)

	a, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	require.NoError(t, err)
	b, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	require.NoError(t, err)
	assert.Same(t, a, b)

	assert.Equal(t, uint16(tls.VersionTLS12), m.GetTLSConfig().MinVersion)
}

func TestGetCertificateProductionRequiresSource(t *testing.T) {
	cfg := &config.Config{Environment: config.EnvProduction}
	cfg.Server.AutoCertDir = t.TempDir()
	m := NewTLSManager(cfg)

	_, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: "api.internconnect.io"})
	assert.Error(t, err)
}

func TestHTTPHandlerWithoutAutoCert(t *testing.T) {
	m := NewTLSManager(&config.Config{})
	fallback := http.NotFoundHandler()
	assert.NotNil(t, m.HTTPHandler(fallback))
}
