package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClickhouseAddr(t *testing.T) {
	tests := []struct {
		raw    string
		secure bool
		want   string
	}{
		{"localhost", false, "localhost:9000"},
		{"localhost:9001", false, "localhost:9001"},
		{"http://ch.internal", false, "ch.internal:9000"},
		{"https://ch.internal", true, "ch.internal:9440"},
		{"https://ch.internal:9443/", true, "ch.internal:9443"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clickhouseAddr(tt.raw, tt.secure), tt.raw)
	}
}

func TestClickhouseTLS(t *testing.T) {
	cfg, err := clickhouseTLS("ch.internal:9440", "")
	assert.NoError(t, err)
	assert.Equal(t, "ch.internal", cfg.ServerName)
	assert.Nil(t, cfg.RootCAs)

	_, err = clickhouseTLS("ch.internal:9440", "/nonexistent/ca.pem")
	assert.Error(t, err)
}
