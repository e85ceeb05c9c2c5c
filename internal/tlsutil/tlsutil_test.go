package tlsutil

import (
	"crypto/tls"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)
	for _, cs := range cfg.CipherSuites {
		switch cs {
		case tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:
		default:
			t.Errorf("unexpected non-AEAD cipher suite: %d", cs)
		}
	}
}

func TestPooledTransport_Defaults(t *testing.T) {
	tr := PooledTransport(Options{})
	require.NotNil(t, tr.TLSClientConfig)
	assert.False(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.Equal(t, 16, tr.MaxIdleConnsPerHost)
	assert.True(t, tr.ForceAttemptHTTP2)

	tr = PooledTransport(Options{MaxIdleConnsPerHost: 4, InsecureSkipVerify: true})
	assert.Equal(t, 4, tr.MaxIdleConnsPerHost)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
}

type countingRT struct {
	next  http.RoundTripper
	count int
}

func (c *countingRT) RoundTrip(r *http.Request) (*http.Response, error) {
	c.count++
	return c.next.RoundTrip(r)
}

func TestNewClient_Wrap(t *testing.T) {
	var wrapped *countingRT
	client := NewClient(Options{
		Timeout: 5 * time.Second,
		Wrap: func(rt http.RoundTripper) http.RoundTripper {
			wrapped = &countingRT{next: rt}
			return wrapped
		},
	})
	assert.Equal(t, 5*time.Second, client.Timeout)
	assert.Same(t, wrapped, client.Transport)
}

func TestSecureHTTPClient(t *testing.T) {
	client := SecureHTTPClient(15 * time.Second)
	assert.Equal(t, 15*time.Second, client.Timeout)
	_, ok := client.Transport.(*http.Transport)
	assert.True(t, ok)
}
