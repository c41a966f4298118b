package baseurl

import (
	"bytes"
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		headers map[string]string
		tls     bool
		want    string
	}{
		{name: "lan address keeps port", host: "192.168.1.5:8080", want: "http://192.168.1.5:8080"},
		{name: "localhost", host: "localhost:3001", want: "http://localhost:3001"},
		{name: "loopback", host: "127.0.0.1", want: "http://127.0.0.1"},
		{name: "private 10/8", host: "10.0.0.7:3001", want: "http://10.0.0.7:3001"},
		{name: "misskey subdomain", host: "media.misskey.site", want: "http://media.misskey.site"},
		{name: "unknown domain", host: "evil.com", want: Fallback},
		{name: "lookalike suffix", host: "misskey.site.evil.com", want: Fallback},
		{name: "public ip", host: "8.8.8.8", want: Fallback},
		{name: "empty host", host: "", want: Fallback},
		{
			name:    "forwarded host wins",
			host:    "localhost:3001",
			headers: map[string]string{"X-Forwarded-Host": "api.misskey.site", "X-Forwarded-Proto": "https"},
			want:    "https://api.misskey.site",
		},
		{
			name:    "forwarded host is checked too",
			host:    "localhost:3001",
			headers: map[string]string{"X-Forwarded-Host": "evil.com"},
			want:    Fallback,
		},
		{
			name:    "unknown proto ignored",
			host:    "localhost:3001",
			headers: map[string]string{"X-Forwarded-Proto": "javascript"},
			want:    "http://localhost:3001",
		},
		{name: "tls without header", host: "localhost", tls: true, want: "https://localhost"},
		{name: "userinfo after port", host: "localhost:3001", headers: map[string]string{"X-Forwarded-Host": "localhost:1@evil.com"}, want: Fallback},
		{name: "path after port", host: "localhost:3001", headers: map[string]string{"X-Forwarded-Host": "10.0.0.1:80/evil.com/x"}, want: Fallback},
		{name: "fragment after port", host: "localhost:3001", headers: map[string]string{"X-Forwarded-Host": "localhost:3001#@evil.com"}, want: Fallback},
		{name: "path without port", host: "localhost/evil.com", want: Fallback},
		{name: "empty port", host: "localhost:", want: Fallback},
		{name: "port too long", host: "localhost:123456", want: Fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/upload/single", nil)
			r.Host = tt.host
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.tls {
				r.TLS = &tls.ConnectionState{}
			}

			assert.Equal(t, tt.want, New("", nil).Resolve(r))
		})
	}
}

func TestResolve_Override(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "evil.com"

	assert.Equal(t, "https://cdn.example.org", New("https://cdn.example.org", nil).Resolve(r))
}

func TestResolve_NilRequest(t *testing.T) {
	assert.Equal(t, Fallback, New("", nil).Resolve(nil))
	assert.Equal(t, "https://media.example.org", New("https://media.example.org", nil).Resolve(nil))
}

func TestResolve_LogsRejectedHost(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Host = "evil.com:443"

	New("", logger).Resolve(r)

	assert.Contains(t, buf.String(), `"level":"WARN"`)
	assert.Contains(t, buf.String(), `"host":"evil.com:443"`)
}
