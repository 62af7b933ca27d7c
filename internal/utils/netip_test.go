package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHostNoPort(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"10.0.0.1", "10.0.0.1"},
		{"10.0.0.1:8080", "10.0.0.1"},
		{"[::1]:443", "::1"},
		{"[::1]", "::1"},
		{"home.lan:80", "home.lan"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseHostNoPort(tt.in), tt.in)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{"remote addr only", nil, false, "192.0.2.10"},
		{"proxy headers ignored when untrusted", map[string]string{"X-Forwarded-For": "203.0.113.5"}, false, "192.0.2.10"},
		{"cloudflare first", map[string]string{"CF-Connecting-IP": "198.51.100.1", "X-Forwarded-For": "203.0.113.5"}, true, "198.51.100.1"},
		{"left-most forwarded hop", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, true, "203.0.113.5"},
		{"real ip fallback", map[string]string{"X-Real-IP": "203.0.113.9"}, true, "203.0.113.9"},
		{"no headers with trust", nil, true, "192.0.2.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = "192.0.2.10:54321"
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r, tt.trustProxy))
		})
	}
}

func TestIPMatcher(t *testing.T) {
	m := NewIPMatcher([]string{" 10.0.0.0/8", "192.168.1.20", "fd00::/8", "garbage", ""})
	assert.False(t, m.IsEmpty())

	assert.True(t, m.Allow("10.42.0.7"))
	assert.True(t, m.Allow("192.168.1.20"))
	assert.True(t, m.Allow("::ffff:192.168.1.20"))
	assert.True(t, m.Allow("fd12::1"))
	assert.False(t, m.Allow("192.168.1.21"))
	assert.False(t, m.Allow("not-an-ip"))

	assert.True(t, NewIPMatcher(nil).IsEmpty())
	assert.True(t, NewIPMatcher([]string{"nope"}).IsEmpty())
}
