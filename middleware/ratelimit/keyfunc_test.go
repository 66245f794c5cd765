package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientKey_PrefersPeerAddress(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	assert.Equal(t, "10.0.0.9", ClientKey(r))
}

func TestClientKey_PeerWithoutPortIsVerbatim(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "unix-socket-peer"

	assert.Equal(t, "unix-socket-peer", ClientKey(r))
}

func TestClientKey_FallsBackToFirstForwarded(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = ""
	r.Header.Set("X-Forwarded-For", " 1.2.3.4 , 5.6.7.8")

	assert.Equal(t, "1.2.3.4", ClientKey(r))
}

func TestClientKey_FallsBackToUnknown(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = ""

	assert.Equal(t, "unknown", ClientKey(r))
}

func TestDefaultKeyFunc_PrefersHeaderWhenSet(t *testing.T) {
	fn := DefaultKeyFunc("X-Client", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Client", " client-123 ")

	assert.Equal(t, "client-123", fn(r))
}

func TestDefaultKeyFunc_PreferForwardedUsesFirstIP(t *testing.T) {
	fn := DefaultKeyFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	assert.Equal(t, "1.2.3.4", fn(r))
}

func TestDefaultKeyFunc_WithoutOptionsMatchesClientKey(t *testing.T) {
	fn := DefaultKeyFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	assert.Equal(t, ClientKey(r), fn(r))
}
