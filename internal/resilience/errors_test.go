package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"tagged transient", NewTransientError(upstreamErr("boond: 503"), 503), true},
		{"tagged transient wrapped", fmt.Errorf("create quotation: %w", NewTransientError(upstreamErr("overloaded"), 429)), true},
		{"hard api error", upstreamErr("boond: 400 unknown opportunity"), false},
		{"connection reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"dns timeout", &net.DNSError{Err: "lookup timeout", IsTimeout: true}, true},
		{"broken pipe message", upstreamErr("write: broken pipe"), true},
		{"tls handshake timeout message", upstreamErr("net/http: TLS handshake timeout"), true},
		{"idle connection message", upstreamErr("http: server closed idle connection"), true},
		{"validation failure", upstreamErr("trigramme must be 3 letters"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 409, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
}

func TestTransientError_WrapsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("gateway exploded")
	te := NewTransientError(cause, 502)

	assert.True(t, errors.Is(te, cause))
	assert.Equal(t, "gateway exploded", te.Error())
	assert.Equal(t, 502, te.StatusCode)
}
