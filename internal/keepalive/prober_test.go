package keepalive

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
)

func mockedProber(timeout time.Duration) (*HTTPProber, *httpmock.MockTransport) {
	p := NewHTTPProber(timeout, "")
	mt := httpmock.NewMockTransport()
	p.Client.Transport = mt
	return p, mt
}

func TestProbeAnyStatusIsSuccess(t *testing.T) {
	p, mt := mockedProber(time.Second)
	mt.RegisterResponder(http.MethodGet, "https://up.test/", httpmock.NewStringResponder(200, "ok"))
	mt.RegisterResponder(http.MethodGet, "https://broken.test/", httpmock.NewStringResponder(503, "unavailable"))

	res := p.Probe(context.Background(), "https://up.test/")
	assert.True(t, res.OK)
	assert.Equal(t, 200, res.Status)

	res = p.Probe(context.Background(), "https://broken.test/")
	assert.True(t, res.OK)
	assert.Equal(t, 503, res.Status)
	assert.Empty(t, res.Reason)
}

func TestProbeTransportError(t *testing.T) {
	p, mt := mockedProber(time.Second)
	mt.RegisterResponder(http.MethodGet, "https://down.test/", httpmock.NewErrorResponder(errors.New("connection refused")))

	res := p.Probe(context.Background(), "https://down.test/")
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "connection refused")
}

func TestProbeTimeout(t *testing.T) {
	p, mt := mockedProber(50 * time.Millisecond)
	mt.RegisterResponder(http.MethodGet, "https://slow.test/", func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	res := p.Probe(context.Background(), "https://slow.test/")
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "timeout")
	assert.Less(t, res.Latency, time.Second)
}

func TestProbeInvalidTarget(t *testing.T) {
	p, _ := mockedProber(time.Second)
	res := p.Probe(context.Background(), "http://[::1")
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Reason)
}

func TestProbeSendsUserAgent(t *testing.T) {
	p, mt := mockedProber(time.Second)
	var got string
	mt.RegisterResponder(http.MethodGet, "https://ua.test/", func(req *http.Request) (*http.Response, error) {
		got = req.Header.Get("User-Agent")
		return httpmock.NewStringResponse(204, ""), nil
	})

	res := p.Probe(context.Background(), "https://ua.test/")
	assert.True(t, res.OK)
	assert.Equal(t, defaultUserAgent, got)
}
