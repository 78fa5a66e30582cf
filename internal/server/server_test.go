package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pingkeeper/internal/eventbus"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestRootAndHealth(t *testing.T) {
	s := New(Config{}, WithHealth(func() Health {
		return Health{Status: "ok", Mode: "polling", Tasks: 3}
	}))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "running")

	code, body = get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	var h Health
	require.NoError(t, json.Unmarshal([]byte(body), &h))
	assert.Equal(t, 3, h.Tasks)
	assert.Equal(t, "polling", h.Mode)

	code, _ = get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = get(t, ts.URL+"/setup")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestWebhookRoute(t *testing.T) {
	hits := 0
	hook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	})
	s := New(Config{WebhookPath: "s3cret"}, WithWebhook(hook, func(context.Context) (string, error) {
		return "https://keep.example.com/webhook/***", nil
	}))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook/s3cret", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, hits)

	resp, err = http.Post(ts.URL+"/webhook/guess", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, hits)

	code, body := get(t, ts.URL+"/setup")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "webhook registered")
}

func TestSetupFailure(t *testing.T) {
	s := New(Config{WebhookPath: "p"}, WithWebhook(http.NotFoundHandler(), func(context.Context) (string, error) {
		return "", errors.New("telegram said no")
	}))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, body := get(t, ts.URL+"/setup")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body, "telegram said no")
}

func TestEventStream(t *testing.T) {
	bus := eventbus.New()
	s := New(Config{}, WithBus(bus))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	// the handler subscribes after the handshake; publish until a frame arrives
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tk := time.NewTicker(10 * time.Millisecond)
		defer tk.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tk.C:
				bus.Publish(eventbus.Event{Type: eventbus.TaskStarted, Data: map[string]any{"owner": 42}})
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e eventbus.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, eventbus.TaskStarted, e.Type)
}

func TestStartStop(t *testing.T) {
	s := New(Config{Listen: "127.0.0.1:0"})
	require.NoError(t, s.Start())
	addr := s.Addr()
	require.NotEmpty(t, addr)

	code, _ := get(t, "http://"+addr+"/")
	assert.Equal(t, http.StatusOK, code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Empty(t, s.Addr())
}

func TestPprofRequiresToken(t *testing.T) {
	ts := httptest.NewServer(New(Config{}).Handler())
	code, _ := get(t, ts.URL+"/debug/pprof/")
	assert.Equal(t, http.StatusNotFound, code)
	ts.Close()

	ts = httptest.NewServer(New(Config{PprofToken: "tok"}).Handler())
	defer ts.Close()

	code, _ = get(t, ts.URL+"/debug/pprof/")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, ts.URL+"/debug/pprof/?token=wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, ts.URL+"/debug/pprof/?token=tok")
	assert.Equal(t, http.StatusOK, code)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/debug/pprof/cmdline", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
