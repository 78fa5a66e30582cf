package keepalive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStopActionData(t *testing.T) {
	a := StopAction(-100123)
	if assert.NotNil(t, a) {
		assert.Equal(t, "ka:stop:-100123", a.Data)
	}
	o, err := ParseOwner("-100123")
	assert.NoError(t, err)
	assert.Equal(t, Owner(-100123), o)
}

func TestMessagesEscapeTarget(t *testing.T) {
	txt := StartedText("https://x.test/?a=1&b=<2>", 10*time.Second)
	assert.Contains(t, txt, "a=1&amp;b=&lt;2&gt;")
	assert.Contains(t, txt, "10 seconds")
}

func TestStatusText(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	info := TaskInfo{
		Owner:     1,
		Target:    "https://x.test",
		Interval:  10 * time.Second,
		StartedAt: now.Add(-90 * time.Minute),
	}
	txt := StatusText(info, now)
	assert.Contains(t, txt, "https://x.test")
	assert.Contains(t, txt, "1 hour 30 minutes")
	assert.Contains(t, txt, "pending")

	info.LastResult = &Result{Reason: "timeout after 8s"}
	info.LastProbeAt = now
	assert.Contains(t, StatusText(info, now), "timeout after 8s")
}
