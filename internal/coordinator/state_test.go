package coordinator

import (
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusIdle, "IDLE"},
		{StatusListening, "LISTENING"},
		{StatusSucceeded, "SUCCEEDED"},
		{StatusTimedOut, "TIMED_OUT"},
		{StatusPeerClosed, "PEER_CLOSED"},
		{StatusFailed, "FAILED"},
		{StatusCancelled, "CANCELLED"},
		{Status(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusIdle.Terminal())
	assert.False(t, StatusListening.Terminal())
	for _, s := range []Status{StatusSucceeded, StatusTimedOut, StatusPeerClosed, StatusFailed, StatusCancelled} {
		assert.True(t, s.Terminal(), s.String())
	}
}

func TestAttempt_Duration(t *testing.T) {
	assert.Zero(t, Attempt{}.Duration())

	start := time.Now().Add(-time.Minute)
	a := Attempt{StartedAt: start, EndedAt: start.Add(3 * time.Second)}
	assert.Equal(t, 3*time.Second, a.Duration())

	running := Attempt{StartedAt: time.Now().Add(-time.Second)}
	assert.GreaterOrEqual(t, running.Duration(), time.Second)
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, TextWaiting, statusText(Attempt{Status: StatusListening}))
	assert.Equal(t, TextSucceeded, statusText(Attempt{Status: StatusSucceeded}))
	assert.Equal(t, TextTimedOut, statusText(Attempt{Status: StatusTimedOut}))
	assert.Equal(t, TextPeerClosed, statusText(Attempt{Status: StatusPeerClosed}))
	assert.Equal(t, "Error: boom", statusText(Attempt{Status: StatusFailed, Err: errors.New("boom")}))
	assert.Equal(t, "Error: login failed", statusText(Attempt{Status: StatusFailed}))
	assert.Empty(t, statusText(Attempt{Status: StatusCancelled}))
}

func TestOutcome_Succeeded(t *testing.T) {
	assert.True(t, Outcome{Attempt{Status: StatusSucceeded}}.Succeeded())
	assert.False(t, Outcome{Attempt{Status: StatusCancelled}}.Succeeded())
}

func TestEphemeralPorts(t *testing.T) {
	port, err := EphemeralPorts{Host: "127.0.0.1"}.Allocate()
	require.NoError(t, err)
	assert.Greater(t, port, 0)

	// Released again for the real listener.
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	_ = ln.Close()
}

func TestEphemeralPorts_BadHost(t *testing.T) {
	_, err := EphemeralPorts{Host: "203.0.113.1"}.Allocate()
	assert.ErrorIs(t, err, ErrResourceUnavailable)
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	for i := 0; i < 100; i++ {
		q.push(Event{Kind: EventStatus, Status: StatusUpdate{Text: strconv.Itoa(i)}})
	}
	assert.Equal(t, 100, q.len())

	select {
	case <-q.ready:
	default:
		t.Fatal("ready not signalled")
	}

	events := q.take()
	require.Len(t, events, 100)
	for i, ev := range events {
		assert.Equal(t, strconv.Itoa(i), ev.Status.Text)
	}
	assert.Empty(t, q.take())
}
