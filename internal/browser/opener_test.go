package browser

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenerFunc(t *testing.T) {
	var got string
	o := OpenerFunc(func(_ context.Context, url string) error {
		got = url
		return nil
	})
	require.NoError(t, o.Open(context.Background(), "http://localhost:8000/login?ws_port=1"))
	assert.Equal(t, "http://localhost:8000/login?ws_port=1", got)

	boom := errors.New("boom")
	failing := OpenerFunc(func(context.Context, string) error { return boom })
	assert.ErrorIs(t, failing.Open(context.Background(), "x"), boom)
}

func TestPrintOpener(t *testing.T) {
	var buf bytes.Buffer
	o := PrintOpener{W: &buf}

	require.NoError(t, o.Open(context.Background(), "http://localhost:8000/login?ws_port=9"))
	assert.Contains(t, buf.String(), "http://localhost:8000/login?ws_port=9")
}

func TestParseOpener(t *testing.T) {
	var buf bytes.Buffer

	tests := []struct {
		name string
		want any
	}{
		{"", SystemOpener{}},
		{"system", SystemOpener{}},
		{" System ", SystemOpener{}},
		{"none", PrintOpener{W: &buf}},
		{"print", PrintOpener{W: &buf}},
	}
	for _, tt := range tests {
		o, err := ParseOpener(tt.name, &buf, nil)
		require.NoError(t, err, tt.name)
		assert.IsType(t, tt.want, o, tt.name)
	}

	o, err := ParseOpener("chrome", &buf, nil)
	require.NoError(t, err)
	assert.IsType(t, ChromeOpener{}, o)

	_, err = ParseOpener("lynx", &buf, nil)
	assert.Error(t, err)
}

func TestSystemCommand_BrowserEnv(t *testing.T) {
	t.Setenv("BROWSER", "firefox --new-window")

	name, args := systemCommand("http://localhost/login")
	assert.Equal(t, "firefox", name)
	assert.Equal(t, []string{"--new-window", "http://localhost/login"}, args)
}

func TestSystemCommand_Default(t *testing.T) {
	t.Setenv("BROWSER", "")

	name, args := systemCommand("http://localhost/login")
	switch runtime.GOOS {
	case "darwin":
		assert.Equal(t, "open", name)
	case "windows":
		assert.Equal(t, "rundll32", name)
	default:
		assert.Equal(t, "xdg-open", name)
	}
	assert.Equal(t, "http://localhost/login", args[len(args)-1])
}

func TestSystemOpener_LaunchesBrowserEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a POSIX true(1)")
	}
	t.Setenv("BROWSER", "true")

	assert.NoError(t, SystemOpener{}.Open(context.Background(), "http://localhost/login"))
}

func TestSystemOpener_MissingBinary(t *testing.T) {
	t.Setenv("BROWSER", "/nonexistent/browser-binary")

	assert.Error(t, SystemOpener{}.Open(context.Background(), "http://localhost/login"))
}
