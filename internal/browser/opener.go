package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/chromedp/chromedp"
)

// Opener shows the login page to the user.
//
// Open must not block for the life of the page. The context is cancelled
// when the login attempt ends; openers that own a browser process may use
// it to close the window.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url string) error

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, url string) error { return f(ctx, url) }

// SystemOpener hands the URL to the desktop's default browser. $BROWSER
// takes precedence when set.
type SystemOpener struct{}

// Open implements Opener. The launched process is not tied to ctx.
func (SystemOpener) Open(_ context.Context, url string) error {
	name, args := systemCommand(url)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", name, err)
	}
	// Reap the launcher; most exit as soon as the URL is handed off.
	go func() { _ = cmd.Wait() }()
	return nil
}

func systemCommand(url string) (string, []string) {
	if env := strings.TrimSpace(os.Getenv("BROWSER")); env != "" {
		fields := strings.Fields(env)
		return fields[0], append(fields[1:], url)
	}
	switch runtime.GOOS {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

// ChromeOpener opens the login page in a dedicated Chrome window driven over
// the DevTools protocol. The window closes when the attempt ends.
type ChromeOpener struct {
	// ExecPath overrides Chrome discovery.
	ExecPath string
	Logger   *slog.Logger
}

// Open launches Chrome and starts navigation without waiting for the page
// to load.
func (o ChromeOpener) Open(ctx context.Context, url string) error {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", false),
		chromedp.Flag("new-window", true),
	)
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return fmt.Errorf("launch chrome: %w", err)
	}

	go func() {
		if err := chromedp.Run(browserCtx, chromedp.Navigate(url)); err != nil && ctx.Err() == nil {
			logger.Warn("chrome navigation failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		cancelBrowser()
		cancelAlloc()
	}()
	return nil
}

// PrintOpener writes the URL for the user to open by hand.
type PrintOpener struct {
	W io.Writer
}

// Open implements Opener.
func (p PrintOpener) Open(_ context.Context, url string) error {
	w := p.W
	if w == nil {
		w = os.Stderr
	}
	_, err := fmt.Fprintf(w, "Open this URL to log in:\n  %s\n", url)
	return err
}

// ParseOpener maps a config or flag value to an Opener.
//
//	system  default browser ($BROWSER, open, xdg-open)
//	chrome  dedicated Chrome window
//	none    print the URL to w
func ParseOpener(name string, w io.Writer, logger *slog.Logger) (Opener, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "system":
		return SystemOpener{}, nil
	case "chrome":
		return ChromeOpener{Logger: logger}, nil
	case "none", "print":
		return PrintOpener{W: w}, nil
	default:
		return nil, fmt.Errorf("unknown browser %q (want system, chrome or none)", name)
	}
}
