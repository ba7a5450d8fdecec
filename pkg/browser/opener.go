// Package browser drives live Google Forms in a headless Chromium through rod.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"formpilot/pkg/config"
	"formpilot/pkg/form"
	"formpilot/pkg/limiter"
	"formpilot/pkg/logx"
)

// ErrLaunchFailed is returned once every launch attempt has failed.
var ErrLaunchFailed = errors.New("browser could not open the form")

// LaunchObserver is told how many attempts a launch took.
type LaunchObserver interface {
	ObserveBrowserLaunch(attempts int, success bool)
}

type nopObserver struct{}

func (nopObserver) ObserveBrowserLaunch(int, bool) {}

// Option configures an Opener.
type Option func(*Opener)

// WithObserver reports launch attempts.
func WithObserver(o LaunchObserver) Option {
	return func(op *Opener) {
		if o != nil {
			op.observer = o
		}
	}
}

// WithWait replaces the pause between launch attempts.
func WithWait(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(op *Opener) { op.wait = wait }
}

// Opener launches one shared browser and opens every form in its own incognito context.
type Opener struct {
	cfg      config.BrowserConfig
	observer LaunchObserver
	wait     func(ctx context.Context, d time.Duration) error
	limits   *limiter.Limiter
	logger   *logx.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func NewOpener(cfg config.BrowserConfig, opts ...Option) *Opener {
	o := &Opener{
		cfg:      cfg,
		observer: nopObserver{},
		wait:     sleepCtx,
		limits:   limiter.New(cfg.Limits),
		logger:   logx.NewLogger("browser"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open loads link in a fresh page. Failed attempts relaunch the browser after a pause; the pause
// and the navigation timeout both grow by the backoff factor per attempt. The form holds a slot
// of the open-form limit until its driver is closed.
func (o *Opener) Open(ctx context.Context, link string) (form.Driver, error) {
	if err := o.limits.Acquire(); err != nil {
		o.logger.Warn("refusing to open %s: %v", link, err)
		return nil, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
	}

	var d *Driver
	attempts, err := retry(ctx, o.cfg.Retry, o.cfg.NavigationTimeout, o.wait, func(attempt int, timeout time.Duration) error {
		var err error
		d, err = o.openOnce(ctx, link, timeout)
		if err != nil {
			o.logger.Warn("attempt %d to open %s failed: %v", attempt, link, err)
			o.dropIfDead()
		}
		return err
	})
	o.observer.ObserveBrowserLaunch(attempts, err == nil)
	if err != nil {
		o.release()
		o.logger.Error("unable to open %s after %d attempts", link, attempts)
		return nil, err
	}
	d.release = o.release
	return d, nil
}

func (o *Opener) openOnce(ctx context.Context, link string, timeout time.Duration) (*Driver, error) {
	b, err := o.connect(ctx)
	if err != nil {
		return nil, err
	}
	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	nav := page.Context(ctx).Timeout(timeout)
	if err := nav.Navigate(link); err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("failed to navigate to %s: %w", link, err)
	}
	if err := nav.WaitLoad(); err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("form did not load: %w", err)
	}
	return newDriver(link, incognito, page, o.cfg.Selectors, timeout), nil
}

func (o *Opener) release() {
	if err := o.limits.Release(); err != nil {
		o.logger.Warn("%v", err)
	}
}

// connect returns the shared browser, launching or attaching to one on first use.
func (o *Opener) connect(ctx context.Context) (*rod.Browser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.browser != nil {
		return o.browser, nil
	}

	controlURL := o.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(o.cfg.Headless).
			NoSandbox(true).
			Set(flags.Flag("disable-gpu")).
			Set(flags.Flag("window-size"), "2560,1440")
		if o.cfg.Bin != "" {
			l = l.Bin(o.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		o.launcher = l
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		o.killLocked()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	o.browser = b
	o.logger.Info("Connected to browser")
	return b, nil
}

// dropIfDead discards the shared browser when it no longer answers, so the next attempt launches
// a new one. A healthy browser is kept for the forms other users have open.
func (o *Opener) dropIfDead() {
	o.mu.Lock()
	b := o.browser
	o.mu.Unlock()
	if b == nil {
		return
	}
	if _, err := (proto.BrowserGetVersion{}).Call(b); err == nil {
		return
	}
	o.logger.Warn("browser stopped responding, relaunching")
	o.reset()
}

// reset drops the shared browser so the next attempt starts a new one.
func (o *Opener) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.browser != nil {
		_ = o.browser.Close()
		o.browser = nil
	}
	o.killLocked()
}

func (o *Opener) killLocked() {
	if o.launcher != nil {
		o.launcher.Kill()
		o.launcher.Cleanup()
		o.launcher = nil
	}
}

// Close shuts the shared browser down. Drivers still open become unusable.
func (o *Opener) Close() error {
	o.reset()
	return nil
}

// retry runs fn up to cfg.MaxAttempts times. The timeout handed to fn starts at initial and is
// multiplied by cfg.BackoffFactor after every failure; the pause before each retry equals the
// timeout of the failed attempt. It returns the number of attempts made.
func retry(ctx context.Context, cfg config.RetryConfig, initial time.Duration,
	wait func(context.Context, time.Duration) error, fn func(attempt int, timeout time.Duration) error) (int, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	factor := cfg.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	timeout := initial
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(attempt, timeout)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == attempts {
			return attempt, fmt.Errorf("%w: %d attempts: %w", ErrLaunchFailed, attempt, lastErr)
		}
		if err := wait(ctx, timeout); err != nil {
			return attempt, fmt.Errorf("%w: %w", ErrLaunchFailed, err)
		}
		timeout = time.Duration(float64(timeout) * factor)
	}
	return attempts, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
