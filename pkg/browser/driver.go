package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"formpilot/pkg/config"
	"formpilot/pkg/form"
	"formpilot/pkg/logx"
)

// maxSections bounds how many pages NextQuestion walks through without finding a question.
const maxSections = 100

// settle is how long the page must stay quiet after a click before it is read.
const settle = 300 * time.Millisecond

var (
	// ErrNoNavigation means the page has neither a Next nor a Submit button.
	ErrNoNavigation = errors.New("no next or submit button on the page")
	// ErrPageRejected means the form showed a validation error after Next or Submit.
	ErrPageRejected = errors.New("form rejected the page")
)

// Driver walks one form opened in its own incognito context.
type Driver struct {
	link      string
	incognito *rod.Browser
	page      *rod.Page
	sel       config.Selectors
	timeout   time.Duration
	release   func()
	logger    *logx.Logger

	mu      sync.Mutex
	pending rod.Elements
	index   int // position on the page of the next pending element
	closed  bool
}

func newDriver(link string, incognito *rod.Browser, page *rod.Page, sel config.Selectors, timeout time.Duration) *Driver {
	return &Driver{
		link:      link,
		incognito: incognito,
		page:      page,
		sel:       sel,
		timeout:   timeout,
		logger:    logx.NewLogger("browser"),
	}
}

// NextQuestion returns the next question on the current page, moving through Next pages and
// finally Submit when the page runs out. Elements that are not questions are passed over.
func (d *Driver) NextQuestion(ctx context.Context, start bool) (form.Question, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, false, errors.New("driver is closed")
	}

	load := start
	for sections := 0; sections < maxSections; {
		if !load && len(d.pending) == 0 {
			done, err := d.advance(ctx)
			if err != nil {
				return nil, false, err
			}
			if done {
				d.logger.Info("submitted %s", d.link)
				return nil, true, nil
			}
			load = true
		}
		if load {
			elems, err := d.page.Context(ctx).Elements(d.sel.Question)
			if err != nil {
				return nil, false, fmt.Errorf("failed to list questions: %w", err)
			}
			d.pending, d.index = elems, 0
			load = false
			sections++
		}

		for len(d.pending) > 0 {
			el := d.pending[0]
			d.pending = d.pending[1:]
			d.index++

			q := &question{d: d, el: el, pos: d.index - 1}
			if _, err := q.read(ctx); err != nil {
				if errors.Is(err, errNotQuestion) {
					logx.Debug(ctx, "browser", "item %d is not a question", q.pos)
					continue
				}
				return nil, false, err
			}
			return q, false, nil
		}
	}
	return nil, false, fmt.Errorf("no question found in %d sections", maxSections)
}

// advance clicks Next, or Submit when there is no Next. done is true after Submit.
func (d *Driver) advance(ctx context.Context) (bool, error) {
	page := d.page.Context(ctx)

	submit := false
	ok, button, err := page.Has(d.sel.Next)
	if err != nil {
		return false, fmt.Errorf("failed to look for the next button: %w", err)
	}
	if !ok {
		ok, button, err = page.Has(d.sel.Submit)
		if err != nil {
			return false, fmt.Errorf("failed to look for the submit button: %w", err)
		}
		if !ok {
			return false, ErrNoNavigation
		}
		submit = true
	}

	if err := click(button); err != nil {
		return false, err
	}
	if err := page.Timeout(d.timeout).WaitStable(settle); err != nil {
		d.logger.Warn("page did not settle after click: %v", err)
	}
	if msg := d.alert(ctx); msg != "" {
		return false, fmt.Errorf("%w: %s", ErrPageRejected, msg)
	}
	return submit, nil
}

// alert returns the first visible validation message on the page.
func (d *Driver) alert(ctx context.Context) string {
	alerts, err := d.page.Context(ctx).Elements(d.sel.Alert)
	if err != nil {
		return ""
	}
	for _, a := range alerts {
		if visible, _ := a.Visible(); !visible {
			continue
		}
		if text, _ := a.Text(); strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return ""
}

// RefreshElement re-reads the page and returns the element of the current question.
func (d *Driver) RefreshElement(ctx context.Context) (form.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elems, err := d.page.Context(ctx).Elements(d.sel.Question)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	current := d.index - 1
	if current < 0 || current >= len(elems) {
		d.logger.Warn("re-read %d items but the current question is item %d", len(elems), current)
		return nil, nil
	}
	d.pending = elems[d.index:]
	return elems[current], nil
}

// Skip leaves the current question as it is on the page.
func (d *Driver) Skip(context.Context) error {
	return nil
}

func (d *Driver) IdleLink() string {
	return d.link
}

// Close discards the incognito context and its page.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.pending = nil
	if d.release != nil {
		defer d.release()
	}
	if err := d.incognito.Close(); err != nil {
		return fmt.Errorf("failed to close form page: %w", err)
	}
	return nil
}

func click(el *rod.Element) error {
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("failed to scroll to element: %w", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click element: %w", err)
	}
	return nil
}
