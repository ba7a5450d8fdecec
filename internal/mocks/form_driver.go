package mocks

import (
	"context"
	"errors"
	"sync"

	"formpilot/pkg/form"
)

// ErrMockFailure is a generic failure that scripted doubles can be told to return.
var ErrMockFailure = errors.New("mock failure")

// FormQuestion is a scripted form.Question.
type FormQuestion struct {
	Meta form.Info

	// StaleReads is the number of Info calls that report form.ErrStale before succeeding.
	StaleReads int
	// InfoErr, when set, is returned by every Info call after the stale reads.
	InfoErr error
	// AnswerFunc overrides Answer.
	AnswerFunc func(ctx context.Context, parts ...form.Part) error

	mu          sync.Mutex
	infoCalls   int
	answerCalls [][]form.Part
	elements    []form.Element
}

func (q *FormQuestion) Info(_ context.Context) (form.Info, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.infoCalls++
	if q.infoCalls <= q.StaleReads {
		return form.Info{}, form.ErrStale
	}
	if q.InfoErr != nil {
		return form.Info{}, q.InfoErr
	}
	return q.Meta, nil
}

func (q *FormQuestion) SetElement(el form.Element) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.elements = append(q.elements, el)
}

func (q *FormQuestion) Answer(ctx context.Context, parts ...form.Part) error {
	q.mu.Lock()
	q.answerCalls = append(q.answerCalls, parts)
	fn := q.AnswerFunc
	q.mu.Unlock()
	if fn != nil {
		return fn(ctx, parts...)
	}
	return nil
}

// AnswerCalls returns the parts of every Answer call.
func (q *FormQuestion) AnswerCalls() [][]form.Part {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]form.Part(nil), q.answerCalls...)
}

// InfoCalls returns how many times Info was called.
func (q *FormQuestion) InfoCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.infoCalls
}

// Rebinds returns how many times the question was bound to a re-discovered element.
func (q *FormQuestion) Rebinds() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.elements)
}

// FormDriver is a scripted form.Driver that yields Questions in order.
type FormDriver struct {
	Link      string
	Questions []*FormQuestion

	// NextErr, when set, is returned by NextQuestion.
	NextErr error
	// RefreshFunc overrides RefreshElement. By default a non-nil element is returned.
	RefreshFunc func(ctx context.Context) (form.Element, error)
	// SkipErr, when set, is returned by Skip.
	SkipErr error
	// CloseErr, when set, is returned by Close.
	CloseErr error
	// Gate, when set, blocks NextQuestion until it is closed or ctx ends.
	Gate chan struct{}
	// Entered, when set, receives a value every time NextQuestion is entered.
	Entered chan struct{}

	mu        sync.Mutex
	pos       int
	starts    []bool
	skipped   []string
	closed    bool
	submitted bool
}

func (d *FormDriver) NextQuestion(ctx context.Context, start bool) (form.Question, bool, error) {
	if d.Entered != nil {
		d.Entered <- struct{}{}
	}
	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.starts = append(d.starts, start)
	if d.NextErr != nil {
		return nil, false, d.NextErr
	}
	if d.pos >= len(d.Questions) {
		d.submitted = true
		return nil, true, nil
	}
	q := d.Questions[d.pos]
	d.pos++
	return q, false, nil
}

func (d *FormDriver) RefreshElement(ctx context.Context) (form.Element, error) {
	if d.RefreshFunc != nil {
		return d.RefreshFunc(ctx)
	}
	return "element", nil
}

func (d *FormDriver) Skip(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SkipErr != nil {
		return d.SkipErr
	}
	if d.pos > 0 {
		d.skipped = append(d.skipped, d.Questions[d.pos-1].Meta.Header)
	}
	return nil
}

func (d *FormDriver) IdleLink() string {
	return d.Link
}

func (d *FormDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.CloseErr
}

func (d *FormDriver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Submitted reports whether the driver ran past the last question.
func (d *FormDriver) Submitted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitted
}

// Starts returns the start flag of every NextQuestion call.
func (d *FormDriver) Starts() []bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]bool(nil), d.starts...)
}

// Skipped returns the headers of skipped questions.
func (d *FormDriver) Skipped() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.skipped...)
}

// FormOpener hands out drivers built by Build and records every link it opened.
type FormOpener struct {
	Build   func(link string) *FormDriver
	OpenErr error

	mu      sync.Mutex
	opened  []string
	drivers []*FormDriver
}

func (o *FormOpener) Open(_ context.Context, link string) (form.Driver, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, link)
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	d := o.Build(link)
	if d.Link == "" {
		d.Link = link
	}
	o.drivers = append(o.drivers, d)
	return d, nil
}

func (o *FormOpener) Opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opened...)
}

// Drivers returns every driver handed out, in order.
func (o *FormOpener) Drivers() []*FormDriver {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*FormDriver(nil), o.drivers...)
}

// Last returns the most recently opened driver.
func (o *FormOpener) Last() *FormDriver {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.drivers) == 0 {
		return nil
	}
	return o.drivers[len(o.drivers)-1]
}
