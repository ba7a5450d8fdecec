package form

import "context"

// Driver walks one live form instance.
type Driver interface {
	// NextQuestion returns the next question. done is true once the form has been submitted.
	// start is set for the first call after the driver is opened.
	NextQuestion(ctx context.Context, start bool) (q Question, done bool, err error)
	// RefreshElement re-discovers the current question element. A nil Element means it is gone.
	RefreshElement(ctx context.Context) (Element, error)
	// Skip leaves the current question unanswered.
	Skip(ctx context.Context) error
	// IdleLink is the link the driver was opened from.
	IdleLink() string
	Close() error
}

// Opener creates drivers from an idle form link.
type Opener interface {
	Open(ctx context.Context, link string) (Driver, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, link string) (Driver, error)

func (f OpenerFunc) Open(ctx context.Context, link string) (Driver, error) {
	return f(ctx, link)
}
