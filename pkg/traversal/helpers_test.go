package traversal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"formpilot/internal/mocks"
	"formpilot/pkg/form"
	"formpilot/pkg/session"
)

const testLink = "https://forms.example/f"

type recordingObserver struct {
	mu        sync.Mutex
	steps     []string
	autofills []string
	fatals    []string
}

func (o *recordingObserver) ObserveStep(mode, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, mode+":"+outcome)
}

func (o *recordingObserver) ObserveAutofill(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.autofills = append(o.autofills, reason)
}

func (o *recordingObserver) ObserveFatal(mode, kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fatals = append(o.fatals, mode+":"+kind)
}

type fixture struct {
	engine   *Engine
	session  *session.Session
	opener   *mocks.FormOpener
	observer *recordingObserver
}

// newFixture wires an engine to an opener whose drivers yield questions in order.
func newFixture(t *testing.T, questions ...*mocks.FormQuestion) *fixture {
	t.Helper()
	opener := &mocks.FormOpener{Build: func(link string) *mocks.FormDriver {
		return &mocks.FormDriver{Link: link, Questions: questions}
	}}
	obs := &recordingObserver{}
	s := session.New(1, 100)
	require.NoError(t, s.SetLink(testLink))
	return &fixture{engine: NewEngine(opener, obs), session: s, opener: opener, observer: obs}
}

func textQ(header string, required bool) *mocks.FormQuestion {
	return &mocks.FormQuestion{Meta: form.Info{
		Identity: form.Identity{Header: header, Required: required},
		Kind:     form.KindText,
	}}
}

func choiceQ(header string, required bool, options ...string) *mocks.FormQuestion {
	return &mocks.FormQuestion{Meta: form.Info{
		Identity: form.Identity{Header: header, Required: required},
		Kind:     form.KindRadio,
		Options:  options,
	}}
}

func gridQ(header string, rows, columns []string) *mocks.FormQuestion {
	return &mocks.FormQuestion{Meta: form.Info{
		Identity: form.Identity{Header: header, Required: true},
		Kind:     form.KindRadioGrid,
		Options:  columns,
		Rows:     rows,
	}}
}

func answerPtr(a form.Answer) *form.Answer { return &a }

// requireIdle asserts the session was torn down cleanly with its link restored.
func requireIdle(t *testing.T, s *session.Session) {
	t.Helper()
	require.False(t, s.HasActiveDriver())
	require.Equal(t, testLink, s.Link())
	q, _, a := s.Current()
	require.Nil(t, q)
	require.Nil(t, a)
	require.Nil(t, s.Markup())
}
