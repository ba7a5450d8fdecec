package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"formpilot/internal/mocks"
	"formpilot/internal/mocks/chatmock"
	"formpilot/pkg/chat"
	"formpilot/pkg/form"
	"formpilot/pkg/scheduler"
	"formpilot/pkg/session"
	"formpilot/pkg/traversal"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	userID = int64(42)
	chatID = int64(4200)
	link   = "https://forms.example/survey"
)

var wizardNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	bot       *chat.Bot
	transport *chatmock.Transport
	sessions  *session.Manager
	opener    *mocks.FormOpener
	jobs      *scheduler.Scheduler
}

func newFixture(t *testing.T, questions []*mocks.FormQuestion, opts ...chat.Option) *fixture {
	t.Helper()
	transport := chatmock.NewTransport()
	sessions := session.NewManager(session.NewMemoryStore())
	opener := &mocks.FormOpener{Build: func(string) *mocks.FormDriver {
		return &mocks.FormDriver{Questions: questions}
	}}
	jobs := scheduler.New(nil, scheduler.FirerFunc(func(context.Context, scheduler.Job) scheduler.FireOutcome {
		return scheduler.FireDone
	}))
	t.Cleanup(jobs.Close)

	opts = append([]chat.Option{chat.WithNow(func() time.Time { return wizardNow })}, opts...)
	return &fixture{
		bot:       chat.NewBot(transport, sessions, traversal.NewEngine(opener, nil), jobs, opts...),
		transport: transport,
		sessions:  sessions,
		opener:    opener,
		jobs:      jobs,
	}
}

func (f *fixture) say(text string) {
	f.bot.HandleUpdate(context.Background(), chat.NewTextUpdate(0, userID, chatID, text))
}

func (f *fixture) press(t *testing.T, label string) {
	t.Helper()
	u, ok := f.transport.Press(userID, chatID, label)
	require.True(t, ok, "no button %q in prompt %q", label, f.transport.Last().Text)
	f.bot.HandleUpdate(context.Background(), u)
}

func (f *fixture) last() string {
	return f.transport.Last().Text
}

func (f *fixture) session(t *testing.T) *session.Session {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), userID, chatID)
	require.NoError(t, err)
	return s
}

func labels(p chat.Prompt) []string {
	var out []string
	for _, row := range p.Buttons {
		for _, b := range row {
			out = append(out, b.Label)
		}
	}
	return out
}

func textQuestion(header string, required bool) *mocks.FormQuestion {
	return &mocks.FormQuestion{Meta: form.Info{
		Identity: form.Identity{Header: header, Required: required},
		Kind:     form.KindText,
	}}
}

func choiceQuestion(header string, kind form.Kind, required bool, options ...string) *mocks.FormQuestion {
	return &mocks.FormQuestion{Meta: form.Info{
		Identity: form.Identity{Header: header, Required: required},
		Kind:     kind,
		Options:  options,
	}}
}
