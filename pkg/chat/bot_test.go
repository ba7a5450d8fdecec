package chat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formpilot/internal/mocks"
	"formpilot/pkg/chat"
	"formpilot/pkg/form"
	"formpilot/pkg/prefs"
	"formpilot/pkg/traversal"
)

func TestFillWalksTheForm(t *testing.T) {
	name := textQuestion("Name", true)
	colour := choiceQuestion("Colour", form.KindRadio, false, "Red", "Blue")
	f := newFixture(t, []*mocks.FormQuestion{name, colour})

	f.say("/link " + link)
	assert.Contains(t, f.last(), "Form link saved")

	f.say("/fill")
	assert.Contains(t, f.last(), "Name\n==============\n(no description)")
	assert.Contains(t, f.last(), "This is a required question.")
	assert.Contains(t, f.last(), "Please input your answer.")

	f.say("Alice")
	assert.Equal(t, "Please confirm your answer:\nAlice", f.last())

	f.press(t, "Yes")
	assert.Contains(t, f.last(), "SAVE ANSWER PROMPT")

	f.press(t, "Yes")
	assert.Contains(t, f.last(), "Colour")
	assert.Equal(t, []string{"Red", "Blue", "⏭️ Skip"}, labels(f.transport.Last()))

	f.press(t, "Blue")
	assert.Equal(t, "Please confirm your answer:\nBlue", f.last())
	f.press(t, "Yes")
	f.press(t, "No")
	assert.Contains(t, f.last(), "submitted successfully")

	assert.Equal(t, [][]form.Part{{{"Alice"}}}, name.AnswerCalls())
	assert.Equal(t, [][]form.Part{{{"Blue"}}}, colour.AnswerCalls())
	assert.True(t, f.opener.Last().Submitted())

	s := f.session(t)
	assert.False(t, s.HasActiveDriver())
	m, err := s.Prefs().Lookup(name.Meta.Identity)
	require.NoError(t, err)
	require.True(t, m.HasAnswer())
	assert.Equal(t, "Alice", m.Answer.Value)
	m, err = s.Prefs().Lookup(colour.Meta.Identity)
	require.NoError(t, err)
	assert.False(t, m.HasAnswer())
}

func TestFillWithoutLink(t *testing.T) {
	f := newFixture(t, nil)
	f.say("/fill")
	assert.Equal(t, "Please set a form link first with /link <url>.", f.last())
	assert.Empty(t, f.opener.Opened())
}

func TestRejectedAnswerReprompts(t *testing.T) {
	f := newFixture(t, []*mocks.FormQuestion{textQuestion("Name", true)})
	f.say("/link " + link)
	f.say("/fill")
	f.say("Alicia")
	f.press(t, "No")
	assert.Contains(t, f.last(), "Please input your answer.")

	f.say("Alice")
	assert.Equal(t, "Please confirm your answer:\nAlice", f.last())
}

func TestStaleMenuIsRejected(t *testing.T) {
	f := newFixture(t, []*mocks.FormQuestion{choiceQuestion("Colour", form.KindRadio, true, "Red", "Blue")})
	f.say("/link " + link)
	f.say("/fill")

	stale, ok := f.transport.Press(userID, chatID, "Red")
	require.True(t, ok)

	// Re-rendering the question issues a fresh token scope.
	f.say("/fill")
	f.bot.HandleUpdate(context.Background(), stale)

	acks := f.transport.Acks()
	require.NotEmpty(t, acks)
	assert.Equal(t, chat.MenuExpired, acks[len(acks)-1].Text)
	assert.Equal(t, traversal.StateAwaitInput, f.session(t).State())

	f.press(t, "Red")
	assert.Equal(t, "Please confirm your answer:\nRed", f.last())
}

func TestCallbackWithoutMenuExpires(t *testing.T) {
	f := newFixture(t, nil)
	f.bot.HandleUpdate(context.Background(), chat.Update{
		UserID: userID, ChatID: chatID, Callback: &chat.Callback{ID: "cb", Data: "abc:0"},
	})
	require.Len(t, f.transport.Acks(), 1)
	assert.Equal(t, chat.MenuExpired, f.transport.Acks()[0].Text)
}

func TestRequiredQuestionCannotBeSkipped(t *testing.T) {
	f := newFixture(t, []*mocks.FormQuestion{textQuestion("Name", true)})
	f.say("/link " + link)
	f.say("/fill")
	f.say("/skip")
	assert.Contains(t, f.last(), "can't allow you to skip this question because it is required")
	assert.Contains(t, f.last(), "Please input your answer.")
}

func TestOptionalQuestionSkip(t *testing.T) {
	colour := choiceQuestion("Colour", form.KindRadio, false, "Red")
	f := newFixture(t, []*mocks.FormQuestion{colour})
	f.say("/link " + link)
	f.say("/fill")
	f.press(t, "Skip")
	assert.Equal(t, "Are you sure you want to skip this question?", f.last())
	f.press(t, "Yes")
	f.press(t, "No")
	assert.Contains(t, f.last(), "submitted successfully")
	assert.Equal(t, []string{"Colour"}, f.opener.Last().Skipped())
}

func TestChoiceQuestionRequiresMenu(t *testing.T) {
	f := newFixture(t, []*mocks.FormQuestion{choiceQuestion("Colour", form.KindDropdown, true, "Red")})
	f.say("/link " + link)
	f.say("/fill")
	f.say("Red")
	assert.Equal(t, "Sorry, please select your answer from the menu provided.", f.last())
}

func TestInvalidDateReprompts(t *testing.T) {
	q := &mocks.FormQuestion{Meta: form.Info{Identity: form.Identity{Header: "When"}, Kind: form.KindDate}}
	f := newFixture(t, []*mocks.FormQuestion{q})
	f.say("/link " + link)
	f.say("/fill")
	assert.Contains(t, f.last(), "Format: YYYY-MM-DD")

	f.say("tomorrow")
	assert.Contains(t, f.last(), "⚠️")
	assert.Contains(t, f.last(), "does not match")

	f.say("2026-03-02")
	assert.Equal(t, "Please confirm your answer:\n2026-03-02", f.last())
}

func TestCheckboxToggles(t *testing.T) {
	fruit := choiceQuestion("Fruit", form.KindCheckbox, true, "Apples", "Bananas", "Cherries")
	f := newFixture(t, []*mocks.FormQuestion{fruit})
	f.say("/link " + link)
	f.say("/fill")

	f.press(t, "Cherries")
	f.press(t, "Apples")
	f.press(t, "Bananas")
	f.press(t, "Bananas")
	assert.Equal(t, []string{"✅ Apples", "⬜ Bananas", "✅ Cherries", "☑️ Done"}, labels(f.transport.Last()))

	f.press(t, "Done")
	assert.Equal(t, "Please confirm your answer:\nApples, Cherries", f.last())
	f.press(t, "Yes")
	f.press(t, "No")
	assert.Equal(t, [][]form.Part{{{"Apples"}, {"Cherries"}}}, fruit.AnswerCalls())
}

func TestOtherOptionAsksForText(t *testing.T) {
	colour := choiceQuestion("Colour", form.KindRadio, true, "Red")
	colour.Meta.HasOther = true
	f := newFixture(t, []*mocks.FormQuestion{colour})
	f.say("/link " + link)
	f.say("/fill")
	assert.Equal(t, []string{"Red", "Other"}, labels(f.transport.Last()))

	f.press(t, "Other")
	assert.Equal(t, "Please specify your alternative option:", f.last())

	f.say("Green")
	assert.Equal(t, "Please confirm your answer:\nGreen", f.last())
	f.press(t, "Yes")
	f.press(t, "No")
	assert.Equal(t, [][]form.Part{{{"Green"}}}, colour.AnswerCalls())
}

func TestSavedAnswerIsSuggested(t *testing.T) {
	name := textQuestion("Name", true)
	f := newFixture(t, []*mocks.FormQuestion{name})
	s := f.session(t)
	a := form.Scalar("Alice")
	require.NoError(t, s.Prefs().Record(name.Meta.Identity, prefs.AskAgain, &a))

	f.say("/link " + link)
	f.say("/fill")
	assert.Contains(t, f.last(), "SAVED ANSWER DETECTED")
	assert.Contains(t, f.last(), "Alice")

	f.press(t, "Yes")
	f.press(t, "Yes")
	assert.Contains(t, f.last(), "submitted successfully")
	assert.Equal(t, [][]form.Part{{{"Alice"}}}, name.AnswerCalls())
}

func TestAlwaysSaveAutoFills(t *testing.T) {
	name := textQuestion("Name", true)
	f := newFixture(t, []*mocks.FormQuestion{name})
	s := f.session(t)
	a := form.Scalar("Alice")
	require.NoError(t, s.Prefs().Record(name.Meta.Identity, prefs.AlwaysSave, &a))

	f.say("/link " + link)
	f.say("/fill")
	assert.Contains(t, f.last(), "submitted successfully")
	assert.Contains(t, f.last(), "1 answer(s) were filled in")
}

func TestStopReleasesDriver(t *testing.T) {
	f := newFixture(t, []*mocks.FormQuestion{textQuestion("Name", true)})
	f.say("/link " + link)
	f.say("/fill")
	require.True(t, f.session(t).HasActiveDriver())

	f.say("/stop")
	assert.Contains(t, f.last(), "Thank you for using formpilot")
	s := f.session(t)
	assert.False(t, s.HasActiveDriver())
	assert.Equal(t, link, s.Link())
	assert.True(t, f.opener.Last().Closed())
	assert.Nil(t, s.Markup())
}

func TestLinkValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.say("/link")
	assert.Contains(t, f.last(), "/link <url>")

	f.say("/link ftp://forms.example/x")
	assert.Contains(t, f.last(), "is not a valid form link")
	assert.Empty(t, f.session(t).Link())

	f.say("/start " + link)
	assert.Contains(t, f.last(), "Form link saved")
	assert.Equal(t, link, f.session(t).Link())

	f.say("/link")
	assert.Contains(t, f.last(), link)
}

func TestLinkCannotChangeWhileFilling(t *testing.T) {
	f := newFixture(t, []*mocks.FormQuestion{textQuestion("Name", true)})
	f.say("/link " + link)
	f.say("/fill")
	f.say("/link https://forms.example/other")
	assert.Contains(t, f.last(), "Please /stop it first")
}

func TestNoticesAreDeliveredFirst(t *testing.T) {
	f := newFixture(t, nil)
	f.session(t).AddNotice("🚨 Scheduled job failed")
	f.say("/help")

	texts := f.transport.Texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "🚨 Scheduled job failed", texts[0])
	assert.Contains(t, texts[1], "COMMANDS")

	f.say("/help")
	assert.Len(t, f.transport.Texts(), 3)
}

func TestAllowedUsers(t *testing.T) {
	f := newFixture(t, nil, chat.WithAllowedUsers(7))
	f.say("/start")
	assert.Equal(t, chat.NotAllowed, f.last())
}

func TestUnknownInput(t *testing.T) {
	f := newFixture(t, nil)
	f.say("/dance")
	assert.Contains(t, f.last(), "the /dance command means")
	f.say("hello there")
	assert.Contains(t, f.last(), "what hello there means")
}

func TestSendFailureDoesNotPanic(t *testing.T) {
	f := newFixture(t, nil)
	f.transport.FailSendWith(mocks.ErrMockFailure)
	assert.NotPanics(t, func() { f.say("/help") })
}

func TestPrefsMenu(t *testing.T) {
	name := textQuestion("Name", true)
	f := newFixture(t, nil)
	s := f.session(t)
	a := form.Scalar("Alice")
	require.NoError(t, s.Prefs().Record(name.Meta.Identity, prefs.AskAgain, &a))

	f.say("/prefs")
	assert.Contains(t, f.last(), "Global save preference: Ask every time")
	f.press(t, "Global preference")
	f.press(t, "Always save")
	assert.Equal(t, prefs.AlwaysSave, s.Prefs().Global())

	f.say("/prefs")
	f.press(t, "Question preferences")
	f.press(t, "Name")
	assert.Contains(t, f.last(), "Saved answer: Alice")
	f.press(t, "Never save")
	m, err := s.Prefs().Lookup(name.Meta.Identity)
	require.NoError(t, err)
	assert.Equal(t, prefs.NeverSave, m.Policy)
	assert.False(t, m.HasAnswer())
}

func TestPrefsForgetAnswer(t *testing.T) {
	id := form.Identity{Header: "Name"}
	f := newFixture(t, nil)
	s := f.session(t)
	a := form.Scalar("Alice")
	require.NoError(t, s.Prefs().Record(id, prefs.AlwaysSave, &a))

	f.say("/prefs")
	f.press(t, "Question preferences")
	f.press(t, "Name")
	f.press(t, "Forget saved answer")
	assert.Contains(t, f.last(), "forgotten")

	m, err := s.Prefs().Lookup(id)
	require.NoError(t, err)
	assert.Equal(t, prefs.AlwaysSave, m.Policy)
	assert.False(t, m.HasAnswer())
}

func TestResetClearsEverything(t *testing.T) {
	f := newFixture(t, nil)
	f.say("/link " + link)
	f.say("/schedule")
	f.press(t, "Daily")
	f.say("2026-03-02 10:00")
	f.press(t, "Yes")
	require.Len(t, f.jobs.ListRemovable(userID), 1)

	f.say("/reset")
	f.press(t, "No")
	assert.Equal(t, link, f.session(t).Link())

	f.say("/reset")
	f.press(t, "Yes")
	assert.Contains(t, f.last(), "has been reset")
	assert.Empty(t, f.session(t).Link())
	assert.Empty(t, f.jobs.ListRemovable(userID))
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in, cmd, args string
		ok            bool
	}{
		{"/start", "start", "", true},
		{"/Link https://x.example", "link", "https://x.example", true},
		{"/fill@formpilot_bot", "fill", "", true},
		{"  /skip  ", "skip", "", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			cmd, args, ok := chat.ParseCommand(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.args, args)
		})
	}
}
