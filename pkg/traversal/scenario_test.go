package traversal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formpilot/internal/mocks"
	"formpilot/pkg/form"
	"formpilot/pkg/prefs"
	"formpilot/pkg/session"
)

// TestRememberedChoiceCarriesToNewForm walks a two-question form, declines to save the first
// answer, always-saves the second, then opens a different form that reuses the second question.
func TestRememberedChoiceCarriesToNewForm(t *testing.T) {
	ctx := context.Background()
	q1 := textQ("How many?", true)
	q2 := choiceQ("Pick one", false, "A", "B")
	q3 := textQ("Anything else?", false)

	forms := map[string][]*mocks.FormQuestion{
		"https://forms.example/first":  {q1, q2},
		"https://forms.example/second": {q2, q3},
	}
	opener := &mocks.FormOpener{Build: func(link string) *mocks.FormDriver {
		return &mocks.FormDriver{Questions: forms[link]}
	}}
	engine := NewEngine(opener, nil)
	s := session.New(1, 1)
	require.NoError(t, s.SetLink("https://forms.example/first"))

	res, err := engine.Advance(ctx, s, Interactive, true)
	require.NoError(t, err)
	require.Equal(t, OutcomeNeedsInput, res.Outcome)
	require.Equal(t, "How many?", res.Info.Header)

	res, err = engine.SubmitAnswer(ctx, s, form.Scalar("5"), true)
	require.NoError(t, err)
	require.Equal(t, OutcomeNeedsSaveConfirmation, res.Outcome)

	res, err = engine.RecordSaveDecision(ctx, s, false)
	require.NoError(t, err)
	require.Equal(t, OutcomeNeedsInput, res.Outcome)
	require.Equal(t, "Pick one", res.Info.Header)

	require.NoError(t, s.Prefs().SetPolicy(q2.Meta.Identity, prefs.AlwaysSave))
	res, err = engine.SubmitAnswer(ctx, s, form.Scalar("A"), true)
	require.NoError(t, err)
	require.Equal(t, OutcomeDone, res.Outcome)

	m, err := s.Prefs().Lookup(q1.Meta.Identity)
	require.NoError(t, err)
	assert.Nil(t, m.Answer, "declined answer is not remembered")

	require.NoError(t, s.SetLink("https://forms.example/second"))
	res, err = engine.Advance(ctx, s, Interactive, true)
	require.NoError(t, err)
	require.Equal(t, OutcomeNeedsInput, res.Outcome)
	assert.Equal(t, "Anything else?", res.Info.Header)
	assert.Equal(t, 1, res.AutoFilled)

	assert.Equal(t, [][]form.Part{{{"A"}}, {{"A"}}}, q2.AnswerCalls())
}
