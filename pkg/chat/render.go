package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"formpilot/pkg/form"
	"formpilot/pkg/session"
	"formpilot/pkg/traversal"
)

var (
	emptyAnswer = form.Answer{}
	skipAnswer  = form.Skip()
	yesNo       = [][]option{{{Label: "✅ Yes", Value: valueYes}, {Label: "❌ No", Value: valueNo}}}
)

// Question menu values.
const (
	valueSkip   = "skip"
	valueDone   = "done"
	prefixPick  = "pick:"
	prefixCheck = "toggle:"
	// selectedKey holds the ticked checkbox options, joined by selectedSep.
	selectedKey = "selected"
	selectedSep = "\x1f"
)

type option struct {
	Label string
	Value string
}

func buttons(m *session.Markup, rows [][]option) [][]Button {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]Button, 0, len(rows))
	for _, row := range rows {
		line := make([]Button, 0, len(row))
		for _, o := range row {
			line = append(line, Button{Label: o.Label, Data: m.Token(o.Value)})
		}
		out = append(out, line)
	}
	return out
}

// step returns a renderer for one engine call.
func (b *Bot) step(ctx context.Context, s *session.Session) func(traversal.Result, error) {
	return func(res traversal.Result, err error) {
		b.render(ctx, s, res, err)
	}
}

func (b *Bot) render(ctx context.Context, s *session.Session, res traversal.Result, err error) {
	switch res.Outcome {
	case traversal.OutcomeBusy, traversal.OutcomeStopped:
		// Logged by the engine; the in-flight step or the stop command answers the user.
		return
	case traversal.OutcomeIgnored:
		s.ClearMarkup()
		b.reply(ctx, s, "That option is no longer available. Use /fill to continue.")
	case traversal.OutcomeDone:
		s.ClearMarkup()
		text := "🥳 The form has been submitted successfully! 🥳"
		if res.AutoFilled > 0 {
			text += fmt.Sprintf("\n%d answer(s) were filled in from your saved preferences.", res.AutoFilled)
		}
		b.reply(ctx, s, text)
	case traversal.OutcomeFatal:
		s.ClearMarkup()
		b.reply(ctx, s, fatalText(res.Err))
	case traversal.OutcomeNeedsInput:
		b.renderQuestion(ctx, s, res.Info, res.Row, res.Invalid, nil)
	case traversal.OutcomeNeedsOther:
		text := "Please specify your alternative option:"
		if res.Invalid != nil {
			text = "⚠️ " + reason(res.Invalid) + "\n\n" + text
		}
		s.ClearMarkup()
		b.reply(ctx, s, text)
	case traversal.OutcomeNeedsConfirmation:
		b.sendMarkup(ctx, s, dialogConfirm, confirmText(res), yesNo)
	case traversal.OutcomeNeedsSaveConfirmation:
		b.sendMarkup(ctx, s, dialogSave,
			"💡 SAVE ANSWER PROMPT 💡\nWould you like me to save your answer to this question for future submissions?",
			yesNo)
	default:
		if err != nil {
			b.fail(ctx, s, err)
		}
	}
}

func fatalText(err error) string {
	switch {
	case errors.Is(err, session.ErrNoLink):
		return "Please set a form link first with /link <url>."
	case errors.Is(err, traversal.ErrFormUnavailable):
		return "🚨 I could not open the form. Please check the link and try again later."
	default:
		return GenericFailure
	}
}

// reason strips the sentinel prefix from validation errors.
func reason(err error) string {
	switch {
	case errors.Is(err, form.ErrRequired):
		return "Sorry, I can't allow you to skip this question because it is required 😢"
	case errors.Is(err, form.ErrInvalidAnswer):
		return strings.TrimPrefix(err.Error(), form.ErrInvalidAnswer.Error()+": ")
	default:
		return err.Error()
	}
}

func questionHeader(info form.Info) string {
	var sb strings.Builder
	sb.WriteString(info.Header)
	sb.WriteString("\n==============\n")
	if info.Description != "" {
		sb.WriteString(info.Description)
	} else {
		sb.WriteString("(no description)")
	}
	if info.Required {
		sb.WriteString("\n\nThis is a required question.")
	}
	return sb.String()
}

var formatHints = map[form.Kind]string{
	form.KindDate:     "YYYY-MM-DD",
	form.KindTime:     "HH:MM",
	form.KindDatetime: "YYYY-MM-DD HH:MM",
	form.KindDuration: "H:MM:SS",
}

// renderQuestion shows the current question, or one row of a grid, with its answer menu.
func (b *Bot) renderQuestion(ctx context.Context, s *session.Session, info form.Info, row string, invalid error, selected []string) {
	var sb strings.Builder
	sb.WriteString(questionHeader(info))
	if row != "" {
		fmt.Fprintf(&sb, "\n\nProcessing answer for %s.", row)
	}
	if invalid != nil {
		sb.WriteString("\n\n⚠️ ")
		sb.WriteString(reason(invalid))
	}

	verb := "input"
	if info.IsChoice() {
		verb = "select"
	}
	fmt.Fprintf(&sb, "\n\nPlease %s your answer.", verb)
	if hint, ok := formatHints[info.Kind]; ok {
		fmt.Fprintf(&sb, " Format: %s", hint)
	}
	if info.IsMulti() {
		sb.WriteString("\nTick every option that applies, then press Done.")
	}
	if !info.Required {
		if info.IsChoice() {
			sb.WriteString("\nTo skip the question, select the 'Skip' option or type '/skip'.")
		} else {
			sb.WriteString("\nTo skip the question, type '/skip'.")
		}
	}

	var rows [][]option
	if info.IsChoice() {
		rows = choiceRows(info, row != "", selected)
	}
	if !info.Required && info.IsChoice() {
		rows = append(rows, []option{{Label: "⏭️ Skip", Value: valueSkip}})
	}

	data := []string{}
	if len(selected) > 0 {
		data = append(data, selectedKey, strings.Join(selected, selectedSep))
	}
	if row != "" {
		data = append(data, "row", row)
	}
	b.sendMarkup(ctx, s, dialogQuestion, sb.String(), rows, data...)
}

func choiceRows(info form.Info, gridRow bool, selected []string) [][]option {
	labels := append([]string(nil), info.Options...)
	if info.HasOther && !gridRow && !contains(labels, form.OtherLabel) {
		labels = append(labels, form.OtherLabel)
	}

	rows := make([][]option, 0, len(labels)+1)
	for _, l := range labels {
		if info.IsMulti() {
			mark := "⬜ "
			if contains(selected, l) {
				mark = "✅ "
			}
			rows = append(rows, []option{{Label: mark + l, Value: prefixCheck + l}})
			continue
		}
		rows = append(rows, []option{{Label: l, Value: prefixPick + l}})
	}
	if info.IsMulti() {
		rows = append(rows, []option{{Label: "☑️ Done", Value: valueDone}})
	}
	return rows
}

func confirmText(res traversal.Result) string {
	answer := res.Pending.String()
	switch res.Suggestion {
	case traversal.SuggestSaved:
		return questionHeader(res.Info) +
			"\n\n💡 SAVED ANSWER DETECTED 💡\nI've previously saved the following answer:\n" + answer +
			"\nWould you like to submit this answer?"
	case traversal.SuggestClose:
		return questionHeader(res.Info) +
			"\n\n💡 ANSWER RECOMMENDATION 💡\nBased on the question, I recommend:\n" + answer +
			"\nWould you like to accept my recommendation?"
	}
	if res.Pending.IsSkip() {
		if res.Row != "" {
			return fmt.Sprintf("Are you sure you want to skip %s?", res.Row)
		}
		return "Are you sure you want to skip this question?"
	}
	if res.Row != "" {
		return fmt.Sprintf("Please confirm your answer for %s:\n%s", res.Row, answer)
	}
	return "Please confirm your answer:\n" + answer
}

// onQuestionChoice handles a button of the question menu.
func (b *Bot) onQuestionChoice(ctx context.Context, s *session.Session, m *session.Markup, value string) {
	_, info, _ := s.Current()
	if info == nil {
		s.ClearMarkup()
		b.reply(ctx, s, MenuExpired)
		return
	}

	switch {
	case value == valueSkip:
		b.step(ctx, s)(b.engine.Propose(ctx, s, skipAnswer))
	case strings.HasPrefix(value, prefixPick):
		b.step(ctx, s)(b.engine.Propose(ctx, s, form.Scalar(strings.TrimPrefix(value, prefixPick))))
	case strings.HasPrefix(value, prefixCheck):
		selected := toggle(splitSelected(m.Data[selectedKey]), strings.TrimPrefix(value, prefixCheck))
		b.renderQuestion(ctx, s, *info, m.Data["row"], nil, ordered(*info, selected))
	case value == valueDone:
		selected := splitSelected(m.Data[selectedKey])
		if len(selected) == 0 {
			b.step(ctx, s)(b.engine.Propose(ctx, s, skipAnswer))
			return
		}
		b.step(ctx, s)(b.engine.Propose(ctx, s, form.Tuple(ordered(*info, selected)...)))
	default:
		b.logger.Warn("user %d: unknown question menu value %q", s.UserID, value)
	}
}

// onTypedAnswer handles free text while a question waits for input.
func (b *Bot) onTypedAnswer(ctx context.Context, s *session.Session, text string) {
	_, info, _ := s.Current()
	if info != nil && info.IsChoice() {
		b.reply(ctx, s, "Sorry, please select your answer from the menu provided.")
		return
	}
	b.step(ctx, s)(b.engine.Propose(ctx, s, form.Scalar(text)))
}

func splitSelected(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, selectedSep)
}

func toggle(selected []string, v string) []string {
	out := make([]string, 0, len(selected)+1)
	found := false
	for _, s := range selected {
		if s == v {
			found = true
			continue
		}
		out = append(out, s)
	}
	if !found {
		out = append(out, v)
	}
	return out
}

// ordered sorts selected labels into option order, with Other last.
func ordered(info form.Info, selected []string) []string {
	out := make([]string, 0, len(selected))
	for _, opt := range info.Options {
		if contains(selected, opt) {
			out = append(out, opt)
		}
	}
	if contains(selected, form.OtherLabel) && !contains(out, form.OtherLabel) {
		out = append(out, form.OtherLabel)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
