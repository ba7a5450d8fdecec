package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"formpilot/pkg/form"
	"formpilot/pkg/prefs"
	"formpilot/pkg/session"
)

const (
	valueGlobal    = "global"
	valueQuestions = "questions"
	valueClose     = "close"
	valueBack      = "back"
	valueForget    = "forget"
	prefixPolicy   = "policy:"
	prefixEntry    = "entry:"
	identityKey    = "identity"
)

func (b *Bot) showPrefsMenu(ctx context.Context, s *session.Session) {
	cache := s.Prefs()
	text := fmt.Sprintf("⚙️ PREFERENCES MENU ⚙️\n\n"+
		"Global save preference: %s\n"+
		"Questions with their own preference: %d\n\n"+
		"Please select an option:", cache.Global().Label(), cache.Len())
	b.sendMarkup(ctx, s, dialogPrefs, text, [][]option{
		{{Label: "🌐 Global preference", Value: valueGlobal}},
		{{Label: "📝 Question preferences", Value: valueQuestions}},
		{{Label: "❌ Close", Value: valueClose}},
	})
}

func policyRows() [][]option {
	rows := make([][]option, 0, len(prefs.Policies())+1)
	for _, p := range prefs.Policies() {
		rows = append(rows, []option{{Label: p.Label(), Value: prefixPolicy + string(p)}})
	}
	return rows
}

func (b *Bot) onPrefsChoice(ctx context.Context, s *session.Session, m *session.Markup, value string) {
	switch {
	case value == valueClose:
		s.ClearMarkup()
		b.reply(ctx, s, "Preferences closed.")
	case value == valueBack:
		b.showPrefsMenu(ctx, s)
	case value == valueGlobal:
		rows := append(policyRows(), []option{{Label: "🔙 Back", Value: valueBack}})
		b.sendMarkup(ctx, s, dialogPrefsGlobal,
			"Current global save preference: "+s.Prefs().Global().Label()+"\n\n"+
				"It applies to questions you have not set a preference for.\nPlease select an option:",
			rows)
	case value == valueQuestions:
		b.showQuestionPrefs(ctx, s)
	case strings.HasPrefix(value, prefixEntry):
		b.showEntry(ctx, s, strings.TrimPrefix(value, prefixEntry))
	case strings.HasPrefix(value, prefixPolicy):
		p, err := prefs.ParsePolicy(strings.TrimPrefix(value, prefixPolicy))
		if err != nil {
			b.fail(ctx, s, err)
			return
		}
		b.applyPolicy(ctx, s, m, p)
	case value == valueForget && m.Dialog == dialogPrefsEntry:
		id, err := decodeIdentity(m.Data[identityKey])
		if err != nil {
			b.fail(ctx, s, err)
			return
		}
		s.ClearMarkup()
		if s.Prefs().ForgetAnswer(id) {
			b.reply(ctx, s, fmt.Sprintf("🗑️ Saved answer for %q forgotten.", id.Header))
			return
		}
		b.reply(ctx, s, fmt.Sprintf("There is no saved answer for %q.", id.Header))
	default:
		b.logger.Warn("user %d: unknown preference menu value %q", s.UserID, value)
	}
}

func (b *Bot) applyPolicy(ctx context.Context, s *session.Session, m *session.Markup, p prefs.Policy) {
	s.ClearMarkup()
	switch m.Dialog {
	case dialogPrefsGlobal:
		if err := s.Prefs().SetGlobal(p); err != nil {
			b.fail(ctx, s, err)
			return
		}
		b.reply(ctx, s, "✅ Global save preference set to: "+p.Label())
	case dialogPrefsEntry:
		id, err := decodeIdentity(m.Data[identityKey])
		if err != nil {
			b.fail(ctx, s, err)
			return
		}
		if err := s.Prefs().SetPolicy(id, p); err != nil {
			b.fail(ctx, s, err)
			return
		}
		b.reply(ctx, s, fmt.Sprintf("✅ Save preference for %q set to: %s", id.Header, p.Label()))
	default:
		b.logger.Warn("user %d: policy chosen from %q", s.UserID, m.Dialog)
	}
}

func (b *Bot) showQuestionPrefs(ctx context.Context, s *session.Session) {
	entries := s.Prefs().Entries()
	if len(entries) == 0 {
		b.sendMarkup(ctx, s, dialogPrefsQuestions,
			"⚠️ NO QUESTIONS DETECTED ⚠️\nAnswer a form first; every question you submit shows up here.",
			[][]option{{{Label: "🔙 Back", Value: valueBack}}})
		return
	}
	rows := make([][]option, 0, len(entries)+1)
	for i, e := range entries {
		rows = append(rows, []option{{Label: e.Identity.Header, Value: prefixEntry + strconv.Itoa(i)}})
	}
	rows = append(rows, []option{{Label: "🔙 Back", Value: valueBack}})
	b.sendMarkup(ctx, s, dialogPrefsQuestions, "🔍 Please select a question:", rows)
}

func (b *Bot) showEntry(ctx context.Context, s *session.Session, idx string) {
	entries := s.Prefs().Entries()
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 || i >= len(entries) {
		s.ClearMarkup()
		b.reply(ctx, s, MenuExpired)
		return
	}
	e := entries[i]
	raw, err := json.Marshal(e.Identity)
	if err != nil {
		b.fail(ctx, s, err)
		return
	}

	saved := "(none)"
	if e.Answer != nil && !e.Answer.IsEmpty() {
		saved = e.Answer.String()
	}
	text := questionHeader(form.Info{Identity: e.Identity}) +
		"\n\nSave preference: " + e.Policy.Label() +
		"\nSaved answer: " + saved

	rows := policyRows()
	if e.Answer != nil {
		rows = append(rows, []option{{Label: "🗑️ Forget saved answer", Value: valueForget}})
	}
	rows = append(rows, []option{{Label: "🔙 Back", Value: valueBack}})
	b.sendMarkup(ctx, s, dialogPrefsEntry, text, rows, identityKey, string(raw))
}

func decodeIdentity(raw string) (form.Identity, error) {
	var id form.Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return id, fmt.Errorf("failed to decode question identity: %w", err)
	}
	return id, nil
}
