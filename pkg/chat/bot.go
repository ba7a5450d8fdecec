package chat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"formpilot/pkg/logx"
	"formpilot/pkg/scheduler"
	"formpilot/pkg/session"
	"formpilot/pkg/traversal"
)

// Fixed replies.
const (
	MenuExpired    = "Menu expired"
	GenericFailure = "🚨 Something went wrong. Please try again later."
	NotAllowed     = "Sorry, this bot is private."
)

// Dialog names carried by session.Markup.
const (
	dialogQuestion        = "question"
	dialogConfirm         = "confirm"
	dialogSave            = "save"
	dialogReset           = "reset"
	dialogPrefs           = "prefs"
	dialogPrefsGlobal     = "prefs_global"
	dialogPrefsQuestions  = "prefs_questions"
	dialogPrefsEntry      = "prefs_entry"
	dialogCadence         = "cadence"
	dialogCustomPeriod    = "custom_period"
	dialogStartTime       = "start_time"
	dialogScheduleConfirm = "schedule_confirm"
	dialogJobs            = "jobs"
	dialogJobRemove       = "job_remove"
)

const (
	valueYes = "yes"
	valueNo  = "no"
)

// Jobs is the part of the scheduler the bot drives.
type Jobs interface {
	Schedule(ctx context.Context, userID int64, c scheduler.Cadence, start time.Time) (scheduler.Job, error)
	Cancel(ctx context.Context, userID int64, id string) error
	CancelAll(ctx context.Context, userID int64) (int, error)
	ListRemovable(userID int64) []scheduler.Job
}

// UpdateObserver counts handled updates.
type UpdateObserver interface {
	ObserveUpdate(kind string)
}

// Option configures a Bot.
type Option func(*Bot)

// WithAllowedUsers restricts the bot to the given user IDs. An empty list allows everyone.
func WithAllowedUsers(ids ...int64) Option {
	return func(b *Bot) {
		if len(ids) == 0 {
			return
		}
		b.allowed = make(map[int64]bool, len(ids))
		for _, id := range ids {
			b.allowed[id] = true
		}
	}
}

// WithObserver reports every handled update.
func WithObserver(o UpdateObserver) Option {
	return func(b *Bot) { b.observer = o }
}

// WithNow replaces the clock used by the schedule wizard.
func WithNow(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

// Bot routes updates to the traversal engine, the preference cache and the scheduler.
type Bot struct {
	transport Transport
	sessions  *session.Manager
	engine    *traversal.Engine
	jobs      Jobs
	observer  UpdateObserver
	allowed   map[int64]bool
	now       func() time.Time
	logger    *logx.Logger
}

func NewBot(transport Transport, sessions *session.Manager, engine *traversal.Engine, jobs Jobs, opts ...Option) *Bot {
	b := &Bot{
		transport: transport,
		sessions:  sessions,
		engine:    engine,
		jobs:      jobs,
		now:       time.Now,
		logger:    logx.NewLogger("bot"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleUpdate processes one update. Pending notices are delivered before the reply.
func (b *Bot) HandleUpdate(ctx context.Context, u Update) {
	if b.observer != nil {
		b.observer.ObserveUpdate(u.Kind())
	}
	if b.allowed != nil && !b.allowed[u.UserID] {
		b.logger.Warn("rejected update from user %d", u.UserID)
		b.send(ctx, u.ChatID, Prompt{Text: NotAllowed})
		return
	}

	s, err := b.sessions.Get(ctx, u.UserID, u.ChatID)
	if err != nil {
		b.logger.Error("user %d: %v", u.UserID, err)
		b.send(ctx, u.ChatID, Prompt{Text: GenericFailure})
		return
	}

	for _, notice := range s.TakeNotices() {
		b.send(ctx, u.ChatID, Prompt{Text: notice})
	}

	switch {
	case u.Callback != nil:
		b.handleCallback(ctx, s, u)
	case u.Command != "":
		b.handleCommand(ctx, s, u)
	default:
		b.handleText(ctx, s, u)
	}

	if err := b.sessions.Persist(ctx, s); err != nil {
		b.logger.Error("user %d: %v", u.UserID, err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, s *session.Session, u Update) {
	logx.Debug(ctx, "chat", "user %d: /%s", s.UserID, u.Command)
	switch u.Command {
	case "start":
		b.cmdStart(ctx, s, u.Args)
	case "help":
		b.reply(ctx, s, helpText)
	case "link":
		b.cmdLink(ctx, s, u.Args)
	case "fill":
		b.cmdFill(ctx, s)
	case "stop":
		b.cmdStop(ctx, s)
	case "skip":
		b.cmdSkip(ctx, s)
	case "reset":
		b.cmdReset(ctx, s)
	case "prefs":
		b.showPrefsMenu(ctx, s)
	case "schedule":
		b.startScheduleWizard(ctx, s)
	case "jobs":
		b.showJobs(ctx, s)
	default:
		b.reply(ctx, s, fmt.Sprintf("😰 Sorry, I'm not programmed to understand what the /%s command means. 😰", u.Command))
	}
}

func (b *Bot) handleCallback(ctx context.Context, s *session.Session, u Update) {
	m := s.Markup()
	if m == nil {
		b.ack(ctx, u.Callback.ID, MenuExpired)
		return
	}
	value, ok := m.Resolve(u.Callback.Data)
	if !ok {
		b.ack(ctx, u.Callback.ID, MenuExpired)
		return
	}
	b.ack(ctx, u.Callback.ID, "")
	logx.Debug(ctx, "chat", "user %d: %s -> %s", s.UserID, m.Dialog, value)

	switch m.Dialog {
	case dialogQuestion:
		b.onQuestionChoice(ctx, s, m, value)
	case dialogConfirm:
		b.step(ctx, s)(b.engine.SubmitAnswer(ctx, s, emptyAnswer, value == valueYes))
	case dialogSave:
		b.step(ctx, s)(b.engine.RecordSaveDecision(ctx, s, value == valueYes))
	case dialogReset:
		b.onResetConfirm(ctx, s, value == valueYes)
	case dialogPrefs, dialogPrefsGlobal, dialogPrefsQuestions, dialogPrefsEntry:
		b.onPrefsChoice(ctx, s, m, value)
	case dialogCadence, dialogStartTime, dialogScheduleConfirm:
		b.onScheduleChoice(ctx, s, m, value)
	case dialogJobs, dialogJobRemove:
		b.onJobsChoice(ctx, s, m, value)
	default:
		b.logger.Warn("user %d: callback for unknown dialog %q", s.UserID, m.Dialog)
	}
}

func (b *Bot) handleText(ctx context.Context, s *session.Session, u Update) {
	text := strings.TrimSpace(u.Text)
	if m := s.Markup(); m != nil {
		switch m.Dialog {
		case dialogCustomPeriod:
			b.onCustomPeriod(ctx, s, text)
			return
		case dialogStartTime:
			b.onStartTime(ctx, s, m, text)
			return
		}
	}

	switch s.State() {
	case traversal.StateAwaitOther:
		b.step(ctx, s)(b.engine.ProvideOther(ctx, s, text))
	case traversal.StateAwaitInput:
		b.onTypedAnswer(ctx, s, text)
	default:
		b.reply(ctx, s, fmt.Sprintf("😰 Sorry, I'm not programmed to understand what %s means. 😰", text))
	}
}

func (b *Bot) cmdStart(ctx context.Context, s *session.Session, args string) {
	b.reply(ctx, s, greeting)
	if args != "" {
		b.cmdLink(ctx, s, args)
	}
}

func (b *Bot) cmdLink(ctx context.Context, s *session.Session, raw string) {
	if raw == "" {
		if link := s.Link(); link != "" {
			b.reply(ctx, s, "Your current form link is:\n"+link)
			return
		}
		b.reply(ctx, s, "Please send the link together with the command: /link <url>")
		return
	}
	link, err := ValidateLink(raw)
	if err != nil {
		b.reply(ctx, s, "⚠️ "+err.Error())
		return
	}
	if err := s.SetLink(link); err != nil {
		if errors.Is(err, session.ErrDriverActive) {
			b.reply(ctx, s, "A form is being filled right now. Please /stop it first.")
			return
		}
		b.fail(ctx, s, err)
		return
	}
	b.reply(ctx, s, "🔗 Form link saved! Use /fill to start filling it in.")
}

func (b *Bot) cmdFill(ctx context.Context, s *session.Session) {
	if s.Link() == "" && !s.HasActiveDriver() {
		b.reply(ctx, s, "Please set a form link first with /link <url>.")
		return
	}
	s.ClearMarkup()
	b.step(ctx, s)(b.engine.Advance(ctx, s, traversal.Interactive, true))
}

func (b *Bot) cmdStop(ctx context.Context, s *session.Session) {
	if err := b.engine.Stop(ctx, s); err != nil {
		b.logger.Warn("user %d: %v", s.UserID, err)
	}
	s.ClearMarkup()
	b.reply(ctx, s, "🎉 Thank you for using formpilot! 🎉\n👋 Hope to see you again soon! 👋")
}

func (b *Bot) cmdSkip(ctx context.Context, s *session.Session) {
	if s.State() != traversal.StateAwaitInput {
		b.reply(ctx, s, "There is no question to skip right now.")
		return
	}
	b.step(ctx, s)(b.engine.Propose(ctx, s, skipAnswer))
}

func (b *Bot) cmdReset(ctx context.Context, s *session.Session) {
	b.sendMarkup(ctx, s, dialogReset,
		"⚠️ IRREVERSIBLE ACTION WARNING ⚠️\n"+
			"Are you sure you want to reset?\n"+
			"Your link, saved answers and scheduled jobs will be removed.",
		yesNo)
}

func (b *Bot) onResetConfirm(ctx context.Context, s *session.Session, yes bool) {
	s.ClearMarkup()
	if !yes {
		b.reply(ctx, s, "Reset cancelled.")
		return
	}
	if b.jobs != nil {
		if _, err := b.jobs.CancelAll(ctx, s.UserID); err != nil {
			b.logger.Error("user %d: %v", s.UserID, err)
		}
	}
	if err := b.sessions.Reset(ctx, s); err != nil {
		b.logger.Error("user %d: %v", s.UserID, err)
	}
	b.reply(ctx, s, "🔁 The bot has been reset. 🔁\n"+greeting)
}

// ValidateLink accepts absolute http(s) URLs.
func ValidateLink(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%q is not a valid form link", raw)
	}
	return u.String(), nil
}

// reply sends a plain message.
func (b *Bot) reply(ctx context.Context, s *session.Session, text string) {
	b.send(ctx, s.ChatID(), Prompt{Text: text})
}

// sendMarkup issues a prompt under a fresh token scope; older menus expire.
func (b *Bot) sendMarkup(ctx context.Context, s *session.Session, dialog, text string, rows [][]option, data ...string) *session.Markup {
	m := session.NewMarkup(dialog)
	for i := 0; i+1 < len(data); i += 2 {
		m.Data[data[i]] = data[i+1]
	}
	s.SetMarkup(m)
	b.send(ctx, s.ChatID(), Prompt{Text: text, Buttons: buttons(m, rows)})
	return m
}

func (b *Bot) send(ctx context.Context, chatID int64, p Prompt) {
	if err := b.transport.Send(ctx, chatID, p); err != nil {
		b.logger.Error("chat %d: failed to send message: %v", chatID, err)
	}
}

func (b *Bot) ack(ctx context.Context, id, text string) {
	if err := b.transport.Ack(ctx, id, text); err != nil {
		b.logger.Warn("failed to answer callback %s: %v", id, err)
	}
}

func (b *Bot) fail(ctx context.Context, s *session.Session, err error) {
	b.logger.Error("user %d: %v", s.UserID, err)
	s.ClearMarkup()
	b.reply(ctx, s, GenericFailure)
}

const greeting = "👋 Welcome to formpilot! 👋\n" +
	"I fill in Google Forms for you, remember your answers and can submit forms on a schedule.\n" +
	"Send /link <url> to set your form, then /fill to start. /help lists everything I can do."

const helpText = "📖 COMMANDS 📖\n" +
	"/link <url> - set the form link\n" +
	"/fill - fill in the form\n" +
	"/skip - skip the current question\n" +
	"/stop - stop filling the form\n" +
	"/prefs - manage saved answers\n" +
	"/schedule - submit the form on a schedule\n" +
	"/jobs - list or remove scheduled submissions\n" +
	"/reset - forget everything about you"
