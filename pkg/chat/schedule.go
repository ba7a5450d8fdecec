package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"formpilot/pkg/scheduler"
	"formpilot/pkg/session"
)

const (
	cadenceKey   = "cadence"
	startKey     = "start"
	jobKey       = "job"
	valueNow     = "now"
	prefixKind   = "kind:"
	prefixJob    = "job:"
	kindCustom   = string(scheduler.KindCustom)
	startPrompt  = "Please send your start date and time as YYYY-MM-DD HH:MM.\nNOTE: Convert your time into UTC first."
	periodPrompt = "Please send your period as days, hours and minutes, e.g. \"0 2 30\".\n(minimum period is 5 minutes)"
)

var kindLabels = map[scheduler.Kind]string{
	scheduler.KindHourly:  "Hourly",
	scheduler.KindDaily:   "Daily",
	scheduler.KindWeekly:  "Weekly",
	scheduler.KindMonthly: "Monthly",
	scheduler.KindCustom:  "Custom",
}

func (b *Bot) startScheduleWizard(ctx context.Context, s *session.Session) {
	if b.jobs == nil {
		b.reply(ctx, s, "Scheduling is not available.")
		return
	}
	if s.Link() == "" && !s.HasActiveDriver() {
		b.reply(ctx, s, "Please set a form link first with /link <url>.")
		return
	}
	rows := make([][]option, 0, len(scheduler.Kinds()))
	for _, k := range scheduler.Kinds() {
		rows = append(rows, []option{{Label: kindLabels[k], Value: prefixKind + string(k)}})
	}
	b.sendMarkup(ctx, s, dialogCadence, "⏰ How often should this job be run?", rows)
}

func (b *Bot) onScheduleChoice(ctx context.Context, s *session.Session, m *session.Markup, value string) {
	switch {
	case m.Dialog == dialogCadence && strings.HasPrefix(value, prefixKind):
		kind := strings.TrimPrefix(value, prefixKind)
		if kind == kindCustom {
			b.sendMarkup(ctx, s, dialogCustomPeriod, periodPrompt, nil)
			return
		}
		b.askStart(ctx, s, scheduler.Cadence{Kind: scheduler.Kind(kind)}, nil)
	case m.Dialog == dialogStartTime && value == valueNow:
		c, err := decodeCadence(m.Data[cadenceKey])
		if err != nil {
			b.fail(ctx, s, err)
			return
		}
		start := b.now().UTC().Truncate(time.Minute).Add(time.Minute)
		b.confirmSchedule(ctx, s, c, start)
	case m.Dialog == dialogScheduleConfirm:
		b.onScheduleConfirm(ctx, s, m, value == valueYes)
	default:
		b.logger.Warn("user %d: unknown schedule menu value %q", s.UserID, value)
	}
}

// onCustomPeriod reads "D H M" for a custom cadence.
func (b *Bot) onCustomPeriod(ctx context.Context, s *session.Session, text string) {
	c, err := ParsePeriod(text)
	if err != nil {
		b.sendMarkup(ctx, s, dialogCustomPeriod, "⚠️ "+err.Error()+"\n\n"+periodPrompt, nil)
		return
	}
	b.askStart(ctx, s, c, nil)
}

// ParsePeriod reads a custom cadence from "days hours minutes".
func ParsePeriod(text string) (scheduler.Cadence, error) {
	fields := strings.Fields(text)
	if len(fields) != 3 {
		return scheduler.Cadence{}, fmt.Errorf("%w: expected three numbers", scheduler.ErrInvalidCadence)
	}
	var n [3]int
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return scheduler.Cadence{}, fmt.Errorf("%w: %q is not a number", scheduler.ErrInvalidCadence, f)
		}
		n[i] = v
	}
	c := scheduler.Custom(n[0], n[1], n[2])
	if err := c.Validate(); err != nil {
		return scheduler.Cadence{}, err
	}
	return c, nil
}

func (b *Bot) askStart(ctx context.Context, s *session.Session, c scheduler.Cadence, invalid error) {
	raw, err := json.Marshal(c)
	if err != nil {
		b.fail(ctx, s, err)
		return
	}
	text := c.Describe() + "\n\n" + startPrompt
	if invalid != nil {
		text = "⚠️ " + invalid.Error() + "\n\n" + text
	}
	b.sendMarkup(ctx, s, dialogStartTime, text,
		[][]option{{{Label: "▶️ Start now", Value: valueNow}}},
		cadenceKey, string(raw))
}

func (b *Bot) onStartTime(ctx context.Context, s *session.Session, m *session.Markup, text string) {
	c, err := decodeCadence(m.Data[cadenceKey])
	if err != nil {
		b.fail(ctx, s, err)
		return
	}
	start, err := time.ParseInLocation(scheduler.StartLayout, text, time.UTC)
	if err != nil {
		b.askStart(ctx, s, c, fmt.Errorf("%q does not match YYYY-MM-DD HH:MM", text))
		return
	}
	if start.Before(b.now().UTC().Truncate(time.Minute)) {
		b.askStart(ctx, s, c, errors.New("the start time must not be in the past"))
		return
	}
	b.confirmSchedule(ctx, s, c, start)
}

func (b *Bot) confirmSchedule(ctx context.Context, s *session.Session, c scheduler.Cadence, start time.Time) {
	name := scheduler.JobName(c, start)
	for _, j := range b.jobs.ListRemovable(s.UserID) {
		if j.Name == name {
			b.askStart(ctx, s, c, errors.New("ALERT: An identical job already exists!"))
			return
		}
	}
	raw, err := json.Marshal(c)
	if err != nil {
		b.fail(ctx, s, err)
		return
	}
	b.sendMarkup(ctx, s, dialogScheduleConfirm, "Please confirm to schedule this job:\n"+name, yesNo,
		cadenceKey, string(raw), startKey, start.Format(time.RFC3339))
}

func (b *Bot) onScheduleConfirm(ctx context.Context, s *session.Session, m *session.Markup, yes bool) {
	s.ClearMarkup()
	if !yes {
		b.reply(ctx, s, "Scheduling of job aborted!")
		return
	}
	c, err := decodeCadence(m.Data[cadenceKey])
	if err != nil {
		b.fail(ctx, s, err)
		return
	}
	start, err := time.Parse(time.RFC3339, m.Data[startKey])
	if err != nil {
		b.fail(ctx, s, err)
		return
	}

	job, err := b.jobs.Schedule(ctx, s.UserID, c, start)
	switch {
	case errors.Is(err, scheduler.ErrDuplicateJob):
		b.reply(ctx, s, "ALERT: An identical job already exists!")
	case err != nil:
		b.fail(ctx, s, err)
	default:
		b.reply(ctx, s, "🥳 Job successfully scheduled! 🥳\n"+job.Name)
	}
}

func (b *Bot) showJobs(ctx context.Context, s *session.Session) {
	if b.jobs == nil {
		b.reply(ctx, s, "Scheduling is not available.")
		return
	}
	jobs := b.jobs.ListRemovable(s.UserID)
	if len(jobs) == 0 {
		s.ClearMarkup()
		b.reply(ctx, s, "⚠️ NO JOBS DETECTED ⚠️\nThere are no scheduled jobs. Use /schedule to add one.")
		return
	}
	rows := make([][]option, 0, len(jobs)+1)
	for _, j := range jobs {
		rows = append(rows, []option{{Label: "🗑️ " + j.Name, Value: prefixJob + j.ID}})
	}
	rows = append(rows, []option{{Label: "❌ Close", Value: valueClose}})
	b.sendMarkup(ctx, s, dialogJobs,
		fmt.Sprintf("⏰ You have %d scheduled job(s).\n🔍 Select a job to remove it:", len(jobs)), rows)
}

func (b *Bot) onJobsChoice(ctx context.Context, s *session.Session, m *session.Markup, value string) {
	switch {
	case value == valueClose:
		s.ClearMarkup()
		b.reply(ctx, s, "Job list closed.")
	case m.Dialog == dialogJobs && strings.HasPrefix(value, prefixJob):
		id := strings.TrimPrefix(value, prefixJob)
		name := id
		for _, j := range b.jobs.ListRemovable(s.UserID) {
			if j.ID == id {
				name = j.Name
			}
		}
		b.sendMarkup(ctx, s, dialogJobRemove,
			"⚠️ IRREVERSIBLE ACTION WARNING ⚠️\nAre you sure you want to remove this job?\n"+name,
			yesNo, jobKey, id)
	case m.Dialog == dialogJobRemove:
		s.ClearMarkup()
		if value != valueYes {
			b.reply(ctx, s, "Removal successfully aborted!")
			return
		}
		err := b.jobs.Cancel(ctx, s.UserID, m.Data[jobKey])
		switch {
		case errors.Is(err, scheduler.ErrJobNotFound):
			b.reply(ctx, s, "That job no longer exists.")
		case err != nil:
			b.fail(ctx, s, err)
		default:
			b.reply(ctx, s, "Job successfully removed!")
		}
	default:
		b.logger.Warn("user %d: unknown jobs menu value %q", s.UserID, value)
	}
}

func decodeCadence(raw string) (scheduler.Cadence, error) {
	var c scheduler.Cadence
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, fmt.Errorf("failed to decode cadence: %w", err)
	}
	return c, c.Validate()
}
