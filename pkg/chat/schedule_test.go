package chat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formpilot/pkg/chat"
	"formpilot/pkg/scheduler"
)

func TestScheduleWizard(t *testing.T) {
	f := newFixture(t, nil)
	f.say("/link " + link)

	f.say("/schedule")
	assert.Equal(t, []string{"Hourly", "Daily", "Weekly", "Monthly", "Custom"}, labels(f.transport.Last()))

	f.press(t, "Daily")
	assert.Contains(t, f.last(), "Submit daily")
	assert.Contains(t, f.last(), "YYYY-MM-DD HH:MM")

	f.say("2026-03-02 10:00")
	assert.Equal(t, "Please confirm to schedule this job:\nSubmit daily, starting from 2026-03-02 10:00", f.last())

	f.press(t, "Yes")
	assert.Contains(t, f.last(), "Job successfully scheduled")

	jobs := f.jobs.ListRemovable(userID)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Submit daily, starting from 2026-03-02 10:00", jobs[0].Name)
	assert.Equal(t, scheduler.Daily(), jobs[0].Cadence)
}

func TestScheduleRequiresLink(t *testing.T) {
	f := newFixture(t, nil)
	f.say("/schedule")
	assert.Equal(t, "Please set a form link first with /link <url>.", f.last())
}

func TestScheduleRejectsDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	f.say("/link " + link)
	f.say("/schedule")
	f.press(t, "Weekly")
	f.say("2026-03-02 10:00")
	f.press(t, "Yes")
	require.Len(t, f.jobs.ListRemovable(userID), 1)

	f.say("/schedule")
	f.press(t, "Weekly")
	f.say("2026-03-02 10:00")
	assert.Contains(t, f.last(), "An identical job already exists")
	assert.Len(t, f.jobs.ListRemovable(userID), 1)
}

func TestScheduleStartValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.say("/link " + link)
	f.say("/schedule")
	f.press(t, "Hourly")

	f.say("next tuesday")
	assert.Contains(t, f.last(), "does not match YYYY-MM-DD HH:MM")

	f.say("2026-02-28 10:00")
	assert.Contains(t, f.last(), "must not be in the past")

	f.press(t, "Start now")
	assert.Equal(t, "Please confirm to schedule this job:\nSubmit hourly, starting from 2026-03-01 09:01", f.last())

	f.press(t, "No")
	assert.Equal(t, "Scheduling of job aborted!", f.last())
	assert.Empty(t, f.jobs.ListRemovable(userID))
}

func TestScheduleCustomPeriod(t *testing.T) {
	f := newFixture(t, nil)
	f.say("/link " + link)
	f.say("/schedule")
	f.press(t, "Custom")
	assert.Contains(t, f.last(), "minimum period is 5 minutes")

	f.say("0 0 1")
	assert.Contains(t, f.last(), "⚠️")

	f.say("two hours")
	assert.Contains(t, f.last(), "expected three numbers")

	f.say("0 2 30")
	assert.Contains(t, f.last(), "Submit every 0 days, 2 hours and 30 minutes")

	f.say("2026-03-01 12:00")
	f.press(t, "Yes")
	jobs := f.jobs.ListRemovable(userID)
	require.Len(t, jobs, 1)
	assert.Equal(t, scheduler.Custom(0, 2, 30), jobs[0].Cadence)
}

func TestJobsListAndRemove(t *testing.T) {
	f := newFixture(t, nil)
	f.say("/jobs")
	assert.Contains(t, f.last(), "NO JOBS DETECTED")

	f.say("/link " + link)
	f.say("/schedule")
	f.press(t, "Monthly")
	f.say("2026-03-31 08:00")
	f.press(t, "Yes")

	f.say("/jobs")
	assert.Contains(t, f.last(), "You have 1 scheduled job(s)")

	f.press(t, "Submit monthly")
	assert.Contains(t, f.last(), "IRREVERSIBLE ACTION WARNING")
	f.press(t, "No")
	assert.Equal(t, "Removal successfully aborted!", f.last())
	require.Len(t, f.jobs.ListRemovable(userID), 1)

	f.say("/jobs")
	f.press(t, "Submit monthly")
	f.press(t, "Yes")
	assert.Equal(t, "Job successfully removed!", f.last())
	assert.Empty(t, f.jobs.ListRemovable(userID))
}

func TestParsePeriod(t *testing.T) {
	c, err := chat.ParsePeriod("1 2 3")
	require.NoError(t, err)
	assert.Equal(t, scheduler.Custom(1, 2, 3), c)

	for _, in := range []string{"", "1 2", "a b c", "0 0 4", "0 24 0", "-1 0 0"} {
		_, err := chat.ParsePeriod(in)
		assert.ErrorIs(t, err, scheduler.ErrInvalidCadence, in)
	}
}
