package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.Parse(StartLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCadenceValidate(t *testing.T) {
	tests := []struct {
		name    string
		cadence Cadence
		wantErr bool
	}{
		{"hourly", Hourly(), false},
		{"monthly", Monthly(), false},
		{"custom at minimum", Custom(0, 0, 5), false},
		{"custom below minimum", Custom(0, 0, 4), true},
		{"custom zero", Custom(0, 0, 0), true},
		{"custom days only", Custom(3, 0, 0), false},
		{"custom minutes out of range", Custom(0, 1, 60), true},
		{"negative", Custom(-1, 0, 30), true},
		{"unknown kind", Cadence{Kind: "fortnightly"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cadence.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCadence)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJobName(t *testing.T) {
	assert.Equal(t, "Submit daily, starting from 2026-01-02 03:04", JobName(Daily(), at("2026-01-02 03:04")))
	assert.Equal(t, "Submit every 1 days, 2 hours and 30 minutes, starting from 2026-01-02 03:04",
		JobName(Custom(1, 2, 30), at("2026-01-02 03:04")))

	loc := time.FixedZone("UTC+8", 8*60*60)
	local := time.Date(2026, 1, 2, 11, 4, 0, 0, loc)
	assert.Equal(t, JobName(Daily(), at("2026-01-02 03:04")), JobName(Daily(), local), "names use UTC")
}

func TestCadenceNext(t *testing.T) {
	tests := []struct {
		name    string
		cadence Cadence
		start   string
		after   string
		want    string
	}{
		{"before start fires at start", Hourly(), "2026-03-01 10:00", "2026-03-01 09:00", "2026-03-01 10:00"},
		{"at start moves one period", Hourly(), "2026-03-01 10:00", "2026-03-01 10:00", "2026-03-01 11:00"},
		{"between fires", Hourly(), "2026-03-01 10:00", "2026-03-01 12:30", "2026-03-01 13:00"},
		{"daily", Daily(), "2026-03-01 10:00", "2026-03-05 10:00", "2026-03-06 10:00"},
		{"weekly", Weekly(), "2026-03-01 10:00", "2026-03-02 00:00", "2026-03-08 10:00"},
		{"custom", Custom(1, 2, 0), "2026-03-01 10:00", "2026-03-01 10:00", "2026-03-02 12:00"},
		{"monthly same day", Monthly(), "2026-03-15 08:00", "2026-03-15 08:00", "2026-04-15 08:00"},
		{"monthly clamps short month", Monthly(), "2026-01-31 10:00", "2026-01-31 10:00", "2026-02-28 10:00"},
		{"monthly returns to start day", Monthly(), "2026-01-31 10:00", "2026-02-28 10:00", "2026-03-31 10:00"},
		{"monthly across years", Monthly(), "2026-11-30 10:00", "2027-01-30 11:00", "2027-02-28 10:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cadence.Next(at(tt.start), at(tt.after))
			assert.Equal(t, at(tt.want), got)
		})
	}
}

func TestCadencePeriod(t *testing.T) {
	require.Equal(t, 26*time.Hour+30*time.Minute, Custom(1, 2, 30).Period())
	require.Zero(t, Monthly().Period())
	require.Equal(t, 7*24*time.Hour, Weekly().Period())
}
