package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/avitonotify/notify-server-go/internal/errors"
	"github.com/avitonotify/notify-server-go/internal/model"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestEvaluateWindow(t *testing.T) {
	moscow := mustLoc(t, "Europe/Moscow")

	tests := []struct {
		name    string
		tz      string
		from    model.TimeOfDay
		to      model.TimeOfDay
		local   time.Time
		allowed bool
	}{
		{
			name:    "inside normal window",
			tz:      "Europe/Moscow",
			from:    model.NewTimeOfDay(9, 0),
			to:      model.NewTimeOfDay(18, 0),
			local:   time.Date(2025, 6, 2, 12, 30, 0, 0, moscow),
			allowed: true,
		},
		{
			name:    "before normal window",
			tz:      "Europe/Moscow",
			from:    model.NewTimeOfDay(9, 0),
			to:      model.NewTimeOfDay(18, 0),
			local:   time.Date(2025, 6, 2, 7, 0, 0, 0, moscow),
			allowed: false,
		},
		{
			name:    "window start is inclusive",
			tz:      "Europe/Moscow",
			from:    model.NewTimeOfDay(9, 0),
			to:      model.NewTimeOfDay(18, 0),
			local:   time.Date(2025, 6, 2, 9, 0, 0, 0, moscow),
			allowed: true,
		},
		{
			name:    "window end is exclusive",
			tz:      "Europe/Moscow",
			from:    model.NewTimeOfDay(9, 0),
			to:      model.NewTimeOfDay(18, 0),
			local:   time.Date(2025, 6, 2, 18, 0, 0, 0, moscow),
			allowed: false,
		},
		{
			name:    "overnight window late evening",
			tz:      "Europe/Moscow",
			from:    model.NewTimeOfDay(22, 0),
			to:      model.NewTimeOfDay(6, 0),
			local:   time.Date(2025, 6, 2, 23, 30, 0, 0, moscow),
			allowed: true,
		},
		{
			name:    "overnight window early morning",
			tz:      "Europe/Moscow",
			from:    model.NewTimeOfDay(22, 0),
			to:      model.NewTimeOfDay(6, 0),
			local:   time.Date(2025, 6, 2, 5, 59, 0, 0, moscow),
			allowed: true,
		},
		{
			name:    "overnight window midday closed",
			tz:      "Europe/Moscow",
			from:    model.NewTimeOfDay(22, 0),
			to:      model.NewTimeOfDay(6, 0),
			local:   time.Date(2025, 6, 2, 12, 0, 0, 0, moscow),
			allowed: false,
		},
		{
			name:    "equal bounds means always open",
			tz:      "Europe/Moscow",
			from:    model.NewTimeOfDay(0, 0),
			to:      model.NewTimeOfDay(0, 0),
			local:   time.Date(2025, 6, 2, 3, 0, 0, 0, moscow),
			allowed: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := EvaluateWindow(tc.tz, tc.from, tc.to, tc.local.UTC())
			assert.NoError(t, err)
			assert.Equal(t, tc.allowed, decision.Allowed)
		})
	}
}

func TestEvaluateWindow_DeferTarget(t *testing.T) {
	moscow := mustLoc(t, "Europe/Moscow")

	t.Run("overnight window defers to same local day", func(t *testing.T) {
		now := time.Date(2025, 6, 2, 12, 0, 0, 0, moscow)
		decision, err := EvaluateWindow("Europe/Moscow", model.NewTimeOfDay(22, 0), model.NewTimeOfDay(6, 0), now.UTC())
		require.NoError(t, err)
		require.False(t, decision.Allowed)
		assert.Equal(t, time.Date(2025, 6, 2, 22, 0, 0, 0, moscow).UTC(), decision.NextAllowed)
	})

	t.Run("after closing defers to next day", func(t *testing.T) {
		now := time.Date(2025, 6, 2, 20, 0, 0, 0, moscow)
		decision, err := EvaluateWindow("Europe/Moscow", model.NewTimeOfDay(9, 0), model.NewTimeOfDay(18, 0), now.UTC())
		require.NoError(t, err)
		require.False(t, decision.Allowed)
		assert.Equal(t, time.Date(2025, 6, 3, 9, 0, 0, 0, moscow).UTC(), decision.NextAllowed)
	})

	t.Run("deferred instant evaluates as allowed", func(t *testing.T) {
		// Property: once NextAllowed is reached, the window is open.
		starts := []time.Time{
			time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC),
			time.Date(2025, 6, 2, 20, 30, 0, 0, time.UTC),
			time.Date(2025, 10, 25, 23, 45, 0, 0, time.UTC), // day before EU DST fallback
		}
		for _, now := range starts {
			decision, err := EvaluateWindow("Europe/Berlin", model.NewTimeOfDay(9, 0), model.NewTimeOfDay(17, 0), now)
			require.NoError(t, err)
			if decision.Allowed {
				continue
			}
			again, err := EvaluateWindow("Europe/Berlin", model.NewTimeOfDay(9, 0), model.NewTimeOfDay(17, 0), decision.NextAllowed)
			require.NoError(t, err)
			assert.True(t, again.Allowed, "window should be open at %s (deferred from %s)", decision.NextAllowed, now)
		}
	})
}

func TestEvaluateWindow_InvalidTimezone(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	decision, err := EvaluateWindow("Mars/Olympus", model.NewTimeOfDay(9, 0), model.NewTimeOfDay(18, 0), now)

	// Falls back to UTC and still decides; error only flags the bad zone.
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidTimezone, apperrors.GetCode(err))
	assert.True(t, decision.Allowed)
}

func TestLoadLocation(t *testing.T) {
	t.Run("empty name means UTC", func(t *testing.T) {
		loc, err := LoadLocation("")
		assert.NoError(t, err)
		assert.Equal(t, time.UTC, loc)
	})

	t.Run("unknown name falls back to UTC with error", func(t *testing.T) {
		loc, err := LoadLocation("Not/AZone")
		assert.Error(t, err)
		assert.Equal(t, time.UTC, loc)
	})
}
