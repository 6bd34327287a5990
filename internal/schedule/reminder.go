package schedule

import (
	"time"

	"github.com/avitonotify/notify-server-go/internal/model"
)

// DefaultBackoff mirrors the historical fixed 15-minute reminder cadence.
var DefaultBackoff = []time.Duration{15 * time.Minute}

// PlanReminder decides whether an unanswered conversation is due for
// another escalation. backoff is an ascending schedule; once the count
// of sent reminders runs past the end, the last entry repeats, capping
// escalation frequency. Muted links and closed work windows suppress
// the reminder entirely.
func PlanReminder(rem *model.Reminder, target *model.AccountChatTarget, now time.Time, backoff []time.Duration) (bool, error) {
	if len(backoff) == 0 {
		backoff = DefaultBackoff
	}
	if !target.Deliverable() {
		return false, nil
	}

	window, tzErr := EvaluateWindow(target.Tz, target.WorkFrom, target.WorkTo, now)
	if !window.Allowed {
		return false, tzErr
	}

	if rem.LastReminder == nil {
		return now.Sub(rem.FirstTs) >= backoff[0], tzErr
	}

	idx := rem.ReminderCount
	if idx > len(backoff)-1 {
		idx = len(backoff) - 1
	}
	return now.Sub(*rem.LastReminder) >= backoff[idx], tzErr
}
