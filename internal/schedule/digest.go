package schedule

import (
	"time"

	"github.com/avitonotify/notify-server-go/internal/model"
)

// DigestPlan certifies digest eligibility for one link and the content
// window the gateway should aggregate. The caller owns advancing
// last_digest_ts after a confirmed send.
type DigestPlan struct {
	Due         bool
	WindowStart time.Time
	WindowEnd   time.Time
}

// PlanDigest decides whether the target's daily digest is due at now.
// Due means the local wall clock has passed daily_digest_time today and
// no digest has been sent on today's local date yet. The window starts
// where the previous one ended, or at link creation for the first send.
func PlanDigest(target *model.AccountChatTarget, now time.Time) (DigestPlan, error) {
	if target.DailyDigestTime == nil {
		return DigestPlan{}, nil
	}

	loc, tzErr := LoadLocation(target.Tz)
	local := now.In(loc)

	minute := model.NewTimeOfDay(local.Hour(), local.Minute())
	if minute < *target.DailyDigestTime {
		return DigestPlan{}, tzErr
	}

	if last := target.LastDigestTs; last != nil {
		if sameLocalDay(last.In(loc), local) || last.In(loc).After(local) {
			return DigestPlan{}, tzErr
		}
	}

	start := target.CreatedTs
	if target.LastDigestTs != nil {
		start = *target.LastDigestTs
	}

	return DigestPlan{Due: true, WindowStart: start, WindowEnd: now}, tzErr
}

func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
