package sessionlog

import (
	"context"
	"log/slog"
	"time"
)

// RetentionPolicy enforces §4.9's retention rule: full entries for
// RetentionDays, then compressed daily summaries for SummaryDays beyond
// that, then deletion. The sweep is advisory bookkeeping over the log's
// entries (read through ReadRange); it never rewrites the append-only
// payload file in place (invariant 5 forbids mutating existing entries)
// — instead it reports the timestamps of entries eligible for
// summarisation/purge, which an operator-facing compaction job (outside
// this core) may act on.
type RetentionPolicy struct {
	RetentionDays int
	SummaryDays   int
}

// SweepResult lists which log entries have aged past full retention and
// past summary retention, relative to now.
type SweepResult struct {
	EligibleForSummary []time.Time
	EligibleForPurge   []time.Time
}

// Sweep runs the retention calculation against the entries currently
// indexed in l. It is read-only: deciding whether to physically act on
// the result is left to a background task (§4.9 "enforced at open and by
// a background task").
func (p RetentionPolicy) Sweep(ctx context.Context, l *Log, now time.Time) (SweepResult, error) {
	entries, err := l.ReadRange(time.Unix(0, 0), now)
	if err != nil {
		return SweepResult{}, err
	}

	fullCutoff := now.AddDate(0, 0, -p.RetentionDays)
	summaryCutoff := now.AddDate(0, 0, -(p.RetentionDays + p.SummaryDays))

	var res SweepResult
	for _, e := range entries {
		switch {
		case e.Timestamp.Before(summaryCutoff):
			res.EligibleForPurge = append(res.EligibleForPurge, e.Timestamp)
		case e.Timestamp.Before(fullCutoff):
			res.EligibleForSummary = append(res.EligibleForSummary, e.Timestamp)
		}
	}
	return res, nil
}

// RunBackground ticks Sweep on interval until ctx is cancelled, logging
// what it found. Physical compaction is intentionally not performed here
// — see the RetentionPolicy doc comment.
func (p RetentionPolicy) RunBackground(ctx context.Context, l *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := p.Sweep(ctx, l, time.Now())
			if err != nil {
				slog.Error("session log retention sweep failed", "error", err)
				continue
			}
			if len(res.EligibleForSummary) > 0 || len(res.EligibleForPurge) > 0 {
				slog.Info("session log retention sweep",
					"eligible_for_summary", len(res.EligibleForSummary),
					"eligible_for_purge", len(res.EligibleForPurge))
			}
		}
	}
}
