package timeline

import (
	"fmt"
	"slices"
	"time"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/domain"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

// Result содержит восстановленный таймлайн задачи.
type Result struct {
	Intervals []models.StatusInterval
	Warnings  []models.Warning
	// Degraded выставлен, если таймлайн откатился к одному интервалу.
	Degraded bool
}

// Reconstruct строит непрерывные интервалы статусов, покрывающие
// [Created, LifetimeEnd(now)] ровно один раз. now задаёт общий для прогона снимок времени.
// Противоречия в истории не прерывают прогон: задача откатывается к одному
// интервалу в текущем статусе.
func Reconstruct(issue models.Issue, events []models.TransitionEvent, now time.Time) Result {
	end := issue.LifetimeEnd(now)
	if end.Before(issue.Created) {
		return degrade(issue, issue.Created, fmt.Sprintf("lifetime end %s precedes creation %s",
			end.Format(time.RFC3339), issue.Created.Format(time.RFC3339)))
	}
	if len(events) == 0 {
		return Result{Intervals: []models.StatusInterval{single(issue, issue.Created, end)}}
	}

	ordered := slices.Clone(events)
	slices.SortStableFunc(ordered, func(a, b models.TransitionEvent) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return a.Seq - b.Seq
	})

	var warnings []models.Warning
	clamp := func(ev models.TransitionEvent) time.Time {
		switch {
		case ev.At.Before(issue.Created):
			warnings = append(warnings, domain.NewClampedEventWarning(issue.Key,
				"transition to %q at %s precedes creation, clamped", ev.To, ev.At.Format(time.RFC3339)))
			return issue.Created
		case ev.At.After(end):
			warnings = append(warnings, domain.NewClampedEventWarning(issue.Key,
				"transition to %q at %s after lifetime end, clamped", ev.To, ev.At.Format(time.RFC3339)))
			return end
		}
		return ev.At
	}

	// Событие без исходного статуса означает создание задачи: задаёт начальный статус
	// и не открывает новый интервал.
	var current string
	if first := ordered[0]; first.From == nil {
		current = first.To
		clamp(first)
		ordered = ordered[1:]
	} else {
		current = *first.From
	}

	var intervals []models.StatusInterval
	start := issue.Created
	for _, ev := range ordered {
		if ev.From != nil && *ev.From != current {
			return degradeWith(issue, end, warnings, fmt.Sprintf("transition from %q at %s while issue was in %q",
				*ev.From, ev.At.Format(time.RFC3339), current))
		}
		at := clamp(ev)
		if at.After(start) {
			intervals = append(intervals, models.StatusInterval{
				IssueKey: issue.Key,
				Status:   current,
				Start:    start,
				End:      at,
			})
			start = at
		}
		current = ev.To
	}
	if end.After(start) {
		intervals = append(intervals, models.StatusInterval{
			IssueKey: issue.Key,
			Status:   current,
			Start:    start,
			End:      end,
		})
	}
	if len(intervals) == 0 {
		intervals = append(intervals, models.StatusInterval{
			IssueKey: issue.Key,
			Status:   current,
			Start:    issue.Created,
			End:      end,
		})
	}
	return Result{Intervals: intervals, Warnings: warnings}
}

func single(issue models.Issue, start, end time.Time) models.StatusInterval {
	return models.StatusInterval{
		IssueKey: issue.Key,
		Status:   issue.Status,
		Start:    start,
		End:      end,
	}
}

func degrade(issue models.Issue, end time.Time, reason string) Result {
	return degradeWith(issue, end, nil, reason)
}

// degradeWith отбрасывает частично построенные интервалы, но сохраняет уже
// накопленные предупреждения.
func degradeWith(issue models.Issue, end time.Time, warnings []models.Warning, reason string) Result {
	warnings = append(warnings, domain.NewReconstructionWarning(issue.Key, "%s", reason))
	return Result{
		Intervals: []models.StatusInterval{single(issue, issue.Created, end)},
		Warnings:  warnings,
		Degraded:  true,
	}
}
