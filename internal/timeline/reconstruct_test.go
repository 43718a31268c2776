package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

func at(day, hour int) time.Time {
	return time.Date(2023, time.January, day, hour, 0, 0, 0, time.UTC)
}

func from(s string) *string { return &s }

func closedIssue(status string, created, closed time.Time) models.Issue {
	return models.Issue{Key: "PROJ-1", Created: created, Status: status, Closed: true, ClosedAt: &closed}
}

func openIssue(status string, created time.Time) models.Issue {
	return models.Issue{Key: "PROJ-1", Created: created, Status: status}
}

// requireCovers проверяет, что интервалы идут подряд без пропусков и перекрытий
// и покрывают [start, end] ровно один раз.
func requireCovers(t *testing.T, intervals []models.StatusInterval, start, end time.Time) {
	t.Helper()
	require.NotEmpty(t, intervals)
	require.True(t, intervals[0].Start.Equal(start), "first interval starts at %s, want %s", intervals[0].Start, start)
	require.True(t, intervals[len(intervals)-1].End.Equal(end), "last interval ends at %s, want %s", intervals[len(intervals)-1].End, end)

	var total time.Duration
	for i, iv := range intervals {
		require.False(t, iv.End.Before(iv.Start), "interval %d is inverted", i)
		if i > 0 {
			require.True(t, intervals[i-1].End.Equal(iv.Start), "gap or overlap before interval %d", i)
		}
		total += iv.Duration()
	}
	require.Equal(t, end.Sub(start), total)
}

func TestReconstructClosedIssue(t *testing.T) {
	issue := closedIssue("Closed", at(1, 0), at(10, 0))
	events := []models.TransitionEvent{
		{IssueKey: "PROJ-1", At: at(3, 0), From: from("Open"), To: "In Progress", Seq: 0},
		{IssueKey: "PROJ-1", At: at(10, 0), From: from("In Progress"), To: "Closed", Seq: 1},
	}

	res := Reconstruct(issue, events, at(20, 0))

	require.False(t, res.Degraded)
	require.Empty(t, res.Warnings)
	require.Len(t, res.Intervals, 2)
	require.Equal(t, "Open", res.Intervals[0].Status)
	require.Equal(t, 48*time.Hour, res.Intervals[0].Duration())
	require.Equal(t, "In Progress", res.Intervals[1].Status)
	require.Equal(t, 7*24*time.Hour, res.Intervals[1].Duration())
	requireCovers(t, res.Intervals, at(1, 0), at(10, 0))
}

func TestReconstructOpenIssueWithoutEvents(t *testing.T) {
	issue := openIssue("Open", at(1, 0))

	res := Reconstruct(issue, nil, at(5, 0))

	require.Len(t, res.Intervals, 1)
	require.Equal(t, "Open", res.Intervals[0].Status)
	require.Equal(t, 4*24*time.Hour, res.Intervals[0].Duration())
	require.False(t, res.Degraded)
}

func TestReconstructClampsEventBeforeCreation(t *testing.T) {
	issue := openIssue("In Progress", at(2, 0))
	events := []models.TransitionEvent{
		{IssueKey: "PROJ-1", At: at(1, 0), From: from("Open"), To: "In Progress"},
	}

	res := Reconstruct(issue, events, at(4, 0))

	require.False(t, res.Degraded)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, models.WarningClampedEvent, res.Warnings[0].Kind)
	require.Len(t, res.Intervals, 1)
	require.Equal(t, "In Progress", res.Intervals[0].Status)
	requireCovers(t, res.Intervals, at(2, 0), at(4, 0))
}

func TestReconstructClampsEventAfterLifetimeEnd(t *testing.T) {
	issue := closedIssue("Done", at(1, 0), at(5, 0))
	events := []models.TransitionEvent{
		{IssueKey: "PROJ-1", At: at(7, 0), From: from("Open"), To: "Done"},
	}

	res := Reconstruct(issue, events, at(10, 0))

	require.Len(t, res.Warnings, 1)
	require.Equal(t, models.WarningClampedEvent, res.Warnings[0].Kind)
	require.Len(t, res.Intervals, 1)
	require.Equal(t, "Open", res.Intervals[0].Status)
	requireCovers(t, res.Intervals, at(1, 0), at(5, 0))
}

func TestReconstructSortsUnorderedEvents(t *testing.T) {
	issue := openIssue("Done", at(1, 0))
	events := []models.TransitionEvent{
		{IssueKey: "PROJ-1", At: at(4, 0), From: from("Review"), To: "Done", Seq: 2},
		{IssueKey: "PROJ-1", At: at(2, 0), From: from("Open"), To: "In Progress", Seq: 0},
		{IssueKey: "PROJ-1", At: at(3, 0), From: from("In Progress"), To: "Review", Seq: 1},
	}

	res := Reconstruct(issue, events, at(6, 0))

	require.False(t, res.Degraded)
	statuses := make([]string, 0, len(res.Intervals))
	for _, iv := range res.Intervals {
		statuses = append(statuses, iv.Status)
	}
	require.Equal(t, []string{"Open", "In Progress", "Review", "Done"}, statuses)
	requireCovers(t, res.Intervals, at(1, 0), at(6, 0))
}

func TestReconstructSameTimestampUsesSequence(t *testing.T) {
	issue := openIssue("Review", at(1, 0))
	events := []models.TransitionEvent{
		{IssueKey: "PROJ-1", At: at(3, 0), From: from("In Progress"), To: "Review", Seq: 1},
		{IssueKey: "PROJ-1", At: at(3, 0), From: from("Open"), To: "In Progress", Seq: 0},
	}

	res := Reconstruct(issue, events, at(5, 0))

	require.False(t, res.Degraded)
	require.Len(t, res.Intervals, 2)
	require.Equal(t, "Open", res.Intervals[0].Status)
	require.Equal(t, "Review", res.Intervals[1].Status)
	requireCovers(t, res.Intervals, at(1, 0), at(5, 0))
}

func TestReconstructCreationEventSetsInitialStatus(t *testing.T) {
	issue := openIssue("In Progress", at(1, 0))
	events := []models.TransitionEvent{
		{IssueKey: "PROJ-1", At: at(1, 0), To: "Backlog", Seq: 0},
		{IssueKey: "PROJ-1", At: at(2, 0), From: from("Backlog"), To: "In Progress", Seq: 1},
	}

	res := Reconstruct(issue, events, at(3, 0))

	require.Len(t, res.Intervals, 2)
	require.Equal(t, "Backlog", res.Intervals[0].Status)
	require.Equal(t, "In Progress", res.Intervals[1].Status)
	requireCovers(t, res.Intervals, at(1, 0), at(3, 0))
}

func TestReconstructInconsistentHistoryDegrades(t *testing.T) {
	issue := openIssue("Review", at(1, 0))
	events := []models.TransitionEvent{
		{IssueKey: "PROJ-1", At: at(2, 0), From: from("Open"), To: "In Progress", Seq: 0},
		{IssueKey: "PROJ-1", At: at(3, 0), From: from("Blocked"), To: "Review", Seq: 1},
	}

	res := Reconstruct(issue, events, at(4, 0))

	require.True(t, res.Degraded)
	require.Len(t, res.Intervals, 1)
	require.Equal(t, "Review", res.Intervals[0].Status)
	require.Equal(t, models.WarningReconstructionFallback, res.Warnings[len(res.Warnings)-1].Kind)
	requireCovers(t, res.Intervals, at(1, 0), at(4, 0))
}

func TestReconstructClosedAfterSnapshotUsesNow(t *testing.T) {
	issue := closedIssue("Done", at(1, 0), at(9, 0))

	res := Reconstruct(issue, nil, at(5, 0))

	requireCovers(t, res.Intervals, at(1, 0), at(5, 0))
}

func TestReconstructCreatedAfterSnapshotDegrades(t *testing.T) {
	issue := openIssue("Open", at(5, 0))

	res := Reconstruct(issue, nil, at(3, 0))

	require.True(t, res.Degraded)
	require.Len(t, res.Intervals, 1)
	require.Zero(t, res.Intervals[0].Duration())
}

func TestReconstructDoesNotMutateInput(t *testing.T) {
	issue := openIssue("Done", at(1, 0))
	events := []models.TransitionEvent{
		{IssueKey: "PROJ-1", At: at(3, 0), From: from("Review"), To: "Done", Seq: 1},
		{IssueKey: "PROJ-1", At: at(2, 0), From: from("Open"), To: "Review", Seq: 0},
	}
	first := events[0]

	Reconstruct(issue, events, at(4, 0))

	require.Equal(t, first, events[0])
}
