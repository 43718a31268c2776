package analytics

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/domain"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

// UnspecifiedPriority помечает задачи без приоритета.
const UnspecifiedPriority = "unspecified"

// Options задаёт параметры агрегации.
type Options struct {
	TopUsers     int
	MaxBuckets   int
	MaxTrendDays int
	Location     *time.Location
}

// Aggregator строит шесть независимых датасетов из неизменяемого снимка задач.
type Aggregator struct {
	opts Options
	log  zerolog.Logger
}

// NewAggregator создаёт агрегатор, подставляя значения по умолчанию.
func NewAggregator(opts Options, log zerolog.Logger) *Aggregator {
	if opts.TopUsers <= 0 {
		opts.TopUsers = 30
	}
	if opts.MaxBuckets <= 0 {
		opts.MaxBuckets = 30
	}
	if opts.MaxTrendDays <= 0 {
		opts.MaxTrendDays = 20 * 365
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Aggregator{opts: opts, log: log.With().Str("component", "aggregator").Logger()}
}

// Build строит все датасеты. Сбой одного построителя помечает недоступным только
// его датасет, остальные строятся как обычно.
func (a *Aggregator) Build(timelines []models.Timeline) models.Report {
	var report models.Report
	issues := make([]models.Issue, len(timelines))
	for i, tl := range timelines {
		issues[i] = tl.Issue
	}

	a.run(&report, models.DatasetOpenDuration, func() error {
		h := a.OpenDuration(issues)
		report.OpenDuration = &h
		return nil
	})
	a.run(&report, models.DatasetStatusTime, func() error {
		report.StatusTime = a.StatusTime(timelines)
		return nil
	})
	a.run(&report, models.DatasetDailyTrend, func() error {
		trend, err := a.DailyTrend(issues)
		if err != nil {
			return err
		}
		report.DailyTrend = &trend
		return nil
	})
	a.run(&report, models.DatasetUsers, func() error {
		users := a.Users(issues)
		report.Users = &users
		return nil
	})
	a.run(&report, models.DatasetLoggedTime, func() error {
		h := a.LoggedTime(issues)
		report.LoggedTime = &h
		return nil
	})
	a.run(&report, models.DatasetPriority, func() error {
		report.Priority = a.Priority(issues)
		return nil
	})
	return report
}

// run изолирует построитель датасета: ошибка или паника попадают в Unavailable.
func (a *Aggregator) run(report *models.Report, name string, build func() error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = domain.NewDatasetUnavailableError(name, fmt.Sprint(r))
			}
		}()
		err = build()
	}()
	if err == nil {
		return
	}
	if report.Unavailable == nil {
		report.Unavailable = make(map[string]string)
	}
	report.Unavailable[name] = err.Error()
	a.log.Error().Err(err).Str("dataset", name).Msg("dataset unavailable")
}

// OpenDuration строит гистограмму времени от создания до закрытия в днях; открытые задачи не входят.
func (a *Aggregator) OpenDuration(issues []models.Issue) models.Histogram {
	values := make([]float64, 0, len(issues))
	for _, issue := range issues {
		if d, ok := issue.OpenDuration(); ok {
			values = append(values, days(d))
		}
	}
	return BuildHistogram(values, "d", a.opts.MaxBuckets)
}

// LoggedTime строит гистограмму списанного времени по задачам в часах.
func (a *Aggregator) LoggedTime(issues []models.Issue) models.Histogram {
	values := make([]float64, 0, len(issues))
	for _, issue := range issues {
		values = append(values, issue.Logged.Hours())
	}
	return BuildHistogram(values, "h", a.opts.MaxBuckets)
}

// StatusTime суммирует длительности интервалов по статусам. Суммы считаются
// в time.Duration без округления; статистики по задачам считаются в днях.
func (a *Aggregator) StatusTime(timelines []models.Timeline) []models.StatusTime {
	totals := make(map[string]time.Duration)
	perIssue := make(map[string][]float64)
	for _, tl := range timelines {
		issueTotals := make(map[string]time.Duration)
		for _, iv := range tl.Intervals {
			issueTotals[iv.Status] += iv.Duration()
		}
		for status, d := range issueTotals {
			totals[status] += d
			perIssue[status] = append(perIssue[status], days(d))
		}
	}

	out := make([]models.StatusTime, 0, len(totals))
	for status, total := range totals {
		values := perIssue[status]
		out = append(out, models.StatusTime{
			Status:     status,
			Total:      total,
			TotalDays:  round(days(total), 4),
			IssueCount: len(values),
			MeanDays:   round(average(values), 4),
			MedianDays: round(percentile(values, 50), 4),
			P90Days:    round(percentile(values, 90), 4),
		})
	}
	slices.SortFunc(out, func(x, y models.StatusTime) int {
		if c := cmp.Compare(y.Total, x.Total); c != 0 {
			return c
		}
		return cmp.Compare(x.Status, y.Status)
	})
	return out
}

// DailyTrend считает созданные и закрытые задачи по календарным дням часового
// пояса агрегатора и накопленные итоги без пропусков дней.
func (a *Aggregator) DailyTrend(issues []models.Issue) (models.DailyTrend, error) {
	trend := models.DailyTrend{Location: a.opts.Location.String(), Points: []models.DailyTrendPoint{}}
	if len(issues) == 0 {
		return trend, nil
	}

	created := make(map[string]int)
	closed := make(map[string]int)
	var first, last time.Time
	observe := func(d time.Time) {
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if last.IsZero() || d.After(last) {
			last = d
		}
	}
	for _, issue := range issues {
		d := a.dayOf(issue.Created)
		created[d.Format(time.DateOnly)]++
		observe(d)
		if issue.Closed && issue.ClosedAt != nil {
			c := a.dayOf(*issue.ClosedAt)
			closed[c.Format(time.DateOnly)]++
			observe(c)
		}
	}

	span := int(last.Sub(first)/day) + 1
	if span > a.opts.MaxTrendDays {
		return models.DailyTrend{}, domain.NewDatasetUnavailableError(models.DatasetDailyTrend,
			fmt.Sprintf("observed range of %d days exceeds limit of %d", span, a.opts.MaxTrendDays))
	}

	trend.Points = make([]models.DailyTrendPoint, 0, span)
	cumCreated, cumClosed := 0, 0
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		cumCreated += created[key]
		cumClosed += closed[key]
		trend.Points = append(trend.Points, models.DailyTrendPoint{
			Day:               key,
			Created:           created[key],
			Closed:            closed[key],
			CumulativeCreated: cumCreated,
			CumulativeClosed:  cumClosed,
		})
	}
	return trend, nil
}

// dayOf возвращает календарную дату t в часовом поясе агрегатора как полночь UTC.
// Местная полночь может не существовать при переходе на летнее время, поэтому
// дни считаются и перебираются только по дате.
func (a *Aggregator) dayOf(t time.Time) time.Time {
	y, m, d := t.In(a.opts.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Users ранжирует пользователей по сумме назначений и авторства. При равенстве
// выше стоит меньший в лексикографическом порядке идентификатор.
func (a *Aggregator) Users(issues []models.Issue) models.UserDistribution {
	byID := make(map[string]*models.UserMetric)
	touch := func(u *models.User) *models.UserMetric {
		m, ok := byID[u.ID]
		if !ok {
			m = &models.UserMetric{UserID: u.ID, DisplayName: u.DisplayName}
			byID[u.ID] = m
		}
		return m
	}
	for _, issue := range issues {
		if issue.Assignee != nil {
			touch(issue.Assignee).AssigneeCount++
		}
		if issue.Reporter != nil {
			touch(issue.Reporter).ReporterCount++
		}
	}

	all := make([]models.UserMetric, 0, len(byID))
	for _, m := range byID {
		all = append(all, *m)
	}
	slices.SortFunc(all, func(x, y models.UserMetric) int {
		if c := cmp.Compare(y.Combined(), x.Combined()); c != 0 {
			return c
		}
		return cmp.Compare(x.UserID, y.UserID)
	})

	n := min(a.opts.TopUsers, len(all))
	dist := models.UserDistribution{Top: all[:n]}
	for _, m := range all[n:] {
		dist.Other.Users++
		dist.Other.AssigneeCount += m.AssigneeCount
		dist.Other.ReporterCount += m.ReporterCount
	}
	dist.Other.Combined = dist.Other.AssigneeCount + dist.Other.ReporterCount
	return dist
}

// Priority считает задачи по приоритетам, задачи без приоритета попадают в "unspecified".
func (a *Aggregator) Priority(issues []models.Issue) []models.PriorityCount {
	counts := make(map[string]int)
	for _, issue := range issues {
		label := UnspecifiedPriority
		if issue.Priority != nil {
			label = *issue.Priority
		}
		counts[label]++
	}
	out := make([]models.PriorityCount, 0, len(counts))
	for label, count := range counts {
		out = append(out, models.PriorityCount{Priority: label, Count: count})
	}
	slices.SortFunc(out, func(x, y models.PriorityCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Priority, y.Priority)
	})
	return out
}
