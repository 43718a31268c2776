package tracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/domain"
	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

// searchResponse описывает страницу ответа /search.
type searchResponse struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      *int        `json:"total"`
	Issues     []issueJSON `json:"issues"`
}

type issueJSON struct {
	ID        string         `json:"id"`
	Key       string         `json:"key"`
	Fields    fieldsJSON     `json:"fields"`
	Changelog *changelogJSON `json:"changelog"`
}

type fieldsJSON struct {
	Created        string            `json:"created"`
	Updated        string            `json:"updated"`
	ResolutionDate *string           `json:"resolutiondate"`
	Status         *statusJSON       `json:"status"`
	Priority       *priorityJSON     `json:"priority"`
	Assignee       *userJSON         `json:"assignee"`
	Reporter       *userJSON         `json:"reporter"`
	TimeSpent      *int64            `json:"timespent"`
	TimeTracking   *timeTrackingJSON `json:"timetracking"`
}

type statusJSON struct {
	Name           string `json:"name"`
	StatusCategory *struct {
		Key string `json:"key"`
	} `json:"statusCategory"`
}

type priorityJSON struct {
	Name string `json:"name"`
}

type userJSON struct {
	AccountID   string `json:"accountId"`
	Name        string `json:"name"`
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
}

type timeTrackingJSON struct {
	TimeSpentSeconds *int64 `json:"timeSpentSeconds"`
}

// changelogJSON: встроенный changelog (expand=changelog).
type changelogJSON struct {
	StartAt    int                   `json:"startAt"`
	MaxResults int                   `json:"maxResults"`
	Total      int                   `json:"total"`
	Histories  []models.HistoryEntry `json:"histories"`
}

// changelogPage описывает страницу ответа /issue/{key}/changelog.
type changelogPage struct {
	StartAt    int                   `json:"startAt"`
	MaxResults int                   `json:"maxResults"`
	Total      *int                  `json:"total"`
	IsLast     *bool                 `json:"isLast"`
	Values     []models.HistoryEntry `json:"values"`
}

const statusCategoryDone = "done"

var timeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

// parseTime разбирает временные метки в форматах, которые отдаёт трекер.
func parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

// toUser возвращает nil, если пользователь отсутствует.
func toUser(u *userJSON) *models.User {
	if u == nil {
		return nil
	}
	id := firstNonEmpty(u.Name, u.AccountID, u.Key, u.DisplayName)
	if id == "" {
		return nil
	}
	return &models.User{ID: id, DisplayName: firstNonEmpty(u.DisplayName, id)}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseIssue превращает запись поиска в IssueRecord. Записи без ключа или с
// неразборчивой датой создания пропускаются с ошибкой MalformedRecordError;
// остальные проблемы упрощаются до безопасных значений с предупреждением.
func parseIssue(raw issueJSON) (models.IssueRecord, error) {
	key := strings.TrimSpace(raw.Key)
	if key == "" {
		return models.IssueRecord{}, domain.NewMalformedRecordError(raw.ID, "issue without key")
	}
	created, err := parseTime(raw.Fields.Created)
	if err != nil {
		return models.IssueRecord{}, domain.NewMalformedRecordError(key, "creation timestamp: "+err.Error())
	}

	var warnings []models.Warning
	issue := models.Issue{
		Key:      key,
		ID:       raw.ID,
		Created:  created,
		Assignee: toUser(raw.Fields.Assignee),
		Reporter: toUser(raw.Fields.Reporter),
	}

	if st := raw.Fields.Status; st != nil && strings.TrimSpace(st.Name) != "" {
		issue.Status = strings.TrimSpace(st.Name)
		if st.StatusCategory != nil {
			issue.StatusCategory = st.StatusCategory.Key
		}
	} else {
		issue.Status = "Unknown"
		warnings = append(warnings, domain.NewMalformedRecordWarning(key, "missing status, using %q", issue.Status))
	}

	if p := raw.Fields.Priority; p != nil && strings.TrimSpace(p.Name) != "" {
		name := strings.TrimSpace(p.Name)
		issue.Priority = &name
	}

	if issue.Reporter == nil {
		warnings = append(warnings, domain.NewMalformedRecordWarning(key, "missing reporter"))
	}

	switch {
	case raw.Fields.TimeSpent != nil && *raw.Fields.TimeSpent >= 0:
		issue.Logged = time.Duration(*raw.Fields.TimeSpent) * time.Second
	case raw.Fields.TimeTracking != nil && raw.Fields.TimeTracking.TimeSpentSeconds != nil && *raw.Fields.TimeTracking.TimeSpentSeconds >= 0:
		issue.Logged = time.Duration(*raw.Fields.TimeTracking.TimeSpentSeconds) * time.Second
	}

	closedAt, closeWarnings := resolveClosing(key, created, raw.Fields, issue.StatusCategory)
	warnings = append(warnings, closeWarnings...)
	if closedAt != nil {
		issue.Closed = true
		issue.ClosedAt = closedAt
	}

	rec := models.IssueRecord{Issue: issue, Warnings: warnings}
	if cl := raw.Changelog; cl != nil {
		rec.History = cl.Histories
		rec.HistoryComplete = cl.StartAt == 0 && cl.Total <= len(cl.Histories)
	}
	return rec, nil
}

// resolveClosing определяет момент закрытия: resolutiondate, а для задач в категории
// done без резолюции берётся дата последнего обновления.
func resolveClosing(key string, created time.Time, f fieldsJSON, category string) (*time.Time, []models.Warning) {
	var warnings []models.Warning
	var closedAt *time.Time

	if f.ResolutionDate != nil && strings.TrimSpace(*f.ResolutionDate) != "" {
		t, err := parseTime(*f.ResolutionDate)
		if err == nil {
			closedAt = &t
		} else {
			warnings = append(warnings, domain.NewMalformedRecordWarning(key, "resolution date: %v", err))
		}
	}
	if closedAt == nil && category == statusCategoryDone {
		t, err := parseTime(f.Updated)
		if err != nil {
			warnings = append(warnings, domain.NewMalformedRecordWarning(key, "done issue without usable closing time, treated as open"))
			return nil, warnings
		}
		closedAt = &t
	}
	if closedAt != nil && closedAt.Before(created) {
		warnings = append(warnings, domain.NewMalformedRecordWarning(key, "closing time %s precedes creation %s, clamped",
			closedAt.Format(time.RFC3339), created.Format(time.RFC3339)))
		c := created
		closedAt = &c
	}
	return closedAt, warnings
}
