package models

import "time"

// Query задаёт выборку задач: ключ проекта и необязательный дополнительный JQL-фильтр.
type Query struct {
	Project string `json:"project"`
	JQL     string `json:"jql,omitempty"`
}

// User описывает пользователя трекера.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Issue описывает снимок задачи на момент выборки. Не изменяется после получения.
type Issue struct {
	Key            string        `json:"key"`
	ID             string        `json:"id"`
	Created        time.Time     `json:"created"`
	Status         string        `json:"status"`
	StatusCategory string        `json:"status_category,omitempty"`
	Priority       *string       `json:"priority"`
	Assignee       *User         `json:"assignee"`
	Reporter       *User         `json:"reporter"`
	Logged         time.Duration `json:"logged"`
	Closed         bool          `json:"closed"`
	// ClosedAt заполнен тогда и только тогда, когда Closed == true.
	ClosedAt *time.Time `json:"closed_at"`
}

// LifetimeEnd возвращает конец жизни задачи относительно снимка now.
func (i Issue) LifetimeEnd(now time.Time) time.Time {
	if i.Closed && i.ClosedAt != nil && i.ClosedAt.Before(now) {
		return *i.ClosedAt
	}
	return now
}

// OpenDuration возвращает время от создания до закрытия; ok == false для открытых задач.
func (i Issue) OpenDuration() (time.Duration, bool) {
	if !i.Closed || i.ClosedAt == nil {
		return 0, false
	}
	return i.ClosedAt.Sub(i.Created), true
}

// TransitionEvent описывает смену статуса задачи.
type TransitionEvent struct {
	IssueKey string    `json:"issue_key"`
	At       time.Time `json:"at"`
	// From отсутствует у события создания.
	From *string `json:"from"`
	To   string  `json:"to"`
	// Seq хранит порядок получения и разрешает равенство временных меток.
	Seq int `json:"seq"`
}

// StatusInterval описывает непрерывный промежуток, когда задача находилась в одном статусе.
type StatusInterval struct {
	IssueKey string    `json:"issue_key"`
	Status   string    `json:"status"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Duration возвращает длину интервала.
func (s StatusInterval) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// HistoryItem описывает изменение одного поля в записи истории.
type HistoryItem struct {
	Field string  `json:"field"`
	From  *string `json:"fromString"`
	To    *string `json:"toString"`
}

// HistoryEntry описывает запись changelog трекера в исходном виде.
type HistoryEntry struct {
	ID      string        `json:"id"`
	Created string        `json:"created"`
	Items   []HistoryItem `json:"items"`
}

// IssueRecord содержит то, что отдаёт постраничная выборка: задача, встроенная история
// (если трекер её вернул) и предупреждения разбора.
type IssueRecord struct {
	Issue           Issue
	History         []HistoryEntry
	HistoryComplete bool
	Warnings        []Warning
}

// Timeline связывает задачу с восстановленными интервалами статусов.
type Timeline struct {
	Issue     Issue            `json:"issue"`
	Intervals []StatusInterval `json:"intervals"`
	Degraded  bool             `json:"degraded"`
}
