package models

import "time"

// Названия шести датасетов отчёта.
const (
	DatasetOpenDuration = "open_duration"
	DatasetStatusTime   = "status_time"
	DatasetDailyTrend   = "daily_trend"
	DatasetUsers        = "users"
	DatasetLoggedTime   = "logged_time"
	DatasetPriority     = "priority"
)

// DatasetNames перечисляет датасеты в порядке построения.
var DatasetNames = []string{
	DatasetOpenDuration,
	DatasetStatusTime,
	DatasetDailyTrend,
	DatasetUsers,
	DatasetLoggedTime,
	DatasetPriority,
}

// HistogramBucket описывает ячейку гистограммы [Lower, Upper).
type HistogramBucket struct {
	Label string  `json:"label"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram хранит упорядоченные по нижней границе смежные ячейки.
type Histogram struct {
	Unit    string            `json:"unit"`
	Width   float64           `json:"width"`
	Total   int               `json:"total"`
	Buckets []HistogramBucket `json:"buckets"`
}

// StatusTime содержит суммарное время в статусе по всем задачам.
type StatusTime struct {
	Status     string        `json:"status"`
	Total      time.Duration `json:"total"`
	TotalDays  float64       `json:"total_days"`
	IssueCount int           `json:"issue_count"`
	MeanDays   float64       `json:"mean_days"`
	MedianDays float64       `json:"median_days"`
	P90Days    float64       `json:"p90_days"`
}

// DailyTrendPoint: создано/закрыто за календарный день и накопленные итоги.
type DailyTrendPoint struct {
	Day               string `json:"day"`
	Created           int    `json:"created"`
	Closed            int    `json:"closed"`
	CumulativeCreated int    `json:"cumulative_created"`
	CumulativeClosed  int    `json:"cumulative_closed"`
}

// DailyTrend содержит ряд точек от первого до последнего наблюдаемого дня без пропусков.
type DailyTrend struct {
	Location string            `json:"location"`
	Points   []DailyTrendPoint `json:"points"`
}

// UserMetric считает, сколько раз пользователь был исполнителем и автором.
type UserMetric struct {
	UserID        string `json:"user_id"`
	DisplayName   string `json:"display_name"`
	AssigneeCount int    `json:"assignee_count"`
	ReporterCount int    `json:"reporter_count"`
}

// Combined возвращает суммарный счётчик для ранжирования.
func (u UserMetric) Combined() int {
	return u.AssigneeCount + u.ReporterCount
}

// OtherUsers сворачивает пользователей за пределами топа.
type OtherUsers struct {
	Users         int `json:"users"`
	AssigneeCount int `json:"assignee_count"`
	ReporterCount int `json:"reporter_count"`
	Combined      int `json:"combined"`
}

// UserDistribution: топ пользователей и остаток.
type UserDistribution struct {
	Top   []UserMetric `json:"top"`
	Other OtherUsers   `json:"other"`
}

// PriorityCount хранит число задач с приоритетом.
type PriorityCount struct {
	Priority string `json:"priority"`
	Count    int    `json:"count"`
}

// Report объединяет шесть независимых датасетов. Недоступный датасет равен nil,
// причина записана в Unavailable.
type Report struct {
	OpenDuration *Histogram        `json:"open_duration"`
	StatusTime   []StatusTime      `json:"status_time"`
	DailyTrend   *DailyTrend       `json:"daily_trend"`
	Users        *UserDistribution `json:"users"`
	LoggedTime   *Histogram        `json:"logged_time"`
	Priority     []PriorityCount   `json:"priority"`

	Unavailable map[string]string `json:"unavailable,omitempty"`
}

// Dataset возвращает датасет по имени.
func (r *Report) Dataset(name string) (any, bool) {
	switch name {
	case DatasetOpenDuration:
		return r.OpenDuration, r.OpenDuration != nil
	case DatasetStatusTime:
		return r.StatusTime, r.StatusTime != nil
	case DatasetDailyTrend:
		return r.DailyTrend, r.DailyTrend != nil
	case DatasetUsers:
		return r.Users, r.Users != nil
	case DatasetLoggedTime:
		return r.LoggedTime, r.LoggedTime != nil
	case DatasetPriority:
		return r.Priority, r.Priority != nil
	}
	return nil, false
}
