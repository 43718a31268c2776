package models

import "time"

// AnalysisResult описывает результат одного прогона.
type AnalysisResult struct {
	RunID       string      `json:"run_id"`
	Query       Query       `json:"query"`
	StartedAt   time.Time   `json:"started_at"`
	SnapshotNow time.Time   `json:"snapshot_now"`
	FinishedAt  time.Time   `json:"finished_at"`
	IssueCount  int         `json:"issue_count"`
	ClosedCount int         `json:"closed_count"`
	Report      Report      `json:"report"`
	DataQuality DataQuality `json:"data_quality"`
}

// RunSummary соответствует записи архива прогонов.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	Project      string    `json:"project"`
	SnapshotNow  time.Time `json:"snapshot_now"`
	FinishedAt   time.Time `json:"finished_at"`
	IssueCount   int       `json:"issue_count"`
	ClosedCount  int       `json:"closed_count"`
	WarningCount int       `json:"warning_count"`
}
