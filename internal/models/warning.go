package models

// WarningKind описывает категорию некритичной проблемы качества данных.
type WarningKind string

// Возможные значения WarningKind.
const (
	WarningMalformedRecord        WarningKind = "malformed_record"
	WarningClampedEvent           WarningKind = "clamped_event"
	WarningReconstructionFallback WarningKind = "reconstruction_fallback"
)

// Warning описывает одну пропущенную или упрощённую запись.
type Warning struct {
	Kind     WarningKind `json:"kind"`
	IssueKey string      `json:"issue_key,omitempty"`
	Message  string      `json:"message"`
}

// DataQuality содержит сводку предупреждений прогона.
type DataQuality struct {
	Counts   map[WarningKind]int `json:"counts"`
	Warnings []Warning           `json:"warnings"`
	// DegradedIssues: число задач, чей таймлайн откатился к одному интервалу.
	DegradedIssues int `json:"degraded_issues"`
}

// NewDataQuality собирает сводку по списку предупреждений.
func NewDataQuality(warnings []Warning) DataQuality {
	dq := DataQuality{
		Counts:   make(map[WarningKind]int),
		Warnings: make([]Warning, 0, len(warnings)),
	}
	for _, w := range warnings {
		dq.Counts[w.Kind]++
		dq.Warnings = append(dq.Warnings, w)
		if w.Kind == WarningReconstructionFallback {
			dq.DegradedIssues++
		}
	}
	return dq
}

// Total возвращает общее число предупреждений.
func (dq DataQuality) Total() int {
	return len(dq.Warnings)
}
