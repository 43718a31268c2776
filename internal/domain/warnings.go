package domain

import (
	"errors"
	"fmt"

	"github.com/AlekseyZapadovnikov/tracker-analytics/internal/models"
)

// NewMalformedRecordWarning фиксирует пропущенную или упрощённую запись трекера.
func NewMalformedRecordWarning(issueKey, format string, args ...any) models.Warning {
	return models.Warning{
		Kind:     models.WarningMalformedRecord,
		IssueKey: issueKey,
		Message:  fmt.Sprintf("%s: %s", ErrMalformedRecord, fmt.Sprintf(format, args...)),
	}
}

// NewClampedEventWarning фиксирует событие, выходящее за границы жизни задачи.
func NewClampedEventWarning(issueKey, format string, args ...any) models.Warning {
	return models.Warning{
		Kind:     models.WarningClampedEvent,
		IssueKey: issueKey,
		Message:  fmt.Sprintf(format, args...),
	}
}

// NewReconstructionWarning фиксирует откат таймлайна задачи к одному интервалу.
func NewReconstructionWarning(issueKey, format string, args ...any) models.Warning {
	return models.Warning{
		Kind:     models.WarningReconstructionFallback,
		IssueKey: issueKey,
		Message:  fmt.Sprintf("%s: %s", ErrReconstruction, fmt.Sprintf(format, args...)),
	}
}

// WarningFromError превращает некритичную ошибку записи в предупреждение.
func WarningFromError(err error) models.Warning {
	var mre *MalformedRecordError
	if errors.As(err, &mre) {
		return models.Warning{
			Kind:     models.WarningMalformedRecord,
			IssueKey: mre.IssueKey,
			Message:  mre.Error(),
		}
	}
	return models.Warning{Kind: models.WarningMalformedRecord, Message: err.Error()}
}
