package domain

import (
	"errors"
	"fmt"
)

// Сентинельные ошибки домена, используемые трекером, сервисом и веб-слоем.
var (
	ErrAuth               = errors.New("TRACKER_AUTH_FAILED")
	ErrRetrieval          = errors.New("RETRIEVAL_FAILED")
	ErrMalformedRecord    = errors.New("MALFORMED_RECORD")
	ErrReconstruction     = errors.New("RECONSTRUCTION_DEGRADED")
	ErrInvalidQuery       = errors.New("INVALID_QUERY")
	ErrSequenceConsumed   = errors.New("SEQUENCE_CONSUMED")
	ErrDatasetUnavailable = errors.New("DATASET_UNAVAILABLE")
	ErrNotFound           = errors.New("NOT_FOUND")
	ErrArchiveDisabled    = errors.New("ARCHIVE_DISABLED")
)

// AuthError сообщает, что трекер отверг учётные данные. Никогда не ретраится.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: tracker rejected credentials (status %d): %s", ErrAuth, e.StatusCode, e.Message)
}

func (e *AuthError) Unwrap() error {
	return ErrAuth
}

// NewAuthError возвращает ошибку аутентификации для статуса ответа трекера.
func NewAuthError(statusCode int, message string) error {
	return &AuthError{StatusCode: statusCode, Message: message}
}

// RetrievalError возвращается, когда бюджет повторов для страницы исчерпан.
// Scope равен "search" или "changelog", IssueKey заполнен только для changelog.
type RetrievalError struct {
	Scope    string
	IssueKey string
	Offset   int
	Attempts int
	Err      error
}

func (e *RetrievalError) Error() string {
	if e.IssueKey != "" {
		return fmt.Sprintf("%s: %s %s at offset %d after %d attempt(s): %v", ErrRetrieval, e.Scope, e.IssueKey, e.Offset, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %s at offset %d after %d attempt(s): %v", ErrRetrieval, e.Scope, e.Offset, e.Attempts, e.Err)
}

func (e *RetrievalError) Unwrap() []error {
	return []error{ErrRetrieval, e.Err}
}

// NewRetrievalError оборачивает последнюю ошибку запроса страницы.
func NewRetrievalError(scope, issueKey string, offset, attempts int, err error) error {
	return &RetrievalError{
		Scope:    scope,
		IssueKey: issueKey,
		Offset:   offset,
		Attempts: attempts,
		Err:      err,
	}
}

// NewInvalidQueryError используется при некорректном ключе проекта или фильтре.
func NewInvalidQueryError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, reason)
}

// NewDatasetUnavailableError сообщает, что отдельный датасет не удалось построить.
func NewDatasetUnavailableError(dataset, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrDatasetUnavailable, dataset, reason)
}

// NewNotFoundError возвращает ошибку отсутствия переданного ресурса.
func NewNotFoundError(resource string) error {
	return fmt.Errorf("%w: %s not found", ErrNotFound, resource)
}

// MalformedRecordError описывает некритичную ошибку разбора одной записи.
// Последовательности выдачи задач отдают её вместе с пустой записью и продолжают работу.
type MalformedRecordError struct {
	IssueKey string
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	if e.IssueKey == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedRecord, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrMalformedRecord, e.IssueKey, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

// NewMalformedRecordError возвращает ошибку пропущенной записи.
func NewMalformedRecordError(issueKey, reason string) error {
	return &MalformedRecordError{IssueKey: issueKey, Reason: reason}
}
