package web

import "net/http"

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError формирует стандартный JSON с кодом и сообщением об ошибке.
func writeError(w http.ResponseWriter, status int, code, message string) {
	resp := errorResponse{
		Error: errorBody{
			Code:    code,
			Message: message,
		},
	}
	writeJSON(w, status, resp)
}

// Возможные значения кода ошибки.
const (
	TRACKERAUTHFAILED  ErrorResponseErrorCode = "TRACKER_AUTH_FAILED"
	RETRIEVALFAILED    ErrorResponseErrorCode = "RETRIEVAL_FAILED"
	INVALIDQUERY       ErrorResponseErrorCode = "INVALID_QUERY"
	NOTFOUND           ErrorResponseErrorCode = "NOT_FOUND"
	DATASETUNAVAILABLE ErrorResponseErrorCode = "DATASET_UNAVAILABLE"
	ARCHIVEDISABLED    ErrorResponseErrorCode = "ARCHIVE_DISABLED"
	ANALYSISCANCELLED  ErrorResponseErrorCode = "ANALYSIS_CANCELLED"
	INVALIDPARAM       ErrorResponseErrorCode = "INVALID_PARAM"
	INTERNALERROR      ErrorResponseErrorCode = "INTERNAL_ERROR"
)

// ErrorResponseErrorCode описывает код ошибки в ответе.
type ErrorResponseErrorCode string
