package httpx

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Status maps a domain error onto an HTTP status code.
func Status(err error) int {
	switch shared.KindOf(err) {
	case shared.KindInvalidCredentials, shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindUnauthorized:
		return http.StatusUnauthorized
	case shared.KindForbidden:
		return http.StatusForbidden
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindInvariant:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// RespondError renders err into the response envelope. Internal errors never leak their text.
func RespondError(w http.ResponseWriter, err error) {
	Fail(w, Status(err), shared.MessageOf(err))
}
