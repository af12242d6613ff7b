// Package httpx provides the JSON envelope used by every API response.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Envelope is the uniform response body.
type Envelope struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK wraps data in a success envelope.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Code: http.StatusOK, Data: data, Message: "ok"})
}

// Fail sends an error envelope with null data.
func Fail(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	JSON(w, status, Envelope{Code: status, Data: nil, Message: message})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.Validation("request body required")
		}
		return shared.Validation("malformed request body")
	}
	return nil
}

// Bind decodes the body and runs struct validation.
func Bind(r *http.Request, v *validator.Validate, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return err
	}
	return Validate(v, target)
}

// Validate runs v against target and flattens field errors into one message.
func Validate(v *validator.Validate, target any) error {
	err := v.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return shared.Validation(err.Error())
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return shared.Validation(strings.Join(parts, "; "))
}
