package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"sovereign/native/common"
)

type errorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps engine error categories onto HTTP statuses.
func statusFor(err error) int {
	var bad *badRequestError
	if errors.As(err, &bad) {
		return http.StatusBadRequest
	}
	switch common.CategoryOf(err) {
	case common.CategoryPrecondition:
		if strings.HasSuffix(common.CodeOf(err), "NotFound") {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case common.CategoryInvariant:
		return http.StatusUnprocessableEntity
	case common.CategoryAuthorization:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// outcomeFor labels an intent outcome for metrics.
func outcomeFor(err error) string {
	if err == nil {
		return "ok"
	}
	var bad *badRequestError
	if errors.As(err, &bad) {
		return "bad_request"
	}
	return string(common.CategoryOf(err))
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	switch status {
	case http.StatusBadRequest:
	case http.StatusInternalServerError:
		body.Error = "internal error"
	default:
		body.Code = common.CodeOf(err)
		body.Category = string(common.CategoryOf(err))
	}
	writeJSON(w, status, body)
}

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func decodeBody(r *http.Request, into any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

// parseAmount parses a non-negative base-10 integer.
func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, badRequest("%s is required", field)
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || v.Sign() < 0 {
		return nil, badRequest("%s must be a non-negative integer", field)
	}
	return v, nil
}

// parseOptionalAmount treats an empty value as zero.
func parseOptionalAmount(field, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(field, raw)
}
