package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the body of every non-validation error.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ValidationIssue locates one problem in a request.
type ValidationIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationErrorResponse is the 422 body.
type ValidationErrorResponse struct {
	Detail []ValidationIssue `json:"detail"`
}

// respondJSON writes data with the given status code.
func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

// respondDetail writes {"detail": message}.
func (a *API) respondDetail(w http.ResponseWriter, statusCode int, message string) {
	a.respondJSON(w, ErrorResponse{Detail: message}, statusCode)
}

// writeError logs err in full and returns message to the client.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	fields := []interface{}{
		"status_code", statusCode,
		"request_id", RequestIDFromContext(r.Context()),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	if statusCode >= http.StatusInternalServerError {
		a.logger.Errorw(message, fields...)
	} else {
		a.logger.Warnw(message, fields...)
	}
	a.respondDetail(w, statusCode, message)
}

// errBodyTooLarge is returned by decodeJSONBody when the body exceeds the limit.
var errBodyTooLarge = errors.New("request body too large")

// decodeJSONBody decodes a bounded request body into dst. Decode failures are
// returned as validation issues; unknown fields are ignored.
func (a *API) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) ([]ValidationIssue, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.API.MaxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return nil, nil
	}

	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytesError):
		return nil, errBodyTooLarge
	case errors.Is(err, io.EOF):
		return []ValidationIssue{{Loc: []string{"body"}, Msg: "field required", Type: "value_error.missing"}}, nil
	case errors.As(err, &syntaxError), errors.Is(err, io.ErrUnexpectedEOF):
		return []ValidationIssue{{Loc: []string{"body"}, Msg: "invalid JSON body", Type: "value_error.jsondecode"}}, nil
	case errors.As(err, &typeError):
		loc := []string{"body"}
		if typeError.Field != "" {
			loc = append(loc, typeError.Field)
		}
		return []ValidationIssue{{
			Loc:  loc,
			Msg:  fmt.Sprintf("expected %s, got %s", typeError.Type, typeError.Value),
			Type: "type_error." + typeError.Type.Kind().String(),
		}}, nil
	default:
		return []ValidationIssue{{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error"}}, nil
	}
}

// validationIssues converts validator errors into 422 issues.
func validationIssues(err error) []ValidationIssue {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationIssue{{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error"}}
	}

	issues := make([]ValidationIssue, 0, len(verrs))
	for _, fe := range verrs {
		issue := ValidationIssue{Loc: []string{"body", fe.Field()}}
		switch fe.Tag() {
		case "required":
			issue.Msg = "field required"
			issue.Type = "value_error.missing"
		default:
			issue.Msg = fmt.Sprintf("failed %q validation", fe.Tag())
			issue.Type = "value_error." + fe.Tag()
		}
		issues = append(issues, issue)
	}
	return issues
}
