package response

import (
	"net/http"

	"github.com/goccy/go-json"
)

// Envelope is the standard JSON envelope for all API responses.
type Envelope struct {
	Data any   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

// Meta describes the size of a listed result.
type Meta struct {
	Total int `json:"total"`
}

// ErrorBody is written for every failed request.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes a successful API response with the given data.
func JSON(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, Envelope{Data: data})
}

// JSONTotal writes a successful API response with the number of items.
func JSONTotal(w http.ResponseWriter, data any, total int) {
	write(w, http.StatusOK, Envelope{Data: data, Meta: &Meta{Total: total}})
}

// Err writes a JSON error response with the given message and HTTP status code.
func Err(w http.ResponseWriter, msg string, code int) {
	write(w, code, ErrorBody{Error: msg})
}

// ErrCode is Err with a machine-readable code.
func ErrCode(w http.ResponseWriter, msg, errCode string, code int) {
	write(w, code, ErrorBody{Error: msg, Code: errCode})
}

// DecodeBody decodes a JSON request body into the given value.
func DecodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
