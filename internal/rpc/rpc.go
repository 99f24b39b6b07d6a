package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nikhil/discuss/internal/logger"
)

// maxBodySize bounds request bodies; avatars are the largest payload.
const maxBodySize = 8 << 20

// Error codes
const (
	CodeNotFound     = "not_found"
	CodeValidation   = "validation_error"
	CodeUnauthorized = "unauthorized"
	CodeInternal     = "internal_error"
	CodeTooLarge     = "request_too_large"
)

var log = logger.NewNop()

// SetLogger sets where response encoding failures are logged.
func SetLogger(l *logger.Logger) {
	log = l
}

// Error is a failure reported to the caller with its HTTP status.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// NotFound reports a missing channel or membership.
func NotFound() *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: "Not Found"}
}

// Invalid reports a parameter that could not be used.
func Invalid(message string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: message}
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      json.RawMessage `json:"id"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"`
}

type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *Error          `json:"error"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode reads the request body into params and validates it. The body is
// either a JSON-RPC call whose "params" hold the arguments, or the bare
// arguments object. The returned id echoes the call id, if any.
func Decode(r *http.Request, params interface{}) (json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &Error{Status: http.StatusRequestEntityTooLarge, Code: CodeTooLarge,
				Message: fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit)}
		}
		return nil, Invalid("Invalid request body")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = []byte("{}")
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, Invalid("Invalid request body")
	}
	raw := body
	if req.JSONRPC != "" || req.Method != "" {
		raw = req.Params
		if len(raw) == 0 || string(raw) == "null" {
			raw = []byte("{}")
		}
	}

	if err := json.Unmarshal(raw, params); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return req.ID, Invalid(fmt.Sprintf("Invalid `%s` argument", typeErr.Field))
		}
		return req.ID, Invalid("Invalid request body")
	}
	if err := validate.Struct(params); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return req.ID, Invalid(describe(fieldErrs[0]))
		}
		return req.ID, Invalid("Invalid request body")
	}
	return req.ID, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Missing `%s` argument", fe.Field())
	case "oneof":
		return fmt.Sprintf("Invalid `%s` argument, expected one of: %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("Invalid `%s` argument", fe.Field())
}

// ParseID accepts an integer given as a JSON number or a numeric string.
func ParseID(raw json.RawMessage) (int64, error) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("not an integer: %s", raw)
	}
	return strconv.ParseInt(n.String(), 10, 64)
}

// WriteResult sends a successful response.
func WriteResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	writeJSON(w, http.StatusOK, response{JSONRPC: "2.0", ID: normalizeID(id), Result: result})
}

// WriteError sends a failure. Errors that are not *Error are reported as
// internal errors without detail.
func WriteError(w http.ResponseWriter, id json.RawMessage, err error) {
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		rpcErr = &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "Internal server error"}
	}
	writeJSON(w, rpcErr.Status, errorResponse{JSONRPC: "2.0", ID: normalizeID(id), Error: rpcErr})
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error("Failed to encode response", "status", code, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":"` + CodeInternal + `","message":"Internal server error"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
