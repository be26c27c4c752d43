package httputil

import (
	"encoding/json"
	"net/http"
)

// Envelope is the body of every API response
type Envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteData writes a successful envelope carrying data
func WriteData(w http.ResponseWriter, status int, message string, data interface{}) {
	_ = WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// WriteSuccess writes a 200 envelope carrying data
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteData(w, http.StatusOK, "", data)
}

// WriteCreated writes a 201 envelope carrying data
func WriteCreated(w http.ResponseWriter, message string, data interface{}) {
	WriteData(w, http.StatusCreated, message, data)
}

// WriteErrorMessage writes a failed envelope with a message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, Envelope{Success: false, Message: message})
}

// WriteValidationErrors writes a 400 envelope listing every rejected field.
// message is normally the first field's message.
func WriteValidationErrors(w http.ResponseWriter, message string, errs interface{}) {
	_ = WriteJSON(w, http.StatusBadRequest, Envelope{Success: false, Message: message, Errors: errs})
}

// WriteErrorCode writes a failed envelope with a machine-readable code
func WriteErrorCode(w http.ResponseWriter, status int, code, message string) {
	_ = WriteJSON(w, status, Envelope{Success: false, Message: message, Code: code})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusTooManyRequests, message)
}

// WriteInternalError writes a 500 with a generic message. The cause belongs
// in the log, not the response.
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "Internal server error")
}
