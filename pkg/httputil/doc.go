// Package httputil provides the JSON envelope, request parsing helpers and
// the generic HTTP middleware shared by every Unwind handler.
//
// Every response body is an Envelope:
//
//	{"success": true, "message": "Login successful", "data": {...}}
//	{"success": false, "message": "Password is required", "errors": [...]}
//
// Internal errors always carry the same generic message; the cause is
// logged with the request ID instead.
package httputil
